package handler_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/pagenote/internal/config"
	"github.com/xxxsen/pagenote/internal/contentstore"
	"github.com/xxxsen/pagenote/internal/handler"
	"github.com/xxxsen/pagenote/internal/middleware"
	"github.com/xxxsen/pagenote/internal/pkg/jwt"
	"github.com/xxxsen/pagenote/internal/repo"
	"github.com/xxxsen/pagenote/internal/service"
)

var jwtSecret = []byte("test-secret")

func setupRouter(t *testing.T, db *sql.DB) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := contentstore.New(config.ContentStoreConfig{
		Type: "local",
		Local: config.LocalStoreConfig{
			Dir:     t.TempDir(),
			BaseURL: "http://example.com",
			Secret:  "blob-secret",
		},
	})
	require.NoError(t, err)

	notebookRepo := repo.NewNotebookRepo(db)
	reg := prometheus.NewRegistry()
	metrics := middleware.NewHTTPMetrics(reg)
	deps := handler.RouterDeps{
		Auth:      handler.NewAuthHandler(service.NewAuthService(repo.NewUserRepo(db), jwtSecret, time.Hour)),
		Notebooks: handler.NewNotebookHandler(service.NewNotebookService(notebookRepo, store)),
		URLs:      handler.NewURLHandler(service.NewURLService(notebookRepo, store, time.Minute)),
		Blobs:     handler.NewBlobHandler(store, 1024),
		Health:    handler.NewHealthHandler(db),
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		JWTSecret: jwtSecret,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
			metrics.Middleware(),
		),
	)
	require.NoError(t, err)
	return engine
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.GenerateToken(userID, "", jwtSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body interface{}) envelope {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return env
}

func doRaw(router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}
