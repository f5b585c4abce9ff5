package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/pagenote/internal/middleware"
)

type RouterDeps struct {
	Auth          *AuthHandler
	Notebooks     *NotebookHandler
	URLs          *URLHandler
	Blobs         *BlobHandler
	Health        *HealthHandler
	Metrics       http.Handler
	JWTSecret     []byte
	AuthRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authLimit := middleware.RateLimit(deps.AuthRateLimit)
	api.POST("/auth/register", authLimit, deps.Auth.Register)
	api.POST("/auth/login", authLimit, deps.Auth.Login)

	if deps.Health != nil {
		api.GET("/healthz", deps.Health.Healthz)
	}
	if deps.Metrics != nil {
		api.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.Blobs != nil {
		api.PUT("/blobs/*key", deps.Blobs.Put)
		api.GET("/blobs/*key", deps.Blobs.Get)
	}

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.GET("/notebooks", deps.Notebooks.List)
	authGroup.POST("/notebooks", deps.Notebooks.Create)
	authGroup.GET("/notebooks/urls/upload", deps.URLs.Upload)
	authGroup.GET("/notebooks/urls/download", deps.URLs.Download)
	authGroup.GET("/notebooks/:id", deps.Notebooks.Get)
	authGroup.PATCH("/notebooks/:id", deps.Notebooks.Update)
	authGroup.DELETE("/notebooks/:id", deps.Notebooks.Delete)
	authGroup.GET("/assets/upload", deps.URLs.AssetUpload)
}
