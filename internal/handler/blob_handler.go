package handler

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/pagenote/internal/contentstore"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
)

const DefaultMaxBlobBytes = 20 * 1024 * 1024

// BlobHandler serves signed URLs issued by the local content store. It
// answers with bare status codes because callers are raw HTTP clients.
type BlobHandler struct {
	store    contentstore.Store
	auth     contentstore.Authorizer
	maxBytes int64
}

// NewBlobHandler returns nil when store signs URLs served elsewhere.
func NewBlobHandler(store contentstore.Store, maxBytes int64) *BlobHandler {
	auth, ok := store.(contentstore.Authorizer)
	if !ok {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBlobBytes
	}
	return &BlobHandler{store: store, auth: auth, maxBytes: maxBytes}
}

func blobKey(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("key"), "/")
}

func (h *BlobHandler) Put(c *gin.Context) {
	key := blobKey(c)
	if err := h.auth.Authorize(c.Query("token"), http.MethodPut, key); err != nil {
		c.Status(blobStatus(err))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes))
	if err != nil {
		logutil.GetLogger(c.Request.Context()).Warn("blob body rejected",
			zap.String("key", key), zap.String("limit", formatBytes(h.maxBytes)), zap.Error(err))
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}
	contentType := c.ContentType()
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	if err := h.store.Put(c.Request.Context(), key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		logutil.GetLogger(c.Request.Context()).Error("store blob failed", zap.String("key", key), zap.Error(err))
		c.Status(blobStatus(err))
		return
	}
	c.Status(http.StatusOK)
}

func (h *BlobHandler) Get(c *gin.Context) {
	key := blobKey(c)
	if !contentstore.IsPublicKey(key) {
		if err := h.auth.Authorize(c.Query("token"), http.MethodGet, key); err != nil {
			c.Status(blobStatus(err))
			return
		}
	}
	rc, err := h.store.Get(c.Request.Context(), key)
	if err != nil {
		c.Status(blobStatus(err))
		return
	}
	defer func() { _ = rc.Close() }()
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		logutil.GetLogger(c.Request.Context()).Warn("stream blob failed", zap.String("key", key), zap.Error(err))
	}
}

func blobStatus(err error) int {
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, appErr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, appErr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, appErr.ErrInvalid):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func formatBytes(n int64) string {
	const mb = 1024 * 1024
	if n < mb {
		return strconv.FormatInt(n, 10) + "B"
	}
	return strconv.FormatInt(n/mb, 10) + "MB"
}
