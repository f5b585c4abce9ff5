package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/pagenote/internal/pkg/response"
	"github.com/xxxsen/pagenote/internal/service"
)

type URLHandler struct {
	urls *service.URLService
}

func NewURLHandler(urls *service.URLService) *URLHandler {
	return &URLHandler{urls: urls}
}

func (h *URLHandler) Upload(c *gin.Context) {
	signed, err := h.urls.UploadURL(c.Request.Context(), getUserID(c), c.Query("id"), c.Query("pageId"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, signed)
}

func (h *URLHandler) Download(c *gin.Context) {
	signed, err := h.urls.DownloadURL(c.Request.Context(), getUserID(c), c.Query("id"), c.Query("pageId"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, signed)
}

func (h *URLHandler) AssetUpload(c *gin.Context) {
	signed, err := h.urls.AssetUploadURL(c.Request.Context(), c.Query("filename"), c.Query("contentType"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, signed)
}
