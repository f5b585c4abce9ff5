package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/pagenote/internal/model"
	"github.com/xxxsen/pagenote/internal/pkg/errcode"
	"github.com/xxxsen/pagenote/internal/pkg/response"
	"github.com/xxxsen/pagenote/internal/service"
)

type NotebookHandler struct {
	notebooks *service.NotebookService
}

func NewNotebookHandler(notebooks *service.NotebookService) *NotebookHandler {
	return &NotebookHandler{notebooks: notebooks}
}

type createNotebookRequest struct {
	Title string `json:"title"`
}

func (h *NotebookHandler) List(c *gin.Context) {
	items, err := h.notebooks.List(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *NotebookHandler) Create(c *gin.Context) {
	var req createNotebookRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid request")
			return
		}
	}
	nb, err := h.notebooks.Create(c.Request.Context(), getUserID(c), req.Title)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nb)
}

func (h *NotebookHandler) Get(c *gin.Context) {
	nb, err := h.notebooks.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nb)
}

func (h *NotebookHandler) Update(c *gin.Context) {
	var patch model.NotebookPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	nb, err := h.notebooks.Update(c.Request.Context(), getUserID(c), c.Param("id"), patch)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nb)
}

func (h *NotebookHandler) Delete(c *gin.Context) {
	if err := h.notebooks.Delete(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}
