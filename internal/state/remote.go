package state

import (
	"context"

	"github.com/xxxsen/pagenote/internal/model"
)

// Remote is the server surface the container needs. *client.Client
// implements it.
type Remote interface {
	ListNotebooks(ctx context.Context) ([]model.Notebook, error)
	CreateNotebook(ctx context.Context, title string) (*model.Notebook, error)
	GetNotebook(ctx context.Context, id string) (*model.Notebook, error)
	UpdateNotebook(ctx context.Context, id string, patch model.NotebookPatch) (*model.Notebook, error)
	DeleteNotebook(ctx context.Context, id string) error
	UploadURL(ctx context.Context, id, pageID string) (*model.SignedURL, error)
	DownloadURL(ctx context.Context, id, pageID string) (*model.SignedURL, error)
	AssetUploadURL(ctx context.Context, filename, contentType string) (*model.SignedURL, error)
	PutBlob(ctx context.Context, signedURL, contentType string, body []byte) error
	GetBlob(ctx context.Context, signedURL string) ([]byte, error)
}

// httpStatuser is implemented by transport errors that carry an HTTP status.
type httpStatuser interface {
	HTTPStatus() int
}
