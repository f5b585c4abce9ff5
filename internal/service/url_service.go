package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/pagenote/internal/contentstore"
	"github.com/xxxsen/pagenote/internal/model"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
	"github.com/xxxsen/pagenote/internal/repo"
)

type URLService struct {
	notebooks *repo.NotebookRepo
	store     contentstore.Store
	ttl       time.Duration
	now       func() time.Time
}

func NewURLService(notebooks *repo.NotebookRepo, store contentstore.Store, ttl time.Duration) *URLService {
	return &URLService{notebooks: notebooks, store: store, ttl: ttl, now: time.Now}
}

func (s *URLService) UploadURL(ctx context.Context, userID, notebookID, pageID string) (*model.SignedURL, error) {
	key, err := s.pageKey(ctx, userID, notebookID, pageID)
	if err != nil {
		return nil, err
	}
	url, err := s.store.PresignPut(ctx, key, "text/html", s.ttl)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	return s.signed(url, key), nil
}

func (s *URLService) DownloadURL(ctx context.Context, userID, notebookID, pageID string) (*model.SignedURL, error) {
	key, err := s.pageKey(ctx, userID, notebookID, pageID)
	if err != nil {
		return nil, err
	}
	url, err := s.store.PresignGet(ctx, key, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("presign download: %w", err)
	}
	return s.signed(url, key), nil
}

// AssetUploadURL signs an upload for a new, publicly readable asset key.
// Asset keys are random and not namespaced by owner.
func (s *URLService) AssetUploadURL(ctx context.Context, filename, contentType string) (*model.SignedURL, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, fmt.Errorf("filename is required: %w", appErr.ErrInvalid)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := contentstore.AssetKey(filename)
	url, err := s.store.PresignPut(ctx, key, contentType, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("presign asset: %w", err)
	}
	return s.signed(url, key), nil
}

// pageKey resolves the physical key after checking the caller owns the
// notebook. The page id is not checked against the page list.
func (s *URLService) pageKey(ctx context.Context, userID, notebookID, pageID string) (string, error) {
	notebookID = strings.TrimSpace(notebookID)
	if notebookID == "" {
		return "", fmt.Errorf("notebook id is required: %w", appErr.ErrInvalid)
	}
	if strings.ContainsAny(pageID, `/\`) {
		return "", fmt.Errorf("invalid page id: %w", appErr.ErrInvalid)
	}
	if _, err := s.notebooks.GetByID(ctx, userID, notebookID); err != nil {
		return "", err
	}
	return contentstore.PageKey(userID, notebookID, pageID), nil
}

func (s *URLService) signed(url, key string) *model.SignedURL {
	return &model.SignedURL{URL: url, Key: key, ExpiresAt: s.now().Add(s.ttl).UnixMilli()}
}
