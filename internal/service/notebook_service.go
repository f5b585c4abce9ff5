package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/pagenote/internal/contentstore"
	"github.com/xxxsen/pagenote/internal/model"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
	"github.com/xxxsen/pagenote/internal/pkg/timeutil"
	"github.com/xxxsen/pagenote/internal/repo"
)

const maxTitleLength = 200

type NotebookService struct {
	notebooks *repo.NotebookRepo
	store     contentstore.Store
}

func NewNotebookService(notebooks *repo.NotebookRepo, store contentstore.Store) *NotebookService {
	return &NotebookService{notebooks: notebooks, store: store}
}

// DefaultPage is the first page every new notebook starts with.
func DefaultPage(notebookID string) model.Page {
	pageID := newID()
	return model.Page{
		ID:         pageID,
		Title:      "Page 1",
		ContentKey: model.PageContentKey(notebookID, pageID),
		Order:      0,
	}
}

func (s *NotebookService) Create(ctx context.Context, userID, title string) (*model.Notebook, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = model.DefaultNotebookTitle
	}
	if len([]rune(title)) > maxTitleLength {
		return nil, fmt.Errorf("title too long: %w", appErr.ErrInvalid)
	}
	now := timeutil.NowMilli()
	nb := &model.Notebook{
		ID:           newID(),
		UserID:       userID,
		Title:        title,
		Tags:         []string{},
		CreatedAt:    now,
		LastEditedAt: now,
	}
	nb.Pages = []model.Page{DefaultPage(nb.ID)}
	if err := s.notebooks.Create(ctx, nb); err != nil {
		return nil, err
	}
	return nb, nil
}

func (s *NotebookService) List(ctx context.Context, userID string) ([]model.Notebook, error) {
	return s.notebooks.ListByUser(ctx, userID)
}

func (s *NotebookService) Get(ctx context.Context, userID, notebookID string) (*model.Notebook, error) {
	if notebookID == "" {
		return nil, fmt.Errorf("notebook id is required: %w", appErr.ErrInvalid)
	}
	return s.notebooks.GetByID(ctx, userID, notebookID)
}

// Update applies a partial update and returns the stored record. Pages that
// the patch drops have their bodies removed best effort.
func (s *NotebookService) Update(ctx context.Context, userID, notebookID string, patch model.NotebookPatch) (*model.Notebook, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("empty update: %w", appErr.ErrInvalid)
	}
	if err := normalizePatch(notebookID, &patch); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, userID, notebookID)
	if err != nil {
		return nil, err
	}
	now := timeutil.NowMilli()
	if err := s.notebooks.Update(ctx, userID, notebookID, patch, now); err != nil {
		return nil, err
	}
	updated := current.Clone()
	patch.Apply(updated)
	updated.LastEditedAt = now
	if patch.Pages != nil {
		s.removeDroppedPages(ctx, userID, current, updated)
	}
	return updated, nil
}

func (s *NotebookService) Delete(ctx context.Context, userID, notebookID string) error {
	current, err := s.Get(ctx, userID, notebookID)
	if err != nil {
		return err
	}
	if err := s.notebooks.Delete(ctx, userID, notebookID); err != nil {
		return err
	}
	s.removeBlobs(ctx, userID, current)
	return nil
}

func (s *NotebookService) removeDroppedPages(ctx context.Context, userID string, before, after *model.Notebook) {
	kept := make(map[string]struct{}, len(after.Pages))
	for _, p := range after.Pages {
		kept[p.ID] = struct{}{}
	}
	for _, p := range before.Pages {
		if _, ok := kept[p.ID]; ok {
			continue
		}
		s.deleteBlob(ctx, contentstore.PageKey(userID, before.ID, p.ID))
	}
}

func (s *NotebookService) removeBlobs(ctx context.Context, userID string, nb *model.Notebook) {
	if s.store == nil {
		return
	}
	s.deleteBlob(ctx, contentstore.PageKey(userID, nb.ID, ""))
	objects, err := s.store.List(ctx, contentstore.NotebookPrefix(userID, nb.ID))
	if err != nil {
		logutil.GetLogger(ctx).Warn("list notebook blobs failed",
			zap.String("notebook_id", nb.ID), zap.Error(err))
		return
	}
	for _, obj := range objects {
		s.deleteBlob(ctx, obj.Key)
	}
}

func (s *NotebookService) deleteBlob(ctx context.Context, key string) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		logutil.GetLogger(ctx).Warn("delete blob failed", zap.String("key", key), zap.Error(err))
	}
}

func normalizePatch(notebookID string, patch *model.NotebookPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			title = model.DefaultNotebookTitle
		}
		if len([]rune(title)) > maxTitleLength {
			return fmt.Errorf("title too long: %w", appErr.ErrInvalid)
		}
		patch.Title = &title
	}
	if patch.Tags != nil {
		tags := NormalizeTags(*patch.Tags)
		patch.Tags = &tags
	}
	if patch.Pages != nil {
		pages, err := normalizePages(notebookID, *patch.Pages)
		if err != nil {
			return err
		}
		patch.Pages = &pages
	}
	return nil
}

// NormalizeTags trims, drops blanks and removes duplicates keeping first
// occurrence order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func normalizePages(notebookID string, pages []model.Page) ([]model.Page, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("a notebook keeps at least one page: %w", appErr.ErrInvalid)
	}
	ids := make(map[string]struct{}, len(pages))
	orders := make(map[int]struct{}, len(pages))
	out := make([]model.Page, 0, len(pages))
	for _, p := range pages {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" || strings.ContainsAny(p.ID, `/\`) {
			return nil, fmt.Errorf("invalid page id %q: %w", p.ID, appErr.ErrInvalid)
		}
		if _, ok := ids[p.ID]; ok {
			return nil, fmt.Errorf("duplicate page id %q: %w", p.ID, appErr.ErrInvalid)
		}
		if _, ok := orders[p.Order]; ok {
			return nil, fmt.Errorf("duplicate page order %d: %w", p.Order, appErr.ErrInvalid)
		}
		ids[p.ID] = struct{}{}
		orders[p.Order] = struct{}{}
		p.ContentKey = model.PageContentKey(notebookID, p.ID)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}
