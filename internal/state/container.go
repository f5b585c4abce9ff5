// Package state holds the client-side view of the principal's notebooks:
// ordered metadata plus a bounded cache of page bodies.
package state

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/pagenote/internal/htmltext"
	"github.com/xxxsen/pagenote/internal/model"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
)

const DefaultCacheSize = 256

type Container struct {
	mu        sync.Mutex
	remote    Remote
	notebooks []*model.Notebook
	bodies    *lru.Cache[string, string]
	now       func() time.Time
	newID     func() string
}

type Option func(*Container)

func WithCacheSize(size int) Option {
	return func(c *Container) {
		if size > 0 {
			c.bodies, _ = lru.New[string, string](size)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Container) {
		if now != nil {
			c.now = now
		}
	}
}

func New(remote Remote, opts ...Option) *Container {
	c := &Container{
		remote: remote,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bodies == nil {
		c.bodies, _ = lru.New[string, string](DefaultCacheSize)
	}
	return c
}

func bodyKey(notebookID, pageID string) string {
	return notebookID + "/" + pageID
}

// FetchAll replaces the cached metadata with the server list. Cached page
// bodies are kept.
func (c *Container) FetchAll(ctx context.Context) ([]model.Notebook, error) {
	items, err := c.remote.ListNotebooks(ctx)
	if err != nil {
		logutil.GetLogger(ctx).Error("fetch notebooks failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", appErr.ErrFetchFailed, err)
	}
	list := make([]*model.Notebook, 0, len(items))
	for i := range items {
		list = append(list, items[i].Clone())
	}
	c.mu.Lock()
	c.notebooks = list
	c.mu.Unlock()
	return c.Notebooks(), nil
}

// Refresh drops every cached body, then fetches the list again.
func (c *Container) Refresh(ctx context.Context) ([]model.Notebook, error) {
	c.bodies.Purge()
	return c.FetchAll(ctx)
}

// Notebooks returns a copy of the ordered list.
func (c *Container) Notebooks() []model.Notebook {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Notebook, 0, len(c.notebooks))
	for _, nb := range c.notebooks {
		out = append(out, *nb.Clone())
	}
	return out
}

func (c *Container) Create(ctx context.Context, title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		title = model.DefaultNotebookTitle
	}
	nb, err := c.remote.CreateNotebook(ctx, title)
	if err != nil {
		logutil.GetLogger(ctx).Error("create notebook failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", appErr.ErrCreateFailed, err)
	}
	c.mu.Lock()
	c.notebooks = append([]*model.Notebook{nb.Clone()}, c.notebooks...)
	c.mu.Unlock()
	return nb.ID, nil
}

// Update merges the patch locally, stamps last_edited_at and sends it.
// On remote failure is_favorite is rolled back; the other fields stay.
func (c *Container) Update(ctx context.Context, id string, patch model.NotebookPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	c.mu.Lock()
	var prevFavorite *bool
	if nb := c.findLocked(id); nb != nil {
		if patch.IsFavorite != nil {
			v := nb.IsFavorite
			prevFavorite = &v
		}
		patch.Apply(nb)
		nb.LastEditedAt = c.now().UnixMilli()
	}
	c.mu.Unlock()

	if _, err := c.remote.UpdateNotebook(ctx, id, patch); err != nil {
		logutil.GetLogger(ctx).Error("update notebook failed", zap.String("notebook_id", id), zap.Error(err))
		if prevFavorite != nil {
			c.mu.Lock()
			if nb := c.findLocked(id); nb != nil {
				nb.IsFavorite = *prevFavorite
			}
			c.mu.Unlock()
		}
		return fmt.Errorf("%w: %w", appErr.ErrSaveFailed, err)
	}
	return nil
}

// Delete removes the notebook locally first; a remote failure is returned
// but not rolled back.
func (c *Container) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	for i, nb := range c.notebooks {
		if nb.ID == id {
			c.notebooks = append(c.notebooks[:i:i], c.notebooks[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.evictNotebook(id)
	if err := c.remote.DeleteNotebook(ctx, id); err != nil {
		logutil.GetLogger(ctx).Error("delete notebook failed", zap.String("notebook_id", id), zap.Error(err))
		return fmt.Errorf("delete notebook: %w", err)
	}
	return nil
}

// GetOne answers from the cache when the notebook and all its page bodies
// are cached, otherwise fetches it and merges it in.
func (c *Container) GetOne(ctx context.Context, id string) (*model.Notebook, error) {
	c.mu.Lock()
	if nb := c.findLocked(id); nb != nil && c.fullyCachedLocked(nb) {
		out := nb.Clone()
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	nb, err := c.remote.GetNotebook(ctx, id)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) || errors.Is(err, appErr.ErrForbidden) {
			return nil, err
		}
		logutil.GetLogger(ctx).Error("get notebook failed", zap.String("notebook_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", appErr.ErrFetchFailed, err)
	}
	c.mu.Lock()
	if existing := c.findLocked(id); existing != nil {
		*existing = *nb.Clone()
	} else {
		c.notebooks = append(c.notebooks, nb.Clone())
	}
	c.mu.Unlock()
	return nb.Clone(), nil
}

func (c *Container) fullyCachedLocked(nb *model.Notebook) bool {
	if len(nb.Pages) == 0 {
		return false
	}
	for _, p := range nb.Pages {
		if !c.bodies.Contains(bodyKey(nb.ID, p.ID)) {
			return false
		}
	}
	return true
}

// CachedContent peeks at the body cache without touching the network.
func (c *Container) CachedContent(id, pageID string) (string, bool) {
	return c.bodies.Get(bodyKey(id, pageID))
}

// LoadContent returns the page body. A missing blob (404) reads as "" and
// is cached; other failures read as "" and are not cached.
func (c *Container) LoadContent(ctx context.Context, id, pageID string) string {
	key := bodyKey(id, pageID)
	if body, ok := c.bodies.Get(key); ok {
		return body
	}
	logger := logutil.GetLogger(ctx).With(zap.String("notebook_id", id), zap.String("page_id", pageID))
	signed, err := c.remote.DownloadURL(ctx, id, pageID)
	if err != nil {
		logger.Error("issue download url failed", zap.Error(err))
		return ""
	}
	data, err := c.remote.GetBlob(ctx, signed.URL)
	if err != nil {
		var status httpStatuser
		if errors.As(err, &status) && status.HTTPStatus() == http.StatusNotFound {
			logger.Debug("page body absent")
			c.bodies.Add(key, "")
			return ""
		}
		logger.Error("download page body failed", zap.Error(err))
		return ""
	}
	body := string(data)
	c.bodies.Add(key, body)
	return body
}

// SaveContent uploads the body, refreshes the snippet and caches the body.
// The body is cached even when the snippet update fails.
func (c *Container) SaveContent(ctx context.Context, id, html, pageID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("notebook_id", id), zap.String("page_id", pageID))
	signed, err := c.remote.UploadURL(ctx, id, pageID)
	if err != nil {
		logger.Error("issue upload url failed", zap.Error(err))
		return fmt.Errorf("%w: %w", appErr.ErrSaveFailed, err)
	}
	if err := c.remote.PutBlob(ctx, signed.URL, "text/html", []byte(html)); err != nil {
		logger.Error("upload page body failed", zap.Error(err))
		return fmt.Errorf("%w: %w", appErr.ErrSaveFailed, err)
	}
	snippet := htmltext.Snippet(html)
	err = c.Update(ctx, id, model.NotebookPatch{Snippet: &snippet})
	c.bodies.Add(bodyKey(id, pageID), html)
	return err
}

// AddPage appends a page after the highest order and returns its id.
func (c *Container) AddPage(ctx context.Context, notebookID string) (string, error) {
	nb, err := c.local(ctx, notebookID)
	if err != nil {
		return "", err
	}
	maxOrder := -1
	for _, p := range nb.Pages {
		if p.Order > maxOrder {
			maxOrder = p.Order
		}
	}
	pageID := c.newID()
	page := model.Page{
		ID:         pageID,
		Title:      nextPageTitle(nb.Pages),
		ContentKey: model.PageContentKey(notebookID, pageID),
		Order:      maxOrder + 1,
	}
	pages := append(nb.Pages, page)
	if err := c.Update(ctx, notebookID, model.NotebookPatch{Pages: &pages}); err != nil {
		return pageID, err
	}
	return pageID, nil
}

// nextPageTitle returns the first "Page N" not already taken, starting
// after the current page count.
func nextPageTitle(pages []model.Page) string {
	taken := make(map[string]struct{}, len(pages))
	for _, p := range pages {
		taken[p.Title] = struct{}{}
	}
	for n := len(pages) + 1; ; n++ {
		title := fmt.Sprintf("Page %d", n)
		if _, ok := taken[title]; !ok {
			return title
		}
	}
}

// DeletePage refuses to remove the last page of a notebook.
func (c *Container) DeletePage(ctx context.Context, notebookID, pageID string) error {
	nb, err := c.local(ctx, notebookID)
	if err != nil {
		return err
	}
	if len(nb.Pages) <= 1 {
		return fmt.Errorf("cannot delete the only page: %w", appErr.ErrInvalid)
	}
	if _, ok := nb.FindPage(pageID); !ok {
		return fmt.Errorf("page %s: %w", pageID, appErr.ErrNotFound)
	}
	pages := make([]model.Page, 0, len(nb.Pages)-1)
	for _, p := range nb.Pages {
		if p.ID != pageID {
			pages = append(pages, p)
		}
	}
	c.bodies.Remove(bodyKey(notebookID, pageID))
	return c.Update(ctx, notebookID, model.NotebookPatch{Pages: &pages})
}

func (c *Container) RenamePage(ctx context.Context, notebookID, pageID, title string) error {
	nb, err := c.local(ctx, notebookID)
	if err != nil {
		return err
	}
	if _, ok := nb.FindPage(pageID); !ok {
		return fmt.Errorf("page %s: %w", pageID, appErr.ErrNotFound)
	}
	pages := make([]model.Page, 0, len(nb.Pages))
	for _, p := range nb.Pages {
		if p.ID == pageID {
			p.Title = strings.TrimSpace(title)
		}
		pages = append(pages, p)
	}
	return c.Update(ctx, notebookID, model.NotebookPatch{Pages: &pages})
}

// ToggleFavorite flips is_favorite and returns the value now in effect.
func (c *Container) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	nb, err := c.local(ctx, id)
	if err != nil {
		return false, err
	}
	next := !nb.IsFavorite
	if err := c.Update(ctx, id, model.NotebookPatch{IsFavorite: &next}); err != nil {
		return nb.IsFavorite, err
	}
	return next, nil
}

// UploadAsset stores body under a fresh asset key and returns its URL
// without the signature.
func (c *Container) UploadAsset(ctx context.Context, filename, contentType string, body []byte) (string, error) {
	signed, err := c.remote.AssetUploadURL(ctx, filename, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", appErr.ErrSaveFailed, err)
	}
	if err := c.remote.PutBlob(ctx, signed.URL, contentType, body); err != nil {
		return "", fmt.Errorf("%w: %w", appErr.ErrSaveFailed, err)
	}
	if idx := strings.IndexByte(signed.URL, '?'); idx >= 0 {
		return signed.URL[:idx], nil
	}
	return signed.URL, nil
}

// SortedPages returns the pages of nb ordered by their order field.
func SortedPages(nb *model.Notebook) []model.Page {
	pages := append([]model.Page(nil), nb.Pages...)
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Order < pages[j].Order })
	return pages
}

// Lookup returns a copy of the cached notebook, fetching it only when the
// container does not know it yet.
func (c *Container) Lookup(ctx context.Context, id string) (*model.Notebook, error) {
	return c.local(ctx, id)
}

// local returns a copy of the cached notebook, fetching it when absent.
func (c *Container) local(ctx context.Context, id string) (*model.Notebook, error) {
	c.mu.Lock()
	if nb := c.findLocked(id); nb != nil {
		out := nb.Clone()
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()
	return c.GetOne(ctx, id)
}

func (c *Container) findLocked(id string) *model.Notebook {
	for _, nb := range c.notebooks {
		if nb.ID == id {
			return nb
		}
	}
	return nil
}

func (c *Container) evictNotebook(id string) {
	prefix := id + "/"
	for _, key := range c.bodies.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.bodies.Remove(key)
		}
	}
}
