// Package pager keeps the ordered page list of one notebook and the cursor
// of the active page.
package pager

import (
	"context"
	"fmt"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/pagenote/internal/model"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
	"github.com/xxxsen/pagenote/internal/state"
)

// Notes is the part of the state container the controller drives.
type Notes interface {
	Lookup(ctx context.Context, id string) (*model.Notebook, error)
	AddPage(ctx context.Context, notebookID string) (string, error)
	DeletePage(ctx context.Context, notebookID, pageID string) error
	RenamePage(ctx context.Context, notebookID, pageID, title string) error
}

// ActivateFunc is called after the active page changed.
type ActivateFunc func(ctx context.Context, page model.Page) error

type Controller struct {
	mu         sync.Mutex
	notes      Notes
	notebookID string
	pages      []model.Page
	active     int
	hooks      []ActivateFunc
}

type Option func(*Controller)

func WithActivateHook(fn ActivateFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.hooks = append(c.hooks, fn)
		}
	}
}

func New(notes Notes, notebookID string, opts ...Option) *Controller {
	c := &Controller{notes: notes, notebookID: notebookID, active: -1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads the notebook, creates page 1 when it has none and activates
// the first page.
func (c *Controller) Load(ctx context.Context) error {
	nb, err := c.notes.Lookup(ctx, c.notebookID)
	if err != nil {
		return err
	}
	if len(nb.Pages) == 0 {
		logutil.GetLogger(ctx).Info("notebook has no pages, creating first page",
			zap.String("notebook_id", c.notebookID))
		if _, err := c.notes.AddPage(ctx, c.notebookID); err != nil {
			return err
		}
		if nb, err = c.notes.Lookup(ctx, c.notebookID); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.pages = state.SortedPages(nb)
	c.active = -1
	c.mu.Unlock()
	return c.activate(ctx, 0)
}

// Pages returns the pages in navigation order.
func (c *Controller) Pages() []model.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Page(nil), c.pages...)
}

// Active returns the active page and its position.
func (c *Controller) Active() (model.Page, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active < 0 || c.active >= len(c.pages) {
		return model.Page{}, -1, false
	}
	return c.pages[c.active], c.active, true
}

// Next moves to the following page. It is a no-op on the last page.
func (c *Controller) Next(ctx context.Context) error {
	return c.move(ctx, 1)
}

// Previous moves to the preceding page. It is a no-op on the first page.
func (c *Controller) Previous(ctx context.Context) error {
	return c.move(ctx, -1)
}

func (c *Controller) move(ctx context.Context, delta int) error {
	c.mu.Lock()
	next := c.active + delta
	if c.active < 0 || next < 0 || next >= len(c.pages) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.activate(ctx, next)
}

// Goto activates the page with the given id.
func (c *Controller) Goto(ctx context.Context, pageID string) error {
	c.mu.Lock()
	idx := indexOf(c.pages, pageID)
	c.mu.Unlock()
	if idx < 0 {
		return fmt.Errorf("page %s: %w", pageID, appErr.ErrNotFound)
	}
	return c.activate(ctx, idx)
}

// Add appends a page and activates it. A failed remote write still leaves
// the page in the local list, so it is activated and the error returned.
func (c *Controller) Add(ctx context.Context) (string, error) {
	pageID, addErr := c.notes.AddPage(ctx, c.notebookID)
	if pageID == "" {
		return "", addErr
	}
	if err := c.reload(ctx); err != nil {
		return pageID, err
	}
	c.mu.Lock()
	idx := indexOf(c.pages, pageID)
	c.mu.Unlock()
	if idx >= 0 {
		if err := c.activate(ctx, idx); err != nil {
			return pageID, err
		}
	}
	return pageID, addErr
}

// Delete removes the active page and falls back to the first page. The
// only page of a notebook is never removed.
func (c *Controller) Delete(ctx context.Context) error {
	c.mu.Lock()
	if len(c.pages) <= 1 {
		c.mu.Unlock()
		return fmt.Errorf("cannot delete the only page: %w", appErr.ErrInvalid)
	}
	if c.active < 0 {
		c.mu.Unlock()
		return fmt.Errorf("no active page: %w", appErr.ErrInvalid)
	}
	pageID := c.pages[c.active].ID
	c.mu.Unlock()

	delErr := c.notes.DeletePage(ctx, c.notebookID, pageID)
	if err := c.reload(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	stillThere := indexOf(c.pages, pageID) >= 0
	c.mu.Unlock()
	if stillThere {
		return delErr
	}
	if err := c.activate(ctx, 0); err != nil {
		return err
	}
	return delErr
}

// Rename sets the title of a page. The active page is unchanged.
func (c *Controller) Rename(ctx context.Context, pageID, title string) error {
	err := c.notes.RenamePage(ctx, c.notebookID, pageID, title)
	if reloadErr := c.reload(ctx); reloadErr != nil && err == nil {
		err = reloadErr
	}
	return err
}

// reload re-reads the page list and keeps the cursor on the same page id.
func (c *Controller) reload(ctx context.Context) error {
	nb, err := c.notes.Lookup(ctx, c.notebookID)
	if err != nil {
		return err
	}
	pages := state.SortedPages(nb)
	c.mu.Lock()
	defer c.mu.Unlock()
	activeID := ""
	if c.active >= 0 && c.active < len(c.pages) {
		activeID = c.pages[c.active].ID
	}
	c.pages = pages
	c.active = indexOf(pages, activeID)
	return nil
}

func (c *Controller) activate(ctx context.Context, idx int) error {
	c.mu.Lock()
	if idx < 0 || idx >= len(c.pages) {
		c.mu.Unlock()
		return fmt.Errorf("page index %d: %w", idx, appErr.ErrNotFound)
	}
	if idx == c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = idx
	page := c.pages[idx]
	hooks := c.hooks
	c.mu.Unlock()

	for _, fn := range hooks {
		if err := fn(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func indexOf(pages []model.Page, id string) int {
	if id == "" {
		return -1
	}
	for i, p := range pages {
		if p.ID == id {
			return i
		}
	}
	return -1
}
