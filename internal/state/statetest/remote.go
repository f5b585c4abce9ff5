// Package statetest provides an in-memory Remote for tests of the state,
// editor and pager packages.
package statetest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/xxxsen/pagenote/internal/model"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
)

const blobScheme = "mem://"

// StatusError mimics a non-2xx blob answer.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.Status)
}

func (e *StatusError) HTTPStatus() int {
	return e.Status
}

// Remote keeps notebooks and blobs in memory. Fields named Fail* inject an
// error into the matching call while non-nil.
type Remote struct {
	mu        sync.Mutex
	notebooks map[string]*model.Notebook
	blobs     map[string]string
	foreign   map[string]struct{}
	clock     int64
	calls     map[string]int
	updates   []model.NotebookPatch

	FailList     error
	FailCreate   error
	FailUpdate   error
	FailDelete   error
	FailURL      error
	FailPut      error
	FailGetBlob  error
	UpdateHook   func(id string, patch model.NotebookPatch)
	BlockUploads chan struct{}
}

func NewRemote() *Remote {
	return &Remote{
		notebooks: make(map[string]*model.Notebook),
		blobs:     make(map[string]string),
		foreign:   make(map[string]struct{}),
		calls:     make(map[string]int),
	}
}

// Seed stores nb as if the server already had it.
func (r *Remote) Seed(nb model.Notebook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notebooks[nb.ID] = nb.Clone()
}

// SeedForeign registers an id owned by somebody else.
func (r *Remote) SeedForeign(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.foreign[id] = struct{}{}
}

func (r *Remote) SetBlob(id, pageID, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[blobURL(id, pageID)] = body
}

func (r *Remote) Blob(id, pageID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	body, ok := r.blobs[blobURL(id, pageID)]
	return body, ok
}

func (r *Remote) Stored(id string) (model.Notebook, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nb, ok := r.notebooks[id]
	if !ok {
		return model.Notebook{}, false
	}
	return *nb.Clone(), true
}

// Calls reports how many times the named method ran.
func (r *Remote) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *Remote) TotalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.calls {
		total += n
	}
	return total
}

func (r *Remote) Updates() []model.NotebookPatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.NotebookPatch(nil), r.updates...)
}

func blobURL(id, pageID string) string {
	return blobScheme + id + "/" + pageID
}

func (r *Remote) track(method string) {
	r.calls[method]++
}

func (r *Remote) lookupLocked(id string) (*model.Notebook, error) {
	if _, ok := r.foreign[id]; ok {
		return nil, appErr.ErrForbidden
	}
	nb, ok := r.notebooks[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return nb, nil
}

func (r *Remote) ListNotebooks(ctx context.Context) ([]model.Notebook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("ListNotebooks")
	if r.FailList != nil {
		return nil, r.FailList
	}
	out := make([]model.Notebook, 0, len(r.notebooks))
	for _, nb := range r.notebooks {
		out = append(out, *nb.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastEditedAt > out[j].LastEditedAt })
	return out, nil
}

func (r *Remote) CreateNotebook(ctx context.Context, title string) (*model.Notebook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("CreateNotebook")
	if r.FailCreate != nil {
		return nil, r.FailCreate
	}
	r.clock++
	id := uuid.NewString()
	pageID := uuid.NewString()
	nb := &model.Notebook{
		ID:    id,
		Title: title,
		Tags:  []string{},
		Pages: []model.Page{{
			ID:         pageID,
			Title:      "Page 1",
			ContentKey: model.PageContentKey(id, pageID),
			Order:      0,
		}},
		CreatedAt:    r.clock,
		LastEditedAt: r.clock,
	}
	r.notebooks[id] = nb
	return nb.Clone(), nil
}

func (r *Remote) GetNotebook(ctx context.Context, id string) (*model.Notebook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("GetNotebook")
	nb, err := r.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return nb.Clone(), nil
}

func (r *Remote) UpdateNotebook(ctx context.Context, id string, patch model.NotebookPatch) (*model.Notebook, error) {
	r.mu.Lock()
	r.track("UpdateNotebook")
	r.updates = append(r.updates, patch)
	hook := r.UpdateHook
	if r.FailUpdate != nil {
		err := r.FailUpdate
		r.mu.Unlock()
		return nil, err
	}
	nb, err := r.lookupLocked(id)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if patch.Pages != nil && len(*patch.Pages) == 0 {
		r.mu.Unlock()
		return nil, appErr.ErrInvalid
	}
	patch.Apply(nb)
	r.clock++
	nb.LastEditedAt = r.clock
	out := nb.Clone()
	r.mu.Unlock()
	if hook != nil {
		hook(id, patch)
	}
	return out, nil
}

func (r *Remote) DeleteNotebook(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("DeleteNotebook")
	if r.FailDelete != nil {
		return r.FailDelete
	}
	if _, err := r.lookupLocked(id); err != nil {
		return err
	}
	delete(r.notebooks, id)
	prefix := blobURL(id, "")
	for key := range r.blobs {
		if strings.HasPrefix(key, prefix) {
			delete(r.blobs, key)
		}
	}
	return nil
}

func (r *Remote) signedURL(method, id, pageID string) (*model.SignedURL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track(method)
	if r.FailURL != nil {
		return nil, r.FailURL
	}
	if id == "" {
		return nil, appErr.ErrInvalid
	}
	if _, err := r.lookupLocked(id); err != nil {
		return nil, err
	}
	u := blobURL(id, pageID)
	return &model.SignedURL{URL: u + "?sig=1", Key: u}, nil
}

func (r *Remote) UploadURL(ctx context.Context, id, pageID string) (*model.SignedURL, error) {
	return r.signedURL("UploadURL", id, pageID)
}

func (r *Remote) DownloadURL(ctx context.Context, id, pageID string) (*model.SignedURL, error) {
	return r.signedURL("DownloadURL", id, pageID)
}

func (r *Remote) AssetUploadURL(ctx context.Context, filename, contentType string) (*model.SignedURL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("AssetUploadURL")
	if r.FailURL != nil {
		return nil, r.FailURL
	}
	u := blobScheme + "assets/" + filename
	return &model.SignedURL{URL: u + "?sig=1", Key: "assets/" + filename}, nil
}

func (r *Remote) PutBlob(ctx context.Context, signedURL, contentType string, body []byte) error {
	r.mu.Lock()
	block := r.BlockUploads
	r.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("PutBlob")
	if r.FailPut != nil {
		return r.FailPut
	}
	r.blobs[strings.SplitN(signedURL, "?", 2)[0]] = string(body)
	return nil
}

func (r *Remote) GetBlob(ctx context.Context, signedURL string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("GetBlob")
	if r.FailGetBlob != nil {
		return nil, r.FailGetBlob
	}
	body, ok := r.blobs[strings.SplitN(signedURL, "?", 2)[0]]
	if !ok {
		return nil, &StatusError{Status: http.StatusNotFound}
	}
	return []byte(body), nil
}

// Set runs fn under the remote's lock so tests can flip Fail* fields while
// calls are in flight.
func (r *Remote) Set(fn func(r *Remote)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}
