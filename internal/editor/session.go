// Package editor implements the autosave pipeline of an open notebook:
// debounced saves, a grace period after loads and a save status.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/pagenote/internal/htmltext"
	"github.com/xxxsen/pagenote/internal/model"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
)

const (
	DefaultDebounce     = time.Second
	DefaultGrace        = 500 * time.Millisecond
	DefaultSavedDisplay = 2 * time.Second
)

var ErrClosed = errors.New("editor session closed")

// Notes is the part of the state container a session drives.
type Notes interface {
	GetOne(ctx context.Context, id string) (*model.Notebook, error)
	Update(ctx context.Context, id string, patch model.NotebookPatch) error
	LoadContent(ctx context.Context, id, pageID string) string
	SaveContent(ctx context.Context, id, html, pageID string) error
}

type Session struct {
	mu         sync.Mutex
	ctx        context.Context
	notes      Notes
	notebookID string
	pageID     string
	buf        Buffer
	status     Status
	lastErr    error
	gen        uint64
	editSeq    uint64
	saveSeq    uint64
	loaded     string
	closed     bool

	clock        Clock
	debounce     time.Duration
	grace        time.Duration
	savedDisplay time.Duration
	saveTimer    Timer
	graceTimer   Timer
	savedTimer   Timer

	listeners []func(Status)
	pending   []Status
}

type Option func(*Session)

func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

func WithGrace(d time.Duration) Option {
	return func(s *Session) { s.grace = d }
}

func WithSavedDisplay(d time.Duration) Option {
	return func(s *Session) { s.savedDisplay = d }
}

func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithStatusListener registers fn for every status transition. fn runs
// without the session lock held.
func WithStatusListener(fn func(Status)) Option {
	return func(s *Session) {
		if fn != nil {
			s.listeners = append(s.listeners, fn)
		}
	}
}

// NewSession edits one notebook. ctx scopes the saves started by timers.
func NewSession(ctx context.Context, notes Notes, notebookID string, opts ...Option) *Session {
	s := &Session{
		ctx:          ctx,
		notes:        notes,
		notebookID:   notebookID,
		status:       StatusIdle,
		clock:        RealClock(),
		debounce:     DefaultDebounce,
		grace:        DefaultGrace,
		savedDisplay: DefaultSavedDisplay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) NotebookID() string {
	return s.notebookID
}

func (s *Session) PageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageID
}

// Status returns the current state and, in StatusError, the save error.
func (s *Session) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.lastErr
}

func (s *Session) HTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.HTML()
}

func (s *Session) Outline() ([]htmltext.Heading, error) {
	s.mu.Lock()
	html := s.buf.HTML()
	s.mu.Unlock()
	return htmltext.Outline(html)
}

// Open loads pageID into the buffer. Pending edits of the previous page
// are dropped with their timer; call Flush first to keep them.
func (s *Session) Open(ctx context.Context, pageID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.stopTimersLocked()
	s.gen++
	gen := s.gen
	s.pageID = pageID
	s.lastErr = nil
	s.setStatusLocked(StatusInitializing)
	s.unlockAndEmit()

	body := s.notes.LoadContent(ctx, s.notebookID, pageID)

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		logutil.GetLogger(ctx).Debug("page load superseded",
			zap.String("notebook_id", s.notebookID), zap.String("page_id", pageID))
		return nil
	}
	s.buf.Set(body)
	s.loaded = body
	s.graceTimer = s.clock.AfterFunc(s.grace, func() { s.endInit(gen) })
	s.mu.Unlock()
	return nil
}

func (s *Session) endInit(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.closed || s.status != StatusInitializing {
		s.mu.Unlock()
		return
	}
	s.graceTimer = nil
	if s.buf.HTML() != s.loaded {
		s.armSaveLocked()
		s.setStatusLocked(StatusDirty)
	} else {
		s.setStatusLocked(StatusIdle)
	}
	s.unlockAndEmit()
}

// Edit replaces the buffer. Outside initialization it schedules a save;
// during initialization the save waits for the grace period to end.
func (s *Session) Edit(html string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf.Set(html)
	s.editSeq++
	if s.status == StatusInitializing {
		s.mu.Unlock()
		return
	}
	if s.savedTimer != nil {
		s.savedTimer.Stop()
		s.savedTimer = nil
	}
	s.armSaveLocked()
	s.setStatusLocked(StatusDirty)
	s.unlockAndEmit()
}

// armSaveLocked replaces the debounce timer. Each timer carries its own
// sequence so a callback that lost the race with Stop finds itself stale.
func (s *Session) armSaveLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveSeq++
	gen, seq := s.gen, s.saveSeq
	s.saveTimer = s.clock.AfterFunc(s.debounce, func() { s.fire(gen, seq) })
}

func (s *Session) fire(gen, seq uint64) {
	s.mu.Lock()
	if gen != s.gen || s.closed || seq != s.saveSeq || s.saveTimer == nil {
		s.mu.Unlock()
		return
	}
	s.saveTimer = nil
	job := s.beginSaveLocked()
	s.unlockAndEmit()
	_ = s.runSave(s.ctx, job)
}

type saveJob struct {
	gen    uint64
	seq    uint64
	html   string
	pageID string
}

func (s *Session) beginSaveLocked() saveJob {
	job := saveJob{gen: s.gen, seq: s.editSeq, html: s.buf.HTML(), pageID: s.pageID}
	s.lastErr = nil
	s.setStatusLocked(StatusSaving)
	return job
}

func (s *Session) runSave(ctx context.Context, job saveJob) error {
	err := s.notes.SaveContent(ctx, s.notebookID, job.html, job.pageID)
	if err != nil {
		logutil.GetLogger(ctx).Error("autosave failed",
			zap.String("notebook_id", s.notebookID), zap.String("page_id", job.pageID), zap.Error(err))
	}
	s.mu.Lock()
	if job.gen != s.gen || s.closed || job.seq != s.editSeq {
		// superseded by navigation or newer edits; their own save reports
		s.mu.Unlock()
		return err
	}
	if err != nil {
		s.lastErr = err
		s.setStatusLocked(StatusError)
		s.unlockAndEmit()
		return err
	}
	s.setStatusLocked(StatusSaved)
	seq := job.seq
	s.savedTimer = s.clock.AfterFunc(s.savedDisplay, func() { s.settle(job.gen, seq) })
	s.unlockAndEmit()
	return nil
}

func (s *Session) settle(gen, seq uint64) {
	s.mu.Lock()
	if gen != s.gen || s.closed || seq != s.editSeq || s.status != StatusSaved {
		s.mu.Unlock()
		return
	}
	s.savedTimer = nil
	s.setStatusLocked(StatusIdle)
	s.unlockAndEmit()
}

// Retry re-saves the latest buffer after a failed save.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.status != StatusError {
		st := s.status
		s.mu.Unlock()
		return fmt.Errorf("retry in state %s: %w", st, appErr.ErrInvalid)
	}
	job := s.beginSaveLocked()
	s.unlockAndEmit()
	return s.runSave(ctx, job)
}

// Flush saves pending edits now instead of waiting for the timer.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.status != StatusDirty {
		s.mu.Unlock()
		return nil
	}
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	job := s.beginSaveLocked()
	s.unlockAndEmit()
	return s.runSave(ctx, job)
}

// Close stops every timer. Callbacks that already fired become no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	s.stopTimersLocked()
	s.mu.Unlock()
}

func (s *Session) SetTitle(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = model.DefaultNotebookTitle
	}
	return s.notes.Update(ctx, s.notebookID, model.NotebookPatch{Title: &title})
}

// AddTag ignores blank and duplicate tags.
func (s *Session) AddTag(ctx context.Context, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil
	}
	nb, err := s.notes.GetOne(ctx, s.notebookID)
	if err != nil {
		return err
	}
	for _, t := range nb.Tags {
		if t == tag {
			return nil
		}
	}
	tags := append(append([]string(nil), nb.Tags...), tag)
	return s.notes.Update(ctx, s.notebookID, model.NotebookPatch{Tags: &tags})
}

func (s *Session) RemoveTag(ctx context.Context, tag string) error {
	tag = strings.TrimSpace(tag)
	nb, err := s.notes.GetOne(ctx, s.notebookID)
	if err != nil {
		return err
	}
	tags := make([]string, 0, len(nb.Tags))
	for _, t := range nb.Tags {
		if t != tag {
			tags = append(tags, t)
		}
	}
	if len(tags) == len(nb.Tags) {
		return nil
	}
	return s.notes.Update(ctx, s.notebookID, model.NotebookPatch{Tags: &tags})
}

func (s *Session) stopTimersLocked() {
	for _, t := range []*Timer{&s.saveTimer, &s.graceTimer, &s.savedTimer} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

func (s *Session) setStatusLocked(st Status) {
	if s.status == st {
		return
	}
	s.status = st
	if len(s.listeners) > 0 {
		s.pending = append(s.pending, st)
	}
}

// unlockAndEmit releases mu and delivers queued transitions in order.
func (s *Session) unlockAndEmit() {
	events := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, st := range events {
		for _, fn := range s.listeners {
			fn(st)
		}
	}
}
