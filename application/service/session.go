package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/domain/book"
	"github.com/helixml/marginalia/domain/cfi"
	"github.com/helixml/marginalia/infrastructure/pacing"
)

// Session timing defaults.
const (
	DefaultRestoreDelay = 300 * time.Millisecond
	DefaultRetryDelay   = time.Second
)

// Candidate is a selection that may become a highlight. Existing candidates
// point at a stored highlight the selection overlaps.
type Candidate struct {
	CFI        string
	Text       string
	Chapter    string
	Existing   bool
	Annotation annotation.Annotation
}

// CandidateHandler receives every candidate a session produces.
type CandidateHandler func(Candidate)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRestoreDelay sets the quiet window before a location change restores
// its section.
func WithRestoreDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.restoreDelay = d }
}

// WithRetryDelay sets how long a failed initial mark waits before its single
// retry.
func WithRetryDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.retryDelay = d }
}

// WithTOC sets the table of contents used to name chapters.
func WithTOC(toc book.TOC) SessionOption {
	return func(s *Session) { s.toc = toc }
}

// WithPreferences persists the reading location to store.
func WithPreferences(store book.PreferenceStore) SessionOption {
	return func(s *Session) { s.prefs = store }
}

// WithCandidateHandler registers fn for selection candidates.
func WithCandidateHandler(fn CandidateHandler) SessionOption {
	return func(s *Session) { s.handler = fn }
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// Session connects one open document to a rendering engine. It keeps the
// section index in step with the store, turns selections into candidates,
// and repaints highlights when the reader moves.
type Session struct {
	document     string
	engine       Engine
	annotations  *Annotations
	prefs        book.PreferenceStore
	toc          book.TOC
	handler      CandidateHandler
	logger       *slog.Logger
	restoreDelay time.Duration
	retryDelay   time.Duration

	index    *annotation.SectionIndex
	restorer *pacing.Debouncer[string]

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	candidate *Candidate
	location  string
	disposers []func()
	retries   map[*time.Timer]struct{}
}

// OpenSession loads the highlights of document, builds the section index and
// subscribes to the engine's selection and location events.
func OpenSession(ctx context.Context, document string, engine Engine, annotations *Annotations, opts ...SessionOption) (*Session, error) {
	if engine == nil {
		return nil, errors.New("open session: engine is required")
	}
	if annotations == nil {
		return nil, errors.New("open session: annotations service is required")
	}

	s := &Session{
		document:     document,
		engine:       engine,
		annotations:  annotations,
		logger:       slog.Default(),
		restoreDelay: DefaultRestoreDelay,
		retryDelay:   DefaultRetryDelay,
		index:        annotation.NewSectionIndex(),
		retries:      make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("document", document))

	items, err := annotations.List(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	s.index.Rebuild(items)

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.restorer = pacing.NewDebouncer(s.restoreDelay, s.restoreLocation)
	s.disposers = append(s.disposers,
		engine.OnSelected(s.handleSelected),
		engine.OnLocationChanged(s.handleLocationChanged),
	)

	s.logger.Debug("session opened", slog.Int("highlights", len(items)))
	return s, nil
}

// Document returns the document path.
func (s *Session) Document() string { return s.document }

// Index returns the live section index.
func (s *Session) Index() *annotation.SectionIndex { return s.index }

// Candidate returns the most recent candidate, if any.
func (s *Session) Candidate() (Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candidate == nil {
		return Candidate{}, false
	}
	return *s.candidate, true
}

// ClearCandidate forgets the current candidate.
func (s *Session) ClearCandidate() {
	s.mu.Lock()
	s.candidate = nil
	s.mu.Unlock()
}

// Location returns the last location reported by the engine.
func (s *Session) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) handleSelected(sel Selection) {
	if s.isClosed() {
		return
	}

	text := strings.TrimSpace(sel.Contents.SelectedText)

	var c Candidate
	matches := cfi.FindOverlappingWith(s.annotations.Comparator(), sel.CFI, s.index.All())
	switch {
	case len(matches) > 0:
		match := matches[0]
		c = Candidate{
			CFI:        match.CFI(),
			Text:       match.Text(),
			Chapter:    match.Chapter(),
			Existing:   true,
			Annotation: match,
		}
		if c.Text == "" {
			c.Text = text
		}
	case text != "":
		c = Candidate{
			CFI:     sel.CFI,
			Text:    text,
			Chapter: s.toc.ResolveChapter(sel.Contents.Href),
		}
	default:
		return
	}

	s.mu.Lock()
	s.candidate = &c
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(c)
	}
}

func (s *Session) handleLocationChanged(payload any) {
	if s.isClosed() {
		return
	}
	location := ResolveLocation(payload)
	if location == "" {
		return
	}
	s.mu.Lock()
	s.location = location
	s.mu.Unlock()
	s.restorer.Call(location)
}

func (s *Session) restoreLocation(location string) {
	if s.isClosed() {
		return
	}
	s.RestoreSection(s.ctx, location)

	if s.prefs == nil {
		return
	}
	if err := book.SaveLocation(s.ctx, s.prefs, s.document, location); err != nil {
		s.logger.Warn("failed to save reading location",
			slog.String("location", location),
			slog.String("error", err.Error()),
		)
	}
}

// RestoreSection paints every highlight in the section of location and
// returns how many were painted. Failures are logged and skipped.
func (s *Session) RestoreSection(ctx context.Context, location string) int {
	painted := 0
	for _, a := range s.index.ForSection(location) {
		if !a.Valid() {
			s.logger.Debug("skipping invalid highlight", slog.String("cfi", a.CFI()))
			continue
		}
		if err := s.engine.Mark(ctx, markFor(a)); err != nil {
			s.logger.Debug("failed to restore highlight",
				slog.String("cfi", a.CFI()),
				slog.String("error", err.Error()),
			)
			continue
		}
		painted++
	}
	return painted
}

// RestoreAll paints every indexed highlight. A highlight that fails is tried
// once more after the retry delay; the returned count covers first attempts
// only.
func (s *Session) RestoreAll(ctx context.Context) (int, error) {
	if s.isClosed() {
		return 0, ErrSessionClosed
	}

	painted := 0
	for _, a := range s.index.All() {
		if !a.Valid() {
			s.logger.Debug("skipping invalid highlight", slog.String("cfi", a.CFI()))
			continue
		}
		m := markFor(a)
		if err := s.engine.Mark(ctx, m); err != nil {
			s.logger.Debug("highlight restore failed, retrying",
				slog.String("cfi", a.CFI()),
				slog.String("error", err.Error()),
			)
			s.scheduleRetry(m)
			continue
		}
		painted++
	}
	return painted, nil
}

func (s *Session) scheduleRetry(m Mark) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.retryDelay, func() {
		s.mu.Lock()
		delete(s.retries, timer)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		if err := s.engine.Mark(s.ctx, m); err != nil {
			s.logger.Warn("failed to restore highlight",
				slog.String("cfi", m.CFI),
				slog.String("error", err.Error()),
			)
		}
	})
	s.retries[timer] = struct{}{}
}

// PendingRetries returns the number of scheduled retries.
func (s *Session) PendingRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.retries)
}

// Highlight persists a candidate, indexes it and paints it. Existing
// candidates return the stored highlight.
func (s *Session) Highlight(ctx context.Context, c Candidate, color string) (annotation.Annotation, error) {
	if s.isClosed() {
		return annotation.Annotation{}, ErrSessionClosed
	}
	if c.Existing {
		return c.Annotation, nil
	}
	if strings.TrimSpace(c.Text) == "" {
		return annotation.Annotation{}, ErrEmptySelection
	}

	a := annotation.New(s.document, c.CFI, c.Text, c.Chapter, s.annotations.now()).WithColor(color)
	saved, created, err := s.annotations.Save(ctx, s.document, a)
	if err != nil {
		return annotation.Annotation{}, err
	}
	if created {
		s.index.Add(saved)
	} else if _, ok := s.index.Find(saved.CFI()); !ok {
		s.index.Add(saved)
	}

	if err := s.engine.Mark(ctx, markFor(saved)); err != nil {
		s.logger.Warn("failed to paint highlight",
			slog.String("cfi", saved.CFI()),
			slog.String("error", err.Error()),
		)
	}

	s.mu.Lock()
	if s.candidate != nil && s.candidate.CFI == c.CFI {
		s.candidate = nil
	}
	s.mu.Unlock()

	return saved, nil
}

// Remove deletes a highlight, drops it from the index and unpaints it.
func (s *Session) Remove(ctx context.Context, identifier string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if _, err := s.annotations.Remove(ctx, s.document, identifier); err != nil {
		return err
	}
	s.index.Remove(identifier)

	if err := s.engine.Unmark(ctx, identifier); err != nil {
		s.logger.Warn("failed to unpaint highlight",
			slog.String("cfi", identifier),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Edit changes note, tags or color of a highlight and updates the index in
// place. A color change repaints the highlight.
func (s *Session) Edit(ctx context.Context, identifier string, edit annotation.Edit) (annotation.Annotation, error) {
	if s.isClosed() {
		return annotation.Annotation{}, ErrSessionClosed
	}
	updated, err := s.annotations.Update(ctx, s.document, identifier, edit)
	if err != nil {
		return annotation.Annotation{}, err
	}
	if !s.index.Update(identifier, updated) {
		s.index.Add(updated)
	}

	if edit.Color != nil {
		if err := s.engine.Unmark(ctx, identifier); err != nil {
			s.logger.Debug("failed to unpaint highlight", slog.String("cfi", identifier), slog.String("error", err.Error()))
		}
		if err := s.engine.Mark(ctx, markFor(updated)); err != nil {
			s.logger.Warn("failed to repaint highlight", slog.String("cfi", identifier), slog.String("error", err.Error()))
		}
	}
	return updated, nil
}

// Close removes the engine subscriptions, drops any pending restore and
// cancels scheduled retries. Later events are ignored.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	disposers := s.disposers
	s.disposers = nil
	for timer := range s.retries {
		timer.Stop()
	}
	clear(s.retries)
	s.mu.Unlock()

	for _, dispose := range disposers {
		if dispose != nil {
			dispose()
		}
	}
	s.restorer.Stop()
	s.cancel()

	s.logger.Debug("session closed")
	return nil
}

func markFor(a annotation.Annotation) Mark {
	return Mark{CFI: a.CFI(), Color: a.DisplayColor(), Note: a.Note()}
}
