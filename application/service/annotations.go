package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/domain/cfi"
	"github.com/helixml/marginalia/domain/repository"
	"github.com/helixml/marginalia/internal/database"
)

// ImportResult counts what an import did.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Invalid  int `json:"invalid"`
}

// Annotations provides highlight management and query operations.
// Embeds Collection for Find/Get; bespoke methods scope everything to one
// document.
type Annotations struct {
	repository.Collection[annotation.Annotation]
	store      annotation.Store
	comparator *cfi.Comparator
	logger     *slog.Logger
	now        func() time.Time
}

// NewAnnotations creates a new Annotations service.
func NewAnnotations(store annotation.Store, comparator *cfi.Comparator, logger *slog.Logger) *Annotations {
	if comparator == nil {
		comparator = cfi.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Annotations{
		Collection: repository.NewCollection[annotation.Annotation](store),
		store:      store,
		comparator: comparator,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Comparator returns the identifier comparator used for overlap queries.
func (s *Annotations) Comparator() *cfi.Comparator {
	return s.comparator
}

// List returns the highlights of document in creation order unless options
// set another order.
func (s *Annotations) List(ctx context.Context, document string, options ...repository.Option) ([]annotation.Annotation, error) {
	opts := append([]repository.Option{annotation.WithDocument(document)}, options...)
	if len(repository.Build(options...).Orders()) == 0 {
		opts = append(opts, annotation.WithOldestFirst(), repository.WithOrderAsc("id"))
	}
	items, err := s.store.Find(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	return items, nil
}

// Get returns the highlight of document with the given identifier.
func (s *Annotations) Get(ctx context.Context, document, identifier string) (annotation.Annotation, error) {
	a, err := s.store.FindOne(ctx, annotation.WithDocument(document), annotation.WithCFI(identifier))
	if err != nil {
		return annotation.Annotation{}, fmt.Errorf("get annotation: %w", err)
	}
	return a, nil
}

// Save persists a new highlight in document. A highlight whose identifier is
// already stored is returned unchanged with created=false.
func (s *Annotations) Save(ctx context.Context, document string, a annotation.Annotation) (annotation.Annotation, bool, error) {
	if !a.Valid() {
		return annotation.Annotation{}, false, fmt.Errorf("%w: %q", annotation.ErrInvalidCFI, a.CFI())
	}

	existing, err := s.store.FindOne(ctx, annotation.WithDocument(document), annotation.WithCFI(a.CFI()))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return annotation.Annotation{}, false, fmt.Errorf("check existing: %w", err)
	}

	a = a.WithDocument(document).WithID(0)
	if a.Color() == "" {
		a = a.WithColor(annotation.DefaultColor)
	}
	if a.CreatedAt().IsZero() {
		a = a.WithCreatedAt(s.now())
	}

	saved, err := s.store.Save(ctx, a)
	if err != nil {
		return annotation.Annotation{}, false, fmt.Errorf("save annotation: %w", err)
	}

	s.logger.Info("highlight saved",
		slog.String("document", document),
		slog.String("cfi", saved.CFI()),
		slog.String("chapter", saved.Chapter()),
	)
	return saved, true, nil
}

// Update applies an edit to a stored highlight and stamps its edit time.
func (s *Annotations) Update(ctx context.Context, document, identifier string, edit annotation.Edit) (annotation.Annotation, error) {
	current, err := s.Get(ctx, document, identifier)
	if err != nil {
		return annotation.Annotation{}, err
	}
	if edit.IsEmpty() {
		return current, nil
	}

	saved, err := s.store.Save(ctx, current.Apply(edit, s.now()))
	if err != nil {
		return annotation.Annotation{}, fmt.Errorf("update annotation: %w", err)
	}
	return saved, nil
}

// Remove deletes a stored highlight. A missing highlight is
// database.ErrNotFound.
func (s *Annotations) Remove(ctx context.Context, document, identifier string) (annotation.Annotation, error) {
	current, err := s.Get(ctx, document, identifier)
	if err != nil {
		return annotation.Annotation{}, err
	}
	if err := s.store.Delete(ctx, current); err != nil {
		return annotation.Annotation{}, fmt.Errorf("remove annotation: %w", err)
	}

	s.logger.Info("highlight removed",
		slog.String("document", document),
		slog.String("cfi", identifier),
	)
	return current, nil
}

// Search returns highlights whose text or note contains query, ignoring case.
func (s *Annotations) Search(ctx context.Context, document, query string) ([]annotation.Annotation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx, document)
	}
	items, err := s.store.Search(ctx, document, query)
	if err != nil {
		return nil, fmt.Errorf("search annotations: %w", err)
	}
	return items, nil
}

// Import stores records in one transaction. Records without a usable
// identifier or creation time are counted as invalid; identifiers already
// stored, or repeated in the input, are skipped.
func (s *Annotations) Import(ctx context.Context, document string, records []annotation.Record) (ImportResult, error) {
	existing, err := s.List(ctx, document)
	if err != nil {
		return ImportResult{}, err
	}
	seen := make(map[string]bool, len(existing)+len(records))
	for _, a := range existing {
		seen[a.CFI()] = true
	}

	var result ImportResult
	batch := make([]annotation.Annotation, 0, len(records))
	for _, r := range records {
		a, err := r.ToAnnotation(document)
		if err != nil || !a.Valid() {
			result.Invalid++
			s.logger.Debug("skipping invalid record", slog.String("cfi", r.CFI))
			continue
		}
		if seen[a.CFI()] {
			result.Skipped++
			continue
		}
		seen[a.CFI()] = true
		if a.Color() == "" {
			a = a.WithColor(annotation.DefaultColor)
		}
		batch = append(batch, a)
	}

	if _, err := s.store.SaveAll(ctx, batch); err != nil {
		return ImportResult{}, fmt.Errorf("import annotations: %w", err)
	}
	result.Imported = len(batch)

	s.logger.Info("highlights imported",
		slog.String("document", document),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped),
		slog.Int("invalid", result.Invalid),
	)
	return result, nil
}

// Export returns the records of document, newest first.
func (s *Annotations) Export(ctx context.Context, document string) ([]annotation.Record, error) {
	items, err := s.List(ctx, document, annotation.WithNewestFirst(), repository.WithOrderDesc("id"))
	if err != nil {
		return nil, err
	}
	return annotation.ToRecords(items), nil
}

// ExportLibrary returns the records of every document.
func (s *Annotations) ExportLibrary(ctx context.Context) (annotation.Library, error) {
	documents, err := s.store.Documents(ctx)
	if err != nil {
		return annotation.Library{}, fmt.Errorf("export library: %w", err)
	}
	lib := annotation.Library{Highlights: make(map[string][]annotation.Record, len(documents))}
	for _, doc := range documents {
		records, err := s.Export(ctx, doc)
		if err != nil {
			return annotation.Library{}, err
		}
		lib.Highlights[doc] = records
	}
	return lib, nil
}

// Documents lists the documents that have highlights.
func (s *Annotations) Documents(ctx context.Context) ([]string, error) {
	documents, err := s.store.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return documents, nil
}

// Index loads document and returns a freshly built SectionIndex over it.
func (s *Annotations) Index(ctx context.Context, document string) (*annotation.SectionIndex, error) {
	items, err := s.List(ctx, document)
	if err != nil {
		return nil, err
	}
	ix := annotation.NewSectionIndex()
	ix.Rebuild(items)
	return ix, nil
}

// Section returns the highlights that share a section with location.
func (s *Annotations) Section(ctx context.Context, document, location string) ([]annotation.Annotation, error) {
	ix, err := s.Index(ctx, document)
	if err != nil {
		return nil, err
	}
	return ix.ForSection(location), nil
}

// Overlapping returns the highlights of document that overlap identifier.
func (s *Annotations) Overlapping(ctx context.Context, document, identifier string) ([]annotation.Annotation, error) {
	ix, err := s.Index(ctx, document)
	if err != nil {
		return nil, err
	}
	return cfi.FindOverlappingWith(s.comparator, identifier, ix.All()), nil
}

// Stats summarises how highlights of document spread over sections.
func (s *Annotations) Stats(ctx context.Context, document string) (annotation.Stats, error) {
	ix, err := s.Index(ctx, document)
	if err != nil {
		return annotation.Stats{}, err
	}
	return ix.Stats(), nil
}
