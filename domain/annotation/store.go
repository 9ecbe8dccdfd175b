package annotation

import (
	"context"

	"github.com/helixml/marginalia/domain/repository"
)

// Store persists annotations. It owns the canonical collection; a
// SectionIndex is a derived view over what it returns.
type Store interface {
	repository.Store[Annotation]

	// SaveAll saves every annotation in one transaction.
	SaveAll(ctx context.Context, items []Annotation) ([]Annotation, error)

	// Search matches text or note of one document, ignoring case.
	Search(ctx context.Context, document, text string) ([]Annotation, error)

	// Documents lists the documents that have at least one annotation.
	Documents(ctx context.Context) ([]string, error)
}
