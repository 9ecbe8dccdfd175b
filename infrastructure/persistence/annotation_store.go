package persistence

import (
	"context"
	"fmt"

	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/internal/database"
	"gorm.io/gorm"
)

// AnnotationStore implements annotation.Store using GORM.
type AnnotationStore struct {
	database.Repository[annotation.Annotation, AnnotationModel]
}

// NewAnnotationStore creates a new AnnotationStore.
func NewAnnotationStore(db database.Database) AnnotationStore {
	return AnnotationStore{
		Repository: database.NewRepository[annotation.Annotation, AnnotationModel](db, AnnotationMapper{}, "annotation"),
	}
}

// Save creates or updates an annotation. A highlight without an ID replaces
// the row with the same document and identifier, if any.
func (s AnnotationStore) Save(ctx context.Context, a annotation.Annotation) (annotation.Annotation, error) {
	model := s.Mapper().ToModel(a)

	if model.ID == 0 {
		var existing AnnotationModel
		err := s.DB(ctx).
			Where("document = ? AND cfi = ?", model.Document, model.CFI).
			Limit(1).
			Find(&existing).Error
		if err != nil {
			return annotation.Annotation{}, fmt.Errorf("save annotation: %w", err)
		}
		model.ID = existing.ID
	}

	var result *gorm.DB
	if model.ID == 0 {
		result = s.DB(ctx).Create(&model)
	} else {
		result = s.DB(ctx).Save(&model)
	}
	if result.Error != nil {
		return annotation.Annotation{}, fmt.Errorf("save annotation: %w", result.Error)
	}
	return s.Mapper().ToDomain(model), nil
}

// SaveAll saves every annotation in one transaction. Nothing is written when
// any save fails.
func (s AnnotationStore) SaveAll(ctx context.Context, items []annotation.Annotation) ([]annotation.Annotation, error) {
	if len(items) == 0 {
		return []annotation.Annotation{}, nil
	}
	return database.WithTransactionResult(ctx, s.Database(), func(tx *gorm.DB) ([]annotation.Annotation, error) {
		scoped := NewAnnotationStore(database.Scoped(tx))
		saved := make([]annotation.Annotation, 0, len(items))
		for _, a := range items {
			out, err := scoped.Save(ctx, a)
			if err != nil {
				return nil, err
			}
			saved = append(saved, out)
		}
		return saved, nil
	})
}

// Delete removes an annotation by document and identifier.
func (s AnnotationStore) Delete(ctx context.Context, a annotation.Annotation) error {
	result := s.DB(ctx).
		Where("document = ? AND cfi = ?", a.Document(), a.CFI()).
		Delete(&AnnotationModel{})
	if result.Error != nil {
		return fmt.Errorf("delete annotation: %w", result.Error)
	}
	return nil
}

// Search matches text or note of one document, ignoring case, in creation order.
func (s AnnotationStore) Search(ctx context.Context, document, text string) ([]annotation.Annotation, error) {
	return s.Find(ctx,
		annotation.WithDocument(document),
		annotation.WithSearch(text),
		annotation.WithOldestFirst(),
	)
}

// Documents returns the distinct document paths that have highlights.
func (s AnnotationStore) Documents(ctx context.Context) ([]string, error) {
	var documents []string
	err := s.DB(ctx).
		Model(&AnnotationModel{}).
		Distinct("document").
		Order("document ASC").
		Pluck("document", &documents).Error
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return documents, nil
}

var _ annotation.Store = AnnotationStore{}
