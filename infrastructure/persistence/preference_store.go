package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/helixml/marginalia/domain/book"
	"github.com/helixml/marginalia/internal/database"
)

// PreferenceStore implements book.PreferenceStore using GORM.
type PreferenceStore struct {
	db database.Database
}

// NewPreferenceStore creates a new PreferenceStore.
func NewPreferenceStore(db database.Database) PreferenceStore {
	return PreferenceStore{db: db}
}

// Load returns the preferences for document, or defaults when none are stored.
func (s PreferenceStore) Load(ctx context.Context, document string) (book.Preferences, error) {
	var models []PreferenceModel
	err := s.db.Session(ctx).Where("document = ?", document).Limit(1).Find(&models).Error
	if err != nil {
		return book.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	if len(models) == 0 {
		return book.DefaultPreferences(), nil
	}
	return preferencesFromModel(models[0]), nil
}

// Save creates or replaces the preferences for document.
func (s PreferenceStore) Save(ctx context.Context, document string, prefs book.Preferences) error {
	model := preferencesToModel(document, prefs)
	model.UpdatedAt = time.Now()
	if err := s.db.Session(ctx).Save(&model).Error; err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// Delete removes the preferences for document.
func (s PreferenceStore) Delete(ctx context.Context, document string) error {
	err := s.db.Session(ctx).Where("document = ?", document).Delete(&PreferenceModel{}).Error
	if err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	return nil
}

var _ book.PreferenceStore = PreferenceStore{}
