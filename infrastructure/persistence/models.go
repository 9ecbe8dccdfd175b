package persistence

import (
	"time"

	"github.com/helixml/marginalia/domain/book"
)

// AnnotationModel represents a highlight in the database.
type AnnotationModel struct {
	ID        int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Document  string     `gorm:"column:document;uniqueIndex:idx_annotations_document_cfi;index;size:1024;not null"`
	CFI       string     `gorm:"column:cfi;uniqueIndex:idx_annotations_document_cfi;size:1024;not null"`
	Section   string     `gorm:"column:section;index;size:1024"`
	Text      string     `gorm:"column:text;type:text"`
	Chapter   string     `gorm:"column:chapter;size:1024"`
	Note      string     `gorm:"column:note;type:text"`
	Tags      []string   `gorm:"column:tags;serializer:json"`
	Color     string     `gorm:"column:color;size:64"`
	CreatedAt time.Time  `gorm:"column:created_at;index;not null"`
	UpdatedAt *time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

// TableName returns the table name.
func (AnnotationModel) TableName() string {
	return "annotations"
}

// PreferenceModel represents per-document reader state in the database.
type PreferenceModel struct {
	Document  string       `gorm:"column:document;primaryKey;size:1024"`
	Location  string       `gorm:"column:location;size:1024"`
	Toolbar   book.Toolbar `gorm:"column:toolbar;serializer:json"`
	Tags      string       `gorm:"column:tags;size:1024"`
	UpdatedAt time.Time    `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (PreferenceModel) TableName() string {
	return "preferences"
}
