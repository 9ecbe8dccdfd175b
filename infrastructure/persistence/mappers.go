package persistence

import (
	"time"

	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/domain/book"
)

// AnnotationMapper maps between domain Annotation and persistence AnnotationModel.
type AnnotationMapper struct{}

// ToDomain converts an AnnotationModel to a domain Annotation.
func (m AnnotationMapper) ToDomain(e AnnotationModel) annotation.Annotation {
	var updatedAt time.Time
	if e.UpdatedAt != nil {
		updatedAt = *e.UpdatedAt
	}
	return annotation.Reconstruct(
		e.ID,
		e.Document,
		e.CFI,
		e.Text,
		e.Chapter,
		e.Note,
		e.Tags,
		e.Color,
		e.CreatedAt,
		updatedAt,
	)
}

// ToModel converts a domain Annotation to an AnnotationModel.
func (m AnnotationMapper) ToModel(a annotation.Annotation) AnnotationModel {
	var updatedAt *time.Time
	if a.Edited() {
		t := a.UpdatedAt()
		updatedAt = &t
	}
	section, _ := a.Section()
	tags := a.Tags()
	if tags == nil {
		tags = []string{}
	}
	return AnnotationModel{
		ID:        a.ID(),
		Document:  a.Document(),
		CFI:       a.CFI(),
		Section:   section,
		Text:      a.Text(),
		Chapter:   a.Chapter(),
		Note:      a.Note(),
		Tags:      tags,
		Color:     a.Color(),
		CreatedAt: a.CreatedAt(),
		UpdatedAt: updatedAt,
	}
}

func preferencesFromModel(e PreferenceModel) book.Preferences {
	toolbar := e.Toolbar
	if toolbar.FontSize == 0 {
		toolbar.FontSize = book.DefaultFontSize
	}
	if toolbar.FontFamily == "" {
		toolbar.FontFamily = book.DefaultFontFamily
	}
	return book.Preferences{
		Location: e.Location,
		Toolbar:  toolbar,
		Tags:     e.Tags,
	}
}

func preferencesToModel(document string, p book.Preferences) PreferenceModel {
	return PreferenceModel{
		Document: document,
		Location: p.Location,
		Toolbar:  p.Toolbar,
		Tags:     p.Tags,
	}
}
