// Package dto holds request and response bodies of the v1 API.
package dto

import (
	"time"

	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/domain/book"
)

// AnnotationCreateAttributes are the fields of a new highlight.
type AnnotationCreateAttributes struct {
	CFI     string   `json:"cfi"`
	Text    string   `json:"text"`
	Chapter string   `json:"chapter,omitempty"`
	Note    string   `json:"note,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Color   string   `json:"color,omitempty"`
}

// AnnotationCreateData is the resource object of a create request.
type AnnotationCreateData struct {
	Type       string                     `json:"type"`
	Attributes AnnotationCreateAttributes `json:"attributes"`
}

// AnnotationCreateRequest is the body of POST .../annotations.
type AnnotationCreateRequest struct {
	Data AnnotationCreateData `json:"data"`
}

// ToAnnotation builds the highlight for document. Zero createdAt is filled
// in when the highlight is saved.
func (r AnnotationCreateRequest) ToAnnotation(document string) annotation.Annotation {
	attrs := r.Data.Attributes
	a := annotation.New(document, attrs.CFI, attrs.Text, attrs.Chapter, time.Time{})
	if attrs.Note != "" {
		a = a.WithNote(attrs.Note)
	}
	if len(attrs.Tags) > 0 {
		a = a.WithTags(attrs.Tags)
	}
	if attrs.Color != "" {
		a = a.WithColor(attrs.Color)
	}
	return a
}

// AnnotationUpdateAttributes are the editable fields; absent fields are kept.
type AnnotationUpdateAttributes struct {
	Note  *string   `json:"note,omitempty"`
	Color *string   `json:"color,omitempty"`
	Tags  *[]string `json:"tags,omitempty"`
}

// AnnotationUpdateData is the resource object of an update request.
type AnnotationUpdateData struct {
	Type       string                     `json:"type"`
	Attributes AnnotationUpdateAttributes `json:"attributes"`
}

// AnnotationUpdateRequest is the body of PATCH .../annotations/{cfi}.
type AnnotationUpdateRequest struct {
	Data AnnotationUpdateData `json:"data"`
}

// ToEdit converts the request to a domain edit.
func (r AnnotationUpdateRequest) ToEdit() annotation.Edit {
	attrs := r.Data.Attributes
	return annotation.Edit{Note: attrs.Note, Color: attrs.Color, Tags: attrs.Tags}
}

// PreferencesUpdateAttributes are the preference fields; absent fields are kept.
type PreferencesUpdateAttributes struct {
	Location *string       `json:"location,omitempty"`
	Toolbar  *book.Toolbar `json:"toolbar,omitempty"`
	Tags     *string       `json:"tags,omitempty"`
}

// PreferencesUpdateData is the resource object of a preferences update.
type PreferencesUpdateData struct {
	Type       string                      `json:"type"`
	Attributes PreferencesUpdateAttributes `json:"attributes"`
}

// PreferencesUpdateRequest is the body of PUT .../preferences.
type PreferencesUpdateRequest struct {
	Data PreferencesUpdateData `json:"data"`
}

// Apply overlays the request on current.
func (r PreferencesUpdateRequest) Apply(current book.Preferences) book.Preferences {
	attrs := r.Data.Attributes
	if attrs.Location != nil {
		current.Location = *attrs.Location
	}
	if attrs.Toolbar != nil {
		current.Toolbar = *attrs.Toolbar
	}
	if attrs.Tags != nil {
		current.Tags = *attrs.Tags
	}
	return current
}
