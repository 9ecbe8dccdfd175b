// Package annotation models highlights anchored to fragment identifiers and
// the per-section index used to restore them.
package annotation

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/helixml/marginalia/domain/cfi"
)

// DefaultColor is used when a highlight is created without one.
const DefaultColor = "yellow"

// ErrInvalidCFI indicates an identifier that fails the syntactic check.
var ErrInvalidCFI = errors.New("invalid fragment identifier")

// Annotation is a highlight in a document. The identifier and creation time
// are fixed once created; note, tags and color may be edited.
type Annotation struct {
	id        int64
	document  string
	cfi       string
	text      string
	chapter   string
	note      string
	tags      []string
	color     string
	createdAt time.Time
	updatedAt time.Time
}

// New creates an annotation for a fresh selection.
func New(document, identifier, text, chapter string, createdAt time.Time) Annotation {
	return Annotation{
		document:  document,
		cfi:       identifier,
		text:      text,
		chapter:   chapter,
		createdAt: createdAt,
	}
}

// Reconstruct recreates an annotation from persistence.
func Reconstruct(
	id int64,
	document, identifier, text, chapter, note string,
	tags []string,
	color string,
	createdAt, updatedAt time.Time,
) Annotation {
	return Annotation{
		id:        id,
		document:  document,
		cfi:       identifier,
		text:      text,
		chapter:   chapter,
		note:      note,
		tags:      slices.Clone(tags),
		color:     color,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// ID returns the storage ID (0 until saved).
func (a Annotation) ID() int64 { return a.id }

// Document returns the path of the containing document.
func (a Annotation) Document() string { return a.document }

// CFI returns the fragment identifier.
func (a Annotation) CFI() string { return a.cfi }

// Text returns the source text captured at creation.
func (a Annotation) Text() string { return a.text }

// Chapter returns the section label resolved at creation.
func (a Annotation) Chapter() string { return a.chapter }

// Note returns the user's comment.
func (a Annotation) Note() string { return a.note }

// Tags returns a copy of the classification tags.
func (a Annotation) Tags() []string { return slices.Clone(a.tags) }

// Color returns the highlight color.
func (a Annotation) Color() string { return a.color }

// CreatedAt returns the creation time.
func (a Annotation) CreatedAt() time.Time { return a.createdAt }

// UpdatedAt returns the last edit time, zero if never edited.
func (a Annotation) UpdatedAt() time.Time { return a.updatedAt }

// Edited reports whether the annotation was changed after creation.
func (a Annotation) Edited() bool { return !a.updatedAt.IsZero() }

// Section returns the section key of the identifier.
func (a Annotation) Section() (string, bool) { return cfi.SectionKey(a.cfi) }

// Valid reports whether the identifier passes the syntactic check.
func (a Annotation) Valid() bool { return cfi.IsValid(a.cfi) }

// DisplayColor returns the color, or DefaultColor when unset.
func (a Annotation) DisplayColor() string {
	if a.color == "" {
		return DefaultColor
	}
	return a.color
}

// WithID returns a copy with the storage ID set.
func (a Annotation) WithID(id int64) Annotation {
	a.id = id
	return a
}

// WithDocument returns a copy bound to a document.
func (a Annotation) WithDocument(document string) Annotation {
	a.document = document
	return a
}

// WithColor returns a copy with a new color.
func (a Annotation) WithColor(color string) Annotation {
	a.color = color
	return a
}

// WithNote returns a copy with a new note.
func (a Annotation) WithNote(note string) Annotation {
	a.note = note
	return a
}

// WithTags returns a copy with new tags.
func (a Annotation) WithTags(tags []string) Annotation {
	a.tags = slices.Clone(tags)
	return a
}

// WithCreatedAt returns a copy with the creation time set.
func (a Annotation) WithCreatedAt(t time.Time) Annotation {
	a.createdAt = t
	return a
}

// WithUpdatedAt returns a copy with the edit time set.
func (a Annotation) WithUpdatedAt(t time.Time) Annotation {
	a.updatedAt = t
	return a
}

// Edit describes a user change. Nil fields are left untouched.
type Edit struct {
	Note  *string
	Tags  *[]string
	Color *string
}

// IsEmpty reports whether the edit changes nothing.
func (e Edit) IsEmpty() bool {
	return e.Note == nil && e.Tags == nil && e.Color == nil
}

// Apply returns a copy with the edit applied and the edit time stamped.
func (a Annotation) Apply(e Edit, now time.Time) Annotation {
	if e.IsEmpty() {
		return a
	}
	if e.Note != nil {
		a.note = *e.Note
	}
	if e.Tags != nil {
		a.tags = normalizeTags(*e.Tags)
	}
	if e.Color != nil {
		a.color = *e.Color
	}
	a.updatedAt = now
	return a
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
