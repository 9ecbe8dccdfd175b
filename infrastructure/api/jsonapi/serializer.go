package jsonapi

import (
	"net/url"
	"strconv"

	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/domain/book"
)

// Resource types.
const (
	TypeAnnotation  = "annotation"
	TypePreferences = "preferences"
	TypeStats       = "annotation-stats"
)

// AnnotationAttributes is the JSON:API view of a highlight.
type AnnotationAttributes struct {
	Document  string   `json:"document"`
	CFI       string   `json:"cfi"`
	Section   string   `json:"section,omitempty"`
	Text      string   `json:"text"`
	Chapter   string   `json:"chapter,omitempty"`
	Note      string   `json:"note,omitempty"`
	Tags      []string `json:"tags"`
	Color     string   `json:"color"`
	CreatedAt DateTime `json:"created_at"`
	UpdatedAt DateTime `json:"updated_at"`
}

// PreferencesAttributes is the JSON:API view of reading preferences.
type PreferencesAttributes struct {
	Location string       `json:"location"`
	Toolbar  book.Toolbar `json:"toolbar"`
	Tags     string       `json:"tags"`
}

// StatsAttributes is the JSON:API view of section statistics.
type StatsAttributes struct {
	Total             int      `json:"total"`
	Sections          int      `json:"sections"`
	AveragePerSection float64  `json:"average_per_section"`
	SectionKeys       []string `json:"section_keys"`
}

// AnnotationResource converts a highlight to a resource. basePath is the
// collection path; the resource link appends the escaped identifier.
func AnnotationResource(a annotation.Annotation, basePath string) *Resource {
	section, _ := a.Section()
	tags := a.Tags()
	if tags == nil {
		tags = []string{}
	}
	r := NewResource(TypeAnnotation, strconv.FormatInt(a.ID(), 10), AnnotationAttributes{
		Document:  a.Document(),
		CFI:       a.CFI(),
		Section:   section,
		Text:      a.Text(),
		Chapter:   a.Chapter(),
		Note:      a.Note(),
		Tags:      tags,
		Color:     a.Color(),
		CreatedAt: DateTime(a.CreatedAt()),
		UpdatedAt: DateTime(a.UpdatedAt()),
	})
	if basePath != "" {
		r.Links = &Links{Self: basePath + "/" + url.PathEscape(a.CFI())}
	}
	return r
}

// AnnotationResources converts highlights to resources, preserving order.
func AnnotationResources(items []annotation.Annotation, basePath string) []*Resource {
	out := make([]*Resource, len(items))
	for i, a := range items {
		out[i] = AnnotationResource(a, basePath)
	}
	return out
}

// PreferencesResource converts preferences of document to a resource.
func PreferencesResource(document string, p book.Preferences) *Resource {
	return NewResource(TypePreferences, document, PreferencesAttributes{
		Location: p.Location,
		Toolbar:  p.Toolbar,
		Tags:     p.Tags,
	})
}

// StatsResource converts section statistics of document to a resource.
func StatsResource(document string, s annotation.Stats, sections []string) *Resource {
	if sections == nil {
		sections = []string{}
	}
	return NewResource(TypeStats, document, StatsAttributes{
		Total:             s.Total,
		Sections:          s.Sections,
		AveragePerSection: s.AveragePerSection,
		SectionKeys:       sections,
	})
}
