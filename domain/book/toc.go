// Package book holds per-document reading state and navigation.
package book

import "strings"

// TOCEntry is one navigation point.
type TOCEntry struct {
	Href  string `json:"href"`
	Label string `json:"label"`
}

// TOC is a document's table of contents.
type TOC struct {
	entries []TOCEntry
}

// NewTOC creates a TOC from entries in reading order.
func NewTOC(entries ...TOCEntry) TOC {
	return TOC{entries: append([]TOCEntry(nil), entries...)}
}

// Entries returns the navigation points.
func (t TOC) Entries() []TOCEntry {
	return append([]TOCEntry(nil), t.entries...)
}

// ResolveChapter maps a content href to a chapter label. An href without a
// matching entry is returned as is; an empty href has no chapter.
func (t TOC) ResolveChapter(href string) string {
	if href == "" {
		return ""
	}
	normalized := strings.TrimPrefix(href, "/")
	for _, e := range t.entries {
		if e.Href == href || e.Href == normalized || strings.HasSuffix(e.Href, normalized) {
			if e.Label != "" {
				return e.Label
			}
			return href
		}
	}
	return href
}
