package book

import (
	"context"
	"strings"
)

// Toolbar defaults.
const (
	DefaultFontSize   = 100
	DefaultFontFamily = "system"
)

// Toolbar is the reader's display state for one document.
type Toolbar struct {
	FontSize   int    `json:"fontSize"`
	FontFamily string `json:"fontFamily"`
	Bionic     bool   `json:"bionic"`
	Theme      string `json:"theme,omitempty"`
}

// DefaultToolbar returns the display state for a document never opened.
func DefaultToolbar() Toolbar {
	return Toolbar{FontSize: DefaultFontSize, FontFamily: DefaultFontFamily}
}

// Preferences is the per-document state kept between sessions.
type Preferences struct {
	Location string  `json:"location,omitempty"`
	Toolbar  Toolbar `json:"toolbar"`
	Tags     string  `json:"tags,omitempty"`
}

// DefaultPreferences returns preferences for a document never opened.
func DefaultPreferences() Preferences {
	return Preferences{Toolbar: DefaultToolbar()}
}

// NoteTags returns the per-document tags when set, else fallback.
func (p Preferences) NoteTags(fallback string) string {
	if strings.TrimSpace(p.Tags) != "" {
		return p.Tags
	}
	return fallback
}

// PreferenceStore persists Preferences keyed by document path. Load returns
// defaults for unknown documents.
type PreferenceStore interface {
	Load(ctx context.Context, document string) (Preferences, error)
	Save(ctx context.Context, document string, prefs Preferences) error
	Delete(ctx context.Context, document string) error
}

// SaveLocation loads the current preferences, sets the location, and saves.
func SaveLocation(ctx context.Context, store PreferenceStore, document, location string) error {
	prefs, err := store.Load(ctx, document)
	if err != nil {
		return err
	}
	if prefs.Location == location {
		return nil
	}
	prefs.Location = location
	return store.Save(ctx, document, prefs)
}
