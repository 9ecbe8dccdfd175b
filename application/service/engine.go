package service

import (
	"context"
	"fmt"
)

// Contents describes the document content a selection was made in.
type Contents struct {
	SelectedText string
	Href         string
}

// Selection is reported by the engine when the reader selects text.
type Selection struct {
	CFI      string
	Contents Contents
}

// Mark asks the engine to paint a highlight.
type Mark struct {
	CFI   string
	Color string
	Note  string
}

// Location wraps a location payload that carries its position in Start.
type Location struct {
	Start any
}

// Engine is the rendering engine a Session drives. The subscription methods
// return a function that removes the handler again.
type Engine interface {
	OnSelected(fn func(Selection)) (dispose func())
	OnLocationChanged(fn func(any)) (dispose func())
	Mark(ctx context.Context, m Mark) error
	Unmark(ctx context.Context, cfi string) error
}

// ResolveLocation extracts an identifier from a location payload. Unknown
// payloads resolve to "".
func ResolveLocation(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case interface{ CFI() string }:
		return v.CFI()
	case Location:
		return ResolveLocation(v.Start)
	case *Location:
		if v == nil {
			return ""
		}
		return ResolveLocation(v.Start)
	case map[string]any:
		if start, ok := v["start"]; ok {
			return ResolveLocation(start)
		}
		if s, ok := v["cfi"].(string); ok {
			return s
		}
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}
