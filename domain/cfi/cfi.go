// Package cfi parses and compares EPUB canonical fragment identifiers.
//
// A fragment identifier has the textual form
//
//	epubcfi(/6/8!/4/2[chap01],/1:0,/1:10)
//
// where "/6/8" is the section path, "/4/2[chap01]" the element path inside the
// section, and "/1:0" and "/1:10" the start and end positions. Only the subset
// needed to compare highlight ranges is understood: assertions are kept as
// opaque text and spatial or temporal offsets are ignored.
package cfi

import (
	"cmp"
	"fmt"
	"regexp"
	"strings"
)

const (
	prefix = "epubcfi("
	suffix = ")"

	// legacyStride is the multiplier of the scalar position encoding
	// (node*10000+offset). Kept for diagnostics only; ordering uses Compare.
	legacyStride = 10000

	maxComponent = 1 << 40
)

var (
	validPattern   = regexp.MustCompile(`epubcfi\((/\d+)`)
	sectionPattern = regexp.MustCompile(`^epubcfi\((/\d+(?:/\d+)*)`)
)

// Position addresses a character offset inside a child node.
type Position struct {
	node   int
	offset int
}

// NewPosition creates a Position.
func NewPosition(node, offset int) Position {
	return Position{node: node, offset: offset}
}

// Node returns the child node index.
func (p Position) Node() int { return p.node }

// Offset returns the character offset inside the node.
func (p Position) Offset() int { return p.offset }

// IsZero reports whether both components are zero.
func (p Position) IsZero() bool { return p.node == 0 && p.offset == 0 }

// Compare orders positions by node, then by offset.
func (p Position) Compare(other Position) int {
	if c := cmp.Compare(p.node, other.node); c != 0 {
		return c
	}
	return cmp.Compare(p.offset, other.offset)
}

// Less reports whether p sorts before other.
func (p Position) Less(other Position) bool { return p.Compare(other) < 0 }

// Key returns the scalar node*10000+offset encoding. It misorders offsets of
// 10000 or more and exists for logging and comparison with older data.
func (p Position) Key() int { return p.node*legacyStride + p.offset }

// String renders the position as "/node:offset".
func (p Position) String() string { return fmt.Sprintf("/%d:%d", p.node, p.offset) }

// Fragment is the parsed form of an identifier.
type Fragment struct {
	section string
	path    string
	start   Position
	end     Position
}

// Section returns the section path, e.g. "/6/8".
func (f Fragment) Section() string { return f.section }

// Path returns the element path inside the section.
func (f Fragment) Path() string { return f.path }

// Start returns the range start.
func (f Fragment) Start() Position { return f.start }

// End returns the range end.
func (f Fragment) End() Position { return f.end }

// IsPoint reports whether the fragment carries no range.
func (f Fragment) IsPoint() bool { return f.start.IsZero() && f.end.IsZero() }

// Overlaps reports whether the half-open ranges intersect within one section.
// Two points never overlap each other.
func (f Fragment) Overlaps(other Fragment) bool {
	if f.section != other.section {
		return false
	}
	return f.start.Less(other.end) && other.start.Less(f.end)
}

// Contains reports whether other lies inside f within one section. The
// ranges must also intersect, so a position sitting on f's end and two
// distinct points are not contained.
func (f Fragment) Contains(other Fragment) bool {
	if f.section != other.section {
		return false
	}
	return f.start.Compare(other.start) <= 0 && f.end.Compare(other.end) >= 0 && f.Overlaps(other)
}

// Parse splits an identifier into its components. It never fails: input that
// does not look like an identifier yields a point fragment whose section is
// the unwrapped text.
func Parse(s string) Fragment {
	inner := strings.TrimSuffix(strings.TrimPrefix(s, prefix), suffix)

	parts := strings.Split(inner, "!")
	section := parts[0]
	if len(parts) < 2 || parts[1] == "" {
		return Fragment{section: section}
	}

	pieces := strings.Split(parts[1], ",")
	f := Fragment{section: section, path: pieces[0]}
	switch {
	case len(pieces) >= 3:
		f.start = parsePosition(pieces[1])
		f.end = parsePosition(pieces[2])
	case len(pieces) == 2:
		f.start = parsePosition(pieces[1])
		f.end = f.start
	}
	return f
}

func parsePosition(s string) Position {
	s = strings.TrimPrefix(s, "/")
	node, offset, _ := strings.Cut(s, ":")
	return Position{node: leadingInt(node), offset: leadingInt(offset)}
}

// leadingInt reads an optionally signed run of leading digits, ignoring
// whatever follows (assertions like "[id]" or spatial offsets). No digits
// means 0.
func leadingInt(s string) int {
	s = strings.TrimLeft(s, " \t\n\r\f\v")
	sign := 1
	if s != "" && (s[0] == '-' || s[0] == '+') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		if n < maxComponent {
			n = n*10 + int(s[i]-'0')
		}
	}
	return sign * n
}

// IsValid is a syntactic gate: non-empty, wrapped in epubcfi( ... ), with a
// numeric step directly inside the wrapper. It does not promise that Parse
// finds a meaningful range.
func IsValid(s string) bool {
	if s == "" || !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, suffix) {
		return false
	}
	return validPattern.MatchString(s)
}

// SectionKey extracts the leading numeric section path without a full parse.
// Identifiers that do not start with one have no key.
func SectionKey(s string) (string, bool) {
	m := sectionPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}
