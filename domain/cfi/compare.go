package cfi

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of parsed identifiers kept by the default
// comparator.
const DefaultCacheSize = 1024

// Identified is anything addressed by a fragment identifier.
type Identified interface {
	CFI() string
}

// Comparator decides overlap and containment between identifiers, caching
// parsed fragments. It is safe for concurrent use.
type Comparator struct {
	cache *lru.Cache[string, Fragment]
}

// NewComparator creates a Comparator holding up to size parsed fragments.
func NewComparator(size int) (*Comparator, error) {
	cache, err := lru.New[string, Fragment](size)
	if err != nil {
		return nil, fmt.Errorf("create fragment cache: %w", err)
	}
	return &Comparator{cache: cache}, nil
}

var defaultComparator = mustComparator(DefaultCacheSize)

func mustComparator(size int) *Comparator {
	c, err := NewComparator(size)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the shared package-level comparator.
func Default() *Comparator { return defaultComparator }

// Parse returns the parsed fragment, from cache when possible.
func (c *Comparator) Parse(s string) Fragment {
	if f, ok := c.cache.Get(s); ok {
		return f
	}
	f := Parse(s)
	c.cache.Add(s, f)
	return f
}

// Overlaps reports whether a and b address intersecting ranges. Identical
// strings always overlap. If either side is malformed the answer falls back to
// string equality.
func (c *Comparator) Overlaps(a, b string) bool {
	if a == b {
		return true
	}
	if !IsValid(a) || !IsValid(b) {
		return false
	}
	return c.Parse(a).Overlaps(c.Parse(b))
}

// Contains reports whether outer covers inner. Identical strings contain each
// other; malformed input never contains anything. Distinct identifiers must
// also overlap, so containment always implies overlap.
func (c *Comparator) Contains(outer, inner string) bool {
	if outer == inner {
		return true
	}
	if !IsValid(outer) || !IsValid(inner) {
		return false
	}
	return c.Parse(outer).Contains(c.Parse(inner))
}

// Relation describes how two identifiers relate.
type Relation struct {
	ValidA      bool
	ValidB      bool
	SectionA    string
	SectionB    string
	PointA      bool
	PointB      bool
	SameSection bool
	Overlaps    bool
	AContainsB  bool
	BContainsA  bool
}

// Relate compares a and b in every direction at once. SameSection compares
// the full section step including any bracketed assertion, the same test
// Overlaps and Contains apply, while SectionA and SectionB hold the numeric
// index keys.
func (c *Comparator) Relate(a, b string) Relation {
	sectionA, _ := SectionKey(a)
	sectionB, _ := SectionKey(b)
	validA, validB := IsValid(a), IsValid(b)
	fa, fb := c.Parse(a), c.Parse(b)
	return Relation{
		ValidA:      validA,
		ValidB:      validB,
		SectionA:    sectionA,
		SectionB:    sectionB,
		PointA:      fa.IsPoint(),
		PointB:      fb.IsPoint(),
		SameSection: validA && validB && fa.Section() == fb.Section(),
		Overlaps:    c.Overlaps(a, b),
		AContainsB:  c.Contains(a, b),
		BContainsA:  c.Contains(b, a),
	}
}

// Len returns the number of cached fragments.
func (c *Comparator) Len() int { return c.cache.Len() }

// Overlaps reports overlap using the default comparator.
func Overlaps(a, b string) bool { return defaultComparator.Overlaps(a, b) }

// Contains reports containment using the default comparator.
func Contains(outer, inner string) bool { return defaultComparator.Contains(outer, inner) }

// FindOverlapping returns the items whose identifier overlaps selection, in
// their original order. Items with an empty identifier are skipped.
func FindOverlapping[T Identified](selection string, items []T) []T {
	return FindOverlappingWith(defaultComparator, selection, items)
}

// FindOverlappingWith is FindOverlapping with an explicit comparator.
func FindOverlappingWith[T Identified](c *Comparator, selection string, items []T) []T {
	var matches []T
	for _, item := range items {
		id := item.CFI()
		if id == "" {
			continue
		}
		if c.Overlaps(selection, id) {
			matches = append(matches, item)
		}
	}
	return matches
}
