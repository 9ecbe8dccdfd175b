package annotation

import (
	"math"
	"slices"
	"sync"

	"github.com/helixml/marginalia/domain/cfi"
)

// SectionIndex partitions annotations by section so restoring the visible
// section costs the size of that section, not of the book. Annotations whose
// identifier has no section key are left out of every operation. Buckets and
// sections keep insertion order.
//
// The index is safe for concurrent use.
type SectionIndex struct {
	mu       sync.RWMutex
	sections map[string][]Annotation
	order    []string
}

// NewSectionIndex creates an empty index.
func NewSectionIndex() *SectionIndex {
	return &SectionIndex{sections: make(map[string][]Annotation)}
}

// Rebuild replaces the whole index with items.
func (ix *SectionIndex) Rebuild(items []Annotation) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.sections = make(map[string][]Annotation)
	ix.order = ix.order[:0]
	for _, a := range items {
		ix.add(a)
	}
}

// ForSection returns the annotations in the section of locator, which may be
// any identifier inside the section (typically the current reading location).
func (ix *SectionIndex) ForSection(locator string) []Annotation {
	key, ok := cfi.SectionKey(locator)
	if !ok {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return slices.Clone(ix.sections[key])
}

// All returns every indexed annotation, section by section.
func (ix *SectionIndex) All() []Annotation {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var all []Annotation
	for _, key := range ix.order {
		all = append(all, ix.sections[key]...)
	}
	return all
}

// Add appends a to its section bucket. Annotations without a section key are
// ignored.
func (ix *SectionIndex) Add(a Annotation) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.add(a)
}

// Remove deletes the annotation with the given identifier and reports whether
// one was found. Emptied buckets are dropped.
func (ix *SectionIndex) Remove(identifier string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.remove(identifier)
}

// Update replaces the annotation with the given identifier. It is a silent
// no-op when nothing matches. A replacement anchored in another section moves
// buckets; one without a section key is dropped.
func (ix *SectionIndex) Update(identifier string, a Annotation) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	key, ok := cfi.SectionKey(identifier)
	if !ok {
		return false
	}
	bucket := ix.sections[key]
	i := indexOf(bucket, identifier)
	if i < 0 {
		return false
	}

	newKey, ok := cfi.SectionKey(a.CFI())
	if ok && newKey == key {
		bucket[i] = a
		return true
	}
	ix.remove(identifier)
	if ok {
		ix.add(a)
	}
	return true
}

// Find returns the annotation with the given identifier.
func (ix *SectionIndex) Find(identifier string) (Annotation, bool) {
	key, ok := cfi.SectionKey(identifier)
	if !ok {
		return Annotation{}, false
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	bucket := ix.sections[key]
	if i := indexOf(bucket, identifier); i >= 0 {
		return bucket[i], true
	}
	return Annotation{}, false
}

// Len returns the number of indexed annotations.
func (ix *SectionIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := 0
	for _, bucket := range ix.sections {
		n += len(bucket)
	}
	return n
}

// Sections returns the section keys in insertion order.
func (ix *SectionIndex) Sections() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return slices.Clone(ix.order)
}

// Stats summarises the index.
type Stats struct {
	Sections          int     `json:"sections"`
	Total             int     `json:"total"`
	AveragePerSection float64 `json:"average_per_section"`
}

// Stats returns section count, total and the mean bucket size rounded to one
// decimal.
func (ix *SectionIndex) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	total := 0
	for _, bucket := range ix.sections {
		total += len(bucket)
	}
	s := Stats{Sections: len(ix.sections), Total: total}
	if s.Sections > 0 {
		s.AveragePerSection = math.Round(float64(total)/float64(s.Sections)*10) / 10
	}
	return s
}

func (ix *SectionIndex) add(a Annotation) {
	key, ok := cfi.SectionKey(a.CFI())
	if !ok {
		return
	}
	if _, exists := ix.sections[key]; !exists {
		ix.order = append(ix.order, key)
	}
	ix.sections[key] = append(ix.sections[key], a)
}

func (ix *SectionIndex) remove(identifier string) bool {
	key, ok := cfi.SectionKey(identifier)
	if !ok {
		return false
	}
	bucket := ix.sections[key]
	i := indexOf(bucket, identifier)
	if i < 0 {
		return false
	}
	bucket = slices.Delete(bucket, i, i+1)
	if len(bucket) == 0 {
		delete(ix.sections, key)
		ix.order = slices.DeleteFunc(ix.order, func(k string) bool { return k == key })
		return true
	}
	ix.sections[key] = bucket
	return true
}

func indexOf(bucket []Annotation, identifier string) int {
	return slices.IndexFunc(bucket, func(a Annotation) bool { return a.CFI() == identifier })
}
