package annotation

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func highlight(identifier string) Annotation {
	return New("book.epub", identifier, "text "+identifier, "", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
}

func cfis(items []Annotation) []string {
	out := make([]string, len(items))
	for i, a := range items {
		out[i] = a.CFI()
	}
	return out
}

func TestSectionIndex_Rebuild(t *testing.T) {
	ix := NewSectionIndex()
	ix.Add(highlight("epubcfi(/6/2!/4,/1:0,/1:1)"))

	ix.Rebuild([]Annotation{
		highlight("epubcfi(/6/8!/4/2,/1:0,/1:10)"),
		highlight("not-a-cfi"),
		highlight("epubcfi(/6/10!/4/2,/1:0,/1:10)"),
		highlight(""),
		highlight("epubcfi(/6/8!/4/6,/1:0,/1:3)"),
	})

	assert.Equal(t, []string{
		"epubcfi(/6/8!/4/2,/1:0,/1:10)",
		"epubcfi(/6/8!/4/6,/1:0,/1:3)",
		"epubcfi(/6/10!/4/2,/1:0,/1:10)",
	}, cfis(ix.All()))
	assert.Equal(t, []string{"/6/8", "/6/10"}, ix.Sections())
	assert.Equal(t, 3, ix.Len())
}

func TestSectionIndex_ForSection(t *testing.T) {
	ix := NewSectionIndex()
	ix.Rebuild([]Annotation{
		highlight("epubcfi(/6/8!/4/2,/1:0,/1:10)"),
		highlight("epubcfi(/6/10!/4/2,/1:0,/1:10)"),
		highlight("epubcfi(/6/8!/4/6,/1:0,/1:3)"),
	})

	got := ix.ForSection("epubcfi(/6/8!/4/2/1:0)")
	assert.Equal(t, []string{"epubcfi(/6/8!/4/2,/1:0,/1:10)", "epubcfi(/6/8!/4/6,/1:0,/1:3)"}, cfis(got))

	assert.Empty(t, ix.ForSection("epubcfi(/6/12!/4)"))
	assert.Empty(t, ix.ForSection("garbage"))
}

func TestSectionIndex_ForSectionReturnsCopy(t *testing.T) {
	ix := NewSectionIndex()
	ix.Add(highlight("epubcfi(/6/8!/4,/1:0,/1:1)"))

	got := ix.ForSection("epubcfi(/6/8)")
	got[0] = highlight("epubcfi(/6/8!/9,/1:0,/1:1)")

	_, ok := ix.Find("epubcfi(/6/8!/4,/1:0,/1:1)")
	assert.True(t, ok)
}

func TestSectionIndex_AddIgnoresMalformed(t *testing.T) {
	ix := NewSectionIndex()
	ix.Add(highlight("not-a-cfi"))
	ix.Add(highlight("epubcfi(!/4)"))
	assert.Zero(t, ix.Len())
	assert.Empty(t, ix.Sections())
}

func TestSectionIndex_Remove(t *testing.T) {
	ix := NewSectionIndex()
	a := highlight("epubcfi(/6/8!/4/2,/1:0,/1:10)")
	b := highlight("epubcfi(/6/8!/4/6,/1:0,/1:3)")
	c := highlight("epubcfi(/6/10!/4/2,/1:0,/1:10)")
	ix.Rebuild([]Annotation{a, b, c})

	assert.True(t, ix.Remove(a.CFI()))
	assert.Equal(t, []string{b.CFI()}, cfis(ix.ForSection(a.CFI())))

	assert.True(t, ix.Remove(b.CFI()))
	assert.Equal(t, []string{"/6/10"}, ix.Sections(), "empty buckets are dropped")

	assert.False(t, ix.Remove(b.CFI()))
	assert.False(t, ix.Remove("not-a-cfi"))
}

func TestSectionIndex_Update(t *testing.T) {
	ix := NewSectionIndex()
	a := highlight("epubcfi(/6/8!/4/2,/1:0,/1:10)")
	b := highlight("epubcfi(/6/8!/4/6,/1:0,/1:3)")
	ix.Rebuild([]Annotation{a, b})

	edited := a.WithNote("call me Ishmael")
	assert.True(t, ix.Update(a.CFI(), edited))

	got, ok := ix.Find(a.CFI())
	require.True(t, ok)
	assert.Equal(t, "call me Ishmael", got.Note())
	assert.Equal(t, []string{a.CFI(), b.CFI()}, cfis(ix.All()), "replaced in place")
}

func TestSectionIndex_UpdateMissingIsNoop(t *testing.T) {
	ix := NewSectionIndex()
	a := highlight("epubcfi(/6/8!/4/2,/1:0,/1:10)")
	ix.Add(a)

	assert.False(t, ix.Update("epubcfi(/6/8!/4/2,/1:0,/1:11)", a.WithNote("x")))
	assert.False(t, ix.Update("garbage", a.WithNote("x")))

	got, _ := ix.Find(a.CFI())
	assert.Empty(t, got.Note())
}

func TestSectionIndex_UpdateAcrossSections(t *testing.T) {
	ix := NewSectionIndex()
	a := highlight("epubcfi(/6/8!/4/2,/1:0,/1:10)")
	ix.Add(a)

	moved := highlight("epubcfi(/6/10!/4/2,/1:0,/1:10)")
	assert.True(t, ix.Update(a.CFI(), moved))

	assert.Equal(t, []string{"/6/10"}, ix.Sections())
	_, ok := ix.Find(moved.CFI())
	assert.True(t, ok)
}

func TestSectionIndex_Find(t *testing.T) {
	ix := NewSectionIndex()
	a := highlight("epubcfi(/6/8!/4/2,/1:0,/1:10)")
	ix.Add(a)

	got, ok := ix.Find(a.CFI())
	require.True(t, ok)
	assert.Equal(t, a.Text(), got.Text())

	_, ok = ix.Find("epubcfi(/6/8!/4/2,/1:0,/1:9)")
	assert.False(t, ok)
	_, ok = ix.Find("")
	assert.False(t, ok)
}

func TestSectionIndex_Stats(t *testing.T) {
	ix := NewSectionIndex()
	assert.Equal(t, Stats{}, ix.Stats())

	ix.Rebuild([]Annotation{
		highlight("epubcfi(/6/2!/4,/1:0,/1:1)"),
		highlight("epubcfi(/6/2!/4,/1:1,/1:2)"),
		highlight("epubcfi(/6/4!/4,/1:0,/1:1)"),
		highlight("epubcfi(/6/6!/4,/1:0,/1:1)"),
	})

	s := ix.Stats()
	assert.Equal(t, 3, s.Sections)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1.3, s.AveragePerSection)
}

func TestSectionIndex_RoundTrip(t *testing.T) {
	items := []Annotation{
		highlight("epubcfi(/6/8!/4/2,/1:0,/1:10)"),
		highlight("bad"),
		highlight("epubcfi(/6/10!/4/2,/1:0,/1:10)"),
		highlight("epubcfi(/6/8!/4/6,/1:0,/1:3)"),
	}
	ix := NewSectionIndex()
	ix.Rebuild(items)

	var wellFormed []string
	for _, a := range items {
		if _, ok := a.Section(); ok {
			wellFormed = append(wellFormed, a.CFI())
		}
	}
	assert.ElementsMatch(t, wellFormed, cfis(ix.All()))
}

// Applying random add/remove/update sequences incrementally must leave the
// same contents as rebuilding from the final collection.
func TestSectionIndex_IncrementalMatchesRebuild(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pool := make([]string, 0, 24)
	for s := 2; s <= 8; s += 2 {
		for n := 0; n < 5; n++ {
			pool = append(pool, fmt.Sprintf("epubcfi(/6/%d!/4,/1:%d,/1:%d)", s, n, n+3))
		}
	}
	pool = append(pool, "broken", "epubcfi(")

	for round := 0; round < 50; round++ {
		ix := NewSectionIndex()
		canonical := map[string]Annotation{}

		for step := 0; step < 40; step++ {
			id := pool[rng.Intn(len(pool))]
			switch rng.Intn(3) {
			case 0:
				if _, exists := canonical[id]; exists {
					continue
				}
				a := highlight(id)
				canonical[id] = a
				ix.Add(a)
			case 1:
				delete(canonical, id)
				ix.Remove(id)
			case 2:
				if old, exists := canonical[id]; exists {
					if _, ok := old.Section(); ok {
						updated := old.WithNote(fmt.Sprintf("step %d", step))
						canonical[id] = updated
						ix.Update(id, updated)
					}
				}
			}
		}

		final := make([]Annotation, 0, len(canonical))
		for _, a := range canonical {
			final = append(final, a)
		}
		rebuilt := NewSectionIndex()
		rebuilt.Rebuild(final)

		assert.Equal(t, snapshot(rebuilt), snapshot(ix), "round %d", round)
	}
}

func snapshot(ix *SectionIndex) map[string][]string {
	out := map[string][]string{}
	for _, key := range ix.Sections() {
		var entries []string
		for _, a := range ix.ForSection("epubcfi(" + key + ")") {
			entries = append(entries, a.CFI()+"|"+a.Note())
		}
		sort.Strings(entries)
		out[key] = entries
	}
	return out
}

func TestSectionIndex_ConcurrentAccess(t *testing.T) {
	ix := NewSectionIndex()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			ix.Add(highlight(fmt.Sprintf("epubcfi(/6/%d!/4,/1:0,/1:1)", i%5)))
		}
	}()
	for i := 0; i < 200; i++ {
		_ = ix.ForSection("epubcfi(/6/1)")
		_ = ix.Stats()
	}
	<-done
	assert.Equal(t, 200, ix.Len())
}
