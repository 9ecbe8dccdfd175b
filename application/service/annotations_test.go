package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/domain/cfi"
	"github.com/helixml/marginalia/infrastructure/persistence"
	"github.com/helixml/marginalia/internal/database"
	"github.com/helixml/marginalia/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = "books/moby-dick.epub"

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newAnnotations(t *testing.T) *Annotations {
	t.Helper()
	store := persistence.NewAnnotationStore(testdb.New(t))
	svc := NewAnnotations(store, cfi.Default(), slog.Default())
	tick := epoch
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return svc
}

func TestAnnotations_SaveDefaultsAndDedupes(t *testing.T) {
	svc := newAnnotations(t)
	ctx := context.Background()

	a := annotation.New("", "epubcfi(/6/4!/4/2,/1:0,/1:15)", "Call me Ishmael", "Loomings", time.Time{})
	saved, created, err := svc.Save(ctx, doc, a)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, annotation.DefaultColor, saved.Color())
	assert.Equal(t, doc, saved.Document())
	assert.False(t, saved.CreatedAt().IsZero())

	again, created, err := svc.Save(ctx, doc, a.WithColor("blue"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, saved.ID(), again.ID())
	assert.Equal(t, annotation.DefaultColor, again.Color(), "duplicate is returned unchanged")
}

func TestAnnotations_SaveRejectsInvalidIdentifier(t *testing.T) {
	svc := newAnnotations(t)

	_, _, err := svc.Save(context.Background(), doc, annotation.New(doc, "chapter-1", "x", "", epoch))
	assert.ErrorIs(t, err, annotation.ErrInvalidCFI)
}

func TestAnnotations_UpdateAndRemove(t *testing.T) {
	svc := newAnnotations(t)
	ctx := context.Background()
	id := "epubcfi(/6/4!/4/2,/1:0,/1:15)"

	_, _, err := svc.Save(ctx, doc, annotation.New(doc, id, "Call me Ishmael", "Loomings", epoch))
	require.NoError(t, err)

	note := "opening line"
	color := "green"
	updated, err := svc.Update(ctx, doc, id, annotation.Edit{Note: &note, Color: &color, Tags: &[]string{"opening", ""}})
	require.NoError(t, err)
	assert.Equal(t, "opening line", updated.Note())
	assert.Equal(t, "green", updated.Color())
	assert.Equal(t, []string{"opening"}, updated.Tags())
	assert.True(t, updated.Edited())

	unchanged, err := svc.Update(ctx, doc, id, annotation.Edit{})
	require.NoError(t, err)
	assert.Equal(t, updated.UpdatedAt(), unchanged.UpdatedAt())

	removed, err := svc.Remove(ctx, doc, id)
	require.NoError(t, err)
	assert.Equal(t, id, removed.CFI())

	_, err = svc.Remove(ctx, doc, id)
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = svc.Update(ctx, doc, id, annotation.Edit{Note: &note})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestAnnotations_ImportExport(t *testing.T) {
	svc := newAnnotations(t)
	ctx := context.Background()

	_, _, err := svc.Save(ctx, doc, annotation.New(doc, "epubcfi(/6/4!/4/2,/1:0,/1:5)", "stored", "", epoch))
	require.NoError(t, err)

	records := []annotation.Record{
		{CFI: "epubcfi(/6/4!/4/2,/1:0,/1:5)", Text: "duplicate of stored", CreatedAt: "2024-01-01T00:00:00.000Z"},
		{CFI: "epubcfi(/6/6!/4/2,/1:0,/1:5)", Text: "older", CreatedAt: "2024-01-02T00:00:00.000Z"},
		{CFI: "epubcfi(/6/8!/4/2,/1:0,/1:5)", Text: "newer", CreatedAt: "2024-01-03T00:00:00.000Z", Color: "pink"},
		{CFI: "epubcfi(/6/8!/4/2,/1:0,/1:5)", Text: "repeat", CreatedAt: "2024-01-04T00:00:00.000Z"},
		{CFI: "not-a-cfi", Text: "bad", CreatedAt: "2024-01-05T00:00:00.000Z"},
		{CFI: "epubcfi(/6/10!/4/2,/1:0,/1:5)", Text: "no date"},
	}
	result, err := svc.Import(ctx, doc, records)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 2, Skipped: 2, Invalid: 2}, result)

	exported, err := svc.Export(ctx, doc)
	require.NoError(t, err)
	require.Len(t, exported, 3)
	assert.Equal(t, "stored", exported[0].Text, "newest first")
	assert.Equal(t, "newer", exported[1].Text)
	assert.Equal(t, "pink", exported[1].Color)
	assert.Equal(t, "older", exported[2].Text)
	assert.Equal(t, annotation.DefaultColor, exported[2].Color)

	lib, err := svc.ExportLibrary(ctx)
	require.NoError(t, err)
	assert.Len(t, lib.Highlights[doc], 3)
}

func TestAnnotations_SearchSectionOverlapStats(t *testing.T) {
	svc := newAnnotations(t)
	ctx := context.Background()

	for _, a := range []annotation.Annotation{
		annotation.New(doc, "epubcfi(/6/4!/4/2,/1:0,/1:20)", "the white whale", "", epoch),
		annotation.New(doc, "epubcfi(/6/4!/4/2,/1:30,/1:40)", "a harpoon", "", epoch).WithNote("Whale hunting"),
		annotation.New(doc, "epubcfi(/6/6!/4/2,/1:0,/1:10)", "Queequeg", "", epoch),
	} {
		_, _, err := svc.Save(ctx, doc, a)
		require.NoError(t, err)
	}

	found, err := svc.Search(ctx, doc, "WHALE")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	all, err := svc.Search(ctx, doc, "  ")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	section, err := svc.Section(ctx, doc, "epubcfi(/6/4!/4/10/1:0)")
	require.NoError(t, err)
	assert.Len(t, section, 2)

	overlaps, err := svc.Overlapping(ctx, doc, "epubcfi(/6/4!/4/2,/1:10,/1:35)")
	require.NoError(t, err)
	assert.Len(t, overlaps, 2)

	stats, err := svc.Stats(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, annotation.Stats{Sections: 2, Total: 3, AveragePerSection: 1.5}, stats)

	docs, err := svc.Documents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{doc}, docs)
}
