package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/domain/book"
	"github.com/helixml/marginalia/domain/repository"
	"github.com/helixml/marginalia/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDB creates a migrated in-memory SQLite database.
// Cannot use testdb package here due to import cycle (testdb imports persistence).
func newTestDB(t *testing.T) database.Database {
	t.Helper()
	db, err := database.NewDatabase(context.Background(), "sqlite:///:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, AutoMigrate(db))
	return db
}

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func highlight(doc, identifier, text string, offset time.Duration) annotation.Annotation {
	return annotation.New(doc, identifier, text, "Chapter One", created.Add(offset)).
		WithColor(annotation.DefaultColor)
}

func TestAnnotationStore_SaveAndFind(t *testing.T) {
	store := NewAnnotationStore(newTestDB(t))
	ctx := context.Background()

	saved, err := store.Save(ctx, highlight("moby.epub", "epubcfi(/6/4!/4/2,/1:0,/1:10)", "Call me Ishmael", 0))
	require.NoError(t, err)
	assert.NotZero(t, saved.ID())
	assert.False(t, saved.Edited())

	found, err := store.FindOne(ctx, annotation.WithDocument("moby.epub"), annotation.WithCFI("epubcfi(/6/4!/4/2,/1:0,/1:10)"))
	require.NoError(t, err)
	assert.Equal(t, "Call me Ishmael", found.Text())
	assert.Equal(t, "Chapter One", found.Chapter())
	assert.Equal(t, annotation.DefaultColor, found.Color())
	assert.True(t, created.Equal(found.CreatedAt()))
	assert.Empty(t, found.Tags())
}

func TestAnnotationStore_SaveReplacesSameIdentifier(t *testing.T) {
	store := NewAnnotationStore(newTestDB(t))
	ctx := context.Background()

	first, err := store.Save(ctx, highlight("a.epub", "epubcfi(/6/2!/4,/1:0,/1:5)", "first", 0))
	require.NoError(t, err)

	edited := highlight("a.epub", "epubcfi(/6/2!/4,/1:0,/1:5)", "first", 0).
		Apply(annotation.Edit{Note: ptr("a thought"), Tags: &[]string{"theme", " theme ", "motif"}}, created.Add(time.Hour))
	second, err := store.Save(ctx, edited)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())

	count, err := store.Count(ctx, annotation.WithDocument("a.epub"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	found, err := store.FindOne(ctx, repository.WithID(first.ID()))
	require.NoError(t, err)
	assert.Equal(t, "a thought", found.Note())
	assert.Equal(t, []string{"theme", "motif"}, found.Tags())
	assert.True(t, found.Edited())
	assert.True(t, created.Add(time.Hour).Equal(found.UpdatedAt()))
}

func TestAnnotationStore_SameIdentifierInOtherDocument(t *testing.T) {
	store := NewAnnotationStore(newTestDB(t))
	ctx := context.Background()

	_, err := store.Save(ctx, highlight("a.epub", "epubcfi(/6/2!/4,/1:0,/1:5)", "x", 0))
	require.NoError(t, err)
	_, err = store.Save(ctx, highlight("b.epub", "epubcfi(/6/2!/4,/1:0,/1:5)", "y", 0))
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	docs, err := store.Documents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.epub", "b.epub"}, docs)
}

func TestAnnotationStore_SectionAndOrdering(t *testing.T) {
	store := NewAnnotationStore(newTestDB(t))
	ctx := context.Background()

	_, err := store.SaveAll(ctx, []annotation.Annotation{
		highlight("a.epub", "epubcfi(/6/4!/4/2,/1:0,/1:3)", "one", 0),
		highlight("a.epub", "epubcfi(/6/4!/4/8,/1:0,/1:3)", "two", time.Minute),
		highlight("a.epub", "epubcfi(/6/6!/4/2,/1:0,/1:3)", "three", 2*time.Minute),
	})
	require.NoError(t, err)

	inSection, err := store.Find(ctx, annotation.WithDocument("a.epub"), annotation.WithSection("/6/4"), annotation.WithNewestFirst())
	require.NoError(t, err)
	require.Len(t, inSection, 2)
	assert.Equal(t, "two", inSection[0].Text())
	assert.Equal(t, "one", inSection[1].Text())
}

func TestAnnotationStore_Search(t *testing.T) {
	store := NewAnnotationStore(newTestDB(t))
	ctx := context.Background()

	_, err := store.Save(ctx, highlight("a.epub", "epubcfi(/6/2!/4,/1:0,/1:5)", "The WHITE whale", 0))
	require.NoError(t, err)
	withNote := highlight("a.epub", "epubcfi(/6/2!/6,/1:0,/1:5)", "Queequeg", 0).WithNote("reminds me of the whale")
	_, err = store.Save(ctx, withNote)
	require.NoError(t, err)
	_, err = store.Save(ctx, highlight("a.epub", "epubcfi(/6/2!/8,/1:0,/1:5)", "Ahab", 0))
	require.NoError(t, err)

	found, err := store.Search(ctx, "a.epub", "Whale")
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestAnnotationStore_SaveAllRollsBack(t *testing.T) {
	db := newTestDB(t)
	store := NewAnnotationStore(db)
	ctx := context.Background()

	require.NoError(t, db.GORM().Exec(
		`CREATE TRIGGER reject_bad BEFORE INSERT ON annotations WHEN NEW.text = 'bad' BEGIN SELECT RAISE(ABORT, 'rejected'); END`,
	).Error)

	_, err := store.SaveAll(ctx, []annotation.Annotation{
		highlight("a.epub", "epubcfi(/6/2!/4,/1:0,/1:5)", "good", 0),
		highlight("a.epub", "epubcfi(/6/2!/6,/1:0,/1:5)", "bad", 0),
	})
	require.Error(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAnnotationStore_Delete(t *testing.T) {
	store := NewAnnotationStore(newTestDB(t))
	ctx := context.Background()

	saved, err := store.Save(ctx, highlight("a.epub", "epubcfi(/6/2!/4,/1:0,/1:5)", "gone", 0))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, saved))

	_, err = store.FindOne(ctx, annotation.WithCFI(saved.CFI()))
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestPreferenceStore(t *testing.T) {
	store := NewPreferenceStore(newTestDB(t))
	ctx := context.Background()

	prefs, err := store.Load(ctx, "a.epub")
	require.NoError(t, err)
	assert.Equal(t, book.DefaultPreferences(), prefs)

	prefs.Toolbar.FontSize = 120
	prefs.Toolbar.Bionic = true
	prefs.Tags = "reading/fiction"
	require.NoError(t, store.Save(ctx, "a.epub", prefs))
	require.NoError(t, book.SaveLocation(ctx, store, "a.epub", "epubcfi(/6/4!/4/2/1:0)"))

	loaded, err := store.Load(ctx, "a.epub")
	require.NoError(t, err)
	assert.Equal(t, 120, loaded.Toolbar.FontSize)
	assert.Equal(t, book.DefaultFontFamily, loaded.Toolbar.FontFamily)
	assert.True(t, loaded.Toolbar.Bionic)
	assert.Equal(t, "epubcfi(/6/4!/4/2/1:0)", loaded.Location)
	assert.Equal(t, "reading/fiction", loaded.NoteTags("notes/booknotes"))

	require.NoError(t, store.Delete(ctx, "a.epub"))
	loaded, err = store.Load(ctx, "a.epub")
	require.NoError(t, err)
	assert.Equal(t, book.DefaultPreferences(), loaded)
}

func TestValidateSchema(t *testing.T) {
	assert.NoError(t, ValidateSchema(newTestDB(t)))
}

func ptr[T any](v T) *T { return &v }
