package annotation

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_LegacyLayout(t *testing.T) {
	// A record as written by older versions: no optional fields, plus a key
	// this version does not know.
	raw := `[{"cfi":"epubcfi(/6/8!/4/2,/1:0,/1:10)","text":"Call me Ishmael.","chapter":"Loomings","createdAt":"2024-03-01T10:20:30.456Z","pinned":true}]`

	records, err := DecodeRecords(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, records, 1)

	a, err := records[0].ToAnnotation("moby.epub")
	require.NoError(t, err)
	assert.Equal(t, "moby.epub", a.Document())
	assert.Equal(t, "epubcfi(/6/8!/4/2,/1:0,/1:10)", a.CFI())
	assert.Equal(t, "Call me Ishmael.", a.Text())
	assert.Equal(t, "Loomings", a.Chapter())
	assert.Equal(t, time.Date(2024, 3, 1, 10, 20, 30, 456000000, time.UTC), a.CreatedAt().UTC())
	assert.False(t, a.Edited())
	assert.Empty(t, a.Tags())
}

func TestRecord_RoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)
	updated := created.Add(time.Hour)
	a := Reconstruct(4, "moby.epub", "epubcfi(/6/8!/4,/1:0,/1:4)", "Call", "Loomings", "first line",
		[]string{"opening"}, "red", created, updated)

	var buf bytes.Buffer
	require.NoError(t, EncodeRecords(&buf, ToRecords([]Annotation{a})))
	assert.Contains(t, buf.String(), `"comment": "first line"`)
	assert.Contains(t, buf.String(), `"updatedAt": "2024-03-01T11:20:30.000Z"`)

	records, err := DecodeRecords(&buf)
	require.NoError(t, err)
	got, err := records[0].ToAnnotation("moby.epub")
	require.NoError(t, err)

	assert.Equal(t, a.CFI(), got.CFI())
	assert.Equal(t, a.Note(), got.Note())
	assert.Equal(t, a.Tags(), got.Tags())
	assert.Equal(t, a.Color(), got.Color())
	assert.True(t, got.UpdatedAt().Equal(updated))
}

func TestRecord_Invalid(t *testing.T) {
	_, err := Record{Text: "x", CreatedAt: "2024-03-01T10:20:30Z"}.ToAnnotation("d")
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = Record{CFI: "epubcfi(/6)", CreatedAt: "yesterday"}.ToAnnotation("d")
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = Record{CFI: "epubcfi(/6)"}.ToAnnotation("d")
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestRecord_MalformedUpdatedAtDropped(t *testing.T) {
	a, err := Record{CFI: "epubcfi(/6)", CreatedAt: "2024-03-01T10:20:30Z", UpdatedAt: "later"}.ToAnnotation("d")
	require.NoError(t, err)
	assert.False(t, a.Edited())
}

func TestDecodeLibrary(t *testing.T) {
	raw := `{
		"scrolledView": false,
		"highlights": {
			"Books/moby.epub": [{"cfi":"epubcfi(/6/8)","text":"a","createdAt":"2024-03-01T10:20:30Z"}],
			"Books/emma.epub": []
		}
	}`

	lib, err := DecodeLibrary(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Len(t, lib.Highlights, 2)
	assert.Len(t, lib.Highlights["Books/moby.epub"], 1)

	empty, err := DecodeLibrary(strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.NotNil(t, empty.Highlights)
}

func TestEncodeRecords_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeRecords(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}
