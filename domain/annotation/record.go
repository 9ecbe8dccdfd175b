package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrInvalidRecord indicates a persisted record that cannot be restored.
var ErrInvalidRecord = errors.New("invalid annotation record")

// Record is the persisted JSON layout of one highlight. Key names match the
// reader's settings file so existing libraries import unchanged.
type Record struct {
	CFI       string   `json:"cfi"`
	Text      string   `json:"text"`
	Chapter   string   `json:"chapter,omitempty"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
	Comment   string   `json:"comment,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Color     string   `json:"color,omitempty"`
}

// ToRecord converts an annotation to its persisted layout.
func ToRecord(a Annotation) Record {
	r := Record{
		CFI:       a.CFI(),
		Text:      a.Text(),
		Chapter:   a.Chapter(),
		CreatedAt: formatTime(a.CreatedAt()),
		Comment:   a.Note(),
		Tags:      a.Tags(),
		Color:     a.Color(),
	}
	if a.Edited() {
		r.UpdatedAt = formatTime(a.UpdatedAt())
	}
	return r
}

// ToAnnotation restores an annotation for document. The identifier must be
// non-empty and createdAt must parse; updatedAt is dropped when malformed.
func (r Record) ToAnnotation(document string) (Annotation, error) {
	if r.CFI == "" {
		return Annotation{}, fmt.Errorf("%w: missing cfi", ErrInvalidRecord)
	}
	if r.CreatedAt == "" {
		return Annotation{}, fmt.Errorf("%w: missing createdAt", ErrInvalidRecord)
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return Annotation{}, fmt.Errorf("%w: createdAt: %v", ErrInvalidRecord, err)
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		updated = time.Time{}
	}
	return Reconstruct(0, document, r.CFI, r.Text, r.Chapter, r.Comment, r.Tags, r.Color, created, updated), nil
}

// ToRecords converts annotations to records, preserving order.
func ToRecords(items []Annotation) []Record {
	records := make([]Record, len(items))
	for i, a := range items {
		records[i] = ToRecord(a)
	}
	return records
}

// Library is the settings-file shape: document path to its records.
type Library struct {
	Highlights map[string][]Record `json:"highlights"`
}

// DecodeRecords reads a JSON array of records.
func DecodeRecords(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

// DecodeLibrary reads a settings file holding highlights for many documents.
// Other settings keys are ignored.
func DecodeLibrary(r io.Reader) (Library, error) {
	var lib Library
	if err := json.NewDecoder(r).Decode(&lib); err != nil {
		return Library{}, fmt.Errorf("decode library: %w", err)
	}
	if lib.Highlights == nil {
		lib.Highlights = map[string][]Record{}
	}
	return lib, nil
}

// EncodeRecords writes records as an indented JSON array.
func EncodeRecords(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
