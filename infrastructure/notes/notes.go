// Package notes appends highlights to a Markdown note kept next to each book.
package notes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/domain/book"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultTags       = "notes/booknotes"
	DefaultLinkLabel  = "Back to passage"
	DefaultDateLayout = "Mon Jan 02 2006 15:04:05 GMT-0700"
	HighlightsHeading = "## Highlights"
	DeepLinkScheme    = "obsidian://enhanced-reader"
)

const blockTemplate = `- [{{ .Date }}] 
  > {{ .Text | replace "\n" "\\n" }}
  >{{ if .Chapter }} — {{ .Chapter }}{{ end }}
  >
  > [{{ .LinkLabel }}]({{ .Link }})
`

// Saver persists a highlight before it is written to a note. It reports
// whether the highlight was new.
type Saver interface {
	Save(ctx context.Context, document string, a annotation.Annotation) (annotation.Annotation, bool, error)
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithDir writes notes into dir instead of the book's folder.
func WithDir(dir string) Option {
	return func(e *Exporter) { e.dir = dir }
}

// WithTags sets the frontmatter tags used when a book has none of its own.
func WithTags(tags string) Option {
	return func(e *Exporter) { e.tags = tags }
}

// WithLinkLabel sets the text of the deep link.
func WithLinkLabel(label string) Option {
	return func(e *Exporter) { e.linkLabel = label }
}

// WithFs sets the filesystem notes are written to.
func WithFs(fs afero.Fs) Option {
	return func(e *Exporter) { e.fs = fs }
}

// WithPreferences reads per-book tags from store.
func WithPreferences(store book.PreferenceStore) Option {
	return func(e *Exporter) { e.prefs = store }
}

// WithClock sets the time source for note dates.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// Exporter writes highlights into per-book Markdown notes.
type Exporter struct {
	saver     Saver
	prefs     book.PreferenceStore
	fs        afero.Fs
	dir       string
	tags      string
	linkLabel string
	now       func() time.Time
	logger    *slog.Logger
	block     *template.Template

	mu sync.Mutex
}

// NewExporter creates an Exporter. Highlights are saved through saver before
// they are written.
func NewExporter(saver Saver, opts ...Option) (*Exporter, error) {
	e := &Exporter{
		saver:     saver,
		fs:        afero.NewOsFs(),
		tags:      DefaultTags,
		linkLabel: DefaultLinkLabel,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	tmpl, err := template.New("highlight").
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(blockTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse highlight template: %w", err)
	}
	e.block = tmpl
	return e, nil
}

// NotePath returns where the note for document lives.
func (e *Exporter) NotePath(document string) string {
	dir := e.dir
	if dir == "" {
		dir = path.Dir(document)
	}
	return path.Join(dir, basename(document)+".md")
}

// DeepLink returns the link that reopens document at identifier.
func DeepLink(document, identifier string) string {
	return DeepLinkScheme + "?file=" + url.QueryEscape(document) + "&cfi=" + url.QueryEscape(identifier)
}

// Append saves a highlight and inserts it at the top of the note's
// highlights section, creating the note or the section when missing. It
// returns the saved highlight and the note path.
func (e *Exporter) Append(ctx context.Context, document string, a annotation.Annotation) (annotation.Annotation, string, error) {
	if e.saver != nil {
		saved, _, err := e.saver.Save(ctx, document, a)
		if err != nil {
			return annotation.Annotation{}, "", fmt.Errorf("save highlight: %w", err)
		}
		a = saved
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	notePath := e.NotePath(document)
	content, err := e.ensureNote(ctx, document, notePath)
	if err != nil {
		return annotation.Annotation{}, "", err
	}

	block, err := e.renderBlock(document, a)
	if err != nil {
		return annotation.Annotation{}, "", err
	}

	var updated string
	if strings.Contains(content, HighlightsHeading) {
		updated = strings.Replace(content, HighlightsHeading, HighlightsHeading+"\n"+block, 1)
	} else {
		updated = content + "\n\n" + HighlightsHeading + "\n" + block
	}

	if err := afero.WriteFile(e.fs, notePath, []byte(updated), 0o644); err != nil {
		return annotation.Annotation{}, "", fmt.Errorf("write note: %w", err)
	}

	e.logger.Info("highlight appended to note",
		slog.String("document", document),
		slog.String("note", notePath),
		slog.String("cfi", a.CFI()),
	)
	return a, notePath, nil
}

func (e *Exporter) ensureNote(ctx context.Context, document, notePath string) (string, error) {
	data, err := afero.ReadFile(e.fs, notePath)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read note: %w", err)
	}

	header, err := e.header(ctx, document)
	if err != nil {
		return "", err
	}
	if err := e.fs.MkdirAll(path.Dir(notePath), 0o755); err != nil {
		return "", fmt.Errorf("create note directory: %w", err)
	}
	if err := afero.WriteFile(e.fs, notePath, []byte(header), 0o644); err != nil {
		return "", fmt.Errorf("create note: %w", err)
	}
	return header, nil
}

type frontmatter struct {
	Tags string `yaml:"Tags"`
	Date string `yaml:"Date"`
}

// header renders the frontmatter and title of a new note.
func (e *Exporter) header(ctx context.Context, document string) (string, error) {
	tags := e.tags
	if e.prefs != nil {
		prefs, err := e.prefs.Load(ctx, document)
		if err != nil {
			e.logger.Warn("failed to load book tags",
				slog.String("document", document),
				slog.String("error", err.Error()),
			)
		} else {
			tags = prefs.NoteTags(e.tags)
		}
	}

	fm, err := yaml.Marshal(frontmatter{Tags: tags, Date: e.now().Format(DefaultDateLayout)})
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n# ")
	b.WriteString(basename(document))
	b.WriteString("\n")
	return b.String(), nil
}

func (e *Exporter) renderBlock(document string, a annotation.Annotation) (string, error) {
	var buf bytes.Buffer
	err := e.block.Execute(&buf, map[string]any{
		"Date":      e.now().Format(DefaultDateLayout),
		"Text":      a.Text(),
		"Chapter":   a.Chapter(),
		"LinkLabel": e.linkLabel,
		"Link":      DeepLink(document, a.CFI()),
	})
	if err != nil {
		return "", fmt.Errorf("render highlight: %w", err)
	}
	return buf.String(), nil
}

func basename(document string) string {
	base := path.Base(document)
	return strings.TrimSuffix(base, path.Ext(base))
}
