// Package sanitize prepares e-book content documents for display: it removes
// scripts, inlines linked stylesheets and drops inline styles that point at
// blob URLs which cannot outlive the page that created them.
package sanitize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"
)

// InlinedFromAttr marks a style element that replaced a stylesheet link.
const InlinedFromAttr = "data-inlined-from"

const maxConcurrentImports = 8

var importPattern = regexp.MustCompile(`@import\s+url\(([^)]+)\)\s*[^;]*;|@import\s+['"]([^"']+)['"];?`)

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithInlineStylesheets toggles stylesheet inlining.
func WithInlineStylesheets(enabled bool) Option {
	return func(s *Sanitizer) { s.inlineStylesheets = enabled }
}

// WithRemoveScripts toggles script removal.
func WithRemoveScripts(enabled bool) Option {
	return func(s *Sanitizer) { s.removeScripts = enabled }
}

// WithStripBlobURLs toggles removal of inline styles referencing blob URLs.
func WithStripBlobURLs(enabled bool) Option {
	return func(s *Sanitizer) { s.stripBlobURLs = enabled }
}

// WithFetcher sets how stylesheets are retrieved.
func WithFetcher(f Fetcher) Option {
	return func(s *Sanitizer) { s.fetcher = f }
}

// WithLogger sets the logger for fetch warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sanitizer) { s.logger = l }
}

// Sanitizer rewrites HTML documents. All steps are enabled by default.
type Sanitizer struct {
	inlineStylesheets bool
	removeScripts     bool
	stripBlobURLs     bool
	fetcher           Fetcher
	logger            *slog.Logger
}

// New creates a Sanitizer.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{
		inlineStylesheets: true,
		removeScripts:     true,
		stripBlobURLs:     true,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fetcher == nil {
		s.fetcher = NewHTTPFetcher(DefaultFetchTimeout)
	}
	return s
}

// Report summarises what a pass changed.
type Report struct {
	ScriptsRemoved     int `json:"scriptsRemoved"`
	StylesheetsInlined int `json:"stylesheetsInlined"`
	StylesheetsFailed  int `json:"stylesheetsFailed"`
	ImportsResolved    int `json:"importsResolved"`
	StylesStripped     int `json:"stylesStripped"`
}

// Sanitize reads an HTML document, rewrites it and returns the result.
// Relative stylesheet links resolve against base. contentType is used to
// pick the input charset and may be empty.
func (s *Sanitizer) Sanitize(ctx context.Context, r io.Reader, base, contentType string) (string, Report, error) {
	decoded, err := charset.NewReader(r, contentType)
	if err != nil {
		return "", Report{}, fmt.Errorf("detect charset: %w", err)
	}
	doc, err := html.Parse(decoded)
	if err != nil {
		return "", Report{}, fmt.Errorf("parse html: %w", err)
	}

	report := s.SanitizeNode(ctx, doc, base)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", Report{}, fmt.Errorf("render html: %w", err)
	}
	return buf.String(), report, nil
}

// SanitizeNode rewrites a parsed document in place. Fetch failures are
// logged and counted; they never abort the pass.
func (s *Sanitizer) SanitizeNode(ctx context.Context, doc *html.Node, base string) Report {
	var report Report

	if s.removeScripts {
		for _, n := range collect(doc, isScript) {
			n.Parent.RemoveChild(n)
			report.ScriptsRemoved++
		}
	}

	if s.inlineStylesheets {
		for _, link := range collect(doc, isStylesheetLink) {
			s.inline(ctx, link, base, &report)
		}
	}

	if s.stripBlobURLs {
		for _, n := range collect(doc, hasStyleAttr) {
			if stripStyleAttr(n) {
				report.StylesStripped++
			}
		}
	}

	return report
}

func (s *Sanitizer) inline(ctx context.Context, link *html.Node, base string, report *Report) {
	href := resolve(base, attr(link, "href"))

	placeholder := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr:     []html.Attribute{{Key: InlinedFromAttr, Val: href}},
	}
	link.Parent.InsertBefore(placeholder, link)
	link.Parent.RemoveChild(link)

	css, err := s.fetcher.Fetch(ctx, href)
	if err != nil {
		s.logger.Warn("failed to inline stylesheet",
			slog.String("href", href),
			slog.String("error", err.Error()),
		)
		report.StylesheetsFailed++
		return
	}

	resolved, imports := s.resolveImports(ctx, css, href)
	report.ImportsResolved += imports
	report.StylesheetsInlined++
	placeholder.AppendChild(&html.Node{Type: html.TextNode, Data: resolved})
}

// resolveImports replaces one level of @import rules with the imported text.
// Imports that cannot be fetched are left in place.
func (s *Sanitizer) resolveImports(ctx context.Context, css, baseHref string) (string, int) {
	matches := importPattern.FindAllStringSubmatchIndex(css, -1)
	if len(matches) == 0 {
		return css, 0
	}

	type replacement struct {
		start, end int
		content    string
	}

	var (
		mu           sync.Mutex
		replacements []replacement
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentImports)
	for _, m := range matches {
		raw := submatch(css, m, 1)
		if raw == "" {
			raw = submatch(css, m, 2)
		}
		raw = strings.Trim(strings.TrimSpace(raw), `"'`)
		target := resolve(baseHref, raw)
		start, end := m[0], m[1]

		g.Go(func() error {
			imported, err := s.fetcher.Fetch(gctx, target)
			if err != nil {
				s.logger.Warn("failed to resolve stylesheet import",
					slog.String("href", target),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			replacements = append(replacements, replacement{start: start, end: end, content: imported})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(replacements, func(a, b replacement) int { return b.start - a.start })
	for _, r := range replacements {
		css = css[:r.start] + r.content + css[r.end:]
	}
	return css, len(replacements)
}

func submatch(s string, m []int, group int) string {
	if m[2*group] < 0 {
		return ""
	}
	return s[m[2*group]:m[2*group+1]]
}

func resolve(base, ref string) string {
	if base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func stripStyleAttr(n *html.Node) bool {
	for i, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		cleaned, changed := stripBlobURLs(a.Val)
		if !changed {
			return false
		}
		if cleaned == "" {
			n.Attr = slices.Delete(n.Attr, i, i+1)
		} else {
			n.Attr[i].Val = cleaned
		}
		return true
	}
	return false
}

func collect(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isScript(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Script
}

func isStylesheetLink(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.Link || attr(n, "href") == "" {
		return false
	}
	for _, rel := range strings.Fields(strings.ToLower(attr(n, "rel"))) {
		if rel == "stylesheet" {
			return true
		}
	}
	return false
}

func hasStyleAttr(n *html.Node) bool {
	return n.Type == html.ElementNode && attr(n, "style") != ""
}
