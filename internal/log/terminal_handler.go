package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
)

// TerminalHandler writes one human-readable line per record:
//
//	15:04:05.000 INF highlight saved document=moby-dick.epub cfi=epubcfi(/6/4!/4/2)
//
// Colour is optional; with it off the output is plain text.
type TerminalHandler struct {
	out    io.Writer
	level  slog.Leveler
	color  bool
	prefix []byte
	groups []string
	mu     *sync.Mutex
}

func newTerminalHandler(w io.Writer, level slog.Leveler, color bool) *TerminalHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &TerminalHandler{out: w, level: level, color: color, mu: &sync.Mutex{}}
}

// Enabled reports whether records at level are written.
func (h *TerminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle writes the record.
func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.Grow(160)

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.paint(&buf, ansiDim, ts.Format("15:04:05.000"))
	buf.WriteByte(' ')
	color, label := levelStyle(r.Level)
	h.paint(&buf, color, label)
	buf.WriteByte(' ')
	h.paint(&buf, ansiBold, r.Message)

	buf.Write(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&buf, a, h.groups)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

// WithAttrs pre-renders attrs so they are not formatted on every record.
func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf bytes.Buffer
	buf.Write(h.prefix)
	for _, a := range attrs {
		h.appendAttr(&buf, a, h.groups)
	}
	clone := *h
	clone.prefix = buf.Bytes()
	return &clone
}

// WithGroup qualifies subsequent attribute keys with name.
func (h *TerminalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clone(h.groups), name)
	return &clone
}

func (h *TerminalHandler) paint(buf *bytes.Buffer, color, s string) {
	if !h.color {
		buf.WriteString(s)
		return
	}
	buf.WriteString(color)
	buf.WriteString(s)
	buf.WriteString(ansiReset)
}

func (h *TerminalHandler) appendAttr(buf *bytes.Buffer, a slog.Attr, groups []string) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		prefix := groups
		if a.Key != "" {
			prefix = append(slices.Clone(groups), a.Key)
		}
		for _, ga := range a.Value.Group() {
			h.appendAttr(buf, ga, prefix)
		}
		return
	}

	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	buf.WriteByte(' ')
	h.paint(buf, ansiDim, key+"=")

	value := formatAttrValue(a.Value)
	switch a.Key {
	case "document", "cfi":
		h.paint(buf, ansiBlue, value)
	case "error":
		h.paint(buf, ansiRed, value)
	default:
		buf.WriteString(value)
	}
}

func levelStyle(level slog.Level) (string, string) {
	switch {
	case level < slog.LevelInfo:
		return ansiCyan, "DBG"
	case level < slog.LevelWarn:
		return ansiGreen, "INF"
	case level < slog.LevelError:
		return ansiYellow, "WRN"
	default:
		return ansiRed, "ERR"
	}
}

func formatAttrValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"\\=") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return v.String()
	}
}
