// Package log provides structured logging with request and document context.
//
// Logs go to stderr: the stdio MCP transport owns stdout.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/helixml/marginalia/internal/config"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// Context keys picked up by every record logged with a context.
const (
	CorrelationIDKey ContextKey = "correlation_id"
	RequestIDKey     ContextKey = "request_id"
	DocumentKey      ContextKey = "document"
)

var contextKeys = []ContextKey{CorrelationIDKey, RequestIDKey, DocumentKey}

// Logger owns the configured handler and the slog.Logger built on it.
type Logger struct {
	level  *slog.LevelVar
	logger *slog.Logger
}

// NewLogger creates a Logger writing to stderr as configured.
func NewLogger(cfg config.AppConfig) *Logger {
	_, noColor := os.LookupEnv("NO_COLOR")
	return newLogger(os.Stderr, cfg.LogFormat(), cfg.LogLevel(), !noColor)
}

// NewLoggerWithWriter creates an uncoloured Logger writing to w.
func NewLoggerWithWriter(w io.Writer, format config.LogFormat, level string) *Logger {
	return newLogger(w, format, level, false)
}

func newLogger(w io.Writer, format config.LogFormat, level string, color bool) *Logger {
	lvl := &slog.LevelVar{}
	lvl.Set(ParseLevel(level))

	var handler slog.Handler
	switch format {
	case config.LogFormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		handler = newTerminalHandler(w, lvl, color)
	}

	return &Logger{
		level:  lvl,
		logger: slog.New(contextHandler{handler}),
	}
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger { return l.logger }

// SetLevel changes the level of this logger and everything derived from it.
func (l *Logger) SetLevel(level string) { l.level.Set(ParseLevel(level)) }

// SetDefault installs the logger as the slog default.
func (l *Logger) SetDefault() { slog.SetDefault(l.logger) }

// Configure builds a logger from cfg, installs it as the default and returns it.
func Configure(cfg config.AppConfig) *Logger {
	l := NewLogger(cfg)
	l.SetDefault()
	return l
}

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// WithDocument adds the document being worked on to the context.
func WithDocument(ctx context.Context, document string) context.Context {
	return context.WithValue(ctx, DocumentKey, document)
}

// CorrelationID extracts the correlation ID from context.
func CorrelationID(ctx context.Context) string { return value(ctx, CorrelationIDKey) }

// RequestID extracts the request ID from context.
func RequestID(ctx context.Context) string { return value(ctx, RequestIDKey) }

// Document extracts the document from context.
func Document(ctx context.Context) string { return value(ctx, DocumentKey) }

func value(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key).(string)
	return id
}

// contextHandler copies the known context values onto each record.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, key := range contextKeys {
		if v := value(ctx, key); v != "" {
			r.AddAttrs(slog.String(string(key), v))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
