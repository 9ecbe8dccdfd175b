// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 8080
	DefaultLogLevel          = "INFO"
	DefaultRestoreDebounce   = 300 * time.Millisecond
	DefaultRestoreRetryDelay = time.Second
	DefaultCFICacheSize      = 1024
	DefaultNotesTags         = "notes/booknotes"
	DefaultNotesSubdir       = "notes"
	DefaultFetchTimeout      = 10 * time.Second
	DefaultDatabaseFile      = "marginalia.db"
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// AppConfig holds the main application configuration.
type AppConfig struct {
	host              string
	port              int
	dataDir           string
	dbURL             string
	redisURL          string
	logLevel          string
	logFormat         LogFormat
	restoreDebounce   time.Duration
	restoreRetryDelay time.Duration
	cfiCacheSize      int
	notesDir          string
	notesTags         string
	fetchTimeout      time.Duration
	corsOrigins       []string
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".marginalia"
	}
	return filepath.Join(home, ".marginalia")
}

// DefaultDBURL returns the SQLite URL used when no database is configured.
func DefaultDBURL(dataDir string) string {
	return "sqlite:///" + filepath.Join(dataDir, DefaultDatabaseFile)
}

// DefaultLogger returns the default slog logger for library consumers.
func DefaultLogger() *slog.Logger {
	return slog.Default()
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:              DefaultHost,
		port:              DefaultPort,
		dataDir:           dataDir,
		dbURL:             DefaultDBURL(dataDir),
		logLevel:          DefaultLogLevel,
		logFormat:         LogFormatPretty,
		restoreDebounce:   DefaultRestoreDebounce,
		restoreRetryDelay: DefaultRestoreRetryDelay,
		cfiCacheSize:      DefaultCFICacheSize,
		notesTags:         DefaultNotesTags,
		fetchTimeout:      DefaultFetchTimeout,
		corsOrigins:       []string{"*"},
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// RedisURL returns the Redis URL for preferences, or empty when preferences
// live in the database.
func (c AppConfig) RedisURL() string { return c.redisURL }

// LogLevel returns the log verbosity level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log output format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// RestoreDebounce returns the quiet period before a section is restored.
func (c AppConfig) RestoreDebounce() time.Duration { return c.restoreDebounce }

// RestoreRetryDelay returns the wait before a failed mark is retried.
func (c AppConfig) RestoreRetryDelay() time.Duration { return c.restoreRetryDelay }

// CFICacheSize returns the parsed identifier cache capacity.
func (c AppConfig) CFICacheSize() int { return c.cfiCacheSize }

// NotesDir returns the directory for markdown notes. Defaults to
// {dataDir}/notes.
func (c AppConfig) NotesDir() string {
	if c.notesDir != "" {
		return c.notesDir
	}
	return filepath.Join(c.dataDir, DefaultNotesSubdir)
}

// NotesTags returns the frontmatter tags for new notes.
func (c AppConfig) NotesTags() string { return c.notesTags }

// FetchTimeout returns the stylesheet fetch timeout.
func (c AppConfig) FetchTimeout() time.Duration { return c.fetchTimeout }

// CORSOrigins returns the allowed CORS origins.
func (c AppConfig) CORSOrigins() []string {
	return slices.Clone(c.corsOrigins)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory. The database URL follows it unless it
// was set explicitly.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		if c.dbURL == DefaultDBURL(c.dataDir) {
			c.dbURL = DefaultDBURL(dir)
		}
		c.dataDir = dir
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithRedisURL sets the Redis URL for preferences.
func WithRedisURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.redisURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithRestoreDebounce sets the restore quiet period. Non-positive values are ignored.
func WithRestoreDebounce(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.restoreDebounce = d
		}
	}
}

// WithRestoreRetryDelay sets the mark retry delay. Non-positive values are ignored.
func WithRestoreRetryDelay(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.restoreRetryDelay = d
		}
	}
}

// WithCFICacheSize sets the identifier cache size. Non-positive values are ignored.
func WithCFICacheSize(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.cfiCacheSize = n
		}
	}
}

// WithNotesDir sets the notes directory.
func WithNotesDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.notesDir = dir }
}

// WithNotesTags sets the default note tags.
func WithNotesTags(tags string) AppConfigOption {
	return func(c *AppConfig) { c.notesTags = tags }
}

// WithFetchTimeout sets the stylesheet fetch timeout. Non-positive values are ignored.
func WithFetchTimeout(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) AppConfigOption {
	return func(c *AppConfig) {
		c.corsOrigins = slices.Clone(origins)
	}
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// Credentials in connection URLs are masked.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", maskURL(c.dbURL)),
		slog.String("redis_url", maskURL(c.redisURL)),
		slog.String("notes_dir", c.NotesDir()),
		slog.Duration("restore_debounce", c.restoreDebounce),
		slog.Duration("restore_retry_delay", c.restoreRetryDelay),
		slog.Int("cfi_cache_size", c.cfiCacheSize),
		slog.Int("cors_origins_count", len(c.corsOrigins)),
	}
}

func maskURL(raw string) string {
	if raw == "" {
		return "(not configured)"
	}
	if strings.HasPrefix(raw, "sqlite:") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User("***")
	return u.String()
}

// ParseList parses a comma-separated string, dropping blank entries.
func ParseList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
