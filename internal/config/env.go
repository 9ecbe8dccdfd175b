package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.marginalia
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/marginalia.db
	DBURL string `envconfig:"DB_URL"`

	// RedisURL moves reading preferences to Redis when set.
	// Env: REDIS_URL
	RedisURL string `envconfig:"REDIS_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// RestoreDebounceMS is the quiet period in milliseconds before the
	// highlights of a newly visited section are painted.
	// Env: RESTORE_DEBOUNCE_MS (default: 300)
	RestoreDebounceMS int `envconfig:"RESTORE_DEBOUNCE_MS" default:"300"`

	// RestoreRetryDelayMS is the wait in milliseconds before a failed mark
	// is attempted again.
	// Env: RESTORE_RETRY_DELAY_MS (default: 1000)
	RestoreRetryDelayMS int `envconfig:"RESTORE_RETRY_DELAY_MS" default:"1000"`

	// CFICacheSize is the number of parsed identifiers kept in memory.
	// Env: CFI_CACHE_SIZE (default: 1024)
	CFICacheSize int `envconfig:"CFI_CACHE_SIZE" default:"1024"`

	// NotesDir is where markdown notes are written.
	// Env: NOTES_DIR
	// Default: {data_dir}/notes
	NotesDir string `envconfig:"NOTES_DIR"`

	// NotesTags is the frontmatter tag list for new notes.
	// Env: NOTES_TAGS (default: notes/booknotes)
	NotesTags string `envconfig:"NOTES_TAGS" default:"notes/booknotes"`

	// FetchTimeoutSeconds bounds each stylesheet fetch.
	// Env: FETCH_TIMEOUT_SECONDS (default: 10)
	FetchTimeoutSeconds float64 `envconfig:"FETCH_TIMEOUT_SECONDS" default:"10"`

	// CORSOrigins is a comma-separated list of allowed origins.
	// Env: CORS_ORIGINS (default: *)
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "MARGINALIA" would require MARGINALIA_DATA_DIR instead of DATA_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.Host != "" {
		cfg = cfg.Apply(WithHost(e.Host))
	}
	if e.Port != 0 {
		cfg = cfg.Apply(WithPort(e.Port))
	}
	if e.DataDir != "" {
		cfg = cfg.Apply(WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		cfg = cfg.Apply(WithDBURL(e.DBURL))
	}
	if e.RedisURL != "" {
		cfg = cfg.Apply(WithRedisURL(e.RedisURL))
	}
	if e.LogLevel != "" {
		cfg = cfg.Apply(WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = cfg.Apply(WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	if e.NotesDir != "" {
		cfg = cfg.Apply(WithNotesDir(e.NotesDir))
	}
	if e.NotesTags != "" {
		cfg = cfg.Apply(WithNotesTags(e.NotesTags))
	}
	if e.CORSOrigins != "" {
		cfg = cfg.Apply(WithCORSOrigins(ParseList(e.CORSOrigins)))
	}

	return cfg.Apply(
		WithRestoreDebounce(time.Duration(e.RestoreDebounceMS)*time.Millisecond),
		WithRestoreRetryDelay(time.Duration(e.RestoreRetryDelayMS)*time.Millisecond),
		WithCFICacheSize(e.CFICacheSize),
		WithFetchTimeout(time.Duration(e.FetchTimeoutSeconds*float64(time.Second))),
	)
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
