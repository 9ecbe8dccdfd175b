package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/helixml/marginalia"
	"github.com/helixml/marginalia/internal/config"
	"github.com/helixml/marginalia/internal/log"
)

// clientOptions returns the marginalia.Option slice derived from AppConfig.
// Callers append entrypoint-specific options before passing the slice to
// marginalia.New.
func clientOptions(cfg config.AppConfig, logger *slog.Logger) []marginalia.Option {
	opts := storageOptions(cfg)
	opts = append(opts,
		marginalia.WithDataDir(cfg.DataDir()),
		marginalia.WithLogger(logger),
		marginalia.WithDebounceDelay(cfg.RestoreDebounce()),
		marginalia.WithRetryDelay(cfg.RestoreRetryDelay()),
		marginalia.WithCacheSize(cfg.CFICacheSize()),
		marginalia.WithNotesDir(cfg.NotesDir()),
		marginalia.WithNotesTags(cfg.NotesTags()),
		marginalia.WithFetchTimeout(cfg.FetchTimeout()),
	)
	if url := cfg.RedisURL(); url != "" {
		opts = append(opts, marginalia.WithRedis(url))
	}
	return opts
}

// storageOptions returns the option for the configured database backend.
func storageOptions(cfg config.AppConfig) []marginalia.Option {
	dbURL := cfg.DBURL()
	if dbURL == "" {
		return []marginalia.Option{marginalia.WithSQLite("")}
	}
	if isSQLite(dbURL) {
		dbPath := strings.TrimPrefix(dbURL, "sqlite:///")
		if dbPath == dbURL {
			dbPath = strings.TrimPrefix(dbURL, "sqlite:")
		}
		return []marginalia.Option{marginalia.WithSQLite(dbPath)}
	}
	return []marginalia.Option{marginalia.WithPostgres(dbURL)}
}

// isSQLite checks if the database URL is for SQLite.
func isSQLite(url string) bool {
	return strings.HasPrefix(url, "sqlite:")
}

// openClient loads configuration, prepares the data directory and opens a
// client. The returned cleanup closes the client and logs any failure.
func openClient(envFile string, overrides ...config.AppConfigOption) (*marginalia.Client, config.AppConfig, *slog.Logger, func(), error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, config.AppConfig{}, nil, nil, err
	}
	cfg = cfg.Apply(overrides...)

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, config.AppConfig{}, nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	slogger := log.NewLogger(cfg).Slog()
	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelDebug, "configuration loaded", attrs...)

	client, err := marginalia.New(clientOptions(cfg, slogger)...)
	if err != nil {
		return nil, config.AppConfig{}, nil, nil, fmt.Errorf("create marginalia client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			slogger.Error("failed to close marginalia client", slog.Any("error", err))
		}
	}
	return client, cfg, slogger, cleanup, nil
}
