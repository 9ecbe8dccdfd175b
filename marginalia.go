// Package marginalia provides a library for addressing, storing and
// restoring e-book highlights.
//
// Highlights are addressed with EPUB canonical fragment identifiers (CFIs).
// The rendering engine stays outside: it reports selections and location
// changes and paints the marks it is asked to paint.
//
// Basic usage:
//
//	client, err := marginalia.New(
//	    marginalia.WithSQLite(".marginalia/data.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Attach a rendering engine to a book
//	session, err := client.Open(ctx, "books/moby-dick.epub", engine)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	// Query stored highlights
//	highlights, err := client.Annotations.Section(ctx, "books/moby-dick.epub", location)
package marginalia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/helixml/marginalia/application/service"
	"github.com/helixml/marginalia/domain/book"
	"github.com/helixml/marginalia/domain/cfi"
	"github.com/helixml/marginalia/infrastructure/notes"
	"github.com/helixml/marginalia/infrastructure/persistence"
	"github.com/helixml/marginalia/infrastructure/preferences"
	"github.com/helixml/marginalia/infrastructure/sanitize"
	"github.com/helixml/marginalia/internal/config"
	"github.com/helixml/marginalia/internal/database"
)

// Client is the main entry point for the marginalia library.
//
// Access resources via struct fields:
//
//	client.Annotations.List(ctx, document)
//	client.Preferences.Load(ctx, document)
//	client.Notes.Append(ctx, document, highlight)
type Client struct {
	Annotations *service.Annotations
	Preferences book.PreferenceStore
	Notes       *notes.Exporter
	Sanitizer   *sanitize.Sanitizer

	db           database.Database
	comparator   *cfi.Comparator
	redis        *preferences.RedisStore
	closers      []io.Closer
	restoreDelay time.Duration
	retryDelay   time.Duration

	logger *slog.Logger
	closed atomic.Bool
	mu     sync.Mutex
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.database == databaseUnset {
		return nil, ErrNoDatabase
	}

	logger := cfg.logger
	if logger == nil {
		logger = config.DefaultLogger()
	}

	ctx := context.Background()
	dbURL, err := buildDatabaseURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("build database url: %w", err)
	}
	if err := database.EnsureSQLiteDir(dbURL); err != nil {
		return nil, err
	}

	db, err := database.NewDatabase(ctx, dbURL, database.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := persistence.AutoMigrate(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(err, errClose)
	}
	if err := persistence.ValidateSchema(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("validate schema: %w", err), errClose)
	}

	comparator, err := cfi.NewComparator(cfg.cacheSize)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(err, errClose)
	}

	var prefs book.PreferenceStore = persistence.NewPreferenceStore(db)
	var redisStore *preferences.RedisStore
	if cfg.redisURL != "" {
		redisStore, err = preferences.NewRedisStore(cfg.redisURL)
		if err != nil {
			errClose := db.Close()
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), errClose)
		}
		prefs = redisStore
		cfg.closers = append(cfg.closers, redisStore)
	}

	annotations := service.NewAnnotations(persistence.NewAnnotationStore(db), comparator, logger)

	noteOpts := []notes.Option{
		notes.WithTags(cfg.notesTags),
		notes.WithPreferences(prefs),
		notes.WithLogger(logger),
	}
	if cfg.notesDir != "" {
		noteOpts = append(noteOpts, notes.WithDir(cfg.notesDir))
	}
	if cfg.notesFs != nil {
		noteOpts = append(noteOpts, notes.WithFs(cfg.notesFs))
	}
	exporter, err := notes.NewExporter(annotations, noteOpts...)
	if err != nil {
		errClose := closeAll(db, cfg.closers)
		return nil, errors.Join(fmt.Errorf("create note exporter: %w", err), errClose)
	}

	fetcher := cfg.fetcher
	if fetcher == nil {
		fetcher = sanitize.NewHTTPFetcher(cfg.fetchTimeout)
	}

	client := &Client{
		Annotations:  annotations,
		Preferences:  prefs,
		Notes:        exporter,
		Sanitizer:    sanitize.New(sanitize.WithFetcher(fetcher), sanitize.WithLogger(logger)),
		db:           db,
		comparator:   comparator,
		redis:        redisStore,
		closers:      cfg.closers,
		restoreDelay: cfg.restoreDelay,
		retryDelay:   cfg.retryDelay,
		logger:       logger,
	}

	logger.Debug("marginalia client ready", slog.Bool("redis_preferences", redisStore != nil))
	return client, nil
}

// Open attaches a rendering engine to document and paints nothing until the
// engine reports a location. Sessions should be closed before the client.
func (c *Client) Open(ctx context.Context, document string, engine service.Engine, opts ...service.SessionOption) (*service.Session, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	defaults := []service.SessionOption{
		service.WithRestoreDelay(c.restoreDelay),
		service.WithRetryDelay(c.retryDelay),
		service.WithPreferences(c.Preferences),
		service.WithSessionLogger(c.logger),
	}
	return service.OpenSession(ctx, document, engine, c.Annotations, append(defaults, opts...)...)
}

// Comparator returns the identifier comparator shared by the client's services.
func (c *Client) Comparator() *cfi.Comparator {
	return c.comparator
}

// Check verifies the database schema and, when configured, the Redis connection.
func (c *Client) Check(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := c.db.Session(ctx).Exec("SELECT 1").Error; err != nil {
		return fmt.Errorf("query database: %w", err)
	}
	if err := persistence.ValidateSchema(c.db); err != nil {
		return fmt.Errorf("validate schema: %w", err)
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}
	return nil
}

// Close releases the database and any registered resources.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := closeAll(c.db, c.closers); err != nil {
		return err
	}

	c.logger.Info("marginalia client closed")
	return nil
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

func closeAll(db database.Database, closers []io.Closer) error {
	var errs []error
	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close resource: %w", err))
		}
	}
	if err := db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

func buildDatabaseURL(cfg *clientConfig) (string, error) {
	switch cfg.database {
	case databaseSQLite:
		path := cfg.dbPath
		if path == "" {
			path = filepath.Join(cfg.dataDir, config.DefaultDatabaseFile)
		}
		return "sqlite:///" + path, nil
	case databasePostgres, databaseURL:
		if cfg.dbURL == "" {
			return "", ErrNoDatabase
		}
		return cfg.dbURL, nil
	default:
		return "", ErrNoDatabase
	}
}
