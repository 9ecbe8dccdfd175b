package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helixml/marginalia/infrastructure/api"
	"github.com/helixml/marginalia/internal/config"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                     Server host to bind to (default: 0.0.0.0)
  PORT                     Server port to listen on (default: 8080)
  DATA_DIR                 Data directory (default: ~/.marginalia)
  DB_URL                   Database URL (default: sqlite:///{data_dir}/marginalia.db)
  REDIS_URL                Keep reading preferences in Redis
  LOG_LEVEL                Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT               Log format: pretty, json (default: pretty)
  RESTORE_DEBOUNCE_MS      Quiet period before painting a section (default: 300)
  RESTORE_RETRY_DELAY_MS   Wait before repainting a failed highlight (default: 1000)
  CFI_CACHE_SIZE           Parsed identifiers kept in memory (default: 1024)
  NOTES_DIR                Markdown notes directory (default: {data_dir}/notes)
  NOTES_TAGS               Frontmatter tags of new notes (default: notes/booknotes)
  FETCH_TIMEOUT_SECONDS    Stylesheet fetch timeout (default: 10)
  CORS_ORIGINS             Comma-separated allowed origins (default: *)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(envFile, host string, port int) error {
	client, cfg, slogger, cleanup, err := openClient(envFile, serveOverrides(host, port)...)
	if err != nil {
		return err
	}
	defer cleanup()

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting marginalia", attrs...)

	apiServer := api.NewAPIServer(client, version, cfg.CORSOrigins())
	router := apiServer.Router()
	apiServer.MountRoutes()

	router.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"name":"marginalia","version":%q}`, version)
	})

	server := api.NewServer(cfg.Addr(), cfg.CORSOrigins(), slogger)
	server.Router().Mount("/", router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slogger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// serveOverrides converts command line flags to config overrides.
func serveOverrides(host string, port int) []config.AppConfigOption {
	var opts []config.AppConfigOption
	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}
	return opts
}
