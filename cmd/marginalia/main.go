// Package main is the entry point for the marginalia CLI.
package main

import (
	"fmt"
	"os"

	"github.com/helixml/marginalia/internal/config"
	"github.com/spf13/cobra"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marginalia",
		Short: "Marginalia highlight server",
		Long: `Marginalia stores EPUB highlights addressed by fragment identifiers, serves
them over HTTP and MCP, and exports them to markdown notes.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(stdioCmd())
	cmd.AddCommand(importCmd())
	cmd.AddCommand(exportCmd())
	cmd.AddCommand(checkCmd())
	cmd.AddCommand(sanitizeCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from .env file and environment variables.
func loadConfig(envFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
