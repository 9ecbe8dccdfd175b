package main

import (
	"log/slog"

	"github.com/helixml/marginalia/internal/mcp"
	"github.com/spf13/cobra"
)

func stdioCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Start MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

This lets AI assistants list, search and compare stored highlights.
Logs go to stderr; stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStdio(envFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")

	return cmd
}

func runStdio(envFile string) error {
	client, cfg, slogger, cleanup, err := openClient(envFile)
	if err != nil {
		return err
	}
	defer cleanup()

	slogger.Info("starting MCP server",
		slog.String("version", version),
		slog.String("data_dir", cfg.DataDir()),
	)

	mcpServer := mcp.NewServer(client.Annotations, client.Comparator(), version, slogger)
	return mcpServer.ServeStdio()
}
