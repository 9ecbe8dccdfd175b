package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	var (
		envFile string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the database and Redis are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cfg, _, cleanup, err := openClient(envFile)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := client.Check(ctx); err != nil {
				return fmt.Errorf("check failed: %w", err)
			}

			documents, err := client.Annotations.Documents(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "ok: data dir %s\n", cfg.DataDir())
			_, _ = fmt.Fprintf(out, "ok: %d books with highlights\n", len(documents))
			if cfg.RedisURL() != "" {
				_, _ = fmt.Fprintln(out, "ok: redis reachable")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up after this long")

	return cmd
}
