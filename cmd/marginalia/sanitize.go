package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/spf13/cobra"
)

func sanitizeCmd() *cobra.Command {
	var (
		envFile string
		base    string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "sanitize [file]",
		Short: "Strip scripts and inline stylesheets of an HTML chapter",
		Long: `Read an HTML chapter from a file, or stdin when no file is given, remove
scripts, inline linked stylesheets and drop blob: URLs from style attributes.
Relative stylesheet links resolve against --base, which defaults to the
file's own location.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			client, _, _, cleanup, err := openClient(envFile)
			if err != nil {
				return err
			}
			defer cleanup()

			in, closeIn, err := openInput(args)
			if err != nil {
				return err
			}
			defer closeIn()

			contentType := ""
			if len(args) == 1 && args[0] != "-" {
				contentType = mime.TypeByExtension(filepath.Ext(args[0]))
				if base == "" {
					abs, err := filepath.Abs(args[0])
					if err == nil {
						base = "file://" + filepath.ToSlash(abs)
					}
				}
			}

			html, report, err := client.Sanitizer.Sanitize(cmd.Context(), in, base, contentType)
			if err != nil {
				return err
			}

			out, closeOut, err := openOutput(outputFs, cmd.OutOrStdout(), output)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeOut()) }()
			if _, err := io.WriteString(out, html); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "scripts removed %d, stylesheets inlined %d (failed %d), imports %d, styles stripped %d\n",
				report.ScriptsRemoved, report.StylesheetsInlined, report.StylesheetsFailed, report.ImportsResolved, report.StylesStripped)
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&base, "base", "", "Base URL for relative stylesheet links")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")

	return cmd
}
