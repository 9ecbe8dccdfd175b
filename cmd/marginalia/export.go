package main

import (
	"context"
	"encoding/json"
	"fmt"
	"errors"
	"io"

	"github.com/helixml/marginalia"
	"github.com/helixml/marginalia/domain/annotation"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// outputFs is where -o files are written.
var outputFs = afero.NewOsFs()

func exportCmd() *cobra.Command {
	var (
		envFile  string
		document string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export highlights as JSON",
		Long: `Export highlights as JSON, newest first.

With --document the output is the record array of that book. Without it the
output is a settings file holding every book, which "import" reads back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, _, cleanup, err := openClient(envFile)
			if err != nil {
				return err
			}
			defer cleanup()

			return exportTo(cmd.Context(), client, document, outputFs, cmd.OutOrStdout(), output)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&document, "document", "", "Export only this book")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

// exportTo writes the export to path on fs, or to stdout. A failure to close
// the file is reported like a failed write.
func exportTo(ctx context.Context, client *marginalia.Client, document string, fs afero.Fs, stdout io.Writer, path string) (err error) {
	out, closeOut, err := openOutput(fs, stdout, path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeOut()) }()
	return runExport(ctx, client, document, out)
}

func runExport(ctx context.Context, client *marginalia.Client, document string, out io.Writer) error {
	if document != "" {
		records, err := client.Annotations.Export(ctx, document)
		if err != nil {
			return err
		}
		return annotation.EncodeRecords(out, records)
	}

	library, err := client.Annotations.ExportLibrary(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(library); err != nil {
		return fmt.Errorf("encode library: %w", err)
	}
	return nil
}

// openOutput creates path on fs, or returns stdout when path is empty or "-".
// The close function returns the error of closing the file.
func openOutput(fs afero.Fs, stdout io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := fs.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, func() error {
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", path, err)
		}
		return nil
	}, nil
}
