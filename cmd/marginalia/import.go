package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/helixml/marginalia"
	"github.com/helixml/marginalia/domain/annotation"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	var (
		envFile  string
		document string
	)

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import highlights from JSON",
		Long: `Import highlights from a JSON file, or stdin when no file is given.

With --document the input is an array of records for that book. Without it
the input is a settings file whose "highlights" object maps book paths to
record arrays. Identifiers already stored are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeIn, err := openInput(args)
			if err != nil {
				return err
			}
			defer closeIn()
			return runImport(cmd.Context(), cmd.OutOrStdout(), envFile, document, in)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&document, "document", "", "Book path the records belong to")

	return cmd
}

func runImport(ctx context.Context, out io.Writer, envFile, document string, in io.Reader) error {
	client, _, slogger, cleanup, err := openClient(envFile)
	if err != nil {
		return err
	}
	defer cleanup()

	library, err := readLibrary(in, document)
	if err != nil {
		return err
	}
	return importLibrary(ctx, client, library, out, slogger)
}

func readLibrary(in io.Reader, document string) (annotation.Library, error) {
	if document == "" {
		return annotation.DecodeLibrary(in)
	}
	records, err := annotation.DecodeRecords(in)
	if err != nil {
		return annotation.Library{}, err
	}
	return annotation.Library{Highlights: map[string][]annotation.Record{document: records}}, nil
}

func importLibrary(ctx context.Context, client *marginalia.Client, library annotation.Library, out io.Writer, logger *slog.Logger) error {
	var errs []error
	for document, records := range library.Highlights {
		result, err := client.Annotations.Import(ctx, document, records)
		if err != nil {
			logger.Error("import failed", slog.String("document", document), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("import %s: %w", document, err))
			continue
		}
		_, _ = fmt.Fprintf(out, "%s: imported %d, skipped %d, invalid %d\n",
			document, result.Imported, result.Skipped, result.Invalid)
	}
	return errors.Join(errs...)
}

// openInput opens the named file, or stdin when args is empty or "-".
func openInput(args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", args[0], err)
	}
	return f, func() { _ = f.Close() }, nil
}
