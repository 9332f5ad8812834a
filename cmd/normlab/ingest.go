package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/app"
	"github.com/hyperjump/normlab/internal/cli"
	"github.com/hyperjump/normlab/internal/indexer"
	"github.com/hyperjump/normlab/internal/models"
)

type ingestFlags struct {
	source   string
	title    string
	country  string
	language string
	docType  string
	project  string
}

// fileMeta overlays the flags on the configured defaults.
func (f *ingestFlags) fileMeta(base indexer.FileMeta) indexer.FileMeta {
	if f.country != "" {
		base.Country = f.country
	}
	if f.language != "" {
		base.Language = f.language
	}
	if f.docType != "" {
		base.DocType = f.docType
	}
	base.Title = f.title
	base.Project = f.project
	return base
}

func newIngestCmd(g *globalFlags) *cobra.Command {
	f := &ingestFlags{}
	cmd := &cobra.Command{
		Use:   "ingest <file-or-directory | ->",
		Short: "Ingest and index a file, every supported file under a directory, or stdin",
		Long: `Ingest extracts text from .pdf, .docx, .xlsx, .txt, and .md files, chunks it along
headings, annotates each chunk (work types, FER/Poz codes, unit, locale), stores it, and
indexes it for retrieval. Files that were already ingested are skipped.

Use "-" to read plain text from stdin; --source is then required.`,
		Example: `  normlab ingest ./norms/fer-06.pdf --country ru --language ru --doc-type fer
  normlab ingest ./inbox
  cat poz.txt | normlab ingest - --source poz-2024 --country tr --language tr`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			return g.withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend, s *session) error {
				var results []*indexer.Result
				switch path := args[0]; path {
				case "-":
					res, err := ingestReader(ctx, b, cmd.InOrStdin(), f)
					if err != nil {
						return err
					}
					results = append(results, res)
				default:
					results, err = ingestPath(ctx, b, path, f.fileMeta(b.FileMeta()), s.logger)
					if err != nil {
						return err
					}
				}
				return writeIngestResults(cmd.OutOrStdout(), results, format)
			})
		},
	}
	cmd.Flags().StringVar(&f.source, "source", "", "source identifier (required for stdin; files use a key derived from the path)")
	cmd.Flags().StringVar(&f.title, "title", "", "document title (default: file name)")
	cmd.Flags().StringVar(&f.country, "country", "", "country code, e.g. tr or ru (default from config)")
	cmd.Flags().StringVar(&f.language, "language", "", "language code, e.g. tr, ru, en (default from config)")
	cmd.Flags().StringVar(&f.docType, "doc-type", "", "document type (default from config)")
	cmd.Flags().StringVar(&f.project, "project", "", "project the document belongs to")
	return cmd
}

func ingestReader(ctx context.Context, b *app.Backend, r io.Reader, f *ingestFlags) (*indexer.Result, error) {
	if f.source == "" {
		return nil, errors.New("--source is required when reading stdin")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	meta := f.fileMeta(b.FileMeta())
	return b.Pipeline.IngestAndIndex(ctx, &models.DocumentInput{
		Source:   f.source,
		Country:  meta.Country,
		DocType:  meta.DocType,
		Title:    meta.Title,
		Language: meta.Language,
		Project:  meta.Project,
		Content:  string(data),
	})
}

// ingestPath ingests one file, or every supported file under a directory. Per-file failures
// in a directory are logged and skipped.
func ingestPath(ctx context.Context, b *app.Backend, path string, meta indexer.FileMeta, logger *zap.Logger) ([]*indexer.Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		res, err := b.Pipeline.IngestFileAndIndex(ctx, path, meta)
		if err != nil {
			return nil, err
		}
		return []*indexer.Result{res}, nil
	}
	// A directory holds many documents; a fixed title would apply to all of them.
	meta.Title = ""
	var results []*indexer.Result
	err = indexer.WalkFiles(path, func(p string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := b.Pipeline.IngestFileAndIndex(ctx, p, meta)
		if err != nil {
			logger.Warn("ingest file failed", zap.String("path", p), zap.Error(err))
			return nil
		}
		results = append(results, res)
		return nil
	})
	if err != nil {
		return results, fmt.Errorf("failed to walk directory: %w", err)
	}
	return results, nil
}

func writeIngestResults(w io.Writer, results []*indexer.Result, format cli.OutputFormat) error {
	if format == cli.OutputJSON {
		if results == nil {
			results = []*indexer.Result{}
		}
		return cli.WriteJSON(w, map[string]any{"documents": results})
	}
	ingested, skipped := 0, 0
	for _, r := range results {
		if r.Skipped {
			skipped++
			if format == cli.OutputText {
				fmt.Fprintf(w, "skipped %s (already ingested)\n", r.DocumentID)
			}
			continue
		}
		ingested++
		fmt.Fprintf(w, "ingested %s: %d chunk(s), %d vector(s)\n", r.DocumentID, r.Chunks, len(r.VectorIDs))
	}
	if format == cli.OutputText && len(results) != 1 {
		fmt.Fprintf(w, "%d document(s) ingested, %d skipped\n", ingested, skipped)
	}
	return nil
}
