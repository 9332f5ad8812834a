package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperjump/normlab/internal/app"
	"github.com/hyperjump/normlab/internal/cli"
	"github.com/hyperjump/normlab/internal/report"
)

func newReportCmd(g *globalFlags) *cobra.Command {
	var (
		from, to string
		format   string
		outPath  string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Compare theoretical and observed labor hours per work item for a period",
		Long: `Report sums, per work item, the labor hours resolved from the quantities recorded in
[from, to) and the hours observed on site in the same window, with the delta, the delta
as a percentage of the theoretical hours, and the productivity (quantity per observed hour).

--format csv and xlsx write the report file (semicolon-separated CSV, or a workbook with
one "variance" sheet); text and json print it.`,
		Example: `  normlab report --from 2024-03-01 --to 2024-04-01
  normlab report --from 2024-03-01 --to 2024-04-01 --format xlsx --out march.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := time.Parse(time.DateOnly, from)
			if err != nil {
				return fmt.Errorf("--from must be YYYY-MM-DD: %w", err)
			}
			end, err := time.Parse(time.DateOnly, to)
			if err != nil {
				return fmt.Errorf("--to must be YYYY-MM-DD: %w", err)
			}
			if format == "" {
				format = g.output
			}
			if format == "xlsx" && outPath == "" {
				return errors.New("--out is required for xlsx")
			}
			return g.withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend, s *session) error {
				rows, err := b.Reporter.Variance(ctx, start, end)
				if err != nil {
					return err
				}
				return writeReport(cmd.OutOrStdout(), outPath, report.Period(start, end), rows, format)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start of the period, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "end of the period, exclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&format, "format", "", "csv, xlsx, text, compact, or json (default: --output)")
	cmd.Flags().StringVar(&outPath, "out", "", "write the report to this file instead of stdout")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func writeReport(stdout io.Writer, outPath, period string, rows []report.Row, format string) (err error) {
	w := stdout
	if outPath != "" {
		f, createErr := os.Create(outPath)
		if createErr != nil {
			return fmt.Errorf("failed to create report file: %w", createErr)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	switch format {
	case "csv":
		err = report.WriteCSV(w, rows)
	case "xlsx":
		err = report.WriteXLSX(w, rows)
	default:
		var of cli.OutputFormat
		if of, err = cli.ParseOutputFormat(format); err != nil {
			return fmt.Errorf("unknown report format %q; use csv, xlsx, text, compact, or json", format)
		}
		err = cli.WriteVariance(w, period, rows, of)
	}
	if err != nil {
		return err
	}
	if outPath != "" {
		fmt.Fprintf(stdout, "wrote %d row(s) to %s\n", len(rows), outPath)
	}
	return nil
}
