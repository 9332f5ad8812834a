package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hyperjump/normlab/internal/app"
	"github.com/hyperjump/normlab/internal/cli"
	"github.com/hyperjump/normlab/internal/importer"
	"github.com/hyperjump/normlab/internal/norms"
)

func newResolveCmd(g *globalFlags) *cobra.Command {
	var (
		locale     string
		conditions []string
	)
	cmd := &cobra.Command{
		Use:   "resolve <work-item-key> <quantity> <unit>",
		Short: "Compute labor hours for a quantity of work from the best matching norm",
		Long: `Resolve picks the norm for the work item, unit, and locale with the highest source
priority (internal > poz > fer), the most recent one on ties, and multiplies its rate by
the quantity and by the configured factor of every matching site condition.
A missing norm is reported as 0 labor hours, not as an error.`,
		Example: `  normlab resolve CONC.BEAM 10 m3 --locale tr
  normlab resolve CONC.BEAM 10 m³ --locale tr --condition height='>3m' --condition weather=cold`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			qty, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[1], err)
			}
			conds, err := cli.ParseConditions(conditions)
			if err != nil {
				return err
			}
			req := norms.Request{WorkItemKey: args[0], Quantity: qty, Unit: args[2], Locale: locale, Conditions: conds}
			return g.withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend, s *session) error {
				res, err := b.Resolver.Resolve(ctx, req)
				if err != nil {
					return err
				}
				return cli.WriteResolution(cmd.OutOrStdout(), req, res, format)
			})
		},
	}
	cmd.Flags().StringVar(&locale, "locale", "", "norm locale, e.g. tr or ru")
	cmd.Flags().StringArrayVarP(&conditions, "condition", "c", nil, "site condition key=value (repeatable)")
	return cmd
}

func newImportCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <norms|quantities|observations> <file.xlsx|file.json>",
		Short: "Import norm records, BIM quantities, or site observations from a spreadsheet or JSON",
		Long: `Import reads the first sheet of an .xlsx workbook (header row, then one record per row)
or a JSON array of objects. Column names are matched case-insensitively, e.g. wbs_key,
qty, unit, locale, labor_hours_per_unit, source, date, hours, crew.
Rows that fail validation are skipped and logged.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := importer.ParseKind(args[0])
			if err != nil {
				return err
			}
			format, err := g.format()
			if err != nil {
				return err
			}
			return g.withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend, s *session) error {
				res, err := b.Importer.ImportFile(ctx, kind, args[1])
				if err != nil {
					return err
				}
				if format == cli.OutputJSON {
					return cli.WriteJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s, skipped %d\n", res.Imported, res.Kind, res.Skipped)
				return nil
			})
		},
	}
}

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <legacy.jsonl>",
		Short: "Import records from a legacy JSON-lines vector store",
		Long: `Migrate reads one JSON object per line with "text", "meta", and "embedding" fields and
appends every record that has an embedding to the vector store. Records without an
embedding are counted as skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			return g.withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend, s *session) error {
				res, err := b.Migrate(ctx, args[0])
				if err != nil {
					return err
				}
				if format == cli.OutputJSON {
					return cli.WriteJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrated %d record(s), skipped %d without embedding\n", res.Migrated, res.Skipped)
				return nil
			})
		},
	}
}
