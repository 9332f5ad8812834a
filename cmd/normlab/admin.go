package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/normlab/internal/app"
	"github.com/hyperjump/normlab/internal/cli"
)

func newResetCmd(g *globalFlags) *cobra.Command {
	var reindex bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the vector store and the text index",
		Long: `Reset empties the vector store and the text index. Documents, chunks, norms, quantities,
and observations stay in the database; --reindex rebuilds both indexes from the stored
chunks right away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend, s *session) error {
				if err := b.Reset(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "indexes reset")
				if !reindex {
					return nil
				}
				n, err := b.Reindex(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reindexed %d document(s), %d vector(s)\n", n, b.Vectors.Count())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reindex, "reindex", false, "rebuild the indexes from the stored chunks")
	return cmd
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show document, chunk, and index counts, consistency, and disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			if serverURL != "" {
				st, err := statusViaHTTP(cmd.Context(), serverURL)
				if err != nil {
					return fmt.Errorf("status failed: %w", err)
				}
				return cli.WriteStatus(cmd.OutOrStdout(), st, format)
			}
			return g.withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend, s *session) error {
				st, err := b.Status(ctx)
				if err != nil {
					return err
				}
				return cli.WriteStatus(cmd.OutOrStdout(), st, format)
			})
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (empty = open the data directory directly)")
	return cmd
}

func statusViaHTTP(ctx context.Context, serverURL string) (*app.Status, error) {
	var st app.Status
	if err := getJSON(ctx, serverURL+"/api/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}
