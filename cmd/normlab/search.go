package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/normlab/internal/app"
	"github.com/hyperjump/normlab/internal/cli"
	"github.com/hyperjump/normlab/internal/models"
)

func newSearchCmd(g *globalFlags) *cobra.Command {
	var (
		topK      int
		mode      string
		filters   []string
		serverURL string
	)
	cmd := &cobra.Command{
		Use:   "search [flags] <query>",
		Short: "Retrieve the chunks most relevant to a query",
		Long: `Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.

In vector mode (default) the query is embedded with the configured provider and matched
against the vector store; in text mode it is matched against the text index (BM25).
Filters restrict hits to those whose metadata value contains the given text.`,
		Example: `  normlab search beton dökümü
  normlab search --mode text --top-k 3 kalıp işçiliği
  normlab search --filter source=poz --filter project=tower-a rebar tying
  normlab search --server http://localhost:8090 rebar tying`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			queryStr := buildSearchQuery(args)
			if queryStr == "" {
				return errors.New("query must not be empty")
			}
			filterMap, err := parseFilters(filters)
			if err != nil {
				return err
			}
			query := &models.SearchQuery{Query: queryStr, TopK: topK, Mode: mode, Filters: filterMap}

			if serverURL != "" {
				// The server holds the index files; go through its API instead of opening them.
				hits, err := searchViaHTTP(cmd.Context(), serverURL, query)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				return cli.WriteHits(cmd.OutOrStdout(), hits, format)
			}
			return g.withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend, s *session) error {
				hits, err := b.Retriever.Run(ctx, query)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				return cli.WriteHits(cmd.OutOrStdout(), hits, format)
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (default from config)")
	cmd.Flags().StringVar(&mode, "mode", models.SearchModeVector, "retrieval mode: vector or text")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "metadata filter key=value (repeatable)")
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (empty = open the data directory directly)")
	return cmd
}

// parseFilters turns repeated key=value flags into a filter map.
func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q; use key=value", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func searchViaHTTP(ctx context.Context, serverURL string, query *models.SearchQuery) ([]models.SearchHit, error) {
	var out struct {
		Hits []models.SearchHit `json:"hits"`
	}
	if err := postJSON(ctx, serverURL+"/api/v1/search", query, &out); err != nil {
		return nil, err
	}
	return out.Hits, nil
}

func postJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, out)
}

func getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return doJSON(req, out)
}

func doJSON(req *http.Request, out any) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
