// Package cli formats normlab results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/hyperjump/normlab/internal/app"
	"github.com/hyperjump/normlab/internal/models"
	"github.com/hyperjump/normlab/internal/norms"
	"github.com/hyperjump/normlab/internal/report"
	"github.com/hyperjump/normlab/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates s. An empty string selects OutputText.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return OutputText, nil
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteHits writes search hits to w in the given format.
func WriteHits(w io.Writer, hits []models.SearchHit, format OutputFormat) error {
	switch format {
	case OutputJSON:
		if hits == nil {
			hits = []models.SearchHit{}
		}
		return WriteJSON(w, map[string]any{"hits": hits, "count": len(hits)})
	case OutputCompact:
		for _, h := range hits {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", h.ID, h.Score, metaString(h.Meta, "source"), utils.TruncateWords(oneLine(h.Text), 16))
		}
		return nil
	default:
		writeHitsText(w, hits)
		return nil
	}
}

func writeHitsText(w io.Writer, hits []models.SearchHit) {
	fmt.Fprintf(w, "\nFound %d results\n\n", len(hits))
	for i, h := range hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | ID: %d\n", i+1, h.Score, h.ID)
		if src := metaString(h.Meta, "source"); src != "" {
			fmt.Fprintf(w, "Source: %s\n", src)
		}
		if title := metaString(h.Meta, "title"); title != "" {
			fmt.Fprintf(w, "Title: %s\n", title)
		}
		if heading := metaString(h.Meta, "heading"); heading != "" {
			fmt.Fprintf(w, "Heading: %s\n", heading)
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(h.Text, 200))
	}
}

// WriteResolution writes a labor-hour resolution for req.
func WriteResolution(w io.Writer, req norms.Request, res *norms.Resolution, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	if !res.Found {
		fmt.Fprintf(w, "no norm for %s (%s, %s); labor hours: 0\n", req.WorkItemKey, req.Unit, orDash(req.Locale))
		return nil
	}
	if format == OutputCompact {
		fmt.Fprintf(w, "%s\t%g\t%s\t%.2f\n", req.WorkItemKey, req.Quantity, res.Norm.Unit, res.LaborHours)
		return nil
	}
	fmt.Fprintf(w, "work item:    %s\n", req.WorkItemKey)
	fmt.Fprintf(w, "quantity:     %g %s\n", req.Quantity, res.Norm.Unit)
	fmt.Fprintf(w, "norm:         %s %s (%s)\n", res.Norm.Source, orDash(res.Norm.NormCode), orDash(res.Norm.Locale))
	if len(req.Conditions) > 0 {
		fmt.Fprintf(w, "conditions:   %s\n", FormatConditions(req.Conditions))
	}
	fmt.Fprintf(w, "base rate:    %g LH/%s\n", res.BaseRate, res.Norm.Unit)
	for _, a := range res.Applied {
		fmt.Fprintf(w, "  × %-6g %s=%s\n", a.Factor, a.Condition, a.Value)
	}
	fmt.Fprintf(w, "factor:       %.4f\n", res.Factor)
	fmt.Fprintf(w, "labor hours:  %.2f\n", res.LaborHours)
	return nil
}

// WriteVariance writes variance rows as an aligned table, one tab-separated line per row,
// or JSON.
func WriteVariance(w io.Writer, period string, rows []report.Row, format OutputFormat) error {
	switch format {
	case OutputJSON:
		if rows == nil {
			rows = []report.Row{}
		}
		return WriteJSON(w, map[string]any{"period": period, "rows": rows})
	case OutputCompact:
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\n", r.Period, r.WorkItemKey, r.Theoretical, r.Observed, r.Delta)
		}
		return nil
	}
	fmt.Fprintf(w, "period: %s\n\n", period)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "wbs_key\tqty\tunit\tLH_theo\tLH_actual\tdelta\tdelta_%\tproductivity\t")
	missing := 0
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%g\t%s\t%.2f\t%.2f\t%.2f\t%.1f\t%.3f\t\n",
			r.WorkItemKey, r.Quantity, r.Unit, r.Theoretical, r.Observed, r.Delta, r.DeltaPercent, r.Productivity)
		missing += r.Missing
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if missing > 0 {
		fmt.Fprintf(w, "\n%d quantity record(s) had no matching norm and count as 0 LH\n", missing)
	}
	return nil
}

// WriteStatus writes backend diagnostics.
func WriteStatus(w io.Writer, st *app.Status, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, st)
	}
	fmt.Fprintf(w, "documents:          %d   # count of ingested documents\n", st.Documents)
	fmt.Fprintf(w, "chunks:             %d   # count of text chunks\n", st.Chunks)
	fmt.Fprintf(w, "text_entries:       %d   # chunks in the text index\n", st.TextEntries)
	fmt.Fprintf(w, "vector_count:       %d   # vectors in the vector store\n", st.Vector.Count)
	fmt.Fprintf(w, "vector_dim:         %d\n", st.Vector.Dim)
	fmt.Fprintf(w, "next_id:            %d\n", st.Vector.NextID)
	fmt.Fprintf(w, "consistent:         %t\n", st.Consistent)
	if !st.Consistent {
		fmt.Fprintf(w, "  metadata_lines=%d index_size=%d count=%d\n", st.Vector.MetadataLines, st.Vector.IndexSize, st.Vector.Count)
	}
	if st.Disk != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database + indexes on disk\n", st.Disk.Total())
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	fmt.Fprintf(w, "embedding_provider: %s\n", st.Config.EmbeddingProvider)
	fmt.Fprintf(w, "vector_index_type:  %s\n", st.Config.VectorIndexType)
	fmt.Fprintf(w, "max_tokens:         %d\n", st.Config.MaxTokens)
	fmt.Fprintf(w, "default_top_k:      %d\n", st.Config.DefaultTopK)
	if st.Config.DatabasePath != "" {
		fmt.Fprintf(w, "database_path:      %s\n", st.Config.DatabasePath)
	}
	if st.Config.BleveIndexPath != "" {
		fmt.Fprintf(w, "bleve_index_path:   %s\n", st.Config.BleveIndexPath)
	}
	if st.Config.VectorDir != "" {
		fmt.Fprintf(w, "vector_dir:         %s\n", st.Config.VectorDir)
	}
	return nil
}

// ParseConditions parses "key=value" pairs into a condition map. Keys are lower-cased.
func ParseConditions(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.ToLower(strings.TrimSpace(k))
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid condition %q; use key=value", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// FormatConditions renders conditions as sorted "key=value" pairs.
func FormatConditions(conds map[string]string) string {
	keys := make([]string, 0, len(conds))
	for k := range conds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + conds[k]
	}
	return strings.Join(parts, ", ")
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
