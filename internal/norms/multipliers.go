package norms

import (
	"strconv"
	"strings"

	"github.com/hyperjump/normlab/internal/config"
)

// heightCondition is the condition whose threshold rules (">3m") also match numeric heights.
const heightCondition = "height"

// Multiplier is one row of the condition table.
type Multiplier struct {
	Condition string
	Value     string
	Factor    float64

	threshold    float64
	hasThreshold bool
}

// Matches reports whether a request condition value triggers this multiplier.
// Values compare case-insensitively; a threshold rule like ">3m" also matches any numeric
// value above the threshold ("3.5", "4m").
func (m *Multiplier) Matches(value string) bool {
	v := normalizeValue(value)
	if v == normalizeValue(m.Value) {
		return true
	}
	if !m.hasThreshold {
		return false
	}
	n, ok := parseMeters(v)
	return ok && n > m.threshold
}

// MultiplierTable looks up condition multipliers.
type MultiplierTable struct {
	rows map[string][]*Multiplier
}

// NewMultiplierTable builds a table from config rows. Rows with a non-positive factor are ignored.
func NewMultiplierTable(rows []config.MultiplierConfig) *MultiplierTable {
	t := &MultiplierTable{rows: make(map[string][]*Multiplier)}
	for _, r := range rows {
		if r.Factor <= 0 {
			continue
		}
		cond := normalizeValue(r.Condition)
		m := &Multiplier{Condition: cond, Value: r.Value, Factor: r.Factor}
		if cond == heightCondition && strings.HasPrefix(strings.TrimSpace(r.Value), ">") {
			m.threshold, m.hasThreshold = parseMeters(strings.TrimPrefix(normalizeValue(r.Value), ">"))
		}
		t.rows[cond] = append(t.rows[cond], m)
	}
	return t
}

// Lookup returns the first multiplier for condition that matches value.
func (t *MultiplierTable) Lookup(condition, value string) (*Multiplier, bool) {
	for _, m := range t.rows[normalizeValue(condition)] {
		if m.Matches(value) {
			return m, true
		}
	}
	return nil, false
}

func normalizeValue(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseMeters parses "3", "3.5", "3m", "3,5 m".
func parseMeters(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "m"))
	s = strings.ReplaceAll(s, ",", ".")
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}
