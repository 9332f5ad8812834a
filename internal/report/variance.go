// Package report compares theoretical labor-hours from norms with observed site hours.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/models"
	"github.com/hyperjump/normlab/internal/norms"
	"github.com/hyperjump/normlab/pkg/utils"
)

// Source lists the site records of a window.
type Source interface {
	ListQuantities(ctx context.Context, from, to time.Time) ([]*models.Quantity, error)
	ListObservations(ctx context.Context, from, to time.Time) ([]*models.SiteObservation, error)
}

// Resolver turns a quantity into theoretical labor-hours.
type Resolver interface {
	Resolve(ctx context.Context, req norms.Request) (*norms.Resolution, error)
}

// Row is one work item of a variance report.
type Row struct {
	Period       string  `json:"period"`
	WorkItemKey  string  `json:"wbs_key"`
	Quantity     float64 `json:"qty"`
	Unit         string  `json:"unit"`
	Theoretical  float64 `json:"lh_theo"`
	Observed     float64 `json:"lh_actual"`
	Delta        float64 `json:"delta"`
	DeltaPercent float64 `json:"delta_pct"`
	Productivity float64 `json:"productivity"`
	// Missing counts quantities for which no norm was found.
	Missing int `json:"missing_norms,omitempty"`
}

// Reporter builds variance rows.
type Reporter struct {
	source   Source
	resolver Resolver
	logger   *zap.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reporter) { r.logger = l }
}

// New creates a Reporter.
func New(source Source, resolver Resolver, opts ...Option) *Reporter {
	r := &Reporter{source: source, resolver: resolver}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = utils.OrNop(r.logger)
	return r
}

// Period formats the window [from, to) as "YYYY-MM-DD/YYYY-MM-DD".
func Period(from, to time.Time) string {
	return from.Format(time.DateOnly) + "/" + to.Format(time.DateOnly)
}

// Variance returns one row per distinct work item with quantities or observations in [from, to),
// sorted by work item key.
func (r *Reporter) Variance(ctx context.Context, from, to time.Time) ([]Row, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: report window end must be after start", models.ErrValidation)
	}
	quantities, err := r.source.ListQuantities(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list quantities: %w", err)
	}
	observations, err := r.source.ListObservations(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}

	period := Period(from, to)
	rows := make(map[string]*Row)
	units := make(map[string][]string)
	row := func(key string) *Row {
		if rw, ok := rows[key]; ok {
			return rw
		}
		rw := &Row{Period: period, WorkItemKey: key}
		rows[key] = rw
		return rw
	}

	for _, q := range quantities {
		res, err := r.resolver.Resolve(ctx, norms.Request{
			WorkItemKey: q.WorkItemKey,
			Quantity:    q.Quantity,
			Unit:        q.Unit,
			Locale:      q.Locale,
			Conditions:  q.Conditions,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", q.WorkItemKey, err)
		}
		rw := row(q.WorkItemKey)
		rw.Quantity += q.Quantity
		rw.Theoretical += res.LaborHours
		if !res.Found {
			rw.Missing++
		}
		units[q.WorkItemKey] = appendUnique(units[q.WorkItemKey], models.NormalizeUnit(q.Unit))
	}
	for _, o := range observations {
		row(o.WorkItemKey).Observed += o.Hours
	}

	out := make([]Row, 0, len(rows))
	for key, rw := range rows {
		rw.Unit = strings.Join(units[key], "+")
		rw.Delta = rw.Observed - rw.Theoretical
		if rw.Theoretical != 0 {
			rw.DeltaPercent = rw.Delta / rw.Theoretical * 100
		}
		if rw.Observed != 0 {
			rw.Productivity = rw.Quantity / rw.Observed
		}
		out = append(out, *rw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkItemKey < out[j].WorkItemKey })

	r.logger.Debug("variance report",
		zap.String("period", period),
		zap.Int("quantities", len(quantities)),
		zap.Int("observations", len(observations)),
		zap.Int("rows", len(out)))
	return out, nil
}

func appendUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
