// Package norms resolves work-breakdown quantities to stored norm records and derives
// effective labor-hours with condition multipliers.
package norms

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/config"
	"github.com/hyperjump/normlab/internal/models"
	"github.com/hyperjump/normlab/pkg/utils"
)

// Finder returns the norm records for a work item, unit, and locale.
type Finder interface {
	FindNorms(ctx context.Context, workItemKey, unit, locale string) ([]*models.NormRecord, error)
}

// Request is one resolution request.
type Request struct {
	WorkItemKey string            `json:"work_item_key"`
	Quantity    float64           `json:"quantity"`
	Unit        string            `json:"unit"`
	Locale      string            `json:"locale"`
	Conditions  map[string]string `json:"conditions,omitempty"`
}

// Applied records how one request condition affected the factor.
type Applied struct {
	Condition string  `json:"condition"`
	Value     string  `json:"value"`
	Factor    float64 `json:"factor"`
}

// Resolution is the outcome of Resolve. When Found is false LaborHours is 0.
type Resolution struct {
	LaborHours float64            `json:"labor_hours"`
	BaseRate   float64            `json:"base_rate"`
	Factor     float64            `json:"factor"`
	Applied    []Applied          `json:"applied"`
	Norm       *models.NormRecord `json:"norm,omitempty"`
	Found      bool               `json:"found"`
}

// Resolver maps work items to norm records.
type Resolver struct {
	finder Finder
	table  *MultiplierTable
	logger *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for "norm not found" warnings.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver over finder with the given multiplier rows.
// An empty table falls back to config.DefaultMultipliers.
func NewResolver(finder Finder, multipliers []config.MultiplierConfig, opts ...Option) *Resolver {
	if len(multipliers) == 0 {
		multipliers = config.DefaultMultipliers()
	}
	r := &Resolver{finder: finder, table: NewMultiplierTable(multipliers)}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = utils.OrNop(r.logger)
	return r
}

// LaborHours resolves without conditions and returns only the hours.
func (r *Resolver) LaborHours(ctx context.Context, workItemKey string, quantity float64, unit, locale string) (float64, error) {
	res, err := r.Resolve(ctx, Request{WorkItemKey: workItemKey, Quantity: quantity, Unit: unit, Locale: locale})
	if err != nil {
		return 0, err
	}
	return res.LaborHours, nil
}

// Resolve picks the best norm for the request and returns quantity × base rate × factor.
// A missing norm is not an error: the resolution has Found=false and a warning is logged.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	if strings.TrimSpace(req.WorkItemKey) == "" {
		return nil, fmt.Errorf("%w: work item key is required", models.ErrValidation)
	}
	if req.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", models.ErrValidation)
	}
	unit := models.NormalizeUnit(req.Unit)
	locale := strings.ToLower(strings.TrimSpace(req.Locale))

	candidates, err := r.finder.FindNorms(ctx, req.WorkItemKey, unit, locale)
	if err != nil {
		return nil, fmt.Errorf("failed to find norms: %w", err)
	}
	norm := Select(candidates)
	if norm == nil {
		r.logger.Warn("norm not found",
			zap.String("work_item_key", req.WorkItemKey),
			zap.String("unit", unit),
			zap.String("locale", locale))
		return &Resolution{Factor: 1, Applied: []Applied{}}, nil
	}

	factor, applied := r.Adjust(req.Conditions)
	return &Resolution{
		LaborHours: req.Quantity * (norm.LaborHoursPerUnit * factor),
		BaseRate:   norm.LaborHoursPerUnit,
		Factor:     factor,
		Applied:    applied,
		Norm:       norm,
		Found:      true,
	}, nil
}

// Adjust returns the compounded multiplier for conditions. Unmatched conditions contribute
// 1.0 and are not listed. Applied is sorted by condition name; the product is independent
// of order.
func (r *Resolver) Adjust(conditions map[string]string) (float64, []Applied) {
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	factor := 1.0
	applied := []Applied{}
	for _, cond := range keys {
		value := conditions[cond]
		m, ok := r.table.Lookup(cond, value)
		if !ok {
			continue
		}
		factor *= m.Factor
		applied = append(applied, Applied{Condition: m.Condition, Value: value, Factor: m.Factor})
	}
	return factor, applied
}

// Select returns the preferred norm: highest source priority (internal > poz > fer > other),
// then the most recently updated. It returns nil for an empty slice.
func Select(candidates []*models.NormRecord) *models.NormRecord {
	var best *models.NormRecord
	for _, n := range candidates {
		if n == nil {
			continue
		}
		if best == nil || better(n, best) {
			best = n
		}
	}
	return best
}

func better(a, b *models.NormRecord) bool {
	if pa, pb := a.Priority(), b.Priority(); pa != pb {
		return pa > pb
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}
