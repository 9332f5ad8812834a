package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/models"
	"github.com/hyperjump/normlab/pkg/utils"
)

// Kind names the record type of an import file.
type Kind string

const (
	KindNorms        Kind = "norms"
	KindQuantities   Kind = "quantities"
	KindObservations Kind = "observations"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindNorms, KindQuantities, KindObservations:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown import kind %q", models.ErrValidation, s)
	}
}

// RecordStore persists imported records.
type RecordStore interface {
	UpsertNorm(ctx context.Context, norm *models.NormRecord) error
	CreateQuantity(ctx context.Context, q *models.Quantity) error
	CreateObservation(ctx context.Context, obs *models.SiteObservation) error
}

// Result counts imported rows and rows skipped as invalid.
type Result struct {
	Kind     Kind `json:"kind"`
	Imported int  `json:"imported"`
	Skipped  int  `json:"skipped"`
}

// Importer loads norm, quantity, and observation rows from .xlsx or .json files.
type Importer struct {
	store  RecordStore
	logger *zap.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Importer) { i.logger = l }
}

// New creates an Importer.
func New(store RecordStore, opts ...Option) *Importer {
	i := &Importer{store: store}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = utils.OrNop(i.logger)
	return i
}

// ImportFile reads path by extension: .xlsx uses the first sheet with a header row, .json an
// array of objects. Rows missing required fields are skipped and logged; storage errors abort.
func (i *Importer) ImportFile(ctx context.Context, kind Kind, path string) (*Result, error) {
	var (
		rows []row
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		rows, err = readXLSX(path)
	case ".json":
		rows, err = readJSON(path)
	default:
		return nil, fmt.Errorf("%w: unsupported import format %q", models.ErrValidation, ext)
	}
	if err != nil {
		return nil, err
	}
	return i.ImportRows(ctx, kind, rows)
}

// ImportRows stores already-parsed rows. Keys are matched case-insensitively.
func (i *Importer) ImportRows(ctx context.Context, kind Kind, rows []map[string]any) (*Result, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	res := &Result{Kind: kind}
	for n, raw := range rows {
		save, err := prepare(i.store, kind, normalizeRow(raw))
		if err != nil {
			if !errors.Is(err, models.ErrValidation) {
				return nil, err
			}
			res.Skipped++
			i.logger.Warn("skipping import row",
				zap.String("kind", string(kind)),
				zap.Int("row", n+1),
				zap.Error(err))
			continue
		}
		if err := save(ctx); err != nil {
			return res, fmt.Errorf("failed to import %s row %d: %w", kind, n+1, err)
		}
		res.Imported++
	}
	i.logger.Info("import finished",
		zap.String("kind", string(kind)),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// prepare parses one row and returns the write that stores it.
func prepare(store RecordStore, kind Kind, f fields) (func(context.Context) error, error) {
	switch kind {
	case KindNorms:
		norm, err := f.norm()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error { return store.UpsertNorm(ctx, norm) }, nil
	case KindQuantities:
		q, err := f.quantity()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error { return store.CreateQuantity(ctx, q) }, nil
	case KindObservations:
		o, err := f.observation()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error { return store.CreateObservation(ctx, o) }, nil
	default:
		return nil, fmt.Errorf("unknown import kind %q", kind)
	}
}

func readJSON(path string) ([]row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var rows []row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: %s is not a JSON array of objects: %v", models.ErrValidation, path, err)
	}
	return rows, nil
}

func readXLSX(path string) ([]row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	cells, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(cells) == 0 {
		return nil, nil
	}
	header := make([]string, len(cells[0]))
	for c, h := range cells[0] {
		header[c] = normalizeKey(h)
	}
	var rows []row
	for _, line := range cells[1:] {
		r := row{}
		blank := true
		for c, v := range line {
			if c >= len(header) || header[c] == "" {
				continue
			}
			if strings.TrimSpace(v) != "" {
				blank = false
			}
			r[header[c]] = v
		}
		if !blank {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// row is one imported record keyed by normalized column name.
type row = map[string]any

type fields map[string]any

// Column aliases accepted in headers.
var aliases = map[string]string{
	"wbs_key":     "work_item_key",
	"wbs":         "work_item_key",
	"rate":        "labor_hours_per_unit",
	"lh_per_unit": "labor_hours_per_unit",
	"quantity":    "qty",
	"labor_hours": "hours",
	"recorded":    "recorded_at",
	"updated":     "updated_at",
	"observed_at": "date",
	"element":     "element_id",
	"norm_source": "source",
	"code":        "norm_code",
	"work_item":   "work_item_key",
	"country":     "locale",
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	if a, ok := aliases[k]; ok {
		return a
	}
	return k
}

func normalizeRow(r row) fields {
	out := make(fields, len(r))
	for k, v := range r {
		out[normalizeKey(k)] = v
	}
	return out
}

func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (f fields) required(key string) (string, error) {
	s := f.str(key)
	if s == "" {
		return "", fmt.Errorf("%w: %s is required", models.ErrValidation, key)
	}
	return s, nil
}

func (f fields) number(key string) (float64, error) {
	if v, ok := f[key].(float64); ok {
		return v, nil
	}
	s, err := f.required(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", models.ErrValidation, key, s)
	}
	return n, nil
}

// date accepts RFC 3339, YYYY-MM-DD, or an Excel serial date. Empty yields the zero time.
func (f fields) date(key string) (time.Time, error) {
	if v, ok := f[key].(float64); ok {
		return excelize.ExcelDateToTime(v, false)
	}
	s := f.str(key)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		return excelize.ExcelDateToTime(serial, false)
	}
	return time.Time{}, fmt.Errorf("%w: %s %q is not a date", models.ErrValidation, key, s)
}

// conditions accepts a JSON object or "key=value; key=value" text.
func (f fields) conditions() map[string]string {
	switch v := f["conditions"].(type) {
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[strings.TrimSpace(k)] = strings.TrimSpace(fmt.Sprint(val))
		}
		return out
	case string:
		out := map[string]string{}
		for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ';' || r == ',' }) {
			k, val, ok := strings.Cut(part, "=")
			if !ok || strings.TrimSpace(k) == "" {
				continue
			}
			out[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

func (f fields) norm() (*models.NormRecord, error) {
	key, err := f.required("work_item_key")
	if err != nil {
		return nil, err
	}
	unit, err := f.required("unit")
	if err != nil {
		return nil, err
	}
	rate, err := f.number("labor_hours_per_unit")
	if err != nil {
		return nil, err
	}
	if rate < 0 {
		return nil, fmt.Errorf("%w: labor_hours_per_unit must not be negative", models.ErrValidation)
	}
	updated, err := f.date("updated_at")
	if err != nil {
		return nil, err
	}
	return &models.NormRecord{
		ID:                f.str("id"),
		WorkItemKey:       key,
		Unit:              unit,
		Locale:            f.str("locale"),
		LaborHoursPerUnit: rate,
		Source:            f.str("source"),
		NormCode:          f.str("norm_code"),
		Conditions:        f.conditions(),
		UpdatedAt:         updated,
	}, nil
}

func (f fields) quantity() (*models.Quantity, error) {
	key, err := f.required("work_item_key")
	if err != nil {
		return nil, err
	}
	qty, err := f.number("qty")
	if err != nil {
		return nil, err
	}
	unit, err := f.required("unit")
	if err != nil {
		return nil, err
	}
	recorded, err := f.date("recorded_at")
	if err != nil {
		return nil, err
	}
	return &models.Quantity{
		ID:          f.str("id"),
		WorkItemKey: key,
		Quantity:    qty,
		Unit:        unit,
		Locale:      f.str("locale"),
		ElementID:   f.str("element_id"),
		Level:       f.str("level"),
		Conditions:  f.conditions(),
		RecordedAt:  recorded,
	}, nil
}

func (f fields) observation() (*models.SiteObservation, error) {
	key, err := f.required("work_item_key")
	if err != nil {
		return nil, err
	}
	hours, err := f.number("hours")
	if err != nil {
		return nil, err
	}
	date, err := f.date("date")
	if err != nil {
		return nil, err
	}
	return &models.SiteObservation{
		ID:          f.str("id"),
		WorkItemKey: key,
		Date:        date,
		Hours:       hours,
		Crew:        f.str("crew"),
		Note:        f.str("note"),
	}, nil
}
