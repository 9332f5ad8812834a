package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/normlab/internal/models"
	"github.com/hyperjump/normlab/internal/norms"
)

type memSource struct {
	quantities   []*models.Quantity
	observations []*models.SiteObservation
	err          error
}

func (m *memSource) ListQuantities(_ context.Context, from, to time.Time) ([]*models.Quantity, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Quantity
	for _, q := range m.quantities {
		if !q.RecordedAt.Before(from) && q.RecordedAt.Before(to) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *memSource) ListObservations(_ context.Context, from, to time.Time) ([]*models.SiteObservation, error) {
	var out []*models.SiteObservation
	for _, o := range m.observations {
		if !o.Date.Before(from) && o.Date.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

type normList []*models.NormRecord

func (n normList) FindNorms(_ context.Context, key, unit, locale string) ([]*models.NormRecord, error) {
	var out []*models.NormRecord
	for _, r := range n {
		if r.WorkItemKey == key && r.Unit == unit && r.Locale == locale {
			out = append(out, r)
		}
	}
	return out, nil
}

var (
	march = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	april = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
)

func newTestReporter(src Source) *Reporter {
	resolver := norms.NewResolver(normList{
		{WorkItemKey: "CONC.BEAM", Unit: "m3", Locale: "tr", LaborHoursPerUnit: 0.5, Source: models.SourcePoz, UpdatedAt: march},
		{WorkItemKey: "REBAR", Unit: "kg", Locale: "tr", LaborHoursPerUnit: 0.02, Source: models.SourceFER, UpdatedAt: march},
	}, nil)
	return New(src, resolver)
}

func TestVariance(t *testing.T) {
	src := &memSource{
		quantities: []*models.Quantity{
			{WorkItemKey: "CONC.BEAM", Quantity: 6, Unit: "m3", Locale: "tr", RecordedAt: march.Add(24 * time.Hour)},
			{WorkItemKey: "CONC.BEAM", Quantity: 4, Unit: "m³", Locale: "tr", RecordedAt: march.Add(48 * time.Hour)},
			{WorkItemKey: "PLASTER", Quantity: 30, Unit: "m2", Locale: "tr", RecordedAt: march},
			{WorkItemKey: "CONC.BEAM", Quantity: 100, Unit: "m3", Locale: "tr", RecordedAt: april},
		},
		observations: []*models.SiteObservation{
			{WorkItemKey: "CONC.BEAM", Hours: 2.5, Date: march.Add(24 * time.Hour)},
			{WorkItemKey: "CONC.BEAM", Hours: 3.5, Date: march.Add(72 * time.Hour)},
			{WorkItemKey: "CLEANUP", Hours: 4, Date: march.Add(96 * time.Hour)},
		},
	}

	rows, err := newTestReporter(src).Variance(context.Background(), march, april)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "CLEANUP", rows[0].WorkItemKey)
	assert.Zero(t, rows[0].Theoretical)
	assert.InDelta(t, 4.0, rows[0].Delta, 1e-9)
	assert.Zero(t, rows[0].DeltaPercent)
	assert.Zero(t, rows[0].Productivity)

	beam := rows[1]
	assert.Equal(t, "2024-03-01/2024-04-01", beam.Period)
	assert.Equal(t, "CONC.BEAM", beam.WorkItemKey)
	assert.Equal(t, "m3", beam.Unit)
	assert.InDelta(t, 10.0, beam.Quantity, 1e-9)
	assert.InDelta(t, 5.0, beam.Theoretical, 1e-9)
	assert.InDelta(t, 6.0, beam.Observed, 1e-9)
	assert.InDelta(t, 1.0, beam.Delta, 1e-9)
	assert.InDelta(t, 20.0, beam.DeltaPercent, 1e-9)
	assert.InDelta(t, 10.0/6.0, beam.Productivity, 1e-9)
	assert.Zero(t, beam.Missing)

	plaster := rows[2]
	assert.Equal(t, 1, plaster.Missing)
	assert.Zero(t, plaster.Theoretical)
	assert.Zero(t, plaster.Observed)
	assert.Zero(t, plaster.Productivity)
}

func TestVariance_appliesConditions(t *testing.T) {
	src := &memSource{quantities: []*models.Quantity{{
		WorkItemKey: "CONC.BEAM",
		Quantity:    10,
		Unit:        "m3",
		Locale:      "tr",
		Conditions:  map[string]string{"height": ">3m", "weather": "cold"},
		RecordedAt:  march,
	}}}
	rows, err := newTestReporter(src).Variance(context.Background(), march, april)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 6.9, rows[0].Theoretical, 1e-9)
}

func TestVariance_emptyWindow(t *testing.T) {
	rows, err := newTestReporter(&memSource{}).Variance(context.Background(), march, april)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestVariance_invalidWindow(t *testing.T) {
	_, err := newTestReporter(&memSource{}).Variance(context.Background(), april, march)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestVariance_sourceError(t *testing.T) {
	_, err := newTestReporter(&memSource{err: models.StorageError("list", errors.New("disk"))}).
		Variance(context.Background(), march, april)
	assert.ErrorIs(t, err, models.ErrStorage)
}

func TestWriteCSV(t *testing.T) {
	rows := []Row{{
		Period:       "2024-03-01/2024-04-01",
		WorkItemKey:  "CONC.BEAM",
		Quantity:     10,
		Unit:         "m3",
		Theoretical:  5,
		Observed:     6,
		Delta:        1,
		DeltaPercent: 20,
		Productivity: 10.0 / 6.0,
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "period;wbs_key;qty;unit;LH_theo;LH_actual;delta;delta_%;productivity", lines[0])
	assert.Equal(t, "2024-03-01/2024-04-01;CONC.BEAM;10;m3;5.00;6.00;1.00;20.0;1.667", lines[1])
}

func TestWriteCSV_headerOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, strings.Join(Header, ";")+"\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	rows := []Row{
		{Period: "p", WorkItemKey: "A", Quantity: 2, Unit: "kg", Theoretical: 1.234, Observed: 1},
		{Period: "p", WorkItemKey: "B", Quantity: 3, Unit: "m2"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Header, got[0])
	assert.Equal(t, "A", got[1][1])
	assert.Equal(t, "kg", got[1][3])
	assert.Equal(t, "1.23", got[1][4])
	assert.Equal(t, "B", got[2][1])
}
