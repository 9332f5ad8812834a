package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/normlab/internal/models"
)

// UpsertNorm inserts or replaces a norm record. Unit and locale are normalized so that
// lookups match regardless of spelling (m³ vs m3, TR vs tr).
func (s *SQLiteStorage) UpsertNorm(ctx context.Context, norm *models.NormRecord) error {
	if norm.ID == "" {
		norm.ID = uuid.New().String()
	}
	norm.Unit = models.NormalizeUnit(norm.Unit)
	norm.Locale = normalizeLocale(norm.Locale)
	norm.Source = strings.ToLower(strings.TrimSpace(norm.Source))
	if norm.UpdatedAt.IsZero() {
		norm.UpdatedAt = time.Now()
	}
	norm.UpdatedAt = norm.UpdatedAt.UTC()
	conditions, err := marshalConditions(norm.Conditions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO norms (id, work_item_key, unit, locale, labor_hours_per_unit, source, norm_code, conditions, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   work_item_key = excluded.work_item_key, unit = excluded.unit, locale = excluded.locale,
		   labor_hours_per_unit = excluded.labor_hours_per_unit, source = excluded.source,
		   norm_code = excluded.norm_code, conditions = excluded.conditions, updated_at = excluded.updated_at`,
		norm.ID, norm.WorkItemKey, norm.Unit, norm.Locale, norm.LaborHoursPerUnit, norm.Source,
		norm.NormCode, conditions, norm.UpdatedAt,
	)
	return models.StorageError("upsert norm", err)
}

const normColumns = `id, work_item_key, unit, locale, labor_hours_per_unit, source, norm_code, conditions, updated_at`

// FindNorms returns every norm record for (workItemKey, unit, locale), most recently updated first.
func (s *SQLiteStorage) FindNorms(ctx context.Context, workItemKey, unit, locale string) ([]*models.NormRecord, error) {
	return s.queryNorms(ctx,
		`SELECT `+normColumns+` FROM norms WHERE work_item_key = ? AND unit = ? AND locale = ?
		 ORDER BY updated_at DESC`,
		workItemKey, models.NormalizeUnit(unit), normalizeLocale(locale))
}

// ListNorms returns all norm records.
func (s *SQLiteStorage) ListNorms(ctx context.Context) ([]*models.NormRecord, error) {
	return s.queryNorms(ctx, `SELECT `+normColumns+` FROM norms ORDER BY work_item_key, unit, locale`)
}

func (s *SQLiteStorage) queryNorms(ctx context.Context, query string, args ...any) ([]*models.NormRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.StorageError("query norms", err)
	}
	defer rows.Close()

	var norms []*models.NormRecord
	for rows.Next() {
		var n models.NormRecord
		var normCode, conditions sql.NullString
		if err := rows.Scan(&n.ID, &n.WorkItemKey, &n.Unit, &n.Locale, &n.LaborHoursPerUnit, &n.Source,
			&normCode, &conditions, &n.UpdatedAt); err != nil {
			return nil, models.StorageError("scan norm", err)
		}
		n.NormCode = normCode.String
		if n.Conditions, err = unmarshalConditions(conditions.String); err != nil {
			return nil, err
		}
		norms = append(norms, &n)
	}
	return norms, models.StorageError("query norms", rows.Err())
}

// CreateQuantity inserts a quantity take-off row.
func (s *SQLiteStorage) CreateQuantity(ctx context.Context, q *models.Quantity) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	q.Unit = models.NormalizeUnit(q.Unit)
	q.Locale = normalizeLocale(q.Locale)
	if q.RecordedAt.IsZero() {
		q.RecordedAt = time.Now()
	}
	q.RecordedAt = q.RecordedAt.UTC()
	conditions, err := marshalConditions(q.Conditions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quantities (id, wbs_key, qty, unit, locale, element_id, level, conditions, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.WorkItemKey, q.Quantity, q.Unit, q.Locale, q.ElementID, q.Level, conditions, q.RecordedAt,
	)
	return models.StorageError("insert quantity", err)
}

// ListQuantities returns quantities recorded in [from, to).
func (s *SQLiteStorage) ListQuantities(ctx context.Context, from, to time.Time) ([]*models.Quantity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, wbs_key, qty, unit, locale, element_id, level, conditions, recorded_at
		 FROM quantities WHERE recorded_at >= ? AND recorded_at < ? ORDER BY wbs_key, recorded_at`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, models.StorageError("list quantities", err)
	}
	defer rows.Close()

	var out []*models.Quantity
	for rows.Next() {
		var q models.Quantity
		var locale, elementID, level, conditions sql.NullString
		if err := rows.Scan(&q.ID, &q.WorkItemKey, &q.Quantity, &q.Unit, &locale, &elementID, &level,
			&conditions, &q.RecordedAt); err != nil {
			return nil, models.StorageError("scan quantity", err)
		}
		q.Locale = locale.String
		q.ElementID = elementID.String
		q.Level = level.String
		if q.Conditions, err = unmarshalConditions(conditions.String); err != nil {
			return nil, err
		}
		out = append(out, &q)
	}
	return out, models.StorageError("list quantities", rows.Err())
}

// CreateObservation inserts a site observation row.
func (s *SQLiteStorage) CreateObservation(ctx context.Context, obs *models.SiteObservation) error {
	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	if obs.Date.IsZero() {
		obs.Date = time.Now()
	}
	obs.Date = obs.Date.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO site_observations (id, wbs_key, date, hours, crew, note) VALUES (?, ?, ?, ?, ?, ?)`,
		obs.ID, obs.WorkItemKey, obs.Date, obs.Hours, obs.Crew, obs.Note,
	)
	return models.StorageError("insert observation", err)
}

// ListObservations returns site observations dated in [from, to).
func (s *SQLiteStorage) ListObservations(ctx context.Context, from, to time.Time) ([]*models.SiteObservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, wbs_key, date, hours, crew, note FROM site_observations
		 WHERE date >= ? AND date < ? ORDER BY wbs_key, date`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, models.StorageError("list observations", err)
	}
	defer rows.Close()

	var out []*models.SiteObservation
	for rows.Next() {
		var o models.SiteObservation
		var crew, note sql.NullString
		if err := rows.Scan(&o.ID, &o.WorkItemKey, &o.Date, &o.Hours, &crew, &note); err != nil {
			return nil, models.StorageError("scan observation", err)
		}
		o.Crew = crew.String
		o.Note = note.String
		out = append(out, &o)
	}
	return out, models.StorageError("list observations", rows.Err())
}

// AppendRetrievalLog appends an audit row. Rows are never updated.
func (s *SQLiteStorage) AppendRetrievalLog(ctx context.Context, entry *models.RetrievalLog) error {
	chunkIDs, err := json.Marshal(nonNil(entry.ChunkIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal chunk ids: %w", err)
	}
	scores := entry.Scores
	if scores == nil {
		scores = []float64{}
	}
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}
	entry.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO retrieval_logs (query, returned_count, chunk_ids, scores, accepted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Query, entry.ReturnedCount, string(chunkIDs), string(scoresJSON), entry.Accepted, entry.CreatedAt,
	)
	if err != nil {
		return models.StorageError("append retrieval log", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// ListRetrievalLogs returns up to limit log rows, newest first.
func (s *SQLiteStorage) ListRetrievalLogs(ctx context.Context, limit int) ([]*models.RetrievalLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, returned_count, chunk_ids, scores, accepted, created_at
		 FROM retrieval_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, models.StorageError("list retrieval logs", err)
	}
	defer rows.Close()

	var out []*models.RetrievalLog
	for rows.Next() {
		var l models.RetrievalLog
		var query, chunkIDs, scores sql.NullString
		if err := rows.Scan(&l.ID, &query, &l.ReturnedCount, &chunkIDs, &scores, &l.Accepted, &l.CreatedAt); err != nil {
			return nil, models.StorageError("scan retrieval log", err)
		}
		l.Query = query.String
		if chunkIDs.String != "" {
			_ = json.Unmarshal([]byte(chunkIDs.String), &l.ChunkIDs)
		}
		if scores.String != "" {
			_ = json.Unmarshal([]byte(scores.String), &l.Scores)
		}
		out = append(out, &l)
	}
	return out, models.StorageError("list retrieval logs", rows.Err())
}

func normalizeLocale(locale string) string {
	return strings.ToLower(strings.TrimSpace(locale))
}

func marshalConditions(c map[string]string) (string, error) {
	if len(c) == 0 {
		return "", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal conditions: %w", err)
	}
	return string(b), nil
}

func unmarshalConditions(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var c map[string]string
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}
	return c, nil
}
