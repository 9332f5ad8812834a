// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/normlab/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, models.StorageError("create database directory", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, models.StorageError("open database", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, models.StorageError("enable WAL", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, models.StorageError("initialize schema", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		country TEXT,
		doc_type TEXT,
		title TEXT,
		language TEXT,
		raw_content TEXT NOT NULL,
		project TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		section_path TEXT,
		heading TEXT,
		text TEXT NOT NULL,
		token_count INTEGER NOT NULL,
		work_types TEXT,
		norm_codes TEXT,
		unit TEXT,
		locale TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_chunk ON chunks(document_id, chunk_index);

	CREATE TABLE IF NOT EXISTS norms (
		id TEXT PRIMARY KEY,
		work_item_key TEXT NOT NULL,
		unit TEXT NOT NULL,
		locale TEXT NOT NULL,
		labor_hours_per_unit REAL NOT NULL,
		source TEXT NOT NULL,
		norm_code TEXT,
		conditions TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_norms_lookup ON norms(work_item_key, unit, locale);

	CREATE TABLE IF NOT EXISTS quantities (
		id TEXT PRIMARY KEY,
		wbs_key TEXT NOT NULL,
		qty REAL NOT NULL,
		unit TEXT NOT NULL,
		locale TEXT,
		element_id TEXT,
		level TEXT,
		conditions TEXT,
		recorded_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quantities_recorded_at ON quantities(recorded_at);

	CREATE TABLE IF NOT EXISTS site_observations (
		id TEXT PRIMARY KEY,
		wbs_key TEXT NOT NULL,
		date TIMESTAMP NOT NULL,
		hours REAL NOT NULL,
		crew TEXT,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_observations_date ON site_observations(date);

	CREATE TABLE IF NOT EXISTS retrieval_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT,
		returned_count INTEGER NOT NULL,
		chunk_ids TEXT,
		scores TEXT,
		accepted INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document. An empty ID is replaced with a new UUID.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, source, country, doc_type, title, language, raw_content, project, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Source, doc.Country, doc.DocType, doc.Title, doc.Language, doc.RawContent, doc.Project, doc.CreatedAt,
	)
	return models.StorageError("insert document", err)
}

const documentColumns = `id, source, country, doc_type, title, language, raw_content, project, created_at`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var doc models.Document
	var country, docType, title, language, project sql.NullString
	if err := row.Scan(&doc.ID, &doc.Source, &country, &docType, &title, &language, &doc.RawContent, &project, &doc.CreatedAt); err != nil {
		return nil, err
	}
	doc.Country = country.String
	doc.DocType = docType.String
	doc.Title = title.String
	doc.Language = language.String
	doc.Project = project.String
	return &doc, nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, models.StorageError("get document", err)
	}
	return doc, nil
}

// FindDocumentBySource returns the earliest document ingested from source.
func (s *SQLiteStorage) FindDocumentBySource(ctx context.Context, source string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE source = ? ORDER BY created_at LIMIT 1`, source))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document with source %s", models.ErrNotFound, source)
	}
	if err != nil {
		return nil, models.StorageError("find document", err)
	}
	return doc, nil
}

// ListDocuments returns documents with offset and limit, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, models.StorageError("list documents", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, models.StorageError("scan document", err)
		}
		docs = append(docs, doc)
	}
	return docs, models.StorageError("list documents", rows.Err())
}

// CreateChunk inserts a single chunk. An empty ID is replaced with a new UUID.
func (s *SQLiteStorage) CreateChunk(ctx context.Context, chunk *models.Chunk) error {
	if chunk.ID == "" {
		chunk.ID = uuid.New().String()
	}
	workTypes, err := json.Marshal(nonNil(chunk.WorkTypes))
	if err != nil {
		return fmt.Errorf("failed to marshal work types: %w", err)
	}
	normCodes, err := json.Marshal(nonNil(chunk.NormCodes))
	if err != nil {
		return fmt.Errorf("failed to marshal norm codes: %w", err)
	}
	chunk.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, document_id, chunk_index, section_path, heading, text, token_count,
		 work_types, norm_codes, unit, locale, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.SectionPath, chunk.Heading, chunk.Text,
		chunk.TokenCount, string(workTypes), string(normCodes), chunk.Unit, chunk.Locale, chunk.CreatedAt,
	)
	return models.StorageError("insert chunk", err)
}

const chunkColumns = `id, document_id, chunk_index, section_path, heading, text, token_count,
	work_types, norm_codes, unit, locale, created_at`

func scanChunk(row interface{ Scan(...any) error }) (*models.Chunk, error) {
	var chunk models.Chunk
	var sectionPath, heading, workTypes, normCodes, unit, locale sql.NullString
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &sectionPath, &heading, &chunk.Text,
		&chunk.TokenCount, &workTypes, &normCodes, &unit, &locale, &chunk.CreatedAt); err != nil {
		return nil, err
	}
	chunk.SectionPath = sectionPath.String
	chunk.Heading = heading.String
	chunk.Unit = unit.String
	chunk.Locale = locale.String
	if workTypes.String != "" {
		if err := json.Unmarshal([]byte(workTypes.String), &chunk.WorkTypes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal work types: %w", err)
		}
	}
	if normCodes.String != "" {
		if err := json.Unmarshal([]byte(normCodes.String), &chunk.NormCodes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal norm codes: %w", err)
		}
	}
	return &chunk, nil
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	chunk, err := scanChunk(s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chunk %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, models.StorageError("get chunk", err)
	}
	return chunk, nil
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
}

// ListChunks returns chunks in insertion order with offset and limit.
func (s *SQLiteStorage) ListChunks(ctx context.Context, offset, limit int) ([]*models.Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks ORDER BY created_at, document_id, chunk_index LIMIT ? OFFSET ?`,
		limit, offset)
}

func (s *SQLiteStorage) queryChunks(ctx context.Context, query string, args ...any) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.StorageError("query chunks", err)
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, models.StorageError("scan chunk", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, models.StorageError("query chunks", rows.Err())
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, models.StorageError("count documents", err)
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, models.StorageError("count chunks", err)
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
