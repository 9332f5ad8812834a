// Package storage defines the persistence interface for documents, chunks, norms, and site records.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/normlab/internal/models"
)

// Storage defines document, chunk, norm, and site-record persistence operations.
// Every call auto-commits; there are no multi-statement transactions.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	FindDocumentBySource(ctx context.Context, source string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Chunk operations
	CreateChunk(ctx context.Context, chunk *models.Chunk) error
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	ListChunks(ctx context.Context, offset, limit int) ([]*models.Chunk, error)

	// Norm records
	UpsertNorm(ctx context.Context, norm *models.NormRecord) error
	FindNorms(ctx context.Context, workItemKey, unit, locale string) ([]*models.NormRecord, error)
	ListNorms(ctx context.Context) ([]*models.NormRecord, error)

	// Site records
	CreateQuantity(ctx context.Context, q *models.Quantity) error
	ListQuantities(ctx context.Context, from, to time.Time) ([]*models.Quantity, error)
	CreateObservation(ctx context.Context, obs *models.SiteObservation) error
	ListObservations(ctx context.Context, from, to time.Time) ([]*models.SiteObservation, error)

	// Retrieval log
	AppendRetrievalLog(ctx context.Context, entry *models.RetrievalLog) error
	ListRetrievalLogs(ctx context.Context, limit int) ([]*models.RetrievalLog, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
