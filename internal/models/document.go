// Package models defines core data structures for norm documents, chunks, norms, and site records.
package models

import "time"

// Document is an ingested source document. Documents are write-once.
type Document struct {
	ID         string    `json:"id" db:"id"`
	Source     string    `json:"source" db:"source"`
	Country    string    `json:"country" db:"country"`
	DocType    string    `json:"doc_type" db:"doc_type"`
	Title      string    `json:"title" db:"title"`
	Language   string    `json:"language" db:"language"`
	RawContent string    `json:"raw_content" db:"raw_content"`
	Project    string    `json:"project,omitempty" db:"project"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Chunk is a bounded-size fragment of a document's text with extracted annotations.
// DocumentID is a back-reference, not ownership.
type Chunk struct {
	ID          string    `json:"id" db:"id"`
	DocumentID  string    `json:"document_id" db:"document_id"`
	ChunkIndex  int       `json:"chunk_index" db:"chunk_index"`
	SectionPath string    `json:"section_path" db:"section_path"`
	Heading     string    `json:"heading" db:"heading"`
	Text        string    `json:"text" db:"text"`
	TokenCount  int       `json:"token_count" db:"token_count"`
	WorkTypes   []string  `json:"work_types" db:"work_types"`
	NormCodes   []string  `json:"norm_codes" db:"norm_codes"`
	Unit        string    `json:"unit" db:"unit"`
	Locale      string    `json:"locale" db:"locale"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for ingesting a document.
type DocumentInput struct {
	Source   string `json:"source"`
	Country  string `json:"country"`
	DocType  string `json:"doc_type"`
	Title    string `json:"title"`
	Language string `json:"language"`
	Content  string `json:"content"`
	Project  string `json:"project,omitempty"`
}
