// Package indexer turns norm documents into annotated chunks and feeds the text and vector indices.
package indexer

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/hyperjump/normlab/internal/models"
)

// DefaultMaxTokens is the chunk window when none is configured.
const DefaultMaxTokens = 1000

var headingLine = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

// Chunker splits text into consecutive word windows without overlap. Each word counts as one
// token; a chunk is closed once it reaches maxTokens and the remainder is flushed at the end.
// Markdown-style headings are tracked so every chunk carries the heading in force at its first word.
type Chunker struct {
	maxTokens int
}

// NewChunker creates a chunker with the given window size in tokens.
func NewChunker(maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Chunker{maxTokens: maxTokens}
}

// MaxTokens returns the window size.
func (c *Chunker) MaxTokens() int {
	return c.maxTokens
}

// Chunk splits text into chunks for docID. Heading lines are part of the content.
func (c *Chunker) Chunk(docID, text string) []*models.Chunk {
	var (
		chunks   []*models.Chunk
		words    []string
		headings []string
		heading  string
		section  string
	)
	flush := func() {
		if len(words) == 0 {
			return
		}
		chunks = append(chunks, &models.Chunk{
			ID:          uuid.New().String(),
			DocumentID:  docID,
			ChunkIndex:  len(chunks),
			SectionPath: section,
			Heading:     heading,
			Text:        strings.Join(words, " "),
			TokenCount:  len(words),
		})
		words = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if m := headingLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			level := len(m[1])
			if len(headings) >= level {
				headings = headings[:level-1]
			}
			headings = append(headings, m[2])
		}
		for _, w := range strings.Fields(line) {
			if len(words) == 0 {
				heading, section = current(headings)
			}
			words = append(words, w)
			if len(words) >= c.maxTokens {
				flush()
			}
		}
	}
	flush()
	return chunks
}

func current(headings []string) (heading, sectionPath string) {
	if len(headings) == 0 {
		return "", ""
	}
	return headings[len(headings)-1], strings.Join(headings, " > ")
}
