// Package indexer provides passage chunking and the training run that rebuilds the index.
package indexer

import (
	"strings"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

// Chunker splits page text into overlapping word-based passages. A passage never
// spans two pages.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits each page into passages with overlapping windows. Ordinals restart at
// zero on every page.
func (c *Chunker) Chunk(filename string, pages []extract.Page) []*models.Passage {
	var passages []*models.Passage
	for _, page := range pages {
		passages = append(passages, c.chunkPage(filename, page)...)
	}
	return passages
}

func (c *Chunker) chunkPage(filename string, page extract.Page) []*models.Passage {
	words := strings.Fields(Preprocess(page.Text))
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	passages := make([]*models.Passage, 0, len(words)/step+1)
	ordinal := 0
	for i := 0; i < len(words); i += step {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		passages = append(passages, &models.Passage{
			ID:       fileid.PassageID(filename, page.Number, ordinal),
			Filename: filename,
			Page:     page.Number,
			Ordinal:  ordinal,
			Text:     strings.Join(words[i:end], " "),
		})
		ordinal++
		if end >= len(words) {
			break
		}
	}
	return passages
}
