// Package keyword provides full-text (BM25) search over indexed passages.
package keyword

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// FuzzyEnabled matches terms within Fuzziness edits for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 1.
	Fuzziness int
	// Filename restricts results to passages of one file.
	Filename string
}

// KeywordIndex defines keyword search over passages.
type KeywordIndex interface {
	Index(ctx context.Context, passages []*models.Passage) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	DeleteFile(ctx context.Context, filename string) (int, error)
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit with its stored passage fields.
type KeywordResult struct {
	ID    string
	Score float64
	File  string
	Page  int
	Text  string
}
