// Package embedding turns passage and question text into vectors.
package embedding

import (
	"context"
	"errors"
)

// ErrDimension is returned when a provider yields a vector of the wrong size.
var ErrDimension = errors.New("embedding dimension mismatch")

// Embedder produces vector embeddings for text.
// Model identifies the vector space; indexes built with one model are unusable with another.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
	Close() error
}
