// Package vector provides the passage vector index and similarity search.
package vector

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrDimensionMismatch is returned when a vector or snapshot has the wrong dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// VectorIndex defines passage vector storage and similarity search.
type VectorIndex interface {
	Add(ctx context.Context, passages []*models.Passage) error
	Search(ctx context.Context, query []float32, k int) ([]models.Hit, error)
	// Remove drops every passage of filename and returns how many were removed.
	// Removing an unknown filename is a no-op.
	Remove(ctx context.Context, filename string) (int, error)
	Filenames() []string
	Passages() []*models.Passage
	Save(path string, meta Meta) error
	Load(path string) (Meta, error)
	Size() int
	Close() error
}

// Meta is stored alongside the vectors in a snapshot file.
type Meta struct {
	Model      string
	Dimensions int
	TrainedAt  time.Time
}
