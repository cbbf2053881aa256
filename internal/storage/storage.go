// Package storage persists uploaded PDFs and their metadata.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Metadata defines per-document metadata persistence. Filename is the key.
type Metadata interface {
	UpsertDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, filename string) (*models.Document, error)
	DeleteDocument(ctx context.Context, filename string) error
	ListDocuments(ctx context.Context) ([]*models.Document, error)
	CountDocuments(ctx context.Context) (int64, error)
	Close() error
}
