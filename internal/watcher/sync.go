package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// Registry is the document store as seen by the upload sync.
type Registry interface {
	Get(ctx context.Context, filename string) (*models.Document, error)
	List(ctx context.Context) ([]*models.Document, error)
	Register(ctx context.Context, path string) (*models.Document, error)
}

// Remover cascades a document delete to the live index.
type Remover interface {
	RemoveDocument(ctx context.Context, filename string) error
}

// UploadSync keeps the document store and live index in step with the files in
// the upload directory. Its Added and Removed methods are Watcher callbacks.
type UploadSync struct {
	registry Registry
	remover  Remover
	logger   *zap.Logger
}

// NewUploadSync creates an UploadSync.
func NewUploadSync(registry Registry, remover Remover, logger *zap.Logger) *UploadSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadSync{registry: registry, remover: remover, logger: logger}
}

// Added registers a PDF that appeared in the upload directory. Files already
// known with the same size are skipped; uploads through the API land here too.
func (u *UploadSync) Added(path string) {
	ctx := context.Background()
	name := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if doc, err := u.registry.Get(ctx, name); err == nil && doc.Size == info.Size() {
		return
	}
	doc, err := u.registry.Register(ctx, path)
	if err != nil {
		u.logger.Warn("ignoring file in upload directory", zap.String("file", name), zap.Error(err))
		return
	}
	u.logger.Info("registered document from upload directory",
		zap.String("file", doc.Filename), zap.Int("pages", doc.Pages))
}

// Removed cascades the removal of a file from the upload directory.
func (u *UploadSync) Removed(path string) {
	name := filepath.Base(path)
	err := u.remover.RemoveDocument(context.Background(), name)
	switch {
	case err == nil:
		u.logger.Info("document removed from upload directory", zap.String("file", name))
	case errors.Is(err, models.ErrNotFound):
		// Already deleted through the API.
	default:
		u.logger.Warn("cascade delete failed", zap.String("file", name), zap.Error(err))
	}
}

// Reconcile registers untracked files in dir and drops documents whose files are gone.
// match selects the files to consider.
func (u *UploadSync) Reconcile(ctx context.Context, dir string, match func(path string) bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() || !match(path) {
			continue
		}
		present[e.Name()] = true
		u.Added(path)
	}
	docs, err := u.registry.List(ctx)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if !present[d.Filename] {
			u.Removed(filepath.Join(dir, d.Filename))
		}
	}
	return nil
}
