package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrInvalidName is returned for filenames that cannot be stored.
var ErrInvalidName = errors.New("invalid filename")

// PageCounter reports the number of pages of a PDF.
type PageCounter interface {
	PageCount(content []byte) (int, error)
}

// Store is the Document Store: PDF bytes in a directory, metadata in Metadata.
// Writes are serialized; reads go straight to the metadata database.
type Store struct {
	dir    string
	meta   Metadata
	pages  PageCounter
	logger *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger.
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates the upload directory if needed and returns a Store.
func NewStore(dir string, meta Metadata, pages PageCounter, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	s := &Store{dir: dir, meta: meta, pages: pages, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the upload directory.
func (s *Store) Dir() string {
	return s.dir
}

// CleanName reduces a client-supplied name to a bare filename or returns ErrInvalidName.
func CleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == "/" || base == ".." || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

// IsPDF reports whether content is a PDF by its magic bytes.
func IsPDF(content []byte) bool {
	return mimetype.Detect(content).Is("application/pdf")
}

// Save validates content as a PDF and stores it under name, replacing any
// existing document of the same name. Non-PDF content yields models.ErrNotPDF;
// an unreadable PDF yields *models.ExtractionError.
func (s *Store) Save(ctx context.Context, name string, content []byte) (*models.Document, error) {
	filename, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	pages, err := s.validate(filename, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, filename)
	if err := writeAtomic(path, content); err != nil {
		return nil, err
	}
	doc := &models.Document{
		Filename:   filename,
		Size:       int64(len(content)),
		Pages:      pages,
		UploadedAt: s.now().UTC(),
		Path:       path,
	}
	if err := s.meta.UpsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	s.logger.Info("stored document", zap.String("file", filename), zap.Int("pages", pages), zap.Int64("bytes", doc.Size))
	return doc, nil
}

// Register records a PDF that already sits in the upload directory (copied in by hand).
func (s *Store) Register(ctx context.Context, path string) (*models.Document, error) {
	filename, err := CleanName(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	pages, err := s.validate(filename, content)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := &models.Document{
		Filename:   filename,
		Size:       int64(len(content)),
		Pages:      pages,
		UploadedAt: info.ModTime().UTC(),
		Path:       path,
	}
	if err := s.meta.UpsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) validate(filename string, content []byte) (int, error) {
	if !IsPDF(content) {
		return 0, fmt.Errorf("%s: %w", filename, models.ErrNotPDF)
	}
	pages, err := s.pages.PageCount(content)
	if err != nil {
		var ee *models.ExtractionError
		if errors.As(err, &ee) {
			return 0, err
		}
		return 0, &models.ExtractionError{Filename: filename, Err: err}
	}
	return pages, nil
}

// Get returns the document named filename or models.ErrNotFound.
func (s *Store) Get(ctx context.Context, filename string) (*models.Document, error) {
	return s.meta.GetDocument(ctx, filename)
}

// Exists reports whether filename is a stored document.
func (s *Store) Exists(ctx context.Context, filename string) bool {
	_, err := s.meta.GetDocument(ctx, filename)
	return err == nil
}

// List returns a snapshot of all documents ordered by filename.
func (s *Store) List(ctx context.Context) ([]*models.Document, error) {
	return s.meta.ListDocuments(ctx)
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.meta.CountDocuments(ctx)
}

// ReadFile returns the stored PDF bytes of doc.
func (s *Store) ReadFile(doc *models.Document) ([]byte, error) {
	return os.ReadFile(doc.Path)
}

// Open returns the stored PDF for streaming, or models.ErrNotFound.
func (s *Store) Open(ctx context.Context, filename string) (*os.File, *models.Document, error) {
	doc, err := s.meta.GetDocument(ctx, filename)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(doc.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("document %s: %w", filename, models.ErrNotFound)
		}
		return nil, nil, err
	}
	return f, doc, nil
}

// Delete removes the document's metadata and file, or returns models.ErrNotFound.
func (s *Store) Delete(ctx context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.meta.GetDocument(ctx, filename)
	if err != nil {
		return err
	}
	if err := s.meta.DeleteDocument(ctx, filename); err != nil {
		return err
	}
	if err := os.Remove(doc.Path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("remove document file", zap.String("file", filename), zap.Error(err))
	}
	s.logger.Info("deleted document", zap.String("file", filename))
	return nil
}

// DiskUsage returns bytes used by the upload directory.
func (s *Store) DiskUsage() (int64, error) {
	return DiskUsageBytes(s.dir)
}

// Close closes the metadata database.
func (s *Store) Close() error {
	return s.meta.Close()
}

func writeAtomic(path string, content []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(content); err != nil {
		return multierr.Append(fmt.Errorf("write %s: %w", path, err), tmp.Close())
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
