// Package index holds the live searchable snapshot: vectors, keyword index and
// metadata that are swapped together when a training run publishes.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrModelMismatch is returned when a persisted snapshot was built with another embedding model.
var ErrModelMismatch = errors.New("index snapshot was built with a different embedding model")

// Snapshot is an immutable-by-swap view of the index. Passage removal is the only
// in-place mutation and is serialized with publishing.
type Snapshot struct {
	Vectors        vector.VectorIndex
	Keywords       keyword.KeywordIndex
	EmbeddingModel string
	TrainedAt      time.Time
}

// NewSnapshot builds an empty snapshot of the given dimension.
func NewSnapshot(dimensions int, model string) (*Snapshot, error) {
	vec, err := vector.NewMemoryIndex(dimensions)
	if err != nil {
		return nil, err
	}
	kw, err := keyword.NewMemIndex()
	if err != nil {
		return nil, err
	}
	return &Snapshot{Vectors: vec, Keywords: kw, EmbeddingModel: model}, nil
}

// Add inserts passages into both the vector and keyword index.
func (s *Snapshot) Add(ctx context.Context, passages []*models.Passage) error {
	if err := s.Vectors.Add(ctx, passages); err != nil {
		return err
	}
	return s.Keywords.Index(ctx, passages)
}

// RemoveFile drops every passage of filename and returns how many vectors were removed.
func (s *Snapshot) RemoveFile(ctx context.Context, filename string) (int, error) {
	n, err := s.Vectors.Remove(ctx, filename)
	if err != nil {
		return 0, err
	}
	if _, err := s.Keywords.DeleteFile(ctx, filename); err != nil {
		return n, err
	}
	return n, nil
}

// Close releases both indexes.
func (s *Snapshot) Close() error {
	return multierr.Combine(s.Vectors.Close(), s.Keywords.Close())
}

// Holder owns the live snapshot. Readers get one consistent snapshot per call;
// Publish swaps atomically so readers never observe a partial build.
type Holder struct {
	live       atomic.Pointer[Snapshot]
	mu         sync.Mutex
	dimensions int
	llmModel   string
	logger     *zap.Logger
}

// NewHolder creates a holder with an empty live snapshot.
func NewHolder(dimensions int, embeddingModel, llmModel string, logger *zap.Logger) (*Holder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	empty, err := NewSnapshot(dimensions, embeddingModel)
	if err != nil {
		return nil, err
	}
	h := &Holder{dimensions: dimensions, llmModel: llmModel, logger: logger}
	h.live.Store(empty)
	return h, nil
}

// Current returns the live snapshot.
func (h *Holder) Current() *Snapshot {
	return h.live.Load()
}

// Dimensions returns the vector dimension of snapshots in this holder.
func (h *Holder) Dimensions() int {
	return h.dimensions
}

// Publish makes next the live snapshot. Before the swap, passages whose file no
// longer exists (per exists) are dropped, so deletions racing a build never resurface.
// The previous snapshot is left for in-flight readers and garbage collection.
func (h *Holder) Publish(ctx context.Context, next *Snapshot, exists func(filename string) bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if exists != nil {
		for _, name := range next.Vectors.Filenames() {
			if exists(name) {
				continue
			}
			n, err := next.RemoveFile(ctx, name)
			if err != nil {
				return fmt.Errorf("prune %s: %w", name, err)
			}
			h.logger.Debug("pruned deleted file from staging", zap.String("file", name), zap.Int("passages", n))
		}
	}
	h.live.Store(next)
	return nil
}

// RemoveFile drops filename's passages from the live snapshot. Idempotent.
func (h *Holder) RemoveFile(ctx context.Context, filename string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live.Load().RemoveFile(ctx, filename)
}

// Search returns the top k passages of the live snapshot for query.
func (h *Holder) Search(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
	return h.live.Load().Vectors.Search(ctx, query, k)
}

// Info reports index metadata for status endpoints.
func (h *Holder) Info() models.IndexInfo {
	s := h.live.Load()
	info := models.IndexInfo{
		VectorCount:    s.Vectors.Size(),
		EmbeddingModel: s.EmbeddingModel,
		LLMModel:       h.llmModel,
	}
	if !s.TrainedAt.IsZero() {
		t := s.TrainedAt
		info.LastTrainedAt = &t
	}
	return info
}

// Save persists the live snapshot's vectors to path.
func (h *Holder) Save(path string) error {
	s := h.live.Load()
	return s.Vectors.Save(path, vector.Meta{
		Model:      s.EmbeddingModel,
		Dimensions: h.dimensions,
		TrainedAt:  s.TrainedAt,
	})
}

// Load restores a persisted snapshot from path and publishes it. The keyword index
// is rebuilt from the stored passage text. A missing file leaves the holder empty.
func (h *Holder) Load(ctx context.Context, path string, embeddingModel string) error {
	snap, err := NewSnapshot(h.dimensions, embeddingModel)
	if err != nil {
		return err
	}
	meta, err := snap.Vectors.Load(path)
	if err != nil {
		return err
	}
	if meta.Model == "" {
		return nil
	}
	if meta.Model != embeddingModel {
		return fmt.Errorf("%w: snapshot %q, configured %q; retrain or restore the previous embedding settings",
			ErrModelMismatch, meta.Model, embeddingModel)
	}
	if err := snap.Keywords.Index(ctx, snap.Vectors.Passages()); err != nil {
		return fmt.Errorf("rebuild keyword index: %w", err)
	}
	snap.TrainedAt = meta.TrainedAt
	h.live.Store(snap)
	h.logger.Info("loaded index snapshot",
		zap.String("path", path),
		zap.Int("vectors", snap.Vectors.Size()),
		zap.Time("trained_at", meta.TrainedAt))
	return nil
}
