// Package indexer runs training: it rebuilds the passage index from the current
// documents in the background and publishes it atomically.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/status"
)

// Progress ranges per stage, in percent.
const (
	scanEnd    = 5
	extractEnd = 40
	embedEnd   = 90
	writeEnd   = 100
)

// DocumentSource is the Document Store as seen by training.
type DocumentSource interface {
	List(ctx context.Context) ([]*models.Document, error)
	ReadFile(doc *models.Document) ([]byte, error)
	Exists(ctx context.Context, filename string) bool
	Delete(ctx context.Context, filename string) error
}

// Result summarises a finished run.
type Result struct {
	RunID     string
	Documents int
	Skipped   int
	Passages  int
	Warnings  []string
}

// Indexer is the Training Orchestrator. At most one run is active at a time.
type Indexer struct {
	store       DocumentSource
	extractor   *extract.Extractor
	chunker     *Chunker
	embedder    embedding.Embedder
	holder      *index.Holder
	status      *status.Publisher
	batchSize   int
	concurrency int
	indexPath   string
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for run events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithBatching sets the embedding batch size and how many batches run concurrently.
func WithBatching(size, concurrency int) IndexerOption {
	return func(idx *Indexer) {
		if size > 0 {
			idx.batchSize = size
		}
		if concurrency > 0 {
			idx.concurrency = concurrency
		}
	}
}

// WithSnapshotPath persists the published index to path after every successful run.
func WithSnapshotPath(path string) IndexerOption {
	return func(idx *Indexer) { idx.indexPath = path }
}

// NewIndexer creates a training orchestrator over the given collaborators.
func NewIndexer(
	store DocumentSource,
	extractor *extract.Extractor,
	chunker *Chunker,
	embedder embedding.Embedder,
	holder *index.Holder,
	publisher *status.Publisher,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		store:       store,
		extractor:   extractor,
		chunker:     chunker,
		embedder:    embedder,
		holder:      holder,
		status:      publisher,
		batchSize:   32,
		concurrency: 1,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Start launches a background run and returns its id. It returns models.ErrConflict,
// without touching the current run or its progress, if a run is already active.
// The run is detached from any request; Stop cancels it.
func (idx *Indexer) Start() (string, error) {
	ctx, runID, err := idx.acquire(context.Background())
	if err != nil {
		return "", err
	}
	go func() {
		_, _ = idx.run(ctx, runID)
	}()
	return runID, nil
}

// Train runs synchronously under the same single-run guard as Start.
func (idx *Indexer) Train(ctx context.Context) (*Result, error) {
	ctx, runID, err := idx.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return idx.run(ctx, runID)
}

// Running reports whether a run is active.
func (idx *Indexer) Running() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.running
}

// Wait blocks until the active run, if any, finishes or ctx is done.
func (idx *Indexer) Wait(ctx context.Context) error {
	idx.mu.Lock()
	done := idx.done
	idx.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the active run and waits for it to finish.
func (idx *Indexer) Stop(ctx context.Context) error {
	idx.mu.Lock()
	cancel := idx.cancel
	idx.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return idx.Wait(ctx)
}

// RemoveDocument deletes a document and cascades to the live index. Deletion and
// publish are serialized by the index holder, so an in-flight run cannot resurrect
// the document's passages.
func (idx *Indexer) RemoveDocument(ctx context.Context, filename string) error {
	if err := idx.store.Delete(ctx, filename); err != nil {
		return err
	}
	n, err := idx.holder.RemoveFile(ctx, filename)
	if err != nil {
		return fmt.Errorf("remove %s from index: %w", filename, err)
	}
	idx.logger.Info("document removed", zap.String("file", filename), zap.Int("passages", n))
	if n > 0 {
		idx.persist()
	}
	return nil
}

func (idx *Indexer) acquire(parent context.Context) (context.Context, string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.running {
		return nil, "", models.ErrConflict
	}
	ctx, cancel := context.WithCancel(parent)
	runID := uuid.NewString()
	idx.running = true
	idx.cancel = cancel
	idx.done = make(chan struct{})

	started := idx.now().UTC()
	idx.status.Set(models.TrainingState{
		IsTraining: true,
		Stage:      models.StageScanning,
		Progress:   0,
		Message:    "Scanning documents",
		RunID:      runID,
		StartedAt:  &started,
	})
	return ctx, runID, nil
}

func (idx *Indexer) release() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.cancel()
	idx.running = false
	idx.cancel = nil
	close(idx.done)
	idx.done = nil
}

// progress publishes a mid-run update; stages only move forward.
func (idx *Indexer) progress(stage models.Stage, pct int, msg string) {
	idx.status.Update(func(s *models.TrainingState) {
		if stage.Before(s.Stage) {
			return
		}
		if stage == s.Stage && pct < s.Progress {
			pct = s.Progress
		}
		s.Stage = stage
		s.Progress = pct
		s.Message = msg
	})
}

func (idx *Indexer) warn(res *Result, msg string) {
	res.Warnings = append(res.Warnings, msg)
	idx.status.Update(func(s *models.TrainingState) {
		s.Warnings = append(s.Warnings, msg)
	})
}

func (idx *Indexer) finish(stage models.Stage, msg string) {
	finished := idx.now().UTC()
	idx.status.Update(func(s *models.TrainingState) {
		s.IsTraining = false
		s.Stage = stage
		if stage == models.StageDone {
			s.Progress = writeEnd
		}
		s.Message = msg
		s.FinishedAt = &finished
	})
}

func (idx *Indexer) run(ctx context.Context, runID string) (res *Result, err error) {
	defer idx.release()
	res = &Result{RunID: runID}
	log := idx.logger.With(zap.String("run_id", runID))
	start := idx.now()
	log.Info("training started")

	defer func() {
		switch {
		case err == nil:
			msg := fmt.Sprintf("Indexed %d passages from %d documents", res.Passages, res.Documents-res.Skipped)
			if res.Skipped > 0 {
				msg += fmt.Sprintf(" (%d skipped)", res.Skipped)
			}
			idx.finish(models.StageDone, msg)
			log.Info("training done",
				zap.Int("documents", res.Documents),
				zap.Int("skipped", res.Skipped),
				zap.Int("passages", res.Passages),
				zap.Duration("took", idx.now().Sub(start)))
		case errors.Is(err, context.Canceled):
			idx.finish(models.StageFailed, "Training cancelled")
			log.Warn("training cancelled")
		default:
			idx.finish(models.StageFailed, "Training failed: "+err.Error())
			log.Error("training failed", zap.Error(err))
		}
	}()

	docs, err := idx.store.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list documents: %w", err)
	}
	res.Documents = len(docs)
	idx.progress(models.StageScanning, scanEnd, fmt.Sprintf("Found %d documents", len(docs)))

	passages, perDoc, err := idx.extract(ctx, docs, res)
	if err != nil {
		return res, err
	}
	if err := idx.embed(ctx, passages, perDoc); err != nil {
		return res, err
	}
	if err := idx.write(ctx, passages); err != nil {
		return res, err
	}
	res.Passages = len(passages)
	return res, nil
}

// extract chunks every document of the snapshot, skipping unreadable ones.
// It returns all passages in document order plus the passage count per document.
func (idx *Indexer) extract(ctx context.Context, docs []*models.Document, res *Result) ([]*models.Passage, []int, error) {
	var passages []*models.Passage
	perDoc := make([]int, 0, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		pages, err := idx.extractDocument(doc)
		if err != nil {
			res.Skipped++
			idx.warn(res, fmt.Sprintf("skipped %s: %v", doc.Filename, err))
			idx.logger.Warn("skipping document", zap.String("file", doc.Filename), zap.Error(err))
		} else {
			chunks := idx.chunker.Chunk(doc.Filename, pages)
			if len(chunks) > 0 {
				passages = append(passages, chunks...)
				perDoc = append(perDoc, len(chunks))
			}
		}
		idx.progress(models.StageExtracting, scaled(scanEnd, extractEnd, i+1, len(docs)),
			fmt.Sprintf("Extracted %s (%d/%d)", doc.Filename, i+1, len(docs)))
	}
	return passages, perDoc, nil
}

func (idx *Indexer) extractDocument(doc *models.Document) ([]extract.Page, error) {
	content, err := idx.store.ReadFile(doc)
	if err != nil {
		return nil, &models.ExtractionError{Filename: doc.Filename, Err: err}
	}
	return idx.extractor.ExtractBytes(doc.Filename, content)
}

// embed fills in passage embeddings in batches. Batches never straddle documents,
// so progress can be reported per finished document.
func (idx *Indexer) embed(ctx context.Context, passages []*models.Passage, perDoc []int) error {
	idx.progress(models.StageEmbedding, extractEnd, fmt.Sprintf("Embedding %d passages", len(passages)))
	if len(passages) == 0 {
		return nil
	}

	var (
		mu       sync.Mutex
		docsDone int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)
	offset := 0
	for _, n := range perDoc {
		doc := passages[offset : offset+n]
		offset += n
		remaining := n
		for start := 0; start < len(doc); start += idx.batchSize {
			batch := doc[start:min(start+idx.batchSize, len(doc))]
			g.Go(func() error {
				texts := make([]string, len(batch))
				for i, p := range batch {
					texts[i] = p.Text
				}
				vectors, err := idx.embedder.EmbedBatch(gctx, texts)
				if err != nil {
					return fmt.Errorf("embed passages of %s: %w", batch[0].Filename, err)
				}
				if len(vectors) != len(batch) {
					return fmt.Errorf("embed passages of %s: got %d vectors for %d passages", batch[0].Filename, len(vectors), len(batch))
				}
				for i, p := range batch {
					p.Embedding = vectors[i]
				}

				mu.Lock()
				defer mu.Unlock()
				remaining -= len(batch)
				if remaining == 0 {
					docsDone++
					idx.progress(models.StageEmbedding, scaled(extractEnd, embedEnd, docsDone, len(perDoc)),
						fmt.Sprintf("Embedded %s (%d/%d)", batch[0].Filename, docsDone, len(perDoc)))
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// write builds the staging snapshot and publishes it as live.
func (idx *Indexer) write(ctx context.Context, passages []*models.Passage) error {
	idx.progress(models.StageWriting, embedEnd, "Building index")
	staging, err := index.NewSnapshot(idx.holder.Dimensions(), idx.embedder.Model())
	if err != nil {
		return err
	}
	if err := staging.Add(ctx, passages); err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	staging.TrainedAt = idx.now().UTC()

	idx.progress(models.StageWriting, 95, "Publishing index")
	exists := func(filename string) bool {
		return idx.store.Exists(context.WithoutCancel(ctx), filename)
	}
	if err := idx.holder.Publish(ctx, staging, exists); err != nil {
		return fmt.Errorf("publish index: %w", err)
	}
	idx.persist()
	return nil
}

func (idx *Indexer) persist() {
	if idx.indexPath == "" {
		return
	}
	if err := idx.holder.Save(idx.indexPath); err != nil {
		idx.logger.Warn("failed to persist index snapshot", zap.String("path", idx.indexPath), zap.Error(err))
	}
}

// scaled maps done/total into [from, to].
func scaled(from, to, done, total int) int {
	if total <= 0 {
		return to
	}
	return from + (to-from)*done/total
}
