package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/status"
	"github.com/hyperjump/kotae/internal/storage"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Store     *storage.Store
	Embedder  embedding.Embedder
	Generator llm.Generator
	Holder    *index.Holder
	Status    *status.Publisher
	Indexer   *indexer.Indexer
	Retriever *search.Retriever
	Chat      *chat.Manager
}

// Close releases every component, collecting all errors.
func (c *Components) Close() error {
	var err error
	if c.Embedder != nil {
		err = multierr.Append(err, c.Embedder.Close())
	}
	if c.Generator != nil {
		err = multierr.Append(err, c.Generator.Close())
	}
	if c.Holder != nil {
		if snap := c.Holder.Current(); snap != nil {
			err = multierr.Append(err, snap.Close())
		}
	}
	if c.Store != nil {
		err = multierr.Append(err, c.Store.Close())
	}
	return err
}

// ServerDependencies wires the components into the HTTP API.
func (c *Components) ServerDependencies() server.Dependencies {
	return server.Dependencies{
		Documents: c.Store,
		Trainer:   c.Indexer,
		Progress:  c.Status,
		Index:     c.Holder,
		Chat:      c.Chat,
		Search:    c.Retriever,
	}
}

// initializeComponents builds the full engine from cfg and loads the persisted
// index. A persisted index built with a different embedding model or dimension
// is a configuration error.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, c.Close())
		}
	}()

	meta, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metadata store: %w", err)
	}
	extractor := extract.NewExtractor()
	c.Store, err = storage.NewStore(cfg.Storage.UploadDir, meta, extractor, storage.WithStoreLogger(logger))
	if err != nil {
		_ = meta.Close()
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}

	c.Embedder, err = embedding.NewEmbedder(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	c.Generator, err = llm.NewGenerator(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	c.Holder, err = index.NewHolder(c.Embedder.Dimensions(), c.Embedder.Model(), c.Generator.Model(), logger)
	if err != nil {
		return nil, err
	}
	if err := c.Holder.Load(ctx, cfg.Storage.IndexPath, c.Embedder.Model()); err != nil {
		if errors.Is(err, index.ErrModelMismatch) {
			return nil, fmt.Errorf("index at %s: %w", cfg.Storage.IndexPath, err)
		}
		return nil, fmt.Errorf("failed to load index %s: %w", cfg.Storage.IndexPath, err)
	}

	c.Status = status.NewPublisher()
	c.Indexer = indexer.NewIndexer(
		c.Store,
		extractor,
		indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap()),
		c.Embedder,
		c.Holder,
		c.Status,
		indexer.WithLogger(logger),
		indexer.WithBatching(cfg.Embedding.BatchSize, cfg.Embedding.Concurrency),
		indexer.WithSnapshotPath(cfg.Storage.IndexPath),
	)
	c.Retriever = search.NewRetriever(c.Embedder, c.Holder, cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK)
	c.Chat = chat.NewManager(c.Retriever, c.Generator,
		chat.WithLogger(logger),
		chat.WithHistoryLimits(cfg.Chat.HistoryTurns, cfg.Chat.HistoryTokenBudget),
		chat.WithDefaults(cfg.Chat.DefaultMaxTokens, cfg.Chat.Temperature()),
	)
	return c, nil
}
