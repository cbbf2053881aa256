package e2e

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/status"
	"github.com/hyperjump/kotae/internal/storage"
)

const (
	e2eDimensions = 512
	e2eTopK       = 3
)

type engine struct {
	store     *storage.Store
	holder    *index.Holder
	indexer   *indexer.Indexer
	retriever *search.Retriever
	chat      *chat.Manager
}

func newEngine(t *testing.T, dir string) *engine {
	t.Helper()
	meta, err := storage.NewSQLiteStorage(filepath.Join(dir, "documents.db"))
	require.NoError(t, err)
	extractor := extract.NewExtractor()
	store, err := storage.NewStore(filepath.Join(dir, "uploads"), meta, extractor)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	embedder := embedding.NewHashEmbedder(e2eDimensions)
	gen := llm.NewExtractive()
	holder, err := index.NewHolder(e2eDimensions, embedder.Model(), gen.Model(), nil)
	require.NoError(t, err)
	idx := indexer.NewIndexer(store, extractor, indexer.NewChunker(60, 10), embedder, holder, status.NewPublisher(),
		indexer.WithSnapshotPath(filepath.Join(dir, "index", "vectors.bin")))
	retriever := search.NewRetriever(embedder, holder, e2eTopK, 20)
	return &engine{
		store:     store,
		holder:    holder,
		indexer:   idx,
		retriever: retriever,
		chat:      chat.NewManager(retriever, gen, chat.WithTokenCounter(chat.WordCounter{})),
	}
}

func trainLibrary(t *testing.T, e *engine, lib *Library) {
	t.Helper()
	ctx := context.Background()
	for _, m := range lib.Manuals {
		_, err := e.store.Save(ctx, m.Filename, m.PDF())
		require.NoError(t, err, m.Filename)
	}
	res, err := e.indexer.Train(ctx)
	require.NoError(t, err)
	require.Equal(t, len(lib.Manuals), res.Documents)
	require.Zero(t, res.Skipped)
}

func cites(sources []models.Citation, file string, page int) bool {
	for _, s := range sources {
		if s.File == file && s.Page == page {
			return true
		}
	}
	return false
}

func TestE2E_AnswersCiteTheRightPage(t *testing.T) {
	lib := BuildLibrary()
	e := newEngine(t, t.TempDir())
	trainLibrary(t, e, lib)
	ctx := context.Background()

	info := e.holder.Info()
	assert.GreaterOrEqual(t, info.VectorCount, 3*len(lib.Manuals))
	require.NotNil(t, info.LastTrainedAt)

	for _, tc := range lib.Cases {
		t.Run(tc.Filename, func(t *testing.T) {
			resp, err := e.chat.Handle(ctx, models.ChatRequest{Question: tc.Question, ClientID: tc.Filename})
			require.NoError(t, err)
			assert.True(t, cites(resp.Sources, tc.Filename, 2),
				"question %q: expected %s p.2 among %v", tc.Question, tc.Filename, resp.Sources)
			assert.Contains(t, resp.Answer, "["+tc.Filename+" p.2]")
		})
	}
}

func TestE2E_SearchModesFindTheFact(t *testing.T) {
	lib := BuildLibrary()
	e := newEngine(t, t.TempDir())
	trainLibrary(t, e, lib)
	ctx := context.Background()

	for _, mode := range []models.SearchMode{models.SearchKeyword, models.SearchSemantic, models.SearchHybrid} {
		for _, tc := range lib.Cases {
			t.Run(string(mode)+"/"+tc.Filename, func(t *testing.T) {
				resp, err := e.retriever.Search(ctx, tc.Question, e2eTopK, mode, nil)
				require.NoError(t, err)
				found := false
				for _, h := range resp.Hits {
					if h.File == tc.Filename && h.Page == 2 {
						found = true
					}
				}
				assert.True(t, found, "query %q (%s): %s p.2 not in %v", tc.Question, mode, tc.Filename, resp.Hits)
			})
		}
	}
}

func TestE2E_DeleteAndReload(t *testing.T) {
	lib := BuildLibrary()
	dir := t.TempDir()
	e := newEngine(t, dir)
	trainLibrary(t, e, lib)
	ctx := context.Background()

	removed := lib.Cases[0]
	require.NoError(t, e.indexer.RemoveDocument(ctx, removed.Filename))

	got, err := e.retriever.Retrieve(ctx, removed.Question, 20)
	require.NoError(t, err)
	for _, c := range got {
		assert.NotEqual(t, removed.Filename, c.File)
	}

	// A second engine over the same directory restores the persisted snapshot.
	require.NoError(t, e.store.Close())
	reloaded := newEngine(t, dir)
	require.NoError(t, reloaded.holder.Load(ctx, filepath.Join(dir, "index", "vectors.bin"), embedding.HashModel))
	kept := lib.Cases[1]
	got, err = reloaded.retriever.Retrieve(ctx, kept.Question, e2eTopK)
	require.NoError(t, err)
	assert.True(t, cites(got, kept.Filename, 2), "reloaded index lost %s", kept.Filename)

	got, err = reloaded.retriever.Retrieve(ctx, removed.Question, 20)
	require.NoError(t, err)
	for _, c := range got {
		assert.NotEqual(t, removed.Filename, c.File, "deleted document came back after reload")
	}
}
