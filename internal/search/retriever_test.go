package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/models"
)

func newTestRetriever(t *testing.T) *Retriever {
	t.Helper()
	ctx := context.Background()
	emb := embedding.NewHashEmbedder(128)
	holder, err := index.NewHolder(128, emb.Model(), "", nil)
	require.NoError(t, err)

	texts := []struct{ file, text string }{
		{"a.pdf", "solar panels convert sunlight into electricity"},
		{"a.pdf", "wind turbines generate power from moving air"},
		{"b.pdf", "the cafeteria menu changes every monday"},
	}
	var passages []*models.Passage
	for i, tx := range texts {
		vec, err := emb.Embed(ctx, tx.text)
		require.NoError(t, err)
		passages = append(passages, &models.Passage{
			ID: tx.file + string(rune('0'+i)), Filename: tx.file, Page: i + 1, Text: tx.text, Embedding: vec,
		})
	}
	snap, err := index.NewSnapshot(128, emb.Model())
	require.NoError(t, err)
	require.NoError(t, snap.Add(ctx, passages))
	require.NoError(t, holder.Publish(ctx, snap, nil))
	return NewRetriever(emb, holder, 2, 3)
}

func TestRetriever_Retrieve(t *testing.T) {
	r := newTestRetriever(t)
	citations, err := r.Retrieve(context.Background(), "How do solar panels make electricity?", 0)
	require.NoError(t, err)
	require.Len(t, citations, 2, "default k")
	assert.Equal(t, "a.pdf", citations[0].File)
	assert.Equal(t, 1, citations[0].Page)
	assert.Contains(t, citations[0].Text, "solar")
	assert.GreaterOrEqual(t, citations[0].Score, citations[1].Score)
}

func TestRetriever_KBounds(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()
	citations, err := r.Retrieve(ctx, "power", 50)
	require.NoError(t, err)
	assert.Len(t, citations, 3, "capped at max_top_k and index size")
	assert.Equal(t, 2, r.TopK(0))
	assert.Equal(t, 3, r.TopK(10))
	assert.Equal(t, 1, r.TopK(1))

	_, err = r.Retrieve(ctx, "   ", 1)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRetriever_EmptyIndex(t *testing.T) {
	emb := embedding.NewHashEmbedder(16)
	holder, err := index.NewHolder(16, emb.Model(), "", nil)
	require.NoError(t, err)
	r := NewRetriever(emb, holder, 4, 10)
	citations, err := r.Retrieve(context.Background(), "anything", 4)
	require.NoError(t, err)
	assert.Empty(t, citations)
}

func TestRetriever_SearchModes(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()

	kw, err := r.Search(ctx, "cafeteria", 3, models.SearchKeyword, nil)
	require.NoError(t, err)
	require.Len(t, kw.Hits, 1)
	assert.Equal(t, "b.pdf", kw.Hits[0].File)
	assert.Equal(t, 1.0, kw.Hits[0].Score)

	sem, err := r.Search(ctx, "wind turbines", 1, models.SearchSemantic, nil)
	require.NoError(t, err)
	require.Len(t, sem.Hits, 1)
	assert.Equal(t, 2, sem.Hits[0].Page)

	hy, err := r.Search(ctx, "solar electricity", 3, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.SearchHybrid, hy.Mode)
	require.NotEmpty(t, hy.Hits)
	assert.Equal(t, "a.pdf", hy.Hits[0].File)
	assert.Equal(t, 1, hy.Hits[0].Page)

	_, err = r.Search(ctx, "x", 3, "bogus", nil)
	assert.Error(t, err)
}
