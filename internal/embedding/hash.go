package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/kotae/pkg/utils"
)

// HashModel is the model identifier of HashEmbedder.
const HashModel = "hash-bow-v1"

// HashEmbedder is a deterministic, offline embedder using feature hashing over words.
// Texts that share words get similar vectors, so retrieval works without a model server.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder of the given dimensions (default 384).
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the L2-normalized, sublinear term-frequency vector of text.
// Text without any terms yields the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	counts := make(map[string]int)
	for _, term := range Terms(text) {
		counts[term]++
	}
	emb := make([]float32, e.dimensions)
	for term, n := range counts {
		h := HashString(term)
		bucket := h % e.dimensions
		sign := float32(1)
		if (h/e.dimensions)%2 == 1 {
			sign = -1
		}
		emb[bucket] += sign * float32(1+math.Log(float64(n)))
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns HashModel.
func (e *HashEmbedder) Model() string {
	return HashModel
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
