package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/provider"
)

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
	retry      provider.Retry
}

// NewOllamaEmbedder creates an Ollama embedder that expects vectors of the given dimensions.
func NewOllamaEmbedder(baseURL, model string, dimensions, maxRetries int) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 60 * time.Second},
		retry:      provider.Retry{Provider: "ollama", MaxRetries: maxRetries},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out ollamaEmbedResponse
	err := e.retry.Do(ctx, "embed", func(ctx context.Context) error {
		out = ollamaEmbedResponse{}
		if err := provider.PostJSON(ctx, e.client, e.baseURL+"/api/embed", nil,
			ollamaEmbedRequest{Model: e.model, Input: texts}, &out); err != nil {
			return err
		}
		return checkVectors(out.Embeddings, len(texts), e.dimensions)
	})
	if err != nil {
		return nil, err
	}
	return out.Embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int { return e.dimensions }

// Model returns the Ollama model name.
func (e *OllamaEmbedder) Model() string { return "ollama/" + e.model }

// Close is a no-op.
func (e *OllamaEmbedder) Close() error { return nil }

// checkVectors validates the count and size of returned vectors.
func checkVectors(vectors [][]float32, want, dims int) error {
	if len(vectors) != want {
		return provider.Permanent(fmt.Errorf("got %d embeddings for %d inputs", len(vectors), want))
	}
	for _, v := range vectors {
		if len(v) != dims {
			return provider.Permanent(fmt.Errorf("%w: got %d, configured %d", ErrDimension, len(v), dims))
		}
	}
	return nil
}
