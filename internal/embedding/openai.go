package embedding

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/provider"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	retry      provider.Retry
}

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Dimensions int
	MaxRetries int
	Timeout    time.Duration
}

// NewOpenAIEmbedder creates an embedder reading the API key from cfg.APIKeyEnv.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     key,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
		retry:      provider.Retry{Provider: "openai", MaxRetries: cfg.MaxRetries},
	}, nil
}

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// requestDimensions is the dimensions field to send. Only the text-embedding-3
// family can shorten its output; other models reject the field.
func (e *OpenAIEmbedder) requestDimensions() int {
	if strings.HasPrefix(e.model, "text-embedding-3") {
		return e.dimensions
	}
	return 0
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch embeds texts in one request, ordered by the response index.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}
	var vectors [][]float32
	err := e.retry.Do(ctx, "embed", func(ctx context.Context) error {
		var out openAIEmbedResponse
		if err := provider.PostJSON(ctx, e.client, e.baseURL+"/embeddings", headers,
			openAIEmbedRequest{Input: texts, Model: e.model, Dimensions: e.requestDimensions()}, &out); err != nil {
			return err
		}
		sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
		vectors = make([][]float32, len(out.Data))
		for i, d := range out.Data {
			vectors[i] = d.Embedding
		}
		return checkVectors(vectors, len(texts), e.dimensions)
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Model returns the OpenAI model name.
func (e *OpenAIEmbedder) Model() string { return "openai/" + e.model }

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error { return nil }
