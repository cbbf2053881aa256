package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/provider"
)

// Ollama generates answers with a local Ollama server's /api/chat endpoint.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	retry   provider.Retry
}

// NewOllama creates an Ollama generator.
func NewOllama(baseURL, model string, maxRetries int, timeout time.Duration) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		retry:   provider.Retry{Provider: "ollama", MaxRetries: maxRetries},
	}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

func (g *Ollama) request(req Request, stream bool) ollamaChatRequest {
	return ollamaChatRequest{
		Model:    g.model,
		Messages: BuildMessages(req),
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: req.Options.TemperatureOr(0),
			NumPredict:  req.Options.MaxTokens,
		},
	}
}

// Generate returns the full answer in one response.
func (g *Ollama) Generate(ctx context.Context, req Request) (string, error) {
	var out ollamaChatResponse
	err := g.retry.Do(ctx, "generate", func(ctx context.Context) error {
		out = ollamaChatResponse{}
		if err := provider.PostJSON(ctx, g.client, g.baseURL+"/api/chat", nil, g.request(req, false), &out); err != nil {
			return err
		}
		if out.Error != "" {
			return provider.Permanent(errors.New(out.Error))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.Message.Content, nil
}

// Stream reads the NDJSON response line by line.
func (g *Ollama) Stream(ctx context.Context, req Request, onToken TokenFunc) (string, error) {
	var resp *http.Response
	err := g.retry.Do(ctx, "generate", func(ctx context.Context) error {
		var err error
		resp, err = provider.PostStream(ctx, g.client, g.baseURL+"/api/chat", nil, g.request(req, true))
		return err
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", g.streamError(fmt.Errorf("decoding stream: %w", err))
		}
		if chunk.Error != "" {
			return "", g.streamError(errors.New(chunk.Error))
		}
		if chunk.Message.Content != "" {
			sb.WriteString(chunk.Message.Content)
			if err := onToken(chunk.Message.Content); err != nil {
				return "", err
			}
		}
		if chunk.Done {
			return sb.String(), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := scanner.Err(); err != nil {
		return "", g.streamError(err)
	}
	return sb.String(), nil
}

func (g *Ollama) streamError(err error) error {
	return &models.ProviderError{Provider: "ollama", Op: "generate", Attempts: 1, Err: err}
}

// Model returns the Ollama model name.
func (g *Ollama) Model() string { return "ollama/" + g.model }

// Close is a no-op.
func (g *Ollama) Close() error { return nil }
