package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/provider"
)

// OpenAI generates answers with an OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	retry   provider.Retry
}

// OpenAIConfig configures an OpenAI generator.
type OpenAIConfig struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

// NewOpenAI creates a generator reading the API key from cfg.APIKeyEnv.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	return &OpenAI{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  key,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		retry:   provider.Retry{Provider: "openai", MaxRetries: cfg.MaxRetries},
	}, nil
}

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (g *OpenAI) request(req Request, stream bool) openAIChatRequest {
	return openAIChatRequest{
		Model:       g.model,
		Messages:    BuildMessages(req),
		MaxTokens:   req.Options.MaxTokens,
		Temperature: req.Options.TemperatureOr(0),
		Stream:      stream,
	}
}

func (g *OpenAI) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + g.apiKey}
}

// Generate returns the first choice's message.
func (g *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	var out openAIChatResponse
	err := g.retry.Do(ctx, "generate", func(ctx context.Context) error {
		out = openAIChatResponse{}
		if err := provider.PostJSON(ctx, g.client, g.baseURL+"/chat/completions", g.headers(), g.request(req, false), &out); err != nil {
			return err
		}
		if len(out.Choices) == 0 {
			return provider.Permanent(errors.New("no choices returned"))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.Choices[0].Message.Content, nil
}

// Stream reads server-sent "data:" lines until [DONE].
func (g *OpenAI) Stream(ctx context.Context, req Request, onToken TokenFunc) (string, error) {
	var resp *http.Response
	err := g.retry.Do(ctx, "generate", func(ctx context.Context) error {
		var err error
		resp, err = provider.PostStream(ctx, g.client, g.baseURL+"/chat/completions", g.headers(), g.request(req, true))
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
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return sb.String(), nil
		}
		var chunk openAIChatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", g.streamError(fmt.Errorf("decoding stream: %w", err))
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content == "" {
				continue
			}
			sb.WriteString(c.Delta.Content)
			if err := onToken(c.Delta.Content); err != nil {
				return "", err
			}
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

func (g *OpenAI) streamError(err error) error {
	return &models.ProviderError{Provider: "openai", Op: "generate", Attempts: 1, Err: err}
}

// Model returns the OpenAI model name.
func (g *OpenAI) Model() string { return "openai/" + g.model }

// Close is a no-op.
func (g *OpenAI) Close() error { return nil }
