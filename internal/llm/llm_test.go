package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPassages = []models.Citation{
	{File: "a.pdf", Page: 2, Score: 0.9, Text: "The warranty covers parts for two years. Labour is not included."},
	{File: "b.pdf", Page: 1, Score: 0.4, Text: "Shipping takes five business days."},
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  Two years.  ", "Two years."},
		{"answer label", "Answer: Two years.", "Two years."},
		{"lowercase label", "answer:Two years.", "Two years."},
		{"think block", "<think>the user wants...</think>\nAnswer: Two years.", "Two years."},
		{"unterminated think", "Two years. <think>more", "Two years."},
		{"label mid text kept", "The Answer: is two years.", "The Answer: is two years."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestBuildMessages(t *testing.T) {
	req := Request{
		History: []models.Turn{
			{Role: models.RoleUser, Text: "hi"},
			{Role: models.RoleAssistant, Text: "hello"},
		},
		Question: "How long is the warranty?",
		Passages: testPassages,
	}
	msgs := BuildMessages(req)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
	last := msgs[3]
	assert.Equal(t, "user", last.Role)
	assert.Contains(t, last.Content, "[Source: a.pdf p.2]")
	assert.Contains(t, last.Content, "[Source: b.pdf p.1]")
	assert.Contains(t, last.Content, "Question: How long is the warranty?")
	assert.True(t, strings.HasSuffix(last.Content, "Answer:"))
}

func TestExtractive_PicksOverlappingSentence(t *testing.T) {
	g := NewExtractive()
	out, err := g.Generate(context.Background(), Request{Question: "How long does the warranty cover parts?", Passages: testPassages})
	require.NoError(t, err)
	assert.Equal(t, "The warranty covers parts for two years. [a.pdf p.2]", out)
}

func TestExtractive_NoPassages(t *testing.T) {
	out, err := NewExtractive().Generate(context.Background(), Request{Question: "anything"})
	require.NoError(t, err)
	assert.Equal(t, noContextAnswer, out)
}

func TestExtractive_NoOverlapFallsBackToTopSentence(t *testing.T) {
	out, err := NewExtractive().Generate(context.Background(), Request{Question: "zebra", Passages: testPassages})
	require.NoError(t, err)
	assert.Equal(t, "The warranty covers parts for two years. [a.pdf p.2]", out)
}

func TestExtractive_MaxTokens(t *testing.T) {
	out, err := NewExtractive().Generate(context.Background(), Request{
		Question: "warranty",
		Passages: testPassages,
		Options:  models.ChatOptions{MaxTokens: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "The warranty covers ...", out)
}

func TestExtractive_StreamMatchesGenerate(t *testing.T) {
	g := NewExtractive()
	req := Request{Question: "shipping days", Passages: testPassages}
	want, err := g.Generate(context.Background(), req)
	require.NoError(t, err)

	var sb strings.Builder
	got, err := g.Stream(context.Background(), req, func(chunk string) error {
		sb.WriteString(chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want, sb.String())
}

func TestExtractive_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExtractive().Generate(ctx, Request{Question: "q", Passages: testPassages})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Version 1.5 shipped.  It works!\nDoes it? yes")
	assert.Equal(t, []string{"Version 1.5 shipped.", "It works!", "Does it?", "yes"}, got)
}

func TestOllama_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "llama3.2", req.Model)
		assert.Equal(t, 64, req.Options.NumPredict)
		_, _ = fmt.Fprint(w, `{"message":{"role":"assistant","content":"Answer: two years"},"done":true}`)
	}))
	defer srv.Close()

	g := NewOllama(srv.URL, "llama3.2", 0, time.Second)
	out, err := g.Generate(context.Background(), Request{Question: "q", Options: models.ChatOptions{MaxTokens: 64}})
	require.NoError(t, err)
	assert.Equal(t, "Answer: two years", out)
	assert.Equal(t, "ollama/llama3.2", g.Model())
}

func TestOllama_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, part := range []string{"two", " years"} {
			_, _ = fmt.Fprintf(w, `{"message":{"content":%q},"done":false}`+"\n", part)
		}
		_, _ = fmt.Fprint(w, `{"message":{"content":""},"done":true}`+"\n")
	}))
	defer srv.Close()

	var chunks []string
	out, err := NewOllama(srv.URL, "m", 0, time.Second).Stream(context.Background(), Request{Question: "q"},
		func(c string) error { chunks = append(chunks, c); return nil })
	require.NoError(t, err)
	assert.Equal(t, "two years", out)
	assert.Equal(t, []string{"two", " years"}, chunks)
}

func TestOllama_RetriesThenProviderError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewOllama(srv.URL, "m", 2, time.Second)
	g.retry.InitialInterval = time.Millisecond
	_, err := g.Generate(context.Background(), Request{Question: "q"})
	var pe *models.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Attempts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestOpenAI_GenerateAndStream(t *testing.T) {
	t.Setenv("KOTAE_TEST_KEY", "sk-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if !req.Stream {
			_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"two years"}}]}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"two\"}}]}\n\n")
		_, _ = fmt.Fprint(w, ": keep-alive\n\n")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" years\"}}]}\n\n")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	g, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKeyEnv: "KOTAE_TEST_KEY", Model: "gpt-test", Timeout: time.Second})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "two years", out)

	var sb strings.Builder
	out, err = g.Stream(context.Background(), Request{Question: "q"}, func(c string) error { sb.WriteString(c); return nil })
	require.NoError(t, err)
	assert.Equal(t, "two years", out)
	assert.Equal(t, "two years", sb.String())
	assert.Equal(t, "openai/gpt-test", g.Model())
}

func TestOpenAI_MissingKey(t *testing.T) {
	t.Setenv("KOTAE_MISSING_KEY", "")
	_, err := NewOpenAI(OpenAIConfig{APIKeyEnv: "KOTAE_MISSING_KEY"})
	assert.Error(t, err)
}

func TestOpenAI_ClientErrorNotRetried(t *testing.T) {
	t.Setenv("KOTAE_TEST_KEY", "sk-test")
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	g, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKeyEnv: "KOTAE_TEST_KEY", MaxRetries: 3})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), Request{Question: "q"})
	var pe *models.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.EqualValues(t, 1, calls.Load())
}

func TestNewGenerator(t *testing.T) {
	g, err := NewGenerator(config.LLMConfig{Provider: "extractive"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ExtractiveModel, g.Model())

	g, err = NewGenerator(config.LLMConfig{Provider: "ollama", Model: "llama3.2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ollama/llama3.2", g.Model())

	_, err = NewGenerator(config.LLMConfig{Provider: "nope"}, nil)
	assert.Error(t, err)
}
