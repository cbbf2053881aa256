package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	citations []models.Citation
	lastK     int
	err       error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, k int) ([]models.Citation, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.citations, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	answer  string
	err     error
	block   chan struct{}
	started chan struct{}
	seen    []llm.Request
}

func (g *fakeGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	g.seen = append(g.seen, req)
	g.mu.Unlock()
	if g.started != nil {
		close(g.started)
	}
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *fakeGenerator) Stream(ctx context.Context, req llm.Request, onToken llm.TokenFunc) (string, error) {
	out, err := g.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	for _, w := range strings.SplitAfter(out, " ") {
		if err := onToken(w); err != nil {
			return "", err
		}
	}
	return out, nil
}

func (g *fakeGenerator) Model() string { return "fake" }
func (g *fakeGenerator) Close() error  { return nil }

var citations = []models.Citation{
	{PassageID: "p1", File: "a.pdf", Page: 2, Score: 0.8, Text: "two year warranty"},
	{PassageID: "p2", File: "b.pdf", Page: 1, Score: 0.3, Text: "shipping"},
}

func newTestManager(r Retriever, g llm.Generator, opts ...Option) *Manager {
	return NewManager(r, g, append([]Option{WithTokenCounter(WordCounter{})}, opts...)...)
}

func TestHandle_ReturnsPassagesAndRecordsHistory(t *testing.T) {
	r := &fakeRetriever{citations: citations}
	g := &fakeGenerator{answer: "Answer: Two years."}
	m := newTestManager(r, g)

	resp, err := m.Handle(context.Background(), models.ChatRequest{
		Question:    "How long is the warranty?",
		ClientID:    "c1",
		ChatOptions: models.ChatOptions{TopK: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "Two years.", resp.Answer)
	assert.Equal(t, citations, resp.Sources)
	assert.Equal(t, 2, r.lastK)

	require.Len(t, g.seen, 1)
	assert.Equal(t, citations, g.seen[0].Passages)
	assert.Empty(t, g.seen[0].History)

	assert.Equal(t, []models.Turn{
		{Role: models.RoleUser, Text: "How long is the warranty?"},
		{Role: models.RoleAssistant, Text: "Two years."},
	}, m.History("c1"))
}

func TestHandle_ShowRawKeepsProviderText(t *testing.T) {
	m := newTestManager(&fakeRetriever{}, &fakeGenerator{answer: "<think>hmm</think> Answer: yes"})
	resp, err := m.Handle(context.Background(), models.ChatRequest{
		Question:    "q",
		ChatOptions: models.ChatOptions{ShowRaw: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "<think>hmm</think> Answer: yes", resp.Answer)
	assert.NotNil(t, resp.Sources)
	assert.Equal(t, "yes", m.History("")[1].Text)
}

func TestHandle_PassesHistoryToGenerator(t *testing.T) {
	g := &fakeGenerator{answer: "ok"}
	m := newTestManager(&fakeRetriever{}, g)
	ctx := context.Background()
	_, err := m.Handle(ctx, models.ChatRequest{Question: "first", ClientID: "c"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, models.ChatRequest{Question: "second", ClientID: "c"})
	require.NoError(t, err)

	require.Len(t, g.seen, 2)
	assert.Equal(t, []models.Turn{
		{Role: models.RoleUser, Text: "first"},
		{Role: models.RoleAssistant, Text: "ok"},
	}, g.seen[1].History)
	assert.Len(t, m.History("c"), 4)
}

func TestHandle_DefaultsApplied(t *testing.T) {
	g := &fakeGenerator{answer: "ok"}
	m := newTestManager(&fakeRetriever{}, g, WithDefaults(256, 0.7))
	_, err := m.Handle(context.Background(), models.ChatRequest{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, 256, g.seen[0].Options.MaxTokens)
	require.NotNil(t, g.seen[0].Options.Temperature)
	assert.InDelta(t, 0.7, *g.seen[0].Options.Temperature, 1e-9)
}

func TestHandle_TemperatureZeroIsKept(t *testing.T) {
	zero, hot, negative := 0.0, 5.0, -1.0
	tests := []struct {
		name string
		in   *float64
		want float64
	}{
		{"unset takes default", nil, 0.7},
		{"zero is deterministic", &zero, 0},
		{"capped at two", &hot, 2},
		{"negative clamps to zero", &negative, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGenerator{answer: "ok"}
			m := newTestManager(&fakeRetriever{}, g, WithDefaults(256, 0.7))
			_, err := m.Handle(context.Background(), models.ChatRequest{
				Question:    "q",
				ChatOptions: models.ChatOptions{Temperature: tt.in},
			})
			require.NoError(t, err)
			require.NotNil(t, g.seen[0].Options.Temperature)
			assert.InDelta(t, tt.want, *g.seen[0].Options.Temperature, 1e-9)
		})
	}
}

func TestHandle_EmptyQuestion(t *testing.T) {
	m := newTestManager(&fakeRetriever{}, &fakeGenerator{})
	_, err := m.Handle(context.Background(), models.ChatRequest{Question: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestHandle_CancelledRecordsNothing(t *testing.T) {
	g := &fakeGenerator{answer: "late", block: make(chan struct{}), started: make(chan struct{})}
	m := newTestManager(&fakeRetriever{citations: citations}, g)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Handle(ctx, models.ChatRequest{Question: "q", ClientID: "c"})
		errCh <- err
	}()
	<-g.started
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Handle did not return after cancel")
	}
	assert.Empty(t, m.History("c"))
}

func TestHandle_GeneratorErrorRecordsNothing(t *testing.T) {
	perr := &models.ProviderError{Provider: "ollama", Op: "generate", Attempts: 3, Err: errors.New("down")}
	m := newTestManager(&fakeRetriever{}, &fakeGenerator{err: perr})
	_, err := m.Handle(context.Background(), models.ChatRequest{Question: "q", ClientID: "c"})
	var pe *models.ProviderError
	assert.ErrorAs(t, err, &pe)
	assert.Empty(t, m.History("c"))
}

func TestHandle_RetrieverError(t *testing.T) {
	boom := errors.New("boom")
	g := &fakeGenerator{answer: "x"}
	m := newTestManager(&fakeRetriever{err: boom}, g)
	_, err := m.Handle(context.Background(), models.ChatRequest{Question: "q"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, g.seen)
}

func TestReset_IsolatesClients(t *testing.T) {
	m := newTestManager(&fakeRetriever{}, &fakeGenerator{answer: "ok"})
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, err := m.Handle(ctx, models.ChatRequest{Question: "hi", ClientID: id})
		require.NoError(t, err)
	}
	m.Reset("a")
	assert.Empty(t, m.History("a"))
	assert.Len(t, m.History("b"), 2)
	assert.Equal(t, 1, m.Sessions())
}

func TestHistory_TurnLimit(t *testing.T) {
	m := newTestManager(&fakeRetriever{}, &fakeGenerator{answer: "ok"}, WithHistoryLimits(4, 0))
	ctx := context.Background()
	for _, q := range []string{"one", "two", "three"} {
		_, err := m.Handle(ctx, models.ChatRequest{Question: q, ClientID: "c"})
		require.NoError(t, err)
	}
	h := m.History("c")
	require.Len(t, h, 4)
	assert.Equal(t, "two", h[0].Text)
	assert.Equal(t, "three", h[2].Text)
}

func TestHistory_TokenBudgetKeepsNewestPair(t *testing.T) {
	m := newTestManager(&fakeRetriever{}, &fakeGenerator{answer: "a b c d e"}, WithHistoryLimits(0, 8))
	ctx := context.Background()
	_, err := m.Handle(ctx, models.ChatRequest{Question: "one", ClientID: "c"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, models.ChatRequest{Question: "two", ClientID: "c"})
	require.NoError(t, err)

	h := m.History("c")
	require.Len(t, h, 2)
	assert.Equal(t, "two", h[0].Text)
}

func TestHandleStream(t *testing.T) {
	m := newTestManager(&fakeRetriever{citations: citations}, &fakeGenerator{answer: "two year warranty"})
	var chunks []string
	resp, err := m.HandleStream(context.Background(), models.ChatRequest{Question: "q", ClientID: "s"},
		func(c string) error { chunks = append(chunks, c); return nil })
	require.NoError(t, err)
	assert.Equal(t, "two year warranty", strings.Join(chunks, ""))
	assert.Equal(t, "two year warranty", resp.Answer)
	assert.Equal(t, citations, resp.Sources)
	assert.Len(t, m.History("s"), 2)
}

func TestTiktokenCounter(t *testing.T) {
	c, err := NewTiktokenCounter()
	require.NoError(t, err)
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 2, c.Count("hello world"))
}

func TestWithExtractiveGenerator(t *testing.T) {
	m := newTestManager(&fakeRetriever{citations: citations}, llm.NewExtractive())
	resp, err := m.Handle(context.Background(), models.ChatRequest{Question: "warranty length"})
	require.NoError(t, err)
	assert.Equal(t, "two year warranty [a.pdf p.2]", resp.Answer)
}
