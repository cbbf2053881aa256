// Package chat keeps per-client conversations and answers questions over the live index.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is empty")

// DefaultClientID is used when a request carries no client id.
const DefaultClientID = "default"

// Retriever finds the passages a question is grounded on.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.Citation, error)
}

// Manager answers chat requests and owns every client's history.
type Manager struct {
	retriever Retriever
	generator llm.Generator
	counter   TokenCounter
	logger    *zap.Logger

	maxTurns    int
	tokenBudget int
	maxTokens   int
	temperature float64

	mu       sync.Mutex
	sessions map[string][]models.Turn
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithHistoryLimits bounds each client's history by turn count and token budget.
// Zero disables a bound.
func WithHistoryLimits(turns, tokenBudget int) Option {
	return func(m *Manager) {
		m.maxTurns = turns
		m.tokenBudget = tokenBudget
	}
}

// WithDefaults sets generation options used when a request leaves them unset.
func WithDefaults(maxTokens int, temperature float64) Option {
	return func(m *Manager) {
		m.maxTokens = maxTokens
		m.temperature = temperature
	}
}

// WithTokenCounter overrides the history token counter.
func WithTokenCounter(c TokenCounter) Option {
	return func(m *Manager) {
		if c != nil {
			m.counter = c
		}
	}
}

// NewManager creates a chat manager. History token budgeting uses tiktoken and
// falls back to word counts when the encoding cannot be loaded.
func NewManager(retriever Retriever, generator llm.Generator, opts ...Option) *Manager {
	m := &Manager{
		retriever:   retriever,
		generator:   generator,
		logger:      zap.NewNop(),
		maxTurns:    20,
		tokenBudget: 2000,
		maxTokens:   512,
		temperature: 0.2,
		sessions:    make(map[string][]models.Turn),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.counter == nil {
		if c, err := NewTiktokenCounter(); err == nil {
			m.counter = c
		} else {
			m.logger.Warn("tiktoken unavailable, counting words", zap.Error(err))
			m.counter = WordCounter{}
		}
	}
	return m
}

// Handle answers one question. The question and answer are appended to the
// client's history only when the request completes; on error or cancellation
// history is left untouched.
func (m *Manager) Handle(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	return m.handle(ctx, req, nil)
}

// HandleStream is Handle with partial answer text delivered to onToken.
func (m *Manager) HandleStream(ctx context.Context, req models.ChatRequest, onToken llm.TokenFunc) (*models.ChatResponse, error) {
	return m.handle(ctx, req, onToken)
}

func (m *Manager) handle(ctx context.Context, req models.ChatRequest, onToken llm.TokenFunc) (*models.ChatResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	clientID := clientKey(req.ClientID)
	opts := m.options(req.ChatOptions)
	log := m.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("client_id", clientID))
	start := time.Now()

	passages, err := m.retriever.Retrieve(ctx, question, opts.TopK)
	if err != nil {
		return nil, err
	}

	greq := llm.Request{
		History:  m.History(clientID),
		Question: question,
		Passages: passages,
		Options:  opts,
	}
	var raw string
	if onToken != nil {
		raw, err = m.generator.Stream(ctx, greq, onToken)
	} else {
		raw, err = m.generator.Generate(ctx, greq)
	}
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("chat request cancelled")
			return nil, ctx.Err()
		}
		return nil, err
	}
	// A request cancelled after generation still records nothing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answer := llm.Normalize(raw)
	m.commit(clientID, question, answer)

	if opts.ShowRaw {
		answer = raw
	}
	log.Info("chat answered",
		zap.Int("sources", len(passages)),
		zap.Int("top_k", opts.TopK),
		zap.Duration("took", time.Since(start)))
	if passages == nil {
		passages = []models.Citation{}
	}
	return &models.ChatResponse{Answer: answer, Sources: passages}, nil
}

// options fills unset generation knobs from the manager defaults.
func (m *Manager) options(in models.ChatOptions) models.ChatOptions {
	out := in
	if out.MaxTokens <= 0 {
		out.MaxTokens = m.maxTokens
	}
	t := min(max(out.TemperatureOr(m.temperature), 0), 2)
	out.Temperature = &t
	return out
}

// commit appends the question and answer as one unit, then trims the oldest
// pairs until the history fits the turn and token bounds. The newest pair is
// always kept.
func (m *Manager) commit(clientID, question, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := append(m.sessions[clientID],
		models.Turn{Role: models.RoleUser, Text: question},
		models.Turn{Role: models.RoleAssistant, Text: answer})
	for len(h) > 2 && m.over(h) {
		h = h[2:]
	}
	m.sessions[clientID] = h
}

func (m *Manager) over(h []models.Turn) bool {
	if m.maxTurns > 0 && len(h) > m.maxTurns {
		return true
	}
	if m.tokenBudget > 0 {
		total := 0
		for _, t := range h {
			total += m.counter.Count(t.Text)
		}
		return total > m.tokenBudget
	}
	return false
}

// History returns a copy of the client's turns, oldest first.
func (m *Manager) History(clientID string) []models.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.sessions[clientKey(clientID)]
	out := make([]models.Turn, len(h))
	copy(out, h)
	return out
}

// Reset clears one client's history.
func (m *Manager) Reset(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, clientKey(clientID))
}

// Sessions returns the number of clients with history.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func clientKey(id string) string {
	if id = strings.TrimSpace(id); id == "" {
		return DefaultClientID
	}
	return id
}
