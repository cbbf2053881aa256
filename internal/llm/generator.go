// Package llm turns a question, its retrieved passages and the chat history into an answer.
package llm

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Request is everything a generator sees for one chat turn.
type Request struct {
	History  []models.Turn
	Question string
	Passages []models.Citation
	Options  models.ChatOptions
}

// TokenFunc receives partial answer text while a stream is in progress.
// Returning an error aborts the stream.
type TokenFunc func(chunk string) error

// Generator produces answers. Both methods return the raw provider text;
// callers normalize it when show_raw is false.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// Stream calls onToken for each chunk and returns the concatenated text.
	Stream(ctx context.Context, req Request, onToken TokenFunc) (string, error)
	Model() string
	Close() error
}
