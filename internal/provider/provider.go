// Package provider holds the HTTP plumbing shared by the embedding and generation
// clients: JSON requests, status classification and retry with exponential backoff.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hyperjump/kotae/internal/models"
)

// DefaultInitialInterval is the first retry delay.
const DefaultInitialInterval = 500 * time.Millisecond

// StatusError is a non-2xx response from a provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying (429 and 5xx).
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Retry describes how a provider call is retried.
type Retry struct {
	Provider   string
	MaxRetries int
	// InitialInterval defaults to DefaultInitialInterval.
	InitialInterval time.Duration
}

// Do runs fn until it succeeds, returns a non-retryable error, the retries are
// exhausted or ctx is done. Failures are returned as *models.ProviderError.
// Context cancellation is returned unwrapped.
func (r Retry) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	initial := r.InitialInterval
	if initial <= 0 {
		initial = DefaultInitialInterval
	}
	retries := r.MaxRetries
	if retries < 0 {
		retries = 0
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.MaxInterval = 10 * time.Second
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return backoff.Permanent(pe.err)
		}
		return err
	}, policy)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	return &models.ProviderError{Provider: r.Provider, Op: op, Attempts: attempts, Err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying (malformed response, wrong dimension).
func Permanent(err error) error {
	return &permanentError{err: err}
}

// PostJSON sends body as JSON to url and decodes a 2xx JSON response into out.
// Non-2xx responses yield *StatusError.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	resp, err := post(ctx, client, url, headers, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Permanent(fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// PostStream sends body as JSON and returns the open response for streaming reads.
// The caller closes the body.
func PostStream(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) (*http.Response, error) {
	return post(ctx, client, url, headers, body)
}

func post(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, Permanent(fmt.Errorf("marshaling request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	return resp, nil
}
