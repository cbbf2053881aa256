package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown filenames.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a training run is already active.
	ErrConflict = errors.New("training already in progress")
	// ErrNotPDF is returned when an upload is not a PDF.
	ErrNotPDF = errors.New("only PDF files are accepted")
)

// ExtractionError means a document could not yield text (corrupt, encrypted or empty).
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ProviderError is a failed call to the embedding or generation provider after retries.
type ProviderError struct {
	Provider string
	Op       string
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Provider, e.Op, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
