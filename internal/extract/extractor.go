// Package extract provides page-level text extraction from PDF documents.
package extract

import (
	"errors"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNoText is returned when a PDF parses but holds no extractable text
// (scanned images, empty pages).
var ErrNoText = errors.New("no extractable text")

// Page is the text of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Extractor extracts text from PDF files page by page.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractBytes returns the non-empty pages of the PDF in content. It fails when the
// document cannot be opened (corrupt or encrypted) or no page has any text.
func (e *Extractor) ExtractBytes(filename string, content []byte) ([]Page, error) {
	pages, err := extractPDF(content)
	if err != nil {
		return nil, &models.ExtractionError{Filename: filename, Err: err}
	}
	out := pages[:0]
	for _, p := range pages {
		p.Text = sanitize(p.Text)
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, &models.ExtractionError{Filename: filename, Err: ErrNoText}
	}
	return out, nil
}

// PageCount returns the number of pages in the PDF, or an error when it cannot be opened.
func (e *Extractor) PageCount(content []byte) (int, error) {
	return countPDFPages(content)
}
