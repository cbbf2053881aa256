package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

func openPDF(content []byte) (r *pdf.Reader, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("open PDF: %v", rec)
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	return r, nil
}

func extractPDF(content []byte) (pages []Page, err error) {
	r, err := openPDF(content)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("read PDF: %v", rec)
		}
	}()
	numPages := r.NumPage()
	pages = make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

func countPDFPages(content []byte) (n int, err error) {
	r, err := openPDF(content)
	if err != nil {
		return 0, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("read PDF: %v", rec)
		}
	}()
	return r.NumPage(), nil
}
