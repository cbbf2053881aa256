package keyword

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/kotae/internal/models"
)

const batchSize = 500

// passageDoc is the indexed form of a passage.
type passageDoc struct {
	Text string `json:"text"`
	File string `json:"file"`
	Page int    `json:"page"`
}

// BleveIndex implements KeywordIndex with an in-memory Bleve index.
// It is rebuilt with every training run, so nothing is persisted.
type BleveIndex struct {
	index bleve.Index
}

// NewMemIndex creates an empty in-memory Bleve index for passages.
func NewMemIndex() (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize, no stemming.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("file", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("page", bleve.NewNumericFieldMapping())
	im.AddDocumentMapping("passage", docMapping)
	im.DefaultType = "passage"
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds passages in batches.
func (b *BleveIndex) Index(ctx context.Context, passages []*models.Passage) error {
	batch := b.index.NewBatch()
	for _, p := range passages {
		if err := batch.Index(p.ID, passageDoc{Text: p.Text, File: p.Filename, Page: p.Page}); err != nil {
			return fmt.Errorf("index passage %s: %w", p.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("Bleve batch failed: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve batch failed: %w", err)
		}
	}
	return nil
}

// Search runs a match query over passage text and returns up to limit results.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	var q blevequery.Query
	if opts != nil && opts.FuzzyEnabled {
		fuzziness := opts.Fuzziness
		if fuzziness <= 0 {
			fuzziness = 1
		}
		q = buildFuzzyQuery(query, fuzziness)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField("text")
		q = mq
	}
	if opts != nil && opts.Filename != "" {
		fq := bleve.NewTermQuery(opts.Filename)
		fq.SetField("file")
		q = bleve.NewConjunctionQuery(q, fq)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"text", "file", "page"}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		r := &KeywordResult{ID: hit.ID, Score: hit.Score}
		r.Text, _ = hit.Fields["text"].(string)
		r.File, _ = hit.Fields["file"].(string)
		if page, ok := hit.Fields["page"].(float64); ok {
			r.Page = int(page)
		}
		out[i] = r
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of fuzzy term queries over the text field.
func buildFuzzyQuery(queryStr string, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField("text")
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DeleteFile removes every passage of filename and returns how many were removed.
func (b *BleveIndex) DeleteFile(ctx context.Context, filename string) (int, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	tq := bleve.NewTermQuery(filename)
	tq.SetField("file")
	req := bleve.NewSearchRequest(tq)
	req.Size = int(count)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("Bleve search failed: %w", err)
	}
	if len(results.Hits) == 0 {
		return 0, nil
	}
	batch := b.index.NewBatch()
	for _, hit := range results.Hits {
		batch.Delete(hit.ID)
	}
	if err := b.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("Bleve batch failed: %w", err)
	}
	return len(results.Hits), nil
}

// DocCount returns the number of indexed passages.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

var _ KeywordIndex = (*BleveIndex)(nil)
