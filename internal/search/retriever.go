// Package search retrieves passages for questions: semantic top-k for chat
// grounding plus keyword and hybrid passage search.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query is empty")

// snippetLen is the maximum snippet length in /api/search results.
const snippetLen = 240

// Retriever embeds questions and searches the live index.
type Retriever struct {
	embedder embedding.Embedder
	holder   *index.Holder
	defaultK int
	maxK     int
}

// NewRetriever creates a retriever. defaultK applies when k <= 0; k is capped at maxK.
func NewRetriever(embedder embedding.Embedder, holder *index.Holder, defaultK, maxK int) *Retriever {
	if defaultK <= 0 {
		defaultK = 4
	}
	if maxK < defaultK {
		maxK = defaultK
	}
	return &Retriever{embedder: embedder, holder: holder, defaultK: defaultK, maxK: maxK}
}

// TopK resolves a requested k against the default and the cap.
func (r *Retriever) TopK(k int) int {
	if k <= 0 {
		return r.defaultK
	}
	if k > r.maxK {
		return r.maxK
	}
	return k
}

// Retrieve returns up to k citations by descending cosine similarity. Scores are the
// raw similarity values. Fewer than k are returned only when the index is smaller.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]models.Citation, error) {
	hits, err := r.semantic(ctx, query, r.TopK(k))
	if err != nil {
		return nil, err
	}
	citations := make([]models.Citation, len(hits))
	for i, h := range hits {
		citations[i] = models.NewCitation(h)
	}
	return citations, nil
}

func (r *Retriever) semantic(ctx context.Context, query string, k int) ([]models.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.holder.Search(ctx, vec, k)
}

// Search runs passage search in the given mode. Hybrid fuses max-normalized keyword
// scores with cosine similarity using equal weights.
func (r *Retriever) Search(ctx context.Context, query string, k int, mode models.SearchMode, opts *keyword.SearchOptions) (*models.SearchResponse, error) {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if mode == "" {
		mode = models.SearchHybrid
	}
	k = r.TopK(k)
	// One snapshot for both halves so a publish cannot split a hybrid query.
	snap := r.holder.Current()

	var (
		kwResults []*keyword.KeywordResult
		semHits   []models.Hit
		err       error
	)
	candidates := k * 4
	switch mode {
	case models.SearchKeyword:
		kwResults, err = snap.Keywords.Search(ctx, query, k, opts)
	case models.SearchSemantic:
		semHits, err = r.searchSnapshot(ctx, snap, query, k)
	case models.SearchHybrid:
		if kwResults, err = snap.Keywords.Search(ctx, query, candidates, opts); err == nil {
			semHits, err = r.searchSnapshot(ctx, snap, query, candidates)
		}
	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.SearchHit)
	for _, kr := range kwResults {
		byID[kr.ID] = models.SearchHit{ID: kr.ID, File: kr.File, Page: kr.Page, Snippet: Snippet(kr.Text, query, snippetLen)}
	}
	for _, h := range semHits {
		if _, ok := byID[h.Passage.ID]; !ok {
			byID[h.Passage.ID] = models.SearchHit{
				ID: h.Passage.ID, File: h.Passage.Filename, Page: h.Passage.Page,
				Snippet: Snippet(h.Passage.Text, query, snippetLen),
			}
		}
	}

	var kwWeight, semWeight float64
	switch mode {
	case models.SearchKeyword:
		kwWeight = 1
	case models.SearchSemantic:
		semWeight = 1
	default:
		kwWeight, semWeight = 0.5, 0.5
	}
	fused := Fuse(NormalizeKeywordScores(kwResults), SemanticScores(semHits), kwWeight, semWeight)
	if len(fused) > k {
		fused = fused[:k]
	}

	resp := &models.SearchResponse{Query: query, Mode: mode, Hits: make([]models.SearchHit, 0, len(fused))}
	for _, f := range fused {
		hit := byID[f.PassageID]
		hit.Score = f.Score
		hit.KeywordScore = f.KeywordScore
		hit.SemanticScore = f.SemanticScore
		resp.Hits = append(resp.Hits, hit)
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp, nil
}

func (r *Retriever) searchSnapshot(ctx context.Context, snap *index.Snapshot, query string, k int) ([]models.Hit, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return snap.Vectors.Search(ctx, vec, k)
}
