package models

// SearchMode selects the passage search strategy of GET /api/search.
type SearchMode string

const (
	SearchKeyword  SearchMode = "keyword"
	SearchSemantic SearchMode = "semantic"
	SearchHybrid   SearchMode = "hybrid"
)

// SearchHit is one passage returned by GET /api/search.
type SearchHit struct {
	ID            string  `json:"id"`
	File          string  `json:"file"`
	Page          int     `json:"page"`
	Snippet       string  `json:"snippet"`
	Score         float64 `json:"score"`
	KeywordScore  float64 `json:"keyword_score,omitempty"`
	SemanticScore float64 `json:"semantic_score,omitempty"`
}

// SearchResponse is the body of GET /api/search.
type SearchResponse struct {
	Query     string      `json:"query"`
	Mode      SearchMode  `json:"mode"`
	Hits      []SearchHit `json:"hits"`
	QueryTime int64       `json:"query_time_ms"`
}
