package models

// Passage is a chunk of extracted text with page provenance. Page is 1-based,
// Ordinal is the position of the passage within its page.
type Passage struct {
	ID        string    `json:"id"`
	Filename  string    `json:"file"`
	Page      int       `json:"page"`
	Ordinal   int       `json:"ordinal"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

// Hit is a passage returned by an index search with its raw score.
type Hit struct {
	Passage *Passage
	Score   float64
}

// Citation is a retrieved passage presented as evidence for an answer.
type Citation struct {
	PassageID string  `json:"-"`
	File      string  `json:"file"`
	Page      int     `json:"page"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
}

// NewCitation builds a citation from a search hit.
func NewCitation(h Hit) Citation {
	return Citation{
		PassageID: h.Passage.ID,
		File:      h.Passage.Filename,
		Page:      h.Passage.Page,
		Score:     h.Score,
		Text:      h.Passage.Text,
	}
}
