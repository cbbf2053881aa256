package search

import (
	"testing"

	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
)

func TestNormalizeKeywordScores(t *testing.T) {
	results := []*keyword.KeywordResult{
		{ID: "a", Score: 2},
		{ID: "b", Score: 4},
		{ID: "c", Score: 1},
	}
	m := NormalizeKeywordScores(results)
	if m["b"] != 1.0 {
		t.Errorf("max score should be 1.0, got %f", m["b"])
	}
	if m["a"] != 0.5 {
		t.Errorf("a should be 0.5, got %f", m["a"])
	}
	if len(m) != 3 {
		t.Errorf("expected 3 entries, got %d", len(m))
	}
	if len(NormalizeKeywordScores(nil)) != 0 {
		t.Error("nil results should give empty map")
	}
}

func TestSemanticScores(t *testing.T) {
	hits := []models.Hit{
		{Passage: &models.Passage{ID: "p1"}, Score: 0.9},
		{Passage: &models.Passage{ID: "p2"}, Score: 0.4},
	}
	m := SemanticScores(hits)
	if m["p1"] != 0.9 || m["p2"] != 0.4 {
		t.Errorf("got %v", m)
	}
}

func TestFuse(t *testing.T) {
	kw := map[string]float64{"a": 1.0, "b": 0.5}
	sem := map[string]float64{"b": 0.9, "c": 0.8}
	results := Fuse(kw, sem, 0.5, 0.5)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].PassageID != "c" && results[0].PassageID != "b" {
		t.Errorf("unexpected top result %s", results[0].PassageID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Error("results not sorted by score")
		}
	}
	for _, r := range results {
		if r.PassageID == "b" && (r.KeywordScore != 0.5 || r.SemanticScore != 0.9) {
			t.Errorf("b components = %+v", r)
		}
	}
}

func TestFuse_TiesByID(t *testing.T) {
	results := Fuse(map[string]float64{"z": 1, "a": 1}, nil, 1, 0)
	if results[0].PassageID != "a" || results[1].PassageID != "z" {
		t.Errorf("tie order = %s, %s", results[0].PassageID, results[1].PassageID)
	}
}
