package indexer

import (
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/extract"
)

func TestChunker_Chunk(t *testing.T) {
	c := NewChunker(3, 1)
	pages := []extract.Page{{Number: 1, Text: "one two three four five six seven"}}
	chunks := c.Chunk("doc.pdf", pages)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Filename != "doc.pdf" {
			t.Errorf("chunk %d Filename=%s", i, ch.Filename)
		}
		if ch.Ordinal != i {
			t.Errorf("chunk %d Ordinal=%d", i, ch.Ordinal)
		}
		if ch.ID == "" {
			t.Error("chunk ID should be set")
		}
	}
	// windows: [one two three] [three four five] [five six seven]
	if chunks[1].Text != "three four five" {
		t.Errorf("second chunk = %q", chunks[1].Text)
	}
	if chunks[2].Text != "five six seven" {
		t.Errorf("last chunk = %q", chunks[2].Text)
	}
}

func TestChunker_overlapDuplicatesBoundaryWords(t *testing.T) {
	c := NewChunker(4, 2)
	chunks := c.Chunk("d.pdf", []extract.Page{{Number: 1, Text: "a b c d e f g h"}})
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Text)
		cur := strings.Fields(chunks[i].Text)
		if prev[len(prev)-2] != cur[0] || prev[len(prev)-1] != cur[1] {
			t.Errorf("chunk %d should start with last two words of chunk %d: %q / %q", i, i-1, chunks[i-1].Text, chunks[i].Text)
		}
	}
}

func TestChunker_neverSpansPages(t *testing.T) {
	c := NewChunker(50, 5)
	pages := []extract.Page{
		{Number: 1, Text: "first page words"},
		{Number: 2, Text: "second page words"},
		{Number: 4, Text: "fourth page words"},
	}
	chunks := c.Chunk("p.pdf", pages)
	if len(chunks) != 3 {
		t.Fatalf("expected one chunk per page, got %d", len(chunks))
	}
	wantPages := []int{1, 2, 4}
	for i, ch := range chunks {
		if ch.Page != wantPages[i] {
			t.Errorf("chunk %d page=%d want %d", i, ch.Page, wantPages[i])
		}
		if ch.Ordinal != 0 {
			t.Errorf("ordinal should restart per page, got %d", ch.Ordinal)
		}
	}
}

func TestChunker_deterministicIDs(t *testing.T) {
	c := NewChunker(3, 1)
	pages := []extract.Page{{Number: 1, Text: "one two three four five"}}
	a := c.Chunk("x.pdf", pages)
	b := c.Chunk("x.pdf", pages)
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("chunk %d IDs differ: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c := NewChunker(5, 1)
	chunks := c.Chunk("d.pdf", []extract.Page{{Number: 1, Text: "   \n\t  "}})
	if chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
}

func TestNewChunker_invalidOverlap(t *testing.T) {
	c := NewChunker(3, 3)
	chunks := c.Chunk("d.pdf", []extract.Page{{Number: 1, Text: "a b c d e f"}})
	if len(chunks) != 2 {
		t.Errorf("overlap >= size should fall back to no overlap; got %d chunks", len(chunks))
	}
}

func TestPreprocess(t *testing.T) {
	if Preprocess("  a  b  ") != "a b" {
		t.Error("expected trimmed and collapsed spaces")
	}
	if Preprocess("hyphen-\nated") != "hyphenated" {
		t.Errorf("expected hyphenated line break to be joined, got %q", Preprocess("hyphen-\nated"))
	}
}
