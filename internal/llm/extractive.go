package llm

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/hyperjump/kotae/internal/embedding"
)

// ExtractiveModel is the model name reported by the extractive generator.
const ExtractiveModel = "extractive"

const (
	maxExtractSentences = 3
	noContextAnswer     = "I couldn't find anything in the indexed documents that answers this question."
)

// Extractive answers by quoting the passage sentences that best overlap the
// question. It needs no model server and is deterministic.
type Extractive struct{}

// NewExtractive creates an extractive generator.
func NewExtractive() *Extractive { return &Extractive{} }

type scoredSentence struct {
	text   string
	source string
	score  int
	order  int
}

// Generate returns up to three cited sentences.
func (g *Extractive) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Passages) == 0 {
		return noContextAnswer, nil
	}

	want := make(map[string]struct{})
	for _, t := range embedding.Terms(req.Question) {
		want[t] = struct{}{}
	}

	var candidates []scoredSentence
	for _, p := range req.Passages {
		for _, s := range splitSentences(p.Text) {
			seen := make(map[string]struct{})
			for _, t := range embedding.Terms(s) {
				if _, ok := want[t]; ok {
					seen[t] = struct{}{}
				}
			}
			candidates = append(candidates, scoredSentence{
				text:   s,
				source: FormatSource(p),
				score:  len(seen),
				order:  len(candidates),
			})
		}
	}
	if len(candidates) == 0 {
		return noContextAnswer, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	n := 0
	for n < len(candidates) && n < maxExtractSentences && candidates[n].score > 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	picked := append([]scoredSentence(nil), candidates[:n]...)
	// Keep document order for readability.
	sort.Slice(picked, func(i, j int) bool { return picked[i].order < picked[j].order })

	parts := make([]string, len(picked))
	for i, c := range picked {
		parts[i] = c.text + " [" + c.source + "]"
	}
	return limitWords(strings.Join(parts, " "), req.Options.MaxTokens), nil
}

// Stream emits the extractive answer word by word.
func (g *Extractive) Stream(ctx context.Context, req Request, onToken TokenFunc) (string, error) {
	answer, err := g.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	words := strings.Fields(answer)
	for i, w := range words {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if i > 0 {
			w = " " + w
		}
		if err := onToken(w); err != nil {
			return "", err
		}
	}
	return answer, nil
}

// Model returns ExtractiveModel.
func (g *Extractive) Model() string { return ExtractiveModel }

// Close is a no-op.
func (g *Extractive) Close() error { return nil }

// splitSentences breaks text on terminal punctuation followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(strings.Join(strings.Fields(text), " "))
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// limitWords truncates s to max words; max <= 0 means no limit.
func limitWords(s string, max int) string {
	if max <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= max {
		return s
	}
	return strings.Join(words[:max], " ") + " ..."
}
