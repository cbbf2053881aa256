// Package cli provides the HTTP client and output formatting for the kotae CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

const sourceTextLen = 160

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes a chat answer and its sources.
func WriteAnswer(w io.Writer, resp *models.ChatResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(resp.Answer))
	if len(resp.Sources) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nSources:")
	for i, src := range resp.Sources {
		fmt.Fprintf(w, "  [%d] %s p.%d (score %.4f)\n", i+1, src.File, src.Page, src.Score)
		fmt.Fprintf(w, "      %s\n", utils.Truncate(oneLine(src.Text), sourceTextLen))
	}
	return nil
}

// WriteFiles writes the uploaded document list.
func WriteFiles(w io.Writer, files []models.FileInfo, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, files)
	}
	if len(files) == 0 {
		fmt.Fprintln(w, "No files uploaded.")
		return nil
	}
	width := len("FILENAME")
	for _, f := range files {
		if len(f.Filename) > width {
			width = len(f.Filename)
		}
	}
	fmt.Fprintf(w, "%-*s  %5s  %10s\n", width, "FILENAME", "PAGES", "SIZE")
	for _, f := range files {
		fmt.Fprintf(w, "%-*s  %5d  %10s\n", width, f.Filename, f.Pages, f.Size)
	}
	return nil
}

// WriteSearchResults writes passage search hits.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\nFound %d passages in %dms (%s)\n\n", len(resp.Hits), resp.QueryTime, resp.Mode)
	for i, h := range resp.Hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f (Keyword: %.4f, Semantic: %.4f)\n",
			i+1, h.Score, h.KeywordScore, h.SemanticScore)
		fmt.Fprintf(w, "%s p.%d\n", h.File, h.Page)
		fmt.Fprintf(w, "\n%s\n\n", oneLine(h.Snippet))
	}
	return nil
}

// WriteInfo writes the service summary.
func WriteInfo(w io.Writer, info *models.ServiceInfo, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, info)
	}
	fmt.Fprintf(w, "pdf_count:         %d\n", info.PDFCount)
	fmt.Fprintf(w, "vectors_indexed:   %d\n", info.VectorsIndexed)
	if info.LastTrainedAt != nil {
		fmt.Fprintf(w, "last_trained_at:   %s\n", info.LastTrainedAt.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Fprintf(w, "last_trained_at:   never\n")
	}
	fmt.Fprintf(w, "embedding_model:   %s\n", info.EmbeddingModel)
	fmt.Fprintf(w, "llm_model:         %s\n", info.LLMModel)
	if info.DiskUsageBytes > 0 {
		fmt.Fprintf(w, "disk_usage_bytes:  %d\n", info.DiskUsageBytes)
	}
	t := info.Training
	fmt.Fprintf(w, "training:          %s %d%% %s\n", t.Stage, t.Progress, t.Message)
	for _, warn := range t.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
