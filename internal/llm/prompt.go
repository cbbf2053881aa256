package llm

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

const systemPrompt = `You are a helpful assistant that answers questions about the user's PDF documents.
Answer using only the provided context. Cite sources as [file p.N].
If the context does not contain the answer, say that you don't know.`

// Message is one entry of a chat-completion style request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FormatSource renders the citation label used in prompts and extractive answers.
func FormatSource(c models.Citation) string {
	return fmt.Sprintf("%s p.%d", c.File, c.Page)
}

// BuildContext joins passages into a prompt context block.
func BuildContext(passages []models.Citation) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = fmt.Sprintf("[Source: %s]\n%s", FormatSource(p), p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages lays out system prompt, prior turns and the grounded question.
func BuildMessages(req Request) []Message {
	msgs := make([]Message, 0, len(req.History)+2)
	msgs = append(msgs, Message{Role: "system", Content: systemPrompt})
	for _, t := range req.History {
		msgs = append(msgs, Message{Role: string(t.Role), Content: t.Text})
	}

	var sb strings.Builder
	if len(req.Passages) > 0 {
		sb.WriteString("Context:\n")
		sb.WriteString(BuildContext(req.Passages))
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("Context: (no matching passages)\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(req.Question)
	sb.WriteString("\n\nAnswer:")
	msgs = append(msgs, Message{Role: string(models.RoleUser), Content: sb.String()})
	return msgs
}
