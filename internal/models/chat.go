package models

// Role of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a chat session.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ChatOptions are the per-request generation knobs sent by the UI. A nil
// Temperature means unset; zero asks for deterministic sampling.
type ChatOptions struct {
	TopK        int      `json:"top_k"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature,omitempty"`
	ShowRaw     bool     `json:"show_raw"`
}

// TemperatureOr returns the requested temperature, or def when unset.
func (o ChatOptions) TemperatureOr(def float64) float64 {
	if o.Temperature == nil {
		return def
	}
	return *o.Temperature
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Question string `json:"question"`
	ClientID string `json:"client_id"`
	ChatOptions
}

// ChatResponse is returned by POST /api/chat.
type ChatResponse struct {
	Answer  string     `json:"answer"`
	Sources []Citation `json:"sources"`
}
