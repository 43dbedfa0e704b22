package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn. Messages are never edited after
// they have been received.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// StartConversationResponse is returned by POST /start_conversation.
type StartConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// AnalyzeRequest is the payload sent to POST /analyze.
type AnalyzeRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
}

// AnalyzeResponse carries the full, server-ordered conversation.
type AnalyzeResponse struct {
	Analysis     string    `json:"analysis"`
	Conversation []Message `json:"conversation"`
	PlotURL      *string   `json:"plot_url,omitempty"`
}

// ValidRole reports whether role is one the client knows how to display.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
