package domain

// Role tags a chat message for the generative backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used by the
// completion client and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionParams are the decoding parameters for a completion request.
type CompletionParams struct {
	MaxTokens   int
	Temperature float64
}
