package model

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation. Order is append order.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FileUpdate is a file change proposed by a chat build turn.
type FileUpdate struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}
