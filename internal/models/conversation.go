package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a transcript. The JSON shape is also the
// persisted encoding of a conversation's messages column.
type Message struct {
	Role    string `json:"role"` // user or assistant
	Content string `json:"content"`
}

type Conversation struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Timestamp string    `json:"timestamp"` // YYYY-MM-DD HH:MM:SS
}

// ConversationSummary is a row of a user's history list.
type ConversationSummary struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	DisplayTitle string `json:"display_title"`
	Timestamp    string `json:"timestamp"`
	DisplayTime  string `json:"display_time"`
	MessageCount int    `json:"message_count"`
	Active       bool   `json:"active,omitempty"`
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
