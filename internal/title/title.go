// Package title derives the short labels shown for conversations.
package title

import (
	"encoding/json"
	"time"

	"github.com/RichardoC/chatdesk/internal/models"
)

const (
	Placeholder = "New Chat"
	// EmptyChat labels a stored conversation with no usable title or user message.
	EmptyChat   = "Empty Chat"
	UnknownTime = "Unknown time"

	MaxLen   = 30
	TruncLen = 25
	Ellipsis = "..."

	TimestampLayout = "2006-01-02 15:04:05"
	displayLayout   = "Jan 02, 15:04"
)

// DeriveTitle turns the first user message of a conversation into its
// title. Lengths are measured in characters, not bytes.
func DeriveTitle(firstUserMessage string) string {
	if firstUserMessage == "" {
		return Placeholder
	}
	r := []rune(firstUserMessage)
	if len(r) <= MaxLen {
		return firstUserMessage
	}
	return string(r[:TruncLen]) + Ellipsis
}

// FirstUserMessage returns the content of the earliest user message, or ""
// when there is none.
func FirstUserMessage(messages []models.Message) string {
	for _, m := range messages {
		if m.Role == models.RoleUser {
			return m.Content
		}
	}
	return ""
}

// FirstUserMessageRaw is FirstUserMessage over a serialized message list.
// Anything that does not decode as a message list yields "".
func FirstUserMessageRaw(raw string) string {
	var messages []models.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return ""
	}
	return FirstUserMessage(messages)
}

// DisplayTitle picks the label for a history entry: the stored title, then
// the first user message of the payload, then EmptyChat.
func DisplayTitle(stored, raw string) string {
	if stored != "" && stored != Placeholder {
		return stored
	}
	if first := FirstUserMessageRaw(raw); first != "" {
		return first
	}
	return EmptyChat
}

// DisplayTime reformats a stored timestamp for the history list.
func DisplayTime(timestamp string) string {
	t, err := time.Parse(TimestampLayout, timestamp)
	if err != nil {
		return UnknownTime
	}
	return t.Format(displayLayout)
}
