package chat

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultTitleMax is the number of characters kept in a history title.
	DefaultTitleMax = 50
	// UntitledConversation replaces titles that are empty after extraction.
	UntitledConversation = "Untitled conversation"
)

// ConversationHistoryEntry is one row of the session picker.
type ConversationHistoryEntry struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// PayloadText extracts display text from a stored message payload, which is
// either a JSON string or an object with a text field (user rows are stored
// as {text, context}, assistant rows as AIMessage with message.text).
func PayloadText(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}
	var obj struct {
		Text    *string `json:"text"`
		Message *struct {
			Text string `json:"text"`
		} `json:"message"`
	}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return ""
	}
	switch {
	case obj.Text != nil:
		return *obj.Text
	case obj.Message != nil:
		return obj.Message.Text
	}
	return ""
}

// Title derives a picker title from message text: at most maxChars
// characters followed by "..." when cut, or UntitledConversation when empty.
func Title(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultTitleMax
	}
	if strings.TrimSpace(text) == "" {
		return UntitledConversation
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars]) + "..."
}
