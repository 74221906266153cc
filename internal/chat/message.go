package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrInvalidRole is returned for roles other than user and assistant.
var ErrInvalidRole = errors.New("invalid role")

// ParseRole validates a stored role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// ChatMessage is one entry of the active conversation. Exactly one of the
// content fields is meaningful, selected by Role.
type ChatMessage struct {
	ID        string
	Role      Role
	Timestamp time.Time

	text  string
	reply AIMessage
}

// UserMessage builds a user-authored message with a fresh id.
func UserMessage(text string, ts time.Time) ChatMessage {
	return ChatMessage{ID: uuid.NewString(), Role: RoleUser, Timestamp: ts, text: text}
}

// AssistantMessage builds an assistant message with a fresh id.
func AssistantMessage(reply AIMessage, ts time.Time) ChatMessage {
	return ChatMessage{ID: uuid.NewString(), Role: RoleAssistant, Timestamp: ts, reply: reply}
}

// Text returns the user text. It is empty for assistant messages.
func (m ChatMessage) Text() string {
	if m.Role != RoleUser {
		return ""
	}
	return m.text
}

// Reply returns the structured payload; ok is false for user messages.
func (m ChatMessage) Reply() (AIMessage, bool) {
	if m.Role != RoleAssistant {
		return AIMessage{}, false
	}
	return m.reply, true
}

// DisplayText is the text shown for the message regardless of role.
func (m ChatMessage) DisplayText() string {
	if m.Role == RoleAssistant {
		return m.reply.Message.Text
	}
	return m.text
}

type wireMessage struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarshalJSON renders content as a string for user messages and as an
// AIMessage object for assistant messages.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	var content any = m.text
	if m.Role == RoleAssistant {
		content = m.reply
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{ID: m.ID, Role: m.Role, Content: raw, Timestamp: m.Timestamp})
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	role, err := ParseRole(string(w.Role))
	if err != nil {
		return err
	}
	*m = ChatMessage{ID: w.ID, Role: role, Timestamp: w.Timestamp}
	if role == RoleUser {
		return json.Unmarshal(w.Content, &m.text)
	}
	return json.Unmarshal(w.Content, &m.reply)
}
