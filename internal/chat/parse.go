package chat

import (
	"encoding/json"
	"regexp"
	"strings"
)

// UnknownContext is used as the personalization context when the caller did
// not supply one.
const UnknownContext = "Unknown"

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// FallbackAIMessage wraps raw model output that could not be parsed.
func FallbackAIMessage(raw, userContext string) AIMessage {
	if userContext == "" {
		userContext = UnknownContext
	}
	return AIMessage{
		ResponseType: ResponseAnswer,
		Message: MessageBody{
			Text:       raw,
			Confidence: ConfidenceLow,
		},
		QuickActions: []QuickAction{},
		Personalization: Personalization{
			UserContext:   userContext,
			RelevantForms: []string{},
		},
		References: []Reference{},
	}
}

// ParseAIMessage turns raw model output into a well-formed AIMessage. A
// ```json fenced block is preferred over the surrounding prose. Output that is
// not a JSON object with a message text falls back to FallbackAIMessage with
// the raw output as text; it is never reported as an error.
func ParseAIMessage(raw, userContext string) AIMessage {
	candidate := strings.TrimSpace(raw)
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	}

	var msg AIMessage
	if err := json.Unmarshal([]byte(candidate), &msg); err != nil {
		return FallbackAIMessage(raw, userContext)
	}
	if strings.TrimSpace(msg.Message.Text) == "" {
		return FallbackAIMessage(raw, userContext)
	}
	return msg.Normalize(userContext)
}

// Normalize coerces unknown enum values to their defaults, drops quick
// actions and references with unknown types, and replaces nil slices with
// empty ones.
func (m AIMessage) Normalize(userContext string) AIMessage {
	if !m.ResponseType.valid() {
		m.ResponseType = ResponseAnswer
	}
	if !m.Message.Confidence.valid() {
		m.Message.Confidence = ConfidenceLow
	}

	actions := make([]QuickAction, 0, len(m.QuickActions))
	for _, qa := range m.QuickActions {
		if qa.Type.valid() {
			actions = append(actions, qa)
		}
	}
	m.QuickActions = actions

	refs := make([]Reference, 0, len(m.References))
	for _, r := range m.References {
		if r.Type.valid() {
			refs = append(refs, r)
		}
	}
	m.References = refs

	if m.Personalization.RelevantForms == nil {
		m.Personalization.RelevantForms = []string{}
	}
	if m.Personalization.UserContext == "" {
		if userContext == "" {
			userContext = UnknownContext
		}
		m.Personalization.UserContext = userContext
	}
	return m
}
