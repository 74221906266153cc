// Package chat defines the conversation data model shared by the completion
// service, the persistent store and the assistant panel.
//
// A ChatMessage is a tagged variant keyed by Role: user messages carry plain
// text, assistant messages carry a structured AIMessage. The constructors
// UserMessage and AssistantMessage are the only way to build one, so a
// mismatched shape cannot be represented.
package chat
