package llm

import (
	"context"
	"strings"

	"github.com/comigor/taxassist-go/internal/config"
	"github.com/sashabaranov/go-openai"
)

// GeminiBaseURL is Gemini's OpenAI-compatible endpoint, used when the
// provider is "gemini" and no base_url is configured.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// Client is the part of openai.Client the completion service needs.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var _ Client = (*openai.Client)(nil)

// NewClient creates an OpenAI-compatible client for the configured provider.
func NewClient(cfg config.LLMConfig) *openai.Client {
	config := openai.DefaultConfig(cfg.APIKey)

	switch {
	case cfg.BaseURL != "":
		config.BaseURL = cfg.BaseURL
	case strings.EqualFold(cfg.Provider, "gemini"):
		config.BaseURL = GeminiBaseURL
	}

	return openai.NewClientWithConfig(config)
}
