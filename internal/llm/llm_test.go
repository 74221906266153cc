package llm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/taxassist-go/internal/config"
)

func TestNewClient(t *testing.T) {
	var _ Client = NewClient(config.LLMConfig{APIKey: "k"})
	require.NotNil(t, NewClient(config.LLMConfig{Provider: "gemini", APIKey: "k"}))
	require.NotNil(t, NewClient(config.LLMConfig{BaseURL: "http://localhost:1234/v1"}))
}
