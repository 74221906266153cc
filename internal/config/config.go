package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientType selects the transport used to reach an MCP server.
type ClientType string

const (
	ClientTypeSSE            ClientType = "sse"
	ClientTypeStreamableHTTP ClientType = "streamable_http"
	ClientTypeStdio          ClientType = "stdio"
)

// Config holds the application configuration
type Config struct {
	LLM        LLMConfig
	Server     ServerConfig
	Store      StoreConfig
	Panel      PanelConfig
	Log        LogConfig
	MCPServers []MCPServerConfig `mapstructure:"mcp_servers"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	Provider     string  `mapstructure:"provider"`
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	Temperature  float32 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	JSONMode     bool    `mapstructure:"json_mode"`
	HistoryLimit int     `mapstructure:"history_limit"`
	MaxTurns     int     `mapstructure:"max_turns"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StoreConfig selects where conversations are persisted. ":memory:" keeps
// them in process.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// PanelConfig tunes the assistant side panel.
type PanelConfig struct {
	HistoryPerBucket    int           `mapstructure:"history_per_bucket"`
	TitleMaxChars       int           `mapstructure:"title_max_chars"`
	DiscardStaleReplies bool          `mapstructure:"discard_stale_replies"`
	CompletionURL       string        `mapstructure:"completion_url"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MCPServerConfig describes one MCP server whose tools are offered to the LLM.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    ClientType        `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-1.5-flash")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.json_mode", false)
	v.SetDefault("llm.history_limit", 10)
	v.SetDefault("llm.max_turns", 5)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("store.path", "history.db")

	v.SetDefault("panel.history_per_bucket", 5)
	v.SetDefault("panel.title_max_chars", 50)
	v.SetDefault("panel.discard_stale_replies", true)
	v.SetDefault("panel.completion_url", "")
	v.SetDefault("panel.request_timeout", "60s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load loads the configuration from config.yaml in the working directory, or
// from the file named by CONFIG_PATH. TAXASSIST_* environment variables
// override file values.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("taxassist")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := os.Getenv("CONFIG_PATH")
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks the fields the server cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port cannot be empty")
	}
	if c.Store.Path == "" {
		return errors.New("store.path cannot be empty")
	}
	if c.Panel.HistoryPerBucket <= 0 {
		return errors.New("panel.history_per_bucket must be > 0")
	}
	if c.Panel.TitleMaxChars <= 0 {
		return errors.New("panel.title_max_chars must be > 0")
	}
	if c.LLM.MaxTurns <= 0 {
		return errors.New("llm.max_turns must be > 0")
	}
	for i, s := range c.MCPServers {
		switch s.Type {
		case ClientTypeSSE, ClientTypeStreamableHTTP:
			if s.URL == "" {
				return fmt.Errorf("mcp_servers[%d]: url is required for %s", i, s.Type)
			}
		case ClientTypeStdio:
			if s.Command == "" {
				return fmt.Errorf("mcp_servers[%d]: command is required for stdio", i)
			}
		}
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}
