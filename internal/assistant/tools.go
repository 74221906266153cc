package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/taxassist-go/internal/config"
	"github.com/comigor/taxassist-go/internal/logger"
)

// MCPClientInterface defines the methods the completion service expects from an MCP client.
type MCPClientInterface interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	ListPrompts(ctx context.Context, req mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error)
	GetPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

var emptySchema = json.RawMessage(`{"type": "object", "properties": {}}`)

// toolRegistry holds the MCP clients and the tools they expose to the LLM.
type toolRegistry struct {
	clients []MCPClientInterface
	tools   []openai.Tool
	byName  map[string]MCPClientInterface
	prompts []string // first argument-free assistant prompt of each server
}

func newToolRegistry() *toolRegistry {
	return &toolRegistry{byName: make(map[string]MCPClientInterface)}
}

func dial(ctx context.Context, sc config.MCPServerConfig) (*client.Client, error) {
	switch sc.Type {
	case config.ClientTypeSSE:
		var opts []transport.ClientOption
		if len(sc.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(sc.Headers))
		}
		c, err := client.NewSSEMCPClient(sc.URL, opts...)
		if err != nil {
			return nil, err
		}
		return c, c.Start(ctx)
	case config.ClientTypeStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(sc.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(sc.Headers))
		}
		c, err := client.NewStreamableHttpClient(sc.URL, opts...)
		if err != nil {
			return nil, err
		}
		return c, c.Start(ctx)
	case config.ClientTypeStdio:
		env := make([]string, 0, len(sc.Env))
		for k, v := range sc.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		// stdio clients are started by the constructor
		return client.NewStdioMCPClient(sc.Command, env, sc.Args...)
	default:
		return nil, fmt.Errorf("unsupported MCP server type %q", sc.Type)
	}
}

// connect dials every configured server. Servers that fail are logged and skipped.
func (r *toolRegistry) connect(ctx context.Context, servers []config.MCPServerConfig) {
	for _, sc := range servers {
		c, err := dial(ctx, sc)
		if err != nil {
			logger.L.Error("failed to start MCP client", "name", sc.Name, "type", sc.Type, "error", err)
			if c != nil {
				if cerr := c.Close(); cerr != nil {
					logger.L.Warn("MCP client close error after start failure", "error", cerr)
				}
			}
			continue
		}
		if err := r.register(ctx, sc.Name, c); err != nil {
			logger.L.Error("failed to initialize MCP client", "name", sc.Name, "error", err)
			if cerr := c.Close(); cerr != nil {
				logger.L.Warn("MCP client close error after init failure", "error", cerr)
			}
		}
	}

	if len(r.clients) == 0 && len(servers) > 0 {
		logger.L.Warn("no MCP clients were initialized despite servers configured", "configured", len(servers))
	}
}

// register initializes a client and records its prompt and tools.
func (r *toolRegistry) register(ctx context.Context, name string, c MCPClientInterface) error {
	initResult, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{Capabilities: mcp.ClientCapabilities{}},
	})
	if err != nil {
		return err
	}
	logger.L.Info("MCP server initialized", "name", name)
	r.clients = append(r.clients, c)

	if initResult != nil && initResult.Capabilities.Prompts != nil {
		if p := discoverPrompt(ctx, name, c); p != "" {
			r.prompts = append(r.prompts, p)
		}
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		// the server may still serve prompts
		logger.L.Warn("failed to list MCP tools", "name", name, "error", err)
		return nil
	}
	for _, t := range listed.Tools {
		if _, exists := r.byName[t.Name]; exists {
			logger.L.Warn("MCP tool already registered by another server, skipping", "tool", t.Name, "name", name)
			continue
		}
		r.byName[t.Name] = c
		r.tools = append(r.tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toolSchema(t),
			},
		})
		logger.L.Info("registered MCP tool", "tool", t.Name, "name", name)
	}
	return nil
}

func toolSchema(t mcp.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 && string(t.RawInputSchema) != "null" {
		return t.RawInputSchema
	}
	raw, err := json.Marshal(t.InputSchema)
	if err != nil || string(raw) == "{}" || string(raw) == "null" {
		return emptySchema
	}
	return raw
}

func discoverPrompt(ctx context.Context, name string, c MCPClientInterface) string {
	prompts, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil || prompts == nil {
		logger.L.Warn("failed to list MCP prompts", "name", name, "error", err)
		return ""
	}
	i := slices.IndexFunc(prompts.Prompts, func(p mcp.Prompt) bool { return len(p.Arguments) == 0 })
	if i == -1 {
		return ""
	}
	prompt, err := c.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{Name: prompts.Prompts[i].Name},
	})
	if err != nil || prompt == nil {
		logger.L.Warn("failed to get MCP prompt", "name", name, "error", err)
		return ""
	}
	for _, m := range prompt.Messages {
		if m.Role != mcp.RoleAssistant {
			continue
		}
		if text, ok := m.Content.(mcp.TextContent); ok {
			logger.L.Info("discovered system prompt from MCP server", "name", name)
			return text.Text
		}
	}
	return ""
}

// call runs a tool and flattens its result to text for the LLM.
func (r *toolRegistry) call(ctx context.Context, name string, args map[string]any) string {
	c, ok := r.byName[name]
	if !ok {
		return "Error: tool " + name + " is not available"
	}

	logger.L.Debug("calling MCP tool", "tool", name, "arguments", args)
	res, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil || res == nil {
		logger.L.Warn("MCP tool call failed", "tool", name, "error", err)
		return "Error: tool " + name + " failed"
	}

	for _, item := range res.Content {
		if text, ok := item.(mcp.TextContent); ok {
			return text.Text
		}
	}
	if res.IsError {
		return "Tool execution resulted in an error without specific text."
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return "Tool executed successfully, but result could not be formatted."
	}
	return string(raw)
}

func (r *toolRegistry) close() {
	for _, c := range r.clients {
		if err := c.Close(); err != nil {
			logger.L.Warn("MCP client close error", "error", err)
		}
	}
}
