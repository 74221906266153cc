// Package assistant implements the completion service: it turns a user
// message, a session id and a context label into a structured AIMessage,
// persisting both sides of the exchange.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/config"
	"github.com/comigor/taxassist-go/internal/history"
	"github.com/comigor/taxassist-go/internal/llm"
	"github.com/comigor/taxassist-go/internal/logger"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMissingSession = errors.New("session id is required")
	ErrEmptyResponse  = errors.New("no response from model")
	ErrMaxTurns       = errors.New("exceeded maximum interaction turns")
)

type turnState string

const (
	stateIdle           turnState = "Idle"
	stateReadyToCallLLM turnState = "ReadyToCallLLM"
	stateExecutingTools turnState = "ExecutingTools"
	stateDone           turnState = "Done"
	stateError          turnState = "Error"
)

type turnTrigger string

const (
	triggerProcessInput            turnTrigger = "ProcessInput"
	triggerLLMRespondedWithContent turnTrigger = "LLMRespondedWithContent"
	triggerLLMRequestedTools       turnTrigger = "LLMRequestedTools"
	triggerToolsExecutionCompleted turnTrigger = "ToolsExecutionCompleted"
	triggerErrorOccurred           turnTrigger = "ErrorOccurred"
)

// Service is the completion service.
type Service struct {
	llmClient           llm.Client
	store               history.Store
	cfg                 config.LLMConfig
	tools               *toolRegistry
	defaultSystemPrompt string
}

// New creates the service and connects to the configured MCP servers.
func New(llmClient llm.Client, store history.Store, appCfg config.Config) *Service {
	s := &Service{
		llmClient:           llmClient,
		store:               store,
		cfg:                 appCfg.LLM,
		tools:               newToolRegistry(),
		defaultSystemPrompt: defaultSystemPrompt,
	}
	if s.cfg.MaxTurns <= 0 {
		s.cfg.MaxTurns = 5
	}
	s.tools.connect(context.Background(), appCfg.MCPServers)
	return s
}

// Close shuts down MCP clients.
func (s *Service) Close() {
	s.tools.close()
}

// Complete answers one user message. Model output that is not valid JSON is
// wrapped into the fallback AIMessage; only transport, storage and model
// failures are returned as errors.
func (s *Service) Complete(ctx context.Context, req chat.CompletionRequest) (chat.AIMessage, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return chat.AIMessage{}, ErrEmptyMessage
	}
	if req.SessionID == "" {
		return chat.AIMessage{}, ErrMissingSession
	}

	if _, err := s.store.Insert(ctx, req.SessionID, chat.RoleUser, chat.UserPayload{Text: text, Context: req.UserContext}); err != nil {
		return chat.AIMessage{}, fmt.Errorf("store user message: %w", err)
	}

	limit := s.cfg.HistoryLimit
	if limit <= 0 {
		limit = 10
	}
	recent, err := s.store.Select(ctx, history.Query{SessionID: req.SessionID, Order: history.Descending, Limit: limit})
	if err != nil {
		return chat.AIMessage{}, fmt.Errorf("load session history: %w", err)
	}

	messages := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: s.systemPrompt(req.UserContext),
	}}
	messages = append(messages, conversation(chronological(recent))...)

	raw, err := s.run(ctx, messages)
	if err != nil {
		return chat.AIMessage{}, err
	}

	reply := chat.ParseAIMessage(raw, req.UserContext)
	if _, err := s.store.Insert(ctx, req.SessionID, chat.RoleAssistant, reply); err != nil {
		// the caller still gets the answer; it is only missing from history
		logger.L.Error("failed to store assistant message", "session_id", req.SessionID, "error", err)
	}
	return reply, nil
}

// run drives the LLM through tool turns until it answers with content.
func (s *Service) run(ctx context.Context, initial []openai.ChatCompletionMessage) (string, error) {
	type turnContext struct {
		messages     []openai.ChatCompletionMessage
		llmResponse  *openai.ChatCompletionResponse
		finalContent string
		lastError    error
		currentTurn  int
	}
	tc := &turnContext{messages: initial}

	fsm := stateless.NewStateMachine(stateIdle)

	fsm.Configure(stateIdle).
		Permit(triggerProcessInput, stateReadyToCallLLM)

	fsm.Configure(stateReadyToCallLLM).
		OnEntry(func(ctx context.Context, args ...any) error {
			if tc.currentTurn >= s.cfg.MaxTurns {
				logger.L.Warn("max interaction turns reached", "maxTurns", s.cfg.MaxTurns)
				tc.lastError = ErrMaxTurns
				return fsm.FireCtx(ctx, triggerErrorOccurred)
			}
			tc.currentTurn++

			resp, err := s.llmClient.CreateChatCompletion(ctx, s.request(tc.messages))
			if err != nil {
				logger.L.Error("LLM call failed", "error", err)
				tc.lastError = fmt.Errorf("completion request: %w", err)
				return fsm.FireCtx(ctx, triggerErrorOccurred)
			}
			tc.llmResponse = &resp

			if len(resp.Choices) > 0 && len(resp.Choices[0].Message.ToolCalls) > 0 {
				return fsm.FireCtx(ctx, triggerLLMRequestedTools)
			}
			return fsm.FireCtx(ctx, triggerLLMRespondedWithContent)
		}).
		Permit(triggerLLMRequestedTools, stateExecutingTools).
		Permit(triggerLLMRespondedWithContent, stateDone).
		Permit(triggerErrorOccurred, stateError)

	fsm.Configure(stateExecutingTools).
		OnEntry(func(ctx context.Context, args ...any) error {
			msg := tc.llmResponse.Choices[0].Message
			tc.messages = append(tc.messages, msg)

			for _, call := range msg.ToolCalls {
				var (
					toolArgs map[string]any
					output   string
				)
				if err := json.Unmarshal([]byte(call.Function.Arguments), &toolArgs); err != nil {
					logger.L.Error("failed to unmarshal tool arguments", "function", call.Function.Name, "error", err)
					output = "Error: Could not parse arguments for tool " + call.Function.Name
				} else {
					output = s.tools.call(ctx, call.Function.Name, toolArgs)
				}
				tc.messages = append(tc.messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    output,
					ToolCallID: call.ID,
					Name:       call.Function.Name,
				})
			}
			return fsm.FireCtx(ctx, triggerToolsExecutionCompleted)
		}).
		Permit(triggerToolsExecutionCompleted, stateReadyToCallLLM)

	fsm.Configure(stateDone).
		OnEntry(func(ctx context.Context, args ...any) error {
			if len(tc.llmResponse.Choices) == 0 || strings.TrimSpace(tc.llmResponse.Choices[0].Message.Content) == "" {
				tc.lastError = ErrEmptyResponse
				return nil
			}
			tc.finalContent = tc.llmResponse.Choices[0].Message.Content
			return nil
		})

	fsm.Configure(stateError)

	if err := fsm.FireCtx(ctx, triggerProcessInput); err != nil {
		return "", fmt.Errorf("completion state machine: %w", err)
	}

	if tc.lastError != nil {
		return "", tc.lastError
	}
	if fsm.MustState() != stateDone {
		return "", fmt.Errorf("completion ended in unexpected state %v", fsm.MustState())
	}
	return tc.finalContent, nil
}

func (s *Service) request(messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Messages:    messages,
		Tools:       s.tools.tools,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}
	if s.cfg.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return req
}
