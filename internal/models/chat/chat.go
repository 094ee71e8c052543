package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/noteqa/ragcore/internal/models/utils/ollama"
	"github.com/noteqa/ragcore/internal/types"
)

// Tool represents a function/tool definition
type Tool struct {
	Type     string      `json:"type"` // "function"
	Function FunctionDef `json:"function"`
}

// FunctionDef represents a function definition
type FunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ChatOptions carries the per-request overrides the Generator stage derives
// from AnswerRequest.Temperature/MaxTokens (when the caller set them),
// passed straight through to the backend's native request shape.
type ChatOptions struct {
	Temperature         float64 `json:"temperature"`
	TopP                float64 `json:"top_p"`
	Seed                int     `json:"seed"`
	MaxTokens           int     `json:"max_tokens"`
	MaxCompletionTokens int     `json:"max_completion_tokens"`
	FrequencyPenalty    float64 `json:"frequency_penalty"`
	PresencePenalty     float64 `json:"presence_penalty"`
	Thinking            *bool   `json:"thinking"`
	Tools               []Tool  `json:"tools,omitempty"`
	ToolChoice          string  `json:"tool_choice,omitempty"` // "auto", "required", "none", or specific tool
}

// Message is one turn of the chat transcript sent to the backend. The
// generator sends the system/user prompt pair the Prompt Builder assembles;
// prior conversation turns from AnswerRequest reach the backend inside that
// user prompt, not as separate messages.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`         // function/tool name (tool role)
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool call ID (tool role)
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // tool calls (assistant role)
}

// ToolCall represents a tool call in a message
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall represents a function call
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// Chat is the generative backend the Generator stage drives. ctx carries
// the request's deadline/cancellation and is expected to be the same
// context threaded through the rest of the pipeline, so a client abort
// propagates down into the in-flight backend call.
type Chat interface {
	// Chat runs one non-streaming completion.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*types.ChatResponse, error)

	// ChatStream runs one streaming completion.
	ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan types.StreamResponse, error)

	GetModelName() string
	GetModelID() string
}

// ChatConfig is the resolved backend configuration for one chat model ID,
// as decided by modelservice.Service from an AnswerRequest's ChatModelID.
type ChatConfig struct {
	Source    types.ModelSource
	BaseURL   string
	ModelName string
	APIKey    string
	ModelID   string
}

// NewChat builds the concrete Chat backend named by config.Source.
// ollamaService is only consulted for ModelSourceLocal; pass nil when the
// caller never resolves local chat models.
func NewChat(config *ChatConfig, ollamaService *ollama.OllamaService) (Chat, error) {
	switch strings.ToLower(string(config.Source)) {
	case string(types.ModelSourceLocal):
		if ollamaService == nil {
			return nil, fmt.Errorf("chat model %s: local source requires an ollama service", config.ModelID)
		}
		return NewOllamaChat(config, ollamaService)
	case string(types.ModelSourceRemote):
		return NewRemoteAPIChat(config)
	default:
		return nil, fmt.Errorf("unsupported chat model source: %s", config.Source)
	}
}
