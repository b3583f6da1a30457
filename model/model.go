package model

import (
	"context"
	"encoding/json"

	"github.com/hupe1980/bankcopilot/core"
)

// ToolCall represents a function call request surfaced by a model provider.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction describes the concrete function target of a tool call.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ResponseFormat asks the provider for a JSON answer conforming to Schema.
// Providers without native structured output append the schema to the
// instructions and rely on ParseJSON to extract the object.
type ResponseFormat struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema"`
	Strict      bool           `json:"strict"`
}

// Request captures the normalized model input.
type Request struct {
	Instructions   string           `json:"instructions"` // Sent as the system message
	Contents       []core.Content   `json:"contents"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	ResponseFormat *ResponseFormat  `json:"response_format,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "azure", "anthropic", "ollama", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents and the group chat manager.
// Both channels are closed once generation finishes.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
