package core

import "strings"

// Conversation roles understood by model providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // JSON encoded arguments
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
}

func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"` // Matches originating FunctionCall ID
	Name     string `json:"name"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
}

func (FunctionResponsePart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// NewTextContent builds a single text part content for role.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text parts.
func (c Content) Text() string {
	var b strings.Builder
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// FunctionCalls returns the function calls contained in c in order.
func (c Content) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range c.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}
