// Package tool implements the function calling subsystem that lets agents
// invoke banking capabilities (lookups, service requests, hand-offs) with
// schema validated arguments and consistent error handling.
package tool

import (
	"fmt"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/internal/util"
	"github.com/hupe1980/bankcopilot/model"
)

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeUnknown    = "UNKNOWN_TOOL"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered with agents to enable function calling. The model sees
// Name, Description and Parameters; Call receives arguments already decoded
// from JSON together with a ToolContext carrying the acting identity.
//
// Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description shown to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected input.
	Parameters() map[string]any

	// Call executes the tool.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Definitions converts tools into model tool definitions.
func Definitions(tools []Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
