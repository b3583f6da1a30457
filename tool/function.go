package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/internal/util"
)

// FunctionTool exposes a plain Go function as a tool.
//
// Arguments are validated against the declared schema before the function
// runs. Failures are normalized to *ToolError:
//
//	validation failure              -> Code VALIDATION_ERROR
//	*ToolError returned by fn       -> forwarded unchanged
//	any other error                 -> Code EXECUTION_ERROR
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) *FunctionTool {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (json, description and enum tags).
//
// Example:
//
//	type ComplaintArgs struct {
//	  AccountID string `json:"accountId" description:"Account the complaint is about"`
//	  Details   string `json:"details" description:"What went wrong"`
//	}
//
//	complaint := NewFunctionToolFromStruct("CreateComplaint", "File a complaint", ComplaintArgs{}, fn)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args then invokes the underlying function.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			logger.Error("tool.call.error", "tool", t.name, "code", toolErr.Code, "error", toolErr.Message)
			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
