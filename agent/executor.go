package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/logging"
	"github.com/hupe1980/bankcopilot/tool"
)

// executeCalls runs the requested function calls in order and returns one
// tool content holding a response part per call. Failures are reported to the
// model as response errors and never abort the turn.
func (a *ModelAgent) executeCalls(ctx context.Context, calls []core.FunctionCall) core.Content {
	parts := make([]core.Part, 0, len(calls))

	for _, fc := range calls {
		start := time.Now()
		result, err := a.executeTool(ctx, fc)

		if sl, ok := a.logger.(*logging.StructuredLogger); ok {
			sl.LogToolCall(fc.Name, time.Since(start), err)
		} else {
			a.logger.Info("agent.function.executed",
				"agent", a.Name(),
				"function", fc.Name,
				"function_call_id", fc.ID,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err != nil,
			)
		}

		fr := core.FunctionResponse{ID: fc.ID, Name: fc.Name}
		if err != nil {
			fr.Error = err.Error()
		} else {
			fr.Response = encodeResult(result)
		}
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: fr})
	}

	return core.Content{Role: core.RoleTool, Parts: parts}
}

// executeTool decodes the arguments of fc and calls the matching tool under
// the agent's tool timeout. Panics are recovered and returned as errors.
func (a *ModelAgent) executeTool(ctx context.Context, fc core.FunctionCall) (any, error) {
	t, ok := a.tools[fc.Name]
	if !ok {
		return nil, tool.NewToolError(fc.Name, fmt.Sprintf("tool %s not found", fc.Name), tool.CodeUnknown)
	}

	args := make(map[string]any)
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			return nil, tool.NewToolError(fc.Name, fmt.Sprintf("failed to unmarshal args: %v", err), tool.CodeValidation)
		}
	}

	if a.toolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.toolTimeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	toolCtx := core.NewToolContext(ctx, a.Name(), fc.ID, a.logger)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("agent.function.panic", "agent", a.Name(), "function", fc.Name, "recover", r, "stack", string(debug.Stack()))
				out = outcome{err: tool.NewToolError(fc.Name, fmt.Sprintf("tool panicked: %v", r), tool.CodeExecution)}
			}
			done <- out
		}()
		out.result, out.err = t.Call(toolCtx, args)
	}()

	select {
	case out := <-done:
		// a late tool must not redirect the conversation, so the hand-off
		// is only taken from calls that finished in time
		if target := toolCtx.TransferTarget(); target != "" {
			core.RequestHandOff(ctx, target)
		}
		return out.result, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, tool.NewToolError(fc.Name, fmt.Sprintf("timed out after %s", a.toolTimeout), tool.CodeExecution)
		}
		return nil, ctx.Err()
	}
}

func encodeResult(result any) string {
	switch v := result.(type) {
	case nil:
		return "null"
	case string:
		return v
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(raw)
}
