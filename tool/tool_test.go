package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testToolContext() *core.ToolContext {
	ctx := core.WithIdentity(context.Background(), core.Identity{TenantID: "t1", UserID: "u1", SessionID: "s1"})
	return core.NewToolContext(ctx, "Sales", "fc1", nil)
}

var sumParams = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"a": map[string]any{"type": "number"},
		"b": map[string]any{"type": "number"},
	},
	"required": []string{"a", "b"},
}

func TestFunctionTool_Success(t *testing.T) {
	sumTool := NewFunctionTool("sum", "Add numbers", sumParams, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return NumberArg(args, "a") + NumberArg(args, "b"), nil
	})

	result, err := sumTool.Call(testToolContext(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ErrorCodes(t *testing.T) {
	custom := NewToolError("sum", "no such account", CodeNotFound)

	tests := []struct {
		name string
		fn   func(*core.ToolContext, map[string]any) (any, error)
		args map[string]any
		code string
	}{
		{
			name: "validation",
			fn:   func(*core.ToolContext, map[string]any) (any, error) { return nil, nil },
			args: map[string]any{"a": 1.0},
			code: CodeValidation,
		},
		{
			name: "execution",
			fn:   func(*core.ToolContext, map[string]any) (any, error) { return nil, errors.New("db down") },
			args: map[string]any{"a": 1.0, "b": 2.0},
			code: CodeExecution,
		},
		{
			name: "forwarded",
			fn:   func(*core.ToolContext, map[string]any) (any, error) { return nil, custom },
			args: map[string]any{"a": 1.0, "b": 2.0},
			code: CodeNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFunctionTool("sum", "Add", sumParams, tt.fn).Call(testToolContext(), tt.args)
			var toolErr *ToolError
			require.ErrorAs(t, err, &toolErr)
			assert.Equal(t, tt.code, toolErr.Code)
		})
	}
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type complaintArgs struct {
		AccountID string `json:"accountId" description:"Account the complaint is about"`
		Details   string `json:"details,omitempty"`
	}
	ft := NewFunctionToolFromStruct("CreateComplaint", "File a complaint", complaintArgs{}, func(*core.ToolContext, map[string]any) (any, error) {
		return "ok", nil
	})

	assert.Equal(t, []string{"accountId"}, ft.Parameters()["required"])

	_, err := ft.Call(testToolContext(), map[string]any{})
	assert.Error(t, err)
}

func TestTransferToAgentTool(t *testing.T) {
	tr := NewTransferToAgentTool("Transactions")
	tc := testToolContext()

	out, err := tr.Call(tc, nil)
	require.NoError(t, err)
	assert.Equal(t, "transfer_to_Transactions", tr.Name())
	assert.Equal(t, "Successfully transferred to Transactions", out)
	assert.Equal(t, "Transactions", tc.TransferTarget())
}

func TestDefinitions(t *testing.T) {
	defs := Definitions([]Tool{NewTransferToAgentTool("Sales")})
	require.Len(t, defs, 1)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "transfer_to_Sales", defs[0].Function.Name)
}

func TestArgs(t *testing.T) {
	args := map[string]any{
		"s":    "x",
		"n":    3.0,
		"when": "2025-01-02",
		"m":    map[string]any{"a": "b", "n": 1.0},
	}
	assert.Equal(t, "x", StringArg(args, "s"))
	assert.Equal(t, "", StringArg(args, "missing"))
	assert.Equal(t, 3.0, NumberArg(args, "n"))

	n, err := IntArg(args, "n")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = IntArg(map[string]any{"years": 2.5}, "years")
	assert.ErrorContains(t, err, "whole number")

	ts, err := TimeArg(args, "when")
	require.NoError(t, err)
	assert.Equal(t, 2025, ts.Year())
	_, err = TimeArg(args, "s")
	assert.Error(t, err)

	assert.Equal(t, map[string]string{"a": "b", "n": "1"}, StringMapArg(args, "m"))
}
