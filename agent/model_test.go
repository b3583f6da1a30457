package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/model"
	"github.com/hupe1980/bankcopilot/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockModelImpl answers every Generate call with the response given to On.
type MockModelImpl struct{ mock.Mock }

func (m *MockModelImpl) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	args := m.Called(ctx, req)

	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	if err := args.Error(1); err != nil {
		errCh <- err
	} else {
		respCh <- args.Get(0).(model.Response)
	}
	close(respCh)
	close(errCh)

	return respCh, errCh
}

func (m *MockModelImpl) Info() model.Info {
	return model.Info{Name: "mock", Provider: "mock"}
}

var identity = core.Identity{TenantID: "Contoso", UserID: "Mark", SessionID: "s1"}

func testCtx() context.Context {
	return core.WithIdentity(context.Background(), identity)
}

func echoTool(name string, fn func(tc *core.ToolContext, args map[string]any) (any, error)) tool.Tool {
	return tool.NewFunctionTool(name, "test tool", nil, fn)
}

func TestModelAgent_NewAgent(t *testing.T) {
	mockLLM := &MockModelImpl{}
	a := NewModelAgent("Sales", mockLLM)

	assert.Equal(t, "Sales", a.Name())
	assert.Equal(t, "Agent Sales", a.Description())
	assert.Same(t, mockLLM, a.Model())
	assert.Empty(t, a.ListTools())
	assert.Equal(t, 15*time.Second, a.toolTimeout)
	assert.Equal(t, 8, a.maxToolRounds)
	assert.Equal(t, 20, a.MaxHistoryMessages())
}

func TestModelAgent_Options(t *testing.T) {
	a := NewModelAgent("Sales", &MockModelImpl{}, func(o *ModelAgentOptions) {
		o.Description = "Sells banking products"
		o.Tools = []tool.Tool{
			echoTool("b", nil),
			echoTool("a", nil),
		}
	})

	assert.Equal(t, "Sells banking products", a.Description())
	assert.Equal(t, []string{"a", "b"}, a.ListTools())
	assert.True(t, a.HasTool("a"))
	assert.False(t, a.HasTool("c"))
}

func TestModelAgent_InvokeText(t *testing.T) {
	mockLLM := &MockModelImpl{}
	mockLLM.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return req.Instructions == "You are Sales." && len(req.Contents) == 2
	})).Return(model.Response{
		Content: core.NewTextContent(core.RoleAssistant, "We offer a savings account."),
		Usage:   &model.TokenUsage{TotalTokens: 42},
	}, nil).Once()

	a := NewModelAgent("Sales", mockLLM, func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromText("You are Sales.")
	})

	msg, err := a.Invoke(testCtx(), []core.Message{
		core.NewMessage("Contoso", "Mark", "s1", core.SenderUser, core.SenderRoleUser, "any offers?"),
		core.NewMessage("Contoso", "Mark", "s1", "Sales", core.SenderRoleAssistant, "Let me check."),
	})
	require.NoError(t, err)

	assert.Equal(t, "We offer a savings account.", msg.Text)
	assert.Equal(t, "Sales", msg.Sender)
	assert.Equal(t, core.SenderRoleAssistant, msg.SenderRole)
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, "Mark", msg.UserID)
	assert.Equal(t, 42, msg.TokensUsed)
	mockLLM.AssertExpectations(t)
}

func TestModelAgent_InvokeError(t *testing.T) {
	mockLLM := &MockModelImpl{}
	boom := errors.New("boom")
	mockLLM.On("Generate", mock.Anything, mock.Anything).Return(model.Response{}, boom)

	a := NewModelAgent("Sales", mockLLM)
	_, err := a.Invoke(testCtx(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestModelAgent_BuildContents(t *testing.T) {
	a := NewModelAgent("Sales", &MockModelImpl{}, func(o *ModelAgentOptions) { o.MaxHistoryMessages = 3 })

	history := []core.Message{
		{Sender: core.SenderUser, SenderRole: core.SenderRoleUser, Text: "dropped by window"},
		{Sender: core.SenderUser, SenderRole: core.SenderRoleUser, Text: "open an account"},
		{Sender: core.SenderError, SenderRole: core.SenderError, Text: "Error getting completion"},
		{Sender: "Coordinator", SenderRole: core.SenderRoleAssistant, Text: "Routing to Sales"},
	}

	contents := a.buildContents(history)
	require.Len(t, contents, 2)
	assert.Equal(t, core.RoleUser, contents[0].Role)
	assert.Equal(t, "User: open an account", contents[0].Text())
	assert.Equal(t, "Coordinator: Routing to Sales", contents[1].Text())

	contents = a.buildContents([]core.Message{{Sender: "sales", Text: "mine"}})
	require.Len(t, contents, 1)
	assert.Equal(t, core.RoleAssistant, contents[0].Role)
}

func TestModelAgent_ToolLoop(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueToolCall("c1", "GetLoggedInUser", `{}`)
	llm.EnqueueText("Hello Mark")

	var seen core.Identity
	a := NewModelAgent("Coordinator", llm, func(o *ModelAgentOptions) {
		o.Tools = []tool.Tool{echoTool("GetLoggedInUser", func(tc *core.ToolContext, _ map[string]any) (any, error) {
			seen = core.Identity{TenantID: tc.TenantID(), UserID: tc.UserID(), SessionID: tc.SessionID()}
			return map[string]string{"name": "Mark"}, nil
		})}
	})

	msg, err := a.Invoke(testCtx(), []core.Message{{Sender: core.SenderUser, Text: "who am I?"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello Mark", msg.Text)
	assert.Equal(t, identity, seen)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Contents, 3)
	toolContent := reqs[1].Contents[2]
	assert.Equal(t, core.RoleTool, toolContent.Role)
	fr := toolContent.Parts[0].(core.FunctionResponsePart).FunctionResponse
	assert.Equal(t, "c1", fr.ID)
	assert.JSONEq(t, `{"name":"Mark"}`, fr.Response)
}

func TestModelAgent_ToolFailuresReachModel(t *testing.T) {
	tests := []struct {
		name    string
		call    string
		args    string
		tool    tool.Tool
		wantErr string
	}{
		{
			name:    "unknown tool",
			call:    "Nope",
			args:    `{}`,
			wantErr: tool.CodeUnknown,
		},
		{
			name:    "bad arguments",
			call:    "Echo",
			args:    `{not json`,
			tool:    echoTool("Echo", func(*core.ToolContext, map[string]any) (any, error) { return "ok", nil }),
			wantErr: tool.CodeValidation,
		},
		{
			name: "panic",
			call: "Echo",
			args: `{}`,
			tool: echoTool("Echo", func(*core.ToolContext, map[string]any) (any, error) {
				panic("kaboom")
			}),
			wantErr: "tool panicked: kaboom",
		},
		{
			name: "tool error",
			call: "Echo",
			args: `{}`,
			tool: echoTool("Echo", func(*core.ToolContext, map[string]any) (any, error) {
				return nil, errors.New("downstream unavailable")
			}),
			wantErr: "downstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := model.NewMockModel("mock", "mock")
			llm.EnqueueToolCall("c1", tt.call, tt.args)
			llm.EnqueueText("sorry")

			a := NewModelAgent("Sales", llm, func(o *ModelAgentOptions) {
				o.Tools = []tool.Tool{echoTool("Other", nil)}
				if tt.tool != nil {
					o.Tools = append(o.Tools, tt.tool)
				}
			})

			msg, err := a.Invoke(testCtx(), nil)
			require.NoError(t, err)
			assert.Equal(t, "sorry", msg.Text)

			reqs := llm.Requests()
			require.Len(t, reqs, 2)
			last := reqs[1].Contents[len(reqs[1].Contents)-1]
			fr := last.Parts[0].(core.FunctionResponsePart).FunctionResponse
			assert.Contains(t, fr.Error, tt.wantErr)
			assert.NotContains(t, fr.Error, "goroutine")
		})
	}
}

func TestModelAgent_ToolTimeout(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueToolCall("c1", "Slow", `{}`)
	llm.EnqueueText("done")

	release := make(chan struct{})
	defer close(release)

	a := NewModelAgent("Sales", llm, func(o *ModelAgentOptions) {
		o.ToolTimeout = 10 * time.Millisecond
		o.Tools = []tool.Tool{echoTool("Slow", func(*core.ToolContext, map[string]any) (any, error) {
			<-release
			return "late", nil
		})}
	})

	msg, err := a.Invoke(testCtx(), nil)
	require.NoError(t, err)
	assert.Equal(t, "done", msg.Text)

	reqs := llm.Requests()
	last := reqs[1].Contents[len(reqs[1].Contents)-1]
	fr := last.Parts[0].(core.FunctionResponsePart).FunctionResponse
	assert.Contains(t, fr.Error, "timed out")
}

func TestModelAgent_LateTransferIgnored(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueToolCall("c1", "SlowTransfer", `{}`)
	llm.EnqueueText("done")

	release := make(chan struct{})
	finished := make(chan struct{})

	a := NewModelAgent("Coordinator", llm, func(o *ModelAgentOptions) {
		o.ToolTimeout = 10 * time.Millisecond
		o.Tools = []tool.Tool{echoTool("SlowTransfer", func(tc *core.ToolContext, _ map[string]any) (any, error) {
			defer close(finished)
			<-release
			tc.TransferToAgent("Sales")
			return "late", nil
		})}
	})

	ctx, h := core.WithHandOff(testCtx())
	_, err := a.Invoke(ctx, nil)
	require.NoError(t, err)

	close(release)
	<-finished
	assert.Empty(t, h.Pending())
}

func TestModelAgent_MaxToolRounds(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueToolCall("c1", "Echo", `{}`)
	llm.EnqueueToolCall("c2", "Echo", `{}`)
	llm.EnqueueText("final")

	calls := 0
	a := NewModelAgent("Sales", llm, func(o *ModelAgentOptions) {
		o.MaxToolRounds = 2
		o.Tools = []tool.Tool{echoTool("Echo", func(*core.ToolContext, map[string]any) (any, error) {
			calls++
			return "ok", nil
		})}
	})

	msg, err := a.Invoke(testCtx(), nil)
	require.NoError(t, err)
	assert.Equal(t, "final", msg.Text)
	assert.Equal(t, 2, calls)

	reqs := llm.Requests()
	require.Len(t, reqs, 3)
	assert.NotEmpty(t, reqs[1].Tools)
	assert.Empty(t, reqs[2].Tools)
}

func TestModelAgent_HandOffThroughTool(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueToolCall("c1", tool.TransferPrefix+"Sales", `{}`)
	llm.EnqueueText("Sales will help you.")

	a := NewModelAgent("Coordinator", llm, func(o *ModelAgentOptions) {
		o.Tools = []tool.Tool{tool.NewTransferToAgentTool("Sales")}
	})

	ctx, h := core.WithHandOff(testCtx())
	_, err := a.Invoke(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Sales", h.Take())
}
