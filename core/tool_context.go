package core

import (
	"context"

	"github.com/hupe1980/bankcopilot/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// by an agent: the request context, the acting identity, a logger and the
// ability to request a hand-off to another agent.
type ToolContext struct {
	ctx            context.Context
	identity       Identity
	agentName      string
	functionCallID string
	logger         logging.Logger
	transferTo     string
}

// NewToolContext constructs a tool context for one function call. The identity
// is taken from ctx (see WithIdentity).
func NewToolContext(ctx context.Context, agentName, functionCallID string, logger logging.Logger) *ToolContext {
	id, _ := IdentityFrom(ctx)
	return &ToolContext{
		ctx:            ctx,
		identity:       id,
		agentName:      agentName,
		functionCallID: functionCallID,
		logger:         logging.OrNoOp(logger),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// TenantID returns the tenant the invocation acts for.
func (tc *ToolContext) TenantID() string { return tc.identity.TenantID }

// UserID returns the logged-in user.
func (tc *ToolContext) UserID() string { return tc.identity.UserID }

// SessionID returns the chat session id.
func (tc *ToolContext) SessionID() string { return tc.identity.SessionID }

// AgentName returns the agent that issued the call.
func (tc *ToolContext) AgentName() string { return tc.agentName }

// FunctionCallID returns the id correlating model request and tool execution.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// TransferToAgent requests that the named agent takes the next turn. The
// executor moves the request onto the HandOff carried by the context once the
// call has returned.
func (tc *ToolContext) TransferToAgent(name string) {
	tc.transferTo = name
}

// TransferTarget returns the requested hand-off target, if any.
func (tc *ToolContext) TransferTarget() string { return tc.transferTo }
