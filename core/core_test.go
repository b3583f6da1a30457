package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	s := NewSession("t1", "u1")

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, s.ID, s.SessionID)
	assert.Equal(t, TypeSession, s.Type)
	assert.Equal(t, DefaultSessionName, s.Name)
}

func TestNewDebugLog_LinksMessage(t *testing.T) {
	msg := NewMessage("t1", "u1", "s1", "Sales", SenderRoleAssistant, "hello")
	dl := NewDebugLog(msg, []LogProperty{{Key: "k", Value: "v"}})

	assert.Equal(t, msg.ID, dl.MessageID)
	assert.Equal(t, "s1", dl.SessionID)
	assert.Equal(t, TypeDebugLog, dl.Type)
	assert.Len(t, dl.PropertyBag, 1)
}

func TestContent_TextAndCalls(t *testing.T) {
	c := Content{Role: RoleAssistant, Parts: []Part{
		TextPart{Text: "a"},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "1", Name: "f"}},
		TextPart{Text: "b"},
	}}

	assert.Equal(t, "ab", c.Text())
	require.Len(t, c.FunctionCalls(), 1)
	assert.Equal(t, "f", c.FunctionCalls()[0].Name)
}

func TestIdentity_RoundTripThroughContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{TenantID: "t", UserID: "u", SessionID: "s"})
	id, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"t", "u", "s"}, id.PartitionKey())

	tc := NewToolContext(ctx, "Sales", "fc1", nil)
	assert.Equal(t, "u", tc.UserID())
	assert.Equal(t, "fc1", tc.FunctionCallID())
	tc.TransferToAgent("Transactions")
	assert.Equal(t, "Transactions", tc.TransferTarget())
}

func TestTurnLimiter(t *testing.T) {
	l := NewTurnLimiter(2)
	require.NoError(t, l.Increment())
	require.NoError(t, l.Increment())
	assert.True(t, l.Exhausted())

	err := l.Increment()
	assert.True(t, errors.Is(err, ErrTurnLimit))
	assert.Equal(t, 2, l.Count())
	assert.Equal(t, 0, l.Remaining())
}

func TestTurnLimiter_UnlimitedConcurrent(t *testing.T) {
	l := NewTurnLimiter(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Increment()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, l.Count())
	assert.Equal(t, -1, l.Remaining())
	assert.False(t, l.Exhausted())
}

func TestHandOff_ToolContextOnlyRecordsTarget(t *testing.T) {
	ctx, h := WithHandOff(context.Background())
	tc := NewToolContext(ctx, "Coordinator", "fc1", nil)

	tc.TransferToAgent("Sales")

	assert.Equal(t, "Sales", tc.TransferTarget())
	assert.Empty(t, h.Pending())

	require.True(t, RequestHandOff(ctx, tc.TransferTarget()))
	assert.Equal(t, "Sales", h.Take())
	assert.Empty(t, h.Take())
	assert.False(t, RequestHandOff(context.Background(), "Sales"))
}

func TestHandOff_ContextHelpers(t *testing.T) {
	assert.False(t, HasHandOff(context.Background()))
	assert.Empty(t, PendingHandOff(context.Background()))
	assert.Empty(t, TakeHandOff(context.Background()))

	ctx, _ := WithHandOff(context.Background())
	require.True(t, HasHandOff(ctx))
	require.True(t, RequestHandOff(ctx, "Transactions"))
	assert.Equal(t, "Transactions", PendingHandOff(ctx))
	assert.Equal(t, "Transactions", TakeHandOff(ctx))
	assert.Empty(t, PendingHandOff(ctx))
}
