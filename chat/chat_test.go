package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/bankcopilot/banking"
	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/groupchat"
	"github.com/hupe1980/bankcopilot/internal/testutil"
	"github.com/hupe1980/bankcopilot/model"
	"github.com/hupe1980/bankcopilot/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Runner = (*groupchat.Orchestrator)(nil)

type stubRunner struct {
	result   groupchat.Result
	err      error
	history  []core.Message
	prompt   core.Message
	identity core.Identity
}

func (r *stubRunner) Run(ctx context.Context, history []core.Message, prompt core.Message) (groupchat.Result, error) {
	r.history = history
	r.prompt = prompt
	r.identity, _ = core.IdentityFrom(ctx)
	if r.err != nil {
		return groupchat.Result{}, r.err
	}
	return r.result, nil
}

type fixture struct {
	svc    *Service
	store  *memory.Store
	runner *stubRunner
	llm    *model.MockModel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	testutil.Seed(t, store)
	runner := &stubRunner{}
	llm := model.NewMockModel("mock", "mock")
	svc := NewService(store, banking.NewService(store), runner, llm)
	return &fixture{svc: svc, store: store, runner: runner, llm: llm}
}

func (f *fixture) newSession(t *testing.T) *core.Session {
	t.Helper()
	s, err := f.svc.CreateNewChatSession(context.Background(), testutil.TenantID, testutil.UserID)
	require.NoError(t, err)
	return s
}

func agentMessage(sender, text string, tokens int) core.Message {
	msg := core.NewMessage(testutil.TenantID, testutil.UserID, "", sender, core.SenderRoleAssistant, text)
	msg.TokensUsed = tokens
	return msg
}

func TestSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.newSession(t)
	assert.Equal(t, core.DefaultSessionName, s.Name)
	assert.Equal(t, s.ID, s.SessionID)

	sessions, err := f.svc.GetAllChatSessions(ctx, testutil.TenantID, testutil.UserID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	renamed, err := f.svc.RenameChatSession(ctx, testutil.TenantID, testutil.UserID, s.ID, "Savings Offers")
	require.NoError(t, err)
	assert.Equal(t, "Savings Offers", renamed.Name)

	require.NoError(t, f.svc.DeleteChatSession(ctx, testutil.TenantID, testutil.UserID, s.ID))
	sessions, err = f.svc.GetAllChatSessions(ctx, testutil.TenantID, testutil.UserID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestInvalidArguments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"rename without name", func() error {
			_, err := f.svc.RenameChatSession(ctx, testutil.TenantID, testutil.UserID, "s1", "")
			return err
		}},
		{"rename without session", func() error {
			_, err := f.svc.RenameChatSession(ctx, testutil.TenantID, testutil.UserID, "", "name")
			return err
		}},
		{"messages without session", func() error {
			_, err := f.svc.GetChatSessionMessages(ctx, testutil.TenantID, testutil.UserID, " ")
			return err
		}},
		{"rate without message", func() error {
			_, err := f.svc.RateChatCompletion(ctx, testutil.TenantID, testutil.UserID, "", "s1", nil)
			return err
		}},
		{"debug log without id", func() error {
			_, err := f.svc.GetChatCompletionDebugLog(ctx, testutil.TenantID, testutil.UserID, "s1", "")
			return err
		}},
		{"unknown container", func() error {
			return f.svc.AddDocument(ctx, "ledger", []byte(`{"id":"x"}`))
		}},
		{"document without id", func() error {
			return f.svc.AddDocument(ctx, "userdata", []byte(`{"type":"BankUser"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.fn(), ErrInvalidArgument)
		})
	}
}

func TestGetChatCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.newSession(t)

	f.runner.result = groupchat.Result{
		Messages: []core.Message{
			agentMessage("Coordinator", "Routing you to Sales.", 12),
			agentMessage("Sales", "We have a savings offer.", 0),
		},
		Logs: [][]core.LogProperty{
			{{Key: groupchat.LogKeySelectNextAgent, Value: "{Agent: Coordinator, Reason: greeting}"}},
			{{Key: groupchat.LogKeySelectNextAgent, Value: "{Agent: Sales, Reason: hand-off requested}"}},
		},
		ActiveAgent: "Sales",
		Iterations:  2,
	}

	msgs := f.svc.GetChatCompletion(ctx, testutil.TenantID, testutil.UserID, s.ID, "any savings offers?")
	require.Len(t, msgs, 3)

	user := msgs[0]
	assert.Equal(t, core.SenderUser, user.Sender)
	assert.Equal(t, core.SenderRoleUser, user.SenderRole)
	assert.Equal(t, "any savings offers?", user.Text)
	assert.Equal(t, user.ID, f.runner.prompt.ID)
	assert.Equal(t, core.Identity{TenantID: testutil.TenantID, UserID: testutil.UserID, SessionID: s.ID}, f.runner.identity)

	assert.Equal(t, 12, msgs[1].TokensUsed)
	assert.Positive(t, msgs[2].TokensUsed)
	for _, m := range msgs[1:] {
		require.NotEmpty(t, m.DebugLogID)
	}

	stored, err := f.svc.GetChatSessionMessages(ctx, testutil.TenantID, testutil.UserID, s.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "Sales", stored[2].Sender)

	bag, err := f.svc.GetChatCompletionDebugLog(ctx, testutil.TenantID, testutil.UserID, s.ID, msgs[2].DebugLogID)
	require.NoError(t, err)
	require.Len(t, bag, 1)
	assert.Contains(t, bag[0].Value, "hand-off requested")

	session, err := f.store.GetSession(ctx, testutil.TenantID, testutil.UserID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sales", session.ActiveAgent)
	assert.Equal(t, user.TokensUsed+msgs[1].TokensUsed+msgs[2].TokensUsed, session.TokensUsed)

	// the next completion sees the stored history
	f.runner.result = groupchat.Result{}
	f.svc.GetChatCompletion(ctx, testutil.TenantID, testutil.UserID, s.ID, "thanks")
	assert.Len(t, f.runner.history, 3)
}

func TestGetChatCompletion_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.newSession(t)

	f.runner.err = errors.New("model down")
	msgs := f.svc.GetChatCompletion(ctx, testutil.TenantID, testutil.UserID, s.ID, "hello")
	require.Len(t, msgs, 1)
	assert.Equal(t, core.SenderError, msgs[0].Sender)
	assert.Equal(t, core.SenderError, msgs[0].SenderRole)
	assert.Equal(t, "Error getting completion in session "+s.ID+" for user prompt [hello].", msgs[0].Text)

	stored, err := f.svc.GetChatSessionMessages(ctx, testutil.TenantID, testutil.UserID, s.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)

	f.runner.err = nil
	msgs = f.svc.GetChatCompletion(ctx, testutil.TenantID, testutil.UserID, "missing", "hello")
	require.Len(t, msgs, 1)
	assert.Equal(t, "Error getting completion in session missing for user prompt [hello].", msgs[0].Text)
}

func TestSummarizeChatSessionName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.newSession(t)

	f.llm.EnqueueText(`"Savings Offers."`)
	name, err := f.svc.SummarizeChatSessionName(ctx, testutil.TenantID, testutil.UserID, s.ID, "What savings accounts do you offer?")
	require.NoError(t, err)
	assert.Equal(t, "Savings Offers", name)

	reqs := f.llm.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Contents[0].Text(), "What savings accounts do you offer?")

	session, err := f.store.GetSession(ctx, testutil.TenantID, testutil.UserID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Savings Offers", session.Name)

	f.llm.EnqueueError(errors.New("boom"))
	_, err = f.svc.SummarizeChatSessionName(ctx, testutil.TenantID, testutil.UserID, s.ID, "again")
	assert.Error(t, err)
}

func TestCleanSummary(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Savings Offers", "Savings Offers"},
		{`"Fund Transfer."`, "Fund Transfer"},
		{"  Loan   Estimate  extra words", "Loan Estimate"},
		{"Complaint!", "Complaint"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanSummary(tt.in), tt.in)
	}
}

func TestRateChatCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.newSession(t)

	f.runner.result = groupchat.Result{Messages: []core.Message{agentMessage("Sales", "Here you go.", 3)}, ActiveAgent: "Sales"}
	msgs := f.svc.GetChatCompletion(ctx, testutil.TenantID, testutil.UserID, s.ID, "hi")
	require.Len(t, msgs, 2)

	up := true
	rated, err := f.svc.RateChatCompletion(ctx, testutil.TenantID, testutil.UserID, msgs[1].ID, s.ID, &up)
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.True(t, *rated.Rating)

	cleared, err := f.svc.RateChatCompletion(ctx, testutil.TenantID, testutil.UserID, msgs[1].ID, s.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.Rating)

	_, err = f.svc.RateChatCompletion(ctx, testutil.TenantID, testutil.UserID, "nope", s.ID, &up)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAddDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.AddDocument(ctx, "userdata", []byte(`{"id":"Zoe","type":"BankUser","tenantId":"Contoso","name":"Zoe"}`))
	require.NoError(t, err)

	u, err := f.svc.Banking().GetUser(ctx, testutil.TenantID, "Zoe")
	require.NoError(t, err)
	assert.Equal(t, "Zoe", u.Name)
}
