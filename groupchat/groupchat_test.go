package groupchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	name   string
	mu     sync.Mutex
	calls  int
	handTo string
	err    error
}

func (a *fakeAgent) Name() string { return a.name }

func (a *fakeAgent) Invoke(ctx context.Context, history []core.Message) (core.Message, error) {
	a.mu.Lock()
	a.calls++
	n := a.calls
	a.mu.Unlock()

	if a.err != nil {
		return core.Message{}, a.err
	}
	if a.handTo != "" {
		core.RequestHandOff(ctx, a.handTo)
	}
	msg := core.NewMessage("Contoso", "Mark", "s1", a.name, core.SenderRoleAssistant, fmt.Sprintf("%s reply %d", a.name, n))
	msg.TokensUsed = 10
	return msg, nil
}

func (a *fakeAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// scripted answers selection and termination requests from two queues.
type scripted struct {
	mu        sync.Mutex
	selects   []string
	terminate []string
}

func (s *scripted) handler(req model.Request) (model.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var queue *[]string
	switch req.ResponseFormat.Name {
	case "continuation_info":
		queue = &s.selects
	case "termination_info":
		queue = &s.terminate
	default:
		return model.Response{}, fmt.Errorf("unexpected format %s", req.ResponseFormat.Name)
	}
	if len(*queue) == 0 {
		return model.Response{}, errors.New("script exhausted")
	}
	next := (*queue)[0]
	*queue = (*queue)[1:]
	if next == "ERROR" {
		return model.Response{}, errors.New("model unavailable")
	}
	return model.TextResponse(next), nil
}

func selectJSON(agent, reason string) string {
	return fmt.Sprintf(`{"AgentName":%q,"Reason":%q}`, agent, reason)
}

func terminateJSON(cont bool, reason string) string {
	return fmt.Sprintf(`{"ShouldContinue":%t,"Reason":%q}`, cont, reason)
}

func newRoster() (*fakeAgent, *fakeAgent, *fakeAgent, []Agent) {
	coord := &fakeAgent{name: "Coordinator"}
	sales := &fakeAgent{name: "Sales"}
	tx := &fakeAgent{name: "Transactions"}
	return coord, sales, tx, []Agent{coord, sales, tx}
}

func newManager(t *testing.T, s *scripted, agents []Agent, optFns ...func(o *ManagerOptions)) (*Manager, *model.MockModel) {
	t.Helper()
	llm := model.NewMockModel("mock", "mock")
	llm.SetHandler(s.handler)
	m, err := NewManager(llm, agents, optFns...)
	require.NoError(t, err)
	return m, llm
}

func userMessage(text string) core.Message {
	return core.NewMessage("Contoso", "Mark", "s1", core.SenderUser, core.SenderRoleUser, text)
}

type trail struct{ entries [][2]string }

func (tr *trail) log(key, value string) { tr.entries = append(tr.entries, [2]string{key, value}) }

func TestNewManager_NoAgents(t *testing.T) {
	_, err := NewManager(model.NewMockModel("mock", "mock"), nil)
	assert.ErrorIs(t, err, ErrNoAgents)

	_, err = NewOrchestrator(nil).Run(context.Background(), nil, userMessage("hi"))
	assert.ErrorIs(t, err, ErrNoAgents)
}

func TestNewManager_Defaults(t *testing.T) {
	_, _, _, agents := newRoster()
	m, _ := newManager(t, &scripted{}, agents, func(o *ManagerOptions) { o.MaxIterations = -1 })

	assert.Equal(t, 5, m.MaxIterations())
	assert.Equal(t, 5, m.opts.SelectionHistory)
	assert.Equal(t, 10, m.opts.TerminationHistory)
	assert.Equal(t, "Coordinator, Sales, Transactions", m.Participants())
}

func TestFormatHistory(t *testing.T) {
	history := []core.Message{
		{Sender: "User", Text: "one"},
		{Sender: "Coordinator", Text: "two"},
		{Sender: "User", Text: "three"},
	}

	assert.Equal(t, "Coordinator: two\nUser: three", FormatHistory(history, 2))
	assert.Equal(t, "User: one\nCoordinator: two\nUser: three", FormatHistory(history, 0))
	assert.Equal(t, "", FormatHistory(nil, 5))
}

func TestSelectNextAgent(t *testing.T) {
	tests := []struct {
		name      string
		answer    string
		want      string
		wantLog   string
		wantError bool
	}{
		{name: "exact name", answer: selectJSON("Sales", "offers"), want: "Sales", wantLog: "{Agent: Sales, Reason: offers}"},
		{name: "case insensitive", answer: selectJSON("transactions", "transfer"), want: "Transactions", wantLog: "{Agent: Transactions, Reason: transfer}"},
		{name: "fenced json", answer: "```json\n" + selectJSON("Sales", "offers") + "\n```", want: "Sales", wantLog: "{Agent: Sales, Reason: offers}"},
		{name: "unknown name", answer: selectJSON("Auditor", "audit"), want: "Coordinator", wantLog: "{Agent: Coordinator, Reason: audit}"},
		{name: "malformed json", answer: "Sales", want: "Coordinator", wantError: true},
		{name: "model error", answer: "ERROR", want: "Coordinator", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, agents := newRoster()
			m, _ := newManager(t, &scripted{selects: []string{tt.answer}}, agents)

			var tr trail
			got, err := m.SelectNextAgent(context.Background(), []core.Message{userMessage("hello")}, tr.log)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Name())

			last := tr.entries[len(tr.entries)-1]
			assert.Equal(t, LogKeySelectNextAgent, last[0])
			if tt.wantError {
				assert.Equal(t, LogKeySelectNextAgentError, tr.entries[0][0])
				assert.Contains(t, last[1], "falling back to Coordinator")
			} else {
				assert.Equal(t, tt.wantLog, last[1])
			}
		})
	}
}

func TestSelectNextAgent_PromptWindow(t *testing.T) {
	_, _, _, agents := newRoster()
	m, llm := newManager(t, &scripted{selects: []string{selectJSON("Sales", "x")}}, agents)

	history := make([]core.Message, 0, 7)
	for i := 1; i <= 7; i++ {
		history = append(history, userMessage(fmt.Sprintf("msg%d", i)))
	}
	_, err := m.SelectNextAgent(context.Background(), history, nil)
	require.NoError(t, err)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Instructions
	assert.Contains(t, prompt, "Coordinator, Sales, Transactions")
	assert.NotContains(t, prompt, "msg2")
	assert.Contains(t, prompt, "User: msg3")
	assert.Contains(t, prompt, "User: msg7")
	require.NotNil(t, reqs[0].ResponseFormat)
	assert.Equal(t, "continuation_info", reqs[0].ResponseFormat.Name)
	assert.True(t, reqs[0].ResponseFormat.Strict)
}

func TestSelectNextAgent_HandOffPreemptsModel(t *testing.T) {
	_, _, _, agents := newRoster()
	m, llm := newManager(t, &scripted{}, agents)

	ctx, h := core.WithHandOff(context.Background())
	core.RequestHandOff(ctx, "sales")

	var tr trail
	got, err := m.SelectNextAgent(ctx, []core.Message{userMessage("hi")}, tr.log)
	require.NoError(t, err)
	assert.Equal(t, "Sales", got.Name())
	assert.Empty(t, llm.Requests())
	assert.Empty(t, h.Pending())
	require.Len(t, tr.entries, 1)
	assert.Equal(t, "{Agent: Sales, Reason: hand-off requested}", tr.entries[0][1])
}

func TestSelectNextAgent_ContextDone(t *testing.T) {
	_, _, _, agents := newRoster()
	m, _ := newManager(t, &scripted{}, agents)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var tr trail
	got, err := m.SelectNextAgent(ctx, []core.Message{userMessage("hello")}, tr.log)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
	assert.Empty(t, tr.entries)
}

func TestShouldTerminate(t *testing.T) {
	history := []core.Message{userMessage("hello"), {Sender: "Sales", Text: "Which account?"}}

	t.Run("predicate first", func(t *testing.T) {
		_, _, _, agents := newRoster()
		m, llm := newManager(t, &scripted{}, agents, func(o *ManagerOptions) {
			o.TerminateFunc = func(h []core.Message, _ int) bool {
				return strings.HasSuffix(h[len(h)-1].Text, "?")
			}
		})
		stop, reason := m.ShouldTerminate(context.Background(), history, 1, nil)
		assert.True(t, stop)
		assert.Equal(t, "custom termination predicate", reason)
		assert.Empty(t, llm.Requests())
	})

	t.Run("iteration cap", func(t *testing.T) {
		_, _, _, agents := newRoster()
		m, llm := newManager(t, &scripted{}, agents)
		var tr trail
		stop, _ := m.ShouldTerminate(context.Background(), history, 5, tr.log)
		assert.True(t, stop)
		assert.Empty(t, llm.Requests())
		assert.Equal(t, LogKeyShouldTerminate, tr.entries[0][0])
	})

	t.Run("empty history continues", func(t *testing.T) {
		_, _, _, agents := newRoster()
		m, llm := newManager(t, &scripted{}, agents)
		stop, _ := m.ShouldTerminate(context.Background(), nil, 1, nil)
		assert.False(t, stop)
		assert.Empty(t, llm.Requests())
	})

	t.Run("pending hand-off continues", func(t *testing.T) {
		_, _, _, agents := newRoster()
		m, llm := newManager(t, &scripted{}, agents)
		ctx, _ := core.WithHandOff(context.Background())
		core.RequestHandOff(ctx, "Sales")
		stop, reason := m.ShouldTerminate(ctx, history, 1, nil)
		assert.False(t, stop)
		assert.Equal(t, ReasonHandOff, reason)
		assert.Empty(t, llm.Requests())
	})

	t.Run("model stops", func(t *testing.T) {
		_, _, _, agents := newRoster()
		m, llm := newManager(t, &scripted{terminate: []string{terminateJSON(false, "question asked")}}, agents)
		var tr trail
		stop, reason := m.ShouldTerminate(context.Background(), history, 1, tr.log)
		assert.True(t, stop)
		assert.Equal(t, "question asked", reason)
		assert.Equal(t, [2]string{LogKeyShouldTerminate, "{ShouldContinue: false, Reason: question asked}"}, tr.entries[0])

		reqs := llm.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "termination_info", reqs[0].ResponseFormat.Name)
		assert.Contains(t, reqs[0].Instructions, "Sales: Which account?")
	})

	t.Run("model continues", func(t *testing.T) {
		_, _, _, agents := newRoster()
		m, _ := newManager(t, &scripted{terminate: []string{terminateJSON(true, "looking up")}}, agents)
		stop, _ := m.ShouldTerminate(context.Background(), history, 1, nil)
		assert.False(t, stop)
	})

	t.Run("model error continues", func(t *testing.T) {
		_, _, _, agents := newRoster()
		m, _ := newManager(t, &scripted{terminate: []string{"ERROR"}}, agents)
		var tr trail
		stop, _ := m.ShouldTerminate(context.Background(), history, 1, tr.log)
		assert.False(t, stop)
		assert.Equal(t, LogKeyShouldTerminateError, tr.entries[0][0])
	})
}

func TestFilterResultsAndUserInput(t *testing.T) {
	_, _, _, agents := newRoster()
	m, _ := newManager(t, &scripted{}, agents)

	assert.Equal(t, "", m.FilterResults(nil))
	assert.Equal(t, "last", m.FilterResults([]core.Message{{Text: "first"}, {Text: "last"}}))
	assert.False(t, m.ShouldRequestUserInput())
}

func TestOrchestrator_Run(t *testing.T) {
	coord, sales, _, agents := newRoster()
	s := &scripted{
		selects:   []string{selectJSON("Coordinator", "greeting"), selectJSON("Sales", "offers")},
		terminate: []string{terminateJSON(true, "routing"), terminateJSON(false, "answered")},
	}
	m, _ := newManager(t, s, agents)
	o := NewOrchestrator(m)

	prior := []core.Message{userMessage("earlier")}
	res, err := o.Run(context.Background(), prior, userMessage("any savings offers?"))
	require.NoError(t, err)

	require.Len(t, res.Messages, 2)
	assert.Equal(t, "Coordinator", res.Messages[0].Sender)
	assert.Equal(t, "Sales", res.Messages[1].Sender)
	assert.Equal(t, "Sales", res.ActiveAgent)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 20, res.TokensUsed())
	assert.Equal(t, "Sales reply 1", res.Text())
	assert.Equal(t, 1, coord.Calls())
	assert.Equal(t, 1, sales.Calls())
	assert.Len(t, prior, 1)

	require.Len(t, res.Logs, 2)
	assert.Equal(t, LogKeySelectNextAgent, res.Logs[0][0].Key)
	assert.Equal(t, LogKeyShouldTerminate, res.Logs[0][1].Key)
	assert.Len(t, res.Log, 4)
	for _, msg := range res.Messages {
		assert.NotEqual(t, core.SenderUser, msg.Sender)
	}
}

func TestOrchestrator_IterationCap(t *testing.T) {
	coord, _, _, agents := newRoster()
	s := &scripted{}
	for i := 0; i < 10; i++ {
		s.selects = append(s.selects, selectJSON("Coordinator", "again"))
		s.terminate = append(s.terminate, terminateJSON(true, "keep going"))
	}
	m, _ := newManager(t, s, agents, func(o *ManagerOptions) { o.MaxIterations = 3 })

	res, err := NewOrchestrator(m).Run(context.Background(), nil, userMessage("loop"))
	require.NoError(t, err)
	assert.Len(t, res.Messages, 3)
	assert.Equal(t, 3, coord.Calls())
	assert.Equal(t, 3, res.Iterations)
}

func TestOrchestrator_HandOff(t *testing.T) {
	coord, sales, _, agents := newRoster()
	coord.handTo = "Sales"
	s := &scripted{
		selects:   []string{selectJSON("Coordinator", "greeting")},
		terminate: []string{terminateJSON(false, "answered")},
	}
	m, llm := newManager(t, s, agents)

	res, err := NewOrchestrator(m).Run(context.Background(), nil, userMessage("open an account"))
	require.NoError(t, err)

	require.Len(t, res.Messages, 2)
	assert.Equal(t, "Sales", res.ActiveAgent)
	assert.Equal(t, 1, sales.Calls())
	assert.Contains(t, res.Logs[1][0].Value, ReasonHandOff)
	// one selection and one termination check; the hand-off skipped the rest
	assert.Len(t, llm.Requests(), 2)
}

func TestOrchestrator_AgentError(t *testing.T) {
	coord, _, _, agents := newRoster()
	coord.err = errors.New("model down")
	m, _ := newManager(t, &scripted{selects: []string{selectJSON("Coordinator", "hi")}}, agents)

	_, err := NewOrchestrator(m).Run(context.Background(), nil, userMessage("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, coord.err)
}

func TestOrchestrator_Cancelled(t *testing.T) {
	_, _, _, agents := newRoster()
	m, _ := newManager(t, &scripted{}, agents)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOrchestrator(m).Run(ctx, nil, userMessage("hi"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrchestrator_CancelledDuringSelection(t *testing.T) {
	coord, _, _, agents := newRoster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llm := model.NewMockModel("mock", "mock")
	llm.SetHandler(func(model.Request) (model.Response, error) {
		cancel()
		return model.Response{}, context.Canceled
	})
	m, err := NewManager(llm, agents)
	require.NoError(t, err)

	res, err := NewOrchestrator(m).Run(ctx, nil, userMessage("hi"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Messages)
	assert.Equal(t, 0, coord.Calls())
	for _, p := range res.Log {
		assert.NotEqual(t, LogKeySelectNextAgentError, p.Key)
		assert.NotEqual(t, LogKeyShouldTerminateError, p.Key)
	}
}
