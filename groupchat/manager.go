package groupchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/internal/util"
	"github.com/hupe1980/bankcopilot/logging"
	"github.com/hupe1980/bankcopilot/metrics"
	"github.com/hupe1980/bankcopilot/model"
)

// ErrNoAgents is returned when a group chat is created without participants.
var ErrNoAgents = errors.New("groupchat: no agents registered")

// Debug log keys written by the Manager.
const (
	LogKeySelectNextAgent      = "SelectNextAgent"
	LogKeySelectNextAgentError = "SelectNextAgent Error"
	LogKeyShouldTerminate      = "ShouldTerminate"
	LogKeyShouldTerminateError = "ShouldTerminateWithAI Error"
)

// ReasonHandOff is the selection reason recorded when an agent requested a
// transfer during the previous turn.
const ReasonHandOff = "hand-off requested"

// Agent is a participant of the group chat.
type Agent interface {
	Name() string
	Invoke(ctx context.Context, history []core.Message) (core.Message, error)
}

// ContinuationInfo is the structured answer to the selection prompt.
type ContinuationInfo struct {
	AgentName string `json:"AgentName" description:"name of the agent that should speak next"`
	Reason    string `json:"Reason" description:"short reason for the choice"`
}

// TerminationInfo is the structured answer to the termination prompt.
type TerminationInfo struct {
	ShouldContinue bool   `json:"ShouldContinue" description:"true when the agents should keep talking"`
	Reason         string `json:"Reason" description:"short reason for the decision"`
}

var (
	continuationFormat = model.ResponseFormat{
		Name:        "continuation_info",
		Description: "The next agent to speak and why",
		Schema:      util.StrictSchema(util.CreateSchema(ContinuationInfo{})),
		Strict:      true,
	}
	terminationFormat = model.ResponseFormat{
		Name:        "termination_info",
		Description: "Whether the agents should continue and why",
		Schema:      util.StrictSchema(util.CreateSchema(TerminationInfo{})),
		Strict:      true,
	}
)

// LogFunc receives the decision trail of a run, one key/value pair at a time.
type LogFunc func(key, value string)

// TerminateFunc is a custom termination predicate evaluated before any other
// rule. iteration is the number of agent turns taken so far.
type TerminateFunc func(history []core.Message, iteration int) bool

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	MaxIterations      int
	SelectionHistory   int
	TerminationHistory int
	TerminateFunc      TerminateFunc
	SelectionPrompt    string
	TerminationPrompt  string
	Logger             logging.Logger
	Metrics            metrics.Recorder
}

// Manager decides which agent speaks next and when the run ends.
//
// A Manager holds no per-run state and is safe for concurrent use.
type Manager struct {
	llm    model.Model
	agents []Agent
	opts   ManagerOptions
	logger logging.Logger
	rec    metrics.Recorder
}

// NewManager creates a manager over agents. The first agent is the fallback
// selection.
//
// Defaults: 5 iterations, a 5 message selection window and a 10 message
// termination window.
func NewManager(llm model.Model, agents []Agent, optFns ...func(o *ManagerOptions)) (*Manager, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}

	opts := ManagerOptions{
		MaxIterations:      5,
		SelectionHistory:   5,
		TerminationHistory: 10,
		SelectionPrompt:    defaultSelectionPrompt,
		TerminationPrompt:  defaultTerminationPrompt,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 5
	}

	return &Manager{
		llm:    llm,
		agents: append([]Agent(nil), agents...),
		opts:   opts,
		logger: logging.OrNoOp(opts.Logger),
		rec:    metrics.OrNoOp(opts.Metrics),
	}, nil
}

// MaxIterations returns the hard cap on agent turns per run.
func (m *Manager) MaxIterations() int { return m.opts.MaxIterations }

// Participants returns the agent names joined by ", ".
func (m *Manager) Participants() string {
	names := make([]string, len(m.agents))
	for i, a := range m.agents {
		names[i] = a.Name()
	}
	return strings.Join(names, ", ")
}

// Find returns the roster agent whose name equals name case-insensitively.
func (m *Manager) Find(name string) (Agent, bool) {
	name = strings.TrimSpace(name)
	for _, a := range m.agents {
		if strings.EqualFold(a.Name(), name) {
			return a, true
		}
	}
	return nil, false
}

// SelectNextAgent picks the agent for the next turn. A pending hand-off on
// ctx wins. Otherwise the model is asked over the last SelectionHistory
// messages; an unknown name or a failed call selects the first agent. The
// only error returned is the context's, once ctx is done.
func (m *Manager) SelectNextAgent(ctx context.Context, history []core.Message, log LogFunc) (Agent, error) {
	log = orDiscard(log)

	if target := core.TakeHandOff(ctx); target != "" {
		if a, ok := m.Find(target); ok {
			m.logSelection(log, a, ReasonHandOff, metrics.SourceHandOff)
			return a, nil
		}
		m.logger.Warn("groupchat.handoff.unknown_agent", "agent", target)
	}

	prompt := strings.NewReplacer(
		"{participants}", m.Participants(),
		"{discussion}", FormatHistory(history, m.opts.SelectionHistory),
	).Replace(m.opts.SelectionPrompt)

	var info ContinuationInfo
	start := time.Now()
	_, err := model.GenerateStructured(ctx, m.llm, model.Request{
		Instructions: prompt,
		Contents:     []core.Content{core.NewTextContent(core.RoleUser, "Who should speak next?")},
	}, continuationFormat, &info)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		fallback := m.agents[0]
		m.logger.Error("groupchat.select.error", "error", err.Error(), "fallback", fallback.Name(), "duration_ms", time.Since(start).Milliseconds())
		log(LogKeySelectNextAgentError, err.Error())
		m.logSelection(log, fallback, "selection failed, falling back to "+fallback.Name(), metrics.SourceFallback)
		return fallback, nil
	}

	a, ok := m.Find(info.AgentName)
	if !ok {
		a = m.agents[0]
		m.logger.Warn("groupchat.select.unknown_agent", "agent", info.AgentName, "fallback", a.Name())
		m.logSelection(log, a, info.Reason, metrics.SourceFallback)
		return a, nil
	}

	m.logger.Debug("groupchat.select", "agent", a.Name(), "duration_ms", time.Since(start).Milliseconds())
	m.logSelection(log, a, info.Reason, metrics.SourceModel)
	return a, nil
}

func (m *Manager) logSelection(log LogFunc, a Agent, reason, source string) {
	log(LogKeySelectNextAgent, fmt.Sprintf("{Agent: %s, Reason: %s}", a.Name(), reason))
	m.rec.ObserveSelection(a.Name(), source)
}

// ShouldTerminate reports whether the run ends after iteration agent turns,
// together with the reason. Rules in order: the custom predicate, the
// iteration cap, an empty history (continue), a pending hand-off (continue)
// and finally the model over the last TerminationHistory messages. A failed
// model call continues the run.
func (m *Manager) ShouldTerminate(ctx context.Context, history []core.Message, iteration int, log LogFunc) (bool, string) {
	log = orDiscard(log)

	if m.opts.TerminateFunc != nil && m.opts.TerminateFunc(history, iteration) {
		return m.terminate(log, metrics.CausePredicate, "custom termination predicate")
	}
	if iteration >= m.opts.MaxIterations {
		return m.terminate(log, metrics.CauseCap, fmt.Sprintf("maximum of %d iterations reached", m.opts.MaxIterations))
	}
	if len(history) == 0 {
		return false, "empty history"
	}
	if target := core.PendingHandOff(ctx); target != "" {
		log(LogKeyShouldTerminate, fmt.Sprintf("{ShouldContinue: true, Reason: %s to %s}", ReasonHandOff, target))
		return false, ReasonHandOff
	}

	prompt := strings.NewReplacer(
		"{topic}", FormatHistory(history, m.opts.TerminationHistory),
	).Replace(m.opts.TerminationPrompt)

	var info TerminationInfo
	_, err := model.GenerateStructured(ctx, m.llm, model.Request{
		Instructions: prompt,
		Contents:     []core.Content{core.NewTextContent(core.RoleUser, "Should the agents continue?")},
	}, terminationFormat, &info)
	if err != nil {
		if ctx.Err() != nil {
			return false, "context done"
		}
		m.logger.Error("groupchat.terminate.error", "error", err.Error())
		log(LogKeyShouldTerminateError, err.Error())
		return false, "termination check failed"
	}

	log(LogKeyShouldTerminate, fmt.Sprintf("{ShouldContinue: %t, Reason: %s}", info.ShouldContinue, info.Reason))
	if !info.ShouldContinue {
		m.rec.ObserveTermination(metrics.CauseModel)
	}
	return !info.ShouldContinue, info.Reason
}

func (m *Manager) terminate(log LogFunc, cause, reason string) (bool, string) {
	log(LogKeyShouldTerminate, fmt.Sprintf("{ShouldContinue: false, Reason: %s}", reason))
	m.rec.ObserveTermination(cause)
	return true, reason
}

// FilterResults returns the text of the last message, or "" for an empty history.
func (m *Manager) FilterResults(history []core.Message) string {
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].Text
}

// ShouldRequestUserInput always reports false: the run returns to the
// customer only through termination.
func (m *Manager) ShouldRequestUserInput() bool { return false }

// FormatHistory renders the last n messages (all when n <= 0) one per line as
// "sender: text".
func FormatHistory(history []core.Message, n int) string {
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	lines := make([]string, len(history))
	for i, msg := range history {
		lines[i] = msg.Sender + ": " + msg.Text
	}
	return strings.Join(lines, "\n")
}

func orDiscard(log LogFunc) LogFunc {
	if log == nil {
		return func(string, string) {}
	}
	return log
}

const defaultSelectionPrompt = `Choose the participant who speaks next. Only pick from these participants:
{participants}

Conversation so far:
{discussion}`

const defaultTerminationPrompt = `Decide whether the agents should continue without waiting for the customer.

Conversation:
{topic}`
