package groupchat

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/logging"
	"github.com/hupe1980/bankcopilot/metrics"
)

// Result is the outcome of one group chat run.
type Result struct {
	// Messages are the agent messages in the order they were produced. The
	// user prompt is never included.
	Messages []core.Message
	// Logs holds the decision trail leading to each message, aligned with Messages.
	Logs [][]core.LogProperty
	// Log is the complete decision trail of the run.
	Log []core.LogProperty
	// ActiveAgent is the agent that spoke last.
	ActiveAgent string
	// Iterations is the number of agent turns taken.
	Iterations int
}

// Text returns the text of the last agent message.
func (r Result) Text() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1].Text
}

// TokensUsed sums the tokens reported by all agent messages.
func (r Result) TokensUsed() int {
	total := 0
	for _, m := range r.Messages {
		total += m.TokensUsed
	}
	return total
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Logger  logging.Logger
	Metrics metrics.Recorder
	Clock   func() time.Time
}

// Orchestrator drives a Manager over its roster for one user prompt at a time.
type Orchestrator struct {
	manager *Manager
	logger  logging.Logger
	rec     metrics.Recorder
	now     func() time.Time
}

// NewOrchestrator creates an orchestrator around manager.
func NewOrchestrator(manager *Manager, optFns ...func(o *OrchestratorOptions)) *Orchestrator {
	opts := OrchestratorOptions{Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Orchestrator{
		manager: manager,
		logger:  logging.OrNoOp(opts.Logger),
		rec:     metrics.OrNoOp(opts.Metrics),
		now:     opts.Clock,
	}
}

// Manager returns the underlying manager.
func (o *Orchestrator) Manager() *Manager { return o.manager }

// Run appends prompt to history and lets the agents talk until the manager
// terminates the run. Agent failures and context cancellation abort the run.
func (o *Orchestrator) Run(ctx context.Context, history []core.Message, prompt core.Message) (Result, error) {
	if o.manager == nil || len(o.manager.agents) == 0 {
		return Result{}, ErrNoAgents
	}
	if !core.HasHandOff(ctx) {
		ctx, _ = core.WithHandOff(ctx)
	}

	start := o.now()
	limiter := core.NewTurnLimiter(o.manager.MaxIterations())

	chat := make([]core.Message, 0, len(history)+o.manager.MaxIterations()+1)
	chat = append(chat, history...)
	chat = append(chat, prompt)

	var (
		res  Result
		turn []core.LogProperty
	)
	log := func(key, value string) {
		p := core.LogProperty{Key: key, Value: value, TimeStamp: o.now().UTC()}
		turn = append(turn, p)
		res.Log = append(res.Log, p)
	}

	finish := func(err error) (Result, error) {
		res.Iterations = limiter.Count()
		dur := o.now().Sub(start)
		o.rec.ObserveCompletion(res.Iterations, dur, err)
		if err != nil {
			o.logger.Error("groupchat.run.error", "iterations", res.Iterations, "last_agent", res.ActiveAgent, "duration_ms", dur.Milliseconds(), "error", err.Error())
			return res, err
		}
		o.logger.Info("groupchat.run.complete", "iterations", res.Iterations, "last_agent", res.ActiveAgent, "duration_ms", dur.Milliseconds())
		return res, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		if limiter.Exhausted() {
			return finish(nil)
		}
		next, err := o.manager.SelectNextAgent(ctx, chat, log)
		if err != nil {
			return finish(err)
		}
		if err := limiter.Increment(); err != nil {
			return finish(nil)
		}

		turnStart := o.now()
		msg, err := next.Invoke(ctx, chat)
		o.rec.ObserveTurn(next.Name(), msg.TokensUsed, o.now().Sub(turnStart), err)
		if err != nil {
			return finish(fmt.Errorf("turn %d (%s): %w", limiter.Count(), next.Name(), err))
		}

		o.logger.Debug("groupchat.turn", "agent", next.Name(), "turn", limiter.Count(), "remaining", limiter.Remaining(), "tokens", msg.TokensUsed)

		chat = append(chat, msg)
		res.Messages = append(res.Messages, msg)
		res.ActiveAgent = next.Name()

		stop, _ := o.manager.ShouldTerminate(ctx, chat, limiter.Count(), log)
		res.Logs = append(res.Logs, turn)
		turn = nil
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		if stop || o.manager.ShouldRequestUserInput() {
			return finish(nil)
		}
	}
}
