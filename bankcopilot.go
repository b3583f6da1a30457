// Package bankcopilot assembles the multi-agent banking assistant: four
// specialist agents (Coordinator, CustomerSupport, Sales, Transactions) take
// turns in a model moderated group chat, backed by a banking service and a
// chat history store.
//
// Most applications need a model, a store and New:
//
//	llm := openai.NewModel(nil)
//	store := memory.New()
//	bc, err := bankcopilot.New(llm, store)
//	msgs := bc.Chat.GetChatCompletion(ctx, "Contoso", "Mark", sessionID, "What is my balance?")
//
// The cmd/bankcopilot binary wires the same pieces from configuration and
// serves them over HTTP.
package bankcopilot

import (
	"github.com/hupe1980/bankcopilot/agent"
	"github.com/hupe1980/bankcopilot/banking"
	"github.com/hupe1980/bankcopilot/chat"
	"github.com/hupe1980/bankcopilot/copilot"
	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/groupchat"
	"github.com/hupe1980/bankcopilot/internal/tokens"
	"github.com/hupe1980/bankcopilot/logging"
	"github.com/hupe1980/bankcopilot/metrics"
	"github.com/hupe1980/bankcopilot/model"
)

// Store persists both the chat history and the banking data.
type Store interface {
	core.ChatStore
	banking.Store
}

// Options configures the assistant.
type Options struct {
	// Embedder enables vector search over offer terms. Keyword ranking is used when nil.
	Embedder model.Embedder

	// Group chat tuning. Zero values keep the defaults of 5, 5 and 10.
	MaxIterations      int
	SelectionHistory   int
	TerminationHistory int

	// MaxToolRounds caps tool calling rounds per agent turn.
	MaxToolRounds int

	// Logger defaults to a NoOp logger. A *logging.StructuredLogger gets a
	// component attribute per subsystem.
	Logger  logging.Logger
	Metrics metrics.Recorder
}

// Copilot is the wired assistant.
type Copilot struct {
	Bank         *banking.Service
	Agents       []*agent.ModelAgent
	Orchestrator *groupchat.Orchestrator
	Chat         *chat.Service
}

// New wires the banking service, the agent team, the group chat and the chat
// service on top of llm and store.
func New(llm model.Model, store Store, optFns ...func(o *Options)) (*Copilot, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)
	rec := metrics.OrNoOp(opts.Metrics)

	bank := banking.NewService(store, func(o *banking.Options) {
		o.Embedder = opts.Embedder
		o.Logger = component(logger, "banking")
	})

	team, err := copilot.NewTeam(llm, bank, func(o *copilot.Options) {
		o.Logger = component(logger, "agent")
		o.MaxToolRounds = opts.MaxToolRounds
	})
	if err != nil {
		return nil, err
	}
	agents := make([]groupchat.Agent, len(team))
	for i, a := range team {
		agents[i] = a
	}

	manager, err := groupchat.NewManager(llm, agents, func(o *groupchat.ManagerOptions) {
		if opts.MaxIterations > 0 {
			o.MaxIterations = opts.MaxIterations
		}
		if opts.SelectionHistory > 0 {
			o.SelectionHistory = opts.SelectionHistory
		}
		if opts.TerminationHistory > 0 {
			o.TerminationHistory = opts.TerminationHistory
		}
		o.SelectionPrompt = copilot.SelectionPrompt
		o.TerminationPrompt = copilot.TerminationPrompt
		o.Logger = component(logger, "groupchat")
		o.Metrics = rec
	})
	if err != nil {
		return nil, err
	}
	orchestrator := groupchat.NewOrchestrator(manager, func(o *groupchat.OrchestratorOptions) {
		o.Logger = component(logger, "groupchat")
		o.Metrics = rec
	})

	svc := chat.NewService(store, bank, orchestrator, llm, func(o *chat.Options) {
		o.Logger = logger
		o.SummarizePrompt = copilot.SummarizePrompt
		o.Tokens = tokens.NewCounter()
	})

	return &Copilot{Bank: bank, Agents: team, Orchestrator: orchestrator, Chat: svc}, nil
}

func component(l logging.Logger, name string) logging.Logger {
	if sl, ok := l.(*logging.StructuredLogger); ok {
		return sl.WithComponent(name)
	}
	return l
}
