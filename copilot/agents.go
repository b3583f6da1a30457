package copilot

import (
	"fmt"
	"strings"

	"github.com/hupe1980/bankcopilot/agent"
	"github.com/hupe1980/bankcopilot/banking"
	"github.com/hupe1980/bankcopilot/logging"
	"github.com/hupe1980/bankcopilot/model"
	"github.com/hupe1980/bankcopilot/tool"
)

// AgentType identifies one member of the banking team.
type AgentType int

// Agent types in roster order. The Coordinator comes first and is therefore
// the fallback when selection fails.
const (
	Coordinator AgentType = iota
	CustomerSupport
	Sales
	Transactions
)

var agentNames = [...]string{
	Coordinator:     "Coordinator",
	CustomerSupport: "CustomerSupport",
	Sales:           "Sales",
	Transactions:    "Transactions",
}

var agentDescriptions = [...]string{
	Coordinator:     "Greets the customer and routes the request to the right specialist.",
	CustomerSupport: "Handles complaints, service requests and telebanker call-backs.",
	Sales:           "Presents offers and opens new accounts.",
	Transactions:    "Handles fund transfers and transaction history.",
}

// AgentTypes lists every agent type in roster order.
func AgentTypes() []AgentType {
	return []AgentType{Coordinator, CustomerSupport, Sales, Transactions}
}

// Valid reports whether t names a known agent.
func (t AgentType) Valid() bool { return t >= Coordinator && t <= Transactions }

// String returns the agent name, which is also its message sender.
func (t AgentType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("AgentType(%d)", int(t))
	}
	return agentNames[t]
}

// ParseAgentType maps an agent name (case-insensitive) to its type.
func ParseAgentType(name string) (AgentType, error) {
	for _, t := range AgentTypes() {
		if strings.EqualFold(agentNames[t], strings.TrimSpace(name)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown agent %q", name)
}

// Options configures the agent team.
type Options struct {
	Logger        logging.Logger
	MaxToolRounds int
}

// NewAgent builds a single agent of type t bound to its toolset.
func NewAgent(t AgentType, llm model.Model, svc *banking.Service, optFns ...func(o *Options)) (*agent.ModelAgent, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	tmpl, err := AgentPrompt(t)
	if err != nil {
		return nil, err
	}

	return agent.NewModelAgent(t.String(), llm, func(o *agent.ModelAgentOptions) {
		o.Description = agentDescriptions[t]
		o.Instruction = agent.NewInstructionFromTemplate(tmpl)
		o.Tools = toolsFor(t, svc)
		o.Logger = opts.Logger
		if opts.MaxToolRounds > 0 {
			o.MaxToolRounds = opts.MaxToolRounds
		}
	}), nil
}

// NewTeam builds all four agents in roster order.
func NewTeam(llm model.Model, svc *banking.Service, optFns ...func(o *Options)) ([]*agent.ModelAgent, error) {
	team := make([]*agent.ModelAgent, 0, len(agentNames))
	for _, t := range AgentTypes() {
		a, err := NewAgent(t, llm, svc, optFns...)
		if err != nil {
			return nil, err
		}
		team = append(team, a)
	}
	return team, nil
}

func toolsFor(t AgentType, svc *banking.Service) []tool.Tool {
	switch t {
	case CustomerSupport:
		return banking.CustomerSupportTools(svc)
	case Sales:
		return banking.SalesTools(svc)
	case Transactions:
		return banking.TransactionTools(svc)
	default:
		return banking.CoordinatorTools(svc, CustomerSupport.String(), Sales.String(), Transactions.String())
	}
}
