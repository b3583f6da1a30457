package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/bankcopilot/core"
	"github.com/hupe1980/bankcopilot/logging"
	"github.com/hupe1980/bankcopilot/model"
	"github.com/hupe1980/bankcopilot/tool"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Instruction        Instruction
	Description        string
	ToolTimeout        time.Duration
	MaxToolRounds      int
	MaxHistoryMessages int
	Tools              []tool.Tool
	Logger             logging.Logger
}

// ModelAgent answers one group chat turn by prompting a language model with
// the conversation so far and executing the tool calls it requests.
//
// ModelAgent is safe for concurrent use once all tools are registered.
type ModelAgent struct {
	BaseAgent
	llm                model.Model
	instruction        Instruction
	tools              map[string]tool.Tool
	toolTimeout        time.Duration
	maxToolRounds      int
	maxHistoryMessages int
	logger             logging.Logger
}

// NewModelAgent creates a new model-based agent with sensible defaults.
//
// The agent is initialized with:
//   - a generic instruction naming the agent
//   - 15-second timeout for tool calls
//   - at most 8 tool-call rounds per turn
//   - 20-message conversation history window
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful banking assistant.", name)),
		ToolTimeout:        15 * time.Second,
		MaxToolRounds:      8,
		MaxHistoryMessages: 20,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ModelAgent{
		BaseAgent:          NewBaseAgent(name),
		llm:                llm,
		instruction:        opts.Instruction,
		tools:              make(map[string]tool.Tool, len(opts.Tools)),
		toolTimeout:        opts.ToolTimeout,
		maxToolRounds:      opts.MaxToolRounds,
		maxHistoryMessages: opts.MaxHistoryMessages,
		logger:             logging.OrNoOp(opts.Logger),
	}
	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}
	a.RegisterTools(opts.Tools...)

	return a
}

// RegisterTool adds a tool to the agent's capability set. A tool with the
// same name replaces the previous registration.
func (a *ModelAgent) RegisterTool(t tool.Tool) {
	a.tools[t.Name()] = t
}

// RegisterTools adds multiple tools to the agent's capability set.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// HasTool checks if a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	_, exists := a.tools[name]
	return exists
}

// ListTools returns the names of all registered tools in lexical order.
func (a *ModelAgent) ListTools() []string {
	names := make([]string, 0, len(a.tools))
	for name := range a.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model returns the language model backing the agent.
func (a *ModelAgent) Model() model.Model { return a.llm }

// MaxHistoryMessages returns the size of the conversation window sent to the model.
func (a *ModelAgent) MaxHistoryMessages() int { return a.maxHistoryMessages }

// Invoke runs one turn of the agent over history and returns the agent's reply.
//
// The identity in ctx (see core.WithIdentity) addresses the reply and is made
// available to tools. Tool calls are executed in rounds until the model
// answers with text; once MaxToolRounds is reached the model is asked one
// last time without tools.
func (a *ModelAgent) Invoke(ctx context.Context, history []core.Message) (core.Message, error) {
	start := time.Now()

	instructions, err := a.instruction.Resolve(ctx)
	if err != nil {
		return core.Message{}, fmt.Errorf("resolve instruction for %s: %w", a.Name(), err)
	}

	req := model.Request{
		Instructions: instructions,
		Contents:     a.buildContents(history),
		Tools:        tool.Definitions(a.toolList()),
	}

	a.logger.Debug("agent.invoke.start", "agent", a.Name(), "history", len(history), "tools", len(req.Tools))

	var (
		tokens int
		text   string
	)
	for round := 0; ; round++ {
		if round >= a.maxToolRounds {
			a.logger.Warn("agent.tool_rounds.exhausted", "agent", a.Name(), "rounds", round)
			req.Tools = nil
		}

		callStart := time.Now()
		resp, err := model.Collect(ctx, a.llm, req)
		a.logLLMCall(resp, time.Since(callStart), err)
		if err != nil {
			a.logger.Error("agent.invoke.error", "agent", a.Name(), "round", round, "error", err.Error())
			return core.Message{}, fmt.Errorf("agent %s: %w", a.Name(), err)
		}
		if resp.Usage != nil {
			tokens += resp.Usage.TotalTokens
		}

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 || len(req.Tools) == 0 {
			text = resp.Content.Text()
			break
		}

		req.Contents = append(req.Contents,
			core.Content{Role: core.RoleAssistant, Parts: resp.Content.Parts},
			a.executeCalls(ctx, calls),
		)
	}

	id, _ := core.IdentityFrom(ctx)
	msg := core.NewMessage(id.TenantID, id.UserID, id.SessionID, a.Name(), core.SenderRoleAssistant, text)
	msg.TokensUsed = tokens

	a.logger.Info("agent.invoke.complete",
		"agent", a.Name(),
		"tokens", tokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return msg, nil
}

func (a *ModelAgent) logLLMCall(resp model.Response, dur time.Duration, err error) {
	sl, ok := a.logger.(*logging.StructuredLogger)
	if !ok {
		return
	}
	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	sl.LogLLMCall(a.llm.Info().Name, tokens, dur, err)
}

// buildContents converts the trailing history window into model contents.
// The agent's own messages become assistant turns, every other participant is
// presented as a user turn prefixed with its name. Error messages are skipped.
func (a *ModelAgent) buildContents(history []core.Message) []core.Content {
	if n := a.maxHistoryMessages; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}

	contents := make([]core.Content, 0, len(history))
	for _, m := range history {
		switch {
		case m.SenderRole == core.SenderError || strings.TrimSpace(m.Text) == "":
			continue
		case strings.EqualFold(m.Sender, a.Name()):
			contents = append(contents, core.NewTextContent(core.RoleAssistant, m.Text))
		default:
			contents = append(contents, core.NewTextContent(core.RoleUser, m.Sender+": "+m.Text))
		}
	}
	return contents
}

func (a *ModelAgent) toolList() []tool.Tool {
	names := a.ListTools()
	tools := make([]tool.Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, a.tools[name])
	}
	return tools
}
