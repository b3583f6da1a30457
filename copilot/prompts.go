package copilot

import (
	"embed"
	"fmt"
)

//go:embed prompts/*.prompty
var promptFS embed.FS

func mustPrompt(name string) string {
	raw, err := promptFS.ReadFile("prompts/" + name + ".prompty")
	if err != nil {
		panic(fmt.Sprintf("copilot: missing prompt %s: %v", name, err))
	}
	return string(raw)
}

// Group chat prompt templates. Selection uses {participants} and {discussion},
// termination uses {topic} and the name summary uses {text}.
var (
	SelectionPrompt   = mustPrompt("SelectionStrategy")
	TerminationPrompt = mustPrompt("TerminationStrategy")
	SummarizePrompt   = mustPrompt("SummarizeName")
)

var commonRules = mustPrompt("CommonAgentRules")

// AgentPrompt returns the raw instruction template of an agent: its own
// prompt followed by the rules shared by all agents.
func AgentPrompt(t AgentType) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("unknown agent type %d", int(t))
	}
	return mustPrompt(t.String()) + commonRules, nil
}
