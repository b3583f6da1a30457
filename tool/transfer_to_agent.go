package tool

import (
	"fmt"

	"github.com/hupe1980/bankcopilot/core"
)

// TransferPrefix prefixes the names of hand-off tools.
const TransferPrefix = "transfer_to_"

// transferToAgentTool requests that a specific agent takes the next turn.
type transferToAgentTool struct {
	agent string
}

// NewTransferToAgentTool constructs a hand-off tool named transfer_to_<agent>.
func NewTransferToAgentTool(agent string) Tool { return &transferToAgentTool{agent: agent} }

func (t *transferToAgentTool) Name() string { return TransferPrefix + t.agent }

func (t *transferToAgentTool) Description() string {
	return fmt.Sprintf("Hand the conversation over to the %s agent when it is better suited to answer.", t.agent)
}

func (t *transferToAgentTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *transferToAgentTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	tc.TransferToAgent(t.agent)
	tc.Logger().Info("tool.transfer", "from", tc.AgentName(), "to", t.agent)
	return fmt.Sprintf("Successfully transferred to %s", t.agent), nil
}
