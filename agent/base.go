package agent

// BaseAgent bundles the identity shared by agent implementations. Embed it in
// concrete agents and supply an Invoke method.
type BaseAgent struct {
	name        string
	description string
}

// NewBaseAgent constructs a BaseAgent with a generated description.
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{name: name, description: "Agent " + name}
}

// Name returns the agent name used as message sender and in selection prompts.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a short description of the agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }
