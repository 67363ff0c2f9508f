package domain

// ActionSpec describes an action a role exposes, in a shape that maps onto
// LLM tool definitions and MCP tools.
type ActionSpec struct {
	Action      Action         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`

	// Operator actions can be invoked explicitly by the transport but are never
	// offered to intent detection.
	Operator bool `json:"operator,omitempty" yaml:"operator,omitempty" mapstructure:"operator"`
}

// UserFacing filters out operator-only actions.
func UserFacing(specs []ActionSpec) []ActionSpec {
	out := make([]ActionSpec, 0, len(specs))
	for _, s := range specs {
		if !s.Operator {
			out = append(out, s)
		}
	}
	return out
}

// ToolCall is an explicit action invocation delivered by the transport or an LLM.
type ToolCall struct {
	ID     string         `json:"id" mapstructure:"id"`
	Action Action         `json:"name" mapstructure:"name"`
	Args   map[string]any `json:"args,omitempty" mapstructure:"args"`
}

// Intent converts the call into the intent the orchestrator dispatches.
func (c ToolCall) Intent() Intent {
	return Intent{Action: c.Action, Args: c.Args}
}
