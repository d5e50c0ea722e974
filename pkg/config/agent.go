package config

import (
	"encoding/json"
	"time"

	"github.com/codeready-toolchain/agentrelay/pkg/payload"
)

// AgentConfig contains agent run settings.
type AgentConfig struct {
	// RunTimeout caps one streamed agent:run call, including reading the
	// whole response. Generative responses can take minutes.
	RunTimeout time.Duration `yaml:"run_timeout"`

	// ToolName is the agent capability whose tool results carry SQL to run
	// on the caller's behalf.
	ToolName string `yaml:"tool_name"`

	// ModelFile is the request-body template file inside the config dir.
	ModelFile string `yaml:"model_file"`
}

// DefaultAgentConfig returns the built-in agent defaults.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		RunTimeout: 300 * time.Second,
		ToolName:   "sql_exec",
		ModelFile:  "agent_model.yaml",
	}
}

// AgentModel is the agent request-body template (models, tools,
// tool_resources, ...). It is never mutated after construction.
type AgentModel struct {
	template map[string]any
}

// NewAgentModel copies template into a new immutable model.
func NewAgentModel(template map[string]any) *AgentModel {
	if template == nil {
		template = map[string]any{}
	}
	return &AgentModel{template: payload.Clone(template).(map[string]any)}
}

// RequestBody returns a fresh deep copy of the template with messages
// attached. Callers may mutate the result freely.
func (m *AgentModel) RequestBody(messages []json.RawMessage) map[string]any {
	body := payload.Clone(m.template).(map[string]any)
	if messages == nil {
		messages = []json.RawMessage{}
	}
	body["messages"] = messages
	return body
}

// Template returns a deep copy of the template.
func (m *AgentModel) Template() map[string]any {
	return payload.Clone(m.template).(map[string]any)
}
