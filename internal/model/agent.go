package model

import "fmt"

// CapabilityGrade labels an agent's decision weight.
type CapabilityGrade string

const (
	CapabilityOrganizer CapabilityGrade = "organizer"
	CapabilityExecutor  CapabilityGrade = "executor"
)

// VetoClass controls how much weight an agent's veto carries.
type VetoClass string

const (
	VetoAbsolute VetoClass = "absolute"
	VetoStrong   VetoClass = "strong"
	VetoAdvisory VetoClass = "advisory"
	VetoNone     VetoClass = "none"
)

// AgentDef is the declarative description of one worker. Immutable once
// referenced by a live run — callers must treat a value read from the
// registry as read-only and re-fetch rather than mutate.
type AgentDef struct {
	ID              string          `yaml:"id" json:"id"`
	Name            string          `yaml:"name" json:"name"`
	Role            string          `yaml:"role" json:"role"`
	SystemPrompt    string          `yaml:"system_prompt" json:"system_prompt"`
	Provider        string          `yaml:"provider" json:"provider"`
	Model           string          `yaml:"model" json:"model"`
	Temperature     float64         `yaml:"temperature" json:"temperature"`
	MaxTokens       int             `yaml:"max_tokens" json:"max_tokens"`
	Tools           []string        `yaml:"tools" json:"tools"`
	CapabilityGrade CapabilityGrade `yaml:"capability_grade" json:"capability_grade"`
	VetoClass       VetoClass       `yaml:"veto_class" json:"veto_class"`
	Skills          []string        `yaml:"skills,omitempty" json:"skills,omitempty"`

	// CanWriteProjectMemory gates project-scope memory writes.
	CanWriteProjectMemory bool `yaml:"can_write_project_memory,omitempty" json:"can_write_project_memory,omitempty"`
}

// SetDefaults fills in zero-value fields.
func (a *AgentDef) SetDefaults() {
	if a.Temperature == 0 {
		a.Temperature = 0.7
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = 4096
	}
	if a.CapabilityGrade == "" {
		a.CapabilityGrade = CapabilityExecutor
	}
	if a.VetoClass == "" {
		a.VetoClass = VetoNone
	}
}

// Validate follows the usual SetDefaults-then-Validate two-phase
// pattern.
func (a *AgentDef) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("agent: id is required")
	}
	if a.Provider == "" {
		return fmt.Errorf("agent %s: provider is required", a.ID)
	}
	if a.Model == "" {
		return fmt.Errorf("agent %s: model is required", a.ID)
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return fmt.Errorf("agent %s: temperature must be in [0,2]", a.ID)
	}
	switch a.CapabilityGrade {
	case CapabilityOrganizer, CapabilityExecutor:
	default:
		return fmt.Errorf("agent %s: invalid capability_grade %q", a.ID, a.CapabilityGrade)
	}
	switch a.VetoClass {
	case VetoAbsolute, VetoStrong, VetoAdvisory, VetoNone:
	default:
		return fmt.Errorf("agent %s: invalid veto_class %q", a.ID, a.VetoClass)
	}
	return nil
}

// HasTool reports whether the agent may invoke the named tool.
func (a *AgentDef) HasTool(toolID string) bool {
	for _, t := range a.Tools {
		if t == toolID {
			return true
		}
	}
	return false
}
