package model

import (
	"fmt"
	"time"
)

// PatternType enumerates the node execution strategies a workflow phase
// can run under.
type PatternType string

const (
	PatternSolo               PatternType = "solo"
	PatternSequential         PatternType = "sequential"
	PatternParallel           PatternType = "parallel"
	PatternLoop               PatternType = "loop"
	PatternHierarchical       PatternType = "hierarchical"
	PatternNetwork            PatternType = "network"
	PatternAggregator         PatternType = "aggregator"
	PatternRouter             PatternType = "router"
	PatternHumanInTheLoop     PatternType = "human-in-the-loop"
	PatternAdversarialPair    PatternType = "adversarial-pair"
	PatternAdversarialCascade PatternType = "adversarial-cascade"
)

// GateType enumerates phase termination rules.
type GateType string

const (
	GateAlways      GateType = "always"
	GateAllApproved GateType = "all_approved"
	GateNoVeto      GateType = "no_veto"
	GateCheckpoint  GateType = "checkpoint"
)

// Phase is one step in a WorkflowDef's graph.
type Phase struct {
	ID            string        `yaml:"id" json:"id"`
	PatternType   PatternType   `yaml:"pattern_type" json:"pattern_type"`
	Participants  []string      `yaml:"participants" json:"participants"`
	Gate          GateType      `yaml:"gate" json:"gate"`
	MaxIterations int           `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Orchestrator  string        `yaml:"orchestrator,omitempty" json:"orchestrator,omitempty"`
}

func (p *Phase) SetDefaults() {
	if p.Gate == "" {
		p.Gate = GateAlways
	}
	if p.Timeout == 0 {
		p.Timeout = 30 * time.Minute
	}
}

func (p *Phase) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("phase: id is required")
	}
	if len(p.Participants) == 0 {
		return fmt.Errorf("phase %s: at least one participant is required", p.ID)
	}
	switch p.PatternType {
	case PatternSolo, PatternSequential, PatternParallel, PatternLoop,
		PatternHierarchical, PatternNetwork, PatternAggregator, PatternRouter,
		PatternHumanInTheLoop, PatternAdversarialPair, PatternAdversarialCascade:
	default:
		return fmt.Errorf("phase %s: invalid pattern_type %q", p.ID, p.PatternType)
	}
	switch p.Gate {
	case GateAlways, GateAllApproved, GateNoVeto, GateCheckpoint:
	default:
		return fmt.Errorf("phase %s: invalid gate %q", p.ID, p.Gate)
	}
	return nil
}

// WorkflowDef is a directed graph of Phases. Edges are implicit
// phase-to-phase transitions in declaration order, except where a
// "router" pattern phase redirects via a routed_to metadata message.
type WorkflowDef struct {
	ID     string  `yaml:"id" json:"id"`
	Name   string  `yaml:"name" json:"name"`
	Phases []Phase `yaml:"phases" json:"phases"`
}

func (w *WorkflowDef) SetDefaults() {
	for i := range w.Phases {
		w.Phases[i].SetDefaults()
	}
}

func (w *WorkflowDef) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("workflow: id is required")
	}
	if len(w.Phases) == 0 {
		return fmt.Errorf("workflow %s: at least one phase is required", w.ID)
	}
	seen := make(map[string]bool, len(w.Phases))
	for _, p := range w.Phases {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("workflow %s: %w", w.ID, err)
		}
		if seen[p.ID] {
			return fmt.Errorf("workflow %s: duplicate phase id %q", w.ID, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// PhaseByID finds a phase definition, or ok=false.
func (w *WorkflowDef) PhaseByID(id string) (Phase, bool) {
	for _, p := range w.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return Phase{}, false
}

// FirstPhase returns the implicit start node.
func (w *WorkflowDef) FirstPhase() Phase {
	return w.Phases[0]
}

// NextPhase returns the phase declared immediately after id, or
// ok=false if id is the last phase.
func (w *WorkflowDef) NextPhase(id string) (Phase, bool) {
	for i, p := range w.Phases {
		if p.ID == id && i+1 < len(w.Phases) {
			return w.Phases[i+1], true
		}
	}
	return Phase{}, false
}
