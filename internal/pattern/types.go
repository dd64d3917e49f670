// Package pattern implements the Pattern Engine (C6): the uniform
// execute_node(phase) contract — spawn participants, wait for the
// node's terminal state, evaluate the phase's gate, summarize, and
// hand back the verdict the Mission Supervisor (C7) uses to transition
// the run. Eleven pattern types share this contract; each supplies its
// own spawn/wait strategy as a NodeExecutor.
package pattern

import (
	"context"
	"sort"

	"github.com/macaron-software/agentcore/internal/bus"
	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/executor"
	"github.com/macaron-software/agentcore/internal/gateway"
	"github.com/macaron-software/agentcore/internal/memory"
	"github.com/macaron-software/agentcore/internal/model"
	"github.com/macaron-software/agentcore/internal/toolregistry"
)

const component = "pattern"

// NodeContext gives a node executor everything it needs to run one
// phase: the run it belongs to, the phase definition, the agent
// roster, and the shared C1-C5 services.
type NodeContext struct {
	Run           *model.PatternRun
	Phase         model.Phase
	Agents        map[string]*model.AgentDef
	Bus           *bus.Bus
	Memory        *memory.Store
	Tools         *toolregistry.Registry
	Gateway       *gateway.Gateway
	Executor      *executor.Executor
	WorkspacePath string
	ProjectRef    string

	// Brief seeds the first prompt of the phase. Callers typically pass
	// either the mission brief (phase one) or the prior phase's summary.
	Brief string
}

// NodeExecutor runs one phase's participants (spawn_participants;
// wait_for_terminal_state) and returns the ordered, deduplicated
// transcript of messages the phase produced. Gate evaluation, phase
// summarization, and the transition to the next phase are the
// Engine's job, not the node's.
type NodeExecutor interface {
	Execute(ctx context.Context, nc NodeContext) ([]model.Message, error)
}

func (nc NodeContext) agent(id string) (*model.AgentDef, error) {
	a, ok := nc.Agents[id]
	if !ok {
		return nil, corerr.New(component, "agent", corerr.ErrValidation, "phase "+nc.Phase.ID+" references unknown agent "+id, nil)
	}
	return a, nil
}

// runParticipant runs one agent through the reason-act loop, mapping
// an exhausted provider chain to ErrLLMUnavailable so the Engine's
// retry policy recognizes it as a retryable node failure.
func (nc NodeContext) runParticipant(ctx context.Context, agent *model.AgentDef, prompt string) error {
	pc := executor.PhaseContext{
		RunID:         nc.Run.RunID,
		PhaseID:       nc.Phase.ID,
		WorkspacePath: nc.WorkspacePath,
		ProjectRef:    nc.ProjectRef,
		Bus:           nc.Bus,
		Memory:        nc.Memory,
		Tools:         nc.Tools,
		Gateway:       nc.Gateway,
		OnUsage: func(in, out int64, cost float64) {
			_ = nc.Run.AddUsage(in, out, cost)
		},
	}
	reason, err := nc.Executor.Run(ctx, agent, pc, prompt)
	if err != nil {
		return corerr.New(component, "runParticipant", corerr.ErrInternal, "agent "+agent.ID+" run failed", err)
	}
	if reason == executor.ExitLLMUnavailable {
		return corerr.New(component, "runParticipant", corerr.ErrLLMUnavailable, "agent "+agent.ID+" has no available provider", nil)
	}
	return nil
}

// participantIDs returns every mailbox this phase's messages can land
// in: its participants plus, when set, the distinguished orchestrator
// (lead, judge, or classifier depending on pattern type).
func (nc NodeContext) participantIDs() []string {
	ids := append([]string{}, nc.Phase.Participants...)
	if nc.Phase.Orchestrator != "" {
		ids = append(ids, nc.Phase.Orchestrator)
	}
	return ids
}

// drainAll pulls every pending message out of this phase's mailboxes,
// deduplicated by ID (a broadcast lands a copy in each mailbox) and
// ordered by publish time. token_delta stream messages are drained but
// left out of the returned transcript.
func (nc NodeContext) drainAll() []model.Message {
	seen := make(map[string]bool)
	var out []model.Message
	for _, id := range nc.participantIDs() {
		for _, msg := range nc.Bus.Drain(id) {
			if seen[msg.ID] || msg.Metadata["type"] == "token_delta" {
				continue
			}
			seen[msg.ID] = true
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// lastMessageFrom returns the most recent message in round published by
// fromAgent, if any.
func lastMessageFrom(round []model.Message, fromAgent string) (model.Message, bool) {
	for i := len(round) - 1; i >= 0; i-- {
		if round[i].FromAgent == fromAgent {
			return round[i], true
		}
	}
	return model.Message{}, false
}
