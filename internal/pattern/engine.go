package pattern

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// RetryBackoff is the default exponential backoff schedule applied
// between node retries: two retries, 10s then 30s, before the run is
// paused for an operator.
var RetryBackoff = []time.Duration{10 * time.Second, 30 * time.Second}

// Engine dispatches a phase to the NodeExecutor registered for its
// pattern type and drives the uniform execute_node contract around it.
type Engine struct {
	nodes map[model.PatternType]NodeExecutor
}

// New builds an Engine with all eleven pattern types registered.
func New() *Engine {
	return &Engine{
		nodes: map[model.PatternType]NodeExecutor{
			model.PatternSolo:               soloNode{},
			model.PatternSequential:         sequentialNode{},
			model.PatternParallel:           parallelNode{},
			model.PatternLoop:               loopNode{},
			model.PatternHierarchical:       hierarchicalNode{},
			model.PatternNetwork:            networkNode{},
			model.PatternAggregator:         aggregatorNode{},
			model.PatternRouter:             routerNode{},
			model.PatternHumanInTheLoop:     humanInTheLoopNode{},
			model.PatternAdversarialPair:    adversarialPairNode{},
			model.PatternAdversarialCascade: adversarialCascadeNode{},
		},
	}
}

// ExecutePhase runs nc.Phase to a terminal state: spawn_participants;
// wait_for_terminal_state (delegated to the registered NodeExecutor);
// evaluate_gate; produce_phase_summary; the caller performs the actual
// transition using the returned PhaseRunState.
//
// A node that fails with a retryable error (llm_unavailable,
// providers_exhausted) is retried per RetryBackoff; once retries are
// exhausted the run is paused with NeedsHuman set and ExecutePhase
// returns the last error instead of a terminal PhaseRunState.
func (e *Engine) ExecutePhase(ctx context.Context, nc NodeContext) (model.PhaseRunState, error) {
	node, ok := e.nodes[nc.Phase.PatternType]
	if !ok {
		return "", corerr.New(component, "ExecutePhase", corerr.ErrValidation,
			fmt.Sprintf("no node executor registered for pattern type %q", nc.Phase.PatternType), nil)
	}

	if err := nc.Run.SetPhaseState(nc.Phase.ID, func(ps *model.PhaseState) error {
		ps.State = model.PhaseRunning
		ps.StartedAt = time.Now()
		return nil
	}); err != nil {
		return "", err
	}

	for _, id := range nc.participantIDs() {
		nc.Bus.Register(id)
	}

	timeout := nc.Phase.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	var transcript []model.Message
	var runErr error
	for attempt := 0; ; attempt++ {
		nodeCtx, cancel := context.WithTimeout(ctx, timeout)
		transcript, runErr = node.Execute(nodeCtx, nc)
		timedOut := nodeCtx.Err() != nil
		cancel()

		if runErr == nil {
			if timedOut && ctx.Err() == nil {
				return e.finish(nc, model.PhaseTimedOut, transcript)
			}
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryableNodeError(runErr) || attempt >= len(RetryBackoff) {
			return e.pauseForHuman(nc, attempt, runErr)
		}

		select {
		case <-time.After(RetryBackoff[attempt]):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	state := model.PhaseDone
	if nc.Phase.Gate != model.GateAlways {
		if evaluateGate(nc.Phase, nc.Agents, transcript) {
			state = model.PhaseApproved
		} else {
			state = model.PhaseVetoed
		}
	}
	return e.finish(nc, state, transcript)
}

func (e *Engine) finish(nc NodeContext, state model.PhaseRunState, transcript []model.Message) (model.PhaseRunState, error) {
	summary, sumErr := summarizePhase(context.Background(), nc.Gateway, transcript)
	if sumErr != nil {
		summary = ""
	}

	err := nc.Run.SetPhaseState(nc.Phase.ID, func(ps *model.PhaseState) error {
		ps.State = state
		ps.CompletedAt = time.Now()
		if summary != "" {
			ps.Summary = summary
		}
		ps.Verdict = deriveVerdict(state, transcript)
		return nil
	})
	if err != nil {
		return "", err
	}

	if summary != "" {
		_ = nc.Bus.Publish(model.Message{
			ID:        model.NewID(),
			RunID:     nc.Run.RunID,
			PhaseID:   nc.Phase.ID,
			FromAgent: "pattern-engine",
			Kind:      model.KindSystem,
			Content:   summary,
			Metadata:  map[string]string{"type": "phase_summary"},
			Timestamp: time.Now(),
		})
	}
	return state, nil
}

func (e *Engine) pauseForHuman(nc NodeContext, attempt int, cause error) (model.PhaseRunState, error) {
	msg := fmt.Sprintf("phase %s failed after %d attempt(s): %v", nc.Phase.ID, attempt+1, cause)
	_ = nc.Run.SetPhaseState(nc.Phase.ID, func(ps *model.PhaseState) error {
		ps.LastError = msg
		return nil
	})
	if nc.Run.StatusNow() == model.RunRunning {
		_ = nc.Run.TransitionStatus(model.RunPaused)
	}
	nc.Run.SetNeedsHuman(true)
	nc.Run.SetLastError(msg)
	return "", cause
}

func isRetryableNodeError(err error) bool {
	return errors.Is(err, corerr.ErrLLMUnavailable) || errors.Is(err, corerr.ErrProvidersExhausted)
}

// deriveVerdict builds the compliance record attached to a terminated
// phase. Returns nil unless the phase was vetoed or a transcript message
// carries the escalation flag.
func deriveVerdict(state model.PhaseRunState, transcript []model.Message) *model.Verdict {
	escalation := false
	var violations []string
	for _, msg := range transcript {
		if msg.Metadata["escalation_flag"] == "true" {
			escalation = true
		}
		if msg.Kind == model.KindVeto {
			violations = append(violations, msg.FromAgent+": "+msg.Content)
		}
	}
	if state != model.PhaseVetoed && !escalation {
		return nil
	}
	return &model.Verdict{
		Verdict:        string(state),
		Violations:     violations,
		EscalationFlag: escalation,
		RecordedAt:     time.Now(),
	}
}
