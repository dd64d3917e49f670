package supervisor

import (
	"context"

	"github.com/macaron-software/agentcore/internal/model"
	"github.com/macaron-software/agentcore/internal/pattern"
)

// launch starts (or restarts) run's drive loop in its own goroutine: a
// background goroutine owns the run's progress while
// GetMission/ListMissions give callers a safe, lock-guarded read of the
// same state.
func (s *Supervisor) launch(run *model.PatternRun, wf *model.WorkflowDef) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	ms, ok := s.missions[run.RunID]
	if !ok {
		ms = &missionState{run: run, wf: wf}
		s.missions[run.RunID] = ms
	}
	ms.cancel = cancel
	ms.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.drive(ctx, run, wf)
	}()
}

// drive walks run phase by phase until it reaches a terminal status, is
// cancelled, or is paused (operator pause or needs-human). A phase's
// gate outcome (vetoed/timed_out) fails the run; approved/done advances
// to the next declared phase, except for a router phase, whose
// classifier picks the next phase by name instead of declaration order.
func (s *Supervisor) drive(ctx context.Context, run *model.PatternRun, wf *model.WorkflowDef) {
	phaseID := run.CurrentPhase

	for {
		if ctx.Err() != nil {
			return
		}
		if run.StatusNow() != model.RunRunning {
			return
		}

		phase, ok := wf.PhaseByID(phaseID)
		if !ok {
			run.SetLastError("phase " + phaseID + " not found in workflow " + wf.ID)
			_ = run.TransitionStatus(model.RunFailed)
			_ = s.store.SaveRun(run)
			return
		}
		run.SetCurrentPhase(phaseID)
		_ = s.store.SaveRun(run)

		nc := pattern.NodeContext{
			Run:           run,
			Phase:         phase,
			Agents:        s.agents,
			Bus:           s.bus,
			Memory:        s.memory,
			Tools:         s.tools,
			Gateway:       s.gateway,
			Executor:      s.executor,
			WorkspacePath: run.WorkspacePath,
			ProjectRef:    run.ProjectRef,
			Brief:         run.Brief,
		}

		state, err := s.engine.ExecutePhase(ctx, nc)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// ExecutePhase already paused the run with NeedsHuman set
			// and recorded LastError; nothing left to drive until an
			// operator calls ResumeMission or SubmitValidation.
			_ = s.store.SaveRun(run)
			return
		}

		if ps, ok := run.PhaseStateOf(phase.ID); ok && ps.Verdict != nil {
			if err := s.store.SaveVerdict(run.RunID, phase.ID, *ps.Verdict); err != nil {
				s.logger.Warn("failed to persist verdict", "run_id", run.RunID, "phase_id", phase.ID, "error", err)
			}
		}
		_ = s.store.SaveRun(run)

		if state == model.PhaseVetoed || state == model.PhaseTimedOut {
			_ = run.TransitionStatus(model.RunFailed)
			_ = s.store.SaveRun(run)
			return
		}

		next, ok := s.nextPhase(run, wf, phase)
		if !ok {
			_ = run.TransitionStatus(model.RunCompleted)
			_ = s.store.SaveRun(run)
			s.tools.ReleaseRun(run.RunID)
			s.memory.ReleaseRun(run.RunID)
			return
		}
		phaseID = next.ID
	}
}

// nextPhase resolves which phase follows a completed one: a router
// phase's classifier names the target explicitly (recovered from the
// durable transcript, since ExecutePhase doesn't return it directly);
// every other pattern type falls through to the workflow's declared
// order.
func (s *Supervisor) nextPhase(run *model.PatternRun, wf *model.WorkflowDef, completed model.Phase) (model.Phase, bool) {
	if completed.PatternType == model.PatternRouter {
		transcript, err := s.store.ListMessages(run.RunID, completed.ID)
		if err == nil {
			if targetID, ok := pattern.RoutedTo(transcript); ok {
				return wf.PhaseByID(targetID)
			}
		}
	}
	return wf.NextPhase(completed.ID)
}
