package supervisor

import (
	"context"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// ErrMissionNotFound is returned by any lookup against an unknown run ID.
var ErrMissionNotFound = corerr.New(component, "GetMission", corerr.ErrNotFound, "mission not found", nil)

// ErrWorkflowNotFound is returned when a mission names a workflow the
// supervisor's catalog doesn't carry.
var ErrWorkflowNotFound = corerr.New(component, "StartMission", corerr.ErrValidation, "workflow not found", nil)

// StartMission creates a PatternRun for workflowID and launches its
// drive loop. The returned run is a snapshot; use GetMission for later
// status reads.
func (s *Supervisor) StartMission(ctx context.Context, workflowID, brief, workspacePath, projectRef string) (model.PatternRun, error) {
	wf, ok := s.workflows[workflowID]
	if !ok {
		return model.PatternRun{}, ErrWorkflowNotFound
	}
	if err := wf.Validate(); err != nil {
		return model.PatternRun{}, corerr.New(component, "StartMission", corerr.ErrValidation, "workflow "+workflowID+" invalid", err)
	}

	run := model.NewPatternRun(model.NewID(), wf, brief, workspacePath, projectRef)
	if err := run.TransitionStatus(model.RunRunning); err != nil {
		return model.PatternRun{}, corerr.New(component, "StartMission", corerr.ErrInternal, "transition new run to running", err)
	}
	if err := s.store.SaveRun(run); err != nil {
		return model.PatternRun{}, corerr.New(component, "StartMission", corerr.ErrStorageUnavailable, "persist new run", err)
	}

	s.mu.Lock()
	s.missions[run.RunID] = &missionState{run: run, wf: wf}
	s.mu.Unlock()

	s.launch(run, wf)
	return run.Snapshot(), nil
}

// CancelMission transitions runID to cancelled and stops its drive
// loop. A terminal run rejects the transition, surfaced as-is.
func (s *Supervisor) CancelMission(runID string) (model.PatternRun, error) {
	ms, ok := s.lookup(runID)
	if !ok {
		return model.PatternRun{}, ErrMissionNotFound
	}
	if err := ms.run.TransitionStatus(model.RunCancelled); err != nil {
		return model.PatternRun{}, corerr.New(component, "CancelMission", corerr.ErrValidation, "cancel "+runID, err)
	}
	s.mu.Lock()
	if ms.cancel != nil {
		ms.cancel()
	}
	s.mu.Unlock()

	if err := s.store.SaveRun(ms.run); err != nil {
		return model.PatternRun{}, corerr.New(component, "CancelMission", corerr.ErrStorageUnavailable, "persist cancellation", err)
	}
	s.tools.ReleaseRun(runID)
	return ms.run.Snapshot(), nil
}

// PauseMission pauses a running mission at the operator's request. The
// drive loop observes the pause on its next phase boundary and stops
// advancing until ResumeMission is called.
func (s *Supervisor) PauseMission(runID string) (model.PatternRun, error) {
	ms, ok := s.lookup(runID)
	if !ok {
		return model.PatternRun{}, ErrMissionNotFound
	}
	if err := ms.run.TransitionStatus(model.RunPaused); err != nil {
		return model.PatternRun{}, corerr.New(component, "PauseMission", corerr.ErrValidation, "pause "+runID, err)
	}
	ms.run.SetPausedByUser(true)
	if err := s.store.SaveRun(ms.run); err != nil {
		return model.PatternRun{}, corerr.New(component, "PauseMission", corerr.ErrStorageUnavailable, "persist pause", err)
	}
	return ms.run.Snapshot(), nil
}

// ResumeMission restarts a paused mission's drive loop from its current
// phase. Both an operator pause and an engine-initiated needs-human
// pause are lifted the same way: the caller (operator, or
// SubmitValidation on their behalf) is asserting the blocking condition
// is resolved.
func (s *Supervisor) ResumeMission(runID string) (model.PatternRun, error) {
	ms, ok := s.lookup(runID)
	if !ok {
		return model.PatternRun{}, ErrMissionNotFound
	}
	if ms.run.StatusNow() != model.RunPaused {
		return model.PatternRun{}, corerr.New(component, "ResumeMission", corerr.ErrValidation, runID+" is not paused", nil)
	}
	if err := ms.run.TransitionStatus(model.RunRunning); err != nil {
		return model.PatternRun{}, corerr.New(component, "ResumeMission", corerr.ErrInternal, "resume "+runID, err)
	}
	ms.run.SetPausedByUser(false)
	ms.run.SetNeedsHuman(false)
	if err := s.store.SaveRun(ms.run); err != nil {
		return model.PatternRun{}, corerr.New(component, "ResumeMission", corerr.ErrStorageUnavailable, "persist resume", err)
	}

	s.launch(ms.run, ms.wf)
	return ms.run.Snapshot(), nil
}

// GetMission returns a point-in-time snapshot of a run's state.
func (s *Supervisor) GetMission(runID string) (model.PatternRun, error) {
	ms, ok := s.lookup(runID)
	if ok {
		return ms.run.Snapshot(), nil
	}
	run, err := s.store.LoadRun(runID)
	if err != nil {
		return model.PatternRun{}, ErrMissionNotFound
	}
	return run.Snapshot(), nil
}

// ListMissions returns every mission the store knows about, optionally
// filtered to the given statuses (no filter returns all).
func (s *Supervisor) ListMissions(statuses ...model.RunStatus) ([]model.PatternRun, error) {
	runs, err := s.store.ListRuns(statuses...)
	if err != nil {
		return nil, corerr.New(component, "ListMissions", corerr.ErrStorageUnavailable, "list runs", err)
	}
	out := make([]model.PatternRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.Snapshot())
	}
	return out, nil
}

func (s *Supervisor) lookup(runID string) (*missionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.missions[runID]
	return ms, ok
}
