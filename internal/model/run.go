package model

import (
	"fmt"
	"sync"
	"time"
)

// RunStatus is the PatternRun lifecycle state.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// allowedRunTransitions enumerates the run lifecycle's legal edges:
//
//	pending -> running -> {paused, completed, failed, cancelled}
//	paused -> running
//	never backwards from a terminal state.
var allowedRunTransitions = map[RunStatus]map[RunStatus]bool{
	RunPending: {RunRunning: true},
	RunRunning: {RunPaused: true, RunCompleted: true, RunFailed: true, RunCancelled: true},
	RunPaused:  {RunRunning: true, RunCancelled: true},
}

func isTerminal(s RunStatus) bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// CanTransitionRun reports whether from->to is a legal PatternRun
// status transition.
func CanTransitionRun(from, to RunStatus) bool {
	if isTerminal(from) {
		return false
	}
	return allowedRunTransitions[from][to]
}

// PhaseRunState is the runtime state of one phase within a run.
type PhaseRunState string

const (
	PhasePending  PhaseRunState = "pending"
	PhaseRunning  PhaseRunState = "running"
	PhaseApproved PhaseRunState = "approved"
	PhaseVetoed   PhaseRunState = "vetoed"
	PhaseTimedOut PhaseRunState = "timed_out"
	PhaseDone     PhaseRunState = "done"
)

func isTerminalPhase(s PhaseRunState) bool {
	return s == PhaseDone || s == PhaseVetoed || s == PhaseTimedOut || s == PhaseApproved
}

// Verdict is a structured compliance object attached to a terminated
// phase.
type Verdict struct {
	Verdict        string    `json:"verdict"`
	Rationale      string    `json:"rationale"`
	Violations     []string  `json:"violations,omitempty"`
	EscalationFlag bool      `json:"escalation_flag,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// PhaseState is the runtime state of one phase within a run.
type PhaseState struct {
	State       PhaseRunState `json:"state"`
	Iteration   int           `json:"iteration"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Verdict     *Verdict      `json:"verdict,omitempty"`
	Summary     string        `json:"summary,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
}

// Usage tracks a run's monotone token/cost counters.
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// PatternRun is the runtime incarnation of a WorkflowDef for one mission.
// Exclusively owned and mutated by the Mission Supervisor (C7); the
// Pattern Engine (C6) borrows it while executing.
type PatternRun struct {
	mu sync.RWMutex

	RunID          string                 `json:"run_id"`
	WorkflowID     string                 `json:"workflow_id"`
	Status         RunStatus              `json:"status"`
	CurrentPhase   string                 `json:"current_phase"`
	PhaseStates    map[string]*PhaseState `json:"phase_states"`
	Brief          string                 `json:"brief"`
	WorkspacePath  string                 `json:"workspace_path"`
	ProjectRef     string                 `json:"project_ref,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	ResumeAttempts int                    `json:"resume_attempts"`
	Usage          Usage                  `json:"usage"`
	LastError      string                 `json:"last_error,omitempty"`

	// PausedByUser distinguishes an operator-initiated pause from a
	// pause the engine entered on its own (retry exhaustion, a replay
	// discrepancy). Orthogonal to Status: both can be RunPaused.
	PausedByUser bool `json:"paused_by_user,omitempty"`

	// NeedsHuman is set when the Pattern Engine exhausts a node's retry
	// policy and the run is paused for an operator to intervene.
	NeedsHuman bool `json:"needs_human,omitempty"`
}

// NewPatternRun constructs a run in pending status with a pending
// PhaseState pre-populated for every phase in the workflow.
func NewPatternRun(runID string, wf *WorkflowDef, brief, workspacePath, projectRef string) *PatternRun {
	now := time.Now()
	states := make(map[string]*PhaseState, len(wf.Phases))
	for _, p := range wf.Phases {
		states[p.ID] = &PhaseState{State: PhasePending}
	}
	return &PatternRun{
		RunID:         runID,
		WorkflowID:    wf.ID,
		Status:        RunPending,
		CurrentPhase:  wf.FirstPhase().ID,
		PhaseStates:   states,
		Brief:         brief,
		WorkspacePath: workspacePath,
		ProjectRef:    projectRef,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TransitionStatus applies from->to if legal, else returns an error.
// Safe for concurrent callers.
func (r *PatternRun) TransitionStatus(to RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !CanTransitionRun(r.Status, to) {
		return fmt.Errorf("illegal run transition %s -> %s", r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	return nil
}

// StatusNow returns the run's current lifecycle status.
func (r *PatternRun) StatusNow() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// Snapshot returns a value copy safe to hand to callers outside the
// supervisor.
func (r *PatternRun) Snapshot() PatternRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := *r
	cp.PhaseStates = make(map[string]*PhaseState, len(r.PhaseStates))
	for k, v := range r.PhaseStates {
		vv := *v
		cp.PhaseStates[k] = &vv
	}
	return cp
}

// SetPhaseState transitions a phase's state. A phase never resumes once
// it has reached done/vetoed/timed_out/approved.
func (r *PatternRun) SetPhaseState(phaseID string, mutate func(*PhaseState) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.PhaseStates[phaseID]
	if !ok {
		return fmt.Errorf("phase %s not present in run %s", phaseID, r.RunID)
	}
	if isTerminalPhase(ps.State) {
		return fmt.Errorf("phase %s already terminal (%s), cannot resume", phaseID, ps.State)
	}
	if err := mutate(ps); err != nil {
		return err
	}
	r.UpdatedAt = time.Now()
	return nil
}

// PhaseStateOf returns a copy of the named phase's state.
func (r *PatternRun) PhaseStateOf(phaseID string) (PhaseState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ps, ok := r.PhaseStates[phaseID]
	if !ok {
		return PhaseState{}, false
	}
	return *ps, true
}

// AddUsage applies a monotone non-decreasing update to the run's usage
// counters. Negative deltas are rejected.
func (r *PatternRun) AddUsage(inputTokens, outputTokens int64, costUSD float64) error {
	if inputTokens < 0 || outputTokens < 0 || costUSD < 0 {
		return fmt.Errorf("usage deltas must be non-negative")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Usage.InputTokens += inputTokens
	r.Usage.OutputTokens += outputTokens
	r.Usage.CostUSD += costUSD
	r.UpdatedAt = time.Now()
	return nil
}

// SetCurrentPhase advances CurrentPhase.
func (r *PatternRun) SetCurrentPhase(phaseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CurrentPhase = phaseID
	r.UpdatedAt = time.Now()
}

// SetLastError records the public last_error surface.
func (r *PatternRun) SetLastError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LastError = msg
	r.UpdatedAt = time.Now()
}

// SetPausedByUser records whether the current pause was operator-initiated,
// independent of Status.
func (r *PatternRun) SetPausedByUser(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PausedByUser = v
	r.UpdatedAt = time.Now()
}

// SetNeedsHuman flags that the run is paused awaiting operator
// intervention, e.g. after a node's retry policy is exhausted.
func (r *PatternRun) SetNeedsHuman(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.NeedsHuman = v
	r.UpdatedAt = time.Now()
}

// IncrResumeAttempts increments and returns the new resume_attempts
// count.
func (r *PatternRun) IncrResumeAttempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResumeAttempts++
	r.UpdatedAt = time.Now()
	return r.ResumeAttempts
}
