package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// ErrRunNotFound is returned by LoadRun when run_id isn't recorded.
var ErrRunNotFound = corerr.New(component, "LoadRun", corerr.ErrNotFound, "run not found", nil)

// SaveRun upserts run's full snapshot, including its phase state map,
// so a restart can reconstruct an equivalent PatternRun via LoadRun.
// The Mission Supervisor calls this after every status/phase
// transition, not just at shutdown — the row on disk is always the
// latest truth, never a point-in-time checkpoint a crash could orphan.
func (s *Store) SaveRun(run *model.PatternRun) error {
	snap := run.Snapshot()
	phaseStates, err := json.Marshal(snap.PhaseStates)
	if err != nil {
		return corerr.New(component, "SaveRun", corerr.ErrInternal, "marshal phase states", err)
	}

	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO runs (run_id, workflow_id, status, current_phase, brief, workspace_path, project_ref,
			phase_states, resume_attempts, paused_by_user, needs_human, last_error,
			usage_input_tokens, usage_output_tokens, usage_cost_usd, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			current_phase = excluded.current_phase,
			phase_states = excluded.phase_states,
			resume_attempts = excluded.resume_attempts,
			paused_by_user = excluded.paused_by_user,
			needs_human = excluded.needs_human,
			last_error = excluded.last_error,
			usage_input_tokens = excluded.usage_input_tokens,
			usage_output_tokens = excluded.usage_output_tokens,
			usage_cost_usd = excluded.usage_cost_usd,
			updated_at = excluded.updated_at`,
		snap.RunID, snap.WorkflowID, string(snap.Status), snap.CurrentPhase, snap.Brief, snap.WorkspacePath,
		snap.ProjectRef, string(phaseStates), snap.ResumeAttempts, snap.PausedByUser, snap.NeedsHuman,
		snap.LastError, snap.Usage.InputTokens, snap.Usage.OutputTokens, snap.Usage.CostUSD,
		snap.CreatedAt, snap.UpdatedAt)
	if err != nil {
		return corerr.New(component, "SaveRun", corerr.ErrStorageUnavailable, "upsert run", err)
	}
	return nil
}

func scanRun(row interface {
	Scan(dest ...interface{}) error
}) (*model.PatternRun, error) {
	var (
		run         model.PatternRun
		status      string
		projectRef  sql.NullString
		lastError   sql.NullString
		phaseStates string
	)
	if err := row.Scan(&run.RunID, &run.WorkflowID, &status, &run.CurrentPhase, &run.Brief, &run.WorkspacePath,
		&projectRef, &phaseStates, &run.ResumeAttempts, &run.PausedByUser, &run.NeedsHuman, &lastError,
		&run.Usage.InputTokens, &run.Usage.OutputTokens, &run.Usage.CostUSD, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	run.ProjectRef = projectRef.String
	run.LastError = lastError.String

	states := make(map[string]*model.PhaseState)
	if err := json.Unmarshal([]byte(phaseStates), &states); err != nil {
		return nil, corerr.New(component, "scanRun", corerr.ErrInternal, "unmarshal phase states", err)
	}
	run.PhaseStates = states
	return &run, nil
}

const runColumns = `run_id, workflow_id, status, current_phase, brief, workspace_path, project_ref,
	phase_states, resume_attempts, paused_by_user, needs_human, last_error,
	usage_input_tokens, usage_output_tokens, usage_cost_usd, created_at, updated_at`

// LoadRun reconstructs the PatternRun last saved under runID, or
// ErrRunNotFound.
func (s *Store) LoadRun(runID string) (*model.PatternRun, error) {
	row := s.db.QueryRowContext(context.Background(), `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, corerr.New(component, "LoadRun", corerr.ErrStorageUnavailable, "load run "+runID, err)
	}
	return run, nil
}

// ListRuns returns every run whose status is one of statuses, newest
// first by updated_at. Passing no statuses returns every run. Used both
// by ListMissions and by the composition root's resume-on-restart scan
// (statuses = pending/running/paused, the non-terminal set).
func (s *Store) ListRuns(statuses ...model.RunStatus) ([]*model.PatternRun, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []interface{}
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, corerr.New(component, "ListRuns", corerr.ErrStorageUnavailable, "query runs", err)
	}
	defer rows.Close()

	var out []*model.PatternRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, corerr.New(component, "ListRuns", corerr.ErrStorageUnavailable, "scan run row", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
