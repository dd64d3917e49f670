package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// SaveVerdict durably appends phaseID's compliance verdict for runID.
// Verdicts are append-only, same as messages: a phase that reruns
// (loop iteration, resumed run) gets a new row rather than overwriting
// the prior one, so GetComplianceReports shows the full history.
func (s *Store) SaveVerdict(runID, phaseID string, v model.Verdict) error {
	violations, err := json.Marshal(v.Violations)
	if err != nil {
		return corerr.New(component, "SaveVerdict", corerr.ErrInternal, "marshal violations", err)
	}
	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO verdicts (run_id, phase_id, verdict, rationale, violations, escalation_flag, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, phaseID, v.Verdict, v.Rationale, string(violations), v.EscalationFlag, v.RecordedAt)
	if err != nil {
		return corerr.New(component, "SaveVerdict", corerr.ErrStorageUnavailable, "insert verdict", err)
	}
	return nil
}

// GetComplianceReports returns every verdict recorded for runID, in
// the order they were recorded.
func (s *Store) GetComplianceReports(runID string) ([]model.Verdict, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT verdict, rationale, violations, escalation_flag, recorded_at
		FROM verdicts WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, corerr.New(component, "GetComplianceReports", corerr.ErrStorageUnavailable, "query verdicts", err)
	}
	defer rows.Close()

	var out []model.Verdict
	for rows.Next() {
		var v model.Verdict
		var rationale sql.NullString
		var violations string
		if err := rows.Scan(&v.Verdict, &rationale, &violations, &v.EscalationFlag, &v.RecordedAt); err != nil {
			return nil, corerr.New(component, "GetComplianceReports", corerr.ErrStorageUnavailable, "scan verdict row", err)
		}
		v.Rationale = rationale.String
		if violations != "" {
			if err := json.Unmarshal([]byte(violations), &v.Violations); err != nil {
				return nil, corerr.New(component, "GetComplianceReports", corerr.ErrInternal, "unmarshal violations", err)
			}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
