package supervisor

import (
	"time"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// humanParticipantID mirrors pattern.humanParticipantID (unexported):
// the distinguished agent ID a human-in-the-loop phase waits on.
const humanParticipantID = "human"

// SubmitValidation publishes an operator's approve/veto verdict for a
// run's current phase onto the bus as the distinguished "human"
// participant, unblocking a human-in-the-loop phase or recording the
// outcome of a request_validation call. approve=false publishes a veto.
func (s *Supervisor) SubmitValidation(runID, phaseID, rationale string, approve bool) error {
	ms, ok := s.lookup(runID)
	if !ok {
		return ErrMissionNotFound
	}

	kind := model.KindVeto
	if approve {
		kind = model.KindApprove
	}
	msg := model.Message{
		ID:        model.NewID(),
		RunID:     runID,
		PhaseID:   phaseID,
		FromAgent: humanParticipantID,
		Kind:      kind,
		Content:   rationale,
		Timestamp: time.Now(),
	}
	if err := s.bus.Publish(msg); err != nil {
		return corerr.New(component, "SubmitValidation", corerr.ErrBusUnavailable, "publish validation verdict", err)
	}

	snap := ms.run.Snapshot()
	if snap.Status == model.RunPaused && snap.NeedsHuman {
		_, err := s.ResumeMission(runID)
		return err
	}
	return nil
}

// GetComplianceReports returns every verdict recorded against runID's
// phases, in recording order.
func (s *Supervisor) GetComplianceReports(runID string) ([]model.Verdict, error) {
	reports, err := s.store.GetComplianceReports(runID)
	if err != nil {
		return nil, corerr.New(component, "GetComplianceReports", corerr.ErrStorageUnavailable, "load verdicts for "+runID, err)
	}
	return reports, nil
}
