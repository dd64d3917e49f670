package pattern

import (
	"context"
	"strings"
	"time"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

const (
	cascadeGateL0 = "L0"
	cascadeGateL2 = "L2"
)

// lexicalVetoMarkers are the skip/ignore/TODO-style tells the L0 gate
// scans for without invoking a model.
var lexicalVetoMarkers = []string{"skip", "ignore", "todo"}

// adversarialCascadeNode runs three escalating gates over nc.Brief (the
// artifact under review): L0 is a lexical scan, L1 a semantic critic,
// L2 an architectural critic. An L0 or L1 veto ends the cascade as
// vetoed outright; an L2 veto ends it vetoed too, but flagged for
// escalation since an architectural objection this late warrants an
// operator's eyes rather than a silent reject.
type adversarialCascadeNode struct{}

func (adversarialCascadeNode) Execute(ctx context.Context, nc NodeContext) ([]model.Message, error) {
	if len(nc.Phase.Participants) != 2 {
		return nil, corerr.New(component, "adversarial-cascade.Execute", corerr.ErrValidation,
			"adversarial-cascade phase "+nc.Phase.ID+" requires exactly two participants (L1 semantic critic, L2 architectural critic)", nil)
	}
	l1, err := nc.agent(nc.Phase.Participants[0])
	if err != nil {
		return nil, err
	}
	l2, err := nc.agent(nc.Phase.Participants[1])
	if err != nil {
		return nil, err
	}

	var transcript []model.Message

	if reason, vetoed := lexicalScan(nc.Brief); vetoed {
		msg := model.Message{
			ID:        model.NewID(),
			RunID:     nc.Run.RunID,
			PhaseID:   nc.Phase.ID,
			FromAgent: "cascade-l0",
			Kind:      model.KindVeto,
			Content:   reason,
			Metadata:  map[string]string{"gate": cascadeGateL0},
			Timestamp: time.Now(),
		}
		msg.NormalizePriority()
		_ = nc.Bus.Publish(msg)
		return append(transcript, nc.drainAll()...), nil
	}

	if err := nc.runParticipant(ctx, l1, "Perform a semantic critique of the artifact below. Reply with \"[VETO]\" if it has a substantive flaw, otherwise \"[APPROVE]\".\n\n"+nc.Brief); err != nil {
		return transcript, err
	}
	round := nc.drainAll()
	transcript = append(transcript, round...)
	if verdict, ok := lastMessageFrom(round, l1.ID); ok && verdict.Kind == model.KindVeto {
		return transcript, nil
	}

	if err := nc.runParticipant(ctx, l2, "Perform an architectural critique of the artifact below. Reply with \"[VETO]\" if it violates architectural constraints, otherwise \"[APPROVE]\".\n\n"+nc.Brief); err != nil {
		return transcript, err
	}
	round = nc.drainAll()
	transcript = append(transcript, round...)
	if verdict, ok := lastMessageFrom(round, l2.ID); ok && verdict.Kind == model.KindVeto {
		escalation := model.Message{
			ID:        model.NewID(),
			RunID:     nc.Run.RunID,
			PhaseID:   nc.Phase.ID,
			FromAgent: "cascade-l2",
			Kind:      model.KindSystem,
			Content:   "architectural veto escalated for operator review",
			Metadata:  map[string]string{"gate": cascadeGateL2, "escalation_flag": "true"},
			Timestamp: time.Now(),
		}
		_ = nc.Bus.Publish(escalation)
		transcript = append(transcript, escalation)
	}
	return transcript, nil
}

func lexicalScan(artifact string) (string, bool) {
	lower := strings.ToLower(artifact)
	for _, marker := range lexicalVetoMarkers {
		if strings.Contains(lower, marker) {
			return "lexical scan flagged marker: " + marker, true
		}
	}
	return "", false
}
