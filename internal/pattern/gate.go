package pattern

import "github.com/macaron-software/agentcore/internal/model"

// vote is one agent's current standing verdict within a phase.
type vote struct {
	kind  model.MessageKind
	class model.VetoClass
}

// tallyVotes walks transcript in publish order and keeps the last vote
// per agent, except that an absolute-class agent's veto can never be
// overridden by a later approve from the same agent.
func tallyVotes(transcript []model.Message, agents map[string]*model.AgentDef) map[string]vote {
	votes := make(map[string]vote)
	for _, msg := range transcript {
		if msg.Kind != model.KindVeto && msg.Kind != model.KindApprove {
			continue
		}
		// A message from an agent outside the roster is a synthetic
		// system gate (e.g. the adversarial cascade's lexical scan),
		// not an opinion — treat its veto as binding rather than
		// advisory by defaulting to the strictest class.
		class := model.VetoAbsolute
		if a, ok := agents[msg.FromAgent]; ok {
			class = a.VetoClass
		}
		if existing, ok := votes[msg.FromAgent]; ok &&
			existing.kind == model.KindVeto && existing.class == model.VetoAbsolute &&
			msg.Kind == model.KindApprove {
			continue
		}
		votes[msg.FromAgent] = vote{kind: msg.Kind, class: class}
	}
	return votes
}

// evaluateGate applies phase.Gate's pass/fail rule to transcript.
func evaluateGate(phase model.Phase, agents map[string]*model.AgentDef, transcript []model.Message) bool {
	votes := tallyVotes(transcript, agents)
	switch phase.Gate {
	case model.GateAlways:
		return true

	case model.GateAllApproved:
		for _, v := range votes {
			if v.kind == model.KindVeto {
				return false
			}
		}
		for _, pid := range phase.Participants {
			if a, ok := agents[pid]; ok && a.VetoClass == model.VetoAdvisory {
				continue
			}
			v, ok := votes[pid]
			if !ok || v.kind != model.KindApprove {
				return false
			}
		}
		return true

	case model.GateNoVeto:
		for _, v := range votes {
			if v.kind == model.KindVeto && (v.class == model.VetoAbsolute || v.class == model.VetoStrong) {
				return false
			}
		}
		return true

	case model.GateCheckpoint:
		if phase.Orchestrator == "" {
			return false
		}
		v, ok := votes[phase.Orchestrator]
		return ok && v.kind == model.KindApprove

	default:
		return false
	}
}
