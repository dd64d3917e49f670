package pattern

import (
	"context"

	"github.com/macaron-software/agentcore/internal/model"
)

// defaultDebateRounds bounds a network phase absent an explicit
// MaxIterations.
const defaultDebateRounds = 3

// networkNode runs a full-mesh debate: every participant speaks once
// per round, and the round repeats until consensus (no veto and at
// least ceil(n/2)+1 approvals) or MaxIterations rounds elapse.
type networkNode struct{}

func (networkNode) Execute(ctx context.Context, nc NodeContext) ([]model.Message, error) {
	maxRounds := nc.Phase.MaxIterations
	if maxRounds <= 0 {
		maxRounds = defaultDebateRounds
	}
	n := len(nc.Phase.Participants)
	quorum := (n+1)/2 + 1

	var transcript []model.Message
	for round := 0; round < maxRounds; round++ {
		for _, pid := range nc.Phase.Participants {
			agent, err := nc.agent(pid)
			if err != nil {
				return transcript, err
			}
			if err := nc.runParticipant(ctx, agent, nc.Brief); err != nil {
				return transcript, err
			}
		}
		transcript = append(transcript, nc.drainAll()...)

		votes := tallyVotes(transcript, nc.Agents)
		approvals := 0
		vetoed := false
		for _, v := range votes {
			switch v.kind {
			case model.KindVeto:
				vetoed = true
			case model.KindApprove:
				approvals++
			}
		}
		if !vetoed && approvals >= quorum {
			break
		}
	}
	return transcript, nil
}
