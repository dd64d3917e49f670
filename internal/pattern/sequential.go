package pattern

import (
	"context"

	"github.com/macaron-software/agentcore/internal/model"
)

// sequentialNode runs participants in declared order. Each participant
// drains its inbox at the start of its own reason-act loop, so it sees
// every message broadcast by the participants before it.
type sequentialNode struct{}

func (sequentialNode) Execute(ctx context.Context, nc NodeContext) ([]model.Message, error) {
	for _, pid := range nc.Phase.Participants {
		agent, err := nc.agent(pid)
		if err != nil {
			return nil, err
		}
		if err := nc.runParticipant(ctx, agent, nc.Brief); err != nil {
			return nil, err
		}
	}
	return nc.drainAll(), nil
}
