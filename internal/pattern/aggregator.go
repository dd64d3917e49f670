package pattern

import (
	"context"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// aggregatorNode runs each contributor (Phase.Participants) once, then
// has the designated aggregator (Phase.Orchestrator) synthesize their
// output into a single artifact.
type aggregatorNode struct{}

func (aggregatorNode) Execute(ctx context.Context, nc NodeContext) ([]model.Message, error) {
	if nc.Phase.Orchestrator == "" {
		return nil, corerr.New(component, "aggregator.Execute", corerr.ErrValidation,
			"aggregator phase "+nc.Phase.ID+" requires an orchestrator (the aggregating agent)", nil)
	}
	for _, pid := range nc.Phase.Participants {
		agent, err := nc.agent(pid)
		if err != nil {
			return nil, err
		}
		if err := nc.runParticipant(ctx, agent, nc.Brief); err != nil {
			return nil, err
		}
	}

	aggregator, err := nc.agent(nc.Phase.Orchestrator)
	if err != nil {
		return nil, err
	}
	if err := nc.runParticipant(ctx, aggregator, "Synthesize a single combined artifact from the contributions above."); err != nil {
		return nil, err
	}
	return nc.drainAll(), nil
}
