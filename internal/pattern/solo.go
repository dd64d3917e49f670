package pattern

import (
	"context"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// soloNode runs the phase's single participant once; the participant's
// own terminal message (inform/approve/veto) is the node's terminal
// state.
type soloNode struct{}

func (soloNode) Execute(ctx context.Context, nc NodeContext) ([]model.Message, error) {
	if len(nc.Phase.Participants) != 1 {
		return nil, corerr.New(component, "solo.Execute", corerr.ErrValidation,
			"solo phase "+nc.Phase.ID+" requires exactly one participant", nil)
	}
	agent, err := nc.agent(nc.Phase.Participants[0])
	if err != nil {
		return nil, err
	}
	if err := nc.runParticipant(ctx, agent, nc.Brief); err != nil {
		return nil, err
	}
	return nc.drainAll(), nil
}
