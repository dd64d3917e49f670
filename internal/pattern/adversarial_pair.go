package pattern

import (
	"context"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

const defaultAdversarialRounds = 3

// adversarialPairNode alternates a producer and a critic until the
// critic approves or MaxIterations rounds elapse.
type adversarialPairNode struct{}

func (adversarialPairNode) Execute(ctx context.Context, nc NodeContext) ([]model.Message, error) {
	if len(nc.Phase.Participants) != 2 {
		return nil, corerr.New(component, "adversarial-pair.Execute", corerr.ErrValidation,
			"adversarial-pair phase "+nc.Phase.ID+" requires exactly two participants (producer, critic)", nil)
	}
	producer, err := nc.agent(nc.Phase.Participants[0])
	if err != nil {
		return nil, err
	}
	critic, err := nc.agent(nc.Phase.Participants[1])
	if err != nil {
		return nil, err
	}

	maxRounds := nc.Phase.MaxIterations
	if maxRounds <= 0 {
		maxRounds = defaultAdversarialRounds
	}

	var transcript []model.Message
	for round := 0; round < maxRounds; round++ {
		if err := nc.runParticipant(ctx, producer, nc.Brief); err != nil {
			return transcript, err
		}
		if err := nc.runParticipant(ctx, critic, "Critique the output above."); err != nil {
			return transcript, err
		}

		roundMsgs := nc.drainAll()
		transcript = append(transcript, roundMsgs...)
		if verdict, ok := lastMessageFrom(roundMsgs, critic.ID); ok && verdict.Kind == model.KindApprove {
			break
		}
	}
	return transcript, nil
}
