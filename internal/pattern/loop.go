package pattern

import (
	"context"

	"github.com/macaron-software/agentcore/internal/model"
)

// judgePrompt is sent to a loop phase's orchestrator after each
// iteration to solicit an approve/continue verdict.
const judgePrompt = "Review the iteration above. Reply with \"[APPROVE]\" if the work is acceptable, otherwise explain what must change before the next iteration."

// loopNode repeats its participants in sequence, restarting them each
// iteration with the transcript accumulated so far, until the phase's
// designated judge (Phase.Orchestrator) approves or MaxIterations is
// reached.
type loopNode struct{}

func (loopNode) Execute(ctx context.Context, nc NodeContext) ([]model.Message, error) {
	maxIterations := nc.Phase.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 1
	}

	var transcript []model.Message
	for iteration := 0; iteration < maxIterations; iteration++ {
		for _, pid := range nc.Phase.Participants {
			agent, err := nc.agent(pid)
			if err != nil {
				return transcript, err
			}
			if err := nc.runParticipant(ctx, agent, nc.Brief); err != nil {
				return transcript, err
			}
		}

		if nc.Phase.Orchestrator == "" {
			transcript = append(transcript, nc.drainAll()...)
			continue
		}

		judge, err := nc.agent(nc.Phase.Orchestrator)
		if err != nil {
			return transcript, err
		}
		if err := nc.runParticipant(ctx, judge, judgePrompt); err != nil {
			return transcript, err
		}

		round := nc.drainAll()
		transcript = append(transcript, round...)

		if verdict, ok := lastMessageFrom(round, judge.ID); ok && verdict.Kind == model.KindApprove {
			break
		}
	}
	return transcript, nil
}
