package pattern

import (
	"context"
	"time"

	"github.com/macaron-software/agentcore/internal/model"
)

// humanParticipantID is the distinguished agent ID an external
// validation signal is published under.
const humanParticipantID = "human"

// pollInterval bounds how long a human-in-the-loop phase can go
// between checks for the awaited validation_received signal.
const pollInterval = 500 * time.Millisecond

// humanInTheLoopNode suspends the phase until a message of kind
// approve/veto arrives from the distinguished "human" participant, or
// the phase's deadline (the context the Engine wraps with
// Phase.Timeout) elapses.
type humanInTheLoopNode struct{}

func (humanInTheLoopNode) Execute(ctx context.Context, nc NodeContext) ([]model.Message, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var transcript []model.Message
	for {
		select {
		case <-ctx.Done():
			return transcript, nil
		case <-ticker.C:
			round := nc.drainAll()
			if len(round) == 0 {
				continue
			}
			transcript = append(transcript, round...)
			if verdict, ok := lastMessageFrom(round, humanParticipantID); ok &&
				(verdict.Kind == model.KindApprove || verdict.Kind == model.KindVeto) {
				return transcript, nil
			}
		}
	}
}
