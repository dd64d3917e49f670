package pattern

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/macaron-software/agentcore/internal/model"
)

// parallelNode fans every participant out concurrently and waits for
// all of them, or for the phase's context deadline, whichever comes
// first.
type parallelNode struct{}

func (parallelNode) Execute(ctx context.Context, nc NodeContext) ([]model.Message, error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, pid := range nc.Phase.Participants {
		agent, err := nc.agent(pid)
		if err != nil {
			return nil, err
		}
		g.Go(func() error {
			return nc.runParticipant(gctx, agent, nc.Brief)
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return nil, err
	}
	return nc.drainAll(), nil
}
