package pattern

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// hierarchicalNode delegates the phase's brief to every worker
// (Phase.Participants) as a request from the lead (Phase.Orchestrator),
// runs the workers concurrently, then has the lead synthesize their
// inform replies into a terminal summary.
type hierarchicalNode struct{}

func (hierarchicalNode) Execute(ctx context.Context, nc NodeContext) ([]model.Message, error) {
	if nc.Phase.Orchestrator == "" {
		return nil, corerr.New(component, "hierarchical.Execute", corerr.ErrValidation,
			"hierarchical phase "+nc.Phase.ID+" requires an orchestrator (the lead agent)", nil)
	}
	lead, err := nc.agent(nc.Phase.Orchestrator)
	if err != nil {
		return nil, err
	}

	workers := make([]*model.AgentDef, 0, len(nc.Phase.Participants))
	for _, wid := range nc.Phase.Participants {
		worker, err := nc.agent(wid)
		if err != nil {
			return nil, err
		}
		workers = append(workers, worker)
		_ = nc.Bus.Publish(model.Message{
			ID:        model.NewID(),
			RunID:     nc.Run.RunID,
			PhaseID:   nc.Phase.ID,
			FromAgent: lead.ID,
			ToAgent:   worker.ID,
			Kind:      model.KindRequest,
			Content:   nc.Brief,
			Timestamp: time.Now(),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, worker := range workers {
		worker := worker
		g.Go(func() error {
			return nc.runParticipant(gctx, worker, nc.Brief)
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return nil, err
	}

	if err := nc.runParticipant(ctx, lead, "Synthesize a final summary from the workers' replies above."); err != nil {
		return nil, err
	}
	return nc.drainAll(), nil
}
