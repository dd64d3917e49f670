package pattern

import (
	"context"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// routedToKey is the message metadata key a router phase's classifier
// sets to name the next phase.
const routedToKey = "routed_to"

// routerNode runs a single classifier participant that picks the next
// phase by publishing a routed_to metadata message; the classifier's
// own terminal message is the node's terminal state.
type routerNode struct{}

func (routerNode) Execute(ctx context.Context, nc NodeContext) ([]model.Message, error) {
	if len(nc.Phase.Participants) != 1 {
		return nil, corerr.New(component, "router.Execute", corerr.ErrValidation,
			"router phase "+nc.Phase.ID+" requires exactly one classifier participant", nil)
	}
	classifier, err := nc.agent(nc.Phase.Participants[0])
	if err != nil {
		return nil, err
	}
	if err := nc.runParticipant(ctx, classifier, nc.Brief); err != nil {
		return nil, err
	}
	return nc.drainAll(), nil
}

// RoutedTo inspects a router phase's transcript for the classifier's
// routed_to metadata and returns the target phase ID, newest entry
// wins.
func RoutedTo(transcript []model.Message) (string, bool) {
	for i := len(transcript) - 1; i >= 0; i-- {
		if v, ok := transcript[i].Metadata[routedToKey]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}
