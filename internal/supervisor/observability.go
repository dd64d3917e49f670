package supervisor

import (
	"context"
	"time"

	"github.com/macaron-software/agentcore/internal/model"
)

// SubscribeMessages streams runID's messages — optionally restricted to
// one phase and to those recorded after since — until ctx is cancelled.
// It replays the durable log and then polls for new arrivals, since the
// bus's own Subscribe is scoped to a single agent's mailbox rather than
// a whole run's transcript.
func (s *Supervisor) SubscribeMessages(ctx context.Context, runID, phaseFilter string, since time.Time) (<-chan model.Message, error) {
	out := make(chan model.Message, 64)
	go func() {
		defer close(out)
		emitted := 0
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			msgs, err := s.store.ListMessages(runID, phaseFilter)
			if err == nil {
				for _, m := range msgs[emitted:] {
					if !since.IsZero() && m.Timestamp.Before(since) {
						continue
					}
					select {
					case out <- m:
					case <-ctx.Done():
						return
					}
				}
				emitted = len(msgs)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}

// SubscribeUsage streams runID's cumulative Usage every time it changes,
// until the run reaches a terminal state or ctx is cancelled.
func (s *Supervisor) SubscribeUsage(ctx context.Context, runID string) (<-chan model.Usage, error) {
	ms, ok := s.lookup(runID)
	if !ok {
		return nil, ErrMissionNotFound
	}

	out := make(chan model.Usage, 8)
	go func() {
		defer close(out)
		var last model.Usage
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

		for {
			snap := ms.run.Snapshot()
			if snap.Usage != last {
				select {
				case out <- snap.Usage:
				case <-ctx.Done():
					return
				}
				last = snap.Usage
			}
			switch snap.Status {
			case model.RunCompleted, model.RunFailed, model.RunCancelled:
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}

// Metrics is the Mission Supervisor's contribution to GetMetrics: the
// gateway's provider/breaker/savings snapshot plus the count of runs
// the supervisor is actively driving.
type Metrics struct {
	Providers     []string
	CircuitStates map[string]string
	RTKSavings    int64
	ActiveRuns    int
}

// GetMetrics reports the process-wide figures GetMetrics exposes:
// configured providers and their circuit breaker states, estimated
// token savings from <think> stripping, and the number of runs
// currently in RunRunning state.
func (s *Supervisor) GetMetrics() Metrics {
	gm := s.gateway.Metrics()

	active := 0
	s.mu.Lock()
	for _, ms := range s.missions {
		if ms.run.StatusNow() == model.RunRunning {
			active++
		}
	}
	s.mu.Unlock()

	return Metrics{
		Providers:     gm.Providers,
		CircuitStates: gm.CircuitStates,
		RTKSavings:    gm.RTKSavings,
		ActiveRuns:    active,
	}
}
