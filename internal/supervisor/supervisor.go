// Package supervisor implements the Mission Supervisor (C7): the
// run-lifecycle owner that turns a mission request into a PatternRun,
// drives it phase by phase through the Pattern Engine (C6). Global
// memory accepts writes only from a nil writer (the supervisor's
// identity); this package does not write global memory when a mission
// closes, and its own memory writes are project-scope (set_project_phase).
//
// It is a mutex-guarded run-state registry whose launch spawns a
// goroutine driving a workflow to completion while
// GetMission/ListMissions give callers a safe, read-only view of the
// same state.
package supervisor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/macaron-software/agentcore/internal/bus"
	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/executor"
	"github.com/macaron-software/agentcore/internal/gateway"
	"github.com/macaron-software/agentcore/internal/memory"
	"github.com/macaron-software/agentcore/internal/model"
	"github.com/macaron-software/agentcore/internal/pattern"
	"github.com/macaron-software/agentcore/internal/store"
	"github.com/macaron-software/agentcore/internal/toolregistry"
)

const component = "supervisor"

// selfAgent is the identity the supervisor writes project/global
// memory under. It's never registered as a dispatchable agent — only
// memory.Store.Put cares whether a writer pointer is nil (global) or
// carries CanWriteProjectMemory (project).
var selfAgent = &model.AgentDef{ID: "mission-supervisor", CanWriteProjectMemory: true}

// missionState is everything the supervisor tracks for one live run
// beyond the PatternRun value itself.
type missionState struct {
	run    *model.PatternRun
	wf     *model.WorkflowDef
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor is the Mission Supervisor (C7).
type Supervisor struct {
	mu       sync.Mutex
	missions map[string]*missionState

	agents    map[string]*model.AgentDef
	workflows map[string]*model.WorkflowDef

	store    *store.Store
	bus      *bus.Bus
	memory   *memory.Store
	tools    *toolregistry.Registry
	gateway  *gateway.Gateway
	executor *executor.Executor
	engine   *pattern.Engine
	logger   *slog.Logger
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithLogger overrides the default no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// New builds a Supervisor wired to the C1-C6 services it drives missions
// through, plus the C4 persistence backing it resumes from. agents and
// workflows are the loaded definition catalogs (config package's
// responsibility to produce); the supervisor treats them as read-only.
func New(st *store.Store, b *bus.Bus, mem *memory.Store, tools *toolregistry.Registry,
	gw *gateway.Gateway, exec *executor.Executor, agents map[string]*model.AgentDef,
	workflows map[string]*model.WorkflowDef, opts ...Option) *Supervisor {
	s := &Supervisor{
		missions:  make(map[string]*missionState),
		agents:    agents,
		workflows: workflows,
		store:     st,
		bus:       b,
		memory:    mem,
		tools:     tools,
		gateway:   gw,
		executor:  exec,
		engine:    pattern.New(),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResumeOnRestart scans the store for every non-terminal run left over
// from a prior process and reattaches it: a run that was RunRunning
// when the process died had no mid-phase checkpoint to resume from, so
// its current phase is simply re-entered from the top, with
// resume_attempts incremented so GetMission surfaces that this run
// survived a crash. A RunPaused run (operator pause or needs-human) is
// loaded into the live cache but left paused — ResumeMission is still
// required to restart it, preserving the operator's or the engine's
// decision to stop.
func (s *Supervisor) ResumeOnRestart(ctx context.Context) error {
	runs, err := s.store.ListRuns(model.RunPending, model.RunRunning, model.RunPaused)
	if err != nil {
		return corerr.New(component, "ResumeOnRestart", corerr.ErrStorageUnavailable, "list non-terminal runs", err)
	}

	for _, run := range runs {
		wf, ok := s.workflows[run.WorkflowID]
		if !ok {
			s.logger.Warn("cannot resume run: workflow definition missing", "run_id", run.RunID, "workflow_id", run.WorkflowID)
			continue
		}

		s.mu.Lock()
		s.missions[run.RunID] = &missionState{run: run, wf: wf}
		s.mu.Unlock()

		if run.StatusNow() != model.RunRunning {
			continue
		}
		attempts := run.IncrResumeAttempts()
		s.logger.Info("resuming run after restart", "run_id", run.RunID, "resume_attempts", attempts, "current_phase", run.CurrentPhase)
		if err := s.store.SaveRun(run); err != nil {
			s.logger.Warn("failed to persist resume attempt", "run_id", run.RunID, "error", err)
		}
		s.launch(run, wf)
	}
	return nil
}
