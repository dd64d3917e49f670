package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/macaron-software/agentcore/internal/bus"
	"github.com/macaron-software/agentcore/internal/executor"
	"github.com/macaron-software/agentcore/internal/gateway"
	"github.com/macaron-software/agentcore/internal/memory"
	"github.com/macaron-software/agentcore/internal/model"
	"github.com/macaron-software/agentcore/internal/store"
	"github.com/macaron-software/agentcore/internal/toolregistry"
)

type stubProvider struct {
	id     string
	sendFn func(ctx context.Context, req gateway.CompletionRequest) (<-chan gateway.StreamChunk, error)
}

func (s *stubProvider) ID() string                    { return s.id }
func (s *stubProvider) Limits() gateway.ProviderLimits { return gateway.ProviderLimits{} }
func (s *stubProvider) Send(ctx context.Context, req gateway.CompletionRequest) (<-chan gateway.StreamChunk, error) {
	return s.sendFn(ctx, req)
}

func approveStream() (<-chan gateway.StreamChunk, error) {
	ch := make(chan gateway.StreamChunk, 2)
	ch <- gateway.StreamChunk{TextDelta: "[approve] looks good"}
	ch <- gateway.StreamChunk{Done: true, Usage: &gateway.CompletionUsage{InputTokens: 1, OutputTokens: 1}}
	close(ch)
	return ch, nil
}

// newHarness builds a Supervisor wired to an on-disk store and a stub
// gateway that always approves, for one single-phase solo workflow.
func newHarness(t *testing.T) (*Supervisor, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "agentcore.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	b := bus.New(bus.WithPersist(st.AppendMessage))
	mem := memory.New(memory.WithProjectPersist(st.PutMemoryEntry), memory.WithGlobalPersist(st.PutMemoryEntry))
	tools := toolregistry.New(nil)

	provider := &stubProvider{id: "primary", sendFn: func(ctx context.Context, req gateway.CompletionRequest) (<-chan gateway.StreamChunk, error) {
		return approveStream()
	}}
	gw, err := gateway.New([]gateway.Provider{provider}, []string{"primary"})
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}

	agents := map[string]*model.AgentDef{
		"solo-agent": {ID: "solo-agent", Model: "m", SystemPrompt: "solo-agent", MaxTokens: 256},
	}
	workflows := map[string]*model.WorkflowDef{
		"wf-solo": {ID: "wf-solo", Phases: []model.Phase{
			{ID: "p1", PatternType: model.PatternSolo, Participants: []string{"solo-agent"}, Gate: model.GateAlways, Timeout: 5 * time.Second},
		}},
	}

	sup := New(st, b, mem, tools, gw, executor.New(), agents, workflows)
	return sup, st
}

func waitForStatus(t *testing.T, sup *Supervisor, runID string, want model.RunStatus, timeout time.Duration) model.PatternRun {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		run, err := sup.GetMission(runID)
		if err != nil {
			t.Fatalf("GetMission: %v", err)
		}
		if run.Status == want {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("mission %s did not reach status %s in time", runID, want)
	return model.PatternRun{}
}

func TestStartMission_CompletesSinglePhaseWorkflow(t *testing.T) {
	sup, _ := newHarness(t)
	run, err := sup.StartMission(context.Background(), "wf-solo", "brief", t.TempDir(), "proj-1")
	if err != nil {
		t.Fatalf("StartMission: %v", err)
	}
	if run.Status != model.RunRunning {
		t.Fatalf("run.Status = %v, want running", run.Status)
	}

	final := waitForStatus(t, sup, run.RunID, model.RunCompleted, 2*time.Second)
	if final.CurrentPhase != "p1" {
		t.Fatalf("final.CurrentPhase = %q", final.CurrentPhase)
	}
}

func TestStartMission_UnknownWorkflow(t *testing.T) {
	sup, _ := newHarness(t)
	_, err := sup.StartMission(context.Background(), "does-not-exist", "brief", t.TempDir(), "")
	if err != ErrWorkflowNotFound {
		t.Fatalf("err = %v, want ErrWorkflowNotFound", err)
	}
}

func TestPauseMission_RejectsCompletedRun(t *testing.T) {
	sup, _ := newHarness(t)
	run, err := sup.StartMission(context.Background(), "wf-solo", "brief", t.TempDir(), "")
	if err != nil {
		t.Fatalf("StartMission: %v", err)
	}
	waitForStatus(t, sup, run.RunID, model.RunCompleted, 2*time.Second)

	if _, err := sup.PauseMission(run.RunID); err == nil {
		t.Fatal("expected PauseMission on a completed run to fail")
	}
}

func TestCancelMission(t *testing.T) {
	sup, _ := newHarness(t)
	blocked := &stubProvider{id: "primary", sendFn: func(ctx context.Context, req gateway.CompletionRequest) (<-chan gateway.StreamChunk, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	gw, err := gateway.New([]gateway.Provider{blocked}, []string{"primary"})
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	sup.gateway = gw

	run, err := sup.StartMission(context.Background(), "wf-solo", "brief", t.TempDir(), "")
	if err != nil {
		t.Fatalf("StartMission: %v", err)
	}
	got, err := sup.CancelMission(run.RunID)
	if err != nil {
		t.Fatalf("CancelMission: %v", err)
	}
	if got.Status != model.RunCancelled {
		t.Fatalf("got.Status = %v, want cancelled", got.Status)
	}
}

func TestListMissions_FiltersByStatus(t *testing.T) {
	sup, _ := newHarness(t)
	run, err := sup.StartMission(context.Background(), "wf-solo", "brief", t.TempDir(), "")
	if err != nil {
		t.Fatalf("StartMission: %v", err)
	}
	waitForStatus(t, sup, run.RunID, model.RunCompleted, 2*time.Second)

	completed, err := sup.ListMissions(model.RunCompleted)
	if err != nil {
		t.Fatalf("ListMissions: %v", err)
	}
	if len(completed) != 1 || completed[0].RunID != run.RunID {
		t.Fatalf("ListMissions(completed) = %+v", completed)
	}

	running, err := sup.ListMissions(model.RunRunning)
	if err != nil {
		t.Fatalf("ListMissions: %v", err)
	}
	if len(running) != 0 {
		t.Fatalf("ListMissions(running) = %+v, want none", running)
	}
}

func TestResumeOnRestart_ReattachesNonTerminalRuns(t *testing.T) {
	sup, st := newHarness(t)

	wf := sup.workflows["wf-solo"]
	run := model.NewPatternRun("crashed-run", wf, "brief", t.TempDir(), "")
	if err := run.TransitionStatus(model.RunRunning); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if err := st.SaveRun(run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	if err := sup.ResumeOnRestart(context.Background()); err != nil {
		t.Fatalf("ResumeOnRestart: %v", err)
	}

	final := waitForStatus(t, sup, "crashed-run", model.RunCompleted, 2*time.Second)
	if final.ResumeAttempts != 1 {
		t.Fatalf("final.ResumeAttempts = %d, want 1", final.ResumeAttempts)
	}
}

func TestRegisterTools_CreateActivatePauseRoundTrip(t *testing.T) {
	sup, _ := newHarness(t)
	reg := toolregistry.New(nil)
	if err := sup.RegisterTools(reg); err != nil {
		t.Fatalf("RegisterTools: %v", err)
	}

	result, err := reg.Dispatch(context.Background(), toolregistry.CallContext{RunID: "ctl"}, "create_mission", map[string]interface{}{
		"workflow_id":    "wf-solo",
		"brief":          "brief",
		"workspace_path": t.TempDir(),
		"project_ref":    "proj-1",
	})
	if err != nil {
		t.Fatalf("Dispatch create_mission: %v", err)
	}
	runID, _ := result.Data["run_id"].(string)
	if runID == "" {
		t.Fatal("create_mission did not return a run_id")
	}

	waitForStatus(t, sup, runID, model.RunCompleted, 2*time.Second)

	health, err := reg.Dispatch(context.Background(), toolregistry.CallContext{RunID: "ctl"}, "get_project_health", map[string]interface{}{
		"project_ref": "proj-1",
	})
	if err != nil {
		t.Fatalf("Dispatch get_project_health: %v", err)
	}
	if health.Data["total"].(int) != 1 {
		t.Fatalf("get_project_health total = %v, want 1", health.Data["total"])
	}
}

func TestSetProjectPhaseAndSuggestNextMissions(t *testing.T) {
	sup, _ := newHarness(t)
	reg := toolregistry.New(nil)
	if err := sup.RegisterTools(reg); err != nil {
		t.Fatalf("RegisterTools: %v", err)
	}

	_, err := reg.Dispatch(context.Background(), toolregistry.CallContext{}, "set_project_phase", map[string]interface{}{
		"project_ref": "proj-1",
		"phase":       "ideation",
	})
	if err != nil {
		t.Fatalf("Dispatch set_project_phase: %v", err)
	}

	result, err := reg.Dispatch(context.Background(), toolregistry.CallContext{}, "suggest_next_missions", map[string]interface{}{
		"project_ref": "proj-1",
	})
	if err != nil {
		t.Fatalf("Dispatch suggest_next_missions: %v", err)
	}
	if result.Data["phase"] != "ideation" {
		t.Fatalf("suggest_next_missions phase = %v, want ideation", result.Data["phase"])
	}
}

func TestSubscribeMessages_ReplaysUntilContextDone(t *testing.T) {
	sup, _ := newHarness(t)
	run, err := sup.StartMission(context.Background(), "wf-solo", "brief", t.TempDir(), "")
	if err != nil {
		t.Fatalf("StartMission: %v", err)
	}
	waitForStatus(t, sup, run.RunID, model.RunCompleted, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := sup.SubscribeMessages(ctx, run.RunID, "", time.Time{})
	if err != nil {
		t.Fatalf("SubscribeMessages: %v", err)
	}

	var got []model.Message
	for m := range ch {
		got = append(got, m)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one replayed message from the completed run")
	}
}

func TestSubscribeUsage_StopsWhenRunCompletes(t *testing.T) {
	sup, _ := newHarness(t)
	run, err := sup.StartMission(context.Background(), "wf-solo", "brief", t.TempDir(), "")
	if err != nil {
		t.Fatalf("StartMission: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ch, err := sup.SubscribeUsage(ctx, run.RunID)
	if err != nil {
		t.Fatalf("SubscribeUsage: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("SubscribeUsage did not close after run completion")
		}
	}
}

func TestGetMetrics_ReportsProviderAndActiveRunCounts(t *testing.T) {
	sup, _ := newHarness(t)
	run, err := sup.StartMission(context.Background(), "wf-solo", "brief", t.TempDir(), "")
	if err != nil {
		t.Fatalf("StartMission: %v", err)
	}

	waitForStatus(t, sup, run.RunID, model.RunCompleted, 2*time.Second)
	m := sup.GetMetrics()
	if len(m.Providers) != 1 || m.Providers[0] != "primary" {
		t.Fatalf("Providers = %v", m.Providers)
	}
	if m.CircuitStates["primary"] != "closed" {
		t.Fatalf("CircuitStates[primary] = %q", m.CircuitStates["primary"])
	}
	if m.ActiveRuns != 0 {
		t.Fatalf("ActiveRuns = %d, want 0 after completion", m.ActiveRuns)
	}
}

func TestSubmitValidation_ResumesNeedsHumanRun(t *testing.T) {
	sup, _ := newHarness(t)
	wf := sup.workflows["wf-solo"]
	run := model.NewPatternRun("paused-run", wf, "brief", t.TempDir(), "")
	if err := run.TransitionStatus(model.RunRunning); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if err := run.TransitionStatus(model.RunPaused); err != nil {
		t.Fatalf("TransitionStatus paused: %v", err)
	}
	run.SetNeedsHuman(true)

	sup.mu.Lock()
	sup.missions[run.RunID] = &missionState{run: run, wf: wf}
	sup.mu.Unlock()

	if err := sup.SubmitValidation(run.RunID, "p1", "looks fine", true); err != nil {
		t.Fatalf("SubmitValidation: %v", err)
	}

	got, err := sup.GetMission(run.RunID)
	if err != nil {
		t.Fatalf("GetMission: %v", err)
	}
	if got.Status != model.RunRunning {
		t.Fatalf("got.Status = %v, want running (resumed)", got.Status)
	}
}
