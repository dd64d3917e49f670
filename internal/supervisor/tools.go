package supervisor

import (
	"context"
	"fmt"

	"github.com/macaron-software/agentcore/internal/model"
	"github.com/macaron-software/agentcore/internal/toolregistry"
)

// Well-known workflow IDs the launch_ideation/launch_group_ideation
// tool shorthands resolve against; the catalog must register a
// workflow under each for the shorthand to succeed.
const (
	ideationSoloWorkflowID  = "ideation-solo"
	ideationGroupWorkflowID = "ideation-group"
)

// phaseCandidates is a small static phase -> candidate workflow ID
// table backing suggest_next_missions. Not derived from any retained
// original-language source (none survived the distillation this
// project started from) — a documented heuristic, not a rediscovered
// rule.
var phaseCandidates = map[string][]string{
	"":         {ideationSoloWorkflowID},
	"ideation": {ideationGroupWorkflowID, "planning"},
	"planning": {"build"},
	"build":    {"review", "launch"},
	"review":   {"build", "launch"},
	"launch":   {"retro"},
}

const projectPhaseMemoryKey = "project_phase"

type createMissionArgs struct {
	WorkflowID    string `json:"workflow_id" jsonschema:"required,description=Registered workflow definition ID to run"`
	Brief         string `json:"brief" jsonschema:"required,description=Mission brief seeding the first phase"`
	WorkspacePath string `json:"workspace_path" jsonschema:"required,description=Filesystem root the mission's tools are sandboxed to"`
	ProjectRef    string `json:"project_ref" jsonschema:"description=Project this mission belongs to, for project-scope memory"`
}

type runIDArgs struct {
	RunID string `json:"run_id" jsonschema:"required,description=Mission run ID"`
}

type requestValidationArgs struct {
	RunID     string `json:"run_id" jsonschema:"required,description=Mission run ID"`
	PhaseID   string `json:"phase_id" jsonschema:"required,description=Phase awaiting operator sign-off"`
	Rationale string `json:"rationale" jsonschema:"description=Why this phase needs human review"`
}

type launchIdeationArgs struct {
	Brief         string `json:"brief" jsonschema:"required,description=Mission brief seeding ideation"`
	WorkspacePath string `json:"workspace_path" jsonschema:"required,description=Filesystem root the mission's tools are sandboxed to"`
	ProjectRef    string `json:"project_ref" jsonschema:"description=Project this mission belongs to"`
}

type setProjectPhaseArgs struct {
	ProjectRef string `json:"project_ref" jsonschema:"required,description=Project reference"`
	Phase      string `json:"phase" jsonschema:"required,description=New lifecycle phase name"`
}

type projectRefArgs struct {
	ProjectRef string `json:"project_ref" jsonschema:"required,description=Project reference"`
}

type checkPhaseGateArgs struct {
	RunID   string `json:"run_id" jsonschema:"required,description=Mission run ID"`
	PhaseID string `json:"phase_id" jsonschema:"required,description=Phase to inspect"`
}

// RegisterTools adds the mission-control tool surface to reg: the
// create/activate/pause lifecycle, request_validation (pairing
// with the human-in-the-loop node's poll loop), read-only project
// health and phase-gate queries, and the launch_ideation/
// launch_group_ideation/suggest_next_missions shorthands that wrap
// StartMission against well-known workflow IDs.
func (s *Supervisor) RegisterTools(reg *toolregistry.Registry) error {
	tools := []toolregistry.Tool{
		toolregistry.NewFuncTool(toolregistry.Descriptor{
			Name:        "create_mission",
			Description: "Start a new mission run from a registered workflow definition.",
			Schema:      toolregistry.MustSchema(createMissionArgs{}),
			Mutates:     true,
		}, s.toolCreateMission),

		toolregistry.NewFuncTool(toolregistry.Descriptor{
			Name:        "activate_mission",
			Description: "Resume a paused mission run.",
			Schema:      toolregistry.MustSchema(runIDArgs{}),
			Mutates:     true,
		}, s.toolActivateMission),

		toolregistry.NewFuncTool(toolregistry.Descriptor{
			Name:        "pause_mission",
			Description: "Pause a running mission run.",
			Schema:      toolregistry.MustSchema(runIDArgs{}),
			Mutates:     true,
		}, s.toolPauseMission),

		toolregistry.NewFuncTool(toolregistry.Descriptor{
			Name:        "request_validation",
			Description: "Flag a mission phase as awaiting operator sign-off and pause the run for it.",
			Schema:      toolregistry.MustSchema(requestValidationArgs{}),
			Mutates:     true,
		}, s.toolRequestValidation),

		toolregistry.NewFuncTool(toolregistry.Descriptor{
			Name:        "check_phase_gate",
			Description: "Read a mission phase's recorded gate outcome and verdict, if any.",
			Schema:      toolregistry.MustSchema(checkPhaseGateArgs{}),
		}, s.toolCheckPhaseGate),

		toolregistry.NewFuncTool(toolregistry.Descriptor{
			Name:        "get_project_health",
			Description: "Summarize a project's missions by status.",
			Schema:      toolregistry.MustSchema(projectRefArgs{}),
		}, s.toolGetProjectHealth),

		toolregistry.NewFuncTool(toolregistry.Descriptor{
			Name:        "set_project_phase",
			Description: "Record a project's current lifecycle phase in project-scope memory.",
			Schema:      toolregistry.MustSchema(setProjectPhaseArgs{}),
			Mutates:     true,
		}, s.toolSetProjectPhase),

		toolregistry.NewFuncTool(toolregistry.Descriptor{
			Name:        "suggest_next_missions",
			Description: "Suggest candidate workflow IDs for a project's next mission, based on its recorded phase.",
			Schema:      toolregistry.MustSchema(projectRefArgs{}),
		}, s.toolSuggestNextMissions),

		toolregistry.NewFuncTool(toolregistry.Descriptor{
			Name:        "launch_ideation",
			Description: "Start a solo ideation mission.",
			Schema:      toolregistry.MustSchema(launchIdeationArgs{}),
			Mutates:     true,
		}, s.toolLaunchIdeation(ideationSoloWorkflowID)),

		toolregistry.NewFuncTool(toolregistry.Descriptor{
			Name:        "launch_group_ideation",
			Description: "Start a group (network pattern) ideation mission.",
			Schema:      toolregistry.MustSchema(launchIdeationArgs{}),
			Mutates:     true,
		}, s.toolLaunchIdeation(ideationGroupWorkflowID)),
	}

	for _, t := range tools {
		if err := reg.RegisterTool(t); err != nil {
			return err
		}
	}
	return nil
}

func argString(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func (s *Supervisor) toolCreateMission(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	run, err := s.StartMission(ctx, argString(args, "workflow_id"), argString(args, "brief"),
		argString(args, "workspace_path"), argString(args, "project_ref"))
	if err != nil {
		return toolregistry.Result{}, err
	}
	return toolregistry.Result{Success: true, Output: "mission started: " + run.RunID,
		Data: map[string]interface{}{"run_id": run.RunID, "status": string(run.Status)}}, nil
}

func (s *Supervisor) toolActivateMission(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	run, err := s.ResumeMission(argString(args, "run_id"))
	if err != nil {
		return toolregistry.Result{}, err
	}
	return toolregistry.Result{Success: true, Output: "mission resumed: " + run.RunID,
		Data: map[string]interface{}{"status": string(run.Status)}}, nil
}

func (s *Supervisor) toolPauseMission(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	run, err := s.PauseMission(argString(args, "run_id"))
	if err != nil {
		return toolregistry.Result{}, err
	}
	return toolregistry.Result{Success: true, Output: "mission paused: " + run.RunID,
		Data: map[string]interface{}{"status": string(run.Status)}}, nil
}

func (s *Supervisor) toolRequestValidation(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	runID := argString(args, "run_id")
	ms, ok := s.lookup(runID)
	if !ok {
		return toolregistry.Result{}, ErrMissionNotFound
	}
	rationale := argString(args, "rationale")
	msg := model.Message{
		ID:        model.NewID(),
		RunID:     runID,
		PhaseID:   argString(args, "phase_id"),
		FromAgent: "mission-supervisor",
		Kind:      model.KindSystem,
		Content:   fmt.Sprintf("validation requested: %s", rationale),
		Metadata:  map[string]string{"type": "validation_requested"},
	}
	if err := s.bus.Publish(msg); err != nil {
		return toolregistry.Result{}, err
	}
	ms.run.SetNeedsHuman(true)
	if ms.run.StatusNow() == model.RunRunning {
		if _, err := s.PauseMission(runID); err != nil {
			return toolregistry.Result{}, err
		}
	}
	return toolregistry.Result{Success: true, Output: "validation requested for " + runID}, nil
}

func (s *Supervisor) toolCheckPhaseGate(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	run, err := s.GetMission(argString(args, "run_id"))
	if err != nil {
		return toolregistry.Result{}, err
	}
	ps, ok := run.PhaseStates[argString(args, "phase_id")]
	if !ok {
		return toolregistry.Result{Success: false, Output: "phase not found in run"}, nil
	}
	data := map[string]interface{}{"state": string(ps.State)}
	if ps.Verdict != nil {
		data["verdict"] = ps.Verdict.Verdict
		data["escalation_flag"] = ps.Verdict.EscalationFlag
		data["violations"] = ps.Verdict.Violations
	}
	return toolregistry.Result{Success: true, Output: string(ps.State), Data: data}, nil
}

func (s *Supervisor) toolGetProjectHealth(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	ref := argString(args, "project_ref")
	runs, err := s.store.ListRuns()
	if err != nil {
		return toolregistry.Result{}, err
	}
	counts := map[string]int{}
	needsHuman := 0
	total := 0
	for _, r := range runs {
		if r.ProjectRef != ref {
			continue
		}
		total++
		counts[string(r.Status)]++
		if r.NeedsHuman {
			needsHuman++
		}
	}
	return toolregistry.Result{Success: true, Output: fmt.Sprintf("%d missions for project %s", total, ref),
		Data: map[string]interface{}{"total": total, "by_status": counts, "needs_human": needsHuman}}, nil
}

func (s *Supervisor) toolSetProjectPhase(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	ref := argString(args, "project_ref")
	phase := argString(args, "phase")
	entry := model.MemoryEntry{
		Scope:      model.ScopeProject,
		ProjectRef: ref,
		Key:        projectPhaseMemoryKey,
		Value:      phase,
	}
	if err := s.memory.Put(ctx, entry, selfAgent); err != nil {
		return toolregistry.Result{}, err
	}
	return toolregistry.Result{Success: true, Output: "project " + ref + " phase set to " + phase}, nil
}

func (s *Supervisor) toolSuggestNextMissions(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	ref := argString(args, "project_ref")
	phase := ""
	if entry, ok := s.memory.GetExact(model.ScopeProject, projectPhaseMemoryKey, "", ref); ok {
		phase = entry.Value
	}
	candidates := phaseCandidates[phase]
	if candidates == nil {
		candidates = phaseCandidates[""]
	}
	ifc := make([]interface{}, len(candidates))
	for i, c := range candidates {
		ifc[i] = c
	}
	return toolregistry.Result{Success: true, Output: fmt.Sprintf("candidates for phase %q: %v", phase, candidates),
		Data: map[string]interface{}{"phase": phase, "candidate_workflow_ids": ifc}}, nil
}

func (s *Supervisor) toolLaunchIdeation(workflowID string) func(context.Context, map[string]interface{}) (toolregistry.Result, error) {
	return func(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
		run, err := s.StartMission(ctx, workflowID, argString(args, "brief"),
			argString(args, "workspace_path"), argString(args, "project_ref"))
		if err != nil {
			return toolregistry.Result{}, err
		}
		return toolregistry.Result{Success: true, Output: "ideation mission started: " + run.RunID,
			Data: map[string]interface{}{"run_id": run.RunID}}, nil
	}
}
