package pattern

import (
	"context"
	"testing"

	"github.com/macaron-software/agentcore/internal/bus"
	"github.com/macaron-software/agentcore/internal/executor"
	"github.com/macaron-software/agentcore/internal/gateway"
	"github.com/macaron-software/agentcore/internal/memory"
	"github.com/macaron-software/agentcore/internal/model"
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

func textStream(text string) (<-chan gateway.StreamChunk, error) {
	ch := make(chan gateway.StreamChunk, 2)
	ch <- gateway.StreamChunk{TextDelta: text}
	ch <- gateway.StreamChunk{Done: true, Usage: &gateway.CompletionUsage{InputTokens: 1, OutputTokens: 1}}
	close(ch)
	return ch, nil
}

func newAgent(id string, vetoClass model.VetoClass) *model.AgentDef {
	return &model.AgentDef{
		ID:           id,
		Model:        "m",
		SystemPrompt: id,
		MaxTokens:    256,
		VetoClass:    vetoClass,
	}
}

// newHarness builds a NodeContext wired to a stub gateway whose replies
// are produced by sendFn, for the given phase and agent roster.
func newHarness(t *testing.T, phase model.Phase, agents map[string]*model.AgentDef, sendFn func(ctx context.Context, req gateway.CompletionRequest) (<-chan gateway.StreamChunk, error)) NodeContext {
	t.Helper()
	provider := &stubProvider{id: "primary", sendFn: sendFn}
	gw, err := gateway.New([]gateway.Provider{provider}, []string{"primary"})
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}

	wf := &model.WorkflowDef{ID: "wf-1", Phases: []model.Phase{phase}}
	run := model.NewPatternRun("run-1", wf, "brief", t.TempDir(), "")

	b := bus.New()
	for _, id := range phase.Participants {
		b.Register(id)
	}
	if phase.Orchestrator != "" {
		b.Register(phase.Orchestrator)
	}

	return NodeContext{
		Run:           run,
		Phase:         phase,
		Agents:        agents,
		Bus:           b,
		Memory:        memory.New(),
		Tools:         toolregistry.New(nil),
		Gateway:       gw,
		Executor:      executor.New(),
		WorkspacePath: t.TempDir(),
		Brief:         "brief",
	}
}
