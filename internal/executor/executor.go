// Package executor implements the Agent Executor (C5): a bounded
// reason-act loop that drives one agent through repeated calls to the
// Model Gateway (C1), interleaved with tool dispatch through the Tool
// Registry (C2), reading and writing the Message Bus (C3) and Memory
// Store (C4) as it goes.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/macaron-software/agentcore/internal/bus"
	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/gateway"
	"github.com/macaron-software/agentcore/internal/memory"
	"github.com/macaron-software/agentcore/internal/model"
	"github.com/macaron-software/agentcore/internal/toolregistry"
)

const component = "executor"

// DefaultMaxRounds bounds a single Run call absent an explicit override.
const DefaultMaxRounds = 15

// maxHistoryMessages caps how many prior chat turns are carried forward
// within one Run call, so a long-running loop's prompt doesn't grow
// without bound.
const maxHistoryMessages = 50

// ExitReason is why Run returned.
type ExitReason string

const (
	ExitTerminalMessage ExitReason = "terminal_message"
	ExitRoundsExhausted ExitReason = "rounds_exhausted"
	ExitCancelled       ExitReason = "cancelled"
	ExitLLMUnavailable  ExitReason = "llm_unavailable"
)

// VerdictLexicon is the set of leading tokens that turn a plain-text
// response into a veto or approval message instead of an inform.
// Detection is case-insensitive and matches at the start of the
// response's first non-empty line.
type VerdictLexicon struct {
	VetoTokens    []string
	ApproveTokens []string
}

// DefaultVerdictLexicon is the lexicon used when a PhaseContext doesn't
// override one.
func DefaultVerdictLexicon() VerdictLexicon {
	return VerdictLexicon{
		VetoTokens:    []string{"[veto]", "nogo", "no-go"},
		ApproveTokens: []string{"[approve]", "statut: go"},
	}
}

// PhaseContext gives one agent invocation access to the run's shared
// services, scoped to a single run and phase.
type PhaseContext struct {
	RunID         string
	PhaseID       string
	WorkspacePath string
	ProjectRef    string
	Bus           *bus.Bus
	Memory        *memory.Store
	Tools         *toolregistry.Registry
	Gateway       *gateway.Gateway
	Lexicon       VerdictLexicon
	MaxRounds     int
	// OnUsage, if set, is called after every completion with the
	// round's token/cost delta so the caller can fold it into the
	// owning PatternRun's usage counters.
	OnUsage func(inputTokens, outputTokens int64, costUSD float64)
}

// Executor drives one agent through the reason-act loop.
type Executor struct{}

// New builds an Executor. Stateless: a single Executor value is safe to
// reuse across concurrent Run calls.
func New() *Executor { return &Executor{} }

// Run executes agent's reason-act loop against pc until it reaches a
// terminal state. initialPrompt seeds the first round.
func (e *Executor) Run(ctx context.Context, agent *model.AgentDef, pc PhaseContext, initialPrompt string) (ExitReason, error) {
	maxRounds := pc.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	lexicon := pc.Lexicon
	if len(lexicon.VetoTokens) == 0 && len(lexicon.ApproveTokens) == 0 {
		lexicon = DefaultVerdictLexicon()
	}

	sessionID := pc.RunID + ":" + pc.PhaseID + ":" + agent.ID
	defer pc.Memory.ReleaseSession(sessionID)

	history := []gateway.ChatMessage{{Role: gateway.RoleUser, Content: initialPrompt}}

	for round := 0; round < maxRounds; round++ {
		select {
		case <-ctx.Done():
			return ExitCancelled, nil
		default:
		}

		history = append(history, e.drainInbox(pc, agent.ID)...)
		history = capHistory(history)

		messages := append(e.systemMessages(ctx, agent, pc, initialPrompt), history...)
		req := gateway.CompletionRequest{
			RunID:       pc.RunID,
			Model:       agent.Model,
			Messages:    messages,
			Tools:       e.toolSchemas(agent, pc.Tools),
			MaxTokens:   agent.MaxTokens,
			Temperature: agent.Temperature,
		}

		result, err := pc.Gateway.Complete(ctx, req)
		if err != nil {
			if errors.Is(err, corerr.ErrProvidersExhausted) {
				return ExitLLMUnavailable, nil
			}
			return "", corerr.New(component, "Run", corerr.ErrInternal, "completion request failed", err)
		}

		text, toolCalls, usage, streamErr := e.streamToBus(pc, agent, result.Stream)
		if streamErr != nil {
			return "", corerr.New(component, "Run", corerr.ErrInternal, "stream completion", streamErr)
		}
		if usage != nil && pc.OnUsage != nil {
			pc.OnUsage(int64(usage.InputTokens), int64(usage.OutputTokens), usage.CostUSD)
		}

		if kind, ok := detectVerdict(text, lexicon); ok {
			e.publishTerminal(pc, agent, kind, text)
			return ExitTerminalMessage, nil
		}

		if len(toolCalls) == 0 {
			e.publishTerminal(pc, agent, model.KindInform, text)
			return ExitTerminalMessage, nil
		}

		if text != "" {
			history = append(history, gateway.ChatMessage{Role: gateway.RoleAssistant, Content: text})
		}
		for _, tc := range toolCalls {
			history = append(history, e.dispatchTool(ctx, pc, agent, tc))
		}
	}
	return ExitRoundsExhausted, nil
}

// systemMessages assembles the system prompt plus any memory excerpts
// relevant to the initial prompt, step 1 of the reason-act loop.
func (e *Executor) systemMessages(ctx context.Context, agent *model.AgentDef, pc PhaseContext, initialPrompt string) []gateway.ChatMessage {
	out := []gateway.ChatMessage{{Role: gateway.RoleSystem, Content: agent.SystemPrompt}}

	if pc.Memory == nil {
		return out
	}
	excerpts, err := pc.Memory.Search(ctx, model.ScopeRun, initialPrompt, pc.RunID, pc.ProjectRef, 3)
	if err != nil || len(excerpts) == 0 {
		return out
	}
	var b strings.Builder
	b.WriteString("Relevant memory:\n")
	for _, ex := range excerpts {
		b.WriteString("- ")
		b.WriteString(ex.Key)
		b.WriteString(": ")
		b.WriteString(ex.Value)
		b.WriteString("\n")
	}
	return append(out, gateway.ChatMessage{Role: gateway.RoleSystem, Content: b.String()})
}

// drainInbox folds newly arrived bus messages addressed to agentID in
// this phase into the conversation.
func (e *Executor) drainInbox(pc PhaseContext, agentID string) []gateway.ChatMessage {
	var out []gateway.ChatMessage
	for _, msg := range pc.Bus.Drain(agentID) {
		if msg.PhaseID != pc.PhaseID {
			continue
		}
		out = append(out, gateway.ChatMessage{Role: gateway.RoleUser, Content: msg.FromAgent + ": " + msg.Content})
	}
	return out
}

func capHistory(history []gateway.ChatMessage) []gateway.ChatMessage {
	if len(history) <= maxHistoryMessages {
		return history
	}
	return history[len(history)-maxHistoryMessages:]
}

func (e *Executor) toolSchemas(agent *model.AgentDef, tools *toolregistry.Registry) []gateway.ToolSchema {
	if tools == nil || len(agent.Tools) == 0 {
		return nil
	}
	var out []gateway.ToolSchema
	for _, d := range tools.Descriptors() {
		if !agent.HasTool(d.Name) {
			continue
		}
		out = append(out, gateway.ToolSchema{Name: d.Name, Description: d.Description, Parameters: d.Schema})
	}
	return out
}

// streamToBus reads result to completion, forwarding each text delta to
// observers as a token_delta system message and returning the assembled
// text, tool calls, and usage from the terminal chunk.
func (e *Executor) streamToBus(pc PhaseContext, agent *model.AgentDef, stream <-chan gateway.StreamChunk) (string, []gateway.ToolCallRequest, *gateway.CompletionUsage, error) {
	var text strings.Builder
	var toolCalls []gateway.ToolCallRequest
	var usage *gateway.CompletionUsage

	for chunk := range stream {
		if chunk.TextDelta != "" {
			text.WriteString(chunk.TextDelta)
			_ = pc.Bus.Publish(model.Message{
				ID:        model.NewID(),
				RunID:     pc.RunID,
				PhaseID:   pc.PhaseID,
				FromAgent: agent.ID,
				Kind:      model.KindSystem,
				Content:   chunk.TextDelta,
				Metadata:  map[string]string{"type": "token_delta"},
				Timestamp: time.Now(),
			})
		}
		if chunk.Done {
			toolCalls = chunk.ToolCalls
			usage = chunk.Usage
			if chunk.Err != nil {
				return text.String(), nil, usage, chunk.Err
			}
		}
	}
	return text.String(), toolCalls, usage, nil
}

// publishTerminal publishes the final, complete message for this round
// so late subscribers see the whole content, not just the token deltas.
func (e *Executor) publishTerminal(pc PhaseContext, agent *model.AgentDef, kind model.MessageKind, content string) {
	msg := model.Message{
		ID:        model.NewID(),
		RunID:     pc.RunID,
		PhaseID:   pc.PhaseID,
		FromAgent: agent.ID,
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now(),
	}
	msg.NormalizePriority()
	_ = pc.Bus.Publish(msg)
}

// dispatchTool runs one model-requested tool call through the Tool
// Registry, publishing tool_call/tool_result messages tagged so a UI
// can collapse them, and returns the result as the tool-role chat
// message the next round's prompt needs.
func (e *Executor) dispatchTool(ctx context.Context, pc PhaseContext, agent *model.AgentDef, tc gateway.ToolCallRequest) gateway.ChatMessage {
	var args map[string]interface{}
	if len(tc.Arguments) > 0 {
		_ = json.Unmarshal(tc.Arguments, &args)
	}

	callCtx := toolregistry.WithWorkspace(ctx, pc.WorkspacePath)
	callCtx = memory.WithCaller(callCtx, memory.Caller{Agent: agent, RunID: pc.RunID, ProjectRef: pc.ProjectRef})

	callMsg := model.Message{
		ID:        model.NewID(),
		RunID:     pc.RunID,
		PhaseID:   pc.PhaseID,
		FromAgent: agent.ID,
		Kind:      model.KindToolCall,
		Content:   tc.Name,
		Metadata:  map[string]string{"tool_call_id": tc.ID, "arguments": string(tc.Arguments)},
		Timestamp: time.Now(),
	}
	callMsg.NormalizePriority()
	_ = pc.Bus.Publish(callMsg)

	result, err := pc.Tools.Dispatch(callCtx, toolregistry.CallContext{
		RunID:         pc.RunID,
		AgentID:       agent.ID,
		AllowedTools:  agent.Tools,
		WorkspacePath: pc.WorkspacePath,
	}, tc.Name, args)

	output := result.Output
	success := result.Success
	if err != nil {
		success = false
		output = err.Error()
	}

	resultMsg := model.Message{
		ID:        model.NewID(),
		RunID:     pc.RunID,
		PhaseID:   pc.PhaseID,
		FromAgent: agent.ID,
		Kind:      model.KindToolResult,
		Content:   output,
		Metadata:  map[string]string{"tool_call_id": tc.ID, "tool_name": tc.Name, "success": strconv.FormatBool(success)},
		Timestamp: time.Now(),
	}
	resultMsg.NormalizePriority()
	_ = pc.Bus.Publish(resultMsg)

	return gateway.ChatMessage{Role: gateway.RoleTool, Content: output, ToolCallID: tc.ID}
}
