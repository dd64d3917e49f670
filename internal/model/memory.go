package model

import "time"

// MemoryScope is one of the five scopes a memory entry can live in.
// "ephemeral" and "run" (both the in-memory run scratchpad) and
// "session" never reach durable storage; only "project" and "global" do.
type MemoryScope string

const (
	ScopeEphemeral MemoryScope = "ephemeral"
	ScopeRun       MemoryScope = "run"
	ScopeProject   MemoryScope = "project"
	ScopeGlobal    MemoryScope = "global"
	ScopeSession   MemoryScope = "session"
)

// MemoryEntry is one key/value record in the Memory Store.
type MemoryEntry struct {
	Scope       MemoryScope `json:"scope"`
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	AuthorAgent string      `json:"author_agent"`
	Confidence  float64     `json:"confidence"`
	CreatedAt   time.Time   `json:"created_at"`

	// RunID/ProjectRef scope the entry when Scope is "run" or "project".
	RunID      string `json:"run_id,omitempty"`
	ProjectRef string `json:"project_ref,omitempty"`
}

// ToolCallAudit is the append-only audit record for one tool invocation.
type ToolCallAudit struct {
	AgentID         string    `json:"agent_id"`
	RunID           string    `json:"run_id"`
	ToolName        string    `json:"tool_name"`
	ArgumentsDigest string    `json:"arguments_digest"`
	ResultSummary   string    `json:"result_summary"`
	Success         bool      `json:"success"`
	DurationMS      int64     `json:"duration_ms"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
