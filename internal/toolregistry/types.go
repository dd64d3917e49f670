// Package toolregistry implements the Tool Registry (C2): a catalogue of
// callable tools with JSON Schema argument descriptors, an ACL gate, a
// path sandbox for filesystem-touching tools, per-run quotas, and an
// audit trail of every dispatch.
package toolregistry

import (
	"context"
	"time"
)

// Descriptor is what the Model Gateway sends to a provider as a callable
// tool, and what a human reads to understand a tool's contract.
type Descriptor struct {
	Name        string
	Description string
	Schema      []byte // JSON Schema for the arguments object
	Mutates     bool   // true for write_file/edit_file/git_commit-class tools, counts against the write quota
}

// Tool is one callable capability. Implementations never enforce
// ACL/quota themselves — the Registry's Dispatch does that uniformly
// before Run is reached; path confinement is each file tool's own
// ResolvePath call.
type Tool interface {
	Descriptor() Descriptor
	Run(ctx context.Context, args map[string]interface{}) (Result, error)
}

// Result is a tool's outcome.
type Result struct {
	Success bool
	Output  string
	Data    map[string]interface{}
}

// CallContext carries the identity and budget a dispatch is evaluated
// against.
type CallContext struct {
	RunID         string
	AgentID       string
	AllowedTools  []string // from AgentDef.Tools; empty means "all registered tools"
	WorkspacePath string   // sandbox root for path-confined tools
	Timeout       time.Duration
}

// AuditRecord is what Dispatch appends after every call, successful or
// not, and mirrored into model.ToolCallAudit by the caller.
type AuditRecord struct {
	AgentID         string
	RunID           string
	ToolName        string
	ArgumentsDigest string
	Success         bool
	DurationMS      int64
	ErrorKind       string
	Timestamp       time.Time
}
