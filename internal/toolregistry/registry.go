package toolregistry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/registry"
)

const component = "toolregistry"

// defaultTimeouts covers the two slow tool classes explicitly; any tool
// not listed here gets timeoutOther.
var defaultTimeouts = map[string]time.Duration{
	"run_build":  300 * time.Second,
	"run_tests":  300 * time.Second,
	"read_file":  30 * time.Second,
	"write_file": 30 * time.Second,
	"edit_file":  30 * time.Second,
}

const timeoutOther = 30 * time.Second

// Registry is the Tool Registry (C2), built on the generic
// BaseRegistry[T] store.
type Registry struct {
	*registry.BaseRegistry[Tool]
	mu      sync.RWMutex
	quotas  *quotaTracker
	onAudit func(AuditRecord)
}

// New builds an empty Registry. onAudit, if non-nil, is invoked after
// every dispatch (success or failure) with the resulting AuditRecord.
func New(onAudit func(AuditRecord)) *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Tool](),
		quotas:       newQuotaTracker(DefaultMaxCalls, DefaultMaxWrites),
		onAudit:      onAudit,
	}
}

// RegisterTool adds a tool under its own declared name.
func (r *Registry) RegisterTool(t Tool) error {
	d := t.Descriptor()
	if d.Name == "" {
		return corerr.New(component, "RegisterTool", corerr.ErrValidation, "tool has empty name", nil)
	}
	return r.Register(d.Name, t)
}

// Descriptors returns every registered tool's descriptor, sorted by
// name, for handing to the Model Gateway as the available tool set.
func (r *Registry) Descriptors() []Descriptor {
	var out []Descriptor
	for _, t := range r.List() {
		out = append(out, t.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func allowed(allowList []string, name string) bool {
	if len(allowList) == 0 {
		return true
	}
	for _, n := range allowList {
		if n == name {
			return true
		}
	}
	return false
}

func digestArgs(args map[string]interface{}) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "unmarshalable"
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

// Dispatch is the uniform contract every call goes through: ACL check,
// quota reservation, timeout enforcement, then Run, with an audit
// record emitted regardless of outcome. Path confinement is each tool's
// own responsibility via ResolvePath, since only file-touching tools
// have a workspace-relative argument to confine.
func (r *Registry) Dispatch(ctx context.Context, cc CallContext, toolName string, args map[string]interface{}) (Result, error) {
	start := time.Now()
	digest := digestArgs(args)

	record := func(success bool, errKind string) {
		if r.onAudit == nil {
			return
		}
		r.onAudit(AuditRecord{
			AgentID:         cc.AgentID,
			RunID:           cc.RunID,
			ToolName:        toolName,
			ArgumentsDigest: digest,
			Success:         success,
			DurationMS:      time.Since(start).Milliseconds(),
			ErrorKind:       errKind,
			Timestamp:       start,
		})
	}

	if !allowed(cc.AllowedTools, toolName) {
		err := corerr.New(component, "Dispatch", corerr.ErrToolForbidden, "agent not permitted to call "+toolName, nil)
		record(false, "tool_forbidden")
		return Result{}, err
	}

	tool, ok := r.Get(toolName)
	if !ok {
		err := corerr.New(component, "Dispatch", corerr.ErrNotFound, "unknown tool "+toolName, nil)
		record(false, "not_found")
		return Result{}, err
	}
	desc := tool.Descriptor()

	if !r.quotas.Reserve(cc.RunID, desc.Mutates) {
		err := corerr.New(component, "Dispatch", corerr.ErrQuotaExceeded, "per-run tool quota exceeded for "+toolName, nil)
		record(false, "quota_exceeded")
		return Result{}, err
	}

	timeout := cc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeouts[toolName]
		if timeout <= 0 {
			timeout = timeoutOther
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := tool.Run(callCtx, args)
	if err != nil {
		kind := "internal"
		if errors.Is(err, corerr.ErrTimedOut) || callCtx.Err() != nil {
			kind = "timed_out"
		}
		record(false, kind)
		return result, err
	}

	record(result.Success, "")
	return result, nil
}

// QuotaUsage reports how much of a run's call/write budget is consumed.
func (r *Registry) QuotaUsage(runID string) (calls, writes int) {
	return r.quotas.Usage(runID)
}

// ReleaseRun clears quota bookkeeping for a run that has reached a
// terminal status.
func (r *Registry) ReleaseRun(runID string) {
	r.quotas.Reset(runID)
}
