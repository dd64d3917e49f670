package toolregistry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/macaron-software/agentcore/internal/corerr"
)

func newTestRegistry(t *testing.T) (*Registry, *[]AuditRecord) {
	t.Helper()
	var audits []AuditRecord
	r := New(func(a AuditRecord) { audits = append(audits, a) })
	if err := r.RegisterBuiltins(); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	return r, &audits
}

func TestDispatch_WriteThenReadFile(t *testing.T) {
	dir := t.TempDir()
	r, _ := newTestRegistry(t)
	ctx := WithWorkspace(context.Background(), dir)
	cc := CallContext{RunID: "run-1", AgentID: "agent-1", WorkspacePath: dir}

	_, err := r.Dispatch(ctx, cc, "write_file", map[string]interface{}{"path": "out.txt", "content": "hello"})
	if err != nil {
		t.Fatalf("write_file: %v", err)
	}

	result, err := r.Dispatch(ctx, cc, "read_file", map[string]interface{}{"path": "out.txt"})
	if err != nil {
		t.Fatalf("read_file: %v", err)
	}
	if result.Output != "hello" {
		t.Errorf("got %q, want %q", result.Output, "hello")
	}
}

func TestDispatch_PathEscapeRejected(t *testing.T) {
	dir := t.TempDir()
	r, _ := newTestRegistry(t)
	ctx := WithWorkspace(context.Background(), dir)
	cc := CallContext{RunID: "run-1", AgentID: "agent-1", WorkspacePath: dir}

	_, err := r.Dispatch(ctx, cc, "read_file", map[string]interface{}{"path": "../../etc/passwd"})
	if !errors.Is(err, corerr.ErrPathEscape) {
		t.Errorf("expected path_escape, got %v", err)
	}
}

func TestDispatch_ACLForbidsUnlistedTool(t *testing.T) {
	r, _ := newTestRegistry(t)
	cc := CallContext{RunID: "run-1", AgentID: "agent-1", AllowedTools: []string{"read_file"}}

	_, err := r.Dispatch(context.Background(), cc, "write_file", map[string]interface{}{"path": "x", "content": "y"})
	if !errors.Is(err, corerr.ErrToolForbidden) {
		t.Errorf("expected tool_forbidden, got %v", err)
	}
}

func TestDispatch_QuotaExceeded(t *testing.T) {
	dir := t.TempDir()
	r := New(nil)
	if err := r.RegisterTool(NewReadFileTool()); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.quotas = newQuotaTracker(2, 2)
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	ctx := WithWorkspace(context.Background(), dir)
	cc := CallContext{RunID: "run-1", WorkspacePath: dir}

	for i := 0; i < 2; i++ {
		if _, err := r.Dispatch(ctx, cc, "read_file", map[string]interface{}{"path": "f.txt"}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := r.Dispatch(ctx, cc, "read_file", map[string]interface{}{"path": "f.txt"}); !errors.Is(err, corerr.ErrQuotaExceeded) {
		t.Errorf("expected quota_exceeded on the third call, got %v", err)
	}
}

func TestDispatch_AuditRecordedOnSuccessAndFailure(t *testing.T) {
	dir := t.TempDir()
	r, audits := newTestRegistry(t)
	ctx := WithWorkspace(context.Background(), dir)
	cc := CallContext{RunID: "run-1", WorkspacePath: dir}

	if _, err := r.Dispatch(ctx, cc, "write_file", map[string]interface{}{"path": "a.txt", "content": "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := r.Dispatch(ctx, cc, "read_file", map[string]interface{}{"path": "missing.txt"}); err == nil {
		t.Fatal("expected error reading missing file")
	}

	if len(*audits) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(*audits))
	}
	if !(*audits)[0].Success || (*audits)[1].Success {
		t.Errorf("unexpected audit success flags: %+v", *audits)
	}
}

func TestEditFile_RequiresUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("foo foo"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r, _ := newTestRegistry(t)
	ctx := WithWorkspace(context.Background(), dir)
	cc := CallContext{RunID: "run-1", WorkspacePath: dir}

	_, err := r.Dispatch(ctx, cc, "edit_file", map[string]interface{}{"path": "f.txt", "find": "foo", "replace": "bar"})
	if !errors.Is(err, corerr.ErrInvalidArguments) {
		t.Errorf("expected invalid_arguments for a non-unique match, got %v", err)
	}
}

func TestDescriptors_SortedByName(t *testing.T) {
	r, _ := newTestRegistry(t)
	descs := r.Descriptors()
	for i := 1; i < len(descs); i++ {
		if descs[i-1].Name > descs[i].Name {
			t.Errorf("descriptors not sorted: %s before %s", descs[i-1].Name, descs[i].Name)
		}
	}
}
