package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

func TestPut_RunScratchRequiresRunID(t *testing.T) {
	s := New()
	err := s.Put(context.Background(), model.MemoryEntry{Scope: model.ScopeRun, Key: "k", Value: "v"}, nil)
	if !errors.Is(err, corerr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPut_RunScratchRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	entry := model.MemoryEntry{Scope: model.ScopeRun, Key: "plan", Value: "build the widget", RunID: "run-1"}
	if err := s.Put(ctx, entry, nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := s.GetExact(model.ScopeRun, "plan", "run-1", "")
	if !ok {
		t.Fatal("expected entry to round-trip")
	}
	if got.Value != "build the widget" {
		t.Fatalf("value = %q", got.Value)
	}
}

func TestPut_ProjectRequiresWriteFlag(t *testing.T) {
	s := New()
	agent := &model.AgentDef{ID: "a1"}
	entry := model.MemoryEntry{Scope: model.ScopeProject, Key: "k", Value: "v", ProjectRef: "proj-1"}
	err := s.Put(context.Background(), entry, agent)
	if !errors.Is(err, corerr.ErrToolForbidden) {
		t.Fatalf("expected tool_forbidden, got %v", err)
	}

	agent.CanWriteProjectMemory = true
	if err := s.Put(context.Background(), entry, agent); err != nil {
		t.Fatalf("Put with write flag: %v", err)
	}
	got, ok := s.GetExact(model.ScopeProject, "k", "", "proj-1")
	if !ok || got.AuthorAgent != "a1" {
		t.Fatalf("entry = %+v ok=%v", got, ok)
	}
}

func TestPut_GlobalRejectsNonSupervisorWriter(t *testing.T) {
	s := New()
	agent := &model.AgentDef{ID: "a1", CanWriteProjectMemory: true}
	entry := model.MemoryEntry{Scope: model.ScopeGlobal, Key: "k", Value: "v"}
	err := s.Put(context.Background(), entry, agent)
	if !errors.Is(err, corerr.ErrToolForbidden) {
		t.Fatalf("expected tool_forbidden for agent-authored global write, got %v", err)
	}
	if err := s.Put(context.Background(), entry, nil); err != nil {
		t.Fatalf("supervisor (nil writer) global write: %v", err)
	}
}

func TestGetPrefix_OrdersNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	first := model.MemoryEntry{Scope: model.ScopeRun, Key: "note/1", Value: "a", RunID: "run-1"}
	second := model.MemoryEntry{Scope: model.ScopeRun, Key: "note/2", Value: "b", RunID: "run-1"}
	first.CreatedAt = time.Now()
	if err := s.Put(ctx, first, nil); err != nil {
		t.Fatal(err)
	}
	second.CreatedAt = first.CreatedAt.Add(1)
	if err := s.Put(ctx, second, nil); err != nil {
		t.Fatal(err)
	}

	got := s.GetPrefix(model.ScopeRun, "note/", "run-1", "")
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Key != "note/2" {
		t.Fatalf("expected newest first, got %q first", got[0].Key)
	}
}

func TestSearch_RanksByOverlap(t *testing.T) {
	s := New()
	ctx := context.Background()
	entries := []model.MemoryEntry{
		{Scope: model.ScopeRun, Key: "a", Value: "the widget assembly uses a torque wrench", RunID: "run-1"},
		{Scope: model.ScopeRun, Key: "b", Value: "lunch options near the office", RunID: "run-1"},
	}
	for _, e := range entries {
		if err := s.Put(ctx, e, nil); err != nil {
			t.Fatal(err)
		}
	}

	results, err := s.Search(ctx, model.ScopeRun, "torque wrench widget", "run-1", "", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].Key != "a" {
		t.Fatalf("expected entry 'a' to rank first, got %+v", results)
	}
}

func TestReleaseRun_ClearsScratchAndIndex(t *testing.T) {
	s := New()
	ctx := context.Background()
	entry := model.MemoryEntry{Scope: model.ScopeRun, Key: "k", Value: "v", RunID: "run-1"}
	if err := s.Put(ctx, entry, nil); err != nil {
		t.Fatal(err)
	}
	s.ReleaseRun("run-1")
	if _, ok := s.GetExact(model.ScopeRun, "k", "run-1", ""); ok {
		t.Fatal("expected entry to be gone after ReleaseRun")
	}
}

func TestSessionScratch_NeverDurable(t *testing.T) {
	s := New()
	s.PutSession("sess-1", "scratch", "intermediate thought")
	v, ok := s.GetSession("sess-1", "scratch")
	if !ok || v != "intermediate thought" {
		t.Fatalf("GetSession = %q, %v", v, ok)
	}
	s.ReleaseSession("sess-1")
	if _, ok := s.GetSession("sess-1", "scratch"); ok {
		t.Fatal("expected session scratch to be released")
	}
}
