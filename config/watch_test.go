package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.yaml")
	if err := os.WriteFile(path, []byte("agents:\n  - id: a1\n    provider: openai\n    model: gpt-4\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := New()
	if _, err := c.LoadFile(path); err != nil {
		t.Fatalf("LoadFile initial: %v", err)
	}

	w, err := NewWatcher(path, c, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	stop, err := w.Watch()
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	if err := os.WriteFile(path, []byte("agents:\n  - id: a1\n    provider: openai\n    model: gpt-4-turbo\n"), 0o644); err != nil {
		t.Fatalf("WriteFile update: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if agent, ok := c.GetAgent("a1"); ok && agent.Model == "gpt-4-turbo" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("watcher did not reload the updated definition in time")
}
