package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/macaron-software/agentcore/config"
	"github.com/macaron-software/agentcore/internal/bus"
	"github.com/macaron-software/agentcore/internal/executor"
	"github.com/macaron-software/agentcore/internal/gateway"
	"github.com/macaron-software/agentcore/internal/memory"
	"github.com/macaron-software/agentcore/internal/model"
	"github.com/macaron-software/agentcore/internal/obslog"
	"github.com/macaron-software/agentcore/internal/store"
	"github.com/macaron-software/agentcore/internal/supervisor"
	"github.com/macaron-software/agentcore/internal/toolregistry"
)

// app bundles the long-lived services a composition root needs to shut
// down in reverse wiring order.
type app struct {
	store      *store.Store
	catalog    *config.Catalog
	watcher    *config.Watcher
	stopWatch  func()
	supervisor *supervisor.Supervisor
	shutdownTracing func(context.Context) error
	logger     *slog.Logger
}

// build wires C1..C7 from environment variables: the Model Gateway, Tool
// Registry, durable store, message bus, memory store, definition
// catalog, Agent Executor, and Mission Supervisor, then resumes any
// non-terminal runs left over from a prior process. Grounded on the
// teacher's cmd/hector/main.go ServeCmd.Run wiring sequence, rebuilt
// around this repo's own C1-C7 services instead of hector's HTTP/MCP
// server stack.
func build(ctx context.Context) (*app, error) {
	if err := config.LoadEnvFiles(""); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	logger := obslog.New(os.Stdout, envOr("AGENTCORE_LOG_LEVEL", "info"), envOr("AGENTCORE_LOG_FORMAT", "text"))

	var tracing *obslog.Tracing
	var shutdownTracing func(context.Context) error
	if os.Getenv("AGENTCORE_TRACING") == "stdout" {
		t, shutdown, err := obslog.NewStdoutTracing(ctx)
		if err != nil {
			return nil, fmt.Errorf("start tracing: %w", err)
		}
		tracing, shutdownTracing = t, shutdown
	} else {
		tracing = obslog.NewNoop()
	}

	dbPath := envOr("AGENTCORE_DB_PATH", "agentcore.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	b := bus.New(
		bus.WithCapacity(envOrInt("MAILBOX_CAPACITY", bus.DefaultMailboxCapacity)),
		bus.WithPersist(st.AppendMessage),
	)

	mem := memory.New(
		memory.WithProjectPersist(st.PutMemoryEntry),
		memory.WithGlobalPersist(st.PutMemoryEntry),
	)

	tools := toolregistry.New(func(rec toolregistry.AuditRecord) {
		// AuditRecord carries no result summary; the registry only sees
		// success/failure and a digest, never the raw tool output.
		audit := model.ToolCallAudit{
			AgentID:         rec.AgentID,
			RunID:           rec.RunID,
			ToolName:        rec.ToolName,
			ArgumentsDigest: rec.ArgumentsDigest,
			Success:         rec.Success,
			DurationMS:      rec.DurationMS,
			ErrorKind:       rec.ErrorKind,
			Timestamp:       rec.Timestamp,
		}
		if err := st.AppendToolCall(audit); err != nil {
			logger.Warn("failed to persist tool call audit", "error", err, "tool", rec.ToolName)
		}
	})
	if err := memory.RegisterTools(tools, mem); err != nil {
		return nil, fmt.Errorf("register memory tools: %w", err)
	}

	providers, chain, err := buildProviders()
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	gw, err := gateway.New(providers, chain, gateway.WithTracing(tracing))
	if err != nil {
		return nil, fmt.Errorf("build gateway: %w", err)
	}

	exec := executor.New()

	catalog := config.New()
	bundlePath := os.Getenv("AGENTCORE_BUNDLE_PATH")
	if bundlePath == "" {
		return nil, fmt.Errorf("AGENTCORE_BUNDLE_PATH is required")
	}
	if _, err := catalog.LoadFile(bundlePath); err != nil {
		return nil, fmt.Errorf("load bundle %s: %w", bundlePath, err)
	}

	var watcher *config.Watcher
	var stopWatch func()
	if os.Getenv("AGENTCORE_WATCH") == "true" {
		w, err := config.NewWatcher(bundlePath, catalog, logger)
		if err != nil {
			return nil, fmt.Errorf("build watcher: %w", err)
		}
		stop, err := w.Watch()
		if err != nil {
			return nil, fmt.Errorf("start watcher: %w", err)
		}
		watcher, stopWatch = w, stop
	}

	sup := supervisor.New(st, b, mem, tools, gw, exec,
		catalog.AgentsSnapshot(), catalog.WorkflowsSnapshot(),
		supervisor.WithLogger(logger))
	if err := sup.RegisterTools(tools); err != nil {
		return nil, fmt.Errorf("register mission tools: %w", err)
	}
	if err := sup.ResumeOnRestart(ctx); err != nil {
		return nil, fmt.Errorf("resume runs: %w", err)
	}

	return &app{
		store:           st,
		catalog:         catalog,
		watcher:         watcher,
		stopWatch:       stopWatch,
		supervisor:      sup,
		shutdownTracing: shutdownTracing,
		logger:          logger,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Warn("tracing shutdown failed", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", "error", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
