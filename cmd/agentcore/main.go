// Command agentcore is the composition root: it wires the Model Gateway,
// Tool Registry, durable store, message bus, memory store, definition
// catalog, Agent Executor, and Mission Supervisor for local/demo use,
// then blocks until interrupted. It is deliberately not a full CLI —
// there is no subcommand surface here, only environment-variable
// configuration, matching the scope this repo's distillation kept.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agentcore:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	a, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	a.logger.Info("agentcore ready",
		"agents", len(a.catalog.AgentsSnapshot()),
		"workflows", len(a.catalog.WorkflowsSnapshot()))

	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}
