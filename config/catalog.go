// Package config loads AgentDef/WorkflowDef bundles from YAML, applies
// environment-variable expansion and content-hash versioning, and keeps
// a live, hot-reloadable catalog the Mission Supervisor reads agents and
// workflows from. Built around the same SetDefaults/Validate two-phase
// pattern AgentDef and WorkflowDef already use, scoped to this repo's
// two definition types.
package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

const component = "config"

// Catalog is the in-memory, concurrency-safe registry of AgentDef and
// WorkflowDef values backing UpsertAgentDef/ListAgents/GetAgent and
// UpsertWorkflowDef/ListWorkflows/GetWorkflow.
type Catalog struct {
	mu sync.RWMutex

	agents       map[string]model.AgentDef
	agentHashes  map[string]string
	workflows    map[string]model.WorkflowDef
	workflowHash map[string]string
}

// New returns an empty Catalog. Callers typically follow with one or
// more LoadFile calls.
func New() *Catalog {
	return &Catalog{
		agents:       make(map[string]model.AgentDef),
		agentHashes:  make(map[string]string),
		workflows:    make(map[string]model.WorkflowDef),
		workflowHash: make(map[string]string),
	}
}

// UpsertAgentDef validates def, fills its defaults, and stores it under
// def.ID. changed is false when the incoming definition's content hash
// matches what's already stored — an idempotent no-op upsert.
func (c *Catalog) UpsertAgentDef(def model.AgentDef) (changed bool, err error) {
	def.SetDefaults()
	if err := def.Validate(); err != nil {
		return false, corerr.New(component, "UpsertAgentDef", corerr.ErrValidation, err.Error(), nil)
	}
	hash, err := model.ContentHash(def)
	if err != nil {
		return false, corerr.New(component, "UpsertAgentDef", corerr.ErrInternal, "hash agent def", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agentHashes[def.ID] == hash {
		return false, nil
	}
	c.agents[def.ID] = def
	c.agentHashes[def.ID] = hash
	return true, nil
}

// GetAgent returns the stored definition for id, or ok=false.
func (c *Catalog) GetAgent(id string) (model.AgentDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.agents[id]
	return def, ok
}

// ListAgents returns every stored agent definition, sorted by ID.
// filter, if non-nil, excludes definitions it returns false for.
func (c *Catalog) ListAgents(filter func(model.AgentDef) bool) []model.AgentDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.AgentDef, 0, len(c.agents))
	for _, def := range c.agents {
		if filter != nil && !filter(def) {
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpsertWorkflowDef validates def, fills its defaults, and stores it
// under def.ID. changed is false on a content-identical re-upsert.
func (c *Catalog) UpsertWorkflowDef(def model.WorkflowDef) (changed bool, err error) {
	def.SetDefaults()
	if err := def.Validate(); err != nil {
		return false, corerr.New(component, "UpsertWorkflowDef", corerr.ErrValidation, err.Error(), nil)
	}
	hash, err := model.ContentHash(def)
	if err != nil {
		return false, corerr.New(component, "UpsertWorkflowDef", corerr.ErrInternal, "hash workflow def", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workflowHash[def.ID] == hash {
		return false, nil
	}
	c.workflows[def.ID] = def
	c.workflowHash[def.ID] = hash
	return true, nil
}

// GetWorkflow returns the stored definition for id, or ok=false.
func (c *Catalog) GetWorkflow(id string) (model.WorkflowDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.workflows[id]
	return def, ok
}

// ListWorkflows returns every stored workflow definition, sorted by ID.
func (c *Catalog) ListWorkflows() []model.WorkflowDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.WorkflowDef, 0, len(c.workflows))
	for _, def := range c.workflows {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AgentsSnapshot returns a copy of the catalog keyed by ID, the shape
// supervisor.New expects for its static agent map.
func (c *Catalog) AgentsSnapshot() map[string]*model.AgentDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*model.AgentDef, len(c.agents))
	for id, def := range c.agents {
		d := def
		out[id] = &d
	}
	return out
}

// WorkflowsSnapshot returns a copy of the catalog keyed by ID, the shape
// supervisor.New expects for its static workflow map.
func (c *Catalog) WorkflowsSnapshot() map[string]*model.WorkflowDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*model.WorkflowDef, len(c.workflows))
	for id, def := range c.workflows {
		d := def
		out[id] = &d
	}
	return out
}

func (c *Catalog) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("config.Catalog{agents=%d, workflows=%d}", len(c.agents), len(c.workflows))
}
