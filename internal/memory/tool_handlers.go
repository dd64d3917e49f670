package memory

import (
	"context"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
	"github.com/macaron-software/agentcore/internal/toolregistry"
)

const toolComponent = "memory.tools"

func (s *Store) searchTool(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	caller := callerFrom(ctx)
	scopeStr, _ := args["scope"].(string)
	query, _ := args["query"].(string)
	if scopeStr == "" || query == "" {
		return toolregistry.Result{}, corerr.New(toolComponent, "memory_search", corerr.ErrInvalidArguments, "scope and query are required", nil)
	}
	topK := 5
	if v, ok := args["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}

	scope, err := parseSearchScope(scopeStr)
	if err != nil {
		return toolregistry.Result{}, err
	}

	entries, err := s.Search(ctx, scope, query, caller.RunID, caller.ProjectRef, topK)
	if err != nil {
		return toolregistry.Result{}, err
	}
	return toolregistry.Result{Success: true, Output: formatEntries(entries), Data: map[string]interface{}{"entries": entries}}, nil
}

func (s *Store) storeTool(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	caller := callerFrom(ctx)
	scopeStr, _ := args["scope"].(string)
	key, _ := args["key"].(string)
	value, _ := args["value"].(string)
	if scopeStr == "" || key == "" || value == "" {
		return toolregistry.Result{}, corerr.New(toolComponent, "memory_store", corerr.ErrInvalidArguments, "scope, key, and value are required", nil)
	}
	confidence := 1.0
	if v, ok := args["confidence"].(float64); ok && v > 0 {
		confidence = v
	}

	scope, err := parseWriteScope(scopeStr)
	if err != nil {
		return toolregistry.Result{}, err
	}

	entry := model.MemoryEntry{
		Scope:      scope,
		Key:        key,
		Value:      value,
		Confidence: confidence,
		RunID:      caller.RunID,
		ProjectRef: caller.ProjectRef,
	}
	if err := s.Put(ctx, entry, caller.Agent); err != nil {
		return toolregistry.Result{}, err
	}
	return toolregistry.Result{Success: true, Output: "stored " + key + " in " + scopeStr + " memory"}, nil
}

func parseSearchScope(s string) (model.MemoryScope, error) {
	switch s {
	case "run":
		return model.ScopeRun, nil
	case "project":
		return model.ScopeProject, nil
	case "global":
		return model.ScopeGlobal, nil
	default:
		return "", corerr.New(toolComponent, "memory_search", corerr.ErrInvalidArguments, "scope must be run, project, or global", nil)
	}
}

func parseWriteScope(s string) (model.MemoryScope, error) {
	switch s {
	case "run":
		return model.ScopeRun, nil
	case "project":
		return model.ScopeProject, nil
	default:
		return "", corerr.New(toolComponent, "memory_store", corerr.ErrInvalidArguments, "scope must be run or project via this tool; global memory is written by the mission supervisor only", nil)
	}
}

func formatEntries(entries []model.MemoryEntry) string {
	if len(entries) == 0 {
		return "no matching entries"
	}
	out := ""
	for i, e := range entries {
		if i > 0 {
			out += "\n"
		}
		out += e.Key + ": " + e.Value
	}
	return out
}
