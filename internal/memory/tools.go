package memory

import (
	"context"

	"github.com/macaron-software/agentcore/internal/model"
	"github.com/macaron-software/agentcore/internal/toolregistry"
)

// Caller identifies who is invoking a memory_* tool, threaded through
// the dispatch context the same way toolregistry.WithWorkspace threads
// the sandbox root to file tools.
type Caller struct {
	Agent      *model.AgentDef
	RunID      string
	ProjectRef string
}

type callerKey struct{}

// WithCaller attaches the invoking agent's identity to ctx before a
// memory_* tool is dispatched.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func callerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}

type memorySearchArgs struct {
	Scope string `json:"scope" jsonschema:"required,enum=run,enum=project,enum=global,description=Which memory scope to search"`
	Query string `json:"query" jsonschema:"required,description=Free-text query"`
	TopK  int    `json:"top_k" jsonschema:"description=Maximum number of results (default 5)"`
}

type memoryStoreArgs struct {
	Scope      string  `json:"scope" jsonschema:"required,enum=run,enum=project,description=Which memory scope to write to"`
	Key        string  `json:"key" jsonschema:"required,description=Entry key"`
	Value      string  `json:"value" jsonschema:"required,description=Entry value"`
	Confidence float64 `json:"confidence" jsonschema:"description=Confidence in [0,1], defaults to 1"`
}

// RegisterTools adds memory_search and memory_store to reg, backed by
// store. The registry itself never imports this package, so the
// composition root wires these in after both exist.
func RegisterTools(reg *toolregistry.Registry, store *Store) error {
	search := toolregistry.NewFuncTool(
		toolregistry.Descriptor{
			Name:        "memory_search",
			Description: "Search a memory scope for entries matching a free-text query, ranked by recency and confidence.",
			Schema:      toolregistry.MustSchema(memorySearchArgs{}),
		},
		func(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
			return store.searchTool(ctx, args)
		},
	)
	if err := reg.RegisterTool(search); err != nil {
		return err
	}

	put := toolregistry.NewFuncTool(
		toolregistry.Descriptor{
			Name:        "memory_store",
			Description: "Write an entry to run or project memory.",
			Schema:      toolregistry.MustSchema(memoryStoreArgs{}),
			Mutates:     true,
		},
		func(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
			return store.storeTool(ctx, args)
		},
	)
	return reg.RegisterTool(put)
}
