package toolregistry

import "context"

// FuncTool adapts a plain function into a Tool, for packages (memory,
// supervisor) that expose a handful of tools backed by their own state
// without toolregistry needing to import them. The registry only needs
// the Tool contract, never the concrete provider.
type FuncTool struct {
	desc Descriptor
	fn   func(ctx context.Context, args map[string]interface{}) (Result, error)
}

// NewFuncTool builds a Tool from a descriptor and a handler.
func NewFuncTool(desc Descriptor, fn func(ctx context.Context, args map[string]interface{}) (Result, error)) Tool {
	return &FuncTool{desc: desc, fn: fn}
}

func (t *FuncTool) Descriptor() Descriptor { return t.desc }

func (t *FuncTool) Run(ctx context.Context, args map[string]interface{}) (Result, error) {
	return t.fn(ctx, args)
}
