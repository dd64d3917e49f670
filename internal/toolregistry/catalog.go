package toolregistry

// RegisterBuiltins adds every filesystem/exec/git tool that doesn't
// need a backing service. The memory_*/mission_* tools are registered
// separately by memory.Store and supervisor.Supervisor via NewFuncTool,
// once those packages exist, since toolregistry itself has no business
// importing them.
func (r *Registry) RegisterBuiltins() error {
	builtins := []Tool{
		NewReadFileTool(),
		NewWriteFileTool(),
		NewEditFileTool(),
		NewListDirectoryTool(),
		NewSearchFilesTool(),
		NewRunBuildTool(),
		NewRunTestsTool(),
		NewGitStatusTool(),
		NewGitDiffTool(),
		NewGitCommitTool(),
	}
	for _, t := range builtins {
		if err := r.RegisterTool(t); err != nil {
			return err
		}
	}
	return nil
}
