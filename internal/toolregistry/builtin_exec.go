package toolregistry

import (
	"context"
	"os/exec"
	"syscall"

	"github.com/macaron-software/agentcore/internal/corerr"
)

const execComponent = "toolregistry.exec"

// runInWorkspace executes name with args rooted at the run's workspace,
// in its own process group so a timeout kills the whole subtree (a
// `go test ./...` that forks children must not leak orphans when its
// deadline fires). Built on an argv vector rather than a shell string,
// so no shell-injection surface exists for these built-ins.
func runInWorkspace(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

type runBuildArgs struct {
	Command []string `json:"command" jsonschema:"required,description=Build command and arguments, e.g. [\"go\",\"build\",\"./...\"]"`
}

type runBuildTool struct{}

func NewRunBuildTool() Tool { return runBuildTool{} }

func (runBuildTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "run_build",
		Description: "Run a build command within the workspace and return its combined output.",
		Schema:      MustSchema(runBuildArgs{}),
	}
}

func (runBuildTool) Run(ctx context.Context, args map[string]interface{}) (Result, error) {
	return runArgvTool(ctx, "run_build", args)
}

type runTestsArgs struct {
	Command []string `json:"command" jsonschema:"required,description=Test command and arguments, e.g. [\"go\",\"test\",\"./...\"]"`
}

type runTestsTool struct{}

func NewRunTestsTool() Tool { return runTestsTool{} }

func (runTestsTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "run_tests",
		Description: "Run a test command within the workspace and return its combined output.",
		Schema:      MustSchema(runTestsArgs{}),
	}
}

func (runTestsTool) Run(ctx context.Context, args map[string]interface{}) (Result, error) {
	return runArgvTool(ctx, "run_tests", args)
}

func runArgvTool(ctx context.Context, toolName string, args map[string]interface{}) (Result, error) {
	raw, ok := args["command"].([]interface{})
	if !ok || len(raw) == 0 {
		return Result{}, corerr.New(execComponent, toolName, corerr.ErrInvalidArguments, "command must be a non-empty array", nil)
	}
	argv := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return Result{}, corerr.New(execComponent, toolName, corerr.ErrInvalidArguments, "command entries must be strings", nil)
		}
		argv = append(argv, s)
	}
	dir := workspaceFrom(ctx)
	if dir == "" {
		return Result{}, corerr.New(execComponent, toolName, corerr.ErrValidation, "workspace not set for run", nil)
	}
	output, err := runInWorkspace(ctx, dir, argv[0], argv[1:]...)
	if err != nil {
		return Result{Success: false, Output: output}, corerr.New(execComponent, toolName, corerr.ErrInternal, "command failed", err)
	}
	return Result{Success: true, Output: output}, nil
}

type gitStatusTool struct{}

func NewGitStatusTool() Tool { return gitStatusTool{} }

func (gitStatusTool) Descriptor() Descriptor {
	return Descriptor{Name: "git_status", Description: "Show the workspace's git status.", Schema: MustSchema(struct{}{})}
}

func (gitStatusTool) Run(ctx context.Context, args map[string]interface{}) (Result, error) {
	dir := workspaceFrom(ctx)
	out, err := runInWorkspace(ctx, dir, "git", "status", "--porcelain=v1", "--branch")
	if err != nil {
		return Result{}, corerr.New(execComponent, "git_status", corerr.ErrInternal, "git status", err)
	}
	return Result{Success: true, Output: out}, nil
}

type gitDiffArgs struct {
	Path string `json:"path" jsonschema:"description=Limit the diff to this path, relative to the workspace root"`
}

type gitDiffTool struct{}

func NewGitDiffTool() Tool { return gitDiffTool{} }

func (gitDiffTool) Descriptor() Descriptor {
	return Descriptor{Name: "git_diff", Description: "Show the workspace's unstaged git diff.", Schema: MustSchema(gitDiffArgs{})}
}

func (gitDiffTool) Run(ctx context.Context, args map[string]interface{}) (Result, error) {
	dir := workspaceFrom(ctx)
	argv := []string{"diff"}
	if path, _ := args["path"].(string); path != "" {
		argv = append(argv, "--", path)
	}
	out, err := runInWorkspace(ctx, dir, "git", argv...)
	if err != nil {
		return Result{}, corerr.New(execComponent, "git_diff", corerr.ErrInternal, "git diff", err)
	}
	return Result{Success: true, Output: out}, nil
}

type gitCommitArgs struct {
	Message string `json:"message" jsonschema:"required,description=Commit message"`
}

type gitCommitTool struct{}

func NewGitCommitTool() Tool { return gitCommitTool{} }

func (gitCommitTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "git_commit",
		Description: "Stage all workspace changes and commit them with the given message.",
		Schema:      MustSchema(gitCommitArgs{}),
		Mutates:     true,
	}
}

func (gitCommitTool) Run(ctx context.Context, args map[string]interface{}) (Result, error) {
	message, _ := args["message"].(string)
	if message == "" {
		return Result{}, corerr.New(execComponent, "git_commit", corerr.ErrInvalidArguments, "message is required", nil)
	}
	dir := workspaceFrom(ctx)
	if _, err := runInWorkspace(ctx, dir, "git", "add", "-A"); err != nil {
		return Result{}, corerr.New(execComponent, "git_commit", corerr.ErrInternal, "git add", err)
	}
	out, err := runInWorkspace(ctx, dir, "git", "commit", "-m", message)
	if err != nil {
		return Result{Success: false, Output: out}, corerr.New(execComponent, "git_commit", corerr.ErrInternal, "git commit", err)
	}
	return Result{Success: true, Output: out}, nil
}
