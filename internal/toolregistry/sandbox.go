package toolregistry

import (
	"path/filepath"
	"strings"

	"github.com/macaron-software/agentcore/internal/corerr"
)

const sandboxComponent = "toolregistry.sandbox"

// ResolvePath canonicalizes a tool-supplied relative path against a
// workspace root and verifies the result stays inside it. Any path
// escaping the workspace, via ".." or an absolute path outside the
// root, is rejected before any filesystem call is made.
func ResolvePath(workspacePath, requested string) (string, error) {
	if workspacePath == "" {
		return "", corerr.New(sandboxComponent, "ResolvePath", corerr.ErrValidation, "workspace path not set for run", nil)
	}
	root, err := filepath.Abs(workspacePath)
	if err != nil {
		return "", corerr.New(sandboxComponent, "ResolvePath", corerr.ErrInternal, "resolve workspace root", err)
	}
	root = filepath.Clean(root)

	var candidate string
	if filepath.IsAbs(requested) {
		candidate = filepath.Clean(requested)
	} else {
		candidate = filepath.Clean(filepath.Join(root, requested))
	}

	if candidate != root && !strings.HasPrefix(candidate, root+string(filepath.Separator)) {
		return "", corerr.New(sandboxComponent, "ResolvePath", corerr.ErrPathEscape,
			"requested path escapes workspace: "+requested, nil)
	}
	return candidate, nil
}
