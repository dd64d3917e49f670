package toolregistry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/macaron-software/agentcore/internal/corerr"
)

const filesComponent = "toolregistry.files"

// workspaceKey is how path-confined tools learn the active run's
// workspace without the Dispatch contract threading it through args;
// the executor stores it on the call context via WithWorkspace before
// invoking Dispatch.
type workspaceKey struct{}

// WithWorkspace attaches the active run's workspace root to ctx.
func WithWorkspace(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, workspaceKey{}, path)
}

func workspaceFrom(ctx context.Context) string {
	if v, ok := ctx.Value(workspaceKey{}).(string); ok {
		return v
	}
	return ""
}

func resolve(ctx context.Context, requested string) (string, error) {
	return ResolvePath(workspaceFrom(ctx), requested)
}

// readFileArgs is reflected into the tool's JSON Schema.
type readFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=File path relative to the workspace root"`
}

type readFileTool struct{}

func NewReadFileTool() Tool { return readFileTool{} }

func (readFileTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "read_file",
		Description: "Read the full contents of a file within the run's workspace.",
		Schema:      MustSchema(readFileArgs{}),
	}
}

func (readFileTool) Run(ctx context.Context, args map[string]interface{}) (Result, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return Result{}, corerr.New(filesComponent, "read_file", corerr.ErrInvalidArguments, "path is required", nil)
	}
	resolved, err := resolve(ctx, path)
	if err != nil {
		return Result{}, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return Result{}, corerr.New(filesComponent, "read_file", corerr.ErrNotFound, "read "+path, err)
	}
	return Result{Success: true, Output: string(data)}, nil
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to the workspace root"`
	Content string `json:"content" jsonschema:"required,description=Full file content to write"`
}

type writeFileTool struct{}

func NewWriteFileTool() Tool { return writeFileTool{} }

func (writeFileTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "write_file",
		Description: "Create or overwrite a file within the run's workspace.",
		Schema:      MustSchema(writeFileArgs{}),
		Mutates:     true,
	}
}

func (writeFileTool) Run(ctx context.Context, args map[string]interface{}) (Result, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return Result{}, corerr.New(filesComponent, "write_file", corerr.ErrInvalidArguments, "path is required", nil)
	}
	resolved, err := resolve(ctx, path)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return Result{}, corerr.New(filesComponent, "write_file", corerr.ErrInternal, "create parent directories", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return Result{}, corerr.New(filesComponent, "write_file", corerr.ErrInternal, "write "+path, err)
	}
	return Result{Success: true, Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}, nil
}

type editFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to the workspace root"`
	Find    string `json:"find" jsonschema:"required,description=Exact text to locate"`
	Replace string `json:"replace" jsonschema:"required,description=Text to replace it with"`
}

type editFileTool struct{}

func NewEditFileTool() Tool { return editFileTool{} }

func (editFileTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "edit_file",
		Description: "Replace one exact text span in a file within the run's workspace.",
		Schema:      MustSchema(editFileArgs{}),
		Mutates:     true,
	}
}

func (editFileTool) Run(ctx context.Context, args map[string]interface{}) (Result, error) {
	path, _ := args["path"].(string)
	find, _ := args["find"].(string)
	replace, _ := args["replace"].(string)
	if path == "" || find == "" {
		return Result{}, corerr.New(filesComponent, "edit_file", corerr.ErrInvalidArguments, "path and find are required", nil)
	}
	resolved, err := resolve(ctx, path)
	if err != nil {
		return Result{}, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return Result{}, corerr.New(filesComponent, "edit_file", corerr.ErrNotFound, "read "+path, err)
	}
	original := string(data)
	count := strings.Count(original, find)
	if count == 0 {
		return Result{}, corerr.New(filesComponent, "edit_file", corerr.ErrInvalidArguments, "find text not present in "+path, nil)
	}
	if count > 1 {
		return Result{}, corerr.New(filesComponent, "edit_file", corerr.ErrInvalidArguments, "find text is not unique in "+path, nil)
	}
	updated := strings.Replace(original, find, replace, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return Result{}, corerr.New(filesComponent, "edit_file", corerr.ErrInternal, "write "+path, err)
	}
	return Result{Success: true, Output: "edited " + path}, nil
}

type listDirectoryArgs struct {
	Path string `json:"path" jsonschema:"description=Directory relative to the workspace root; defaults to the root"`
}

type listDirectoryTool struct{}

func NewListDirectoryTool() Tool { return listDirectoryTool{} }

func (listDirectoryTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "list_directory",
		Description: "List file and directory entries within the run's workspace.",
		Schema:      MustSchema(listDirectoryArgs{}),
	}
}

func (listDirectoryTool) Run(ctx context.Context, args map[string]interface{}) (Result, error) {
	path, _ := args["path"].(string)
	resolved, err := resolve(ctx, path)
	if err != nil {
		return Result{}, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return Result{}, corerr.New(filesComponent, "list_directory", corerr.ErrNotFound, "list "+path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return Result{Success: true, Output: strings.Join(names, "\n"), Data: map[string]interface{}{"entries": names}}, nil
}

type searchFilesArgs struct {
	Query string `json:"query" jsonschema:"required,description=Substring to search for"`
	Path  string `json:"path" jsonschema:"description=Directory to search within, relative to the workspace root"`
}

type searchFilesTool struct{}

func NewSearchFilesTool() Tool { return searchFilesTool{} }

func (searchFilesTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "search_files",
		Description: "Recursively search text files within the workspace for a substring.",
		Schema:      MustSchema(searchFilesArgs{}),
	}
}

func (searchFilesTool) Run(ctx context.Context, args map[string]interface{}) (Result, error) {
	query, _ := args["query"].(string)
	path, _ := args["path"].(string)
	if query == "" {
		return Result{}, corerr.New(filesComponent, "search_files", corerr.ErrInvalidArguments, "query is required", nil)
	}
	root, err := resolve(ctx, path)
	if err != nil {
		return Result{}, err
	}
	var matches []string
	walkErr := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		data, readErr := os.ReadFile(p)
		if readErr != nil {
			return nil
		}
		if strings.Contains(string(data), query) {
			rel, _ := filepath.Rel(root, p)
			matches = append(matches, rel)
		}
		return nil
	})
	if walkErr != nil {
		return Result{}, corerr.New(filesComponent, "search_files", corerr.ErrInternal, "walk "+path, walkErr)
	}
	return Result{Success: true, Output: strings.Join(matches, "\n"), Data: map[string]interface{}{"matches": matches}}, nil
}
