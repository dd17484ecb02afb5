package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/skill"
)

const (
	FileSkillID = "file_ops"
	toolFileRead = "file_read"
	toolFileEdit = "file_edit"
)

// FileExecutor reads and edits files confined to a workspace directory.
// Edits are a literal string-replace, not a diff/patch format.
type FileExecutor struct{}

// NewFileExecutor builds a FileExecutor.
func NewFileExecutor() *FileExecutor { return &FileExecutor{} }

// FileDescriptor describes the file_ops skill: file_read and file_edit,
// both disabled in group contexts (arbitrary file access on a personal
// assistant's workspace is a private-chat capability).
func FileDescriptor() skill.Descriptor {
	return skill.Descriptor{
		ID:          FileSkillID,
		Name:        "file_ops",
		Description: "Read and edit files in the workspace",
		Doc:         "file_read/file_edit operate on paths relative to the workspace; file_edit performs a literal find-and-replace.",
		GroupDisabled: true,
		Tools: []skill.ToolDescriptor{
			{
				Name:        toolFileRead,
				Description: "Read a workspace-relative file's contents",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path": map[string]any{"type": "string", "description": "Workspace-relative file path"},
					},
					"required": []string{"path"},
				},
			},
			{
				Name:        toolFileEdit,
				Description: "Replace the first occurrence of a literal string in a workspace-relative file",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path":        map[string]any{"type": "string", "description": "Workspace-relative file path"},
						"find":        map[string]any{"type": "string", "description": "Literal text to find"},
						"replaceWith": map[string]any{"type": "string", "description": "Replacement text"},
					},
					"required": []string{"path", "find", "replaceWith"},
				},
			},
		},
	}
}

// Execute implements skill.Executor.
func (e *FileExecutor) Execute(_ context.Context, actx agentctx.Context, toolName string, args map[string]any) (string, error) {
	path, err := skill.RequireString(args, "path")
	if err != nil {
		return "", err
	}
	resolved, err := resolveWorkspacePath(actx.WorkspaceDir, path)
	if err != nil {
		return "", err
	}

	switch toolName {
	case toolFileRead:
		data, err := os.ReadFile(resolved)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	case toolFileEdit:
		find, err := skill.RequireString(args, "find")
		if err != nil {
			return "", err
		}
		replaceWith := skill.StringArg(args, "replaceWith")
		data, err := os.ReadFile(resolved)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		content := string(data)
		if !strings.Contains(content, find) {
			return "", fmt.Errorf("%q not found in %s", find, path)
		}
		updated := strings.Replace(content, find, replaceWith, 1)
		if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		return fmt.Sprintf("replaced %q with %q in %s", find, replaceWith, path), nil
	default:
		return "", fmt.Errorf("unknown tool %q", toolName)
	}
}

// resolveWorkspacePath joins rel onto workspaceDir and rejects any result
// that escapes it (no "..", no absolute path override).
func resolveWorkspacePath(workspaceDir, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path must be workspace-relative, got absolute %q", rel)
	}
	joined := filepath.Join(workspaceDir, rel)
	cleanRoot := filepath.Clean(workspaceDir)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return joined, nil
}
