package builtin_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/skill/builtin"
)

func TestFileEditReplacesFirstOccurrence(t *testing.T) {
	workspace := t.TempDir()
	target := filepath.Join(workspace, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("Hello world\n"), 0o644))

	exec := builtin.NewFileExecutor()
	actx := agentctx.Context{WorkspaceDir: workspace}

	out, err := exec.Execute(context.Background(), actx, "file_edit", map[string]any{
		"path":        "target.txt",
		"find":        "Hello",
		"replaceWith": "Hi",
	})
	require.NoError(t, err)
	require.Contains(t, out, "replaced")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "Hi world\n", string(data))
}

func TestFileEditMissingTextFails(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "a.txt"), []byte("content\n"), 0o644))

	exec := builtin.NewFileExecutor()
	_, err := exec.Execute(context.Background(), agentctx.Context{WorkspaceDir: workspace}, "file_edit", map[string]any{
		"path":        "a.txt",
		"find":        "absent",
		"replaceWith": "x",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestFileReadReturnsContents(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "note.txt"), []byte("remember this\n"), 0o644))

	exec := builtin.NewFileExecutor()
	out, err := exec.Execute(context.Background(), agentctx.Context{WorkspaceDir: workspace}, "file_read", map[string]any{
		"path": "note.txt",
	})
	require.NoError(t, err)
	require.Equal(t, "remember this\n", out)
}

func TestFileAccessRejectsWorkspaceEscape(t *testing.T) {
	exec := builtin.NewFileExecutor()
	actx := agentctx.Context{WorkspaceDir: t.TempDir()}

	for _, path := range []string{"../outside.txt", "a/../../outside.txt", "/etc/passwd"} {
		_, err := exec.Execute(context.Background(), actx, "file_read", map[string]any{"path": path})
		require.Error(t, err, "path %q must be rejected", path)
	}
}
