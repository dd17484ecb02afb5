package builtin_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/skill/builtin"
)

func TestShellRunsAllowListedCommand(t *testing.T) {
	exec := builtin.NewShellExecutor(builtin.ShellConfig{AllowedCommands: []string{"echo"}})

	out, err := exec.Execute(context.Background(), agentctx.Context{}, "core_shell", map[string]any{
		"command": "echo",
		"args":    []any{"hello"},
	})
	require.NoError(t, err)
	require.Equal(t, "hello", strings.TrimSpace(out))
}

func TestShellRefusesCommandOffAllowList(t *testing.T) {
	exec := builtin.NewShellExecutor(builtin.ShellConfig{AllowedCommands: []string{"echo"}})

	_, err := exec.Execute(context.Background(), agentctx.Context{}, "core_shell", map[string]any{
		"command": "rm",
		"args":    []any{"-rf", "/"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "allow-list")
}

func TestShellTimesOut(t *testing.T) {
	exec := builtin.NewShellExecutor(builtin.ShellConfig{
		AllowedCommands: []string{"sleep"},
		Timeout:         100 * time.Millisecond,
	})

	_, err := exec.Execute(context.Background(), agentctx.Context{}, "core_shell", map[string]any{
		"command": "sleep",
		"args":    []any{"5"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
}

func TestShellTruncatesOutput(t *testing.T) {
	exec := builtin.NewShellExecutor(builtin.ShellConfig{
		AllowedCommands: []string{"head"},
		MaxOutputBytes:  64,
	})

	out, err := exec.Execute(context.Background(), agentctx.Context{}, "core_shell", map[string]any{
		"command": "head",
		"args":    []any{"-c", "4096", "/dev/zero"},
	})
	require.NoError(t, err)
	require.Contains(t, out, "[truncated]")
	require.LessOrEqual(t, len(out), 64+len("\n...[truncated]"))
}

func TestShellDescriptorIsGroupDisabled(t *testing.T) {
	require.True(t, builtin.ShellDescriptor().GroupDisabled)
}
