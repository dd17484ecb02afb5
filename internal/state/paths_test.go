package state_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/state"
)

func TestResolveHonoursStateDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MOO_STATE_DIR", dir)

	paths, err := state.Resolve()
	require.NoError(t, err)
	require.Equal(t, dir, paths.Root)
}

func TestResolveDefaultsToHomeDotMoo(t *testing.T) {
	t.Setenv("MOO_STATE_DIR", "")

	paths, err := state.Resolve()
	require.NoError(t, err)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".moo"), paths.Root)
}

func TestEnsureAllCreatesLayout(t *testing.T) {
	paths := state.Paths{Root: filepath.Join(t.TempDir(), "fresh")}
	require.NoError(t, paths.EnsureAll())

	for _, dir := range []string{
		paths.AuthDir(),
		paths.WorkspaceDir(),
		paths.PrivateChatLogDir(),
		paths.GroupChatLogDir(),
		paths.MemoryIndexDir(),
		paths.UploadsDir(),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		require.True(t, info.IsDir())
	}
	require.Equal(t, filepath.Join(paths.Root, "cron.json"), paths.CronStorePath())
	require.Equal(t, filepath.Join(paths.Root, "config.json"), paths.ConfigPath())
}
