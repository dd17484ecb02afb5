package cron_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/cron"
)

func TestNewStoreToleratesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron.json")
	s, err := cron.NewStore(nil, path)
	require.NoError(t, err)
	require.Empty(t, s.LoadJobs())
}

func TestNewStoreToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s, err := cron.NewStore(nil, path)
	require.NoError(t, err)
	require.Empty(t, s.LoadJobs())
}

func TestAddUpdateRemoveJobRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron.json")
	s, err := cron.NewStore(nil, path)
	require.NoError(t, err)

	job, err := s.AddJob(cron.Job{Name: "reminder", Enabled: true, JID: "123"})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	updated, err := s.UpdateJob(job.ID, func(j *cron.Job) { j.Enabled = false })
	require.NoError(t, err)
	require.False(t, updated.Enabled)

	require.NoError(t, s.RemoveJob(job.ID))
	require.Empty(t, s.LoadJobs())
}

func TestSaveWritesAtomicallyAndReloadPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron.json")
	s, err := cron.NewStore(nil, path)
	require.NoError(t, err)
	_, err = s.AddJob(cron.Job{Name: "a", JID: "jid-a"})
	require.NoError(t, err)

	reopened, err := cron.NewStore(nil, path)
	require.NoError(t, err)
	require.Len(t, reopened.LoadJobs(), 1)

	var doc cron.Document
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, 1, doc.Version)
}

func TestUpdateUnknownJobReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron.json")
	s, err := cron.NewStore(nil, path)
	require.NoError(t, err)
	_, err = s.UpdateJob("missing", func(j *cron.Job) {})
	require.Error(t, err)
}
