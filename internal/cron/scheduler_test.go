package cron_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/cron"
)

func TestSchedulerRunsOverdueOneShotImmediatelyAndRemovesIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron.json")
	store, err := cron.NewStore(nil, path)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour).UnixMilli()
	job, err := store.AddJob(cron.Job{
		Name: "overdue", Enabled: true, JID: "123",
		Schedule: cron.Schedule{Kind: cron.KindOneShot, AtMs: past},
	})
	require.NoError(t, err)

	agent := &stubAgent{replies: []string{"done"}}
	sender := &stubSender{}
	exec := cron.NewExecutor(nil, agent, cron.TransportRouter{BotAPI: sender, LinkedDevice: sender})
	exec.SetSleepForTest(nil)

	sched := cron.NewScheduler(nil, store, exec)
	sched.Start(context.Background())

	require.Equal(t, []string{"done"}, sender.sent)

	remaining := store.LoadJobs()
	for _, j := range remaining {
		require.NotEqual(t, job.ID, j.ID)
	}
}

func TestSchedulerSkipsAlreadySentOneShot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron.json")
	store, err := cron.NewStore(nil, path)
	require.NoError(t, err)

	sentAt := time.Now().Add(-time.Hour).UnixMilli()
	past := time.Now().Add(-time.Hour).UnixMilli()
	_, err = store.AddJob(cron.Job{
		Name: "already-sent", Enabled: true, JID: "123", SentAtMs: &sentAt,
		Schedule: cron.Schedule{Kind: cron.KindOneShot, AtMs: past},
	})
	require.NoError(t, err)

	agent := &stubAgent{replies: []string{"done"}}
	sender := &stubSender{}
	exec := cron.NewExecutor(nil, agent, cron.TransportRouter{BotAPI: sender, LinkedDevice: sender})
	exec.SetSleepForTest(nil)

	sched := cron.NewScheduler(nil, store, exec)
	sched.Start(context.Background())

	require.Empty(t, sender.sent)
	require.Equal(t, 0, agent.calls)
}

func TestSchedulerLeavesOneShotMarkedOnPersistentFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron.json")
	store, err := cron.NewStore(nil, path)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour).UnixMilli()
	job, err := store.AddJob(cron.Job{
		Name: "flaky", Enabled: true, JID: "123",
		Schedule: cron.Schedule{Kind: cron.KindOneShot, AtMs: past},
	})
	require.NoError(t, err)

	boom := errDeliberate{}
	agent := &stubAgent{errs: []error{boom, boom, boom}}
	sender := &stubSender{}
	exec := cron.NewExecutor(nil, agent, cron.TransportRouter{BotAPI: sender, LinkedDevice: sender})
	exec.SetSleepForTest(nil)

	sched := cron.NewScheduler(nil, store, exec)
	sched.Start(context.Background())

	remaining := store.LoadJobs()
	require.Len(t, remaining, 1)
	require.Equal(t, job.ID, remaining[0].ID)
	require.True(t, remaining[0].AlreadySent())
	require.NotEmpty(t, remaining[0].LastError)
}

type errDeliberate struct{}

func (errDeliberate) Error() string { return "deliberate failure" }
