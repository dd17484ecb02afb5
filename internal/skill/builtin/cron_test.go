package builtin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/cron"
	"github.com/mooassistant/moo/internal/skill/builtin"
)

type fakeJobs struct {
	jobs    []cron.Job
	removed []string
}

func (f *fakeJobs) LoadJobs() []cron.Job { return f.jobs }

func (f *fakeJobs) RemoveJob(id string) error {
	f.removed = append(f.removed, id)
	return nil
}

type scheduled struct {
	oneShots   []int64
	recurrings []string
}

func schedulingContext(jid string, s *scheduled) agentctx.Context {
	return agentctx.Context{
		JID: jid,
		ScheduleOneShot: func(ctx context.Context, atMs int64, name, message string) (string, error) {
			s.oneShots = append(s.oneShots, atMs)
			return "job-1", nil
		},
		ScheduleRecurring: func(ctx context.Context, expr, tz, name, message string) (string, error) {
			s.recurrings = append(s.recurrings, expr)
			return "job-2", nil
		},
	}
}

func TestCronAddOneShot(t *testing.T) {
	exec := builtin.NewCronExecutor(&fakeJobs{})
	var s scheduled
	at := time.Now().Add(2 * time.Minute).UnixMilli()

	out, err := exec.Execute(context.Background(), schedulingContext("u", &s), "cron_add", map[string]any{
		"name":    "check lock",
		"message": "check the lock",
		"atMs":    float64(at),
	})
	require.NoError(t, err)
	require.Contains(t, out, "job-1")
	require.Equal(t, []int64{at}, s.oneShots)
	require.Empty(t, s.recurrings)
}

func TestCronAddRecurringKeepsExpressionVerbatim(t *testing.T) {
	exec := builtin.NewCronExecutor(&fakeJobs{})
	var s scheduled

	out, err := exec.Execute(context.Background(), schedulingContext("u", &s), "cron_add", map[string]any{
		"name":    "stretch",
		"message": "time to stretch",
		"expr":    "*/5 * * * *",
	})
	require.NoError(t, err)
	require.Contains(t, out, "job-2")
	require.Equal(t, []string{"*/5 * * * *"}, s.recurrings)
}

func TestCronAddRejectsBothOrNeitherSchedule(t *testing.T) {
	exec := builtin.NewCronExecutor(&fakeJobs{})
	var s scheduled
	actx := schedulingContext("u", &s)

	_, err := exec.Execute(context.Background(), actx, "cron_add", map[string]any{
		"name": "x", "message": "y",
	})
	require.Error(t, err)

	_, err = exec.Execute(context.Background(), actx, "cron_add", map[string]any{
		"name": "x", "message": "y", "atMs": float64(1), "expr": "* * * * *",
	})
	require.Error(t, err)
}

func TestCronListEmptyStoreSaysSo(t *testing.T) {
	exec := builtin.NewCronExecutor(&fakeJobs{})

	out, err := exec.Execute(context.Background(), agentctx.Context{JID: "u"}, "cron_list", nil)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	require.Contains(t, out, "no reminders")
}

func TestCronListShowsOnlyThisChatsJobs(t *testing.T) {
	jobs := &fakeJobs{jobs: []cron.Job{
		{ID: "a", Name: "mine", JID: "u", Schedule: cron.Schedule{Kind: cron.KindRecurring, Expr: "0 8 * * *"}},
		{ID: "b", Name: "theirs", JID: "other", Schedule: cron.Schedule{Kind: cron.KindRecurring, Expr: "0 9 * * *"}},
	}}
	exec := builtin.NewCronExecutor(jobs)

	out, err := exec.Execute(context.Background(), agentctx.Context{JID: "u"}, "cron_list", nil)
	require.NoError(t, err)
	require.Contains(t, out, "mine")
	require.NotContains(t, out, "theirs")
}

func TestCronRemove(t *testing.T) {
	jobs := &fakeJobs{}
	exec := builtin.NewCronExecutor(jobs)

	out, err := exec.Execute(context.Background(), agentctx.Context{JID: "u"}, "cron_remove", map[string]any{"id": "a"})
	require.NoError(t, err)
	require.Contains(t, out, "removed")
	require.Equal(t, []string{"a"}, jobs.removed)
}
