package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var expressionParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateExpr reports whether expr parses as a cron expression this
// scheduler can install. Callers validate at add time so a bad expression
// is rejected back to the model instead of silently never firing.
func ValidateExpr(expr string) error {
	_, err := expressionParser.Parse(expr)
	return err
}

// Scheduler installs timers for every job in the Store: a cron-expression
// timer for recurring jobs (bound to the job's timezone, or local), a
// single timer for future one-shots, and immediate sequential execution
// for overdue one-shots found at startup.
type Scheduler struct {
	store    *Store
	executor *Executor
	logger   *slog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	now     func() time.Time
}

// NewScheduler builds a Scheduler over store, running jobs through executor.
func NewScheduler(log *slog.Logger, store *Store, executor *Executor) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:    store,
		executor: executor,
		logger:   log.With(slog.String("component", "cron_scheduler")),
		timers:   map[string]*time.Timer{},
		now:      time.Now,
	}
}

// Start installs timers for every currently-enabled job and runs overdue
// one-shots sequentially. The overdue one-shots run before Start returns;
// everything else fires later from its timer.
func (s *Scheduler) Start(ctx context.Context) {
	jobs := s.store.LoadJobs()

	var overdue []Job
	for _, j := range jobs {
		if !j.Enabled {
			continue
		}
		switch j.Schedule.Kind {
		case KindOneShot:
			if j.AlreadySent() {
				continue
			}
			if j.Due(s.now()) {
				overdue = append(overdue, j)
				continue
			}
			s.scheduleOneShot(ctx, j)
		case KindRecurring:
			s.scheduleRecurring(ctx, j)
		}
	}

	for _, j := range overdue {
		s.fire(ctx, j)
	}
}

// InstallJob installs a timer for a single job immediately, without
// touching any other job's timer. Callers use this when a job is added at
// runtime (e.g. via the cron_add skill) so it fires without waiting for
// the next process restart.
func (s *Scheduler) InstallJob(ctx context.Context, j Job) {
	if !j.Enabled {
		return
	}
	switch j.Schedule.Kind {
	case KindOneShot:
		if j.AlreadySent() {
			return
		}
		if j.Due(s.now()) {
			s.fire(ctx, j)
			return
		}
		s.scheduleOneShot(ctx, j)
	case KindRecurring:
		s.scheduleRecurring(ctx, j)
	}
}

// Stop cancels every installed timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) scheduleOneShot(ctx context.Context, j Job) {
	delay := time.Until(time.UnixMilli(j.Schedule.AtMs))
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	s.timers[j.ID] = time.AfterFunc(delay, func() { s.fire(ctx, j) })
	s.mu.Unlock()
}

func (s *Scheduler) scheduleRecurring(ctx context.Context, j Job) {
	schedule, err := expressionParser.Parse(j.Schedule.Expr)
	if err != nil {
		s.logger.Error("invalid cron expression, skipping job",
			slog.String("job", j.ID), slog.String("expr", j.Schedule.Expr), slog.Any("err", err))
		return
	}
	loc := time.Local
	if j.Schedule.TZ != "" {
		if l, err := time.LoadLocation(j.Schedule.TZ); err == nil {
			loc = l
		} else {
			s.logger.Warn("unknown timezone, using local", slog.String("job", j.ID), slog.String("tz", j.Schedule.TZ))
		}
	}
	s.installNextRecurringTick(ctx, j, schedule, loc)
}

func (s *Scheduler) installNextRecurringTick(ctx context.Context, j Job, schedule cron.Schedule, loc *time.Location) {
	next := schedule.Next(s.now().In(loc))
	delay := time.Until(next)
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	s.timers[j.ID] = time.AfterFunc(delay, func() {
		s.fireRecurring(ctx, j, schedule, loc)
	})
	s.mu.Unlock()
}

func (s *Scheduler) fireRecurring(ctx context.Context, j Job, schedule cron.Schedule, loc *time.Location) {
	current := s.refreshJob(j)
	if current.Enabled {
		s.fire(ctx, current)
	}
	s.installNextRecurringTick(ctx, j, schedule, loc)
}

func (s *Scheduler) refreshJob(j Job) Job {
	for _, cur := range s.store.LoadJobs() {
		if cur.ID == j.ID {
			return cur
		}
	}
	return j
}

// fire runs a single job through the at-most-once mark-before-run discipline
// for one-shots, then delegates to the executor.
func (s *Scheduler) fire(ctx context.Context, j Job) {
	if j.Schedule.Kind == KindOneShot {
		sentAt := s.now().UnixMilli()
		marked, err := s.store.UpdateJob(j.ID, func(job *Job) { job.SentAtMs = &sentAt })
		if err != nil {
			s.logger.Error("failed to mark one-shot sent, refusing to run", slog.String("job", j.ID), slog.Any("err", err))
			return
		}
		j = marked
	}

	err := s.executor.Run(ctx, j)

	if j.Schedule.Kind == KindOneShot {
		if err == nil {
			if removeErr := s.store.RemoveJob(j.ID); removeErr != nil {
				s.logger.Error("failed to remove completed one-shot", slog.String("job", j.ID), slog.Any("err", removeErr))
			}
			return
		}
		// sentAtMs is already set; leave the job in place so AlreadySent
		// prevents a resend on restart. The apology was the delivery.
		if _, updErr := s.store.UpdateJob(j.ID, func(job *Job) { job.LastError = err.Error() }); updErr != nil {
			s.logger.Error("failed to record last error", slog.String("job", j.ID), slog.Any("err", updErr))
		}
		return
	}
	if err != nil {
		if _, updErr := s.store.UpdateJob(j.ID, func(job *Job) { job.LastError = err.Error() }); updErr != nil {
			s.logger.Error("failed to record last error", slog.String("job", j.ID), slog.Any("err", updErr))
		}
	}
}
