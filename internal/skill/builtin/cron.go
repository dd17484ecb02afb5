package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/cron"
	"github.com/mooassistant/moo/internal/skill"
)

const (
	CronSkillID   = "cron"
	toolCronAdd    = "cron_add"
	toolCronList   = "cron_list"
	toolCronRemove = "cron_remove"
)

// JobLister is the read/delete surface the cron skill needs beyond the
// scheduling handles already carried on agentctx.Context. Scheduling goes
// through the context because cron turns can schedule more cron jobs;
// listing and removal don't create that cycle, so they are a plain
// interface instead.
type JobLister interface {
	LoadJobs() []cron.Job
	RemoveJob(id string) error
}

// CronExecutor exposes cron_add, cron_list, and cron_remove. Adding a job
// goes through agentctx.Context's ScheduleOneShot/ScheduleRecurring
// handles; listing and removing go through JobLister directly.
type CronExecutor struct {
	jobs JobLister
}

// NewCronExecutor builds a CronExecutor over jobs.
func NewCronExecutor(jobs JobLister) *CronExecutor {
	return &CronExecutor{jobs: jobs}
}

// CronDescriptor describes the cron skill. The clarification rule ("ask
// rather than invent content for scheduling") is carried in the doc
// string injected into the system prompt, not enforced here.
func CronDescriptor() skill.Descriptor {
	return skill.Descriptor{
		ID:          CronSkillID,
		Name:        "cron",
		Description: "Schedule, list, and remove reminders",
		Doc: "cron_add schedules a one-shot (atMs, an absolute epoch millisecond timestamp) or a " +
			"recurring job (a five-field cron expression, e.g. \"*/5 * * * *\"). If the time, recipient, " +
			"or message wording is ambiguous, ask the user before calling cron_add — never invent content.",
		Tools: []skill.ToolDescriptor{
			{
				Name:        toolCronAdd,
				Description: "Schedule a one-shot or recurring reminder",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":    map[string]any{"type": "string", "description": "Short label for the job"},
						"message": map[string]any{"type": "string", "description": "The text the agent sends when the job fires"},
						"atMs":    map[string]any{"type": "integer", "description": "One-shot: absolute epoch millisecond fire time"},
						"expr":    map[string]any{"type": "string", "description": "Recurring: a five-field cron expression"},
						"tz":      map[string]any{"type": "string", "description": "Recurring: IANA timezone, defaults to local"},
					},
					"required": []string{"name", "message"},
				},
			},
			{
				Name:        toolCronList,
				Description: "List scheduled reminders for the current chat",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
			{
				Name:        toolCronRemove,
				Description: "Cancel a scheduled reminder by id",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id": map[string]any{"type": "string", "description": "Job id, from cron_list"},
					},
					"required": []string{"id"},
				},
			},
		},
	}
}

// Execute implements skill.Executor.
func (e *CronExecutor) Execute(ctx context.Context, actx agentctx.Context, toolName string, args map[string]any) (string, error) {
	switch toolName {
	case toolCronAdd:
		return e.add(ctx, actx, args)
	case toolCronList:
		return e.list(actx)
	case toolCronRemove:
		return e.remove(args)
	default:
		return "", fmt.Errorf("unknown tool %q", toolName)
	}
}

func (e *CronExecutor) add(ctx context.Context, actx agentctx.Context, args map[string]any) (string, error) {
	name, err := skill.RequireString(args, "name")
	if err != nil {
		return "", err
	}
	message, err := skill.RequireString(args, "message")
	if err != nil {
		return "", err
	}
	atMs, hasAt, err := skill.IntArg(args, "atMs")
	if err != nil {
		return "", err
	}
	expr := skill.StringArg(args, "expr")

	switch {
	case hasAt && expr != "":
		return "", fmt.Errorf("specify exactly one of atMs or expr, not both")
	case hasAt:
		if actx.ScheduleOneShot == nil {
			return "", fmt.Errorf("cron scheduling is not wired for this chat")
		}
		id, err := actx.ScheduleOneShot(ctx, int64(atMs), name, message)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("scheduled one-shot reminder %q (job %s) for %s", name, id, time.UnixMilli(int64(atMs)).UTC().Format(time.RFC3339)), nil
	case expr != "":
		if actx.ScheduleRecurring == nil {
			return "", fmt.Errorf("cron scheduling is not wired for this chat")
		}
		tz := skill.StringArg(args, "tz")
		id, err := actx.ScheduleRecurring(ctx, expr, tz, name, message)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("scheduled recurring reminder %q (job %s) on %q", name, id, expr), nil
	default:
		return "", fmt.Errorf("specify either atMs (one-shot) or expr (recurring)")
	}
}

func (e *CronExecutor) list(actx agentctx.Context) (string, error) {
	var lines []string
	for _, j := range e.jobs.LoadJobs() {
		if j.JID != actx.JID {
			continue
		}
		switch j.Schedule.Kind {
		case cron.KindOneShot:
			lines = append(lines, fmt.Sprintf("%s: %q at %s", j.ID, j.Name, time.UnixMilli(j.Schedule.AtMs).UTC().Format(time.RFC3339)))
		case cron.KindRecurring:
			lines = append(lines, fmt.Sprintf("%s: %q on %q", j.ID, j.Name, j.Schedule.Expr))
		}
	}
	if len(lines) == 0 {
		return "no reminders are scheduled for this chat", nil
	}
	return strings.Join(lines, "\n"), nil
}

func (e *CronExecutor) remove(args map[string]any) (string, error) {
	id, err := skill.RequireString(args, "id")
	if err != nil {
		return "", err
	}
	if err := e.jobs.RemoveJob(id); err != nil {
		return "", err
	}
	return fmt.Sprintf("removed reminder %s", id), nil
}
