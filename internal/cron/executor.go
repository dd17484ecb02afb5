package cron

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"
)

// AgentRunner is the Agent Loop surface the executor drives a job through.
type AgentRunner interface {
	RunTurn(ctx context.Context, systemPrompt, userMessage, jid string) (string, error)
}

// Sender delivers text to a jid over whichever transport owns it.
type Sender interface {
	Send(ctx context.Context, jid, text string) error
}

var numericJID = regexp.MustCompile(`^[0-9]+$`)

// TransportRouter picks a Sender for a jid: numeric jids route to the
// bot-API transport, everything else to the linked-device transport.
type TransportRouter struct {
	BotAPI      Sender
	LinkedDevice Sender
}

// Resolve returns the Sender for jid, or nil if none is wired.
func (r TransportRouter) Resolve(jid string) Sender {
	if numericJID.MatchString(jid) {
		return r.BotAPI
	}
	return r.LinkedDevice
}

const reminderSystemPrompt = "You are answering a scheduled reminder. Reply as you would in live chat."

var retryDelays = []time.Duration{5 * time.Second, 15 * time.Second}

// Executor runs one cron job by invoking the Agent Loop and delivering the
// reply over the transport selected for the job's jid, retrying transient
// failures at 5s then 15s before giving up with a best-effort apology.
type Executor struct {
	agent   AgentRunner
	router  TransportRouter
	logger  *slog.Logger
	sleep   func(time.Duration)
}

// NewExecutor builds an Executor.
func NewExecutor(log *slog.Logger, agent AgentRunner, router TransportRouter) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		agent:  agent,
		router: router,
		logger: log.With(slog.String("component", "cron_executor")),
		sleep:  time.Sleep,
	}
}

// SetSleepForTest overrides the retry-delay sleep function; tests pass a
// no-op to avoid waiting on real wall-clock time.
func (e *Executor) SetSleepForTest(sleep func(time.Duration)) {
	if sleep == nil {
		sleep = func(time.Duration) {}
	}
	e.sleep = sleep
}

// Run executes job once, with the retry policy applied, and returns the
// final error (if any) after retries and the best-effort apology.
func (e *Executor) Run(ctx context.Context, job Job) error {
	sender := e.router.Resolve(job.JID)
	if sender == nil {
		err := fmt.Errorf("no transport wired for jid %q", job.JID)
		e.logger.Error("cron job has no transport", slog.String("job", job.ID), slog.Any("err", err))
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		if attempt > 0 {
			e.sleep(retryDelays[attempt-1])
		}
		lastErr = e.attempt(ctx, job, sender)
		if lastErr == nil {
			return nil
		}
		e.logger.Warn("cron job attempt failed",
			slog.String("job", job.ID), slog.Int("attempt", attempt+1), slog.Any("err", lastErr))
	}

	apology := fmt.Sprintf("[Bot] Moo — reminder '%s' didn't go through: %v", job.Name, lastErr)
	if err := sender.Send(ctx, job.JID, apology); err != nil {
		e.logger.Warn("apology send failed, ignoring", slog.String("job", job.ID), slog.Any("err", err))
	}
	return lastErr
}

func (e *Executor) attempt(ctx context.Context, job Job, sender Sender) error {
	reply, err := e.agent.RunTurn(ctx, reminderSystemPrompt, job.Message, job.JID)
	if err != nil {
		return fmt.Errorf("agent loop: %w", err)
	}
	if err := sender.Send(ctx, job.JID, reply); err != nil {
		return fmt.Errorf("transport send: %w", err)
	}
	return nil
}
