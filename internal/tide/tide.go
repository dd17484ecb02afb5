// Package tide implements the periodic "should we speak?" idle-wake
// scheduler: it runs the Agent Loop without a user message when a tracked
// chat has gone quiet outside its configured quiet window.
package tide

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mooassistant/moo/internal/chatlog"
)

const tideSystemPrompt = "You are checking in after a period of silence. Reply with at most one short, " +
	"context-tied message (e.g. \"still waiting on X?\"). If there is nothing worth saying, reply with an empty message."

// AgentRunner is the Agent Loop surface Tide drives a wake through.
type AgentRunner interface {
	RunTurn(ctx context.Context, systemPrompt, userMessage, jid string) (string, error)
}

// Sender delivers a Tide nudge to its chat.
type Sender interface {
	Send(ctx context.Context, jid, text string) error
}

// History supplies the last-activity timestamp Tide compares against its
// cooldown, and is where Tide records its own sends so a later wake sees
// them as recent activity (never double-texting).
type History interface {
	LastActivityMs(jid string) (ts int64, ok bool, err error)
	Append(jid string, e chatlog.Entry) error
}

// Config mirrors the tide.* document section (internal/config.TideConfig),
// already resolved to a time.Duration/time.Location for this package's use.
type Config struct {
	Enabled         bool
	SilenceCooldown time.Duration
	InactiveStart   string // "HH:MM", user timezone
	InactiveEnd     string // "HH:MM", user timezone, may be < InactiveStart (wraps midnight)
	JID             string // explicit default chat; empty means Tide tracks nothing
	Location        *time.Location
}

// Tide is the idle-wake scheduler.
type Tide struct {
	agent   AgentRunner
	sender  Sender
	history History
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// New builds a Tide. now defaults to time.Now; tests inject a fixed clock.
func New(log *slog.Logger, agent AgentRunner, sender Sender, history History, cfg Config, now func() time.Time) *Tide {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Tide{
		agent:   agent,
		sender:  sender,
		history: history,
		cfg:     cfg,
		logger:  log.With(slog.String("component", "tide")),
		now:     now,
	}
}

// Run wakes every interval until ctx is cancelled. interval is normally
// cfg.SilenceCooldown, but tests pass a much shorter tick to exercise many
// wakes quickly; the cooldown itself still gates whether a wake sends.
func (t *Tide) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Wake(ctx)
		}
	}
}

// Wake runs a single check-and-maybe-speak cycle. Exported so tests and a
// manual "moo tide wake" operator command can drive it directly.
func (t *Tide) Wake(ctx context.Context) {
	if !t.cfg.Enabled || t.cfg.JID == "" {
		return
	}

	now := t.now()
	if t.inQuietWindow(now) {
		t.logger.Debug("skipping wake, inside quiet window", slog.String("jid", t.cfg.JID))
		return
	}

	lastMs, ok, err := t.history.LastActivityMs(t.cfg.JID)
	if err != nil {
		t.logger.Warn("failed to read last activity", slog.String("jid", t.cfg.JID), slog.Any("err", err))
		return
	}
	if ok {
		elapsed := now.Sub(time.UnixMilli(lastMs))
		if elapsed < t.cfg.SilenceCooldown {
			t.logger.Debug("skipping wake, chat not quiet long enough", slog.String("jid", t.cfg.JID), slog.Duration("elapsed", elapsed))
			return
		}
	}

	reply, err := t.agent.RunTurn(ctx, tideSystemPrompt, "", t.cfg.JID)
	if err != nil {
		t.logger.Warn("tide agent turn failed", slog.String("jid", t.cfg.JID), slog.Any("err", err))
		return
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return
	}

	if err := t.sender.Send(ctx, t.cfg.JID, reply); err != nil {
		t.logger.Warn("tide send failed", slog.String("jid", t.cfg.JID), slog.Any("err", err))
		return
	}
	if err := t.history.Append(t.cfg.JID, chatlog.Entry{TS: now.UnixMilli(), Assistant: reply}); err != nil {
		t.logger.Warn("tide failed to record its own send", slog.String("jid", t.cfg.JID), slog.Any("err", err))
	}
}

// inQuietWindow reports whether now, in cfg.Location, falls in
// [InactiveStart, InactiveEnd), wrapping past midnight when end <= start.
func (t *Tide) inQuietWindow(now time.Time) bool {
	start, err := parseHHMM(t.cfg.InactiveStart)
	if err != nil {
		return false
	}
	end, err := parseHHMM(t.cfg.InactiveEnd)
	if err != nil {
		return false
	}
	local := now.In(t.cfg.Location)
	cur := local.Hour()*60 + local.Minute()
	if end <= start {
		return cur >= start || cur < end
	}
	return cur >= start && cur < end
}

// parseHHMM parses "HH:MM" into minutes since midnight.
func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("tide: invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("tide: invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("tide: invalid minute in %q", s)
	}
	return h*60 + m, nil
}
