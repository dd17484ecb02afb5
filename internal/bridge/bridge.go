// Package bridge is the thin glue between a Transport and the Agent Loop:
// it ingests an inbound message, serializes it behind the chat's turn lock,
// runs one agent turn, and forwards the reply (text plus any side-channel
// media) back over the same transport.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mooassistant/moo/internal/agent"
	"github.com/mooassistant/moo/internal/skill"
	"github.com/mooassistant/moo/internal/transport"
	"github.com/mooassistant/moo/internal/turnqueue"
)

const busyReply = "I'm still working on your earlier messages — give me a moment and try again."

// Runner is the Agent Loop surface the bridge drives.
type Runner interface {
	Run(ctx context.Context, req agent.Request) (agent.Result, error)
}

// Config carries the per-user defaults the system prompt mentions.
type Config struct {
	UserTimezone string
	TimeFormat   string
}

// Bridge routes inbound messages into agent turns and replies back out.
type Bridge struct {
	loop    Runner
	queue   *turnqueue.Manager
	skills  *skill.Registry
	enabled []string
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// New builds a Bridge.
func New(log *slog.Logger, loop Runner, queue *turnqueue.Manager, skills *skill.Registry, enabledIDs []string, cfg Config) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		loop:    loop,
		queue:   queue,
		skills:  skills,
		enabled: enabledIDs,
		cfg:     cfg,
		logger:  log.With(slog.String("component", "bridge")),
		now:     time.Now,
	}
}

// SetClockForTest overrides the clock the system prompt's current-time line
// is rendered with.
func (b *Bridge) SetClockForTest(now func() time.Time) {
	if now != nil {
		b.now = now
	}
}

// HandlerFor returns the transport.Handler that replies over sender. One
// bridge serves every transport; each gets a handler bound to its own
// sender so replies always leave through the surface the message arrived on.
func (b *Bridge) HandlerFor(sender transport.Sender) transport.Handler {
	return func(ctx context.Context, msg transport.InboundMessage) {
		b.Handle(ctx, sender, msg)
	}
}

// Handle processes one inbound message to completion: queue admission, the
// agent turn, and reply delivery. Everything below the loop is already
// recovered; the only outcomes here are a reply, a busy notice, or a short
// user-facing failure sentence.
func (b *Bridge) Handle(ctx context.Context, sender transport.Sender, msg transport.InboundMessage) {
	release, err := b.queue.Acquire(ctx, msg.JID)
	if errors.Is(err, turnqueue.ErrBusy) {
		if sendErr := sender.SendText(ctx, msg.JID, busyReply); sendErr != nil {
			b.logger.Warn("busy notice send failed", slog.String("jid", msg.JID), slog.Any("err", sendErr))
		}
		return
	}
	if err != nil {
		b.logger.Warn("turn admission failed", slog.String("jid", msg.JID), slog.Any("err", err))
		return
	}
	defer release()

	result, err := b.loop.Run(ctx, agent.Request{
		SystemPrompt: b.SystemPrompt(msg.IsGroup),
		UserMessage:  msg.Text,
		JID:          msg.JID,
		IsGroup:      msg.IsGroup,
	})
	if err != nil {
		b.logger.Error("agent turn failed", slog.String("jid", msg.JID), slog.Any("err", err))
		if sendErr := sender.SendText(ctx, msg.JID, "I couldn't reach the model just now. Try again in a bit."); sendErr != nil {
			b.logger.Warn("failure notice send failed", slog.String("jid", msg.JID), slog.Any("err", sendErr))
		}
		return
	}

	if result.Text != "" {
		if err := sender.SendText(ctx, msg.JID, result.Text); err != nil {
			b.logger.Error("reply send failed", slog.String("jid", msg.JID), slog.Any("err", err))
		}
	}
	if result.ImagePath != "" {
		if err := sender.SendImage(ctx, msg.JID, result.ImagePath, result.ImageCaption); err != nil {
			b.logger.Error("image reply send failed", slog.String("jid", msg.JID), slog.Any("err", err))
		}
	}
	if result.VoicePath != "" {
		if err := sender.SendVoice(ctx, msg.JID, result.VoicePath); err != nil {
			b.logger.Error("voice reply send failed", slog.String("jid", msg.JID), slog.Any("err", err))
		}
	}
}

// SystemPrompt renders the live-chat system prompt: identity, the current
// time in the user's timezone, the enabled skills' doc lines, and the
// scheduling clarification rule.
func (b *Bridge) SystemPrompt(isGroup bool) string {
	var sb strings.Builder
	sb.WriteString("You are Moo, a personal assistant reachable over chat. Be brief and concrete.\n")

	loc, err := time.LoadLocation(b.cfg.UserTimezone)
	if err != nil || b.cfg.UserTimezone == "" {
		loc = time.UTC
	}
	format := b.cfg.TimeFormat
	if format == "" {
		format = "15:04"
	}
	now := b.now().In(loc)
	fmt.Fprintf(&sb, "Current time: %s %s (%s).\n", now.Format("2006-01-02"), now.Format(format), loc.String())

	if docs := b.skills.Docs(b.enabled, isGroup); len(docs) > 0 {
		sb.WriteString("Skills:\n")
		for _, d := range docs {
			sb.WriteString("- ")
			sb.WriteString(d)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("If a scheduling request is ambiguous about its time, recipient, or wording, ask the user a clarifying question instead of inventing content.")
	return sb.String()
}
