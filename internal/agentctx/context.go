// Package agentctx defines the per-turn capability bundle skill executors
// receive: the data and function handles that let a skill schedule cron
// jobs, start the cron engine, or send a side-channel image/voice reply
// without depending on the cron or transport packages directly.
package agentctx

import "context"

// ScheduleOneShotFunc schedules a one-shot cron job firing at atMs,
// addressed to the current turn's jid, and returns the new job's id.
type ScheduleOneShotFunc func(ctx context.Context, atMs int64, name, message string) (string, error)

// ScheduleRecurringFunc schedules a recurring cron job for expr (a
// standard five/six-field cron expression) in tz (empty means local),
// addressed to the current turn's jid, and returns the new job's id.
type ScheduleRecurringFunc func(ctx context.Context, expr, tz, name, message string) (string, error)

// StartCronFunc ensures the cron engine's scheduler is running; idempotent.
type StartCronFunc func(ctx context.Context) error

// SendImageFunc delivers an image reply with caption to the current chat.
type SendImageFunc func(ctx context.Context, path, caption string) error

// SendVoiceFunc synthesizes text and delivers it as a voice reply to the
// current chat.
type SendVoiceFunc func(ctx context.Context, text string) error

// Context is the per-turn bundle passed to skill executors. Transport- and
// cron-specific capabilities are hidden behind the function fields so a
// skill never imports internal/cron or internal/transport.
type Context struct {
	StorePath    string
	JID          string
	IsGroup      bool
	WorkspaceDir string

	ScheduleOneShot   ScheduleOneShotFunc
	ScheduleRecurring ScheduleRecurringFunc
	StartCron         StartCronFunc
	SendImage         SendImageFunc
	SendVoice         SendVoiceFunc
}
