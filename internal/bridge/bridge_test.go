package bridge_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/agent"
	"github.com/mooassistant/moo/internal/bridge"
	"github.com/mooassistant/moo/internal/skill"
	"github.com/mooassistant/moo/internal/transport"
	"github.com/mooassistant/moo/internal/turnqueue"
)

type fakeRunner struct {
	result agent.Result
	err    error
	reqs   []agent.Request
}

func (f *fakeRunner) Run(ctx context.Context, req agent.Request) (agent.Result, error) {
	f.reqs = append(f.reqs, req)
	return f.result, f.err
}

type recordingSender struct {
	texts  []string
	images []string
	voices []string
}

func (r *recordingSender) SendText(ctx context.Context, jid, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingSender) SendImage(ctx context.Context, jid, path, caption string) error {
	r.images = append(r.images, path)
	return nil
}

func (r *recordingSender) SendVoice(ctx context.Context, jid, audioPath string) error {
	r.voices = append(r.voices, audioPath)
	return nil
}

func (r *recordingSender) Kind() transport.Kind { return transport.KindLinkedDevice }

func newBridge(runner *fakeRunner, queue *turnqueue.Manager) *bridge.Bridge {
	return bridge.New(nil, runner, queue, skill.NewRegistry(), nil, bridge.Config{
		UserTimezone: "UTC",
		TimeFormat:   "15:04",
	})
}

func TestHandleRunsTurnAndSendsReply(t *testing.T) {
	runner := &fakeRunner{result: agent.Result{Text: "hello back"}}
	sender := &recordingSender{}
	b := newBridge(runner, turnqueue.New(nil, 0))

	b.Handle(context.Background(), sender, transport.InboundMessage{
		JID:  "user@example.com",
		Text: "hello",
	})

	require.Len(t, runner.reqs, 1)
	require.Equal(t, "hello", runner.reqs[0].UserMessage)
	require.Equal(t, "user@example.com", runner.reqs[0].JID)
	require.Equal(t, []string{"hello back"}, sender.texts)
}

func TestHandleForwardsMediaDirectives(t *testing.T) {
	runner := &fakeRunner{result: agent.Result{
		Text:      "here you go",
		ImagePath: "/tmp/cat.png",
		VoicePath: "/tmp/reply.mp3",
	}}
	sender := &recordingSender{}
	b := newBridge(runner, turnqueue.New(nil, 0))

	b.Handle(context.Background(), sender, transport.InboundMessage{JID: "u", Text: "a cat please"})

	require.Equal(t, []string{"here you go"}, sender.texts)
	require.Equal(t, []string{"/tmp/cat.png"}, sender.images)
	require.Equal(t, []string{"/tmp/reply.mp3"}, sender.voices)
}

func TestHandleRepliesBusyWhenQueueSaturated(t *testing.T) {
	queue := turnqueue.New(nil, 1)
	release, err := queue.Acquire(context.Background(), "u")
	require.NoError(t, err)
	defer release()

	runner := &fakeRunner{result: agent.Result{Text: "never sent"}}
	sender := &recordingSender{}
	b := newBridge(runner, queue)

	b.Handle(context.Background(), sender, transport.InboundMessage{JID: "u", Text: "hello"})

	require.Empty(t, runner.reqs)
	require.Len(t, sender.texts, 1)
	require.Contains(t, sender.texts[0], "give me a moment")
}

func TestSystemPromptCarriesTimeAndClarificationRule(t *testing.T) {
	runner := &fakeRunner{result: agent.Result{Text: "ok"}}
	b := newBridge(runner, turnqueue.New(nil, 0))
	b.SetClockForTest(func() time.Time {
		return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	})

	prompt := b.SystemPrompt(false)
	require.Contains(t, prompt, "2026-03-01 09:30")
	require.True(t, strings.Contains(prompt, "clarifying question"))
}
