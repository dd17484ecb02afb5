package cron_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/cron"
)

type stubAgent struct {
	replies []string
	errs    []error
	calls   int
}

func (a *stubAgent) RunTurn(ctx context.Context, systemPrompt, userMessage, jid string) (string, error) {
	i := a.calls
	a.calls++
	var err error
	if i < len(a.errs) {
		err = a.errs[i]
	}
	var reply string
	if i < len(a.replies) {
		reply = a.replies[i]
	}
	return reply, err
}

type stubSender struct {
	sent []string
	err  error
}

func (s *stubSender) Send(ctx context.Context, jid, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, text)
	return nil
}

func TestExecutorSucceedsOnFirstAttempt(t *testing.T) {
	agent := &stubAgent{replies: []string{"ok"}}
	sender := &stubSender{}
	exec := cron.NewExecutor(nil, agent, cron.TransportRouter{BotAPI: sender, LinkedDevice: sender})
	exec.SetSleepForTest(nil)

	job := cron.Job{ID: "j1", Name: "reminder", JID: "123"}
	require.NoError(t, exec.Run(context.Background(), job))
	require.Equal(t, []string{"ok"}, sender.sent)
	require.Equal(t, 1, agent.calls)
}

func TestExecutorRetriesThenApologizes(t *testing.T) {
	agentErr := errors.New("boom")
	agent := &stubAgent{errs: []error{agentErr, agentErr, agentErr}}
	sender := &stubSender{}
	exec := cron.NewExecutor(nil, agent, cron.TransportRouter{BotAPI: sender, LinkedDevice: sender})
	exec.SetSleepForTest(nil)

	job := cron.Job{ID: "j1", Name: "reminder", JID: "123"}
	err := exec.Run(context.Background(), job)
	require.Error(t, err)
	require.Equal(t, 3, agent.calls)
	require.Len(t, sender.sent, 1)
	require.Contains(t, sender.sent[0], "reminder")
	require.Contains(t, sender.sent[0], "didn't go through")
}

func TestExecutorRefusesWithoutTransport(t *testing.T) {
	agent := &stubAgent{replies: []string{"ok"}}
	exec := cron.NewExecutor(nil, agent, cron.TransportRouter{})
	job := cron.Job{ID: "j1", Name: "reminder", JID: "not-numeric"}
	err := exec.Run(context.Background(), job)
	require.Error(t, err)
	require.Equal(t, 0, agent.calls)
}

func TestTransportRouterSelectsByJIDShape(t *testing.T) {
	numeric := &stubSender{}
	linked := &stubSender{}
	router := cron.TransportRouter{BotAPI: numeric, LinkedDevice: linked}
	require.Same(t, numeric, router.Resolve("123456"))
	require.Same(t, linked, router.Resolve("user@device"))
}
