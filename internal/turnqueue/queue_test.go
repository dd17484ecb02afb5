package turnqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/turnqueue"
)

func TestAcquireSerializesSameChatTurns(t *testing.T) {
	m := turnqueue.New(nil, 8)
	ctx := context.Background()

	release1, err := m.Acquire(ctx, "chat-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release2, err := m.Acquire(ctx, "chat-1")
		require.NoError(t, err)
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire for the same chat returned before the first was released")
	case <-time.After(50 * time.Millisecond):
	}

	release1()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never unblocked after release")
	}
}

func TestAcquireAllowsIndependentChatsConcurrently(t *testing.T) {
	m := turnqueue.New(nil, 8)
	ctx := context.Background()

	release1, err := m.Acquire(ctx, "chat-a")
	require.NoError(t, err)
	defer release1()

	done := make(chan struct{})
	go func() {
		release2, err := m.Acquire(ctx, "chat-b")
		require.NoError(t, err)
		release2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent chat never acquired its lock")
	}
}

func TestAcquireReturnsBusyWhenQueueSaturated(t *testing.T) {
	m := turnqueue.New(nil, 2)
	ctx := context.Background()

	// Fill both slots: one turn holds the per-chat lock and a second waits
	// behind it, keeping its slot while blocked inside Acquire.
	release1, err := m.Acquire(ctx, "chat-1")
	require.NoError(t, err)

	queued := make(chan struct{})
	go func() {
		defer close(queued)
		if release2, err := m.Acquire(ctx, "chat-1"); err == nil {
			release2()
		}
	}()

	// A probe with an already-cancelled context never waits on the lock:
	// it hands its slot straight back, or gets ErrBusy once both are taken.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.Eventually(t, func() bool {
		_, err := m.Acquire(cancelled, "chat-1")
		return errors.Is(err, turnqueue.ErrBusy)
	}, time.Second, 5*time.Millisecond)

	_, err = m.Acquire(ctx, "chat-1")
	require.ErrorIs(t, err, turnqueue.ErrBusy)

	release1()
	<-queued
}

func TestDepthReturnsConfiguredValue(t *testing.T) {
	m := turnqueue.New(nil, 3)
	require.Equal(t, 3, m.Depth())

	defaultManager := turnqueue.New(nil, 0)
	require.Equal(t, 8, defaultManager.Depth())
}
