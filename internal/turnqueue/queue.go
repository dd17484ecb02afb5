// Package turnqueue serializes turns per chat: a per-chat mutex keeps one
// chat's turns ordered while independent chats run concurrently, and a
// bounded queue depth gives callers an explicit "busy" signal instead of
// letting a stuck provider back up memory indefinitely.
package turnqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultQueueDepth      = 8
	defaultBusyLogInterval = 5 * time.Second
)

// ErrBusy is returned by Acquire when jid's queue is already at capacity.
var ErrBusy = errors.New("turnqueue: chat is busy")

type chatState struct {
	slots       chan struct{}
	mu          sync.Mutex
	busyLimiter *rate.Limiter
}

// Manager owns one bounded queue and mutex per chat, created lazily on
// first use.
type Manager struct {
	mu         sync.Mutex
	chats      map[string]*chatState
	queueDepth int
	logger     *slog.Logger
}

// New builds a Manager with the given per-chat queue depth (<=0 uses the
// spec default of 8).
func New(log *slog.Logger, queueDepth int) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	return &Manager{
		chats:      map[string]*chatState{},
		queueDepth: queueDepth,
		logger:     log.With(slog.String("component", "turnqueue")),
	}
}

func (m *Manager) stateFor(jid string) *chatState {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.chats[jid]
	if !ok {
		cs = &chatState{
			slots:       make(chan struct{}, m.queueDepth),
			busyLimiter: rate.NewLimiter(rate.Every(defaultBusyLogInterval), 1),
		}
		m.chats[jid] = cs
	}
	return cs
}

// Acquire reserves a queue slot for jid, then blocks until this chat's own
// turn lock is free (previous turns for the same chat, if any, run to
// completion first). It returns ErrBusy immediately, without blocking,
// when jid's queue is already at the depth cap. Callers must invoke the
// returned release exactly once, and only on a nil error.
func (m *Manager) Acquire(ctx context.Context, jid string) (release func(), err error) {
	cs := m.stateFor(jid)

	select {
	case cs.slots <- struct{}{}:
	default:
		if cs.busyLimiter.Allow() {
			m.logger.Warn("chat queue saturated", slog.String("jid", jid), slog.Int("depth", m.queueDepth))
		}
		return nil, ErrBusy
	}

	select {
	case <-ctx.Done():
		<-cs.slots
		return nil, ctx.Err()
	default:
	}

	cs.mu.Lock()
	released := false
	release = func() {
		if released {
			return
		}
		released = true
		cs.mu.Unlock()
		<-cs.slots
	}
	return release, nil
}

// Depth returns the configured per-chat queue depth.
func (m *Manager) Depth() int { return m.queueDepth }
