// Package linkeddevice is the WhatsApp-style linked-device Transport:
// non-numeric jids route here. A linked device holds one active
// websocket session per jid; a new
// connection for the same jid replaces the old one, mirroring how a
// freshly relinked phone supersedes a stale session.
package linkeddevice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mooassistant/moo/internal/transport"
)

// wireMessage is the JSON envelope exchanged over the websocket session in
// both directions.
type wireMessage struct {
	Type    string `json:"type"` // "text" | "image" | "voice" | "inbound"
	JID     string `json:"jid"`
	Text    string `json:"text,omitempty"`
	Path    string `json:"path,omitempty"`
	Caption string `json:"caption,omitempty"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

type session struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes to one connection
}

func (s *session) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Transport is a linked-device Sender and Receiver backed by websocket
// sessions, one per linked jid.
type Transport struct {
	mu       sync.RWMutex
	sessions map[string]*session

	upgrader websocket.Upgrader
	logger   *slog.Logger

	handlerMu sync.RWMutex
	handler   transport.Handler
}

// New builds a Transport; use it rather than the zero value, whose session
// map is nil. HTTPHandler must be mounted on an *http.ServeMux by the caller
// (this package does not run its own HTTP server).
func New(log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	return &Transport{
		sessions: map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log.With(slog.String("component", "transport_linkeddevice")),
	}
}

// Kind implements transport.Sender.
func (t *Transport) Kind() transport.Kind { return transport.KindLinkedDevice }

// Send satisfies cron.Sender/tide.Sender's plain text-only contract.
func (t *Transport) Send(ctx context.Context, jid, text string) error {
	return t.SendText(ctx, jid, text)
}

// SendText implements transport.Sender.
func (t *Transport) SendText(ctx context.Context, jid, text string) error {
	return t.send(jid, wireMessage{Type: "text", JID: jid, Text: text})
}

// SendImage implements transport.Sender.
func (t *Transport) SendImage(ctx context.Context, jid, path, caption string) error {
	return t.send(jid, wireMessage{Type: "image", JID: jid, Path: path, Caption: caption})
}

// SendVoice implements transport.Sender.
func (t *Transport) SendVoice(ctx context.Context, jid, audioPath string) error {
	return t.send(jid, wireMessage{Type: "voice", JID: jid, Path: audioPath})
}

func (t *Transport) send(jid string, msg wireMessage) error {
	t.mu.RLock()
	sess, ok := t.sessions[jid]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("linkeddevice: no linked session for jid %q", jid)
	}
	if err := sess.writeJSON(msg); err != nil {
		return fmt.Errorf("linkeddevice: send to %q: %w", jid, err)
	}
	return nil
}

// Start implements transport.Receiver: it records handler for inbound
// messages arriving over any session accepted via HTTPHandler.
func (t *Transport) Start(ctx context.Context, handler transport.Handler) error {
	t.handlerMu.Lock()
	t.handler = handler
	t.handlerMu.Unlock()
	return nil
}

// Stop implements transport.Receiver: it closes every linked session.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for jid, sess := range t.sessions {
		sess.conn.Close()
		delete(t.sessions, jid)
	}
	return nil
}

// HTTPHandler upgrades an incoming request to a websocket session. The
// linking jid is taken from the "jid" query parameter; a new connection
// for an already-linked jid replaces the previous session.
func (t *Transport) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jid := r.URL.Query().Get("jid")
		if jid == "" {
			http.Error(w, "jid is required", http.StatusBadRequest)
			return
		}
		conn, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.logger.Warn("websocket upgrade failed", slog.String("jid", jid), slog.Any("err", err))
			return
		}
		t.adopt(jid, conn)
	}
}

func (t *Transport) adopt(jid string, conn *websocket.Conn) {
	sess := &session{conn: conn}

	t.mu.Lock()
	if old, exists := t.sessions[jid]; exists {
		old.conn.Close()
	}
	t.sessions[jid] = sess
	t.mu.Unlock()

	t.logger.Info("linked device connected", slog.String("jid", jid))
	go t.readLoop(jid, sess)
}

func (t *Transport) readLoop(jid string, sess *session) {
	defer func() {
		t.mu.Lock()
		if current, ok := t.sessions[jid]; ok && current == sess {
			delete(t.sessions, jid)
		}
		t.mu.Unlock()
		sess.conn.Close()
		t.logger.Info("linked device disconnected", slog.String("jid", jid))
	}()

	for {
		var msg wireMessage
		if err := sess.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "inbound" || msg.Text == "" {
			continue
		}

		t.handlerMu.RLock()
		handler := t.handler
		t.handlerMu.RUnlock()
		if handler == nil {
			continue
		}
		handler(context.Background(), transport.InboundMessage{
			JID:        jid,
			IsGroup:    msg.IsGroup,
			Text:       msg.Text,
			ReceivedAt: time.Now().UTC(),
		})
	}
}
