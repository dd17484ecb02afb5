package linkeddevice_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/transport"
	"github.com/mooassistant/moo/internal/transport/linkeddevice"
)

func dialTestServer(t *testing.T, srv *httptest.Server, jid string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?jid=" + jid
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSendTextDeliversToLinkedSession(t *testing.T) {
	lt := linkeddevice.New(nil)
	require.NoError(t, lt.Start(context.Background(), nil))

	srv := httptest.NewServer(lt.HTTPHandler())
	defer srv.Close()

	conn := dialTestServer(t, srv, "device-1")
	require.Eventually(t, func() bool {
		return lt.SendText(context.Background(), "device-1", "hello") == nil
	}, time.Second, 10*time.Millisecond)

	var got map[string]any
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "hello", got["text"])
	require.Equal(t, "text", got["type"])
}

func TestSendTextFailsWithoutLinkedSession(t *testing.T) {
	lt := linkeddevice.New(nil)
	err := lt.SendText(context.Background(), "unlinked", "hi")
	require.Error(t, err)
}

func TestInboundMessageReachesHandler(t *testing.T) {
	lt := linkeddevice.New(nil)
	received := make(chan transport.InboundMessage, 1)
	require.NoError(t, lt.Start(context.Background(), func(ctx context.Context, msg transport.InboundMessage) {
		received <- msg
	}))

	srv := httptest.NewServer(lt.HTTPHandler())
	defer srv.Close()

	conn := dialTestServer(t, srv, "device-2")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "inbound", "text": "ping"}))

	select {
	case msg := <-received:
		require.Equal(t, "device-2", msg.JID)
		require.Equal(t, "ping", msg.Text)
	case <-time.After(time.Second):
		t.Fatal("handler never received the inbound message")
	}
}

func TestReconnectReplacesPreviousSession(t *testing.T) {
	lt := linkeddevice.New(nil)
	require.NoError(t, lt.Start(context.Background(), nil))

	srv := httptest.NewServer(lt.HTTPHandler())
	defer srv.Close()

	first := dialTestServer(t, srv, "device-3")
	dialTestServer(t, srv, "device-3") // second connection for the same jid

	first.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := first.ReadMessage()
	require.Error(t, err, "the superseded connection should be closed")
}
