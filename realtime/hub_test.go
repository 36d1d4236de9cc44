package realtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

// serveChannel upgrades every request and subscribes it to the channel given
// in the "channel" query parameter.
func serveChannel(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, r.URL.Query().Get("channel"))
		if !hub.Subscribe(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, channel string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?channel=" + channel
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubPublishDeliversToChannelSubscribers(t *testing.T) {
	hub := newTestHub(t)
	srv := serveChannel(t, hub)

	alice := dial(t, srv, "user:alice")
	bob := dial(t, srv, "user:bob")
	require.Eventually(t, func() bool {
		return hub.SubscriberCount("user:alice") == 1 && hub.SubscriberCount("user:bob") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), "user:alice", []byte(`{"kind":"match_ready"}`)))

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := alice.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"match_ready"}`, string(msg))

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err, "bob must not receive alice's notification")
}

func TestHubPublishWithoutSubscribersIsDropped(t *testing.T) {
	hub := newTestHub(t)

	err := hub.Publish(context.Background(), "user:nobody", []byte(`{}`))
	assert.NoError(t, err)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := newTestHub(t)
	srv := serveChannel(t, hub)

	conn := dial(t, srv, "user:carol")
	require.Eventually(t, func() bool { return hub.SubscriberCount("user:carol") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.SubscriberCount("user:carol") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubPublishReportsSlowConsumer(t *testing.T) {
	hub := newTestHub(t)

	// A client that nobody drains: its buffer fills up.
	client := &Client{Hub: hub, Send: make(chan []byte, 1), Channel: "user:slow"}
	require.True(t, hub.Subscribe(client))
	require.Eventually(t, func() bool { return hub.SubscriberCount("user:slow") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), "user:slow", []byte("1")))
	assert.ErrorIs(t, hub.Publish(context.Background(), "user:slow", []byte("2")), ErrSlowConsumer)
}

func TestHubSubscribeAfterStop(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	assert.False(t, hub.Subscribe(&Client{Hub: hub, Send: make(chan []byte, 1), Channel: "user:late"}))
}
