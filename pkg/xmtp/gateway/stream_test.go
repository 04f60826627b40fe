package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebsocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:5556":        "ws://localhost:5556/v1/stream/messages",
		"https://gw.example.com/base/": "wss://gw.example.com/base/v1/stream/messages",
		"wss://gw.example.com?x=1":     "wss://gw.example.com/v1/stream/messages",
	}
	for in, want := range cases {
		got, err := WebsocketURL(in)
		if err != nil {
			t.Fatalf("WebsocketURL(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("WebsocketURL(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := WebsocketURL("ftp://x"); err == nil {
		t.Fatalf("expected error for bad scheme")
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func TestStreamMessagesOnce_PingAndMessage(t *testing.T) {
	gotPong := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != streamPath {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_, reply, err := conn.ReadMessage()
		if err == nil && strings.Contains(string(reply), "pong") {
			gotPong <- struct{}{}
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","message":{"id":"m1","conversationId":"c1","senderInboxId":"s","contentType":"xmtp.org/text:1.0","content":"hello","sentAtNs":5}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got MessageDTO
	err := c.StreamMessagesOnce(ctx, func(ctx context.Context, msg MessageDTO) error {
		got = msg
		cancel()
		return nil
	}, StreamOptions{})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got.ID != "m1" || got.Content != "hello" || got.SentAtNs != 5 {
		t.Fatalf("unexpected message: %+v", got)
	}
	select {
	case <-gotPong:
	default:
		t.Fatalf("expected pong reply")
	}
}

func TestStreamMessagesOnce_ErrorFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","error":"boom"}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	err := newTestClient(t, srv).StreamMessagesOnce(context.Background(), func(context.Context, MessageDTO) error { return nil }, StreamOptions{})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestStreamMessages_ReconnectsAfterDrop(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if n == 1 {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","message":{"id":"m2","conversationId":"c"}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var disconnects atomic.Int32
	err := newTestClient(t, srv).StreamMessages(ctx, func(ctx context.Context, msg MessageDTO) error {
		if msg.ID == "m2" {
			cancel()
		}
		return nil
	}, StreamOptions{}, ReconnectOptions{
		InitialBackoff: 5 * time.Millisecond,
		OnDisconnect:   func(error, time.Duration) { disconnects.Add(1) },
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if conns.Load() < 2 || disconnects.Load() < 1 {
		t.Fatalf("expected a reconnect, conns=%d disconnects=%d", conns.Load(), disconnects.Load())
	}
}

func TestStreamMessages_StopsOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := newTestClient(t, srv).StreamMessages(ctx, func(context.Context, MessageDTO) error { return nil }, StreamOptions{}, ReconnectOptions{InitialBackoff: time.Millisecond})
	if err == nil || ctx.Err() != nil {
		t.Fatalf("expected immediate non-retryable error, got %v", err)
	}
}
