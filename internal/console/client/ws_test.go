package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// runCmd runs a Bubble Tea command with a deadline.
func runCmd(t *testing.T, cmd func() any) any {
	t.Helper()
	out := make(chan any, 1)
	go func() { out <- cmd() }()
	select {
	case msg := <-out:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("command did not return")
		return nil
	}
}

func TestWSClient_SnapshotThenDisconnect(t *testing.T) {
	closeConn := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"snapshot","payload":{"session":{"state":"active","host":"ws1"},"deploys":[]}}`))
		<-closeConn
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewWSClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	defer c.Close()

	listen := c.Listen(ctx)
	if msg := runCmd(t, func() any { return listen() }); msg != (WSConnectedMsg{}) {
		t.Fatalf("Listen = %#v, want connected", msg)
	}

	read := c.ReadLoop(ctx)
	snap, ok := runCmd(t, func() any { return read() }).(WSSnapshotMsg)
	if !ok || snap.Payload.Session.Host != "ws1" {
		t.Fatalf("first message = %#v, want snapshot for ws1", snap)
	}

	close(closeConn)
	if _, ok := runCmd(t, func() any { return read() }).(WSDisconnectedMsg); !ok {
		t.Error("expected a disconnect after the server closed")
	}
}

func TestWSClient_ListenStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewWSClient("ws://127.0.0.1:1/ws")
	cancel()
	if msg := runCmd(t, func() any { return c.Listen(ctx)() }); msg != nil {
		t.Errorf("Listen after cancel = %#v, want nil", msg)
	}
}
