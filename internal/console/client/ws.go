package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout   = 10 * time.Second
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// WSClient follows the fc-admin event feed. A background pump decodes
// frames into Bubble Tea messages; ReadLoop hands them to the program one
// at a time.
type WSClient struct {
	url    string
	dialer *websocket.Dialer
	msgs   chan tea.Msg

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSClient(url string) *WSClient {
	return &WSClient{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		msgs:   make(chan tea.Msg, 64),
	}
}

// --- Bubble Tea messages ---

type WSConnectedMsg struct{}

type WSDisconnectedMsg struct{ Err error }

// WSSnapshotMsg delivers the full session view.
type WSSnapshotMsg struct{ Payload SnapshotPayload }

// WSDeltaMsg delivers batched lifecycle events.
type WSDeltaMsg struct{ Payload DeltaPayload }

type WSErrorMsg struct{ Raw json.RawMessage }

// Listen connects, retrying with exponential backoff until ctx is done, and
// starts the pump for the new connection.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		conn, err := c.dial(ctx)
		if err != nil {
			return nil
		}
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.conn = conn
		c.mu.Unlock()

		go c.pump(ctx, conn)
		return WSConnectedMsg{}
	}
}

// ReadLoop waits for the next feed message. Re-issue it after each one.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-c.msgs:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	delay := reconnectBaseDelay
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, reconnectMaxDelay)
	}
}

// pump reads frames from conn until it fails, then reports the disconnect.
func (c *WSClient) pump(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go keepalive(conn, done)

	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.forget(conn)
			c.deliver(ctx, WSDisconnectedMsg{Err: err})
			return
		}
		var msg WSMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if m := Dispatch(msg); m != nil && !c.deliver(ctx, m) {
			return
		}
	}
}

func (c *WSClient) deliver(ctx context.Context, msg tea.Msg) bool {
	select {
	case c.msgs <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *WSClient) forget(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

// keepalive pings until done is closed or a ping fails. WriteControl may
// run concurrently with the reader.
func keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// Close drops the current connection; the pump then reports the disconnect.
func (c *WSClient) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Dispatch turns a feed message into a Bubble Tea message, or nil for
// unknown or malformed messages.
func Dispatch(msg WSMessage) tea.Msg {
	switch msg.Type {
	case MsgSnapshot:
		var p SnapshotPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return WSSnapshotMsg{Payload: p}
		}
	case MsgDelta:
		var p DeltaPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return WSDeltaMsg{Payload: p}
		}
	case MsgError:
		return WSErrorMsg{Raw: msg.Payload}
	}
	return nil
}
