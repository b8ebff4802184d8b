package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/KasunDA/fc-admin/internal/session"
)

var ErrTooManyConnections = errors.New("too many websocket connections")

const writeWait = 10 * time.Second

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans lifecycle events out to WebSocket clients. Events are
// batched into throttled deltas; a full snapshot goes to each new client and
// to everyone on a fixed interval.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int
	privacy  *session.PrivacyFilter
	onCount  func(int)

	lifecycle      *session.Lifecycle
	throttle       time.Duration
	snapshotTicker *time.Ticker
	stopCh         chan struct{}
	stopOnce       sync.Once

	flushMu       sync.Mutex
	pendingEvents []session.Event
	flushTimer    *time.Timer
}

// NewBroadcaster starts the snapshot loop. maxConns <= 0 means unlimited.
func NewBroadcaster(lc *session.Lifecycle, throttle, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	b := &Broadcaster{
		clients:        make(map[*client]bool),
		maxConns:       maxConns,
		privacy:        &session.PrivacyFilter{},
		lifecycle:      lc,
		throttle:       throttle,
		snapshotTicker: time.NewTicker(snapshotInterval),
		stopCh:         make(chan struct{}),
	}
	go b.snapshotLoop()
	return b
}

func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.snapshotTicker.Stop()
		close(b.stopCh)
	})
}

// SetPrivacyFilter replaces the filter applied to outgoing messages.
func (b *Broadcaster) SetPrivacyFilter(f *session.PrivacyFilter) {
	if f == nil {
		f = &session.PrivacyFilter{}
	}
	b.mu.Lock()
	b.privacy = f
	b.mu.Unlock()
}

// OnClientCount registers a hook called with the client count whenever it
// changes.
func (b *Broadcaster) OnClientCount(fn func(int)) {
	b.mu.Lock()
	b.onCount = fn
	b.mu.Unlock()
}

func (b *Broadcaster) filter() *session.PrivacyFilter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.privacy
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{conn: conn, b: b, send: make(chan []byte, 64)}
	snapshot, _ := json.Marshal(b.snapshotMessage())

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	c.send <- snapshot
	n, hook := len(b.clients), b.onCount
	b.mu.Unlock()
	if hook != nil {
		hook(n)
	}

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	_, ok := b.clients[c]
	if ok {
		delete(b.clients, c)
		close(c.send)
	}
	n, hook := len(b.clients), b.onCount
	b.mu.Unlock()
	if ok && hook != nil {
		hook(n)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// QueueEvent adds ev to the next delta.
func (b *Broadcaster) QueueEvent(ev session.Event) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.pendingEvents = append(b.pendingEvents, ev)
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

// Consume forwards events from ch to clients, and to each observer, until
// ctx is done or ch is closed. Session transitions and deploy changes are
// followed by a fresh snapshot.
func (b *Broadcaster) Consume(ctx context.Context, ch <-chan session.Event, observers ...func(session.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			for _, obs := range observers {
				obs(ev)
			}
			b.QueueEvent(ev)
			if ev.Type != session.EventChangeRecorded {
				b.BroadcastSnapshot()
			}
		}
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	events := b.pendingEvents
	b.pendingEvents = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(events) == 0 {
		return
	}
	pf := b.filter()
	if !pf.IsNoop() {
		for i := range events {
			events[i] = pf.ApplyEvent(events[i])
		}
	}
	b.broadcast(WSMessage{Type: MsgDelta, Payload: DeltaPayload{Events: events}})
}

func (b *Broadcaster) snapshotMessage() WSMessage {
	pf := b.filter()
	snap := pf.ApplySnapshot(b.lifecycle.Snapshot())
	deploys := b.lifecycle.Deploys().List()
	summaries := make([]DeploySummary, 0, len(deploys))
	for _, d := range deploys {
		s := summarize(d)
		s.Host = pf.MaskHost(s.Host)
		summaries = append(summaries, s)
	}
	return WSMessage{Type: MsgSnapshot, Payload: SnapshotPayload{Session: snap, Deploys: summaries}}
}

func (b *Broadcaster) BroadcastSnapshot() {
	b.broadcast(b.snapshotMessage())
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.snapshotTicker.C:
			b.BroadcastSnapshot()
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("broadcast marshal error")
		return
	}

	// Sends happen under the read lock so RemoveClient cannot close a
	// channel mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Msg("ws client too slow, disconnecting")
		b.RemoveClient(c)
	}
}
