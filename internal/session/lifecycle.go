package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/KasunDA/fc-admin/internal/changes"
)

// Bridge is the remote desktop transport that must be running while a
// session is Active. Start must be idempotent for the same host and must
// tear down a bridge to a different host first. Stop must tolerate being
// called when nothing is running.
type Bridge interface {
	Start(ctx context.Context, host string) error
	Stop(ctx context.Context) error
}

// Lifecycle owns the single capture session: its state, the target host,
// the collector registry, and the bridge that backs it. Committed
// selections are handed to the pending Deploys table.
type Lifecycle struct {
	mu         sync.RWMutex
	state      State
	starting   bool // Start reserved the transition and is talking to the bridge
	host       string
	startedAt  time.Time
	registry   *changes.Registry
	namespaces []string

	bridge  Bridge
	deploys *Deploys

	events      chan<- Event
	observers   []func(Event)
	dropMu      sync.Mutex
	dropped     int
	lastDropLog time.Time

	logger zerolog.Logger
}

func NewLifecycle(bridge Bridge, deploys *Deploys, namespaces []string) *Lifecycle {
	return &Lifecycle{
		bridge:     bridge,
		deploys:    deploys,
		namespaces: append([]string(nil), namespaces...),
		logger:     log.With().Str("component", "session").Logger(),
	}
}

// SetEvents configures a channel for lifecycle events. Sends never block;
// events are dropped when the consumer falls behind. Pass nil to disable.
func (l *Lifecycle) SetEvents(ch chan<- Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = ch
}

// Observe registers fn to run for every event, including events the
// channel drops. fn runs with the lifecycle lock held, possibly from
// several goroutines at once, and must not call back into the Lifecycle.
func (l *Lifecycle) Observe(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// SetNamespaces replaces the namespace set. It applies to the next Start;
// an Active session keeps the registry it was started with.
func (l *Lifecycle) SetNamespaces(namespaces []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.namespaces = append([]string(nil), namespaces...)
}

// Deploys returns the pending-deploys table the lifecycle commits into.
func (l *Lifecycle) Deploys() *Deploys {
	return l.deploys
}

// Start brings the bridge up against host and opens a capture session.
//
// The bridge is always stopped before it is started. The lifecycle lock is
// not held while the bridge works; the starting flag keeps a concurrent
// Start out in the meantime. On bridge failure the state stays Idle and the
// returned error is a *BridgeError.
func (l *Lifecycle) Start(ctx context.Context, host string) error {
	l.mu.Lock()
	if l.state == Active || l.starting {
		l.mu.Unlock()
		return ErrAlreadyActive
	}
	l.starting = true
	l.mu.Unlock()

	if err := l.bridge.Stop(ctx); err != nil {
		l.logger.Warn().Err(err).Msg("bridge stop before start failed")
	}
	err := l.bridge.Start(ctx, host)

	l.mu.Lock()
	l.starting = false
	if err != nil {
		l.mu.Unlock()
		l.logger.Error().Err(err).Str("host", host).Msg("bridge start failed")
		return &BridgeError{Host: host, Err: err}
	}
	l.state = Active
	l.host = host
	l.startedAt = time.Now()
	l.registry = changes.NewRegistry(l.namespaces)
	l.emitLocked(Event{Type: EventSessionStarted, Host: host})
	l.mu.Unlock()

	l.logger.Info().Str("host", host).Msg("capture session started")
	return nil
}

// Stop closes the capture session and stops the bridge. The state is Idle
// once Stop returns, even if the bridge reports an error. Pending deploys
// are not touched.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	if l.state != Active {
		l.mu.Unlock()
		return ErrNotActive
	}
	host := l.host
	l.state = Idle
	l.host = ""
	l.startedAt = time.Time{}
	l.registry = nil
	l.emitLocked(Event{Type: EventSessionStopped, Host: host})
	l.mu.Unlock()

	l.logger.Info().Str("host", host).Msg("capture session stopped")
	if err := l.bridge.Stop(ctx); err != nil {
		return fmt.Errorf("stopping bridge for %s: %w", host, err)
	}
	return nil
}

// RouteChange records ev in the collector for its namespace.
func (l *Lifecycle) RouteChange(ev changes.Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != Active {
		return ErrNotActive
	}
	if err := l.registry.Route(ev); err != nil {
		return err
	}
	l.emitLocked(Event{Type: EventChangeRecorded, Namespace: ev.Namespace, Key: ev.Key, Value: ev.Clone().Value})
	return nil
}

// Dump returns the sorted (key, value) pairs collected for namespace.
func (l *Lifecycle) Dump(namespace string) ([]changes.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != Active {
		return nil, ErrNotActive
	}
	return l.registry.Dump(namespace)
}

// CommitSelection freezes the selected events of every namespace into a new
// Deploy and clears the registry. Indices are resolved against the same
// sorted order that is cleared, with no change routed in between. The
// session stays Active and keeps collecting into the emptied registry.
func (l *Lifecycle) CommitSelection(selection map[string][]int) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != Active {
		return "", ErrNotActive
	}

	d := &Deploy{
		ID:         uuid.NewString(),
		Host:       l.host,
		CreatedAt:  time.Now(),
		Collectors: l.registry.Freeze(selection),
	}
	l.deploys.Put(d)
	l.emitLocked(Event{Type: EventDeployCommitted, Host: d.Host, DeployID: d.ID, Changes: d.Len()})

	l.logger.Info().Str("deploy", d.ID).Int("changes", d.Len()).Msg("selection committed")
	return d.ID, nil
}

// Notify publishes an event produced outside the lifecycle, such as a saved
// deploy, on the same channel as lifecycle events.
func (l *Lifecycle) Notify(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emitLocked(ev)
}

func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Snapshot returns the current session view.
func (l *Lifecycle) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := Snapshot{
		State:          l.state,
		Host:           l.host,
		Namespaces:     append([]string(nil), l.namespaces...),
		PendingDeploys: l.deploys.Len(),
	}
	if l.state == Active {
		t := l.startedAt
		snap.StartedAt = &t
		snap.Namespaces = l.registry.Namespaces()
		snap.Counts = l.registry.Counts()
	}
	return snap
}

// emitLocked runs the observers and sends ev without blocking. Callers
// hold l.mu in either mode.
func (l *Lifecycle) emitLocked(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	for _, fn := range l.observers {
		fn(ev)
	}
	if l.events == nil {
		return
	}
	select {
	case l.events <- ev:
	default:
		l.dropMu.Lock()
		defer l.dropMu.Unlock()
		l.dropped++
		now := time.Now()
		if l.lastDropLog.IsZero() || now.Sub(l.lastDropLog) >= 10*time.Second {
			l.logger.Warn().Int("dropped", l.dropped).Msg("session events dropped (channel full)")
			l.dropped = 0
			l.lastDropLog = now
		}
	}
}
