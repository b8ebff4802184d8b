package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/KasunDA/fc-admin/internal/changes"
)

const (
	nsSettings = "org.gnome.gsettings"
	nsAccounts = "org.gnome.online-accounts"
)

// fakeBridge counts calls and can be told to fail.
type fakeBridge struct {
	mu       sync.Mutex
	starts   int
	stops    int
	hosts    []string
	startErr error
	stopErr  error
	calls    []string
	block    chan struct{} // when set, Start waits on it
}

func (b *fakeBridge) Start(ctx context.Context, host string) error {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts++
	b.hosts = append(b.hosts, host)
	b.calls = append(b.calls, "start")
	return b.startErr
}

func (b *fakeBridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stops++
	b.calls = append(b.calls, "stop")
	return b.stopErr
}

func (b *fakeBridge) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.starts, b.stops
}

func newTestLifecycle(b Bridge) *Lifecycle {
	return NewLifecycle(b, NewDeploys(), []string{nsSettings, nsAccounts})
}

func change(ns, key, value string) changes.Event {
	return changes.Event{Namespace: ns, Key: key, Value: json.RawMessage(value)}
}

func TestStartStopsThenStartsBridge(t *testing.T) {
	b := &fakeBridge{}
	l := newTestLifecycle(b)

	if err := l.Start(context.Background(), "hostA"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if l.State() != Active {
		t.Errorf("State() = %v, want active", l.State())
	}
	if len(b.calls) != 2 || b.calls[0] != "stop" || b.calls[1] != "start" {
		t.Errorf("bridge calls = %v, want [stop start]", b.calls)
	}
	if snap := l.Snapshot(); snap.Host != "hostA" || snap.StartedAt == nil {
		t.Errorf("Snapshot() = %+v, want host hostA with start time", snap)
	}
}

func TestStartWhileActive(t *testing.T) {
	b := &fakeBridge{}
	l := newTestLifecycle(b)

	if err := l.Start(context.Background(), "hostA"); err != nil {
		t.Fatal(err)
	}
	err := l.Start(context.Background(), "hostA")
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyActive", err)
	}
	starts, stops := b.counts()
	if starts != 1 || stops != 1 {
		t.Errorf("bridge starts=%d stops=%d, want 1 and 1", starts, stops)
	}
}

func TestStartBridgeFailureStaysIdle(t *testing.T) {
	cause := errors.New("connection refused")
	b := &fakeBridge{startErr: cause}
	l := newTestLifecycle(b)

	err := l.Start(context.Background(), "hostA")
	if !errors.Is(err, ErrBridgeUnreachable) {
		t.Fatalf("Start() error = %v, want ErrBridgeUnreachable", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Start() error does not unwrap to bridge cause: %v", err)
	}
	var be *BridgeError
	if !errors.As(err, &be) || be.Host != "hostA" {
		t.Errorf("Start() error = %#v, want *BridgeError for hostA", err)
	}
	if l.State() != Idle {
		t.Errorf("State() = %v after failed start, want idle", l.State())
	}
	if err := l.RouteChange(change(nsSettings, "/a", "1")); !errors.Is(err, ErrNotActive) {
		t.Errorf("RouteChange() after failed start = %v, want ErrNotActive", err)
	}

	// A failed start must not block a later one.
	b.mu.Lock()
	b.startErr = nil
	b.mu.Unlock()
	if err := l.Start(context.Background(), "hostA"); err != nil {
		t.Errorf("retry Start() error: %v", err)
	}
}

func TestStartStopFailureIsTolerated(t *testing.T) {
	b := &fakeBridge{stopErr: errors.New("nothing to stop")}
	l := newTestLifecycle(b)
	if err := l.Start(context.Background(), "hostA"); err != nil {
		t.Fatalf("Start() error = %v, want nil when pre-start stop fails", err)
	}
}

func TestStartConcurrentOnlyOneWins(t *testing.T) {
	b := &fakeBridge{block: make(chan struct{})}
	l := newTestLifecycle(b)

	first := make(chan error, 1)
	go func() { first <- l.Start(context.Background(), "hostA") }()

	// Wait until the first Start holds the reservation.
	for {
		l.mu.RLock()
		starting := l.starting
		l.mu.RUnlock()
		if starting {
			break
		}
	}
	if err := l.Start(context.Background(), "hostB"); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("concurrent Start() error = %v, want ErrAlreadyActive", err)
	}
	close(b.block)
	if err := <-first; err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	if starts, _ := b.counts(); starts != 1 {
		t.Errorf("bridge starts = %d, want 1", starts)
	}
}

func TestStopWhileIdle(t *testing.T) {
	b := &fakeBridge{}
	l := newTestLifecycle(b)

	if err := l.Stop(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Fatalf("Stop() error = %v, want ErrNotActive", err)
	}
	if l.State() != Idle {
		t.Errorf("State() = %v, want idle", l.State())
	}
	if _, stops := b.counts(); stops != 0 {
		t.Errorf("bridge stops = %d, want 0", stops)
	}
}

func TestStopKeepsPendingDeploys(t *testing.T) {
	l := newTestLifecycle(&fakeBridge{})
	ctx := context.Background()
	if err := l.Start(ctx, "hostA"); err != nil {
		t.Fatal(err)
	}
	l.RouteChange(change(nsSettings, "/a", "1"))
	id, err := l.CommitSelection(map[string][]int{nsSettings: {0}})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := l.Deploys().Get(id); !ok {
		t.Error("Stop() dropped a pending deploy")
	}
}

func TestStopBridgeErrorStillIdle(t *testing.T) {
	b := &fakeBridge{}
	l := newTestLifecycle(b)
	ctx := context.Background()
	if err := l.Start(ctx, "hostA"); err != nil {
		t.Fatal(err)
	}
	b.mu.Lock()
	b.stopErr = errors.New("kill failed")
	b.mu.Unlock()

	if err := l.Stop(ctx); err == nil {
		t.Error("Stop() error = nil, want bridge error")
	}
	if l.State() != Idle {
		t.Errorf("State() = %v, want idle", l.State())
	}
}

func TestRouteChangeUnknownNamespace(t *testing.T) {
	l := newTestLifecycle(&fakeBridge{})
	if err := l.Start(context.Background(), "hostA"); err != nil {
		t.Fatal(err)
	}
	err := l.RouteChange(change("org.example.other", "/a", "1"))
	if !errors.Is(err, changes.ErrUnknownNamespace) {
		t.Errorf("RouteChange() error = %v, want ErrUnknownNamespace", err)
	}
}

func TestCommitSelectionScenario(t *testing.T) {
	l := newTestLifecycle(&fakeBridge{})
	ctx := context.Background()
	if err := l.Start(ctx, "hostA"); err != nil {
		t.Fatal(err)
	}
	l.RouteChange(change(nsSettings, "/foo/bar", "true"))
	l.RouteChange(change(nsSettings, "/foo/baz", "true"))

	dump, err := l.Dump(nsSettings)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(dump)
	if string(data) != `[["/foo/bar",true],["/foo/baz",true]]` {
		t.Errorf("Dump() = %s", data)
	}

	id, err := l.CommitSelection(map[string][]int{nsSettings: {1}})
	if err != nil {
		t.Fatal(err)
	}
	d, ok := l.Deploys().Get(id)
	if !ok {
		t.Fatalf("deploy %s not stored", id)
	}
	sel := d.Collectors[nsSettings]
	if len(sel) != 1 || sel[0].Key != "/foo/baz" || string(sel[0].Value) != "true" {
		t.Errorf("settings selection = %+v, want [/foo/baz=true]", sel)
	}
	if got, ok := d.Collectors[nsAccounts]; !ok || len(got) != 0 {
		t.Errorf("accounts selection = %v (present=%v), want empty", got, ok)
	}
	if d.Host != "hostA" {
		t.Errorf("deploy host = %q, want hostA", d.Host)
	}

	if l.State() != Active {
		t.Error("CommitSelection changed session state")
	}
	dump, _ = l.Dump(nsSettings)
	if len(dump) != 0 {
		t.Errorf("registry not cleared after commit: %v", dump)
	}
}

func TestCommitSelectionRepeated(t *testing.T) {
	l := newTestLifecycle(&fakeBridge{})
	if err := l.Start(context.Background(), "hostA"); err != nil {
		t.Fatal(err)
	}
	l.RouteChange(change(nsSettings, "/a", "1"))
	first, err := l.CommitSelection(map[string][]int{nsSettings: {0}})
	if err != nil {
		t.Fatal(err)
	}
	l.RouteChange(change(nsSettings, "/b", "2"))
	second, err := l.CommitSelection(map[string][]int{nsSettings: {0}})
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("two commits produced the same deploy id")
	}
	d, _ := l.Deploys().Get(second)
	if sel := d.Collectors[nsSettings]; len(sel) != 1 || sel[0].Key != "/b" {
		t.Errorf("second deploy = %+v, want only /b", sel)
	}
	if l.Deploys().Len() != 2 {
		t.Errorf("pending deploys = %d, want 2", l.Deploys().Len())
	}
}

func TestCommitSelectionWhileIdle(t *testing.T) {
	l := newTestLifecycle(&fakeBridge{})
	if _, err := l.CommitSelection(nil); !errors.Is(err, ErrNotActive) {
		t.Errorf("CommitSelection() error = %v, want ErrNotActive", err)
	}
}

func TestSetNamespacesAppliesToNextSession(t *testing.T) {
	l := newTestLifecycle(&fakeBridge{})
	ctx := context.Background()
	if err := l.Start(ctx, "hostA"); err != nil {
		t.Fatal(err)
	}
	l.SetNamespaces([]string{"org.example.only"})

	if err := l.RouteChange(change(nsSettings, "/a", "1")); err != nil {
		t.Errorf("active session lost its namespace: %v", err)
	}
	l.Stop(ctx)
	if err := l.Start(ctx, "hostA"); err != nil {
		t.Fatal(err)
	}
	if err := l.RouteChange(change(nsSettings, "/a", "1")); !errors.Is(err, changes.ErrUnknownNamespace) {
		t.Errorf("RouteChange() = %v, want ErrUnknownNamespace after namespace change", err)
	}
}

func TestLifecycleEvents(t *testing.T) {
	l := newTestLifecycle(&fakeBridge{})
	ch := make(chan Event, 16)
	l.SetEvents(ch)
	ctx := context.Background()

	l.Start(ctx, "hostA")
	l.RouteChange(change(nsSettings, "/a", "1"))
	l.CommitSelection(map[string][]int{nsSettings: {0}})
	l.Stop(ctx)

	want := []EventType{EventSessionStarted, EventChangeRecorded, EventDeployCommitted, EventSessionStopped}
	got := drain(ch)
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i, ev := range got {
		if ev.Type != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, ev.Type, want[i])
		}
		if ev.At.IsZero() {
			t.Errorf("event[%d] has no timestamp", i)
		}
	}
	if got[2].Changes != 1 || got[2].DeployID == "" {
		t.Errorf("commit event = %+v, want one change and a deploy id", got[2])
	}
}

func TestEventsDropWhenFull(t *testing.T) {
	l := newTestLifecycle(&fakeBridge{})
	ch := make(chan Event, 1)
	l.SetEvents(ch)
	if err := l.Start(context.Background(), "hostA"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if err := l.RouteChange(change(nsSettings, "/a", "1")); err != nil {
			t.Fatalf("RouteChange() blocked or failed on full channel: %v", err)
		}
	}
	if len(drain(ch)) != 1 {
		t.Error("expected exactly the buffered event")
	}
}

func TestObserversSeeDroppedEvents(t *testing.T) {
	l := newTestLifecycle(&fakeBridge{})
	l.SetEvents(make(chan Event)) // nobody reads, every send is dropped
	var seen []EventType
	l.Observe(func(ev Event) {
		if ev.At.IsZero() {
			t.Errorf("%v observed without a timestamp", ev.Type)
		}
		seen = append(seen, ev.Type)
	})
	ctx := context.Background()

	if err := l.Start(ctx, "hostA"); err != nil {
		t.Fatal(err)
	}
	l.RouteChange(change(nsSettings, "/a", "1"))
	if _, err := l.CommitSelection(map[string][]int{nsSettings: {0}}); err != nil {
		t.Fatal(err)
	}
	l.Notify(Event{Type: EventDeploySaved})
	if err := l.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	want := []EventType{EventSessionStarted, EventChangeRecorded, EventDeployCommitted, EventDeploySaved, EventSessionStopped}
	if len(seen) != len(want) {
		t.Fatalf("observed %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("observed[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestConcurrentRouteAndCommit(t *testing.T) {
	l := newTestLifecycle(&fakeBridge{})
	if err := l.Start(context.Background(), "hostA"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.RouteChange(change(nsSettings, "/k", `"v"`))
			}
		}()
	}
	ids := make(chan string, 20)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			id, err := l.CommitSelection(map[string][]int{nsSettings: {0}})
			if err != nil {
				t.Error(err)
				return
			}
			ids <- id
		}
	}()
	wg.Wait()
	close(ids)

	for id := range ids {
		d, ok := l.Deploys().Get(id)
		if !ok {
			t.Errorf("deploy %s missing", id)
			continue
		}
		for _, ev := range d.Collectors[nsSettings] {
			if ev.Key != "/k" || string(ev.Value) != `"v"` {
				t.Errorf("deploy %s holds unexpected event %+v", id, ev)
			}
		}
	}
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
