package app

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/KasunDA/fc-admin/internal/console/client"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeFeed struct{}

func (fakeFeed) Listen(context.Context) tea.Cmd   { return nil }
func (fakeFeed) ReadLoop(context.Context) tea.Cmd { return nil }

type fakeAPI struct {
	started   string
	selection map[string][]int
	saved     client.ProfileForm
	changes   map[string][]client.Change
	saveErr   error
}

func (a *fakeAPI) StartSession(host string) error { a.started = host; return nil }
func (a *fakeAPI) StopSession() error             { return nil }
func (a *fakeAPI) Changes(ns string) ([]client.Change, error) {
	return a.changes[ns], nil
}
func (a *fakeAPI) Select(sel map[string][]int) (string, error) {
	a.selection = sel
	return "deploy-1", nil
}
func (a *fakeAPI) Save(id string, f client.ProfileForm) (string, error) {
	a.saved = f
	return id, a.saveErr
}
func (a *fakeAPI) Discard(string) error                   { return nil }
func (a *fakeAPI) Profiles() ([]client.IndexEntry, error) { return nil, nil }

// run applies msg and feeds every message the resulting commands produce
// back into the model, one level deep.
func run(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	for _, out := range collect(cmd) {
		next, _ = m.Update(out)
		m = next.(Model)
	}
	return m
}

// collect executes cmd, expanding batches, and returns the messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

const ns = "org.gnome.gsettings"

func activeSnapshot() client.WSSnapshotMsg {
	return client.WSSnapshotMsg{Payload: client.SnapshotPayload{
		Session: client.Session{State: client.StateActive, Host: "ws1", Namespaces: []string{ns}},
	}}
}

func TestStartPromptUsesDefaultHost(t *testing.T) {
	api := &fakeAPI{}
	m := New(fakeFeed{}, api, "ws1.example.com")

	m = run(t, m, keyRunes("s"))
	if m.overlay != OverlayHost {
		t.Fatalf("overlay = %v, want host prompt", m.overlay)
	}
	m = run(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if api.started != "ws1.example.com" {
		t.Errorf("started host = %q", api.started)
	}
	if m.overlay != OverlayNone {
		t.Errorf("overlay after enter = %v", m.overlay)
	}
}

func TestSnapshotLoadsChangesAndCommitOpensForm(t *testing.T) {
	api := &fakeAPI{changes: map[string][]client.Change{
		ns: {
			{Key: "/a", Value: json.RawMessage(`"1"`)},
			{Key: "/b", Value: json.RawMessage(`"2"`)},
		},
	}}
	m := New(fakeFeed{}, api, "")

	m = run(t, m, activeSnapshot())
	m = run(t, m, keyRunes("j"))
	m = run(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if m.changes.SelectedCount() != 1 {
		t.Fatalf("selected = %d, want 1", m.changes.SelectedCount())
	}

	m = run(t, m, keyRunes("c"))
	if got := api.selection[ns]; len(got) != 1 || got[0] != 1 {
		t.Errorf("selection sent = %v, want [1]", api.selection)
	}
	if m.overlay != OverlayForm || m.form.DeployID != "deploy-1" {
		t.Errorf("overlay = %v deploy = %q, want save form for deploy-1", m.overlay, m.form.DeployID)
	}
	if m.changes.SelectedCount() != 0 {
		t.Error("selection should be cleared after commit")
	}

	for _, r := range "Lab" {
		m = run(t, m, keyRunes(string(r)))
	}
	m = run(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	if api.saved.Name != "Lab" {
		t.Errorf("saved form = %+v", api.saved)
	}
	if m.overlay != OverlayNone {
		t.Errorf("overlay after save = %v", m.overlay)
	}
}

func TestSaveErrorKeepsForm(t *testing.T) {
	api := &fakeAPI{saveErr: &client.APIError{Code: 400, Status: "invalid profile metadata: name is required"}}
	m := New(fakeFeed{}, api, "")
	m.deploys = []client.DeploySummary{{ID: "d1"}}

	m = run(t, m, keyRunes("w"))
	m = run(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	if m.overlay != OverlayForm {
		t.Fatalf("overlay = %v, want form kept open", m.overlay)
	}
	if !strings.Contains(m.form.Err, "name is required") {
		t.Errorf("form error = %q", m.form.Err)
	}
}

func TestDeltaRefreshesNamespace(t *testing.T) {
	api := &fakeAPI{changes: map[string][]client.Change{}}
	m := New(fakeFeed{}, api, "")
	m = run(t, m, activeSnapshot())

	api.changes[ns] = []client.Change{{Key: "/new", Value: json.RawMessage(`true`)}}
	m = run(t, m, client.WSDeltaMsg{Payload: client.DeltaPayload{Events: []client.Event{
		{Type: client.EventChangeRecorded, Namespace: ns, Key: "/new"},
	}}})

	if !strings.Contains(m.changes.View(), "/new") {
		t.Error("change list should show the new key")
	}
	if len(m.log.Entries()) == 0 {
		t.Error("delta events should be logged")
	}
}

func TestDisconnectBanner(t *testing.T) {
	m := New(fakeFeed{}, &fakeAPI{}, "")
	m.width = 80
	m.height = 24
	m.connected = false

	v := m.View()
	if !strings.Contains(v, "DISCONNECTED") {
		t.Error("view should contain 'DISCONNECTED'")
	}
	if !strings.Contains(v, "Reconnecting") {
		t.Error("view should contain 'Reconnecting'")
	}
}

func TestHelpOverlayToggles(t *testing.T) {
	m := New(fakeFeed{}, &fakeAPI{}, "")
	m.width = 80
	m.height = 24
	m.helpStyle = "notty"

	m = run(t, m, keyRunes("?"))
	if m.overlay != OverlayHelp {
		t.Fatalf("overlay = %v, want help", m.overlay)
	}
	if v := m.View(); !strings.Contains(v, "commit selection") {
		t.Errorf("help view missing bindings:\n%s", v)
	}

	m = run(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.overlay != OverlayNone {
		t.Errorf("overlay = %v after esc, want none", m.overlay)
	}
}
