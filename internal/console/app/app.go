// Package app is the root Bubble Tea model of the fc-admin console.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/KasunDA/fc-admin/internal/console/client"
	"github.com/KasunDA/fc-admin/internal/console/theme"
	"github.com/KasunDA/fc-admin/internal/console/views/changes"
	"github.com/KasunDA/fc-admin/internal/console/views/eventlog"
	"github.com/KasunDA/fc-admin/internal/console/views/form"
	"github.com/KasunDA/fc-admin/internal/console/views/help"
	"github.com/KasunDA/fc-admin/internal/console/views/status"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayHost
	OverlayForm
	OverlayActivity
	OverlayHelp
)

// API is the part of the admin API the console drives.
type API interface {
	StartSession(host string) error
	StopSession() error
	Changes(namespace string) ([]client.Change, error)
	Select(selection map[string][]int) (string, error)
	Save(id string, form client.ProfileForm) (string, error)
	Discard(id string) error
	Profiles() ([]client.IndexEntry, error)
}

// Feed is the live event source.
type Feed interface {
	Listen(ctx context.Context) tea.Cmd
	ReadLoop(ctx context.Context) tea.Cmd
}

// --- command results ---

type changesMsg struct {
	namespace string
	list      []client.Change
	err       error
}

type profilesMsg struct {
	index []client.IndexEntry
	err   error
}

type startedMsg struct {
	host string
	err  error
}

type stoppedMsg struct{ err error }

type committedMsg struct {
	id  string
	err error
}

type savedMsg struct {
	id  string
	uid string
	err error
}

type discardedMsg struct {
	id  string
	err error
}

// Model is the root Bubble Tea model.
type Model struct {
	api    API
	feed   Feed
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	defaultHost string
	session     client.Session
	deploys     []client.DeploySummary
	profiles    []client.IndexEntry
	lastErr     string

	overlay   Overlay
	hostInput textinput.Model
	helpStyle string

	statusBar status.Model
	changes   changes.Model
	form      form.Model
	log       eventlog.Model

	connected bool
}

// New creates the root model. defaultHost pre-fills the start prompt.
func New(feed Feed, api API, defaultHost string) Model {
	ctx, cancel := context.WithCancel(context.Background())
	hi := textinput.New()
	hi.Placeholder = "host to capture from"
	hi.CharLimit = 253
	hi.Width = 40
	hi.Cursor.SetMode(cursor.CursorStatic)
	return Model{
		api:         api,
		feed:        feed,
		ctx:         ctx,
		cancel:      cancel,
		keys:        DefaultKeyMap(),
		defaultHost: defaultHost,
		session:     client.Session{State: client.StateIdle},
		hostInput:   hi,
		helpStyle:   "dark",
		statusBar:   status.New(),
		changes:     changes.New(),
		form:        form.New(),
		log:         eventlog.New(),
	}
}

// Init starts the WebSocket connection and loads the profile index.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.feed.Listen(m.ctx), m.loadProfiles())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.changes.Width = msg.Width
		m.changes.Height = msg.Height - 10
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.log.Add(eventlog.KindFeed, "connected")
		return m, m.feed.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		if msg.Err != nil {
			m.log.Add(eventlog.KindFeed, "disconnected: "+msg.Err.Error())
		}
		return m, m.feed.Listen(m.ctx)

	case client.WSSnapshotMsg:
		return m, tea.Batch(m.applySnapshot(msg.Payload), m.feed.ReadLoop(m.ctx))

	case client.WSDeltaMsg:
		return m, tea.Batch(m.applyDelta(msg.Payload), m.feed.ReadLoop(m.ctx))

	case client.WSErrorMsg:
		m.log.Add(eventlog.KindError, string(msg.Raw))
		return m, m.feed.ReadLoop(m.ctx)

	case changesMsg:
		if msg.err != nil {
			m.log.Errorf("changes %s: %v", msg.namespace, msg.err)
			return m, nil
		}
		m.changes.SetChanges(msg.namespace, msg.list)
		return m, nil

	case profilesMsg:
		if msg.err != nil {
			m.log.Add(eventlog.KindError, "profiles: "+msg.err.Error())
			return m, nil
		}
		m.profiles = msg.index
		return m, nil

	case startedMsg:
		if msg.err != nil {
			return m.fail("start", msg.err), nil
		}
		m.log.Add(eventlog.KindAPI, "started session on "+msg.host)
		return m, nil

	case stoppedMsg:
		if msg.err != nil {
			return m.fail("stop", msg.err), nil
		}
		m.log.Add(eventlog.KindAPI, "stopped session")
		return m, nil

	case committedMsg:
		if msg.err != nil {
			return m.fail("commit", msg.err), nil
		}
		m.changes.ClearSelection()
		m.log.Add(eventlog.KindAPI, "committed deploy "+msg.id)
		m.overlay = OverlayForm
		return m, tea.Batch(m.form.Open(msg.id), m.refreshChanges())

	case savedMsg:
		if msg.err != nil {
			m.form.Err = apiStatus(msg.err)
			m.log.Errorf("save %s: %v", msg.id, msg.err)
			return m, nil
		}
		m.overlay = OverlayNone
		m.log.Add(eventlog.KindAPI, "saved profile "+msg.uid)
		return m, m.loadProfiles()

	case discardedMsg:
		if msg.err != nil {
			return m.fail("discard", msg.err), nil
		}
		m.log.Add(eventlog.KindAPI, "discarded deploy "+msg.id)
		return m, nil
	}

	return m, nil
}

func (m Model) fail(op string, err error) Model {
	m.lastErr = fmt.Sprintf("%s: %s", op, apiStatus(err))
	m.log.Add(eventlog.KindError, m.lastErr)
	return m
}

// apiStatus prefers the server's status string.
func apiStatus(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return err.Error()
}

func (m *Model) applySnapshot(p client.SnapshotPayload) tea.Cmd {
	wasActive := m.session.Active()
	m.session = p.Session
	m.statusBar.Session = p.Session
	m.deploys = p.Deploys
	m.changes.SetNamespaces(p.Session.Namespaces)

	if !p.Session.Active() {
		if wasActive {
			m.changes.Reset()
		}
		return nil
	}
	return m.refreshChanges()
}

func (m *Model) applyDelta(p client.DeltaPayload) tea.Cmd {
	dirty := make(map[string]bool)
	var cmds []tea.Cmd
	for _, ev := range p.Events {
		m.log.Feed(ev)
		switch ev.Type {
		case client.EventChangeRecorded:
			dirty[ev.Namespace] = true
		case client.EventDeploySaved:
			cmds = append(cmds, m.loadProfiles())
		}
	}
	for ns := range dirty {
		cmds = append(cmds, m.loadChanges(ns))
	}
	return tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.overlay {
	case OverlayHost:
		return m.handleHostKey(msg)
	case OverlayForm:
		return m.handleFormKey(msg)
	case OverlayActivity:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Activity):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.log.Scroll(1)
		case key.Matches(msg, m.keys.Down):
			m.log.Scroll(-1)
		case key.Matches(msg, m.keys.Errors):
			m.log.ToggleErrors()
		}
		return m, nil
	case OverlayHelp:
		if key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Help) {
			m.overlay = OverlayNone
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		m.changes.Down()
	case key.Matches(msg, m.keys.Up):
		m.changes.Up()
	case key.Matches(msg, m.keys.Tab):
		m.changes.NextNamespace()
	case key.Matches(msg, m.keys.Toggle):
		m.changes.Toggle()

	case key.Matches(msg, m.keys.Start):
		m.lastErr = ""
		m.overlay = OverlayHost
		m.hostInput.SetValue(m.defaultHost)
		m.hostInput.CursorEnd()
		return m, m.hostInput.Focus()

	case key.Matches(msg, m.keys.Stop):
		m.lastErr = ""
		return m, m.stopSession()

	case key.Matches(msg, m.keys.Commit):
		m.lastErr = ""
		return m, m.commit(m.changes.Selection())

	case key.Matches(msg, m.keys.Save):
		if len(m.deploys) == 0 {
			m.lastErr = "no pending deploy"
			return m, nil
		}
		m.overlay = OverlayForm
		return m, m.form.Open(m.deploys[0].ID)

	case key.Matches(msg, m.keys.Discard):
		if len(m.deploys) == 0 {
			return m, nil
		}
		return m, m.discard(m.deploys[0].ID)

	case key.Matches(msg, m.keys.Refresh):
		return m, tea.Batch(m.refreshChanges(), m.loadProfiles())

	case key.Matches(msg, m.keys.Activity):
		m.overlay = OverlayActivity
	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
	}
	return m, nil
}

func (m Model) handleHostKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.hostInput.Blur()
		m.overlay = OverlayNone
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		host := m.hostInput.Value()
		if host == "" {
			return m, nil
		}
		m.hostInput.Blur()
		m.overlay = OverlayNone
		return m, m.startSession(host)
	}
	var cmd tea.Cmd
	m.hostInput, cmd = m.hostInput.Update(msg)
	return m, cmd
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		// The deploy stays pending and can be saved later.
		m.overlay = OverlayNone
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		return m, m.save(m.form.DeployID, m.form.Value())
	case key.Matches(msg, m.keys.Tab), key.Matches(msg, m.keys.Enter):
		return m, m.form.Next()
	case key.Matches(msg, m.keys.ShiftTab):
		return m, m.form.Prev()
	}
	var cmd tea.Cmd
	m.form, cmd = m.form.Update(msg)
	return m, cmd
}

// --- commands ---

func (m Model) startSession(host string) tea.Cmd {
	api := m.api
	return func() tea.Msg { return startedMsg{host: host, err: api.StartSession(host)} }
}

func (m Model) stopSession() tea.Cmd {
	api := m.api
	return func() tea.Msg { return stoppedMsg{err: api.StopSession()} }
}

func (m Model) commit(selection map[string][]int) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		id, err := api.Select(selection)
		return committedMsg{id: id, err: err}
	}
}

func (m Model) save(id string, f client.ProfileForm) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		uid, err := api.Save(id, f)
		return savedMsg{id: id, uid: uid, err: err}
	}
}

func (m Model) discard(id string) tea.Cmd {
	api := m.api
	return func() tea.Msg { return discardedMsg{id: id, err: api.Discard(id)} }
}

func (m Model) loadChanges(namespace string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		list, err := api.Changes(namespace)
		return changesMsg{namespace: namespace, list: list, err: err}
	}
}

func (m Model) refreshChanges() tea.Cmd {
	if !m.session.Active() {
		return nil
	}
	var cmds []tea.Cmd
	for _, ns := range m.session.Namespaces {
		cmds = append(cmds, m.loadChanges(ns))
	}
	return tea.Batch(cmds...)
}

func (m Model) loadProfiles() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		index, err := api.Profiles()
		return profilesMsg{index: index, err: err}
	}
}

// --- view ---

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	switch m.overlay {
	case OverlayHost:
		return m.renderHostPrompt()
	case OverlayForm:
		return m.form.View(m.width)
	case OverlayActivity:
		return m.log.View(m.width, m.height)
	case OverlayHelp:
		return help.Render(m.keys.Sections(), m.width, m.helpStyle)
	}

	sections := []string{m.statusBar.View()}
	if !m.connected {
		sections = append(sections, lipgloss.NewStyle().Foreground(theme.ColorDanger).Bold(true).
			Render("  DISCONNECTED · Reconnecting to fc-admin..."))
	}
	if m.session.Active() {
		sections = append(sections, m.changes.View())
	} else {
		sections = append(sections, theme.StyleDimmed.Render("  No capture session. Press s to start one."))
	}
	sections = append(sections, m.renderDeploys(), m.renderProfiles())
	if m.lastErr != "" {
		sections = append(sections, theme.StyleError.Render("  "+m.lastErr))
	}
	sections = append(sections, theme.StyleDimmed.Render(
		fmt.Sprintf("  s:start  x:stop  space:select (%d)  tab:namespace  c:commit  w:save  D:discard  d:activity  ?:help  q:quit",
			m.changes.SelectedCount())))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHostPrompt() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.StyleHeader.Render(" START CAPTURE SESSION "),
		"",
		m.hostInput.View(),
		"",
		theme.StyleDimmed.Render("enter:start  esc:cancel"),
	)
	return theme.StyleBorder.Padding(1, 2).Render(content)
}

func (m Model) renderDeploys() string {
	lines := []string{theme.StyleHeader.Render("Pending deploys")}
	if len(m.deploys) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  none"))
	}
	for _, d := range m.deploys {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorDeploy).
			Render(fmt.Sprintf("  %s  %d changes  %s", d.ID, d.Changes, d.CreatedAt.Format("15:04:05"))))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderProfiles() string {
	lines := []string{theme.StyleHeader.Render("Profiles")}
	if len(m.profiles) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  none"))
	}
	for _, p := range m.profiles {
		lines = append(lines, fmt.Sprintf("  %s  %s", p.DisplayName, theme.StyleDimmed.Render(p.ID)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
