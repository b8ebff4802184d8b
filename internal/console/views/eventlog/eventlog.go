// Package eventlog is the console's activity overlay: feed events, API
// results and errors, newest last.
package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/KasunDA/fc-admin/internal/console/client"
	"github.com/KasunDA/fc-admin/internal/console/theme"
)

const capacity = 200

type Kind int

const (
	KindFeed Kind = iota
	KindAPI
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindFeed:
		return "feed"
	case KindAPI:
		return "api"
	case KindError:
		return "err"
	}
	return "?"
}

func (k Kind) color() lipgloss.Color {
	switch k {
	case KindFeed:
		return theme.ColorChange
	case KindAPI:
		return theme.ColorDeploy
	case KindError:
		return theme.ColorErrored
	}
	return theme.ColorDimmed
}

// Entry is one log line. Count is above 1 when the same line arrived
// several times in a row.
type Entry struct {
	At    time.Time
	Kind  Kind
	Text  string
	Count int
}

type Model struct {
	entries    []Entry
	scroll     int // lines hidden below the viewport
	errorsOnly bool
	now        func() time.Time
}

func New() Model {
	return Model{now: time.Now}
}

// Add records a line. Repeating the newest line bumps its count instead,
// so a setting toggled back and forth does not flood the log.
func (m *Model) Add(kind Kind, text string) {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	if n := len(m.entries); n > 0 && m.entries[n-1].Kind == kind && m.entries[n-1].Text == text {
		m.entries[n-1].Count++
		m.entries[n-1].At = now()
	} else {
		m.entries = append(m.entries, Entry{At: now(), Kind: kind, Text: text, Count: 1})
		if len(m.entries) > capacity {
			m.entries = append([]Entry(nil), m.entries[len(m.entries)-capacity:]...)
		}
	}
	m.scroll = 0
}

// Feed records a lifecycle event from the WebSocket feed.
func (m *Model) Feed(ev client.Event) {
	m.Add(KindFeed, Summary(ev))
}

func (m *Model) Errorf(format string, args ...any) {
	m.Add(KindError, fmt.Sprintf(format, args...))
}

// Entries returns the lines that pass the current filter, oldest first.
func (m *Model) Entries() []Entry {
	if !m.errorsOnly {
		return m.entries
	}
	var out []Entry
	for _, e := range m.entries {
		if e.Kind == KindError {
			out = append(out, e)
		}
	}
	return out
}

// ToggleErrors switches between all lines and errors only.
func (m *Model) ToggleErrors() {
	m.errorsOnly = !m.errorsOnly
	m.scroll = 0
}

// Scroll moves the viewport; positive n shows older lines.
func (m *Model) Scroll(n int) {
	m.scroll = max(0, min(m.scroll+n, len(m.Entries())-1))
}

// Summary renders a feed event as one log line.
func Summary(ev client.Event) string {
	switch ev.Type {
	case client.EventChangeRecorded:
		return fmt.Sprintf("%s %s = %s", ev.Namespace, ev.Key, ev.Value)
	case client.EventDeployCommitted:
		return fmt.Sprintf("deploy %s committed with %d changes", ev.DeployID, ev.Changes)
	case client.EventDeploySaved, client.EventDeployDiscarded:
		return fmt.Sprintf("deploy %s %s", ev.DeployID, strings.TrimPrefix(ev.Type, "deploy_"))
	case client.EventSessionStarted, client.EventSessionStopped:
		return fmt.Sprintf("session %s on %s", strings.TrimPrefix(ev.Type, "session_"), ev.Host)
	default:
		return ev.Type
	}
}

func (m Model) View(width, height int) string {
	inner := max(width-6, 24)
	rows := max(height-7, 3)

	filter := "all"
	if m.errorsOnly {
		filter = "errors"
	}
	header := theme.StyleHeader.Render(" ACTIVITY ") +
		theme.StyleDimmed.Render(fmt.Sprintf("  %s · %d lines", filter, len(m.Entries())))
	footer := theme.StyleDimmed.Render("j/k:scroll  e:errors only  esc:close")

	entries := m.Entries()
	var body []string
	if len(entries) == 0 {
		body = append(body, theme.StyleDimmed.Render("  nothing yet"))
	}
	end := len(entries) - m.scroll
	for _, e := range entries[max(0, end-rows):max(0, end)] {
		body = append(body, m.line(e, inner))
	}
	if m.scroll > 0 {
		body = append(body, theme.StyleDimmed.Render(fmt.Sprintf("  … %d newer", m.scroll)))
	}

	return lipgloss.NewStyle().
		Width(inner).
		Padding(1, 2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, "", strings.Join(body, "\n"), "", footer))
}

func (m Model) line(e Entry, width int) string {
	text := e.Text
	if e.Count > 1 {
		text = fmt.Sprintf("%s (x%d)", text, e.Count)
	}
	if room := width - 16; room > 3 && len(text) > room {
		text = text[:room-1] + "…"
	}
	return fmt.Sprintf("%s %s %s",
		theme.StyleDimmed.Render(e.At.Format("15:04:05")),
		lipgloss.NewStyle().Foreground(e.Kind.color()).Width(5).Render(e.Kind.String()),
		text)
}
