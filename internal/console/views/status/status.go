package status

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KasunDA/fc-admin/internal/console/client"
	"github.com/KasunDA/fc-admin/internal/console/theme"
	"github.com/charmbracelet/lipgloss"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Session   client.Session
	Width     int
}

// New creates a status bar model.
func New() Model {
	return Model{Session: client.Session{State: client.StateIdle}}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	s := m.Session
	state := s.State
	if s.Active() && s.Host != "" {
		state += " on " + s.Host
	}
	stateStr := lipgloss.NewStyle().Foreground(theme.StateColor(s.State)).
		Render(theme.StateGlyph(s.State) + " " + state)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + stateStr
	if counts := formatCounts(s.Counts); counts != "" {
		content += sep + counts
	}
	content += sep + fmt.Sprintf("%d pending", s.PendingDeploys)

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

// formatCounts renders "ns: n" pairs using the last namespace segment.
func formatCounts(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for ns := range counts {
		names = append(names, ns)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, ns := range names {
		short := ns[strings.LastIndex(ns, ".")+1:]
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.NamespaceColor(ns)).
			Render(fmt.Sprintf("%s: %d", short, counts[ns])))
	}
	return strings.Join(parts, "  ")
}
