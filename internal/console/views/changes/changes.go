// Package changes renders the per-namespace change lists of the running
// capture session and tracks which rows the administrator selected.
package changes

import (
	"fmt"
	"strings"

	"github.com/KasunDA/fc-admin/internal/console/client"
	"github.com/KasunDA/fc-admin/internal/console/theme"
	"github.com/charmbracelet/lipgloss"
)

const maxValueWidth = 48

// Model holds the change lists. Selection is kept by key so that rows
// arriving between refreshes do not shift it.
type Model struct {
	Namespaces []string
	Width      int
	Height     int

	active   int
	cursor   int
	lists    map[string][]client.Change
	selected map[string]map[string]bool
}

func New() Model {
	return Model{
		lists:    make(map[string][]client.Change),
		selected: make(map[string]map[string]bool),
	}
}

// SetNamespaces replaces the namespace tabs, keeping the active one when it
// is still present.
func (m *Model) SetNamespaces(namespaces []string) {
	current := m.Namespace()
	m.Namespaces = append([]string(nil), namespaces...)
	m.active = 0
	for i, ns := range m.Namespaces {
		if ns == current {
			m.active = i
		}
	}
	m.clampCursor()
}

// Namespace returns the namespace of the active tab, or "".
func (m Model) Namespace() string {
	if m.active < len(m.Namespaces) {
		return m.Namespaces[m.active]
	}
	return ""
}

// SetChanges replaces the list for namespace. Selected keys that are no
// longer listed are dropped.
func (m *Model) SetChanges(namespace string, list []client.Change) {
	m.lists[namespace] = list
	if sel := m.selected[namespace]; len(sel) > 0 {
		present := make(map[string]bool, len(list))
		for _, c := range list {
			present[c.Key] = true
		}
		for key := range sel {
			if !present[key] {
				delete(sel, key)
			}
		}
	}
	m.clampCursor()
}

// Reset forgets every list and selection.
func (m *Model) Reset() {
	m.lists = make(map[string][]client.Change)
	m.selected = make(map[string]map[string]bool)
	m.cursor = 0
}

func (m *Model) NextNamespace() {
	if len(m.Namespaces) == 0 {
		return
	}
	m.active = (m.active + 1) % len(m.Namespaces)
	m.cursor = 0
}

func (m *Model) Up() {
	if m.cursor > 0 {
		m.cursor--
	}
}

func (m *Model) Down() {
	if m.cursor < len(m.current())-1 {
		m.cursor++
	}
}

// Toggle flips the selection of the row under the cursor.
func (m *Model) Toggle() {
	list := m.current()
	if len(list) == 0 {
		return
	}
	ns := m.Namespace()
	key := list[m.cursor].Key
	if m.selected[ns] == nil {
		m.selected[ns] = make(map[string]bool)
	}
	if m.selected[ns][key] {
		delete(m.selected[ns], key)
	} else {
		m.selected[ns][key] = true
	}
}

// Selection returns, per namespace, the indices of the selected keys in the
// current sorted lists.
func (m Model) Selection() map[string][]int {
	out := make(map[string][]int)
	for ns, keys := range m.selected {
		if len(keys) == 0 {
			continue
		}
		for i, c := range m.lists[ns] {
			if keys[c.Key] {
				out[ns] = append(out[ns], i)
			}
		}
	}
	return out
}

// SelectedCount returns the number of selected rows across namespaces.
func (m Model) SelectedCount() int {
	n := 0
	for _, keys := range m.selected {
		n += len(keys)
	}
	return n
}

// ClearSelection drops every selection, as after a commit.
func (m *Model) ClearSelection() {
	m.selected = make(map[string]map[string]bool)
}

func (m Model) current() []client.Change {
	return m.lists[m.Namespace()]
}

func (m *Model) clampCursor() {
	if n := len(m.current()); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

// View renders the tab bar and the active list.
func (m Model) View() string {
	var tabs []string
	for i, ns := range m.Namespaces {
		label := fmt.Sprintf(" %s (%d) ", ns, len(m.lists[ns]))
		style := lipgloss.NewStyle().Foreground(theme.NamespaceColor(ns))
		if i == m.active {
			style = style.Bold(true).Underline(true)
		}
		tabs = append(tabs, style.Render(label))
	}
	lines := []string{strings.Join(tabs, theme.StyleDimmed.Render("│"))}

	list := m.current()
	if len(list) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  No changes recorded"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	visible := m.Height - 2
	if visible < 3 {
		visible = len(list)
	}
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := min(start+visible, len(list))

	sel := m.selected[m.Namespace()]
	for i := start; i < end; i++ {
		c := list[i]
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		box := "[ ]"
		if sel[c.Key] {
			box = "[x]"
		}
		line := fmt.Sprintf("%s%s %s = %s", prefix, box, c.Key, truncate(string(c.Value), maxValueWidth))
		if i == m.cursor {
			line = theme.StyleSelected.Render(line)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
