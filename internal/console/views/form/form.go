// Package form is the profile metadata form shown when saving a deploy.
package form

import (
	"fmt"

	"github.com/KasunDA/fc-admin/internal/console/client"
	"github.com/KasunDA/fc-admin/internal/console/theme"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type field struct {
	label       string
	placeholder string
}

var fields = []field{
	{"Name", "profile name (required)"},
	{"Description", ""},
	{"Users", "alice, bob"},
	{"Groups", "admins"},
	{"Hosts", ""},
	{"Host groups", ""},
}

const (
	fieldName = iota
	fieldDesc
	fieldUsers
	fieldGroups
	fieldHosts
	fieldHostgroups
)

// Model holds the inputs for one deploy.
type Model struct {
	DeployID string
	Err      string

	inputs []textinput.Model
	focus  int
}

func New() Model {
	m := Model{inputs: make([]textinput.Model, len(fields))}
	for i, f := range fields {
		ti := textinput.New()
		ti.Placeholder = f.placeholder
		ti.CharLimit = 256
		ti.Width = 40
		ti.Cursor.SetMode(cursor.CursorStatic)
		m.inputs[i] = ti
	}
	return m
}

// Open clears the form for deployID and focuses the name field.
func (m *Model) Open(deployID string) tea.Cmd {
	m.DeployID = deployID
	m.Err = ""
	for i := range m.inputs {
		m.inputs[i].SetValue("")
		m.inputs[i].Blur()
	}
	m.focus = 0
	return m.inputs[0].Focus()
}

// Next moves focus to the following field, wrapping around.
func (m *Model) Next() tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + 1) % len(m.inputs)
	return m.inputs[m.focus].Focus()
}

func (m *Model) Prev() tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus - 1 + len(m.inputs)) % len(m.inputs)
	return m.inputs[m.focus].Focus()
}

// Update forwards key input to the focused field.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// Value returns the form as submitted to the server.
func (m Model) Value() client.ProfileForm {
	return client.ProfileForm{
		Name:        m.inputs[fieldName].Value(),
		Description: m.inputs[fieldDesc].Value(),
		Users:       m.inputs[fieldUsers].Value(),
		Groups:      m.inputs[fieldGroups].Value(),
		Hosts:       m.inputs[fieldHosts].Value(),
		Hostgroups:  m.inputs[fieldHostgroups].Value(),
	}
}

// SetField sets field i; used by tests and prefill.
func (m *Model) SetField(i int, value string) {
	m.inputs[i].SetValue(value)
}

func (m Model) View(width int) string {
	title := theme.StyleHeader.Render(fmt.Sprintf(" SAVE DEPLOY %s ", shortID(m.DeployID)))
	lines := []string{title, ""}
	for i, f := range fields {
		label := lipgloss.NewStyle().Width(13).Render(f.label)
		if i == m.focus {
			label = theme.StyleSelected.Render(label)
		}
		lines = append(lines, label+" "+m.inputs[i].View())
	}
	if m.Err != "" {
		lines = append(lines, "", theme.StyleError.Render(m.Err))
	}
	lines = append(lines, "", theme.StyleDimmed.Render("tab:next  shift+tab:prev  ctrl+s:save  esc:cancel"))

	return lipgloss.NewStyle().
		Width(max(width-4, 40)).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
