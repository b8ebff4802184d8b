package app

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/KasunDA/fc-admin/internal/console/views/help"
)

// KeyMap defines all keyboard bindings for the console.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Toggle   key.Binding
	Tab      key.Binding
	ShiftTab key.Binding
	Start    key.Binding
	Stop     key.Binding
	Commit   key.Binding
	Save     key.Binding
	Submit   key.Binding
	Discard  key.Binding
	Refresh  key.Binding
	Activity key.Binding
	Help     key.Binding
	Errors   key.Binding
	Enter    key.Binding
	Escape   key.Binding
	Quit     key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev change"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next change"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "select"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next namespace"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "prev field"),
		),
		Start: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "start session"),
		),
		Stop: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "stop session"),
		),
		Commit: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "commit selection"),
		),
		Save: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "save pending deploy"),
		),
		Submit: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "save profile"),
		),
		Discard: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "discard pending deploy"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Activity: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "activity"),
		),
		Errors: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "errors only (activity)"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Sections groups the bindings for the help overlay.
func (k KeyMap) Sections() []help.Section {
	return []help.Section{
		{Title: "Session", Bindings: []key.Binding{k.Start, k.Stop, k.Refresh}},
		{Title: "Changes", Bindings: []key.Binding{k.Up, k.Down, k.Toggle, k.Tab, k.Commit}},
		{Title: "Deploys", Bindings: []key.Binding{k.Save, k.Submit, k.ShiftTab, k.Discard}},
		{Title: "Console", Bindings: []key.Binding{k.Activity, k.Errors, k.Help, k.Escape, k.Quit}},
	}
}
