// Package theme provides the Lip Gloss color palette and reusable styles
// for the fc-admin console. It is a leaf package with no internal imports.
package theme

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"
)

// Session state colors.
var (
	ColorActive = lipgloss.Color("#22c55e")
	ColorIdle   = lipgloss.Color("#6b7280")
)

// Event colors.
var (
	ColorChange  = lipgloss.Color("#2563eb")
	ColorDeploy  = lipgloss.Color("#d97706")
	ColorSaved   = lipgloss.Color("#16a34a")
	ColorDropped = lipgloss.Color("#854d0e")
	ColorErrored = lipgloss.Color("#dc2626")
	ColorSession = lipgloss.Color("#7c3aed")
)

// Namespace palette, assigned by hash so a namespace keeps its color.
var namespaceColors = []lipgloss.Color{
	lipgloss.Color("#3b82f6"),
	lipgloss.Color("#a855f7"),
	lipgloss.Color("#06b6d4"),
	lipgloss.Color("#10b981"),
	lipgloss.Color("#f59e0b"),
}

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StateColor returns the color for a session state name.
func StateColor(state string) lipgloss.Color {
	if state == "active" {
		return ColorActive
	}
	return ColorIdle
}

// EventColor returns the color for a feed event type.
func EventColor(eventType string) lipgloss.Color {
	switch eventType {
	case "change_recorded":
		return ColorChange
	case "deploy_committed":
		return ColorDeploy
	case "deploy_saved":
		return ColorSaved
	case "deploy_discarded":
		return ColorDropped
	case "session_started", "session_stopped":
		return ColorSession
	default:
		return ColorDimmed
	}
}

// NamespaceColor returns a stable color for namespace.
func NamespaceColor(namespace string) lipgloss.Color {
	h := fnv.New32a()
	h.Write([]byte(namespace))
	return namespaceColors[h.Sum32()%uint32(len(namespaceColors))]
}

// StateGlyph returns a glyph for a session state.
func StateGlyph(state string) string {
	if state == "active" {
		return "●"
	}
	return "○"
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)
)
