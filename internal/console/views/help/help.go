// Package help renders the key binding reference as markdown.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
)

// Section is a titled group of bindings.
type Section struct {
	Title    string
	Bindings []key.Binding
}

// Markdown builds the reference document. Disabled bindings are skipped.
func Markdown(sections []Section) string {
	var b strings.Builder
	b.WriteString("# Keys\n")
	for _, s := range sections {
		fmt.Fprintf(&b, "\n## %s\n\n", s.Title)
		for _, kb := range s.Bindings {
			if !kb.Enabled() {
				continue
			}
			h := kb.Help()
			fmt.Fprintf(&b, "- `%s` %s\n", h.Key, h.Desc)
		}
	}
	return b.String()
}

// Render renders sections for a terminal of the given width. style is a
// glamour standard style name such as "dark" or "notty". The raw markdown is
// returned if rendering fails.
func Render(sections []Section, width int, style string) string {
	md := Markdown(sections)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
