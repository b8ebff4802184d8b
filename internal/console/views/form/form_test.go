package form

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestOpenClearsFields(t *testing.T) {
	m := New()
	m.Open("d1")
	m.SetField(fieldName, "Old")
	m.Err = "boom"

	m.Open("d2")
	if m.DeployID != "d2" || m.Err != "" || m.Value().Name != "" {
		t.Errorf("form after reopen = %+v %+v", m.DeployID, m.Value())
	}
}

func TestTypingGoesToFocusedField(t *testing.T) {
	m := New()
	m.Open("d1")
	for _, r := range "Lab" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m.Next()
	m.Next()
	for _, r := range "alice" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}

	v := m.Value()
	if v.Name != "Lab" || v.Users != "alice" || v.Description != "" {
		t.Errorf("Value() = %+v", v)
	}
}

func TestFocusWraps(t *testing.T) {
	m := New()
	m.Open("d1")
	m.Prev()
	if m.focus != len(fields)-1 {
		t.Errorf("focus after Prev = %d, want %d", m.focus, len(fields)-1)
	}
	m.Next()
	if m.focus != 0 {
		t.Errorf("focus after Next = %d, want 0", m.focus)
	}
}

func TestView(t *testing.T) {
	m := New()
	m.Open("0123456789abcdef")
	m.Err = "name is required"
	v := m.View(80)
	for _, want := range []string{"SAVE DEPLOY 01234567", "Host groups", "name is required"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
