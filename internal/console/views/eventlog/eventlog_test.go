package eventlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/KasunDA/fc-admin/internal/console/client"
)

func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestAdd_CollapsesRepeats(t *testing.T) {
	m := New()
	m.now = fixedClock()
	m.Add(KindFeed, "a")
	m.Add(KindFeed, "a")
	m.Add(KindAPI, "a")
	m.Add(KindFeed, "a")

	got := m.Entries()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Count != 2 || got[1].Count != 1 || got[2].Count != 1 {
		t.Errorf("counts = %d %d %d", got[0].Count, got[1].Count, got[2].Count)
	}
	if !got[0].At.Equal(time.Date(2026, 3, 1, 9, 0, 2, 0, time.UTC)) {
		t.Errorf("repeat did not refresh the timestamp: %v", got[0].At)
	}
}

func TestAdd_Capacity(t *testing.T) {
	m := New()
	for i := 0; i < capacity+25; i++ {
		m.Add(KindFeed, fmt.Sprintf("line %d", i))
	}
	got := m.Entries()
	if len(got) != capacity {
		t.Fatalf("len = %d, want %d", len(got), capacity)
	}
	if got[0].Text != "line 25" {
		t.Errorf("oldest = %q, want line 25", got[0].Text)
	}
}

func TestToggleErrors(t *testing.T) {
	m := New()
	m.Add(KindFeed, "change")
	m.Errorf("save %s: %v", "d1", "boom")
	m.Add(KindAPI, "saved")

	m.ToggleErrors()
	got := m.Entries()
	if len(got) != 1 || got[0].Text != "save d1: boom" {
		t.Errorf("errors only = %+v", got)
	}
	m.ToggleErrors()
	if len(m.Entries()) != 3 {
		t.Errorf("all = %d lines, want 3", len(m.Entries()))
	}
}

func TestScroll_ClampsAndResets(t *testing.T) {
	m := New()
	for i := 0; i < 5; i++ {
		m.Add(KindFeed, fmt.Sprintf("l%d", i))
	}
	m.Scroll(100)
	if m.scroll != 4 {
		t.Errorf("scroll = %d, want 4", m.scroll)
	}
	m.Scroll(-100)
	if m.scroll != 0 {
		t.Errorf("scroll = %d, want 0", m.scroll)
	}
	m.Scroll(2)
	m.Add(KindAPI, "new")
	if m.scroll != 0 {
		t.Error("a new line should return to the newest entries")
	}
}

func TestView(t *testing.T) {
	m := New()
	if v := m.View(80, 24); !strings.Contains(v, "nothing yet") {
		t.Error("empty view should say so")
	}
	m.Add(KindFeed, "org.gnome.gsettings /a = 1")
	m.Add(KindFeed, "org.gnome.gsettings /a = 1")
	v := m.View(80, 24)
	for _, want := range []string{"ACTIVITY", "feed", "/a = 1 (x2)"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		ev   client.Event
		want string
	}{
		{client.Event{Type: client.EventChangeRecorded, Namespace: "ns", Key: "/k", Value: json.RawMessage(`"v"`)}, `ns /k = "v"`},
		{client.Event{Type: client.EventDeployCommitted, DeployID: "d1", Changes: 3}, "deploy d1 committed with 3 changes"},
		{client.Event{Type: client.EventDeploySaved, DeployID: "d1"}, "deploy d1 saved"},
		{client.Event{Type: client.EventDeployDiscarded, DeployID: "d9"}, "deploy d9 discarded"},
		{client.Event{Type: client.EventSessionStarted, Host: "ws1"}, "session started on ws1"},
		{client.Event{Type: "other"}, "other"},
	}
	for _, tt := range tests {
		if got := Summary(tt.ev); got != tt.want {
			t.Errorf("Summary(%s) = %q, want %q", tt.ev.Type, got, tt.want)
		}
	}
}
