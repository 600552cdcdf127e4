package historyview

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/sshdock/sshdock/internal/history"
	"github.com/sshdock/sshdock/internal/theme"
)

func entries() []history.Entry {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []history.Entry{
		{SessionID: "s2", DeviceName: "box2", Username: "admin", OpenedAt: at, Connected: true},
		{SessionID: "s1", DeviceName: "box1", Username: "root", OpenedAt: at.Add(-time.Hour), Error: "Session ended"},
	}
}

func TestViewRows(t *testing.T) {
	m := New()
	m.SetEntries(entries())

	v := ansi.Strip(m.View(theme.Dark, 100, 10))
	for _, want := range []string{"When", "Outcome", "admin", "box2", "connected", "Session ended"} {
		if !strings.Contains(v, want) {
			t.Errorf("View() missing %q", want)
		}
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestSelectedFollowsCursor(t *testing.T) {
	m := New()
	m.SetEntries(entries())

	e, ok := m.Selected()
	if !ok || e.SessionID != "s2" {
		t.Fatalf("Selected() = %q, %v, want s2", e.SessionID, ok)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if e, _ := m.Selected(); e.SessionID != "s1" {
		t.Errorf("after down Selected() = %q, want s1", e.SessionID)
	}
}

func TestViewStates(t *testing.T) {
	tests := []struct {
		name string
		m    Model
		want string
	}{
		{"empty", New(), "No connections"},
		{"disabled", Model{Disabled: true}, "disabled"},
		{"error", Model{Err: errors.New("locked")}, "locked"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v := ansi.Strip(tt.m.View(theme.Dark, 80, 10)); !strings.Contains(v, tt.want) {
				t.Errorf("View() = %q, want %q", v, tt.want)
			}
		})
	}
}
