package status

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/sshdock/sshdock/internal/session"
	"github.com/sshdock/sshdock/internal/theme"
)

func TestViewCounts(t *testing.T) {
	m := New("http://broker")
	m.Width = 100
	m.SetSessions([]session.Session{
		{ID: "a", Status: session.Connected},
		{ID: "b", Status: session.Connected},
		{ID: "c", Status: session.Disconnected},
	})

	v := ansi.Strip(m.View(theme.Dark))
	for _, want := range []string{"sshdock", "http://broker", "2 connected", "1 disconnected"} {
		if !strings.Contains(v, want) {
			t.Errorf("View() missing %q in %q", want, v)
		}
	}
	if strings.Contains(v, "connecting") {
		t.Errorf("View() shows empty status bucket: %q", v)
	}
}

func TestViewEmpty(t *testing.T) {
	m := New("http://broker")
	m.Width = 80
	if v := ansi.Strip(m.View(theme.Dark)); !strings.Contains(v, "no sessions") {
		t.Errorf("View() = %q, want no sessions", v)
	}
}

func TestViewHeight(t *testing.T) {
	tests := []struct {
		compact bool
		want    int
	}{
		{false, 3},
		{true, 1},
	}
	for _, tt := range tests {
		m := New("http://a-very-long-broker-address.example.com:8443/with/a/path")
		m.Width = 40
		m.Compact = tt.compact
		m.Notice = "a notice long enough to overflow the bar"
		v := m.View(theme.Dark)
		if got := lipgloss.Height(v); got != tt.want || m.Height() != tt.want {
			t.Errorf("compact=%v: height = %d (Height() %d), want %d", tt.compact, got, m.Height(), tt.want)
		}
		if got := lipgloss.Width(v); got != 40 {
			t.Errorf("compact=%v: width = %d, want 40", tt.compact, got)
		}
	}
}
