// Package debug provides a scrollable event log overlay.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/sshdock/sshdock/internal/theme"
)

const maxEntries = 200

// Entry is a single event log line.
type Entry struct {
	Time    time.Time
	Kind    string // "ws", "nav", "err", "sess"
	Message string
}

// Model holds debug log state.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset (from bottom)
	now     func() time.Time
}

// New creates an empty debug model.
func New() Model {
	return Model{now: time.Now}
}

// Add appends a log entry and caps the buffer.
func (m *Model) Add(kind, message string) {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	m.Entries = append(m.Entries, Entry{
		Time:    now(),
		Kind:    kind,
		Message: message,
	})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	// Reset scroll to bottom on new entry.
	m.Offset = 0
}

// Addf is Add with formatting.
func (m *Model) Addf(kind, format string, args ...any) {
	m.Add(kind, fmt.Sprintf(format, args...))
}

// ScrollUp moves the viewport up.
func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.Entries)-1, 0))
}

// ScrollDown moves the viewport down.
func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

// View renders the debug log as an overlay panel.
func (m Model) View(p theme.Palette, width, height int) string {
	st := p.Styles()
	innerW := max(width-4, 20)
	visibleLines := max(height-6, 3)

	panel := lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(p.Border)

	title := st.Header.Render(" DEBUG LOG ")
	help := st.Dimmed.Render(fmt.Sprintf("j/k:scroll  esc:close  %d entries", len(m.Entries)))

	if len(m.Entries) == 0 {
		body := st.Dimmed.Render("  No events recorded yet.")
		return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := max(len(m.Entries)-m.Offset, 0)
	start := max(end-visibleLines, 0)

	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		ts := st.Dimmed.Render(e.Time.Format("15:04:05.000"))
		kind := lipgloss.NewStyle().Foreground(kindColor(p, e.Kind)).Width(4).Render(e.Kind)
		msg := e.Message
		if innerW > 24 {
			msg = ansi.Truncate(msg, innerW-24, "...")
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, kind, msg))
	}

	scroll := ""
	if m.Offset > 0 {
		scroll = st.Dimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}
	return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), scroll, help))
}

func kindColor(p theme.Palette, kind string) lipgloss.Color {
	switch kind {
	case "ws":
		return p.Accent
	case "err":
		return p.Danger
	case "nav":
		return p.Warning
	case "sess":
		return p.Healthy
	default:
		return p.Dimmed
	}
}
