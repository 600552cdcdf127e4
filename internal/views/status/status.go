package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/sshdock/sshdock/internal/session"
	"github.com/sshdock/sshdock/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Broker   string
	Counts   map[session.ConnectionStatus]int
	Focus    string
	Spinner  string
	Compact  bool
	Width    int
	Notice   string
	NoticeOK bool
}

// New creates a status bar model.
func New(broker string) Model {
	return Model{Broker: broker, Counts: map[session.ConnectionStatus]int{}}
}

// SetSessions recounts sessions by status.
func (m *Model) SetSessions(sessions []session.Session) {
	m.Counts = session.Counts(sessions)
}

// View renders the status bar.
func (m Model) View(p theme.Palette) string {
	width := max(m.Width, 40)

	sep := lipgloss.NewStyle().Foreground(p.Border).Render(" | ")
	parts := []string{lipgloss.NewStyle().Foreground(p.Bright).Bold(true).Render("sshdock") + " " +
		lipgloss.NewStyle().Foreground(p.Dimmed).Render(m.Broker)}

	var counts []string
	for _, st := range []session.ConnectionStatus{session.Connecting, session.Connected, session.Disconnected} {
		n := m.Counts[st]
		if n == 0 {
			continue
		}
		label := fmt.Sprintf("%s %d %s", theme.StatusGlyph(st.String()), n, st)
		if st == session.Connecting && m.Spinner != "" {
			label = fmt.Sprintf("%s %d %s", m.Spinner, n, st)
		}
		counts = append(counts, lipgloss.NewStyle().Foreground(p.StatusColor(st.String())).Render(label))
	}
	if len(counts) == 0 {
		counts = append(counts, lipgloss.NewStyle().Foreground(p.Dimmed).Render("no sessions"))
	}
	parts = append(parts, strings.Join(counts, "  "))

	if m.Focus != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(p.Accent).Render(m.Focus))
	}
	if m.Notice != "" {
		color := p.Danger
		if m.NoticeOK {
			color = p.Healthy
		}
		parts = append(parts, lipgloss.NewStyle().Foreground(color).Render(m.Notice))
	}
	content := ansi.Truncate(strings.Join(parts, sep), width-4, "…")

	if m.Compact {
		return lipgloss.NewStyle().Width(width).Padding(0, 1).Render(content)
	}
	return lipgloss.NewStyle().
		Width(width-2).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(p.Border).
		Render(content)
}

// Height is the number of rows View takes.
func (m Model) Height() int {
	if m.Compact {
		return 1
	}
	return 3
}
