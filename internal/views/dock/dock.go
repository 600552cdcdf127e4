// Package dock lays out the terminal pane and the minimized-session chips.
// The pane's height follows its target through a spring so that docking,
// fullscreening and minimizing animate.
package dock

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/sshdock/sshdock/internal/session"
	"github.com/sshdock/sshdock/internal/theme"
)

// FPS is the animation frame rate the caller ticks Step at.
const FPS = 30

const (
	minPaneRows = 8
	chrome      = 3 // border top and bottom plus the title row
)

// PaneRows is the pane height for a window state inside avail rows.
func PaneRows(w session.WindowState, visible bool, avail int, compact bool) int {
	if !visible || avail <= 0 {
		return 0
	}
	switch w {
	case session.Fullscreen:
		return avail
	case session.Docked:
		pct := 60
		if compact {
			pct = 45
		}
		return min(max(avail*pct/100, minPaneRows), avail)
	}
	return 0
}

// TermSize is the emulator grid that fits a pane of the given outer size.
func TermSize(width, paneRows int) (cols, rows int) {
	return max(width-2, 1), max(paneRows-chrome, 1)
}

// Model animates the pane height.
type Model struct {
	spring harmonica.Spring
	pos    float64
	vel    float64
	target float64
}

func New() Model {
	return Model{spring: harmonica.NewSpring(harmonica.FPS(FPS), 8.0, 1.0)}
}

// SetTarget sets the height the pane moves to.
func (m *Model) SetTarget(rows int) {
	m.target = float64(rows)
}

// Target is the height the pane moves to.
func (m Model) Target() int { return int(m.target) }

// Jump moves the pane to its target without animating.
func (m *Model) Jump() {
	m.pos, m.vel = m.target, 0
}

// Step advances one frame and reports whether the pane is still moving.
func (m *Model) Step() bool {
	if !m.Animating() {
		m.Jump()
		return false
	}
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.target)
	if !m.Animating() {
		m.Jump()
	}
	return m.Animating()
}

// Animating reports whether the pane has not settled.
func (m Model) Animating() bool {
	return math.Abs(m.pos-m.target) >= 0.5 || math.Abs(m.vel) >= 0.5
}

// Rows is the current, rounded pane height.
func (m Model) Rows() int {
	return max(int(math.Round(m.pos)), 0)
}

// Pane frames body (an already rendered terminal) with a title. The result
// is exactly width by rows cells; taller bodies are cut from the bottom.
func Pane(p theme.Palette, title string, body string, width, rows int, focused bool) string {
	if rows < chrome {
		return ""
	}
	st := p.Styles()
	frame := st.Border
	if focused {
		frame = st.Focused
	}
	inner := width - 2
	head := st.Header.Render(ansi.Truncate(title, inner, "…"))

	lines := strings.Split(body, "\n")
	if n := rows - chrome; len(lines) > n {
		lines = lines[:n]
	}
	for i, l := range lines {
		lines[i] = ansi.Truncate(l, inner, "")
	}
	content := lipgloss.JoinVertical(lipgloss.Left, head, strings.Join(lines, "\n"))
	return frame.Width(inner).Height(rows - 2).MaxHeight(rows).Render(content)
}

// Chips renders the strip of all sessions, highlighting the visible one.
func Chips(p theme.Palette, sessions []session.Session, width int) string {
	if len(sessions) == 0 {
		return ""
	}
	st := p.Styles()
	parts := make([]string, 0, len(sessions))
	for i, s := range sessions {
		glyph := lipgloss.NewStyle().Foreground(p.StatusColor(s.Status.String())).Render(theme.StatusGlyph(s.Status.String()))
		label := fmt.Sprintf("%d %s@%s", i+1, s.Username, s.DeviceName)
		if s.Window.Visible() {
			parts = append(parts, st.ChipOn.Render(label)+" "+glyph)
		} else {
			parts = append(parts, st.Chip.Render(label)+" "+glyph)
		}
	}
	return ansi.Truncate(strings.Join(parts, "  "), width, "…")
}

// Title is the pane heading for s.
func Title(s session.Session) string {
	return fmt.Sprintf("%s@%s · %s · %s", s.Username, s.DeviceName, s.Window, s.Status)
}
