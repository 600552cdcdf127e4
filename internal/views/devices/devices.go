// Package devices renders the device list the user connects from.
package devices

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/sshdock/sshdock/internal/broker"
	"github.com/sshdock/sshdock/internal/theme"
)

// Model holds the device list and the cursor.
type Model struct {
	Devices  []broker.Device
	Selected int
	Loading  bool
	Err      error
}

// SetDevices replaces the list, keeping the cursor on the same device
// when it is still present.
func (m *Model) SetDevices(devices []broker.Device) {
	var prev string
	if d, ok := m.Current(); ok {
		prev = d.UID
	}
	m.Devices = devices
	m.Loading = false
	m.Err = nil
	m.Selected = 0
	for i, d := range devices {
		if d.UID == prev {
			m.Selected = i
			break
		}
	}
}

// Current returns the device under the cursor.
func (m Model) Current() (broker.Device, bool) {
	if m.Selected < 0 || m.Selected >= len(m.Devices) {
		return broker.Device{}, false
	}
	return m.Devices[m.Selected], true
}

func (m *Model) Down() {
	if len(m.Devices) > 0 {
		m.Selected = (m.Selected + 1) % len(m.Devices)
	}
}

func (m *Model) Up() {
	if len(m.Devices) > 0 {
		m.Selected = (m.Selected - 1 + len(m.Devices)) % len(m.Devices)
	}
}

// View renders at most height rows, scrolling to keep the cursor visible.
func (m Model) View(p theme.Palette, width, height int) string {
	st := p.Styles()
	switch {
	case m.Err != nil:
		return st.Danger.Render("  failed to load devices: ") + st.Dimmed.Render(m.Err.Error())
	case m.Loading && len(m.Devices) == 0:
		return st.Dimmed.Render("  loading devices…")
	case len(m.Devices) == 0:
		return st.Dimmed.Render("  No devices available")
	}

	height = max(height, 1)
	start := 0
	if m.Selected >= height {
		start = m.Selected - height + 1
	}
	end := min(start+height, len(m.Devices))

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		d := m.Devices[i]
		prefix := "  "
		nameStyle := lipgloss.NewStyle().Foreground(p.Bright)
		if i == m.Selected {
			prefix = "> "
			nameStyle = st.Selected
		}
		name := nameStyle.Width(24).Render(ansi.Truncate(d.Name, 23, "…"))
		state := lipgloss.NewStyle().Foreground(p.Healthy).Render("● online")
		if !d.Online {
			state = lipgloss.NewStyle().Foreground(p.Dimmed).Render("○ offline")
		}
		line := fmt.Sprintf("%s%s %s  %s", prefix, name, state, st.Dimmed.Render(d.UID))
		lines = append(lines, ansi.Truncate(line, width, "…"))
	}
	return strings.Join(lines, "\n")
}
