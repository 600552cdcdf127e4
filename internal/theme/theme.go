// Package theme provides the Lip Gloss palettes and reusable styles for the
// sshdock TUI. It is a leaf package with no internal imports to avoid import
// cycles.
package theme

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette is one named set of colors. Switching palettes re-styles the UI
// without touching any session.
type Palette struct {
	Name string

	Border  lipgloss.Color
	Dimmed  lipgloss.Color
	Bright  lipgloss.Color
	Bg      lipgloss.Color
	Accent  lipgloss.Color
	Healthy lipgloss.Color
	Warning lipgloss.Color
	Danger  lipgloss.Color
	Muted   lipgloss.Color
}

var (
	Dark = Palette{
		Name:    "dark",
		Border:  lipgloss.Color("#4b5563"),
		Dimmed:  lipgloss.Color("#6b7280"),
		Bright:  lipgloss.Color("#f9fafb"),
		Bg:      lipgloss.Color("#111827"),
		Accent:  lipgloss.Color("#06b6d4"),
		Healthy: lipgloss.Color("#22c55e"),
		Warning: lipgloss.Color("#d97706"),
		Danger:  lipgloss.Color("#dc2626"),
		Muted:   lipgloss.Color("#374151"),
	}
	Light = Palette{
		Name:    "light",
		Border:  lipgloss.Color("#9ca3af"),
		Dimmed:  lipgloss.Color("#6b7280"),
		Bright:  lipgloss.Color("#111827"),
		Bg:      lipgloss.Color("#f9fafb"),
		Accent:  lipgloss.Color("#2563eb"),
		Healthy: lipgloss.Color("#16a34a"),
		Warning: lipgloss.Color("#b45309"),
		Danger:  lipgloss.Color("#b91c1c"),
		Muted:   lipgloss.Color("#d1d5db"),
	}
	HighContrast = Palette{
		Name:    "contrast",
		Border:  lipgloss.Color("#ffffff"),
		Dimmed:  lipgloss.Color("#d1d5db"),
		Bright:  lipgloss.Color("#ffffff"),
		Bg:      lipgloss.Color("#000000"),
		Accent:  lipgloss.Color("#facc15"),
		Healthy: lipgloss.Color("#4ade80"),
		Warning: lipgloss.Color("#fb923c"),
		Danger:  lipgloss.Color("#f87171"),
		Muted:   lipgloss.Color("#4b5563"),
	}
)

// Palettes in cycling order.
var Palettes = []Palette{Dark, Light, HighContrast}

// ByName returns the palette called name, or Dark.
func ByName(name string) Palette {
	for _, p := range Palettes {
		if p.Name == name {
			return p
		}
	}
	return Dark
}

// Next returns the palette after p in cycling order.
func Next(p Palette) Palette {
	for i, q := range Palettes {
		if q.Name == p.Name {
			return Palettes[(i+1)%len(Palettes)]
		}
	}
	return Dark
}

// StatusColor returns the color for a connection status name.
func (p Palette) StatusColor(status string) lipgloss.Color {
	switch status {
	case "connected":
		return p.Healthy
	case "connecting":
		return p.Warning
	case "disconnected":
		return p.Danger
	default:
		return p.Dimmed
	}
}

// StatusGlyph returns a Unicode glyph for a connection status name.
func StatusGlyph(status string) string {
	switch status {
	case "connected":
		return "●"
	case "connecting":
		return "◌"
	case "disconnected":
		return "✗"
	default:
		return "·"
	}
}

// Styles are the reusable styles derived from one palette.
type Styles struct {
	Border   lipgloss.Style
	Focused  lipgloss.Style
	Header   lipgloss.Style
	Dimmed   lipgloss.Style
	Selected lipgloss.Style
	Tab      lipgloss.Style
	TabOn    lipgloss.Style
	Chip     lipgloss.Style
	ChipOn   lipgloss.Style
	Danger   lipgloss.Style
}

// Styles builds the style set for p.
func (p Palette) Styles() Styles {
	return Styles{
		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(p.Border),
		Focused: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(p.Accent),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Bright),
		Dimmed: lipgloss.NewStyle().
			Foreground(p.Dimmed),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Accent),
		Tab: lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(p.Dimmed),
		TabOn: lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(p.Bright).
			Underline(true),
		Chip: lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(p.Bright).
			Background(p.Muted),
		ChipOn: lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(p.Bg).
			Background(p.Accent),
		Danger: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Danger),
	}
}
