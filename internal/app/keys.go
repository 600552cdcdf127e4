package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the TUI.
type KeyMap struct {
	NextPage    key.Binding
	PrevPage    key.Binding
	Up          key.Binding
	Down        key.Binding
	Connect     key.Binding
	Restore     key.Binding
	Minimize    key.Binding
	MinimizeAll key.Binding
	Fullscreen  key.Binding
	Close       key.Binding
	Retry       key.Binding
	Focus       key.Binding
	Unfocus     key.Binding
	Theme       key.Binding
	Compact     key.Binding
	Debug       key.Binding
	Reload      key.Binding
	Escape      key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		NextPage: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next page"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "previous page"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Connect: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "connect"),
		),
		Restore: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
			key.WithHelp("1-9", "restore session"),
		),
		Minimize: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "minimize"),
		),
		MinimizeAll: key.NewBinding(
			key.WithKeys("M"),
			key.WithHelp("M", "minimize all"),
		),
		Fullscreen: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "fullscreen"),
		),
		Close: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "close session"),
		),
		Retry: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "retry"),
		),
		Focus: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "type into terminal"),
		),
		Unfocus: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("ctrl+o", "leave terminal"),
		),
		Theme: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "cycle theme"),
		),
		Compact: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "compact"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "debug log"),
		),
		Reload: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "reload"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp is the footer line.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextPage, k.Connect, k.Restore, k.Minimize, k.Fullscreen, k.Close, k.Retry, k.Focus, k.Quit}
}

// FullHelp groups every binding for the help page.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextPage, k.PrevPage, k.Up, k.Down, k.Connect, k.Reload},
		{k.Restore, k.Minimize, k.MinimizeAll, k.Fullscreen, k.Close, k.Retry},
		{k.Focus, k.Unfocus},
		{k.Theme, k.Compact, k.Debug, k.Escape, k.Quit},
	}
}

var helpTitles = []string{"Pages", "Sessions", "Terminal", "Interface"}
