// Package historyview renders recent connection attempts as a table.
package historyview

import (
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sshdock/sshdock/internal/history"
	"github.com/sshdock/sshdock/internal/theme"
)

// Model wraps a bubbles table of history entries.
type Model struct {
	table    table.Model
	entries  []history.Entry
	Disabled bool
	Err      error
}

func New() Model {
	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(5),
	)
	return Model{table: t}
}

func columns(width int) []table.Column {
	rest := max(width-20-10-12-8, 20)
	return []table.Column{
		{Title: "When", Width: 20},
		{Title: "User", Width: 10},
		{Title: "Device", Width: 12},
		{Title: "Outcome", Width: rest},
	}
}

// SetEntries replaces the rows.
func (m *Model) SetEntries(entries []history.Entry) {
	m.entries = entries
	m.Err = nil
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, table.Row{
			e.OpenedAt.Local().Format("2006-01-02 15:04:05"),
			e.Username,
			e.DeviceName,
			e.Outcome(),
		})
	}
	m.table.SetRows(rows)
}

// Len is the number of entries shown.
func (m Model) Len() int { return len(m.entries) }

// Selected returns the entry under the cursor.
func (m Model) Selected() (history.Entry, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.entries) {
		return history.Entry{}, false
	}
	return m.entries[i], true
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the table restyled for p into width by height cells.
func (m Model) View(p theme.Palette, width, height int) string {
	st := p.Styles()
	switch {
	case m.Disabled:
		return st.Dimmed.Render("  History is disabled.")
	case m.Err != nil:
		return st.Danger.Render("  failed to load history: ") + st.Dimmed.Render(m.Err.Error())
	case len(m.entries) == 0:
		return st.Dimmed.Render("  No connections yet.")
	}

	t := m.table
	t.SetColumns(columns(width))
	t.SetWidth(width)
	t.SetHeight(max(height-1, 2))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(p.Border).
		BorderBottom(true).
		Bold(true).
		Foreground(p.Bright)
	styles.Selected = styles.Selected.
		Foreground(p.Bg).
		Background(p.Accent).
		Bold(false)
	t.SetStyles(styles)
	return t.View()
}
