// Package credentials is the prompt shown before every connect. It never
// starts from previously entered values.
package credentials

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sshdock/sshdock/internal/orchestrator"
	"github.com/sshdock/sshdock/internal/theme"
)

const formWidth = 48

type values struct {
	username string
	password string
}

// Model wraps the huh form for one reconnect request.
type Model struct {
	Request orchestrator.ReconnectRequest
	form    *huh.Form
	values  *values
}

// New builds an empty prompt for req.
func New(req orchestrator.ReconnectRequest) Model {
	v := &values{}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("username").
				Title("Username").
				Value(&v.username).
				Validate(requireUsername),
			huh.NewInput().
				Key("password").
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&v.password),
		),
	).WithWidth(formWidth).WithShowHelp(false)
	return Model{Request: req, form: form, values: v}
}

func requireUsername(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("username is required")
	}
	return nil
}

func (m Model) Init() tea.Cmd { return m.form.Init() }

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	f, cmd := m.form.Update(msg)
	if form, ok := f.(*huh.Form); ok {
		m.form = form
	}
	return m, cmd
}

// Submitted reports whether the user completed the form.
func (m Model) Submitted() bool { return m.form.State == huh.StateCompleted }

// Aborted reports whether the form was cancelled.
func (m Model) Aborted() bool { return m.form.State == huh.StateAborted }

// Credentials returns the entered username and password.
func (m Model) Credentials() (username, password string) {
	return strings.TrimSpace(m.values.username), m.values.password
}

// View renders the prompt in a panel.
func (m Model) View(p theme.Palette) string {
	st := p.Styles()
	title := "Connect to " + m.Request.DeviceName
	if m.Request.Replaces != "" {
		title = "Reconnect to " + m.Request.DeviceName
	}
	return st.Focused.
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			st.Header.Render(title),
			st.Dimmed.Render(m.Request.DeviceUID),
			"",
			m.form.View(),
			st.Dimmed.Render("enter: next/submit · esc: cancel"),
		))
}
