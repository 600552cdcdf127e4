// Package app is the root bubbletea model. It owns the pages, the dock and
// the overlays, and drives the orchestrator from key presses.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sshdock/sshdock/internal/broker"
	"github.com/sshdock/sshdock/internal/history"
	"github.com/sshdock/sshdock/internal/orchestrator"
	"github.com/sshdock/sshdock/internal/session"
	"github.com/sshdock/sshdock/internal/theme"
	"github.com/sshdock/sshdock/internal/views/banner"
	"github.com/sshdock/sshdock/internal/views/credentials"
	"github.com/sshdock/sshdock/internal/views/debug"
	"github.com/sshdock/sshdock/internal/views/devices"
	"github.com/sshdock/sshdock/internal/views/dock"
	helppage "github.com/sshdock/sshdock/internal/views/help"
	"github.com/sshdock/sshdock/internal/views/historyview"
	"github.com/sshdock/sshdock/internal/views/status"
)

const loadTimeout = 10 * time.Second

// Page is one of the top-level routes.
type Page int

const (
	PageDevices Page = iota
	PageHistory
	PageHelp
	pageCount
)

func (p Page) String() string {
	switch p {
	case PageDevices:
		return "devices"
	case PageHistory:
		return "history"
	case PageHelp:
		return "help"
	}
	return "unknown"
}

// DeviceLister lists the devices the user can connect to.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]broker.Device, error)
}

// HistoryReader reads past connections.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Options configure the root model.
type Options struct {
	Orchestrator *orchestrator.Orchestrator
	Devices      DeviceLister
	History      HistoryReader // nil when history is disabled
	HistoryLimit int
	BrokerURL    string
	Theme        string
	Compact      bool
	// ConsoleURL resolves descriptor link targets. Targets are shown as
	// given when it is nil.
	ConsoleURL   func(target string) string
}

type devicesLoadedMsg struct {
	devices []broker.Device
	err     error
}

type historyLoadedMsg struct {
	entries []history.Entry
	err     error
}

type eventMsg orchestrator.Event

type frameMsg time.Time

type helpCache struct {
	key string
	out string
}

// Model is the root bubbletea model.
type Model struct {
	orch     *orchestrator.Orchestrator
	api      DeviceLister
	hist     HistoryReader
	histMax  int
	keys     KeyMap
	help     help.Model
	spinner  spinner.Model
	palette  theme.Palette
	compact  bool
	width    int
	height   int
	page     Page
	terminal bool // keys go to the visible terminal

	devices   devices.Model
	history   historyview.Model
	status    status.Model
	debug     debug.Model
	showDebug bool
	dock      dock.Model
	form      *credentials.Model
	sessions  []session.Session
	version   uint64

	banners    *banner.Renderer
	helpCache  *helpCache
	consoleURL func(string) string
}

// New creates the root model.
func New(opts Options) Model {
	hv := historyview.New()
	hv.Disabled = opts.History == nil
	st := status.New(opts.BrokerURL)
	st.Compact = opts.Compact
	m := Model{
		orch:       opts.Orchestrator,
		api:        opts.Devices,
		hist:       opts.History,
		histMax:    opts.HistoryLimit,
		keys:       DefaultKeyMap(),
		help:       help.New(),
		spinner:    spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		palette:    theme.ByName(opts.Theme),
		compact:    opts.Compact,
		devices:    devices.Model{Loading: true},
		history:    hv,
		status:     st,
		debug:      debug.New(),
		dock:       dock.New(),
		banners:    banner.NewRenderer(),
		helpCache:  &helpCache{},
		consoleURL: opts.ConsoleURL,
	}
	m.orch.Navigate(m.page.String())
	return m
}

// Init starts device loading, the event pump and the frame clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadDevices(),
		waitForEvent(m.orch.Events()),
		tick(),
		m.spinner.Tick,
	)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/dock.FPS, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func waitForEvent(ch <-chan orchestrator.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func (m Model) loadDevices() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		devs, err := api.ListDevices(ctx)
		return devicesLoadedMsg{devices: devs, err: err}
	}
}

func (m Model) loadHistory() tea.Cmd {
	if m.hist == nil {
		return nil
	}
	hist, limit := m.hist, m.histMax
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		entries, err := hist.Recent(ctx, limit)
		return historyLoadedMsg{entries: entries, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.status.Width = msg.Width
		m.sync()
		m.dock.Jump()
		return m, nil

	case frameMsg:
		if v := m.orch.Registry().Version(); v != m.version {
			m.sync()
		}
		m.dock.Step()
		return m, tick()

	case eventMsg:
		m.logEvent(orchestrator.Event(msg))
		m.sync()
		cmds := []tea.Cmd{waitForEvent(m.orch.Events())}
		if msg.Kind == orchestrator.EventMounted && m.page == PageHistory {
			cmds = append(cmds, m.loadHistory())
		}
		return m, tea.Batch(cmds...)

	case devicesLoadedMsg:
		if msg.err != nil {
			m.devices.Loading = false
			m.devices.Err = msg.err
			m.debug.Addf("err", "list devices: %v", msg.err)
			return m, nil
		}
		m.devices.SetDevices(msg.devices)
		m.debug.Addf("ws", "%d devices", len(msg.devices))
		return m, nil

	case historyLoadedMsg:
		if msg.err != nil {
			m.history.Err = msg.err
			return m, nil
		}
		m.history.Err = nil
		m.history.SetEntries(msg.entries)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.status.Spinner = m.spinner.View()
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.form != nil {
		return m.updateForm(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form != nil {
		if key.Matches(msg, m.keys.Escape) || msg.Type == tea.KeyCtrlC {
			m.debug.Add("nav", "connect cancelled")
			m.form = nil
			return m, nil
		}
		return m.updateForm(msg)
	}

	if m.terminal {
		return m.handleTerminalKey(msg)
	}

	if m.showDebug {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.showDebug = false
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.NextPage):
		return m.setPage((m.page + 1) % pageCount)

	case key.Matches(msg, m.keys.PrevPage):
		return m.setPage((m.page + pageCount - 1) % pageCount)

	case key.Matches(msg, m.keys.Up):
		if m.page == PageDevices {
			m.devices.Up()
			return m, nil
		}
		if m.page == PageHistory {
			var cmd tea.Cmd
			m.history, cmd = m.history.Update(msg)
			return m, cmd
		}

	case key.Matches(msg, m.keys.Down):
		if m.page == PageDevices {
			m.devices.Down()
			return m, nil
		}
		if m.page == PageHistory {
			var cmd tea.Cmd
			m.history, cmd = m.history.Update(msg)
			return m, cmd
		}

	case key.Matches(msg, m.keys.Connect):
		return m.connectSelected()

	case key.Matches(msg, m.keys.Restore):
		n := int(msg.Runes[0] - '1')
		if n < len(m.sessions) {
			m.orch.Registry().Restore(m.sessions[n].ID)
			m.sync()
		}
		return m, nil

	case key.Matches(msg, m.keys.Minimize):
		if s, ok := session.Visible(m.sessions); ok {
			m.orch.Registry().Minimize(s.ID)
			m.sync()
		}
		return m, nil

	case key.Matches(msg, m.keys.MinimizeAll):
		m.orch.Registry().MinimizeAll()
		m.sync()
		return m, nil

	case key.Matches(msg, m.keys.Fullscreen):
		if s, ok := m.target(); ok {
			m.orch.Registry().ToggleFullscreen(s.ID)
			m.sync()
		}
		return m, nil

	case key.Matches(msg, m.keys.Close):
		if s, ok := session.Visible(m.sessions); ok {
			m.orch.Close(s.ID)
			m.debug.Addf("sess", "%s closed", shortID(s.ID))
			m.sync()
		}
		return m, nil

	case key.Matches(msg, m.keys.Retry):
		s, ok := m.target()
		if !ok {
			return m, nil
		}
		if !m.orch.RequestRetry(s.ID) {
			m.notice(fmt.Sprintf("%s cannot be retried", s.DeviceName), false)
			return m, nil
		}
		return m.openPrompt()

	case key.Matches(msg, m.keys.Focus):
		if s, ok := session.Visible(m.sessions); ok && s.Status != session.Disconnected {
			m.terminal = true
			m.status.Focus = "terminal"
		}
		return m, nil

	case key.Matches(msg, m.keys.Theme):
		m.palette = theme.Next(m.palette)
		m.debug.Addf("nav", "theme %s", m.palette.Name)
		return m, nil

	case key.Matches(msg, m.keys.Compact):
		m.compact = !m.compact
		m.status.Compact = m.compact
		m.sync()
		return m, nil

	case key.Matches(msg, m.keys.Debug):
		m.showDebug = true
		return m, nil

	case key.Matches(msg, m.keys.Reload):
		m.devices.Loading = true
		return m, tea.Batch(m.loadDevices(), m.loadHistory())

	case key.Matches(msg, m.keys.Escape):
		m.status.Notice = ""
		return m, nil
	}

	return m, nil
}

func (m Model) handleTerminalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Unfocus) {
		m.terminal = false
		m.status.Focus = ""
		return m, nil
	}
	s, ok := session.Visible(m.sessions)
	if !ok {
		m.terminal = false
		return m, nil
	}
	if term, ok := m.orch.Terminal(s.ID); ok {
		if p := keyBytes(msg); len(p) > 0 {
			term.Input(p)
		}
	}
	return m, nil
}

func (m Model) setPage(p Page) (tea.Model, tea.Cmd) {
	m.page = p
	m.orch.Navigate(p.String())
	m.sync()
	if p == PageHistory {
		return m, m.loadHistory()
	}
	return m, nil
}

func (m Model) connectSelected() (tea.Model, tea.Cmd) {
	if m.page != PageDevices {
		return m, nil
	}
	d, ok := m.devices.Current()
	if !ok {
		return m, nil
	}
	if !d.Online {
		m.notice(d.Name+" is offline", false)
		return m, nil
	}
	m.orch.RequestReconnect(d.UID, d.Name)
	return m.openPrompt()
}

// openPrompt consumes the pending reconnect request into a credential form.
func (m Model) openPrompt() (tea.Model, tea.Cmd) {
	req, ok := m.orch.ConsumeReconnect()
	if !ok {
		return m, nil
	}
	form := credentials.New(req)
	m.form = &form
	m.debug.Addf("nav", "prompt for %s", req.DeviceName)
	return m, form.Init()
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	switch {
	case form.Aborted():
		m.form = nil
		return m, nil
	case form.Submitted():
		user, pass := form.Credentials()
		m.form = nil
		return m.submit(form.Request, user, pass), nil
	}
	m.form = &form
	return m, cmd
}

func (m Model) submit(req orchestrator.ReconnectRequest, username, password string) Model {
	m.orch.SetSize(dock.TermSize(m.width, m.dockedRows()))
	id := m.orch.Submit(req, username, password)
	m.debug.Addf("sess", "%s %s@%s", shortID(id), username, req.DeviceName)
	m.terminal = true
	m.status.Focus = "terminal"
	m.sync()
	return m
}

// target is the session window keys act on: the visible one, else the
// most recently opened.
func (m Model) target() (session.Session, bool) {
	if s, ok := session.Visible(m.sessions); ok {
		return s, true
	}
	if n := len(m.sessions); n > 0 {
		return m.sessions[n-1], true
	}
	return session.Session{}, false
}

func (m *Model) notice(text string, ok bool) {
	m.status.Notice = text
	m.status.NoticeOK = ok
}

// sync refreshes the session snapshot and fits the visible terminal to
// the pane it will occupy once the dock settles.
func (m *Model) sync() {
	reg := m.orch.Registry()
	m.version = reg.Version()
	m.sessions = reg.List()
	m.status.SetSessions(m.sessions)

	if m.width == 0 || m.height == 0 {
		return
	}
	m.orch.SetSize(dock.TermSize(m.width, m.dockedRows()))

	s, visible := session.Visible(m.sessions)
	rows := dock.PaneRows(s.Window, visible, m.availRows(), m.compact)
	m.dock.SetTarget(rows)
	if !visible {
		m.terminal = false
		m.status.Focus = ""
		return
	}
	if term, ok := m.orch.Terminal(s.ID); ok && rows > 0 {
		term.Fit(dock.TermSize(m.width, rows))
	}
	if s.Status == session.Disconnected {
		m.terminal = false
		m.status.Focus = ""
	}
}

func (m Model) chipRows() int {
	if len(m.sessions) == 0 {
		return 0
	}
	return 1
}

// availRows is the height shared by the page and the dock.
func (m Model) availRows() int {
	return max(m.height-1-m.status.Height()-m.chipRows()-1, 0)
}

func (m Model) dockedRows() int {
	return dock.PaneRows(session.Docked, true, m.availRows(), m.compact)
}

func (m *Model) logEvent(e orchestrator.Event) {
	id := shortID(e.SessionID)
	switch e.Kind {
	case orchestrator.EventStatus:
		m.debug.Addf("ws", "%s %s", id, e.Status)
	case orchestrator.EventError:
		m.debug.Addf("err", "%s %s", id, e.Descriptor.Title)
	case orchestrator.EventNavigated:
		m.debug.Addf("nav", "route %s", e.Route)
	default:
		m.debug.Addf("sess", "%s %s", id, e.Kind)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	avail := m.availRows()
	paneRows := min(m.dock.Rows(), avail)
	pageRows := avail - paneRows

	var body string
	switch {
	case m.form != nil:
		body = lipgloss.Place(m.width, avail, lipgloss.Center, lipgloss.Center, m.form.View(m.palette))
	case m.showDebug:
		body = m.debug.View(m.palette, m.width, avail)
	default:
		body = lipgloss.JoinVertical(lipgloss.Left, m.renderPage(pageRows), m.renderPane(paneRows))
	}
	body = lipgloss.NewStyle().Height(avail).MaxHeight(avail).Render(body)

	sections := []string{m.renderTabs(), body}
	if chips := dock.Chips(m.palette, m.sessions, m.width); chips != "" {
		sections = append(sections, chips)
	}
	sections = append(sections, m.status.View(m.palette), m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTabs() string {
	st := m.palette.Styles()
	tabs := make([]string, 0, pageCount)
	for p := PageDevices; p < pageCount; p++ {
		if p == m.page {
			tabs = append(tabs, st.TabOn.Render(p.String()))
		} else {
			tabs = append(tabs, st.Tab.Render(p.String()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderPage(rows int) string {
	if rows <= 0 {
		return ""
	}
	var out string
	switch m.page {
	case PageDevices:
		out = m.devices.View(m.palette, m.width, rows)
	case PageHistory:
		out = m.history.View(m.palette, m.width, rows)
	case PageHelp:
		out = m.renderHelp()
	}
	return lipgloss.NewStyle().Height(rows).MaxHeight(rows).Render(out)
}

func (m Model) renderHelp() string {
	style := "dark"
	if m.palette.Name == theme.Light.Name {
		style = "light"
	}
	k := fmt.Sprintf("%s/%d", style, m.width)
	if m.helpCache.key != k {
		md := helppage.Markdown(m.keys.FullHelp(), helpTitles)
		m.helpCache.out = helppage.Render(md, style, m.width)
		m.helpCache.key = k
	}
	return m.helpCache.out
}

func (m Model) renderPane(rows int) string {
	s, ok := session.Visible(m.sessions)
	if !ok || rows <= 0 {
		return ""
	}
	term, ok := m.orch.Terminal(s.ID)
	if !ok {
		return ""
	}
	focused := m.terminal
	body := term.View(focused)

	d, failed := term.Banner()
	if !failed {
		d, failed = m.orch.Descriptor(s.ID)
	}
	if failed {
		b := m.banners.Render(d.WithLinkBase(m.consoleURL), m.palette, m.width-2)
		lines := strings.Split(body, "\n")
		keep := max(rows-3-lipgloss.Height(b), 0)
		lines = lines[:min(keep, len(lines))]
		body = lipgloss.JoinVertical(lipgloss.Left, append(lines, b)...)
	}
	return dock.Pane(m.palette, dock.Title(s), body, m.width, rows, focused)
}
