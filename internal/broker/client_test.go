package broker

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshdock/sshdock/internal/classify"
	"github.com/sshdock/sshdock/internal/config"
	"github.com/sshdock/sshdock/internal/mockbroker"
	"github.com/sshdock/sshdock/internal/session"
	"github.com/sshdock/sshdock/internal/wire"
)

const waitFor = 5 * time.Second

type fakeEmulator struct {
	mu          sync.Mutex
	out         bytes.Buffer
	cols, rows  int
	interactive bool
	banner      *classify.Descriptor
	onData      func([]byte)
	onResize    func(cols, rows int)
	calls       []string
}

func newFakeEmulator() *fakeEmulator {
	return &fakeEmulator{cols: 100, rows: 30}
}

func (e *fakeEmulator) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.Write(p)
}

func (e *fakeEmulator) Size() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cols, e.rows
}

func (e *fakeEmulator) SetInteractive(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interactive = on
}

func (e *fakeEmulator) ShowBanner(d classify.Descriptor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.banner = &d
}

func (e *fakeEmulator) OnData(fn func([]byte)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onData = fn
	if fn == nil {
		e.calls = append(e.calls, "detach")
	}
}

func (e *fakeEmulator) OnResize(fn func(cols, rows int)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onResize = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.onResize = nil
		e.calls = append(e.calls, "stop-resize")
	}
}

func (e *fakeEmulator) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "dispose")
}

// Type delivers input the way a focused terminal would.
func (e *fakeEmulator) Type(s string) {
	e.mu.Lock()
	fn := e.onData
	e.mu.Unlock()
	if fn != nil {
		fn([]byte(s))
	}
}

// Fit changes the grid and notifies the observer.
func (e *fakeEmulator) Fit(cols, rows int) {
	e.mu.Lock()
	e.cols, e.rows = cols, rows
	fn := e.onResize
	e.mu.Unlock()
	if fn != nil {
		fn(cols, rows)
	}
}

func (e *fakeEmulator) Output() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.String()
}

func (e *fakeEmulator) Banner() *classify.Descriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.banner
}

func (e *fakeEmulator) Interactive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interactive
}

func (e *fakeEmulator) Attached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onData != nil
}

func (e *fakeEmulator) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// registryReporter forwards statuses into a real registry and keeps errors.
type registryReporter struct {
	reg *session.Registry

	mu   sync.Mutex
	errs []classify.Descriptor
}

func (r *registryReporter) SetConnectionStatus(id string, st session.ConnectionStatus) {
	r.reg.SetConnectionStatus(id, st)
}

func (r *registryReporter) ReportError(_ string, d classify.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, d)
}

func (r *registryReporter) Errors() []classify.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]classify.Descriptor(nil), r.errs...)
}

type harness struct {
	t      *testing.T
	srv    *mockbroker.Server
	http   *HTTPClient
	reg    *session.Registry
	rep    *registryReporter
	emu    *fakeEmulator
	client *Client
	id     string
}

func newHarness(t *testing.T, opts ...mockbroker.Option) *harness {
	t.Helper()
	srv := mockbroker.NewServer(config.MockConfig{Devices: []config.MockDevice{
		{UID: "d1", Name: "box1", Kind: config.KindEcho, Username: "root", Password: "x"},
		{UID: "d0", Name: "box0", Kind: config.KindEcho},
	}}, opts...)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	reg := session.NewRegistry()
	return &harness{
		t:    t,
		srv:  srv,
		http: NewHTTPClient(ts.URL, ""),
		reg:  reg,
		rep:  &registryReporter{reg: reg},
		emu:  newFakeEmulator(),
	}
}

func (h *harness) open(device, user, pass string) *Client {
	h.id = h.reg.Open(session.OpenParams{DeviceUID: device, DeviceName: device, Username: user, Password: pass})
	pw, _ := h.reg.TakePassword(h.id)
	h.client = New(Options{
		ID:         h.id,
		Target:     Target{DeviceUID: device, DeviceName: device, Username: user},
		Password:   pw,
		Negotiator: h.http,
		Emulator:   h.emu,
		Reporter:   h.rep,
		Classifier: classify.New(false),
	})
	h.client.Start(context.Background())
	h.t.Cleanup(h.client.Close)
	return h.client
}

func (h *harness) waitState(want State) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.client.State() == want }, waitFor, 10*time.Millisecond,
		"state = %v, want %v", h.client.State(), want)
}

func (h *harness) waitOutput(want string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return strings.Contains(h.emu.Output(), want) }, waitFor, 10*time.Millisecond,
		"output %q never contained %q", h.emu.Output(), want)
}

func (h *harness) status() session.ConnectionStatus {
	s, _ := h.reg.Get(h.id)
	return s.Status
}

func TestHappyPath(t *testing.T) {
	h := newHarness(t)
	earlier := h.reg.Open(session.OpenParams{DeviceUID: "d0"})

	h.open("d1", "root", "x")
	h.waitState(Connected)

	assert.Equal(t, session.Connected, h.status())
	prev, _ := h.reg.Get(earlier)
	assert.Equal(t, session.Minimized, prev.Window)

	h.waitOutput("connected to box1 (100x30)")
	h.emu.Type("whoami\r")
	h.waitOutput("whoami\r\n")
	assert.True(t, h.emu.Interactive())
}

func TestAuthFailure(t *testing.T) {
	h := newHarness(t)
	h.open("d1", "root", "wrong")
	h.waitState(Disconnected)

	d, ok := h.client.Descriptor()
	require.True(t, ok)
	assert.Equal(t, "Connection failed", d.Title)
	assert.Equal(t, "The username or password is incorrect.", d.Message)
	assert.True(t, d.Reconnect)

	require.Eventually(t, func() bool { return h.status() == session.Disconnected }, waitFor, 10*time.Millisecond)
	require.NotNil(t, h.emu.Banner())
	assert.Equal(t, d, *h.emu.Banner())
	assert.False(t, h.emu.Interactive())
	assert.Equal(t, []classify.Descriptor{d}, h.rep.Errors())

	_, stillThere := h.reg.Get(h.id)
	assert.True(t, stillThere)
}

func TestErrorFrameSuppressesLaterOutput(t *testing.T) {
	emu := newFakeEmulator()
	c := New(Options{ID: "s1", Emulator: emu, Reporter: &registryReporter{reg: session.NewRegistry()}})
	c.state = Connected

	c.deliver([]byte("before"))
	frame, err := wire.EncodeError(classify.ErrAuthentication)
	require.NoError(t, err)
	c.deliver(frame)
	c.deliver([]byte("after"))

	assert.Equal(t, "before", emu.Output())
	assert.Equal(t, Disconnected, c.State())
}

func TestErrorFrameClosesSocket(t *testing.T) {
	serverDone := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(serverDone)
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frame, _ := wire.EncodeError(classify.ErrAuthentication)
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
		// Keep the socket open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	emu := newFakeEmulator()
	rep := &registryReporter{reg: session.NewRegistry()}
	c := New(Options{
		ID:         "s1",
		Negotiator: stubNegotiator{token: "t", url: "ws" + strings.TrimPrefix(ts.URL, "http")},
		Emulator:   emu,
		Reporter:   rep,
		Classifier: classify.New(false),
	})
	c.Start(context.Background())
	t.Cleanup(c.Close)

	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatalf("client still running after an error frame, state = %v", c.State())
	}
	select {
	case <-serverDone:
	case <-time.After(waitFor):
		t.Fatal("socket still open after an error frame")
	}

	assert.Equal(t, Disconnected, c.State())
	d, ok := c.Descriptor()
	require.True(t, ok)
	assert.Equal(t, "Connection failed", d.Title)
	require.NotNil(t, emu.Banner())
	assert.NotContains(t, emu.Calls(), "dispose", "banner stays until close")
}

func TestPlainTextIsTerminalOutput(t *testing.T) {
	emu := newFakeEmulator()
	c := New(Options{ID: "s1", Emulator: emu})
	c.state = Connected

	c.deliver([]byte("hello"))
	c.deliver([]byte(`{"kind":2,"data":{"cols":1,"rows":1}}`))

	assert.Equal(t, `hello{"kind":2,"data":{"cols":1,"rows":1}}`, emu.Output())
	assert.Equal(t, Connected, c.State())
}

func TestNegotiationFailure(t *testing.T) {
	h := newHarness(t)
	h.open("missing", "root", "x")
	h.waitState(Disconnected)

	d, _ := h.client.Descriptor()
	assert.Equal(t, classify.NegotiationFailed(), d)
	assert.False(t, h.emu.Attached(), "emulator must not be attached when negotiation fails")
	assert.Zero(t, h.srv.Active("missing"))
}

func TestCleanCloseEndsSession(t *testing.T) {
	h := newHarness(t)
	h.open("d1", "root", "x")
	h.waitState(Connected)

	h.emu.Type("exit\r")
	h.waitState(Disconnected)

	d, _ := h.client.Descriptor()
	assert.Equal(t, classify.SessionEnded(), d)
	assert.False(t, d.Reconnect)
}

type stubNegotiator struct {
	token string
	err   error
	url   string
	block bool
}

func (s stubNegotiator) NegotiateToken(ctx context.Context, _, _, _ string) (string, error) {
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.token, s.err
}

func (s stubNegotiator) SocketURL(string, int, int) (string, error) { return s.url, nil }

func TestDialFailureIsNetworkError(t *testing.T) {
	ts := httptest.NewServer(nil)
	addr := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/ssh"
	ts.Close()

	emu := newFakeEmulator()
	rep := &registryReporter{reg: session.NewRegistry()}
	c := New(Options{ID: "s1", Negotiator: stubNegotiator{token: "t", url: addr}, Emulator: emu, Reporter: rep})
	c.Start(context.Background())
	<-c.Done()

	d, ok := c.Descriptor()
	require.True(t, ok)
	assert.Equal(t, classify.NetworkError(), d)
	assert.False(t, d.Reconnect)
}

func TestNegotiationErrorNeverDials(t *testing.T) {
	emu := newFakeEmulator()
	c := New(Options{
		ID:         "s1",
		Negotiator: stubNegotiator{err: errors.New("boom"), url: "ws://127.0.0.1:1/never"},
		Emulator:   emu,
	})
	c.Start(context.Background())
	<-c.Done()

	assert.Equal(t, Disconnected, c.State())
	d, _ := c.Descriptor()
	assert.True(t, d.Reconnect)
}

// gatedNegotiator holds the client in Opening until released.
type gatedNegotiator struct {
	*HTTPClient
	entered chan struct{}
	release chan struct{}
}

func (g gatedNegotiator) SocketURL(token string, cols, rows int) (string, error) {
	close(g.entered)
	<-g.release
	return g.HTTPClient.SocketURL(token, cols, rows)
}

func TestResizeOnlyWhileConnected(t *testing.T) {
	h := newHarness(t)
	gate := gatedNegotiator{HTTPClient: h.http, entered: make(chan struct{}), release: make(chan struct{})}
	h.id = h.reg.Open(session.OpenParams{DeviceUID: "d0"})
	h.client = New(Options{
		ID:         h.id,
		Target:     Target{DeviceUID: "d0"},
		Negotiator: gate,
		Emulator:   h.emu,
		Reporter:   h.rep,
	})
	h.client.Start(context.Background())
	t.Cleanup(h.client.Close)

	<-gate.entered
	assert.Equal(t, Opening, h.client.State())
	h.emu.Fit(90, 20)
	close(gate.release)

	h.waitState(Connected)
	h.waitOutput("connected to box0 (100x30)")

	h.emu.Fit(120, 40)
	h.waitOutput("[resized to 120x40]")
	assert.NotContains(t, h.emu.Output(), "[resized to 90x20]")
}

type recordingBackend struct {
	mu   sync.Mutex
	in   bytes.Buffer
	out  chan []byte
	once sync.Once
}

func (b *recordingBackend) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.in.Write(p)
}

func (b *recordingBackend) Read(p []byte) (int, error) {
	msg, ok := <-b.out
	if !ok {
		return 0, errors.New("closed")
	}
	return copy(p, msg), nil
}

func (b *recordingBackend) Resize(int, int) error { return nil }

func (b *recordingBackend) Close() error {
	b.once.Do(func() { close(b.out) })
	return nil
}

func (b *recordingBackend) Received() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.in.Len()
}

func TestInputTruncatedPerFrame(t *testing.T) {
	backend := &recordingBackend{out: make(chan []byte)}
	h := newHarness(t, mockbroker.WithConnector(func(context.Context, config.MockDevice, mockbroker.Credentials, wire.Size) (mockbroker.Backend, error) {
		return backend, nil
	}))
	h.open("d0", "root", "")
	h.waitState(Connected)

	h.emu.Type(strings.Repeat("a", wire.MaxInputBytes+904))
	h.emu.Type("b")

	require.Eventually(t, func() bool { return backend.Received() == wire.MaxInputBytes+1 }, waitFor, 10*time.Millisecond,
		"received %d bytes", backend.Received())
}

func TestTeardownOrder(t *testing.T) {
	h := newHarness(t)
	h.open("d0", "root", "")
	h.waitState(Connected)
	require.Eventually(t, func() bool { return h.srv.Active("d0") == 1 }, waitFor, 10*time.Millisecond)

	h.client.Close()
	<-h.client.Done()

	assert.Equal(t, []string{"detach", "dispose", "stop-resize"}, h.emu.Calls())
	assert.Equal(t, Closed, h.client.State())
	require.Eventually(t, func() bool { return h.srv.Active("d0") == 0 }, waitFor, 10*time.Millisecond)

	// Late callbacks are harmless.
	h.client.onResize(10, 10)
	h.client.onInput([]byte("x"))
	assert.ErrorIs(t, h.client.Send([]byte("x")), ErrNotConnected)
	assert.Equal(t, session.Connected, h.status(), "closing must not report")
}

func TestCloseDuringNegotiation(t *testing.T) {
	emu := newFakeEmulator()
	rep := &registryReporter{reg: session.NewRegistry()}
	c := New(Options{ID: "s1", Negotiator: stubNegotiator{block: true}, Emulator: emu, Reporter: rep})
	c.Start(context.Background())

	c.Close()
	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("client did not stop")
	}
	assert.Empty(t, rep.Errors())
	_, ok := c.Descriptor()
	assert.False(t, ok)
}

func TestCloseBeforeStart(t *testing.T) {
	c := New(Options{ID: "s1", Emulator: newFakeEmulator()})
	c.Close()
	c.Start(context.Background())
	<-c.Done()
	assert.Equal(t, Closed, c.State())
}

func TestPasswordForgottenAfterNegotiation(t *testing.T) {
	h := newHarness(t)
	h.open("d1", "root", "x")
	h.waitState(Connected)

	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	assert.Empty(t, h.client.password)
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Negotiating, Opening, true},
		{Negotiating, Disconnected, true},
		{Negotiating, Connected, false},
		{Opening, Connected, true},
		{Opening, Disconnected, true},
		{Connected, Disconnected, true},
		{Connected, Opening, false},
		{Disconnected, Connected, false},
		{Disconnected, Closed, true},
		{Closed, Closed, false},
		{Closed, Disconnected, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanMove(tt.to); got != tt.want {
			t.Errorf("%v.CanMove(%v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
