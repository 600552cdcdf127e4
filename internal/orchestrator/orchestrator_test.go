package orchestrator

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshdock/sshdock/internal/broker"
	"github.com/sshdock/sshdock/internal/classify"
	"github.com/sshdock/sshdock/internal/config"
	"github.com/sshdock/sshdock/internal/mockbroker"
	"github.com/sshdock/sshdock/internal/session"
)

type fakeMount struct {
	id       string
	password string
	rep      broker.Reporter
	emu      broker.Emulator

	mu      sync.Mutex
	started int
	closed  int
	done    chan struct{}
}

func (m *fakeMount) Start(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *fakeMount) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	if m.closed == 1 {
		close(m.done)
	}
}

func (m *fakeMount) Done() <-chan struct{} { return m.done }

func (m *fakeMount) counts() (started, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started, m.closed
}

type fakeFactory struct {
	mu     sync.Mutex
	mounts []*fakeMount
}

func (f *fakeFactory) build(id string, _ broker.Target, password string, emu broker.Emulator, rep broker.Reporter) Mount {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &fakeMount{id: id, password: password, rep: rep, emu: emu, done: make(chan struct{})}
	f.mounts = append(f.mounts, m)
	return m
}

func (f *fakeFactory) all() []*fakeMount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeMount(nil), f.mounts...)
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *fakeRecorder) add(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
	return nil
}

func (r *fakeRecorder) Opened(id string, t broker.Target, _ time.Time) error {
	return r.add("opened " + t.DeviceUID + " " + t.Username)
}
func (r *fakeRecorder) Connected(id string) error { return r.add("connected") }
func (r *fakeRecorder) Failed(id string, title string) error { return r.add("failed " + title) }

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeFactory) {
	t.Helper()
	f := &fakeFactory{}
	o := New(context.Background(), session.NewRegistry(), f.build)
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })
	return o, f
}

func params(device string) session.OpenParams {
	return session.OpenParams{DeviceUID: device, DeviceName: device, Username: "root", Password: "pw-" + device}
}

func TestConnectMountsOnce(t *testing.T) {
	o, f := newTestOrchestrator(t)
	id := o.Connect(params("d1"))

	require.Len(t, f.all(), 1)
	m := f.all()[0]
	assert.Equal(t, id, m.id)
	assert.Equal(t, "pw-d1", m.password)
	started, _ := m.counts()
	assert.Equal(t, 1, started)
	assert.True(t, o.Mounted(id))

	term, ok := o.Terminal(id)
	require.True(t, ok)
	assert.Same(t, term, m.emu)

	_, ok = o.Registry().TakePassword(id)
	assert.False(t, ok, "password is handed out exactly once")
}

func TestWindowChangesNeverRemount(t *testing.T) {
	o, f := newTestOrchestrator(t)
	a := o.Connect(params("a"))
	b := o.Connect(params("b"))

	reg := o.Registry()
	reg.Minimize(a)
	reg.Restore(a)
	reg.ToggleFullscreen(b)
	reg.MinimizeAll()
	o.Reconcile()
	o.Reconcile()

	require.Len(t, f.all(), 2)
	for _, m := range f.all() {
		started, closed := m.counts()
		assert.Equal(t, 1, started, m.id)
		assert.Zero(t, closed, m.id)
	}
}

func TestCloseTearsDown(t *testing.T) {
	o, f := newTestOrchestrator(t)
	a := o.Connect(params("a"))
	b := o.Connect(params("b"))

	o.Close(a)
	o.Close(a)

	assert.False(t, o.Mounted(a))
	assert.True(t, o.Mounted(b))
	_, closed := f.all()[0].counts()
	assert.Equal(t, 1, closed)
	_, closed = f.all()[1].counts()
	assert.Zero(t, closed)
}

func TestRegistryCloseIsReconciled(t *testing.T) {
	o, f := newTestOrchestrator(t)
	id := o.Connect(params("a"))
	o.Registry().Close(id)
	assert.True(t, o.Mounted(id), "not reconciled yet")

	o.Reconcile()
	assert.False(t, o.Mounted(id))
	_, closed := f.all()[0].counts()
	assert.Equal(t, 1, closed)
}

func TestNavigateMinimizesOnRouteChange(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.Navigate("devices")
	id := o.Connect(params("a"))

	o.Navigate("devices")
	s, _ := o.Registry().Get(id)
	assert.Equal(t, session.Docked, s.Window, "same route is not a change")

	o.Navigate("history")
	s, _ = o.Registry().Get(id)
	assert.Equal(t, session.Minimized, s.Window)
	assert.True(t, o.Mounted(id), "navigation never unmounts")
}

func TestNavigationAwayScenario(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.Navigate("devices")
	a := o.Connect(params("a"))
	b := o.Connect(params("b"))
	o.Registry().ToggleFullscreen(b)

	o.Navigate("help")

	for _, s := range o.Registry().List() {
		assert.Equal(t, session.Minimized, s.Window, s.ID)
	}
	assert.True(t, o.Mounted(a))
	assert.True(t, o.Mounted(b))
}

func TestReconnectIsOneShot(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, ok := o.ConsumeReconnect()
	assert.False(t, ok)

	o.RequestReconnect("d1", "box1")
	req, ok := o.ConsumeReconnect()
	require.True(t, ok)
	assert.Equal(t, ReconnectRequest{DeviceUID: "d1", DeviceName: "box1"}, req)

	_, ok = o.ConsumeReconnect()
	assert.False(t, ok)
}

func TestRetryRequiresReconnectableFailure(t *testing.T) {
	o, f := newTestOrchestrator(t)
	id := o.Connect(params("d1"))
	rep := f.all()[0].rep

	assert.False(t, o.RequestRetry(id), "no failure yet")

	rep.ReportError(id, classify.NetworkError())
	assert.False(t, o.RequestRetry(id), "network errors are not retryable")

	rep.ReportError(id, classify.NegotiationFailed())
	require.True(t, o.RequestRetry(id))
	assert.False(t, o.RequestRetry("missing"))

	req, ok := o.ConsumeReconnect()
	require.True(t, ok)
	assert.Equal(t, id, req.Replaces)

	newID := o.Submit(req, "admin", "fresh")
	assert.NotEqual(t, id, newID)
	assert.False(t, o.Mounted(id), "retry closes the failed session")
	_, ok = o.Registry().Get(id)
	assert.False(t, ok)

	mounts := f.all()
	require.Len(t, mounts, 2)
	assert.Equal(t, "fresh", mounts[1].password)
	s, _ := o.Registry().Get(newID)
	assert.Equal(t, "admin", s.Username)
	assert.Equal(t, "d1", s.DeviceUID)
}

func TestReporterUpdatesRegistry(t *testing.T) {
	rec := &fakeRecorder{}
	f := &fakeFactory{}
	o := New(context.Background(), session.NewRegistry(), f.build, WithRecorder(rec))
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })

	id := o.Connect(params("d1"))
	rep := f.all()[0].rep
	rep.SetConnectionStatus(id, session.Connected)
	d := classify.SessionEnded()
	rep.ReportError(id, d)
	rep.SetConnectionStatus(id, session.Disconnected)
	rep.SetConnectionStatus(id, session.Connected)

	s, _ := o.Registry().Get(id)
	assert.Equal(t, session.Disconnected, s.Status)
	got, ok := o.Descriptor(id)
	require.True(t, ok)
	assert.Equal(t, d.Title, got.Title)

	assert.Equal(t, []string{"opened d1 root", "connected", "failed " + d.Title}, rec.events)
}

func TestLateReportsAfterCloseAreIgnored(t *testing.T) {
	o, f := newTestOrchestrator(t)
	id := o.Connect(params("d1"))
	rep := f.all()[0].rep
	o.Close(id)

	rep.ReportError(id, classify.NetworkError())
	rep.SetConnectionStatus(id, session.Disconnected)

	_, ok := o.Descriptor(id)
	assert.False(t, ok)
	_, ok = o.Registry().Get(id)
	assert.False(t, ok)
}

func TestEventsAreDelivered(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	id := o.Connect(params("d1"))
	o.Navigate("history")
	o.Close(id)

	var kinds []EventKind
	for len(o.Events()) > 0 {
		kinds = append(kinds, (<-o.Events()).Kind)
	}
	assert.Equal(t, []EventKind{EventMounted, EventNavigated, EventUnmounted}, kinds)
}

func TestShutdownClosesEverything(t *testing.T) {
	f := &fakeFactory{}
	o := New(context.Background(), session.NewRegistry(), f.build)
	o.Connect(params("a"))
	o.Connect(params("b"))

	require.NoError(t, o.Shutdown(context.Background()))
	for _, m := range f.all() {
		_, closed := m.counts()
		assert.Equal(t, 1, closed)
	}
}

func TestBrokerFactoryEndToEnd(t *testing.T) {
	srv := mockbroker.NewServer(config.MockConfig{Devices: []config.MockDevice{
		{UID: "d1", Name: "box1", Kind: config.KindEcho},
	}})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	factory := BrokerFactory(broker.NewHTTPClient(ts.URL, ""), classify.New(false), nil)
	o := New(context.Background(), session.NewRegistry(), factory)
	o.SetSize(90, 20)
	id := o.Connect(params("d1"))

	require.Eventually(t, func() bool {
		s, _ := o.Registry().Get(id)
		return s.Status == session.Connected
	}, 5*time.Second, 10*time.Millisecond)

	term, ok := o.Terminal(id)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return strings.Contains(term.Text(), "connected to box1 (90x20)")
	}, 5*time.Second, 10*time.Millisecond)

	term.Input([]byte("hi\r"))
	require.Eventually(t, func() bool {
		return strings.Contains(term.Text(), "hi")
	}, 5*time.Second, 10*time.Millisecond)

	o.Close(id)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))
	require.Eventually(t, func() bool { return srv.Active("d1") == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, term.Disposed())
}
