// Package orchestrator keeps the set of running protocol clients equal to
// the set of sessions in the registry and turns navigation and reconnect
// requests into registry transitions.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sshdock/sshdock/internal/broker"
	"github.com/sshdock/sshdock/internal/classify"
	"github.com/sshdock/sshdock/internal/logging"
	"github.com/sshdock/sshdock/internal/session"
	"github.com/sshdock/sshdock/internal/vterm"
)

const (
	defaultCols = 80
	defaultRows = 24
	eventBuffer = 256
)

// Mount is a running protocol client. *broker.Client implements it.
type Mount interface {
	Start(ctx context.Context)
	Close()
	Done() <-chan struct{}
}

// Factory builds the client for one session. The password has already been
// taken from the registry.
type Factory func(id string, target broker.Target, password string, emu broker.Emulator, rep broker.Reporter) Mount

// BrokerFactory returns a Factory that builds broker clients.
func BrokerFactory(neg broker.Negotiator, classifier classify.Classifier, logger *log.Logger) Factory {
	return func(id string, target broker.Target, password string, emu broker.Emulator, rep broker.Reporter) Mount {
		return broker.New(broker.Options{
			ID:         id,
			Target:     target,
			Password:   password,
			Negotiator: neg,
			Emulator:   emu,
			Reporter:   rep,
			Classifier: classifier,
			Logger:     logger,
		})
	}
}

// Recorder keeps the connection history. Calls arrive from client
// goroutines as well as the caller's.
type Recorder interface {
	Opened(id string, target broker.Target, at time.Time) error
	Connected(id string) error
	Failed(id string, title string) error
}

// ReconnectRequest asks the UI for fresh credentials for a device. Replaces
// names the failed session the new one supersedes, if any.
type ReconnectRequest struct {
	DeviceUID  string
	DeviceName string
	Replaces   string
}

type mount struct {
	client Mount
	term   *vterm.Terminal
}

// Orchestrator owns the mounted clients. Its methods are meant to be called
// from the UI loop; the reporter it hands to clients is safe from any
// goroutine and never blocks.
type Orchestrator struct {
	reg      *session.Registry
	factory  Factory
	recorder Recorder
	log      *log.Logger
	events   chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	mounts      map[string]*mount
	descriptors map[string]classify.Descriptor
	reconnect   *ReconnectRequest
	route       string
	cols, rows  int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder stores connection history.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger replaces the shared logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func New(ctx context.Context, reg *session.Registry, factory Factory, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(ctx)
	o := &Orchestrator{
		reg:         reg,
		factory:     factory,
		log:         logging.Logger,
		events:      make(chan Event, eventBuffer),
		ctx:         ctx,
		cancel:      cancel,
		mounts:      make(map[string]*mount),
		descriptors: make(map[string]classify.Descriptor),
		cols:        defaultCols,
		rows:        defaultRows,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.WithPrefix("orchestrator")
	return o
}

// Registry returns the registry the orchestrator reconciles against.
func (o *Orchestrator) Registry() *session.Registry { return o.reg }

// Events delivers lifecycle events. Events are dropped when nobody reads.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// SetSize sets the grid new terminals start with.
func (o *Orchestrator) SetSize(cols, rows int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cols, o.rows = cols, rows
}

// Connect opens a session and mounts its client.
func (o *Orchestrator) Connect(p session.OpenParams) string {
	id := o.reg.Open(p)
	o.log.Info("connect", "session", id, "device", p.DeviceUID, "user", p.Username)
	o.Reconcile()
	return id
}

// Close removes a session and tears its client down.
func (o *Orchestrator) Close(id string) {
	o.reg.Close(id)
	o.Reconcile()
}

// Reconcile mounts a client for every registry entry that has none and
// tears down clients whose entry is gone. Window-state changes never
// remount.
func (o *Orchestrator) Reconcile() {
	sessions := o.reg.List()
	live := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		live[s.ID] = true
	}

	o.mu.Lock()
	stale := make(map[string]*mount)
	for id, m := range o.mounts {
		if !live[id] {
			stale[id] = m
			delete(o.mounts, id)
			delete(o.descriptors, id)
		}
	}
	var fresh []session.Session
	for _, s := range sessions {
		if _, ok := o.mounts[s.ID]; !ok {
			fresh = append(fresh, s)
		}
	}
	cols, rows := o.cols, o.rows
	o.mu.Unlock()

	for id, m := range stale {
		m.client.Close()
		o.log.Debug("unmounted", "session", id)
		o.emit(Event{Kind: EventUnmounted, SessionID: id})
	}
	for _, s := range fresh {
		o.mount(s, cols, rows)
	}
}

func (o *Orchestrator) mount(s session.Session, cols, rows int) {
	password, _ := o.reg.TakePassword(s.ID)
	target := broker.Target{DeviceUID: s.DeviceUID, DeviceName: s.DeviceName, Username: s.Username}
	term := vterm.New(cols, rows)
	client := o.factory(s.ID, target, password, term, reporter{o})

	o.mu.Lock()
	o.mounts[s.ID] = &mount{client: client, term: term}
	o.mu.Unlock()

	if o.recorder != nil {
		if err := o.recorder.Opened(s.ID, target, time.Now()); err != nil {
			o.log.Warn("history", "session", s.ID, "err", err)
		}
	}
	client.Start(o.ctx)
	o.emit(Event{Kind: EventMounted, SessionID: s.ID})
}

// Mounted reports whether id has a running client.
func (o *Orchestrator) Mounted(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.mounts[id]
	return ok
}

// Terminal returns the emulator of a mounted session.
func (o *Orchestrator) Terminal(id string) (*vterm.Terminal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.mounts[id]
	if !ok {
		return nil, false
	}
	return m.term, true
}

// Descriptor returns the failure reported for id.
func (o *Orchestrator) Descriptor(id string) (classify.Descriptor, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.descriptors[id]
	return d, ok
}

// Navigate records a route change. Moving to a different route minimizes
// every session once.
func (o *Orchestrator) Navigate(route string) {
	o.mu.Lock()
	changed := route != o.route
	o.route = route
	o.mu.Unlock()
	if !changed {
		return
	}
	o.reg.MinimizeAll()
	o.log.Debug("navigate", "route", route)
	o.emit(Event{Kind: EventNavigated, Route: route})
}

// RequestReconnect signals that the user wants a new session on a device.
// The signal is consumed at most once; a newer request replaces one that
// was never consumed.
func (o *Orchestrator) RequestReconnect(deviceUID, deviceName string) {
	o.setReconnect(ReconnectRequest{DeviceUID: deviceUID, DeviceName: deviceName})
}

// RequestRetry requests a reconnect that replaces the failed session id. It
// is refused unless the session's failure allows reconnecting.
func (o *Orchestrator) RequestRetry(id string) bool {
	s, ok := o.reg.Get(id)
	if !ok {
		return false
	}
	if d, failed := o.Descriptor(id); !failed || !d.Reconnect {
		return false
	}
	o.setReconnect(ReconnectRequest{DeviceUID: s.DeviceUID, DeviceName: s.DeviceName, Replaces: id})
	return true
}

func (o *Orchestrator) setReconnect(req ReconnectRequest) {
	o.mu.Lock()
	o.reconnect = &req
	o.mu.Unlock()
	o.log.Debug("reconnect requested", "device", req.DeviceUID, "replaces", req.Replaces)
}

// ConsumeReconnect returns the pending request once.
func (o *Orchestrator) ConsumeReconnect() (ReconnectRequest, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.reconnect == nil {
		return ReconnectRequest{}, false
	}
	req := *o.reconnect
	o.reconnect = nil
	return req, true
}

// Submit opens the session a reconnect request asked for, closing the
// session it replaces.
func (o *Orchestrator) Submit(req ReconnectRequest, username, password string) string {
	if req.Replaces != "" {
		o.reg.Close(req.Replaces)
	}
	return o.Connect(session.OpenParams{
		DeviceUID:  req.DeviceUID,
		DeviceName: req.DeviceName,
		Username:   username,
		Password:   password,
	})
}

// Shutdown closes every client and waits for them to exit or ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	mounts := make([]*mount, 0, len(o.mounts))
	for id, m := range o.mounts {
		mounts = append(mounts, m)
		delete(o.mounts, id)
	}
	o.mu.Unlock()

	for _, m := range mounts {
		m.client.Close()
	}
	o.cancel()
	for _, m := range mounts {
		select {
		case <-m.client.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (o *Orchestrator) emit(e Event) {
	select {
	case o.events <- e:
	default:
	}
}

// reporter is what clients report into. It only takes short locks.
type reporter struct{ o *Orchestrator }

func (r reporter) SetConnectionStatus(id string, status session.ConnectionStatus) {
	r.o.reg.SetConnectionStatus(id, status)
	if s, ok := r.o.reg.Get(id); !ok || s.Status != status {
		return
	}
	if status == session.Connected && r.o.recorder != nil {
		if err := r.o.recorder.Connected(id); err != nil {
			r.o.log.Warn("history", "session", id, "err", err)
		}
	}
	r.o.emit(Event{Kind: EventStatus, SessionID: id, Status: status})
}

func (r reporter) ReportError(id string, d classify.Descriptor) {
	r.o.mu.Lock()
	_, live := r.o.mounts[id]
	if live {
		r.o.descriptors[id] = d
	}
	r.o.mu.Unlock()
	if !live {
		return
	}
	if r.o.recorder != nil {
		if err := r.o.recorder.Failed(id, d.Title); err != nil {
			r.o.log.Warn("history", "session", id, "err", err)
		}
	}
	r.o.emit(Event{Kind: EventError, SessionID: id, Descriptor: d})
}
