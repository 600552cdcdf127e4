// Package broker drives terminal sessions against the SSH broker: the
// credential exchange over HTTP, the terminal socket and the control-frame
// traffic between that socket and a local terminal emulator.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/sshdock/sshdock/internal/classify"
	"github.com/sshdock/sshdock/internal/logging"
	"github.com/sshdock/sshdock/internal/session"
	"github.com/sshdock/sshdock/internal/wire"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	sendQueue    = 64
)

// ErrNotConnected is returned by Send when the socket is not open.
var ErrNotConnected = errors.New("not connected")

// Target names the device and account of one session.
type Target struct {
	DeviceUID  string
	DeviceName string
	Username   string
}

// Options configure a Client. Negotiator, Emulator and Reporter are
// required.
type Options struct {
	ID         string
	Target     Target
	Password   string
	Negotiator Negotiator
	Emulator   Emulator
	Reporter   Reporter
	Classifier classify.Classifier
	Dialer     *websocket.Dialer
	Logger     *log.Logger
}

// Client owns one session's connection. It is started once and closed once;
// it never reconnects.
type Client struct {
	id         string
	target     Target
	negotiator Negotiator
	emu        Emulator
	classifier classify.Classifier
	dialer     *websocket.Dialer
	log        *log.Logger

	mu         sync.Mutex
	state      State
	password   string
	reporter   Reporter
	conn       *websocket.Conn
	stopResize func()
	descriptor *classify.Descriptor
	cancel     context.CancelFunc
	stopPumps  context.CancelFunc

	writeMu   sync.Mutex
	send      chan []byte
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Client in the Negotiating state. Nothing happens until
// Start.
func New(opts Options) *Client {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Logger
	}
	return &Client{
		id:         opts.ID,
		target:     opts.Target,
		negotiator: opts.Negotiator,
		emu:        opts.Emulator,
		classifier: opts.Classifier,
		dialer:     dialer,
		log:        logger.With("session", opts.ID, "device", opts.Target.DeviceUID),
		state:      Negotiating,
		password:   opts.Password,
		reporter:   opts.Reporter,
		send:       make(chan []byte, sendQueue),
		done:       make(chan struct{}),
	}
}

// ID returns the session id the client reports under.
func (c *Client) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Descriptor returns the failure shown by a disconnected client.
func (c *Client) Descriptor() (classify.Descriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.descriptor == nil {
		return classify.Descriptor{}, false
	}
	return *c.descriptor, true
}

// Done is closed when the client's goroutines have exited.
func (c *Client) Done() <-chan struct{} { return c.done }

// Start runs the connection in the background until the socket ends or
// Close is called. Calling Start more than once has no effect.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		c.mu.Lock()
		if c.state == Closed {
			c.mu.Unlock()
			cancel()
			close(c.done)
			return
		}
		c.cancel = cancel
		c.mu.Unlock()
		go func() {
			defer close(c.done)
			c.run(ctx)
		}()
	})
}

// Close tears the client down: handlers are detached, then the socket is
// closed, then the emulator is disposed, then resize observation stops. Late
// callbacks become no-ops. Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		prev := c.state
		c.state = Closed
		c.reporter = nil
		c.password = ""
		conn := c.conn
		c.conn = nil
		stop := c.stopResize
		c.stopResize = nil
		cancel := c.cancel
		c.mu.Unlock()

		c.emu.OnData(nil)
		if cancel != nil {
			cancel()
		}
		if conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			conn.Close()
		}
		c.emu.Dispose()
		if stop != nil {
			stop()
		}
		c.startOnce.Do(func() { close(c.done) })
		c.log.Debug("client closed", "from", prev)
	})
}

// Send queues a raw control frame. It is used for frames that do not come
// from the emulator.
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return ErrNotConnected
	}
	return c.enqueue(frame)
}

func (c *Client) run(ctx context.Context) {
	c.mu.Lock()
	password := c.password
	c.mu.Unlock()

	c.log.Debug("negotiating token", "user", c.target.Username)
	token, err := c.negotiator.NegotiateToken(ctx, c.target.DeviceUID, c.target.Username, password)
	c.forgetPassword()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.fail(classify.NegotiationFailed(), err)
		return
	}

	cols, rows, ok := c.beginOpening()
	if !ok {
		return
	}

	addr, err := c.negotiator.SocketURL(token, cols, rows)
	if err != nil {
		c.fail(classify.NetworkError(), err)
		return
	}
	c.log.Debug("dialing", "cols", cols, "rows", rows)
	conn, _, err := c.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.fail(classify.NetworkError(), fmt.Errorf("dial: %w", err))
		return
	}
	pumpCtx, stopPumps := context.WithCancel(ctx)
	defer stopPumps()
	if !c.markConnected(conn, stopPumps) {
		conn.Close()
		return
	}

	g, gctx := errgroup.WithContext(pumpCtx)
	g.Go(func() error { return c.readPump(conn) })
	g.Go(func() error { return c.writePump(gctx, conn) })
	g.Go(func() error { return c.pingLoop(gctx, conn) })
	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})
	if err := g.Wait(); err != nil {
		c.log.Debug("pumps stopped", "err", err)
	}
}

func (c *Client) forgetPassword() {
	c.mu.Lock()
	c.password = ""
	c.mu.Unlock()
}

// beginOpening moves Negotiating to Opening and attaches the emulator's
// input and resize observation. It returns the emulator size to dial with.
func (c *Client) beginOpening() (cols, rows int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CanMove(Opening) {
		return 0, 0, false
	}
	c.state = Opening
	c.emu.OnData(c.onInput)
	c.stopResize = c.emu.OnResize(c.onResize)
	cols, rows = c.emu.Size()
	return cols, rows, true
}

// markConnected moves Opening to Connected and reports it. stopPumps ends
// the socket's pumps when the connection later fails.
func (c *Client) markConnected(conn *websocket.Conn, stopPumps context.CancelFunc) bool {
	c.mu.Lock()
	if !c.state.CanMove(Connected) {
		c.mu.Unlock()
		return false
	}
	c.state = Connected
	c.conn = conn
	c.stopPumps = stopPumps
	c.emu.SetInteractive(true)
	rep := c.reporter
	c.mu.Unlock()

	c.log.Info("connected")
	if rep != nil {
		rep.SetConnectionStatus(c.id, session.Connected)
	}
	return true
}

// fail moves to Disconnected, shows d on the emulator and reports it. A
// connected socket is shut down; the emulator keeps the banner until Close.
// It is a no-op once the client is already disconnected or closed.
func (c *Client) fail(d classify.Descriptor, cause error) {
	c.mu.Lock()
	if !c.state.CanMove(Disconnected) {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = Disconnected
	c.descriptor = &d
	c.emu.SetInteractive(false)
	c.emu.ShowBanner(d)
	rep := c.reporter
	stop := c.stopPumps
	c.stopPumps = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.log.Warn("disconnected", "from", from, "title", d.Title, "err", cause)
	if rep != nil {
		rep.ReportError(c.id, d)
		rep.SetConnectionStatus(c.id, session.Disconnected)
	}
}

// readPump is the only reader, so inbound order is the order bytes reach the
// emulator.
func (c *Client) readPump(conn *websocket.Conn) error {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.fail(classify.SessionEnded(), err)
			} else {
				c.fail(classify.NetworkError(), err)
			}
			return fmt.Errorf("read: %w", err)
		}
		c.deliver(data)
	}
}

func (c *Client) deliver(data []byte) {
	if f, ok := wire.Parse(data); ok && f.Kind == wire.KindError {
		raw, err := f.Text()
		if err != nil {
			c.log.Debug("undecodable error frame", "err", err)
		}
		c.fail(c.classifier.Classify(raw, c.target.DeviceUID), errors.New(raw))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return
	}
	if _, err := c.emu.Write(data); err != nil {
		c.log.Debug("emulator write", "err", err)
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-c.send:
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.TextMessage, msg)
			c.writeMu.Unlock()
			if err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// onInput wraps emulator input in an INPUT frame. Input beyond the frame
// ceiling is dropped.
func (c *Client) onInput(p []byte) {
	if len(p) == 0 {
		return
	}
	frame, err := wire.EncodeInput(p)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return
	}
	if err := c.enqueue(frame); err != nil {
		c.log.Debug("input dropped", "bytes", len(p), "err", err)
	}
}

// onResize sends RESIZE only while connected. Sizes observed earlier are not
// replayed: the dial URL carried the size at open time.
func (c *Client) onResize(cols, rows int) {
	frame, err := wire.EncodeResize(cols, rows)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return
	}
	if err := c.enqueue(frame); err != nil {
		c.log.Debug("resize dropped", "cols", cols, "rows", rows, "err", err)
	}
}

var errQueueFull = errors.New("send queue full")

// enqueue never blocks. Callers hold c.mu.
func (c *Client) enqueue(frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	default:
		return errQueueFull
	}
}
