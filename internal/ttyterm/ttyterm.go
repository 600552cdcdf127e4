// Package ttyterm runs one session on the process's own terminal. The local
// terminal does all screen handling, so output is copied through unchanged.
package ttyterm

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/sshdock/sshdock/internal/classify"
)

// DetachKey (ctrl+]) ends the session from the local side.
const DetachKey = 0x1d

var (
	ErrNotTerminal = errors.New("stdin is not a terminal")
	ErrDisposed    = errors.New("terminal disposed")
)

// Terminal adapts a raw-mode tty to the session client.
type Terminal struct {
	in  io.Reader
	out io.Writer

	fd      int
	restore *term.State

	mu          sync.Mutex
	cols, rows  int
	interactive bool
	disposed    bool
	sink        func([]byte)
	observers   map[int]func(cols, rows int)
	nextObs     int
	banner      *classify.Descriptor
	stopWinch   func()

	detached    chan struct{}
	detachOnce  sync.Once
	restoreOnce sync.Once
}

// Open puts in into raw mode and starts reading keystrokes from it. Call
// Restore before printing anything else.
func Open(in *os.File, out io.Writer) (*Terminal, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return nil, err
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	t := newTerminal(in, out, cols, rows)
	t.fd = fd
	t.restore = state
	t.stopWinch = notifyResize(t.refresh)
	go t.readLoop()
	return t, nil
}

func newTerminal(in io.Reader, out io.Writer, cols, rows int) *Terminal {
	return &Terminal{
		in:          in,
		out:         out,
		fd:          -1,
		cols:        cols,
		rows:        rows,
		interactive: true,
		observers:   make(map[int]func(int, int)),
		detached:    make(chan struct{}),
	}
}

func (t *Terminal) readLoop() {
	buf := make([]byte, 1024)
	for {
		n, err := t.in.Read(buf)
		if n > 0 {
			p := buf[:n]
			if i := bytes.IndexByte(p, DetachKey); i >= 0 {
				t.deliver(p[:i])
				t.detachOnce.Do(func() { close(t.detached) })
				return
			}
			t.deliver(p)
		}
		if err != nil {
			return
		}
	}
}

func (t *Terminal) deliver(p []byte) {
	if len(p) == 0 {
		return
	}
	t.mu.Lock()
	sink := t.sink
	ok := t.interactive && !t.disposed && sink != nil
	t.mu.Unlock()
	if ok {
		sink(append([]byte(nil), p...))
	}
}

// Detached is closed when the user presses DetachKey.
func (t *Terminal) Detached() <-chan struct{} { return t.detached }

// Write copies session output to the local terminal.
func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	disposed := t.disposed
	t.mu.Unlock()
	if disposed {
		return 0, ErrDisposed
	}
	return t.out.Write(p)
}

// Size is the local terminal size.
func (t *Terminal) Size() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cols, t.rows
}

func (t *Terminal) SetInteractive(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interactive = on && !t.disposed
}

// ShowBanner keeps d for the caller to print once the terminal is
// restored; writing it in raw mode would interleave with session output.
func (t *Terminal) ShowBanner(d classify.Descriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.banner = &d
}

// Banner returns the descriptor passed to ShowBanner.
func (t *Terminal) Banner() (classify.Descriptor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.banner == nil {
		return classify.Descriptor{}, false
	}
	return *t.banner, true
}

func (t *Terminal) OnData(fn func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = fn
}

func (t *Terminal) OnResize(fn func(cols, rows int)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.observers, id)
	}
}

// Dispose stops input and resize delivery. The tty stays raw until
// Restore.
func (t *Terminal) Dispose() {
	t.mu.Lock()
	t.disposed = true
	t.interactive = false
	t.sink = nil
	stop := t.stopWinch
	t.stopWinch = nil
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Restore returns the tty to the mode it had before Open.
func (t *Terminal) Restore() error {
	var err error
	t.restoreOnce.Do(func() {
		if t.restore != nil {
			err = term.Restore(t.fd, t.restore)
		}
	})
	return err
}

func (t *Terminal) refresh() {
	if t.fd < 0 {
		return
	}
	cols, rows, err := term.GetSize(t.fd)
	if err != nil {
		return
	}
	t.resize(cols, rows)
}

func (t *Terminal) resize(cols, rows int) {
	t.mu.Lock()
	if t.disposed || (cols == t.cols && rows == t.rows) {
		t.mu.Unlock()
		return
	}
	t.cols, t.rows = cols, rows
	obs := make([]func(int, int), 0, len(t.observers))
	for _, fn := range t.observers {
		obs = append(obs, fn)
	}
	t.mu.Unlock()

	for _, fn := range obs {
		fn(cols, rows)
	}
}
