// Package vterm is the terminal emulator that sessions render through. Escape
// handling and the character grid come from vt10x; this package adds the
// input sink, resize observation, the disconnected banner and rendering into
// a string for the TUI.
package vterm

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/hinshun/vt10x"

	"github.com/sshdock/sshdock/internal/classify"
)

// ErrDisposed is returned by Write after Dispose.
var ErrDisposed = errors.New("terminal disposed")

const (
	minCols = 10
	minRows = 2
)

// Glyph.Mode bits as laid out by vt10x.
const (
	modeReverse = 1 << iota
	modeUnderline
	modeBold
	_ // line drawing charset
	modeItalic
	modeBlink
)

// Terminal wraps one vt10x screen. All vt10x access happens under mu.
type Terminal struct {
	mu          sync.Mutex
	vt          vt10x.Terminal
	cols, rows  int
	interactive bool
	banner      *classify.Descriptor
	disposed    bool
	dirty       bool

	onData    func([]byte)
	observers map[int]func(cols, rows int)
	nextObs   int
	replies   []byte

	// Replies leave in write order through one goroutine, started on the
	// first reply.
	outbox [][]byte
	wake   chan struct{}
	quit   chan struct{}
}

// New returns an interactive terminal of the given size.
func New(cols, rows int) *Terminal {
	cols, rows = clamp(cols, rows)
	t := &Terminal{
		cols:        cols,
		rows:        rows,
		interactive: true,
		dirty:       true,
		observers:   make(map[int]func(int, int)),
		quit:        make(chan struct{}),
	}
	t.vt = vt10x.New(vt10x.WithSize(cols, rows), vt10x.WithWriter(replyWriter{t}))
	return t
}

// replyWriter collects answers to device queries (cursor position, device
// attributes). It runs inside vt.Write, so t.mu is already held.
type replyWriter struct{ t *Terminal }

func (w replyWriter) Write(p []byte) (int, error) {
	w.t.replies = append(w.t.replies, p...)
	return len(p), nil
}

func clamp(cols, rows int) (int, int) {
	return max(cols, minCols), max(rows, minRows)
}

// Write feeds terminal output.
func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return 0, ErrDisposed
	}
	n, err := t.vt.Write(p)
	t.dirty = true
	if len(t.replies) > 0 && t.onData != nil {
		t.queueReply(t.replies)
	}
	t.replies = nil
	t.mu.Unlock()
	return n, err
}

// queueReply hands p to the reply goroutine. Replies cannot go to the sink
// from Write itself: Write is called with the client's lock held and the
// sink takes it again. Callers hold t.mu.
func (t *Terminal) queueReply(p []byte) {
	t.outbox = append(t.outbox, p)
	if t.wake == nil {
		t.wake = make(chan struct{}, 1)
		go t.sendReplies()
	}
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Terminal) sendReplies() {
	for {
		select {
		case <-t.quit:
			return
		case <-t.wake:
		}
		for {
			t.mu.Lock()
			if len(t.outbox) == 0 || t.disposed {
				t.outbox = nil
				t.mu.Unlock()
				break
			}
			p := t.outbox[0]
			t.outbox = t.outbox[1:]
			sink := t.onData
			t.mu.Unlock()
			if sink != nil {
				sink(p)
			}
		}
	}
}

// Size returns the grid in columns and rows.
func (t *Terminal) Size() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cols, t.rows
}

// SetInteractive toggles input and the cursor.
func (t *Terminal) SetInteractive(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interactive = on
	t.dirty = true
}

// Interactive reports whether input is accepted.
func (t *Terminal) Interactive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interactive
}

// ShowBanner records the failure to draw over the dimmed screen.
func (t *Terminal) ShowBanner(d classify.Descriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.banner = &d
	t.dirty = true
}

// Banner returns the failure shown, if any.
func (t *Terminal) Banner() (classify.Descriptor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.banner == nil {
		return classify.Descriptor{}, false
	}
	return *t.banner, true
}

// OnData sets the input sink. nil detaches it.
func (t *Terminal) OnData(fn func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onData = fn
}

// OnResize adds a size observer.
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

// Dispose drops the screen. Later writes fail and input is ignored.
func (t *Terminal) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	t.disposed = true
	t.onData = nil
	t.interactive = false
	t.outbox = nil
	close(t.quit)
}

// Disposed reports whether Dispose was called.
func (t *Terminal) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// Input forwards keystrokes to the sink. It reports whether they were
// accepted.
func (t *Terminal) Input(p []byte) bool {
	t.mu.Lock()
	sink := t.onData
	ok := t.interactive && !t.disposed && sink != nil
	t.mu.Unlock()
	if !ok || len(p) == 0 {
		return false
	}
	sink(p)
	return true
}

// Fit resizes the grid to the given cell area and notifies observers when
// the size changed. Observers run without the terminal lock.
func (t *Terminal) Fit(cols, rows int) {
	cols, rows = clamp(cols, rows)
	t.mu.Lock()
	if t.disposed || (cols == t.cols && rows == t.rows) {
		t.mu.Unlock()
		return
	}
	t.cols, t.rows = cols, rows
	t.vt.Resize(cols, rows)
	t.dirty = true
	obs := make([]func(int, int), 0, len(t.observers))
	for _, fn := range t.observers {
		obs = append(obs, fn)
	}
	t.mu.Unlock()

	for _, fn := range obs {
		fn(cols, rows)
	}
}

// TakeDirty reports whether the screen changed since the last call.
func (t *Terminal) TakeDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.dirty
	t.dirty = false
	return d
}

// Title returns the window title set by the remote program.
func (t *Terminal) Title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.vt.Title()
}

// Text returns the screen without styling, one line per row, trailing
// blanks trimmed.
func (t *Terminal) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := make([]string, t.rows)
	for y := 0; y < t.rows; y++ {
		var b strings.Builder
		for x := 0; x < t.cols; x++ {
			c := t.vt.Cell(x, y).Char
			if c == 0 {
				c = ' '
			}
			b.WriteRune(c)
		}
		lines[y] = strings.TrimRight(b.String(), " ")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// View renders the screen with SGR styling. A disconnected screen is drawn
// faint; the cursor is drawn only when focused and interactive.
func (t *Terminal) View(focused bool) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	faint := !t.interactive
	cur := t.vt.Cursor()
	showCursor := focused && t.interactive && t.vt.CursorVisible()

	var out strings.Builder
	for y := 0; y < t.rows; y++ {
		var last style
		first := true
		for x := 0; x < t.cols; x++ {
			g := t.vt.Cell(x, y)
			st := styleOf(g, faint)
			if showCursor && x == cur.X && y == cur.Y {
				st.reverse = !st.reverse
			}
			if first || st != last {
				out.WriteString(st.sgr())
				last, first = st, false
			}
			c := g.Char
			if c == 0 {
				c = ' '
			}
			out.WriteRune(c)
		}
		out.WriteString(ansi.ResetStyle)
		if y < t.rows-1 {
			out.WriteByte('\n')
		}
	}
	return out.String()
}

type style struct {
	fg, bg    vt10x.Color
	bold      bool
	underline bool
	italic    bool
	blink     bool
	reverse   bool
	faint     bool
}

func styleOf(g vt10x.Glyph, faint bool) style {
	return style{
		fg:        g.FG,
		bg:        g.BG,
		bold:      g.Mode&modeBold != 0,
		underline: g.Mode&modeUnderline != 0,
		italic:    g.Mode&modeItalic != 0,
		blink:     g.Mode&modeBlink != 0,
		reverse:   g.Mode&modeReverse != 0,
		faint:     faint,
	}
}

// sgr always starts from a reset so runs never inherit attributes.
func (s style) sgr() string {
	params := []string{"0"}
	if s.bold {
		params = append(params, "1")
	}
	if s.faint {
		params = append(params, "2")
	}
	if s.italic {
		params = append(params, "3")
	}
	if s.underline {
		params = append(params, "4")
	}
	if s.blink {
		params = append(params, "5")
	}
	if s.reverse {
		params = append(params, "7")
	}
	params = append(params, colorParams(s.fg, 38)...)
	params = append(params, colorParams(s.bg, 48)...)
	return "\x1b[" + strings.Join(params, ";") + "m"
}

func colorParams(c vt10x.Color, base int) []string {
	switch {
	case c == vt10x.DefaultFG || c == vt10x.DefaultBG || c == vt10x.DefaultCursor:
		return nil
	case c < 256:
		return []string{fmt.Sprint(base), "5", fmt.Sprint(uint32(c))}
	case c < 1<<24:
		r, g, b := uint32(c)>>16&0xff, uint32(c)>>8&0xff, uint32(c)&0xff
		return []string{fmt.Sprint(base), "2", fmt.Sprint(r), fmt.Sprint(g), fmt.Sprint(b)}
	}
	return nil
}
