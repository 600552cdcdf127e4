package ttyterm

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshdock/sshdock/internal/classify"
)

func newPiped(t *testing.T) (*Terminal, *io.PipeWriter, *bytes.Buffer) {
	t.Helper()
	r, w := io.Pipe()
	out := &bytes.Buffer{}
	term := newTerminal(r, out, 80, 24)
	go term.readLoop()
	t.Cleanup(func() { w.Close() })
	return term, w, out
}

func TestInputReachesSink(t *testing.T) {
	term, w, _ := newPiped(t)
	got := make(chan string, 4)
	term.OnData(func(p []byte) { got <- string(p) })

	_, err := w.Write([]byte("ls\r"))
	require.NoError(t, err)
	select {
	case s := <-got:
		assert.Equal(t, "ls\r", s)
	case <-time.After(time.Second):
		t.Fatal("input not delivered")
	}
}

func TestInputDroppedWhenNotInteractive(t *testing.T) {
	term := newTerminal(bytes.NewReader(nil), io.Discard, 80, 24)
	var got []string
	term.OnData(func(p []byte) { got = append(got, string(p)) })

	term.SetInteractive(false)
	term.deliver([]byte("x"))
	term.SetInteractive(true)
	term.deliver([]byte("y"))
	term.OnData(nil)
	term.deliver([]byte("z"))

	assert.Equal(t, []string{"y"}, got)
}

func TestDetachKey(t *testing.T) {
	term, w, _ := newPiped(t)
	got := make(chan string, 4)
	term.OnData(func(p []byte) { got <- string(p) })

	_, err := w.Write([]byte{'a', DetachKey, 'b'})
	require.NoError(t, err)

	select {
	case <-term.Detached():
	case <-time.After(time.Second):
		t.Fatal("detach key ignored")
	}
	assert.Equal(t, "a", <-got)
	assert.Empty(t, got, "bytes after the detach key must not be sent")
}

func TestWriteAndDispose(t *testing.T) {
	term, _, out := newPiped(t)

	_, err := term.Write([]byte("\x1b[1mhi\x1b[0m"))
	require.NoError(t, err)
	assert.Equal(t, "\x1b[1mhi\x1b[0m", out.String())

	term.Dispose()
	_, err = term.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrDisposed)
	term.SetInteractive(true)
	assert.False(t, term.interactive, "a disposed terminal stays inert")
}

func TestResizeObservers(t *testing.T) {
	term := newTerminal(bytes.NewReader(nil), io.Discard, 80, 24)
	var calls [][2]int
	stop := term.OnResize(func(c, r int) { calls = append(calls, [2]int{c, r}) })

	term.resize(80, 24)
	term.resize(120, 40)
	stop()
	term.resize(100, 30)

	assert.Equal(t, [][2]int{{120, 40}}, calls)
	cols, rows := term.Size()
	assert.Equal(t, 100, cols)
	assert.Equal(t, 30, rows)
}

func TestBanner(t *testing.T) {
	term := newTerminal(bytes.NewReader(nil), io.Discard, 80, 24)
	_, ok := term.Banner()
	assert.False(t, ok)

	term.ShowBanner(classify.NetworkError())
	d, ok := term.Banner()
	require.True(t, ok)
	assert.Equal(t, classify.NetworkError().Title, d.Title)
}

func TestRestoreWithoutTTY(t *testing.T) {
	term := newTerminal(bytes.NewReader(nil), io.Discard, 80, 24)
	assert.NoError(t, term.Restore())
	term.refresh()
}
