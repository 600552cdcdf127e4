package mockbroker

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/sshdock/sshdock/internal/wire"
)

const echoPrompt = "$ "

// echoBackend is a tiny line discipline: it echoes keystrokes, answers each
// line with a prompt and hangs up on "exit".
type echoBackend struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu     sync.Mutex
	line   []byte
	closed bool
}

func newEcho(name string, size wire.Size) *echoBackend {
	r, w := io.Pipe()
	e := &echoBackend{r: r, w: w}
	go e.emit(fmt.Sprintf("connected to %s (%dx%d)\r\n%s", name, size.Cols, size.Rows, echoPrompt))
	return e
}

func (e *echoBackend) emit(s string) {
	_, _ = e.w.Write([]byte(s))
}

func (e *echoBackend) Read(p []byte) (int, error) {
	return e.r.Read(p)
}

func (e *echoBackend) Write(p []byte) (int, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	var out bytes.Buffer
	hangup := false
	for _, b := range p {
		switch b {
		case '\r', '\n':
			out.WriteString("\r\n")
			if string(bytes.TrimSpace(e.line)) == "exit" {
				hangup = true
			} else {
				out.WriteString(echoPrompt)
			}
			e.line = e.line[:0]
		case 0x7f, 0x08:
			if len(e.line) > 0 {
				e.line = e.line[:len(e.line)-1]
				out.WriteString("\b \b")
			}
		default:
			e.line = append(e.line, b)
			out.WriteByte(b)
		}
		if hangup {
			break
		}
	}
	e.mu.Unlock()

	if out.Len() > 0 {
		if _, err := e.w.Write(out.Bytes()); err != nil {
			return 0, err
		}
	}
	if hangup {
		e.Close()
	}
	return len(p), nil
}

func (e *echoBackend) Resize(cols, rows int) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return io.ErrClosedPipe
	}
	go e.emit(fmt.Sprintf("\r\n[resized to %dx%d]\r\n%s", cols, rows, echoPrompt))
	return nil
}

func (e *echoBackend) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.w.Close()
}
