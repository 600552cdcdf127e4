package mockbroker

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"

	"github.com/sshdock/sshdock/internal/wire"
)

// localBackend runs a shell on this machine behind a pty.
type localBackend struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

func newLocal(shell string, size wire.Size) (*localBackend, error) {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	ptmx, err := pty.StartWithSize(cmd, winsize(size.Cols, size.Rows))
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", shell, err)
	}
	return &localBackend{cmd: cmd, ptmx: ptmx}, nil
}

func winsize(cols, rows int) *pty.Winsize {
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	return &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}
}

func (l *localBackend) Read(p []byte) (int, error)  { return l.ptmx.Read(p) }
func (l *localBackend) Write(p []byte) (int, error) { return l.ptmx.Write(p) }

func (l *localBackend) Resize(cols, rows int) error {
	return pty.Setsize(l.ptmx, winsize(cols, rows))
}

func (l *localBackend) Close() error {
	if l.cmd.Process != nil {
		_ = l.cmd.Process.Kill()
	}
	err := l.ptmx.Close()
	_ = l.cmd.Wait()
	return err
}
