package mockbroker

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	cryptossh "golang.org/x/crypto/ssh"

	"github.com/sshdock/sshdock/internal/config"
	"github.com/sshdock/sshdock/internal/wire"
)

const sshDialTimeout = 10 * time.Second

// sshBackend relays to a real SSH server with the credentials the operator
// typed. Nothing is stored beyond the session.
type sshBackend struct {
	client  *cryptossh.Client
	session *cryptossh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	mu sync.Mutex
}

func dialSSH(ctx context.Context, dev config.MockDevice, creds Credentials, size wire.Size) (*sshBackend, error) {
	port := dev.Port
	if port == 0 {
		port = 22
	}
	user := creds.Username
	if user == "" {
		user = dev.Username
	}
	clientCfg := &cryptossh.ClientConfig{
		User:            user,
		Auth:            []cryptossh.AuthMethod{cryptossh.Password(creds.Password)},
		HostKeyCallback: cryptossh.InsecureIgnoreHostKey(), //nolint:gosec // development broker only
		Timeout:         sshDialTimeout,
	}
	addr := net.JoinHostPort(dev.Host, strconv.Itoa(port))

	type dialResult struct {
		client *cryptossh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		cl, err := cryptossh.Dial("tcp", addr, clientCfg)
		ch <- dialResult{cl, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			if strings.Contains(r.err.Error(), "unable to authenticate") {
				return nil, fmt.Errorf("ssh %s: %w", addr, errAuth)
			}
			return nil, fmt.Errorf("ssh: dial %s: %w", addr, r.err)
		}
		return newSSHBackend(r.client, size)
	}
}

func newSSHBackend(client *cryptossh.Client, size wire.Size) (*sshBackend, error) {
	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ssh: new session: %w", err)
	}

	modes := cryptossh.TerminalModes{
		cryptossh.ECHO:          1,
		cryptossh.TTY_OP_ISPEED: 14400,
		cryptossh.TTY_OP_OSPEED: 14400,
	}
	ws := winsize(size.Cols, size.Rows)
	if err := sess.RequestPty("xterm-256color", int(ws.Rows), int(ws.Cols), modes); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("ssh: request pty: %w", errPty)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("ssh: stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("ssh: stdout pipe: %w", err)
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("ssh: start login shell: %w", err)
	}

	return &sshBackend{client: client, session: sess, stdin: stdin, stdout: stdout}, nil
}

func (s *sshBackend) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdin.Write(p)
}

func (s *sshBackend) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *sshBackend) Resize(cols, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := winsize(cols, rows)
	return s.session.WindowChange(int(ws.Rows), int(ws.Cols))
}

func (s *sshBackend) Close() error {
	_ = s.stdin.Close()
	_ = s.session.Close()
	return s.client.Close()
}
