// Package mockbroker is a development stand-in for the SSH broker. It
// negotiates one-time tokens, serves the device list and bridges terminal
// sockets to local backends: an echo line discipline, a local pty shell, a
// real SSH server or a canned backend error.
package mockbroker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sshdock/sshdock/internal/config"
	"github.com/sshdock/sshdock/internal/wire"
)

// Backend is the remote end of one terminal socket. Callers Write keystrokes
// and Read terminal output.
type Backend interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Resize(cols, rows int) error
	Close() error
}

// Credentials are the account details carried by a negotiated token.
type Credentials struct {
	Username string
	Password string
}

// Connector opens a Backend for a device.
type Connector func(ctx context.Context, dev config.MockDevice, creds Credentials, size wire.Size) (Backend, error)

var (
	// errAuth marks backend failures caused by bad credentials.
	errAuth = errors.New("authentication failed")
	errPty  = errors.New("pty request refused")
)

// Connect dispatches on the device kind. Devices of kind "error" never get a
// backend; the server answers them with their canned error.
func Connect(ctx context.Context, dev config.MockDevice, creds Credentials, size wire.Size) (Backend, error) {
	switch dev.Kind {
	case config.KindEcho:
		return newEcho(dev.Name, size), nil
	case config.KindLocal:
		b, err := newLocal(dev.Shell, size)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.KindSSH:
		b, err := dialSSH(ctx, dev, creds, size)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("device kind %q has no backend", dev.Kind)
	}
}
