package broker

import (
	"context"

	"github.com/sshdock/sshdock/internal/classify"
	"github.com/sshdock/sshdock/internal/session"
)

// Emulator is the terminal a Client feeds and drains. The screen model and
// escape handling belong to the implementation.
type Emulator interface {
	// Write appends terminal output.
	Write(p []byte) (int, error)
	// Size is the current grid in columns and rows.
	Size() (cols, rows int)
	// SetInteractive enables or disables input, focus and cursor blink.
	SetInteractive(on bool)
	// ShowBanner dims the screen and overlays a failure description.
	ShowBanner(d classify.Descriptor)
	// OnData registers the sink for user input. nil detaches it.
	OnData(fn func(p []byte))
	// OnResize starts observing size changes and returns a function that
	// stops observing.
	OnResize(fn func(cols, rows int)) (stop func())
	// Dispose releases the emulator. No method is called afterwards.
	Dispose()
}

// Reporter receives a Client's lifecycle updates. Implementations must not
// call back into the Client.
type Reporter interface {
	SetConnectionStatus(id string, status session.ConnectionStatus)
	ReportError(id string, d classify.Descriptor)
}

// Negotiator performs the credential exchange and addresses the socket.
// HTTPClient is the production implementation.
type Negotiator interface {
	NegotiateToken(ctx context.Context, device, username, password string) (string, error)
	SocketURL(token string, cols, rows int) (string, error)
}
