// Package wire defines the control-frame envelope shared by the broker client
// and the mock broker. Raw terminal bytes travel without an envelope; control
// frames are JSON text messages.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies a control frame.
type Kind int

const (
	KindInput  Kind = 1
	KindResize Kind = 2
	// KindSignature is used by the broker for key-signature exchange during
	// authentication. It never reaches this layer and must not be reused.
	KindSignature Kind = 3
	KindError     Kind = 4
)

// MaxInputBytes is the per-frame ceiling for INPUT data. Longer input is
// truncated, not queued.
const MaxInputBytes = 4096

// Frame is a decoded control frame. Data holds the raw JSON value so callers
// can decode it according to Kind.
type Frame struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Size is the RESIZE payload.
type Size struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindResize:
		return "resize"
	case KindSignature:
		return "signature"
	case KindError:
		return "error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Encode marshals a control frame with the given payload.
func Encode(kind Kind, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", kind, err)
	}
	return json.Marshal(Frame{Kind: kind, Data: raw})
}

// EncodeInput wraps keystroke bytes in an INPUT frame, truncating to
// MaxInputBytes.
func EncodeInput(p []byte) ([]byte, error) {
	return Encode(KindInput, string(Truncate(p)))
}

// EncodeResize builds a RESIZE frame.
func EncodeResize(cols, rows int) ([]byte, error) {
	return Encode(KindResize, Size{Cols: cols, Rows: rows})
}

// EncodeError builds an ERROR frame carrying a raw backend error string.
func EncodeError(message string) ([]byte, error) {
	return Encode(KindError, message)
}

// Truncate caps p at MaxInputBytes.
func Truncate(p []byte) []byte {
	if len(p) > MaxInputBytes {
		return p[:MaxInputBytes]
	}
	return p
}

// Parse reports whether msg is a control frame. Anything that is not a JSON
// object with an integer kind and a string or object data field is raw
// terminal output, and ok is false.
func Parse(msg []byte) (Frame, bool) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Frame{}, false
	}

	var env struct {
		Kind json.RawMessage `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Frame{}, false
	}
	if len(env.Kind) == 0 || len(env.Data) == 0 {
		return Frame{}, false
	}
	if c := env.Kind[0]; c != '-' && (c < '0' || c > '9') {
		return Frame{}, false
	}
	var kind int
	if err := json.Unmarshal(env.Kind, &kind); err != nil {
		return Frame{}, false
	}
	switch env.Data[0] {
	case '"', '{':
	default:
		return Frame{}, false
	}
	return Frame{Kind: Kind(kind), Data: env.Data}, true
}

// Text decodes a string payload (INPUT, ERROR).
func (f Frame) Text() (string, error) {
	var s string
	if err := json.Unmarshal(f.Data, &s); err != nil {
		return "", fmt.Errorf("decode %s payload: %w", f.Kind, err)
	}
	return s, nil
}

// Size decodes a RESIZE payload.
func (f Frame) Size() (Size, error) {
	var s Size
	if err := json.Unmarshal(f.Data, &s); err != nil {
		return Size{}, fmt.Errorf("decode %s payload: %w", f.Kind, err)
	}
	return s, nil
}
