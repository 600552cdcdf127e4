package session

import (
	"encoding/json"
	"fmt"
)

// WindowState is a session's presentation mode, independent of its network
// state.
type WindowState int

const (
	Docked WindowState = iota
	Minimized
	Fullscreen
)

var windowStateNames = map[WindowState]string{
	Docked:     "docked",
	Minimized:  "minimized",
	Fullscreen: "fullscreen",
}

var windowStateFromName = map[string]WindowState{
	"docked":     Docked,
	"minimized":  Minimized,
	"fullscreen": Fullscreen,
}

func (w WindowState) String() string {
	if s, ok := windowStateNames[w]; ok {
		return s
	}
	return "unknown"
}

// Visible reports whether the session's window takes screen space.
func (w WindowState) Visible() bool {
	return w != Minimized
}

func (w WindowState) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

func (w *WindowState) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := windowStateFromName[s]
	if !ok {
		return fmt.Errorf("unknown window state %q", s)
	}
	*w = v
	return nil
}

// ConnectionStatus is the lifecycle of one connection attempt. Values are
// ordered: a session only ever moves forward.
type ConnectionStatus int

const (
	Connecting ConnectionStatus = iota
	Connected
	Disconnected
)

var statusNames = map[ConnectionStatus]string{
	Connecting:   "connecting",
	Connected:    "connected",
	Disconnected: "disconnected",
}

var statusFromName = map[string]ConnectionStatus{
	"connecting":   Connecting,
	"connected":    Connected,
	"disconnected": Disconnected,
}

func (c ConnectionStatus) String() string {
	if s, ok := statusNames[c]; ok {
		return s
	}
	return "unknown"
}

// Follows reports whether next is a legal successor of c. Repeating the
// current status is allowed and has no effect.
func (c ConnectionStatus) Follows(next ConnectionStatus) bool {
	_, known := statusNames[next]
	return known && next >= c
}

func (c ConnectionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ConnectionStatus) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := statusFromName[s]
	if !ok {
		return fmt.Errorf("unknown connection status %q", s)
	}
	*c = v
	return nil
}
