// Package classify turns raw broker error strings and transport failures into
// descriptors the UI can render: a title, a message, hints, links to related
// settings and whether a fresh connection attempt makes sense.
package classify

import "strings"

// Link points at a related view of the admin console.
type Link struct {
	Label  string
	Target string
}

// Descriptor is a user-facing explanation of one failed connection.
type Descriptor struct {
	Title     string
	Message   string
	Hints     []string
	Links     []Link
	Reconnect bool
}

// WithLinkBase returns a copy of d whose link targets were passed through
// resolve.
func (d Descriptor) WithLinkBase(resolve func(target string) string) Descriptor {
	if resolve == nil || len(d.Links) == 0 {
		return d
	}
	links := make([]Link, len(d.Links))
	for i, l := range d.Links {
		links[i] = Link{Label: l.Label, Target: resolve(l.Target)}
	}
	d.Links = links
	return d
}

const (
	firewallHint  = "A firewall rule may be blocking this connection."
	firewallLabel = "Firewall rules"
)

// Classifier maps backend errors to descriptors. The zero value is usable and
// has firewall-rule support disabled.
type Classifier struct {
	// FirewallRules reports whether the deployment supports firewall rules.
	FirewallRules bool
}

// New returns a Classifier for a deployment with or without firewall rules.
func New(firewallRules bool) Classifier {
	return Classifier{FirewallRules: firewallRules}
}

// Classify looks raw up in the static table. It never fails: unknown input,
// including the empty string, yields Unexpected.
func (c Classifier) Classify(raw, deviceUID string) Descriptor {
	e, ok := table[raw]
	if !ok {
		return Unexpected()
	}

	d := Descriptor{
		Title:     titleFailed,
		Message:   e.message,
		Reconnect: e.reconnect,
		Hints:     append([]string(nil), e.hints...),
	}
	for _, l := range e.links {
		d.Links = append(d.Links, Link{Label: l.Label, Target: expand(l.Target, deviceUID)})
	}

	if c.FirewallRules {
		d.Hints = append(d.Hints, firewallHint)
		d.Links = append(d.Links, Link{Label: firewallLabel, Target: targetFirewall})
	}
	return d
}

// Known reports whether raw is part of the broker's error vocabulary.
func Known(raw string) bool {
	_, ok := table[raw]
	return ok
}

// Unexpected describes an error string outside the known vocabulary.
func Unexpected() Descriptor {
	return Descriptor{
		Title:   titleFailed,
		Message: "An unexpected error occurred.",
	}
}

// NegotiationFailed describes a rejected or unreachable token request.
func NegotiationFailed() Descriptor {
	return Descriptor{
		Title:     titleFailed,
		Message:   "The server did not accept the connection request.",
		Hints:     []string{"Check your credentials and try again."},
		Reconnect: true,
	}
}

// SessionEnded describes a socket that closed without an error frame.
func SessionEnded() Descriptor {
	return Descriptor{
		Title:   "Session ended",
		Message: "The connection to the device was closed.",
	}
}

// NetworkError describes a socket-level failure.
func NetworkError() Descriptor {
	return Descriptor{
		Title:   "Connection lost",
		Message: "A network error interrupted the connection.",
		Hints:   []string{"Check your network connectivity."},
	}
}

func expand(target, deviceUID string) string {
	return strings.ReplaceAll(target, DevicePlaceholder, deviceUID)
}
