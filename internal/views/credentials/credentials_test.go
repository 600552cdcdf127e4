package credentials

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"

	"github.com/sshdock/sshdock/internal/orchestrator"
	"github.com/sshdock/sshdock/internal/theme"
)

func TestRequireUsername(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", true},
		{"   ", true},
		{"root", false},
	}
	for _, tt := range tests {
		if err := requireUsername(tt.in); (err != nil) != tt.wantErr {
			t.Errorf("requireUsername(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestNewStartsEmpty(t *testing.T) {
	m := New(orchestrator.ReconnectRequest{DeviceUID: "d1", DeviceName: "box1"})
	user, pass := m.Credentials()
	if user != "" || pass != "" {
		t.Errorf("Credentials() = %q, %q, want empty", user, pass)
	}
	if m.Submitted() || m.Aborted() {
		t.Error("fresh form should be neither submitted nor aborted")
	}
}

func TestCredentialsTrimUsername(t *testing.T) {
	m := New(orchestrator.ReconnectRequest{DeviceUID: "d1", DeviceName: "box1"})
	m.values.username = "  root "
	m.values.password = " pw "
	user, pass := m.Credentials()
	if user != "root" || pass != " pw " {
		t.Errorf("Credentials() = %q, %q", user, pass)
	}
}

func TestViewTitle(t *testing.T) {
	tests := []struct {
		req  orchestrator.ReconnectRequest
		want string
	}{
		{orchestrator.ReconnectRequest{DeviceUID: "d1", DeviceName: "box1"}, "Connect to box1"},
		{orchestrator.ReconnectRequest{DeviceUID: "d1", DeviceName: "box1", Replaces: "s1"}, "Reconnect to box1"},
	}
	for _, tt := range tests {
		v := ansi.Strip(New(tt.req).View(theme.Dark))
		if !strings.Contains(v, tt.want) {
			t.Errorf("View() missing %q", tt.want)
		}
		if !strings.Contains(v, "Username") {
			t.Error("View() should show the username field")
		}
	}
}
