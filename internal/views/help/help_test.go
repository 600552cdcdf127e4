package help

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/x/ansi"
)

func TestMarkdown(t *testing.T) {
	quit := key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit"))
	hidden := key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "secret"), key.WithDisabled())

	md := Markdown([][]key.Binding{{quit, hidden}}, []string{"General"})
	if !strings.Contains(md, "## General") {
		t.Error("Markdown() missing group title")
	}
	if !strings.Contains(md, "| `q` | quit |") {
		t.Errorf("Markdown() missing binding row: %q", md)
	}
	if strings.Contains(md, "secret") {
		t.Error("Markdown() should skip disabled bindings")
	}
}

func TestRender(t *testing.T) {
	quit := key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit"))
	out := ansi.Strip(Render(Markdown([][]key.Binding{{quit}}, nil), "dark", 80))
	if !strings.Contains(out, "sshdock") || !strings.Contains(out, "quit") {
		t.Errorf("Render() = %q", out)
	}
}
