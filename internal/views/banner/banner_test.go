package banner

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/sshdock/sshdock/internal/classify"
	"github.com/sshdock/sshdock/internal/theme"
)

func TestMarkdown(t *testing.T) {
	d := classify.New(true).Classify(classify.ErrFirewallBlock, "dev-1")
	md := Markdown(d)

	if !strings.HasPrefix(md, "## "+d.Title+"\n") {
		t.Errorf("Markdown() should start with the title heading, got %q", md)
	}
	for _, h := range d.Hints {
		if !strings.Contains(md, "- "+h) {
			t.Errorf("Markdown() missing hint %q", h)
		}
	}
	for _, l := range d.Links {
		if !strings.Contains(md, "["+l.Label+"]("+l.Target+")") {
			t.Errorf("Markdown() missing link %q", l.Label)
		}
	}
	if strings.Contains(md, "retry") {
		t.Error("non-reconnectable descriptor should not offer retry")
	}
}

func TestMarkdownOffersRetry(t *testing.T) {
	md := Markdown(classify.NegotiationFailed())
	if !strings.Contains(md, "retry") {
		t.Errorf("Markdown() = %q, want retry hint", md)
	}
}

func TestRender(t *testing.T) {
	r := NewRenderer()
	d := classify.SessionEnded()

	out := r.Render(d, theme.Dark, 60)
	if !strings.Contains(ansi.Strip(out), d.Title) {
		t.Errorf("Render() missing title %q", d.Title)
	}
	if w := lipgloss.Width(out); w != 60 {
		t.Errorf("Render() width = %d, want 60", w)
	}
	if again := r.Render(d, theme.Dark, 60); again != out {
		t.Error("Render() should be stable for the same input")
	}
	if len(r.cache) != 1 {
		t.Errorf("cache size = %d, want 1", len(r.cache))
	}

	r.Render(d, theme.Light, 60)
	if len(r.cache) != 2 {
		t.Errorf("cache size = %d, want 2", len(r.cache))
	}
}
