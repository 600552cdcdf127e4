// Package banner renders a failure descriptor as the panel shown over a
// disconnected terminal.
package banner

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/sshdock/sshdock/internal/classify"
	"github.com/sshdock/sshdock/internal/theme"
)

// Markdown formats d. Retry is offered only when the descriptor allows it.
func Markdown(d classify.Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n%s\n", d.Title, d.Message)
	if len(d.Hints) > 0 {
		b.WriteString("\n")
		for _, h := range d.Hints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	if len(d.Links) > 0 {
		b.WriteString("\n")
		for _, l := range d.Links {
			fmt.Fprintf(&b, "- [%s](%s)\n", l.Label, l.Target)
		}
	}
	if d.Reconnect {
		b.WriteString("\n*r* retry with new credentials · *x* close\n")
	} else {
		b.WriteString("\n*x* close\n")
	}
	return b.String()
}

type cacheKey struct {
	md    string
	width int
	style string
}

// Renderer renders descriptors through glamour and remembers the output of
// the last few calls; View is called on every frame.
type Renderer struct {
	mu    sync.Mutex
	cache map[cacheKey]string
}

func NewRenderer() *Renderer {
	return &Renderer{cache: make(map[cacheKey]string)}
}

// Render returns the bordered banner for d at width cells.
func (r *Renderer) Render(d classify.Descriptor, p theme.Palette, width int) string {
	width = max(width, 20)
	md := Markdown(d)
	style := "dark"
	if p.Name == theme.Light.Name {
		style = "light"
	}
	key := cacheKey{md: md, width: width, style: style}

	r.mu.Lock()
	body, ok := r.cache[key]
	r.mu.Unlock()
	if !ok {
		body = render(md, width-4, style)
		r.mu.Lock()
		if len(r.cache) > 32 {
			clear(r.cache)
		}
		r.cache[key] = body
		r.mu.Unlock()
	}

	return lipgloss.NewStyle().
		Width(width-2).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(p.Danger).
		Render(body)
}

func render(md string, wrap int, style string) string {
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return md
	}
	out, err := tr.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
