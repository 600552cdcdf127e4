// Package help renders the help page from the active key bindings.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
)

const intro = `# sshdock

Every session is an interactive shell on a device, reached through the
broker. At most one session is on screen at a time; the others wait as chips
above the status bar and keep running.

A failed session stays open with the reason shown over its terminal. Sessions
that failed on credentials can be retried with a fresh prompt.
`

// Markdown lists groups of bindings as tables.
func Markdown(groups [][]key.Binding, titles []string) string {
	var b strings.Builder
	b.WriteString(intro)
	for i, g := range groups {
		title := "Keys"
		if i < len(titles) {
			title = titles[i]
		}
		fmt.Fprintf(&b, "\n## %s\n\n| Key | Action |\n|---|---|\n", title)
		for _, k := range g {
			if !k.Enabled() {
				continue
			}
			h := k.Help()
			fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
		}
	}
	return b.String()
}

// Render renders md for a terminal of the given width. style is a glamour
// standard style name.
func Render(md, style string, width int) string {
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(max(width-4, 20)),
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
