package cli

import (
	"encoding/json"
	"fmt"

	"github.com/sshdock/sshdock/internal/classify"
)

// ClassifyCmd prints the descriptor for a raw backend error
type ClassifyCmd struct {
	Raw    string `arg:"" help:"Raw error string as sent by the backend"`
	Device string `help:"Device uid substituted into links" default:"DEVICE"`
	JSON   bool   `help:"Print JSON"`
}

// Run executes the classify command
func (c *ClassifyCmd) Run(cli *CLI) error {
	d := classify.New(cli.cfg.Features.FirewallRules).
		Classify(c.Raw, c.Device).
		WithLinkBase(cli.cfg.ConsoleURL)

	out := cli.stdout()
	if c.JSON {
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "%s\n%s\n", d.Title, d.Message)
	for _, h := range d.Hints {
		fmt.Fprintf(out, "  hint: %s\n", h)
	}
	for _, l := range d.Links {
		fmt.Fprintf(out, "  link: %s <%s>\n", l.Label, l.Target)
	}
	fmt.Fprintf(out, "reconnect: %t\n", d.Reconnect)
	return nil
}
