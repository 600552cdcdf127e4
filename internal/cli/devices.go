package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/sshdock/sshdock/internal/broker"
)

// DevicesCmd lists the broker's devices
type DevicesCmd struct {
	Format string `help:"Output format: table or json" enum:"table,json" default:"table"`
}

// Run executes the devices command
func (d *DevicesCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	devs, err := cli.api().ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if d.Format == "json" {
		data, err := json.MarshalIndent(devs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(cli.stdout(), string(data))
		return nil
	}
	return printDevices(cli, devs)
}

func printDevices(cli *CLI, devs []broker.Device) error {
	w := tabwriter.NewWriter(cli.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UID\tNAME\tSTATUS")
	for _, d := range devs {
		status := "offline"
		if d.Online {
			status = "online"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.UID, d.Name, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cli.stdout(), "\nTotal: %d devices\n", len(devs))
	return nil
}
