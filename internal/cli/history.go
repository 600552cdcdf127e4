package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"
)

// HistoryCmd prints recent connections
type HistoryCmd struct {
	Format string        `help:"Output format: table or json" enum:"table,json" default:"table"`
	Limit  int           `help:"Number of entries to show" default:"20" short:"n"`
	Prune  time.Duration `help:"Delete entries older than this before listing (e.g. 720h)"`
}

// Run executes the history command
func (h *HistoryCmd) Run(cli *CLI) error {
	store, err := cli.openHistory()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	if store == nil {
		return errors.New("history is disabled in the config")
	}
	defer store.Close()

	ctx := context.Background()
	if h.Prune > 0 {
		n, err := store.Prune(ctx, h.Prune)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		fmt.Fprintf(cli.stdout(), "Pruned %d entries\n", n)
	}

	entries, err := store.Recent(ctx, h.Limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if h.Format == "json" {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(cli.stdout(), string(data))
		return nil
	}

	w := tabwriter.NewWriter(cli.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OPENED\tUSER\tDEVICE\tOUTCOME")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.OpenedAt.Local().Format("2006-01-02 15:04:05"),
			e.Username,
			e.DeviceName,
			e.Outcome())
	}
	return w.Flush()
}
