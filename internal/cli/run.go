package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sshdock/sshdock/internal/app"
	"github.com/sshdock/sshdock/internal/classify"
	"github.com/sshdock/sshdock/internal/logging"
	"github.com/sshdock/sshdock/internal/orchestrator"
	"github.com/sshdock/sshdock/internal/session"
)

const shutdownTimeout = 5 * time.Second

// RunCmd starts the TUI application
type RunCmd struct {
	Theme     string `help:"Color theme (dark, light, contrast)"`
	Compact   bool   `help:"Start with the compact layout"`
	NoHistory bool   `help:"Do not record or show connection history"`
}

// Run executes the TUI
func (r *RunCmd) Run(cli *CLI) error {
	cfg := cli.cfg
	api := cli.api()

	var (
		opts []orchestrator.Option
		hist app.HistoryReader
	)
	if !r.NoHistory {
		store, err := cli.openHistory()
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		if store != nil {
			defer store.Close()
			opts = append(opts, orchestrator.WithRecorder(store))
			hist = store
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	factory := orchestrator.BrokerFactory(api, classify.New(cfg.Features.FirewallRules), logging.Logger)
	orch := orchestrator.New(ctx, session.NewRegistry(), factory, opts...)

	themeName := cfg.Appearance.Theme
	if r.Theme != "" {
		themeName = r.Theme
	}
	m := app.New(app.Options{
		Orchestrator: orch,
		Devices:      api,
		History:      hist,
		HistoryLimit: cfg.History.Limit,
		BrokerURL:    cfg.Broker.URL,
		Theme:        themeName,
		Compact:      cfg.Appearance.Compact || r.Compact,
		ConsoleURL:   cfg.ConsoleURL,
	})

	logging.Logger.Info("starting TUI", "broker", cfg.Broker.URL)
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := orch.Shutdown(shutdownCtx); serr != nil {
		logging.Logger.Warn("sessions did not stop in time", "err", serr)
	}

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
