package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/sshdock/sshdock/internal/broker"
	"github.com/sshdock/sshdock/internal/classify"
	"github.com/sshdock/sshdock/internal/history"
	"github.com/sshdock/sshdock/internal/logging"
	"github.com/sshdock/sshdock/internal/session"
	"github.com/sshdock/sshdock/internal/theme"
	"github.com/sshdock/sshdock/internal/ttyterm"
	"github.com/sshdock/sshdock/internal/views/banner"
)

// AttachCmd opens one session on the local terminal
type AttachCmd struct {
	Device string `arg:"" help:"Device uid or name"`
	User   string `help:"Username (defaults to the last one used on the device)" short:"u"`
}

// Run executes the attach command
func (a *AttachCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lookup, cancel := context.WithTimeout(ctx, requestTimeout)
	dev, err := cli.resolveDevice(lookup, a.Device)
	cancel()
	if err != nil {
		return err
	}
	if !dev.Online {
		return fmt.Errorf("%s is offline", dev.Name)
	}

	store, err := cli.openHistory()
	if err != nil {
		logging.Logger.Warn("history unavailable", "err", err)
	}
	if store != nil {
		defer store.Close()
	}

	user := a.User
	if user == "" && store != nil {
		if last, ok, err := store.LastUser(ctx, dev.UID); err == nil && ok {
			user = last
		}
	}
	user, password, err := promptCredentials(dev.Name, user)
	if err != nil {
		return err
	}

	tty, err := ttyterm.Open(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer tty.Restore()

	id := uuid.NewString()
	target := broker.Target{DeviceUID: dev.UID, DeviceName: dev.Name, Username: user}
	rep := &attachReporter{store: store, log: logging.Logger.With("session", id)}
	if store != nil {
		if err := store.Opened(id, target, time.Now()); err != nil {
			logging.Logger.Warn("record open", "err", err)
		}
	}

	client := broker.New(broker.Options{
		ID:         id,
		Target:     target,
		Password:   password,
		Negotiator: cli.api(),
		Emulator:   tty,
		Reporter:   rep,
		Classifier: classify.New(cli.cfg.Features.FirewallRules),
	})
	client.Start(ctx)

	select {
	case <-client.Done():
	case <-tty.Detached():
	case <-ctx.Done():
	}
	client.Close()
	select {
	case <-client.Done():
	case <-time.After(shutdownTimeout):
	}

	if err := tty.Restore(); err != nil {
		return fmt.Errorf("restore terminal: %w", err)
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = 80
	}
	return cli.reportAttach(tty, dev.Name, width)
}

// reportAttach prints how an attach ended. A failure shown on the terminal
// is printed and returned even when the user detached afterwards.
func (c *CLI) reportAttach(src interface {
	Banner() (classify.Descriptor, bool)
}, device string, width int) error {
	out := c.stdout()
	fmt.Fprint(out, "\r\n")

	if d, failed := src.Banner(); failed {
		d = d.WithLinkBase(c.cfg.ConsoleURL)
		fmt.Fprintln(out, banner.NewRenderer().Render(d, theme.ByName(c.cfg.Appearance.Theme), width))
		return errors.New(strings.ToLower(d.Title))
	}
	fmt.Fprintf(out, "detached from %s\n", device)
	return nil
}

// promptCredentials asks for the password and, when user is empty, the
// username.
func promptCredentials(device, user string) (string, string, error) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(&user).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("username is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password),
		).Title("Connect to " + device),
	)
	if err := form.Run(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(user), password, nil
}

// attachReporter records the session's progress in history.
type attachReporter struct {
	store *history.Store
	log   *log.Logger
}

func (r *attachReporter) SetConnectionStatus(id string, status session.ConnectionStatus) {
	r.log.Info("status", "status", status)
	if r.store == nil || status != session.Connected {
		return
	}
	if err := r.store.Connected(id); err != nil {
		r.log.Warn("record connected", "err", err)
	}
}

func (r *attachReporter) ReportError(id string, d classify.Descriptor) {
	r.log.Warn("session failed", "title", d.Title)
	if r.store == nil {
		return
	}
	if err := r.store.Failed(id, d.Title); err != nil {
		r.log.Warn("record failure", "err", err)
	}
}
