// Package cli defines the sshdock command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/sshdock/sshdock/internal/broker"
	"github.com/sshdock/sshdock/internal/config"
	"github.com/sshdock/sshdock/internal/history"
	"github.com/sshdock/sshdock/internal/logging"
)

const requestTimeout = 10 * time.Second

// ErrUnknownDevice is returned when no device matches a uid or name.
var ErrUnknownDevice = errors.New("unknown device")

// CLI represents the command-line interface structure
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`
	Config  string           `help:"Path to the config file" type:"path" default:"${config_path}" env:"SSHDOCK_CONFIG"`
	Debug   bool             `help:"Enable debug logging to file" short:"d"`
	LogFile string           `help:"Custom path for the log file"`
	Broker  string           `help:"Broker base URL (overrides broker.url)"`
	Token   string           `help:"Broker API token (overrides broker.token)"`

	Run      RunCmd      `cmd:"" help:"Start the TUI (default)" default:"1"`
	Attach   AttachCmd   `cmd:"" help:"Open one session in this terminal"`
	Devices  DevicesCmd  `cmd:"" help:"List the devices the broker offers"`
	History  HistoryCmd  `cmd:"" help:"Show recent connections"`
	Classify ClassifyCmd `cmd:"" help:"Describe a raw backend error string"`

	cfg *config.Config `kong:"-"`
	out io.Writer      `kong:"-"`
}

// Vars are the interpolation variables the CLI tags refer to.
func Vars(version string) kong.Vars {
	return kong.Vars{
		"version":     version,
		"config_path": config.DefaultPath(),
	}
}

// AfterApply loads the configuration, applies flag overrides and starts
// logging.
func (c *CLI) AfterApply() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Broker != "" {
		cfg.Broker.URL = c.Broker
	}
	if c.Token != "" {
		cfg.Broker.Token = c.Token
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	file := c.LogFile
	if file == "" {
		file = cfg.Log.File
	}
	if _, err := logging.Initialize(c.Debug || cfg.Log.Debug, file, cfg.Log.MaxFiles); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *CLI) stdout() io.Writer {
	if c.out != nil {
		return c.out
	}
	return os.Stdout
}

func (c *CLI) api() *broker.HTTPClient {
	return broker.NewHTTPClient(c.cfg.Broker.URL, c.cfg.Broker.Token)
}

// openHistory returns nil when history is disabled.
func (c *CLI) openHistory() (*history.Store, error) {
	if !c.cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(c.cfg.History.Path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// resolveDevice matches arg against device uids first, then names.
func (c *CLI) resolveDevice(ctx context.Context, arg string) (broker.Device, error) {
	devs, err := c.api().ListDevices(ctx)
	if err != nil {
		return broker.Device{}, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devs {
		if d.UID == arg {
			return d, nil
		}
	}
	for _, d := range devs {
		if d.Name == arg {
			return d, nil
		}
	}
	return broker.Device{}, fmt.Errorf("%w %q", ErrUnknownDevice, arg)
}
