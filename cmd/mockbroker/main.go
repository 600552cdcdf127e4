package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/sshdock/sshdock/internal/config"
	"github.com/sshdock/sshdock/internal/logging"
	"github.com/sshdock/sshdock/internal/mockbroker"
)

type cli struct {
	Config string `help:"Path to the config file; devices come from its mock section" type:"path" default:"${config_path}"`
	Host   string `help:"Override mock.host"`
	Port   int    `help:"Override mock.port"`
	Token  string `help:"Override mock.token (API bearer token)"`
	Debug  bool   `help:"Log every request" short:"d"`
}

func main() {
	var c cli
	kong.Parse(&c,
		kong.Name("mockbroker"),
		kong.Description("Development broker serving echo, pty, ssh and error devices"),
		kong.Vars{"config_path": config.DefaultPath()},
		kong.UsageOnError(),
	)

	if err := run(c); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c cli) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Host != "" {
		cfg.Mock.Host = c.Host
	}
	if c.Port > 0 {
		cfg.Mock.Port = c.Port
	}
	if c.Token != "" {
		cfg.Mock.Token = c.Token
	}

	logger := logging.New(os.Stderr, c.Debug || cfg.Log.Debug)
	logging.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mockbroker.NewServer(cfg.Mock, mockbroker.WithLogger(logger))
	return srv.ListenAndServe(ctx, cfg.Mock.Host, cfg.Mock.Port)
}
