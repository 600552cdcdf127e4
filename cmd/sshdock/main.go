package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/sshdock/sshdock/internal/cli"
)

// Build information injected at build time via ldflags
var (
	Commit  = "unknown"
	Version = "dev"
)

const tagline = "Terminal sessions to your devices, docked side by side"

func main() {
	var c cli.CLI
	ctx := kong.Parse(&c,
		kong.Name("sshdock"),
		kong.Description(tagline),
		cli.Vars(fmt.Sprintf("sshdock %s (commit: %s)", Version, Commit)),
		kong.UsageOnError(),
		kong.Bind(&c),
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
