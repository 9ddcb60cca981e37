package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/uniconv/uniconv/internal/cli"
	"github.com/uniconv/uniconv/internal/errdefs"
)

// version, commit, and date are set via ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, version, commit, date)
	stop()
	if err != nil {
		summary, cause := errdefs.Describe(err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", summary)
		if cause != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", cause)
		}
		os.Exit(errdefs.ExitCode(err))
	}
}
