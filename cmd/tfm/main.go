package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sdejongh/tfm/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli.Version, cli.Commit, cli.BuildDate = version, commit, date

	// Interrupting cancels running tasks; committed operations stay recorded
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		return cli.ReportError(err)
	}
	return 0
}
