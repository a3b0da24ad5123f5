package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/masahif/offliner/internal/cmd"
)

// Version information set by build flags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Set version information
	cmd.SetVersionInfo(Version, BuildTime)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		cmd.ReportError(os.Stderr, err)
		return 1
	}
	return 0
}
