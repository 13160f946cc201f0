package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/soilnet-go/cmd"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cmd.RootCommand(buildinfo.NewContext(version, buildDate))
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
