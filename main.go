package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tphakala/soundbackend/cmd"
	"github.com/tphakala/soundbackend/internal/buildinfo"
	"github.com/tphakala/soundbackend/internal/conf"
	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/telemetry"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	os.Exit(run())
}

func run() int {
	info := buildinfo.NewContext(version, buildDate, "")
	settings := conf.Defaults()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings, info)
	err := rootCmd.ExecuteContext(ctx)

	telemetry.Flush(2 * time.Second)
	_ = logger.Global().Close()
	if err != nil {
		return 1
	}
	return 0
}
