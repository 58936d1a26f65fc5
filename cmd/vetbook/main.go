package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wolfman30/vetclinic-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/vetclinic-booking/internal/config"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.BuildRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}

	a := &app{
		cfg:    cfg,
		rt:     rt,
		logger: logger,
		in:     os.Stdin,
		out:    os.Stdout,
	}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", exitMessage(err))
		os.Exit(1)
	}
}
