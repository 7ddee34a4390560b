package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"nepse_watch/internal/app"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	runOnce := flag.Bool("run-once", false, "run a single goal check and exit")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Manual trigger
	if *runOnce {
		if err := bootstrap.RunOnce(ctx); err != nil {
			slog.Error("❌ Goal check failed", slog.Any("error", err))
			stop()
			os.Exit(1)
		}
		return
	}

	// 4. Long-running bot
	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("❌ Bot stopped with error", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}
