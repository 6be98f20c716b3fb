package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/backingwatch/backingx/app/tracker"
)

func main() {
	// Optional .env for local runs; real deployments set the environment.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := tracker.Initialize(ctx)
	if err != nil {
		panic(err)
	}

	// Immediate pass before cron
	if _, err := app.RunOnce(ctx); err != nil {
		app.Logger.Error("Initial run failed", zap.Error(err))
	}

	if err := app.Start(ctx); err != nil {
		panic(err)
	}
}
