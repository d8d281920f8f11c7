package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/meshcore-dev/meshbridge/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Initialize(ctx)
	if err != nil {
		slog.Error("initialize runtime", "error", err)
		os.Exit(1)
	}
	defer func() { _ = rt.Close() }()

	if err := rt.Wait(); err != nil {
		slog.Error("runtime failed", "error", err)
		_ = rt.Close()
		os.Exit(1)
	}
}
