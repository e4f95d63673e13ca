package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/receiptsllc/sheriffsale/internal/app"
	"github.com/receiptsllc/sheriffsale/internal/config"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(cfg.NewLogger(os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Startup failed.", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	server := app.NewServer(cfg, application)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(server.Start)
	eg.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := eg.Wait(); err != nil {
		slog.Error("Server stopped with error.", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}
