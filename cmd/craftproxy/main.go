package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/craftwrap/craftwrap/internal/config"
	"github.com/craftwrap/craftwrap/internal/events"
	"github.com/craftwrap/craftwrap/internal/proxy"
)

const ConfigPath = "config/craftproxy.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("CRAFTPROXY_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	slog.Info("craftproxy starting",
		"bind", cfg.Proxy.Bind,
		"server_port", cfg.Proxy.ServerPort,
		"online_mode", cfg.Proxy.OnlineMode,
		"compression_threshold", cfg.Proxy.CompressionThreshold)

	bus := events.NewBus()
	px, err := proxy.New(cfg, bus, logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return px.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("craftproxy stopped")
	return nil
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
