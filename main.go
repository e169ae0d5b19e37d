package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/minivis/app"
	"github.com/pthm-cable/minivis/config"
	"github.com/pthm-cable/minivis/viewer"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	uri := flag.String("uri", "", "Simulation websocket URI (empty = use config)")
	headless := flag.Bool("headless", false, "Run without a window")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, snapshots and config")
	record := flag.String("record", "", "Record inbound frames to this .jsonl.zst file")
	validate := flag.Bool("validate", false, "Check inbound frames against the JSON schema")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	if *uri != "" {
		cfg.Connection.URI = *uri
	}
	if *validate {
		cfg.Connection.ValidateFrames = true
	}
	if err := cfg.Finalize(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	a, err := app.New(cfg, app.Options{
		LogStats:   *logStats,
		OutputDir:  *outputDir,
		RecordPath: *record,
		Logger:     logger,
	})
	if err != nil {
		slog.Error("failed to start viewer", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a.Start(ctx)

	if *headless {
		if err := a.RunHeadless(ctx); err != nil {
			slog.Error("headless run failed", "error", err)
		}
	} else {
		// Window mode; raylib stays on the main goroutine
		viewer.Run(ctx, a)
	}

	cancel()
	final := a.WindowStats(time.Now())
	if *logStats {
		final.LogStats()
	}
	if err := a.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	slog.Info("viewer stopped", "tick", final.Tick, "sessions", final.Sessions, "failures", final.Failures)
}
