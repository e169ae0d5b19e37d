// Package app wires the store, the ingestion loop, the control channel and
// telemetry into one viewer process. The window front end lives in package
// viewer; headless runs only need this package.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pthm-cable/minivis/camera"
	"github.com/pthm-cable/minivis/config"
	"github.com/pthm-cable/minivis/control"
	"github.com/pthm-cable/minivis/ingest"
	"github.com/pthm-cable/minivis/protocol"
	"github.com/pthm-cable/minivis/recorder"
	"github.com/pthm-cable/minivis/render"
	"github.com/pthm-cable/minivis/store"
	"github.com/pthm-cable/minivis/telemetry"
)

// Options configures an App beyond the config file.
type Options struct {
	LogStats   bool   // log window stats via slog
	OutputDir  string // CSV and snapshot output, empty disables
	RecordPath string // inbound frame recording, empty disables
	Dialer     ingest.Dialer
	Logger     *slog.Logger
}

// App owns every long-lived component of the viewer.
type App struct {
	cfg *config.Config
	log *slog.Logger

	store   *store.Store
	loop    *ingest.Loop
	channel *control.Channel
	input   *control.Input
	rate    *control.TargetRate
	layers  *render.Layers

	perf      *telemetry.PerfCollector
	collector *telemetry.Collector
	bookmarks *telemetry.BookmarkDetector
	output    *telemetry.OutputManager
	rec       *recorder.Writer
	logStats  bool

	wg sync.WaitGroup
}

// New builds an App from cfg. Nothing is started until Start.
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	a := &App{
		cfg:       cfg,
		log:       opts.Logger,
		store:     store.New(),
		layers:    render.NewLayers(),
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		bookmarks: telemetry.NewBookmarkDetector(cfg.Telemetry.BookmarkHistory),
		logStats:  opts.LogStats,
	}
	a.layers.SetEnabled(render.LayerLabels, cfg.Render.Labels)

	ingestOpts := ingest.Options{
		URI:          cfg.Connection.URI,
		RetryDelay:   cfg.Connection.RetryDelay,
		ReadTimeout:  cfg.Connection.ReadTimeout,
		WriteTimeout: cfg.Connection.WriteTimeout,
		Dialer:       opts.Dialer,
		Logger:       opts.Logger,
	}
	if ingestOpts.Dialer == nil {
		ingestOpts.Dialer = ingest.WSDialer{HandshakeTimeout: cfg.Connection.HandshakeTimeout}
	}
	if cfg.Connection.ValidateFrames {
		v, err := protocol.NewValidator()
		if err != nil {
			return nil, fmt.Errorf("loading frame schema: %w", err)
		}
		ingestOpts.Validator = v
	}
	if opts.RecordPath != "" {
		rec, err := recorder.Create(opts.RecordPath)
		if err != nil {
			return nil, err
		}
		a.rec = rec
		ingestOpts.Recorder = rec
	}

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		a.closeRecorder()
		return nil, err
	}
	if err := output.WriteConfig(cfg); err != nil {
		a.log.Error("failed to write config", "error", err)
	}
	a.output = output

	a.loop = ingest.New(a.store, ingestOpts)
	a.channel = control.NewChannel(a.loop, control.ChannelOptions{
		InitialDelay:   cfg.Control.InitialDelayMS,
		SendsPerSecond: cfg.Control.SendsPerSecond,
		Burst:          cfg.Control.Burst,
		Logger:         opts.Logger,
	})
	a.rate = control.NewTargetRate(cfg.Screen.TargetFPS, cfg.Screen.MinFPS, cfg.Screen.MaxFPS)
	a.input = &control.Input{
		Rate:      a.rate,
		Channel:   a.channel,
		RateStep:  cfg.Screen.FPSStep,
		DelayStep: cfg.Control.StepMS,
	}
	return a, nil
}

// Start runs the ingestion loop in the background until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	a.collector = telemetry.NewCollector(a.cfg.Telemetry.StatsWindow, time.Now())
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop.Run(ctx)
	}()
}

// Close waits for ingestion to stop and closes the output files. Cancel the
// context passed to Start first.
func (a *App) Close() error {
	a.wg.Wait()
	a.closeRecorder()
	return a.output.Close()
}

func (a *App) closeRecorder() {
	if a.rec == nil {
		return
	}
	if err := a.rec.Close(); err != nil {
		a.log.Error("failed to close recording", "error", err)
	}
}

// Config returns the effective configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Store returns the shared world state.
func (a *App) Store() *store.Store { return a.store }

// Loop returns the ingestion loop.
func (a *App) Loop() *ingest.Loop { return a.loop }

// Channel returns the playback control channel.
func (a *App) Channel() *control.Channel { return a.channel }

// Rate returns the target render rate.
func (a *App) Rate() *control.TargetRate { return a.rate }

// Layers returns the layer visibility registry.
func (a *App) Layers() *render.Layers { return a.layers }

// Perf returns the frame timing collector.
func (a *App) Perf() *telemetry.PerfCollector { return a.perf }

// Handle applies one user action.
func (a *App) Handle(act control.Action) {
	if err := a.input.Handle(act); err != nil {
		a.log.Debug("control action failed", "action", act, "error", err)
	}
}

// FlushControl delivers a pending playback delay, if any. Call it once per
// input poll.
func (a *App) FlushControl() {
	_ = a.channel.Flush()
}

// HUD returns the overlay values except the measured FPS.
func (a *App) HUD() render.HUDData {
	return render.HUDData{
		TargetFPS: a.rate.Get(),
		DelayMS:   a.channel.Delay(),
		State:     a.loop.State().String(),
	}
}

// NewRenderer builds a renderer for c using the configured palette and
// drawing options.
func (a *App) NewRenderer(c render.Canvas) *render.Renderer {
	w, h := c.Size()
	cam := camera.New(float32(w), float32(h), a.cfg.Render.BorderOffset)
	return render.NewRenderer(c, cam,
		render.PaletteFromConfig(a.cfg.Palette),
		render.OptionsFromConfig(a.cfg.Render),
		a.layers, a.perf)
}

// SaveSnapshot writes the current store contents as JSON. Without an
// output directory the snapshot goes to ./snapshots.
func (a *App) SaveSnapshot() (string, error) {
	snap := telemetry.NewSnapshot(a.store.Copy())
	var (
		path string
		err  error
	)
	if a.output != nil {
		path, err = a.output.SaveSnapshot(snap)
	} else {
		path, err = telemetry.SaveSnapshot(snap, "snapshots")
	}
	if err != nil {
		return "", err
	}
	a.log.Info("snapshot saved", "path", path, "tick", snap.Tick)
	return path, nil
}
