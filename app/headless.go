package app

import (
	"context"
	"errors"
	"time"

	"github.com/pthm-cable/minivis/render"
)

// RunHeadless renders into a canvas that draws nothing, at the target
// rate, until ctx is cancelled. It exercises the same read path and
// telemetry as the window without needing a display.
func (a *App) RunHeadless(ctx context.Context) error {
	canvas := render.NopCanvas{W: a.cfg.Screen.Width, H: a.cfg.Screen.Height}
	cycle := &render.Cycle{
		Renderer: a.NewRenderer(canvas),
		Canvas:   canvas,
		Store:    a.store,
		Perf:     a.perf,
		Rate:     a.rate.Get,
		HUD:      a.HUD,
		OnFrame: func(render.FrameResult) {
			a.FlushControl()
			a.FlushTelemetry(time.Now())
		},
	}

	a.log.Info("starting headless viewer",
		"uri", a.cfg.Connection.URI,
		"target_fps", a.rate.Get(),
	)
	err := cycle.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
