package render

import (
	"context"
	"time"

	"github.com/pthm-cable/minivis/store"
	"github.com/pthm-cable/minivis/telemetry"
)

// Cycle paces Renderer.Frame with a ticker. It drives headless runs; the
// window uses the toolkit's own frame pacing instead.
type Cycle struct {
	Renderer *Renderer
	Canvas   Canvas
	Store    *store.Store
	Perf     *telemetry.PerfCollector // optional

	// Rate returns the current target rate in frames per second.
	Rate func() int
	// HUD returns the overlay values; FPS is filled in by the cycle.
	HUD func() HUDData
	// OnFrame, if set, is called after each frame.
	OnFrame func(FrameResult)
}

// Run draws frames until ctx is cancelled. Rate changes take effect on the
// next frame.
func (c *Cycle) Run(ctx context.Context) error {
	rate := c.rate()
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	var last time.Time
	var fps float64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if !last.IsZero() {
				fps = smoothFPS(fps, now.Sub(last))
			}
			last = now

			if c.Perf != nil {
				c.Perf.StartFrame()
			}
			var hud HUDData
			if c.HUD != nil {
				hud = c.HUD()
			}
			hud.FPS = fps
			hud.TargetFPS = rate

			c.Canvas.Begin()
			res := c.Renderer.Frame(c.Store, hud)
			if c.Perf != nil {
				c.Perf.StartPhase(telemetry.PhasePresent)
			}
			c.Canvas.End()
			if c.Perf != nil {
				c.Perf.EndFrame()
			}
			if c.OnFrame != nil {
				c.OnFrame(res)
			}

			if r := c.rate(); r != rate {
				rate = r
				ticker.Reset(time.Second / time.Duration(rate))
			}
		}
	}
}

func (c *Cycle) rate() int {
	if c.Rate == nil {
		return 60
	}
	return max(c.Rate(), 1)
}

// smoothFPS folds one frame interval into an exponential moving average.
func smoothFPS(prev float64, dt time.Duration) float64 {
	if dt <= 0 {
		return prev
	}
	cur := float64(time.Second) / float64(dt)
	if prev == 0 {
		return cur
	}
	return prev*0.9 + cur*0.1
}
