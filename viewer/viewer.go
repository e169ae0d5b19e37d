// Package viewer is the raylib front end: it opens the window, polls input
// and draws each frame through the shared renderer.
package viewer

import (
	"context"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/minivis/app"
	"github.com/pthm-cable/minivis/render"
	"github.com/pthm-cable/minivis/rlcanvas"
	"github.com/pthm-cable/minivis/telemetry"
)

// Viewer holds the per-window state.
type Viewer struct {
	app      *app.App
	canvas   *rlcanvas.Canvas
	renderer *render.Renderer
	panel    *controlPanel
	inspect  inspector

	targetFPS int
}

// Run opens the window and renders until it is closed or ctx is cancelled.
// raylib requires it to run on the main goroutine.
func Run(ctx context.Context, a *app.App) {
	sc := a.Config().Screen

	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(sc.Width), int32(sc.Height), sc.Title)
	defer rl.CloseWindow()
	rl.SetWindowMinSize(sc.MinWidth, sc.MinHeight)

	v := &Viewer{
		app:       a,
		canvas:    rlcanvas.New(),
		panel:     newControlPanel(10, 40, 190),
		targetFPS: a.Rate().Get(),
	}
	v.renderer = a.NewRenderer(v.canvas)
	rl.SetTargetFPS(int32(v.targetFPS))

	for !rl.WindowShouldClose() && ctx.Err() == nil {
		v.frame()
	}
}

// frame runs one input poll and one draw pass.
func (v *Viewer) frame() {
	perf := v.app.Perf()
	perf.StartFrame()

	perf.StartPhase(telemetry.PhaseInput)
	v.handleInput()
	v.app.FlushControl()
	if r := v.app.Rate().Get(); r != v.targetFPS {
		v.targetFPS = r
		rl.SetTargetFPS(int32(r))
	}

	hud := v.app.HUD()
	hud.FPS = float64(rl.GetFPS())

	v.canvas.Begin()
	v.renderer.Frame(v.app.Store(), hud)
	v.inspect.Draw(v.app.Store(), v.renderer)
	for _, act := range v.panel.Draw(v.app, v.renderer.Camera()) {
		v.app.Handle(act)
	}
	perf.StartPhase(telemetry.PhasePresent)
	v.canvas.End()
	perf.EndFrame()

	v.app.FlushTelemetry(time.Now())
}
