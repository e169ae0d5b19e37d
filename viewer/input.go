package viewer

import (
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/minivis/control"
)

// Held keys repeat their action every frame.
var actionKeys = []struct {
	key    int32
	action control.Action
}{
	{rl.KeyUp, control.RenderFaster},
	{rl.KeyDown, control.RenderSlower},
	{rl.KeyLeft, control.PlaybackSlower},
	{rl.KeyRight, control.PlaybackFaster},
}

// layerKeys maps layer key labels to raylib keys.
var layerKeys = map[string]int32{
	"1": rl.KeyOne,
	"2": rl.KeyTwo,
	"3": rl.KeyThree,
	"4": rl.KeyFour,
	"5": rl.KeyFive,
	"6": rl.KeySix,
	"7": rl.KeySeven,
	"8": rl.KeyEight,
	"L": rl.KeyL,
	"H": rl.KeyH,
}

// handleInput processes keyboard and mouse input.
func (v *Viewer) handleInput() {
	v.handleResize()

	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}
	if rl.IsKeyPressed(rl.KeyTab) {
		v.panel.Toggle()
	}
	if rl.IsKeyPressed(rl.KeyF12) {
		if _, err := v.app.SaveSnapshot(); err != nil {
			slog.Error("failed to save snapshot", "error", err)
		}
	}

	for _, b := range actionKeys {
		if rl.IsKeyDown(b.key) {
			v.app.Handle(b.action)
		}
	}

	for label, key := range layerKeys {
		if rl.IsKeyPressed(key) {
			v.app.Layers().HandleKey(label)
		}
	}

	if !v.panel.Contains(rl.GetMousePosition()) {
		v.inspect.HandleInput(v.app.Store(), v.renderer)
	}
	v.handleCameraInput()
}

// handleResize keeps the window at or above the minimum size. The renderer
// refits the camera from the canvas size every frame.
func (v *Viewer) handleResize() {
	if !rl.IsWindowResized() {
		return
	}
	sc := v.app.Config().Screen
	w := max(rl.GetScreenWidth(), sc.MinWidth)
	h := max(rl.GetScreenHeight(), sc.MinHeight)
	if w != rl.GetScreenWidth() || h != rl.GetScreenHeight() {
		rl.SetWindowSize(w, h)
	}
}

// handleCameraInput processes zoom and pan on top of the fitted view.
func (v *Viewer) handleCameraInput() {
	cam := v.renderer.Camera()

	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		mouse := rl.GetMousePosition()
		cam.SetZoom(cam.Zoom*(1+wheel*0.1), mouse.X, mouse.Y)
	}
	if rl.IsMouseButtonDown(rl.MouseButtonRight) {
		d := rl.GetMouseDelta()
		cam.Pan(d.X, d.Y)
	}

	if rl.IsKeyPressed(rl.KeyEqual) || rl.IsKeyPressed(rl.KeyKpAdd) {
		cam.ZoomBy(1.25)
	}
	if rl.IsKeyPressed(rl.KeyMinus) || rl.IsKeyPressed(rl.KeyKpSubtract) {
		cam.ZoomBy(0.8)
	}
	if rl.IsKeyPressed(rl.KeyHome) || rl.IsKeyPressed(rl.KeyR) {
		cam.Reset()
	}
}
