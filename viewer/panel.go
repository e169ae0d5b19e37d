package viewer

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/minivis/app"
	"github.com/pthm-cable/minivis/camera"
	"github.com/pthm-cable/minivis/control"
)

const (
	panelPadding    = 8
	panelLineHeight = 24
	panelFontSize   = 12
)

var (
	panelBackground = rl.Color{R: 20, G: 20, B: 30, A: 210}
	panelText       = rl.Color{R: 200, G: 200, B: 200, A: 255}
)

// controlPanel is a toggleable panel with playback and layer controls.
type controlPanel struct {
	x, y, width float32
	height      float32 // as last drawn
	visible     bool
}

func newControlPanel(x, y, width float32) *controlPanel {
	return &controlPanel{x: x, y: y, width: width}
}

// Toggle switches panel visibility.
func (p *controlPanel) Toggle() bool {
	p.visible = !p.visible
	return p.visible
}

// Contains reports whether the screen point lies on the visible panel.
func (p *controlPanel) Contains(pt rl.Vector2) bool {
	return p.visible && rl.CheckCollisionPointRec(pt, rl.Rectangle{X: p.x, Y: p.y, Width: p.width, Height: p.height})
}

// Draw renders the panel and returns the actions requested by its buttons.
// Layer toggles and the rate slider are applied directly.
func (p *controlPanel) Draw(a *app.App, cam *camera.Camera) []control.Action {
	if !p.visible {
		return nil
	}

	layers := a.Layers().All()
	rows := 7 + len(layers)
	p.height = float32(rows*panelLineHeight + panelPadding*2)
	rl.DrawRectangleRec(rl.Rectangle{X: p.x, Y: p.y, Width: p.width, Height: p.height}, panelBackground)

	var actions []control.Action
	x := p.x + panelPadding
	y := p.y + panelPadding
	inner := p.width - panelPadding*2
	half := (inner - panelPadding) / 2

	rl.DrawText("Playback", int32(x), int32(y), panelFontSize+2, rl.White)
	y += panelLineHeight
	rl.DrawText(fmt.Sprintf("delay %d ms", a.Channel().Delay()), int32(x), int32(y), panelFontSize, panelText)
	y += panelLineHeight - 6
	if gui.Button(rl.Rectangle{X: x, Y: y, Width: half, Height: 20}, "Slower") {
		actions = append(actions, control.PlaybackSlower)
	}
	if gui.Button(rl.Rectangle{X: x + half + panelPadding, Y: y, Width: half, Height: 20}, "Faster") {
		actions = append(actions, control.PlaybackFaster)
	}
	y += panelLineHeight

	rate := a.Rate()
	rl.DrawText(fmt.Sprintf("target %d fps", rate.Get()), int32(x), int32(y), panelFontSize, panelText)
	y += panelLineHeight - 6
	newRate := gui.SliderBar(
		rl.Rectangle{X: x + 30, Y: y, Width: inner - 70, Height: 16},
		fmt.Sprint(rate.Min), fmt.Sprint(rate.Max),
		float32(rate.Get()), float32(rate.Min), float32(rate.Max),
	)
	if int(newRate) != rate.Get() {
		rate.Set(int(newRate))
	}
	y += panelLineHeight

	if cam.Ready() {
		m := rl.GetMousePosition()
		wx, wy := cam.ScreenToWorld(m.X, m.Y)
		rl.DrawText(fmt.Sprintf("cursor %.1f, %.1f", wx, wy), int32(x), int32(y), panelFontSize, panelText)
	}
	y += panelLineHeight

	rl.DrawText("Layers", int32(x), int32(y), panelFontSize+2, rl.White)
	y += panelLineHeight
	for _, desc := range layers {
		label := fmt.Sprintf("[%s] %s (%s)", check(a.Layers().IsEnabled(desc.ID)), desc.Name, desc.KeyLabel)
		if gui.Button(rl.Rectangle{X: x, Y: y, Width: inner, Height: 20}, label) {
			a.Layers().Toggle(desc.ID)
		}
		y += panelLineHeight
	}

	return actions
}

func check(on bool) string {
	if on {
		return "x"
	}
	return " "
}
