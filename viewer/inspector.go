package viewer

import (
	"fmt"
	"maps"
	"slices"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/minivis/render"
	"github.com/pthm-cable/minivis/store"
)

const (
	inspectorWidth   = 240
	inspectorPadding = 10
	inspectorLine    = 18
	pickRadius       = 8
)

var (
	inspectorBg     = rl.Color{R: 30, G: 30, B: 35, A: 240}
	inspectorHeader = rl.Color{R: 45, G: 45, B: 55, A: 255}
	inspectorBorder = rl.Color{R: 70, G: 70, B: 80, A: 255}
	inspectorMarker = rl.Color{R: 255, G: 255, B: 0, A: 255}
)

// inspector shows the properties of a clicked entity and follows it across
// frames.
type inspector struct {
	sel      render.Selection
	selected bool
}

// HandleInput selects the entity under a left click, or clears the
// selection when nothing is hit.
func (ins *inspector) HandleInput(s *store.Store, r *render.Renderer) {
	if !rl.IsMouseButtonPressed(rl.MouseButtonLeft) {
		return
	}
	m := rl.GetMousePosition()
	ins.sel, ins.selected = render.Pick(s, r.Camera(), m.X, m.Y, pickRadius)
}

// Draw refreshes the selection and renders the marker and the panel.
func (ins *inspector) Draw(s *store.Store, r *render.Renderer) {
	if !ins.selected {
		return
	}
	ins.sel, ins.selected = render.Track(s, ins.sel)
	if !ins.selected {
		return
	}

	e := ins.sel.Entity
	x, y := r.Camera().WorldToScreen(e.X, e.Y)
	rl.DrawCircleLines(int32(x), int32(y), pickRadius, inspectorMarker)

	keys := slices.Sorted(maps.Keys(e.Props))

	px := int32(rl.GetScreenWidth()) - inspectorWidth - 10
	py := int32(10)
	height := int32(30 + (2+len(keys))*inspectorLine + inspectorPadding)
	rl.DrawRectangle(px, py, inspectorWidth, height, inspectorBg)
	rl.DrawRectangle(px, py, inspectorWidth, 30, inspectorHeader)
	rl.DrawRectangleLines(px, py, inspectorWidth, height, inspectorBorder)
	rl.DrawText(fmt.Sprintf("Layer %d #%d", ins.sel.Layer, ins.sel.Index), px+inspectorPadding, py+8, 16, rl.White)

	ty := py + 30 + 6
	line := func(label, value string) {
		rl.DrawText(label, px+inspectorPadding, ty, 12, rl.Gray)
		rl.DrawText(value, px+100, ty, 12, rl.White)
		ty += inspectorLine
	}
	line("x", fmt.Sprintf("%.2f", e.X))
	line("y", fmt.Sprintf("%.2f", e.Y))
	for _, k := range keys {
		line(k, fmt.Sprint(e.Props[k]))
	}
}
