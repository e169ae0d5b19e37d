package render

import (
	"fmt"

	"github.com/pthm-cable/minivis/store"
)

// HUDData holds the values shown by the overlay that do not come from the
// store.
type HUDData struct {
	FPS       float64 // measured
	TargetFPS int
	DelayMS   int    // playback delay requested from the simulation
	State     string // connection state
}

// Bottom-anchored layout, measured from the window's lower edge.
const (
	hudMargin     = 10
	hudTextOffset = 20 // text baseline row
	barOffset     = 45 // bar top
	barHeight     = 20
	barInset      = 3
)

// drawHUD draws the tick counter, frame rates, connection line and, when
// the simulation reported a tick limit, the progress bar.
func (r *Renderer) drawHUD(d HUDData, p store.Progress) {
	w, h := r.canvas.Size()
	fw, fh := float32(w), float32(h)
	size := r.opts.FontSize
	c := r.palette.HUD

	r.canvas.Text(fmt.Sprintf("%s | delay %d ms (left/right arrows to change)", d.State, d.DelayMS),
		hudMargin, hudMargin, size, c)

	y := fh - hudTextOffset
	r.canvas.Text(fmt.Sprintf("Tick: %d", p.CurrentTick), hudMargin, y, size, c)
	r.canvas.Text(fmt.Sprintf("FPS: %.2f", d.FPS), hudMargin+90, y, size, c)
	r.canvas.Text(fmt.Sprintf("Desired FPS: %d (use up- and down arrows to change)", d.TargetFPS),
		hudMargin+200, y, size, c)

	frac, ok := p.Fraction()
	if !ok {
		return
	}
	frac = min(max(frac, 0), 1)
	bx, by := float32(hudMargin), fh-barOffset
	bw := fw - 2*hudMargin
	r.canvas.StrokeRect(bx, by, bw, barHeight, 1, r.palette.BarBorder)
	r.canvas.FillRect(bx+barInset, by+barInset, (bw-2*barInset)*float32(frac), barHeight-2*barInset, r.palette.BarFill)
}
