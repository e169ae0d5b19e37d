// Package camera maps simulation world coordinates onto the window.
package camera

import "github.com/pthm-cable/minivis/store"

// Camera fits the world bounds to the viewport. With the default zoom and
// no pan a world point (x, y) lands at
//
//	((x - MinX) * ScaleX + Border, (y - MinY) * ScaleY)
//
// Zoom and pan are applied on top of that mapping for interactive viewing.
type Camera struct {
	// Viewport dimensions (screen size)
	ViewportW, ViewportH float32

	// Horizontal pixel offset added after scaling
	Border float32

	// Zoom level (1.0 = fitted) and screen-space pan
	Zoom       float32
	PanX, PanY float32

	// Zoom constraints
	MinZoom, MaxZoom float32

	bounds         store.Bounds
	scaleX, scaleY float64
	ok             bool
}

// New creates a camera for the given viewport and border offset, fitted to
// the default world bounds.
func New(viewportW, viewportH, border float32) *Camera {
	c := &Camera{
		ViewportW: viewportW,
		ViewportH: viewportH,
		Border:    border,
		Zoom:      1.0,
		MinZoom:   0.25,
		MaxZoom:   16.0,
	}
	c.Fit(store.DefaultBounds)
	return c
}

// Fit recomputes the scale factors for b. It reports false, and leaves the
// camera unusable until the next successful Fit, when either extent of b or
// of the viewport is not positive.
func (c *Camera) Fit(b store.Bounds) bool {
	c.bounds = b
	dx, dy := b.Width(), b.Height()
	if dx <= 0 || dy <= 0 || c.ViewportW <= 0 || c.ViewportH <= 0 {
		c.ok = false
		return false
	}
	c.scaleX = float64(c.ViewportW) / dx
	c.scaleY = float64(c.ViewportH) / dy
	c.ok = true
	return true
}

// Ready reports whether the last Fit produced a usable transform.
func (c *Camera) Ready() bool { return c.ok }

// Scale returns the world-to-pixel factors, including zoom.
func (c *Camera) Scale() (sx, sy float32) {
	return float32(c.scaleX) * c.Zoom, float32(c.scaleY) * c.Zoom
}

// WorldToScreen converts world coordinates to screen coordinates.
func (c *Camera) WorldToScreen(wx, wy float64) (sx, sy float32) {
	fx := float32((wx-c.bounds.MinX)*c.scaleX) + c.Border
	fy := float32((wy - c.bounds.MinY) * c.scaleY)
	return fx*c.Zoom + c.PanX, fy*c.Zoom + c.PanY
}

// ScreenToWorld converts screen coordinates to world coordinates.
func (c *Camera) ScreenToWorld(sx, sy float32) (wx, wy float64) {
	if !c.ok {
		return 0, 0
	}
	fx := (sx - c.PanX) / c.Zoom
	fy := (sy - c.PanY) / c.Zoom
	wx = float64(fx-c.Border)/c.scaleX + c.bounds.MinX
	wy = float64(fy)/c.scaleY + c.bounds.MinY
	return wx, wy
}

// Resize updates viewport dimensions and refits the current bounds.
func (c *Camera) Resize(viewportW, viewportH float32) {
	if viewportW == c.ViewportW && viewportH == c.ViewportH {
		return
	}
	c.ViewportW = viewportW
	c.ViewportH = viewportH
	c.Fit(c.bounds)
}

// Pan moves the view by the given delta in screen pixels.
func (c *Camera) Pan(dx, dy float32) {
	c.PanX += dx
	c.PanY += dy
}

// SetZoom sets the zoom level, clamped to min/max, keeping the screen
// point (px, py) over the same world position.
func (c *Camera) SetZoom(zoom, px, py float32) {
	zoom = clamp(zoom, c.MinZoom, c.MaxZoom)
	// Fitted-space point under the pivot stays put.
	fx := (px - c.PanX) / c.Zoom
	fy := (py - c.PanY) / c.Zoom
	c.Zoom = zoom
	c.PanX = px - fx*zoom
	c.PanY = py - fy*zoom
}

// ZoomBy multiplies the current zoom by factor around the viewport center.
func (c *Camera) ZoomBy(factor float32) {
	c.SetZoom(c.Zoom*factor, c.ViewportW/2, c.ViewportH/2)
}

// Reset drops zoom and pan, restoring the fitted view.
func (c *Camera) Reset() {
	c.Zoom = 1.0
	c.PanX, c.PanY = 0, 0
}

// clamp restricts a value to a range.
func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
