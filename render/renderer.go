package render

import (
	"fmt"
	"slices"

	"github.com/pthm-cable/minivis/camera"
	"github.com/pthm-cable/minivis/config"
	"github.com/pthm-cable/minivis/store"
	"github.com/pthm-cable/minivis/telemetry"
)

// Options holds drawing sizes.
type Options struct {
	LineWidth   float32
	PointRadius float32
	FontSize    int32
	Labels      bool // entity property labels
}

// OptionsFromConfig converts the render config section.
func OptionsFromConfig(rc config.RenderConfig) Options {
	return Options{
		LineWidth:   rc.LineWidth,
		PointRadius: rc.PointRadius,
		FontSize:    rc.FontSize,
		Labels:      rc.Labels,
	}
}

// FrameResult summarizes one draw pass.
type FrameResult struct {
	Skipped    bool // world bounds or viewport were degenerate
	Primitives int  // draw calls issued for world content
	Progress   store.Progress
}

// Renderer draws the store onto a canvas.
type Renderer struct {
	canvas  Canvas
	cam     *camera.Camera
	palette Palette
	opts    Options
	layers  *Layers
	perf    *telemetry.PerfCollector

	buf   []Vec2
	tris  []Vec2
	fills fillCache
}

// NewRenderer creates a renderer. layers and perf may be nil.
func NewRenderer(c Canvas, cam *camera.Camera, p Palette, opts Options, layers *Layers, perf *telemetry.PerfCollector) *Renderer {
	if opts.LineWidth <= 0 {
		opts.LineWidth = 1
	}
	if opts.PointRadius <= 0 {
		opts.PointRadius = 1
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 14
	}
	return &Renderer{
		canvas:  c,
		cam:     cam,
		palette: p,
		opts:    opts,
		layers:  layers,
		perf:    perf,
	}
}

// Camera returns the transform used for drawing.
func (r *Renderer) Camera() *camera.Camera { return r.cam }

// Layers returns the layer visibility registry, possibly nil.
func (r *Renderer) Layers() *Layers { return r.layers }

// Frame clears the canvas and draws the world under one read acquisition,
// then draws the HUD after the lock is released. The caller brackets it
// with Canvas.Begin and Canvas.End.
func (r *Renderer) Frame(s *store.Store, hud HUDData) FrameResult {
	var res FrameResult
	r.canvas.Clear(r.palette.Background)

	r.phase(telemetry.PhaseScene)
	s.View(func(snap store.Snapshot) {
		res.Progress = snap.Progress()

		w, h := r.canvas.Size()
		r.cam.Resize(float32(w), float32(h))
		if !r.cam.Fit(snap.Bounds()) {
			res.Skipped = true
			return
		}
		res.Primitives = r.drawWorld(snap)
	})

	r.phase(telemetry.PhaseHUD)
	if r.layers.IsEnabled(LayerHUD) {
		r.drawHUD(hud, res.Progress)
	}
	return res
}

func (r *Renderer) phase(name string) {
	if r.perf != nil {
		r.perf.StartPhase(name)
	}
}

// drawWorld issues the layered draw calls. Requires read mode.
func (r *Renderer) drawWorld(snap store.Snapshot) int {
	n := 0
	if r.layers.IsEnabled(LayerRasters) {
		n += r.drawRasters(snap)
	}
	r.fills.sync(snap)
	if r.layers.IsEnabled(LayerMultiPolygons) {
		for i, g := range snap.Features(store.KindMultiPolygon) {
			polys := r.fills.multi(i, g)
			for j, poly := range g.Polygons {
				for k, ring := range poly {
					r.canvas.FillTriangles(r.triangles(ring, polys[j][k]), r.palette.Polygon)
					n++
				}
			}
		}
	}
	if r.layers.IsEnabled(LayerPolygons) {
		for i, g := range snap.Features(store.KindPolygon) {
			rings := r.fills.polygon(i, g)
			for k, ring := range g.Rings {
				r.canvas.FillTriangles(r.triangles(ring, rings[k]), r.palette.Polygon)
				n++
			}
		}
	}
	if r.layers.IsEnabled(LayerLines) {
		for _, g := range snap.Features(store.KindLineString) {
			r.canvas.Polyline(r.project(g.Points), r.opts.LineWidth, r.palette.Line)
			n++
		}
	}
	if r.layers.IsEnabled(LayerRings) {
		for _, g := range snap.Features(store.KindLinearRing) {
			r.canvas.StrokePolygon(r.project(g.Points), r.opts.LineWidth, r.palette.Ring)
			n++
		}
	}
	if r.layers.IsEnabled(LayerPoints) {
		n += r.drawPoints(snap.Features(store.KindPoint))
	}
	if r.layers.IsEnabled(LayerMultiPoints) {
		n += r.drawPoints(snap.Features(store.KindMultiPoint))
	}
	if r.layers.IsEnabled(LayerEntities) {
		n += r.drawEntities(snap)
	}
	return n
}

func (r *Renderer) drawRasters(snap store.Snapshot) int {
	n := 0
	sx, sy := r.cam.Scale()
	for _, layer := range snap.RasterLayers() {
		raster, _ := snap.Raster(layer)
		w := float32(raster.CellWidth) * sx
		h := float32(raster.CellHeight) * sy
		for _, cell := range raster.Cells {
			x, y := r.cam.WorldToScreen(cell.X, cell.Y)
			// Cells are centered on their coordinate; +1 closes seams.
			r.canvas.FillRect(x-w/2, y-h/2, w+1, h+1, r.palette.Raster(layer, cell.Value))
			n++
		}
	}
	return n
}

func (r *Renderer) drawPoints(gs []store.Geometry) int {
	n := 0
	for _, g := range gs {
		for _, p := range g.Points {
			x, y := r.cam.WorldToScreen(p.X, p.Y)
			r.canvas.FillCircle(Vec2{x, y}, r.opts.PointRadius, r.palette.Point)
			n++
		}
	}
	return n
}

func (r *Renderer) drawEntities(snap store.Snapshot) int {
	n := 0
	labels := r.opts.Labels && r.layers.IsEnabled(LayerLabels)
	for _, layer := range snap.EntityLayers() {
		c := r.palette.Entity(layer)
		for _, e := range snap.Entities(layer) {
			x, y := r.cam.WorldToScreen(e.X, e.Y)
			r.canvas.FillCircle(Vec2{x, y}, r.opts.PointRadius, c)
			n++
			if labels && len(e.Props) > 0 {
				n += r.drawLabels(e.Props, x, y)
			}
		}
	}
	return n
}

// drawLabels stacks property values below the entity, ordered by key.
func (r *Renderer) drawLabels(props map[string]any, x, y float32) int {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for i, k := range keys {
		r.canvas.Text(fmt.Sprint(props[k]), x, y+float32(i)*float32(r.opts.FontSize), r.opts.FontSize, r.palette.Label)
	}
	return len(keys)
}

// project maps world points into a scratch buffer. The result is only
// valid until the next call.
func (r *Renderer) project(pts []store.Point) []Vec2 {
	r.buf = r.buf[:0]
	for _, p := range pts {
		x, y := r.cam.WorldToScreen(p.X, p.Y)
		r.buf = append(r.buf, Vec2{x, y})
	}
	return r.buf
}

// triangles projects ring and expands the cached indices into screen
// triangles. The result is only valid until the next call.
func (r *Renderer) triangles(ring []store.Point, idx []int) []Vec2 {
	pts := r.project(ring)
	r.tris = r.tris[:0]
	for _, i := range idx {
		r.tris = append(r.tris, pts[i])
	}
	return r.tris
}
