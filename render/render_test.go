package render

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pthm-cable/minivis/camera"
	"github.com/pthm-cable/minivis/store"
)

type op struct {
	name  string
	pts   []Vec2
	x, y  float32
	w, h  float32
	text  string
	color color.RGBA
}

// recordingCanvas captures every call in order.
type recordingCanvas struct {
	w, h   int
	ops    []op
	begins atomic.Int32
}

func (c *recordingCanvas) Begin() { c.begins.Add(1) }
func (c *recordingCanvas) End()   {}
func (c *recordingCanvas) Clear(col color.RGBA) {
	c.ops = append(c.ops, op{name: "clear", color: col})
}
func (c *recordingCanvas) FillTriangles(tris []Vec2, col color.RGBA) {
	c.ops = append(c.ops, op{name: "fill_triangles", pts: append([]Vec2(nil), tris...), color: col})
}
func (c *recordingCanvas) StrokePolygon(pts []Vec2, _ float32, col color.RGBA) {
	c.ops = append(c.ops, op{name: "stroke_polygon", pts: append([]Vec2(nil), pts...), color: col})
}
func (c *recordingCanvas) Polyline(pts []Vec2, _ float32, col color.RGBA) {
	c.ops = append(c.ops, op{name: "polyline", pts: append([]Vec2(nil), pts...), color: col})
}
func (c *recordingCanvas) FillCircle(p Vec2, _ float32, col color.RGBA) {
	c.ops = append(c.ops, op{name: "circle", x: p.X, y: p.Y, color: col})
}
func (c *recordingCanvas) FillRect(x, y, w, h float32, col color.RGBA) {
	c.ops = append(c.ops, op{name: "fill_rect", x: x, y: y, w: w, h: h, color: col})
}
func (c *recordingCanvas) StrokeRect(x, y, w, h, _ float32, col color.RGBA) {
	c.ops = append(c.ops, op{name: "stroke_rect", x: x, y: y, w: w, h: h, color: col})
}
func (c *recordingCanvas) Text(s string, x, y float32, _ int32, col color.RGBA) {
	c.ops = append(c.ops, op{name: "text", text: s, x: x, y: y, color: col})
}
func (c *recordingCanvas) Size() (int, int) { return c.w, c.h }

func (c *recordingCanvas) count(name string) int {
	n := 0
	for _, o := range c.ops {
		if o.name == name {
			n++
		}
	}
	return n
}

var (
	red    = color.RGBA{R: 255, A: 255}
	green  = color.RGBA{G: 255, A: 80}
	purple = color.RGBA{R: 255, B: 255, A: 255}
	orange = color.RGBA{R: 255, G: 128, A: 255}
	blue   = color.RGBA{B: 255, A: 255}
	white  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func testPalette() Palette {
	return Palette{
		Entities:  []color.RGBA{red, white},
		Rasters:   []color.RGBA{{R: 149, G: 217, B: 104, A: 50}},
		Polygon:   green,
		Line:      purple,
		Ring:      orange,
		Point:     blue,
		Label:     white,
		HUD:       white,
		BarBorder: white,
		BarFill:   green,
	}
}

func newTestRenderer(c *recordingCanvas, layers *Layers) *Renderer {
	cam := camera.New(float32(c.w), float32(c.h), -20)
	return NewRenderer(c, cam, testPalette(), Options{Labels: true, FontSize: 10}, layers, nil)
}

func pt(x, y float64) store.Point { return store.Point{X: x, Y: y} }

func intp(v int) *int { return &v }

func fullStore() *store.Store {
	s := store.New()
	s.Update(func(s *store.Store) {
		s.ApplyTick(intp(10), intp(100))
		s.ReplaceRaster(0, store.Raster{Layer: 0, CellWidth: 1, CellHeight: 1, Cells: []store.Cell{{X: 5, Y: 5, Value: 300}}})
		s.AppendVectors(store.KindMultiPolygon, []store.Geometry{{
			Kind:     store.KindMultiPolygon,
			Polygons: [][][]store.Point{{{pt(0, 0), pt(10, 0), pt(10, 10), pt(0, 0)}}},
		}})
		s.AppendVectors(store.KindPolygon, []store.Geometry{{
			Kind:  store.KindPolygon,
			Rings: [][]store.Point{{pt(20, 20), pt(30, 20), pt(30, 30), pt(20, 20)}},
		}})
		s.AppendVectors(store.KindLineString, []store.Geometry{{Kind: store.KindLineString, Points: []store.Point{pt(0, 0), pt(50, 50)}}})
		s.AppendVectors(store.KindLinearRing, []store.Geometry{{Kind: store.KindLinearRing, Points: []store.Point{pt(1, 1), pt(2, 1), pt(2, 2), pt(1, 1)}}})
		s.AppendVectors(store.KindPoint, []store.Geometry{{Kind: store.KindPoint, Points: []store.Point{pt(50, 50)}}})
		s.AppendVectors(store.KindMultiPoint, []store.Geometry{{Kind: store.KindMultiPoint, Points: []store.Point{pt(60, 60), pt(70, 70)}}})
		s.ReplaceEntities(1, []store.Entity{{X: 25, Y: 75, Props: map[string]any{"speed": 3.5, "name": "bus"}}})
		s.MarkData()
	})
	return s
}

func TestFrameDrawOrder(t *testing.T) {
	c := &recordingCanvas{w: 800, h: 800}
	r := newTestRenderer(c, nil)

	res := r.Frame(fullStore(), HUDData{TargetFPS: 60, State: "connected"})
	if res.Skipped {
		t.Fatal("frame should not be skipped")
	}

	want := []struct {
		name  string
		color color.RGBA
	}{
		{"clear", color.RGBA{}},
		{"fill_rect", color.RGBA{R: 149, G: 217, B: 104, A: 44}},
		{"fill_triangles", green}, // multipolygon
		{"fill_triangles", green}, // polygon
		{"polyline", purple},
		{"stroke_polygon", orange},
		{"circle", blue}, // point
		{"circle", blue}, // multipoint
		{"circle", blue},
		{"circle", white}, // entity on layer 1
		{"text", white},   // name label
		{"text", white},   // speed label
	}
	if len(c.ops) < len(want) {
		t.Fatalf("expected at least %d ops, got %d", len(want), len(c.ops))
	}
	for i, w := range want {
		if c.ops[i].name != w.name || c.ops[i].color != w.color {
			t.Errorf("op %d: got %s %v, want %s %v", i, c.ops[i].name, c.ops[i].color, w.name, w.color)
		}
	}
	if c.ops[10].text != "bus" || c.ops[11].text != "3.5" {
		t.Errorf("labels should be ordered by key, got %q %q", c.ops[10].text, c.ops[11].text)
	}
	if res.Primitives != 11 {
		t.Errorf("expected 11 world primitives, got %d", res.Primitives)
	}

	// HUD comes after every world primitive.
	for _, o := range c.ops[len(want):] {
		if o.name != "text" && o.name != "stroke_rect" && o.name != "fill_rect" {
			t.Errorf("unexpected op after world layers: %s", o.name)
		}
	}
}

func TestFrameTransform(t *testing.T) {
	c := &recordingCanvas{w: 800, h: 400}
	r := newTestRenderer(c, nil)
	s := store.New()
	s.Update(func(s *store.Store) {
		s.ApplyWorldBounds(store.Bounds{MinX: 10, MinY: 10, MaxX: 110, MaxY: 60})
		s.AppendVectors(store.KindPoint, []store.Geometry{{Kind: store.KindPoint, Points: []store.Point{pt(60, 35)}}})
	})

	r.Frame(s, HUDData{})

	for _, o := range c.ops {
		if o.name == "circle" {
			// (60-10)*8-20, (35-10)*8
			if math.Abs(float64(o.x-380)) > 0.01 || math.Abs(float64(o.y-200)) > 0.01 {
				t.Errorf("expected point at (380,200), got (%f,%f)", o.x, o.y)
			}
			return
		}
	}
	t.Error("point was not drawn")
}

func TestFrameSkipsDegenerateBounds(t *testing.T) {
	tests := []struct {
		name   string
		bounds store.Bounds
		w, h   int
	}{
		{"inverted bounds", store.Bounds{MinX: 50, MaxX: 10, MaxY: 10}, 800, 800},
		{"empty viewport", store.DefaultBounds, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &recordingCanvas{w: tt.w, h: tt.h}
			r := newTestRenderer(c, nil)
			s := fullStore()
			s.Update(func(s *store.Store) { s.ApplyWorldBounds(tt.bounds) })

			res := r.Frame(s, HUDData{})
			if !res.Skipped || res.Primitives != 0 {
				t.Errorf("expected skipped frame, got %+v", res)
			}
			if c.count("circle") != 0 || c.count("fill_triangles") != 0 {
				t.Error("no world geometry should be drawn")
			}
			if c.count("text") == 0 {
				t.Error("HUD should still be drawn")
			}
		})
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name      string
		current   int
		max       int
		wantBar   bool
		wantWidth float32
	}{
		{"no max ticks", 10, 0, false, 0},
		{"ten percent", 10, 100, true, (780 - 6) * 0.1},
		{"complete", 100, 100, true, 780 - 6},
		{"overshoot clamps", 150, 100, true, 780 - 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &recordingCanvas{w: 800, h: 600}
			r := newTestRenderer(c, nil)
			s := store.New()
			s.Update(func(s *store.Store) { s.ApplyTick(intp(tt.current), intp(tt.max)) })

			r.Frame(s, HUDData{})

			if got := c.count("stroke_rect") == 1; got != tt.wantBar {
				t.Fatalf("bar drawn = %v, want %v", got, tt.wantBar)
			}
			if !tt.wantBar {
				return
			}
			for _, o := range c.ops {
				if o.name == "fill_rect" && o.color == green {
					if math.Abs(float64(o.w-tt.wantWidth)) > 0.01 {
						t.Errorf("bar fill width %f, want %f", o.w, tt.wantWidth)
					}
				}
			}
		})
	}
}

func TestHUDText(t *testing.T) {
	c := &recordingCanvas{w: 800, h: 600}
	r := newTestRenderer(c, nil)
	s := store.New()
	s.Update(func(s *store.Store) { s.ApplyTick(intp(42), nil) })

	r.Frame(s, HUDData{FPS: 59.5, TargetFPS: 63, DelayMS: 13, State: "connected"})

	want := map[string]bool{
		"Tick: 42":   false,
		"FPS: 59.50": false,
		"Desired FPS: 63 (use up- and down arrows to change)": false,
		"connected | delay 13 ms (left/right arrows to change)": false,
	}
	for _, o := range c.ops {
		if _, ok := want[o.text]; ok {
			want[o.text] = true
		}
	}
	for text, seen := range want {
		if !seen {
			t.Errorf("missing HUD text %q", text)
		}
	}
}

func TestLayerToggles(t *testing.T) {
	layers := NewLayers()
	layers.SetEnabled(LayerEntities, false)
	layers.SetEnabled(LayerHUD, false)
	if id, on, ok := layers.HandleKey("1"); !ok || id != LayerRasters || on {
		t.Fatalf("key 1 should disable rasters, got %s %v %v", id, on, ok)
	}

	c := &recordingCanvas{w: 800, h: 800}
	r := newTestRenderer(c, layers)
	r.Frame(fullStore(), HUDData{})

	if c.count("fill_rect") != 0 {
		t.Error("rasters should be hidden")
	}
	if c.count("text") != 0 {
		t.Error("labels and HUD should be hidden with entities and HUD off")
	}
	if c.count("circle") != 3 {
		t.Errorf("expected only point and multipoint circles, got %d", c.count("circle"))
	}
}

func TestPaletteRasterAlpha(t *testing.T) {
	p := testPalette()
	tests := []struct {
		value int
		alpha uint8
	}{
		{0, 0},
		{128, 128},
		{255, 255},
		{256, 0},
		{300, 44},
		{-1, 255},
	}
	for _, tt := range tests {
		if got := p.Raster(0, tt.value).A; got != tt.alpha {
			t.Errorf("Raster(0, %d).A = %d, want %d", tt.value, got, tt.alpha)
		}
	}
	if p.Raster(5, 0).R != 149 {
		t.Error("raster colors should cycle by layer")
	}
}

func TestPaletteEntityCycle(t *testing.T) {
	p := testPalette()
	for layer, want := range map[int]color.RGBA{0: red, 1: white, 2: red, -1: white} {
		if got := p.Entity(layer); got != want {
			t.Errorf("Entity(%d) = %v, want %v", layer, got, want)
		}
	}
	if got := (Palette{}).Entity(3); got != white {
		t.Errorf("empty palette should fall back to white, got %v", got)
	}
}

func area(pts []store.Point, idx []int) float64 {
	var a float64
	for i := 0; i+2 < len(idx); i += 3 {
		p, q, r := pts[idx[i]], pts[idx[i+1]], pts[idx[i+2]]
		a += math.Abs((q.X-p.X)*(r.Y-p.Y)-(q.Y-p.Y)*(r.X-p.X)) / 2
	}
	return a
}

func TestTriangulate(t *testing.T) {
	tests := []struct {
		name      string
		pts       []store.Point
		triangles int
		area      float64
	}{
		{"too few", []store.Point{pt(0, 0), pt(1, 1)}, 0, 0},
		{"triangle", []store.Point{pt(0, 0), pt(4, 0), pt(0, 4)}, 1, 8},
		{"closed square", []store.Point{pt(0, 0), pt(10, 0), pt(10, 10), pt(0, 10), pt(0, 0)}, 2, 100},
		{"clockwise square", []store.Point{pt(0, 0), pt(0, 10), pt(10, 10), pt(10, 0)}, 2, 100},
		{"concave L", []store.Point{pt(0, 0), pt(20, 0), pt(20, 10), pt(10, 10), pt(10, 20), pt(0, 20)}, 4, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := Triangulate(tt.pts)
			if len(idx) != 3*tt.triangles {
				t.Fatalf("expected %d triangles, got %d indices", tt.triangles, len(idx))
			}
			if got := area(tt.pts, idx); math.Abs(got-tt.area) > 1e-9 {
				t.Errorf("triangulated area %v, want %v", got, tt.area)
			}
		})
	}
}

func TestPolygonFillsAreTriangulatedOnce(t *testing.T) {
	c := &recordingCanvas{w: 800, h: 800}
	r := newTestRenderer(c, nil)
	s := fullStore()

	r.Frame(s, HUDData{})
	if r.fills.built != 2 {
		t.Fatalf("expected 2 rings triangulated on the first frame, got %d", r.fills.built)
	}
	first := append([]op(nil), c.ops...)

	c.ops = nil
	r.Frame(s, HUDData{})
	if r.fills.built != 2 {
		t.Errorf("second frame triangulated again: %d rings built", r.fills.built)
	}
	for i, o := range c.ops {
		if o.name == "fill_triangles" && fmt.Sprint(o.pts) != fmt.Sprint(first[i].pts) {
			t.Errorf("op %d: cached fill differs from the first frame", i)
		}
	}

	// A new polygon only costs its own ring.
	s.Update(func(s *store.Store) {
		s.AppendVectors(store.KindPolygon, []store.Geometry{{
			Kind:  store.KindPolygon,
			Rings: [][]store.Point{{pt(40, 40), pt(50, 40), pt(50, 50)}},
		}})
	})
	r.Frame(s, HUDData{})
	if r.fills.built != 3 {
		t.Errorf("expected 3 rings built after an append, got %d", r.fills.built)
	}

	// After a reset the cache is rebuilt from the new contents.
	s.Update(func(s *store.Store) {
		s.Reset()
		s.AppendVectors(store.KindPolygon, []store.Geometry{{
			Kind:  store.KindPolygon,
			Rings: [][]store.Point{{pt(0, 0), pt(20, 0), pt(20, 10), pt(10, 10), pt(10, 20), pt(0, 20)}},
		}})
	})
	c.ops = nil
	r.Frame(s, HUDData{})
	if r.fills.built != 4 {
		t.Errorf("expected the reset bucket to be triangulated, got %d rings built", r.fills.built)
	}
	if n := c.count("fill_triangles"); n != 1 {
		t.Fatalf("expected one fill after reset, got %d", n)
	}
	for _, o := range c.ops {
		if o.name == "fill_triangles" && len(o.pts) != 12 {
			t.Errorf("expected the L ring as 4 triangles, got %d vertices", len(o.pts))
		}
	}
}

func TestCycleRun(t *testing.T) {
	c := &recordingCanvas{w: 200, h: 200}
	r := newTestRenderer(c, nil)
	s := fullStore()

	var frames atomic.Int32
	var rate atomic.Int32
	rate.Store(200)
	cyc := &Cycle{
		Renderer: r,
		Canvas:   c,
		Store:    s,
		Rate:     func() int { return int(rate.Load()) },
		HUD:      func() HUDData { return HUDData{State: "connected"} },
		OnFrame: func(res FrameResult) {
			if frames.Add(1) == 2 {
				rate.Store(400)
			}
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := cyc.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if n := frames.Load(); n < 5 {
		t.Errorf("expected several frames, got %d", n)
	}
	if int(c.begins.Load()) != int(frames.Load()) {
		t.Errorf("Begin called %d times for %d frames", c.begins.Load(), frames.Load())
	}
}

func TestNopCanvas(t *testing.T) {
	c := NopCanvas{W: 320, H: 240}
	cam := camera.New(320, 240, 0)
	r := NewRenderer(c, cam, testPalette(), Options{}, NewLayers(), nil)
	res := r.Frame(fullStore(), HUDData{})
	if res.Skipped || res.Primitives == 0 {
		t.Errorf("expected a full pass on the nop canvas, got %+v", res)
	}
	if w, h := c.Size(); fmt.Sprint(w, h) != "320 240" {
		t.Errorf("unexpected size %dx%d", w, h)
	}
}
