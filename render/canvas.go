// Package render draws the store contents onto a Canvas: rasters at the
// bottom, then vector geometry by kind, then entities, then the HUD.
package render

import "image/color"

// Vec2 is a screen-space position in pixels.
type Vec2 struct {
	X, Y float32
}

// Canvas is the drawing surface. Coordinates are screen pixels with the
// origin at the top left. Point slices are only valid for the duration of
// the call.
type Canvas interface {
	Begin()
	End()
	Clear(c color.RGBA)

	FillTriangles(tris []Vec2, c color.RGBA)               // three vertices per triangle, any winding
	StrokePolygon(pts []Vec2, width float32, c color.RGBA) // closed outline
	Polyline(pts []Vec2, width float32, c color.RGBA)      // open path
	FillCircle(center Vec2, radius float32, c color.RGBA)
	FillRect(x, y, w, h float32, c color.RGBA)
	StrokeRect(x, y, w, h, width float32, c color.RGBA)
	Text(s string, x, y float32, size int32, c color.RGBA)

	Size() (w, h int)
}

// NopCanvas discards all drawing. It is used in headless mode, where the
// draw pass still runs to exercise the lock and the transform.
type NopCanvas struct {
	W, H int
}

func (NopCanvas) Begin()                                           {}
func (NopCanvas) End()                                             {}
func (NopCanvas) Clear(color.RGBA)                                 {}
func (NopCanvas) FillTriangles([]Vec2, color.RGBA)                 {}
func (NopCanvas) StrokePolygon([]Vec2, float32, color.RGBA)        {}
func (NopCanvas) Polyline([]Vec2, float32, color.RGBA)             {}
func (NopCanvas) FillCircle(Vec2, float32, color.RGBA)             {}
func (NopCanvas) FillRect(_, _, _, _ float32, _ color.RGBA)        {}
func (NopCanvas) StrokeRect(_, _, _, _, _ float32, _ color.RGBA)   {}
func (NopCanvas) Text(string, float32, float32, int32, color.RGBA) {}
func (c NopCanvas) Size() (int, int)                               { return c.W, c.H }
