// Package rlcanvas implements render.Canvas on top of raylib. All calls must
// happen on the thread that opened the window.
package rlcanvas

import (
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/minivis/render"
)

// Canvas draws into the current raylib window.
type Canvas struct{}

// New returns a canvas for the open window.
func New() *Canvas {
	return &Canvas{}
}

func (c *Canvas) Begin() { rl.BeginDrawing() }
func (c *Canvas) End()   { rl.EndDrawing() }

func (c *Canvas) Clear(col color.RGBA) {
	rl.ClearBackground(rl.Color(col))
}

// FillTriangles draws each triangle counter-clockwise on screen, which is
// the only winding raylib fills.
func (c *Canvas) FillTriangles(tris []render.Vec2, col color.RGBA) {
	for i := 0; i+2 < len(tris); i += 3 {
		a, b, cc := tris[i], tris[i+1], tris[i+2]
		// y grows downwards, so a positive shoelace sign is clockwise.
		if (b.X-a.X)*(cc.Y-a.Y)-(b.Y-a.Y)*(cc.X-a.X) > 0 {
			b, cc = cc, b
		}
		rl.DrawTriangle(vec(a), vec(b), vec(cc), rl.Color(col))
	}
}

func (c *Canvas) StrokePolygon(pts []render.Vec2, width float32, col color.RGBA) {
	if len(pts) < 2 {
		return
	}
	c.Polyline(pts, width, col)
	if last := pts[len(pts)-1]; last != pts[0] {
		rl.DrawLineEx(vec(last), vec(pts[0]), width, rl.Color(col))
	}
}

func (c *Canvas) Polyline(pts []render.Vec2, width float32, col color.RGBA) {
	for i := 0; i+1 < len(pts); i++ {
		rl.DrawLineEx(vec(pts[i]), vec(pts[i+1]), width, rl.Color(col))
	}
}

func (c *Canvas) FillCircle(center render.Vec2, radius float32, col color.RGBA) {
	rl.DrawCircleV(vec(center), radius, rl.Color(col))
}

func (c *Canvas) FillRect(x, y, w, h float32, col color.RGBA) {
	rl.DrawRectangleRec(rl.Rectangle{X: x, Y: y, Width: w, Height: h}, rl.Color(col))
}

func (c *Canvas) StrokeRect(x, y, w, h, width float32, col color.RGBA) {
	rl.DrawRectangleLinesEx(rl.Rectangle{X: x, Y: y, Width: w, Height: h}, width, rl.Color(col))
}

func (c *Canvas) Text(s string, x, y float32, size int32, col color.RGBA) {
	rl.DrawText(s, int32(x), int32(y), size, rl.Color(col))
}

func (c *Canvas) Size() (int, int) {
	return rl.GetScreenWidth(), rl.GetScreenHeight()
}

func vec(v render.Vec2) rl.Vector2 {
	return rl.Vector2{X: v.X, Y: v.Y}
}

var _ render.Canvas = (*Canvas)(nil)
