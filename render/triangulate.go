package render

import "github.com/pthm-cable/minivis/store"

// Triangulate splits a simple polygon into triangles by ear clipping and
// returns indices into pts, three per triangle. A closing vertex equal to
// the first is ignored. Self-intersecting input falls back to a fan over the
// remaining vertices. The indices stay valid under any affine transform of
// pts, so a ring can be triangulated once in world space and projected every
// frame.
func Triangulate(pts []store.Point) []int {
	n := len(pts)
	if n > 1 && pts[0] == pts[n-1] {
		n--
	}
	if n < 3 {
		return nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if signedArea(pts[:n]) < 0 {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			idx[i], idx[j] = idx[j], idx[i]
		}
	}

	out := make([]int, 0, 3*(n-2))
	for len(idx) > 3 {
		ear := -1
		for i := range idx {
			ia := idx[(i+len(idx)-1)%len(idx)]
			ib := idx[i]
			ic := idx[(i+1)%len(idx)]
			a, b, c := pts[ia], pts[ib], pts[ic]
			if cross(a, b, c) <= 0 {
				continue // reflex or collinear
			}
			if containsAny(pts, idx, a, b, c) {
				continue
			}
			ear = i
			out = append(out, ia, ib, ic)
			break
		}
		if ear < 0 {
			for i := 1; i+1 < len(idx); i++ {
				out = append(out, idx[0], idx[i], idx[i+1])
			}
			return out
		}
		idx = append(idx[:ear], idx[ear+1:]...)
	}
	return append(out, idx[0], idx[1], idx[2])
}

func signedArea(pts []store.Point) float64 {
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return a / 2
}

// cross is the z component of (b-a) x (c-b).
func cross(a, b, c store.Point) float64 {
	return (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
}

func containsAny(pts []store.Point, idx []int, a, b, c store.Point) bool {
	for _, k := range idx {
		p := pts[k]
		if p == a || p == b || p == c {
			continue
		}
		if cross(a, b, p) >= 0 && cross(b, c, p) >= 0 && cross(c, a, p) >= 0 {
			return true
		}
	}
	return false
}

// fillCache holds ring triangulations for the polygon buckets. Buckets only
// grow between resets, so entry i always belongs to geometry i of the bucket.
type fillCache struct {
	epoch        uint64
	polygons     [][][]int // geometry -> ring -> indices
	multiPolygon [][][][]int
	built        int // rings triangulated since creation
}

// sync drops every entry when the store was reset or a bucket shrank.
func (fc *fillCache) sync(snap store.Snapshot) {
	if fc.epoch == snap.Epoch() &&
		len(fc.polygons) <= len(snap.Features(store.KindPolygon)) &&
		len(fc.multiPolygon) <= len(snap.Features(store.KindMultiPolygon)) {
		return
	}
	fc.epoch = snap.Epoch()
	fc.polygons = fc.polygons[:0]
	fc.multiPolygon = fc.multiPolygon[:0]
}

func (fc *fillCache) rings(rings [][]store.Point) [][]int {
	out := make([][]int, len(rings))
	for i, ring := range rings {
		out[i] = Triangulate(ring)
		fc.built++
	}
	return out
}

// polygon returns the triangulation of polygon geometry i.
func (fc *fillCache) polygon(i int, g store.Geometry) [][]int {
	for len(fc.polygons) <= i {
		fc.polygons = append(fc.polygons, nil)
	}
	if fc.polygons[i] == nil {
		fc.polygons[i] = fc.rings(g.Rings)
	}
	return fc.polygons[i]
}

// multi returns the triangulation of multipolygon geometry i.
func (fc *fillCache) multi(i int, g store.Geometry) [][][]int {
	for len(fc.multiPolygon) <= i {
		fc.multiPolygon = append(fc.multiPolygon, nil)
	}
	if fc.multiPolygon[i] == nil {
		polys := make([][][]int, len(g.Polygons))
		for j, poly := range g.Polygons {
			polys[j] = fc.rings(poly)
		}
		fc.multiPolygon[i] = polys
	}
	return fc.multiPolygon[i]
}
