package render

import (
	"maps"

	"github.com/pthm-cable/minivis/camera"
	"github.com/pthm-cable/minivis/store"
)

// Selection is a copy of one entity chosen by the user.
type Selection struct {
	Layer  int
	Index  int
	Entity store.Entity
}

// Pick returns the entity drawn closest to the screen point (sx, sy),
// within radius pixels. The camera must already be fitted to the store's
// bounds.
func Pick(s *store.Store, cam *camera.Camera, sx, sy, radius float32) (Selection, bool) {
	var (
		best  Selection
		found bool
	)
	bestDist := radius * radius
	s.View(func(snap store.Snapshot) {
		if !cam.Ready() {
			return
		}
		for _, layer := range snap.EntityLayers() {
			for i, e := range snap.Entities(layer) {
				x, y := cam.WorldToScreen(e.X, e.Y)
				dx, dy := x-sx, y-sy
				if d := dx*dx + dy*dy; d <= bestDist {
					bestDist = d
					best = Selection{Layer: layer, Index: i, Entity: cloneEntity(e)}
					found = true
				}
			}
		}
	})
	return best, found
}

// Track refreshes sel after the entity list was replaced. Entities carry no
// identity, so the nearest entity of the same layer to the previous
// position is taken as the same one. It fails once the layer is empty.
func Track(s *store.Store, sel Selection) (Selection, bool) {
	found := false
	s.View(func(snap store.Snapshot) {
		bestDist := 0.0
		for i, e := range snap.Entities(sel.Layer) {
			dx, dy := e.X-sel.Entity.X, e.Y-sel.Entity.Y
			d := dx*dx + dy*dy
			if !found || d < bestDist {
				bestDist = d
				sel.Index = i
				sel.Entity = cloneEntity(e)
				found = true
			}
		}
	})
	return sel, found
}

func cloneEntity(e store.Entity) store.Entity {
	return store.Entity{X: e.X, Y: e.Y, Props: maps.Clone(e.Props)}
}
