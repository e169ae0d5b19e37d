// Package store holds the live simulation state shared between the
// ingestion goroutine and the render loop.
//
// All mutators require the caller to hold Lock() in write mode; Update does
// this for a batch of mutations. Readers go through View, which holds read
// mode for the duration of the callback.
package store

import (
	"maps"
	"sort"

	"github.com/pthm-cable/minivis/rwlock"
)

// Store is the single owner of entities, vector geometry, rasters, world
// bounds and tick progress.
type Store struct {
	lock *rwlock.RWLock

	progress Progress
	bounds   Bounds
	entities map[int][]Entity
	vectors  [numKinds][]Geometry
	rasters  map[int]Raster
	epoch    uint64 // bumped by Reset
}

// New creates an empty store with default world bounds.
func New() *Store {
	return &Store{
		lock:     rwlock.New(),
		bounds:   DefaultBounds,
		entities: make(map[int][]Entity),
		rasters:  make(map[int]Raster),
	}
}

// Lock returns the lock guarding the store.
func (s *Store) Lock() *rwlock.RWLock {
	return s.lock
}

// Update runs fn with the write lock held once for all of its mutations.
// The lock is released when fn returns normally. If fn panics the lock is
// left held; the ingestion recovery path detects and clears it.
func (s *Store) Update(fn func(s *Store)) {
	s.lock.AcquireWrite()
	fn(s)
	s.lock.ReleaseWrite()
}

// ApplyTick updates the progress counters. Nil arguments leave the
// corresponding value untouched. The tick is taken as received, so a
// simulation that restarts its run on the same connection is followed.
// Requires write mode.
func (s *Store) ApplyTick(current, max *int) {
	if current != nil {
		s.progress.CurrentTick = *current
	}
	if max != nil {
		s.progress.MaxTicks = *max
	}
}

// MarkData records that at least one state message has been applied.
// Requires write mode.
func (s *Store) MarkData() {
	s.progress.HasData = true
}

// ApplyWorldBounds replaces the world bounds unless b is degenerate.
// It reports whether the bounds changed. Requires write mode.
func (s *Store) ApplyWorldBounds(b Bounds) bool {
	if b.Degenerate() {
		return false
	}
	s.bounds = b
	return true
}

// ReplaceEntities sets the entities of one layer, discarding any previous
// entities of that layer. Requires write mode.
func (s *Store) ReplaceEntities(layer int, es []Entity) {
	s.entities[layer] = es
}

// AppendVectors adds geometries to the bucket of the given kind. Geometry
// accumulates across messages until Reset. Geometries whose Kind differs
// from kind are skipped. Requires write mode.
func (s *Store) AppendVectors(kind Kind, gs []Geometry) {
	if kind >= numKinds {
		return
	}
	for _, g := range gs {
		if g.Kind == kind {
			s.vectors[kind] = append(s.vectors[kind], g)
		}
	}
}

// ReplaceRaster sets the raster of one layer. Requires write mode.
func (s *Store) ReplaceRaster(layer int, r Raster) {
	r.Layer = layer
	s.rasters[layer] = r
}

// Reset clears every layer and zeroes the progress counters. World bounds
// keep their last value. Requires write mode.
func (s *Store) Reset() {
	s.epoch++
	s.progress = Progress{}
	clear(s.entities)
	clear(s.rasters)
	for i := range s.vectors {
		s.vectors[i] = nil
	}
}

// View calls fn with a read-only view of the store while holding read mode.
// The snapshot aliases store memory and must not be retained or modified
// after fn returns.
func (s *Store) View(fn func(snap Snapshot)) {
	s.lock.AcquireRead()
	defer s.lock.ReleaseRead()
	fn(Snapshot{s: s})
}

// Copy returns a deep copy of the current state taken under read mode.
func (s *Store) Copy() State {
	var st State
	s.View(func(snap Snapshot) {
		st = snap.Clone()
	})
	return st
}

// Snapshot is a pass-through read view valid only inside View.
type Snapshot struct {
	s *Store
}

// Progress returns the tick counters.
func (v Snapshot) Progress() Progress { return v.s.progress }

// Bounds returns the world bounds.
func (v Snapshot) Bounds() Bounds { return v.s.bounds }

// Epoch counts resets. Data derived from Features stays valid while the
// epoch is unchanged, since buckets only grow between resets.
func (v Snapshot) Epoch() uint64 { return v.s.epoch }

// EntityLayers returns the entity layer ids in ascending order.
func (v Snapshot) EntityLayers() []int {
	return sortedKeys(v.s.entities)
}

// Entities returns the entities of one layer.
func (v Snapshot) Entities(layer int) []Entity { return v.s.entities[layer] }

// Features returns the accumulated geometries of one kind, in arrival order.
func (v Snapshot) Features(kind Kind) []Geometry {
	if kind >= numKinds {
		return nil
	}
	return v.s.vectors[kind]
}

// RasterLayers returns the raster layer ids in ascending order.
func (v Snapshot) RasterLayers() []int {
	return sortedKeys(v.s.rasters)
}

// Raster returns the raster of one layer.
func (v Snapshot) Raster(layer int) (Raster, bool) {
	r, ok := v.s.rasters[layer]
	return r, ok
}

// Clone deep-copies the snapshot into a State.
func (v Snapshot) Clone() State {
	st := State{
		Progress: v.s.progress,
		Bounds:   v.s.bounds,
		Entities: make(map[int][]Entity, len(v.s.entities)),
		Rasters:  make(map[int]Raster, len(v.s.rasters)),
		Vectors:  make(map[Kind][]Geometry),
	}
	for layer, es := range v.s.entities {
		cp := make([]Entity, len(es))
		for i, e := range es {
			cp[i] = Entity{X: e.X, Y: e.Y, Props: maps.Clone(e.Props)}
		}
		st.Entities[layer] = cp
	}
	for layer, r := range v.s.rasters {
		r.Cells = append([]Cell(nil), r.Cells...)
		st.Rasters[layer] = r
	}
	for _, k := range Kinds {
		if gs := v.s.vectors[k]; len(gs) > 0 {
			st.Vectors[k] = append([]Geometry(nil), gs...)
		}
	}
	return st
}

// State is an owned copy of the store contents.
type State struct {
	Progress Progress
	Bounds   Bounds
	Entities map[int][]Entity
	Vectors  map[Kind][]Geometry
	Rasters  map[int]Raster
}

// EntityCount returns the number of entities across all layers.
func (st State) EntityCount() int {
	n := 0
	for _, es := range st.Entities {
		n += len(es)
	}
	return n
}

// FeatureCount returns the number of geometries across all kinds.
func (st State) FeatureCount() int {
	n := 0
	for _, gs := range st.Vectors {
		n += len(gs)
	}
	return n
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
