// Package protocol decodes the JSON frames a simulation streams to the
// visualization and encodes the control frames sent back.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/pthm-cable/minivis/store"
)

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("malformed frame")

// Frame is one decoded inbound message. Nil or empty fields were absent.
type Frame struct {
	CurrentTick *int
	MaxTicks    *int
	Bounds      *store.Bounds
	Entities    map[int][]store.Entity
	Vectors     []store.Geometry
	Rasters     []store.Raster
}

// Empty reports whether the frame carries no recognized key.
func (f *Frame) Empty() bool {
	return f.CurrentTick == nil && f.MaxTicks == nil && f.Bounds == nil &&
		f.Entities == nil && f.Vectors == nil && f.Rasters == nil
}

// Apply writes every present field into s. The caller must hold the store's
// write lock; one frame is applied under a single acquisition.
func (f *Frame) Apply(s *store.Store) {
	s.ApplyTick(f.CurrentTick, f.MaxTicks)
	if f.Bounds != nil {
		s.ApplyWorldBounds(*f.Bounds)
	}
	for layer, es := range f.Entities {
		s.ReplaceEntities(layer, es)
	}
	if len(f.Vectors) > 0 {
		for _, k := range store.Kinds {
			s.AppendVectors(k, f.Vectors)
		}
	}
	for _, r := range f.Rasters {
		s.ReplaceRaster(r.Layer, r)
	}
	s.MarkData()
}

type wireFrame struct {
	CurrentTick *float64          `json:"currentTick"`
	MaxTicks    *float64          `json:"maxTicks"`
	T           *int              `json:"t"`
	Entities    json.RawMessage   `json:"entities"`
	WorldSize   *wireBounds       `json:"worldSize"`
	Vectors     []json.RawMessage `json:"vectors"`
	Rasters     []wireRaster      `json:"rasters"`
}

type wireBounds struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

type wireEntity struct {
	X float64        `json:"x"`
	Y float64        `json:"y"`
	P map[string]any `json:"p"`
}

type wireLayer struct {
	F []wireFeature `json:"f"`
	T *int          `json:"t"`
}

type wireFeature struct {
	Geometry *wireGeometry `json:"geometry"`
}

type wireGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type wireRaster struct {
	T          int         `json:"t"`
	CellWidth  float64     `json:"cellWidth"`
	CellHeight float64     `json:"cellHeight"`
	Cells      [][]float64 `json:"cells"`
}

// Decode parses one inbound payload. An empty payload, or a JSON null,
// returns (nil, nil): there is nothing to apply.
func Decode(b []byte) (*Frame, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	if b[0] != '{' {
		return nil, fmt.Errorf("%w: top level is not an object", ErrMalformed)
	}

	var w wireFrame
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	f := &Frame{}
	if w.CurrentTick != nil {
		v := int(*w.CurrentTick)
		f.CurrentTick = &v
	}
	if w.MaxTicks != nil {
		v := int(*w.MaxTicks)
		f.MaxTicks = &v
	}
	if w.WorldSize != nil {
		f.Bounds = &store.Bounds{
			MinX: w.WorldSize.MinX,
			MinY: w.WorldSize.MinY,
			MaxX: w.WorldSize.MaxX,
			MaxY: w.WorldSize.MaxY,
		}
	}

	var err error
	defaultLayer := 0
	if w.T != nil {
		defaultLayer = *w.T
	}
	if f.Entities, err = decodeEntities(w.Entities, defaultLayer); err != nil {
		return nil, err
	}
	if f.Vectors, err = decodeVectors(w.Vectors); err != nil {
		return nil, err
	}
	if f.Rasters, err = decodeRasters(w.Rasters); err != nil {
		return nil, err
	}
	return f, nil
}

// decodeEntities accepts either a layer-id keyed object or a bare array
// that belongs to defaultLayer.
func decodeEntities(raw json.RawMessage, defaultLayer int) (map[int][]store.Entity, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	out := make(map[int][]store.Entity)
	switch raw[0] {
	case '{':
		var byLayer map[string][]wireEntity
		if err := json.Unmarshal(raw, &byLayer); err != nil {
			return nil, fmt.Errorf("%w: entities: %v", ErrMalformed, err)
		}
		for key, list := range byLayer {
			layer, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("%w: entity layer %q is not an integer", ErrMalformed, key)
			}
			out[layer] = convertEntities(list)
		}
	case '[':
		var list []wireEntity
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: entities: %v", ErrMalformed, err)
		}
		out[defaultLayer] = convertEntities(list)
	default:
		return nil, fmt.Errorf("%w: entities must be an object or array", ErrMalformed)
	}
	return out, nil
}

func convertEntities(list []wireEntity) []store.Entity {
	es := make([]store.Entity, len(list))
	for i, e := range list {
		es[i] = store.Entity{X: e.X, Y: e.Y, Props: e.P}
	}
	return es
}

func decodeVectors(layers []json.RawMessage) ([]store.Geometry, error) {
	if layers == nil {
		return nil, nil
	}
	gs := []store.Geometry{}
	for _, raw := range layers {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}

		var features []wireFeature
		layer := -1
		switch raw[0] {
		case '{':
			var l wireLayer
			if err := json.Unmarshal(raw, &l); err != nil {
				return nil, fmt.Errorf("%w: vector layer: %v", ErrMalformed, err)
			}
			features = l.F
			if l.T != nil {
				layer = *l.T
			}
		case '[':
			if err := json.Unmarshal(raw, &features); err != nil {
				return nil, fmt.Errorf("%w: vector layer: %v", ErrMalformed, err)
			}
		default:
			return nil, fmt.Errorf("%w: vector layer must be an object or array", ErrMalformed)
		}

		for _, feat := range features {
			if feat.Geometry == nil {
				continue
			}
			g, ok, err := decodeGeometry(feat.Geometry)
			if err != nil {
				return nil, err
			}
			if ok {
				g.Layer = layer
				gs = append(gs, g)
			}
		}
	}
	return gs, nil
}

// decodeGeometry converts GeoJSON coordinates for the six supported kinds.
// Unknown geometry types report ok=false.
func decodeGeometry(wg *wireGeometry) (g store.Geometry, ok bool, err error) {
	kind, known := store.ParseKind(wg.Type)
	if !known {
		return g, false, nil
	}
	g.Kind = kind

	fail := func(err error) (store.Geometry, bool, error) {
		return store.Geometry{}, false, fmt.Errorf("%w: %s coordinates: %v", ErrMalformed, wg.Type, err)
	}

	switch kind {
	case store.KindPoint:
		var c []float64
		if err := json.Unmarshal(wg.Coordinates, &c); err != nil {
			return fail(err)
		}
		p, err := toPoint(c)
		if err != nil {
			return fail(err)
		}
		g.Points = []store.Point{p}
	case store.KindMultiPoint, store.KindLineString, store.KindLinearRing:
		var c [][]float64
		if err := json.Unmarshal(wg.Coordinates, &c); err != nil {
			return fail(err)
		}
		if g.Points, err = toPath(c); err != nil {
			return fail(err)
		}
	case store.KindPolygon:
		var c [][][]float64
		if err := json.Unmarshal(wg.Coordinates, &c); err != nil {
			return fail(err)
		}
		if g.Rings, err = toRings(c); err != nil {
			return fail(err)
		}
	case store.KindMultiPolygon:
		var c [][][][]float64
		if err := json.Unmarshal(wg.Coordinates, &c); err != nil {
			return fail(err)
		}
		g.Polygons = make([][][]store.Point, len(c))
		for i, poly := range c {
			if g.Polygons[i], err = toRings(poly); err != nil {
				return fail(err)
			}
		}
	}
	return g, true, nil
}

func toPoint(c []float64) (store.Point, error) {
	if len(c) < 2 {
		return store.Point{}, fmt.Errorf("position has %d values", len(c))
	}
	return store.Point{X: c[0], Y: c[1]}, nil
}

func toPath(c [][]float64) ([]store.Point, error) {
	pts := make([]store.Point, len(c))
	for i, pos := range c {
		p, err := toPoint(pos)
		if err != nil {
			return nil, err
		}
		pts[i] = p
	}
	return pts, nil
}

func toRings(c [][][]float64) ([][]store.Point, error) {
	rings := make([][]store.Point, len(c))
	for i, ring := range c {
		pts, err := toPath(ring)
		if err != nil {
			return nil, err
		}
		rings[i] = pts
	}
	return rings, nil
}

func decodeRasters(rs []wireRaster) ([]store.Raster, error) {
	if rs == nil {
		return nil, nil
	}
	out := make([]store.Raster, len(rs))
	for i, r := range rs {
		cells := make([]store.Cell, len(r.Cells))
		for j, c := range r.Cells {
			if len(c) < 3 {
				return nil, fmt.Errorf("%w: raster %d cell %d has %d values", ErrMalformed, r.T, j, len(c))
			}
			cells[j] = store.Cell{X: c[0], Y: c[1], Value: int(c[2])}
		}
		out[i] = store.Raster{
			Layer:      r.T,
			CellWidth:  r.CellWidth,
			CellHeight: r.CellHeight,
			Cells:      cells,
		}
	}
	return out, nil
}
