package main

import (
	"encoding/json"
	"math"
	"math/rand/v2"
)

// Wire structs for the frames this tool emits.
type frame struct {
	CurrentTick *int                   `json:"currentTick,omitempty"`
	MaxTicks    *int                   `json:"maxTicks,omitempty"`
	WorldSize   *worldSize             `json:"worldSize,omitempty"`
	Entities    map[string][]agentJSON `json:"entities,omitempty"`
	Vectors     []vectorLayer          `json:"vectors,omitempty"`
	Rasters     []raster               `json:"rasters,omitempty"`
}

type worldSize struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

type agentJSON struct {
	X float64        `json:"x"`
	Y float64        `json:"y"`
	P map[string]any `json:"p,omitempty"`
}

type vectorLayer struct {
	F []feature `json:"f"`
	T int       `json:"t"`
}

type feature struct {
	Geometry geometry `json:"geometry"`
}

type geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

type raster struct {
	T          int         `json:"t"`
	CellWidth  float64     `json:"cellWidth"`
	CellHeight float64     `json:"cellHeight"`
	Cells      [][]float64 `json:"cells"`
}

const (
	rasterEvery = 10 // ticks between heat map updates
	trailEvery  = 25 // ticks between appended trail points
	heatCells   = 20 // heat map resolution per axis
)

type agent struct {
	x, y, heading float64
	layer         int
}

// world is a small random-walk simulation.
type world struct {
	rng      *rand.Rand
	size     float64
	maxTicks int
	agents   []agent
}

func newWorld(seed uint64, agents int, size float64, maxTicks int) *world {
	w := &world{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		size:     size,
		maxTicks: maxTicks,
		agents:   make([]agent, agents),
	}
	for i := range w.agents {
		w.agents[i] = agent{
			x:       w.rng.Float64() * size,
			y:       w.rng.Float64() * size,
			heading: w.rng.Float64() * 2 * math.Pi,
			layer:   i % 2,
		}
	}
	return w
}

// step advances every agent by one tick, bouncing off the world edges.
func (w *world) step() {
	speed := w.size / 200
	for i := range w.agents {
		a := &w.agents[i]
		a.heading += (w.rng.Float64() - 0.5) * 0.6
		a.x += math.Cos(a.heading) * speed
		a.y += math.Sin(a.heading) * speed
		if a.x < 0 || a.x > w.size {
			a.heading = math.Pi - a.heading
			a.x = math.Max(0, math.Min(w.size, a.x))
		}
		if a.y < 0 || a.y > w.size {
			a.heading = -a.heading
			a.y = math.Max(0, math.Min(w.size, a.y))
		}
	}
}

// frame encodes the state at tick. Tick 0 also carries the world size and
// the static vector layers; later ticks only append.
func (w *world) frame(tick int) ([]byte, error) {
	f := frame{
		CurrentTick: &tick,
		MaxTicks:    &w.maxTicks,
		Entities:    w.entities(),
	}
	if tick == 0 {
		f.WorldSize = &worldSize{MaxX: w.size, MaxY: w.size}
		f.Vectors = w.staticVectors()
	} else if tick%trailEvery == 0 && len(w.agents) > 0 {
		a := w.agents[0]
		f.Vectors = []vectorLayer{{F: []feature{{Geometry: geometry{
			Type:        "Point",
			Coordinates: []float64{a.x, a.y},
		}}}}}
	}
	if tick%rasterEvery == 0 {
		f.Rasters = []raster{w.heatMap()}
	}
	return json.Marshal(f)
}

func (w *world) entities() map[string][]agentJSON {
	out := map[string][]agentJSON{"0": {}, "1": {}}
	for i, a := range w.agents {
		key := "0"
		if a.layer == 1 {
			key = "1"
		}
		out[key] = append(out[key], agentJSON{
			X: a.x,
			Y: a.y,
			P: map[string]any{"id": i},
		})
	}
	return out
}

// staticVectors returns one feature of every geometry kind.
func (w *world) staticVectors() []vectorLayer {
	s := w.size
	lShape := [][]float64{
		{0.1 * s, 0.1 * s}, {0.4 * s, 0.1 * s}, {0.4 * s, 0.2 * s},
		{0.2 * s, 0.2 * s}, {0.2 * s, 0.4 * s}, {0.1 * s, 0.4 * s}, {0.1 * s, 0.1 * s},
	}
	square := func(x, y, d float64) [][]float64 {
		return [][]float64{{x, y}, {x + d, y}, {x + d, y + d}, {x, y + d}, {x, y}}
	}
	return []vectorLayer{{T: 0, F: []feature{
		{Geometry: geometry{Type: "Polygon", Coordinates: [][][]float64{lShape}}},
		{Geometry: geometry{Type: "MultiPolygon", Coordinates: [][][][]float64{
			{square(0.7*s, 0.7*s, 0.08*s)},
			{square(0.82*s, 0.7*s, 0.08*s)},
		}}},
		{Geometry: geometry{Type: "LineString", Coordinates: [][]float64{
			{0.05 * s, 0.95 * s}, {0.5 * s, 0.6 * s}, {0.95 * s, 0.95 * s},
		}}},
		{Geometry: geometry{Type: "LinearRing", Coordinates: square(0.6*s, 0.1*s, 0.25*s)}},
		{Geometry: geometry{Type: "MultiPoint", Coordinates: [][]float64{
			{0.5 * s, 0.5 * s}, {0.55 * s, 0.5 * s}, {0.5 * s, 0.55 * s},
		}}},
	}}}
}

// heatMap counts agents per cell; the value ends up as the cell alpha.
func (w *world) heatMap() raster {
	cell := w.size / heatCells
	counts := make(map[[2]int]int)
	for _, a := range w.agents {
		cx := min(int(a.x/cell), heatCells-1)
		cy := min(int(a.y/cell), heatCells-1)
		counts[[2]int{cx, cy}]++
	}
	r := raster{T: 0, CellWidth: cell, CellHeight: cell}
	for k, n := range counts {
		r.Cells = append(r.Cells, []float64{
			(float64(k[0]) + 0.5) * cell,
			(float64(k[1]) + 0.5) * cell,
			float64(min(n*60, 255)),
		})
	}
	return r
}
