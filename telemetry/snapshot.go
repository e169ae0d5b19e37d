package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pthm-cable/minivis/store"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot is a JSON dump of the store contents at one moment.
type Snapshot struct {
	Version int `json:"version"`

	Tick     int          `json:"tick"`
	MaxTicks int          `json:"max_ticks"`
	Bounds   store.Bounds `json:"bounds"`

	Entities map[int][]EntityState     `json:"entities"`
	Vectors  map[string][]GeometryJSON `json:"vectors"`
	Rasters  []RasterJSON              `json:"rasters"`
}

// EntityState is one entity in a snapshot.
type EntityState struct {
	X     float64        `json:"x"`
	Y     float64        `json:"y"`
	Props map[string]any `json:"p,omitempty"`
}

// GeometryJSON is one vector feature in a snapshot.
type GeometryJSON struct {
	Layer    int               `json:"layer"`
	Points   []store.Point     `json:"points,omitempty"`
	Rings    [][]store.Point   `json:"rings,omitempty"`
	Polygons [][][]store.Point `json:"polygons,omitempty"`
}

// RasterJSON is one raster layer in a snapshot.
type RasterJSON struct {
	Layer      int          `json:"layer"`
	CellWidth  float64      `json:"cell_width"`
	CellHeight float64      `json:"cell_height"`
	Cells      []store.Cell `json:"cells"`
}

// NewSnapshot converts a store copy into its snapshot form.
func NewSnapshot(st store.State) *Snapshot {
	snap := &Snapshot{
		Version:  SnapshotVersion,
		Tick:     st.Progress.CurrentTick,
		MaxTicks: st.Progress.MaxTicks,
		Bounds:   st.Bounds,
		Entities: make(map[int][]EntityState, len(st.Entities)),
		Vectors:  make(map[string][]GeometryJSON, len(st.Vectors)),
	}
	for layer, es := range st.Entities {
		out := make([]EntityState, len(es))
		for i, e := range es {
			out[i] = EntityState{X: e.X, Y: e.Y, Props: e.Props}
		}
		snap.Entities[layer] = out
	}
	for kind, gs := range st.Vectors {
		out := make([]GeometryJSON, len(gs))
		for i, g := range gs {
			out[i] = GeometryJSON{Layer: g.Layer, Points: g.Points, Rings: g.Rings, Polygons: g.Polygons}
		}
		snap.Vectors[kind.String()] = out
	}
	for _, r := range st.Rasters {
		snap.Rasters = append(snap.Rasters, RasterJSON{
			Layer:      r.Layer,
			CellWidth:  r.CellWidth,
			CellHeight: r.CellHeight,
			Cells:      r.Cells,
		})
	}
	sort.Slice(snap.Rasters, func(i, j int) bool { return snap.Rasters[i].Layer < snap.Rasters[j].Layer })
	return snap
}

// SaveSnapshot writes a snapshot to dir.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("snapshot_%d.json", snapshot.Tick))

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}
