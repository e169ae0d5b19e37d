package render

// LayerID identifies a toggleable draw layer.
type LayerID string

// Layer IDs in draw order.
const (
	LayerRasters       LayerID = "rasters"
	LayerMultiPolygons LayerID = "multipolygons"
	LayerPolygons      LayerID = "polygons"
	LayerLines         LayerID = "lines"
	LayerRings         LayerID = "rings"
	LayerPoints        LayerID = "points"
	LayerMultiPoints   LayerID = "multipoints"
	LayerEntities      LayerID = "entities"
	LayerLabels        LayerID = "labels"
	LayerHUD           LayerID = "hud"
)

// LayerDescriptor defines a layer that can be toggled.
type LayerDescriptor struct {
	ID       LayerID // Unique identifier
	Name     string  // Display name
	KeyLabel string  // Key label for display (e.g., "1", "L")
	Category string  // Grouping (e.g., "world", "overlay")
}

// Layers tracks which draw layers are visible. All layers start enabled.
type Layers struct {
	descriptors []LayerDescriptor
	byID        map[LayerID]LayerDescriptor
	enabled     map[LayerID]bool
}

// NewLayers creates a registry with the standard layers.
func NewLayers() *Layers {
	l := &Layers{
		byID:    make(map[LayerID]LayerDescriptor),
		enabled: make(map[LayerID]bool),
	}
	l.registerDefaults()
	return l
}

func (l *Layers) registerDefaults() {
	for _, d := range []LayerDescriptor{
		{LayerRasters, "Rasters", "1", "world"},
		{LayerMultiPolygons, "Multipolygons", "2", "world"},
		{LayerPolygons, "Polygons", "3", "world"},
		{LayerLines, "Lines", "4", "world"},
		{LayerRings, "Rings", "5", "world"},
		{LayerPoints, "Points", "6", "world"},
		{LayerMultiPoints, "Multipoints", "7", "world"},
		{LayerEntities, "Entities", "8", "world"},
		{LayerLabels, "Labels", "L", "overlay"},
		{LayerHUD, "HUD", "H", "overlay"},
	} {
		l.Register(d)
	}
}

// Register adds a layer to the registry, enabled.
func (l *Layers) Register(desc LayerDescriptor) {
	if _, ok := l.byID[desc.ID]; !ok {
		l.descriptors = append(l.descriptors, desc)
	}
	l.byID[desc.ID] = desc
	l.enabled[desc.ID] = true
}

// Toggle switches a layer on/off and returns the new state.
func (l *Layers) Toggle(id LayerID) bool {
	if _, ok := l.byID[id]; !ok {
		return false
	}
	l.enabled[id] = !l.enabled[id]
	return l.enabled[id]
}

// SetEnabled explicitly sets a layer's state.
func (l *Layers) SetEnabled(id LayerID, enabled bool) {
	if _, ok := l.byID[id]; ok {
		l.enabled[id] = enabled
	}
}

// IsEnabled returns whether a layer is drawn. A nil registry draws everything.
func (l *Layers) IsEnabled(id LayerID) bool {
	if l == nil {
		return true
	}
	return l.enabled[id]
}

// All returns all registered layers in registration order.
func (l *Layers) All() []LayerDescriptor {
	return l.descriptors
}

// HandleKey toggles the layer bound to label, if any.
// Returns the layer ID, its new state, and whether a toggle occurred.
func (l *Layers) HandleKey(label string) (LayerID, bool, bool) {
	for _, d := range l.descriptors {
		if d.KeyLabel == label {
			return d.ID, l.Toggle(d.ID), true
		}
	}
	return "", false, false
}
