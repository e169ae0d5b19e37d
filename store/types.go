package store

// Progress holds the simulation tick counters shown by the progress bar.
type Progress struct {
	HasData     bool
	CurrentTick int
	MaxTicks    int
}

// Fraction returns CurrentTick/MaxTicks. ok is false when MaxTicks is 0.
func (p Progress) Fraction() (f float64, ok bool) {
	if p.MaxTicks == 0 {
		return 0, false
	}
	return float64(p.CurrentTick) / float64(p.MaxTicks), true
}

// Bounds is an axis-aligned world rectangle.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// DefaultBounds is used until the simulation reports its own extent.
var DefaultBounds = Bounds{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}

// Degenerate reports whether an incoming bound carries no usable extent.
// The simulation sends MaxX == 0 when it has nothing to report.
func (b Bounds) Degenerate() bool {
	return b.MaxX <= 0
}

// Width returns MaxX - MinX.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns MaxY - MinY.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Point is a world-space coordinate pair.
type Point struct {
	X, Y float64
}

// Entity is one dynamic agent position with optional display properties.
// Property values are JSON scalars (string, float64, bool or nil).
type Entity struct {
	X, Y  float64
	Props map[string]any
}

// Kind discriminates vector geometries.
type Kind uint8

const (
	KindPoint Kind = iota
	KindMultiPoint
	KindLineString
	KindLinearRing
	KindPolygon
	KindMultiPolygon

	numKinds
)

// Kinds lists every geometry kind in declaration order.
var Kinds = [...]Kind{
	KindPoint, KindMultiPoint, KindLineString,
	KindLinearRing, KindPolygon, KindMultiPolygon,
}

var kindNames = [...]string{
	KindPoint:        "Point",
	KindMultiPoint:   "MultiPoint",
	KindLineString:   "LineString",
	KindLinearRing:   "LinearRing",
	KindPolygon:      "Polygon",
	KindMultiPolygon: "MultiPolygon",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// ParseKind maps a GeoJSON geometry type name to a Kind.
// "LineRing" is accepted as a spelling of LinearRing.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "Point":
		return KindPoint, true
	case "MultiPoint":
		return KindMultiPoint, true
	case "LineString":
		return KindLineString, true
	case "LinearRing", "LineRing":
		return KindLinearRing, true
	case "Polygon":
		return KindPolygon, true
	case "MultiPolygon":
		return KindMultiPolygon, true
	}
	return 0, false
}

// Geometry is a vector feature in world space. Which coordinate field is
// populated depends on Kind:
//
//	Point                    Points[0]
//	MultiPoint               Points
//	LineString, LinearRing   Points
//	Polygon                  Rings
//	MultiPolygon             Polygons
type Geometry struct {
	Kind     Kind
	Layer    int // type key from the vector layer descriptor, -1 if absent
	Points   []Point
	Rings    [][]Point
	Polygons [][][]Point
}

// Cell is one raster value at a world position.
type Cell struct {
	X, Y  float64
	Value int
}

// Raster is a sparse grid layer.
type Raster struct {
	Layer      int
	CellWidth  float64
	CellHeight float64
	Cells      []Cell
}
