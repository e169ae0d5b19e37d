package render

import (
	"image/color"

	"github.com/pthm-cable/minivis/config"
)

// Palette holds the colors used for each layer kind.
type Palette struct {
	Background color.RGBA
	Entities   []color.RGBA // cycled by entity layer id
	Rasters    []color.RGBA // cycled by raster layer id; alpha comes from cell values
	Polygon    color.RGBA
	Line       color.RGBA
	Ring       color.RGBA
	Point      color.RGBA
	Label      color.RGBA
	HUD        color.RGBA
	BarBorder  color.RGBA
	BarFill    color.RGBA
}

// PaletteFromConfig converts the configured colors.
func PaletteFromConfig(pc config.PaletteConfig) Palette {
	p := Palette{
		Background: pc.Background.RGBA(),
		Polygon:    pc.Polygon.RGBA(),
		Line:       pc.Line.RGBA(),
		Ring:       pc.Ring.RGBA(),
		Point:      pc.Point.RGBA(),
		Label:      pc.Label.RGBA(),
		HUD:        pc.HUD.RGBA(),
		BarBorder:  pc.BarBorder.RGBA(),
		BarFill:    pc.BarFill.RGBA(),
	}
	for _, c := range pc.Vectors {
		p.Entities = append(p.Entities, c.RGBA())
	}
	for _, c := range pc.Rasters {
		p.Rasters = append(p.Rasters, c.RGBA())
	}
	return p
}

// Entity returns the color for an entity layer.
func (p Palette) Entity(layer int) color.RGBA {
	return cycle(p.Entities, layer)
}

// Raster returns the cell color for a raster layer and cell value. The
// value modulo 256 becomes the alpha channel.
func (p Palette) Raster(layer, value int) color.RGBA {
	c := cycle(p.Rasters, layer)
	c.A = uint8(((value % 256) + 256) % 256)
	return c
}

// cycle picks colors[i mod len], treating negative ids like the simulation
// does for its layer numbering.
func cycle(colors []color.RGBA, i int) color.RGBA {
	if len(colors) == 0 {
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	n := len(colors)
	return colors[((i%n)+n)%n]
}
