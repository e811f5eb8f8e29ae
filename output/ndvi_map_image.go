package output

import (
	"fmt"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/properties"
	"github.com/forest-guardian/agrosense-ndvi/internal/results"
)

const (
	mapMargin   = 20
	legendWidth = 140
	legendRow   = 20
)

var divergedOutline = struct{ R, G, B int }{0x21, 0x66, 0xac}

// MapOptions sizes the drawing area of the map, legend excluded.
type MapOptions struct {
	Width  int
	Height int
}

func DefaultMapOptions() MapOptions {
	return MapOptions{Width: 800, Height: 600}
}

// projection maps lon/lat into pixel space keeping the ground aspect ratio
// at the center latitude.
type projection struct {
	bound  orb.Bound
	scale  float64
	xScale float64
	offX   float64
	offY   float64
}

func newProjection(b orb.Bound, width, height int) projection {
	xScale := math.Cos(b.Center().Lat() * math.Pi / 180)
	w := (b.Right() - b.Left()) * xScale
	h := b.Top() - b.Bottom()
	innerW, innerH := float64(width-2*mapMargin), float64(height-2*mapMargin)

	scale := 1.0
	switch {
	case w > 0 && h > 0:
		scale = math.Min(innerW/w, innerH/h)
	case w > 0:
		scale = innerW / w
	case h > 0:
		scale = innerH / h
	}

	return projection{
		bound:  b,
		scale:  scale,
		xScale: xScale,
		offX:   mapMargin + (innerW-w*scale)/2,
		offY:   mapMargin + (innerH-h*scale)/2,
	}
}

func (p projection) point(pt orb.Point) (float64, float64) {
	x := p.offX + (pt.Lon()-p.bound.Left())*p.xScale*p.scale
	y := p.offY + (p.bound.Top()-pt.Lat())*p.scale
	return x, y
}

// RenderNDVIMap draws the polygons filled with the NDVI ramp color of their
// value on date, with the ramp as legend, and encodes the image as PNG.
func RenderNDVIMap(w io.Writer, polygons []model.Polygon, store *results.Store, date model.Date, opts MapOptions) error {
	if len(polygons) == 0 {
		return fmt.Errorf("no polygons to draw")
	}
	if opts.Width <= 2*mapMargin || opts.Height <= 2*mapMargin {
		opts = DefaultMapOptions()
	}

	dc := gg.NewContext(opts.Width+legendWidth, opts.Height)
	dc.SetRGB(1, 1, 1) // White background
	dc.Clear()

	proj := newProjection(model.UnionBound(polygons), opts.Width, opts.Height)
	for _, p := range polygons {
		entry, _ := store.Get(p.ID, date)
		c := properties.NDVIColor(entry.NDVI)
		for _, ring := range outerAndHoles(p.Geometry) {
			tracePath(dc, proj, ring)
		}
		dc.SetFillRuleEvenOdd()
		dc.SetRGB255(int(c.R), int(c.G), int(c.B))
		dc.FillPreserve()
		// Values taken from another scene date get a blue outline.
		if entry.Diverges(date) {
			dc.SetRGB255(divergedOutline.R, divergedOutline.G, divergedOutline.B)
			dc.SetLineWidth(3)
		} else {
			dc.SetRGB(0.2, 0.2, 0.2)
			dc.SetLineWidth(1)
		}
		dc.Stroke()
	}

	drawLegend(dc, opts.Width, legendTitle(polygons, store, date))

	return png.Encode(w, dc.Image())
}

// WriteNDVIMap renders the map into path, adding the .png extension when
// missing.
func WriteNDVIMap(path string, polygons []model.Polygon, store *results.Store, date model.Date, opts MapOptions) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".png") {
		path += ".png"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create map directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create map file: %w", err)
	}
	defer file.Close()

	if err := RenderNDVIMap(file, polygons, store, date, opts); err != nil {
		return "", fmt.Errorf("failed to render map: %w", err)
	}
	return path, file.Close()
}

func outerAndHoles(g orb.Geometry) []orb.Ring {
	switch geom := g.(type) {
	case orb.Polygon:
		return geom
	case orb.MultiPolygon:
		var rings []orb.Ring
		for _, poly := range geom {
			rings = append(rings, poly...)
		}
		return rings
	}
	return nil
}

func tracePath(dc *gg.Context, proj projection, ring orb.Ring) {
	for i, pt := range ring {
		x, y := proj.point(pt)
		if i == 0 {
			dc.MoveTo(x, y)
			continue
		}
		dc.LineTo(x, y)
	}
	dc.ClosePath()
}

// legendTitle is the requested date followed by one line per other scene
// date the drawn values were taken from.
func legendTitle(polygons []model.Polygon, store *results.Store, date model.Date) []string {
	ids := make([]string, len(polygons))
	for i, p := range polygons {
		ids[i] = p.ID
	}
	lines := []string{"NDVI " + string(date)}
	for _, resolved := range store.ResolvedDates(date, ids) {
		lines = append(lines, "Scene "+string(resolved))
	}
	return lines
}

func drawLegend(dc *gg.Context, left int, title []string) {
	x := float64(left + 10)
	y := float64(mapMargin)

	for i, line := range title {
		dc.SetRGB(0, 0, 0)
		if i > 0 {
			dc.SetRGB255(divergedOutline.R, divergedOutline.G, divergedOutline.B)
		}
		dc.DrawStringAnchored(line, x, y, 0, 0.5)
		y += legendRow
	}

	swatch := func(c properties.Color, label string) {
		dc.SetRGB255(int(c.R), int(c.G), int(c.B))
		dc.DrawRectangle(x, y-7, 15, 15)
		dc.Fill()

		dc.SetRGB(0, 0, 0)
		dc.DrawRectangle(x, y-7, 15, 15)
		dc.SetLineWidth(1)
		dc.Stroke()

		dc.DrawStringAnchored(label, x+20, y, 0, 0.5)
		y += legendRow
	}

	for _, class := range properties.NDVIRamp {
		swatch(class.Color, class.Label)
	}
	swatch(properties.NoDataColor, "No data")
}
