package model

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Polygon is a field boundary loaded from an uploaded file.
type Polygon struct {
	ID         string
	Properties Properties
	Geometry   orb.Geometry
}

// IsPolygonal reports whether g is a geometry the analysis can aggregate over.
func IsPolygonal(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// UnionBound returns the bounding box enclosing all polygons.
func UnionBound(polygons []Polygon) orb.Bound {
	var b orb.Bound
	for i, p := range polygons {
		if i == 0 {
			b = p.Geometry.Bound()
			continue
		}
		b = b.Union(p.Geometry.Bound())
	}
	return b
}

// BBox flattens b into the [west, south, east, north] order used by the catalog.
func BBox(b orb.Bound) []float64 {
	return []float64{b.Left(), b.Bottom(), b.Right(), b.Top()}
}

// AreaDecares is the geodesic area in decares (1000 m²) rounded to 2 digits.
func (p Polygon) AreaDecares() float64 {
	if p.Geometry == nil {
		return 0
	}
	return math.Round(geo.Area(p.Geometry)/1000*100) / 100
}

// Centroid returns the planar centroid, falling back to the bound center for
// degenerate shapes.
func (p Polygon) Centroid() orb.Point {
	c, area := planar.CentroidArea(p.Geometry)
	if area == 0 {
		return p.Geometry.Bound().Center()
	}
	return c
}
