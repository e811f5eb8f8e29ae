package session

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
)

// Selection is an unordered set of polygon ids.
type Selection struct {
	ids map[string]bool
}

func NewSelection(ids ...string) *Selection {
	s := &Selection{ids: make(map[string]bool, len(ids))}
	s.Add(ids...)
	return s
}

func (s *Selection) Add(ids ...string) {
	for _, id := range ids {
		s.ids[id] = true
	}
}

func (s *Selection) Remove(ids ...string) {
	for _, id := range ids {
		delete(s.ids, id)
	}
}

// Toggle flips membership of id and reports whether it is now selected.
func (s *Selection) Toggle(id string) bool {
	if s.ids[id] {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = true
	return true
}

func (s *Selection) Contains(id string) bool { return s.ids[id] }

func (s *Selection) Len() int { return len(s.ids) }

func (s *Selection) Clear() {
	s.ids = make(map[string]bool)
}

// SelectAll replaces the selection with every polygon of the dataset.
func (s *Selection) SelectAll(dataset []model.Polygon) {
	s.Clear()
	for _, p := range dataset {
		s.ids[p.ID] = true
	}
}

// IDs lists the selected ids in dataset order. Ids missing from the dataset
// are not returned.
func (s *Selection) IDs(dataset []model.Polygon) []string {
	out := make([]string, 0, len(s.ids))
	for _, p := range dataset {
		if s.ids[p.ID] {
			out = append(out, p.ID)
		}
	}
	return out
}

// Sorted lists the raw ids in lexical order, for persistence.
func (s *Selection) Sorted() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FilterableKeys returns the property keys whose values are strings or absent
// on every polygon, in first-appearance order.
func FilterableKeys(dataset []model.Polygon) []string {
	var keys []string
	seen := make(map[string]bool)
	numeric := make(map[string]bool)
	for _, p := range dataset {
		for _, prop := range p.Properties {
			if !seen[prop.Key] {
				seen[prop.Key] = true
				keys = append(keys, prop.Key)
			}
			if prop.Value.Kind == model.KindNumber {
				numeric[prop.Key] = true
			}
		}
	}

	out := keys[:0]
	for _, k := range keys {
		if !numeric[k] {
			out = append(out, k)
		}
	}
	return out
}

// DistinctValues lists the sorted non-empty values of key.
func DistinctValues(dataset []model.Polygon, key string) []string {
	set := make(map[string]bool)
	for _, p := range dataset {
		if v, ok := p.Properties.Get(key); ok && v.String() != "" {
			set[v.String()] = true
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SelectByValues replaces the selection with the polygons whose key matches
// one of values. It returns the number selected.
func (s *Selection) SelectByValues(dataset []model.Polygon, key string, values []string) int {
	wanted := make(map[string]bool, len(values))
	for _, v := range values {
		wanted[v] = true
	}
	s.Clear()
	for _, p := range dataset {
		v, _ := p.Properties.Get(key)
		if wanted[v.String()] {
			s.ids[p.ID] = true
		}
	}
	return len(s.ids)
}

// SelectDrawn adds every polygon whose centroid lies inside drawn or whose
// geometry intersects it. It returns the ids matched by this call.
func (s *Selection) SelectDrawn(dataset []model.Polygon, drawn orb.Geometry) []string {
	var matched []string
	for _, p := range dataset {
		if containsPoint(drawn, p.Centroid()) || intersects(drawn, p.Geometry) {
			matched = append(matched, p.ID)
			s.ids[p.ID] = true
		}
	}
	return matched
}

func containsPoint(g orb.Geometry, pt orb.Point) bool {
	switch t := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(t, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(t, pt)
	case orb.Bound:
		return t.Contains(pt)
	}
	return false
}

// intersects tests polygonal a and b for any overlap: a vertex of one inside
// the other or two crossing edges.
func intersects(a, b orb.Geometry) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	ringsA, ringsB := rings(a), rings(b)
	for _, r := range ringsA {
		for _, pt := range r {
			if containsPoint(b, pt) {
				return true
			}
		}
	}
	for _, r := range ringsB {
		for _, pt := range r {
			if containsPoint(a, pt) {
				return true
			}
		}
	}
	for _, ra := range ringsA {
		for _, rb := range ringsB {
			if ringsCross(ra, rb) {
				return true
			}
		}
	}
	return false
}

func rings(g orb.Geometry) []orb.Ring {
	switch t := g.(type) {
	case orb.Polygon:
		return t
	case orb.MultiPolygon:
		var out []orb.Ring
		for _, p := range t {
			out = append(out, p...)
		}
		return out
	case orb.Bound:
		return t.ToPolygon()
	}
	return nil
}

func ringsCross(a, b orb.Ring) bool {
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsCross(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}
