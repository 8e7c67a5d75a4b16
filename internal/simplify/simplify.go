// Package simplify reduces the vertex count of area polygons for rendering.
package simplify

import (
	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// minRing is the number of positions of the smallest closed ring.
const minRing = 4

// Simplify returns a simplified copy of the areas. Feature count, order, and property
// bags are preserved; polygons stay polygons and multipolygons stay multipolygons.
// highQuality runs Douglas-Peucker alone, otherwise a radial-distance pass runs first.
// A tolerance <= 0 returns an unmodified deep copy.
func Simplify(areas []types.AreaFeature, tolerance float64, highQuality bool) []types.AreaFeature {
	out := make([]types.AreaFeature, len(areas))
	for i, a := range areas {
		out[i] = a.WithGeometry(Geometry(a.Geometry, tolerance, highQuality))
	}
	return out
}

// Geometry simplifies a single polygonal geometry. Other geometry types are cloned.
func Geometry(g orb.Geometry, tolerance float64, highQuality bool) orb.Geometry {
	if g == nil {
		return nil
	}
	if tolerance <= 0 {
		return orb.Clone(g)
	}

	switch geom := g.(type) {
	case orb.Polygon:
		return polygon(geom, tolerance, highQuality)
	case orb.MultiPolygon:
		mp := make(orb.MultiPolygon, len(geom))
		for i, p := range geom {
			mp[i] = polygon(p, tolerance, highQuality)
		}
		return mp
	default:
		return orb.Clone(g)
	}
}

func polygon(p orb.Polygon, tolerance float64, highQuality bool) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		out[i] = ring(r, tolerance, highQuality)
	}
	return out
}

// ring simplifies one ring, keeping the source ring when the result would no longer
// close a polygon.
func ring(r orb.Ring, tolerance float64, highQuality bool) orb.Ring {
	if len(r) <= minRing {
		return r.Clone()
	}

	ls := orb.LineString(r).Clone()
	if !highQuality {
		if s, ok := simplify.Radial(planar.Distance, tolerance).Simplify(ls).(orb.LineString); ok {
			ls = s
		}
	}

	result, ok := simplify.DouglasPeucker(tolerance).Simplify(ls).(orb.LineString)
	if !ok || len(result) < minRing || !result[0].Equal(result[len(result)-1]) {
		return r.Clone()
	}
	return orb.Ring(result)
}
