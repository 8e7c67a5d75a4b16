package types

import (
	"github.com/paulmach/orb"
)

// DefaultPeakName is used for peaks whose source record carries no name.
const DefaultPeakName = "Unnamed"

// AreaFeature is a GMBA mountain area polygon.
type AreaFeature struct {
	Geometry   orb.Geometry      // orb.Polygon or orb.MultiPolygon
	Links      map[string]string // Reference links keyed by locale ("en", "it", ...)
	Properties map[string]any    // Source properties, untouched
	MapName    string
	Level      Level
	ID         int // Position in the source collection
}

// PeakFeature is a mountain peak point.
type PeakFeature struct {
	Elevation  *float64       // Metres, nil when unknown
	Properties map[string]any // Source properties, untouched
	Name       string
	MapName    string
	Level      Level
	Point      orb.Point // lon, lat
	ID         int       // Position in the source collection
}

// HierLevel returns the feature's hierarchy level.
func (a AreaFeature) HierLevel() Level { return a.Level }

// FeatureID returns the feature's position in its source collection.
func (a AreaFeature) FeatureID() int { return a.ID }

// HierLevel returns the feature's hierarchy level.
func (p PeakFeature) HierLevel() Level { return p.Level }

// FeatureID returns the feature's position in its source collection.
func (p PeakFeature) FeatureID() int { return p.ID }

// WithGeometry returns a copy of the area carrying a different geometry.
// The property bag and links are shared; they are never mutated after load.
func (a AreaFeature) WithGeometry(g orb.Geometry) AreaFeature {
	a.Geometry = g
	return a
}

// Collection is an ordered set of features in source payload order.
type Collection[T any] []T

// Len returns the number of features.
func (c Collection[T]) Len() int { return len(c) }

// Bound returns the union bound of the areas' geometries.
func Bound(areas []AreaFeature) orb.Bound {
	var (
		b     orb.Bound
		found bool
	)
	for _, a := range areas {
		if a.Geometry == nil {
			continue
		}
		if !found {
			b = a.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(a.Geometry.Bound())
	}
	return b
}

// VertexCount returns the number of positions in a polygonal geometry.
func VertexCount(g orb.Geometry) int {
	switch geom := g.(type) {
	case orb.Ring:
		return len(geom)
	case orb.Polygon:
		n := 0
		for _, r := range geom {
			n += len(r)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range geom {
			n += VertexCount(p)
		}
		return n
	case orb.LineString:
		return len(geom)
	case orb.Point:
		return 1
	default:
		return 0
	}
}
