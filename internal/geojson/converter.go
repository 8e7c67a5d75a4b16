package geojson

import (
	"encoding/json"
	"fmt"

	"github.com/MeKo-Tech/mountainatlas/internal/cluster"
	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/paulmach/orb/geojson"
)

// AreasToGeoJSON converts area features to a GeoJSON FeatureCollection.
// Source properties are copied and the normalised fields are added on top.
func AreasToGeoJSON(areas []types.AreaFeature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, a := range areas {
		if a.Geometry == nil {
			continue
		}

		f := geojson.NewFeature(a.Geometry)
		for key, value := range a.Properties {
			f.Properties[key] = value
		}

		f.ID = a.ID
		f.Properties["map_name"] = a.MapName
		f.Properties["hier_level"] = a.Level.String()
		if len(a.Links) > 0 {
			f.Properties["links"] = a.Links
		}

		fc.Append(f)
	}

	return fc
}

// PeaksToGeoJSON converts peak features to a GeoJSON FeatureCollection of points.
func PeaksToGeoJSON(peaks []types.PeakFeature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, p := range peaks {
		f := geojson.NewFeature(p.Point)
		f.ID = p.ID
		setPeakProperties(f.Properties, p)
		fc.Append(f)
	}

	return fc
}

// ClustersToGeoJSON converts clusters to point features carrying their icon descriptor.
// Single-peak clusters also carry the peak's own properties.
func ClustersToGeoJSON(clusters []cluster.Cluster) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, c := range clusters {
		icon := cluster.IconFor(c)

		f := geojson.NewFeature(c.Position)
		f.ID = c.ID
		f.Properties["cluster"] = c.Count > 1
		f.Properties["point_count"] = c.Count
		f.Properties["icon"] = icon

		if c.Count == 1 {
			setPeakProperties(f.Properties, c.Members[0])
		}

		fc.Append(f)
	}

	return fc
}

// ToBytes marshals a FeatureCollection as indented JSON.
func ToBytes(fc *geojson.FeatureCollection) ([]byte, error) {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return data, nil
}

func setPeakProperties(props geojson.Properties, p types.PeakFeature) {
	props["name"] = p.Name
	props["map_name"] = p.MapName
	props["hier_level"] = p.Level.String()
	if p.Elevation != nil {
		props["elevation"] = *p.Elevation
	}
}
