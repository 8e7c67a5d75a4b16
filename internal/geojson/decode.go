package geojson

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// PropertyKeys names the source properties read from the feature collections.
// Each field lists candidate keys in priority order.
type PropertyKeys struct {
	Level      []string
	MapName    []string
	Name       []string
	Elevation  []string
	LinkPrefix string // e.g. "wiki_url_" -> Links["en"] from "wiki_url_en"
}

// DefaultPropertyKeys matches the GMBA mountain atlas datasets.
func DefaultPropertyKeys() PropertyKeys {
	return PropertyKeys{
		Level:      []string{"Hier_lvl", "hierLevel", "hier_lvl"},
		MapName:    []string{"MapName", "mapName"},
		Name:       []string{"name", "Name"},
		Elevation:  []string{"elevation", "ele"},
		LinkPrefix: "wiki_url_",
	}
}

// Decoded holds a parsed collection and the data-quality warnings raised while parsing.
type Decoded[T any] struct {
	Features types.Collection[T]
	Warnings []types.DataQualityWarning
}

// DecodeAreas parses a polygon FeatureCollection document.
// Features with non-polygonal geometry are dropped with a warning; a missing level is
// kept on the feature as the invalid zero Level and handled by the indexer.
func DecodeAreas(data []byte, keys PropertyKeys) (*Decoded[types.AreaFeature], error) {
	fc, err := unmarshalCollection(data)
	if err != nil {
		return nil, err
	}

	out := &Decoded[types.AreaFeature]{
		Features: make(types.Collection[types.AreaFeature], 0, len(fc.Features)),
	}

	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			out.Warnings = append(out.Warnings, types.DataQualityWarning{
				Kind:       types.WarningBadGeometry,
				Collection: "areas",
				FeatureID:  i,
				Detail:     fmt.Sprintf("unsupported geometry %s", geometryType(f.Geometry)),
			})
			continue
		}

		props := map[string]any(f.Properties)
		level := out.level(props, keys.Level, "areas", i)

		out.Features = append(out.Features, types.AreaFeature{
			ID:         i,
			Geometry:   f.Geometry,
			MapName:    strings.TrimSpace(stringProp(props, keys.MapName)),
			Level:      level,
			Links:      links(props, keys.LinkPrefix),
			Properties: props,
		})
	}

	return out, nil
}

// DecodePeaks parses a point FeatureCollection document.
func DecodePeaks(data []byte, keys PropertyKeys) (*Decoded[types.PeakFeature], error) {
	fc, err := unmarshalCollection(data)
	if err != nil {
		return nil, err
	}

	out := &Decoded[types.PeakFeature]{
		Features: make(types.Collection[types.PeakFeature], 0, len(fc.Features)),
	}

	for i, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			out.Warnings = append(out.Warnings, types.DataQualityWarning{
				Kind:       types.WarningBadGeometry,
				Collection: "peaks",
				FeatureID:  i,
				Detail:     fmt.Sprintf("unsupported geometry %s", geometryType(f.Geometry)),
			})
			continue
		}

		props := map[string]any(f.Properties)
		level := out.level(props, keys.Level, "peaks", i)

		name := strings.TrimSpace(stringProp(props, keys.Name))
		if name == "" {
			name = types.DefaultPeakName
		}

		var elevation *float64
		if raw := lookup(props, keys.Elevation); raw != nil {
			if v, ok := toFloat(raw); ok {
				elevation = &v
			} else {
				out.Warnings = append(out.Warnings, types.DataQualityWarning{
					Kind:       types.WarningBadProperty,
					Collection: "peaks",
					FeatureID:  i,
					Detail:     fmt.Sprintf("unparseable elevation %v", raw),
				})
			}
		}

		out.Features = append(out.Features, types.PeakFeature{
			ID:         i,
			Point:      pt,
			Name:       name,
			Elevation:  elevation,
			MapName:    strings.TrimSpace(stringProp(props, keys.MapName)),
			Level:      level,
			Properties: props,
		})
	}

	return out, nil
}

// level reads the hierarchy level. A present but unusable value raises a warning; a
// missing one is reported later by the level index.
func (d *Decoded[T]) level(props map[string]any, keys []string, collection string, id int) types.Level {
	raw := lookup(props, keys)
	level, ok := types.LevelFromProperty(raw)
	if raw != nil && !ok {
		d.Warnings = append(d.Warnings, types.DataQualityWarning{
			Kind:       types.WarningInvalidLevel,
			Collection: collection,
			FeatureID:  id,
			Detail:     fmt.Sprintf("unusable level %v", raw),
		})
	}
	return level
}

func unmarshalCollection(data []byte) (*geojson.FeatureCollection, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}
	if probe.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected FeatureCollection, got %q", probe.Type)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal feature collection: %w", err)
	}
	return fc, nil
}

func lookup(props map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := props[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringProp(props map[string]any, keys []string) string {
	switch v := lookup(props, keys).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func links(props map[string]any, prefix string) map[string]string {
	if prefix == "" {
		return nil
	}
	var out map[string]string
	for k, v := range props {
		locale, ok := strings.CutPrefix(k, prefix)
		if !ok || locale == "" {
			continue
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[locale] = strings.TrimSpace(s)
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "null"
	}
	return g.GeoJSONType()
}
