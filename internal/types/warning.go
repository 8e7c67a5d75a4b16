package types

import "fmt"

// WarningKind classifies data-quality problems found while loading or indexing.
type WarningKind string

const (
	WarningMissingLevel WarningKind = "missing_level"
	WarningInvalidLevel WarningKind = "invalid_level"
	WarningBadGeometry  WarningKind = "bad_geometry"
	WarningBadProperty  WarningKind = "bad_property"
	WarningNonNumeric   WarningKind = "non_numeric_level"
)

// DataQualityWarning describes a feature that was excluded or degraded because of bad
// source data. Warnings never abort processing.
type DataQualityWarning struct {
	Kind       WarningKind
	Collection string // "areas" or "peaks"
	Detail     string
	FeatureID  int
}

func (w DataQualityWarning) String() string {
	return fmt.Sprintf("%s[%d]: %s: %s", w.Collection, w.FeatureID, w.Kind, w.Detail)
}

// CountWarnings groups warnings by kind.
func CountWarnings(ws []DataQualityWarning) map[WarningKind]int {
	out := make(map[WarningKind]int)
	for _, w := range ws {
		out[w.Kind]++
	}
	return out
}
