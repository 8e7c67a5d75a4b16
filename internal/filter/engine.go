// Package filter answers level selections from precomputed indexes.
package filter

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/mountainatlas/internal/hierarchy"
	"github.com/MeKo-Tech/mountainatlas/internal/simplify"
	"github.com/MeKo-Tech/mountainatlas/internal/types"
)

// Selection is the filtered data for one level.
type Selection struct {
	Tier  simplify.Tier
	Level types.Level
	Areas []types.AreaFeature
	Peaks []types.PeakFeature
}

// Empty reports whether the selection matched nothing.
func (s Selection) Empty() bool {
	return len(s.Areas) == 0 && len(s.Peaks) == 0
}

// Engine selects areas and peaks by level. Every index is built in New, so Select never
// scans the full collections and is safe for concurrent use.
type Engine struct {
	areas    map[string]*hierarchy.Index[types.AreaFeature]
	peaks    *hierarchy.Index[types.PeakFeature]
	byMap    *hierarchy.NameIndex[types.PeakFeature]
	variants *simplify.Variants
	levels   []types.Level
	warnings []types.DataQualityWarning
}

// New indexes the peaks and every simplification tier of the areas.
func New(areas []types.AreaFeature, peaks []types.PeakFeature, variants *simplify.Variants, logger *slog.Logger) (*Engine, error) {
	if variants == nil {
		return nil, fmt.Errorf("no simplification variants")
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		areas:    make(map[string]*hierarchy.Index[types.AreaFeature]),
		variants: variants,
		levels:   hierarchy.BuildLevels(areas),
	}

	peakIdx, warnings := hierarchy.BuildIndex("peaks", peaks, logger)
	e.peaks = peakIdx
	e.warnings = append(e.warnings, warnings...)
	// Map-name lookups cover every peak, with or without a level.
	e.byMap = hierarchy.BuildNameIndex(peaks, func(p types.PeakFeature) string { return p.MapName })

	for i, tier := range variants.Tiers() {
		tierAreas, _ := variants.Tier(tier.Name)
		// Warnings are identical for every tier; report them once.
		var l *slog.Logger
		if i == 0 {
			l = logger
		}
		idx, warnings := hierarchy.BuildIndex("areas", tierAreas, l)
		if i == 0 {
			e.warnings = append(e.warnings, warnings...)
		}
		e.areas[tier.Name] = idx
	}

	for _, l := range e.areaIndex(variants.Tiers()[0].Name).Levels() {
		if !hierarchy.Contains(e.levels, l) {
			e.warnings = append(e.warnings, types.DataQualityWarning{
				Kind:       types.WarningNonNumeric,
				Collection: "areas",
				FeatureID:  -1,
				Detail:     fmt.Sprintf("level %q is not numeric and is left out of the level list", l.Key()),
			})
		}
	}

	logger.Info("Indexed dataset",
		"levels", len(e.levels),
		"peaks", peakIdx.Len(),
		"peak_buckets", peakIdx.Summary(),
		"warnings", len(e.warnings))

	return e, nil
}

// Levels returns the ordered level list for a level-selection control.
func (e *Engine) Levels() []types.Level {
	return e.levels
}

// Warnings returns the data-quality warnings raised while indexing.
func (e *Engine) Warnings() []types.DataQualityWarning {
	return e.warnings
}

// Variants returns the simplification variants the engine serves.
func (e *Engine) Variants() *simplify.Variants {
	return e.variants
}

// Select returns the level's areas, at the coarsest tier, and peaks. An unknown level
// yields an empty selection. AllLevels merges every level.
func (e *Engine) Select(level types.Level) Selection {
	return e.SelectTier(level, e.variants.Tiers()[0])
}

// SelectZoom selects with the simplification tier used at zoom.
func (e *Engine) SelectZoom(level types.Level, zoom float64) Selection {
	return e.SelectTier(level, e.variants.TierForZoom(zoom))
}

// SelectTier selects with an explicit simplification tier. An unknown tier falls back
// to the coarsest one.
func (e *Engine) SelectTier(level types.Level, tier simplify.Tier) Selection {
	idx := e.areaIndex(tier.Name)
	if idx == nil {
		tier = e.variants.Tiers()[0]
		idx = e.areaIndex(tier.Name)
	}

	return Selection{
		Level: level,
		Tier:  tier,
		Areas: idx.Bucket(level),
		Peaks: e.peaks.Bucket(level),
	}
}

// PeaksByMapName returns the peaks of a mountain area, matched case-insensitively.
func (e *Engine) PeaksByMapName(name string) []types.PeakFeature {
	return e.byMap.Lookup(name)
}

// PeakCount returns the number of peaks at a level.
func (e *Engine) PeakCount(level types.Level) int {
	return e.peaks.Count(level)
}

func (e *Engine) areaIndex(tier string) *hierarchy.Index[types.AreaFeature] {
	return e.areas[tier]
}
