// Package hierarchy derives the hierarchy levels present in a dataset and indexes features
// by level.
package hierarchy

import (
	"slices"
	"strings"

	"github.com/MeKo-Tech/mountainatlas/internal/types"
)

// BuildLevels returns the distinct levels of the areas in ascending numeric order.
// Levels that do not parse as numbers are left out; ties are broken by identifier.
func BuildLevels(areas []types.AreaFeature) []types.Level {
	type entry struct {
		level types.Level
		num   float64
	}

	seen := make(map[string]struct{})
	entries := make([]entry, 0)
	for _, a := range areas {
		if !a.Level.Valid() || a.Level.IsAll() {
			continue
		}
		if _, ok := seen[a.Level.Key()]; ok {
			continue
		}
		seen[a.Level.Key()] = struct{}{}

		n, ok := a.Level.Number()
		if !ok {
			continue
		}
		entries = append(entries, entry{level: a.Level, num: n})
	}

	slices.SortFunc(entries, func(x, y entry) int {
		switch {
		case x.num < y.num:
			return -1
		case x.num > y.num:
			return 1
		default:
			return strings.Compare(x.level.Key(), y.level.Key())
		}
	})

	levels := make([]types.Level, len(entries))
	for i, e := range entries {
		levels[i] = e.level
	}
	return levels
}

// Contains reports whether level is in levels.
func Contains(levels []types.Level, level types.Level) bool {
	return slices.ContainsFunc(levels, level.Equal)
}
