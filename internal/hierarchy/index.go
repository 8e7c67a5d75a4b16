package hierarchy

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/mountainatlas/internal/types"
)

// Leveled is a feature that belongs to a hierarchy level.
type Leveled interface {
	HierLevel() types.Level
	FeatureID() int
}

// Index groups features by hierarchy level. It is built once and read-only afterwards,
// so concurrent readers need no locking.
type Index[T Leveled] struct {
	buckets  map[string][]T
	all      []T
	levels   []types.Level
	excluded int
}

// BuildIndex groups items by level in one pass. Items without a usable level are left
// out of every bucket and reported as warnings; they never abort the build.
func BuildIndex[T Leveled](collection string, items []T, logger *slog.Logger) (*Index[T], []types.DataQualityWarning) {
	idx := &Index[T]{
		buckets: make(map[string][]T),
		all:     make([]T, 0, len(items)),
	}

	var warnings []types.DataQualityWarning
	for _, item := range items {
		level := item.HierLevel()
		if !level.Valid() || level.IsAll() {
			idx.excluded++
			warnings = append(warnings, types.DataQualityWarning{
				Kind:       types.WarningMissingLevel,
				Collection: collection,
				FeatureID:  item.FeatureID(),
				Detail:     "no usable hierarchy level",
			})
			continue
		}

		key := level.Key()
		if _, ok := idx.buckets[key]; !ok {
			idx.levels = append(idx.levels, level)
		}
		idx.buckets[key] = append(idx.buckets[key], item)
		idx.all = append(idx.all, item)
	}

	if logger != nil && len(warnings) > 0 {
		logger.Warn("Features excluded from level index",
			"collection", collection,
			"excluded", idx.excluded,
			"indexed", len(idx.all))
		for _, w := range warnings {
			logger.Debug("Excluded feature", "warning", w.String())
		}
	}

	return idx, warnings
}

// Bucket returns the features of a level in source order. Unknown levels yield an empty
// slice. The AllLevels sentinel returns every indexed feature. Callers must not modify
// the returned slice.
func (idx *Index[T]) Bucket(level types.Level) []T {
	if level.IsAll() {
		return idx.all
	}
	if b, ok := idx.buckets[level.Key()]; ok {
		return b
	}
	return []T{}
}

// All returns every indexed feature in source order.
func (idx *Index[T]) All() []T {
	return idx.all
}

// Levels returns the indexed levels in order of first appearance.
func (idx *Index[T]) Levels() []types.Level {
	return idx.levels
}

// Count returns the size of a level's bucket.
func (idx *Index[T]) Count(level types.Level) int {
	return len(idx.Bucket(level))
}

// Len returns the number of indexed features.
func (idx *Index[T]) Len() int {
	return len(idx.all)
}

// Excluded returns the number of features left out for lack of a level.
func (idx *Index[T]) Excluded() int {
	return idx.excluded
}

// Summary describes the bucket sizes, e.g. "4:120 5:87".
func (idx *Index[T]) Summary() string {
	var sb strings.Builder
	for i, l := range idx.levels {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s:%d", l.Key(), len(idx.buckets[l.Key()]))
	}
	return sb.String()
}

// NameIndex groups features by a case-insensitive trimmed name.
type NameIndex[T any] struct {
	buckets map[string][]T
}

// BuildNameIndex indexes items under the name returned by key. Empty names are skipped.
func BuildNameIndex[T any](items []T, key func(T) string) *NameIndex[T] {
	idx := &NameIndex[T]{buckets: make(map[string][]T)}
	for _, item := range items {
		k := normalizeName(key(item))
		if k == "" {
			continue
		}
		idx.buckets[k] = append(idx.buckets[k], item)
	}
	return idx
}

// Lookup returns the features stored under name.
func (idx *NameIndex[T]) Lookup(name string) []T {
	if b, ok := idx.buckets[normalizeName(name)]; ok {
		return b
	}
	return []T{}
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
