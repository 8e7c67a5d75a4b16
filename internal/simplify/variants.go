package simplify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/MeKo-Tech/mountainatlas/internal/worker"
)

// Tier is one precomputed level of detail.
type Tier struct {
	Name        string  `json:"name" mapstructure:"name"`
	Tolerance   float64 `json:"tolerance" mapstructure:"tolerance"` // degrees
	HighQuality bool    `json:"high_quality" mapstructure:"high_quality"`
	MinZoom     float64 `json:"min_zoom" mapstructure:"min_zoom"` // first zoom level the tier is used at
}

// SourceTier renders the unsimplified geometry.
var SourceTier = Tier{Name: "source"}

// DefaultTiers returns the coarse, medium and fine tiers.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "coarse", Tolerance: 0.02, MinZoom: 0},
		{Name: "medium", Tolerance: 0.005, MinZoom: 6},
		{Name: "fine", Tolerance: 0.001, HighQuality: true, MinZoom: 9},
	}
}

// Variants holds every tier's simplified copy of the areas. It is immutable after
// Precompute returns.
type Variants struct {
	areas    map[string][]types.AreaFeature
	vertices map[string]int
	tiers    []Tier // ascending MinZoom
}

// Precompute simplifies the areas once per tier on a worker pool. An empty tier list
// yields the source tier only.
func Precompute(ctx context.Context, areas []types.AreaFeature, tiers []Tier, workers int, logger *slog.Logger) (*Variants, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(tiers) == 0 {
		tiers = []Tier{SourceTier}
	}

	sorted := slices.Clone(tiers)
	slices.SortStableFunc(sorted, func(a, b Tier) int {
		switch {
		case a.MinZoom < b.MinZoom:
			return -1
		case a.MinZoom > b.MinZoom:
			return 1
		default:
			return 0
		}
	})

	seen := make(map[string]bool, len(sorted))
	for _, t := range sorted {
		if t.Name == "" {
			return nil, fmt.Errorf("simplification tier with tolerance %g has no name", t.Tolerance)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("duplicate simplification tier %q", t.Name)
		}
		seen[t.Name] = true
	}

	results := make([][]types.AreaFeature, len(sorted))
	tasks := make([]worker.Task, len(sorted))
	for i, t := range sorted {
		tasks[i] = worker.Task{
			Key: t.Name,
			Run: func(ctx context.Context) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[i] = Simplify(areas, t.Tolerance, t.HighQuality)
				return nil
			},
		}
	}

	pool := worker.New(worker.Config{Workers: workers})
	for _, r := range pool.Run(ctx, tasks) {
		if r.Err != nil {
			return nil, fmt.Errorf("failed to simplify tier %s: %w", r.Task.Key, r.Err)
		}
		logger.Debug("Simplified tier", "tier", r.Task.Key, "elapsed", r.Elapsed)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("simplification cancelled: %w", err)
	}

	v := &Variants{
		tiers:    sorted,
		areas:    make(map[string][]types.AreaFeature, len(sorted)),
		vertices: make(map[string]int, len(sorted)),
	}
	source := vertexCount(areas)
	for i, t := range sorted {
		v.areas[t.Name] = results[i]
		v.vertices[t.Name] = vertexCount(results[i])
		logger.Info("Precomputed simplification tier",
			"tier", t.Name,
			"tolerance", t.Tolerance,
			"vertices", v.vertices[t.Name],
			"source_vertices", source)
	}

	return v, nil
}

// Tiers returns the tiers in ascending zoom order.
func (v *Variants) Tiers() []Tier {
	return slices.Clone(v.tiers)
}

// Tier returns the areas of a named tier.
func (v *Variants) Tier(name string) ([]types.AreaFeature, bool) {
	areas, ok := v.areas[name]
	return areas, ok
}

// TierForZoom returns the most detailed tier whose MinZoom is at or below zoom, or the
// coarsest tier when zoom is below every MinZoom.
func (v *Variants) TierForZoom(zoom float64) Tier {
	chosen := v.tiers[0]
	for _, t := range v.tiers {
		if t.MinZoom <= zoom {
			chosen = t
		}
	}
	return chosen
}

// ForZoom returns the tier and areas used at zoom.
func (v *Variants) ForZoom(zoom float64) (Tier, []types.AreaFeature) {
	t := v.TierForZoom(zoom)
	return t, v.areas[t.Name]
}

// Tolerance returns the areas of the tier with exactly the given tolerance.
func (v *Variants) Tolerance(tolerance float64) ([]types.AreaFeature, bool) {
	for _, t := range v.tiers {
		if t.Tolerance == tolerance {
			return v.areas[t.Name], true
		}
	}
	return nil, false
}

// Vertices returns the total vertex count of a tier.
func (v *Variants) Vertices(name string) int {
	return v.vertices[name]
}

func vertexCount(areas []types.AreaFeature) int {
	n := 0
	for _, a := range areas {
		n += types.VertexCount(a.Geometry)
	}
	return n
}
