package simplify

import (
	"context"
	"math"
	"testing"

	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wobblyRing returns a closed ring around center with n vertices and small radial noise.
func wobblyRing(center orb.Point, radius float64, n int) orb.Ring {
	r := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		rr := radius * (1 + 0.01*math.Sin(float64(i)*7))
		r = append(r, orb.Point{center.X() + rr*math.Cos(a), center.Y() + rr*math.Sin(a)})
	}
	return append(r, r[0])
}

func testAreas() []types.AreaFeature {
	return []types.AreaFeature{
		{
			ID:         0,
			Level:      types.NewLevel("4"),
			MapName:    "Alps",
			Properties: map[string]any{"MapName": "Alps"},
			Geometry:   orb.Polygon{wobblyRing(orb.Point{10, 46}, 2, 400), wobblyRing(orb.Point{10, 46}, 0.5, 100)},
		},
		{
			ID:       1,
			Level:    types.NewLevel("3"),
			Geometry: orb.MultiPolygon{{wobblyRing(orb.Point{0, 42}, 1, 200)}, {wobblyRing(orb.Point{3, 42}, 0.3, 50)}},
		},
		{
			ID:       2,
			Level:    types.NewLevel("4"),
			Geometry: orb.Polygon{{{1, 1}, {1.0001, 1}, {1.0001, 1.0001}, {1, 1.0001}, {1, 1}}},
		},
	}
}

func TestSimplifyPreservesFeatures(t *testing.T) {
	areas := testAreas()

	for _, hq := range []bool{true, false} {
		out := Simplify(areas, 0.01, hq)
		require.Len(t, out, len(areas))

		for i := range areas {
			assert.Equal(t, areas[i].ID, out[i].ID)
			assert.Equal(t, areas[i].Properties, out[i].Properties)
			assert.IsType(t, areas[i].Geometry, out[i].Geometry)
			assert.LessOrEqual(t, types.VertexCount(out[i].Geometry), types.VertexCount(areas[i].Geometry))
		}

		assert.Less(t, types.VertexCount(out[0].Geometry), types.VertexCount(areas[0].Geometry))
		// The tiny square would collapse and keeps its source ring.
		assert.Equal(t, areas[2].Geometry, out[2].Geometry)
	}
}

func TestSimplifyLargerToleranceFewerVertices(t *testing.T) {
	areas := testAreas()

	fine := Simplify(areas, 0.001, true)
	coarse := Simplify(areas, 0.05, true)

	assert.Less(t, types.VertexCount(coarse[0].Geometry), types.VertexCount(fine[0].Geometry))
}

func TestSimplifyIdempotent(t *testing.T) {
	areas := testAreas()

	for _, hq := range []bool{true, false} {
		for _, tol := range []float64{0.001, 0.005, 0.02} {
			once := Simplify(areas, tol, hq)
			twice := Simplify(once, tol, hq)

			require.Len(t, twice, len(once), "highQuality=%v tolerance=%v", hq, tol)
			for i := range once {
				assert.IsType(t, once[i].Geometry, twice[i].Geometry)
				assert.LessOrEqual(t, types.VertexCount(twice[i].Geometry), types.VertexCount(once[i].Geometry),
					"highQuality=%v tolerance=%v feature %d", hq, tol, i)
				assert.InDelta(t, types.VertexCount(once[i].Geometry), types.VertexCount(twice[i].Geometry), 2)
			}
		}
	}
}

func TestSimplifyDoesNotMutateSource(t *testing.T) {
	areas := testAreas()
	before := orb.Clone(areas[0].Geometry)

	Simplify(areas, 0.05, false)

	assert.Equal(t, before, areas[0].Geometry)
}

func TestSimplifyZeroTolerance(t *testing.T) {
	areas := testAreas()
	out := Simplify(areas, 0, true)

	assert.Equal(t, areas[0].Geometry, out[0].Geometry)

	// deep copy
	out[0].Geometry.(orb.Polygon)[0][0] = orb.Point{0, 0}
	assert.NotEqual(t, orb.Point{0, 0}, areas[0].Geometry.(orb.Polygon)[0][0])
}

func TestSimplifyNilGeometry(t *testing.T) {
	out := Simplify([]types.AreaFeature{{ID: 9}}, 0.01, true)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Geometry)
}

func TestPrecompute(t *testing.T) {
	areas := testAreas()

	v, err := Precompute(context.Background(), areas, DefaultTiers(), 3, nil)
	require.NoError(t, err)

	for _, tier := range DefaultTiers() {
		got, ok := v.Tier(tier.Name)
		require.True(t, ok, tier.Name)
		assert.Len(t, got, len(areas))
	}

	coarse, _ := v.Tier("coarse")
	fine, _ := v.Tier("fine")
	assert.Less(t, v.Vertices("coarse"), v.Vertices("fine"))
	assert.Less(t, types.VertexCount(coarse[0].Geometry), types.VertexCount(fine[0].Geometry))

	tests := []struct {
		zoom float64
		want string
	}{
		{0, "coarse"},
		{5.9, "coarse"},
		{6, "medium"},
		{8, "medium"},
		{9, "fine"},
		{18, "fine"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, v.TierForZoom(tt.zoom).Name, "zoom %v", tt.zoom)
	}

	byTol, ok := v.Tolerance(0.005)
	require.True(t, ok)
	medium, _ := v.Tier("medium")
	assert.Equal(t, medium, byTol)

	_, ok = v.Tolerance(0.123)
	assert.False(t, ok)
}

func TestPrecomputeValidation(t *testing.T) {
	_, err := Precompute(context.Background(), nil, []Tier{{Name: "a"}, {Name: "a", MinZoom: 3}}, 1, nil)
	assert.Error(t, err)

	_, err = Precompute(context.Background(), nil, []Tier{{Tolerance: 1}}, 1, nil)
	assert.Error(t, err)

	v, err := Precompute(context.Background(), testAreas(), nil, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "source", v.TierForZoom(10).Name)
}

func TestPrecomputeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Precompute(ctx, testAreas(), DefaultTiers(), 2, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
