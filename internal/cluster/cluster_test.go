package cluster

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peaksAt(points ...orb.Point) []types.PeakFeature {
	out := make([]types.PeakFeature, len(points))
	for i, p := range points {
		out[i] = types.PeakFeature{ID: i, Point: p, Name: types.DefaultPeakName}
	}
	return out
}

func TestAssignDegenerateInputs(t *testing.T) {
	t.Run("zero points", func(t *testing.T) {
		clusters := Assign(nil, DefaultPolicy())
		assert.Empty(t, clusters)
	})

	t.Run("single point", func(t *testing.T) {
		clusters := Assign(peaksAt(orb.Point{6.86, 45.83}), DefaultPolicy())
		require.Len(t, clusters, 1)
		assert.Equal(t, 1, clusters[0].Count)
		assert.True(t, clusters[0].Single())
		assert.Equal(t, orb.Point{6.86, 45.83}, clusters[0].Position)
		assert.Zero(t, clusters[0].Extent)
	})
}

func TestAssignIdenticalPositions(t *testing.T) {
	const n = 500
	points := make([]orb.Point, n)
	for i := range points {
		points[i] = orb.Point{10.1, 46.3}
	}

	for _, policy := range []RadiusPolicy{
		DefaultPolicy(),
		{Mode: ModeGeographic, Radius: 1000},
		{Mode: ModeScreen, Radius: 0},
	} {
		t.Run(policy.Mode.String(), func(t *testing.T) {
			clusters := Assign(peaksAt(points...), policy)
			require.Len(t, clusters, 1)
			assert.Equal(t, n, clusters[0].Count)
			assert.InDelta(t, 10.1, clusters[0].Position.Lon(), 1e-9)
			assert.InDelta(t, 46.3, clusters[0].Position.Lat(), 1e-9)
		})
	}
}

func TestAssignFarApartPoints(t *testing.T) {
	// 80px at zoom 6 is under two degrees of longitude.
	var points []orb.Point
	for i := 0; i < 6; i++ {
		for j := 0; j < 4; j++ {
			points = append(points, orb.Point{float64(i)*5 - 10, float64(j)*5 + 35})
		}
	}

	clusters := Assign(peaksAt(points...), DefaultPolicy())
	require.Len(t, clusters, len(points))
	for i, c := range clusters {
		assert.Equal(t, 1, c.Count)
		assert.Equal(t, i, c.ID)
		assert.Equal(t, i, c.Members[0].ID, "clusters follow input order")
	}
}

func TestAssignChainsNeighbours(t *testing.T) {
	policy := RadiusPolicy{Mode: ModeGeographic, Radius: 1000}

	// a-b and b-c are ~800m apart, a-c ~1600m.
	a := orb.Point{10, 46}
	b := orb.Point{10.0104, 46}
	c := orb.Point{10.0208, 46}
	far := orb.Point{11, 46}
	require.Less(t, geo.Distance(a, b), 1000.0)
	require.Greater(t, geo.Distance(a, c), 1000.0)

	clusters := Assign(peaksAt(a, far, c, b), policy)
	require.Len(t, clusters, 2)
	assert.Equal(t, 3, clusters[0].Count)
	assert.Equal(t, []int{0, 2, 3}, memberIDs(clusters[0]))
	assert.Equal(t, 1, clusters[1].Count)
	assert.Equal(t, 4, TotalCount(clusters))
	assert.True(t, clusters[0].Bound.Contains(b))
}

func TestAssignRespectsZoom(t *testing.T) {
	points := peaksAt(orb.Point{10, 46}, orb.Point{10.3, 46})

	low := Assign(points, DefaultPolicy().WithZoom(4))
	high := Assign(points, DefaultPolicy().WithZoom(12))

	assert.Len(t, low, 1)
	assert.Len(t, high, 2)
}

func TestAssignChunkedMatchesAssign(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	points := make([]orb.Point, 3000)
	for i := range points {
		points[i] = orb.Point{5 + rng.Float64()*12, 43 + rng.Float64()*5}
	}
	peaks := peaksAt(points...)

	for _, policy := range []RadiusPolicy{
		DefaultPolicy(),
		DefaultPolicy().WithZoom(9),
		{Mode: ModeGeographic, Radius: 5000},
	} {
		want := Assign(peaks, policy)
		for _, chunk := range []int{1, 7, 250, 5000} {
			got, err := AssignChunked(context.Background(), peaks, policy, chunk)
			require.NoError(t, err)
			require.Equal(t, want, got, "mode %s chunk %d", policy.Mode, chunk)
		}
		assert.Equal(t, len(peaks), TotalCount(want))
	}
}

func TestAssignChunkedCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AssignChunked(ctx, peaksAt(orb.Point{1, 1}, orb.Point{2, 2}), DefaultPolicy(), 1)
	require.ErrorIs(t, err, context.Canceled)
}

// Every pair of points closer than the radius must end up in the same cluster, and
// distinct clusters must not contain such a pair.
func TestAssignAgainstBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	points := make([]orb.Point, 400)
	for i := range points {
		points[i] = orb.Point{9 + rng.Float64()*3, 45 + rng.Float64()*2}
	}
	policy := RadiusPolicy{Mode: ModeScreen, Radius: 20, Zoom: 8, TileSize: 256}
	project := policy.projection(points)

	clusters := Assign(peaksAt(points...), policy)
	owner := make(map[int]int)
	for _, c := range clusters {
		for _, m := range c.Members {
			owner[m.ID] = c.ID
		}
	}

	for i := range points {
		for j := i + 1; j < len(points); j++ {
			pi, pj := project(points[i]), project(points[j])
			if math.Hypot(pi.X()-pj.X(), pi.Y()-pj.Y()) <= policy.Radius {
				assert.Equal(t, owner[i], owner[j], "points %d and %d are within the radius", i, j)
			}
		}
	}
}

func memberIDs(c Cluster) []int {
	ids := make([]int, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	return ids
}
