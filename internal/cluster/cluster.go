// Package cluster groups peak points into count-bearing map clusters.
package cluster

import (
	"context"
	"fmt"
	"runtime"

	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gonum.org/v1/gonum/stat"
)

// DefaultChunkSize is the number of points linked between two yields in AssignChunked.
const DefaultChunkSize = 2000

// Cluster is a group of peaks rendered as one marker.
type Cluster struct {
	Members  []types.PeakFeature // in input order
	Bound    orb.Bound
	Position orb.Point // centroid of the members
	ID       int
	Count    int
	Extent   float64 // meters from Position to the farthest member
}

// Single reports whether the cluster holds exactly one peak.
func (c Cluster) Single() bool {
	return c.Count == 1
}

// Assign groups peaks by single linkage: two peaks share a cluster when a chain of peaks,
// each consecutive pair within the policy radius, connects them. The result is ordered by
// the position of each cluster's first member in the input.
func Assign(points []types.PeakFeature, policy RadiusPolicy) []Cluster {
	a := newAssigner(points, policy)
	for i := range points {
		a.grid.insert(i)
	}
	return a.collect()
}

// AssignChunked computes the same result as Assign but links chunkSize points at a time,
// yielding the processor and checking ctx between chunks.
func AssignChunked(ctx context.Context, points []types.PeakFeature, policy RadiusPolicy, chunkSize int) ([]Cluster, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	a := newAssigner(points, policy)
	for start := 0; start < len(points); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("clustering interrupted after %d of %d points: %w", start, len(points), err)
		}

		end := min(start+chunkSize, len(points))
		for i := start; i < end; i++ {
			a.grid.insert(i)
		}

		runtime.Gosched()
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("clustering interrupted: %w", err)
	}
	return a.collect(), nil
}

// TotalCount returns the sum of the cluster counts.
func TotalCount(clusters []Cluster) int {
	n := 0
	for _, c := range clusters {
		n += c.Count
	}
	return n
}

type assigner struct {
	grid   *grid
	points []types.PeakFeature
}

func newAssigner(points []types.PeakFeature, policy RadiusPolicy) *assigner {
	raw := make([]orb.Point, len(points))
	for i, p := range points {
		raw[i] = p.Point
	}

	project := policy.projection(raw)
	projected := make([]orb.Point, len(raw))
	for i, p := range raw {
		projected[i] = project(p)
	}

	return &assigner{
		points: points,
		grid:   newGrid(raw, projected, policy.Radius),
	}
}

func (a *assigner) collect() []Cluster {
	if len(a.points) == 0 {
		return []Cluster{}
	}

	order := make([]int, 0)
	groups := make(map[int][]int)
	for i := range a.points {
		root := a.grid.uf.find(i)
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], i)
	}

	clusters := make([]Cluster, 0, len(order))
	for id, root := range order {
		clusters = append(clusters, a.build(id, groups[root]))
	}
	return clusters
}

func (a *assigner) build(id int, idx []int) Cluster {
	members := make([]types.PeakFeature, len(idx))
	lons := make([]float64, len(idx))
	lats := make([]float64, len(idx))
	mp := make(orb.MultiPoint, len(idx))

	for k, i := range idx {
		p := a.points[i]
		members[k] = p
		lons[k] = p.Point.Lon()
		lats[k] = p.Point.Lat()
		mp[k] = p.Point
	}

	pos := orb.Point{stat.Mean(lons, nil), stat.Mean(lats, nil)}
	if len(idx) == 1 {
		pos = members[0].Point
	}

	var extent float64
	for _, p := range mp {
		extent = max(extent, geo.Distance(pos, p))
	}

	return Cluster{
		ID:       id,
		Position: pos,
		Count:    len(members),
		Members:  members,
		Bound:    mp.Bound(),
		Extent:   extent,
	}
}
