package cluster

import (
	"math"

	"github.com/paulmach/orb"
)

type cellKey struct {
	x, y int64
}

// grid links projected points that lie within a radius of each other.
//
// The cell edge is radius/√2, so two points in the same cell are always within the radius
// and each cell holds members of a single component. Points within the radius are at
// most two cells apart on either axis, so a 5x5 neighbourhood covers every candidate.
type grid struct {
	cells   map[cellKey][]int
	exact   map[orb.Point]int
	pos     []orb.Point
	raw     []orb.Point
	uf      *unionFind
	size    float64
	radius2 float64
}

func newGrid(raw, projected []orb.Point, radius float64) *grid {
	g := &grid{
		pos: projected,
		raw: raw,
		uf:  newUnionFind(len(projected)),
	}

	if radius <= 0 {
		g.exact = make(map[orb.Point]int, len(raw))
		return g
	}

	g.size = radius / math.Sqrt2
	g.radius2 = radius * radius
	g.cells = make(map[cellKey][]int, len(projected)/4+1)
	return g
}

func (g *grid) key(p orb.Point) cellKey {
	return cellKey{
		x: int64(math.Floor(p.X() / g.size)),
		y: int64(math.Floor(p.Y() / g.size)),
	}
}

// insert links point i with every previously inserted point within the radius.
func (g *grid) insert(i int) {
	if g.exact != nil {
		if first, ok := g.exact[g.raw[i]]; ok {
			g.uf.union(first, i)
		} else {
			g.exact[g.raw[i]] = i
		}
		return
	}

	home := g.key(g.pos[i])
	if members := g.cells[home]; len(members) > 0 {
		g.uf.union(members[0], i)
	}

	for dx := int64(-2); dx <= 2; dx++ {
		for dy := int64(-2); dy <= 2; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			members := g.cells[cellKey{home.x + dx, home.y + dy}]
			if len(members) == 0 || g.uf.find(members[0]) == g.uf.find(i) {
				continue
			}
			for _, j := range members {
				if g.dist2(i, j) <= g.radius2 {
					g.uf.union(i, j)
					break
				}
			}
		}
	}

	g.cells[home] = append(g.cells[home], i)
}

func (g *grid) dist2(i, j int) float64 {
	dx := g.pos[i].X() - g.pos[j].X()
	dy := g.pos[i].Y() - g.pos[j].Y()
	return dx*dx + dy*dy
}

type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}
