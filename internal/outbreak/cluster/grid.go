package cluster

import "math"

// grid is a regular-grid spatial index over the normalized (x, y)
// coordinate subspace, used to prune composite-distance candidates
// before falling back to the full spatial+embedding evaluation.
// Adapted from internal/lidar/clustering.go's SpatialIndex: cell ids
// use the same Szudzik-pairing zigzag encoding for negative coordinates.
type grid struct {
	cellSize float64
	buckets  map[int64][]int
}

func newGrid(cellSize float64) *grid {
	return &grid{cellSize: cellSize, buckets: make(map[int64][]int)}
}

func (g *grid) build(points []point) {
	g.buckets = make(map[int64][]int, len(points))
	for i, p := range points {
		id := g.cellID(p.x, p.y)
		g.buckets[id] = append(g.buckets[id], i)
	}
}

func (g *grid) cellID(x, y float64) int64 {
	cx := int64(math.Floor(x / g.cellSize))
	cy := int64(math.Floor(y / g.cellSize))
	return pair(zigzag(cx), zigzag(cy))
}

func zigzag(v int64) int64 {
	if v >= 0 {
		return 2 * v
	}
	return -2*v - 1
}

func pair(a, b int64) int64 {
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// regionQuery returns, among points in the 3x3 neighborhood of cells
// around points[i], those within radius under dist. The grid only
// indexes the spatial subspace, so candidates are a superset of the
// true composite-distance neighborhood; dist is still evaluated per
// candidate to apply the embedding term.
func (g *grid) regionQuery(points []point, i int, radius float64, dist func(i, j int) float64) []int {
	p := points[i]
	cx := int64(math.Floor(p.x / g.cellSize))
	cy := int64(math.Floor(p.y / g.cellSize))

	var out []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			id := pair(zigzag(cx+dx), zigzag(cy+dy))
			for _, j := range g.buckets[id] {
				if dist(i, j) <= radius {
					out = append(out, j)
				}
			}
		}
	}
	return out
}
