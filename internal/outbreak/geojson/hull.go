package geojson

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// convexHull computes the convex hull of points via Andrew's monotone
// chain, returning vertices in counter-clockwise order with no
// repeated closing vertex. Points are expected in (x, y) = (lon, lat)
// order so that cross-product sign follows the usual planar
// convention.
//
// Fewer than 3 distinct points, or all points collinear, returns the
// distinct input points unchanged (the caller falls back to Point
// geometry in that case).
func convexHull(points []r2.Vec) []r2.Vec {
	pts := distinct(points)
	if len(pts) < 3 {
		return pts
	}

	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	lower := buildChain(pts)
	upper := buildChain(reversed(pts))

	lower = lower[:len(lower)-1]
	upper = upper[:len(upper)-1]
	hull := append(lower, upper...)

	if isCollinear(hull) {
		return pts
	}
	return hull
}

// buildChain runs the monotone-chain scan in the order points are
// given, dropping points that make a clockwise (or straight) turn.
func buildChain(pts []r2.Vec) []r2.Vec {
	var chain []r2.Vec
	for _, p := range pts {
		for len(chain) >= 2 && cross(chain[len(chain)-2], chain[len(chain)-1], p) <= 0 {
			chain = chain[:len(chain)-1]
		}
		chain = append(chain, p)
	}
	return chain
}

func cross(o, a, b r2.Vec) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func distinct(points []r2.Vec) []r2.Vec {
	seen := make(map[r2.Vec]bool, len(points))
	out := make([]r2.Vec, 0, len(points))
	for _, p := range points {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func reversed(pts []r2.Vec) []r2.Vec {
	out := make([]r2.Vec, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

func isCollinear(hull []r2.Vec) bool {
	if len(hull) < 3 {
		return true
	}
	for i := 2; i < len(hull); i++ {
		if cross(hull[0], hull[1], hull[i]) != 0 {
			return false
		}
	}
	return true
}
