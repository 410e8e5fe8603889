package geojson

import "gonum.org/v1/gonum/spatial/r2"

// smoothPointsPerSegment is how many interpolated points a Catmull-Rom
// pass emits between each pair of hull vertices; the original Python
// splprep/splev call samples a fixed 200 points around the whole ring
// regardless of hull size, which this mirrors closely enough for a
// display polygon without pulling in a full B-spline solver.
const smoothPointsPerSegment = 12

// smoothRing takes a closed convex-hull ring (no repeated closing
// vertex) and returns a denser, Catmull-Rom-smoothed closed ring,
// replacing scipy's splprep/splev periodic spline fit from
// splines.py's compute_hull_spline.
func smoothRing(hull []r2.Vec) []r2.Vec {
	n := len(hull)
	if n < 3 {
		return hull
	}

	out := make([]r2.Vec, 0, n*smoothPointsPerSegment)
	for i := 0; i < n; i++ {
		p0 := hull[(i-1+n)%n]
		p1 := hull[i]
		p2 := hull[(i+1)%n]
		p3 := hull[(i+2)%n]
		for step := 0; step < smoothPointsPerSegment; step++ {
			t := float64(step) / float64(smoothPointsPerSegment)
			out = append(out, catmullRom(p0, p1, p2, p3, t))
		}
	}
	return out
}

// catmullRom evaluates the standard (tau=0.5) Catmull-Rom basis at
// parameter t in [0,1] between p1 and p2, using p0 and p3 as the
// neighboring control points.
func catmullRom(p0, p1, p2, p3 r2.Vec, t float64) r2.Vec {
	t2 := t * t
	t3 := t2 * t

	b0 := -0.5*t3 + t2 - 0.5*t
	b1 := 1.5*t3 - 2.5*t2 + 1.0
	b2 := -1.5*t3 + 2*t2 + 0.5*t
	b3 := 0.5*t3 - 0.5*t2

	return r2.Vec{
		X: b0*p0.X + b1*p1.X + b2*p2.X + b3*p3.X,
		Y: b0*p0.Y + b1*p1.Y + b2*p2.Y + b3*p3.Y,
	}
}
