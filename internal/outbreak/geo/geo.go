// Package geo provides spherical-geometry helpers used by snapshot
// aggregation: a centroid computed on the unit sphere (so that
// centroids near the antimeridian or the poles behave correctly) and
// great-circle distance. Ported from original_source's helpers.py.
package geo

import "math"

const earthRadiusMeters = 6371000

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Centroid computes the geometric centroid of points by averaging
// their unit-sphere Cartesian coordinates and renormalizing, rather
// than naively averaging lat/lon, which breaks down near the
// antimeridian and at the poles. Returns the zero Point if points is
// empty.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}

	var sx, sy, sz float64
	for _, p := range points {
		x, y, z := toUnitSphere(p.Lat, p.Lon)
		sx += x
		sy += y
		sz += z
	}
	n := float64(len(points))
	sx /= n
	sy /= n
	sz /= n

	norm := math.Sqrt(sx*sx + sy*sy + sz*sz)
	if norm == 0 {
		// Antipodal points exactly cancel; fall back to the first
		// point rather than dividing by zero.
		return points[0]
	}
	return fromUnitSphere(sx/norm, sy/norm, sz/norm)
}

func toUnitSphere(lat, lon float64) (x, y, z float64) {
	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180
	x = math.Cos(latRad) * math.Cos(lonRad)
	y = math.Cos(latRad) * math.Sin(lonRad)
	z = math.Sin(latRad)
	return x, y, z
}

func fromUnitSphere(x, y, z float64) Point {
	lat := math.Asin(z) * 180 / math.Pi
	lon := math.Atan2(y, x) * 180 / math.Pi
	return Point{Lat: lat, Lon: lon}
}

// metersPerDegreeLat is the standard approximation used throughout the
// original implementation's own meters<->degrees conversions (see
// splines.py's meters_to_deg_lat/meters_to_deg_lon).
const metersPerDegreeLat = 111320.0

// ProjectEquirectangular converts a lat/lon pair into the report's
// equal-area projected coordinates (utm_x, utm_y, meters) the ingest
// boundary is documented to already provide. Report ingestion's real
// projection service is out of scope (spec.md §1); this local
// equirectangular approximation, centered on the point itself for the
// longitude scale factor, is accurate enough at the neighborhood scale
// DBSCAN's eps operates at (single-digit kilometers) without pulling
// in a geodesy library the corpus doesn't use.
func ProjectEquirectangular(lat, lon float64) (utmX, utmY float64) {
	utmX = lon * metersPerDegreeLat * math.Cos(lat*math.Pi/180)
	utmY = lat * metersPerDegreeLat
	return utmX, utmY
}

// HaversineMeters returns the great-circle distance between two
// lat/lon points, in meters.
func HaversineMeters(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lon1 := a.Lon * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	lon2 := b.Lon * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1
	h := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}
