// Package geojson turns cluster and predicted snapshots into map-ready
// GeoJSON, grounded on splines.py's convex-hull + spline approach:
// union the member points into a rough footprint, take its convex
// hull, then smooth the hull ring for display. Real SciPy splines are
// unavailable here, so the smoothing pass is a Catmull-Rom loop
// instead of splprep/splev (see smooth.go).
package geojson

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
)

// minHullPoints is the fewest distinct points a convex hull can be
// built from; below this, FetchLatestData falls back to Point geometry
// per spec.md §6's edge case.
const minHullPoints = 3

// Geometry is a GeoJSON geometry object: either a Polygon (one closed
// ring, lon/lat order) or a Point.
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates interface{} `json:"coordinates"`
}

// Feature is a single GeoJSON feature: one cluster's footprint plus
// its descriptive properties.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// Metadata is FetchLatestData's top-level metadata object.
type Metadata struct {
	TotalClusters int       `json:"total_clusters"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// FeatureCollection is the FetchLatestData response body.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
	Metadata Metadata  `json:"metadata"`
}

// BuildClusterFeature builds one Feature for a ClusterSnapshot: a
// spline-smoothed convex-hull Polygon over its member reports, or a
// Point at the centroid if fewer than minHullPoints distinct points
// are available or the hull degenerates. timedeltaDays is carried from
// the enclosing TimedeltaSnapshot since a ClusterSnapshot on its own
// does not know its window width.
func BuildClusterFeature(cs outbreak.ClusterSnapshot, timedeltaDays int) Feature {
	geometry := clusterGeometry(cs)
	return Feature{
		Type:     "Feature",
		Geometry: geometry,
		Properties: map[string]interface{}{
			"cluster_id":        string(cs.ClusterID),
			"time_window_start": cs.TimeWindowStart,
			"time_window_end":   cs.TimeWindowEnd,
			"timedelta":         timedeltaDays,
			"report_count":      cs.ReportCount(),
			"common_symptoms":   cs.CommonSymptoms.Slice(),
			"centroid":          []float64{cs.Centroid[0], cs.Centroid[1]},
		},
	}
}

func clusterGeometry(cs outbreak.ClusterSnapshot) Geometry {
	points := make([]r2.Vec, 0, len(cs.Reports))
	for _, r := range cs.Reports {
		points = append(points, r2.Vec{X: r.Lon, Y: r.Lat})
	}

	ring, ok := hullRing(points)
	if !ok {
		return pointGeometry(cs.Centroid)
	}
	return polygonGeometry(ring)
}

// hullRing builds the smoothed, closed convex-hull ring for points. It
// reports ok=false when there are too few distinct points or the hull
// collapses to a line (numeric collapse), matching spec.md §6's
// fallback condition.
func hullRing(points []r2.Vec) ([]r2.Vec, bool) {
	distinctPoints := distinct(points)
	if len(distinctPoints) < minHullPoints {
		return nil, false
	}

	hull := convexHull(points)
	if len(hull) < minHullPoints || isCollinear(hull) {
		return nil, false
	}

	smoothed := smoothRing(hull)
	return closeRing(smoothed), true
}

func closeRing(ring []r2.Vec) []r2.Vec {
	if len(ring) == 0 {
		return ring
	}
	first := ring[0]
	last := ring[len(ring)-1]
	if first == last {
		return ring
	}
	closed := make([]r2.Vec, len(ring)+1)
	copy(closed, ring)
	closed[len(ring)] = first
	return closed
}

func polygonGeometry(ring []r2.Vec) Geometry {
	coords := make([][]float64, len(ring))
	for i, p := range ring {
		coords[i] = []float64{p.X, p.Y}
	}
	return Geometry{Type: "Polygon", Coordinates: [][][]float64{coords}}
}

func pointGeometry(centroid [2]float64) Geometry {
	lat, lon := centroid[0], centroid[1]
	return Geometry{Type: "Point", Coordinates: []float64{lon, lat}}
}

// Predicted-polygon sizing constants, ported from splines.py's
// compute_predicted_spline defaults.
const (
	predictedBaseMeters      = 300.0
	predictedCountScale      = 120.0
	predictedIntensityWeight = 0.6
	predictedMaxIntensity    = 5.0
	predictedRingPoints      = 64
	metersPerDegreeLat       = 111320.0
)

// BuildPredictedFeature synthesizes a display polygon for a
// PredictedSnapshot: since a forecast has no member reports to take a
// hull of, its footprint is an ellipse-ish ring whose radius grows
// with sqrt(predicted report count) and is amplified by predicted
// intensity, exactly as splines.py's compute_predicted_spline derives
// a radius for forecasted clusters.
func BuildPredictedFeature(p outbreak.PredictedSnapshot) Feature {
	lat, lon := p.Centroid[0], p.Centroid[1]
	ring := predictedRing(lat, lon, p.ReportCount, p.Intensity)
	return Feature{
		Type:     "Feature",
		Geometry: polygonGeometry(ring),
		Properties: map[string]interface{}{
			"cluster_id":        string(p.ClusterID),
			"time_window_start": p.TimeWindowStart,
			"time_window_end":   p.TimeWindowEnd,
			"report_count":      p.ReportCount,
			"intensity":         p.Intensity,
			"common_symptoms":   p.CommonSymptoms.Slice(),
			"centroid":          []float64{lat, lon},
		},
	}
}

func predictedRing(lat, lon float64, reportCount int, intensity float64) []r2.Vec {
	countFactor := 0.0
	if reportCount > 0 {
		countFactor = math.Sqrt(float64(reportCount))
	}

	intensityNorm := math.Max(0, math.Min(intensity/predictedMaxIntensity, 1.0))
	intensityFactor := 1.0 + predictedIntensityWeight*intensityNorm

	radiusMeters := predictedBaseMeters + predictedCountScale*countFactor*intensityFactor
	degLat := radiusMeters / metersPerDegreeLat
	degLon := radiusMeters / (metersPerDegreeLat * math.Cos(lat*math.Pi/180))

	ring := make([]r2.Vec, 0, predictedRingPoints+1)
	for i := 0; i < predictedRingPoints; i++ {
		theta := 2 * math.Pi * float64(i) / float64(predictedRingPoints)
		ring = append(ring, r2.Vec{
			X: lon + degLon*math.Cos(theta),
			Y: lat + degLat*math.Sin(theta),
		})
	}
	return closeRing(ring)
}

// BuildFeatureCollection assembles every cluster feature from the
// latest timedelta snapshots into one FetchLatestData response.
func BuildFeatureCollection(timedeltas []outbreak.TimedeltaSnapshot, generatedAt time.Time) FeatureCollection {
	var features []Feature
	totalClusters := 0
	for _, td := range timedeltas {
		for _, cs := range td.Snapshots {
			features = append(features, BuildClusterFeature(cs, td.TimedeltaDays))
			totalClusters++
		}
	}
	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
		Metadata: Metadata{TotalClusters: totalClusters, GeneratedAt: generatedAt},
	}
}

// WindowBounds returns the earliest time_window_start and latest
// time_window_end across timedeltas, the (time_window_start,
// time_window_end) pair FetchLatestData returns alongside the
// collection. The zero time is returned for both if timedeltas is
// empty.
func WindowBounds(timedeltas []outbreak.TimedeltaSnapshot) (start, end time.Time) {
	for i, td := range timedeltas {
		if i == 0 || td.TimeWindowStart.Before(start) {
			start = td.TimeWindowStart
		}
		if i == 0 || td.TimeWindowEnd.After(end) {
			end = td.TimeWindowEnd
		}
	}
	return start, end
}
