// Package cluster implements the density-based clustering and
// time-gap splitting stages of the pipeline: DBSCAN over a composite
// spatial+semantic distance, followed by a pass that breaks any
// cluster spanning too large an intra-cluster time gap into
// time-contiguous segments.
package cluster

import (
	"math"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak/feature"
	"gonum.org/v1/gonum/floats"
)

// Params configures the composite-distance DBSCAN.
type Params struct {
	EpsMeters  float64
	MinSamples int
}

// spatialWeight and embeddingWeight are the fixed coefficients of the
// composite distance from spec.md §4.2:
//
//	d(x, y) = 0.1 * (spatial_dist_m(x, y) / 1000) + 0.5 * cosine_distance(emb(x), emb(y))
const (
	spatialWeight   = 0.1
	embeddingWeight = 0.5
)

// eps converts eps_meters into the normalized-metric radius DBSCAN
// consumes: eps = 0.1 * (eps_meters / 1000).
func eps(epsMeters float64) float64 {
	return spatialWeight * (epsMeters / 1000)
}

// gridCellSize picks a grid cell size, in normalized spatial units,
// approximately matching the spatial contribution of eps so the
// spatial index prunes effectively (adapted from
// internal/lidar/clustering.go's SpatialIndex, whose cell size
// matches the raw DBSCAN eps directly; here the spatial term is only
// part of the composite metric, so the cell size is derived from the
// portion of eps attributable to the spatial term alone).
func gridCellSize(epsMeters float64, dataRangeX float64) float64 {
	if dataRangeX == 0 {
		return 1
	}
	// Largest possible normalized spatial distance compatible with the
	// full eps budget being spent on the spatial term alone.
	maxSpatialMeters := (eps(epsMeters) / spatialWeight) * 1000
	cell := maxSpatialMeters / dataRangeX
	if cell <= 0 {
		return 1
	}
	return cell
}

// DBSCAN runs density-based clustering over the feature matrix and
// returns a length-n label vector, -1 for noise. Fewer than
// params.MinSamples reports always yields all-noise, never an error.
func DBSCAN(m feature.Matrix, params Params) []int {
	n := m.NumRows()
	labels := make([]int, n)
	if n == 0 {
		return labels
	}
	for i := range labels {
		labels[i] = 0 // 0 = unvisited
	}

	radius := eps(params.EpsMeters)
	cellSize := gridCellSize(params.EpsMeters, m.Scaler.DataRangeX)
	index := newGrid(cellSize)
	points := make([]point, n)
	for i := 0; i < n; i++ {
		x, y := m.SpatialAt(i)
		points[i] = point{x: x, y: y, emb: m.EmbeddingAt(i)}
	}
	index.build(points)

	dist := func(i, j int) float64 {
		return compositeDistance(points[i], points[j], m.Scaler.DataRangeX)
	}

	clusterID := 0
	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}
		neighbors := index.regionQuery(points, i, radius, dist)
		if len(neighbors) < params.MinSamples {
			labels[i] = -1
			continue
		}
		clusterID++
		expandCluster(points, index, labels, i, neighbors, clusterID, radius, params.MinSamples, dist)
	}
	return labels
}

func expandCluster(points []point, idx *grid, labels []int, seed int, neighbors []int, clusterID int, radius float64, minSamples int, dist func(i, j int) float64) {
	labels[seed] = clusterID
	queue := append([]int(nil), neighbors...)
	for q := 0; q < len(queue); q++ {
		j := queue[q]
		if labels[j] == -1 {
			labels[j] = clusterID
		}
		if labels[j] != 0 {
			continue
		}
		labels[j] = clusterID
		more := idx.regionQuery(points, j, radius, dist)
		if len(more) >= minSamples {
			queue = append(queue, more...)
		}
	}
}

// point is one feature-matrix row, with the embedding carried
// alongside its normalized spatial coordinate for composite-distance
// evaluation.
type point struct {
	x, y float64
	emb  []float64
}

// compositeDistance implements spec.md §4.2's weighted-sum metric.
// dataRangeX denormalizes the spatial subvector back to meters before
// taking its Euclidean norm, per spec.md's scaler.data_range_[0] rule.
func compositeDistance(a, b point, dataRangeX float64) float64 {
	dx := (a.x - b.x) * dataRangeX
	dy := (a.y - b.y) * dataRangeX
	spatialMeters := math.Hypot(dx, dy)
	cosDist := cosineDistance(a.emb, b.emb)
	return spatialWeight*(spatialMeters/1000) + embeddingWeight*cosDist
}

// cosineDistance is 1 - cosine similarity; zero vectors are treated as
// maximally dissimilar (distance 1) rather than dividing by zero.
func cosineDistance(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	sim := floats.Dot(a, b) / (na * nb)
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return 1 - sim
}
