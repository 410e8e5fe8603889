// Package feature assembles per-report feature vectors combining
// normalized projected coordinates with a weighted embedding, so that
// downstream clustering sees spatial and semantic similarity on
// comparable scales.
package feature

import (
	"fmt"
	"math"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CoordScaler min-max scales the two projected coordinates jointly and
// records the original data range needed to denormalize distances
// later (the composite metric in package cluster).
type CoordScaler struct {
	MinX, MinY   float64
	DataRangeX   float64 // span of the first coordinate, in meters
	DataRangeY   float64
}

// Denormalize converts a normalized (x, y) pair back to meters.
func (s CoordScaler) Denormalize(x, y float64) (float64, float64) {
	return x*s.DataRangeX + s.MinX, y*s.DataRangeY + s.MinY
}

// Matrix is the output of BuildFeatures: an (n, 2+d) feature matrix,
// the scaler used to build the spatial columns, and the report ids in
// row order.
type Matrix struct {
	Data      *mat.Dense
	Scaler    CoordScaler
	ReportIDs []int64
	EmbedDim  int
}

// NumRows returns the number of reports represented.
func (m Matrix) NumRows() int {
	if m.Data == nil {
		return 0
	}
	r, _ := m.Data.Dims()
	return r
}

// SpatialAt returns the normalized (x, y) coordinate for row i.
func (m Matrix) SpatialAt(i int) (float64, float64) {
	return m.Data.At(i, 0), m.Data.At(i, 1)
}

// EmbeddingAt returns the weighted embedding for row i.
func (m Matrix) EmbeddingAt(i int) []float64 {
	emb := make([]float64, m.EmbedDim)
	for j := 0; j < m.EmbedDim; j++ {
		emb[j] = m.Data.At(i, 2+j)
	}
	return emb
}

// BuildFeatures implements §4.1: min-max scale coordinates into [0,1],
// weight the embedding subspace so its peak-to-peak magnitude matches
// the spatial subspace's, and concatenate the two. Reports with an
// embedding of the wrong dimension or any non-finite value are skipped
// by the caller before calling this function; BuildFeatures itself
// returns an error if the embedding dimensions differ across reports.
func BuildFeatures(reports []outbreak.Report) (Matrix, error) {
	n := len(reports)
	if n == 0 {
		return Matrix{}, nil
	}
	d := len(reports[0].Embedding)
	if d == 0 {
		return Matrix{}, fmt.Errorf("feature: reports have zero-dimensional embeddings")
	}

	utmX := make([]float64, n)
	utmY := make([]float64, n)
	ids := make([]int64, n)
	embeddings := make([][]float64, n)
	for i, r := range reports {
		if len(r.Embedding) != d {
			return Matrix{}, fmt.Errorf("feature: report %d has embedding dimension %d, want %d", r.ID, len(r.Embedding), d)
		}
		utmX[i] = r.UTMX
		utmY[i] = r.UTMY
		ids[i] = r.ID
		embeddings[i] = r.Embedding
	}

	minX, maxX := floats.Min(utmX), floats.Max(utmX)
	minY, maxY := floats.Min(utmY), floats.Max(utmY)
	rangeX := maxX - minX
	rangeY := maxY - minY

	coordsX := make([]float64, n)
	coordsY := make([]float64, n)
	for i := range reports {
		coordsX[i] = normalize(utmX[i], minX, rangeX)
		coordsY[i] = normalize(utmY[i], minY, rangeY)
	}

	spatialRange := (ptp(coordsX) + ptp(coordsY)) / 2

	// embedding_range: mean per-axis peak-to-peak across the d embedding dims.
	embeddingRange := meanAxisPTP(embeddings, d)

	weight := 1.0
	if embeddingRange != 0 {
		weight = spatialRange / embeddingRange
	}

	data := mat.NewDense(n, 2+d, nil)
	for i := 0; i < n; i++ {
		data.Set(i, 0, coordsX[i])
		data.Set(i, 1, coordsY[i])
		for j := 0; j < d; j++ {
			data.Set(i, 2+j, embeddings[i][j]*weight)
		}
	}

	return Matrix{
		Data: data,
		Scaler: CoordScaler{
			MinX: minX, MinY: minY,
			DataRangeX: rangeX, DataRangeY: rangeY,
		},
		ReportIDs: ids,
		EmbedDim:  d,
	}, nil
}

// ValidEmbedding reports whether emb has dimension want and every
// entry is finite, the ingest-boundary validation named in §4.1.
func ValidEmbedding(emb []float64, want int) bool {
	if len(emb) != want {
		return false
	}
	for _, v := range emb {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func normalize(v, min, rng float64) float64 {
	if rng == 0 {
		return 0
	}
	return (v - min) / rng
}

func ptp(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Max(xs) - floats.Min(xs)
}

// meanAxisPTP computes the mean, over the d embedding axes, of each
// axis's peak-to-peak span across the n embeddings.
func meanAxisPTP(embeddings [][]float64, d int) float64 {
	n := len(embeddings)
	if n == 0 {
		return 0
	}
	col := make([]float64, n)
	var sum float64
	for j := 0; j < d; j++ {
		for i := 0; i < n; i++ {
			col[i] = embeddings[i][j]
		}
		sum += ptp(col)
	}
	return sum / float64(d)
}
