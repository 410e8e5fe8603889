// Package forecast predicts future cluster snapshots from a cluster's
// observed history via a first-order vector autoregression, falling
// back to repeating the last observation when history is too short.
// Ported from original_source's predict.py.
package forecast

import (
	"github.com/banshee-data/outbreak-cluster/internal/monitoring"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
)

// Params configures forecasting for one batch.
type Params struct {
	Steps           int
	MinObservations int
}

// ForecastAll runs Forecast independently per cluster. A failed fit
// for one cluster is logged and the cluster is skipped; it never
// aborts the rest of the batch.
func ForecastAll(history map[outbreak.ClusterID][]outbreak.ClusterSnapshot, params Params) []outbreak.PredictedSnapshot {
	var out []outbreak.PredictedSnapshot
	for clusterID, snapshots := range history {
		predicted, err := Forecast(clusterID, snapshots, params)
		if err != nil {
			monitoring.Logf("forecast: skipping cluster %s: %v", clusterID, err)
			continue
		}
		out = append(out, predicted...)
	}
	return out
}

// Forecast predicts params.Steps future snapshots for one cluster's
// history. Returns (nil, error) only on a genuine fit failure (the
// caller should skip this cluster and emit nothing); a too-short
// history is not an error, it triggers the last-observation fallback.
func Forecast(clusterID outbreak.ClusterID, snapshots []outbreak.ClusterSnapshot, params Params) ([]outbreak.PredictedSnapshot, error) {
	if len(snapshots) == 0 {
		return nil, nil
	}

	obs := buildObservations(snapshots)
	filled := reindex(obs)
	last := filled[len(filled)-1]

	if len(filled) < params.MinObservations {
		return fallback(clusterID, last, params.Steps), nil
	}

	m, err := fitVAR1(filled)
	if err != nil {
		return nil, err
	}

	steps := m.forecastSteps(last, params.Steps)
	out := make([]outbreak.PredictedSnapshot, params.Steps)
	windowStart := last.Time
	for i, s := range steps {
		windowStart = windowStart.AddDate(0, 0, 1)
		out[i] = outbreak.PredictedSnapshot{
			ClusterID:       clusterID,
			TimeWindowStart: windowStart,
			TimeWindowEnd:   windowStart.AddDate(0, 0, 1),
			Centroid:        [2]float64{s[1], s[2]},
			AvgEmbedding:    last.AvgEmbedding,
			ReportCount:     int(clampNonNegative(s[0])),
			CommonSymptoms:  last.CommonSymptoms,
			Intensity:       clampNonNegative(s[3]),
		}
	}
	return out, nil
}

// fallback repeats the last observed snapshot params.Steps times,
// advancing the time window by one day each step.
func fallback(clusterID outbreak.ClusterID, last Observation, steps int) []outbreak.PredictedSnapshot {
	out := make([]outbreak.PredictedSnapshot, steps)
	windowStart := last.Time
	for i := 0; i < steps; i++ {
		windowStart = windowStart.AddDate(0, 0, 1)
		out[i] = outbreak.PredictedSnapshot{
			ClusterID:       clusterID,
			TimeWindowStart: windowStart,
			TimeWindowEnd:   windowStart.AddDate(0, 0, 1),
			Centroid:        [2]float64{last.Lat, last.Lon},
			AvgEmbedding:    last.AvgEmbedding,
			ReportCount:     int(clampNonNegative(last.ReportCount)),
			CommonSymptoms:  last.CommonSymptoms,
			Intensity:       clampNonNegative(last.Intensity),
		}
	}
	return out
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
