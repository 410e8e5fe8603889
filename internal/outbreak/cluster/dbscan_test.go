package cluster

import (
	"testing"
	"time"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/feature"
	"github.com/stretchr/testify/require"
)

func reportAt(id int64, utmX, utmY float64, emb []float64, t time.Time) outbreak.Report {
	return outbreak.Report{ID: id, Timestamp: t, UTMX: utmX, UTMY: utmY, Embedding: emb, Symptoms: map[string]int{"cough": 1}}
}

func TestDBSCANClustersNearbyPoints(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reports := []outbreak.Report{
		reportAt(1, 0, 0, []float64{1, 0, 0}, base),
		reportAt(2, 10, 10, []float64{1, 0, 0}, base.Add(time.Hour)),
		reportAt(3, 20, 0, []float64{1, 0, 0}, base.Add(2 * time.Hour)),
	}
	m, err := feature.BuildFeatures(reports)
	require.NoError(t, err)

	labels := DBSCAN(m, Params{EpsMeters: 5000, MinSamples: 3})
	for _, l := range labels {
		require.NotEqual(t, outbreak.NoiseLabel, l)
	}
	require.Equal(t, labels[0], labels[1])
	require.Equal(t, labels[1], labels[2])
}

func TestDBSCANNoiseWhenFewerThanMinSamples(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reports := []outbreak.Report{
		reportAt(1, 0, 0, []float64{1, 0}, base),
		reportAt(2, 1000000, 1000000, []float64{0, 1}, base),
	}
	m, err := feature.BuildFeatures(reports)
	require.NoError(t, err)

	labels := DBSCAN(m, Params{EpsMeters: 5000, MinSamples: 3})
	require.Equal(t, []int{outbreak.NoiseLabel, outbreak.NoiseLabel}, labels)
}

func TestDBSCANMinSamplesOneEachPointOwnCluster(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reports := []outbreak.Report{
		reportAt(1, 0, 0, []float64{1, 0}, base),
		reportAt(2, 100000, 100000, []float64{0, 1}, base),
	}
	m, err := feature.BuildFeatures(reports)
	require.NoError(t, err)

	labels := DBSCAN(m, Params{EpsMeters: 5000, MinSamples: 1})
	for _, l := range labels {
		require.NotEqual(t, outbreak.NoiseLabel, l)
	}
	require.NotEqual(t, labels[0], labels[1])
}
