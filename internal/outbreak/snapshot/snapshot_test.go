package snapshot

import (
	"testing"
	"time"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
	"github.com/stretchr/testify/require"
)

func mkReport(id int64, lat, lon float64, symptoms []string, emb []float64, ts time.Time) outbreak.Report {
	m := make(map[string]int, len(symptoms))
	for _, s := range symptoms {
		m[s] = 1
	}
	return outbreak.Report{ID: id, Lat: lat, Lon: lon, Symptoms: m, Embedding: emb, Timestamp: ts}
}

func TestBuildGroupsByLabelAndHourWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC)
	reports := []outbreak.Report{
		mkReport(1, 40.0, -74.0, []string{"cough", "fever"}, []float64{1, 0}, base),
		mkReport(2, 40.1, -74.1, []string{"cough"}, []float64{0, 1}, base.Add(30*time.Minute)),
	}
	labels := []int{0, 0}
	identity := outbreak.IdentityMap{0: "cluster_0"}

	snaps := Build(labels, reports, identity, 1)
	require.Len(t, snaps, 1)
	require.Len(t, snaps[0].Snapshots, 1)

	cs := snaps[0].Snapshots[0]
	require.Equal(t, outbreak.ClusterID("cluster_0"), cs.ClusterID)
	require.ElementsMatch(t, []int64{1, 2}, cs.ReportIDs)
	require.Equal(t, outbreak.NewSymptomSet([]string{"cough"}), cs.CommonSymptoms)
	require.Equal(t, base.Truncate(time.Hour), cs.TimeWindowStart)
	require.Equal(t, base.Truncate(time.Hour).AddDate(0, 0, 1), cs.TimeWindowEnd)
	require.InDelta(t, 1.5, cs.Intensity, 1e-9)
}

func TestBuildUsesTempIdWhenLabelMissingFromIdentityMap(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reports := []outbreak.Report{
		mkReport(1, 40.0, -74.0, []string{"cough"}, []float64{1}, base),
	}
	labels := []int{3}

	snaps := Build(labels, reports, outbreak.IdentityMap{}, 1)
	require.Len(t, snaps, 1)
	require.Equal(t, outbreak.ClusterID("temp_3"), snaps[0].Snapshots[0].ClusterID)
}

func TestBuildIgnoresNoise(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reports := []outbreak.Report{
		mkReport(1, 40.0, -74.0, []string{"cough"}, []float64{1}, base),
		mkReport(2, 40.0, -74.0, []string{"cough"}, []float64{1}, base),
	}
	labels := []int{outbreak.NoiseLabel, outbreak.NoiseLabel}

	snaps := Build(labels, reports, outbreak.IdentityMap{}, 1)
	require.Empty(t, snaps)
}

func TestBuildSeparatesDifferentHourWindowsEvenForSameLabel(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	reports := []outbreak.Report{
		mkReport(1, 40.0, -74.0, []string{"cough"}, []float64{1}, base),
		mkReport(2, 40.0, -74.0, []string{"cough"}, []float64{1}, base.Add(2*time.Hour)),
	}
	labels := []int{0, 0}

	snaps := Build(labels, reports, outbreak.IdentityMap{0: "cluster_0"}, 1)
	require.Len(t, snaps, 2)
	for _, s := range snaps {
		require.Len(t, s.Snapshots, 1)
		require.Len(t, s.Snapshots[0].ReportIDs, 1)
	}
}
