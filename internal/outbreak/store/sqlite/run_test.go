package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/store"
	"github.com/banshee-data/outbreak-cluster/internal/timeutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outbreak.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleInput(window time.Time) store.PutRunInput {
	return store.PutRunInput{
		Parameters:    outbreak.DefaultConfig(),
		TotalReports:  3,
		TotalClusters: 1,
		Timedeltas: []outbreak.TimedeltaSnapshot{
			{
				TimedeltaDays:   1,
				TimeWindowStart: window,
				TimeWindowEnd:   window.AddDate(0, 0, 1),
				Snapshots: []outbreak.ClusterSnapshot{
					{
						ClusterID:       "cluster_0",
						TimeWindowStart: window,
						TimeWindowEnd:   window.AddDate(0, 0, 1),
						Centroid:        [2]float64{40.0, -73.0},
						AvgEmbedding:    []float64{0.1, 0.2, 0.3},
						ReportIDs:       []int64{1, 2, 3},
						CommonSymptoms:  outbreak.NewSymptomSet([]string{"fever", "cough"}),
						Intensity:       2.0,
					},
				},
			},
		},
		Predictions: []outbreak.PredictedSnapshot{
			{
				ClusterID:       "cluster_0",
				TimeWindowStart: window.AddDate(0, 0, 1),
				TimeWindowEnd:   window.AddDate(0, 0, 2),
				Centroid:        [2]float64{40.0, -73.0},
				AvgEmbedding:    []float64{0.1, 0.2, 0.3},
				ReportCount:     3,
				CommonSymptoms:  outbreak.NewSymptomSet([]string{"fever", "cough"}),
				Intensity:       1.5,
			},
		},
		IdentityMap:    outbreak.IdentityMap{0: "cluster_0"},
		ClusterReports: outbreak.ClusterReportsMap{"cluster_0": {1, 2, 3}},
		NextCounter:    1,
	}
}

func TestPutRunPersistsSnapshotsPredictionsAndIdentity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	window := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	runID, err := s.PutRun(ctx, sampleInput(window))
	require.NoError(t, err)
	assert.Equal(t, int64(1), runID)

	timedeltas, err := s.GetLatest(ctx)
	require.NoError(t, err)
	require.Len(t, timedeltas, 1)
	require.Len(t, timedeltas[0].Snapshots, 1)
	cs := timedeltas[0].Snapshots[0]
	assert.Equal(t, outbreak.ClusterID("cluster_0"), cs.ClusterID)
	assert.Equal(t, []int64{1, 2, 3}, cs.ReportIDs)
	assert.ElementsMatch(t, []string{"fever", "cough"}, cs.CommonSymptoms.Slice())
	assert.True(t, cs.TimeWindowStart.Equal(window))
	assert.Equal(t, 2.0, cs.Intensity)

	predictions, err := s.GetLatestPredictions(ctx)
	require.NoError(t, err)
	require.Len(t, predictions, 1)
	assert.Equal(t, 3, predictions[0].ReportCount)
	assert.Equal(t, 1.5, predictions[0].Intensity)

	identityMap, reportsMap, err := s.GetIdentityMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, outbreak.ClusterID("cluster_0"), identityMap[0])
	assert.Equal(t, []int64{1, 2, 3}, reportsMap["cluster_0"])

	counter, err := s.GetClusterCounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counter)
}

func TestGetIdentityMapEmptyBeforeAnyRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	identityMap, reportsMap, err := s.GetIdentityMap(ctx)
	require.NoError(t, err)
	assert.Empty(t, identityMap)
	assert.Empty(t, reportsMap)
}

func TestGetClusterCounterDefaultsToZero(t *testing.T) {
	s := openTestStore(t)
	counter, err := s.GetClusterCounter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), counter)
}

func TestPutRunRejectsRegressingCounter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	window := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	in := sampleInput(window)
	in.NextCounter = 5
	_, err := s.PutRun(ctx, in)
	require.NoError(t, err)

	in2 := sampleInput(window.AddDate(0, 0, 1))
	in2.NextCounter = 2
	_, err = s.PutRun(ctx, in2)
	require.Error(t, err)

	counter, err := s.GetClusterCounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), counter)
}

func TestListRunsOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	oldClock := Clock
	defer func() { Clock = oldClock }()

	mock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	Clock = mock

	window := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.PutRun(ctx, sampleInput(window))
	require.NoError(t, err)

	mock.Set(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	_, err = s.PutRun(ctx, sampleInput(window.AddDate(0, 0, 1)))
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(2), runs[0].RunID)
	assert.Equal(t, int64(1), runs[1].RunID)
	assert.Equal(t, outbreak.RunStatusCompleted, runs[0].Status)
}

func TestRetainPurgesOldestRunsAndCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	window := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		in := sampleInput(window.AddDate(0, 0, i))
		in.NextCounter = int64(i + 1)
		_, err := s.PutRun(ctx, in)
		require.NoError(t, err)
	}

	purged, err := s.Retain(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(3), runs[0].RunID)
}

func TestClusterHistoryGathersAcrossRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	window := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		in := sampleInput(window.AddDate(0, 0, i))
		in.NextCounter = int64(i + 1)
		_, err := s.PutRun(ctx, in)
		require.NoError(t, err)
	}

	history, err := s.ClusterHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history["cluster_0"], 3)
}

func TestGetLatestIgnoresIncompleteRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	window := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.PutRun(ctx, sampleInput(window))
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (created_at, parameters_json, total_reports, total_clusters, status)
		VALUES (?, '{}', 0, 0, 'running')`, window.AddDate(0, 0, 1).Format(time.RFC3339Nano))
	require.NoError(t, err)

	timedeltas, err := s.GetLatest(ctx)
	require.NoError(t, err)
	require.Len(t, timedeltas, 1)
	assert.Equal(t, outbreak.ClusterID("cluster_0"), timedeltas[0].Snapshots[0].ClusterID)
}
