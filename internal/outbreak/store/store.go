// Package store defines the RunStore contract of SPEC_FULL.md §4.7:
// versioned, atomic persistence of pipeline runs, their snapshots and
// predictions, and the cluster identity state that carries across
// runs. sqlite implements it; the pipeline depends only on this
// interface.
package store

import (
	"context"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
)

// PutRunInput bundles everything one completed run writes.
type PutRunInput struct {
	Parameters     outbreak.Config
	TotalReports   int
	TotalClusters  int
	Timedeltas     []outbreak.TimedeltaSnapshot
	Predictions    []outbreak.PredictedSnapshot
	IdentityMap    outbreak.IdentityMap
	ClusterReports outbreak.ClusterReportsMap
	NextCounter    int64
}

// RunSummary is the list_runs projection: parameters and totals
// without the (potentially large) snapshot/prediction bodies.
type RunSummary struct {
	RunID         int64
	CreatedAt     string
	Parameters    outbreak.Config
	TotalReports  int
	TotalClusters int
	Status        outbreak.RunStatus
}

// RunStore is SPEC_FULL.md §4.7's RunStore, transport-agnostic.
type RunStore interface {
	// PutRun atomically allocates a run id, writes snapshots and
	// predictions referencing it, writes the identity map and cluster
	// reports mapping, advances the cluster-id counter, and marks the
	// run completed. All-or-nothing.
	PutRun(ctx context.Context, in PutRunInput) (runID int64, err error)

	// GetLatest returns the timedelta snapshots of the latest run with
	// status=completed.
	GetLatest(ctx context.Context) ([]outbreak.TimedeltaSnapshot, error)

	// GetLatestPredictions returns the predicted snapshots of the
	// latest run with status=completed.
	GetLatestPredictions(ctx context.Context) ([]outbreak.PredictedSnapshot, error)

	// ListRuns returns the last n runs ordered by created_at desc.
	ListRuns(ctx context.Context, n int) ([]RunSummary, error)

	// GetIdentityMap returns the identity map and cluster-to-reports
	// mapping of the latest completed run. Both are empty, not an
	// error, if no run has ever completed.
	GetIdentityMap(ctx context.Context) (outbreak.IdentityMap, outbreak.ClusterReportsMap, error)

	// GetClusterCounter returns the current value of the persistent
	// cluster-id counter (0 if never advanced).
	GetClusterCounter(ctx context.Context) (int64, error)

	// Retain purges all but the most recent keep runs, cascading to
	// their snapshots and predictions, and returns the count purged.
	Retain(ctx context.Context, keep int) (purged int, err error)
}

// History returns, per cluster, the ordered snapshot history the
// Forecaster trains on. Implementations typically derive this from
// several past runs' timedelta snapshots; it is a read path distinct
// from GetLatest because the Forecaster needs more than one run's
// worth of observations.
type History interface {
	ClusterHistory(ctx context.Context, lookbackRuns int) (map[outbreak.ClusterID][]outbreak.ClusterSnapshot, error)
}
