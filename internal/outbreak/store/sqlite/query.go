package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/store"
)

// GetLatest returns the timedelta snapshots of the latest completed
// run, grouped by time window as SnapshotBuilder originally grouped
// them.
func (s *Store) GetLatest(ctx context.Context) ([]outbreak.TimedeltaSnapshot, error) {
	runID, ok, err := s.latestCompletedRunID(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return s.clusterSnapshotsForRun(ctx, runID)
}

// GetLatestPredictions returns the predicted snapshots of the latest
// completed run.
func (s *Store) GetLatestPredictions(ctx context.Context) ([]outbreak.PredictedSnapshot, error) {
	runID, ok, err := s.latestCompletedRunID(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cluster_id, time_window_start, time_window_end, centroid_lat, centroid_lon,
		       avg_embedding_json, report_count, common_symptoms_json, intensity
		FROM predicted_snapshots WHERE run_id = ? ORDER BY cluster_id, time_window_start`, runID)
	if err != nil {
		return nil, fmt.Errorf("outbreak/store/sqlite: query predicted_snapshots: %w", err)
	}
	defer rows.Close()

	var out []outbreak.PredictedSnapshot
	for rows.Next() {
		p, err := scanPredictedSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) latestCompletedRunID(ctx context.Context) (int64, bool, error) {
	var runID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id FROM runs WHERE status = 'completed' ORDER BY created_at DESC, run_id DESC LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("outbreak/store/sqlite: find latest completed run: %w", err)
	}
	return runID, true, nil
}

func (s *Store) clusterSnapshotsForRun(ctx context.Context, runID int64) ([]outbreak.TimedeltaSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cluster_id, time_window_start, time_window_end, timedelta_days,
		       centroid_lat, centroid_lon, avg_embedding_json, report_ids_json, common_symptoms_json, intensity
		FROM cluster_snapshots WHERE run_id = ? ORDER BY time_window_start, cluster_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("outbreak/store/sqlite: query cluster_snapshots: %w", err)
	}
	defer rows.Close()

	byWindow := make(map[[2]string]*outbreak.TimedeltaSnapshot)
	var order [][2]string
	for rows.Next() {
		cs, timedeltaDays, startStr, endStr, err := scanClusterSnapshot(rows)
		if err != nil {
			return nil, err
		}
		key := [2]string{startStr, endStr}
		td, ok := byWindow[key]
		if !ok {
			td = &outbreak.TimedeltaSnapshot{
				TimedeltaDays:   timedeltaDays,
				TimeWindowStart: cs.TimeWindowStart,
				TimeWindowEnd:   cs.TimeWindowEnd,
			}
			byWindow[key] = td
			order = append(order, key)
		}
		td.Snapshots = append(td.Snapshots, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbreak/store/sqlite: iterate cluster_snapshots: %w", err)
	}

	out := make([]outbreak.TimedeltaSnapshot, 0, len(order))
	for _, key := range order {
		out = append(out, *byWindow[key])
	}
	return out, nil
}

func scanClusterSnapshot(rows *sql.Rows) (outbreak.ClusterSnapshot, int, string, string, error) {
	var clusterID, startStr, endStr, embJSON, idsJSON, symJSON string
	var timedeltaDays int
	var lat, lon, intensity float64
	if err := rows.Scan(&clusterID, &startStr, &endStr, &timedeltaDays, &lat, &lon, &embJSON, &idsJSON, &symJSON, &intensity); err != nil {
		return outbreak.ClusterSnapshot{}, 0, "", "", fmt.Errorf("outbreak/store/sqlite: scan cluster_snapshots: %w", err)
	}
	start, err := time.Parse(time.RFC3339Nano, startStr)
	if err != nil {
		return outbreak.ClusterSnapshot{}, 0, "", "", fmt.Errorf("outbreak/store/sqlite: parse time_window_start: %w", err)
	}
	end, err := time.Parse(time.RFC3339Nano, endStr)
	if err != nil {
		return outbreak.ClusterSnapshot{}, 0, "", "", fmt.Errorf("outbreak/store/sqlite: parse time_window_end: %w", err)
	}
	var emb []float64
	if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
		return outbreak.ClusterSnapshot{}, 0, "", "", fmt.Errorf("outbreak/store/sqlite: unmarshal avg_embedding: %w", err)
	}
	var ids []int64
	if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
		return outbreak.ClusterSnapshot{}, 0, "", "", fmt.Errorf("outbreak/store/sqlite: unmarshal report_ids: %w", err)
	}
	var symNames []string
	if err := json.Unmarshal([]byte(symJSON), &symNames); err != nil {
		return outbreak.ClusterSnapshot{}, 0, "", "", fmt.Errorf("outbreak/store/sqlite: unmarshal common_symptoms: %w", err)
	}

	cs := outbreak.ClusterSnapshot{
		ClusterID:       outbreak.ClusterID(clusterID),
		TimeWindowStart: start,
		TimeWindowEnd:   end,
		Centroid:        [2]float64{lat, lon},
		AvgEmbedding:    emb,
		ReportIDs:       ids,
		CommonSymptoms:  outbreak.NewSymptomSet(symNames),
		Intensity:       intensity,
	}
	return cs, timedeltaDays, startStr, endStr, nil
}

func scanPredictedSnapshot(rows *sql.Rows) (outbreak.PredictedSnapshot, error) {
	var clusterID, startStr, endStr, embJSON, symJSON string
	var lat, lon, intensity float64
	var reportCount int
	if err := rows.Scan(&clusterID, &startStr, &endStr, &lat, &lon, &embJSON, &reportCount, &symJSON, &intensity); err != nil {
		return outbreak.PredictedSnapshot{}, fmt.Errorf("outbreak/store/sqlite: scan predicted_snapshots: %w", err)
	}
	start, err := time.Parse(time.RFC3339Nano, startStr)
	if err != nil {
		return outbreak.PredictedSnapshot{}, fmt.Errorf("outbreak/store/sqlite: parse time_window_start: %w", err)
	}
	end, err := time.Parse(time.RFC3339Nano, endStr)
	if err != nil {
		return outbreak.PredictedSnapshot{}, fmt.Errorf("outbreak/store/sqlite: parse time_window_end: %w", err)
	}
	var emb []float64
	if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
		return outbreak.PredictedSnapshot{}, fmt.Errorf("outbreak/store/sqlite: unmarshal avg_embedding: %w", err)
	}
	var symNames []string
	if err := json.Unmarshal([]byte(symJSON), &symNames); err != nil {
		return outbreak.PredictedSnapshot{}, fmt.Errorf("outbreak/store/sqlite: unmarshal common_symptoms: %w", err)
	}
	return outbreak.PredictedSnapshot{
		ClusterID:       outbreak.ClusterID(clusterID),
		TimeWindowStart: start,
		TimeWindowEnd:   end,
		Centroid:        [2]float64{lat, lon},
		AvgEmbedding:    emb,
		ReportCount:     reportCount,
		CommonSymptoms:  outbreak.NewSymptomSet(symNames),
		Intensity:       intensity,
	}, nil
}

// ListRuns returns the last n runs ordered by created_at desc.
func (s *Store) ListRuns(ctx context.Context, n int) ([]store.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, created_at, parameters_json, total_reports, total_clusters, status
		FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("outbreak/store/sqlite: query runs: %w", err)
	}
	defer rows.Close()

	var out []store.RunSummary
	for rows.Next() {
		var rs store.RunSummary
		var paramsJSON string
		var status string
		if err := rows.Scan(&rs.RunID, &rs.CreatedAt, &paramsJSON, &rs.TotalReports, &rs.TotalClusters, &status); err != nil {
			return nil, fmt.Errorf("outbreak/store/sqlite: scan runs: %w", err)
		}
		if err := json.Unmarshal([]byte(paramsJSON), &rs.Parameters); err != nil {
			return nil, fmt.Errorf("outbreak/store/sqlite: unmarshal parameters: %w", err)
		}
		rs.Status = outbreak.RunStatus(status)
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Retain deletes all but the most recent keep runs; ON DELETE CASCADE
// on the child tables removes their snapshots and predictions.
func (s *Store) Retain(ctx context.Context, keep int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE run_id NOT IN (
			SELECT run_id FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: retain: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: retain rows affected: %w", err)
	}
	return int(n), nil
}

// ClusterHistory gathers, per cluster, every ClusterSnapshot from the
// last lookbackRuns completed runs, for the Forecaster to train on.
func (s *Store) ClusterHistory(ctx context.Context, lookbackRuns int) (map[outbreak.ClusterID][]outbreak.ClusterSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id FROM runs WHERE status = 'completed' ORDER BY created_at DESC, run_id DESC LIMIT ?`, lookbackRuns)
	if err != nil {
		return nil, fmt.Errorf("outbreak/store/sqlite: query recent runs: %w", err)
	}
	var runIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("outbreak/store/sqlite: scan run id: %w", err)
		}
		runIDs = append(runIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbreak/store/sqlite: iterate recent runs: %w", err)
	}

	history := make(map[outbreak.ClusterID][]outbreak.ClusterSnapshot)
	for _, runID := range runIDs {
		timedeltas, err := s.clusterSnapshotsForRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		for _, td := range timedeltas {
			for _, cs := range td.Snapshots {
				history[cs.ClusterID] = append(history[cs.ClusterID], cs)
			}
		}
	}
	return history, nil
}
