package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/store"
	"github.com/banshee-data/outbreak-cluster/internal/timeutil"
)

// Clock lets tests control the timestamp written with each run; it
// defaults to timeutil's real clock.
var Clock timeutil.Clock = timeutil.RealClock{}

// PutRun implements the write ordering from SPEC_FULL.md §4.7: allocate
// the run id, write snapshots and predictions, write identity state,
// advance the counter, then mark the run completed — all inside one
// transaction so a crash mid-write never leaves a completed run with
// partial children.
func (s *Store) PutRun(ctx context.Context, in store.PutRunInput) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: begin put_run: %w", err)
	}
	defer tx.Rollback()

	paramsJSON, err := json.Marshal(in.Parameters)
	if err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: marshal parameters: %w", err)
	}

	now := Clock.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (created_at, parameters_json, total_reports, total_clusters, status)
		VALUES (?, ?, ?, ?, 'running')`,
		now, string(paramsJSON), in.TotalReports, in.TotalClusters)
	if err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: run id: %w", err)
	}

	for _, td := range in.Timedeltas {
		for _, cs := range td.Snapshots {
			if err := insertClusterSnapshot(ctx, tx, runID, td.TimedeltaDays, cs); err != nil {
				return 0, err
			}
		}
	}

	for _, p := range in.Predictions {
		if err := insertPredictedSnapshot(ctx, tx, runID, p); err != nil {
			return 0, err
		}
	}

	for label, clusterID := range in.IdentityMap {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO identity_map (run_id, label, cluster_id) VALUES (?, ?, ?)`,
			runID, label, string(clusterID)); err != nil {
			return 0, fmt.Errorf("outbreak/store/sqlite: insert identity_map: %w", err)
		}
	}

	for clusterID, reportIDs := range in.ClusterReports {
		idsJSON, err := json.Marshal(reportIDs)
		if err != nil {
			return 0, fmt.Errorf("outbreak/store/sqlite: marshal report ids: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cluster_reports (run_id, cluster_id, report_ids_json) VALUES (?, ?, ?)`,
			runID, string(clusterID), string(idsJSON)); err != nil {
			return 0, fmt.Errorf("outbreak/store/sqlite: insert cluster_reports: %w", err)
		}
	}

	if err := advanceCounterTx(ctx, tx, in.NextCounter); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE runs SET status = 'completed' WHERE run_id = ?`, runID); err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: mark run completed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: commit put_run: %w", err)
	}
	return runID, nil
}

func insertClusterSnapshot(ctx context.Context, tx *sql.Tx, runID int64, timedeltaDays int, cs outbreak.ClusterSnapshot) error {
	embJSON, err := json.Marshal(cs.AvgEmbedding)
	if err != nil {
		return fmt.Errorf("outbreak/store/sqlite: marshal avg_embedding: %w", err)
	}
	idsJSON, err := json.Marshal(cs.ReportIDs)
	if err != nil {
		return fmt.Errorf("outbreak/store/sqlite: marshal report_ids: %w", err)
	}
	symJSON, err := json.Marshal(cs.CommonSymptoms.Slice())
	if err != nil {
		return fmt.Errorf("outbreak/store/sqlite: marshal common_symptoms: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cluster_snapshots
			(run_id, cluster_id, time_window_start, time_window_end, timedelta_days,
			 centroid_lat, centroid_lon, avg_embedding_json, report_ids_json, common_symptoms_json, intensity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, string(cs.ClusterID),
		cs.TimeWindowStart.UTC().Format(time.RFC3339Nano), cs.TimeWindowEnd.UTC().Format(time.RFC3339Nano),
		timedeltaDays, cs.Centroid[0], cs.Centroid[1], string(embJSON), string(idsJSON), string(symJSON), cs.Intensity)
	if err != nil {
		return fmt.Errorf("outbreak/store/sqlite: insert cluster_snapshots: %w", err)
	}
	return nil
}

func insertPredictedSnapshot(ctx context.Context, tx *sql.Tx, runID int64, p outbreak.PredictedSnapshot) error {
	embJSON, err := json.Marshal(p.AvgEmbedding)
	if err != nil {
		return fmt.Errorf("outbreak/store/sqlite: marshal avg_embedding: %w", err)
	}
	symJSON, err := json.Marshal(p.CommonSymptoms.Slice())
	if err != nil {
		return fmt.Errorf("outbreak/store/sqlite: marshal common_symptoms: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO predicted_snapshots
			(run_id, cluster_id, time_window_start, time_window_end,
			 centroid_lat, centroid_lon, avg_embedding_json, report_count, common_symptoms_json, intensity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, string(p.ClusterID),
		p.TimeWindowStart.UTC().Format(time.RFC3339Nano), p.TimeWindowEnd.UTC().Format(time.RFC3339Nano),
		p.Centroid[0], p.Centroid[1], string(embJSON), p.ReportCount, string(symJSON), p.Intensity)
	if err != nil {
		return fmt.Errorf("outbreak/store/sqlite: insert predicted_snapshots: %w", err)
	}
	return nil
}

// advanceCounterTx enforces monotonicity: next must not regress the
// stored value.
func advanceCounterTx(ctx context.Context, tx *sql.Tx, next int64) error {
	var current int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM cluster_counter WHERE id = 1`).Scan(&current); err != nil {
		return fmt.Errorf("outbreak/store/sqlite: read cluster_counter: %w", err)
	}
	if next < current {
		return fmt.Errorf("outbreak/store/sqlite: cluster counter must not regress: have %d, got %d", current, next)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE cluster_counter SET value = ? WHERE id = 1`, next); err != nil {
		return fmt.Errorf("outbreak/store/sqlite: advance cluster_counter: %w", err)
	}
	return nil
}

// GetClusterCounter returns the current counter value.
func (s *Store) GetClusterCounter(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cluster_counter WHERE id = 1`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: read cluster_counter: %w", err)
	}
	return v, nil
}

// GetIdentityMap returns the identity map and cluster-reports mapping
// of the latest completed run, empty if no run has ever completed.
func (s *Store) GetIdentityMap(ctx context.Context) (outbreak.IdentityMap, outbreak.ClusterReportsMap, error) {
	var runID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id FROM runs WHERE status = 'completed' ORDER BY created_at DESC, run_id DESC LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return outbreak.IdentityMap{}, outbreak.ClusterReportsMap{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("outbreak/store/sqlite: find latest run: %w", err)
	}

	identityMap := outbreak.IdentityMap{}
	rows, err := s.db.QueryContext(ctx, `SELECT label, cluster_id FROM identity_map WHERE run_id = ?`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("outbreak/store/sqlite: query identity_map: %w", err)
	}
	for rows.Next() {
		var label int
		var clusterID string
		if err := rows.Scan(&label, &clusterID); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("outbreak/store/sqlite: scan identity_map: %w", err)
		}
		identityMap[label] = outbreak.ClusterID(clusterID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("outbreak/store/sqlite: iterate identity_map: %w", err)
	}

	reportsMap := outbreak.ClusterReportsMap{}
	rows, err = s.db.QueryContext(ctx, `SELECT cluster_id, report_ids_json FROM cluster_reports WHERE run_id = ?`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("outbreak/store/sqlite: query cluster_reports: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var clusterID, idsJSON string
		if err := rows.Scan(&clusterID, &idsJSON); err != nil {
			return nil, nil, fmt.Errorf("outbreak/store/sqlite: scan cluster_reports: %w", err)
		}
		var ids []int64
		if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
			return nil, nil, fmt.Errorf("outbreak/store/sqlite: unmarshal report ids: %w", err)
		}
		reportsMap[outbreak.ClusterID(clusterID)] = ids
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("outbreak/store/sqlite: iterate cluster_reports: %w", err)
	}

	return identityMap, reportsMap, nil
}
