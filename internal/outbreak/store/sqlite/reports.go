package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
)

// PutReport persists one report and returns its assigned id. Report
// ingestion is otherwise out of scope (spec.md §1); this is the
// minimal concrete store that backs pipeline.ReportReader/ReportWriter
// for the entry point, sharing the same database file and connection
// pool as RunStore rather than standing up a second store.
func (s *Store) PutReport(ctx context.Context, r outbreak.Report) (int64, error) {
	symJSON, err := json.Marshal(r.Symptoms)
	if err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: marshal symptoms: %w", err)
	}
	embJSON, err := json.Marshal(r.Embedding)
	if err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: marshal embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (timestamp, lat, lon, utm_x, utm_y, symptoms_json, embedding_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UTC().Format(time.RFC3339Nano), r.Lat, r.Lon, r.UTMX, r.UTMY, string(symJSON), string(embJSON))
	if err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("outbreak/store/sqlite: read report id: %w", err)
	}
	return id, nil
}

// AllReports returns every persisted report, oldest first.
func (s *Store) AllReports(ctx context.Context) ([]outbreak.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_id, timestamp, lat, lon, utm_x, utm_y, symptoms_json, embedding_json
		FROM reports ORDER BY timestamp, report_id`)
	if err != nil {
		return nil, fmt.Errorf("outbreak/store/sqlite: query reports: %w", err)
	}
	defer rows.Close()

	var out []outbreak.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbreak/store/sqlite: iterate reports: %w", err)
	}
	return out, nil
}

func scanReport(rows *sql.Rows) (outbreak.Report, error) {
	var id int64
	var tsStr, symJSON, embJSON string
	var lat, lon, utmX, utmY float64
	if err := rows.Scan(&id, &tsStr, &lat, &lon, &utmX, &utmY, &symJSON, &embJSON); err != nil {
		return outbreak.Report{}, fmt.Errorf("outbreak/store/sqlite: scan report: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		return outbreak.Report{}, fmt.Errorf("outbreak/store/sqlite: parse timestamp: %w", err)
	}
	var symptoms map[string]int
	if err := json.Unmarshal([]byte(symJSON), &symptoms); err != nil {
		return outbreak.Report{}, fmt.Errorf("outbreak/store/sqlite: unmarshal symptoms: %w", err)
	}
	var embedding []float64
	if err := json.Unmarshal([]byte(embJSON), &embedding); err != nil {
		return outbreak.Report{}, fmt.Errorf("outbreak/store/sqlite: unmarshal embedding: %w", err)
	}
	return outbreak.Report{
		ID:        id,
		Timestamp: ts,
		Lat:       lat,
		Lon:       lon,
		UTMX:      utmX,
		UTMY:      utmY,
		Symptoms:  symptoms,
		Embedding: embedding,
	}, nil
}
