package mapstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/scanmatch/internal/scanmatch"
)

// RunRecord is a stored match run.
type RunRecord struct {
	RunID       string           `json:"run_id"`
	MapID       string           `json:"map_id"`
	Result      scanmatch.Result `json:"result"`
	Duration    time.Duration    `json:"duration_ns"`
	CreatedAtNs int64            `json:"created_at_ns"`
}

// RecordRun stores the outcome of a match against map mapID and returns the
// run id. The per-iteration trace is kept as JSON.
func (s *Store) RecordRun(mapID string, res scanmatch.Result, elapsed time.Duration) (string, error) {
	var trace sql.NullString
	if len(res.Trace) > 0 {
		b, err := json.Marshal(res.Trace)
		if err != nil {
			return "", fmt.Errorf("marshal trace: %w", err)
		}
		trace = sql.NullString{String: string(b), Valid: true}
	}

	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO match_runs (
			run_id, map_id, optimizer, pose_x, pose_y, pose_theta, likelihood,
			iterations, failures, converged, duration_ns, trace_json, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, mapID, res.Optimizer, res.Pose.X, res.Pose.Y, res.Pose.Theta, res.Likelihood,
		res.Iterations, res.Failures, res.Converged, int64(elapsed), trace, s.clock.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// ListRuns returns the runs recorded against mapID, oldest first.
func (s *Store) ListRuns(mapID string) ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, map_id, optimizer, pose_x, pose_y, pose_theta, likelihood,
		       iterations, failures, converged, duration_ns, trace_json, created_at_ns
		FROM match_runs
		WHERE map_id = ?
		ORDER BY created_at_ns, run_id
	`, mapID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		var (
			r        RunRecord
			duration int64
			trace    sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.MapID, &r.Result.Optimizer,
			&r.Result.Pose.X, &r.Result.Pose.Y, &r.Result.Pose.Theta, &r.Result.Likelihood,
			&r.Result.Iterations, &r.Result.Failures, &r.Result.Converged,
			&duration, &trace, &r.CreatedAtNs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(duration)
		if trace.Valid && trace.String != "" {
			if err := json.Unmarshal([]byte(trace.String), &r.Result.Trace); err != nil {
				return nil, fmt.Errorf("run %s: decode trace: %w", r.RunID, err)
			}
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
