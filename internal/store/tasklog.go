package store

import (
	"context"
	"fmt"
)

// TaskLogEntry records the outcome of one task.
type TaskLogEntry struct {
	RunID     string `json:"run_id"`
	TaskSeq   int64  `json:"task_seq"`
	TaskType  string `json:"task_type"`
	EntityKey string `json:"entity_key"`
	TaskHash  string `json:"task_hash"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// WriteTaskLog records a task outcome. A second write for the same
// (run, seq) replaces the first.
func (s *Store) WriteTaskLog(ctx context.Context, e TaskLogEntry) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO task_log (run_id, task_seq, task_type, entity_key, task_hash, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, task_seq) DO UPDATE SET status = excluded.status, reason = excluded.reason
	`, e.RunID, e.TaskSeq, e.TaskType, e.EntityKey, e.TaskHash, e.Status, e.Reason)
	if err != nil {
		return fmt.Errorf("write task log: %w", err)
	}
	return nil
}

// ReadTaskLog returns the entries of a run ordered by seq. An empty run
// ID returns the entries of the most recent run.
func (s *Store) ReadTaskLog(ctx context.Context, runID string) ([]TaskLogEntry, error) {
	if runID == "" {
		err := s.q.QueryRowContext(ctx, `
			SELECT COALESCE((SELECT run_id FROM task_log ORDER BY id DESC LIMIT 1), '')
		`).Scan(&runID)
		if err != nil {
			return nil, fmt.Errorf("latest run: %w", err)
		}
		if runID == "" {
			return []TaskLogEntry{}, nil
		}
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT run_id, task_seq, task_type, entity_key, task_hash, status, reason
		FROM task_log WHERE run_id = ?
		ORDER BY task_seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query task log: %w", err)
	}
	defer rows.Close()

	entries := []TaskLogEntry{}
	for rows.Next() {
		var e TaskLogEntry
		if err := rows.Scan(&e.RunID, &e.TaskSeq, &e.TaskType, &e.EntityKey, &e.TaskHash, &e.Status, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan task log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task log: %w", err)
	}
	return entries, nil
}

// TaskLogCounts returns the number of entries per status for a run.
func (s *Store) TaskLogCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM task_log WHERE run_id = ? GROUP BY status
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count task log: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan task log count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task log counts: %w", err)
	}
	return counts, nil
}
