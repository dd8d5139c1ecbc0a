package store

import (
	"context"
	"fmt"
)

// QueueItem is one pending delivery to an asynchronous connector.
type QueueItem struct {
	ID          int64  `json:"id"`
	Connector   string `json:"connector"`
	ProcessType string `json:"process_type"`
	EntityKey   string `json:"entity_key"`
	RunID       string `json:"run_id"`
	TaskSeq     int64  `json:"task_seq"`
	TaskType    string `json:"task_type"`
	TaskHash    string `json:"task_hash"`
	Payload     string `json:"payload"`
}

// Enqueue appends a delivery. When snapshot is set, earlier pending items
// for the same connector and entity are removed first, so only the latest
// state is delivered. Enqueuing the same (connector, run, seq) twice is a
// no-op. Returns the number of superseded items.
func (s *Store) Enqueue(ctx context.Context, item QueueItem, snapshot bool) (int64, error) {
	var superseded int64
	if snapshot {
		res, err := s.q.ExecContext(ctx, `
			DELETE FROM connector_queue WHERE connector = ? AND entity_key = ?
		`, item.Connector, item.EntityKey)
		if err != nil {
			return 0, fmt.Errorf("enqueue: supersede: %w", err)
		}
		if superseded, err = res.RowsAffected(); err != nil {
			return 0, fmt.Errorf("enqueue: rows affected: %w", err)
		}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO connector_queue
		(connector, process_type, entity_key, run_id, task_seq, task_type, task_hash, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(connector, run_id, task_seq) DO NOTHING
	`,
		item.Connector,
		item.ProcessType,
		item.EntityKey,
		item.RunID,
		item.TaskSeq,
		item.TaskType,
		item.TaskHash,
		item.Payload,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return superseded, nil
}

// PendingItems returns queued deliveries in FIFO order. An empty
// connector returns items for every connector.
func (s *Store) PendingItems(ctx context.Context, connector string) ([]QueueItem, error) {
	query := `
		SELECT id, connector, process_type, entity_key, run_id, task_seq, task_type, task_hash, payload
		FROM connector_queue`
	var args []any
	if connector != "" {
		query += ` WHERE connector = ?`
		args = append(args, connector)
	}
	rows, err := s.q.QueryContext(ctx, query+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	items := []QueueItem{}
	for rows.Next() {
		var it QueueItem
		if err := rows.Scan(&it.ID, &it.Connector, &it.ProcessType, &it.EntityKey, &it.RunID,
			&it.TaskSeq, &it.TaskType, &it.TaskHash, &it.Payload); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue: %w", err)
	}
	return items, nil
}

// Ack removes a delivered item.
func (s *Store) Ack(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM connector_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("ack queue item %d: %w", id, err)
	}
	return nil
}
