package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/stagesync/internal/ir"
)

// Object is a stored configuration object.
type Object struct {
	ID          int64     `json:"id"`
	ObjectType  string    `json:"object_type"`
	GUID        uuid.UUID `json:"guid"`
	CodeName    string    `json:"code_name"`
	DisplayName string    `json:"display_name"`
	SiteID      int64     `json:"site_id"`
	ParentID    int64     `json:"parent_id"`
	GroupID     int64     `json:"group_id"`
	Fields      ir.Row    `json:"fields"`
	Sites       []int64   `json:"sites,omitempty"`
}

// UpsertObject creates or updates an object matched by (type, GUID).
// The row must already carry target IDs in its foreign key columns.
// Returns the object ID and whether a row was inserted.
func (s *Store) UpsertObject(ctx context.Context, info ir.ObjectTypeInfo, row ir.Row) (int64, bool, error) {
	guid, ok := row.GUID(info.GUIDColumn)
	if !ok {
		return 0, false, fmt.Errorf("upsert %s: column %s must hold a guid", info.Name, info.GUIDColumn)
	}

	fields := row.Clone()
	delete(fields, info.IDColumn)
	fieldsJSON, err := ir.MarshalCanonical(fields)
	if err != nil {
		return 0, false, fmt.Errorf("upsert %s: marshal fields: %w", info.Name, err)
	}

	args := []any{
		optionalString(row, info.CodeNameColumn),
		optionalString(row, info.DisplayNameColumn),
		optionalInt(row, info.SiteIDColumn),
		optionalInt(row, info.ParentIDColumn),
		optionalInt(row, info.GroupIDColumn),
		string(fieldsJSON),
	}

	var id int64
	err = s.q.QueryRowContext(ctx, `
		SELECT id FROM objects WHERE object_type = ? AND guid = ?
	`, info.Name, guid.String()).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO objects (object_type, guid, code_name, display_name, site_id, parent_id, group_id, fields)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, append([]any{info.Name, guid.String()}, args...)...)
		if err != nil {
			return 0, false, fmt.Errorf("upsert %s: insert: %w", info.Name, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("upsert %s: last insert id: %w", info.Name, err)
		}
		return id, true, nil
	case err != nil:
		return 0, false, fmt.Errorf("upsert %s: select: %w", info.Name, err)
	}

	_, err = s.q.ExecContext(ctx, `
		UPDATE objects SET code_name = ?, display_name = ?, site_id = ?, parent_id = ?, group_id = ?, fields = ?
		WHERE id = ?
	`, append(args, id)...)
	if err != nil {
		return 0, false, fmt.Errorf("upsert %s: update: %w", info.Name, err)
	}
	return id, false, nil
}

func optionalString(row ir.Row, col string) string {
	if col == "" {
		return ""
	}
	return row.String(col)
}

func optionalInt(row ir.Row, col string) int64 {
	if col == "" {
		return 0
	}
	return row.Int(col)
}

// GetObject returns an object by type and GUID.
func (s *Store) GetObject(ctx context.Context, objectType string, guid uuid.UUID) (Object, bool, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, object_type, guid, code_name, display_name, site_id, parent_id, group_id, fields
		FROM objects WHERE object_type = ? AND guid = ?
	`, objectType, guid.String())
	if err != nil {
		return Object{}, false, fmt.Errorf("get object: %w", err)
	}
	objs, err := scanObjects(rows)
	if err != nil {
		return Object{}, false, fmt.Errorf("get object: %w", err)
	}
	if len(objs) == 0 {
		return Object{}, false, nil
	}
	obj := objs[0]
	if obj.Sites, err = s.ObjectSites(ctx, obj.ID); err != nil {
		return Object{}, false, err
	}
	return obj, true, nil
}

// ListObjects returns every object ordered by type, code name and GUID.
func (s *Store) ListObjects(ctx context.Context) ([]Object, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, object_type, guid, code_name, display_name, site_id, parent_id, group_id, fields
		FROM objects
		ORDER BY object_type COLLATE BINARY ASC, code_name COLLATE BINARY ASC, guid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	objs, err := scanObjects(rows)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	for i := range objs {
		if objs[i].Sites, err = s.ObjectSites(ctx, objs[i].ID); err != nil {
			return nil, err
		}
	}
	return objs, nil
}

// scanObjects drains and closes rows. Site bindings are not loaded here
// because the single connection is busy until rows are closed.
func scanObjects(rows *sql.Rows) ([]Object, error) {
	defer rows.Close()

	objs := []Object{}
	for rows.Next() {
		var (
			o            Object
			guid, fields string
		)
		if err := rows.Scan(&o.ID, &o.ObjectType, &guid, &o.CodeName, &o.DisplayName,
			&o.SiteID, &o.ParentID, &o.GroupID, &fields); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		id, err := uuid.Parse(guid)
		if err != nil {
			return nil, fmt.Errorf("object %d guid: %w", o.ID, err)
		}
		o.GUID = id
		if err := json.Unmarshal([]byte(fields), &o.Fields); err != nil {
			return nil, fmt.Errorf("object %d fields: %w", o.ID, err)
		}
		objs = append(objs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	return objs, nil
}

// DeleteObject removes an object and its site bindings. Returns false
// when no such object exists.
func (s *Store) DeleteObject(ctx context.Context, objectType string, guid uuid.UUID) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM objects WHERE object_type = ? AND guid = ?
	`, objectType, guid.String())
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", objectType, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: rows affected: %w", objectType, err)
	}
	return n > 0, nil
}

// AddObjectToSite binds an object to a site. Binding twice is a no-op.
func (s *Store) AddObjectToSite(ctx context.Context, objectID, siteID int64) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO object_sites (object_id, site_id) VALUES (?, ?)
		ON CONFLICT(object_id, site_id) DO NOTHING
	`, objectID, siteID)
	if err != nil {
		return fmt.Errorf("add object to site: %w", err)
	}
	return nil
}

// RemoveObjectFromSite removes a site binding. Returns false when the
// binding did not exist.
func (s *Store) RemoveObjectFromSite(ctx context.Context, objectID, siteID int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM object_sites WHERE object_id = ? AND site_id = ?
	`, objectID, siteID)
	if err != nil {
		return false, fmt.Errorf("remove object from site: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove object from site: rows affected: %w", err)
	}
	return n > 0, nil
}

// ObjectSites returns the site IDs an object is bound to, ascending.
func (s *Store) ObjectSites(ctx context.Context, objectID int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT site_id FROM object_sites WHERE object_id = ? ORDER BY site_id ASC
	`, objectID)
	if err != nil {
		return nil, fmt.Errorf("query object sites: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan object site: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate object sites: %w", err)
	}
	return ids, nil
}
