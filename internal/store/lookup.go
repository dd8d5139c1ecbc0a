package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/translation"
)

var _ translation.Lookup = (*Store)(nil)

// FindObject implements translation.Lookup. Built-in types with their own
// tables are looked up there; everything else lives in objects.
func (s *Store) FindObject(ctx context.Context, q translation.Query) (ir.ID, error) {
	var (
		query string
		args  []any
	)

	switch strings.ToLower(q.ObjectType) {
	case ir.ObjectTypeSite:
		if q.GUID != uuid.Nil {
			query, args = `SELECT id FROM sites WHERE guid = ?`, []any{q.GUID.String()}
		} else {
			query, args = `SELECT id FROM sites WHERE name = ?`, []any{q.CodeName}
		}
	case ir.ObjectTypeNode:
		if q.GUID == uuid.Nil {
			return ir.Unresolved, nil
		}
		query, args = `SELECT id FROM nodes WHERE guid = ?`, []any{q.GUID.String()}
		if q.BySite {
			query += ` AND site_id = ?`
			args = append(args, q.SiteID)
		}
	case ir.ObjectTypeDocument:
		if q.GUID == uuid.Nil {
			return ir.Unresolved, nil
		}
		query, args = `SELECT id FROM documents WHERE guid = ?`, []any{q.GUID.String()}
	case ir.ObjectTypeAttachment:
		if q.GUID == uuid.Nil {
			return ir.Unresolved, nil
		}
		query, args = `SELECT id FROM attachments WHERE guid = ?`, []any{q.GUID.String()}
		if q.BySite {
			query += ` AND site_id = ?`
			args = append(args, q.SiteID)
		}
	case ir.ObjectTypeFile:
		if q.GUID == uuid.Nil {
			return ir.Unresolved, nil
		}
		query, args = `SELECT id FROM media_files WHERE guid = ?`, []any{q.GUID.String()}
	default:
		var where []string
		where = append(where, "object_type = ?")
		args = append(args, q.ObjectType)
		if q.GUID != uuid.Nil {
			where = append(where, "guid = ?")
			args = append(args, q.GUID.String())
		} else {
			if q.CodeName == "" {
				return ir.Unresolved, nil
			}
			where = append(where, "code_name = ?")
			args = append(args, q.CodeName)
		}
		if q.BySite {
			where = append(where, "site_id = ?")
			args = append(args, q.SiteID)
		}
		if q.ParentID > 0 {
			where = append(where, "parent_id = ?")
			args = append(args, q.ParentID)
		}
		if q.GroupID > 0 {
			where = append(where, "group_id = ?")
			args = append(args, q.GroupID)
		}
		query = `SELECT id FROM objects WHERE ` + strings.Join(where, " AND ")
	}

	var id int64
	err := s.q.QueryRowContext(ctx, query+` ORDER BY id ASC LIMIT 1`, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Unresolved, nil
	}
	if err != nil {
		return ir.Unresolved, fmt.Errorf("find %s: %w", q.ObjectType, err)
	}
	return ir.NewID(id), nil
}
