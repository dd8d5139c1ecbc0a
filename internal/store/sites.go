package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/stagesync/internal/ir"
)

// Site is a target site.
type Site struct {
	ID          int64     `json:"id"`
	GUID        uuid.UUID `json:"guid"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
}

// UpsertSite creates or updates a site matched by GUID.
// Returns the site ID and whether a row was inserted.
func (s *Store) UpsertSite(ctx context.Context, site Site) (int64, bool, error) {
	if site.GUID == uuid.Nil || site.Name == "" {
		return 0, false, fmt.Errorf("upsert site: guid and name are required")
	}

	var id int64
	err := s.q.QueryRowContext(ctx, `SELECT id FROM sites WHERE guid = ?`, site.GUID.String()).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO sites (guid, name, display_name) VALUES (?, ?, ?)
		`, site.GUID.String(), site.Name, site.DisplayName)
		if err != nil {
			return 0, false, fmt.Errorf("upsert site: insert: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("upsert site: last insert id: %w", err)
		}
		return id, true, nil
	case err != nil:
		return 0, false, fmt.Errorf("upsert site: select: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		UPDATE sites SET name = ?, display_name = ? WHERE id = ?
	`, site.Name, site.DisplayName, id)
	if err != nil {
		return 0, false, fmt.Errorf("upsert site: update: %w", err)
	}
	return id, false, nil
}

// FindSite implements translation.Lookup. Names compare case-insensitively.
func (s *Store) FindSite(ctx context.Context, name string) (ir.ID, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `SELECT id FROM sites WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Unresolved, nil
	}
	if err != nil {
		return ir.Unresolved, fmt.Errorf("find site: %w", err)
	}
	return ir.NewID(id), nil
}

// ListSites returns all sites ordered by name.
func (s *Store) ListSites(ctx context.Context) ([]Site, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, guid, name, display_name FROM sites ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()

	sites := []Site{}
	for rows.Next() {
		var site Site
		var guid string
		if err := rows.Scan(&site.ID, &guid, &site.Name, &site.DisplayName); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		site.GUID, err = uuid.Parse(guid)
		if err != nil {
			return nil, fmt.Errorf("scan site %d: %w", site.ID, err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return sites, nil
}

// DeleteSite removes a site matched by GUID. Returns false when no such
// site exists. Fails while nodes still reference the site.
func (s *Store) DeleteSite(ctx context.Context, guid uuid.UUID) (bool, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM sites WHERE guid = ?`, guid.String())
	if err != nil {
		return false, fmt.Errorf("delete site: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete site: rows affected: %w", err)
	}
	return n > 0, nil
}
