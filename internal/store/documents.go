package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Node is a position in a site's content tree.
type Node struct {
	ID        int64     `json:"id"`
	GUID      uuid.UUID `json:"guid"`
	SiteID    int64     `json:"site_id"`
	ParentID  int64     `json:"parent_id"`
	AliasPath string    `json:"alias_path"`
	ClassName string    `json:"class_name"`
	Order     int64     `json:"order"`
	OwnerID   int64     `json:"owner_id"`
}

// Document is one culture version of a node.
type Document struct {
	ID        int64     `json:"id"`
	GUID      uuid.UUID `json:"guid"`
	NodeID    int64     `json:"node_id"`
	Culture   string    `json:"culture"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedBy int64     `json:"created_by"`
	Published bool      `json:"published"`
	Archived  bool      `json:"archived"`
}

const nodeColumns = `id, guid, site_id, parent_id, alias_path, class_name, node_order, owner_id`

func scanNode(row interface{ Scan(...any) error }) (Node, error) {
	var n Node
	var guid string
	if err := row.Scan(&n.ID, &guid, &n.SiteID, &n.ParentID, &n.AliasPath, &n.ClassName, &n.Order, &n.OwnerID); err != nil {
		return Node{}, err
	}
	id, err := uuid.Parse(guid)
	if err != nil {
		return Node{}, fmt.Errorf("node %d guid: %w", n.ID, err)
	}
	n.GUID = id
	return n, nil
}

// FindNode returns the node with guid on a site.
func (s *Store) FindNode(ctx context.Context, siteID int64, guid uuid.UUID) (Node, bool, error) {
	n, err := scanNode(s.q.QueryRowContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes WHERE site_id = ? AND guid = ?
	`, siteID, guid.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, false, nil
	}
	if err != nil {
		return Node{}, false, fmt.Errorf("find node: %w", err)
	}
	return n, true, nil
}

// FindNodeByPath returns the node at aliasPath on a site. Paths compare
// case-insensitively.
func (s *Store) FindNodeByPath(ctx context.Context, siteID int64, aliasPath string) (Node, bool, error) {
	n, err := scanNode(s.q.QueryRowContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes WHERE site_id = ? AND alias_path = ?
		ORDER BY id ASC LIMIT 1
	`, siteID, aliasPath))
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, false, nil
	}
	if err != nil {
		return Node{}, false, fmt.Errorf("find node by path: %w", err)
	}
	return n, true, nil
}

// UpsertNode creates or updates a node matched by (site, GUID).
// Returns the node ID and whether a row was inserted.
func (s *Store) UpsertNode(ctx context.Context, n Node) (int64, bool, error) {
	if n.GUID == uuid.Nil {
		return 0, false, fmt.Errorf("upsert node: guid is required")
	}
	existing, found, err := s.FindNode(ctx, n.SiteID, n.GUID)
	if err != nil {
		return 0, false, fmt.Errorf("upsert node: %w", err)
	}
	if found {
		_, err := s.q.ExecContext(ctx, `
			UPDATE nodes SET parent_id = ?, alias_path = ?, class_name = ?, node_order = ?, owner_id = ?
			WHERE id = ?
		`, n.ParentID, n.AliasPath, n.ClassName, n.Order, n.OwnerID, existing.ID)
		if err != nil {
			return 0, false, fmt.Errorf("upsert node: update: %w", err)
		}
		return existing.ID, false, nil
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO nodes (guid, site_id, parent_id, alias_path, class_name, node_order, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.GUID.String(), n.SiteID, n.ParentID, n.AliasPath, n.ClassName, n.Order, n.OwnerID)
	if err != nil {
		return 0, false, fmt.Errorf("upsert node: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("upsert node: last insert id: %w", err)
	}
	return id, true, nil
}

// SetNodeOrder changes a node's position among its siblings.
func (s *Store) SetNodeOrder(ctx context.Context, nodeID, order int64) error {
	if _, err := s.q.ExecContext(ctx, `UPDATE nodes SET node_order = ? WHERE id = ?`, order, nodeID); err != nil {
		return fmt.Errorf("set node order: %w", err)
	}
	return nil
}

// MoveNode re-parents a node and rewrites the alias paths of its subtree.
func (s *Store) MoveNode(ctx context.Context, n Node, newParentID int64, newAliasPath string) error {
	if _, err := s.q.ExecContext(ctx, `
		UPDATE nodes SET parent_id = ?, alias_path = ? WHERE id = ?
	`, newParentID, newAliasPath, n.ID); err != nil {
		return fmt.Errorf("move node: %w", err)
	}

	// substr is 1-based and counts characters.
	keep := utf8.RuneCountInString(n.AliasPath) + 1
	if _, err := s.q.ExecContext(ctx, `
		UPDATE nodes SET alias_path = ? || substr(alias_path, ?)
		WHERE site_id = ? AND id != ? AND alias_path LIKE ? ESCAPE '\'
	`, newAliasPath, keep, n.SiteID, n.ID, likePrefix(n.AliasPath)); err != nil {
		return fmt.Errorf("move node subtree: %w", err)
	}
	return nil
}

// DeleteNodeTree deletes a node, its descendants and all their culture
// versions. Returns the number of nodes removed.
func (s *Store) DeleteNodeTree(ctx context.Context, n Node) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM nodes
		WHERE site_id = ? AND (id = ? OR alias_path LIKE ? ESCAPE '\')
	`, n.SiteID, n.ID, likePrefix(n.AliasPath))
	if err != nil {
		return 0, fmt.Errorf("delete node tree: %w", err)
	}
	return res.RowsAffected()
}

// likePrefix returns a LIKE pattern matching every path below p.
func likePrefix(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(strings.TrimSuffix(p, "/")) + "/%"
}

const documentColumns = `id, guid, node_id, culture, name, content, created_by, published, archived`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var d Document
	var guid string
	if err := row.Scan(&d.ID, &guid, &d.NodeID, &d.Culture, &d.Name, &d.Content, &d.CreatedBy, &d.Published, &d.Archived); err != nil {
		return Document{}, err
	}
	id, err := uuid.Parse(guid)
	if err != nil {
		return Document{}, fmt.Errorf("document %d guid: %w", d.ID, err)
	}
	d.GUID = id
	return d, nil
}

// FindDocument returns the culture version of a node.
func (s *Store) FindDocument(ctx context.Context, nodeID int64, culture string) (Document, bool, error) {
	d, err := scanDocument(s.q.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE node_id = ? AND culture = ?
	`, nodeID, culture))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("find document: %w", err)
	}
	return d, true, nil
}

// ListDocuments returns every culture version of a node ordered by
// culture, ignoring case.
func (s *Store) ListDocuments(ctx context.Context, nodeID int64) ([]Document, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE node_id = ?
		ORDER BY culture COLLATE NOCASE ASC, id ASC
	`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// UpsertDocument creates or updates a culture version. An existing row
// is matched by GUID first, then by (node, culture). Publish state is
// left unchanged on update.
func (s *Store) UpsertDocument(ctx context.Context, d Document) (int64, bool, error) {
	if d.GUID == uuid.Nil {
		return 0, false, fmt.Errorf("upsert document: guid is required")
	}

	var id int64
	err := s.q.QueryRowContext(ctx, `SELECT id FROM documents WHERE guid = ?`, d.GUID.String()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		err = s.q.QueryRowContext(ctx, `
			SELECT id FROM documents WHERE node_id = ? AND culture = ?
		`, d.NodeID, d.Culture).Scan(&id)
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO documents (guid, node_id, culture, name, content, created_by, published, archived)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, d.GUID.String(), d.NodeID, d.Culture, d.Name, d.Content, d.CreatedBy, d.Published, d.Archived)
		if err != nil {
			return 0, false, fmt.Errorf("upsert document: insert: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("upsert document: last insert id: %w", err)
		}
		return id, true, nil
	case err != nil:
		return 0, false, fmt.Errorf("upsert document: select: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		UPDATE documents SET guid = ?, node_id = ?, culture = ?, name = ?, content = ?, created_by = ?
		WHERE id = ?
	`, d.GUID.String(), d.NodeID, d.Culture, d.Name, d.Content, d.CreatedBy, id)
	if err != nil {
		return 0, false, fmt.Errorf("upsert document: update: %w", err)
	}
	return id, false, nil
}

// SetDocumentState records the workflow state of a culture version.
func (s *Store) SetDocumentState(ctx context.Context, documentID int64, published, archived bool) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE documents SET published = ?, archived = ? WHERE id = ?
	`, published, archived, documentID)
	if err != nil {
		return fmt.Errorf("set document state: %w", err)
	}
	return nil
}

// DeleteDocument removes one culture version with its attachments. When
// it was the node's last culture, the node tree goes too. Returns false
// when there was nothing to delete.
func (s *Store) DeleteDocument(ctx context.Context, n Node, culture string) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM documents WHERE node_id = ? AND culture = ?
	`, n.ID, culture)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document: rows affected: %w", err)
	}

	var left int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE node_id = ?`, n.ID).Scan(&left); err != nil {
		return false, fmt.Errorf("delete document: count cultures: %w", err)
	}
	if left == 0 {
		if _, err := s.DeleteNodeTree(ctx, n); err != nil {
			return false, err
		}
	}
	return affected > 0, nil
}
