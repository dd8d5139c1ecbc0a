package store

import (
	"context"
	"fmt"

	"github.com/roach88/stagesync/internal/ir"
)

const attachmentColumns = `id, guid, document_id, site_id, variant_parent_id, variant_name,
	name, extension, size, mime_type, att_order, content`

// ListAttachments returns the attachments of a document as payload rows,
// ordered by ID.
func (s *Store) ListAttachments(ctx context.Context, documentID int64) ([]ir.Row, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+attachmentColumns+` FROM attachments WHERE document_id = ?
		ORDER BY id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	out := []ir.Row{}
	for rows.Next() {
		var (
			id, docID, siteID, parentID, size, order int64
			guid, variant, name, ext, mime, content  string
		)
		if err := rows.Scan(&id, &guid, &docID, &siteID, &parentID, &variant,
			&name, &ext, &size, &mime, &order, &content); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, ir.Row{
			ir.ColAttachmentID:              ir.Int(id),
			ir.ColAttachmentGUID:            ir.String(guid),
			ir.ColAttachmentDocumentID:      ir.Int(docID),
			ir.ColAttachmentSiteID:          ir.Int(siteID),
			ir.ColAttachmentVariantParentID: ir.Int(parentID),
			ir.ColAttachmentVariantName:     ir.String(variant),
			ir.ColAttachmentName:            ir.String(name),
			ir.ColAttachmentExtension:       ir.String(ext),
			ir.ColAttachmentSize:            ir.Int(size),
			ir.ColAttachmentMimeType:        ir.String(mime),
			ir.ColAttachmentOrder:           ir.Int(order),
			ir.ColAttachmentBinary:          ir.String(content),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return out, nil
}

// UpsertAttachment writes an attachment row. A row whose AttachmentID is
// 0 is inserted; otherwise the row with that ID is updated in place.
// Returns the target ID and whether a row was inserted.
func (s *Store) UpsertAttachment(ctx context.Context, row ir.Row) (int64, bool, error) {
	guid, ok := row.GUID(ir.ColAttachmentGUID)
	if !ok {
		return 0, false, fmt.Errorf("upsert attachment: guid is required")
	}
	args := []any{
		guid.String(),
		row.Int(ir.ColAttachmentDocumentID),
		row.Int(ir.ColAttachmentSiteID),
		row.Int(ir.ColAttachmentVariantParentID),
		row.String(ir.ColAttachmentVariantName),
		row.String(ir.ColAttachmentName),
		row.String(ir.ColAttachmentExtension),
		row.Int(ir.ColAttachmentSize),
		row.String(ir.ColAttachmentMimeType),
		row.Int(ir.ColAttachmentOrder),
		row.String(ir.ColAttachmentBinary),
	}

	if id := row.Int(ir.ColAttachmentID); id > 0 {
		res, err := s.q.ExecContext(ctx, `
			UPDATE attachments SET guid = ?, document_id = ?, site_id = ?, variant_parent_id = ?,
				variant_name = ?, name = ?, extension = ?, size = ?, mime_type = ?, att_order = ?, content = ?
			WHERE id = ?
		`, append(args, id)...)
		if err != nil {
			return 0, false, fmt.Errorf("upsert attachment: update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, false, fmt.Errorf("upsert attachment: rows affected: %w", err)
		}
		if n == 0 {
			return 0, false, fmt.Errorf("upsert attachment: no attachment with id %d", id)
		}
		return id, false, nil
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO attachments (guid, document_id, site_id, variant_parent_id, variant_name,
			name, extension, size, mime_type, att_order, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return 0, false, fmt.Errorf("upsert attachment: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("upsert attachment: last insert id: %w", err)
	}
	return id, true, nil
}

// DeleteAttachment removes one attachment.
func (s *Store) DeleteAttachment(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

// DeleteAttachments removes every attachment of a document and returns
// how many were removed.
func (s *Store) DeleteAttachments(ctx context.Context, documentID int64) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM attachments WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete attachments: %w", err)
	}
	return res.RowsAffected()
}
