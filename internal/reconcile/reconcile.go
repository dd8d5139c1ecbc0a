package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/stagesync/internal/cache"
	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/translation"
)

// AttachmentStore is the storage the reconciler writes through.
// *store.Store implements it.
type AttachmentStore interface {
	ListAttachments(ctx context.Context, documentID int64) ([]ir.Row, error)
	UpsertAttachment(ctx context.Context, row ir.Row) (int64, bool, error)
	DeleteAttachment(ctx context.Context, id int64) error
	DeleteAttachments(ctx context.Context, documentID int64) (int64, error)
}

// Translator records and resolves attachment ID translations.
// *translation.Helper implements it.
type Translator interface {
	GetNewID(ctx context.Context, req translation.Request) (ir.ID, error)
	AddIDTranslation(objectType string, sourceID int64, targetID ir.ID, targetSiteID int64) error
}

// Target identifies the document that owns the attachments.
type Target struct {
	DocumentID int64
	SiteID     int64
}

// Result counts what a Synchronize call did.
type Result struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
	Skipped   int `json:"skipped"`
}

// Reconciler synchronizes attachment snapshots. It holds no state between
// calls; the translator carries the per-run memo.
type Reconciler struct {
	store      AttachmentStore
	translator Translator
	logger     *slog.Logger
}

// New returns a reconciler. A nil logger uses slog.Default().
func New(store AttachmentStore, translator Translator, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, translator: translator, logger: logger}
}

// pass is the state of one Synchronize call.
type pass struct {
	target  Target
	targets *cache.MemoryCache[ir.Row] // GUID -> current target row
	claimed map[string]struct{}
	skipped map[int64]struct{} // source IDs of mains skipped in this pass
	result  Result
}

// Synchronize converges the attachments of target onto the CMS_Attachment
// table of payload. A payload without that table means the document has no
// attachments anymore. Identical snapshots produce no writes on the second
// call.
//
// Cancellation is checked between rows. Rows written before the check
// stay written; the surrounding transaction decides whether they persist.
func (r *Reconciler) Synchronize(ctx context.Context, payload ir.Payload, target Target) (Result, error) {
	if target.DocumentID <= 0 {
		return Result{}, fmt.Errorf("synchronize attachments: target document is required")
	}

	tbl, ok := payload.Table(ir.TableAttachment)
	if !ok {
		n, err := r.store.DeleteAttachments(ctx, target.DocumentID)
		if err != nil {
			return Result{}, fmt.Errorf("synchronize attachments: %w", err)
		}
		r.logger.Debug("attachment table absent, cleared document",
			"document_id", target.DocumentID,
			"deleted", n)
		return Result{Deleted: int(n)}, nil
	}

	p, err := r.load(ctx, target)
	if err != nil {
		return Result{}, err
	}

	var mains, variants []ir.Row
	for _, row := range tbl.Rows {
		if row.Int(ir.ColAttachmentVariantParentID) > 0 {
			variants = append(variants, row)
		} else {
			mains = append(mains, row)
		}
	}

	for _, row := range mains {
		if err := r.apply(ctx, p, row); err != nil {
			return p.result, err
		}
	}
	for _, row := range variants {
		if err := r.apply(ctx, p, row); err != nil {
			return p.result, err
		}
	}

	if err := r.deleteOrphans(ctx, p); err != nil {
		return p.result, err
	}

	r.logger.Debug("attachments synchronized",
		"document_id", target.DocumentID,
		"created", p.result.Created,
		"updated", p.result.Updated,
		"unchanged", p.result.Unchanged,
		"deleted", p.result.Deleted,
		"skipped", p.result.Skipped)
	return p.result, nil
}

func (r *Reconciler) load(ctx context.Context, target Target) (*pass, error) {
	rows, err := r.store.ListAttachments(ctx, target.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("synchronize attachments: load target set: %w", err)
	}
	p := &pass{
		target:  target,
		targets: cache.New[ir.Row](),
		claimed: make(map[string]struct{}, len(rows)),
		skipped: make(map[int64]struct{}),
	}
	for _, row := range rows {
		guid, ok := row.GUID(ir.ColAttachmentGUID)
		if !ok {
			continue
		}
		if err := p.targets.SetItem(guid.String(), row, false); err != nil {
			return nil, fmt.Errorf("synchronize attachments: %w", err)
		}
	}
	return p, nil
}

// apply writes one source row. The source row itself is never modified.
func (r *Reconciler) apply(ctx context.Context, p *pass, src ir.Row) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("synchronize attachments: %w", err)
	}

	sourceID := src.Int(ir.ColAttachmentID)
	guid, ok := src.GUID(ir.ColAttachmentGUID)
	if !ok {
		p.result.Skipped++
		if sourceID > 0 {
			p.skipped[sourceID] = struct{}{}
		}
		r.logger.Warn("attachment without guid skipped",
			"document_id", p.target.DocumentID,
			"source_id", sourceID)
		return nil
	}
	key := guid.String()

	parentSource := src.Int(ir.ColAttachmentVariantParentID)
	if _, gone := p.skipped[parentSource]; gone && parentSource > 0 {
		p.result.Skipped++
		r.logger.Warn("attachment variant of skipped parent skipped",
			"document_id", p.target.DocumentID,
			"source_id", sourceID,
			"parent_source_id", parentSource)
		return nil
	}

	row := src.Clone()
	row.SetString(ir.ColAttachmentGUID, key)
	row.SetInt(ir.ColAttachmentDocumentID, p.target.DocumentID)
	row.SetInt(ir.ColAttachmentSiteID, p.target.SiteID)

	if parentSource > 0 {
		parent, err := r.translator.GetNewID(ctx, translation.Request{
			ObjectType:   ir.ObjectTypeAttachment,
			SourceID:     parentSource,
			GUIDColumn:   ir.ColAttachmentGUID,
			TargetSiteID: p.target.SiteID,
			SiteIDColumn: ir.ColAttachmentSiteID,
		})
		if err != nil {
			return fmt.Errorf("synchronize attachments: variant %s parent: %w", key, err)
		}
		if !parent.Resolved() {
			return &translation.UnresolvedError{
				ObjectType: ir.ObjectTypeAttachment,
				Column:     ir.ColAttachmentVariantParentID,
				DependsOn:  ir.ObjectTypeAttachment,
				SourceID:   parentSource,
			}
		}
		row.SetInt(ir.ColAttachmentVariantParentID, parent.OrZero())
	}

	existing, found := p.targets.GetItem(key)
	var targetID int64
	switch {
	case found:
		merged := existing.Clone()
		for col, v := range row {
			merged[col] = v
		}
		merged.SetInt(ir.ColAttachmentID, existing.Int(ir.ColAttachmentID))

		same, err := unchanged(existing, merged)
		if err != nil {
			return fmt.Errorf("synchronize attachments: compare %s: %w", key, err)
		}
		if same {
			targetID = existing.Int(ir.ColAttachmentID)
			p.result.Unchanged++
			break
		}
		id, _, err := r.store.UpsertAttachment(ctx, merged)
		if err != nil {
			return fmt.Errorf("synchronize attachments: update %s: %w", key, err)
		}
		targetID = id
		p.result.Updated++
		if err := p.targets.SetItem(key, merged, false); err != nil {
			return fmt.Errorf("synchronize attachments: %w", err)
		}
	default:
		row.SetInt(ir.ColAttachmentID, 0)
		id, _, err := r.store.UpsertAttachment(ctx, row)
		if err != nil {
			return fmt.Errorf("synchronize attachments: insert %s: %w", key, err)
		}
		targetID = id
		p.result.Created++
		row.SetInt(ir.ColAttachmentID, id)
		if err := p.targets.SetItem(key, row, false); err != nil {
			return fmt.Errorf("synchronize attachments: %w", err)
		}
	}
	p.claimed[key] = struct{}{}

	return r.translator.AddIDTranslation(ir.ObjectTypeAttachment, sourceID, ir.NewID(targetID), p.target.SiteID)
}

// unchanged reports whether writing merged would leave existing as is.
// Columns the store does not keep are ignored.
func unchanged(existing, merged ir.Row) (bool, error) {
	var extra []string
	for col := range merged {
		if _, ok := existing[col]; !ok {
			extra = append(extra, col)
		}
	}
	want, err := ir.RowHash(merged, extra...)
	if err != nil {
		return false, err
	}
	have, err := ir.RowHash(existing)
	if err != nil {
		return false, err
	}
	return want == have, nil
}

// deleteOrphans removes target rows that no source row claimed, lowest
// ID first.
func (r *Reconciler) deleteOrphans(ctx context.Context, p *pass) error {
	var orphans []int64
	for key, row := range p.targets.GetItems(false) {
		if _, ok := p.claimed[key]; ok {
			continue
		}
		orphans = append(orphans, row.Int(ir.ColAttachmentID))
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })

	for _, id := range orphans {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("synchronize attachments: %w", err)
		}
		if err := r.store.DeleteAttachment(ctx, id); err != nil {
			return fmt.Errorf("synchronize attachments: delete orphan %d: %w", id, err)
		}
		p.result.Deleted++
	}
	return nil
}
