package translation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/stagesync/internal/cache"
	"github.com/roach88/stagesync/internal/ir"
)

// maxChainDepth bounds parent/group recursion through translation records.
const maxChainDepth = 32

// Request is the input of GetNewID. The column fields name the target
// columns that constrain the lookup; an empty column disables that
// constraint.
type Request struct {
	ObjectType     string
	SourceID       int64
	GUIDColumn     string
	TargetSiteID   int64
	SiteIDColumn   string
	ParentIDColumn string
	GroupIDColumn  string
}

// Translation is one memoized mapping.
type Translation struct {
	ObjectType   string `json:"object_type"`
	SourceID     int64  `json:"source_id"`
	TargetID     int64  `json:"target_id"`
	TargetSiteID int64  `json:"target_site_id"`
}

// Helper resolves source IDs for one run or worker.
type Helper struct {
	lookup  Lookup
	types   *ir.ObjectTypes
	logger  *slog.Logger
	memo    *cache.MemoryCache[Translation]
	sites   *cache.MemoryCache[ir.ID]
	records map[string]ir.Row
}

// NewHelper returns a helper with empty memo tables. A nil logger uses
// slog.Default().
func NewHelper(lookup Lookup, types *ir.ObjectTypes, logger *slog.Logger) *Helper {
	if logger == nil {
		logger = slog.Default()
	}
	if types == nil {
		types = ir.NewObjectTypes()
	}
	return &Helper{
		lookup:  lookup,
		types:   types,
		logger:  logger,
		memo:    cache.New[Translation](),
		sites:   cache.New[ir.ID](),
		records: make(map[string]ir.Row),
	}
}

func memoKey(objectType string, sourceID int64) string {
	return strings.ToLower(objectType) + "|" + strconv.FormatInt(sourceID, 10)
}

// LoadRecords absorbs the ObjectTranslation table of a task payload.
// Records stay available for the rest of the run. A payload without the
// table is not an error.
func (h *Helper) LoadRecords(p ir.Payload) error {
	tbl, ok := p.Table(ir.TableTranslation)
	if !ok {
		return nil
	}
	for i, row := range tbl.Rows {
		objectType := row.String(ir.ColTransObjectType)
		sourceID := row.Int(ir.ColTransSourceID)
		if objectType == "" || sourceID <= 0 {
			return fmt.Errorf("load translation record %d: object type and source id are required", i)
		}
		h.records[memoKey(objectType, sourceID)] = row
	}
	return nil
}

// RequestFor builds the request for a row of the given type.
func (h *Helper) RequestFor(info ir.ObjectTypeInfo, sourceID, targetSiteID int64) Request {
	req := Request{
		ObjectType:     info.Name,
		SourceID:       sourceID,
		GUIDColumn:     info.GUIDColumn,
		TargetSiteID:   targetSiteID,
		ParentIDColumn: info.ParentIDColumn,
		GroupIDColumn:  info.GroupIDColumn,
	}
	if info.SiteScoped {
		req.SiteIDColumn = info.SiteIDColumn
	}
	return req
}

// GetNewID resolves a source ID to a target ID. An unknown pair returns
// ir.Unresolved and a nil error; only storage failures return errors.
func (h *Helper) GetNewID(ctx context.Context, req Request) (ir.ID, error) {
	return h.getNewID(ctx, req, 0)
}

func (h *Helper) getNewID(ctx context.Context, req Request, depth int) (ir.ID, error) {
	if req.SourceID <= 0 {
		return ir.Unresolved, nil
	}
	key := memoKey(req.ObjectType, req.SourceID)
	if tr, ok := h.memo.GetItem(key); ok {
		return ir.NewID(tr.TargetID), nil
	}
	if depth > maxChainDepth {
		return ir.Unresolved, fmt.Errorf("translate %s: parent chain deeper than %d", key, maxChainDepth)
	}

	record, ok := h.records[key]
	if !ok {
		h.logger.Debug("no translation record", "object_type", req.ObjectType, "source_id", req.SourceID)
		return ir.Unresolved, nil
	}

	q := Query{ObjectType: req.ObjectType}
	if req.GUIDColumn != "" {
		if guid, ok := record.GUID(ir.ColTransGUID); ok {
			q.GUID = guid
		}
	}
	if q.GUID == uuid.Nil {
		q.CodeName = record.String(ir.ColTransCodeName)
		if q.CodeName == "" {
			return ir.Unresolved, nil
		}
	}

	if req.SiteIDColumn != "" {
		q.BySite = true
		q.SiteID = req.TargetSiteID
		if record.Has(ir.ColTransSiteID) && record.Int(ir.ColTransSiteID) == 0 {
			q.SiteID = 0
		}
	}

	if req.ParentIDColumn != "" {
		if parentSource := record.Int(ir.ColTransParentID); parentSource > 0 {
			parentReq := req
			parentReq.SourceID = parentSource
			parent, err := h.getNewID(ctx, parentReq, depth+1)
			if err != nil {
				return ir.Unresolved, err
			}
			if !parent.Resolved() {
				return ir.Unresolved, nil
			}
			q.ParentID = parent.OrZero()
		}
	}

	if req.GroupIDColumn != "" {
		if groupSource := record.Int(ir.ColTransGroupID); groupSource > 0 {
			groupReq := Request{ObjectType: ir.ObjectTypeGroup, SourceID: groupSource, TargetSiteID: req.TargetSiteID}
			if info, ok := h.types.Lookup(ir.ObjectTypeGroup); ok {
				groupReq = h.RequestFor(info, groupSource, req.TargetSiteID)
			}
			group, err := h.getNewID(ctx, groupReq, depth+1)
			if err != nil {
				return ir.Unresolved, err
			}
			if !group.Resolved() {
				return ir.Unresolved, nil
			}
			q.GroupID = group.OrZero()
		}
	}

	id, err := h.lookup.FindObject(ctx, q)
	if err != nil {
		return ir.Unresolved, fmt.Errorf("translate %s: %w", key, err)
	}
	if !id.Resolved() {
		return ir.Unresolved, nil
	}

	tr := Translation{
		ObjectType:   req.ObjectType,
		SourceID:     req.SourceID,
		TargetID:     id.OrZero(),
		TargetSiteID: q.SiteID,
	}
	// The target row may have been written by the open transaction, so
	// the lookup is discarded with it on rollback.
	if err := h.memo.SetItem(key, tr, true); err != nil {
		return ir.Unresolved, err
	}
	return id, nil
}

// AddIDTranslation records a mapping produced by a write in the current
// task. It stays dirty until Commit or Discard.
func (h *Helper) AddIDTranslation(objectType string, sourceID int64, targetID ir.ID, targetSiteID int64) error {
	if sourceID <= 0 || !targetID.Resolved() {
		return nil
	}
	tr := Translation{
		ObjectType:   objectType,
		SourceID:     sourceID,
		TargetID:     targetID.OrZero(),
		TargetSiteID: targetSiteID,
	}
	return h.memo.SetItem(memoKey(objectType, sourceID), tr, true)
}

// Commit keeps every translation and site resolved since the last
// Commit.
func (h *Helper) Commit() {
	h.memo.MarkClean()
	h.sites.MarkClean()
}

// Discard drops every translation and site resolved since the last
// Commit. Used when the task that produced them rolled back.
func (h *Helper) Discard() {
	for key := range h.memo.GetItems(true) {
		if _, _, err := h.memo.RemoveItem(key); err != nil {
			h.logger.Warn("discard translation", "key", key, "error", err)
		}
	}
	for key := range h.sites.GetItems(true) {
		if _, _, err := h.sites.RemoveItem(key); err != nil {
			h.logger.Warn("discard site", "site", key, "error", err)
		}
	}
}

// Translations returns the memo contents.
func (h *Helper) Translations(dirtyOnly bool) []Translation {
	items := h.memo.GetItems(dirtyOnly)
	out := make([]Translation, 0, len(items))
	for _, tr := range items {
		out = append(out, tr)
	}
	return out
}

// SiteID resolves a target site by name. Resolved sites are memoized;
// an unknown site returns ir.Unresolved. The empty name is the global
// scope and resolves to ir.Unresolved without a lookup.
func (h *Helper) SiteID(ctx context.Context, siteName string) (ir.ID, error) {
	if siteName == "" {
		return ir.Unresolved, nil
	}
	if id, ok := h.sites.GetItem(siteName); ok {
		return id, nil
	}
	id, err := h.lookup.FindSite(ctx, siteName)
	if err != nil {
		return ir.Unresolved, fmt.Errorf("resolve site %q: %w", siteName, err)
	}
	if id.Resolved() {
		if err := h.sites.SetItem(siteName, id, true); err != nil {
			return ir.Unresolved, err
		}
	}
	return id, nil
}

// ResolveDependencies returns a copy of row with every declared foreign
// key translated. A required dependency that cannot be resolved returns
// *UnresolvedError and the row must not be written. Optional misses are
// set to 0 and logged.
func (h *Helper) ResolveDependencies(ctx context.Context, info ir.ObjectTypeInfo, row ir.Row, targetSiteID int64) (ir.Row, error) {
	out := row.Clone()
	for _, dep := range info.Dependencies {
		source := row.Int(dep.Column)
		if source <= 0 {
			out.SetInt(dep.Column, 0)
			continue
		}

		req := Request{ObjectType: dep.ObjectType, SourceID: source, TargetSiteID: targetSiteID, GUIDColumn: "guid"}
		if depInfo, ok := h.types.Lookup(dep.ObjectType); ok {
			req = h.RequestFor(depInfo, source, targetSiteID)
		}

		id, err := h.GetNewID(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("resolve %s.%s: %w", info.Name, dep.Column, err)
		}
		if id.Resolved() {
			out.SetInt(dep.Column, id.OrZero())
			continue
		}
		if dep.Required {
			return nil, &UnresolvedError{
				ObjectType: info.Name,
				Column:     dep.Column,
				DependsOn:  dep.ObjectType,
				SourceID:   source,
			}
		}
		h.logger.Warn("optional dependency unresolved, clearing",
			"object_type", info.Name,
			"column", dep.Column,
			"depends_on", dep.ObjectType,
			"source_id", source)
		out.SetInt(dep.Column, 0)
	}
	return out, nil
}
