package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/reconcile"
	"github.com/roach88/stagesync/internal/store"
	"github.com/roach88/stagesync/internal/translation"
)

// applier replays one task against a transaction-bound store.
type applier struct {
	st      *store.Store
	helper  *translation.Helper
	rec     *reconcile.Reconciler
	types   *ir.ObjectTypes
	logger  *slog.Logger
	metrics *Metrics
}

// apply dispatches on the task type. Every TaskType must have a case;
// the default branch reports types added without a handler.
func (a *applier) apply(ctx context.Context, task *ir.Task) error {
	switch task.Type {
	case ir.TaskCreateDocument, ir.TaskUpdateDocument:
		_, err := a.upsertDocument(ctx, task)
		return err
	case ir.TaskPublishDocument:
		return a.setDocumentState(ctx, task, true, false)
	case ir.TaskArchiveDocument:
		return a.setDocumentState(ctx, task, false, true)
	case ir.TaskDeleteDocument:
		return a.deleteDocument(ctx, task)
	case ir.TaskDeleteAllCultures:
		return a.deleteAllCultures(ctx, task)
	case ir.TaskMoveDocument:
		return a.moveDocument(ctx, task)
	case ir.TaskChangeOrder:
		return a.changeOrder(ctx, task)

	case ir.TaskCreateObject, ir.TaskUpdateObject:
		return a.upsertObject(ctx, task)
	case ir.TaskDeleteObject:
		return a.deleteObject(ctx, task)
	case ir.TaskAddToSite:
		return a.bindSite(ctx, task, true)
	case ir.TaskRemoveFromSite:
		return a.bindSite(ctx, task, false)

	case ir.TaskCreateMediaFolder:
		return a.createMediaFolder(ctx, task)
	case ir.TaskMoveMediaFolder:
		return a.moveMediaFolder(ctx, task)
	case ir.TaskCopyMediaFolder:
		return a.copyMediaFolder(ctx, task)
	case ir.TaskDeleteMediaFolder:
		return a.deleteMediaFolder(ctx, task)

	default:
		return NewUnknownTaskTypeError(task.Type)
	}
}

func (a *applier) info(name string) (ir.ObjectTypeInfo, error) {
	info, ok := a.types.Lookup(name)
	if !ok {
		return ir.ObjectTypeInfo{}, NewInvalidPayloadError("unknown object type %q", name)
	}
	return info, nil
}

// mainRow returns the first row of a required table.
func mainRow(p ir.Payload, table string) (ir.Row, error) {
	tbl, ok := p.Table(table)
	if !ok {
		return nil, NewMissingTableError(table)
	}
	row, ok := tbl.First()
	if !ok {
		return nil, NewInvalidPayloadError("payload table %q has no rows", table)
	}
	return row, nil
}

// requireSite resolves the task's site. Document tasks always need one.
func (a *applier) requireSite(ctx context.Context, task *ir.Task) (int64, error) {
	if task.SiteName == "" {
		return 0, NewInvalidPayloadError("%s task needs a site", task.Type)
	}
	return a.siteID(ctx, task.SiteName)
}

// optionalSite resolves the task's site, or 0 for global tasks.
func (a *applier) optionalSite(ctx context.Context, task *ir.Task) (int64, error) {
	if task.SiteName == "" {
		return 0, nil
	}
	return a.siteID(ctx, task.SiteName)
}

func (a *applier) siteID(ctx context.Context, name string) (int64, error) {
	id, err := a.helper.SiteID(ctx, name)
	if err != nil {
		return 0, err
	}
	if !id.Resolved() {
		return 0, NewUnresolvedError(fmt.Sprintf("target site %q does not exist", name), nil)
	}
	return id.OrZero(), nil
}

// ---------------------------------------------------------------------------
// Documents

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// locateNode finds the target node of a document task by NodeGUID, or by
// alias path when the payload carries no GUID.
func (a *applier) locateNode(ctx context.Context, task *ir.Task, siteID int64) (store.Node, bool, error) {
	var row ir.Row
	if tbl, ok := task.Payload.Table(ir.TableDocument); ok {
		row, _ = tbl.First()
	}
	if guid, ok := row.GUID(ir.ColNodeGUID); ok {
		return a.st.FindNode(ctx, siteID, guid)
	}
	aliasPath := firstNonEmpty(row.String(ir.ColNodeAliasPath), task.NodeAliasPath)
	if aliasPath == "" {
		return store.Node{}, false, NewInvalidPayloadError("document task needs NodeGUID or an alias path")
	}
	return a.st.FindNodeByPath(ctx, siteID, aliasPath)
}

// parentNodeID resolves the target parent of a node: first through the
// translation of NodeParentID, then through the parent alias path.
func (a *applier) parentNodeID(ctx context.Context, row ir.Row, siteID int64, aliasPath string) (int64, error) {
	nodeInfo, err := a.info(ir.ObjectTypeNode)
	if err != nil {
		return 0, err
	}
	source := row.Int(ir.ColNodeParentID)
	if source > 0 {
		id, err := a.helper.GetNewID(ctx, a.helper.RequestFor(nodeInfo, source, siteID))
		if err != nil {
			return 0, err
		}
		if id.Resolved() {
			return id.OrZero(), nil
		}
	}

	if aliasPath == "/" {
		return 0, nil
	}
	parentPath := path.Dir(aliasPath)
	parent, found, err := a.st.FindNodeByPath(ctx, siteID, parentPath)
	if err != nil {
		return 0, err
	}
	if found {
		return parent.ID, nil
	}
	if parentPath == "/" {
		// Top-level nodes may be replayed before the root exists.
		return 0, nil
	}
	return 0, NewUnresolvedError(fmt.Sprintf("parent node %q of %q does not exist", parentPath, aliasPath), nil)
}

func (a *applier) upsertDocument(ctx context.Context, task *ir.Task) (int64, error) {
	row, err := mainRow(task.Payload, ir.TableDocument)
	if err != nil {
		return 0, err
	}
	siteID, err := a.requireSite(ctx, task)
	if err != nil {
		return 0, err
	}
	nodeGUID, ok := row.GUID(ir.ColNodeGUID)
	if !ok {
		return 0, NewInvalidPayloadError("document row needs %s", ir.ColNodeGUID)
	}
	docGUID, ok := row.GUID(ir.ColDocumentGUID)
	if !ok {
		return 0, NewInvalidPayloadError("document row needs %s", ir.ColDocumentGUID)
	}
	aliasPath := firstNonEmpty(row.String(ir.ColNodeAliasPath), task.NodeAliasPath)
	culture := firstNonEmpty(row.String(ir.ColDocumentCulture), task.CultureCode)
	if aliasPath == "" || culture == "" {
		return 0, NewInvalidPayloadError("document row needs an alias path and a culture")
	}

	nodeInfo, err := a.info(ir.ObjectTypeNode)
	if err != nil {
		return 0, err
	}
	docInfo, err := a.info(ir.ObjectTypeDocument)
	if err != nil {
		return 0, err
	}
	resolved, err := a.helper.ResolveDependencies(ctx, nodeInfo, row, siteID)
	if err != nil {
		return 0, err
	}
	if resolved, err = a.helper.ResolveDependencies(ctx, docInfo, resolved, siteID); err != nil {
		return 0, err
	}

	parentID, err := a.parentNodeID(ctx, row, siteID, aliasPath)
	if err != nil {
		return 0, err
	}

	existing, found, err := a.st.FindNode(ctx, siteID, nodeGUID)
	if err != nil {
		return 0, err
	}
	if found && existing.AliasPath != aliasPath {
		if err := a.st.MoveNode(ctx, existing, parentID, aliasPath); err != nil {
			return 0, err
		}
	}

	nodeID, _, err := a.st.UpsertNode(ctx, store.Node{
		GUID:      nodeGUID,
		SiteID:    siteID,
		ParentID:  parentID,
		AliasPath: aliasPath,
		ClassName: firstNonEmpty(row.String(ir.ColNodeClassName), task.ClassName),
		Order:     row.Int(ir.ColNodeOrder),
		OwnerID:   resolved.Int(ir.ColNodeOwner),
	})
	if err != nil {
		return 0, err
	}
	if err := a.helper.AddIDTranslation(ir.ObjectTypeNode, row.Int(ir.ColNodeID), ir.NewID(nodeID), siteID); err != nil {
		return 0, err
	}

	docID, _, err := a.st.UpsertDocument(ctx, store.Document{
		GUID:      docGUID,
		NodeID:    nodeID,
		Culture:   culture,
		Name:      row.String(ir.ColDocumentName),
		Content:   row.String(ir.ColDocumentContent),
		CreatedBy: resolved.Int(ir.ColDocumentCreatedByUserID),
	})
	if err != nil {
		return 0, err
	}
	if err := a.helper.AddIDTranslation(ir.ObjectTypeDocument, row.Int(ir.ColDocumentID), ir.NewID(docID), siteID); err != nil {
		return 0, err
	}

	res, err := a.rec.Synchronize(ctx, task.Payload, reconcile.Target{DocumentID: docID, SiteID: siteID})
	if err != nil {
		return 0, err
	}
	a.metrics.recordAttachments(res.Created, res.Updated, res.Deleted, res.Skipped)

	a.logger.Debug("document applied",
		"seq", task.Seq,
		"node_id", nodeID,
		"document_id", docID,
		"alias_path", aliasPath,
		"culture", culture)
	return docID, nil
}

func (a *applier) setDocumentState(ctx context.Context, task *ir.Task, published, archived bool) error {
	docID, err := a.upsertDocument(ctx, task)
	if err != nil {
		return err
	}
	return a.st.SetDocumentState(ctx, docID, published, archived)
}

func (a *applier) deleteDocument(ctx context.Context, task *ir.Task) error {
	siteID, err := a.requireSite(ctx, task)
	if err != nil {
		return err
	}
	node, found, err := a.locateNode(ctx, task, siteID)
	if err != nil {
		return err
	}
	if !found {
		a.logger.Info("document already absent", "seq", task.Seq, "entity", task.EntityKey())
		return nil
	}

	culture := task.CultureCode
	if tbl, ok := task.Payload.Table(ir.TableDocument); ok {
		if row, ok := tbl.First(); ok {
			culture = firstNonEmpty(row.String(ir.ColDocumentCulture), culture)
		}
	}
	if culture == "" {
		return NewInvalidPayloadError("DeleteDocument needs a culture")
	}
	_, err = a.st.DeleteDocument(ctx, node, culture)
	return err
}

func (a *applier) deleteAllCultures(ctx context.Context, task *ir.Task) error {
	siteID, err := a.requireSite(ctx, task)
	if err != nil {
		return err
	}
	node, found, err := a.locateNode(ctx, task, siteID)
	if err != nil {
		return err
	}
	if !found {
		a.logger.Info("node already absent", "seq", task.Seq, "entity", task.EntityKey())
		return nil
	}
	n, err := a.st.DeleteNodeTree(ctx, node)
	if err != nil {
		return err
	}
	a.logger.Debug("node tree deleted", "seq", task.Seq, "alias_path", node.AliasPath, "nodes", n)
	return nil
}

// existingNode locates the node a task changes and fails when it is
// missing.
func (a *applier) existingNode(ctx context.Context, task *ir.Task, siteID int64) (store.Node, error) {
	node, found, err := a.locateNode(ctx, task, siteID)
	if err != nil {
		return store.Node{}, err
	}
	if !found {
		return store.Node{}, NewUnresolvedError(fmt.Sprintf("node %s does not exist on the target", task.EntityKey()), nil)
	}
	return node, nil
}

func (a *applier) moveDocument(ctx context.Context, task *ir.Task) error {
	row, err := mainRow(task.Payload, ir.TableDocument)
	if err != nil {
		return err
	}
	siteID, err := a.requireSite(ctx, task)
	if err != nil {
		return err
	}
	node, err := a.existingNode(ctx, task, siteID)
	if err != nil {
		return err
	}
	aliasPath := row.String(ir.ColNodeAliasPath)
	if aliasPath == "" {
		return NewInvalidPayloadError("MoveDocument needs the new %s", ir.ColNodeAliasPath)
	}
	parentID, err := a.parentNodeID(ctx, row, siteID, aliasPath)
	if err != nil {
		return err
	}
	if err := a.st.MoveNode(ctx, node, parentID, aliasPath); err != nil {
		return err
	}
	if row.Has(ir.ColNodeOrder) {
		return a.st.SetNodeOrder(ctx, node.ID, row.Int(ir.ColNodeOrder))
	}
	return nil
}

func (a *applier) changeOrder(ctx context.Context, task *ir.Task) error {
	row, err := mainRow(task.Payload, ir.TableDocument)
	if err != nil {
		return err
	}
	if !row.Has(ir.ColNodeOrder) {
		return NewInvalidPayloadError("ChangeOrder needs %s", ir.ColNodeOrder)
	}
	siteID, err := a.requireSite(ctx, task)
	if err != nil {
		return err
	}
	node, err := a.existingNode(ctx, task, siteID)
	if err != nil {
		return err
	}
	return a.st.SetNodeOrder(ctx, node.ID, row.Int(ir.ColNodeOrder))
}

// ---------------------------------------------------------------------------
// Objects

// objectRow returns the type metadata and the main row of an object task.
// The main table is named after the object type.
func (a *applier) objectRow(task *ir.Task) (ir.ObjectTypeInfo, ir.Row, error) {
	if task.ObjectType == "" {
		return ir.ObjectTypeInfo{}, nil, NewInvalidPayloadError("object task without object type")
	}
	info, err := a.info(task.ObjectType)
	if err != nil {
		return ir.ObjectTypeInfo{}, nil, err
	}
	table := task.ObjectType
	if _, ok := task.Payload.Table(table); !ok {
		table = info.Name
	}
	row, err := mainRow(task.Payload, table)
	if err != nil {
		return ir.ObjectTypeInfo{}, nil, err
	}
	return info, row, nil
}

func objectGUID(info ir.ObjectTypeInfo, row ir.Row) (uuid.UUID, error) {
	guid, ok := row.GUID(info.GUIDColumn)
	if !ok {
		return uuid.Nil, NewInvalidPayloadError("%s row needs %s", info.Name, info.GUIDColumn)
	}
	return guid, nil
}

func (a *applier) upsertObject(ctx context.Context, task *ir.Task) error {
	info, row, err := a.objectRow(task)
	if err != nil {
		return err
	}
	guid, err := objectGUID(info, row)
	if err != nil {
		return err
	}
	siteID, err := a.optionalSite(ctx, task)
	if err != nil {
		return err
	}
	sourceID := row.Int(info.IDColumn)

	var targetID int64
	switch strings.ToLower(info.Name) {
	case ir.ObjectTypeSite:
		targetID, _, err = a.st.UpsertSite(ctx, store.Site{
			GUID:        guid,
			Name:        firstNonEmpty(row.String(ir.ColSiteName), task.ObjectCodeName),
			DisplayName: row.String(ir.ColSiteDisplayName),
		})
		if err != nil {
			return err
		}
		siteID = 0

	case ir.ObjectTypeFile:
		resolved, err := a.helper.ResolveDependencies(ctx, info, row, siteID)
		if err != nil {
			return err
		}
		targetID, _, err = a.st.UpsertMediaFile(ctx, store.MediaFile{
			GUID:      guid,
			LibraryID: resolved.Int(ir.ColFileLibraryID),
			SiteID:    siteID,
			Path:      row.String(ir.ColFilePath),
			Name:      row.String(ir.ColFileName),
		})
		if err != nil {
			return err
		}

	case ir.ObjectTypeNode, ir.ObjectTypeDocument, ir.ObjectTypeAttachment:
		return NewInvalidPayloadError("%s is replayed through document tasks", info.Name)

	default:
		resolved, err := a.translateObject(ctx, info, row, siteID)
		if err != nil {
			return err
		}
		targetID, _, err = a.st.UpsertObject(ctx, info, resolved)
		if err != nil {
			return err
		}
	}

	a.logger.Debug("object applied",
		"seq", task.Seq,
		"object_type", info.Name,
		"guid", guid,
		"target_id", targetID)
	return a.helper.AddIDTranslation(info.Name, sourceID, ir.NewID(targetID), siteID)
}

// translateObject rewrites every environment-local ID of a generic
// object row: declared dependencies, the site column and a parent column
// that is not declared as a dependency.
func (a *applier) translateObject(ctx context.Context, info ir.ObjectTypeInfo, row ir.Row, siteID int64) (ir.Row, error) {
	resolved, err := a.helper.ResolveDependencies(ctx, info, row, siteID)
	if err != nil {
		return nil, err
	}

	if col := info.SiteIDColumn; col != "" && row.Int(col) > 0 {
		if siteID == 0 {
			return nil, NewInvalidPayloadError("%s row is site-bound but the task has no site", info.Name)
		}
		resolved.SetInt(col, siteID)
	}

	if col := info.ParentIDColumn; col != "" && !declared(info, col) {
		if source := row.Int(col); source > 0 {
			id, err := a.helper.GetNewID(ctx, a.helper.RequestFor(info, source, siteID))
			if err != nil {
				return nil, err
			}
			if !id.Resolved() {
				return nil, &translation.UnresolvedError{
					ObjectType: info.Name,
					Column:     col,
					DependsOn:  info.Name,
					SourceID:   source,
				}
			}
			resolved.SetInt(col, id.OrZero())
		}
	}
	return resolved, nil
}

func declared(info ir.ObjectTypeInfo, col string) bool {
	for _, dep := range info.Dependencies {
		if dep.Column == col {
			return true
		}
	}
	return false
}

func (a *applier) deleteObject(ctx context.Context, task *ir.Task) error {
	info, row, err := a.objectRow(task)
	if err != nil {
		return err
	}
	guid, err := objectGUID(info, row)
	if err != nil {
		return err
	}

	var deleted bool
	switch strings.ToLower(info.Name) {
	case ir.ObjectTypeSite:
		deleted, err = a.st.DeleteSite(ctx, guid)
	case ir.ObjectTypeFile:
		deleted, err = a.st.DeleteMediaFile(ctx, guid)
	case ir.ObjectTypeNode, ir.ObjectTypeDocument, ir.ObjectTypeAttachment:
		return NewInvalidPayloadError("%s is replayed through document tasks", info.Name)
	default:
		deleted, err = a.st.DeleteObject(ctx, info.Name, guid)
	}
	if err != nil {
		return err
	}
	if !deleted {
		a.logger.Info("object already absent", "seq", task.Seq, "object_type", info.Name, "guid", guid)
	}
	return nil
}

// bindSite adds or removes the site binding of an object. The site comes
// from the SiteBinding table when present, otherwise from the task.
func (a *applier) bindSite(ctx context.Context, task *ir.Task, add bool) error {
	info, row, err := a.objectRow(task)
	if err != nil {
		return err
	}
	guid, err := objectGUID(info, row)
	if err != nil {
		return err
	}

	siteName := task.SiteName
	if tbl, ok := task.Payload.Table(ir.TableSiteBinding); ok {
		if binding, ok := tbl.First(); ok {
			siteName = firstNonEmpty(binding.String(ir.ColBindingSiteName), siteName)
		}
	}
	if siteName == "" {
		return NewInvalidPayloadError("%s needs a site", task.Type)
	}
	siteID, err := a.siteID(ctx, siteName)
	if err != nil {
		return err
	}

	obj, found, err := a.st.GetObject(ctx, info.Name, guid)
	if err != nil {
		return err
	}
	if !found {
		return NewUnresolvedError(fmt.Sprintf("%s %s does not exist on the target", info.Name, guid), nil)
	}

	if add {
		return a.st.AddObjectToSite(ctx, obj.ID, siteID)
	}
	removed, err := a.st.RemoveObjectFromSite(ctx, obj.ID, siteID)
	if err != nil {
		return err
	}
	if !removed {
		a.logger.Info("site binding already absent", "seq", task.Seq, "object_type", info.Name, "site", siteName)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Media folders

type folderTask struct {
	libraryID  int64
	sourcePath string
	targetPath string
}

func (a *applier) folder(ctx context.Context, task *ir.Task) (folderTask, error) {
	row, err := mainRow(task.Payload, ir.TableMediaFolder)
	if err != nil {
		return folderTask{}, err
	}
	siteID, err := a.optionalSite(ctx, task)
	if err != nil {
		return folderTask{}, err
	}
	libInfo, err := a.info(ir.ObjectTypeLibrary)
	if err != nil {
		return folderTask{}, err
	}
	source := row.Int(ir.ColFolderLibraryID)
	if source <= 0 {
		return folderTask{}, NewInvalidPayloadError("%s row needs %s", ir.TableMediaFolder, ir.ColFolderLibraryID)
	}
	lib, err := a.helper.GetNewID(ctx, a.helper.RequestFor(libInfo, source, siteID))
	if err != nil {
		return folderTask{}, err
	}
	if !lib.Resolved() {
		return folderTask{}, &translation.UnresolvedError{
			ObjectType: ir.ObjectTypeFolder,
			Column:     ir.ColFolderLibraryID,
			DependsOn:  ir.ObjectTypeLibrary,
			SourceID:   source,
		}
	}
	return folderTask{
		libraryID:  lib.OrZero(),
		sourcePath: store.CleanMediaPath(row.String(ir.ColFolderSourcePath)),
		targetPath: store.CleanMediaPath(row.String(ir.ColFolderTargetPath)),
	}, nil
}

func (a *applier) createMediaFolder(ctx context.Context, task *ir.Task) error {
	f, err := a.folder(ctx, task)
	if err != nil {
		return err
	}
	p := firstNonEmpty(f.targetPath, f.sourcePath)
	if p == "" {
		return NewInvalidPayloadError("CreateMediaFolder needs a folder path")
	}
	_, err = a.st.CreateMediaFolder(ctx, f.libraryID, p)
	return err
}

func (a *applier) moveMediaFolder(ctx context.Context, task *ir.Task) error {
	f, err := a.folder(ctx, task)
	if err != nil {
		return err
	}
	if f.sourcePath == "" || f.targetPath == "" {
		return NewInvalidPayloadError("MoveMediaFolder needs %s and %s", ir.ColFolderSourcePath, ir.ColFolderTargetPath)
	}
	n, err := a.st.MoveMediaFolder(ctx, f.libraryID, f.sourcePath, f.targetPath)
	if err != nil {
		return err
	}
	a.logger.Debug("media folder moved", "seq", task.Seq, "from", f.sourcePath, "to", f.targetPath, "files", n)
	return nil
}

func (a *applier) copyMediaFolder(ctx context.Context, task *ir.Task) error {
	f, err := a.folder(ctx, task)
	if err != nil {
		return err
	}
	if f.sourcePath == "" || f.targetPath == "" {
		return NewInvalidPayloadError("CopyMediaFolder needs %s and %s", ir.ColFolderSourcePath, ir.ColFolderTargetPath)
	}

	remap := make(map[uuid.UUID]uuid.UUID)
	if tbl, ok := task.Payload.Table(ir.TableMediaFileGUIDs); ok {
		for i, row := range tbl.Rows {
			src, ok1 := row.GUID(ir.ColRemapSourceGUID)
			dst, ok2 := row.GUID(ir.ColRemapTargetGUID)
			if !ok1 || !ok2 {
				return NewInvalidPayloadError("%s row %d needs %s and %s",
					ir.TableMediaFileGUIDs, i, ir.ColRemapSourceGUID, ir.ColRemapTargetGUID)
			}
			remap[src] = dst
		}
	}

	n, err := a.st.CopyMediaFolder(ctx, f.libraryID, f.sourcePath, f.targetPath, remap)
	if err != nil {
		return err
	}
	a.logger.Debug("media folder copied", "seq", task.Seq, "from", f.sourcePath, "to", f.targetPath, "files", n)
	return nil
}

func (a *applier) deleteMediaFolder(ctx context.Context, task *ir.Task) error {
	f, err := a.folder(ctx, task)
	if err != nil {
		return err
	}
	if f.sourcePath == "" {
		return NewInvalidPayloadError("DeleteMediaFolder needs %s", ir.ColFolderSourcePath)
	}
	_, err = a.st.DeleteMediaFolder(ctx, f.libraryID, f.sourcePath)
	return err
}
