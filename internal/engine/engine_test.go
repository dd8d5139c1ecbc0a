package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/store"
	"github.com/roach88/stagesync/internal/subscription"
)

type fixture struct {
	store    *store.Store
	siteID   int64
	registry *subscription.Registry
	metrics  *Metrics
	search   *RecordingConnector
	d        *Dispatcher
}

// newFixture builds a dispatcher over an in-memory store with one site
// ("main") and two connectors: "search" and "audit".
func newFixture(t *testing.T, subs ...subscription.Subscription) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	siteID, _, err := s.UpsertSite(ctx, store.Site{GUID: uuid.New(), Name: "main"})
	require.NoError(t, err)

	reg := subscription.NewRegistry()
	require.NoError(t, reg.RegisterConnector("search"))
	require.NoError(t, reg.RegisterConnector("audit"))
	for _, sub := range subs {
		require.NoError(t, reg.Register(sub))
	}

	f := &fixture{
		store:    s,
		siteID:   siteID,
		registry: reg,
		metrics:  NewMetrics(),
		search:   NewRecordingConnector("search"),
	}
	f.d = New(s, reg,
		WithConnectors(f.search),
		WithMetrics(f.metrics),
		WithRunIDGenerator(NewFixedGenerator("run-1", "run-2", "run-3")),
	)
	return f
}

func docSub(connector string, pt ir.ProcessType) *subscription.DocumentSubscription {
	return &subscription.DocumentSubscription{
		Base: subscription.Base{ConnectorName: connector, ProcessType: pt},
	}
}

func docRow(node, doc uuid.UUID, aliasPath, name string) ir.Row {
	return ir.Row{
		ir.ColNodeGUID:        ir.String(node.String()),
		ir.ColDocumentGUID:    ir.String(doc.String()),
		ir.ColNodeAliasPath:   ir.String(aliasPath),
		ir.ColNodeClassName:   ir.String("CMS.News"),
		ir.ColDocumentCulture: ir.String("en-US"),
		ir.ColDocumentName:    ir.String(name),
	}
}

func docTask(seq int64, typ ir.TaskType, row ir.Row, extra ...ir.Table) ir.Task {
	tables := append([]ir.Table{{Name: ir.TableDocument, Rows: []ir.Row{row}}}, extra...)
	return ir.Task{
		Seq:           seq,
		Type:          typ,
		SiteName:      "main",
		NodeAliasPath: row.String(ir.ColNodeAliasPath),
		CultureCode:   "en-US",
		ClassName:     "CMS.News",
		Payload:       ir.NewPayload(tables...),
	}
}

func objectTask(seq int64, typ ir.TaskType, objectType, codeName, site string, row ir.Row) ir.Task {
	return ir.Task{
		Seq:            seq,
		Type:           typ,
		SiteName:       site,
		ObjectType:     objectType,
		ObjectCodeName: codeName,
		Payload:        ir.NewPayload(ir.Table{Name: objectType, Rows: []ir.Row{row}}),
	}
}

func mediaFolderTask(seq int64, typ ir.TaskType, row ir.Row, extra ...ir.Table) ir.Task {
	tables := append([]ir.Table{{Name: ir.TableMediaFolder, Rows: []ir.Row{row}}}, extra...)
	return ir.Task{Seq: seq, Type: typ, SiteName: "main", Payload: ir.NewPayload(tables...)}
}

func (f *fixture) process(t *testing.T, task ir.Task) TaskResult {
	t.Helper()
	res, err := f.d.Process(context.Background(), &task)
	require.NoError(t, err)
	require.Equal(t, StatusApplied, res.Status)
	return res
}

func (f *fixture) node(t *testing.T, guid uuid.UUID) (store.Node, bool) {
	t.Helper()
	n, found, err := f.store.FindNode(context.Background(), f.siteID, guid)
	require.NoError(t, err)
	return n, found
}

func (f *fixture) document(t *testing.T, node uuid.UUID) store.Document {
	t.Helper()
	n, found := f.node(t, node)
	require.True(t, found, "node %s", node)
	d, found, err := f.store.FindDocument(context.Background(), n.ID, "en-US")
	require.NoError(t, err)
	require.True(t, found)
	return d
}

func (f *fixture) object(t *testing.T, objectType string, guid uuid.UUID) (store.Object, bool) {
	t.Helper()
	obj, found, err := f.store.GetObject(context.Background(), objectType, guid)
	require.NoError(t, err)
	return obj, found
}

func TestNewFillsMissingConnectors(t *testing.T) {
	f := newFixture(t)
	assert.Same(t, f.search, f.d.connectors["search"])
	assert.IsType(t, &LogConnector{}, f.d.connectors["audit"])
}

func TestProcessCreatesDocumentAndDelivers(t *testing.T) {
	f := newFixture(t, docSub("search", ir.ProcessSync), docSub("audit", ir.ProcessAsyncSimple))
	node, doc, att := uuid.New(), uuid.New(), uuid.New()

	task := docTask(1, ir.TaskCreateDocument, docRow(node, doc, "/News", "News"),
		ir.Table{Name: ir.TableAttachment, Rows: []ir.Row{{
			ir.ColAttachmentID:   ir.Int(31),
			ir.ColAttachmentGUID: ir.String(att.String()),
			ir.ColAttachmentName: ir.String("logo.png"),
		}}})
	res := f.process(t, task)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Queued)
	assert.Equal(t, "node/"+node.String(), res.EntityKey)

	n, found := f.node(t, node)
	require.True(t, found)
	assert.Equal(t, "/News", n.AliasPath)
	assert.Equal(t, "CMS.News", n.ClassName)

	d := f.document(t, node)
	assert.Equal(t, doc, d.GUID)
	assert.Equal(t, "News", d.Name)

	atts, err := f.store.ListAttachments(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, d.ID, atts[0].Int(ir.ColAttachmentDocumentID))

	assert.Equal(t, []Delivery{{
		Connector:   "search",
		Seq:         1,
		TaskType:    ir.TaskCreateDocument,
		EntityKey:   "node/" + node.String(),
		ProcessType: ir.ProcessSync,
	}}, f.search.Deliveries())

	items, err := f.store.PendingItems(context.Background(), "audit")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "run-1", items[0].RunID)
	assert.Equal(t, "AsyncSimple", items[0].ProcessType)
	assert.NotEmpty(t, items[0].TaskHash)
	assert.Contains(t, items[0].Payload, "logo.png")

	entries, err := f.store.ReadTaskLog(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "applied", entries[0].Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.tasksTotal.WithLabelValues("CreateDocument", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.attachmentsTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.deliveriesTotal.WithLabelValues("search", "Sync", "delivered")))
}

func TestProcessUpdateReconcilesAttachments(t *testing.T) {
	f := newFixture(t)
	node, doc := uuid.New(), uuid.New()
	attachments := ir.Table{Name: ir.TableAttachment, Rows: []ir.Row{{
		ir.ColAttachmentID:   ir.Int(31),
		ir.ColAttachmentGUID: ir.String(uuid.NewString()),
	}}}

	f.process(t, docTask(1, ir.TaskCreateDocument, docRow(node, doc, "/News", "News"), attachments))
	f.process(t, docTask(2, ir.TaskUpdateDocument, docRow(node, doc, "/News", "Latest news"),
		ir.Table{Name: ir.TableAttachment}))

	d := f.document(t, node)
	assert.Equal(t, "Latest news", d.Name)
	atts, err := f.store.ListAttachments(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Empty(t, atts)
}

func TestProcessRollsBackFailedTask(t *testing.T) {
	f := newFixture(t, docSub("audit", ir.ProcessAsyncSimple))
	task := docTask(1, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/News/Item", "Item"))

	res, err := f.d.Process(context.Background(), &task)
	require.Error(t, err)
	assert.True(t, IsUnresolvedError(err))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Reason, "/News")

	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, int64(1), re.TaskSeq)
	assert.Equal(t, ir.TaskCreateDocument, re.TaskType)

	state, err := f.store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Nodes)
	assert.Empty(t, state.Queue)

	entries, err := f.store.ReadTaskLog(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "failed", entries[0].Status)
	assert.Contains(t, entries[0].Reason, "UNRESOLVED_DEPENDENCY")
}

func TestProcessErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		task ir.Task
		code RuntimeErrorCode
	}{
		{
			name: "missing document table",
			task: ir.Task{Seq: 1, Type: ir.TaskCreateDocument, SiteName: "main", NodeAliasPath: "/News"},
			code: ErrCodeMissingTable,
		},
		{
			name: "unknown task type",
			task: ir.Task{Seq: 1, Type: ir.TaskType(99)},
			code: ErrCodeUnknownTaskType,
		},
		{
			name: "document without guid",
			task: docTask(1, ir.TaskCreateDocument, ir.Row{ir.ColNodeAliasPath: ir.String("/News")}),
			code: ErrCodeInvalidPayload,
		},
		{
			name: "unknown object type",
			task: objectTask(1, ir.TaskCreateObject, "custom.thing", "x", "", ir.Row{}),
			code: ErrCodeInvalidPayload,
		},
		{
			name: "unknown site",
			task: func() ir.Task {
				task := docTask(1, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/News", "News"))
				task.SiteName = "elsewhere"
				return task
			}(),
			code: ErrCodeUnresolvedDependency,
		},
		{
			name: "media folder without library",
			task: mediaFolderTask(1, ir.TaskCreateMediaFolder, ir.Row{ir.ColFolderTargetPath: ir.String("a")}),
			code: ErrCodeInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.d.Process(context.Background(), &tt.task)
			require.Error(t, err)
			assert.True(t, HasCode(err, tt.code), "got %v", err)
			assert.Equal(t, StatusFailed, res.Status)
			assert.False(t, IsCancelled(err))
		})
	}
}

func TestProcessCancelled(t *testing.T) {
	f := newFixture(t, docSub("search", ir.ProcessSync))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := docTask(1, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/News", "News"))
	res, err := f.d.Process(ctx, &task)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Empty(t, f.search.Deliveries())

	entries, err := f.store.ReadTaskLog(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cancelled", entries[0].Status)
}

func TestDeliveryFailureKeepsLocalChange(t *testing.T) {
	f := newFixture(t, docSub("search", ir.ProcessSync))
	f.search.Fail = func(*ir.Task) error { return errors.New("index offline") }
	node := uuid.New()

	task := docTask(1, ir.TaskCreateDocument, docRow(node, uuid.New(), "/News", "News"))
	res, err := f.d.Process(context.Background(), &task)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeDeliveryFailed))
	assert.Contains(t, err.Error(), "index offline")
	assert.Equal(t, StatusFailed, res.Status)

	_, found := f.node(t, node)
	assert.True(t, found)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.deliveriesTotal.WithLabelValues("search", "Sync", "failed")))
}

func TestPublishAndArchive(t *testing.T) {
	f := newFixture(t)
	node, doc := uuid.New(), uuid.New()
	row := docRow(node, doc, "/News", "News")

	f.process(t, docTask(1, ir.TaskPublishDocument, row))
	d := f.document(t, node)
	assert.True(t, d.Published)
	assert.False(t, d.Archived)

	f.process(t, docTask(2, ir.TaskArchiveDocument, row))
	d = f.document(t, node)
	assert.False(t, d.Published)
	assert.True(t, d.Archived)
}

func TestDeleteDocumentIsReplayable(t *testing.T) {
	f := newFixture(t)
	node := uuid.New()
	row := docRow(node, uuid.New(), "/News", "News")

	f.process(t, docTask(1, ir.TaskCreateDocument, row))
	f.process(t, docTask(2, ir.TaskDeleteDocument, row))
	_, found := f.node(t, node)
	assert.False(t, found, "last culture removes the node")

	f.process(t, docTask(3, ir.TaskDeleteDocument, row))
}

func TestDeleteAllCulturesRemovesSubtree(t *testing.T) {
	f := newFixture(t)
	parent, child := uuid.New(), uuid.New()
	parentRow := docRow(parent, uuid.New(), "/News", "News")

	f.process(t, docTask(1, ir.TaskCreateDocument, parentRow))
	f.process(t, docTask(2, ir.TaskCreateDocument, docRow(child, uuid.New(), "/News/Item", "Item")))
	f.process(t, docTask(3, ir.TaskDeleteAllCultures, parentRow))

	state, err := f.store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Nodes)
}

func TestMoveDocumentAndChangeOrder(t *testing.T) {
	f := newFixture(t)
	news, archive, item := uuid.New(), uuid.New(), uuid.New()
	itemDoc := uuid.New()

	f.process(t, docTask(1, ir.TaskCreateDocument, docRow(news, uuid.New(), "/News", "News")))
	f.process(t, docTask(2, ir.TaskCreateDocument, docRow(archive, uuid.New(), "/Archive", "Archive")))
	f.process(t, docTask(3, ir.TaskCreateDocument, docRow(item, itemDoc, "/News/Item", "Item")))

	f.process(t, docTask(4, ir.TaskMoveDocument, docRow(item, itemDoc, "/Archive/Item", "Item")))
	moved, found := f.node(t, item)
	require.True(t, found)
	archiveNode, _ := f.node(t, archive)
	assert.Equal(t, "/Archive/Item", moved.AliasPath)
	assert.Equal(t, archiveNode.ID, moved.ParentID)

	row := docRow(item, itemDoc, "/Archive/Item", "Item")
	row.SetInt(ir.ColNodeOrder, 5)
	f.process(t, docTask(5, ir.TaskChangeOrder, row))
	moved, _ = f.node(t, item)
	assert.Equal(t, int64(5), moved.Order)
}

func TestObjectLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	row := ir.Row{
		"UserID":   ir.Int(5),
		"UserGUID": ir.String(user.String()),
		"UserName": ir.String("jdoe"),
		"FullName": ir.String("J. Doe"),
	}

	f.process(t, objectTask(1, ir.TaskCreateObject, ir.ObjectTypeUser, "jdoe", "", row))
	obj, found := f.object(t, ir.ObjectTypeUser, user)
	require.True(t, found)
	assert.Equal(t, "jdoe", obj.CodeName)

	// The memoized translation rewrites the document's creator.
	node := uuid.New()
	withCreator := docRow(node, uuid.New(), "/News", "News")
	withCreator.SetInt(ir.ColDocumentCreatedByUserID, 5)
	f.process(t, docTask(2, ir.TaskCreateDocument, withCreator))
	d := f.document(t, node)
	assert.Equal(t, obj.ID, d.CreatedBy)

	f.process(t, objectTask(3, ir.TaskAddToSite, ir.ObjectTypeUser, "jdoe", "main", row))
	obj, _ = f.object(t, ir.ObjectTypeUser, user)
	assert.Equal(t, []int64{f.siteID}, obj.Sites)

	f.process(t, objectTask(4, ir.TaskRemoveFromSite, ir.ObjectTypeUser, "jdoe", "main", row))
	sites, err := f.store.ObjectSites(ctx, obj.ID)
	require.NoError(t, err)
	assert.Empty(t, sites)

	f.process(t, objectTask(5, ir.TaskDeleteObject, ir.ObjectTypeUser, "jdoe", "", row))
	_, found = f.object(t, ir.ObjectTypeUser, user)
	assert.False(t, found)

	f.process(t, objectTask(6, ir.TaskDeleteObject, ir.ObjectTypeUser, "jdoe", "", row))
}

func TestObjectParentIsTranslated(t *testing.T) {
	f := newFixture(t)
	root, child := uuid.New(), uuid.New()

	f.process(t, objectTask(1, ir.TaskCreateObject, ir.ObjectTypeCategory, "root", "", ir.Row{
		"CategoryID":   ir.Int(1),
		"CategoryGUID": ir.String(root.String()),
		"CategoryName": ir.String("root"),
	}))
	f.process(t, objectTask(2, ir.TaskCreateObject, ir.ObjectTypeCategory, "child", "", ir.Row{
		"CategoryID":       ir.Int(2),
		"CategoryGUID":     ir.String(child.String()),
		"CategoryName":     ir.String("child"),
		"CategoryParentID": ir.Int(1),
	}))

	parent, _ := f.object(t, ir.ObjectTypeCategory, root)
	obj, found := f.object(t, ir.ObjectTypeCategory, child)
	require.True(t, found)
	assert.Equal(t, parent.ID, obj.ParentID)
}

func TestRequiredDependencyFails(t *testing.T) {
	f := newFixture(t)
	task := objectTask(1, ir.TaskCreateObject, ir.ObjectTypeFile, "a.png", "main", ir.Row{
		ir.ColFileID:        ir.Int(20),
		ir.ColFileGUID:      ir.String(uuid.NewString()),
		ir.ColFileLibraryID: ir.Int(99),
	})
	_, err := f.d.Process(context.Background(), &task)
	require.Error(t, err)
	assert.True(t, IsUnresolvedError(err))
}

func TestMediaFolderTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	libGUID, fileGUID, copyGUID := uuid.New(), uuid.New(), uuid.New()

	f.process(t, objectTask(1, ir.TaskCreateObject, ir.ObjectTypeLibrary, "images", "main", ir.Row{
		"LibraryID":     ir.Int(7),
		"LibraryGUID":   ir.String(libGUID.String()),
		"LibraryName":   ir.String("images"),
		"LibrarySiteID": ir.Int(3),
	}))
	lib, found := f.object(t, ir.ObjectTypeLibrary, libGUID)
	require.True(t, found)
	assert.Equal(t, f.siteID, lib.SiteID)

	f.process(t, mediaFolderTask(2, ir.TaskCreateMediaFolder, ir.Row{
		ir.ColFolderLibraryID:  ir.Int(7),
		ir.ColFolderTargetPath: ir.String("photos/2024"),
	}))
	f.process(t, objectTask(3, ir.TaskCreateObject, ir.ObjectTypeFile, "a.png", "main", ir.Row{
		ir.ColFileID:        ir.Int(20),
		ir.ColFileGUID:      ir.String(fileGUID.String()),
		ir.ColFileLibraryID: ir.Int(7),
		ir.ColFilePath:      ir.String("photos/2024/a.png"),
		ir.ColFileName:      ir.String("a.png"),
	}))

	f.process(t, mediaFolderTask(4, ir.TaskMoveMediaFolder, ir.Row{
		ir.ColFolderLibraryID:  ir.Int(7),
		ir.ColFolderSourcePath: ir.String("photos"),
		ir.ColFolderTargetPath: ir.String("archive"),
	}))
	files, err := f.store.ListMediaFiles(ctx, lib.ID, "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "archive/2024/a.png", files[0].Path)

	f.process(t, mediaFolderTask(5, ir.TaskCopyMediaFolder, ir.Row{
		ir.ColFolderLibraryID:  ir.Int(7),
		ir.ColFolderSourcePath: ir.String("archive"),
		ir.ColFolderTargetPath: ir.String("backup"),
	}, ir.Table{Name: ir.TableMediaFileGUIDs, Rows: []ir.Row{{
		ir.ColRemapSourceGUID: ir.String(fileGUID.String()),
		ir.ColRemapTargetGUID: ir.String(copyGUID.String()),
	}}}))

	f.process(t, mediaFolderTask(6, ir.TaskDeleteMediaFolder, ir.Row{
		ir.ColFolderLibraryID:  ir.Int(7),
		ir.ColFolderSourcePath: ir.String("archive"),
	}))
	files, err = f.store.ListMediaFiles(ctx, lib.ID, "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, copyGUID, files[0].GUID)
	assert.Equal(t, "backup/2024/a.png", files[0].Path)

	folders, err := f.store.ListMediaFolders(ctx, lib.ID, "")
	require.NoError(t, err)
	paths := make([]string, len(folders))
	for i, folder := range folders {
		paths[i] = folder.Path
	}
	assert.Equal(t, []string{"backup/2024"}, paths)
}

func TestAsyncSnapshotSupersedesPendingItems(t *testing.T) {
	f := newFixture(t,
		docSub("audit", ir.ProcessAsyncSimpleSnapshot),
		docSub("search", ir.ProcessAsyncSimple),
	)
	node, doc := uuid.New(), uuid.New()

	f.process(t, docTask(1, ir.TaskCreateDocument, docRow(node, doc, "/News", "v1")))
	f.process(t, docTask(2, ir.TaskUpdateDocument, docRow(node, doc, "/News", "v2")))

	audit, err := f.store.PendingItems(context.Background(), "audit")
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, int64(2), audit[0].TaskSeq)

	search, err := f.store.PendingItems(context.Background(), "search")
	require.NoError(t, err)
	assert.Len(t, search, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.supersededTotal.WithLabelValues("audit")))
}

func TestProcessStampsMissingSeq(t *testing.T) {
	f := newFixture(t)
	f.d = New(f.store, f.registry, WithClock(NewClockAt(100)), WithRunIDGenerator(NewFixedGenerator("run-1")))

	task := docTask(0, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/News", "News"))
	res := f.process(t, task)
	assert.Equal(t, int64(101), res.Seq)

	task = docTask(500, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/Blog", "Blog"))
	f.process(t, task)
	assert.Equal(t, int64(501), f.d.Clock().Next())
}

func TestRunProcessesQueueUntilStopped(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.d.Enqueue(docTask(1, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/News", "News"))))
	require.True(t, f.d.Enqueue(docTask(2, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/A/B", "Orphan"))))
	require.True(t, f.d.Enqueue(docTask(3, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/Blog", "Blog"))))
	f.d.Stop()
	assert.False(t, f.d.Enqueue(ir.Task{}))

	require.NoError(t, f.d.Run(context.Background()))

	counts, err := f.store.TaskLogCounts(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"applied": 2, "failed": 1}, counts)
}

func TestRunStopsOnContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.d.Run(ctx), context.Canceled)
}

func TestRunBatchContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	tasks := []ir.Task{
		docTask(3, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/Blog", "Blog")),
		docTask(1, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/News", "News")),
		docTask(2, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/A/B", "Orphan")),
	}

	report, err := f.d.RunBatch(context.Background(), tasks, BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, report.HasFailures())

	seqs := make([]int64, len(report.Results))
	for i, r := range report.Results {
		seqs[i] = r.Seq
	}
	assert.Equal(t, []int64{1, 2, 3}, seqs)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
}

func TestRunBatchCollapsesSyncSnapshot(t *testing.T) {
	f := newFixture(t, docSub("search", ir.ProcessSyncSnapshot))
	a, b := uuid.New(), uuid.New()
	aDoc := uuid.New()
	tasks := []ir.Task{
		docTask(1, ir.TaskCreateDocument, docRow(a, aDoc, "/A", "v1")),
		docTask(2, ir.TaskUpdateDocument, docRow(a, aDoc, "/A", "v2")),
		docTask(3, ir.TaskCreateDocument, docRow(b, uuid.New(), "/B", "B")),
	}

	report, err := f.d.RunBatch(context.Background(), tasks, BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Applied)

	var seqs []int64
	for _, del := range f.search.Deliveries() {
		seqs = append(seqs, del.Seq)
	}
	assert.Equal(t, []int64{2, 3}, seqs)
	assert.Equal(t, "v2", f.document(t, a).Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.deliveriesTotal.WithLabelValues("search", "SyncSnapshot", "collapsed")))
}

func TestRunBatchParallelKeepsEntityOrder(t *testing.T) {
	f := newFixture(t)
	const pages = 6
	var (
		tasks []ir.Task
		nodes []uuid.UUID
	)
	for i := 0; i < pages; i++ {
		node, doc := uuid.New(), uuid.New()
		nodes = append(nodes, node)
		path := fmt.Sprintf("/Page-%d", i)
		tasks = append(tasks,
			docTask(int64(i+1), ir.TaskCreateDocument, docRow(node, doc, path, "v1")),
			docTask(int64(pages+i+1), ir.TaskUpdateDocument, docRow(node, doc, path, "v2")),
		)
	}

	report, err := f.d.RunBatch(context.Background(), tasks, BatchOptions{Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, 2*pages, report.Applied)
	for _, node := range nodes {
		assert.Equal(t, "v2", f.document(t, node).Name)
	}

	counts, err := f.store.TaskLogCounts(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"applied": 2 * pages}, counts)
}

func TestRunBatchStopsOnCancellation(t *testing.T) {
	f := newFixture(t, docSub("search", ir.ProcessSync))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.search.Fail = func(*ir.Task) error {
		cancel()
		return nil
	}

	tasks := []ir.Task{
		docTask(1, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/News", "News")),
		docTask(2, ir.TaskCreateDocument, docRow(uuid.New(), uuid.New(), "/Blog", "Blog")),
	}
	report, err := f.d.RunBatch(ctx, tasks, BatchOptions{})
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 1, report.Cancelled)
	assert.Equal(t, "not started", report.Results[1].Reason)
}
