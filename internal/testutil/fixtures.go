// Package testutil holds fixture builders shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/store"
)

// namespace seeds GUID so that fixture GUIDs are stable across runs.
var namespace = uuid.MustParse("6f1c7a52-3b0e-4d8e-9a51-0c2f7d9e4b10")

// GUID returns a stable GUID for name.
func GUID(name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(name))
}

// OpenStore returns an in-memory store that is closed when the test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// SeedSite creates a site named name and returns its ID.
func SeedSite(t testing.TB, s *store.Store, name string) int64 {
	t.Helper()
	id, _, err := s.UpsertSite(context.Background(), store.Site{GUID: GUID("site/" + name), Name: name})
	if err != nil {
		t.Fatalf("seed site %s: %v", name, err)
	}
	return id
}

// DocumentBuilder builds document tasks. GUIDs derive from the site and
// alias path, so two builders for the same page address the same node.
type DocumentBuilder struct {
	site        string
	row         ir.Row
	attachments *ir.Table
	records     []ir.Row
}

// Document starts a document on site at aliasPath, culture en-US.
func Document(site, aliasPath string) *DocumentBuilder {
	return &DocumentBuilder{
		site: site,
		row: ir.Row{
			ir.ColNodeGUID:        ir.String(GUID("node/" + site + aliasPath).String()),
			ir.ColDocumentGUID:    ir.String(GUID("doc/" + site + aliasPath + "/en-US").String()),
			ir.ColNodeAliasPath:   ir.String(aliasPath),
			ir.ColNodeClassName:   ir.String("CMS.MenuItem"),
			ir.ColDocumentCulture: ir.String("en-US"),
			ir.ColDocumentName:    ir.String(aliasPath),
		},
	}
}

// Set overrides a column of the document row.
func (b *DocumentBuilder) Set(col string, v ir.Value) *DocumentBuilder {
	b.row[col] = v
	return b
}

// Name sets the document name.
func (b *DocumentBuilder) Name(name string) *DocumentBuilder {
	return b.Set(ir.ColDocumentName, ir.String(name))
}

// Attachment adds an attachment row. The first call also makes the
// attachment table present.
func (b *DocumentBuilder) Attachment(sourceID int64, name string) *DocumentBuilder {
	if b.attachments == nil {
		b.attachments = &ir.Table{Name: ir.TableAttachment}
	}
	b.attachments.Rows = append(b.attachments.Rows, ir.Row{
		ir.ColAttachmentID:   ir.Int(sourceID),
		ir.ColAttachmentGUID: ir.String(GUID("attachment/" + name).String()),
		ir.ColAttachmentName: ir.String(name),
	})
	return b
}

// NoAttachments makes the attachment table present and empty.
func (b *DocumentBuilder) NoAttachments() *DocumentBuilder {
	b.attachments = &ir.Table{Name: ir.TableAttachment}
	return b
}

// Translation adds an ObjectTranslation record.
func (b *DocumentBuilder) Translation(objectType string, sourceID int64, guid uuid.UUID) *DocumentBuilder {
	b.records = append(b.records, ir.Row{
		ir.ColTransObjectType: ir.String(objectType),
		ir.ColTransSourceID:   ir.Int(sourceID),
		ir.ColTransGUID:       ir.String(guid.String()),
	})
	return b
}

// Row returns a copy of the document row.
func (b *DocumentBuilder) Row() ir.Row {
	return b.row.Clone()
}

// Task builds the task.
func (b *DocumentBuilder) Task(seq int64, typ ir.TaskType) ir.Task {
	tables := []ir.Table{{Name: ir.TableDocument, Rows: []ir.Row{b.row.Clone()}}}
	if b.attachments != nil {
		tables = append(tables, *b.attachments)
	}
	if len(b.records) > 0 {
		tables = append(tables, ir.Table{Name: ir.TableTranslation, Rows: b.records})
	}
	return ir.Task{
		Seq:           seq,
		Type:          typ,
		SiteName:      b.site,
		NodeAliasPath: b.row.String(ir.ColNodeAliasPath),
		CultureCode:   b.row.String(ir.ColDocumentCulture),
		ClassName:     b.row.String(ir.ColNodeClassName),
		Payload:       ir.NewPayload(tables...),
	}
}

// ObjectTask builds an object task whose main table is named after the
// object type.
func ObjectTask(seq int64, typ ir.TaskType, objectType, site, codeName string, row ir.Row) ir.Task {
	return ir.Task{
		Seq:            seq,
		Type:           typ,
		SiteName:       site,
		ObjectType:     objectType,
		ObjectCodeName: codeName,
		Payload:        ir.NewPayload(ir.Table{Name: objectType, Rows: []ir.Row{row}}),
	}
}

// User builds a cms.user row with a stable GUID.
func User(sourceID int64, name string) ir.Row {
	return ir.Row{
		"UserID":   ir.Int(sourceID),
		"UserGUID": ir.String(GUID("user/" + name).String()),
		"UserName": ir.String(name),
	}
}

// FolderTask builds a media folder task.
func FolderTask(seq int64, typ ir.TaskType, site string, libraryID int64, source, target string) ir.Task {
	row := ir.Row{ir.ColFolderLibraryID: ir.Int(libraryID)}
	if source != "" {
		row[ir.ColFolderSourcePath] = ir.String(source)
	}
	if target != "" {
		row[ir.ColFolderTargetPath] = ir.String(target)
	}
	return ir.Task{
		Seq:      seq,
		Type:     typ,
		SiteName: site,
		Payload:  ir.NewPayload(ir.Table{Name: ir.TableMediaFolder, Rows: []ir.Row{row}}),
	}
}
