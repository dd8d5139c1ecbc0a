package ir

import "fmt"

// Well-known payload table names.
const (
	TableDocument       = "CMS_Document"
	TableAttachment     = "CMS_Attachment"
	TableTranslation    = "ObjectTranslation"
	TableMediaFolder    = "MediaFolder"
	TableMediaFileGUIDs = "MediaFileGUIDTranslation"
	TableSiteBinding    = "SiteBinding"
)

// Attachment columns.
const (
	ColAttachmentID              = "AttachmentID"
	ColAttachmentGUID            = "AttachmentGUID"
	ColAttachmentDocumentID      = "AttachmentDocumentID"
	ColAttachmentVariantParentID = "AttachmentVariantParentID"
	ColAttachmentSiteID          = "AttachmentSiteID"
	ColAttachmentName            = "AttachmentName"
	ColAttachmentExtension       = "AttachmentExtension"
	ColAttachmentSize            = "AttachmentSize"
	ColAttachmentMimeType        = "AttachmentMimeType"
	ColAttachmentOrder           = "AttachmentOrder"
	ColAttachmentBinary          = "AttachmentBinary"
	ColAttachmentVariantName     = "AttachmentVariantDefinitionIdentifier"
)

// Document (node + culture version) columns.
const (
	ColNodeID                  = "NodeID"
	ColNodeGUID                = "NodeGUID"
	ColNodeParentID            = "NodeParentID"
	ColNodeAliasPath           = "NodeAliasPath"
	ColNodeOrder               = "NodeOrder"
	ColNodeClassName           = "NodeClassName"
	ColNodeSiteID              = "NodeSiteID"
	ColNodeOwner               = "NodeOwner"
	ColDocumentID              = "DocumentID"
	ColDocumentGUID            = "DocumentGUID"
	ColDocumentCulture         = "DocumentCulture"
	ColDocumentName            = "DocumentName"
	ColDocumentContent         = "DocumentContent"
	ColDocumentCreatedByUserID = "DocumentCreatedByUserID"
)

// Site and media file columns.
const (
	ColSiteID          = "SiteID"
	ColSiteGUID        = "SiteGUID"
	ColSiteName        = "SiteName"
	ColSiteDisplayName = "SiteDisplayName"
	ColFileID          = "FileID"
	ColFileGUID        = "FileGUID"
	ColFileLibraryID   = "FileLibraryID"
	ColFileSiteID      = "FileSiteID"
	ColFilePath        = "FilePath"
	ColFileName        = "FileName"
)

// Translation table columns.
const (
	ColTransObjectType = "ObjectType"
	ColTransSourceID   = "SourceID"
	ColTransGUID       = "GUID"
	ColTransCodeName   = "CodeName"
	ColTransSiteID     = "SiteID"
	ColTransParentID   = "ParentID"
	ColTransGroupID    = "GroupID"
)

// Media folder descriptor columns.
const (
	ColFolderSourcePath = "SourcePath"
	ColFolderTargetPath = "TargetPath"
	ColFolderLibraryID  = "LibraryID"
	ColRemapSourceGUID  = "SourceGUID"
	ColRemapTargetGUID  = "TargetGUID"
)

// Site binding columns.
const (
	ColBindingSiteName = "SiteName"
)

// Table is a named record-set.
type Table struct {
	Name string `json:"name"`
	Rows []Row  `json:"rows"`
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// First returns the first row or false when the table is empty.
func (t Table) First() (Row, bool) {
	if len(t.Rows) == 0 {
		return nil, false
	}
	return t.Rows[0], true
}

// Payload is the structured body of a task: a set of named tables.
// A table that is absent is different from a table that is present and
// empty; callers rely on that distinction (see attachment reconciliation).
type Payload struct {
	tables map[string]Table
}

// NewPayload builds a payload from tables. Later tables with the same
// name replace earlier ones.
func NewPayload(tables ...Table) Payload {
	p := Payload{tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		p.tables[t.Name] = t
	}
	return p
}

// Table returns the named table and whether it is present.
func (p Payload) Table(name string) (Table, bool) {
	t, ok := p.tables[name]
	return t, ok
}

// RequireTable returns the named table or a descriptive error.
func (p Payload) RequireTable(name string) (Table, error) {
	t, ok := p.tables[name]
	if !ok {
		return Table{}, fmt.Errorf("payload table %q is missing", name)
	}
	return t, nil
}

// Names returns the table names in canonical order.
func (p Payload) Names() []string {
	return sortedKeys(p.tables)
}

// With returns a copy of the payload with the table added or replaced.
func (p Payload) With(t Table) Payload {
	c := Payload{tables: make(map[string]Table, len(p.tables)+1)}
	for k, v := range p.tables {
		c.tables[k] = v
	}
	c.tables[t.Name] = t
	return c
}

// Without returns a copy of the payload with the named table removed.
func (p Payload) Without(name string) Payload {
	c := Payload{tables: make(map[string]Table, len(p.tables))}
	for k, v := range p.tables {
		if k != name {
			c.tables[k] = v
		}
	}
	return c
}
