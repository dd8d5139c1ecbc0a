package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Object type names known to the core.
const (
	ObjectTypeSite       = "cms.site"
	ObjectTypeNode       = "cms.node"
	ObjectTypeDocument   = "cms.document"
	ObjectTypeAttachment = "cms.attachment"
	ObjectTypeUser       = "cms.user"
	ObjectTypeRole       = "cms.role"
	ObjectTypeCategory   = "cms.category"
	ObjectTypeSetting    = "cms.settingskey"
	ObjectTypeGroup      = "community.group"
	ObjectTypeLibrary    = "media.library"
	ObjectTypeFolder     = "media.folder"
	ObjectTypeFile       = "media.file"
)

// Dependency declares a translatable foreign key column of an object type.
type Dependency struct {
	Column     string `json:"column"`
	ObjectType string `json:"object_type"`
	Required   bool   `json:"required"`
}

// ObjectTypeInfo describes how rows of an object type are identified and
// which of their columns reference other translatable objects.
type ObjectTypeInfo struct {
	Name              string       `json:"name"`
	SiteScoped        bool         `json:"site_scoped"`
	IDColumn          string       `json:"id_column"`
	GUIDColumn        string       `json:"guid_column"`
	CodeNameColumn    string       `json:"code_name_column,omitempty"`
	DisplayNameColumn string       `json:"display_name_column,omitempty"`
	SiteIDColumn      string       `json:"site_id_column,omitempty"`
	ParentIDColumn    string       `json:"parent_id_column,omitempty"`
	GroupIDColumn     string       `json:"group_id_column,omitempty"`
	Dependencies      []Dependency `json:"dependencies,omitempty"`
}

// ObjectTypes is a registry of object type metadata, keyed
// case-insensitively by type name.
type ObjectTypes struct {
	types map[string]ObjectTypeInfo
}

// NewObjectTypes returns a registry seeded with the built-in types.
func NewObjectTypes() *ObjectTypes {
	r := &ObjectTypes{types: make(map[string]ObjectTypeInfo)}
	for _, info := range builtinObjectTypes() {
		r.types[strings.ToLower(info.Name)] = info
	}
	return r
}

// Register adds or replaces an object type.
func (r *ObjectTypes) Register(info ObjectTypeInfo) error {
	if strings.TrimSpace(info.Name) == "" {
		return fmt.Errorf("object type name is required")
	}
	if info.IDColumn == "" || info.GUIDColumn == "" {
		return fmt.Errorf("object type %s: id and guid columns are required", info.Name)
	}
	if info.SiteScoped && info.SiteIDColumn == "" {
		return fmt.Errorf("object type %s: site-scoped types need a site id column", info.Name)
	}
	for i, dep := range info.Dependencies {
		if dep.Column == "" || dep.ObjectType == "" {
			return fmt.Errorf("object type %s: dependency %d needs column and object type", info.Name, i)
		}
	}
	r.types[strings.ToLower(info.Name)] = info
	return nil
}

// Lookup returns the metadata for an object type.
func (r *ObjectTypes) Lookup(name string) (ObjectTypeInfo, bool) {
	info, ok := r.types[strings.ToLower(name)]
	return info, ok
}

// Names returns all registered type names, sorted.
func (r *ObjectTypes) Names() []string {
	names := make([]string, 0, len(r.types))
	for _, info := range r.types {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names
}

func builtinObjectTypes() []ObjectTypeInfo {
	return []ObjectTypeInfo{
		{
			Name:              ObjectTypeSite,
			IDColumn:          ColSiteID,
			GUIDColumn:        ColSiteGUID,
			CodeNameColumn:    ColSiteName,
			DisplayNameColumn: ColSiteDisplayName,
		},
		{
			Name:           ObjectTypeNode,
			SiteScoped:     true,
			IDColumn:       ColNodeID,
			GUIDColumn:     ColNodeGUID,
			SiteIDColumn:   ColNodeSiteID,
			ParentIDColumn: ColNodeParentID,
			Dependencies: []Dependency{
				{Column: ColNodeOwner, ObjectType: ObjectTypeUser},
			},
		},
		{
			Name:       ObjectTypeDocument,
			IDColumn:   ColDocumentID,
			GUIDColumn: ColDocumentGUID,
			Dependencies: []Dependency{
				{Column: ColDocumentCreatedByUserID, ObjectType: ObjectTypeUser},
			},
		},
		{
			Name:         ObjectTypeAttachment,
			SiteScoped:   true,
			IDColumn:     ColAttachmentID,
			GUIDColumn:   ColAttachmentGUID,
			SiteIDColumn: ColAttachmentSiteID,
		},
		{
			Name:              ObjectTypeUser,
			IDColumn:          "UserID",
			GUIDColumn:        "UserGUID",
			CodeNameColumn:    "UserName",
			DisplayNameColumn: "FullName",
		},
		{
			Name:              ObjectTypeRole,
			SiteScoped:        true,
			IDColumn:          "RoleID",
			GUIDColumn:        "RoleGUID",
			CodeNameColumn:    "RoleName",
			DisplayNameColumn: "RoleDisplayName",
			SiteIDColumn:      "SiteID",
			GroupIDColumn:     "RoleGroupID",
			Dependencies: []Dependency{
				{Column: "RoleGroupID", ObjectType: ObjectTypeGroup},
			},
		},
		{
			Name:              ObjectTypeCategory,
			IDColumn:          "CategoryID",
			GUIDColumn:        "CategoryGUID",
			CodeNameColumn:    "CategoryName",
			DisplayNameColumn: "CategoryDisplayName",
			ParentIDColumn:    "CategoryParentID",
			Dependencies: []Dependency{
				{Column: "CategoryParentID", ObjectType: ObjectTypeCategory},
				{Column: "CategoryUserID", ObjectType: ObjectTypeUser},
			},
		},
		{
			Name:           ObjectTypeSetting,
			IDColumn:       "KeyID",
			GUIDColumn:     "KeyGUID",
			CodeNameColumn: "KeyName",
			SiteIDColumn:   "SiteID",
		},
		{
			Name:              ObjectTypeGroup,
			SiteScoped:        true,
			IDColumn:          "GroupID",
			GUIDColumn:        "GroupGUID",
			CodeNameColumn:    "GroupName",
			DisplayNameColumn: "GroupDisplayName",
			SiteIDColumn:      "GroupSiteID",
		},
		{
			Name:              ObjectTypeLibrary,
			SiteScoped:        true,
			IDColumn:          "LibraryID",
			GUIDColumn:        "LibraryGUID",
			CodeNameColumn:    "LibraryName",
			DisplayNameColumn: "LibraryDisplayName",
			SiteIDColumn:      "LibrarySiteID",
			Dependencies: []Dependency{
				{Column: "LibraryGroupID", ObjectType: ObjectTypeGroup},
			},
		},
		{
			Name:         ObjectTypeFile,
			SiteScoped:   true,
			IDColumn:     ColFileID,
			GUIDColumn:   ColFileGUID,
			SiteIDColumn: ColFileSiteID,
			Dependencies: []Dependency{
				{Column: ColFileLibraryID, ObjectType: ObjectTypeLibrary, Required: true},
				{Column: "FileCreatedByUserID", ObjectType: ObjectTypeUser},
			},
		},
	}
}
