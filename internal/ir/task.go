package ir

import (
	"fmt"
	"strings"
)

// TaskType identifies the kind of change a task replays.
//
// The set is closed: every dispatcher switch over TaskType must handle
// all values and fall through to an error for anything else.
type TaskType int

const (
	// TaskTypeAll is a subscription filter value only; tasks never carry it.
	TaskTypeAll TaskType = iota

	TaskCreateDocument
	TaskUpdateDocument
	TaskDeleteDocument
	TaskDeleteAllCultures
	TaskMoveDocument
	TaskChangeOrder
	TaskPublishDocument
	TaskArchiveDocument

	TaskCreateObject
	TaskUpdateObject
	TaskDeleteObject
	TaskAddToSite
	TaskRemoveFromSite

	TaskCreateMediaFolder
	TaskMoveMediaFolder
	TaskCopyMediaFolder
	TaskDeleteMediaFolder

	taskTypeEnd
)

var taskTypeNames = map[TaskType]string{
	TaskTypeAll:           "All",
	TaskCreateDocument:    "CreateDocument",
	TaskUpdateDocument:    "UpdateDocument",
	TaskDeleteDocument:    "DeleteDocument",
	TaskDeleteAllCultures: "DeleteAllCultures",
	TaskMoveDocument:      "MoveDocument",
	TaskChangeOrder:       "ChangeOrder",
	TaskPublishDocument:   "PublishDocument",
	TaskArchiveDocument:   "ArchiveDocument",
	TaskCreateObject:      "CreateObject",
	TaskUpdateObject:      "UpdateObject",
	TaskDeleteObject:      "DeleteObject",
	TaskAddToSite:         "AddToSite",
	TaskRemoveFromSite:    "RemoveFromSite",
	TaskCreateMediaFolder: "CreateMediaFolder",
	TaskMoveMediaFolder:   "MoveMediaFolder",
	TaskCopyMediaFolder:   "CopyMediaFolder",
	TaskDeleteMediaFolder: "DeleteMediaFolder",
}

// String returns the canonical name of the task type.
func (t TaskType) String() string {
	if name, ok := taskTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TaskType(%d)", int(t))
}

// Valid reports whether t is a concrete task type (not All, not unknown).
func (t TaskType) Valid() bool {
	return t > TaskTypeAll && t < taskTypeEnd
}

// IsDocument reports whether the task operates on a document.
func (t TaskType) IsDocument() bool {
	return t >= TaskCreateDocument && t <= TaskArchiveDocument
}

// IsObject reports whether the task operates on a generic object.
func (t TaskType) IsObject() bool {
	return t >= TaskCreateObject && t <= TaskRemoveFromSite
}

// IsMediaFolder reports whether the task operates on a media folder.
func (t TaskType) IsMediaFolder() bool {
	return t >= TaskCreateMediaFolder && t <= TaskDeleteMediaFolder
}

// ParseTaskType parses a task type name, ignoring case.
func ParseTaskType(s string) (TaskType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TaskTypeAll, nil
	}
	for t, name := range taskTypeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown task type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t TaskType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TaskType) UnmarshalText(b []byte) error {
	parsed, err := ParseTaskType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Task is one logged change replayed on the target environment.
// Tasks are never mutated after creation.
type Task struct {
	// Seq is the position in the source log; per-entity ordering follows it.
	Seq int64

	// TaskID is the source-side task identifier, kept for reporting.
	TaskID int64

	Type     TaskType
	SiteName string // empty = global

	// Object tasks.
	ObjectType     string
	ObjectCodeName string

	// Document tasks.
	NodeAliasPath string
	CultureCode   string
	ClassName     string

	Title   string
	Payload Payload
}

// EntityKey identifies the entity a task changes. Tasks with the same key
// must be applied in log order; tasks with different keys are independent.
func (t *Task) EntityKey() string {
	switch {
	case t.Type.IsDocument():
		if row, ok := t.mainRow(TableDocument); ok {
			if guid, ok := row.GUID(ColNodeGUID); ok {
				return "node/" + guid.String()
			}
		}
		return "node/" + strings.ToLower(t.SiteName) + t.NodeAliasPath
	case t.Type.IsMediaFolder():
		if row, ok := t.mainRow(TableMediaFolder); ok {
			return fmt.Sprintf("media.folder/%d", row.Int(ColFolderLibraryID))
		}
		return "media.folder/" + strings.ToLower(t.SiteName)
	default:
		return strings.ToLower(t.ObjectType) + "/" + strings.ToLower(t.SiteName) + "/" + t.ObjectCodeName
	}
}

// ObjectTypeName returns the object type the task changes. Document and
// media folder tasks without an explicit type report their built-in type.
func (t *Task) ObjectTypeName() string {
	if t.ObjectType != "" {
		return t.ObjectType
	}
	switch {
	case t.Type.IsDocument():
		return ObjectTypeDocument
	case t.Type.IsMediaFolder():
		return ObjectTypeFolder
	default:
		return ""
	}
}

func (t *Task) mainRow(table string) (Row, bool) {
	tbl, ok := t.Payload.Table(table)
	if !ok {
		return nil, false
	}
	return tbl.First()
}

// ProcessType is how a connector wants matching tasks delivered.
type ProcessType int

const (
	ProcessSync ProcessType = iota
	ProcessAsyncSimple
	ProcessAsyncSimpleSnapshot
	ProcessSyncSnapshot
	// ProcessAsyncSnapshot is reported as ProcessAsyncSimpleSnapshot when
	// several subscriptions of one connector match the same task.
	ProcessAsyncSnapshot
)

var processTypeNames = map[ProcessType]string{
	ProcessSync:                "Sync",
	ProcessAsyncSimple:         "AsyncSimple",
	ProcessAsyncSimpleSnapshot: "AsyncSimpleSnapshot",
	ProcessSyncSnapshot:        "SyncSnapshot",
	ProcessAsyncSnapshot:       "AsyncSnapshot",
}

func (p ProcessType) String() string {
	if name, ok := processTypeNames[p]; ok {
		return name
	}
	return fmt.Sprintf("ProcessType(%d)", int(p))
}

// IsAsync reports whether deliveries go through the outbound queue.
func (p ProcessType) IsAsync() bool {
	return p == ProcessAsyncSimple || p == ProcessAsyncSimpleSnapshot || p == ProcessAsyncSnapshot
}

// IsSnapshot reports whether only the latest task per entity matters.
func (p ProcessType) IsSnapshot() bool {
	return p == ProcessAsyncSimpleSnapshot || p == ProcessSyncSnapshot || p == ProcessAsyncSnapshot
}

// ParseProcessType parses a process type name, ignoring case.
func ParseProcessType(s string) (ProcessType, error) {
	for p, name := range processTypeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown process type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p ProcessType) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ProcessType) UnmarshalText(b []byte) error {
	parsed, err := ParseProcessType(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
