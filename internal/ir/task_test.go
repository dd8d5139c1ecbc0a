package ir

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskTypeCategories(t *testing.T) {
	for tt := TaskTypeAll + 1; tt < taskTypeEnd; tt++ {
		n := 0
		for _, is := range []bool{tt.IsDocument(), tt.IsObject(), tt.IsMediaFolder()} {
			if is {
				n++
			}
		}
		assert.Equal(t, 1, n, "%s must belong to exactly one family", tt)
		assert.True(t, tt.Valid())
		assert.NotContains(t, tt.String(), "TaskType(")
	}

	assert.False(t, TaskTypeAll.Valid())
	assert.False(t, taskTypeEnd.Valid())
}

func TestParseTaskType(t *testing.T) {
	tt, err := ParseTaskType("createdocument")
	require.NoError(t, err)
	assert.Equal(t, TaskCreateDocument, tt)

	tt, err = ParseTaskType("")
	require.NoError(t, err)
	assert.Equal(t, TaskTypeAll, tt)

	_, err = ParseTaskType("Explode")
	require.Error(t, err)
}

func TestTaskTypeText(t *testing.T) {
	b, err := TaskMoveMediaFolder.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "MoveMediaFolder", string(b))

	var tt TaskType
	require.NoError(t, tt.UnmarshalText([]byte("ChangeOrder")))
	assert.Equal(t, TaskChangeOrder, tt)
}

func TestProcessTypePredicates(t *testing.T) {
	assert.False(t, ProcessSync.IsAsync())
	assert.False(t, ProcessSync.IsSnapshot())
	assert.True(t, ProcessAsyncSimple.IsAsync())
	assert.False(t, ProcessAsyncSimple.IsSnapshot())
	assert.True(t, ProcessSyncSnapshot.IsSnapshot())
	assert.False(t, ProcessSyncSnapshot.IsAsync())
	assert.True(t, ProcessAsyncSnapshot.IsAsync())
	assert.True(t, ProcessAsyncSnapshot.IsSnapshot())

	p, err := ParseProcessType("asyncsimplesnapshot")
	require.NoError(t, err)
	assert.Equal(t, ProcessAsyncSimpleSnapshot, p)

	_, err = ParseProcessType("later")
	require.Error(t, err)
}

func TestEntityKey(t *testing.T) {
	guid := uuid.New()

	doc := Task{
		Type:          TaskUpdateDocument,
		SiteName:      "Main",
		NodeAliasPath: "/News",
		Payload: NewPayload(Table{Name: TableDocument, Rows: []Row{
			{ColNodeGUID: String(guid.String())},
		}}),
	}
	assert.Equal(t, "node/"+guid.String(), doc.EntityKey())

	noGUID := Task{Type: TaskDeleteDocument, SiteName: "Main", NodeAliasPath: "/News"}
	assert.Equal(t, "node/main/News", noGUID.EntityKey())

	folder := Task{
		Type: TaskCreateMediaFolder,
		Payload: NewPayload(Table{Name: TableMediaFolder, Rows: []Row{
			{ColFolderLibraryID: Int(4)},
		}}),
	}
	assert.Equal(t, "media.folder/4", folder.EntityKey())

	obj := Task{Type: TaskUpdateObject, SiteName: "Main", ObjectType: "CMS.Role", ObjectCodeName: "Editors"}
	assert.Equal(t, "cms.role/main/Editors", obj.EntityKey())
}

func TestObjectTypeName(t *testing.T) {
	assert.Equal(t, ObjectTypeDocument, (&Task{Type: TaskPublishDocument}).ObjectTypeName())
	assert.Equal(t, ObjectTypeFolder, (&Task{Type: TaskCopyMediaFolder}).ObjectTypeName())
	assert.Equal(t, "cms.news", (&Task{Type: TaskCreateDocument, ObjectType: "cms.news"}).ObjectTypeName())
	assert.Equal(t, "", (&Task{Type: TaskCreateObject}).ObjectTypeName())
}

func TestPayloadAbsentVersusEmpty(t *testing.T) {
	p := NewPayload(Table{Name: TableAttachment})

	tbl, ok := p.Table(TableAttachment)
	require.True(t, ok)
	assert.Equal(t, 0, tbl.Len())

	_, ok = p.Table(TableDocument)
	assert.False(t, ok)

	_, err := p.RequireTable(TableDocument)
	require.Error(t, err)
	assert.Contains(t, err.Error(), TableDocument)

	without := p.Without(TableAttachment)
	_, ok = without.Table(TableAttachment)
	assert.False(t, ok)
	_, ok = p.Table(TableAttachment)
	assert.True(t, ok, "Without returns a copy")

	assert.Equal(t, []string{TableAttachment, TableDocument}, p.With(Table{Name: TableDocument}).Names())
}

func TestID(t *testing.T) {
	assert.False(t, Unresolved.Resolved())
	assert.False(t, NewID(0).Resolved())
	assert.False(t, NewID(-4).Resolved())
	assert.Equal(t, "unresolved", NewID(0).String())

	id := NewID(12)
	v, ok := id.Value()
	assert.True(t, ok)
	assert.Equal(t, int64(12), v)
	assert.Equal(t, int64(12), id.OrZero())
	assert.Equal(t, int64(0), Unresolved.OrZero())
	assert.Equal(t, "12", id.String())
}
