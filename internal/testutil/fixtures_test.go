package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagesync/internal/ir"
)

func TestGUIDIsStable(t *testing.T) {
	assert.Equal(t, GUID("a"), GUID("a"))
	assert.NotEqual(t, GUID("a"), GUID("b"))
}

func TestSeedSite(t *testing.T) {
	s := OpenStore(t)
	id := SeedSite(t, s, "main")

	found, err := s.FindSite(context.Background(), "main")
	require.NoError(t, err)
	got, ok := found.Value()
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestDocumentBuilder(t *testing.T) {
	task := Document("main", "/News").Name("News").Attachment(5, "a.png").Task(3, ir.TaskUpdateDocument)

	assert.Equal(t, int64(3), task.Seq)
	assert.Equal(t, "main", task.SiteName)
	assert.Equal(t, "/News", task.NodeAliasPath)
	assert.Equal(t, "en-US", task.CultureCode)
	assert.Equal(t, "node/"+GUID("node/main/News").String(), task.EntityKey())

	atts, ok := task.Payload.Table(ir.TableAttachment)
	require.True(t, ok)
	assert.Equal(t, 1, atts.Len())

	_, ok = Document("main", "/News").Task(1, ir.TaskCreateDocument).Payload.Table(ir.TableAttachment)
	assert.False(t, ok, "attachment table is absent unless requested")
}

func TestFolderTask(t *testing.T) {
	task := FolderTask(1, ir.TaskMoveMediaFolder, "main", 7, "a", "b")
	row, ok := task.Payload.Table(ir.TableMediaFolder)
	require.True(t, ok)
	first, _ := row.First()
	assert.Equal(t, int64(7), first.Int(ir.ColFolderLibraryID))
	assert.Equal(t, "a", first.String(ir.ColFolderSourcePath))
	assert.Equal(t, "b", first.String(ir.ColFolderTargetPath))
}
