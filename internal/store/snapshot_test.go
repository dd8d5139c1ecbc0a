package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagesync/internal/ir"
)

func TestSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	empty, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Sites)
	assert.Empty(t, empty.Nodes)
	assert.Empty(t, empty.MediaFiles)

	site := seedSite(t, s, "main")
	_, docID := seedDocument(t, s, site, "/B", "en-us")
	seedDocument(t, s, site, "/A", "en-us")
	_, _, err = s.UpsertAttachment(ctx, ir.Row{
		ir.ColAttachmentGUID:       ir.String(uuid.NewString()),
		ir.ColAttachmentDocumentID: ir.Int(docID),
	})
	require.NoError(t, err)
	seedMedia(t, s, 3)

	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, st.Sites, 1)
	require.Len(t, st.Nodes, 2)
	assert.Equal(t, "/A", st.Nodes[0].AliasPath)
	require.Len(t, st.Nodes[1].Documents, 1)
	assert.Len(t, st.Nodes[1].Documents[0].Attachments, 1)
	assert.Len(t, st.MediaFolders, 3)
	assert.Len(t, st.MediaFiles, 2)
}
