package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagesync/internal/ir"
)

func TestMatchListsConnectors(t *testing.T) {
	dir := t.TempDir()
	config := writeFile(t, dir, "sync.cue", testConfig)
	batch := writeFile(t, dir, "batch.yaml", testBatch)

	out, err := execute(t, "--format", "json", "match", "--config", config, batch)
	require.NoError(t, err)

	var resp struct {
		Data []TaskMatches `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 3)

	require.Len(t, resp.Data[0].Matches, 1)
	assert.Equal(t, "audit", resp.Data[0].Matches[0].ConnectorName)
	assert.Equal(t, ir.ProcessAsyncSimple, resp.Data[0].Matches[0].ProcessType)

	require.Len(t, resp.Data[1].Matches, 1)
	assert.Equal(t, "search", resp.Data[1].Matches[0].ConnectorName)

	assert.Empty(t, resp.Data[2].Matches, "search only subscribes to site main")
}

func TestMatchText(t *testing.T) {
	dir := t.TempDir()
	config := writeFile(t, dir, "sync.cue", testConfig)
	batch := writeFile(t, dir, "batch.yaml", testBatch)

	out, err := execute(t, "match", "--config", config, batch)
	require.NoError(t, err)
	assert.Contains(t, out, "#2 CreateDocument node/22222222-2222-2222-2222-222222222222")
	assert.Contains(t, out, "  search Sync")
	assert.Contains(t, out, "(no subscribers)")
}
