package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConfig = `
connector: search: { description: "site search index" }
connector: audit: {}

subscription: [
	{connector: "search", kind: "document", process: "Sync", site: "main"},
	{connector: "audit", kind: "object", process: "AsyncSimple", object_type: "cms.%"},
]
`

// testBatch creates the site, a page on it, and a page on a site that
// does not exist.
const testBatch = `
version: "1"
tasks:
  - seq: 1
    type: CreateObject
    object_type: cms.site
    code_name: main
    payload:
      cms.site:
        - SiteID: 7
          SiteGUID: 11111111-1111-1111-1111-111111111111
          SiteName: main
  - seq: 2
    type: CreateDocument
    site: main
    alias_path: /News
    culture: en-US
    class_name: CMS.MenuItem
    payload:
      CMS_Document:
        - NodeID: 10
          NodeGUID: 22222222-2222-2222-2222-222222222222
          NodeAliasPath: /News
          NodeClassName: CMS.MenuItem
          DocumentID: 20
          DocumentGUID: 33333333-3333-3333-3333-333333333333
          DocumentCulture: en-US
          DocumentName: News
  - seq: 3
    type: CreateDocument
    site: missing
    alias_path: /Lost
    culture: en-US
    payload:
      CMS_Document:
        - NodeGUID: 44444444-4444-4444-4444-444444444444
          NodeAliasPath: /Lost
          DocumentGUID: 55555555-5555-5555-5555-555555555555
          DocumentCulture: en-US
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
