package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/subscription"
)

const sampleConfig = `
connector: search: { description: "site search index" }
connector: audit: {}

subscription: [
	{
		connector:  "search"
		kind:       "document"
		process:    "SyncSnapshot"
		site:       "main"
		alias_path: "/News/%"
		culture:    "en-%"
	},
	{
		connector:   "audit"
		kind:        "object"
		process:     "AsyncSimple"
		task:        "CreateObject"
		object_type: "cms.user"
		code_name:   "admin%"
	},
]

object_type: "custom.widget": {
	id:          "WidgetID"
	guid:        "WidgetGUID"
	code_name:   "WidgetName"
	site_id:     "WidgetSiteID"
	site_scoped: true
	dependencies: [{column: "WidgetOwnerID", object_type: "cms.user", required: true}]
}
`

func compile(t *testing.T, src string) (*Config, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	return CompileConfig(v)
}

func TestCompileConfig(t *testing.T) {
	cfg, err := compile(t, sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, []ConnectorSpec{
		{Name: "search", Description: "site search index"},
		{Name: "audit"},
	}, cfg.Connectors)

	require.Len(t, cfg.Subscriptions, 2)
	doc := cfg.Subscriptions[0]
	assert.Equal(t, "search", doc.Connector)
	assert.Equal(t, KindDocument, doc.Kind)
	assert.Equal(t, "SyncSnapshot", doc.Process)
	assert.Equal(t, "/News/%", doc.AliasPath)
	assert.Equal(t, "en-%", doc.Culture)
	assert.Positive(t, doc.Line)

	obj := cfg.Subscriptions[1]
	assert.Equal(t, "CreateObject", obj.Task)
	assert.Equal(t, "admin%", obj.CodeName)

	require.Len(t, cfg.ObjectTypes, 1)
	widget := cfg.ObjectTypes[0]
	assert.Equal(t, "custom.widget", widget.Name)
	assert.Equal(t, "WidgetID", widget.IDColumn)
	assert.True(t, widget.SiteScoped)
	assert.Equal(t, []ir.Dependency{{Column: "WidgetOwnerID", ObjectType: "cms.user", Required: true}}, widget.Dependencies)

	assert.Empty(t, Validate(cfg))
}

func TestCompileConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "no connectors",
			src:   `subscription: []`,
			field: "connector",
		},
		{
			name: "subscription without kind",
			src: `
				connector: a: {}
				subscription: [{connector: "a", process: "Sync"}]
			`,
			field: "kind",
		},
		{
			name:  "syntax error",
			src:   `connector: {`,
			field: "cue",
		},
		{
			name: "non-string pattern",
			src: `
				connector: a: {}
				subscription: [{connector: "a", kind: "object", process: "Sync", site: 3}]
			`,
			field: "cue",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compile(t, tt.src)
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stagesync.cue")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Subscriptions, 2)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	cfg, err := compile(t, sampleConfig)
	require.NoError(t, err)

	reg, types, err := cfg.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"audit", "search"}, reg.Connectors())

	_, ok := types.Lookup("Custom.Widget")
	assert.True(t, ok)
	_, ok = types.Lookup(ir.ObjectTypeUser)
	assert.True(t, ok, "built-in types stay registered")

	matches := reg.Match(&ir.Task{
		Type:          ir.TaskUpdateDocument,
		SiteName:      "MAIN",
		NodeAliasPath: "/news/item",
		CultureCode:   "en-GB",
	})
	assert.Equal(t, []subscription.Match{{ConnectorName: "search", ProcessType: ir.ProcessSyncSnapshot}}, matches)

	matches = reg.Match(&ir.Task{Type: ir.TaskCreateObject, ObjectType: "cms.user", ObjectCodeName: "administrator"})
	assert.Equal(t, []subscription.Match{{ConnectorName: "audit", ProcessType: ir.ProcessAsyncSimple}}, matches)
}

func TestBuildRejectsUnknownConnector(t *testing.T) {
	cfg := &Config{
		Connectors:    []ConnectorSpec{{Name: "a"}},
		Subscriptions: []SubscriptionSpec{{Connector: "b", Kind: KindObject, Process: "Sync"}},
	}
	_, _, err := cfg.Build()
	require.Error(t, err)
	assert.True(t, subscription.IsConfigError(err))
}
