package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagesync/internal/ir"
)

func docTask(alias, culture string) *ir.Task {
	return &ir.Task{
		Type:          ir.TaskUpdateDocument,
		SiteName:      "Main",
		ObjectType:    "cms.news",
		NodeAliasPath: alias,
		CultureCode:   culture,
		ClassName:     "CMS.News",
	}
}

func TestWildcardSemantics(t *testing.T) {
	m := NewMatcher()

	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"/News/%", "/News/Item1", true},
		{"/News/%", "/News/", true},
		{"/News/%", "/Blog/Item1", false},
		{"%", "", true},
		{"a%b%c", "abc", true},
		{"a%b%c", "aXXbYYc", true},
		{"a%b%c", "aXXbYY", false},
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"1.0", "1x0", false},
		{"(x)+[y]", "(x)+[y]", true},
		{"^$", "^$", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.input, func(t *testing.T) {
			got, err := m.MatchPattern(tt.pattern, tt.input, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmptyPatternMatchesAnything(t *testing.T) {
	m := NewMatcher()
	ok, err := m.MatchPattern("", "whatever", false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompiledPatternsAreMemoized(t *testing.T) {
	m := NewMatcher()

	re1, err := m.Compile("/News/%", true)
	require.NoError(t, err)
	re2, err := m.Compile("/News/%", true)
	require.NoError(t, err)
	assert.Same(t, re1, re2)

	ordinal, err := m.Compile("/News/%", false)
	require.NoError(t, err)
	assert.NotSame(t, re1, ordinal, "case mode is part of the memo key")
}

func TestDocumentSubscriptionANDComposition(t *testing.T) {
	m := NewMatcher()
	sub := &DocumentSubscription{
		Base:        Base{ConnectorName: "search", TaskType: ir.TaskTypeAll},
		ObjectType:  "cms.%",
		CultureCode: "en-us",
	}

	assert.True(t, m.Matches(sub, docTask("/News/A", "en-us")))
	assert.False(t, m.Matches(sub, docTask("/News/A", "de-de")), "culture mismatch")

	other := docTask("/News/A", "en-us")
	other.ObjectType = "custom.news"
	assert.False(t, m.Matches(sub, other), "object type mismatch")
}

func TestCaseRules(t *testing.T) {
	m := NewMatcher()

	doc := &DocumentSubscription{
		Base:          Base{ConnectorName: "c", SiteName: "main"},
		NodeAliasPath: "/news/%",
		CultureCode:   "EN-US",
		ClassName:     "cms.news",
	}
	assert.True(t, m.Matches(doc, docTask("/News/Item", "en-US")), "document dimensions ignore case")

	obj := &ObjectSubscription{
		Base:           Base{ConnectorName: "c", SiteName: "MAIN"},
		ObjectType:     "cms.user",
		ObjectCodeName: "admin",
	}
	task := &ir.Task{Type: ir.TaskUpdateObject, SiteName: "main", ObjectType: "cms.user", ObjectCodeName: "admin"}
	assert.True(t, m.Matches(obj, task), "site ignores case")

	task.ObjectCodeName = "Admin"
	assert.False(t, m.Matches(obj, task), "code names are ordinal")

	task.ObjectCodeName = "admin"
	task.ObjectType = "CMS.User"
	assert.False(t, m.Matches(obj, task), "object types are ordinal")
}

func TestTaskTypeFilterAndFamilies(t *testing.T) {
	m := NewMatcher()

	objAll := &ObjectSubscription{Base: Base{ConnectorName: "c"}}
	docAll := &DocumentSubscription{Base: Base{ConnectorName: "c"}}
	onlyDelete := &ObjectSubscription{Base: Base{ConnectorName: "c", TaskType: ir.TaskDeleteObject}}

	objTask := &ir.Task{Type: ir.TaskUpdateObject, ObjectType: "cms.role"}
	folderTask := &ir.Task{Type: ir.TaskMoveMediaFolder}
	doc := docTask("/a", "en-us")

	assert.True(t, m.Matches(objAll, objTask))
	assert.True(t, m.Matches(objAll, folderTask), "media folders are objects")
	assert.False(t, m.Matches(objAll, doc))

	assert.True(t, m.Matches(docAll, doc))
	assert.False(t, m.Matches(docAll, objTask))

	assert.False(t, m.Matches(onlyDelete, objTask))
	assert.True(t, m.Matches(onlyDelete, &ir.Task{Type: ir.TaskDeleteObject}))

	// A filter outside the family never matches, even for unregistered
	// subscriptions.
	objPublish := &ObjectSubscription{Base: Base{ConnectorName: "c", TaskType: ir.TaskPublishDocument}}
	assert.False(t, m.Matches(objPublish, &ir.Task{Type: ir.TaskPublishDocument}))
	docAddToSite := &DocumentSubscription{Base: Base{ConnectorName: "c", TaskType: ir.TaskAddToSite}}
	assert.False(t, m.Matches(docAddToSite, &ir.Task{Type: ir.TaskAddToSite}))
}

func TestMatchSetAndNormalization(t *testing.T) {
	m := NewMatcher()
	task := &ir.Task{Type: ir.TaskUpdateObject, SiteName: "main", ObjectType: "cms.user", ObjectCodeName: "jdoe"}

	subs := []Subscription{
		&ObjectSubscription{Base: Base{ConnectorName: "audit", ProcessType: ir.ProcessAsyncSnapshot}, ObjectType: "cms.%"},
		&ObjectSubscription{Base: Base{ConnectorName: "mail", ProcessType: ir.ProcessAsyncSnapshot}},
		&ObjectSubscription{Base: Base{ConnectorName: "audit", ProcessType: ir.ProcessAsyncSnapshot}, ObjectCodeName: "j%"},
		&ObjectSubscription{Base: Base{ConnectorName: "audit", ProcessType: ir.ProcessSync}},
		&ObjectSubscription{Base: Base{ConnectorName: "never", ProcessType: ir.ProcessSync}, ObjectType: "media.%"},
	}

	got := m.Match(task, subs)
	assert.Equal(t, []Match{
		{ConnectorName: "audit", ProcessType: ir.ProcessAsyncSimpleSnapshot},
		{ConnectorName: "audit", ProcessType: ir.ProcessSync},
		{ConnectorName: "mail", ProcessType: ir.ProcessAsyncSnapshot},
	}, got)
}

func TestMatchNoSubscriptions(t *testing.T) {
	m := NewMatcher()
	assert.Empty(t, m.Match(docTask("/a", "en-us"), nil))
}
