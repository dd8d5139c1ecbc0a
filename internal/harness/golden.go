package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/store"
)

// Digest renders a result as stable text for golden comparison. Target
// IDs are replaced by site names, alias paths and code names so that the
// digest reads the same regardless of insertion order.
func Digest(name string, r *Result) []byte {
	var b strings.Builder
	st := r.State

	sites := make(map[int64]string, len(st.Sites))
	for _, s := range st.Sites {
		sites[s.ID] = s.Name
	}
	paths := make(map[int64]string, len(st.Nodes))
	for _, n := range st.Nodes {
		paths[n.ID] = n.AliasPath
	}
	objects := make(map[int64]string, len(st.Objects))
	for _, o := range st.Objects {
		objects[o.ID] = o.CodeName
	}
	site := func(id int64) string {
		if name, ok := sites[id]; ok {
			return name
		}
		return "-"
	}

	fmt.Fprintf(&b, "scenario: %s\n", name)
	fmt.Fprintf(&b, "run: %s\n", r.Report.RunID)

	b.WriteString("tasks:\n")
	for _, res := range r.Report.Results {
		fmt.Fprintf(&b, "  #%d %s %s", res.Seq, res.TaskType, res.Status)
		if res.Queued > 0 {
			fmt.Fprintf(&b, " queued=%d", res.Queued)
		}
		if res.Delivered > 0 {
			fmt.Fprintf(&b, " delivered=%d", res.Delivered)
		}
		b.WriteString("\n")
	}

	section(&b, "deliveries", len(r.Deliveries), func() {
		for _, d := range r.Deliveries {
			fmt.Fprintf(&b, "  %s #%d %s %s\n", d.Connector, d.Seq, d.TaskType, d.ProcessType)
		}
	})
	section(&b, "queue", len(st.Queue), func() {
		for _, it := range st.Queue {
			fmt.Fprintf(&b, "  %s #%d %s %s\n", it.Connector, it.TaskSeq, it.TaskType, it.ProcessType)
		}
	})
	section(&b, "sites", len(st.Sites), func() {
		for _, s := range st.Sites {
			fmt.Fprintf(&b, "  %s\n", s.Name)
		}
	})
	section(&b, "nodes", len(st.Nodes), func() {
		for _, n := range st.Nodes {
			parent := "-"
			if p, ok := paths[n.ParentID]; ok {
				parent = p
			}
			fmt.Fprintf(&b, "  %s %s %s parent=%s order=%d\n", site(n.SiteID), n.AliasPath, n.ClassName, parent, n.Order)
			for _, d := range n.Documents {
				fmt.Fprintf(&b, "    %s %q%s\n", d.Culture, d.Name, documentFlags(d))
				for _, a := range d.Attachments {
					fmt.Fprintf(&b, "      attachment %s\n", a.String(ir.ColAttachmentName))
				}
			}
		}
	})
	section(&b, "objects", len(st.Objects), func() {
		for _, o := range st.Objects {
			fmt.Fprintf(&b, "  %s %s", o.ObjectType, o.CodeName)
			if o.SiteID > 0 {
				fmt.Fprintf(&b, " site=%s", site(o.SiteID))
			}
			if o.ParentID > 0 {
				fmt.Fprintf(&b, " parent=%s", objects[o.ParentID])
			}
			if len(o.Sites) > 0 {
				names := make([]string, len(o.Sites))
				for i, id := range o.Sites {
					names[i] = site(id)
				}
				fmt.Fprintf(&b, " bound=%s", strings.Join(names, ","))
			}
			b.WriteString("\n")
		}
	})
	section(&b, "media", len(st.MediaFolders)+len(st.MediaFiles), func() {
		for _, f := range st.MediaFolders {
			fmt.Fprintf(&b, "  folder %s %s\n", library(objects, f.LibraryID), f.Path)
		}
		for _, f := range st.MediaFiles {
			fmt.Fprintf(&b, "  file %s %s\n", library(objects, f.LibraryID), f.Path)
		}
	})
	return []byte(b.String())
}

func section(b *strings.Builder, title string, n int, body func()) {
	fmt.Fprintf(b, "%s:\n", title)
	if n == 0 {
		b.WriteString("  (none)\n")
		return
	}
	body()
}

func documentFlags(d store.DocumentState) string {
	var flags string
	if d.Published {
		flags += " published"
	}
	if d.Archived {
		flags += " archived"
	}
	return flags
}

func library(objects map[int64]string, id int64) string {
	if name, ok := objects[id]; ok {
		return name
	}
	return fmt.Sprintf("library(%d)", id)
}

// RunWithGolden executes a scenario, fails the test on assertion errors
// and compares its digest with testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden compares an already computed result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Digest(name, result))
}
