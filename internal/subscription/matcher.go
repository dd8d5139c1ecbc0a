package subscription

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/roach88/stagesync/internal/ir"
)

// Matcher evaluates subscriptions against tasks. Compiled patterns are
// memoized per pattern text and case mode for the matcher's lifetime.
// A Matcher is safe for concurrent use.
type Matcher struct {
	compiled *gocache.Cache
}

// NewMatcher returns a matcher with an empty pattern memo.
func NewMatcher() *Matcher {
	return &Matcher{compiled: gocache.New(gocache.NoExpiration, 0)}
}

// Compile converts a wildcard pattern to an anchored regexp: % becomes .*
// and every other character is quoted.
func (m *Matcher) Compile(pattern string, fold bool) (*regexp.Regexp, error) {
	key := "o:" + pattern
	if fold {
		key = "i:" + pattern
	}
	if re, ok := m.compiled.Get(key); ok {
		return re.(*regexp.Regexp), nil
	}

	parts := strings.Split(pattern, "%")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	expr := "^" + strings.Join(parts, ".*") + "$"
	if fold {
		expr = "(?is)" + expr
	} else {
		expr = "(?s)" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	m.compiled.Set(key, re, gocache.NoExpiration)
	return re, nil
}

// MatchPattern reports whether s matches the wildcard pattern. An empty
// pattern matches anything.
func (m *Matcher) MatchPattern(pattern, s string, fold bool) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	re, err := m.Compile(pattern, fold)
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}

// Matches reports whether a single subscription wants the task.
func (m *Matcher) Matches(sub Subscription, task *ir.Task) bool {
	if !accepts(sub, task.Type) {
		return false
	}
	for _, d := range sub.dimensions() {
		ok, err := m.MatchPattern(d.pattern, d.attr(task), d.fold)
		if err != nil {
			// Registered subscriptions were compiled at registration.
			slog.Warn("subscription pattern failed to compile",
				"connector", sub.Header().ConnectorName,
				"dimension", d.name,
				"error", err)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// Match returns the set of connectors interested in task, in order of
// first matching subscription. When one connector has several matching
// subscriptions, AsyncSnapshot is reported as AsyncSimpleSnapshot.
func (m *Matcher) Match(task *ir.Task, subs []Subscription) []Match {
	var order []string
	hits := make(map[string][]ir.ProcessType)

	for _, sub := range subs {
		if !m.Matches(sub, task) {
			continue
		}
		h := sub.Header()
		if _, seen := hits[h.ConnectorName]; !seen {
			order = append(order, h.ConnectorName)
		}
		hits[h.ConnectorName] = append(hits[h.ConnectorName], h.ProcessType)
	}

	var out []Match
	for _, name := range order {
		types := hits[name]
		seen := make(map[ir.ProcessType]bool, len(types))
		for _, pt := range types {
			if pt == ir.ProcessAsyncSnapshot && len(types) > 1 {
				pt = ir.ProcessAsyncSimpleSnapshot
			}
			if seen[pt] {
				continue
			}
			seen[pt] = true
			out = append(out, Match{ConnectorName: name, ProcessType: pt})
		}
	}
	return out
}
