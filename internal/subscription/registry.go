package subscription

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/roach88/stagesync/internal/ir"
)

// ConfigError reports a subscription that cannot be registered. It is
// fatal to that registration only.
type ConfigError struct {
	Connector string
	Field     string
	Message   string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("subscription for %q: %s: %s", e.Connector, e.Field, e.Message)
	}
	return fmt.Sprintf("subscription for %q: %s", e.Connector, e.Message)
}

// IsConfigError checks if an error is a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Registry is the collection of connectors and their subscriptions.
// It is built once at startup and passed to the dispatcher; reads are
// safe from any goroutine.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]bool
	subs       []Subscription
	matcher    *Matcher
}

// NewRegistry returns an empty registry with its own pattern memo.
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]bool),
		matcher:    NewMatcher(),
	}
}

// RegisterConnector declares a connector name. Subscriptions may only
// reference declared connectors.
func (r *Registry) RegisterConnector(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ConfigError{Message: "connector name is required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connectors[name] {
		return &ConfigError{Connector: name, Message: "connector already registered"}
	}
	r.connectors[name] = true
	return nil
}

// Register validates and adds a subscription. Every pattern is compiled
// here so that match time never sees a bad pattern. A rejected
// subscription is logged once and returned as a *ConfigError.
func (r *Registry) Register(sub Subscription) error {
	if err := r.validate(sub); err != nil {
		slog.Error("subscription rejected", "error", err)
		return err
	}

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	h := sub.Header()
	slog.Debug("subscription registered",
		"connector", h.ConnectorName,
		"process_type", h.ProcessType.String(),
		"task_type", h.TaskType.String())
	return nil
}

func (r *Registry) validate(sub Subscription) error {
	if sub == nil {
		return &ConfigError{Message: "subscription is nil"}
	}
	h := sub.Header()

	r.mu.RLock()
	known := r.connectors[h.ConnectorName]
	r.mu.RUnlock()
	if !known {
		return &ConfigError{Connector: h.ConnectorName, Message: "connector is not registered"}
	}

	if _, ok := validProcessTypes[h.ProcessType]; !ok {
		return &ConfigError{Connector: h.ConnectorName, Field: "process_type",
			Message: fmt.Sprintf("unknown process type %d", int(h.ProcessType))}
	}

	if h.TaskType != ir.TaskTypeAll {
		if !h.TaskType.Valid() {
			return &ConfigError{Connector: h.ConnectorName, Field: "task_type",
				Message: fmt.Sprintf("unknown task type %d", int(h.TaskType))}
		}
		if !sub.family(h.TaskType) {
			return &ConfigError{Connector: h.ConnectorName, Field: "task_type",
				Message: fmt.Sprintf("%s tasks never reach this kind of subscription", h.TaskType)}
		}
	}

	for _, d := range sub.dimensions() {
		if d.pattern == "" {
			continue
		}
		if !utf8.ValidString(d.pattern) {
			return &ConfigError{Connector: h.ConnectorName, Field: d.name, Message: "pattern is not valid UTF-8"}
		}
		if _, err := r.matcher.Compile(d.pattern, d.fold); err != nil {
			return &ConfigError{Connector: h.ConnectorName, Field: d.name, Message: err.Error()}
		}
	}
	return nil
}

var validProcessTypes = map[ir.ProcessType]bool{
	ir.ProcessSync:                true,
	ir.ProcessAsyncSimple:         true,
	ir.ProcessAsyncSimpleSnapshot: true,
	ir.ProcessSyncSnapshot:        true,
	ir.ProcessAsyncSnapshot:       true,
}

// Subscriptions returns the registered subscriptions in registration order.
func (r *Registry) Subscriptions() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscription, len(r.subs))
	copy(out, r.subs)
	return out
}

// Connectors returns the declared connector names, sorted.
func (r *Registry) Connectors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasConnector reports whether name was declared.
func (r *Registry) HasConnector(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connectors[name]
}

// Match returns the connectors interested in task.
func (r *Registry) Match(task *ir.Task) []Match {
	return r.matcher.Match(task, r.Subscriptions())
}
