// Package cache provides the per-run memory cache used by translation and
// reconciliation passes.
//
// A MemoryCache lives for one synchronization pass. It has no eviction
// and no size bound, and it is not safe for concurrent mutation: every
// worker owns its own instance.
package cache

import (
	"errors"
	"fmt"

	"golang.org/x/text/cases"
)

// ErrNilKey is returned when an operation is given an empty key.
var ErrNilKey = errors.New("cache: key must not be empty")

type entry[V any] struct {
	key   string
	value V
	dirty bool
}

// MemoryCache maps case-insensitive keys to values with a dirty flag.
// A zero or nil value is a legitimate cached result; membership is
// decided by the key alone.
type MemoryCache[V any] struct {
	items map[string]*entry[V]
	fold  cases.Caser
}

// New returns an empty cache.
func New[V any]() *MemoryCache[V] {
	return &MemoryCache[V]{
		items: make(map[string]*entry[V]),
		fold:  cases.Fold(),
	}
}

func (c *MemoryCache[V]) normalize(key string) (string, error) {
	if key == "" {
		return "", ErrNilKey
	}
	return c.fold.String(key), nil
}

// SetItem stores value under key, replacing any previous entry.
func (c *MemoryCache[V]) SetItem(key string, value V, dirty bool) error {
	k, err := c.normalize(key)
	if err != nil {
		return err
	}
	c.items[k] = &entry[V]{key: key, value: value, dirty: dirty}
	return nil
}

// GetItem returns the cached value and whether the key is present.
func (c *MemoryCache[V]) GetItem(key string) (V, bool) {
	var zero V
	k, err := c.normalize(key)
	if err != nil {
		return zero, false
	}
	e, ok := c.items[k]
	if !ok {
		return zero, false
	}
	return e.value, true
}

// FetchItem returns the cached value for key, or calls load and caches
// its result. A load error is returned without caching anything.
// markDirty applies only to a freshly loaded entry.
func (c *MemoryCache[V]) FetchItem(key string, load func() (V, error), markDirty bool) (V, error) {
	var zero V
	k, err := c.normalize(key)
	if err != nil {
		return zero, err
	}
	if e, ok := c.items[k]; ok {
		return e.value, nil
	}
	v, err := load()
	if err != nil {
		return zero, fmt.Errorf("load %q: %w", key, err)
	}
	c.items[k] = &entry[V]{key: key, value: v, dirty: markDirty}
	return v, nil
}

// MarkDirty flags an existing entry. Returns false when key is absent.
func (c *MemoryCache[V]) MarkDirty(key string) (bool, error) {
	k, err := c.normalize(key)
	if err != nil {
		return false, err
	}
	e, ok := c.items[k]
	if !ok {
		return false, nil
	}
	e.dirty = true
	return true, nil
}

// MarkClean clears the dirty flag on every entry.
func (c *MemoryCache[V]) MarkClean() {
	for _, e := range c.items {
		e.dirty = false
	}
}

// IsDirty reports whether key is present and dirty.
func (c *MemoryCache[V]) IsDirty(key string) bool {
	k, err := c.normalize(key)
	if err != nil {
		return false
	}
	e, ok := c.items[k]
	return ok && e.dirty
}

// RemoveItem deletes key and returns the value it held.
func (c *MemoryCache[V]) RemoveItem(key string) (V, bool, error) {
	var zero V
	k, err := c.normalize(key)
	if err != nil {
		return zero, false, err
	}
	e, ok := c.items[k]
	if !ok {
		return zero, false, nil
	}
	delete(c.items, k)
	return e.value, true, nil
}

// GetItems returns a snapshot of the cache keyed by the spelling each entry
// was last stored under. With dirtyOnly only dirty entries are returned.
func (c *MemoryCache[V]) GetItems(dirtyOnly bool) map[string]V {
	out := make(map[string]V, len(c.items))
	for _, e := range c.items {
		if dirtyOnly && !e.dirty {
			continue
		}
		out[e.key] = e.value
	}
	return out
}

// Clear removes every entry.
func (c *MemoryCache[V]) Clear() {
	clear(c.items)
}

// Len returns the number of entries.
func (c *MemoryCache[V]) Len() int {
	return len(c.items)
}
