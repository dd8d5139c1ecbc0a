package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetIgnoreCase(t *testing.T) {
	c := New[int]()
	require.NoError(t, c.SetItem("CMS.User|10", 5, false))

	v, ok := c.GetItem("cms.user|10")
	require.True(t, ok)
	assert.Equal(t, 5, v)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.SetItem("cms.USER|10", 6, false))
	assert.Equal(t, 1, c.Len(), "same key under case folding")
}

func TestUnicodeCaseFolding(t *testing.T) {
	c := New[string]()
	require.NoError(t, c.SetItem("/\u00C4RGER", "a", false))

	_, ok := c.GetItem("/\u00e4rger")
	assert.True(t, ok, "non-ASCII letters fold too")
}

func TestEmptyKeyRejected(t *testing.T) {
	c := New[int]()

	assert.ErrorIs(t, c.SetItem("", 1, false), ErrNilKey)

	_, err := c.FetchItem("", func() (int, error) { return 1, nil }, false)
	assert.ErrorIs(t, err, ErrNilKey)

	_, err = c.MarkDirty("")
	assert.ErrorIs(t, err, ErrNilKey)

	_, _, err = c.RemoveItem("")
	assert.ErrorIs(t, err, ErrNilKey)
}

func TestNilValueIsCached(t *testing.T) {
	c := New[*int]()
	calls := 0
	load := func() (*int, error) {
		calls++
		return nil, nil
	}

	v, err := c.FetchItem("missing", load, false)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = c.FetchItem("MISSING", load, false)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, calls, "nil result is a cache hit")

	_, ok := c.GetItem("missing")
	assert.True(t, ok)
}

func TestFetchItemErrorNotCached(t *testing.T) {
	c := New[int]()
	boom := errors.New("boom")

	_, err := c.FetchItem("k", func() (int, error) { return 0, boom }, false)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestDirtyTracking(t *testing.T) {
	c := New[int]()
	require.NoError(t, c.SetItem("a", 1, false))
	require.NoError(t, c.SetItem("b", 2, true))
	_, err := c.FetchItem("c", func() (int, error) { return 3, nil }, true)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"b": 2, "c": 3}, c.GetItems(true))
	assert.Len(t, c.GetItems(false), 3)

	ok, err := c.MarkDirty("A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, c.IsDirty("a"))

	ok, err = c.MarkDirty("zzz")
	require.NoError(t, err)
	assert.False(t, ok)

	c.MarkClean()
	assert.Empty(t, c.GetItems(true))
}

func TestRemoveItemReturnsPrevious(t *testing.T) {
	c := New[string]()
	require.NoError(t, c.SetItem("Key", "v", false))

	prev, ok, err := c.RemoveItem("KEY")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", prev)

	_, ok, err = c.RemoveItem("key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	c := New[int]()
	require.NoError(t, c.SetItem("a", 1, true))
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.GetItems(false))
}
