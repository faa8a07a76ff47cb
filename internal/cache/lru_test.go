// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package cache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asch/jbod/internal/jbod"
)

func fill(c byte) []byte {
	return bytes.Repeat([]byte{c}, jbod.BlockSize)
}

func newLRU(t *testing.T, capacity int) *LRU {
	t.Helper()

	c := New()
	require.NoError(t, c.Create(capacity))

	return c
}

func TestCreateCapacity(t *testing.T) {
	assert := assert.New(t)
	c := New()

	assert.False(c.Enabled())
	assert.ErrorIs(c.Create(1), jbod.ErrCapacityInvalid)
	assert.ErrorIs(c.Create(4097), jbod.ErrCapacityInvalid)
	assert.False(c.Enabled())

	assert.NoError(c.Create(2))
	assert.True(c.Enabled())
	assert.Equal(2, c.Capacity())
	assert.ErrorIs(c.Create(10), jbod.ErrCapacityInvalid)

	assert.NoError(c.Destroy())
	assert.NoError(c.Create(MaxCapacity))
	assert.Equal(MaxCapacity, c.Capacity())
}

func TestDestroy(t *testing.T) {
	assert := assert.New(t)
	c := New()

	assert.ErrorIs(c.Destroy(), jbod.ErrCacheInactive)

	require.NoError(t, c.Create(4))
	require.NoError(t, c.Insert(0, 0, fill('a')))
	c.Lookup(0, 0, make([]byte, jbod.BlockSize))

	assert.NoError(c.Destroy())
	assert.False(c.Enabled())
	assert.Equal(0, c.Capacity())
	assert.Equal(Stats{}, c.Stats())
	assert.ErrorIs(c.Destroy(), jbod.ErrCacheInactive)

	// Fresh cache after re-creation does not remember old blocks.
	require.NoError(t, c.Create(4))
	assert.False(c.Lookup(0, 0, make([]byte, jbod.BlockSize)))
}

func TestInactive(t *testing.T) {
	assert := assert.New(t)
	c := New()
	out := make([]byte, jbod.BlockSize)

	assert.ErrorIs(c.Insert(0, 0, fill('a')), jbod.ErrCacheInactive)
	assert.False(c.Lookup(0, 0, out))
	c.Update(0, 0, fill('b'))
	assert.Equal(Stats{}, c.Stats())
	assert.Equal(0.0, c.HitRate())
}

func TestInsertInvalid(t *testing.T) {
	assert := assert.New(t)
	c := newLRU(t, 4)

	assert.ErrorIs(c.Insert(0, 0, nil), jbod.ErrInvalidArgument)
	assert.ErrorIs(c.Insert(0, 0, make([]byte, 10)), jbod.ErrInvalidArgument)
	assert.ErrorIs(c.Insert(-1, 0, fill('a')), jbod.ErrInvalidArgument)
	assert.ErrorIs(c.Insert(16, 0, fill('a')), jbod.ErrInvalidArgument)
	assert.ErrorIs(c.Insert(0, -1, fill('a')), jbod.ErrInvalidArgument)
	assert.ErrorIs(c.Insert(0, 256, fill('a')), jbod.ErrInvalidArgument)

	assert.NoError(c.Insert(15, 255, fill('a')))
}

func TestLookupHitCopiesData(t *testing.T) {
	assert := assert.New(t)
	c := newLRU(t, 4)

	data := fill('x')
	require.NoError(t, c.Insert(3, 7, data))
	data[0] = 'y'

	out := make([]byte, jbod.BlockSize)
	assert.True(c.Lookup(3, 7, out))
	assert.Equal(fill('x'), out)

	assert.False(c.Lookup(7, 3, out))
	assert.Equal(Stats{Queries: 2, Hits: 1}, c.Stats())
	assert.Equal(0.5, c.HitRate())
}

func TestLookupCountsQueries(t *testing.T) {
	assert := assert.New(t)
	c := newLRU(t, 2)
	out := make([]byte, jbod.BlockSize)

	// Nothing inserted yet.
	assert.False(c.Lookup(0, 0, out))
	assert.False(c.Lookup(0, 0, nil))
	assert.Equal(Stats{}, c.Stats())
	assert.Equal(0.0, c.HitRate())

	require.NoError(t, c.Insert(1, 1, fill('a')))

	assert.False(c.Lookup(1, 1, nil))
	assert.False(c.Lookup(1, 1, out[:10]))
	assert.Equal(Stats{}, c.Stats())

	assert.False(c.Lookup(0, 0, out))
	assert.True(c.Lookup(1, 1, out))
	assert.Equal(Stats{Queries: 2, Hits: 1}, c.Stats())
}

func TestInsertDuplicate(t *testing.T) {
	assert := assert.New(t)
	c := newLRU(t, 2)
	out := make([]byte, jbod.BlockSize)

	require.NoError(t, c.Insert(1, 1, fill('a')))
	before := c.entries[0]

	assert.ErrorIs(c.Insert(1, 1, fill('b')), jbod.ErrDuplicateEntry)
	assert.Equal(before, c.entries[0])
	assert.Equal(1, c.nextFree)

	assert.True(c.Lookup(1, 1, out))
	assert.Equal(fill('a'), out)
}

func TestUpdate(t *testing.T) {
	assert := assert.New(t)
	c := newLRU(t, 2)
	out := make([]byte, jbod.BlockSize)

	require.NoError(t, c.Insert(0, 1, fill('a')))
	c.Update(0, 1, fill('b'))
	assert.True(c.Lookup(0, 1, out))
	assert.Equal(fill('b'), out)

	// Missing block is ignored.
	c.Update(0, 2, fill('c'))
	assert.False(c.Lookup(0, 2, out))
	assert.Equal(1, c.nextFree)
}

func TestEvictsLeastRecentlyInserted(t *testing.T) {
	assert := assert.New(t)
	c := newLRU(t, 2)
	out := make([]byte, jbod.BlockSize)

	require.NoError(t, c.Insert(0, 0, fill('A')))
	require.NoError(t, c.Insert(1, 0, fill('B')))
	require.NoError(t, c.Insert(2, 0, fill('C')))

	assert.False(c.Lookup(0, 0, out))
	assert.True(c.Lookup(1, 0, out))
	assert.Equal(fill('B'), out)
	assert.True(c.Lookup(2, 0, out))
	assert.Equal(fill('C'), out)
}

func TestEvictionOrderFollowsInsertion(t *testing.T) {
	const capacity = 8
	c := newLRU(t, capacity)

	for i := 0; i < capacity; i++ {
		require.NoError(t, c.Insert(0, i, fill(byte(i))))
	}

	// find does not touch entries, so the order stays untouched.
	for i := 0; i < capacity; i++ {
		require.NoError(t, c.Insert(1, i, fill(byte(i))))
		assert.Nil(t, c.find(0, i), "block %d should be evicted", i)
		if i+1 < capacity {
			assert.NotNil(t, c.find(0, i+1), "block %d should survive", i+1)
		}
	}
}

func TestLookupProtectsFromEviction(t *testing.T) {
	assert := assert.New(t)
	c := newLRU(t, 3)
	out := make([]byte, jbod.BlockSize)

	require.NoError(t, c.Insert(0, 0, fill('a')))
	require.NoError(t, c.Insert(0, 1, fill('b')))
	require.NoError(t, c.Insert(0, 2, fill('c')))

	assert.True(c.Lookup(0, 0, out))

	require.NoError(t, c.Insert(0, 3, fill('d')))
	assert.True(c.Lookup(0, 0, out))
	assert.False(c.Lookup(0, 1, out))
	assert.True(c.Lookup(0, 2, out))
	assert.True(c.Lookup(0, 3, out))
}

func TestUpdateProtectsFromEviction(t *testing.T) {
	assert := assert.New(t)
	c := newLRU(t, 2)
	out := make([]byte, jbod.BlockSize)

	require.NoError(t, c.Insert(0, 0, fill('a')))
	require.NoError(t, c.Insert(0, 1, fill('b')))
	c.Update(0, 0, fill('z'))

	require.NoError(t, c.Insert(0, 2, fill('c')))
	assert.True(c.Lookup(0, 0, out))
	assert.Equal(fill('z'), out)
	assert.False(c.Lookup(0, 1, out))
}

func TestVictimTieLowestIndex(t *testing.T) {
	c := newLRU(t, 3)
	for i := range c.entries {
		c.entries[i].valid = true
		c.entries[i].block = uint8(i)
		c.entries[i].lastAccess = 5
	}
	c.entries[0].lastAccess = 9
	c.nextFree = len(c.entries)

	assert.Same(t, &c.entries[1], c.victim())
}
