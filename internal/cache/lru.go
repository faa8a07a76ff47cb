// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package cache

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/asch/jbod/internal/jbod"
)

const (
	MinCapacity = 2
	MaxCapacity = 4096
)

var _ BlockCache = (*LRU)(nil)

type entry struct {
	valid bool
	disk  uint8
	block uint8
	data  [jbod.BlockSize]byte

	// Value of the logical clock at the last use.
	lastAccess uint64
}

// LRU is a fixed size cache evicting the least recently used block. Entries
// live in a plain array which is scanned linearly. With at most MaxCapacity
// entries it is fast enough and keeps the memory footprint exact.
//
// Recency is tracked by a logical clock which ticks on every hit, insert and
// update. LRU has to be created before use and it is not safe for concurrent
// use.
type LRU struct {
	entries []entry
	active  bool

	clock   uint64
	queries uint64
	hits    uint64

	// Index of the first slot which was never used. Equal to the capacity
	// once the cache filled up.
	nextFree int
}

// New returns inactive cache. Call Create to allocate entries.
func New() *LRU {
	return &LRU{}
}

// Create allocates capacity empty entries and activates the cache.
func (c *LRU) Create(capacity int) error {
	if c.active {
		return fmt.Errorf("%w: cache already created", jbod.ErrCapacityInvalid)
	}

	if capacity < MinCapacity || capacity > MaxCapacity {
		return fmt.Errorf("%w: %d not in [%d, %d]", jbod.ErrCapacityInvalid, capacity, MinCapacity, MaxCapacity)
	}

	c.entries = make([]entry, capacity)
	c.active = true
	c.clock = 0
	c.queries = 0
	c.hits = 0
	c.nextFree = 0

	log.Debug().Int("capacity", capacity).Msg("Block cache created")

	return nil
}

// Destroy releases all entries, resets the statistics and deactivates the
// cache.
func (c *LRU) Destroy() error {
	if !c.active {
		return jbod.ErrCacheInactive
	}

	*c = LRU{}

	return nil
}

func (c *LRU) Enabled() bool {
	return c.active
}

// Capacity in blocks, zero when inactive.
func (c *LRU) Capacity() int {
	return len(c.entries)
}

func (c *LRU) Stats() Stats {
	return Stats{Queries: c.queries, Hits: c.hits}
}

func (c *LRU) HitRate() float64 {
	return c.Stats().HitRate()
}

// Lookup implements BlockCache. Lookups on inactive cache, on cache without
// any insert since Create and with too short out miss without being counted.
// Every other lookup is a query, no matter whether it hits.
func (c *LRU) Lookup(disk, block int, out []byte) bool {
	if !c.active || c.clock == 0 || len(out) < jbod.BlockSize {
		return false
	}

	c.queries++

	e := c.find(disk, block)
	if e == nil {
		return false
	}

	copy(out, e.data[:])
	c.touch(e)
	c.hits++

	return true
}

// Insert implements BlockCache. Slots which were never used are filled first
// in order. Once the cache is full, the entry with the oldest access is
// replaced. If more entries are equally old, the one with the lowest index
// is replaced.
func (c *LRU) Insert(disk, block int, data []byte) error {
	if !c.active {
		return jbod.ErrCacheInactive
	}

	if len(data) < jbod.BlockSize {
		return fmt.Errorf("%w: block of %d bytes", jbod.ErrInvalidArgument, len(data))
	}

	if !jbod.ValidDisk(disk) || !jbod.ValidBlock(block) {
		return fmt.Errorf("%w: disk %d block %d", jbod.ErrInvalidArgument, disk, block)
	}

	if c.find(disk, block) != nil {
		return fmt.Errorf("%w: disk %d block %d", jbod.ErrDuplicateEntry, disk, block)
	}

	var e *entry
	if c.nextFree < len(c.entries) {
		e = &c.entries[c.nextFree]
		c.nextFree++
	} else {
		e = c.victim()
	}

	e.valid = true
	e.disk = uint8(disk)
	e.block = uint8(block)
	copy(e.data[:], data)
	c.touch(e)

	return nil
}

// Update implements BlockCache.
func (c *LRU) Update(disk, block int, data []byte) {
	if !c.active || len(data) < jbod.BlockSize {
		return
	}

	e := c.find(disk, block)
	if e == nil {
		return
	}

	copy(e.data[:], data)
	c.touch(e)
}

// Returns valid entry holding the block or nil.
func (c *LRU) find(disk, block int) *entry {
	if !jbod.ValidDisk(disk) || !jbod.ValidBlock(block) {
		return nil
	}

	for i := 0; i < c.nextFree; i++ {
		e := &c.entries[i]
		if e.valid && int(e.disk) == disk && int(e.block) == block {
			return e
		}
	}

	return nil
}

// Returns the least recently used entry. Called only on a full cache.
func (c *LRU) victim() *entry {
	v := &c.entries[0]
	for i := 1; i < len(c.entries); i++ {
		if c.entries[i].lastAccess < v.lastAccess {
			v = &c.entries[i]
		}
	}

	return v
}

func (c *LRU) touch(e *entry) {
	c.clock++
	e.lastAccess = c.clock
}
