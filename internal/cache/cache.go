// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package cache memoizes content of jbod blocks to save round trips to the
// server. Blocks are identified only by the disk and the block number, the
// cache knows nothing about the linear address space.
package cache

// BlockCache is anything able to cache whole blocks. The replacement policy
// is up to the implementation.
type BlockCache interface {
	// Lookup copies the cached block to out and reports whether it was
	// present. out has to be BlockSize long.
	Lookup(disk, block int, out []byte) bool

	// Insert caches block which is not cached yet. Inserting block which
	// is already present is an error, use Update for refreshing it.
	Insert(disk, block int, data []byte) error

	// Update overwrites content of the block if it is cached. Otherwise it
	// does nothing.
	Update(disk, block int, data []byte)

	// Enabled reports whether the cache can be used at all. Disabled cache
	// has to be bypassed.
	Enabled() bool
}

// Stats of cache usage since it was created.
type Stats struct {
	Queries uint64
	Hits    uint64
}

// HitRate returns ratio of lookups which were hits. Zero if there was no
// lookup.
func (s Stats) HitRate() float64 {
	if s.Queries == 0 {
		return 0
	}

	return float64(s.Hits) / float64(s.Queries)
}
