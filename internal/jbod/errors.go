// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package jbod

import "errors"

// Error kinds reported by the client packages. Call sites wrap them with more
// context, use errors.Is to tell them apart.
var (
	// Out of range address, length, disk or block. Missing buffer.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrNotMounted     = errors.New("not mounted")
	ErrAlreadyMounted = errors.New("already mounted")

	// Operation on a cache which was not created.
	ErrCacheInactive = errors.New("cache inactive")

	// Cache already holds the block being inserted.
	ErrDuplicateEntry = errors.New("duplicate cache entry")

	// Connection, send or receive failure, or non-zero status reported by
	// the server.
	ErrTransport = errors.New("transport failure")

	// Cache created twice or with capacity out of range.
	ErrCapacityInvalid = errors.New("invalid cache capacity")
)
