// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package mdadm

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/asch/jbod/internal/cache"
	"github.com/asch/jbod/internal/jbod"
)

// Executor performs one jbod operation. It is satisfied by the transport and
// by anything else speaking the protocol.
type Executor interface {
	Execute(op jbod.Op, block []byte) error
}

// Storage is the linear device. It is not safe for concurrent use, the
// protocol allows only one outstanding request.
type Storage struct {
	exec  Executor
	cache cache.BlockCache

	mounted bool

	// Scratch block for one stride.
	block [jbod.BlockSize]byte
}

// Returns storage using exec for talking to the server and c as the block
// cache. c can be nil or disabled, then every block goes to the server.
func New(exec Executor, c cache.BlockCache) *Storage {
	return &Storage{
		exec:  exec,
		cache: c,
	}
}

func (s *Storage) Mounted() bool {
	return s.mounted
}

// Mount mounts the array. Storage is considered mounted only when the server
// confirms the operation.
func (s *Storage) Mount() error {
	if s.mounted {
		return jbod.ErrAlreadyMounted
	}

	if err := s.exec.Execute(jbod.Mount, nil); err != nil {
		return err
	}

	s.mounted = true
	log.Info().Msg("JBOD mounted")

	return nil
}

// Unmount unmounts the array. When the server rejects the operation, the
// storage stays mounted.
func (s *Storage) Unmount() error {
	if !s.mounted {
		return jbod.ErrNotMounted
	}

	if err := s.exec.Execute(jbod.Unmount, nil); err != nil {
		return err
	}

	s.mounted = false
	log.Info().Msg("JBOD unmounted")

	return nil
}

// Read reads length bytes starting at addr into buf and returns the number of
// bytes read. The range can span multiple blocks and disks.
func (s *Storage) Read(addr uint32, length int, buf []byte) (int, error) {
	if err := s.checkRequest(addr, length, buf); err != nil {
		return 0, err
	}

	done := 0
	for done < length {
		loc := jbod.Locate(addr + uint32(done))
		size := strideSize(loc.Offset, length-done)

		if err := s.loadBlock(loc); err != nil {
			return done, err
		}

		copy(buf[done:done+size], s.block[loc.Offset:])
		done += size
	}

	return done, nil
}

// Write writes length bytes from buf starting at addr and returns the number
// of bytes written. Blocks written only partially are read first so the rest
// of their content is preserved. Strides already written are not rolled back
// when a later stride fails.
func (s *Storage) Write(addr uint32, length int, buf []byte) (int, error) {
	if err := s.checkRequest(addr, length, buf); err != nil {
		return 0, err
	}

	done := 0
	for done < length {
		loc := jbod.Locate(addr + uint32(done))
		size := strideSize(loc.Offset, length-done)

		if err := s.loadBlock(loc); err != nil {
			return done, err
		}

		copy(s.block[loc.Offset:loc.Offset+size], buf[done:done+size])

		if err := s.seek(loc); err != nil {
			return done, err
		}

		if err := s.exec.Execute(jbod.WriteBlock, s.block[:]); err != nil {
			return done, err
		}

		s.refreshCache(loc)
		done += size
	}

	return done, nil
}

// Checks the request bounds. A nil buffer is valid only for an empty request.
func (s *Storage) checkRequest(addr uint32, length int, buf []byte) error {
	if !s.mounted {
		return jbod.ErrNotMounted
	}

	if length < 0 || length > jbod.MaxIOSize {
		return fmt.Errorf("%w: length %d", jbod.ErrInvalidArgument, length)
	}

	if uint64(addr)+uint64(length) > jbod.TotalSize {
		return fmt.Errorf("%w: range [%d, %d) beyond the end of device", jbod.ErrInvalidArgument, addr, uint64(addr)+uint64(length))
	}

	if buf == nil && length > 0 {
		return fmt.Errorf("%w: no buffer for %d bytes", jbod.ErrInvalidArgument, length)
	}

	if len(buf) < length {
		return fmt.Errorf("%w: buffer of %d bytes for %d bytes", jbod.ErrInvalidArgument, len(buf), length)
	}

	return nil
}

// Number of bytes of the stride starting at offset in the block when
// remaining bytes are left.
func strideSize(offset, remaining int) int {
	return min(jbod.BlockSize-offset, remaining)
}

func (s *Storage) cacheEnabled() bool {
	return s.cache != nil && s.cache.Enabled()
}

// Fills s.block with the current content of the block at loc. Cache is
// consulted first, on a miss the block is read from the server and cached.
func (s *Storage) loadBlock(loc jbod.Location) error {
	if s.cacheEnabled() && s.cache.Lookup(loc.Disk, loc.Block, s.block[:]) {
		return nil
	}

	if err := s.seek(loc); err != nil {
		return err
	}

	if err := s.exec.Execute(jbod.ReadBlock, s.block[:]); err != nil {
		return err
	}

	if s.cacheEnabled() {
		if err := s.cache.Insert(loc.Disk, loc.Block, s.block[:]); err != nil {
			log.Warn().Err(err).Int("disk", loc.Disk).Int("block", loc.Block).Msg("Caching block")
		}
	}

	return nil
}

// Positions the server cursor to the block at loc.
func (s *Storage) seek(loc jbod.Location) error {
	if err := s.exec.Execute(jbod.SeekDisk(loc.Disk), nil); err != nil {
		return err
	}

	return s.exec.Execute(jbod.SeekBlock(loc.Block), nil)
}

// Makes the cache hold the just written content of s.block.
func (s *Storage) refreshCache(loc jbod.Location) {
	if !s.cacheEnabled() {
		return
	}

	err := s.cache.Insert(loc.Disk, loc.Block, s.block[:])
	if errors.Is(err, jbod.ErrDuplicateEntry) {
		s.cache.Update(loc.Disk, loc.Block, s.block[:])
	} else if err != nil {
		log.Warn().Err(err).Int("disk", loc.Disk).Int("block", loc.Block).Msg("Caching written block")
	}
}
