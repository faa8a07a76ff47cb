// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package memdisk implements jbod server keeping all disks in memory. It
// answers the same protocol as the real array, hence it can be used as a
// local backend for benchmarking the client without network and storage
// latencies and as a server in tests. Data are lost when the process ends.
package memdisk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/asch/jbod/internal/jbod"
	"github.com/asch/jbod/internal/transport"
)

// Status returned in responses to failed operations.
const StatusFailed = 1

var errRejected = errors.New("rejected")

// Options to use in New().
type Options struct {
	// Send responses one byte per write call. Clients have to reassemble
	// them, which is useful for testing partial reads.
	Fragment bool
}

// Server emulates the disk array. All connections share the same disks and
// the same cursor, as the real array does.
type Server struct {
	mu sync.Mutex

	disks [jbod.NumDisks][jbod.BlocksPerDisk][jbod.BlockSize]byte

	mounted bool

	// Cursor set by SEEK_DISK and SEEK_BLOCK. READ_BLOCK and WRITE_BLOCK
	// advance the block.
	disk  int
	block int

	ops  map[jbod.Command]int
	fail map[jbod.Command]int

	fragment bool
}

func New(o Options) *Server {
	return &Server{
		ops:      make(map[jbod.Command]int),
		fail:     make(map[jbod.Command]int),
		fragment: o.Fragment,
	}
}

// Serve accepts connections on l and serves each of them in its own go
// routine until ctx is canceled. The listener and all connections are closed
// on return.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return l.Close()
	})

	g.Go(func() error {
		for {
			conn, err := l.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

			g.Go(func() error {
				stop := context.AfterFunc(ctx, func() { conn.Close() })
				defer stop()
				defer conn.Close()

				if err := s.ServeConn(conn); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("Serving jbod connection")
				}
				return nil
			})
		}
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	return err
}

// ServeConn answers requests read from rw until the peer closes the stream.
func (s *Server) ServeConn(rw io.ReadWriter) error {
	var w io.Writer = rw
	if s.fragment {
		w = oneByteWriter{rw}
	}

	block := make([]byte, jbod.BlockSize)
	for {
		req, err := transport.ReadPacket(rw, block)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := transport.WritePacket(w, s.handle(req)); err != nil {
			return err
		}
	}
}

// FailNext makes the next n operations with command cmd fail.
func (s *Server) FailNext(cmd jbod.Command, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fail[cmd] += n
}

// Count returns number of received requests with command cmd.
func (s *Server) Count(cmd jbod.Command) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ops[cmd]
}

// ResetCounts zeroes all request counters.
func (s *Server) ResetCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ops = make(map[jbod.Command]int)
}

func (s *Server) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mounted
}

// Block returns copy of the block content, bypassing the protocol.
func (s *Server) Block(disk, block int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := make([]byte, jbod.BlockSize)
	copy(b, s.disks[disk][block][:])

	return b
}

func (s *Server) handle(req transport.Packet) transport.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := req.Op.Command()
	s.ops[cmd]++

	resp := transport.Packet{Op: req.Op}
	if err := s.execute(req, &resp); err != nil {
		log.Debug().Err(err).Str("op", req.Op.String()).Msg("Rejecting jbod request")
		resp.Status = StatusFailed
		resp.Block = nil
	}

	return resp
}

func (s *Server) execute(req transport.Packet, resp *transport.Packet) error {
	cmd := req.Op.Command()

	if s.fail[cmd] > 0 {
		s.fail[cmd]--
		return fmt.Errorf("%w: injected failure", errRejected)
	}

	if !cmd.Valid() {
		return fmt.Errorf("%w: unknown command %s", errRejected, cmd)
	}

	switch cmd {
	case jbod.CmdMount:
		if s.mounted {
			return fmt.Errorf("%w: already mounted", errRejected)
		}
		s.mounted = true
		return nil
	case jbod.CmdUnmount:
		if !s.mounted {
			return fmt.Errorf("%w: not mounted", errRejected)
		}
		s.mounted = false
		return nil
	}

	if !s.mounted {
		return fmt.Errorf("%w: %s while unmounted", errRejected, cmd)
	}

	switch cmd {
	case jbod.CmdSeekDisk:
		s.disk = req.Op.Disk()
		s.block = 0
	case jbod.CmdSeekBlock:
		s.block = req.Op.Block()
	case jbod.CmdReadBlock:
		if !jbod.ValidBlock(s.block) {
			return fmt.Errorf("%w: read past the end of disk %d", errRejected, s.disk)
		}
		resp.Block = make([]byte, jbod.BlockSize)
		copy(resp.Block, s.disks[s.disk][s.block][:])
		s.block++
	case jbod.CmdWriteBlock:
		if req.Block == nil {
			return fmt.Errorf("%w: write without block", errRejected)
		}
		if !jbod.ValidBlock(s.block) {
			return fmt.Errorf("%w: write past the end of disk %d", errRejected, s.disk)
		}
		copy(s.disks[s.disk][s.block][:], req.Block)
		s.block++
	}

	return nil
}

// Writer passing at most one byte to the underlying writer per call.
type oneByteWriter struct {
	w io.Writer
}

func (o oneByteWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	return o.w.Write(p[:1])
}
