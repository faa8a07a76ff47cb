// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/asch/jbod/internal/jbod"
)

const (
	// Size of the packet header. Length, opcode and status.
	HeaderLen = 8

	// Size of a packet carrying a block.
	PayloadPacketLen = HeaderLen + jbod.BlockSize
)

// Packet is one request or response of the jbod protocol. Every integer is
// in network byte order on the wire:
//
//	0  2 bytes  total length (8 or 264)
//	2  4 bytes  opcode
//	6  2 bytes  status, zero on requests
//	8  256 bytes block, optional
type Packet struct {
	Op     jbod.Op
	Status uint16

	// Block is nil for packets without payload, otherwise its first
	// BlockSize bytes are the payload.
	Block []byte
}

type header struct {
	length uint16
	op     jbod.Op
	status uint16
}

func (h header) put(b []byte) {
	binary.BigEndian.PutUint16(b[0:2], h.length)
	binary.BigEndian.PutUint32(b[2:6], uint32(h.op))
	binary.BigEndian.PutUint16(b[6:8], h.status)
}

func parseHeader(b []byte) (header, error) {
	h := header{
		length: binary.BigEndian.Uint16(b[0:2]),
		op:     jbod.Op(binary.BigEndian.Uint32(b[2:6])),
		status: binary.BigEndian.Uint16(b[6:8]),
	}

	if h.length != HeaderLen && h.length != PayloadPacketLen {
		return h, fmt.Errorf("%w: malformed packet length %d", jbod.ErrTransport, h.length)
	}

	return h, nil
}

// Encode serializes p into buf, which has to be at least PayloadPacketLen
// long, and returns the encoded part of buf.
func (p Packet) Encode(buf []byte) ([]byte, error) {
	h := header{length: HeaderLen, op: p.Op, status: p.Status}
	if p.Block != nil {
		if len(p.Block) < jbod.BlockSize {
			return nil, fmt.Errorf("%w: block of %d bytes", jbod.ErrInvalidArgument, len(p.Block))
		}
		h.length = PayloadPacketLen
		copy(buf[HeaderLen:PayloadPacketLen], p.Block)
	}
	h.put(buf[:HeaderLen])

	return buf[:h.length], nil
}

// WritePacket encodes p and writes it completely to w.
func WritePacket(w io.Writer, p Packet) error {
	var buf [PayloadPacketLen]byte

	b, err := p.Encode(buf[:])
	if err != nil {
		return err
	}

	return writeExact(w, b)
}

// ReadPacket reads one complete packet from r. When the packet carries a
// payload it is stored to block, which has to be BlockSize long. If block is
// nil the payload is read and dropped so the stream stays aligned. The
// returned packet references block when the payload was present.
func ReadPacket(r io.Reader, block []byte) (Packet, error) {
	var hdr [HeaderLen]byte

	if err := readExact(r, hdr[:]); err != nil {
		return Packet{}, err
	}

	h, err := parseHeader(hdr[:])
	if err != nil {
		return Packet{}, err
	}

	p := Packet{Op: h.op, Status: h.status}
	if h.length == HeaderLen {
		return p, nil
	}

	if block == nil {
		var discard [jbod.BlockSize]byte
		return p, readExact(r, discard[:])
	}

	if len(block) < jbod.BlockSize {
		return p, fmt.Errorf("%w: block of %d bytes", jbod.ErrInvalidArgument, len(block))
	}

	p.Block = block[:jbod.BlockSize]

	return p, readExact(r, p.Block)
}

// Reads exactly len(buf) bytes from r. Every iteration continues behind the
// bytes moved by the previous Read. A Read returning zero bytes without error
// is treated as a broken stream rather than retried forever.
func readExact(r io.Reader, buf []byte) error {
	for len(buf) > 0 {
		n, err := r.Read(buf)
		buf = buf[n:]

		if len(buf) == 0 {
			return nil
		}

		if err != nil {
			return fmt.Errorf("%w: receive: %w", jbod.ErrTransport, err)
		}

		if n == 0 {
			return fmt.Errorf("%w: receive: %w", jbod.ErrTransport, io.ErrNoProgress)
		}
	}

	return nil
}

// Writes exactly len(buf) bytes to w. Same loop as readExact.
func writeExact(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		buf = buf[n:]

		if len(buf) == 0 {
			return nil
		}

		if err != nil {
			return fmt.Errorf("%w: send: %w", jbod.ErrTransport, err)
		}

		if n == 0 {
			return fmt.Errorf("%w: send: %w", jbod.ErrTransport, io.ErrShortWrite)
		}
	}

	return nil
}
