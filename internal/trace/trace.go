// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package trace replays workloads described in trace files against a linear
// device and checks that every read returns what the previous writes stored.
//
// One operation per line, fields separated by white space:
//
//	MOUNT
//	UNMOUNT
//	WRITE <addr> <length> <byte>
//	READ <addr> <length> [ignored]
//
// WRITE fills the range with the given byte value. Empty lines and lines
// starting with # are skipped.
package trace

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/asch/jbod/internal/jbod"
)

type Kind int

const (
	Mount Kind = iota
	Unmount
	Read
	Write
)

var kinds = map[string]Kind{
	"MOUNT":   Mount,
	"UNMOUNT": Unmount,
	"READ":    Read,
	"WRITE":   Write,
}

// Op is one line of the trace.
type Op struct {
	Kind   Kind
	Addr   uint32
	Length int
	Fill   byte

	// Line number in the trace file.
	Line int
}

// Device is the linear device the trace is replayed against.
type Device interface {
	Mount() error
	Unmount() error
	Read(addr uint32, length int, buf []byte) (int, error)
	Write(addr uint32, length int, buf []byte) (int, error)
}

// Result of a replay.
type Result struct {
	Ops        int
	Reads      int
	Writes     int
	Mismatches int
}

// Parse reads the whole trace from r.
func Parse(r io.Reader) ([]Op, error) {
	var ops []Op

	s := bufio.NewScanner(r)
	for line := 1; s.Scan(); line++ {
		fields := strings.Fields(s.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		op, err := parseOp(fields)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: %w", line, err)
		}
		op.Line = line
		ops = append(ops, op)
	}

	return ops, s.Err()
}

func parseOp(fields []string) (Op, error) {
	kind, ok := kinds[fields[0]]
	if !ok {
		return Op{}, fmt.Errorf("unknown operation %q", fields[0])
	}

	op := Op{Kind: kind}
	if kind == Mount || kind == Unmount {
		return op, nil
	}

	if len(fields) < 3 || (kind == Write && len(fields) < 4) {
		return Op{}, fmt.Errorf("missing operands of %s", fields[0])
	}

	addr, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return Op{}, fmt.Errorf("address: %w", err)
	}

	length, err := strconv.ParseUint(fields[2], 10, 31)
	if err != nil {
		return Op{}, fmt.Errorf("length: %w", err)
	}

	op.Addr = uint32(addr)
	op.Length = int(length)

	if kind == Write {
		fill, err := strconv.ParseUint(fields[3], 10, 8)
		if err != nil {
			return Op{}, fmt.Errorf("fill byte: %w", err)
		}
		op.Fill = byte(fill)
	}

	return op, nil
}

// Run replays ops against dev. Content of every read is compared with a
// shadow copy of the device maintained from the writes, differences are
// counted as mismatches. Run stops at the first failed operation.
func Run(dev Device, ops []Op) (Result, error) {
	var res Result

	shadow := make([]byte, jbod.TotalSize)
	buf := make([]byte, jbod.MaxIOSize)

	for _, op := range ops {
		var err error

		switch op.Kind {
		case Mount:
			err = dev.Mount()
		case Unmount:
			err = dev.Unmount()
		case Write:
			err = runWrite(dev, op, shadow, buf)
			res.Writes++
		case Read:
			var ok bool
			ok, err = runRead(dev, op, shadow, buf)
			res.Reads++
			if err == nil && !ok {
				res.Mismatches++
				log.Warn().Int("line", op.Line).Uint32("addr", op.Addr).Int("length", op.Length).Msg("Read returned unexpected data")
			}
		}

		if err != nil {
			return res, fmt.Errorf("trace line %d: %w", op.Line, err)
		}
		res.Ops++
	}

	return res, nil
}

func runWrite(dev Device, op Op, shadow, buf []byte) error {
	if op.Length > len(buf) {
		return fmt.Errorf("%w: length %d", jbod.ErrInvalidArgument, op.Length)
	}

	data := buf[:op.Length]
	for i := range data {
		data[i] = op.Fill
	}

	if _, err := dev.Write(op.Addr, op.Length, data); err != nil {
		return err
	}

	copy(shadow[op.Addr:], data)

	return nil
}

func runRead(dev Device, op Op, shadow, buf []byte) (bool, error) {
	if op.Length > len(buf) {
		return false, fmt.Errorf("%w: length %d", jbod.ErrInvalidArgument, op.Length)
	}

	data := buf[:op.Length]
	if _, err := dev.Read(op.Addr, op.Length, data); err != nil {
		return false, err
	}

	return bytes.Equal(data, shadow[op.Addr:int(op.Addr)+op.Length]), nil
}
