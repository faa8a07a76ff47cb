// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package jbod

import "fmt"

// Command is the operation requested from the array. It occupies the top six
// bits of an opcode.
type Command uint32

const (
	CmdMount Command = iota
	CmdUnmount
	CmdSeekDisk
	CmdSeekBlock
	CmdReadBlock
	CmdWriteBlock
	numCommands
)

// Opcode layout:
//
//	31      26 25  22 21          8 7      0
//	| command | disk | reserved    | block  |
const (
	cmdShift  = 26
	diskShift = 22
	diskMask  = 0xf
	blockMask = 0xff
)

var commandNames = [...]string{
	CmdMount:      "MOUNT",
	CmdUnmount:    "UNMOUNT",
	CmdSeekDisk:   "SEEK_DISK",
	CmdSeekBlock:  "SEEK_BLOCK",
	CmdReadBlock:  "READ_BLOCK",
	CmdWriteBlock: "WRITE_BLOCK",
}

func (c Command) String() string {
	if c < numCommands {
		return commandNames[c]
	}
	return fmt.Sprintf("CMD(%d)", uint32(c))
}

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	return c < numCommands
}

// Op is a raw 32 bit opcode as it travels on the wire.
type Op uint32

// Operations without operands.
var (
	Mount      = MakeOp(CmdMount)
	Unmount    = MakeOp(CmdUnmount)
	ReadBlock  = MakeOp(CmdReadBlock)
	WriteBlock = MakeOp(CmdWriteBlock)
)

// MakeOp returns opcode for command c with no operands.
func MakeOp(c Command) Op {
	return Op(uint32(c) << cmdShift)
}

// SeekDisk returns opcode positioning the server cursor to the beginning of
// disk.
func SeekDisk(disk int) Op {
	return MakeOp(CmdSeekDisk) | Op((uint32(disk)&diskMask)<<diskShift)
}

// SeekBlock returns opcode positioning the server cursor to block of the
// current disk.
func SeekBlock(block int) Op {
	return MakeOp(CmdSeekBlock) | Op(uint32(block)&blockMask)
}

func (o Op) Command() Command {
	return Command(uint32(o) >> cmdShift)
}

// Disk operand. Meaningful only for CmdSeekDisk.
func (o Op) Disk() int {
	return int(uint32(o) >> diskShift & diskMask)
}

// Block operand. Meaningful only for CmdSeekBlock.
func (o Op) Block() int {
	return int(uint32(o) & blockMask)
}

// HasPayload reports whether a request with this opcode carries a block.
func (o Op) HasPayload() bool {
	return o.Command() == CmdWriteBlock
}

// ReturnsPayload reports whether a response to this opcode carries a block
// which has to be delivered to the caller.
func (o Op) ReturnsPayload() bool {
	return o.Command() == CmdReadBlock
}

func (o Op) String() string {
	switch o.Command() {
	case CmdSeekDisk:
		return fmt.Sprintf("%s(%d)", o.Command(), o.Disk())
	case CmdSeekBlock:
		return fmt.Sprintf("%s(%d)", o.Command(), o.Block())
	}
	return o.Command().String()
}
