// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package jbod

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocate(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(Location{0, 0, 0}, Locate(0))
	assert.Equal(Location{0, 0, 255}, Locate(255))
	assert.Equal(Location{0, 1, 0}, Locate(256))
	assert.Equal(Location{0, 255, 255}, Locate(DiskSize-1))
	assert.Equal(Location{1, 0, 0}, Locate(DiskSize))
	assert.Equal(Location{15, 255, 255}, Locate(TotalSize-1))
	assert.Equal(Location{3, 17, 42}, Locate(3*DiskSize+17*BlockSize+42))
}

func TestLocateRoundTrip(t *testing.T) {
	for addr := uint32(0); addr < TotalSize; addr += 997 {
		l := Locate(addr)
		assert.True(t, ValidDisk(l.Disk))
		assert.True(t, ValidBlock(l.Block))
		assert.Equal(t, addr, l.Addr())
	}
}

func TestOpLayout(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(Op(0), Mount)
	assert.Equal(Op(1<<26), Unmount)
	assert.Equal(Op(4<<26), ReadBlock)
	assert.Equal(Op(5<<26), WriteBlock)

	assert.Equal(Op(2<<26|7<<22), SeekDisk(7))
	assert.Equal(Op(3<<26|200), SeekBlock(200))

	op := SeekDisk(15)
	assert.Equal(CmdSeekDisk, op.Command())
	assert.Equal(15, op.Disk())
	assert.Equal(0, op.Block())

	op = SeekBlock(255)
	assert.Equal(CmdSeekBlock, op.Command())
	assert.Equal(255, op.Block())
	assert.Equal(0, op.Disk())
}

func TestOpPayload(t *testing.T) {
	assert := assert.New(t)

	assert.True(WriteBlock.HasPayload())
	assert.False(ReadBlock.HasPayload())
	assert.True(ReadBlock.ReturnsPayload())
	assert.False(WriteBlock.ReturnsPayload())
	assert.False(SeekDisk(1).HasPayload())
}

func TestOpString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("MOUNT", Mount.String())
	assert.Equal("SEEK_DISK(3)", SeekDisk(3).String())
	assert.Equal("SEEK_BLOCK(9)", SeekBlock(9).String())
	assert.Equal("CMD(40)", MakeOp(40).String())
	assert.False(Command(40).Valid())
}
