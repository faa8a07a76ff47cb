// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package jbod

const (
	// Number of disks in the array.
	NumDisks = 16

	// Number of blocks on every disk.
	BlocksPerDisk = 256

	// Size of one block in bytes. Block is the unit of every transfer.
	BlockSize = 256

	// Size of one disk in bytes.
	DiskSize = BlocksPerDisk * BlockSize

	// Size of the whole linear address space in bytes.
	TotalSize = NumDisks * DiskSize

	// Maximal length of one read or write request on the linear space.
	MaxIOSize = 1024
)

// Location of a byte in the array.
type Location struct {
	Disk   int
	Block  int
	Offset int
}

// Locate translates linear address addr into the disk, the block on that disk
// and the offset inside the block. addr has to be lower than TotalSize.
func Locate(addr uint32) Location {
	return Location{
		Disk:   int(addr / DiskSize),
		Block:  int(addr % DiskSize / BlockSize),
		Offset: int(addr % BlockSize),
	}
}

// Addr is the inverse of Locate.
func (l Location) Addr() uint32 {
	return uint32(l.Disk*DiskSize + l.Block*BlockSize + l.Offset)
}

// ValidDisk reports whether disk is an index of an existing disk.
func ValidDisk(disk int) bool {
	return disk >= 0 && disk < NumDisks
}

// ValidBlock reports whether block is an index of an existing block on a disk.
func ValidBlock(block int) bool {
	return block >= 0 && block < BlocksPerDisk
}
