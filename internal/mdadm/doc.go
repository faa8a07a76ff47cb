// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// mdadm presents the disks of a jbod array as one linear device. It
// translates reads and writes of arbitrary byte ranges to operations on whole
// blocks, keeps the block cache coherent and issues the protocol operations
// through an Executor.
//
// Disks are laid out one after another, i.e. address 0 is the first byte of
// the first block of disk 0 and the last address is the last byte of the last
// block of disk 15. The server keeps a cursor which is set by seek operations
// and consumed by block operations. mdadm seeks before every block operation,
// so it never relies on the cursor position left by a previous call.
package mdadm
