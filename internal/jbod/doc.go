// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package jbod describes the geometry and the command set of a JBOD array,
// i.e. just a bunch of independent disks reachable only through the jbod
// protocol. It is shared by the client side (transport, cache, mdadm) and by
// the in-memory server, so both sides agree on the address translation, the
// opcode layout and the error kinds.
package jbod
