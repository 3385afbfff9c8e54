// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch contains architecture-specific definitions needed to
// interpret raw bytes read from a target's address space: pointer and
// int width and byte order. Breakpoint geometry belongs to process
// control, out of this core's scope, and is not modeled here.
package arch

import "encoding/binary"

// Architecture defines the architecture-specific details needed to
// decode integers and pointers read out of a target's memory.
type Architecture struct {
	// IntSize is the size of the target's int type, in bytes.
	IntSize int
	// PointerSize is the size of a pointer, in bytes.
	PointerSize int
	// ByteOrder is the byte order for ints and pointers.
	ByteOrder binary.ByteOrder
	// StackPointerDwarfRegister is the DWARF register number of this
	// architecture's stack pointer, used by DW_OP_call_frame_cfa.
	StackPointerDwarfRegister int
}

func (a *Architecture) Int(buf []byte) int64 {
	return int64(a.Uint(buf))
}

func (a *Architecture) Uint(buf []byte) uint64 {
	if len(buf) != a.IntSize {
		panic("arch: bad IntSize")
	}
	switch a.IntSize {
	case 4:
		return uint64(a.ByteOrder.Uint32(buf[:4]))
	case 8:
		return a.ByteOrder.Uint64(buf[:8])
	}
	panic("arch: unsupported IntSize")
}

func (a *Architecture) Uintptr(buf []byte) uint64 {
	if len(buf) != a.PointerSize {
		panic("arch: bad PointerSize")
	}
	switch a.PointerSize {
	case 4:
		return uint64(a.ByteOrder.Uint32(buf[:4]))
	case 8:
		return a.ByteOrder.Uint64(buf[:8])
	}
	panic("arch: unsupported PointerSize")
}

// AMD64 is the x86-64 System V ABI: 8-byte pointers, little-endian,
// CFA computed relative to DWARF register 7 (rsp).
var AMD64 = Architecture{
	IntSize:                   8,
	PointerSize:               8,
	ByteOrder:                 binary.LittleEndian,
	StackPointerDwarfRegister: 7,
}

// X86 is the i386 ABI: 4-byte pointers, little-endian, SP is DWARF
// register 4 (esp).
var X86 = Architecture{
	IntSize:                   4,
	PointerSize:               4,
	ByteOrder:                 binary.LittleEndian,
	StackPointerDwarfRegister: 4,
}

// ARM is AArch32: 4-byte pointers, little-endian, SP is DWARF register 13.
var ARM = Architecture{
	IntSize:                   4,
	PointerSize:               4,
	ByteOrder:                 binary.LittleEndian,
	StackPointerDwarfRegister: 13,
}
