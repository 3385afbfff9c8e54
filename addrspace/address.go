// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package addrspace provides a uniform read surface over the memory of
// a live, ptraced target process or a previously captured Snapshot.
// Both are accessed through the same Space interface, so that the
// checkpoint engine, the DWARF expression evaluator, and the heap
// comparator never need to know which kind of target they are reading
// from.
package addrspace

import "fmt"

// Address is an address in the target's address space.
type Address uint64

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// Add returns a + Address(n), allowing negative n.
func (a Address) Add(n int64) Address {
	return Address(int64(a) + n)
}

// Sub returns the signed distance from b to a (a - b).
func (a Address) Sub(b Address) int64 {
	return int64(a) - int64(b)
}

// Perm is a bitmask of the permissions on a Mapping.
type Perm uint8

const (
	Read Perm = 1 << iota
	Write
	Exec
)

func (p Perm) String() string {
	var buf [3]byte
	buf[0] = '-'
	buf[1] = '-'
	buf[2] = '-'
	if p&Read != 0 {
		buf[0] = 'r'
	}
	if p&Write != 0 {
		buf[1] = 'w'
	}
	if p&Exec != 0 {
		buf[2] = 'x'
	}
	return string(buf[:])
}

// Mapping describes one contiguous, page-aligned region of a target's
// address space: the range it occupies, the permissions it was mapped
// with, and (when known) the backing file and offset. Mapping never
// holds the memory contents itself; those are read on demand through
// the owning Space.
type Mapping struct {
	Min, Max Address
	Perm     Perm

	// Path is the backing file, or "" for anonymous mappings. It may
	// also hold synthetic SimGrid-style names such as "[stack]",
	// "[heap]", or "[vdso]" as reported by /proc/<pid>/maps.
	Path string
	// Offset is the file offset of Min within Path, meaningful only
	// when Path != "".
	Offset int64
}

func (m *Mapping) Size() int64 {
	return m.Max.Sub(m.Min)
}

func (m *Mapping) Contains(a Address) bool {
	return m.Min <= a && a < m.Max
}

func (m *Mapping) String() string {
	return fmt.Sprintf("[%s,%s) %s %s", m.Min, m.Max, m.Perm, m.Path)
}
