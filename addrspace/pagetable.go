// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package addrspace

// pageTable is a 5-level radix tree from Address to *Mapping, the same
// shape as core/mapping.go's pageTable0..pageTable4: each level
// consumes a fixed slice of address bits, and a miss at any level means
// no mapping covers that address. It exists so lookups stay O(1) in
// the number of mappings rather than O(n) in a linear scan, which
// matters once a target has thousands of mapped regions (common for
// processes that dlopen many shared objects).
const (
	bits0 = 10
	bits1 = 10
	bits2 = 10
	bits3 = 10
	bits4 = 12 // remaining high bits

	shift0 = 12 // log2 of the 4 KiB slot granularity
	shift1 = shift0 + bits0
	shift2 = shift1 + bits1
	shift3 = shift2 + bits2
	shift4 = shift3 + bits3
)

type pageTable0 [1 << bits0]*Mapping
type pageTable1 [1 << bits1]*pageTable0
type pageTable2 [1 << bits2]*pageTable1
type pageTable3 [1 << bits3]*pageTable2
type pageTable4 [1 << bits4]*pageTable3

// pageTableIndex is the table used by a Space implementation to
// resolve an Address to the Mapping that contains it.
type pageTableIndex struct {
	top      pageTable4
	mappings []*Mapping
}

func newPageTableIndex() *pageTableIndex {
	return &pageTableIndex{}
}

func idx(a Address, shift, bits uint) int {
	return int((uint64(a) >> shift) & (1<<bits - 1))
}

// find returns the Mapping containing a, or nil.
func (t *pageTableIndex) find(a Address) *Mapping {
	t3 := t.top[idx(a, shift4, bits4)]
	if t3 == nil {
		return nil
	}
	t2 := t3[idx(a, shift3, bits3)]
	if t2 == nil {
		return nil
	}
	t1 := t2[idx(a, shift2, bits2)]
	if t1 == nil {
		return nil
	}
	t0 := t1[idx(a, shift1, bits1)]
	if t0 == nil {
		return nil
	}
	return t0[idx(a, shift0, bits0)]
}

// add installs m at every page-table slot its range covers. Min and
// Max must be page-aligned; add returns an error otherwise and installs
// nothing, since mappings never begin or end mid-page (a violation
// would mean the source of truth for the mapping list, e.g.
// /proc/<pid>/maps, is itself corrupt).
func (t *pageTableIndex) add(m *Mapping) error {
	pageSize := Address(pageSizeHint())
	if uint64(m.Min)%uint64(pageSize) != 0 || uint64(m.Max)%uint64(pageSize) != 0 {
		return errMisaligned(m)
	}
	step := Address(1) << shift0
	for a := m.Min; a < m.Max; a += step {
		i4 := idx(a, shift4, bits4)
		if t.top[i4] == nil {
			t.top[i4] = new(pageTable3)
		}
		t3 := t.top[i4]
		i3 := idx(a, shift3, bits3)
		if t3[i3] == nil {
			t3[i3] = new(pageTable2)
		}
		t2 := t3[i3]
		i2 := idx(a, shift2, bits2)
		if t2[i2] == nil {
			t2[i2] = new(pageTable1)
		}
		t1 := t2[i2]
		i1 := idx(a, shift1, bits1)
		if t1[i1] == nil {
			t1[i1] = new(pageTable0)
		}
		t0 := t1[i1]
		t0[idx(a, shift0, bits0)] = m
	}
	t.mappings = append(t.mappings, m)
	return nil
}

func (t *pageTableIndex) all() []*Mapping {
	return t.mappings
}
