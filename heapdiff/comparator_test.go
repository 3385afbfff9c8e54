// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heapdiff

import (
	"encoding/binary"
	"testing"

	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/frametype"
)

type fakeSpace struct {
	base uint64
	mem  []byte
}

func (f *fakeSpace) ReadMemory(addr addrspace.Address, out []byte) error {
	off := uint64(addr) - f.base
	copy(out, f.mem[off:off+uint64(len(out))])
	return nil
}
func (f *fakeSpace) ReadMemoryLazy(addr addrspace.Address, n int, opts addrspace.ReadOptions) ([]byte, error) {
	buf := make([]byte, n)
	f.ReadMemory(addr, buf)
	return buf, nil
}
func (f *fakeSpace) Mappings() []*addrspace.Mapping                     { return nil }
func (f *fakeSpace) FindMapping(a addrspace.Address) *addrspace.Mapping { return nil }
func (f *fakeSpace) PointerSize() int                                   { return 8 }

func putU64(mem []byte, off uint64, v uint64) {
	binary.LittleEndian.PutUint64(mem[off:off+8], v)
}

const heapBase, heapEnd = 0x10000, 0x20000

func newComparator(s1, s2 *fakeSpace) *Comparator {
	return NewComparator(s1, s2, nil, nil, heapBase, heapEnd, nil, nil, 8)
}

var intType = &frametype.Type{Name: "int", Kind: frametype.KindBase, ByteSize: 8}

func TestCompareBaseTypeEqual(t *testing.T) {
	mem1 := make([]byte, 0x100)
	mem2 := make([]byte, 0x100)
	putU64(mem1, 0, 42)
	putU64(mem2, 0, 42)
	s1 := &fakeSpace{base: heapBase, mem: mem1}
	s2 := &fakeSpace{base: heapBase, mem: mem2}

	res, err := newComparator(s1, s2).Compare(heapBase, heapBase, intType, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res != Equal {
		t.Fatalf("got %v, want Equal", res)
	}
}

func TestCompareBaseTypeDifferent(t *testing.T) {
	mem1 := make([]byte, 0x100)
	mem2 := make([]byte, 0x100)
	putU64(mem1, 0, 42)
	putU64(mem2, 0, 43)
	s1 := &fakeSpace{base: heapBase, mem: mem1}
	s2 := &fakeSpace{base: heapBase, mem: mem2}

	res, err := newComparator(s1, s2).Compare(heapBase, heapBase, intType, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res != Different {
		t.Fatalf("got %v, want Different", res)
	}
}

// TestComparePointerChaseEqualLists builds a 2-node linked list in
// each heap, identical in content but allocated at different
// addresses, and checks that the pointer-chasing comparison considers
// them equal despite the differing pointer values.
func TestComparePointerChaseEqualLists(t *testing.T) {
	nodeType := &frametype.Type{Name: "node", Kind: frametype.KindStruct, ByteSize: 16}
	ptrType := &frametype.Type{Kind: frametype.KindPointer, ByteSize: 8, Subtype: nodeType}
	nodeType.Members = []*frametype.Member{
		{Name: "value", HasConstOffset: true, Offset: 0, Type: intType},
		{Name: "next", HasConstOffset: true, Offset: 8, Type: ptrType},
	}

	mem1 := make([]byte, 0x100)
	putU64(mem1, 0x00, 1) // node A @ 0x10000: value=1, next=0x10020
	putU64(mem1, 0x08, heapBase+0x20)
	putU64(mem1, 0x20, 2) // node B @ 0x10020: value=2, next=0
	putU64(mem1, 0x28, 0)

	mem2 := make([]byte, 0x100)
	putU64(mem2, 0x00, 1) // node A' @ 0x10000: value=1, next=0x10040 (different addr)
	putU64(mem2, 0x08, heapBase+0x40)
	putU64(mem2, 0x40, 2) // node B' @ 0x10040: value=2, next=0
	putU64(mem2, 0x48, 0)

	s1 := &fakeSpace{base: heapBase, mem: mem1}
	s2 := &fakeSpace{base: heapBase, mem: mem2}

	res, err := newComparator(s1, s2).Compare(heapBase, heapBase, nodeType, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res != Equal {
		t.Fatalf("got %v, want Equal", res)
	}
}

// TestCompareCyclicListTerminates builds a self-referencing node in
// each heap and checks that the cycle-breaking previous-set stops the
// comparison from recursing forever.
func TestCompareCyclicListTerminates(t *testing.T) {
	nodeType := &frametype.Type{Name: "node", Kind: frametype.KindStruct, ByteSize: 16}
	ptrType := &frametype.Type{Kind: frametype.KindPointer, ByteSize: 8, Subtype: nodeType}
	nodeType.Members = []*frametype.Member{
		{Name: "value", HasConstOffset: true, Offset: 0, Type: intType},
		{Name: "next", HasConstOffset: true, Offset: 8, Type: ptrType},
	}

	mem1 := make([]byte, 0x100)
	putU64(mem1, 0, 7)
	putU64(mem1, 8, heapBase) // points to itself

	mem2 := make([]byte, 0x100)
	putU64(mem2, 0, 7)
	putU64(mem2, 8, heapBase)

	s1 := &fakeSpace{base: heapBase, mem: mem1}
	s2 := &fakeSpace{base: heapBase, mem: mem2}

	res, err := newComparator(s1, s2).Compare(heapBase, heapBase, nodeType, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res != Equal {
		t.Fatalf("got %v, want Equal", res)
	}
}

func TestIgnoreListSkipsAnnotatedBytes(t *testing.T) {
	mem1 := []byte{1, 2, 3, 4}
	mem2 := []byte{1, 99, 99, 4}
	s1 := &fakeSpace{base: heapBase, mem: mem1}
	s2 := &fakeSpace{base: heapBase, mem: mem2}

	ignore := IgnoreList{{Address: heapBase + 1, Size: 2}}
	c := NewComparator(s1, s2, nil, nil, heapBase, heapEnd, ignore, ignore, 8)

	res, err := c.compareBytes(heapBase, heapBase, 4)
	if err != nil {
		t.Fatal(err)
	}
	if res != Equal {
		t.Fatalf("got %v, want Equal (ignored range should be skipped)", res)
	}
}

func TestCompareRootsSymmetric(t *testing.T) {
	mem1 := make([]byte, 0x10)
	mem2 := make([]byte, 0x10)
	putU64(mem1, 0, 5)
	putU64(mem2, 0, 5)
	s1 := &fakeSpace{base: heapBase, mem: mem1}
	s2 := &fakeSpace{base: heapBase, mem: mem2}

	roots1 := []Root{{Name: "g", Address: heapBase, Type: intType}}
	roots2 := []Root{{Name: "g", Address: heapBase, Type: intType}}

	eq1, err := newComparator(s1, s2).CompareRoots(roots1, roots2)
	if err != nil {
		t.Fatal(err)
	}
	eq2, err := newComparator(s2, s1).CompareRoots(roots2, roots1)
	if err != nil {
		t.Fatal(err)
	}
	if eq1 != eq2 {
		t.Fatalf("Compare(S1,S2)=%v != Compare(S2,S1)=%v", eq1, eq2)
	}
}
