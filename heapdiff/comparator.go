// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heapdiff

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/arch"
	"golang.org/x/mcsnapshot/dwarfexpr"
	"golang.org/x/mcsnapshot/frametype"
)

// Result is the outcome of comparing two heap areas. Unknown mirrors
// the original comparator's -1: the comparison could not be performed
// (a size mismatch against the supplied type, usually) and callers
// treat it like Equal rather than failing the whole comparison.
type Result int

const (
	Equal Result = iota
	Different
	Unknown
)

func (r Result) String() string {
	switch r {
	case Equal:
		return "equal"
	case Different:
		return "different"
	default:
		return "unknown"
	}
}

type pairKey struct{ addr1, addr2 uint64 }

// Comparator holds the bookkeeping for a single heap comparison: which
// address pairs have already been assumed equal (breaking cycles in
// linked structures) and which addresses have been matched to which,
// plus the best type inferred for each address seen so far. This
// state is scratch for exactly one Compare/CompareRoots call — a
// Comparator must never be reused across calls, since its matrices
// only make sense for the pair of snapshots they were built against.
type Comparator struct {
	space1, space2 addrspace.Space
	ctx1, ctx2     *dwarfexpr.ExpressionContext

	heapBase, heapEnd uint64
	ignore1, ignore2  IgnoreList
	pointerSize       int
	order1, order2    binary.ByteOrder

	previous map[pairKey]bool
	equalsTo map[uint64]uint64
	types    map[uint64]*frametype.Type
}

// NewComparator builds a fresh Comparator for one comparison between
// space1/ctx1 (the first state) and space2/ctx2 (the second). heapBase
// and heapEnd bound the region within which pointer chasing recurses
// structurally; pointers outside it are compared by raw value only.
func NewComparator(space1, space2 addrspace.Space, ctx1, ctx2 *dwarfexpr.ExpressionContext, heapBase, heapEnd uint64, ignore1, ignore2 IgnoreList, pointerSize int) *Comparator {
	return &Comparator{
		space1: space1, space2: space2,
		ctx1: ctx1, ctx2: ctx2,
		heapBase: heapBase, heapEnd: heapEnd,
		ignore1: ignore1, ignore2: ignore2,
		pointerSize: pointerSize,
		order1:      byteOrderOf(ctx1),
		order2:      byteOrderOf(ctx2),
		previous:    make(map[pairKey]bool),
		equalsTo:    make(map[uint64]uint64),
		types:       make(map[uint64]*frametype.Type),
	}
}

// byteOrderOf returns ctx's target architecture's byte order, defaulting
// to AMD64's (little-endian) the same way dwarfexpr.ExpressionContext
// itself defaults when Arch is nil.
func byteOrderOf(ctx *dwarfexpr.ExpressionContext) binary.ByteOrder {
	if ctx == nil || ctx.Arch == nil {
		return arch.AMD64.ByteOrder
	}
	return ctx.Arch.ByteOrder
}

// Root is a named entry point into a process's memory — a global
// variable or stack local — used to start a structural comparison.
type Root struct {
	Name    string
	Address uint64
	Type    *frametype.Type
}

// CompareRoots compares two equal-length, correspondingly-ordered
// root lists (the same binary's globals read out of two different
// snapshots) and reports whether every root compares equal.
// CompareRoots(r1, r2) and CompareRoots(r2, r1) (with a Comparator
// built with space1/space2 swapped) always agree — the comparison
// never looks at which snapshot is "first", only at structural
// equality between the two.
func (c *Comparator) CompareRoots(roots1, roots2 []Root) (bool, error) {
	if len(roots1) != len(roots2) {
		return false, fmt.Errorf("heapdiff: root count mismatch: %d vs %d", len(roots1), len(roots2))
	}
	for i := range roots1 {
		res, err := c.Compare(roots1[i].Address, roots2[i].Address, roots1[i].Type, 0)
		if err != nil {
			return false, fmt.Errorf("heapdiff: comparing root %q: %w", roots1[i].Name, err)
		}
		if res == Different {
			return false, nil
		}
	}
	return true, nil
}

func (c *Comparator) inHeap(addr uint64) bool {
	return addr >= c.heapBase && addr < c.heapEnd
}

func (c *Comparator) readBytes(space addrspace.Space, addr uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := space.ReadMemory(addrspace.Address(addr), buf); err != nil {
		return nil, fmt.Errorf("heapdiff: reading %d bytes at %#x: %w", n, addr, err)
	}
	return buf, nil
}

func (c *Comparator) readPointer(space addrspace.Space, addr uint64) (uint64, error) {
	buf, err := c.readBytes(space, addr, c.pointerSize)
	if err != nil {
		return 0, err
	}
	return decodePointer(buf, c.orderFor(space)), nil
}

// orderFor returns the byte order to use when decoding integers read
// from space, matching whichever of the comparator's two snapshots
// space belongs to.
func (c *Comparator) orderFor(space addrspace.Space) binary.ByteOrder {
	if space == c.space2 {
		return c.order2
	}
	return c.order1
}

func decodePointer(buf []byte, order binary.ByteOrder) uint64 {
	switch len(buf) {
	case 8:
		return order.Uint64(buf)
	case 4:
		return uint64(order.Uint32(buf))
	default:
		var v uint64
		for i := len(buf) - 1; i >= 0; i-- {
			v = v<<8 | uint64(buf[i])
		}
		return v
	}
}

// Compare is the cycle-breaking entry point: it compares area1 and
// area2 as values of type typ, assuming they are already equal if
// this exact pair is already being compared higher up the call stack
// (a Tarski-style coinductive assumption, the only thing that lets
// this terminate on cyclic structures like linked lists and trees).
func (c *Comparator) Compare(area1, area2 uint64, typ *frametype.Type, pointerLevel int) (Result, error) {
	key := pairKey{area1, area2}
	if c.previous[key] {
		return Equal, nil
	}
	if got, ok := c.equalsTo[area1]; ok && got == area2 {
		return Equal, nil
	}

	c.previous[key] = true
	res, err := c.compareWithType(area1, area2, typ, -1, pointerLevel)
	if err == nil && res != Different {
		c.equalsTo[area1] = area2
		c.equalsTo[area2] = area1
		if typ != nil {
			c.types[area1] = typ
			c.types[area2] = typ
		}
	}
	return res, err
}

// compareWithType walks typ's structure to decide whether area1 and
// area2 hold equal values, recursing into array elements, struct
// members, and in-heap pointees. size is the caller's belief about
// the area's byte size (-1 if unknown); a mismatch against typ's own
// size yields Unknown rather than Different, matching the original's
// "can't prove it" semantics for malformed type inference.
func (c *Comparator) compareWithType(area1, area2 uint64, typ *frametype.Type, size int, pointerLevel int) (Result, error) {
	if typ == nil {
		// Missing type information (e.g. an incomplete DWARF typedef) —
		// nothing to compare structurally, so don't claim a difference.
		return Equal, nil
	}

	switch typ.Kind {
	case frametype.KindTypedef, frametype.KindConst, frametype.KindVolatile:
		return c.compareWithType(area1, area2, typ.Subtype, size, pointerLevel)

	case frametype.KindBase:
		if typ.Name == "char" {
			if area1 == area2 {
				return Unknown, nil
			}
			n := size
			if n < 0 {
				n = 1
			}
			return c.compareBytes(area1, area2, n)
		}
		if size != -1 && typ.ByteSize != int64(size) {
			return Unknown, nil
		}
		return c.compareBytes(area1, area2, int(typ.ByteSize))

	case frametype.KindEnum:
		if size != -1 && typ.ByteSize != int64(size) {
			return Unknown, nil
		}
		return c.compareBytes(area1, area2, int(typ.ByteSize))

	case frametype.KindArray:
		return c.compareArray(area1, area2, typ, pointerLevel)

	case frametype.KindPointer, frametype.KindReference:
		return c.comparePointer(area1, area2, typ, size, pointerLevel)

	case frametype.KindStruct, frametype.KindClass:
		return c.compareStruct(area1, area2, typ, size)

	case frametype.KindUnion:
		return c.compareBytes(area1, area2, int(typ.ByteSize))

	default:
		return Equal, nil
	}
}

func (c *Comparator) compareArray(area1, area2 uint64, typ *frametype.Type, pointerLevel int) (Result, error) {
	elem := typ.Subtype
	for elem != nil && elem.ByteSize == 0 && elem.Subtype != nil {
		elem = elem.Subtype
	}
	if elem == nil || typ.ElementCount < 0 {
		return Unknown, nil
	}
	elemSize := uint64(elem.ByteSize)
	for i := int64(0); i < typ.ElementCount; i++ {
		off := uint64(i) * elemSize
		res, err := c.compareWithType(area1+off, area2+off, typ.Subtype, int(elemSize), pointerLevel)
		if err != nil {
			return Unknown, err
		}
		if res == Different {
			return Different, nil
		}
	}
	return Equal, nil
}

func (c *Comparator) comparePointer(area1, area2 uint64, typ *frametype.Type, size, pointerLevel int) (Result, error) {
	if typ.Subtype != nil && typ.Subtype.Kind == frametype.KindSubroutine {
		p1, err := c.readPointer(c.space1, area1)
		if err != nil {
			return Unknown, err
		}
		p2, err := c.readPointer(c.space2, area2)
		if err != nil {
			return Unknown, err
		}
		if p1 != p2 {
			return Different, nil
		}
		return Equal, nil
	}

	pointerLevel++
	if pointerLevel <= 1 {
		p1, err := c.readPointer(c.space1, area1)
		if err != nil {
			return Unknown, err
		}
		p2, err := c.readPointer(c.space2, area2)
		if err != nil {
			return Unknown, err
		}
		if c.inHeap(p1) && c.inHeap(p2) {
			return c.Compare(p1, p2, typ.Subtype, pointerLevel)
		}
		if p1 != p2 {
			return Different, nil
		}
		return Equal, nil
	}

	// An array of pointers reached through two or more levels of
	// indirection: compare element by element.
	if size <= 0 {
		return Unknown, nil
	}
	n := size / c.pointerSize
	for i := 0; i < n; i++ {
		off := uint64(i * c.pointerSize)
		p1, err := c.readPointer(c.space1, area1+off)
		if err != nil {
			return Unknown, err
		}
		p2, err := c.readPointer(c.space2, area2+off)
		if err != nil {
			return Unknown, err
		}
		var res Result
		if c.inHeap(p1) && c.inHeap(p2) {
			res, err = c.Compare(p1, p2, typ.Subtype, pointerLevel)
			if err != nil {
				return Unknown, err
			}
		} else if p1 != p2 {
			res = Different
		}
		if res == Different {
			return Different, nil
		}
	}
	return Equal, nil
}

func (c *Comparator) compareStruct(area1, area2 uint64, typ *frametype.Type, size int) (Result, error) {
	if size != -1 && typ.ByteSize != int64(size) {
		if int64(size) <= typ.ByteSize || typ.ByteSize == 0 || size%int(typ.ByteSize) != 0 {
			return Unknown, nil
		}
		// area_size is a multiple of the struct size: an array of
		// structs reached without array type information.
		n := size / int(typ.ByteSize)
		for i := 0; i < n; i++ {
			off := uint64(i) * uint64(typ.ByteSize)
			res, err := c.compareWithType(area1+off, area2+off, typ, -1, 0)
			if err != nil {
				return Unknown, err
			}
			if res == Different {
				return Different, nil
			}
		}
		return Equal, nil
	}

	for _, m := range typ.Members {
		addr1, err := frametype.ResolveMember(m, area1, c.ctx1)
		if err != nil {
			return Unknown, err
		}
		addr2, err := frametype.ResolveMember(m, area2, c.ctx2)
		if err != nil {
			return Unknown, err
		}
		res, err := c.compareWithType(addr1, addr2, m.Type, -1, 0)
		if err != nil {
			return Unknown, err
		}
		if res == Different {
			return Different, nil
		}
	}
	return Equal, nil
}

// compareBytes is the typeless fallback: a plain memcmp, except that
// when two bytes differ at a pointer-aligned offset and both sides
// hold an in-heap address at that offset, the pointees are compared
// structurally instead of failing the comparison outright. This lets
// untyped byte ranges (a void* field, a fragment with no type
// inference available) still recognize two heaps that differ only in
// allocator placement, not in content.
func (c *Comparator) compareBytes(area1, area2 uint64, size int) (Result, error) {
	if size <= 0 {
		return Equal, nil
	}
	b1, err := c.readBytes(c.space1, area1, size)
	if err != nil {
		return Unknown, err
	}
	b2, err := c.readBytes(c.space2, area2, size)
	if err != nil {
		return Unknown, err
	}

	for i := 0; i < size; {
		if whole, skip, ok := c.checkIgnore(area1+uint64(i), area2+uint64(i)); ok {
			if whole {
				return Equal, nil
			}
			i += skip
			continue
		}

		if b1[i] == b2[i] {
			i++
			continue
		}

		wordStart := (i / c.pointerSize) * c.pointerSize
		if wordStart+c.pointerSize <= size {
			p1 := decodePointer(b1[wordStart:wordStart+c.pointerSize], c.order1)
			p2 := decodePointer(b2[wordStart:wordStart+c.pointerSize], c.order2)
			if c.inHeap(p1) && c.inHeap(p2) {
				res, err := c.Compare(p1, p2, nil, 0)
				if err != nil {
					return Unknown, err
				}
				if res == Different {
					return Different, nil
				}
				i = wordStart + c.pointerSize
				continue
			}
		}
		return Different, nil
	}
	return Equal, nil
}

// checkIgnore looks up addr1/addr2 in the two ignore lists. ok is
// true when both sides carry a matching ignore annotation at this
// offset; whole reports that the entire remaining area should be
// treated as equal (an annotation of size 0 means "ignore everything
// from here to the end of the allocation"); otherwise skip is the
// number of bytes to advance past.
func (c *Comparator) checkIgnore(addr1, addr2 uint64) (whole bool, skip int, ok bool) {
	size1, ok1 := c.ignore1.Lookup(addr1)
	if !ok1 {
		return false, 0, false
	}
	size2, ok2 := c.ignore2.Lookup(addr2)
	if !ok2 || size2 != size1 {
		return false, 0, false
	}
	if size1 == 0 {
		return true, 0, true
	}
	return false, size1, true
}
