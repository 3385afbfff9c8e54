// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package region implements RegionSnapshot: the capture and restore of
// one contiguous range of a target's address space, stored as a flat
// byte buffer, as a vector of deduplicated page-store indices, or (for
// privatized regions) as one sub-region per worker process.
package region

import (
	"fmt"

	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/page"
)

// Kind classifies what a region represents, independent of how its
// bytes happen to be stored.
type Kind int

const (
	KindUnknown Kind = iota
	KindData
	KindHeap
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindHeap:
		return "heap"
	default:
		return "unknown"
	}
}

// StorageKind is the tag of the Snapshot variant: which of Flat,
// Chunked, or Privatized fields are populated. Keeping this as an
// explicit tag (rather than overlapping fields behind an untagged
// union, or a raw pointer that might be any of the three) is
// deliberate: Go has no union type, and encoding the variant as
// separate pointer fields guarded by a tag is both safe and makes the
// zero value (NoData) meaningful.
type StorageKind int

const (
	NoData StorageKind = iota
	Flat
	Chunked
	Privatized
)

func (k StorageKind) String() string {
	switch k {
	case Flat:
		return "flat"
	case Chunked:
		return "chunked"
	case Privatized:
		return "privatized"
	default:
		return "nodata"
	}
}

// Snapshot is one captured RegionSnapshot. Exactly one of the
// storage-specific fields below is populated, selected by Storage.
type Snapshot struct {
	RegionKind Kind
	Storage    StorageKind

	StartAddress     addrspace.Address
	PermanentAddress addrspace.Address // differs from StartAddress only when Privatized
	SizeBytes        int64

	// Flat holds the region's bytes directly when Storage == Flat.
	Flat []byte

	// ChunkedPages holds one page.Store index per host page spanned
	// by the region when Storage == Chunked, in address order.
	ChunkedPages []int

	// Privatized holds one sub-Snapshot per worker process index when
	// Storage == Privatized. All share StartAddress; each carries its
	// own PermanentAddress (the live per-worker copy of the range).
	Privatized []*Snapshot

	// ObjectInfo optionally identifies the ELF image this region was
	// captured from. Consumers only; region itself never dereferences it.
	ObjectInfo *ObjectInformation
}

// ObjectInformation describes the ELF object a region or a DWARF
// address computation is relative to.
type ObjectInformation struct {
	Path         string
	BaseAddress  addrspace.Address
	Privatized   bool
}

// CaptureOptions controls how Capture chooses a storage strategy.
type CaptureOptions struct {
	// Sparse enables Chunked storage. When false, Capture always uses
	// Flat storage regardless of region size.
	Sparse bool
	// FlatThreshold is the largest region size, in bytes, for which
	// Capture prefers Flat even when Sparse is enabled (bookkeeping
	// overhead of per-page indices outweighs deduplication below it).
	FlatThreshold int64

	// Store is the page store Chunked capture/restore delegates to.
	// Required when Sparse is enabled.
	Store *page.Store

	// Parent, if non-nil, is the RegionSnapshot this region's contents
	// should be diffed against: for each page whose soft-dirty bit is
	// clear (per SoftDirty), Capture reuses the parent's page index
	// via RefPage instead of reading, hashing, and storing again.
	Parent *Snapshot
	// SoftDirty reports which of the pages covered by [addr, addr+n)
	// have been written since the last clear, indexed from addr. A
	// nil SoftDirty means "treat every page as dirty" (no parent reuse).
	SoftDirty func(addr addrspace.Address, n int) []bool
}

// Capture reads [start, start+size) from space and produces a RegionSnapshot
// per the construction policy: Flat unless opts.Sparse, Chunked when
// sparse and the region exceeds opts.FlatThreshold (with
// parent-snapshot page reuse for soft-dirty-clean pages), Privatized
// is built by CapturePrivatized, not by this function, since it needs
// a per-worker base-address list the generic capture path doesn't have.
func Capture(space addrspace.Space, kind Kind, start, permanent addrspace.Address, size int64, opts CaptureOptions) (*Snapshot, error) {
	if size == 0 {
		return &Snapshot{RegionKind: kind, Storage: NoData, StartAddress: start, PermanentAddress: permanent}, nil
	}

	useChunked := opts.Sparse && size > opts.FlatThreshold
	if useChunked {
		return captureChunked(space, kind, start, permanent, size, opts)
	}
	return captureFlat(space, kind, start, permanent, size)
}

func captureFlat(space addrspace.Space, kind Kind, start, permanent addrspace.Address, size int64) (*Snapshot, error) {
	buf := make([]byte, size)
	if err := space.ReadMemory(start, buf); err != nil {
		return nil, fmt.Errorf("region: flat capture of %s (%d bytes): %w", start, size, err)
	}
	return &Snapshot{
		RegionKind:       kind,
		Storage:          Flat,
		StartAddress:     start,
		PermanentAddress: permanent,
		SizeBytes:        size,
		Flat:             buf,
	}, nil
}

// captureChunked implements mc_page_snapshot.cpp's PerPageCopy: the
// region must be page-aligned at this level (the caller is
// responsible for ensuring that, per spec.md's precondition — a
// misaligned Chunked region is a programming error, not a runtime one).
func captureChunked(space addrspace.Space, kind Kind, start, permanent addrspace.Address, size int64, opts CaptureOptions) (*Snapshot, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("region: chunked capture requires a page.Store")
	}
	pageSize := int64(page.Size)
	if int64(start)%pageSize != 0 || int64(permanent)%pageSize != 0 {
		return nil, fmt.Errorf("region: chunked capture of %s is not page-aligned", start)
	}
	nPages := int((size + pageSize - 1) / pageSize)

	var dirty []bool
	if opts.SoftDirty != nil {
		dirty = opts.SoftDirty(start, nPages)
	}

	indices := make([]int, nPages)
	scratch := make([]byte, page.Size)
	for i := 0; i < nPages; i++ {
		addr := start.Add(int64(i) * pageSize)

		if opts.Parent != nil && i < len(opts.Parent.ChunkedPages) && dirty != nil && !dirty[i] {
			idx := opts.Parent.ChunkedPages[i]
			opts.Store.RefPage(idx)
			indices[i] = idx
			continue
		}

		n := page.Size
		if remaining := size - int64(i)*pageSize; remaining < int64(n) {
			n = int(remaining)
		}
		for j := range scratch {
			scratch[j] = 0
		}
		if err := space.ReadMemory(addr, scratch[:n]); err != nil {
			return nil, fmt.Errorf("region: chunked capture page %d of %s: %w", i, start, err)
		}
		idx, err := opts.Store.StorePage(scratch)
		if err != nil {
			return nil, fmt.Errorf("region: storing page %d of %s: %w", i, start, err)
		}
		indices[i] = idx
	}

	return &Snapshot{
		RegionKind:       kind,
		Storage:          Chunked,
		StartAddress:     start,
		PermanentAddress: permanent,
		SizeBytes:        size,
		ChunkedPages:     indices,
	}, nil
}

// CapturePrivatized builds one sub-Snapshot per entry of bases, each
// with its own PermanentAddress, all sharing StartAddress. capture is
// invoked once per worker, with its index, to capture that worker's
// private copy (typically captureFlat or captureChunked against the
// same space with a different permanent address); the index lets the
// caller pair each worker against the correspondingly-indexed
// sub-region of a Privatized parent, the same way Restore does.
func CapturePrivatized(kind Kind, start addrspace.Address, bases []addrspace.Address, size int64, capture func(workerIdx int, permanent addrspace.Address) (*Snapshot, error)) (*Snapshot, error) {
	sub := make([]*Snapshot, len(bases))
	for i, base := range bases {
		s, err := capture(i, base)
		if err != nil {
			return nil, fmt.Errorf("region: privatized capture for worker %d: %w", i, err)
		}
		sub[i] = s
	}
	return &Snapshot{
		RegionKind:   kind,
		Storage:      Privatized,
		StartAddress: start,
		SizeBytes:    size,
		Privatized:   sub,
	}, nil
}
