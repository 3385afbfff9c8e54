// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package snapshot assembles RegionSnapshots, thread stack state, and
// auxiliary bookkeeping (ignored regions, open files, a cheap hash)
// into one Snapshot, and restores a Snapshot back into a live target.
//
// Process control — attaching, stopping, resuming the target, and
// deciding which thread stacks are "interesting" — belongs to the
// surrounding model checker, not to this package. Capture and Restore
// take a Target that exposes exactly what this package needs from
// that layer.
package snapshot

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/region"
)

// IgnoredRegion is a [Address, Address+Size) range whose content is
// volatile (a counter, a timestamp) and must be excluded from hashing
// and restoration: its live bytes are saved, zeroed before capture,
// and restored immediately after, so two otherwise-identical states
// hash and compare equal regardless of the volatile value.
type IgnoredRegion struct {
	Address addrspace.Address
	Size    int
}

// OpenFileDescription records one entry of the target's open file
// table at capture time, excluding pipes, sockets, and privatization
// files (see shouldSkipFD).
type OpenFileDescription struct {
	FD     int
	Path   string
	Flags  int
	Offset int64
}

// Frame is one resolved stack frame: the data snapshot.Capture needs
// from the unwinder and the member resolver, independent of how the
// caller represents either.
type Frame struct {
	IP, SP, FrameBase addrspace.Address
	Locals            map[string]addrspace.Address
}

// StackSnapshot is one thread's unwound call stack at capture time.
type StackSnapshot struct {
	ThreadID int
	Frames   []Frame
}

// Snapshot is a captured image of a target's memory and a minimal
// slice of its execution state, sufficient to restore the target to
// the point it was captured at.
type Snapshot struct {
	NumState uint64

	// Regions holds Data-kind regions first, in discovery order, then
	// one Heap-kind region last when Target.HeapRange is set.
	Regions []*region.Snapshot

	LiveProcessIDs     []int
	PrivatizationIndex int

	Stacks []*StackSnapshot

	IgnoredRegions []*IgnoredRegion
	ignoredData    [][]byte // saved bytes, parallel to IgnoredRegions

	OpenFiles []*OpenFileDescription

	HeapBytesUsed uint64
	Hash          uint64
}

// Target is the process-control surface Capture and Restore need.
// The model checker's own ptrace/scheduling layer implements it;
// this package never attaches to, stops, or resumes a process itself.
type Target struct {
	Space addrspace.Space

	// LiveProcessIDs returns the ids of every process currently part
	// of the target (more than one only when the target privatizes
	// per worker, e.g. an MPI-style rank array).
	LiveProcessIDs func() []int

	// DataSegments returns the writable data regions to capture as
	// Data-kind RegionSnapshots, in the order they should appear.
	DataSegments func() []DataSegment

	// HeapRange returns the allocator's current [base, breakval) and
	// its current bytes-in-use bookkeeping.
	HeapRange func() (base, brk addrspace.Address, bytesUsed uint64)

	// Stacks returns the unwound frames of every thread the checker
	// considers interesting.
	Stacks func() []*StackSnapshot

	// SoftDirtyActive reports whether soft-dirty page tracking is
	// currently enabled for this target.
	SoftDirtyActive func() bool
	// ClearSoftDirty resets the kernel's soft-dirty bitmap for the
	// target; called after capture when SoftDirtyActive is true, so
	// the next capture's dirty query reflects only writes since now.
	ClearSoftDirty func() error
	// SoftDirty reports which pages in [addr, addr+n*pagesize) have
	// been written since the last ClearSoftDirty.
	SoftDirty func(addr addrspace.Address, n int) []bool

	// OpenFiles enumerates the target's open file descriptors.
	OpenFiles func() ([]*OpenFileDescription, error)

	// CaptureOptions configures region.Capture for this target (sparse
	// checkpointing, the page store, flat threshold). Its Parent field
	// is ignored: Capture pairs each region against the matching region
	// of Parent below by index, the same way Restore pairs by index
	// against the snapshot it is restoring onto.
	CaptureOptions region.CaptureOptions

	// Parent, if non-nil, is the previous Snapshot of this same target:
	// soft-dirty-clean pages of each region are reused from the
	// correspondingly-indexed region of Parent instead of being read,
	// hashed, and stored again. Regions are paired by position (data
	// segments in declared order, then the heap), exactly as Restore
	// pairs snap.Regions against parent.Regions.
	Parent *Snapshot
}

// DataSegment is one writable ELF-object data segment to capture.
type DataSegment struct {
	Start, Permanent addrspace.Address
	Size             int64
	ObjectInfo       *region.ObjectInformation
	// PrivatizedBases, when non-empty, makes this a Privatized region:
	// one per-worker permanent address sharing Start.
	PrivatizedBases []addrspace.Address
}

var log = logrus.WithField("component", "snapshot")
