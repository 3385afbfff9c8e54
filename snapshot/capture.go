// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snapshot

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/region"
)

// writer is what ignored-region neutralization and restore need from
// the target: something to read and write raw bytes at an address.
type writer interface {
	ReadMemory(addr addrspace.Address, out []byte) error
	WriteMemory(addr addrspace.Address, data []byte) error
}

// Capture builds a Snapshot of t following the ten-step construction
// flow: enumerate live processes, neutralize ignored regions,
// optionally enumerate open files, capture data segments then the
// heap, arm soft-dirty tracking for the next capture, unwind stacks,
// record heap usage, hash, and restore ignored regions. The tenth
// step, publishing this snapshot as the new parent, is left to the
// caller (checkpoint.Engine).
func Capture(numState uint64, t *Target, w writer, ignored []*IgnoredRegion) (*Snapshot, error) {
	snap := &Snapshot{
		NumState:       numState,
		IgnoredRegions: ignored,
	}

	// 1. Enumerate current active processes.
	if t.LiveProcessIDs != nil {
		snap.LiveProcessIDs = t.LiveProcessIDs()
	}

	// 2. Save and zero ignored regions.
	if err := snap.neutralizeIgnoredRegions(w); err != nil {
		return nil, fmt.Errorf("snapshot: neutralizing ignored regions: %w", err)
	}

	// 3. Optionally enumerate open files.
	if t.OpenFiles != nil {
		files, err := t.OpenFiles()
		if err != nil {
			return nil, fmt.Errorf("snapshot: enumerating open files: %w", err)
		}
		snap.OpenFiles = files
	}

	// 4. Capture Data regions, then one Heap region. Each region is
	// paired against the same-index region of t.Parent (if any) for
	// soft-dirty page reuse — the same index-based pairing Restore
	// uses against the snapshot it restores onto.
	if t.DataSegments != nil {
		for _, seg := range t.DataSegments() {
			parent := regionParent(t.Parent, len(snap.Regions))
			rs, err := captureSegment(t, seg, parent)
			if err != nil {
				return nil, fmt.Errorf("snapshot: capturing data segment at %s: %w", seg.Start, err)
			}
			snap.Regions = append(snap.Regions, rs)
		}
	}
	var heapBase, heapBrk addrspace.Address
	var heapUsed uint64
	if t.HeapRange != nil {
		heapBase, heapBrk, heapUsed = t.HeapRange()
		opts := t.CaptureOptions
		opts.Parent = regionParent(t.Parent, len(snap.Regions))
		opts.SoftDirty = t.SoftDirty
		rs, err := region.Capture(t.Space, region.KindHeap, heapBase, heapBase, heapBrk.Sub(heapBase), opts)
		if err != nil {
			return nil, fmt.Errorf("snapshot: capturing heap: %w", err)
		}
		snap.Regions = append(snap.Regions, rs)
	}
	snap.HeapBytesUsed = heapUsed

	// 5. Arm soft-dirty for the next snapshot.
	softDirty := t.SoftDirtyActive != nil && t.SoftDirtyActive()
	if softDirty && t.ClearSoftDirty != nil {
		if err := t.ClearSoftDirty(); err != nil {
			return nil, fmt.Errorf("snapshot: clearing soft-dirty bitmap: %w", err)
		}
	}

	// 6. Unwind stacks and resolve locals.
	if t.Stacks != nil {
		snap.Stacks = t.Stacks()
	}

	// 7. heap_bytes_used already recorded above.

	// 8. Compute the rolling hash over canonicalized state (ignored
	// regions still zeroed at this point).
	snap.Hash = computeHash(snap)

	// 9. Restore ignored regions' original bytes.
	if err := snap.restoreIgnoredRegions(w); err != nil {
		return nil, fmt.Errorf("snapshot: restoring ignored regions: %w", err)
	}

	// 10. Soft-dirty parent publication is the caller's
	// responsibility (checkpoint.Engine), since only it tracks which
	// snapshot is "current parent".

	log.WithFields(logrus.Fields{
		"num_state":  numState,
		"regions":    len(snap.Regions),
		"heap_bytes": snap.HeapBytesUsed,
		"hash":       snap.Hash,
	}).Debug("captured snapshot")

	return snap, nil
}

// regionParent returns the region of parent at idx to pair against a
// region being captured at that same index, or nil if parent doesn't
// have one (no parent snapshot yet, or this is a region parent never
// captured, e.g. the target just grew a new data segment).
func regionParent(parent *Snapshot, idx int) *region.Snapshot {
	if parent == nil || idx >= len(parent.Regions) {
		return nil
	}
	return parent.Regions[idx]
}

func captureSegment(t *Target, seg DataSegment, parent *region.Snapshot) (*region.Snapshot, error) {
	if len(seg.PrivatizedBases) > 0 {
		rs, err := region.CapturePrivatized(region.KindData, seg.Start, seg.PrivatizedBases, seg.Size, func(workerIdx int, permanent addrspace.Address) (*region.Snapshot, error) {
			opts := t.CaptureOptions
			opts.Parent = privatizedParent(parent, workerIdx)
			opts.SoftDirty = t.SoftDirty
			return region.Capture(t.Space, region.KindData, seg.Start, permanent, seg.Size, opts)
		})
		if err != nil {
			return nil, err
		}
		rs.ObjectInfo = seg.ObjectInfo
		return rs, nil
	}
	opts := t.CaptureOptions
	opts.Parent = parent
	opts.SoftDirty = t.SoftDirty
	rs, err := region.Capture(t.Space, region.KindData, seg.Start, seg.Permanent, seg.Size, opts)
	if err != nil {
		return nil, err
	}
	rs.ObjectInfo = seg.ObjectInfo
	return rs, nil
}

// privatizedParent returns the worker-indexed sub-region of a
// Privatized parent region to pair against, mirroring
// region.Snapshot.Restore's per-worker Privatized pairing.
func privatizedParent(parent *region.Snapshot, workerIdx int) *region.Snapshot {
	if parent == nil || parent.Storage != region.Privatized || workerIdx >= len(parent.Privatized) {
		return nil
	}
	return parent.Privatized[workerIdx]
}

// neutralizeIgnoredRegions saves each ignored region's live bytes and
// zeroes them, so volatile data never poisons Hash or a later
// structural comparison.
func (s *Snapshot) neutralizeIgnoredRegions(w writer) error {
	s.ignoredData = make([][]byte, len(s.IgnoredRegions))
	zero := make([]byte, 0)
	for i, r := range s.IgnoredRegions {
		buf := make([]byte, r.Size)
		if err := w.ReadMemory(r.Address, buf); err != nil {
			return fmt.Errorf("reading ignored region %d at %s: %w", i, r.Address, err)
		}
		s.ignoredData[i] = buf
		if len(zero) < r.Size {
			zero = make([]byte, r.Size)
		}
		if err := w.WriteMemory(r.Address, zero[:r.Size]); err != nil {
			return fmt.Errorf("zeroing ignored region %d at %s: %w", i, r.Address, err)
		}
	}
	return nil
}

// restoreIgnoredRegions writes each ignored region's saved bytes back.
func (s *Snapshot) restoreIgnoredRegions(w writer) error {
	for i, r := range s.IgnoredRegions {
		if err := w.WriteMemory(r.Address, s.ignoredData[i]); err != nil {
			return fmt.Errorf("restoring ignored region %d at %s: %w", i, r.Address, err)
		}
	}
	return nil
}
