// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snapshot

import (
	"fmt"

	"golang.org/x/mcsnapshot/region"
)

// Restorer is what Restore needs beyond the generic writer: the
// ability to re-switch privatization, reopen/dup2 file descriptors,
// and invalidate any cached AddressSpace reads. The model checker's
// process-control layer implements it.
type Restorer interface {
	writer
	SetPrivatizationIndex(idx int) error
	RestoreOpenFiles(files []*OpenFileDescription) error
	InvalidateReadCache()
}

// Restore writes every region back to its permanent address (in
// declared order, skipping soft-clean pages when a parent is given),
// re-switches privatization, reopens file descriptors, restores
// ignored regions, and invalidates any cached reads. File-descriptor
// state is restored last, per the ordering guarantee that a capture's
// regions are restored in the same order they were produced and fd
// state always follows.
func Restore(snap *Snapshot, r Restorer, opts region.RestoreOptions, parent *Snapshot) error {
	for i, rs := range snap.Regions {
		ropts := opts
		if parent != nil && i < len(parent.Regions) {
			ropts.Parent = parent.Regions[i]
		} else {
			ropts.Parent = nil
		}
		if err := rs.Restore(r, ropts); err != nil {
			return fmt.Errorf("snapshot: restoring region %d: %w", i, err)
		}
	}

	if err := r.SetPrivatizationIndex(snap.PrivatizationIndex); err != nil {
		return fmt.Errorf("snapshot: setting privatization index: %w", err)
	}

	if err := snap.restoreIgnoredRegions(r); err != nil {
		return fmt.Errorf("snapshot: restoring ignored regions: %w", err)
	}

	if err := r.RestoreOpenFiles(snap.OpenFiles); err != nil {
		return fmt.Errorf("snapshot: restoring open files: %w", err)
	}

	r.InvalidateReadCache()
	return nil
}
