// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package checkpoint coordinates Snapshot capture and restore: it owns
// the page store, tracks the current parent snapshot for soft-dirty
// reuse, and separates "important" snapshots (currently: the parent)
// from the exploration algorithm's own reference counting.
package checkpoint

import (
	"fmt"
	"os"

	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/page"
)

// clearRefsResetSoftDirty is the control word clear_refs(5) expects to
// reset only the soft-dirty bit, leaving other accounting untouched.
const clearRefsResetSoftDirty = "4"

// softDirtyBit is bit 55 of a /proc/<pid>/pagemap entry.
const softDirtyBit = uint64(1) << 55

// SoftDirty reports, per page, whether it has been written since the
// bitmap was last cleared. NoSoftDirty returns an implementation that
// always reports everything dirty: the portability fallback for
// kernels or platforms that don't expose /proc/<pid>/pagemap.
type SoftDirty interface {
	// Dirty returns one bool per page covering [addr, addr+n*pagesize).
	Dirty(addr addrspace.Address, n int) ([]bool, error)
	// Clear resets the soft-dirty bitmap so that a subsequent Dirty
	// call reports only writes since now.
	Clear() error
}

// procSoftDirty implements SoftDirty against a live process's
// /proc/<pid>/pagemap and /proc/<pid>/clear_refs.
type procSoftDirty struct {
	pid int
}

// NewProcSoftDirty returns the Linux procfs-backed SoftDirty
// implementation for pid.
func NewProcSoftDirty(pid int) SoftDirty {
	return &procSoftDirty{pid: pid}
}

func (p *procSoftDirty) Clear() error {
	path := fmt.Sprintf("/proc/%d/clear_refs", p.pid)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("checkpoint: opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(clearRefsResetSoftDirty); err != nil {
		return fmt.Errorf("checkpoint: writing %s: %w", path, err)
	}
	return nil
}

func (p *procSoftDirty) Dirty(addr addrspace.Address, n int) ([]bool, error) {
	path := fmt.Sprintf("/proc/%d/pagemap", p.pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: opening %s: %w", path, err)
	}
	defer f.Close()

	const entrySize = 8
	pageIndex := int64(addr) / int64(page.Size)
	buf := make([]byte, n*entrySize)
	if _, err := f.ReadAt(buf, pageIndex*entrySize); err != nil {
		return nil, fmt.Errorf("checkpoint: reading %s at page %d: %w", path, pageIndex, err)
	}

	dirty := make([]bool, n)
	for i := 0; i < n; i++ {
		entry := le64(buf[i*entrySize:])
		dirty[i] = entry&softDirtyBit != 0
	}
	return dirty, nil
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// noopSoftDirty always reports every page dirty: the degradation path
// for targets where /proc/<pid>/pagemap soft-dirty tracking is
// unavailable (older kernels, non-Linux hosts, or containers that
// restrict pagemap access). Capture falls back to reading, hashing,
// and storing every page on every snapshot, which is correct, just
// without the soft-dirty speedup.
type noopSoftDirty struct{}

// NoSoftDirty returns a SoftDirty that reports every page dirty.
func NoSoftDirty() SoftDirty { return noopSoftDirty{} }

func (noopSoftDirty) Clear() error { return nil }

func (noopSoftDirty) Dirty(addr addrspace.Address, n int) ([]bool, error) {
	dirty := make([]bool, n)
	for i := range dirty {
		dirty[i] = true
	}
	return dirty, nil
}
