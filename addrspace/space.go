// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package addrspace

import (
	"fmt"

	"golang.org/x/mcsnapshot/page"
)

func pageSizeHint() int {
	return page.Size
}

func errMisaligned(m *Mapping) error {
	return fmt.Errorf("addrspace: mapping %s is not page-aligned", m)
}

// ReadOptions controls how Space.ReadMemory behaves.
type ReadOptions struct {
	// Lazy allows the implementation to return a slice that aliases
	// shared, copy-on-write backing storage (a PageStore page, or a
	// privatized region's shared template) instead of a private copy.
	// Callers that might mutate the result, or that need it to outlive
	// a subsequent Restore, must pass Lazy: false.
	Lazy bool
}

// Space is the common read surface over a target's memory, whether
// the target is a live, ptraced process or a previously captured
// Snapshot. DWARF expression evaluation, heap comparison, and region
// capture are all written against Space so they work identically
// against either kind of target.
type Space interface {
	// ReadMemory reads len(out) bytes starting at addr into out.
	ReadMemory(addr Address, out []byte) error

	// ReadMemoryLazy behaves like ReadMemory but, per opts.Lazy, may
	// return a slice aliasing shared storage rather than copying into
	// a caller-supplied buffer. It is the primitive snapshot.Capture
	// uses to avoid a copy when it is only hashing or re-storing the
	// bytes it reads.
	ReadMemoryLazy(addr Address, n int, opts ReadOptions) ([]byte, error)

	// Mappings returns every Mapping currently known for this Space,
	// sorted by Min.
	Mappings() []*Mapping

	// FindMapping returns the Mapping containing a, or nil if a is
	// not mapped.
	FindMapping(a Address) *Mapping

	// PointerSize is the width, in bytes, of a pointer in this
	// target's address space (4 or 8).
	PointerSize() int
}
