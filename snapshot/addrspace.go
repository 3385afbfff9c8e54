// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snapshot

import (
	"fmt"

	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/page"
	"golang.org/x/mcsnapshot/region"
)

// Space is an addrspace.Space backed by a Snapshot: a read at a given
// address first locates the owning region via a linear scan over the
// ordered region list (small, single digits, per spec), and falls
// through to the live process for anything the snapshot doesn't cover
// (e.g. read-only code segments that were never captured).
type Space struct {
	Snapshot  *Snapshot
	Store     *page.Store
	ProcIndex int
	Fallback  addrspace.Space
}

var _ addrspace.Space = (*Space)(nil)

func (s *Space) findRegion(addr addrspace.Address) *region.Snapshot {
	for _, rs := range s.Snapshot.Regions {
		if rs.Contains(uint64(addr)) {
			return rs
		}
	}
	return nil
}

func (s *Space) ReadMemory(addr addrspace.Address, out []byte) error {
	if rs := s.findRegion(addr); rs != nil {
		off := addr.Sub(rs.StartAddress)
		if err := rs.ReadAt(s.Store, off, out, s.ProcIndex); err != nil {
			return fmt.Errorf("snapshot: reading snapshot region at %s: %w", addr, err)
		}
		return nil
	}
	if s.Fallback == nil {
		return fmt.Errorf("snapshot: %s is not covered by any region and no fallback is set", addr)
	}
	return s.Fallback.ReadMemory(addr, out)
}

func (s *Space) ReadMemoryLazy(addr addrspace.Address, n int, opts addrspace.ReadOptions) ([]byte, error) {
	if rs := s.findRegion(addr); rs != nil {
		off := addr.Sub(rs.StartAddress)
		if opts.Lazy {
			return rs.ReadAtLazy(s.Store, off, int64(n), s.ProcIndex)
		}
		buf := make([]byte, n)
		if err := rs.ReadAt(s.Store, off, buf, s.ProcIndex); err != nil {
			return nil, err
		}
		return buf, nil
	}
	if s.Fallback == nil {
		return nil, fmt.Errorf("snapshot: %s is not covered by any region and no fallback is set", addr)
	}
	return s.Fallback.ReadMemoryLazy(addr, n, opts)
}

func (s *Space) Mappings() []*addrspace.Mapping {
	if s.Fallback != nil {
		return s.Fallback.Mappings()
	}
	return nil
}

func (s *Space) FindMapping(a addrspace.Address) *addrspace.Mapping {
	if s.Fallback != nil {
		return s.Fallback.FindMapping(a)
	}
	return nil
}

func (s *Space) PointerSize() int {
	if s.Fallback != nil {
		return s.Fallback.PointerSize()
	}
	return 8
}
