// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import (
	"fmt"

	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/page"
)

// Writer is the subset of addrspace.Space a Restore needs: a target
// that can be written to. addrspace.LiveProcess satisfies it.
type Writer interface {
	WriteMemory(addr addrspace.Address, data []byte) error
}

// RestoreOptions controls page-granular skip-unchanged behavior.
type RestoreOptions struct {
	Store *page.Store
	// Parent, if non-nil, is compared page-by-page against a Chunked
	// region: when the parent's page index at a given slot equals
	// this region's, the write is skipped (the live page must already
	// hold that content, since it was restored or never touched since
	// the parent was captured).
	Parent *Snapshot
}

// Restore writes this region's content back to PermanentAddress in w.
// Privatized regions restore every sub-region in order, each to its
// own PermanentAddress.
func (s *Snapshot) Restore(w Writer, opts RestoreOptions) error {
	switch s.Storage {
	case NoData:
		return nil
	case Flat:
		if err := w.WriteMemory(s.PermanentAddress, s.Flat); err != nil {
			return fmt.Errorf("region: restoring flat region at %s: %w", s.PermanentAddress, err)
		}
		return nil
	case Chunked:
		return s.restoreChunked(w, opts)
	case Privatized:
		for i, sub := range s.Privatized {
			subOpts := opts
			if opts.Parent != nil && i < len(opts.Parent.Privatized) {
				subOpts.Parent = opts.Parent.Privatized[i]
			} else {
				subOpts.Parent = nil
			}
			if err := sub.Restore(w, subOpts); err != nil {
				return fmt.Errorf("region: restoring privatized worker %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("region: unknown storage kind %d", s.Storage)
	}
}

func (s *Snapshot) restoreChunked(w Writer, opts RestoreOptions) error {
	if opts.Store == nil {
		return fmt.Errorf("region: chunked restore requires a page.Store")
	}
	pageSize := int64(page.Size)
	for i, idx := range s.ChunkedPages {
		if opts.Parent != nil && i < len(opts.Parent.ChunkedPages) && opts.Parent.ChunkedPages[i] == idx {
			continue
		}
		addr := s.PermanentAddress.Add(int64(i) * pageSize)
		n := pageSize
		if remaining := s.SizeBytes - int64(i)*pageSize; remaining < n {
			n = remaining
		}
		if err := w.WriteMemory(addr, opts.Store.GetPage(idx)[:n]); err != nil {
			return fmt.Errorf("region: restoring page %d at %s: %w", i, addr, err)
		}
	}
	return nil
}

// Release unrefs every page-store index this region (or, recursively,
// its Privatized sub-regions) owns. Callers must invoke this exactly
// once when a Snapshot becomes unreachable, mirroring PageStore's
// refcount-conservation invariant.
func (s *Snapshot) Release(store *page.Store) error {
	switch s.Storage {
	case Chunked:
		for _, idx := range s.ChunkedPages {
			if err := store.UnrefPage(idx); err != nil {
				return fmt.Errorf("region: releasing page %d: %w", idx, err)
			}
		}
	case Privatized:
		for _, sub := range s.Privatized {
			if err := sub.Release(store); err != nil {
				return err
			}
		}
	}
	return nil
}
