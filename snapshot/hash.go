// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snapshot

import "golang.org/x/mcsnapshot/region"

// mix folds value into hash with the same djb2 recurrence PageStore
// uses for page content (hash = ((hash<<5)+hash) + value): a cheap,
// non-cryptographic accumulation, adequate for a not-equal filter
// that is always followed by an explicit structural comparison before
// two states are treated as identical.
func mix(hash, value uint64) uint64 {
	return (hash<<5 + hash) + value
}

// computeHash is a cheap inequality filter over the parts of a
// Snapshot most likely to differ between otherwise-similar states:
// the live process count; per region, its storage kind and its
// content (Flat bytes, Chunked page-store indices, which already
// encode the content by construction, or the Privatized sub-regions);
// the heap bytes in use; and each stack's thread id and frame IPs. It
// is deliberately not cryptographic: equal hashes do not prove equal
// states, and the structural comparison is heapdiff.Comparator's job.
func computeHash(s *Snapshot) uint64 {
	var h uint64 = 5381
	h = mix(h, uint64(len(s.LiveProcessIDs)))
	for _, rs := range s.Regions {
		h = hashRegion(h, rs)
	}
	h = mix(h, s.HeapBytesUsed)
	h = mix(h, uint64(len(s.Stacks)))
	for _, st := range s.Stacks {
		h = mix(h, uint64(st.ThreadID))
		for _, f := range st.Frames {
			h = mix(h, uint64(f.IP))
		}
	}
	return h
}

func hashRegion(h uint64, rs *region.Snapshot) uint64 {
	h = mix(h, uint64(rs.Storage))
	switch rs.Storage {
	case region.Flat:
		for _, b := range rs.Flat {
			h = mix(h, uint64(b))
		}
	case region.Chunked:
		for _, idx := range rs.ChunkedPages {
			h = mix(h, uint64(idx))
		}
	case region.Privatized:
		for _, sub := range rs.Privatized {
			h = hashRegion(h, sub)
		}
	}
	return h
}
