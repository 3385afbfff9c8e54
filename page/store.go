// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package page implements a deduplicated, reference-counted store of
// fixed-size memory pages, addressed by stable integer index rather
// than by pointer so that the backing arena can grow without
// invalidating outstanding references.
package page

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrDoubleFree is returned by UnrefPage when it would drive a page's
// refcount below zero (a programming error per the model checker's
// error taxonomy, not a recoverable one).
var ErrDoubleFree = errors.New("page: unref of a page with zero refcount")

// Size is the host page size in bytes. It is read once at init time;
// every Page is exactly Size bytes.
var Size = func() int {
	if n := unix.Getpagesize(); n > 0 {
		return n
	}
	return 4096
}()

// Store is a growable, content-addressed arena of immutable pages.
// The zero value is not usable; use NewStore.
//
// A Store is safe for concurrent use: all mutations are serialized by
// a single mutex, matching the single-threaded-cooperative model
// described for the checkpoint engine (concurrent captures of
// different regions may still call StorePage concurrently without
// corrupting the arena).
type Store struct {
	mu sync.Mutex

	arena [][]byte // arena[i] is the page at index i; never nil once allocated
	refs  []uint64 // refs[i] is the refcount of arena[i]; 0 means free

	topIndex int     // number of slots ever handed out from the top
	free     []int   // free list: indices < topIndex with refcount 0
	byHash   map[uint64][]int // hash -> candidate indices with that hash
}

// NewStore creates an empty page store with room for capacity pages
// before its first growth.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		arena:  make([][]byte, capacity),
		refs:   make([]uint64, capacity),
		byHash: make(map[uint64][]int),
	}
}

// hashPage computes djb2 over the page, interpreted as 64-bit words,
// exactly as the page store's reference implementation does it: a
// cheap, non-cryptographic hash whose collisions are always resolved
// by a follow-up byte compare in StorePage.
func hashPage(data []byte) uint64 {
	var hash uint64 = 5381
	n := len(data) / 8
	for i := 0; i < n; i++ {
		v := uint64(data[i*8]) | uint64(data[i*8+1])<<8 | uint64(data[i*8+2])<<16 |
			uint64(data[i*8+3])<<24 | uint64(data[i*8+4])<<32 | uint64(data[i*8+5])<<40 |
			uint64(data[i*8+6])<<48 | uint64(data[i*8+7])<<56
		hash = (hash<<5 + hash) + v
	}
	return hash
}

// StorePage stores data (which must be exactly Size bytes) in the
// page store and returns its index. If a byte-identical page is
// already present, its refcount is incremented and its existing
// index is returned; otherwise a new slot is allocated, data is
// copied into it, and its refcount is set to 1.
func (s *Store) StorePage(data []byte) (int, error) {
	if len(data) != Size {
		return 0, fmt.Errorf("page: StorePage given %d bytes, want %d", len(data), Size)
	}
	h := hashPage(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, idx := range s.byHash[h] {
		if bytes.Equal(s.arena[idx], data) {
			s.refs[idx]++
			return idx, nil
		}
	}

	idx := s.allocPage()
	if s.refs[idx] != 0 {
		return 0, fmt.Errorf("page: allocated page %d is already in use", idx)
	}
	buf := make([]byte, Size)
	copy(buf, data)
	s.arena[idx] = buf
	s.refs[idx] = 1
	s.byHash[h] = append(s.byHash[h], idx)
	return idx, nil
}

// allocPage returns a free slot, reusing one from the free list when
// possible and otherwise growing the arena (doubling it) before
// handing out the next unused index. Callers must hold s.mu.
func (s *Store) allocPage() int {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		return idx
	}
	if s.topIndex == len(s.arena) {
		s.grow(2 * len(s.arena))
	}
	idx := s.topIndex
	s.topIndex++
	return idx
}

// grow expands the arena to newCap slots. Callers must hold s.mu.
// Growth never relocates existing page contents in a way visible to
// callers: all external references are indices, resolved to slices
// only at use time via GetPage, so the reallocation here (which would
// be an OS mremap in a language with manual memory management) is
// invisible to the rest of the system.
func (s *Store) grow(newCap int) {
	if newCap <= len(s.arena) {
		newCap = len(s.arena) + 1
	}
	arena := make([][]byte, newCap)
	refs := make([]uint64, newCap)
	copy(arena, s.arena)
	copy(refs, s.refs)
	s.arena = arena
	s.refs = refs
}

// RefPage increments the refcount of the page at idx. It is used when
// a page is known by the caller to be byte-identical to one already
// stored (the soft-dirty fast path: skip the read, hash, and compare
// entirely).
func (s *Store) RefPage(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[idx]++
}

// UnrefPage decrements the refcount of the page at idx. If the
// refcount reaches zero, the slot is reclaimed: pushed onto the free
// list and removed from its hash bucket.
func (s *Store) UnrefPage(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs[idx] == 0 {
		return ErrDoubleFree
	}
	s.refs[idx]--
	if s.refs[idx] == 0 {
		s.removePage(idx)
	}
	return nil
}

// removePage reclaims idx: appends it to the free list and drops it
// from its hash bucket. Callers must hold s.mu and must have already
// verified the refcount is zero.
func (s *Store) removePage(idx int) {
	s.free = append(s.free, idx)
	h := hashPage(s.arena[idx])
	bucket := s.byHash[h]
	for i, v := range bucket {
		if v == idx {
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			break
		}
	}
	if len(bucket) == 0 {
		delete(s.byHash, h)
	} else {
		s.byHash[h] = bucket
	}
}

// GetPage returns the contents of the page at idx. The caller must
// treat the returned slice as immutable: mutating it would corrupt
// every snapshot sharing that page. Callers must resolve the index to
// a slice at each use rather than caching the slice across calls that
// might grow the store.
func (s *Store) GetPage(idx int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena[idx]
}

// GetRef returns the current refcount of the page at idx.
func (s *Store) GetRef(idx int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[idx]
}

// Size returns the number of pages currently in use (refcount > 0).
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topIndex - len(s.free)
}

// Capacity returns the number of page slots currently reserved in the
// arena, whether or not they are in use.
func (s *Store) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.arena)
}
