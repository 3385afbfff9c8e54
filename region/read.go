// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import (
	"fmt"

	"golang.org/x/mcsnapshot/page"
)

// Contains reports whether addr falls within this region.
func (s *Snapshot) Contains(addr uint64) bool {
	start := uint64(s.StartAddress)
	return addr >= start && addr < start+uint64(s.SizeBytes)
}

// ReadAt reads len(out) bytes starting offset bytes into the region.
// Chunked reads split the offset into (pageIndex, pageOffset) and
// concatenate across pages as needed; Privatized reads resolve
// through the sub-region at procIndex.
func (s *Snapshot) ReadAt(store *page.Store, offset int64, out []byte, procIndex int) error {
	switch s.Storage {
	case NoData:
		return fmt.Errorf("region: read from a NoData region")
	case Flat:
		return readFlat(s.Flat, offset, out)
	case Chunked:
		return readChunked(store, s.ChunkedPages, offset, out)
	case Privatized:
		if procIndex < 0 || procIndex >= len(s.Privatized) {
			return fmt.Errorf("region: privatization index %d out of range [0,%d)", procIndex, len(s.Privatized))
		}
		return s.Privatized[procIndex].ReadAt(store, offset, out, procIndex)
	default:
		return fmt.Errorf("region: unknown storage kind %d", s.Storage)
	}
}

func readFlat(buf []byte, offset int64, out []byte) error {
	if offset < 0 || offset+int64(len(out)) > int64(len(buf)) {
		return fmt.Errorf("region: flat read [%d,%d) out of bounds (len %d)", offset, offset+int64(len(out)), len(buf))
	}
	copy(out, buf[offset:])
	return nil
}

func readChunked(store *page.Store, indices []int, offset int64, out []byte) error {
	pageSize := int64(page.Size)
	if offset < 0 || offset+int64(len(out)) > int64(len(indices))*pageSize {
		return fmt.Errorf("region: chunked read [%d,%d) out of bounds", offset, offset+int64(len(out)))
	}
	remaining := out
	pos := offset
	for len(remaining) > 0 {
		pageIdx := int(pos / pageSize)
		pageOff := pos % pageSize
		src := store.GetPage(indices[pageIdx])
		n := int64(len(src)) - pageOff
		if n > int64(len(remaining)) {
			n = int64(len(remaining))
		}
		copy(remaining[:n], src[pageOff:pageOff+n])
		remaining = remaining[n:]
		pos += n
	}
	return nil
}

// ReadAtLazy behaves like ReadAt, but for a single-page Chunked read
// that falls entirely within one page, it returns a slice aliasing
// the page store directly rather than copying — the "zero-copy
// pointer into the page store" read mode.
func (s *Snapshot) ReadAtLazy(store *page.Store, offset int64, n int64, procIndex int) ([]byte, error) {
	if s.Storage == Chunked {
		pageSize := int64(page.Size)
		pageIdx := int(offset / pageSize)
		pageOff := offset % pageSize
		if pageOff+n <= pageSize && pageIdx < len(s.ChunkedPages) {
			return store.GetPage(s.ChunkedPages[pageIdx])[pageOff : pageOff+n], nil
		}
	}
	if s.Storage == Flat {
		if offset >= 0 && offset+n <= int64(len(s.Flat)) {
			return s.Flat[offset : offset+n], nil
		}
	}
	buf := make([]byte, n)
	if err := s.ReadAt(store, offset, buf, procIndex); err != nil {
		return nil, err
	}
	return buf, nil
}
