// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snapshot

import (
	"bytes"
	"testing"

	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/region"
)

type memTarget struct {
	data []byte
}

func (m *memTarget) ReadMemory(addr addrspace.Address, out []byte) error {
	copy(out, m.data[int(addr):])
	return nil
}
func (m *memTarget) WriteMemory(addr addrspace.Address, data []byte) error {
	copy(m.data[int(addr):], data)
	return nil
}

func TestNeutralizeAndRestoreIgnoredRegions(t *testing.T) {
	mem := &memTarget{data: bytes.Repeat([]byte{0x42}, 16)}
	snap := &Snapshot{IgnoredRegions: []*IgnoredRegion{{Address: 4, Size: 4}}}

	if err := snap.neutralizeIgnoredRegions(mem); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(mem.data[4:8], []byte{0, 0, 0, 0}) {
		t.Fatalf("ignored region was not zeroed: %x", mem.data[4:8])
	}
	if !bytes.Equal(snap.ignoredData[0], []byte{0x42, 0x42, 0x42, 0x42}) {
		t.Fatalf("saved ignored data wrong: %x", snap.ignoredData[0])
	}

	if err := snap.restoreIgnoredRegions(mem); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(mem.data, bytes.Repeat([]byte{0x42}, 16)) {
		t.Fatalf("ignored region not restored: %x", mem.data)
	}
}

func TestHashIsDeterministicAndContentSensitive(t *testing.T) {
	base := &Snapshot{
		LiveProcessIDs: []int{1},
		Regions: []*region.Snapshot{
			{Storage: region.Chunked, ChunkedPages: []int{1, 2, 3}},
		},
		HeapBytesUsed: 1024,
	}
	h1 := computeHash(base)
	h2 := computeHash(base)
	if h1 != h2 {
		t.Fatalf("hash is not deterministic: %x vs %x", h1, h2)
	}

	changed := &Snapshot{
		LiveProcessIDs: []int{1},
		Regions: []*region.Snapshot{
			{Storage: region.Chunked, ChunkedPages: []int{1, 2, 4}},
		},
		HeapBytesUsed: 1024,
	}
	if computeHash(changed) == h1 {
		t.Fatalf("hash did not change when page indices changed")
	}
}

func TestShouldSkipFD(t *testing.T) {
	cases := []struct {
		target, dir string
		want        bool
	}{
		{"pipe:[12345]", "/proc/1/fd", true},
		{"socket:[6789]", "/proc/1/fd", true},
		{"/dev/shm/ust-shm-tmp-abcdef", "/proc/1/fd", true},
		{"/proc/1/fd", "/proc/1/fd", true},
		{"/home/user/data.txt", "/proc/1/fd", false},
	}
	for _, c := range cases {
		if got := shouldSkipFD(c.target, c.dir); got != c.want {
			t.Errorf("shouldSkipFD(%q, %q) = %v, want %v", c.target, c.dir, got, c.want)
		}
	}
}
