// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import (
	"bytes"
	"testing"

	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/page"
)

// fakeSpace is an in-memory addrspace.Space backed by a flat byte
// slice, used so region tests never need a real process.
type fakeSpace struct {
	base addrspace.Address
	data []byte
}

func (f *fakeSpace) ReadMemory(addr addrspace.Address, out []byte) error {
	off := int64(addr - f.base)
	copy(out, f.data[off:])
	return nil
}
func (f *fakeSpace) ReadMemoryLazy(addr addrspace.Address, n int, opts addrspace.ReadOptions) ([]byte, error) {
	buf := make([]byte, n)
	if err := f.ReadMemory(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
func (f *fakeSpace) WriteMemory(addr addrspace.Address, data []byte) error {
	off := int64(addr - f.base)
	copy(f.data[off:], data)
	return nil
}
func (f *fakeSpace) Mappings() []*addrspace.Mapping                { return nil }
func (f *fakeSpace) FindMapping(a addrspace.Address) *addrspace.Mapping { return nil }
func (f *fakeSpace) PointerSize() int                              { return 8 }

func TestCaptureFlatRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 100)
	sp := &fakeSpace{base: 0x1000, data: data}

	snap, err := Capture(sp, KindData, 0x1000, 0x1000, 100, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Storage != Flat {
		t.Fatalf("Storage = %v, want Flat", snap.Storage)
	}

	out := make([]byte, 100)
	if err := snap.ReadAt(nil, 0, out, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("round-tripped content mismatch")
	}
}

func TestCaptureChunkedDedupesAcrossPages(t *testing.T) {
	data := make([]byte, page.Size*3)
	for i := page.Size; i < 2*page.Size; i++ {
		data[i] = 0xCD // page 1 differs from pages 0 and 2
	}
	sp := &fakeSpace{base: 0, data: data}
	store := page.NewStore(4)

	snap, err := Capture(sp, KindHeap, 0, 0, int64(len(data)), CaptureOptions{
		Sparse:        true,
		FlatThreshold: 0,
		Store:         store,
	})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Storage != Chunked {
		t.Fatalf("Storage = %v, want Chunked", snap.Storage)
	}
	if len(snap.ChunkedPages) != 3 {
		t.Fatalf("got %d chunked pages, want 3", len(snap.ChunkedPages))
	}
	if snap.ChunkedPages[0] != snap.ChunkedPages[2] {
		t.Fatalf("identical pages 0 and 2 were not deduplicated")
	}
	if snap.ChunkedPages[0] == snap.ChunkedPages[1] {
		t.Fatalf("distinct pages 0 and 1 aliased the same index")
	}
	if store.Size() != 2 {
		t.Fatalf("store.Size() = %d, want 2", store.Size())
	}

	out := make([]byte, len(data))
	if err := snap.ReadAt(store, 0, out, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("chunked round-trip content mismatch")
	}
}

func TestCaptureChunkedReusesParentOnSoftClean(t *testing.T) {
	store := page.NewStore(4)
	data := bytes.Repeat([]byte{1}, page.Size*2)
	sp := &fakeSpace{base: 0, data: data}

	parent, err := Capture(sp, KindHeap, 0, 0, int64(len(data)), CaptureOptions{
		Sparse: true, Store: store,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Mutate only page 1 in the live target, and report page 0 clean.
	data[page.Size] = 0xFF
	dirty := func(addr addrspace.Address, n int) []bool {
		return []bool{false, true}
	}

	child, err := Capture(sp, KindHeap, 0, 0, int64(len(data)), CaptureOptions{
		Sparse: true, Store: store, Parent: parent, SoftDirty: dirty,
	})
	if err != nil {
		t.Fatal(err)
	}
	if child.ChunkedPages[0] != parent.ChunkedPages[0] {
		t.Fatalf("clean page did not reuse parent's index")
	}
	if child.ChunkedPages[1] == parent.ChunkedPages[1] {
		t.Fatalf("dirty page incorrectly reused parent's index")
	}
	// The parent's two identical pages share one index (2 refs); the
	// child's reuse of page 0 adds a third.
	if got := store.GetRef(parent.ChunkedPages[0]); got != 3 {
		t.Fatalf("reused page refcount = %d, want 3", got)
	}
}

func TestRestoreSkipsUnchangedChunkedPages(t *testing.T) {
	store := page.NewStore(4)
	data := bytes.Repeat([]byte{1}, page.Size*2)
	sp := &fakeSpace{base: 0, data: append([]byte(nil), data...)}

	parent, err := Capture(sp, KindHeap, 0, 0, int64(len(data)), CaptureOptions{Sparse: true, Store: store})
	if err != nil {
		t.Fatal(err)
	}

	// Record, per page, whether Restore writes it.
	written := make([]bool, 2)
	rec := &recordingWriter{sp: sp, pageSize: page.Size, written: written}

	if err := parent.Restore(rec, RestoreOptions{Store: store, Parent: parent}); err != nil {
		t.Fatal(err)
	}
	for i, w := range written {
		if w {
			t.Fatalf("page %d was rewritten even though parent == self", i)
		}
	}
}

type recordingWriter struct {
	sp       *fakeSpace
	pageSize int
	written  []bool
}

func (r *recordingWriter) WriteMemory(addr addrspace.Address, data []byte) error {
	r.written[int(addr)/r.pageSize] = true
	return r.sp.WriteMemory(addr, data)
}
