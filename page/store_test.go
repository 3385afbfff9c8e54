// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package page

import (
	"bytes"
	"errors"
	"testing"
)

func fill(v byte) []byte {
	buf := make([]byte, Size)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

func TestDedupBasic(t *testing.T) {
	s := NewStore(4)
	if s.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", s.Size())
	}

	p1, err := s.StorePage(fill(1))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.GetRef(p1); got != 1 {
		t.Fatalf("GetRef(p1) = %d, want 1", got)
	}
	if s.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", s.Size())
	}

	p1Again, err := s.StorePage(fill(1))
	if err != nil {
		t.Fatal(err)
	}
	if p1Again != p1 {
		t.Fatalf("storing identical page returned a different index")
	}
	if got := s.GetRef(p1); got != 2 {
		t.Fatalf("GetRef(p1) = %d, want 2", got)
	}

	p2, err := s.StorePage(fill(2))
	if err != nil {
		t.Fatal(err)
	}
	if p2 == p1 {
		t.Fatalf("distinct content reused the same index")
	}
	if s.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", s.Size())
	}

	if err := s.UnrefPage(p1); err != nil {
		t.Fatal(err)
	}
	if err := s.UnrefPage(p1); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 1 {
		t.Fatalf("Size() after dropping p1 = %d, want 1", s.Size())
	}

	p3, err := s.StorePage(fill(3))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.GetRef(p3); got != 1 {
		t.Fatalf("GetRef(p3) = %d, want 1", got)
	}
	if s.Size() != 2 {
		t.Fatalf("Size() after reuse = %d, want 2", s.Size())
	}
	if !bytes.Equal(s.GetPage(p3), fill(3)) {
		t.Fatalf("reused page has wrong content")
	}
}

func TestUnrefUnknownPageIsDoubleFree(t *testing.T) {
	s := NewStore(2)
	idx, err := s.StorePage(fill(9))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UnrefPage(idx); err != nil {
		t.Fatal(err)
	}
	if err := s.UnrefPage(idx); !errors.Is(err, ErrDoubleFree) {
		t.Fatalf("UnrefPage on a zero-refcount page: got %v, want ErrDoubleFree", err)
	}
}

func TestGrowthPreservesIndices(t *testing.T) {
	s := NewStore(1)
	var indices []int
	for i := 0; i < 50; i++ {
		idx, err := s.StorePage(fill(byte(i)))
		if err != nil {
			t.Fatal(err)
		}
		indices = append(indices, idx)
	}
	for i, idx := range indices {
		if !bytes.Equal(s.GetPage(idx), fill(byte(i))) {
			t.Fatalf("page %d content corrupted after growth", idx)
		}
	}
	if s.Capacity() < 50 {
		t.Fatalf("Capacity() = %d, want >= 50", s.Capacity())
	}
}

func TestRefPageIncrementsWithoutStoring(t *testing.T) {
	s := NewStore(2)
	idx, err := s.StorePage(fill(7))
	if err != nil {
		t.Fatal(err)
	}
	s.RefPage(idx)
	if got := s.GetRef(idx); got != 2 {
		t.Fatalf("GetRef = %d, want 2", got)
	}
	if err := s.UnrefPage(idx); err != nil {
		t.Fatal(err)
	}
	if err := s.UnrefPage(idx); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 0 {
		t.Fatalf("Size() = %d, want 0 after both refs dropped", s.Size())
	}
}
