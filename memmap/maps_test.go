// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmap

import (
	"bufio"
	"strings"
	"testing"

	"golang.org/x/mcsnapshot/addrspace"
)

const sampleMaps = `00400000-00401000 r-xp 00000000 08:01 131 /bin/cat
00600000-00601000 r--p 00000000 08:01 131 /bin/cat
00601000-00602000 rw-p 00001000 08:01 131 /bin/cat
00602000-00605000 rw-p 00000000 00:00 0
00700000-00900000 rw-p 00000000 00:00 0 [heap]
7ffc00000000-7ffc00021000 rw-p 00000000 00:00 0 [stack]
7ffc00021000-7ffc00022000 r--p 00000000 00:00 0 [vvar]
7ffc00022000-7ffc00023000 r-xp 00000000 00:00 0 [vdso]
`

func parseSample(t *testing.T) []*Region {
	t.Helper()
	var regions []*Region
	sc := bufio.NewScanner(strings.NewReader(sampleMaps))
	for sc.Scan() {
		r, err := parseLine(sc.Text())
		if err != nil {
			t.Fatal(err)
		}
		regions = append(regions, r)
	}
	classifyBSSExtensions(regions)
	return regions
}

func TestClassify(t *testing.T) {
	regions := parseSample(t)
	want := []Kind{
		KindCode,
		KindReadOnlyData,
		KindData,
		KindData, // bss extension of the previous mapping
		KindHeap,
		KindStack,
		KindVDSO,
		KindVDSO,
	}
	if len(regions) != len(want) {
		t.Fatalf("got %d regions, want %d", len(regions), len(want))
	}
	for i, r := range regions {
		if r.Kind != want[i] {
			t.Errorf("region %d (%s): Kind = %s, want %s", i, r.Path, r.Kind, want[i])
		}
	}
	if !regions[3].BSSExtension {
		t.Errorf("region 3 should be flagged as a bss extension")
	}
}

func TestCheckSingletonsRejectsDuplicateHeap(t *testing.T) {
	regions := []*Region{
		{Mapping: addrspace.Mapping{Path: "[heap]"}, Kind: KindHeap},
		{Mapping: addrspace.Mapping{Path: "[heap]"}, Kind: KindHeap},
	}
	err := checkSingletons(regions)
	var iv *InvariantViolation
	if err == nil {
		t.Fatal("expected an InvariantViolation")
	}
	if !asInvariantViolation(err, &iv) {
		t.Fatalf("got %v, want *InvariantViolation", err)
	}
	if iv.Kind != KindHeap || iv.Count != 2 {
		t.Fatalf("got %+v, want Kind=KindHeap Count=2", iv)
	}
}

func TestCheckSingletonsRejectsDuplicateObjectSegment(t *testing.T) {
	regions := []*Region{
		{Mapping: addrspace.Mapping{Path: "/lib/libfoo.so", Min: 0, Max: 0x1000}, Kind: KindReadOnlyData},
		{Mapping: addrspace.Mapping{Path: "/lib/libfoo.so", Min: 0x1000, Max: 0x2000}, Kind: KindReadOnlyData},
	}
	err := checkSingletons(regions)
	var iv *InvariantViolation
	if err == nil {
		t.Fatal("expected an InvariantViolation")
	}
	if !asInvariantViolation(err, &iv) {
		t.Fatalf("got %v, want *InvariantViolation", err)
	}
	if iv.Kind != KindReadOnlyData || iv.Count != 2 || iv.Object != "/lib/libfoo.so" {
		t.Fatalf("got %+v, want Kind=KindReadOnlyData Count=2 Object=/lib/libfoo.so", iv)
	}
}

func TestCheckSingletonsAllowsBSSExtension(t *testing.T) {
	regions := parseSample(t)
	if err := checkSingletons(regions); err != nil {
		t.Fatalf("sample map with a legitimate bss extension should pass: %v", err)
	}
}

func asInvariantViolation(err error, target **InvariantViolation) bool {
	if iv, ok := err.(*InvariantViolation); ok {
		*target = iv
		return true
	}
	return false
}
