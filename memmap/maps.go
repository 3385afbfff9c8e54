// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memmap parses a process's /proc/<pid>/maps file into a
// region list and classifies each region by the role it plays in a
// snapshot (stack, heap, writable data, read-only/exec code). The
// checkpoint engine does not call this package itself.
package memmap

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/mcsnapshot/addrspace"
)

// Kind classifies a Region by the role it plays in a checkpoint: one
// whose content changes and needs full capture (writable data, heap,
// stack), or one whose content comes from the backing file
// (read-only/exec code). No Kind marks a privatized (per-rank) data
// segment.
type Kind int

const (
	KindUnknown Kind = iota
	KindCode         // r-x, backed by a file: .text and friends
	KindReadOnlyData // r--, backed by a file: .rodata
	KindData         // rw-, backed by a file: .data/.bss extension
	KindHeap         // rw-, anonymous, "[heap]"
	KindStack        // rw-, anonymous, "[stack]" or "[stack:<tid>]"
	KindVDSO         // "[vdso]", "[vsyscall]": never captured
	KindAnonymous    // rw-, anonymous, no special name
)

func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindReadOnlyData:
		return "rodata"
	case KindData:
		return "data"
	case KindHeap:
		return "heap"
	case KindStack:
		return "stack"
	case KindVDSO:
		return "vdso"
	case KindAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Region is one classified entry of a process's memory map.
type Region struct {
	addrspace.Mapping
	Kind Kind
	// BSSExtension is true when this region is the anonymous,
	// zero-filled tail of a file-backed data segment (the file is
	// smaller than the mapping, so the kernel pads it with a
	// zero-filled anonymous region that shares no pages with disk). A
	// checkpoint must still capture this region's content, even
	// though it is nameless in /proc/<pid>/maps, exactly like a
	// genuine anonymous region would be.
	BSSExtension bool
}

// InvariantViolation is returned by Classify when the map contains
// more than one region of a kind that is expected to be a singleton.
// Two cases trigger it: more than one [heap] or [vdso] region within
// the whole target (Object is empty for these), or more than one
// rw/ro/exec segment belonging to the same ELF object (Object names
// the backing path). This does not apply to KindStack, since a
// multi-threaded target legally has one stack region per thread, nor
// to a KindData region's bss extension, which extends its preceding
// segment rather than adding a second one.
type InvariantViolation struct {
	Kind   Kind
	Count  int
	Object string
}

func (e *InvariantViolation) Error() string {
	if e.Object == "" {
		return fmt.Sprintf("memmap: expected at most one %s region, found %d", e.Kind, e.Count)
	}
	return fmt.Sprintf("memmap: expected at most one %s segment for object %q, found %d", e.Kind, e.Object, e.Count)
}

// ReadProc parses /proc/<pid>/maps and classifies every region.
func ReadProc(pid int) ([]*Region, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memmap: opening %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

func parse(f *os.File) ([]*Region, error) {
	var regions []*Region
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		r, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		if r == nil {
			continue
		}
		regions = append(regions, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("memmap: reading maps: %w", err)
	}
	classifyBSSExtensions(regions)
	if err := checkSingletons(regions); err != nil {
		return nil, err
	}
	return regions, nil
}

// parseLine parses one /proc/<pid>/maps line and classifies it.
func parseLine(line string) (*Region, error) {
	m, err := addrspace.ParseMapsLine(line)
	if err != nil {
		return nil, fmt.Errorf("memmap: %w", err)
	}
	region := &Region{Mapping: *m}
	region.Kind = classify(region)
	return region, nil
}

func classify(r *Region) Kind {
	switch r.Path {
	case "[heap]":
		return KindHeap
	case "[vdso]", "[vsyscall]", "[vvar]":
		return KindVDSO
	}
	if strings.HasPrefix(r.Path, "[stack") {
		return KindStack
	}
	anon := r.Path == "" || strings.HasPrefix(r.Path, "[")
	switch {
	case r.Perm&addrspace.Exec != 0:
		return KindCode
	case r.Perm&addrspace.Write != 0:
		if anon {
			return KindAnonymous
		}
		return KindData
	case r.Perm&addrspace.Read != 0:
		return KindReadOnlyData
	default:
		return KindUnknown
	}
}

// classifyBSSExtensions recognizes the anonymous, writable region that
// immediately follows a file-backed KindData region with the same
// path: the kernel's padding of a data segment whose on-disk size is
// smaller than its in-memory size (the .bss tail).
func classifyBSSExtensions(regions []*Region) {
	for i := 1; i < len(regions); i++ {
		prev, cur := regions[i-1], regions[i]
		if cur.Path != "" || cur.Kind != KindAnonymous {
			continue
		}
		if prev.Kind != KindData {
			continue
		}
		if cur.Min != prev.Max {
			continue
		}
		cur.Kind = KindData
		cur.BSSExtension = true
	}
}

func checkSingletons(regions []*Region) error {
	counts := map[Kind]int{}
	for _, r := range regions {
		if r.Kind == KindVDSO && r.Path != "[vdso]" {
			// [vvar] and [vsyscall] share KindVDSO but are not [vdso].
			continue
		}
		counts[r.Kind]++
	}
	for _, k := range []Kind{KindHeap, KindVDSO} {
		if n := counts[k]; n > 1 {
			return &InvariantViolation{Kind: k, Count: n}
		}
	}
	return checkObjectSegments(regions)
}

// checkObjectSegments enforces spec.md §4.6's "multiple rw/exec/ro
// segments per object are disallowed and fatal": for each ELF object
// (identified by its backing path), at most one KindCode, one
// KindReadOnlyData, and one KindData region may reference it. A bss
// extension doesn't count as a second KindData segment — it extends
// the preceding one, per classifyBSSExtensions.
func checkObjectSegments(regions []*Region) error {
	type key struct {
		object string
		kind   Kind
	}
	var order []key
	counts := map[key]int{}
	for _, r := range regions {
		if r.BSSExtension {
			continue
		}
		if r.Kind != KindCode && r.Kind != KindReadOnlyData && r.Kind != KindData {
			continue
		}
		if r.Path == "" {
			continue
		}
		k := key{r.Path, r.Kind}
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}
	for _, k := range order {
		if n := counts[k]; n > 1 {
			return &InvariantViolation{Kind: k.kind, Count: n, Object: k.object}
		}
	}
	return nil
}
