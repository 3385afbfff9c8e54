// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package addrspace

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ParseMapsLine parses one /proc/<pid>/maps line of the form
// "<start>-<end> <perms> <offset> <dev> <inode> [pathname]" into a
// Mapping. It is exported so that memmap (which layers region
// classification on top) shares this package's parser rather than
// re-deriving the /proc/<pid>/maps grammar.
func ParseMapsLine(line string) (*Mapping, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return nil, fmt.Errorf("addrspace: malformed maps line %q", line)
	}
	addrs := strings.SplitN(fields[0], "-", 2)
	if len(addrs) != 2 {
		return nil, fmt.Errorf("addrspace: malformed address range %q", fields[0])
	}
	min, err := strconv.ParseUint(addrs[0], 16, 64)
	if err != nil {
		return nil, fmt.Errorf("addrspace: bad start address %q: %w", addrs[0], err)
	}
	max, err := strconv.ParseUint(addrs[1], 16, 64)
	if err != nil {
		return nil, fmt.Errorf("addrspace: bad end address %q: %w", addrs[1], err)
	}

	permField := fields[1]
	if len(permField) < 4 {
		return nil, fmt.Errorf("addrspace: malformed permission field %q", permField)
	}
	var perm Perm
	if permField[0] == 'r' {
		perm |= Read
	}
	if permField[1] == 'w' {
		perm |= Write
	}
	if permField[2] == 'x' {
		perm |= Exec
	}

	offset, err := strconv.ParseInt(fields[2], 16, 64)
	if err != nil {
		return nil, fmt.Errorf("addrspace: bad offset %q: %w", fields[2], err)
	}

	path := ""
	if len(fields) >= 6 {
		path = strings.Join(fields[5:], " ")
	}

	return &Mapping{
		Min:    Address(min),
		Max:    Address(max),
		Perm:   perm,
		Path:   path,
		Offset: offset,
	}, nil
}

// parseProcMaps reads and parses /proc/<pid>/maps in full.
func parseProcMaps(pid int) ([]*Mapping, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("addrspace: opening %s: %w", path, err)
	}
	defer f.Close()

	var mappings []*Mapping
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m, err := ParseMapsLine(sc.Text())
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("addrspace: reading %s: %w", path, err)
	}
	return mappings, nil
}
