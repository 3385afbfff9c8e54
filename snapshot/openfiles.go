// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snapshot

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnumerateOpenFiles reads /proc/<pid>/fd for a live target, skipping
// fds 0-2 and any target whose readlink begins with "pipe:", "socket:",
// or "/dev/shm/ust-shm-tmp-", or that equals the enumeration directory
// itself. A caller may assign it to Target.OpenFiles for a live child
// process; checkpoint.Engine does not set Target.OpenFiles itself.
func EnumerateOpenFiles(pid int) ([]*OpenFileDescription, error) {
	dir := fmt.Sprintf("/proc/%d/fd", pid)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading %s: %w", dir, err)
	}

	var files []*OpenFileDescription
	for _, ent := range entries {
		fd, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue
		}
		if fd <= 2 {
			continue
		}
		linkPath := dir + "/" + ent.Name()
		target, err := os.Readlink(linkPath)
		if err != nil {
			continue
		}
		if shouldSkipFD(target, dir) {
			continue
		}

		flags, offset, err := readFdinfo(pid, fd)
		if err != nil {
			return nil, err
		}
		files = append(files, &OpenFileDescription{
			FD:     fd,
			Path:   target,
			Flags:  flags,
			Offset: offset,
		})
	}
	return files, nil
}

func shouldSkipFD(target, enumDir string) bool {
	if target == enumDir {
		return true
	}
	prefixes := []string{"pipe:", "socket:", "/dev/shm/ust-shm-tmp-"}
	for _, p := range prefixes {
		if strings.HasPrefix(target, p) {
			return true
		}
	}
	return false
}

func readFdinfo(pid, fd int) (flags int, offset int64, err error) {
	path := fmt.Sprintf("/proc/%d/fdinfo/%d", pid, fd)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("snapshot: reading %s: %w", path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		switch key {
		case "pos":
			offset, err = strconv.ParseInt(val, 10, 64)
		case "flags":
			var f int64
			f, err = strconv.ParseInt(val, 8, 64)
			flags = int(f)
		}
		if err != nil {
			return 0, 0, fmt.Errorf("snapshot: parsing fdinfo %s: %w", path, err)
		}
	}
	return flags, offset, nil
}
