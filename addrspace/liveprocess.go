// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package addrspace

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// LiveProcess is a Space backed by a running, ptraced target process,
// read through /proc/<pid>/mem. Unlike the demo/ptrace-linux-amd64
// programs in the teacher tree, it never uses PTRACE_PEEKTEXT word-at-
// a-time reads: /proc/<pid>/mem supports arbitrarily sized pread/pwrite
// once the tracee is stopped, which is what every region and page
// capture in this package needs.
type LiveProcess struct {
	mu sync.Mutex

	pid     int
	mem     *os.File
	ptrSize int

	mappings *pageTableIndex
}

// NewLiveProcess opens /proc/<pid>/mem for a tracee that the caller
// has already attached to and stopped via ptrace. ptrSize is 4 or 8.
func NewLiveProcess(pid int, ptrSize int) (*LiveProcess, error) {
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("addrspace: opening /proc/%d/mem: %w", pid, err)
	}
	p := &LiveProcess{
		pid:      pid,
		mem:      f,
		ptrSize:  ptrSize,
		mappings: newPageTableIndex(),
	}
	if err := p.refreshMappings(); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

func (p *LiveProcess) Close() error {
	return p.mem.Close()
}

func (p *LiveProcess) PointerSize() int { return p.ptrSize }

// refreshMappings reparses /proc/<pid>/maps. NewLiveProcess calls it
// once; nothing calls it again, so mappings created or removed in the
// tracee afterwards are not reflected by Mappings or FindMapping.
func (p *LiveProcess) refreshMappings() error {
	mappings, err := parseProcMaps(p.pid)
	if err != nil {
		return err
	}
	t := newPageTableIndex()
	for _, m := range mappings {
		if err := t.add(m); err != nil {
			// Not every /proc/<pid>/maps entry is page-aligned in
			// practice (e.g. [vsyscall] on some kernels reports a
			// zero-length region); skip rather than fail the whole
			// refresh.
			continue
		}
	}
	p.mu.Lock()
	p.mappings = t
	p.mu.Unlock()
	return nil
}

func (p *LiveProcess) Mappings() []*Mapping {
	p.mu.Lock()
	defer p.mu.Unlock()
	all := append([]*Mapping(nil), p.mappings.all()...)
	sort.Slice(all, func(i, j int) bool { return all[i].Min < all[j].Min })
	return all
}

func (p *LiveProcess) FindMapping(a Address) *Mapping {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mappings.find(a)
}

// ReadMemory reads len(out) bytes from the tracee starting at addr,
// retrying on EINTR and on short reads (pread over /proc/<pid>/mem can
// return fewer bytes than requested even outside of a signal, if the
// read straddles an unmapped page boundary).
func (p *LiveProcess) ReadMemory(addr Address, out []byte) error {
	off := int64(addr)
	for len(out) > 0 {
		n, err := p.mem.ReadAt(out, off)
		if n > 0 {
			out = out[n:]
			off += int64(n)
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("addrspace: reading %d bytes of pid %d at %s: %w", len(out), p.pid, Address(off), err)
		}
		if n == 0 {
			return fmt.Errorf("addrspace: short read of pid %d at %s", p.pid, Address(off))
		}
	}
	return nil
}

func (p *LiveProcess) ReadMemoryLazy(addr Address, n int, opts ReadOptions) ([]byte, error) {
	buf := make([]byte, n)
	if err := p.ReadMemory(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteMemory writes data to the tracee starting at addr, retrying on
// EINTR and on short writes. This is the primitive checkpoint restore
// uses to write page contents, ignored-region zero-fill, and
// privatized sub-region contents back into a live target.
func (p *LiveProcess) WriteMemory(addr Address, data []byte) error {
	off := int64(addr)
	for len(data) > 0 {
		n, err := p.mem.WriteAt(data, off)
		if n > 0 {
			data = data[n:]
			off += int64(n)
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("addrspace: writing %d bytes to pid %d at %s: %w", len(data), p.pid, Address(off), err)
		}
		if n == 0 {
			return fmt.Errorf("addrspace: short write to pid %d at %s", p.pid, Address(off))
		}
	}
	return nil
}

var _ Space = (*LiveProcess)(nil)
