// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package checkpoint

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/page"
	"golang.org/x/mcsnapshot/region"
	"golang.org/x/mcsnapshot/snapshot"
)

var log = logrus.WithField("component", "checkpoint")

// Engine drives Snapshot creation and restoration. It owns the page
// store (the only mutable shared resource in the single-threaded
// model) and the notion of a "parent" snapshot used for soft-dirty
// page reuse and for skip-unchanged restoration.
type Engine struct {
	mu sync.Mutex

	store     *page.Store
	softDirty SoftDirty

	parent         *snapshot.Snapshot
	parentRefcount int // exploration-algorithm references to the current parent

	// refcounts tracks the exploration algorithm's own reference count
	// per snapshot, independent of "important" status: a snapshot
	// that is also the current parent must survive even at refcount
	// zero, per spec's "important snapshot" rule.
	refcounts map[*snapshot.Snapshot]int

	nextState uint64
}

// NewEngine creates a checkpoint engine backed by a fresh page store
// of the given initial capacity (in pages) and the given soft-dirty
// capability (use NoSoftDirty() when the target doesn't support it).
func NewEngine(initialCapacity int, softDirty SoftDirty) *Engine {
	return &Engine{
		store:     page.NewStore(initialCapacity),
		softDirty: softDirty,
		refcounts: make(map[*snapshot.Snapshot]int),
	}
}

// Store returns the page store this engine's snapshots are captured
// into. Exposed for inspection tooling (cmd/mcsnapctl); captures and
// restores should go through Engine's own methods.
func (e *Engine) Store() *page.Store { return e.store }

// spaceWriter is an addrspace.Space that can also be written to:
// addrspace.LiveProcess satisfies it, and it is what Capture needs to
// both read regions and neutralize/restore ignored regions.
type spaceWriter interface {
	addrspace.Space
	WriteMemory(addr addrspace.Address, data []byte) error
}

// Capture builds a new Snapshot of t, wiring in the engine's page
// store, current parent (for soft-dirty page reuse), and soft-dirty
// capability, then makes the result the new parent.
func (e *Engine) Capture(t *snapshot.Target, w spaceWriter, ignored []*snapshot.IgnoredRegion) (*snapshot.Snapshot, error) {
	e.mu.Lock()
	parent := e.parent
	e.mu.Unlock()

	t.CaptureOptions.Store = e.store
	t.Parent = parent
	if e.softDirty != nil {
		t.SoftDirtyActive = func() bool { return true }
		t.SoftDirty = func(addr addrspace.Address, n int) []bool {
			dirty, err := e.softDirty.Dirty(addr, n)
			if err != nil {
				log.WithError(err).Warn("soft-dirty query failed; treating pages as dirty")
				dirty = make([]bool, n)
				for i := range dirty {
					dirty[i] = true
				}
			}
			return dirty
		}
		t.ClearSoftDirty = e.softDirty.Clear
	}

	e.mu.Lock()
	numState := e.nextState
	e.nextState++
	e.mu.Unlock()

	snap, err := snapshot.Capture(numState, t, w, ignored)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: capture failed: %w", err)
	}

	b := breakdown(snap.Regions)
	log.WithFields(logrus.Fields{
		"num_state":        numState,
		"flat_bytes":       b.flat,
		"chunked_bytes":    b.chunked,
		"privatized_bytes": b.privatized,
	}).Debug("capture breakdown")

	e.setParent(snap)
	return snap, nil
}

// captureBreakdown is the byte count captured per storage kind,
// logged for observability rather than exposed as a public type —
// nothing in this package needs to consume it programmatically.
type captureBreakdown struct {
	flat, chunked, privatized int64
}

func breakdown(regions []*region.Snapshot) captureBreakdown {
	var b captureBreakdown
	for _, rs := range regions {
		addBreakdown(&b, rs)
	}
	return b
}

func addBreakdown(b *captureBreakdown, rs *region.Snapshot) {
	switch rs.Storage {
	case region.Flat:
		b.flat += rs.SizeBytes
	case region.Chunked:
		b.chunked += rs.SizeBytes
	case region.Privatized:
		for _, sub := range rs.Privatized {
			b.privatized += sub.SizeBytes
		}
	}
}

// Restore writes snap back into the target via r, using the engine's
// current parent (if any) to skip unchanged Chunked pages, then
// publishes snap as the new parent: after a restore, snap's page
// indices accurately describe live memory again.
func (e *Engine) Restore(snap *snapshot.Snapshot, r snapshot.Restorer) error {
	e.mu.Lock()
	parent := e.parent
	e.mu.Unlock()

	opts := region.RestoreOptions{Store: e.store}
	if err := snapshot.Restore(snap, r, opts, parent); err != nil {
		return fmt.Errorf("checkpoint: restore failed: %w", err)
	}

	e.setParent(snap)
	return nil
}

// setParent makes snap the current parent, releasing "important"
// status from the previous parent. If the previous parent's
// exploration-algorithm refcount is zero, its page references are
// released right away; otherwise its last Unref releases them.
func (e *Engine) setParent(snap *snapshot.Snapshot) {
	e.mu.Lock()
	old := e.parent
	e.parent = snap
	e.mu.Unlock()

	if old != nil && old != snap {
		e.maybeRelease(old)
	}
}

// Ref increments the exploration algorithm's reference count for
// snap. Every snapshot an exploration algorithm intends to keep around
// (e.g. on a DFS stack) must be Ref'd when it is produced or retained.
func (e *Engine) Ref(snap *snapshot.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refcounts[snap]++
}

// Unref decrements the exploration algorithm's reference count for
// snap. When it reaches zero and snap is not the current parent, its
// regions' page-store indices are released.
func (e *Engine) Unref(snap *snapshot.Snapshot) error {
	e.mu.Lock()
	e.refcounts[snap]--
	n := e.refcounts[snap]
	if n <= 0 {
		delete(e.refcounts, snap)
	}
	e.mu.Unlock()

	if n <= 0 {
		return e.maybeRelease(snap)
	}
	return nil
}

// maybeRelease releases snap's page-store references unless it is
// still the current parent (an "important" snapshot survives a
// zero exploration-algorithm refcount) or still positively referenced.
func (e *Engine) maybeRelease(snap *snapshot.Snapshot) error {
	e.mu.Lock()
	isParent := e.parent == snap
	refs := e.refcounts[snap]
	e.mu.Unlock()

	if isParent || refs > 0 {
		return nil
	}
	for i, rs := range snap.Regions {
		if err := rs.Release(e.store); err != nil {
			return fmt.Errorf("checkpoint: releasing region %d: %w", i, err)
		}
	}
	return nil
}
