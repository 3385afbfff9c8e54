// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frametype

import (
	"golang.org/x/mcsnapshot/addrspace"
	"golang.org/x/mcsnapshot/dwarfexpr"
	"golang.org/x/mcsnapshot/region"
)

// Member is a struct/class/union field: a name, a type, and either a
// constant offset within the enclosing struct or a DWARF expression
// that computes the member's address from the struct's base address.
type Member struct {
	Name string
	Type *Type

	// HasConstOffset selects which of the two fields below applies.
	HasConstOffset bool
	Offset         int64 // valid when HasConstOffset

	// LocationExpr computes the member's address when HasConstOffset
	// is false; it is evaluated with the struct's base address
	// pre-pushed onto the stack.
	LocationExpr []dwarfexpr.Op
}

// Variable is a DWARF variable: a local, a parameter, or a global.
type Variable struct {
	Name    string
	Type    *Type
	IsGlobal bool

	// Address is set for static globals with a fixed address; nil
	// otherwise (locals and dynamic globals use Location instead).
	Address *addrspace.Address

	// Location is set for locals and dynamic globals.
	Location dwarfexpr.LocationList

	// ScopeStart is the offset (relative to the enclosing Frame's
	// LowPC) past which this variable's binding becomes valid —
	// block-scoped locals declared partway through a function body.
	ScopeStart uint64
}

// Frame is a DWARF subprogram or lexical-block scope.
type Frame struct {
	LowPC, HighPC uint64
	FrameBase     dwarfexpr.LocationList

	Children  []*Frame
	Variables []*Variable

	ObjectInfo *region.ObjectInformation

	// Parent links an inlined subroutine back to the subprogram it
	// was inlined into; nil for a top-level subprogram.
	Parent *Frame
}

// Contains reports whether pc falls within this frame's range.
func (f *Frame) Contains(pc uint64) bool {
	return pc >= f.LowPC && pc < f.HighPC
}

// FindVariable looks up a variable visible at pc by name, searching
// this frame's own variables (respecting ScopeStart) and then its
// children whose range contains pc.
func (f *Frame) FindVariable(name string, pc uint64) (*Variable, bool) {
	for _, v := range f.Variables {
		if v.Name != name {
			continue
		}
		if v.ScopeStart != 0 && pc < f.LowPC+v.ScopeStart {
			continue
		}
		return v, true
	}
	for _, child := range f.Children {
		if child.Contains(pc) {
			if v, ok := child.FindVariable(name, pc); ok {
				return v, true
			}
		}
	}
	return nil, false
}
