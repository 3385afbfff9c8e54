// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package frametype resolves frame bases, variable locations, and
// struct-member addresses against already-parsed DWARF type and frame
// metadata. Loading that metadata out of ELF/DWARF is a different
// concern (out of this package's scope, per the owning spec); Type,
// Frame, and Variable here are the consumer-side shapes that loader
// hands this package.
package frametype

import "fmt"

// Kind tags a Type the way a DWARF DIE tag does: the type's own
// structural category, independent of the host language's runtime
// representation (unlike a Go-reflect Kind, which conflates slice,
// string, and interface with their field layout — this vocabulary
// matches the DWARF standard's own tag set instead, since types here
// can describe any compiled language's data, not just Go's).
type Kind int

const (
	KindNone Kind = iota
	KindBase
	KindEnum
	KindTypedef
	KindConst
	KindVolatile
	KindPointer
	KindReference
	KindArray
	KindStruct
	KindClass
	KindUnion
	KindSubroutine
)

func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindEnum:
		return "enum"
	case KindTypedef:
		return "typedef"
	case KindConst:
		return "const"
	case KindVolatile:
		return "volatile"
	case KindPointer:
		return "pointer"
	case KindReference:
		return "reference"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindClass:
		return "class"
	case KindUnion:
		return "union"
	case KindSubroutine:
		return "subroutine"
	default:
		return "none"
	}
}

// HasMembers reports whether this kind carries an ordered Members list.
func (k Kind) HasMembers() bool {
	return k == KindStruct || k == KindClass || k == KindUnion
}

// Type is a tagged type record, matching the vocabulary DWARF itself
// uses (base/enum/typedef/const/volatile/pointer/reference/array/
// struct/class/union/subroutine) rather than a host language's own
// runtime type-kind enumeration.
type Type struct {
	Name string
	Kind Kind

	ByteSize int64

	// ElementCount is populated for KindArray: the number of elements,
	// or -1 if the array's bound is unknown (a flexible array member
	// or an incomplete type).
	ElementCount int64

	// Members is populated for struct/class/union kinds, in
	// declaration order.
	Members []*Member

	// Subtype is populated for array (element type), pointer/reference
	// (pointee type), and typedef/const/volatile (underlying type).
	Subtype *Type
}

func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("<%s>", t.Kind)
}

// Field looks up a struct/class/union member by name.
func (t *Type) Field(name string) (*Member, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}
