// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frametype

import (
	"fmt"

	"golang.org/x/mcsnapshot/dwarfexpr"
)

// FrameBase evaluates f's frame_base location list against ctx (whose
// Cursor should be positioned at the frame's own PC) and returns the
// frame base address. If the location resolves to an in-memory
// address, that address is the frame base directly. If it resolves to
// a bare register, DWARF defines the register to *contain* the frame
// base address, not to *be* it — so the register is read and its
// value used as the frame base.
func FrameBase(f *Frame, pc uint64, ctx *dwarfexpr.ExpressionContext) (uint64, error) {
	loc, err := f.FrameBase.Resolve(pc, ctx)
	if err != nil {
		return 0, fmt.Errorf("frametype: resolving frame base: %w", err)
	}
	switch loc.Kind {
	case dwarfexpr.LocationInMemory:
		return loc.Address, nil
	case dwarfexpr.LocationInRegister:
		if ctx.Cursor == nil {
			return 0, fmt.Errorf("frametype: frame base is in register %d but no cursor is available", loc.RegisterID)
		}
		v, err := ctx.Cursor.Register(loc.RegisterID)
		if err != nil {
			return 0, fmt.Errorf("frametype: reading frame base register %d: %w", loc.RegisterID, err)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("frametype: frame base location has unexpected kind %v", loc.Kind)
	}
}

// ResolveMember computes the address of member m within a struct
// whose base address is structBase. A member with a constant offset
// is resolved by plain addition; otherwise m's DWARF expression is
// evaluated with structBase pre-pushed onto the stack, and the
// resulting top-of-stack value is the member's address.
func ResolveMember(m *Member, structBase uint64, ctx *dwarfexpr.ExpressionContext) (uint64, error) {
	if m.HasConstOffset {
		return uint64(int64(structBase) + m.Offset), nil
	}
	if len(m.LocationExpr) == 0 {
		return 0, fmt.Errorf("frametype: member %q has neither a constant offset nor a location expression", m.Name)
	}

	stack := dwarfexpr.NewExpressionStack()
	if err := stack.Push(structBase); err != nil {
		return 0, fmt.Errorf("frametype: pushing struct base for member %q: %w", m.Name, err)
	}
	if err := dwarfexpr.Execute(m.LocationExpr, ctx, stack); err != nil {
		return 0, fmt.Errorf("frametype: evaluating location of member %q: %w", m.Name, err)
	}
	addr, err := stack.Result()
	if err != nil {
		return 0, fmt.Errorf("frametype: member %q expression produced no result: %w", m.Name, err)
	}
	return addr, nil
}
