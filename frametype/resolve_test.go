// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frametype

import (
	"errors"
	"testing"

	"golang.org/x/mcsnapshot/dwarfexpr"
)

type fakeCursor struct {
	regs map[int]uint64
}

func (c *fakeCursor) Register(n int) (uint64, error) {
	v, ok := c.regs[n]
	if !ok {
		return 0, errors.New("no such register")
	}
	return v, nil
}
func (c *fakeCursor) StepUp() (dwarfexpr.RegisterCursor, error) {
	return nil, errors.New("no parent")
}

func TestFrameBaseInMemory(t *testing.T) {
	f := &Frame{
		LowPC: 0, HighPC: 100,
		FrameBase: dwarfexpr.LocationList{
			{Expression: []dwarfexpr.Op{{Atom: dwarfexpr.OpConstu, Number: 0x3000}}},
		},
	}
	base, err := FrameBase(f, 10, &dwarfexpr.ExpressionContext{})
	if err != nil {
		t.Fatal(err)
	}
	if base != 0x3000 {
		t.Fatalf("got %#x, want 0x3000", base)
	}
}

func TestFrameBaseMissingCursorForRegister(t *testing.T) {
	f := &Frame{
		LowPC: 0, HighPC: 100,
		FrameBase: dwarfexpr.LocationList{
			{Expression: []dwarfexpr.Op{{Atom: dwarfexpr.OpReg0 + 6}}},
		},
	}
	_, err := FrameBase(f, 10, &dwarfexpr.ExpressionContext{})
	if err == nil {
		t.Fatal("expected an error when no cursor is available")
	}
}

func TestFrameBaseInRegisterIsDereferenced(t *testing.T) {
	f := &Frame{
		LowPC: 0, HighPC: 100,
		FrameBase: dwarfexpr.LocationList{
			{Expression: []dwarfexpr.Op{{Atom: dwarfexpr.OpReg0 + 6}}},
		},
	}
	cursor := &fakeCursor{regs: map[int]uint64{6: 0x7fff0000}}
	ctx := &dwarfexpr.ExpressionContext{Cursor: cursor}

	base, err := FrameBase(f, 10, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if base != 0x7fff0000 {
		t.Fatalf("got %#x, want 0x7fff0000", base)
	}
}

func TestResolveMemberConstOffset(t *testing.T) {
	m := &Member{Name: "field", HasConstOffset: true, Offset: 16}
	addr, err := ResolveMember(m, 0x1000, &dwarfexpr.ExpressionContext{})
	if err != nil {
		t.Fatal(err)
	}
	if addr != 0x1010 {
		t.Fatalf("got %#x, want 0x1010", addr)
	}
}

func TestResolveMemberMissingBoth(t *testing.T) {
	m := &Member{Name: "field"}
	_, err := ResolveMember(m, 0x1000, &dwarfexpr.ExpressionContext{})
	if err == nil {
		t.Fatal("expected an error when neither offset nor expression is set")
	}
}

func TestResolveMemberExpression(t *testing.T) {
	m := &Member{
		Name:         "field",
		LocationExpr: []dwarfexpr.Op{{Atom: dwarfexpr.OpPlusUconst, Number: 32}},
	}
	addr, err := ResolveMember(m, 0x2000, &dwarfexpr.ExpressionContext{})
	if err != nil {
		t.Fatal(err)
	}
	if addr != 0x2020 {
		t.Fatalf("got %#x, want 0x2020", addr)
	}
}
