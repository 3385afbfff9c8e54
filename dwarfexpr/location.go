// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfexpr

import "fmt"

// LocationKind classifies the result of evaluating a location
// expression: DWARF distinguishes "the value is at this address" from
// "the value is in this register" from (implicitly, for frame bases)
// "this register holds the address".
type LocationKind int

const (
	LocationInvalid LocationKind = iota
	LocationInMemory
	LocationInRegister
)

// Location is the classified result of evaluating a LocationListEntry's
// expression: either an address (the common case, the expression's
// final stack value) or a bare register number (only produced when
// the expression is a single DW_OP_regN, which this evaluator treats
// as a result classification rather than a new opcode, since no
// producer in this spec's scope emits register-only locations except
// through frame-base resolution's special register-holds-address case).
type Location struct {
	Kind       LocationKind
	Address    uint64
	RegisterID int
}

// LocationListEntry guards an Expression by a PC range: [LowPC, HighPC).
// A zero LowPC and HighPC means "always applicable".
type LocationListEntry struct {
	LowPC, HighPC uint64
	Expression    []Op
}

// LocationList is an ordered sequence of guarded expressions.
type LocationList []LocationListEntry

// Resolve evaluates the first entry of l whose guard contains pc (or
// whose guard is null), and classifies the result.
func (l LocationList) Resolve(pc uint64, ctx *ExpressionContext) (Location, error) {
	for _, entry := range l {
		if entry.LowPC == 0 && entry.HighPC == 0 {
			return evalLocation(entry.Expression, ctx)
		}
		if pc >= entry.LowPC && pc < entry.HighPC {
			return evalLocation(entry.Expression, ctx)
		}
	}
	return Location{}, fmt.Errorf("dwarfexpr: no location list entry covers pc %#x", pc)
}

// evalLocation runs ops and classifies the outcome: a single bare
// DW_OP_regN expression classifies as InRegister without touching the
// stack machine at all (the variable's value, not its address, lives
// in that register); every other successful evaluation yields the
// expression's final stack value as an in-memory address.
func evalLocation(ops []Op, ctx *ExpressionContext) (Location, error) {
	if len(ops) == 1 && ops[0].Atom >= OpReg0 && ops[0].Atom <= OpReg31 {
		return Location{Kind: LocationInRegister, RegisterID: int(ops[0].Atom - OpReg0)}, nil
	}

	stack := NewExpressionStack()
	if err := Execute(ops, ctx, stack); err != nil {
		return Location{}, err
	}
	addr, err := stack.Result()
	if err != nil {
		return Location{}, err
	}
	return Location{Kind: LocationInMemory, Address: addr}, nil
}
