// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfexpr

import (
	"fmt"

	"golang.org/x/mcsnapshot/addrspace"
)

// Execute evaluates ops against ctx, mutating stack in place. On any
// error, evaluation stops immediately; the stack's contents are then
// unspecified, matching the "abort, state unspecified" contract.
func Execute(ops []Op, ctx *ExpressionContext, stack *ExpressionStack) error {
	for i := range ops {
		if err := step(&ops[i], ctx, stack); err != nil {
			return fmt.Errorf("dwarfexpr: op %d (atom 0x%02x): %w", i, ops[i].Atom, err)
		}
	}
	return nil
}

func step(op *Op, ctx *ExpressionContext, stack *ExpressionStack) error {
	switch {
	case op.Atom >= OpBreg0 && op.Atom <= OpBreg31:
		return execBreg(op, ctx, stack)
	case op.Atom >= OpLit0 && op.Atom <= OpLit31:
		return stack.push(uint64(op.Atom - OpLit0))
	}

	switch op.Atom {
	case OpCallFrameCFA:
		return execCallFrameCFA(ctx, stack)

	case OpFbreg:
		if ctx.FrameBase == nil {
			return ErrMissingFrameBase
		}
		return stack.push(mask(ctx, *ctx.FrameBase+uint64(op.Number)))

	case OpAddr:
		if ctx.ObjectBase == nil {
			return ErrNoBaseAddress
		}
		return stack.push(mask(ctx, uint64(*ctx.ObjectBase)+uint64(op.Number)))

	case OpConst1u, OpConst2u, OpConst4u, OpConst8u, OpConst1s, OpConst2s, OpConst4s, OpConst8s, OpConstu, OpConsts:
		return stack.push(mask(ctx, uint64(op.Number)))

	case OpDup:
		return stack.dup()

	case OpDrop:
		_, err := stack.pop()
		return err

	case OpSwap:
		a, err := stack.top(0)
		if err != nil {
			return err
		}
		b, err := stack.top(1)
		if err != nil {
			return err
		}
		*a, *b = *b, *a
		return nil

	case OpOver:
		v, err := stack.top(1)
		if err != nil {
			return err
		}
		return stack.push(*v)

	case OpPlus:
		return binOp(ctx, stack, func(a, b uint64) uint64 { return a + b })
	case OpMinus:
		return binOpOrdered(ctx, stack, func(top, second uint64) uint64 { return second - top })
	case OpMul:
		return binOp(ctx, stack, func(a, b uint64) uint64 { return a * b })
	case OpAnd:
		return binOp(ctx, stack, func(a, b uint64) uint64 { return a & b })
	case OpOr:
		return binOp(ctx, stack, func(a, b uint64) uint64 { return a | b })
	case OpXor:
		return binOp(ctx, stack, func(a, b uint64) uint64 { return a ^ b })

	case OpPlusUconst:
		v, err := stack.top(0)
		if err != nil {
			return err
		}
		*v = mask(ctx, *v+uint64(op.Number))
		return nil

	case OpNot:
		v, err := stack.top(0)
		if err != nil {
			return err
		}
		*v = mask(ctx, ^*v)
		return nil

	case OpNeg:
		v, err := stack.top(0)
		if err != nil {
			return err
		}
		*v = mask(ctx, uint64(-int64(*v)))
		return nil

	case OpNop:
		return nil

	case OpDerefSize:
		return ErrUnsupportedOperation

	case OpDeref:
		return execDeref(ctx, stack)

	default:
		return ErrUnsupportedOperation
	}
}

// binOp pops two values (the original's stack.pop() + stack.pop()
// evaluation order: the first pop is the right operand syntactically,
// but plus/mul/and/or/xor are all commutative, so order doesn't
// matter) and pushes the result.
func binOp(ctx *ExpressionContext, stack *ExpressionStack, f func(a, b uint64) uint64) error {
	a, err := stack.pop()
	if err != nil {
		return err
	}
	b, err := stack.pop()
	if err != nil {
		return err
	}
	return stack.push(mask(ctx, f(a, b)))
}

// binOpOrdered is like binOp but for non-commutative operators
// (minus): per DWARF semantics, the former top of the stack is
// subtracted from the former second entry.
func binOpOrdered(ctx *ExpressionContext, stack *ExpressionStack, f func(top, second uint64) uint64) error {
	top, err := stack.pop()
	if err != nil {
		return err
	}
	second, err := stack.pop()
	if err != nil {
		return err
	}
	return stack.push(mask(ctx, f(top, second)))
}

func execBreg(op *Op, ctx *ExpressionContext, stack *ExpressionStack) error {
	if ctx.Cursor == nil {
		return ErrMissingStackContext
	}
	regNum := int(op.Atom - OpBreg0)
	v, err := ctx.Cursor.Register(regNum)
	if err != nil {
		return fmt.Errorf("reading register %d: %w", regNum, err)
	}
	return stack.push(mask(ctx, v+uint64(op.Number)))
}

func execCallFrameCFA(ctx *ExpressionContext, stack *ExpressionStack) error {
	if ctx.Cursor == nil {
		return ErrMissingStackContext
	}
	caller, err := ctx.Cursor.StepUp()
	if err != nil {
		return fmt.Errorf("unwinding to find CFA: %w", err)
	}
	sp, err := caller.Register(ctx.arch().StackPointerDwarfRegister)
	if err != nil {
		return fmt.Errorf("reading caller SP: %w", err)
	}
	return stack.push(sp)
}

func execDeref(ctx *ExpressionContext, stack *ExpressionStack) error {
	if ctx.Space == nil {
		return fmt.Errorf("dwarfexpr: missing address space")
	}
	addr, err := stack.top(0)
	if err != nil {
		return err
	}
	buf := make([]byte, ctx.wordBits()/8)
	if err := ctx.Space.ReadMemory(addrspace.Address(*addr), buf); err != nil {
		return fmt.Errorf("dereferencing %#x: %w", *addr, err)
	}
	bo := ctx.arch().ByteOrder
	var v uint64
	switch len(buf) {
	case 4:
		v = uint64(bo.Uint32(buf))
	case 8:
		v = bo.Uint64(buf)
	default:
		return fmt.Errorf("dwarfexpr: unsupported deref width %d bytes", len(buf))
	}
	*addr = v
	return nil
}

func mask(ctx *ExpressionContext, v uint64) uint64 {
	return v & ctx.mask()
}
