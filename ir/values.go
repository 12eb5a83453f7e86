package ir

import (
	"fmt"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/resource"
)

// AnyValue is implemented by every value view.
type AnyValue interface {
	AsValue() Value
}

// Value is a borrowed view of a native value. Its scope is the arena that
// owns the underlying object: the context for constants and metadata, the
// function arena for arguments, blocks and attached instructions.
type Value struct {
	ctx   *Context
	scope *resource.Arena
	ref   native.Ref
	tag   resource.Tag
	h     resource.Handle
	kind  native.ValueKind
}

// AsValue returns v.
func (v Value) AsValue() Value { return v }

// IsZero reports whether the view was never initialized.
func (v Value) IsZero() bool { return v.ctx == nil }

// Kind returns the value category.
func (v Value) Kind() native.ValueKind { return v.kind }

// Context returns the owning context.
func (v Value) Context() *Context { return v.ctx }

func (v Value) check() error {
	if v.ctx == nil || v.scope == nil {
		return errors.InvalidInput(errors.PhaseAccess, "zero value view")
	}
	if err := v.scope.Check(v.tag); err != nil {
		return err
	}
	if v.h != 0 && !v.scope.Contains(v.h) {
		return errors.StaleHandle(errors.PhaseAccess, v.kind.String())
	}
	return nil
}

// moduleArena returns the module arena v belongs to, or nil for values owned
// by the context.
func (v Value) moduleArena() *resource.Arena {
	if v.scope == v.ctx.arena {
		return nil
	}
	return v.scope.Parent()
}

func (v Value) isConstantKind() bool {
	switch v.kind {
	case native.ValueConstantInt, native.ValueConstantStruct, native.ValueConstantString,
		native.ValueMetadataString, native.ValueMetadataNode:
		return true
	}
	return false
}

// Name returns the value name.
func (v Value) Name() (string, error) {
	if err := v.check(); err != nil {
		return "", err
	}
	return v.ctx.lib.GetValueName(v.ref), nil
}

// SetName renames the value. Constants and metadata are uniqued and cannot
// be named.
func (v Value) SetName(name string) error {
	if err := v.check(); err != nil {
		return err
	}
	if v.isConstantKind() {
		return errors.InvalidInput(errors.PhaseBuild, "cannot name a "+v.kind.String())
	}
	v.ctx.lib.SetValueName(v.ref, name)
	return nil
}

// Type returns the type of the value.
func (v Value) Type() (Type, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	return v.ctx.wrapType(v.ctx.lib.TypeOf(v.ref)), nil
}

// NumOperands returns the number of operands of an instruction, constant
// struct or metadata node.
func (v Value) NumOperands() (int, error) {
	if err := v.check(); err != nil {
		return 0, err
	}
	return v.ctx.lib.GetNumOperands(v.ref), nil
}

// Operand returns operand i.
func (v Value) Operand(i int) (Value, error) {
	n, err := v.NumOperands()
	if err != nil {
		return Value{}, err
	}
	if i < 0 || i >= n {
		return Value{}, errors.InvalidInput(errors.PhaseAccess, fmt.Sprintf("operand %d out of range [0, %d)", i, n))
	}
	return v.ctx.wrapValue(v.ctx.lib.GetOperand(v.ref, i))
}

// IsConst reports whether the value is a constant.
func (v Value) IsConst() (bool, error) {
	if err := v.check(); err != nil {
		return false, err
	}
	return v.ctx.lib.IsConstant(v.ref), nil
}

// ReplaceAllUsesWith rewrites every use of v to r. Both values must have the
// same type and r must be usable in v's module.
func (v Value) ReplaceAllUsesWith(r AnyValue) error {
	if err := v.check(); err != nil {
		return err
	}
	rv, err := valueOf(r)
	if err != nil {
		return err
	}
	if err := v.ctx.owns(errors.PhaseBuild, rv.ctx, "replacement"); err != nil {
		return err
	}
	if m := rv.moduleArena(); m != nil && m != v.moduleArena() {
		return errors.CrossModule(errors.PhaseBuild, "replacement")
	}
	lib := v.ctx.lib
	if vt, rt := lib.TypeOf(v.ref), lib.TypeOf(rv.ref); vt != rt {
		return errors.TypeMismatch(errors.PhaseBuild, v.ctx.wrapType(vt).String(), v.ctx.wrapType(rt).String())
	}
	lib.ReplaceAllUsesWith(v.ref, rv.ref)
	return nil
}

// ConstZExtValue returns an integer constant zero-extended to 64 bits.
func (v Value) ConstZExtValue() (uint64, error) {
	if err := v.checkKind(native.ValueConstantInt); err != nil {
		return 0, err
	}
	return v.ctx.lib.ConstIntGetZExtValue(v.ref), nil
}

// ConstSExtValue returns an integer constant sign-extended to 64 bits.
func (v Value) ConstSExtValue() (int64, error) {
	if err := v.checkKind(native.ValueConstantInt); err != nil {
		return 0, err
	}
	return v.ctx.lib.ConstIntGetSExtValue(v.ref), nil
}

// IsConstString reports whether the value is a constant byte string.
func (v Value) IsConstString() bool {
	return v.kind == native.ValueConstantString && v.check() == nil
}

// StringConstant returns the bytes of a constant string, including the
// trailing NUL when it has one.
func (v Value) StringConstant() ([]byte, error) {
	if err := v.checkKind(native.ValueConstantString); err != nil {
		return nil, err
	}
	return v.ctx.lib.GetAsString(v.ref), nil
}

func (v Value) checkKind(want native.ValueKind) error {
	if err := v.check(); err != nil {
		return err
	}
	if v.kind != want {
		return errors.TypeMismatch(errors.PhaseAccess, want.String(), v.kind.String())
	}
	return nil
}

// AsFunction returns the function view of v.
func (v Value) AsFunction() (FunctionValue, bool) {
	if v.kind != native.ValueFunction || v.ctx == nil {
		return FunctionValue{}, false
	}
	return FunctionValue{v}, true
}

// AsInstruction returns the instruction view of v.
func (v Value) AsInstruction() (InstructionValue, bool) {
	if v.kind != native.ValueInstruction || v.ctx == nil {
		return InstructionValue{}, false
	}
	return InstructionValue{v}, true
}

// AsBasicBlock returns the block view of v.
func (v Value) AsBasicBlock() (BasicBlock, bool) {
	if v.kind != native.ValueBasicBlock || v.ctx == nil {
		return BasicBlock{}, false
	}
	return BasicBlock{v}, true
}

// String returns the value name, or its kind for unnamed values.
func (v Value) String() string {
	if err := v.check(); err != nil {
		return "<" + string(errors.KindOf(err)) + ">"
	}
	if name := v.ctx.lib.GetValueName(v.ref); name != "" {
		return name
	}
	return v.kind.String()
}

func valueOf(av AnyValue) (Value, error) {
	if av == nil {
		return Value{}, errors.InvalidInput(errors.PhaseAccess, "nil value")
	}
	v := av.AsValue()
	if err := v.check(); err != nil {
		return Value{}, err
	}
	return v, nil
}

// ConstInt returns the constant v of type t, truncated to its width. For
// types wider than 64 bits signExtend fills the upper bits from bit 63.
// Constants with equal bit patterns share one handle.
func (t IntType) ConstInt(v uint64, signExtend bool) (Value, error) {
	if err := t.check(); err != nil {
		return Value{}, err
	}
	c := t.ctx
	width := c.lib.GetIntTypeWidth(t.ref)
	norm := v
	if width < 64 {
		norm &= 1<<width - 1
	}
	key := internKey{kind: internConstInt, ref: t.ref, n: norm, flag: width > 64 && signExtend && int64(v) < 0}
	ref, err := c.intern("integer constant", key, func() native.Ref {
		return c.lib.ConstInt(t.ref, v, signExtend)
	})
	if err != nil {
		return Value{}, err
	}
	return c.constant(ref, native.ValueConstantInt), nil
}

// ConstZero returns the zero constant of t.
func (t IntType) ConstZero() (Value, error) {
	return t.ConstInt(0, false)
}

// ConstAllOnes returns the constant with every bit of t set.
func (t IntType) ConstAllOnes() (Value, error) {
	return t.ConstInt(^uint64(0), true)
}

// ConstStruct returns the literal constant structure of vals.
func (c *Context) ConstStruct(vals []AnyValue, packed bool) (Value, error) {
	refs, err := c.constRefs(vals)
	if err != nil {
		return Value{}, err
	}
	key := internKey{kind: internConstStruct, s: refsKey(refs), flag: packed}
	ref, err := c.intern("struct constant", key, func() native.Ref {
		return c.lib.ConstStructInContext(c.ref, refs, packed)
	})
	if err != nil {
		return Value{}, err
	}
	return c.constant(ref, native.ValueConstantStruct), nil
}

// ConstString returns the constant byte array holding data, with a trailing
// NUL when nullTerminated is set.
func (c *Context) ConstString(data []byte, nullTerminated bool) (Value, error) {
	key := internKey{kind: internConstString, s: string(data), flag: nullTerminated}
	ref, err := c.intern("string constant", key, func() native.Ref {
		return c.lib.ConstStringInContext(c.ref, data, !nullTerminated)
	})
	if err != nil {
		return Value{}, err
	}
	return c.constant(ref, native.ValueConstantString), nil
}

// constRefs validates context-owned values of c.
func (c *Context) constRefs(vals []AnyValue) ([]native.Ref, error) {
	if err := c.check(errors.PhaseIntern); err != nil {
		return nil, err
	}
	refs := make([]native.Ref, len(vals))
	for i, av := range vals {
		v, err := valueOf(av)
		if err != nil {
			return nil, err
		}
		if err := c.owns(errors.PhaseIntern, v.ctx, fmt.Sprintf("value %d", i)); err != nil {
			return nil, err
		}
		if !v.isConstantKind() {
			return nil, errors.InvalidInput(errors.PhaseIntern, fmt.Sprintf("value %d is a %s, not a constant", i, v.kind))
		}
		refs[i] = v.ref
	}
	return refs, nil
}
