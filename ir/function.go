package ir

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
)

// FunctionValue is a view of a function. Its scope is the function arena,
// which is torn down when the function is deleted or its module disposed.
type FunctionValue struct{ Value }

// FunctionType returns the signature of the function.
func (f FunctionValue) FunctionType() (FunctionType, error) {
	if err := f.check(); err != nil {
		return FunctionType{}, err
	}
	return FunctionType{f.ctx.typeView(f.ctx.lib.GlobalGetValueType(f.ref))}, nil
}

// CountParams returns the number of parameters.
func (f FunctionValue) CountParams() (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	return f.ctx.lib.CountParams(f.ref), nil
}

// Param returns parameter i.
func (f FunctionValue) Param(i int) (Value, error) {
	n, err := f.CountParams()
	if err != nil {
		return Value{}, err
	}
	if i < 0 || i >= n {
		return Value{}, errors.InvalidInput(errors.PhaseAccess, fmt.Sprintf("parameter %d out of range [0, %d)", i, n))
	}
	return f.child(f.ctx.lib.GetParam(f.ref, i), native.ValueArgument), nil
}

// Params returns all parameters.
func (f FunctionValue) Params() ([]Value, error) {
	n, err := f.CountParams()
	if err != nil {
		return nil, err
	}
	out := make([]Value, n)
	for i := range out {
		out[i] = f.child(f.ctx.lib.GetParam(f.ref, i), native.ValueArgument)
	}
	return out, nil
}

// child returns a view of an object owned by the function arena.
func (f FunctionValue) child(ref native.Ref, kind native.ValueKind) Value {
	return Value{ctx: f.ctx, scope: f.scope, ref: ref, tag: f.tag, kind: kind}
}

// CountBasicBlocks returns the number of blocks in the body.
func (f FunctionValue) CountBasicBlocks() (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	return f.ctx.lib.CountBasicBlocks(f.ref), nil
}

// FirstBasicBlock returns the entry block, or a zero view for a declaration.
func (f FunctionValue) FirstBasicBlock() (BasicBlock, error) {
	if err := f.check(); err != nil {
		return BasicBlock{}, err
	}
	return f.block(f.ctx.lib.GetFirstBasicBlock(f.ref)), nil
}

// BasicBlocks returns the blocks of the body in order.
func (f FunctionValue) BasicBlocks() ([]BasicBlock, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	lib := f.ctx.lib
	var out []BasicBlock
	for bb := lib.GetFirstBasicBlock(f.ref); bb != native.Null; bb = lib.GetNextBasicBlock(bb) {
		out = append(out, f.block(bb))
	}
	return out, nil
}

func (f FunctionValue) block(ref native.Ref) BasicBlock {
	if ref == native.Null {
		return BasicBlock{}
	}
	return BasicBlock{f.child(ref, native.ValueBasicBlock)}
}

// IsDeclaration reports whether the function has no body.
func (f FunctionValue) IsDeclaration() (bool, error) {
	n, err := f.CountBasicBlocks()
	return n == 0, err
}

// Module returns the module containing the function.
func (f FunctionValue) Module() (*Module, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	m, ok := f.ctx.modules[f.ctx.lib.GetGlobalParent(f.ref)]
	if !ok {
		return nil, errors.StaleHandle(errors.PhaseAccess, "module")
	}
	return m, nil
}

// Delete removes the function from its module. The function arena is torn
// down, so every view of its arguments, blocks and instructions is stale.
func (f FunctionValue) Delete() error {
	if err := f.check(); err != nil {
		return err
	}
	name := f.ctx.lib.GetValueName(f.ref)
	delete(f.ctx.funcs, f.ref)
	if err := f.scope.Dispose(); err != nil {
		return err
	}
	f.ctx.log.Debug("function deleted", zap.String("function", name))
	return nil
}

// Next returns the following function of the module, or a zero view.
func (f FunctionValue) Next() (FunctionValue, error) {
	if err := f.check(); err != nil {
		return FunctionValue{}, err
	}
	next := f.ctx.lib.GetNextFunction(f.ref)
	if next == native.Null {
		return FunctionValue{}, nil
	}
	return f.ctx.functionValue(next)
}

func (c *Context) functionValue(fn native.Ref) (FunctionValue, error) {
	a, err := c.functionArena(fn)
	if err != nil {
		return FunctionValue{}, err
	}
	return FunctionValue{Value{ctx: c, scope: a, ref: fn, tag: a.Tag(), kind: native.ValueFunction}}, nil
}
