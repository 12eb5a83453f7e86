package main

import (
	"github.com/wippyai/ir-runtime/ir"
	"github.com/wippyai/ir-runtime/native"
)

// buildDemo creates the built-in module used when no bitcode is loaded:
//
//	i32 add(i32 a, i32 b)
//	i32 mul_add(i32 a, i32 b, i32 c)
//	i64 max(i64 a, i64 b)
func buildDemo(ctx *ir.Context) (mod *ir.Module, err error) {
	mod, err = ctx.NewModule("demo")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = mod.Dispose()
			mod = nil
		}
	}()

	b, err := ctx.NewBuilder()
	if err != nil {
		return nil, err
	}
	defer b.Dispose()

	i32, err := ctx.Int32Type()
	if err != nil {
		return nil, err
	}
	i64, err := ctx.Int64Type()
	if err != nil {
		return nil, err
	}

	_, p, err := define(ctx, b, mod, "add", i32, i32, i32)
	if err != nil {
		return nil, err
	}
	sum, err := b.BuildAdd(p[0], p[1], "sum")
	if err != nil {
		return nil, err
	}
	if _, err = b.BuildReturn(sum); err != nil {
		return nil, err
	}

	_, p, err = define(ctx, b, mod, "mul_add", i32, i32, i32, i32)
	if err != nil {
		return nil, err
	}
	prod, err := b.BuildMul(p[0], p[1], "prod")
	if err != nil {
		return nil, err
	}
	res, err := b.BuildAdd(prod, p[2], "res")
	if err != nil {
		return nil, err
	}
	if _, err = b.BuildReturn(res); err != nil {
		return nil, err
	}

	maxFn, p, err := define(ctx, b, mod, "max", i64, i64, i64)
	if err != nil {
		return nil, err
	}
	gt, err := b.BuildICmp(native.IntSGT, p[0], p[1], "gt")
	if err != nil {
		return nil, err
	}
	left, err := ctx.AppendBasicBlock(maxFn, "left")
	if err != nil {
		return nil, err
	}
	right, err := ctx.AppendBasicBlock(maxFn, "right")
	if err != nil {
		return nil, err
	}
	if _, err = b.BuildCondBr(gt, left, right); err != nil {
		return nil, err
	}
	for i, bb := range []ir.BasicBlock{left, right} {
		if err = b.PositionAtEnd(bb); err != nil {
			return nil, err
		}
		if _, err = b.BuildReturn(p[i]); err != nil {
			return nil, err
		}
	}

	if err = mod.Verify(); err != nil {
		return nil, err
	}
	return mod, nil
}

// define adds a function with an entry block and positions b at its end.
func define(ctx *ir.Context, b *ir.Builder, mod *ir.Module, name string, ret ir.Type, params ...ir.Type) (ir.FunctionValue, []ir.Value, error) {
	fnTy, err := ctx.FunctionType(ret, params, false)
	if err != nil {
		return ir.FunctionValue{}, nil, err
	}
	fn, err := mod.AddFunction(name, fnTy)
	if err != nil {
		return ir.FunctionValue{}, nil, err
	}
	entry, err := ctx.AppendBasicBlock(fn, "entry")
	if err != nil {
		return ir.FunctionValue{}, nil, err
	}
	if err := b.PositionAtEnd(entry); err != nil {
		return ir.FunctionValue{}, nil, err
	}
	args, err := fn.Params()
	if err != nil {
		return ir.FunctionValue{}, nil, err
	}
	names := []string{"a", "b", "c"}
	for i, p := range args {
		if i < len(names) {
			if err := p.SetName(names[i]); err != nil {
				return ir.FunctionValue{}, nil, err
			}
		}
	}
	return fn, args, nil
}
