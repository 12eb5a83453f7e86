package ir_test

import (
	"testing"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/ir"
	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/native/golib"
)

// countingLib counts calls of native constructors and disposers.
type countingLib struct {
	*golib.Library
	calls map[string]int
}

func newCountingLib() *countingLib {
	return &countingLib{Library: golib.New(nil), calls: make(map[string]int)}
}

func (l *countingLib) IntTypeInContext(ctx native.Ref, bits uint32) native.Ref {
	l.calls["IntTypeInContext"]++
	return l.Library.IntTypeInContext(ctx, bits)
}

func (l *countingLib) FunctionType(ret native.Ref, params []native.Ref, varArg bool) native.Ref {
	l.calls["FunctionType"]++
	return l.Library.FunctionType(ret, params, varArg)
}

func (l *countingLib) StructTypeInContext(ctx native.Ref, fields []native.Ref, packed bool) native.Ref {
	l.calls["StructTypeInContext"]++
	return l.Library.StructTypeInContext(ctx, fields, packed)
}

func (l *countingLib) ConstInt(ty native.Ref, v uint64, signExt bool) native.Ref {
	l.calls["ConstInt"]++
	return l.Library.ConstInt(ty, v, signExt)
}

func (l *countingLib) MDStringInContext(ctx native.Ref, s string) native.Ref {
	l.calls["MDStringInContext"]++
	return l.Library.MDStringInContext(ctx, s)
}

func (l *countingLib) CreateEnumAttribute(ctx native.Ref, kind uint32, v uint64) native.Ref {
	l.calls["CreateEnumAttribute"]++
	return l.Library.CreateEnumAttribute(ctx, kind, v)
}

func (l *countingLib) DisposeModule(m native.Ref) {
	l.calls["DisposeModule"]++
	l.Library.DisposeModule(m)
}

func (l *countingLib) DisposeBuilder(b native.Ref) {
	l.calls["DisposeBuilder"]++
	l.Library.DisposeBuilder(b)
}

func (l *countingLib) DisposeMemoryBuffer(buf native.Ref) {
	l.calls["DisposeMemoryBuffer"]++
	l.Library.DisposeMemoryBuffer(buf)
}

func (l *countingLib) DeleteInstruction(inst native.Ref) {
	l.calls["DeleteInstruction"]++
	l.Library.DeleteInstruction(inst)
}

func ok(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", errors.KindOf(target), err)
	}
}

func requireNoFaults(t *testing.T, lib *golib.Library) {
	t.Helper()
	for _, f := range lib.Faults() {
		t.Errorf("native fault: %s", f)
	}
}

func newContext(t *testing.T, lib native.Library) *ir.Context {
	t.Helper()
	ctx, err := ir.NewContextWithConfig(&ir.Config{Library: lib})
	ok(t, err)
	t.Cleanup(func() { _ = ctx.Dispose() })
	return ctx
}

// fixture holds i32 add(i32 %a, i32 %b) { %sum = add %a, %b; ret %sum }
// with the builder positioned at the end of the entry block.
type fixture struct {
	lib     *countingLib
	ctx     *ir.Context
	mod     *ir.Module
	builder *ir.Builder
	i32     ir.IntType
	fnTy    ir.FunctionType
	fn      ir.FunctionValue
	entry   ir.BasicBlock
	a, b    ir.Value
	sum     ir.InstructionValue
	ret     ir.InstructionValue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lib := newCountingLib()
	return newFixtureOn(t, lib, newContext(t, lib))
}

func newFixtureOn(t *testing.T, lib *countingLib, ctx *ir.Context) *fixture {
	t.Helper()
	f := &fixture{lib: lib, ctx: ctx}
	var err error
	f.mod, err = ctx.NewModule("fixture")
	ok(t, err)
	f.i32, err = ctx.Int32Type()
	ok(t, err)
	f.fnTy, err = ctx.FunctionType(f.i32, []ir.Type{f.i32, f.i32}, false)
	ok(t, err)
	f.fn, err = f.mod.AddFunction("add", f.fnTy)
	ok(t, err)
	params, err := f.fn.Params()
	ok(t, err)
	f.a, f.b = params[0], params[1]
	ok(t, f.a.SetName("a"))
	ok(t, f.b.SetName("b"))
	f.entry, err = ctx.AppendBasicBlock(f.fn, "entry")
	ok(t, err)
	f.builder, err = ctx.NewBuilder()
	ok(t, err)
	ok(t, f.builder.PositionAtEnd(f.entry))
	f.sum, err = f.builder.BuildAdd(f.a, f.b, "sum")
	ok(t, err)
	f.ret, err = f.builder.BuildReturn(f.sum)
	ok(t, err)
	return f
}
