package ir_test

import (
	"bytes"
	"testing"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/ir"
	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/native/golib"
)

func TestInstructionLifecycle(t *testing.T) {
	f := newFixture(t)
	ok(t, f.builder.PositionBefore(f.ret))
	extra, err := f.builder.BuildMul(f.a, f.b, "extra")
	ok(t, err)

	detached, err := extra.RemoveFromParent()
	ok(t, err)
	_, err = extra.Opcode()
	wantErr(t, err, errors.ErrStaleHandle)
	if d, _ := detached.IsDetached(); !d {
		t.Fatal("removed instruction is attached")
	}
	if parent, err := detached.Parent(); err != nil || !parent.IsZero() {
		t.Fatalf("detached parent = %v, %v", parent, err)
	}
	wantErr(t, detached.EraseFromParent(), errors.ErrInvalidState)
	if next, err := detached.Next(); err != nil || !next.IsZero() {
		t.Fatalf("detached next = %v, %v", next, err)
	}

	attached, err := f.builder.Insert(detached, "again")
	ok(t, err)
	_, err = detached.Opcode()
	wantErr(t, err, errors.ErrStaleHandle)
	if name, _ := attached.Name(); name != "again" {
		t.Fatalf("inserted name = %q", name)
	}
	_, err = f.builder.Insert(attached, "twice")
	wantErr(t, err, errors.ErrInvalidState)
	wantErr(t, attached.Delete(), errors.ErrInvalidState)

	ok(t, attached.EraseFromParent())
	_, err = attached.Opcode()
	wantErr(t, err, errors.ErrStaleHandle)
	wantErr(t, attached.EraseFromParent(), errors.ErrStaleHandle)

	clone, err := f.sum.Clone()
	ok(t, err)
	ok(t, clone.Delete())
	wantErr(t, clone.Delete(), errors.ErrStaleHandle)
	if n := f.lib.calls["DeleteInstruction"]; n != 1 {
		t.Fatalf("DeleteInstruction called %d times, want 1", n)
	}

	ok(t, f.mod.Verify())
	requireNoFaults(t, f.lib.Library)
}

func TestDetachedInstructionDiesWithModule(t *testing.T) {
	lib := newCountingLib()
	f := newFixtureOn(t, lib, newContext(t, lib))
	removed, err := f.sum.RemoveFromParent()
	ok(t, err)
	_, err = f.sum.Clone()
	wantErr(t, err, errors.ErrStaleHandle)
	clone, err := removed.Clone()
	ok(t, err)
	if !f.mod.Owns(clone) {
		t.Fatal("clone not owned by the module of its original")
	}

	// The operands of both instructions are parameters of the module's
	// function, so the module takes the instructions with it.
	ok(t, f.mod.Dispose())
	if n := lib.calls["DeleteInstruction"]; n != 2 {
		t.Fatalf("DeleteInstruction called %d times, want 2", n)
	}
	other, err := f.ctx.NewModule("other")
	ok(t, err)
	g, err := other.AddFunction("g", f.fnTy)
	ok(t, err)
	entry, err := f.ctx.AppendBasicBlock(g, "entry")
	ok(t, err)
	ok(t, f.builder.PositionAtEnd(entry))

	tests := map[string]func() error{
		"operand": func() error { _, err := clone.Operand(0); return err },
		"opcode":  func() error { _, err := removed.Opcode(); return err },
		"insert":  func() error { _, err := f.builder.Insert(clone, ""); return err },
		"delete":  func() error { return removed.Delete() },
	}
	for name, call := range tests {
		t.Run(name, func(t *testing.T) {
			wantErr(t, call(), errors.ErrStaleHandle)
		})
	}

	ok(t, f.ctx.Dispose())
	if n := lib.calls["DeleteInstruction"]; n != 2 {
		t.Fatalf("DeleteInstruction called %d times after context dispose, want 2", n)
	}
	if live := lib.Stats().Live; live != 0 {
		t.Fatalf("%d native objects leaked", live)
	}
	requireNoFaults(t, lib.Library)
}

func TestDetachedInstructionDiesWithFunction(t *testing.T) {
	f := newFixture(t)
	clone, err := f.sum.Clone()
	ok(t, err)
	ok(t, f.fn.Delete())
	_, err = clone.Operand(1)
	wantErr(t, err, errors.ErrStaleHandle)
	if n := f.lib.calls["DeleteInstruction"]; n != 1 {
		t.Fatalf("DeleteInstruction called %d times, want 1", n)
	}
	ok(t, f.mod.Verify())
	requireNoFaults(t, f.lib.Library)
}

func TestDetachedInstructionMovesBetweenFunctions(t *testing.T) {
	f := newFixture(t)
	one, err := f.i32.ConstInt(1, false)
	ok(t, err)
	ok(t, f.builder.PositionBefore(f.ret))
	inc, err := f.builder.BuildAdd(one, one, "inc")
	ok(t, err)
	detached, err := inc.RemoveFromParent()
	ok(t, err)

	g, err := f.mod.AddFunction("g", f.fnTy)
	ok(t, err)
	entry, err := f.ctx.AppendBasicBlock(g, "entry")
	ok(t, err)
	ok(t, f.builder.PositionAtEnd(entry))
	moved, err := f.builder.Insert(detached, "two")
	ok(t, err)
	_, err = f.builder.BuildReturn(moved)
	ok(t, err)

	ok(t, f.fn.Delete())
	if op, err := moved.Opcode(); err != nil || op != native.OpAdd {
		t.Fatalf("moved instruction = %s, %v", op, err)
	}
	ok(t, f.mod.Verify())
	requireNoFaults(t, f.lib.Library)
}

func TestInsertRejectsOperandsOfOtherModule(t *testing.T) {
	f := newFixture(t)
	other, err := f.ctx.NewModule("other")
	ok(t, err)
	fn, err := other.AddFunction("g", f.fnTy)
	ok(t, err)
	entry, err := f.ctx.AppendBasicBlock(fn, "entry")
	ok(t, err)
	clone, err := f.sum.Clone()
	ok(t, err)

	ok(t, f.builder.PositionAtEnd(entry))
	_, err = f.builder.Insert(clone, "")
	wantErr(t, err, errors.ErrCrossContext)
	if d, _ := clone.IsDetached(); !d {
		t.Fatal("rejected insert attached the instruction")
	}
	requireNoFaults(t, f.lib.Library)
}

func TestReplaceAllUsesWith(t *testing.T) {
	f := newFixture(t)
	ok(t, f.builder.PositionBefore(f.ret))
	doubled, err := f.builder.BuildAdd(f.a, f.a, "doubled")
	ok(t, err)

	ok(t, f.sum.ReplaceAllUsesWith(doubled))
	op, err := f.ret.Operand(0)
	ok(t, err)
	if ir.UnsafeRef(op) != ir.UnsafeRef(doubled) {
		t.Fatal("ret still uses the old value")
	}
	requireNoFaults(t, f.lib.Library)
}

func TestValueNames(t *testing.T) {
	f := newFixture(t)
	if name, _ := f.a.Name(); name != "a" {
		t.Fatalf("param name = %q", name)
	}
	if f.sum.String() != "sum" {
		t.Fatalf("String() = %q", f.sum.String())
	}
	seven, err := f.i32.ConstInt(7, false)
	ok(t, err)
	wantErr(t, seven.SetName("seven"), errors.ErrInvalidInput)
	if isConst, _ := seven.IsConst(); !isConst {
		t.Fatal("constant is not constant")
	}
	if isConst, _ := f.sum.IsConst(); isConst {
		t.Fatal("instruction is constant")
	}
	ty, err := f.sum.Type()
	ok(t, err)
	if ty.String() != "i32" {
		t.Fatalf("type = %s", ty)
	}
	_, err = f.sum.ConstZExtValue()
	wantErr(t, err, errors.ErrTypeMismatch)

	if fn, isFn := f.fn.AsValue().AsFunction(); !isFn || ir.UnsafeRef(fn) != ir.UnsafeRef(f.fn) {
		t.Fatal("AsFunction failed")
	}
	if _, isInst := f.a.AsInstruction(); isInst {
		t.Fatal("param converted to an instruction")
	}
}

func TestConstants(t *testing.T) {
	lib := newCountingLib()
	ctx := newContext(t, lib)
	i32, err := ctx.Int32Type()
	ok(t, err)
	i64, err := ctx.Int64Type()
	ok(t, err)

	zero, err := i32.ConstZero()
	ok(t, err)
	if v, _ := zero.ConstZExtValue(); v != 0 {
		t.Fatalf("zero = %d", v)
	}
	neg, err := i64.ConstInt(^uint64(4), true)
	ok(t, err)
	if v, _ := neg.ConstSExtValue(); v != -5 {
		t.Fatalf("neg = %d", v)
	}

	str, err := ctx.ConstString([]byte("hi"), true)
	ok(t, err)
	if !str.IsConstString() {
		t.Fatal("string constant not recognized")
	}
	data, err := str.StringConstant()
	ok(t, err)
	if !bytes.Equal(data, []byte("hi\x00")) {
		t.Fatalf("string = %q", data)
	}
	raw, err := ctx.ConstString([]byte("hi"), false)
	ok(t, err)
	if ir.UnsafeRef(raw) == ir.UnsafeRef(str) {
		t.Fatal("terminated and raw strings share a handle")
	}

	pair, err := ctx.ConstStruct([]ir.AnyValue{zero, neg}, false)
	ok(t, err)
	again, err := ctx.ConstStruct([]ir.AnyValue{zero, neg}, false)
	ok(t, err)
	if ir.UnsafeRef(pair) != ir.UnsafeRef(again) {
		t.Fatal("constant structs were not interned")
	}
	if n, _ := pair.NumOperands(); n != 2 {
		t.Fatalf("struct has %d fields", n)
	}
	ty, err := pair.Type()
	ok(t, err)
	if ty.String() != "{ i32, i64 }" {
		t.Fatalf("struct type = %s", ty)
	}
	requireNoFaults(t, lib.Library)
}

func TestAttributes(t *testing.T) {
	f := newFixture(t)
	noinline, err := f.ctx.EnumAttribute(3, 0)
	ok(t, err)
	fp, err := f.ctx.StringAttribute("frame-pointer", "none")
	ok(t, err)
	ok(t, f.fn.AddAttribute(noinline))
	ok(t, f.fn.AddAttribute(fp))

	attrs, err := f.fn.Attributes()
	ok(t, err)
	if len(attrs) != 2 {
		t.Fatalf("got %d attributes", len(attrs))
	}
	if kind, err := attrs[0].EnumKind(); err != nil || kind != 3 {
		t.Fatalf("enum kind = %d, %v", kind, err)
	}
	if v, err := attrs[1].StringValue(); err != nil || v != "none" {
		t.Fatalf("string value = %q, %v", v, err)
	}
	_, err = attrs[0].StringKey()
	wantErr(t, err, errors.ErrTypeMismatch)

	other := newContext(t, f.lib)
	foreign, err := other.EnumAttribute(3, 0)
	ok(t, err)
	wantErr(t, f.fn.AddAttribute(foreign), errors.ErrCrossContext)
}

func TestKindID(t *testing.T) {
	ctx := newContext(t, newCountingLib())
	dbg, err := ctx.KindID("dbg")
	ok(t, err)
	again, err := ctx.KindID("dbg")
	ok(t, err)
	custom, err := ctx.KindID("custom.kind")
	ok(t, err)
	if dbg != again || dbg == custom || dbg == 0 {
		t.Fatalf("ids: dbg=%d again=%d custom=%d", dbg, again, custom)
	}
}

func TestKindIDDeadNativeContext(t *testing.T) {
	lib := golib.New(nil)
	ctx := newContext(t, lib)
	_, err := ctx.KindID("dbg")
	ok(t, err)

	lib.ContextDispose(ir.UnsafeContextRef(ctx))
	id, err := ctx.KindID("range")
	wantErr(t, err, errors.ErrStaleHandle)
	if id != 0 {
		t.Fatalf("id = %d", id)
	}
	// cached ids need no native call
	if _, err := ctx.KindID("dbg"); err != nil {
		t.Fatal(err)
	}
}
