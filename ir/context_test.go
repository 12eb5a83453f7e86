package ir_test

import (
	"testing"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/ir"
	"github.com/wippyai/ir-runtime/native/golib"
)

func TestInternReturnsIdenticalHandles(t *testing.T) {
	lib := newCountingLib()
	ctx := newContext(t, lib)

	a, err := ctx.Int32Type()
	ok(t, err)
	b, err := ctx.IntType(32)
	ok(t, err)
	if ir.UnsafeTypeRef(a) != ir.UnsafeTypeRef(b) {
		t.Fatal("i32 interned twice returned different handles")
	}
	if n := lib.calls["IntTypeInContext"]; n != 1 {
		t.Fatalf("IntTypeInContext called %d times, want 1", n)
	}

	i64, err := ctx.Int64Type()
	ok(t, err)
	if ir.UnsafeTypeRef(a) == ir.UnsafeTypeRef(i64) {
		t.Fatal("i32 and i64 share a handle")
	}

	cases := []struct {
		name  string
		call  string
		build func() (any, error)
	}{
		{"function type", "FunctionType", func() (any, error) {
			ft, err := ctx.FunctionType(a, []ir.Type{a, i64}, false)
			return ir.UnsafeTypeRef(ft), err
		}},
		{"struct type", "StructTypeInContext", func() (any, error) {
			st, err := ctx.StructType([]ir.Type{a, i64}, false)
			return ir.UnsafeTypeRef(st), err
		}},
		{"integer constant", "ConstInt", func() (any, error) {
			v, err := a.ConstInt(7, false)
			return ir.UnsafeRef(v), err
		}},
		{"metadata string", "MDStringInContext", func() (any, error) {
			v, err := ctx.MetadataString("tbaa")
			return ir.UnsafeRef(v), err
		}},
		{"enum attribute", "CreateEnumAttribute", func() (any, error) {
			attr, err := ctx.EnumAttribute(3, 0)
			return attr, err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first, err := tc.build()
			ok(t, err)
			second, err := tc.build()
			ok(t, err)
			if first != second {
				t.Fatalf("handles differ: %v vs %v", first, second)
			}
			if n := lib.calls[tc.call]; n != 1 {
				t.Fatalf("%s called %d times, want 1", tc.call, n)
			}
		})
	}

	stats := ctx.InternStats()
	if stats.Hits < len(cases)+1 || stats.Misses != stats.Entries {
		t.Fatalf("unexpected intern stats %+v", stats)
	}
	requireNoFaults(t, lib.Library)
}

func TestInternNormalizesIntegerConstants(t *testing.T) {
	lib := newCountingLib()
	ctx := newContext(t, lib)
	i8, err := ctx.Int8Type()
	ok(t, err)

	a, err := i8.ConstInt(0x1ff, false)
	ok(t, err)
	b, err := i8.ConstInt(0xff, false)
	ok(t, err)
	c, err := i8.ConstAllOnes()
	ok(t, err)
	if ir.UnsafeRef(a) != ir.UnsafeRef(b) || ir.UnsafeRef(b) != ir.UnsafeRef(c) {
		t.Fatal("constants equal after truncation were not shared")
	}
	if sext, err := c.ConstSExtValue(); err != nil || sext != -1 {
		t.Fatalf("sext = %d, %v", sext, err)
	}
	if zext, err := c.ConstZExtValue(); err != nil || zext != 0xff {
		t.Fatalf("zext = %d, %v", zext, err)
	}

	i128, err := ctx.Int128Type()
	ok(t, err)
	low, err := i128.ConstInt(^uint64(0), false)
	ok(t, err)
	ones, err := i128.ConstAllOnes()
	ok(t, err)
	if ir.UnsafeRef(low) == ir.UnsafeRef(ones) {
		t.Fatal("zero- and sign-extended i128 constants share a handle")
	}
	again, err := i128.ConstInt(^uint64(0), true)
	ok(t, err)
	if ir.UnsafeRef(again) != ir.UnsafeRef(ones) {
		t.Fatal("all-ones i128 constant not shared")
	}
	requireNoFaults(t, lib.Library)
}

func TestContextDisposeStalesEveryView(t *testing.T) {
	lib := newCountingLib()
	ctx, err := ir.NewContextWithConfig(&ir.Config{Library: lib})
	ok(t, err)
	f := newFixtureOn(t, lib, ctx)

	seven, err := f.i32.ConstInt(7, false)
	ok(t, err)
	attr, err := ctx.StringAttribute("frame-pointer", "all")
	ok(t, err)
	clone, err := f.sum.Clone()
	ok(t, err)
	gen := ctx.Arena().Generation()

	ok(t, ctx.Dispose())
	if ctx.Arena().Generation() == gen {
		t.Fatal("generation did not advance")
	}

	accessors := map[string]func() error{
		"type":        func() error { _, err := f.i32.BitWidth(); return err },
		"fn type":     func() error { _, err := f.fnTy.ReturnType(); return err },
		"constant":    func() error { _, err := seven.ConstZExtValue(); return err },
		"function":    func() error { _, err := f.fn.Name(); return err },
		"param":       func() error { _, err := f.a.Type(); return err },
		"block":       func() error { _, err := f.entry.Instructions(); return err },
		"instruction": func() error { _, err := f.sum.Opcode(); return err },
		"detached":    func() error { _, err := clone.Opcode(); return err },
		"attribute":   func() error { _, err := attr.StringKey(); return err },
		"module":      func() error { _, err := f.mod.Name(); return err },
		"builder":     func() error { _, err := f.builder.BuildAdd(f.a, f.b, "x"); return err },
		"new type":    func() error { _, err := ctx.Int64Type(); return err },
		"new module":  func() error { _, err := ctx.NewModule("late"); return err },
	}
	for name, access := range accessors {
		t.Run(name, func(t *testing.T) {
			wantErr(t, access(), errors.ErrStaleHandle)
		})
	}

	if n := lib.calls["DisposeModule"]; n != 0 {
		t.Fatalf("DisposeModule called %d times after context teardown", n)
	}
	if n := lib.calls["DisposeBuilder"]; n != 1 {
		t.Fatalf("DisposeBuilder called %d times, want 1", n)
	}
	if n := lib.calls["DeleteInstruction"]; n != 1 {
		t.Fatalf("DeleteInstruction called %d times, want 1", n)
	}

	// Releasing wrappers after the context is gone must not reach the
	// native library again.
	ok(t, f.mod.Dispose())
	ok(t, f.builder.Dispose())
	ok(t, ctx.Dispose())

	if live := lib.Stats().Live; live != 0 {
		t.Fatalf("%d native objects leaked", live)
	}
	requireNoFaults(t, lib.Library)
}

func TestContextArenaEvents(t *testing.T) {
	lib := newCountingLib()
	ctx := newContext(t, lib)
	before := ctx.Arena().Live()

	m, err := ctx.NewModule("m")
	ok(t, err)
	b, err := ctx.NewBuilder()
	ok(t, err)
	if got := ctx.Arena().Live(); got != before+2 {
		t.Fatalf("live = %d, want %d", got, before+2)
	}
	ok(t, m.Dispose())
	ok(t, b.Dispose())
	if got := ctx.Arena().Live(); got != before {
		t.Fatalf("live = %d after release, want %d", got, before)
	}
}

func TestGlobalContext(t *testing.T) {
	var first *ir.Context
	err := ir.WithGlobalContext(func(c *ir.Context) error {
		first = c
		_, err := c.Int32Type()
		return err
	})
	ok(t, err)

	err = ir.WithGlobalContext(func(c *ir.Context) error {
		if c != first {
			t.Fatal("global context changed between calls")
		}
		return c.Dispose()
	})
	wantErr(t, err, errors.ErrInvalidState)
	if first.Disposed() {
		t.Fatal("global context was disposed")
	}
}

func TestMemoryBufferSurvivesContextDispose(t *testing.T) {
	lib := golib.New(nil)
	ctx, err := ir.NewContextWithConfig(&ir.Config{Library: lib})
	ok(t, err)
	buf, err := ir.NewMemoryBuffer(lib, []byte("payload"), "data")
	ok(t, err)

	ok(t, ctx.Dispose())

	data, err := buf.Bytes()
	ok(t, err)
	if string(data) != "payload" {
		t.Fatalf("buffer = %q", data)
	}
	ok(t, buf.Dispose())
	_, err = buf.Len()
	wantErr(t, err, errors.ErrStaleHandle)
	requireNoFaults(t, lib)
}

func TestZeroValueViews(t *testing.T) {
	var (
		ty   ir.IntType
		val  ir.Value
		inst ir.InstructionValue
		attr ir.Attribute
	)
	checks := map[string]error{}
	_, checks["type"] = ty.BitWidth()
	_, checks["value"] = val.Name()
	_, checks["instruction"] = inst.Opcode()
	_, checks["attribute"] = attr.IsEnum()
	for name, err := range checks {
		if !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("%s: expected invalid input, got %v", name, err)
		}
	}
}
