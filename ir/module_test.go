package ir_test

import (
	"strings"
	"testing"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/ir"
)

func TestModuleMove(t *testing.T) {
	f := newFixture(t)

	moved, err := f.mod.Move()
	ok(t, err)

	_, err = f.mod.Name()
	wantErr(t, err, errors.ErrUseAfterMove)
	_, err = f.mod.Move()
	wantErr(t, err, errors.ErrUseAfterMove)
	// Dropping a moved-from wrapper releases nothing.
	ok(t, f.mod.Dispose())

	name, err := moved.Name()
	ok(t, err)
	if name != "fixture" {
		t.Fatalf("name = %q", name)
	}
	// Views issued before the move stay valid.
	if !moved.Owns(f.fn) {
		t.Fatal("moved module does not own its function")
	}
	if fm, err := f.fn.Module(); err != nil || fm != moved {
		t.Fatalf("function module = %p, %v; want %p", fm, err, moved)
	}

	ok(t, moved.Dispose())
	ok(t, moved.Dispose())
	if n := f.lib.calls["DisposeModule"]; n != 1 {
		t.Fatalf("DisposeModule called %d times, want 1", n)
	}
	_, err = f.fn.Name()
	wantErr(t, err, errors.ErrStaleHandle)
	_, err = moved.Name()
	wantErr(t, err, errors.ErrStaleHandle)
	requireNoFaults(t, f.lib.Library)
}

func TestModuleFunctions(t *testing.T) {
	f := newFixture(t)

	got, err := f.mod.Function("add")
	ok(t, err)
	if ir.UnsafeRef(got) != ir.UnsafeRef(f.fn) {
		t.Fatal("lookup returned another function")
	}
	_, err = f.mod.Function("missing")
	wantErr(t, err, errors.ErrNotFound)

	dup, err := f.mod.AddFunction("add", f.fnTy)
	ok(t, err)
	if name, _ := dup.Name(); name == "add" {
		t.Fatal("duplicate function name was not made unique")
	}
	fns, err := f.mod.Functions()
	ok(t, err)
	if len(fns) != 2 {
		t.Fatalf("got %d functions", len(fns))
	}
	if decl, _ := dup.IsDeclaration(); !decl {
		t.Fatal("new function has a body")
	}

	ok(t, dup.Delete())
	_, err = dup.Name()
	wantErr(t, err, errors.ErrStaleHandle)
	fns, err = f.mod.Functions()
	ok(t, err)
	if len(fns) != 1 {
		t.Fatalf("got %d functions after delete", len(fns))
	}
	requireNoFaults(t, f.lib.Library)
}

func TestDeleteFunctionStalesBody(t *testing.T) {
	f := newFixture(t)
	ok(t, f.fn.Delete())

	checks := map[string]error{}
	_, checks["param"] = f.a.Name()
	_, checks["block"] = f.entry.FirstInstruction()
	_, checks["instruction"] = f.sum.Opcode()
	_, checks["builder"] = f.builder.BuildAdd(f.a, f.b, "x")
	for name, err := range checks {
		if name == "builder" {
			wantErr(t, err, errors.ErrInvalidState)
			continue
		}
		if !errors.Is(err, errors.ErrStaleHandle) {
			t.Errorf("%s: expected stale handle, got %v", name, err)
		}
	}
	wantErr(t, f.fn.Delete(), errors.ErrStaleHandle)
	requireNoFaults(t, f.lib.Library)
}

func TestModuleOwns(t *testing.T) {
	f := newFixture(t)
	other, err := f.ctx.NewModule("other")
	ok(t, err)
	seven, err := f.i32.ConstInt(7, false)
	ok(t, err)

	if !f.mod.Owns(f.sum) || !f.mod.Owns(f.a) || !f.mod.Owns(f.entry) {
		t.Fatal("module does not own its values")
	}
	if other.Owns(f.sum) || other.Owns(f.fn) {
		t.Fatal("module owns values of another module")
	}
	if f.mod.Owns(seven) {
		t.Fatal("constants belong to the context, not a module")
	}
}

func TestModuleProperties(t *testing.T) {
	f := newFixture(t)
	ok(t, f.mod.SetName("renamed"))
	ok(t, f.mod.SetTriple("wasm32-unknown-unknown"))

	if name, _ := f.mod.Name(); name != "renamed" {
		t.Fatalf("name = %q", name)
	}
	if triple, _ := f.mod.Triple(); triple != "wasm32-unknown-unknown" {
		t.Fatalf("triple = %q", triple)
	}
	ok(t, f.mod.Verify())

	text := f.mod.String()
	for _, want := range []string{"renamed", "define i32 @add", "add i32", "ret i32 %sum"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestModuleVerifyReportsNativeMessage(t *testing.T) {
	f := newFixture(t)
	fn, err := f.mod.AddFunction("broken", f.fnTy)
	ok(t, err)
	_, err = f.ctx.AppendBasicBlock(fn, "entry")
	ok(t, err)

	err = f.mod.Verify()
	wantErr(t, err, &errors.Error{Kind: errors.KindNative, Phase: errors.PhaseVerify})
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("error does not name the function: %v", err)
	}
	requireNoFaults(t, f.lib.Library)
}

func TestModuleClone(t *testing.T) {
	f := newFixture(t)
	clone, err := f.mod.Clone()
	ok(t, err)

	if clone.String() != f.mod.String() {
		t.Fatal("clone prints differently")
	}
	ok(t, f.mod.Dispose())

	fn, err := clone.Function("add")
	ok(t, err)
	if clone.Owns(f.fn) || !clone.Owns(fn) {
		t.Fatal("clone ownership is wrong")
	}
	ok(t, clone.Verify())
	ok(t, clone.Dispose())
	requireNoFaults(t, f.lib.Library)
}

func TestBitcodeRoundTripConsumesBuffer(t *testing.T) {
	f := newFixture(t)
	buf, err := f.mod.WriteBitcode()
	ok(t, err)
	view, err := buf.View()
	ok(t, err)

	// The buffer is independent of the source context.
	ok(t, f.ctx.Dispose())
	if n, err := view.Len(); err != nil || n == 0 {
		t.Fatalf("bitcode view len = %d, %v", n, err)
	}

	other := newContext(t, f.lib)
	parsed, err := other.ParseBitcode(buf)
	ok(t, err)
	_, err = buf.Len()
	wantErr(t, err, errors.ErrStaleHandle)
	_, err = view.Bytes()
	wantErr(t, err, errors.ErrStaleHandle)
	ok(t, buf.Dispose())
	if n := f.lib.calls["DisposeMemoryBuffer"]; n != 0 {
		t.Fatalf("consumed buffer disposed %d times", n)
	}

	fn, err := parsed.Function("add")
	ok(t, err)
	if n, _ := fn.CountParams(); n != 2 {
		t.Fatalf("parsed function has %d params", n)
	}
	ok(t, parsed.Verify())
	requireNoFaults(t, f.lib.Library)
}

func TestParseInvalidBitcode(t *testing.T) {
	lib := newCountingLib()
	ctx := newContext(t, lib)
	buf, err := ir.NewMemoryBuffer(lib, []byte("not bitcode"), "junk")
	ok(t, err)

	_, err = ctx.ParseBitcode(buf)
	wantErr(t, err, &errors.Error{Kind: errors.KindNative, Phase: errors.PhaseParse})
	_, err = buf.Bytes()
	wantErr(t, err, errors.ErrStaleHandle)
	_, err = ctx.ParseBitcode(buf)
	wantErr(t, err, errors.ErrStaleHandle)
	requireNoFaults(t, lib.Library)
}

func TestMemoryBufferMove(t *testing.T) {
	lib := newCountingLib()
	buf, err := ir.NewMemoryBuffer(lib, []byte{1, 2, 3}, "bytes")
	ok(t, err)
	view, err := buf.View()
	ok(t, err)

	moved, err := buf.Move()
	ok(t, err)
	_, err = buf.Bytes()
	wantErr(t, err, errors.ErrUseAfterMove)
	if n, err := view.Len(); err != nil || n != 3 {
		t.Fatalf("view len = %d, %v", n, err)
	}

	ok(t, buf.Dispose())
	ok(t, moved.Dispose())
	ok(t, moved.Dispose())
	if n := lib.calls["DisposeMemoryBuffer"]; n != 1 {
		t.Fatalf("DisposeMemoryBuffer called %d times, want 1", n)
	}
	_, err = view.Bytes()
	wantErr(t, err, errors.ErrStaleHandle)
	requireNoFaults(t, lib.Library)
}

func TestNamedMetadata(t *testing.T) {
	f := newFixture(t)
	s, err := f.ctx.MetadataString("demo")
	ok(t, err)
	one, err := f.i32.ConstInt(1, false)
	ok(t, err)
	node, err := f.ctx.MetadataNode(s, one)
	ok(t, err)
	ok(t, f.mod.AddNamedMetadata("ident", node))

	nodes, err := f.mod.NamedMetadata("ident")
	ok(t, err)
	if len(nodes) != 1 || ir.UnsafeRef(nodes[0]) != ir.UnsafeRef(node) {
		t.Fatalf("named metadata = %v", nodes)
	}
	elems, err := nodes[0].Elements()
	ok(t, err)
	if len(elems) != 2 {
		t.Fatalf("node has %d elements", len(elems))
	}
	if str, err := elems[0].MetadataStringValue(); err != nil || str != "demo" {
		t.Fatalf("element 0 = %q, %v", str, err)
	}
	wantErr(t, f.mod.AddNamedMetadata("ident", s), errors.ErrTypeMismatch)

	_, err = f.ctx.MetadataNode(f.sum)
	wantErr(t, err, errors.ErrInvalidInput)
}
