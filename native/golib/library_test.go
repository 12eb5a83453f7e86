package golib_test

import (
	"testing"

	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/native/golib"
)

type addModule struct {
	ctx, mod, fn, i32 native.Ref
}

// buildAdd creates a module with i32 add(i32, i32).
func buildAdd(t *testing.T, lib *golib.Library) addModule {
	t.Helper()
	ctx := lib.ContextCreate()
	i32 := lib.IntTypeInContext(ctx, 32)
	fnTy := lib.FunctionType(i32, []native.Ref{i32, i32}, false)
	mod := lib.ModuleCreateWithNameInContext("demo", ctx)
	fn := lib.AddFunction(mod, "add", fnTy)
	entry := lib.AppendBasicBlockInContext(ctx, fn, "entry")
	b := lib.CreateBuilderInContext(ctx)
	lib.PositionBuilderAtEnd(b, entry)
	sum := lib.BuildBinOp(b, native.OpAdd, lib.GetParam(fn, 0), lib.GetParam(fn, 1), "sum")
	lib.BuildRet(b, sum)
	lib.DisposeBuilder(b)
	if sum == native.Null {
		t.Fatalf("build failed: %v", lib.Faults())
	}
	return addModule{ctx: ctx, mod: mod, fn: fn, i32: i32}
}

func requireNoFaults(t *testing.T, lib *golib.Library) {
	t.Helper()
	if faults := lib.Faults(); len(faults) > 0 {
		t.Fatalf("unexpected faults: %v", faults)
	}
}

func TestContextDisposeFreesEverything(t *testing.T) {
	lib := golib.New(nil)
	m := buildAdd(t, lib)
	if live := lib.Stats().Live; live == 0 {
		t.Fatal("expected live objects")
	}
	lib.ContextDispose(m.ctx)
	requireNoFaults(t, lib)

	for _, ref := range []native.Ref{m.ctx, m.mod, m.fn, m.i32} {
		if lib.Alive(ref) {
			t.Errorf("ref %d still alive", ref)
		}
	}
	if s := lib.Stats(); s.Live != 0 || s.Allocated != s.Freed {
		t.Errorf("stats = %+v, want nothing live", s)
	}
}

func TestBuildersSurviveContextDispose(t *testing.T) {
	lib := golib.New(nil)
	ctx := lib.ContextCreate()
	b := lib.CreateBuilderInContext(ctx)
	lib.ContextDispose(ctx)
	if !lib.Alive(b) {
		t.Fatal("builder freed by ContextDispose")
	}
	lib.DisposeBuilder(b)
	requireNoFaults(t, lib)
}

func TestFaults(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T, lib *golib.Library)
		kind golib.FaultKind
	}{
		{
			name: "double context dispose",
			run: func(t *testing.T, lib *golib.Library) {
				ctx := lib.ContextCreate()
				lib.ContextDispose(ctx)
				lib.ContextDispose(ctx)
			},
			kind: golib.FaultDoubleFree,
		},
		{
			name: "module disposed with its context",
			run: func(t *testing.T, lib *golib.Library) {
				ctx := lib.ContextCreate()
				m := lib.ModuleCreateWithNameInContext("m", ctx)
				lib.ContextDispose(ctx)
				lib.DisposeModule(m)
			},
			kind: golib.FaultDoubleFree,
		},
		{
			name: "query freed module",
			run: func(t *testing.T, lib *golib.Library) {
				ctx := lib.ContextCreate()
				m := lib.ModuleCreateWithNameInContext("m", ctx)
				lib.DisposeModule(m)
				lib.GetModuleIdentifier(m)
			},
			kind: golib.FaultUseAfterFree,
		},
		{
			name: "unknown handle",
			run: func(t *testing.T, lib *golib.Library) {
				lib.GetModuleIdentifier(native.Ref(1 << 20))
			},
			kind: golib.FaultBadHandle,
		},
		{
			name: "wrong kind",
			run: func(t *testing.T, lib *golib.Library) {
				ctx := lib.ContextCreate()
				lib.DisposeModule(ctx)
			},
			kind: golib.FaultBadHandle,
		},
		{
			name: "unpositioned builder",
			run: func(t *testing.T, lib *golib.Library) {
				ctx := lib.ContextCreate()
				b := lib.CreateBuilderInContext(ctx)
				lib.BuildRetVoid(b)
			},
			kind: golib.FaultMisuse,
		},
		{
			name: "delete attached instruction",
			run: func(t *testing.T, lib *golib.Library) {
				m := buildAdd(t, lib)
				inst := lib.GetFirstInstruction(lib.GetFirstBasicBlock(m.fn))
				lib.DeleteInstruction(inst)
			},
			kind: golib.FaultMisuse,
		},
		{
			name: "cross context operands",
			run: func(t *testing.T, lib *golib.Library) {
				m := buildAdd(t, lib)
				other := lib.ContextCreate()
				c := lib.ConstInt(lib.IntTypeInContext(other, 32), 1, false)
				b := lib.CreateBuilderInContext(m.ctx)
				lib.PositionBuilderAtEnd(b, lib.GetFirstBasicBlock(m.fn))
				lib.BuildBinOp(b, native.OpAdd, lib.GetParam(m.fn, 0), c, "")
			},
			kind: golib.FaultMisuse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []golib.Fault
			lib := golib.New(&golib.Config{OnFault: func(f golib.Fault) { seen = append(seen, f) }})
			tt.run(t, lib)
			faults := lib.Faults()
			if len(faults) != 1 {
				t.Fatalf("faults = %v, want exactly one", faults)
			}
			if faults[0].Kind != tt.kind {
				t.Errorf("kind = %s, want %s", faults[0].Kind, tt.kind)
			}
			if len(seen) != 1 {
				t.Errorf("OnFault called %d times", len(seen))
			}
			lib.ResetFaults()
			if len(lib.Faults()) != 0 {
				t.Error("ResetFaults did not clear")
			}
		})
	}
}

func TestMaxObjects(t *testing.T) {
	lib := golib.New(&golib.Config{MaxObjects: 1})
	ctx := lib.ContextCreate()
	if ctx == native.Null {
		t.Fatal("first allocation failed")
	}
	if ty := lib.IntTypeInContext(ctx, 32); ty != native.Null {
		t.Fatal("allocation beyond the cap succeeded")
	}
	_, msg := lib.GetTargetFromTriple("unknown-arch")
	if msg == native.Null {
		t.Fatal("messages must not be capped")
	}
	native.TakeMessage(lib, msg)
	lib.ContextDispose(ctx)
	requireNoFaults(t, lib)
}

func TestUniquing(t *testing.T) {
	lib := golib.New(nil)
	ctx := lib.ContextCreate()
	other := lib.ContextCreate()
	defer lib.ContextDispose(ctx)
	defer lib.ContextDispose(other)

	i8 := lib.IntTypeInContext(ctx, 8)
	if lib.IntTypeInContext(ctx, 8) != i8 {
		t.Error("int types not uniqued")
	}
	if lib.IntTypeInContext(other, 8) == i8 {
		t.Error("types shared across contexts")
	}
	if lib.ConstInt(i8, 0x1ff, false) != lib.ConstInt(i8, 0xff, false) {
		t.Error("constants not normalized to type width")
	}
	if got := lib.ConstIntGetSExtValue(lib.ConstInt(i8, 0xff, false)); got != -1 {
		t.Errorf("sext = %d, want -1", got)
	}
	i128 := lib.IntTypeInContext(ctx, 128)
	if lib.ConstInt(i128, ^uint64(0), false) == lib.ConstInt(i128, ^uint64(0), true) {
		t.Error("i128 sign extension ignored")
	}
	if lib.ConstInt(i128, 1, false) != lib.ConstInt(i128, 1, true) {
		t.Error("positive i128 constants differ by sign flag")
	}
	fn1 := lib.FunctionType(i8, []native.Ref{i8}, false)
	if lib.FunctionType(i8, []native.Ref{i8}, false) != fn1 {
		t.Error("function types not uniqued")
	}
	if lib.FunctionType(i8, []native.Ref{i8}, true) == fn1 {
		t.Error("vararg flag ignored")
	}
	a := lib.StructCreateNamed(ctx, "pair")
	b := lib.StructCreateNamed(ctx, "pair")
	if a == b {
		t.Error("named structs must be distinct")
	}
	if !lib.IsOpaqueStruct(a) {
		t.Error("named struct should start opaque")
	}
	lib.StructSetBody(a, []native.Ref{i8, i8}, false)
	if lib.IsOpaqueStruct(a) || len(lib.GetStructElementTypes(a)) != 2 {
		t.Error("body not set")
	}
	if lib.MDStringInContext(ctx, "x") != lib.MDStringInContext(ctx, "x") {
		t.Error("metadata strings not uniqued")
	}
	if id := lib.GetMDKindIDInContext(ctx, "dbg"); id == 0 || id != lib.GetMDKindIDInContext(ctx, "dbg") {
		t.Error("metadata kind ids unstable")
	}
	requireNoFaults(t, lib)
}

func TestInstructionLifecycle(t *testing.T) {
	lib := golib.New(nil)
	m := buildAdd(t, lib)
	defer lib.ContextDispose(m.ctx)
	entry := lib.GetFirstBasicBlock(m.fn)
	sum := lib.GetFirstInstruction(entry)

	clone := lib.InstructionClone(sum)
	if lib.GetInstructionParent(clone) != native.Null {
		t.Fatal("clone should be detached")
	}
	b := lib.CreateBuilderInContext(m.ctx)
	lib.PositionBuilderBefore(b, lib.GetLastInstruction(entry))
	lib.InsertIntoBuilderWithName(b, clone, "again")
	lib.DisposeBuilder(b)
	if lib.GetNextInstruction(sum) != clone {
		t.Fatal("clone not inserted after sum")
	}

	lib.InstructionRemoveFromParent(clone)
	if lib.GetNextInstruction(sum) == clone {
		t.Fatal("clone still linked")
	}
	lib.DeleteInstruction(clone)
	if lib.Alive(clone) {
		t.Fatal("clone alive after delete")
	}
	requireNoFaults(t, lib)
}

func TestReplaceAllUsesWith(t *testing.T) {
	lib := golib.New(nil)
	m := buildAdd(t, lib)
	defer lib.ContextDispose(m.ctx)
	ret := lib.GetLastInstruction(lib.GetFirstBasicBlock(m.fn))
	sum := lib.GetOperand(ret, 0)
	seven := lib.ConstInt(m.i32, 7, false)
	lib.ReplaceAllUsesWith(sum, seven)
	if lib.GetOperand(ret, 0) != seven {
		t.Fatal("use not replaced")
	}
	lib.InstructionEraseFromParent(sum)
	if msg := lib.VerifyModule(m.mod); msg != native.Null {
		t.Fatalf("verify: %s", native.TakeMessage(lib, msg))
	}
	requireNoFaults(t, lib)
}

func TestCloneModule(t *testing.T) {
	lib := golib.New(nil)
	m := buildAdd(t, lib)
	clone := lib.CloneModule(m.mod)
	lib.DisposeModule(m.mod)

	fn := lib.GetNamedFunction(clone, "add")
	if fn == native.Null || fn == m.fn {
		t.Fatal("clone does not own its functions")
	}
	if msg := lib.VerifyModule(clone); msg != native.Null {
		t.Fatalf("verify: %s", native.TakeMessage(lib, msg))
	}
	lib.DisposeModule(clone)
	lib.ContextDispose(m.ctx)
	requireNoFaults(t, lib)
}

func TestAddFunctionRenamesDuplicates(t *testing.T) {
	lib := golib.New(nil)
	m := buildAdd(t, lib)
	defer lib.ContextDispose(m.ctx)
	fnTy := lib.FunctionType(m.i32, nil, false)
	dup := lib.AddFunction(m.mod, "add", fnTy)
	if name := lib.GetValueName(dup); name == "add" {
		t.Errorf("duplicate kept name %q", name)
	}
	if lib.GetNamedFunction(m.mod, "add") != m.fn {
		t.Error("lookup returned the duplicate")
	}
}
