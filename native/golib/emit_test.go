package golib_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/native/golib"
	"github.com/wippyai/ir-runtime/native/golib/internal/binary"
)

// buildMax adds i64 max(i64, i64) using a conditional branch.
func buildMax(t *testing.T, lib *golib.Library, m addModule) {
	t.Helper()
	i64 := lib.IntTypeInContext(m.ctx, 64)
	fn := lib.AddFunction(m.mod, "max", lib.FunctionType(i64, []native.Ref{i64, i64}, false))
	entry := lib.AppendBasicBlockInContext(m.ctx, fn, "entry")
	left := lib.AppendBasicBlockInContext(m.ctx, fn, "left")
	right := lib.AppendBasicBlockInContext(m.ctx, fn, "right")
	a, b := lib.GetParam(fn, 0), lib.GetParam(fn, 1)

	bld := lib.CreateBuilderInContext(m.ctx)
	defer lib.DisposeBuilder(bld)
	lib.PositionBuilderAtEnd(bld, entry)
	gt := lib.BuildICmp(bld, native.IntSGT, a, b, "gt")
	lib.BuildCondBr(bld, gt, left, right)
	lib.PositionBuilderAtEnd(bld, left)
	lib.BuildRet(bld, a)
	lib.PositionBuilderAtEnd(bld, right)
	lib.BuildRet(bld, b)
	requireNoFaults(t, lib)
}

func emit(t *testing.T, lib *golib.Library, triple string, mod native.Ref, ft native.FileType) []byte {
	t.Helper()
	target, msg := lib.GetTargetFromTriple(triple)
	if msg != native.Null {
		t.Fatalf("target: %s", native.TakeMessage(lib, msg))
	}
	tm := lib.CreateTargetMachine(target, triple, "", "", native.OptDefault)
	defer lib.DisposeTargetMachine(tm)
	buf, msg := lib.TargetMachineEmitToMemoryBuffer(tm, mod, ft)
	if msg != native.Null {
		t.Fatalf("emit: %s", native.TakeMessage(lib, msg))
	}
	defer lib.DisposeMemoryBuffer(buf)
	return append([]byte(nil), lib.GetBufferStart(buf)...)
}

func TestTargets(t *testing.T) {
	lib := golib.New(nil)
	var names []string
	for tg := lib.GetFirstTarget(); tg != native.Null; tg = lib.GetNextTarget(tg) {
		names = append(names, lib.GetTargetName(tg))
		if lib.GetTargetDescription(tg) == "" {
			t.Errorf("target %s has no description", lib.GetTargetName(tg))
		}
	}
	if strings.Join(names, ",") != "wasm32,x86-64" {
		t.Fatalf("targets = %v, want both backends registered", names)
	}
	if got := lib.GetDefaultTargetTriple(); got != "wasm32-unknown-unknown" {
		t.Errorf("default triple = %q", got)
	}

	target, msg := lib.GetTargetFromTriple("x86_64-pc-linux-gnu")
	if msg != native.Null {
		t.Fatal(native.TakeMessage(lib, msg))
	}
	tm := lib.CreateTargetMachine(target, "x86_64-pc-linux-gnu", "generic", "", native.OptNone)
	if got := lib.GetTargetMachinePointerSize(tm); got != 8 {
		t.Errorf("pointer size = %d, want 8", got)
	}
	if got := lib.GetTargetMachineTriple(tm); got != "x86_64-pc-linux-gnu" {
		t.Errorf("triple = %q", got)
	}
	lib.DisposeTargetMachine(tm)

	_, msg = lib.GetTargetFromTriple("riscv64-unknown-elf")
	if got := native.TakeMessage(lib, msg); !strings.Contains(got, "riscv64") {
		t.Errorf("message = %q", got)
	}
	requireNoFaults(t, lib)
}

func TestWasmEmitRuns(t *testing.T) {
	lib := golib.New(nil)
	m := buildAdd(t, lib)
	defer lib.ContextDispose(m.ctx)
	buildMax(t, lib, m)

	code := emit(t, lib, "wasm32-unknown-unknown", m.mod, native.ObjectFile)
	if !bytes.HasPrefix(code, []byte("\x00asm")) {
		t.Fatalf("missing wasm magic: % x", code[:8])
	}

	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)
	inst, err := r.Instantiate(ctx, code)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	tests := []struct {
		fn   string
		args []uint64
		want uint64
	}{
		{"add", []uint64{2, 3}, 5},
		{"add", []uint64{0xffffffff, 1}, 0},
		{"max", []uint64{7, 3}, 7},
		{"max", []uint64{3, 7}, 7},
		{"max", []uint64{uint64(1<<64 - 5), 2}, 2},
	}
	for _, tt := range tests {
		res, err := inst.ExportedFunction(tt.fn).Call(ctx, tt.args...)
		if err != nil {
			t.Fatalf("%s%v: %v", tt.fn, tt.args, err)
		}
		got := res[0]
		if tt.fn == "add" {
			got = uint64(uint32(got))
		}
		if got != tt.want {
			t.Errorf("%s%v = %d, want %d", tt.fn, tt.args, got, tt.want)
		}
	}
}

func TestWasmAssembly(t *testing.T) {
	lib := golib.New(nil)
	m := buildAdd(t, lib)
	defer lib.ContextDispose(m.ctx)
	text := string(emit(t, lib, "wasm32-unknown-unknown", m.mod, native.AssemblyFile))
	for _, want := range []string{"(module $demo", `(func $add (export "add")`, "i32.add", "br_table"} {
		if !strings.Contains(text, want) {
			t.Errorf("assembly missing %q:\n%s", want, text)
		}
	}
}

func TestX86Object(t *testing.T) {
	lib := golib.New(nil)
	m := buildAdd(t, lib)
	defer lib.ContextDispose(m.ctx)
	buildMax(t, lib, m)

	obj := emit(t, lib, "x86_64-unknown-linux-gnu", m.mod, native.ObjectFile)
	r := binary.NewReader(obj)
	magic, err := r.Raw(4)
	if err != nil || string(magic) != "IRX1" {
		t.Fatalf("magic = %q, %v", magic, err)
	}
	n, err := r.U32()
	if err != nil || n != 2 {
		t.Fatalf("symbols = %d, %v", n, err)
	}
	var total uint32
	for _, want := range []string{"add", "max"} {
		name, err := r.Name()
		if err != nil || name != want {
			t.Fatalf("symbol = %q, %v, want %q", name, err, want)
		}
		off, _ := r.U32()
		size, err := r.U32()
		if err != nil || off != total || size == 0 {
			t.Fatalf("%s at %d size %d: %v", name, off, size, err)
		}
		total += size
	}
	code, err := r.Blob()
	if err != nil || uint32(len(code)) != total {
		t.Fatalf("code = %d bytes, want %d: %v", len(code), total, err)
	}

	text := string(emit(t, lib, "x86_64-unknown-linux-gnu", m.mod, native.AssemblyFile))
	for _, want := range []string{"add:", "max:", "ADDL", "CMPQ", "RET"} {
		if !strings.Contains(text, want) {
			t.Errorf("assembly missing %q:\n%s", want, text)
		}
	}
}

func TestEmitRejects(t *testing.T) {
	tests := []struct {
		name   string
		triple string
		build  func(lib *golib.Library, m addModule)
		want   string
	}{
		{
			name:   "declaration",
			triple: "wasm32-unknown-unknown",
			build: func(lib *golib.Library, m addModule) {
				lib.AddFunction(m.mod, "ext", lib.FunctionType(m.i32, nil, false))
			},
			want: "declarations cannot be emitted",
		},
		{
			name:   "division on x86",
			triple: "x86_64-unknown-linux-gnu",
			build: func(lib *golib.Library, m addModule) {
				fn := lib.AddFunction(m.mod, "div", lib.FunctionType(m.i32, []native.Ref{m.i32, m.i32}, false))
				b := lib.CreateBuilderInContext(m.ctx)
				lib.PositionBuilderAtEnd(b, lib.AppendBasicBlockInContext(m.ctx, fn, "entry"))
				q := lib.BuildBinOp(b, native.OpUDiv, lib.GetParam(fn, 0), lib.GetParam(fn, 1), "")
				lib.BuildRet(b, q)
				lib.DisposeBuilder(b)
			},
			want: "unsupported instruction udiv",
		},
		{
			name:   "unverified module",
			triple: "wasm32-unknown-unknown",
			build: func(lib *golib.Library, m addModule) {
				fn := lib.AddFunction(m.mod, "empty", lib.FunctionType(m.i32, nil, false))
				lib.AppendBasicBlockInContext(m.ctx, fn, "entry")
			},
			want: "block %entry is empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := golib.New(nil)
			m := buildAdd(t, lib)
			defer lib.ContextDispose(m.ctx)
			tt.build(lib, m)

			target, _ := lib.GetTargetFromTriple(tt.triple)
			tm := lib.CreateTargetMachine(target, tt.triple, "", "", native.OptDefault)
			defer lib.DisposeTargetMachine(tm)
			buf, msg := lib.TargetMachineEmitToMemoryBuffer(tm, m.mod, native.ObjectFile)
			if buf != native.Null {
				t.Fatal("emit succeeded")
			}
			if got := native.TakeMessage(lib, msg); !strings.Contains(got, tt.want) {
				t.Errorf("message = %q, want %q", got, tt.want)
			}
			requireNoFaults(t, lib)
		})
	}
}
