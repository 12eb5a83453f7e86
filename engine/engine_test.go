package engine

import (
	"context"
	"testing"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/ir"
	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/native/golib"
)

type demo struct {
	lib *golib.Library
	ctx *ir.Context
	mod *ir.Module
	add ir.FunctionValue
	max ir.FunctionValue
}

// newDemo builds add(i32, i32), max(i64, i64) and twice(i32), which calls
// add.
func newDemo(t *testing.T) *demo {
	t.Helper()
	lib := golib.New(nil)
	ctx, err := ir.NewContextWithConfig(&ir.Config{Library: lib})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ctx.Dispose() })
	d := &demo{lib: lib, ctx: ctx}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}

	d.mod, err = ctx.NewModule("demo")
	must(err)
	b, err := ctx.NewBuilder()
	must(err)
	defer b.Dispose()

	i32, err := ctx.Int32Type()
	must(err)
	i64, err := ctx.Int64Type()
	must(err)

	addTy, err := ctx.FunctionType(i32, []ir.Type{i32, i32}, false)
	must(err)
	d.add, err = d.mod.AddFunction("add", addTy)
	must(err)
	entry, err := ctx.AppendBasicBlock(d.add, "entry")
	must(err)
	must(b.PositionAtEnd(entry))
	p, err := d.add.Params()
	must(err)
	sum, err := b.BuildAdd(p[0], p[1], "sum")
	must(err)
	_, err = b.BuildReturn(sum)
	must(err)

	maxTy, err := ctx.FunctionType(i64, []ir.Type{i64, i64}, false)
	must(err)
	d.max, err = d.mod.AddFunction("max", maxTy)
	must(err)
	entry, err = ctx.AppendBasicBlock(d.max, "entry")
	must(err)
	must(b.PositionAtEnd(entry))
	p, err = d.max.Params()
	must(err)
	gt, err := b.BuildICmp(native.IntSGT, p[0], p[1], "gt")
	must(err)
	larger, err := b.BuildSelect(gt, p[0], p[1], "larger")
	must(err)
	_, err = b.BuildReturn(larger)
	must(err)

	twiceTy, err := ctx.FunctionType(i32, []ir.Type{i32}, false)
	must(err)
	twice, err := d.mod.AddFunction("twice", twiceTy)
	must(err)
	entry, err = ctx.AppendBasicBlock(twice, "entry")
	must(err)
	must(b.PositionAtEnd(entry))
	p, err = twice.Params()
	must(err)
	call, err := b.BuildCall(d.add, []ir.AnyValue{p[0], p[0]}, "call")
	must(err)
	_, err = b.BuildReturn(call)
	must(err)
	return d
}

func TestEngineCall(t *testing.T) {
	ctx := context.Background()
	d := newDemo(t)
	eng, err := New(ctx, d.mod)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	tests := []struct {
		name string
		fn   string
		args []int64
		want int64
	}{
		{"add", "add", []int64{2, 3}, 5},
		{"add negative", "add", []int64{-7, 2}, -5},
		{"add wraps", "add", []int64{0x7fffffff, 1}, -0x80000000},
		{"max left", "max", []int64{9, 4}, 9},
		{"max right", "max", []int64{-9, 4}, 4},
		{"call", "twice", []int64{21}, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eng.CallNamed(ctx, tt.fn, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("%s%v = %d, want %d", tt.fn, tt.args, got, tt.want)
			}
		})
	}

	// Views taken before the move are still usable.
	got, err := eng.Call(ctx, d.add, 40, 2)
	if err != nil || got != 42 {
		t.Fatalf("add = %d, %v", got, err)
	}
}

func TestEngineTakesOwnership(t *testing.T) {
	ctx := context.Background()
	d := newDemo(t)
	eng, err := New(ctx, d.mod)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.mod.Name(); !errors.Is(err, errors.ErrUseAfterMove) {
		t.Fatalf("caller module still usable: %v", err)
	}
	if _, err := New(ctx, d.mod); !errors.Is(err, errors.ErrUseAfterMove) {
		t.Fatalf("second engine on moved module: %v", err)
	}

	if err := eng.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := eng.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := d.add.Name(); !errors.Is(err, errors.ErrStaleHandle) {
		t.Fatalf("function outlived engine: %v", err)
	}
	if _, err := eng.CallNamed(ctx, "add", 1, 2); !errors.Is(err, errors.ErrStaleHandle) {
		t.Fatalf("call after close: %v", err)
	}
	if f := d.lib.Faults(); len(f) != 0 {
		t.Fatalf("faults: %v", f)
	}
}

func TestEngineRejectsForeignFunction(t *testing.T) {
	ctx := context.Background()
	d := newDemo(t)
	other := newDemo(t)
	eng, err := New(ctx, d.mod)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	if _, err := eng.Call(ctx, other.add, 1, 2); !errors.Is(err, errors.ErrCrossContext) {
		t.Fatalf("expected cross context, got %v", err)
	}

	// A function of another module in the same context is rejected too.
	sibling, err := d.ctx.NewModule("sibling")
	if err != nil {
		t.Fatal(err)
	}
	i32, err := d.ctx.Int32Type()
	if err != nil {
		t.Fatal(err)
	}
	fnTy, err := d.ctx.FunctionType(i32, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	fn, err := sibling.AddFunction("add", fnTy)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Call(ctx, fn); !errors.Is(err, errors.ErrCrossContext) {
		t.Fatalf("expected cross context, got %v", err)
	}
}

func TestEngineCallErrors(t *testing.T) {
	ctx := context.Background()
	d := newDemo(t)
	eng, err := New(ctx, d.mod)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	tests := []struct {
		name string
		fn   string
		args []int64
		want error
	}{
		{"missing", "nope", nil, errors.ErrNotFound},
		{"too few", "add", []int64{1}, errors.ErrInvalidInput},
		{"too many", "max", []int64{1, 2, 3}, errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eng.CallNamed(ctx, tt.fn, tt.args...); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", errors.KindOf(tt.want), err)
			}
		})
	}
}

func TestNewWithConfig(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  *Config
		want error
	}{
		{"nil config", nil, nil},
		{"default config", &Config{}, nil},
		{"16MB limit", &Config{MemoryLimitPages: 256}, nil},
		{"x86", &Config{Triple: "x86_64-unknown-linux-gnu"}, errors.ErrUnsupported},
		{"unknown", &Config{Triple: "mips-unknown-linux"}, errors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDemo(t)
			eng, err := NewWithConfig(ctx, d.mod, tt.cfg)
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", errors.KindOf(tt.want), err)
				}
				// The caller keeps the module on failure.
				if _, err := d.mod.Name(); err != nil {
					t.Fatalf("module lost on failure: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if err := eng.Close(ctx); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestNewRejectsUnverifiedModule(t *testing.T) {
	ctx := context.Background()
	d := newDemo(t)
	i32, err := d.ctx.Int32Type()
	if err != nil {
		t.Fatal(err)
	}
	fnTy, err := d.ctx.FunctionType(i32, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	fn, err := d.mod.AddFunction("broken", fnTy)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.ctx.AppendBasicBlock(fn, "entry"); err != nil {
		t.Fatal(err)
	}
	_, err = New(ctx, d.mod)
	if !errors.Is(err, &errors.Error{Kind: errors.KindNative, Phase: errors.PhaseEmit}) {
		t.Fatalf("expected emit error, got %v", err)
	}
	if f := d.lib.Faults(); len(f) != 0 {
		t.Fatalf("faults: %v", f)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		width uint32
		in    int64
		want  int64
	}{
		{1, 3, 1},
		{1, -2, 0},
		{8, 255, -1},
		{8, 128, -128},
		{16, 0x12345, 0x2345},
		{32, 0x1_0000_0001, 1},
		{32, -1, -1},
	}
	for _, tt := range tests {
		if got := truncate(tt.width, tt.in); got != tt.want {
			t.Errorf("truncate(%d, %#x) = %#x, want %#x", tt.width, tt.in, got, tt.want)
		}
	}
	if got := decode(64, encode(64, -5)); got != -5 {
		t.Errorf("i64 round trip = %d", got)
	}
	if got := decode(32, encode(32, -5)); got != -5 {
		t.Errorf("i32 round trip = %d", got)
	}
}
