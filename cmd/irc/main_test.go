package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, src *source, opts options) string {
	t.Helper()
	var out bytes.Buffer
	if err := run(&out, src, opts); err != nil {
		t.Fatal(err)
	}
	return out.String()
}

func TestListDemo(t *testing.T) {
	src, err := newSource("")
	if err != nil {
		t.Fatal(err)
	}
	out := runCLI(t, src, options{list: true})
	for _, want := range []string{
		"add: i32 (i32, i32)",
		"mul_add: i32 (i32, i32, i32)",
		"max: i64 (i64, i64)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRunDemo(t *testing.T) {
	src, _ := newSource("")
	tests := []struct {
		fn   string
		args string
		want string
	}{
		{"add", "2,3", "add(2,3) = 5"},
		{"mul_add", "3, 4, 5", "mul_add(3, 4, 5) = 17"},
		{"max", "-4,0x10", "max(-4,0x10) = 16"},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			out := runCLI(t, src, options{run: tt.fn, args: tt.args})
			if !strings.Contains(out, tt.want) {
				t.Fatalf("output = %q, want %q", out, tt.want)
			}
		})
	}

	var out bytes.Buffer
	if err := run(&out, src, options{run: "add", args: "1,x"}); err == nil {
		t.Fatal("bad argument accepted")
	}
	if err := run(&out, src, options{run: "missing"}); err == nil {
		t.Fatal("missing function ran")
	}
}

func TestBitcodeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bc := filepath.Join(dir, "demo.bc")
	src, _ := newSource("")
	printed := runCLI(t, src, options{print: true, bitcode: bc})
	if !strings.Contains(printed, "define i64 @max") {
		t.Fatalf("print output:\n%s", printed)
	}

	loaded, err := newSource(bc)
	if err != nil {
		t.Fatal(err)
	}
	out := runCLI(t, loaded, options{run: "mul_add", args: "2,5,1"})
	if !strings.Contains(out, "= 11") {
		t.Fatalf("output = %q", out)
	}

	if err := os.WriteFile(bc, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	broken, _ := newSource(bc)
	var buf bytes.Buffer
	if err := run(&buf, broken, options{list: true}); err == nil || !strings.Contains(err.Error(), "invalid bitcode") {
		t.Fatalf("expected parse error, got %v", err)
	}
	if _, err := newSource(filepath.Join(dir, "missing.bc")); err == nil {
		t.Fatal("missing file loaded")
	}
}

func TestEmitTargets(t *testing.T) {
	dir := t.TempDir()
	src, _ := newSource("")

	out := runCLI(t, src, options{triple: "wasm32-unknown-unknown"})
	if !strings.Contains(out, "wasm32-unknown-unknown (wasm32):") {
		t.Fatalf("output = %q", out)
	}

	base := filepath.Join(dir, "demo.o")
	out = runCLI(t, src, options{triple: "all", out: base})
	for _, name := range []string{"demo.wasm32.wasm", "demo.x86_64.o"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("%s: %v\n%s", name, err, out)
		}
		if len(data) == 0 {
			t.Fatalf("%s is empty", name)
		}
	}

	var buf bytes.Buffer
	if err := run(&buf, src, options{triple: "sparc-sun-solaris"}); err == nil {
		t.Fatal("unknown triple emitted")
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		base   string
		triple string
		asm    bool
		want   string
	}{
		{"out/demo.o", "x86_64-unknown-linux-gnu", false, "out/demo.x86_64.o"},
		{"demo", "wasm32-unknown-unknown", false, "demo.wasm32.wasm"},
		{"demo.s", "wasm32-unknown-unknown", true, "demo.wasm32.s"},
	}
	for _, tt := range tests {
		if got := outputPath(tt.base, tt.triple, tt.asm); got != tt.want {
			t.Errorf("outputPath(%q, %q) = %q, want %q", tt.base, tt.triple, got, tt.want)
		}
	}
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs(" 1, -2 ,0x3")
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 3 || args[0] != 1 || args[1] != -2 || args[2] != 3 {
		t.Fatalf("args = %v", args)
	}
	if args, err := parseArgs(""); err != nil || args != nil {
		t.Fatalf("empty args = %v, %v", args, err)
	}
	if _, err := parseArgs("1,,2"); err == nil {
		t.Fatal("empty argument accepted")
	}
}

func TestDescribeFunctions(t *testing.T) {
	ctx, err := newContext("test")
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Dispose()
	mod, err := buildDemo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	funcs, err := describeFunctions(mod)
	if err != nil {
		t.Fatal(err)
	}
	if len(funcs) != 3 || funcs[0].name != "add" || funcs[1].name != "max" {
		t.Fatalf("funcs = %+v", funcs)
	}
	if funcs[2].params[2].name != "c" || funcs[2].result != "i32" {
		t.Fatalf("mul_add = %+v", funcs[2])
	}
}
