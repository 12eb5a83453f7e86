package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/wippyai/ir-runtime/engine"
	"github.com/wippyai/ir-runtime/ir"
	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/native/golib"
	"github.com/wippyai/ir-runtime/resource"
	"github.com/wippyai/ir-runtime/target"
)

// knownTriples are the triples tried by -target all. Only those with a
// compiled-in code generator are emitted.
var knownTriples = []string{
	"wasm32-unknown-unknown",
	"x86_64-unknown-linux-gnu",
}

type options struct {
	load        string
	triple      string
	out         string
	bitcode     string
	run         string
	args        string
	print       bool
	list        bool
	asm         bool
	interactive bool
	verbose     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.load, "load", "", "Bitcode file to load (default: built-in demo module)")
	flag.StringVar(&opts.triple, "target", "", "Emit code for a triple, or \"all\" for every available target")
	flag.StringVar(&opts.out, "o", "", "Output path for emitted code")
	flag.StringVar(&opts.bitcode, "bc", "", "Write the module as bitcode to this path")
	flag.StringVar(&opts.run, "run", "", "Function to execute")
	flag.StringVar(&opts.args, "args", "", "Integer arguments for -run (comma-separated)")
	flag.BoolVar(&opts.print, "print", false, "Print the module as text")
	flag.BoolVar(&opts.list, "list", false, "List functions and exit")
	flag.BoolVar(&opts.asm, "S", false, "Emit assembly instead of object code")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging")
	flag.Parse()

	log := zap.NewNop()
	if opts.verbose {
		var err error
		if log, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = log.Sync() }()
	}
	ir.SetLogger(log)
	resource.SetLogger(log)
	engine.SetLogger(log)

	src, err := newSource(opts.load)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if opts.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(src); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Stdout, src, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// source produces a fresh module in any context, either by parsing loaded
// bitcode or by building the demo.
type source struct {
	name string
	data []byte
}

func newSource(path string) (*source, error) {
	if path == "" {
		return &source{name: "demo"}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return &source{name: path, data: data}, nil
}

func (s *source) module(ctx *ir.Context) (*ir.Module, error) {
	if s.data == nil {
		return buildDemo(ctx)
	}
	buf, err := ir.NewMemoryBuffer(ctx.Library(), s.data, s.name)
	if err != nil {
		return nil, err
	}
	return ctx.ParseBitcode(buf)
}

func newContext(name string) (*ir.Context, error) {
	return ir.NewContextWithConfig(&ir.Config{Library: golib.Default(), Name: name})
}

func run(w io.Writer, src *source, opts options) error {
	ctx, err := newContext("irc")
	if err != nil {
		return err
	}
	defer ctx.Dispose()

	mod, err := src.module(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", src.name, err)
	}
	// No-op once the engine owns the module.
	defer mod.Dispose()

	if opts.list {
		return listFunctions(w, mod)
	}
	if opts.print {
		text, err := mod.Print()
		if err != nil {
			return err
		}
		fmt.Fprint(w, text)
	}
	if opts.bitcode != "" {
		if err := writeBitcode(mod, opts.bitcode); err != nil {
			return err
		}
	}

	switch opts.triple {
	case "":
	case "all":
		if err := emitAll(w, src, opts); err != nil {
			return err
		}
	default:
		res, err := emitOne(mod, opts.triple, opts.out, opts.asm)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, res)
	}

	if opts.run != "" {
		args, err := parseArgs(opts.args)
		if err != nil {
			return err
		}
		result, err := execute(mod, opts.run, args)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s(%s) = %d\n", opts.run, opts.args, result)
	}
	return nil
}

func listFunctions(w io.Writer, mod *ir.Module) error {
	fns, err := mod.Functions()
	if err != nil {
		return err
	}
	for _, fn := range fns {
		name, err := fn.Name()
		if err != nil {
			return err
		}
		fnTy, err := fn.FunctionType()
		if err != nil {
			return err
		}
		suffix := ""
		if decl, _ := fn.IsDeclaration(); decl {
			suffix = " (declaration)"
		}
		fmt.Fprintf(w, "  %s: %s%s\n", name, fnTy, suffix)
	}
	return nil
}

func writeBitcode(mod *ir.Module, path string) error {
	buf, err := mod.WriteBitcode()
	if err != nil {
		return err
	}
	defer buf.Dispose()
	data, err := buf.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// emitOne emits mod for triple and writes the result to out, if set.
func emitOne(mod *ir.Module, triple, out string, asm bool) (string, error) {
	tgt, err := target.Lookup(mod.Context().Library(), triple)
	if err != nil {
		return "", err
	}
	tm, err := tgt.NewMachine(&target.MachineConfig{Triple: triple, OptLevel: native.OptDefault})
	if err != nil {
		return "", err
	}
	defer tm.Dispose()

	ft := native.ObjectFile
	if asm {
		ft = native.AssemblyFile
	}
	if out != "" {
		if err := tm.EmitToFile(mod, ft, out); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s: wrote %s", triple, out), nil
	}
	buf, err := tm.Emit(mod, ft)
	if err != nil {
		return "", err
	}
	defer buf.Dispose()
	n, err := buf.Len()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (%s): %d bytes", triple, tgt.Name(), n), nil
}

// emitAll emits the module for every available triple concurrently. Contexts
// are not safe for concurrent use, so each goroutine loads the module into
// its own context.
func emitAll(w io.Writer, src *source, opts options) error {
	lib := golib.Default()
	var triples []string
	for _, triple := range knownTriples {
		if _, err := target.Lookup(lib, triple); err == nil {
			triples = append(triples, triple)
		}
	}

	results := make([]string, len(triples))
	var g errgroup.Group
	for i, triple := range triples {
		g.Go(func() error {
			ctx, err := newContext(triple)
			if err != nil {
				return err
			}
			defer ctx.Dispose()
			mod, err := src.module(ctx)
			if err != nil {
				return err
			}
			if err := mod.SetTriple(triple); err != nil {
				return err
			}
			out := ""
			if opts.out != "" {
				out = outputPath(opts.out, triple, opts.asm)
			}
			results[i], err = emitOne(mod, triple, out, opts.asm)
			if err != nil {
				return fmt.Errorf("%s: %w", triple, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintln(w, r)
	}
	return nil
}

// outputPath derives a per-triple file name from base.
func outputPath(base, triple string, asm bool) string {
	arch, _, _ := strings.Cut(triple, "-")
	ext := ".o"
	switch {
	case asm:
		ext = ".s"
	case arch == "wasm32":
		ext = ".wasm"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + "." + arch + ext
}

func execute(mod *ir.Module, name string, args []int64) (int64, error) {
	ctx := context.Background()
	eng, err := engine.New(ctx, mod)
	if err != nil {
		return 0, err
	}
	defer eng.Close(ctx)
	return eng.CallNamed(ctx, name, args...)
}

func parseArgs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	args := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}
