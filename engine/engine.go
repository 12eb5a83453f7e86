package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	irruntime "github.com/wippyai/ir-runtime"
	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/ir"
	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/target"
)

// DefaultTriple is the triple modules are emitted for.
const DefaultTriple = "wasm32-unknown-unknown"

// Config holds configuration for engine creation
type Config struct {
	// Triple selects the code generator. It must name a wasm32 target.
	// Empty means DefaultTriple.
	Triple string

	// MemoryLimitPages sets the maximum memory of the instance in pages
	// (64KB each). 0 means the wazero default.
	MemoryLimitPages uint32
}

// Engine runs the functions of one IR module. It owns the module from
// creation until Close.
type Engine struct {
	mod      *ir.Module
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	instance api.Module
	log      *zap.Logger
	mu       sync.Mutex
	closed   bool
}

// New emits mod for wasm32, compiles it with wazero and takes ownership of
// the module.
func New(ctx context.Context, mod *ir.Module) (*Engine, error) {
	return NewWithConfig(ctx, mod, nil)
}

// NewWithConfig is New with custom configuration. The caller keeps the
// module when an error is returned.
func NewWithConfig(ctx context.Context, mod *ir.Module, cfg *Config) (*Engine, error) {
	if err := mod.Check(); err != nil {
		return nil, err
	}
	c := Config{Triple: DefaultTriple}
	if cfg != nil {
		c = *cfg
		if c.Triple == "" {
			c.Triple = DefaultTriple
		}
	}
	log := Logger().With(zap.String("triple", c.Triple))

	code, err := emit(mod, c.Triple)
	if err != nil {
		return nil, err
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	start := time.Now()
	compiled, err := runtime.CompileModule(ctx, code)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseExecute, errors.KindNative, err, "compile emitted module")
	}
	instance, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseExecute, errors.KindNative, err, "instantiate emitted module")
	}

	owned, err := mod.Move()
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}
	log.Debug("module compiled",
		zap.Int("bytes", len(code)),
		zap.Int("exports", len(compiled.ExportedFunctions())),
		zap.Duration("elapsed", time.Since(start)))

	return &Engine{
		mod:      owned,
		runtime:  runtime,
		compiled: compiled,
		instance: instance,
		log:      log,
	}, nil
}

// emit generates wasm for mod with a machine that lives only for the call.
func emit(mod *ir.Module, triple string) (code []byte, err error) {
	lib := mod.Context().Library()
	tgt, err := target.Lookup(lib, triple)
	if err != nil {
		return nil, err
	}
	if tgt.Name() != "wasm32" {
		return nil, errors.Unsupported(errors.PhaseExecute, "execution of "+triple+" code")
	}
	tm, err := tgt.NewMachine(&target.MachineConfig{Triple: triple, OptLevel: native.OptDefault})
	if err != nil {
		return nil, err
	}
	var buf *ir.MemoryBuffer
	defer func() { err = multierr.Append(err, irruntime.DisposeAll(buf, tm)) }()

	buf, err = tm.Emit(mod, native.ObjectFile)
	if err != nil {
		return nil, err
	}
	return buf.Bytes()
}

// Module returns the owned module. Views obtained from it are valid until
// Close.
func (e *Engine) Module() *ir.Module {
	return e.mod
}

// Function returns the function name of the owned module.
func (e *Engine) Function(name string) (ir.FunctionValue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ir.FunctionValue{}, errors.StaleHandle(errors.PhaseExecute, "engine")
	}
	return e.mod.Function(name)
}

// Call runs fn with args and returns its result, or 0 for a void function.
// Arguments are truncated to the parameter widths and the result is sign
// extended from the return width; i1 results are 0 or 1.
func (e *Engine) Call(ctx context.Context, fn ir.FunctionValue, args ...int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, errors.StaleHandle(errors.PhaseExecute, "engine")
	}
	name, err := fn.Name()
	if err != nil {
		return 0, err
	}
	if !e.mod.Owns(fn) {
		return 0, errors.New(errors.PhaseExecute, errors.KindCrossContext).
			Object("function").
			Value(name).
			Detail("function is not owned by the engine module").
			Build()
	}
	return e.call(ctx, fn, name, args)
}

// CallNamed runs the function name of the owned module.
func (e *Engine) CallNamed(ctx context.Context, name string, args ...int64) (int64, error) {
	fn, err := e.Function(name)
	if err != nil {
		return 0, err
	}
	return e.Call(ctx, fn, args...)
}

func (e *Engine) call(ctx context.Context, fn ir.FunctionValue, name string, args []int64) (int64, error) {
	sig, err := signatureOf(fn)
	if err != nil {
		return 0, err
	}
	if len(args) != len(sig.params) {
		return 0, errors.InvalidInput(errors.PhaseExecute,
			fmt.Sprintf("%s takes %d arguments, got %d", name, len(sig.params), len(args)))
	}
	export := e.instance.ExportedFunction(name)
	if export == nil {
		return 0, errors.NotFound(errors.PhaseExecute, "export", name)
	}

	params := make([]uint64, len(args))
	for i, a := range args {
		params[i] = encode(sig.params[i], a)
	}
	e.log.Debug("call", zap.String("function", name), zap.Int64s("args", args))
	results, err := export.Call(ctx, params...)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseExecute, errors.KindNative, err, "call "+name)
	}
	if sig.result == 0 || len(results) == 0 {
		return 0, nil
	}
	return decode(sig.result, results[0]), nil
}

// Close releases the wazero runtime and disposes the owned module. Calls
// after the first are no-ops.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	err := multierr.Append(e.runtime.Close(ctx), e.mod.Dispose())
	if err != nil {
		e.log.Warn("engine close", zap.Error(err))
	}
	return err
}
