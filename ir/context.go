package ir

import (
	"go.uber.org/zap"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/resource"
)

// Context owns every type, constant, metadata node, module and builder
// created in it. Disposing the context invalidates all of them at once.
//
// A Context is single-owner: callers serialize access to it and to
// everything derived from it. Distinct contexts may be used concurrently.
type Context struct {
	lib      native.Library
	arena    *resource.Arena
	log      *zap.Logger
	interned *interner
	modules  map[native.Ref]*Module
	funcs    map[native.Ref]*resource.Arena
	insts    map[native.Ref]instSlot
	name     string
	ref      native.Ref
	tag      resource.Tag
	global   bool
}

// instSlot locates the arena entry that owns an instruction.
type instSlot struct {
	scope *resource.Arena
	h     resource.Handle
}

// NewContext creates a context on the default native library.
func NewContext() (*Context, error) {
	return NewContextWithConfig(nil)
}

// NewContextWithConfig creates a context with the given configuration.
func NewContextWithConfig(cfg *Config) (*Context, error) {
	c := cfg.withDefaults()
	lib := c.Library
	ref := lib.ContextCreate()
	if ref == native.Null {
		return nil, errors.NativeAllocation(errors.PhaseCreate, "context")
	}
	ctx := &Context{
		lib:      lib,
		log:      c.Logger,
		interned: newInterner(),
		modules:  make(map[native.Ref]*Module),
		funcs:    make(map[native.Ref]*resource.Arena),
		insts:    make(map[native.Ref]instSlot),
		name:     c.Name,
		ref:      ref,
	}
	ctx.arena = resource.NewArena(c.Name, func() error {
		lib.ContextDispose(ref)
		return nil
	})
	ctx.tag = ctx.arena.Tag()
	ctx.log.Debug("context created", zap.String("name", c.Name), zap.Uint64("arena", uint64(ctx.arena.ID())))
	return ctx, nil
}

// Library returns the native library backing the context.
func (c *Context) Library() native.Library {
	return c.lib
}

// Arena returns the root arena of the context. Observers subscribed to it
// receive lifecycle events for modules, builders and detached instructions.
func (c *Context) Arena() *resource.Arena {
	return c.arena
}

// Disposed reports whether the context was disposed.
func (c *Context) Disposed() bool {
	return c.arena.Disposed()
}

// Dispose releases every builder and detached instruction, invalidates all
// modules, functions and views, and frees the native context. A second
// Dispose is a no-op. The global context cannot be disposed.
func (c *Context) Dispose() error {
	if c == nil {
		return nil
	}
	if c.global {
		return errors.InvalidState(errors.PhaseDispose, "global context", "the global context lives for the whole process")
	}
	if c.arena.Disposed() {
		return nil
	}
	err := c.arena.Dispose()
	c.interned.reset()
	clear(c.modules)
	clear(c.funcs)
	clear(c.insts)
	c.log.Debug("context disposed", zap.String("name", c.name))
	return err
}

// InternStats reports the interner usage of the context.
func (c *Context) InternStats() InternStats {
	return c.interned.stats()
}

func (c *Context) check(phase errors.Phase) error {
	if c == nil || c.arena == nil {
		return errors.InvalidInput(phase, "nil context")
	}
	if c.arena.Disposed() {
		return errors.StaleHandle(phase, c.name)
	}
	return nil
}

// owns fails with a cross-context error unless other is c.
func (c *Context) owns(phase errors.Phase, other *Context, object string) error {
	if other != c {
		return errors.CrossContext(phase, object)
	}
	return nil
}

func (c *Context) intern(object string, key internKey, create func() native.Ref) (native.Ref, error) {
	if err := c.check(errors.PhaseIntern); err != nil {
		return native.Null, err
	}
	return c.interned.intern(object, key, create)
}

// functionArena returns the arena of fn, registering it under its module on
// first sight.
func (c *Context) functionArena(fn native.Ref) (*resource.Arena, error) {
	if a, ok := c.funcs[fn]; ok && !a.Disposed() {
		return a, nil
	}
	mod, ok := c.modules[c.lib.GetGlobalParent(fn)]
	if !ok {
		return nil, errors.NotFound(errors.PhaseAccess, "module of function", c.lib.GetValueName(fn))
	}
	ma := mod.owned.Arena()
	if ma == nil || ma.Disposed() {
		return nil, errors.StaleHandle(errors.PhaseAccess, "module")
	}
	lib := c.lib
	a, err := ma.NewChild("function", resource.ReleaseExplicit, func() error {
		lib.DeleteFunction(fn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.funcs[fn] = a
	return a, nil
}

// instruction returns the tracking slot of inst, registering it on first
// sight.
func (c *Context) instruction(inst native.Ref) (instSlot, error) {
	if s, ok := c.insts[inst]; ok && s.scope.Contains(s.h) {
		return s, nil
	}
	bb := c.lib.GetInstructionParent(inst)
	if bb == native.Null {
		// No record of where it came from; only the context outlives it.
		return c.trackDetached(c.arena, inst)
	}
	fa, err := c.functionArena(c.lib.GetBasicBlockParent(bb))
	if err != nil {
		return instSlot{}, err
	}
	return c.trackAttached(fa, inst)
}

func (c *Context) trackAttached(fa *resource.Arena, inst native.Ref) (instSlot, error) {
	lib := c.lib
	h, err := fa.Track("instruction", resource.ReleaseExplicit, func() error {
		lib.InstructionEraseFromParent(inst)
		return nil
	})
	if err != nil {
		return instSlot{}, err
	}
	s := instSlot{scope: fa, h: h}
	c.insts[inst] = s
	return s, nil
}

// trackDetached ties a detached instruction to scope, the arena of the
// function it came from. No native parent frees it, so it is deleted when
// scope is torn down, before the objects its operands refer to.
func (c *Context) trackDetached(scope *resource.Arena, inst native.Ref) (instSlot, error) {
	lib := c.lib
	h, err := scope.Track("detached instruction", resource.ReleaseAlways, func() error {
		lib.DeleteInstruction(inst)
		return nil
	})
	if err != nil {
		return instSlot{}, err
	}
	s := instSlot{scope: scope, h: h}
	c.insts[inst] = s
	return s, nil
}

// wrapValue builds a view for a handle obtained from a native accessor on a
// live object of c.
func (c *Context) wrapValue(ref native.Ref) (Value, error) {
	if ref == native.Null {
		return Value{}, nil
	}
	kind := c.lib.GetValueKind(ref)
	v := Value{ctx: c, ref: ref, kind: kind}
	var fn native.Ref
	switch kind {
	case native.ValueFunction:
		fn = ref
	case native.ValueArgument:
		fn = c.lib.GetParamParent(ref)
	case native.ValueBasicBlock:
		fn = c.lib.GetBasicBlockParent(ref)
	case native.ValueInstruction:
		s, err := c.instruction(ref)
		if err != nil {
			return Value{}, err
		}
		v.scope, v.h = s.scope, s.h
		v.tag = s.scope.Tag()
		return v, nil
	default:
		v.scope = c.arena
		v.tag = c.tag
		return v, nil
	}
	fa, err := c.functionArena(fn)
	if err != nil {
		return Value{}, err
	}
	v.scope = fa
	v.tag = fa.Tag()
	return v, nil
}

func (c *Context) constant(ref native.Ref, kind native.ValueKind) Value {
	return Value{ctx: c, scope: c.arena, ref: ref, tag: c.tag, kind: kind}
}
