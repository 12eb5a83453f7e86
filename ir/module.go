package ir

import (
	"go.uber.org/zap"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/resource"
)

// Module is an owned module. It holds the release obligation for the native
// module: Dispose frees it, Move hands the obligation to a new *Module, and
// disposing the context invalidates it.
type Module struct {
	ctx   *Context
	owned *resource.Owned
	ref   native.Ref
}

// NewModule creates an empty module.
func (c *Context) NewModule(name string) (*Module, error) {
	if err := c.check(errors.PhaseCreate); err != nil {
		return nil, err
	}
	ref := c.lib.ModuleCreateWithNameInContext(name, c.ref)
	if ref == native.Null {
		return nil, errors.NativeAllocation(errors.PhaseCreate, "module")
	}
	m, err := c.adoptModule(ref)
	if err != nil {
		c.lib.DisposeModule(ref)
		return nil, err
	}
	c.log.Debug("module created", zap.String("module", name))
	return m, nil
}

// adoptModule takes ownership of a native module of c.
func (c *Context) adoptModule(ref native.Ref) (*Module, error) {
	lib := c.lib
	a, err := c.arena.NewChild("module", resource.ReleaseExplicit, func() error {
		lib.DisposeModule(ref)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m := &Module{ctx: c, owned: resource.NewOwned(a), ref: ref}
	c.modules[ref] = m
	return m, nil
}

func (m *Module) check() error {
	if m == nil {
		return errors.InvalidInput(errors.PhaseAccess, "nil module")
	}
	return m.owned.Check()
}

// Check reports whether the module may be used: it fails after a move, a
// Dispose or disposal of the context.
func (m *Module) Check() error {
	return m.check()
}

func (m *Module) arena() *resource.Arena {
	return m.owned.Arena()
}

// Context returns the owning context.
func (m *Module) Context() *Context {
	return m.ctx
}

// Move transfers ownership to a new *Module. Every later use of m fails with
// UseAfterMove; views issued before the move stay valid.
func (m *Module) Move() (*Module, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	o, err := m.owned.Move()
	if err != nil {
		return nil, err
	}
	n := &Module{ctx: m.ctx, owned: o, ref: m.ref}
	m.ctx.modules[m.ref] = n
	return n, nil
}

// Dispose frees the module and invalidates its functions. It is a no-op
// after a move or a previous Dispose, and after the context is disposed.
func (m *Module) Dispose() error {
	if m == nil || m.owned.Moved() {
		return nil
	}
	if a := m.owned.Arena(); a == nil || a.Disposed() {
		return nil
	}
	for fn, fa := range m.ctx.funcs {
		if fa.Parent() == m.arena() {
			delete(m.ctx.funcs, fn)
		}
	}
	delete(m.ctx.modules, m.ref)
	return m.owned.Release()
}

// Disposed reports whether the module was freed, either directly or by its
// context.
func (m *Module) Disposed() bool {
	a := m.owned.Arena()
	return a == nil || a.Disposed()
}

// Owns reports whether v is a function, argument, block or instruction of m.
func (m *Module) Owns(v AnyValue) bool {
	if m.check() != nil || v == nil {
		return false
	}
	vv := v.AsValue()
	if vv.check() != nil || vv.ctx != m.ctx {
		return false
	}
	return vv.moduleArena() == m.arena()
}

// Name returns the module identifier.
func (m *Module) Name() (string, error) {
	if err := m.check(); err != nil {
		return "", err
	}
	return m.ctx.lib.GetModuleIdentifier(m.ref), nil
}

// SetName sets the module identifier.
func (m *Module) SetName(name string) error {
	if err := m.check(); err != nil {
		return err
	}
	m.ctx.lib.SetModuleIdentifier(m.ref, name)
	return nil
}

// Triple returns the target triple, or "" when unset.
func (m *Module) Triple() (string, error) {
	if err := m.check(); err != nil {
		return "", err
	}
	return m.ctx.lib.GetTarget(m.ref), nil
}

// SetTriple sets the target triple.
func (m *Module) SetTriple(triple string) error {
	if err := m.check(); err != nil {
		return err
	}
	m.ctx.lib.SetTarget(m.ref, triple)
	return nil
}

// AddFunction declares a function of type fnTy. A name already in use gets
// a unique suffix.
func (m *Module) AddFunction(name string, fnTy FunctionType) (FunctionValue, error) {
	if err := m.check(); err != nil {
		return FunctionValue{}, err
	}
	if err := fnTy.check(); err != nil {
		return FunctionValue{}, err
	}
	if err := m.ctx.owns(errors.PhaseCreate, fnTy.ctx, "function type"); err != nil {
		return FunctionValue{}, err
	}
	if fnTy.kind != native.TypeFunction {
		return FunctionValue{}, errors.TypeMismatch(errors.PhaseCreate, native.TypeFunction.String(), fnTy.kind.String())
	}
	ref := m.ctx.lib.AddFunction(m.ref, name, fnTy.ref)
	if ref == native.Null {
		return FunctionValue{}, errors.NativeAllocation(errors.PhaseCreate, "function")
	}
	return m.ctx.functionValue(ref)
}

// Function returns the function called name.
func (m *Module) Function(name string) (FunctionValue, error) {
	if err := m.check(); err != nil {
		return FunctionValue{}, err
	}
	ref := m.ctx.lib.GetNamedFunction(m.ref, name)
	if ref == native.Null {
		return FunctionValue{}, errors.NotFound(errors.PhaseAccess, "function", name)
	}
	return m.ctx.functionValue(ref)
}

// Functions returns the functions of the module in order.
func (m *Module) Functions() ([]FunctionValue, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	lib := m.ctx.lib
	var out []FunctionValue
	for fn := lib.GetFirstFunction(m.ref); fn != native.Null; fn = lib.GetNextFunction(fn) {
		f, err := m.ctx.functionValue(fn)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Verify checks the module for structural errors.
func (m *Module) Verify() error {
	if err := m.check(); err != nil {
		return err
	}
	if msg := m.ctx.lib.VerifyModule(m.ref); msg != native.Null {
		return errors.Native(errors.PhaseVerify, native.TakeMessage(m.ctx.lib, msg))
	}
	return nil
}

// Print returns the textual IR of the module.
func (m *Module) Print() (string, error) {
	if err := m.check(); err != nil {
		return "", err
	}
	msg := m.ctx.lib.PrintModuleToString(m.ref)
	if msg == native.Null {
		return "", errors.NativeAllocation(errors.PhaseAccess, "module text")
	}
	return native.TakeMessage(m.ctx.lib, msg), nil
}

// String returns the textual IR, or a marker when the module is unusable.
func (m *Module) String() string {
	s, err := m.Print()
	if err != nil {
		return "<" + string(errors.KindOf(err)) + ">"
	}
	return s
}

// WriteBitcode serializes the module into a new owned buffer.
func (m *Module) WriteBitcode() (*MemoryBuffer, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	ref := m.ctx.lib.WriteBitcodeToMemoryBuffer(m.ref)
	if ref == native.Null {
		return nil, errors.NativeAllocation(errors.PhaseCreate, "bitcode buffer")
	}
	return newMemoryBuffer(m.ctx.lib, ref), nil
}

// Clone returns an independent copy of the module in the same context.
func (m *Module) Clone() (*Module, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	ref := m.ctx.lib.CloneModule(m.ref)
	if ref == native.Null {
		return nil, errors.NativeAllocation(errors.PhaseCreate, "module clone")
	}
	n, err := m.ctx.adoptModule(ref)
	if err != nil {
		m.ctx.lib.DisposeModule(ref)
		return nil, err
	}
	return n, nil
}

// AddNamedMetadata appends node to the named metadata list of the module.
func (m *Module) AddNamedMetadata(name string, node Value) error {
	if err := m.check(); err != nil {
		return err
	}
	if err := node.checkKind(native.ValueMetadataNode); err != nil {
		return err
	}
	if err := m.ctx.owns(errors.PhaseBuild, node.ctx, "metadata node"); err != nil {
		return err
	}
	m.ctx.lib.AddNamedMetadataOperand(m.ref, name, node.ref)
	return nil
}

// NamedMetadata returns the nodes of a named metadata list.
func (m *Module) NamedMetadata(name string) ([]Value, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	refs := m.ctx.lib.GetNamedMetadataOperands(m.ref, name)
	out := make([]Value, len(refs))
	for i, r := range refs {
		out[i] = m.ctx.constant(r, native.ValueMetadataNode)
	}
	return out, nil
}

// ParseBitcode reads a module from buf. The buffer is consumed whether or
// not parsing succeeds; later use of it fails with StaleHandle.
func (c *Context) ParseBitcode(buf *MemoryBuffer) (*Module, error) {
	if err := c.check(errors.PhaseParse); err != nil {
		return nil, err
	}
	if err := buf.check(); err != nil {
		return nil, err
	}
	if buf.lib != c.lib {
		return nil, errors.CrossContext(errors.PhaseParse, "memory buffer of another native library")
	}
	ref, msg := c.lib.ParseBitcodeInContext(c.ref, buf.ref)
	if err := buf.owned.Consume(); err != nil {
		return nil, err
	}
	if msg != native.Null {
		return nil, errors.Native(errors.PhaseParse, native.TakeMessage(c.lib, msg))
	}
	if ref == native.Null {
		return nil, errors.NativeAllocation(errors.PhaseParse, "module")
	}
	m, err := c.adoptModule(ref)
	if err != nil {
		c.lib.DisposeModule(ref)
		return nil, err
	}
	c.log.Debug("module parsed", zap.String("module", c.lib.GetModuleIdentifier(ref)))
	return m, nil
}
