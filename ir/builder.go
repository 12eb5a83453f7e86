package ir

import (
	"fmt"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/resource"
)

// BuilderState is the insertion position of a Builder.
type BuilderState uint8

const (
	Unpositioned BuilderState = iota
	PositionedBefore
	PositionedAtEnd
)

func (s BuilderState) String() string {
	switch s {
	case Unpositioned:
		return "unpositioned"
	case PositionedBefore:
		return "positioned_before"
	case PositionedAtEnd:
		return "positioned_at_end"
	default:
		return "unknown"
	}
}

// Builder inserts instructions at a cursor. It belongs to its context and is
// released when the context is disposed, but it may be disposed earlier.
//
// Every operand and position is validated before the native library is
// called, so a failed build leaves both the builder and the IR unchanged.
type Builder struct {
	ctx    *Context
	block  BasicBlock
	before InstructionValue
	ref    native.Ref
	tag    resource.Tag
	h      resource.Handle
	state  BuilderState
}

// NewBuilder creates an unpositioned builder.
func (c *Context) NewBuilder() (*Builder, error) {
	if err := c.check(errors.PhaseCreate); err != nil {
		return nil, err
	}
	ref := c.lib.CreateBuilderInContext(c.ref)
	if ref == native.Null {
		return nil, errors.NativeAllocation(errors.PhaseCreate, "builder")
	}
	lib := c.lib
	h, err := c.arena.Track("builder", resource.ReleaseAlways, func() error {
		lib.DisposeBuilder(ref)
		return nil
	})
	if err != nil {
		lib.DisposeBuilder(ref)
		return nil, err
	}
	return &Builder{ctx: c, ref: ref, tag: c.tag, h: h}, nil
}

func (b *Builder) check() error {
	if b == nil || b.ctx == nil {
		return errors.InvalidInput(errors.PhaseBuild, "nil builder")
	}
	if err := b.ctx.arena.Check(b.tag); err != nil {
		return err
	}
	if !b.ctx.arena.Contains(b.h) {
		return errors.StaleHandle(errors.PhaseBuild, "builder")
	}
	return nil
}

// Dispose releases the native builder. A second Dispose is a no-op.
func (b *Builder) Dispose() error {
	if b == nil || b.ctx == nil || !b.ctx.arena.Contains(b.h) {
		return nil
	}
	b.state = Unpositioned
	return b.ctx.arena.Release(b.h)
}

// Context returns the owning context.
func (b *Builder) Context() *Context {
	return b.ctx
}

// State returns the insertion position.
func (b *Builder) State() BuilderState {
	return b.state
}

// InsertBlock returns the block the cursor is in, or a zero view when the
// builder is unpositioned.
func (b *Builder) InsertBlock() (BasicBlock, error) {
	if err := b.check(); err != nil {
		return BasicBlock{}, err
	}
	if b.state == Unpositioned {
		return BasicBlock{}, nil
	}
	if err := b.block.check(); err != nil {
		return BasicBlock{}, err
	}
	return b.block, nil
}

// PositionAtEnd moves the cursor to the end of bb.
func (b *Builder) PositionAtEnd(bb BasicBlock) error {
	if err := b.check(); err != nil {
		return err
	}
	if err := bb.check(); err != nil {
		return err
	}
	if err := b.ctx.owns(errors.PhaseBuild, bb.ctx, "basic block"); err != nil {
		return err
	}
	if bb.kind != native.ValueBasicBlock {
		return errors.TypeMismatch(errors.PhaseBuild, native.ValueBasicBlock.String(), bb.kind.String())
	}
	b.ctx.lib.PositionBuilderAtEnd(b.ref, bb.ref)
	b.block, b.before, b.state = bb, InstructionValue{}, PositionedAtEnd
	return nil
}

// PositionBefore moves the cursor in front of an attached instruction.
func (b *Builder) PositionBefore(inst InstructionValue) error {
	if err := b.check(); err != nil {
		return err
	}
	if err := inst.check(); err != nil {
		return err
	}
	if err := b.ctx.owns(errors.PhaseBuild, inst.ctx, "instruction"); err != nil {
		return err
	}
	if err := inst.attached(errors.PhaseBuild); err != nil {
		return err
	}
	bb, err := inst.Parent()
	if err != nil {
		return err
	}
	b.ctx.lib.PositionBuilderBefore(b.ref, inst.ref)
	b.block, b.before, b.state = bb, inst, PositionedBefore
	return nil
}

// ClearPosition unpositions the builder.
func (b *Builder) ClearPosition() error {
	if err := b.check(); err != nil {
		return err
	}
	b.ctx.lib.ClearInsertionPosition(b.ref)
	b.block, b.before, b.state = BasicBlock{}, InstructionValue{}, Unpositioned
	return nil
}

// position returns the current block after validating the cursor.
func (b *Builder) position() (BasicBlock, error) {
	if err := b.check(); err != nil {
		return BasicBlock{}, err
	}
	switch b.state {
	case Unpositioned:
		return BasicBlock{}, errors.InvalidState(errors.PhaseBuild, "builder", "builder is not positioned")
	case PositionedBefore:
		if err := b.before.check(); err != nil {
			return BasicBlock{}, errors.Wrap(errors.PhaseBuild, errors.KindInvalidState, err, "insertion point is gone")
		}
	}
	if err := b.block.check(); err != nil {
		return BasicBlock{}, errors.Wrap(errors.PhaseBuild, errors.KindInvalidState, err, "insertion block is gone")
	}
	return b.block, nil
}

// operands validates vals for use in bb and returns their handles.
func (b *Builder) operands(bb BasicBlock, vals ...AnyValue) ([]native.Ref, error) {
	mod := bb.scope.Parent()
	refs := make([]native.Ref, len(vals))
	for i, av := range vals {
		v, err := valueOf(av)
		if err != nil {
			return nil, err
		}
		object := fmt.Sprintf("operand %d", i)
		if err := b.ctx.owns(errors.PhaseBuild, v.ctx, object); err != nil {
			return nil, err
		}
		if err := checkOperand(v, bb, mod, object); err != nil {
			return nil, err
		}
		refs[i] = v.ref
	}
	return refs, nil
}

func checkOperand(v Value, bb BasicBlock, mod *resource.Arena, object string) error {
	switch v.kind {
	case native.ValueBasicBlock, native.ValueMetadataString, native.ValueMetadataNode:
		return errors.InvalidInput(errors.PhaseBuild, fmt.Sprintf("%s: a %s is not a first-class value", object, v.kind))
	}
	if v.kind == native.ValueInstruction && v.ctx.lib.GetInstructionParent(v.ref) == native.Null {
		return errors.InvalidInput(errors.PhaseBuild, object+": detached instruction")
	}
	if v.moduleArena() == nil {
		return nil
	}
	if v.moduleArena() != mod {
		return errors.CrossModule(errors.PhaseBuild, object)
	}
	if (v.kind == native.ValueArgument || v.kind == native.ValueInstruction) && v.scope != bb.scope {
		return errors.InvalidInput(errors.PhaseBuild, object+" belongs to another function")
	}
	return nil
}

func (b *Builder) typeOf(ref native.Ref) native.Ref {
	return b.ctx.lib.TypeOf(ref)
}

func (b *Builder) describe(ty native.Ref) string {
	return b.ctx.wrapType(ty).String()
}

func (b *Builder) emit(bb BasicBlock, object string, build func() native.Ref) (InstructionValue, error) {
	ref := build()
	if ref == native.Null {
		return InstructionValue{}, errors.NativeAllocation(errors.PhaseBuild, object)
	}
	s, err := b.ctx.trackAttached(bb.scope, ref)
	if err != nil {
		return InstructionValue{}, err
	}
	return b.ctx.instructionAt(ref, s), nil
}

// BuildBinOp inserts an integer arithmetic or bitwise instruction. Both
// operands must share one integer type.
func (b *Builder) BuildBinOp(op native.Opcode, lhs, rhs AnyValue, name string) (InstructionValue, error) {
	if !op.IsBinary() {
		return InstructionValue{}, errors.InvalidInput(errors.PhaseBuild, op.String()+" is not a binary operation")
	}
	bb, err := b.position()
	if err != nil {
		return InstructionValue{}, err
	}
	refs, err := b.operands(bb, lhs, rhs)
	if err != nil {
		return InstructionValue{}, err
	}
	if err := b.sameInt(refs[0], refs[1]); err != nil {
		return InstructionValue{}, err
	}
	return b.emit(bb, op.String(), func() native.Ref {
		return b.ctx.lib.BuildBinOp(b.ref, op, refs[0], refs[1], name)
	})
}

func (b *Builder) sameInt(lhs, rhs native.Ref) error {
	lt, rt := b.typeOf(lhs), b.typeOf(rhs)
	if b.ctx.lib.GetTypeKind(lt) != native.TypeInteger {
		return errors.TypeMismatch(errors.PhaseBuild, "integer", b.describe(lt))
	}
	if lt != rt {
		return errors.TypeMismatch(errors.PhaseBuild, b.describe(lt), b.describe(rt))
	}
	return nil
}

// BuildAdd inserts lhs + rhs.
func (b *Builder) BuildAdd(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpAdd, lhs, rhs, name)
}

// BuildSub inserts lhs - rhs.
func (b *Builder) BuildSub(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpSub, lhs, rhs, name)
}

// BuildMul inserts lhs * rhs.
func (b *Builder) BuildMul(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpMul, lhs, rhs, name)
}

// BuildUDiv inserts unsigned lhs / rhs.
func (b *Builder) BuildUDiv(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpUDiv, lhs, rhs, name)
}

// BuildSDiv inserts signed lhs / rhs.
func (b *Builder) BuildSDiv(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpSDiv, lhs, rhs, name)
}

// BuildURem inserts unsigned lhs % rhs.
func (b *Builder) BuildURem(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpURem, lhs, rhs, name)
}

// BuildSRem inserts signed lhs % rhs.
func (b *Builder) BuildSRem(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpSRem, lhs, rhs, name)
}

// BuildShl inserts lhs << rhs.
func (b *Builder) BuildShl(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpShl, lhs, rhs, name)
}

// BuildLShr inserts a logical lhs >> rhs.
func (b *Builder) BuildLShr(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpLShr, lhs, rhs, name)
}

// BuildAShr inserts an arithmetic lhs >> rhs.
func (b *Builder) BuildAShr(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpAShr, lhs, rhs, name)
}

// BuildAnd inserts lhs & rhs.
func (b *Builder) BuildAnd(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpAnd, lhs, rhs, name)
}

// BuildOr inserts lhs | rhs.
func (b *Builder) BuildOr(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpOr, lhs, rhs, name)
}

// BuildXor inserts lhs ^ rhs.
func (b *Builder) BuildXor(lhs, rhs AnyValue, name string) (InstructionValue, error) {
	return b.BuildBinOp(native.OpXor, lhs, rhs, name)
}

// BuildICmp inserts an integer comparison producing i1.
func (b *Builder) BuildICmp(pred native.IntPredicate, lhs, rhs AnyValue, name string) (InstructionValue, error) {
	if pred > native.IntSLE {
		return InstructionValue{}, errors.InvalidInput(errors.PhaseBuild, fmt.Sprintf("invalid predicate %d", pred))
	}
	bb, err := b.position()
	if err != nil {
		return InstructionValue{}, err
	}
	refs, err := b.operands(bb, lhs, rhs)
	if err != nil {
		return InstructionValue{}, err
	}
	if err := b.sameInt(refs[0], refs[1]); err != nil {
		return InstructionValue{}, err
	}
	return b.emit(bb, "icmp", func() native.Ref {
		return b.ctx.lib.BuildICmp(b.ref, pred, refs[0], refs[1], name)
	})
}

func (b *Builder) isBool(ref native.Ref) error {
	ty := b.typeOf(ref)
	lib := b.ctx.lib
	if lib.GetTypeKind(ty) != native.TypeInteger || lib.GetIntTypeWidth(ty) != 1 {
		return errors.TypeMismatch(errors.PhaseBuild, "i1", b.describe(ty))
	}
	return nil
}

// BuildSelect inserts cond ? then : els.
func (b *Builder) BuildSelect(cond, then, els AnyValue, name string) (InstructionValue, error) {
	bb, err := b.position()
	if err != nil {
		return InstructionValue{}, err
	}
	refs, err := b.operands(bb, cond, then, els)
	if err != nil {
		return InstructionValue{}, err
	}
	if err := b.isBool(refs[0]); err != nil {
		return InstructionValue{}, err
	}
	if tt, et := b.typeOf(refs[1]), b.typeOf(refs[2]); tt != et {
		return InstructionValue{}, errors.TypeMismatch(errors.PhaseBuild, b.describe(tt), b.describe(et))
	}
	return b.emit(bb, "select", func() native.Ref {
		return b.ctx.lib.BuildSelect(b.ref, refs[0], refs[1], refs[2], name)
	})
}

// BuildCall inserts a direct call of fn. The callee must be in the module of
// the insertion block.
func (b *Builder) BuildCall(fn FunctionValue, args []AnyValue, name string) (InstructionValue, error) {
	bb, err := b.position()
	if err != nil {
		return InstructionValue{}, err
	}
	if err := fn.check(); err != nil {
		return InstructionValue{}, err
	}
	if err := b.ctx.owns(errors.PhaseBuild, fn.ctx, "callee"); err != nil {
		return InstructionValue{}, err
	}
	if fn.kind != native.ValueFunction {
		return InstructionValue{}, errors.TypeMismatch(errors.PhaseBuild, native.ValueFunction.String(), fn.kind.String())
	}
	if fn.moduleArena() != bb.scope.Parent() {
		return InstructionValue{}, errors.CrossModule(errors.PhaseBuild, "callee")
	}
	refs, err := b.operands(bb, args...)
	if err != nil {
		return InstructionValue{}, err
	}
	lib := b.ctx.lib
	fnTy := lib.GlobalGetValueType(fn.ref)
	params := lib.GetParamTypes(fnTy)
	if len(refs) < len(params) || (!lib.IsFunctionVarArg(fnTy) && len(refs) != len(params)) {
		return InstructionValue{}, errors.TypeMismatch(errors.PhaseBuild,
			fmt.Sprintf("%d arguments", len(params)), fmt.Sprintf("%d arguments", len(refs)))
	}
	for i, pt := range params {
		if at := b.typeOf(refs[i]); at != pt {
			return InstructionValue{}, errors.New(errors.PhaseBuild, errors.KindTypeMismatch).
				Object(fmt.Sprintf("argument %d", i)).
				Detail("want %s, got %s", b.describe(pt), b.describe(at)).
				Build()
		}
	}
	if lib.GetTypeKind(lib.GetReturnType(fnTy)) == native.TypeVoid {
		name = ""
	}
	return b.emit(bb, "call", func() native.Ref {
		return lib.BuildCall(b.ref, fnTy, fn.ref, refs, name)
	})
}

func (b *Builder) returnType(bb BasicBlock) native.Ref {
	lib := b.ctx.lib
	return lib.GetReturnType(lib.GlobalGetValueType(lib.GetBasicBlockParent(bb.ref)))
}

// BuildReturn inserts ret v. The type of v must match the function result.
func (b *Builder) BuildReturn(v AnyValue) (InstructionValue, error) {
	bb, err := b.position()
	if err != nil {
		return InstructionValue{}, err
	}
	refs, err := b.operands(bb, v)
	if err != nil {
		return InstructionValue{}, err
	}
	if rt, vt := b.returnType(bb), b.typeOf(refs[0]); rt != vt {
		return InstructionValue{}, errors.TypeMismatch(errors.PhaseBuild, b.describe(rt), b.describe(vt))
	}
	return b.emit(bb, "ret", func() native.Ref {
		return b.ctx.lib.BuildRet(b.ref, refs[0])
	})
}

// BuildReturnVoid inserts ret void in a function returning void.
func (b *Builder) BuildReturnVoid() (InstructionValue, error) {
	bb, err := b.position()
	if err != nil {
		return InstructionValue{}, err
	}
	if rt := b.returnType(bb); b.ctx.lib.GetTypeKind(rt) != native.TypeVoid {
		return InstructionValue{}, errors.TypeMismatch(errors.PhaseBuild, b.describe(rt), "void")
	}
	return b.emit(bb, "ret", func() native.Ref {
		return b.ctx.lib.BuildRetVoid(b.ref)
	})
}

// target validates a branch destination.
func (b *Builder) target(bb, dest BasicBlock, object string) error {
	if err := dest.check(); err != nil {
		return err
	}
	if err := b.ctx.owns(errors.PhaseBuild, dest.ctx, object); err != nil {
		return err
	}
	if dest.kind != native.ValueBasicBlock {
		return errors.TypeMismatch(errors.PhaseBuild, native.ValueBasicBlock.String(), dest.kind.String())
	}
	if dest.scope.Parent() != bb.scope.Parent() {
		return errors.CrossModule(errors.PhaseBuild, object)
	}
	if dest.scope != bb.scope {
		return errors.InvalidInput(errors.PhaseBuild, object+" belongs to another function")
	}
	return nil
}

// BuildBr inserts an unconditional branch to dest.
func (b *Builder) BuildBr(dest BasicBlock) (InstructionValue, error) {
	bb, err := b.position()
	if err != nil {
		return InstructionValue{}, err
	}
	if err := b.target(bb, dest, "branch target"); err != nil {
		return InstructionValue{}, err
	}
	return b.emit(bb, "br", func() native.Ref {
		return b.ctx.lib.BuildBr(b.ref, dest.ref)
	})
}

// BuildCondBr inserts a branch to then when cond is true and to els
// otherwise.
func (b *Builder) BuildCondBr(cond AnyValue, then, els BasicBlock) (InstructionValue, error) {
	bb, err := b.position()
	if err != nil {
		return InstructionValue{}, err
	}
	refs, err := b.operands(bb, cond)
	if err != nil {
		return InstructionValue{}, err
	}
	if err := b.isBool(refs[0]); err != nil {
		return InstructionValue{}, err
	}
	if err := b.target(bb, then, "then block"); err != nil {
		return InstructionValue{}, err
	}
	if err := b.target(bb, els, "else block"); err != nil {
		return InstructionValue{}, err
	}
	return b.emit(bb, "br", func() native.Ref {
		return b.ctx.lib.BuildCondBr(b.ref, refs[0], then.ref, els.ref)
	})
}

// Insert places a detached instruction at the cursor and returns its
// attached view. The detached view becomes stale.
func (b *Builder) Insert(inst InstructionValue, name string) (InstructionValue, error) {
	bb, err := b.position()
	if err != nil {
		return InstructionValue{}, err
	}
	if err := inst.check(); err != nil {
		return InstructionValue{}, err
	}
	if err := b.ctx.owns(errors.PhaseBuild, inst.ctx, "instruction"); err != nil {
		return InstructionValue{}, err
	}
	if err := inst.detached(errors.PhaseBuild); err != nil {
		return InstructionValue{}, err
	}
	if err := b.insertable(bb, inst); err != nil {
		return InstructionValue{}, err
	}
	c := b.ctx
	if err := inst.scope.Forget(inst.h); err != nil {
		return InstructionValue{}, err
	}
	c.lib.InsertIntoBuilderWithName(b.ref, inst.ref, name)
	s, err := c.trackAttached(bb.scope, inst.ref)
	if err != nil {
		return InstructionValue{}, err
	}
	return c.instructionAt(inst.ref, s), nil
}

// insertable checks that every operand of inst is usable in bb.
func (b *Builder) insertable(bb BasicBlock, inst InstructionValue) error {
	lib := b.ctx.lib
	mod := bb.scope.Parent()
	for i := range lib.GetNumOperands(inst.ref) {
		op := lib.GetOperand(inst.ref, i)
		v, err := b.ctx.wrapValue(op)
		if err != nil {
			return err
		}
		object := fmt.Sprintf("operand %d", i)
		if v.kind == native.ValueFunction || v.kind == native.ValueBasicBlock {
			if v.moduleArena() != mod {
				return errors.CrossModule(errors.PhaseBuild, object)
			}
			continue
		}
		if err := checkOperand(v, bb, mod, object); err != nil {
			return err
		}
	}
	return nil
}
