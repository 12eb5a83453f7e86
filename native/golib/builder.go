package golib

import (
	"fmt"
	"slices"

	"github.com/wippyai/ir-runtime/native"
)

type builderData struct {
	block  native.Ref
	before native.Ref
}

func (l *Library) builder(op string, b native.Ref) (*builderData, *object, bool) {
	o, ok := l.get(op, b, kindBuilder)
	if !ok {
		return nil, nil, false
	}
	return o.data.(*builderData), o, true
}

// CreateBuilderInContext allocates an unpositioned builder. Builders are not
// freed by ContextDispose.
func (l *Library) CreateBuilderInContext(ctx native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.context("CreateBuilderInContext", ctx); !ok {
		return native.Null
	}
	return l.alloc(kindBuilder, ctx, &builderData{})
}

// DisposeBuilder frees a builder.
func (l *Library) DisposeBuilder(b native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.release("DisposeBuilder", b, kindBuilder); !ok {
		return
	}
	l.free(b)
}

// PositionBuilderAtEnd moves the builder after the last instruction of bb.
func (l *Library) PositionBuilderAtEnd(b native.Ref, bb native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "PositionBuilderAtEnd"
	bd, bo, ok := l.builder(op, b)
	if !ok {
		return
	}
	_, blo, ok := l.block(op, bb)
	if !ok {
		return
	}
	if blo.ctx != bo.ctx {
		l.fault(FaultMisuse, op, bb, "block from another context")
		return
	}
	bd.block, bd.before = bb, native.Null
}

// PositionBuilderBefore moves the builder before an attached instruction.
func (l *Library) PositionBuilderBefore(b native.Ref, inst native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "PositionBuilderBefore"
	bd, bo, ok := l.builder(op, b)
	if !ok {
		return
	}
	vd, io, ok := l.inst(op, inst)
	if !ok {
		return
	}
	if io.ctx != bo.ctx {
		l.fault(FaultMisuse, op, inst, "instruction from another context")
		return
	}
	if vd.parent == native.Null {
		l.fault(FaultMisuse, op, inst, "instruction is detached")
		return
	}
	bd.block, bd.before = vd.parent, inst
}

// ClearInsertionPosition unpositions the builder.
func (l *Library) ClearInsertionPosition(b native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bd, _, ok := l.builder("ClearInsertionPosition", b); ok {
		bd.block, bd.before = native.Null, native.Null
	}
}

// GetInsertBlock returns the block the builder inserts into, or Null.
func (l *Library) GetInsertBlock(b native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	bd, _, ok := l.builder("GetInsertBlock", b)
	if !ok {
		return native.Null
	}
	return bd.block
}

// insertion validates the builder position and returns the block and index
// at which the next instruction goes.
func (l *Library) insertion(op string, b native.Ref) (native.Ref, native.Ref, int, bool) {
	bd, bo, ok := l.builder(op, b)
	if !ok {
		return native.Null, native.Null, 0, false
	}
	if bd.block == native.Null {
		l.fault(FaultMisuse, op, b, "builder is not positioned")
		return native.Null, native.Null, 0, false
	}
	blk, _, ok := l.block(op, bd.block)
	if !ok {
		return native.Null, native.Null, 0, false
	}
	if bd.before == native.Null {
		return bo.ctx, bd.block, -1, true
	}
	at := slices.Index(blk.bb.insts, bd.before)
	if at < 0 {
		l.fault(FaultMisuse, op, b, "insertion point is no longer in its block")
		return native.Null, native.Null, 0, false
	}
	return bo.ctx, bd.block, at, true
}

// operandsIn resolves values and checks they belong to ctx.
func (l *Library) operandsIn(op string, ctx native.Ref, refs ...native.Ref) ([]*valueData, bool) {
	out := make([]*valueData, len(refs))
	for i, r := range refs {
		vd, o, ok := l.value(op, r)
		if !ok {
			return nil, false
		}
		if o.ctx != ctx {
			l.fault(FaultMisuse, op, r, "value from another context")
			return nil, false
		}
		out[i] = vd
	}
	return out, true
}

func (l *Library) intType(ty native.Ref) (*typeData, bool) {
	td := l.objs[ty].data.(*typeData)
	return td, td.kind == native.TypeInteger
}

func (l *Library) emit(op string, b native.Ref, vd *valueData, name string) native.Ref {
	ctx, bb, at, ok := l.insertion(op, b)
	if !ok {
		return native.Null
	}
	vd.kind = native.ValueInstruction
	vd.name = name
	inst := l.alloc(kindValue, ctx, vd)
	if inst == native.Null {
		return native.Null
	}
	l.attach(bb, inst, at)
	return inst
}

func (l *Library) builderContext(op string, b native.Ref) (native.Ref, bool) {
	_, bo, ok := l.builder(op, b)
	if !ok {
		return native.Null, false
	}
	return bo.ctx, true
}

// BuildBinOp inserts an integer arithmetic instruction.
func (l *Library) BuildBinOp(b native.Ref, opc native.Opcode, lhs, rhs native.Ref, name string) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "BuildBinOp"
	if !opc.IsBinary() {
		l.fault(FaultMisuse, op, b, fmt.Sprintf("%s is not a binary opcode", opc))
		return native.Null
	}
	ctx, ok := l.builderContext(op, b)
	if !ok {
		return native.Null
	}
	vals, ok := l.operandsIn(op, ctx, lhs, rhs)
	if !ok {
		return native.Null
	}
	if _, isInt := l.intType(vals[0].ty); !isInt || vals[0].ty != vals[1].ty {
		l.fault(FaultMisuse, op, b, "operands must share an integer type")
		return native.Null
	}
	return l.emit(op, b, &valueData{ty: vals[0].ty, opcode: opc, ops: []native.Ref{lhs, rhs}}, name)
}

// BuildICmp inserts an integer comparison producing i1.
func (l *Library) BuildICmp(b native.Ref, pred native.IntPredicate, lhs, rhs native.Ref, name string) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "BuildICmp"
	ctx, ok := l.builderContext(op, b)
	if !ok {
		return native.Null
	}
	vals, ok := l.operandsIn(op, ctx, lhs, rhs)
	if !ok {
		return native.Null
	}
	if _, isInt := l.intType(vals[0].ty); !isInt || vals[0].ty != vals[1].ty {
		l.fault(FaultMisuse, op, b, "operands must share an integer type")
		return native.Null
	}
	i1 := l.uniqueType(op, ctx, "i1", &typeData{kind: native.TypeInteger, width: 1})
	if i1 == native.Null {
		return native.Null
	}
	return l.emit(op, b, &valueData{ty: i1, opcode: native.OpICmp, pred: pred, ops: []native.Ref{lhs, rhs}}, name)
}

func (l *Library) isBool(ty native.Ref) bool {
	td, ok := l.intType(ty)
	return ok && td.width == 1
}

// BuildSelect inserts cond ? then : els.
func (l *Library) BuildSelect(b native.Ref, cond, then, els native.Ref, name string) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "BuildSelect"
	ctx, ok := l.builderContext(op, b)
	if !ok {
		return native.Null
	}
	vals, ok := l.operandsIn(op, ctx, cond, then, els)
	if !ok {
		return native.Null
	}
	if !l.isBool(vals[0].ty) {
		l.fault(FaultMisuse, op, cond, "condition must be i1")
		return native.Null
	}
	if vals[1].ty != vals[2].ty {
		l.fault(FaultMisuse, op, b, "select arms differ in type")
		return native.Null
	}
	return l.emit(op, b, &valueData{ty: vals[1].ty, opcode: native.OpSelect, ops: []native.Ref{cond, then, els}}, name)
}

// BuildCall inserts a direct call of fn with signature fnTy.
func (l *Library) BuildCall(b native.Ref, fnTy native.Ref, fn native.Ref, args []native.Ref, name string) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "BuildCall"
	ctx, ok := l.builderContext(op, b)
	if !ok {
		return native.Null
	}
	td, to, ok := l.typ(op, fnTy)
	if !ok {
		return native.Null
	}
	if td.kind != native.TypeFunction || to.ctx != ctx {
		l.fault(FaultMisuse, op, fnTy, "invalid callee type")
		return native.Null
	}
	if _, _, ok := l.function(op, fn); !ok {
		return native.Null
	}
	vals, ok := l.operandsIn(op, ctx, append(slices.Clone(args), fn)...)
	if !ok {
		return native.Null
	}
	if len(args) < len(td.params) || (!td.varArg && len(args) != len(td.params)) {
		l.fault(FaultMisuse, op, fn, fmt.Sprintf("want %d arguments, got %d", len(td.params), len(args)))
		return native.Null
	}
	for i, pt := range td.params {
		if vals[i].ty != pt {
			l.fault(FaultMisuse, op, args[i], fmt.Sprintf("argument %d type mismatch", i))
			return native.Null
		}
	}
	ops := append(slices.Clone(args), fn)
	return l.emit(op, b, &valueData{ty: td.ret, opcode: native.OpCall, callTy: fnTy, ops: ops}, name)
}

func (l *Library) voidType(op string, ctx native.Ref) native.Ref {
	return l.uniqueType(op, ctx, "void", &typeData{kind: native.TypeVoid})
}

// BuildRet inserts ret v.
func (l *Library) BuildRet(b native.Ref, v native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "BuildRet"
	ctx, ok := l.builderContext(op, b)
	if !ok {
		return native.Null
	}
	if _, ok := l.operandsIn(op, ctx, v); !ok {
		return native.Null
	}
	void := l.voidType(op, ctx)
	if void == native.Null {
		return native.Null
	}
	return l.emit(op, b, &valueData{ty: void, opcode: native.OpRet, ops: []native.Ref{v}}, "")
}

// BuildRetVoid inserts ret void.
func (l *Library) BuildRetVoid(b native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "BuildRetVoid"
	ctx, ok := l.builderContext(op, b)
	if !ok {
		return native.Null
	}
	void := l.voidType(op, ctx)
	if void == native.Null {
		return native.Null
	}
	return l.emit(op, b, &valueData{ty: void, opcode: native.OpRet}, "")
}

// BuildBr inserts an unconditional branch.
func (l *Library) BuildBr(b native.Ref, dest native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "BuildBr"
	ctx, ok := l.builderContext(op, b)
	if !ok {
		return native.Null
	}
	vals, ok := l.operandsIn(op, ctx, dest)
	if !ok {
		return native.Null
	}
	if vals[0].kind != native.ValueBasicBlock {
		l.fault(FaultMisuse, op, dest, "destination is not a block")
		return native.Null
	}
	void := l.voidType(op, ctx)
	if void == native.Null {
		return native.Null
	}
	return l.emit(op, b, &valueData{ty: void, opcode: native.OpBr, ops: []native.Ref{dest}}, "")
}

// BuildCondBr inserts a two-way branch on an i1 condition.
func (l *Library) BuildCondBr(b native.Ref, cond, then, els native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "BuildCondBr"
	ctx, ok := l.builderContext(op, b)
	if !ok {
		return native.Null
	}
	vals, ok := l.operandsIn(op, ctx, cond, then, els)
	if !ok {
		return native.Null
	}
	if !l.isBool(vals[0].ty) {
		l.fault(FaultMisuse, op, cond, "condition must be i1")
		return native.Null
	}
	if vals[1].kind != native.ValueBasicBlock || vals[2].kind != native.ValueBasicBlock {
		l.fault(FaultMisuse, op, b, "destination is not a block")
		return native.Null
	}
	void := l.voidType(op, ctx)
	if void == native.Null {
		return native.Null
	}
	return l.emit(op, b, &valueData{ty: void, opcode: native.OpCondBr, ops: []native.Ref{cond, then, els}}, "")
}

// InsertIntoBuilderWithName attaches a detached instruction at the builder
// position. The block takes ownership of it.
func (l *Library) InsertIntoBuilderWithName(b native.Ref, inst native.Ref, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "InsertIntoBuilderWithName"
	ctx, bb, at, ok := l.insertion(op, b)
	if !ok {
		return
	}
	vd, io, ok := l.inst(op, inst)
	if !ok {
		return
	}
	if io.ctx != ctx {
		l.fault(FaultMisuse, op, inst, "instruction from another context")
		return
	}
	if vd.parent != native.Null {
		l.fault(FaultMisuse, op, inst, "instruction is already attached")
		return
	}
	if name != "" {
		vd.name = name
	}
	l.attach(bb, inst, at)
}
