package golib

import (
	"slices"

	"github.com/wippyai/ir-runtime/native"
)

func (l *Library) inst(op string, ref native.Ref) (*valueData, *object, bool) {
	return l.valueOf(op, ref, native.ValueInstruction)
}

// attach inserts a detached instruction into bb at position at, or at the
// end when at is negative.
func (l *Library) attach(bb, inst native.Ref, at int) {
	bd := l.objs[bb].data.(*valueData).bb
	if at < 0 || at >= len(bd.insts) {
		bd.insts = append(bd.insts, inst)
	} else {
		bd.insts = slices.Insert(bd.insts, at, inst)
	}
	l.objs[inst].data.(*valueData).parent = bb
}

func (l *Library) detach(inst native.Ref, vd *valueData) {
	bd := l.objs[vd.parent].data.(*valueData).bb
	bd.insts = slices.DeleteFunc(bd.insts, func(r native.Ref) bool { return r == inst })
	vd.parent = native.Null
}

// cloneInst allocates a detached copy of inst with the same operands.
func (l *Library) cloneInst(ctx, inst native.Ref) native.Ref {
	src := l.objs[inst].data.(*valueData)
	return l.alloc(kindValue, ctx, &valueData{
		kind:   native.ValueInstruction,
		ty:     src.ty,
		name:   src.name,
		ops:    slices.Clone(src.ops),
		opcode: src.opcode,
		pred:   src.pred,
		callTy: src.callTy,
	})
}

// GetInstructionOpcode returns the opcode of inst.
func (l *Library) GetInstructionOpcode(inst native.Ref) native.Opcode {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.inst("GetInstructionOpcode", inst)
	if !ok {
		return native.OpInvalid
	}
	return vd.opcode
}

// GetInstructionParent returns the block of inst, or Null when detached.
func (l *Library) GetInstructionParent(inst native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.inst("GetInstructionParent", inst)
	if !ok {
		return native.Null
	}
	return vd.parent
}

// GetNextInstruction returns the instruction after inst, or Null.
func (l *Library) GetNextInstruction(inst native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.inst("GetNextInstruction", inst)
	if !ok || vd.parent == native.Null {
		return native.Null
	}
	return nextOf(l.objs[vd.parent].data.(*valueData).bb.insts, inst)
}

// GetPreviousInstruction returns the instruction before inst, or Null.
func (l *Library) GetPreviousInstruction(inst native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.inst("GetPreviousInstruction", inst)
	if !ok || vd.parent == native.Null {
		return native.Null
	}
	return prevOf(l.objs[vd.parent].data.(*valueData).bb.insts, inst)
}

// GetICmpPredicate returns the predicate of an icmp instruction.
func (l *Library) GetICmpPredicate(inst native.Ref) native.IntPredicate {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.inst("GetICmpPredicate", inst)
	if !ok {
		return native.IntEQ
	}
	if vd.opcode != native.OpICmp {
		l.fault(FaultMisuse, "GetICmpPredicate", inst, "not an icmp")
		return native.IntEQ
	}
	return vd.pred
}

// InstructionClone returns a detached copy of inst owned by the caller.
func (l *Library) InstructionClone(inst native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, o, ok := l.inst("InstructionClone", inst)
	if !ok {
		return native.Null
	}
	return l.cloneInst(o.ctx, inst)
}

// InstructionRemoveFromParent unlinks inst from its block. The caller owns
// the detached instruction afterwards.
func (l *Library) InstructionRemoveFromParent(inst native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.inst("InstructionRemoveFromParent", inst)
	if !ok {
		return
	}
	if vd.parent == native.Null {
		l.fault(FaultMisuse, "InstructionRemoveFromParent", inst, "instruction is detached")
		return
	}
	l.detach(inst, vd)
}

// InstructionEraseFromParent unlinks and frees an attached instruction.
func (l *Library) InstructionEraseFromParent(inst native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "InstructionEraseFromParent"
	if _, ok := l.release(op, inst, kindValue); !ok {
		return
	}
	vd, _, ok := l.inst(op, inst)
	if !ok {
		return
	}
	if vd.parent == native.Null {
		l.fault(FaultMisuse, op, inst, "instruction is detached")
		return
	}
	l.detach(inst, vd)
	l.free(inst)
}

// DeleteInstruction frees a detached instruction.
func (l *Library) DeleteInstruction(inst native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "DeleteInstruction"
	if _, ok := l.release(op, inst, kindValue); !ok {
		return
	}
	vd, _, ok := l.inst(op, inst)
	if !ok {
		return
	}
	if vd.parent != native.Null {
		l.fault(FaultMisuse, op, inst, "instruction is still attached")
		return
	}
	l.free(inst)
}
