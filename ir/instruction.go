package ir

import (
	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
)

// InstructionValue is a view of an instruction. An instruction belongs to the
// function it was built in. A detached one (removed or cloned) stays with
// that function until it is inserted again or deleted, and is deleted when
// the function or its module is torn down: its operands die with them.
type InstructionValue struct{ Value }

func (c *Context) instructionValue(ref native.Ref) (InstructionValue, error) {
	if ref == native.Null {
		return InstructionValue{}, nil
	}
	s, err := c.instruction(ref)
	if err != nil {
		return InstructionValue{}, err
	}
	return c.instructionAt(ref, s), nil
}

func (c *Context) instructionAt(ref native.Ref, s instSlot) InstructionValue {
	return InstructionValue{Value{ctx: c, scope: s.scope, ref: ref, tag: s.scope.Tag(), h: s.h, kind: native.ValueInstruction}}
}

// Opcode returns the operation of the instruction.
func (i InstructionValue) Opcode() (native.Opcode, error) {
	if err := i.check(); err != nil {
		return native.OpInvalid, err
	}
	return i.ctx.lib.GetInstructionOpcode(i.ref), nil
}

// Predicate returns the comparison of an icmp instruction.
func (i InstructionValue) Predicate() (native.IntPredicate, error) {
	op, err := i.Opcode()
	if err != nil {
		return 0, err
	}
	if op != native.OpICmp {
		return 0, errors.TypeMismatch(errors.PhaseAccess, native.OpICmp.String(), op.String())
	}
	return i.ctx.lib.GetICmpPredicate(i.ref), nil
}

// IsDetached reports whether the instruction is outside any block.
func (i InstructionValue) IsDetached() (bool, error) {
	if err := i.check(); err != nil {
		return false, err
	}
	return i.unlinked(), nil
}

// unlinked reports whether a checked view has no parent block.
func (i InstructionValue) unlinked() bool {
	return i.ctx.lib.GetInstructionParent(i.ref) == native.Null
}

// IsTerminator reports whether the instruction ends a block.
func (i InstructionValue) IsTerminator() (bool, error) {
	op, err := i.Opcode()
	return op.IsTerminator(), err
}

// Parent returns the block of an attached instruction, or a zero view for a
// detached one.
func (i InstructionValue) Parent() (BasicBlock, error) {
	if err := i.check(); err != nil {
		return BasicBlock{}, err
	}
	bb := i.ctx.lib.GetInstructionParent(i.ref)
	if bb == native.Null {
		return BasicBlock{}, nil
	}
	return BasicBlock{Value{ctx: i.ctx, scope: i.scope, ref: bb, tag: i.tag, kind: native.ValueBasicBlock}}, nil
}

// Next returns the following instruction of the block, or a zero view.
func (i InstructionValue) Next() (InstructionValue, error) {
	if err := i.attached(errors.PhaseAccess); err != nil {
		if errors.Is(err, errors.ErrInvalidState) {
			return InstructionValue{}, nil
		}
		return InstructionValue{}, err
	}
	return i.ctx.instructionValue(i.ctx.lib.GetNextInstruction(i.ref))
}

// Previous returns the preceding instruction of the block, or a zero view.
func (i InstructionValue) Previous() (InstructionValue, error) {
	if err := i.attached(errors.PhaseAccess); err != nil {
		if errors.Is(err, errors.ErrInvalidState) {
			return InstructionValue{}, nil
		}
		return InstructionValue{}, err
	}
	return i.ctx.instructionValue(i.ctx.lib.GetPreviousInstruction(i.ref))
}

func (i InstructionValue) attached(phase errors.Phase) error {
	if err := i.check(); err != nil {
		return err
	}
	if i.unlinked() {
		return errors.InvalidState(phase, "instruction", "instruction is detached")
	}
	return nil
}

func (i InstructionValue) detached(phase errors.Phase) error {
	if err := i.check(); err != nil {
		return err
	}
	if !i.unlinked() {
		return errors.InvalidState(phase, "instruction", "instruction is attached to a block")
	}
	return nil
}

// RemoveFromParent unlinks the instruction from its block and returns the
// detached view. The old view is stale; the caller must insert or delete the
// detached instruction, or it is deleted with its function.
func (i InstructionValue) RemoveFromParent() (InstructionValue, error) {
	if err := i.attached(errors.PhaseBuild); err != nil {
		return InstructionValue{}, err
	}
	if err := i.scope.Forget(i.h); err != nil {
		return InstructionValue{}, err
	}
	i.ctx.lib.InstructionRemoveFromParent(i.ref)
	s, err := i.ctx.trackDetached(i.scope, i.ref)
	if err != nil {
		return InstructionValue{}, err
	}
	return i.ctx.instructionAt(i.ref, s), nil
}

// EraseFromParent unlinks and frees an attached instruction.
func (i InstructionValue) EraseFromParent() error {
	if err := i.attached(errors.PhaseDispose); err != nil {
		return err
	}
	delete(i.ctx.insts, i.ref)
	return i.scope.Release(i.h)
}

// Delete frees a detached instruction.
func (i InstructionValue) Delete() error {
	if err := i.detached(errors.PhaseDispose); err != nil {
		return err
	}
	delete(i.ctx.insts, i.ref)
	return i.scope.Release(i.h)
}

// Clone returns a detached copy of the instruction with the same operands,
// owned by the same function.
func (i InstructionValue) Clone() (InstructionValue, error) {
	if err := i.check(); err != nil {
		return InstructionValue{}, err
	}
	ref := i.ctx.lib.InstructionClone(i.ref)
	if ref == native.Null {
		return InstructionValue{}, errors.NativeAllocation(errors.PhaseCreate, "instruction clone")
	}
	s, err := i.ctx.trackDetached(i.scope, ref)
	if err != nil {
		return InstructionValue{}, err
	}
	return i.ctx.instructionAt(ref, s), nil
}
