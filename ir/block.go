package ir

import (
	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
)

// BasicBlock is a view of a block in a function body. Blocks live as long as
// their function.
type BasicBlock struct{ Value }

// AppendBasicBlock adds an empty block at the end of fn.
func (c *Context) AppendBasicBlock(fn FunctionValue, name string) (BasicBlock, error) {
	if err := c.check(errors.PhaseBuild); err != nil {
		return BasicBlock{}, err
	}
	if err := fn.check(); err != nil {
		return BasicBlock{}, err
	}
	if err := c.owns(errors.PhaseBuild, fn.ctx, "function"); err != nil {
		return BasicBlock{}, err
	}
	ref := c.lib.AppendBasicBlockInContext(c.ref, fn.ref, name)
	if ref == native.Null {
		return BasicBlock{}, errors.NativeAllocation(errors.PhaseBuild, "basic block")
	}
	return fn.block(ref), nil
}

// PrependBasicBlock inserts an empty block before bb.
func (c *Context) PrependBasicBlock(bb BasicBlock, name string) (BasicBlock, error) {
	if err := c.check(errors.PhaseBuild); err != nil {
		return BasicBlock{}, err
	}
	if err := bb.check(); err != nil {
		return BasicBlock{}, err
	}
	if err := c.owns(errors.PhaseBuild, bb.ctx, "basic block"); err != nil {
		return BasicBlock{}, err
	}
	ref := c.lib.InsertBasicBlockInContext(c.ref, bb.ref, name)
	if ref == native.Null {
		return BasicBlock{}, errors.NativeAllocation(errors.PhaseBuild, "basic block")
	}
	return bb.sibling(ref), nil
}

// InsertBasicBlockAfter inserts an empty block after bb.
func (c *Context) InsertBasicBlockAfter(bb BasicBlock, name string) (BasicBlock, error) {
	next, err := bb.Next()
	if err != nil {
		return BasicBlock{}, err
	}
	if !next.IsZero() {
		return c.PrependBasicBlock(next, name)
	}
	fn, err := bb.Parent()
	if err != nil {
		return BasicBlock{}, err
	}
	return c.AppendBasicBlock(fn, name)
}

func (b BasicBlock) sibling(ref native.Ref) BasicBlock {
	if ref == native.Null {
		return BasicBlock{}
	}
	return BasicBlock{Value{ctx: b.ctx, scope: b.scope, ref: ref, tag: b.tag, kind: native.ValueBasicBlock}}
}

// Parent returns the function containing the block.
func (b BasicBlock) Parent() (FunctionValue, error) {
	if err := b.check(); err != nil {
		return FunctionValue{}, err
	}
	fn := b.ctx.lib.GetBasicBlockParent(b.ref)
	return FunctionValue{Value{ctx: b.ctx, scope: b.scope, ref: fn, tag: b.tag, kind: native.ValueFunction}}, nil
}

// Next returns the following block, or a zero view for the last one.
func (b BasicBlock) Next() (BasicBlock, error) {
	if err := b.check(); err != nil {
		return BasicBlock{}, err
	}
	return b.sibling(b.ctx.lib.GetNextBasicBlock(b.ref)), nil
}

// Previous returns the preceding block, or a zero view for the entry block.
func (b BasicBlock) Previous() (BasicBlock, error) {
	if err := b.check(); err != nil {
		return BasicBlock{}, err
	}
	return b.sibling(b.ctx.lib.GetPreviousBasicBlock(b.ref)), nil
}

// FirstInstruction returns the first instruction, or a zero view when the
// block is empty.
func (b BasicBlock) FirstInstruction() (InstructionValue, error) {
	if err := b.check(); err != nil {
		return InstructionValue{}, err
	}
	return b.ctx.instructionValue(b.ctx.lib.GetFirstInstruction(b.ref))
}

// LastInstruction returns the last instruction, or a zero view when the
// block is empty.
func (b BasicBlock) LastInstruction() (InstructionValue, error) {
	if err := b.check(); err != nil {
		return InstructionValue{}, err
	}
	return b.ctx.instructionValue(b.ctx.lib.GetLastInstruction(b.ref))
}

// Terminator returns the terminating instruction, or a zero view when the
// block does not end with one.
func (b BasicBlock) Terminator() (InstructionValue, error) {
	if err := b.check(); err != nil {
		return InstructionValue{}, err
	}
	return b.ctx.instructionValue(b.ctx.lib.GetBasicBlockTerminator(b.ref))
}

// Instructions returns the instructions of the block in order.
func (b BasicBlock) Instructions() ([]InstructionValue, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	lib := b.ctx.lib
	var out []InstructionValue
	for inst := lib.GetFirstInstruction(b.ref); inst != native.Null; inst = lib.GetNextInstruction(inst) {
		iv, err := b.ctx.instructionValue(inst)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}
