package golib

import (
	"slices"

	"github.com/wippyai/ir-runtime/native"
)

// newBlock allocates a block in fn at position at, or at the end when at is
// negative.
func (l *Library) newBlock(ctx, fn native.Ref, at int, name string) native.Ref {
	label := l.labelType(ctx)
	if label == native.Null {
		return native.Null
	}
	bb := l.alloc(kindValue, ctx, &valueData{
		kind:   native.ValueBasicBlock,
		ty:     label,
		name:   name,
		parent: fn,
		bb:     &blockData{},
	})
	if bb == native.Null {
		return native.Null
	}
	fd := l.objs[fn].data.(*valueData).fn
	if at < 0 || at >= len(fd.blocks) {
		fd.blocks = append(fd.blocks, bb)
	} else {
		fd.blocks = slices.Insert(fd.blocks, at, bb)
	}
	return bb
}

func (l *Library) block(op string, bb native.Ref) (*valueData, *object, bool) {
	return l.valueOf(op, bb, native.ValueBasicBlock)
}

// AppendBasicBlockInContext appends a block to fn.
func (l *Library) AppendBasicBlockInContext(ctx native.Ref, fn native.Ref, name string) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "AppendBasicBlockInContext"
	if _, ok := l.context(op, ctx); !ok {
		return native.Null
	}
	_, fo, ok := l.function(op, fn)
	if !ok {
		return native.Null
	}
	if fo.ctx != ctx {
		l.fault(FaultMisuse, op, fn, "function from another context")
		return native.Null
	}
	return l.newBlock(ctx, fn, -1, name)
}

// InsertBasicBlockInContext inserts a block immediately before another.
func (l *Library) InsertBasicBlockInContext(ctx native.Ref, before native.Ref, name string) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "InsertBasicBlockInContext"
	if _, ok := l.context(op, ctx); !ok {
		return native.Null
	}
	bd, bo, ok := l.block(op, before)
	if !ok {
		return native.Null
	}
	if bo.ctx != ctx {
		l.fault(FaultMisuse, op, before, "block from another context")
		return native.Null
	}
	fd := l.objs[bd.parent].data.(*valueData).fn
	return l.newBlock(ctx, bd.parent, slices.Index(fd.blocks, before), name)
}

// GetBasicBlockParent returns the function of bb.
func (l *Library) GetBasicBlockParent(bb native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	bd, _, ok := l.block("GetBasicBlockParent", bb)
	if !ok {
		return native.Null
	}
	return bd.parent
}

// GetBasicBlockName returns the label of bb.
func (l *Library) GetBasicBlockName(bb native.Ref) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	bd, _, ok := l.block("GetBasicBlockName", bb)
	if !ok {
		return ""
	}
	return bd.name
}

// CountBasicBlocks returns the number of blocks of fn.
func (l *Library) CountBasicBlocks(fn native.Ref) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.function("CountBasicBlocks", fn)
	if !ok {
		return 0
	}
	return len(vd.fn.blocks)
}

// GetFirstBasicBlock returns the entry block of fn, or Null.
func (l *Library) GetFirstBasicBlock(fn native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.function("GetFirstBasicBlock", fn)
	if !ok || len(vd.fn.blocks) == 0 {
		return native.Null
	}
	return vd.fn.blocks[0]
}

// GetNextBasicBlock returns the block after bb, or Null.
func (l *Library) GetNextBasicBlock(bb native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	bd, _, ok := l.block("GetNextBasicBlock", bb)
	if !ok {
		return native.Null
	}
	return nextOf(l.objs[bd.parent].data.(*valueData).fn.blocks, bb)
}

// GetPreviousBasicBlock returns the block before bb, or Null.
func (l *Library) GetPreviousBasicBlock(bb native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	bd, _, ok := l.block("GetPreviousBasicBlock", bb)
	if !ok {
		return native.Null
	}
	return prevOf(l.objs[bd.parent].data.(*valueData).fn.blocks, bb)
}

// GetFirstInstruction returns the first instruction of bb, or Null.
func (l *Library) GetFirstInstruction(bb native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	bd, _, ok := l.block("GetFirstInstruction", bb)
	if !ok || len(bd.bb.insts) == 0 {
		return native.Null
	}
	return bd.bb.insts[0]
}

// GetLastInstruction returns the last instruction of bb, or Null.
func (l *Library) GetLastInstruction(bb native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	bd, _, ok := l.block("GetLastInstruction", bb)
	if !ok || len(bd.bb.insts) == 0 {
		return native.Null
	}
	return bd.bb.insts[len(bd.bb.insts)-1]
}

// GetBasicBlockTerminator returns the terminator of bb, or Null when the
// block is not terminated.
func (l *Library) GetBasicBlockTerminator(bb native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	bd, _, ok := l.block("GetBasicBlockTerminator", bb)
	if !ok || len(bd.bb.insts) == 0 {
		return native.Null
	}
	last := bd.bb.insts[len(bd.bb.insts)-1]
	if !l.objs[last].data.(*valueData).opcode.IsTerminator() {
		return native.Null
	}
	return last
}
