package golib

import (
	"fmt"

	"github.com/wippyai/ir-runtime/native"
)

// progModule is a lock-free snapshot of a module handed to code generators.
// Values are numbered per function: parameters first, then every instruction
// that produces a result, in block order.
type progModule struct {
	name   string
	triple string
	funcs  []*progFunc
}

type progFunc struct {
	name      string
	params    []uint32
	blocks    []*progBlock
	ret       uint32
	numValues int
}

type progBlock struct {
	name  string
	insts []*progInst
}

type progInst struct {
	args    []progOperand
	targets []int
	dst     int
	callee  int
	width   uint32
	op      native.Opcode
	pred    native.IntPredicate
}

type progOperand struct {
	imm   uint64
	value int
	width uint32
	konst bool
}

// widthOf maps an integer type to its bit width. Code generators only handle
// i1, i32 and i64; void maps to 0.
func (l *Library) widthOf(ty native.Ref) (uint32, error) {
	td := l.objs[ty].data.(*typeData)
	switch td.kind {
	case native.TypeVoid:
		return 0, nil
	case native.TypeInteger:
		switch td.width {
		case 1, 32, 64:
			return td.width, nil
		}
	}
	return 0, fmt.Errorf("unsupported type %s", l.typeString(ty))
}

// lower snapshots mod. The lock must be held.
func (l *Library) lower(mod *moduleData) (*progModule, error) {
	pm := &progModule{name: mod.id, triple: mod.triple}
	index := make(map[native.Ref]int, len(mod.funcs))
	for i, fn := range mod.funcs {
		index[fn] = i
	}
	for _, fn := range mod.funcs {
		pf, err := l.lowerFunc(fn, index)
		if err != nil {
			return nil, err
		}
		pm.funcs = append(pm.funcs, pf)
	}
	return pm, nil
}

func (l *Library) lowerFunc(fn native.Ref, funcs map[native.Ref]int) (*progFunc, error) {
	vd := l.objs[fn].data.(*valueData)
	td := l.objs[vd.fn.fnTy].data.(*typeData)
	if len(vd.fn.blocks) == 0 {
		return nil, fmt.Errorf("function @%s: declarations cannot be emitted", vd.name)
	}
	if td.varArg {
		return nil, fmt.Errorf("function @%s: variadic functions are not supported", vd.name)
	}
	pf := &progFunc{name: vd.name}
	var err error
	if pf.ret, err = l.widthOf(td.ret); err != nil {
		return nil, fmt.Errorf("function @%s: %w", vd.name, err)
	}

	values := make(map[native.Ref]int)
	for i, p := range vd.fn.params {
		w, err := l.widthOf(l.objs[p].data.(*valueData).ty)
		if err != nil || w == 0 {
			return nil, fmt.Errorf("function @%s: parameter %d: %w", vd.name, i, err)
		}
		pf.params = append(pf.params, w)
		values[p] = i
	}
	blocks := make(map[native.Ref]int, len(vd.fn.blocks))
	next := len(vd.fn.params)
	for i, bb := range vd.fn.blocks {
		blocks[bb] = i
		for _, inst := range l.objs[bb].data.(*valueData).bb.insts {
			if l.objs[l.objs[inst].data.(*valueData).ty].data.(*typeData).kind != native.TypeVoid {
				values[inst] = next
				next++
			}
		}
	}
	pf.numValues = next

	operand := func(r native.Ref) (progOperand, error) {
		if i, ok := values[r]; ok {
			w, err := l.widthOf(l.objs[r].data.(*valueData).ty)
			return progOperand{value: i, width: w}, err
		}
		ov := l.objs[r].data.(*valueData)
		if ov.kind == native.ValueConstantInt {
			w, err := l.widthOf(ov.ty)
			return progOperand{konst: true, imm: ov.intVal, width: w}, err
		}
		return progOperand{}, fmt.Errorf("unsupported operand %s", ov.kind)
	}

	for _, bb := range vd.fn.blocks {
		bv := l.objs[bb].data.(*valueData)
		pb := &progBlock{name: bv.name}
		for _, inst := range bv.bb.insts {
			iv := l.objs[inst].data.(*valueData)
			pi := &progInst{op: iv.opcode, pred: iv.pred, dst: -1, callee: -1}
			if i, ok := values[inst]; ok {
				pi.dst = i
			}
			if pi.width, err = l.widthOf(iv.ty); err != nil {
				return nil, fmt.Errorf("function @%s: %s: %w", vd.name, iv.opcode, err)
			}
			ops := iv.ops
			switch iv.opcode {
			case native.OpBr:
				pi.targets = []int{blocks[ops[0]]}
				ops = nil
			case native.OpCondBr:
				pi.targets = []int{blocks[ops[1]], blocks[ops[2]]}
				ops = ops[:1]
			case native.OpCall:
				pi.callee = funcs[ops[len(ops)-1]]
				ops = ops[:len(ops)-1]
			}
			for _, r := range ops {
				o, err := operand(r)
				if err != nil {
					return nil, fmt.Errorf("function @%s: %s: %w", vd.name, iv.opcode, err)
				}
				pi.args = append(pi.args, o)
			}
			if iv.opcode == native.OpICmp && len(pi.args) > 0 {
				pi.width = pi.args[0].width
			}
			pb.insts = append(pb.insts, pi)
		}
		pf.blocks = append(pf.blocks, pb)
	}
	return pf, nil
}
