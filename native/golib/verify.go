package golib

import (
	"fmt"
	"slices"
	"strings"

	"github.com/wippyai/ir-runtime/native"
)

// VerifyModule checks m and returns a message describing every problem, or
// Null when the module is well formed.
func (l *Library) VerifyModule(m native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	md, _, ok := l.module("VerifyModule", m)
	if !ok {
		return native.Null
	}
	if msg := l.verify(md); msg != "" {
		return l.newMessage(msg)
	}
	return native.Null
}

// verify returns the verifier report for md, or "". The lock must be held.
func (l *Library) verify(md *moduleData) string {
	var problems []string
	report := func(fn *valueData, format string, args ...any) {
		problems = append(problems, fmt.Sprintf("function @%s: ", fn.name)+fmt.Sprintf(format, args...))
	}
	for _, fn := range md.funcs {
		fv := l.objs[fn].data.(*valueData)
		fnTy := l.objs[fv.fn.fnTy].data.(*typeData)
		for _, bb := range fv.fn.blocks {
			bv := l.objs[bb].data.(*valueData)
			insts := bv.bb.insts
			if len(insts) == 0 {
				report(fv, "block %%%s is empty", bv.name)
				continue
			}
			for i, inst := range insts {
				iv := l.objs[inst].data.(*valueData)
				last := i == len(insts)-1
				if iv.opcode.IsTerminator() && !last {
					report(fv, "block %%%s: terminator %s in the middle of the block", bv.name, iv.opcode)
				}
				if last && !iv.opcode.IsTerminator() {
					report(fv, "block %%%s does not end in a terminator", bv.name)
				}
				if msg := l.verifyOperands(md, fn, iv); msg != "" {
					report(fv, "block %%%s: %s: %s", bv.name, iv.opcode, msg)
					continue
				}
				if msg := l.verifyInst(fnTy, iv); msg != "" {
					report(fv, "block %%%s: %s: %s", bv.name, iv.opcode, msg)
				}
			}
		}
	}
	return strings.Join(problems, "\n")
}

func (l *Library) verifyOperands(md *moduleData, fn native.Ref, iv *valueData) string {
	for i, r := range iv.ops {
		if r == native.Null || int(r) >= len(l.objs) || !l.objs[r].alive {
			return fmt.Sprintf("operand %d refers to a deleted value", i)
		}
		ov := l.objs[r].data.(*valueData)
		switch ov.kind {
		case native.ValueArgument:
			if ov.parent != fn {
				return fmt.Sprintf("operand %d is an argument of another function", i)
			}
		case native.ValueBasicBlock:
			if ov.parent != fn {
				return fmt.Sprintf("operand %d is a block of another function", i)
			}
		case native.ValueInstruction:
			if ov.parent == native.Null {
				return fmt.Sprintf("operand %d is a detached instruction", i)
			}
			if l.objs[ov.parent].data.(*valueData).parent != fn {
				return fmt.Sprintf("operand %d is an instruction of another function", i)
			}
		case native.ValueFunction:
			if !slices.Contains(md.funcs, r) {
				return fmt.Sprintf("operand %d is a function of another module", i)
			}
		}
	}
	return ""
}

func (l *Library) verifyInst(fnTy *typeData, iv *valueData) string {
	ty := func(i int) native.Ref { return l.objs[iv.ops[i]].data.(*valueData).ty }
	switch {
	case iv.opcode == native.OpRet:
		retVoid := l.objs[fnTy.ret].data.(*typeData).kind == native.TypeVoid
		switch {
		case retVoid && len(iv.ops) != 0:
			return "void function returns a value"
		case !retVoid && len(iv.ops) == 0:
			return fmt.Sprintf("missing return value of type %s", l.typeString(fnTy.ret))
		case !retVoid && ty(0) != fnTy.ret:
			return fmt.Sprintf("returns %s, want %s", l.typeString(ty(0)), l.typeString(fnTy.ret))
		}
	case iv.opcode.IsBinary(), iv.opcode == native.OpICmp:
		if ty(0) != ty(1) {
			return fmt.Sprintf("operand types differ: %s and %s", l.typeString(ty(0)), l.typeString(ty(1)))
		}
	case iv.opcode == native.OpSelect:
		if !l.isBool(ty(0)) {
			return "condition must be i1"
		}
		if ty(1) != ty(2) {
			return "select arms differ in type"
		}
	case iv.opcode == native.OpCondBr:
		if !l.isBool(ty(0)) {
			return "condition must be i1"
		}
	case iv.opcode == native.OpCall:
		callee := iv.ops[len(iv.ops)-1]
		calleeTy := l.objs[callee].data.(*valueData).fn.fnTy
		if calleeTy != iv.callTy {
			return "call signature does not match the callee"
		}
		ct := l.objs[iv.callTy].data.(*typeData)
		args := len(iv.ops) - 1
		if args < len(ct.params) || (!ct.varArg && args != len(ct.params)) {
			return fmt.Sprintf("want %d arguments, got %d", len(ct.params), args)
		}
		for i, pt := range ct.params {
			if ty(i) != pt {
				return fmt.Sprintf("argument %d has type %s, want %s", i, l.typeString(ty(i)), l.typeString(pt))
			}
		}
	}
	return ""
}
