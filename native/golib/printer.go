package golib

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/ir-runtime/native"
)

// PrintModuleToString renders m as textual IR.
func (l *Library) PrintModuleToString(m native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	md, _, ok := l.module("PrintModuleToString", m)
	if !ok {
		return native.Null
	}
	p := &printer{lib: l, mdSlots: make(map[native.Ref]int)}
	p.module(md)
	return l.newMessage(p.sb.String())
}

type printer struct {
	lib     *Library
	slots   map[native.Ref]string
	mdSlots map[native.Ref]int
	mdOrder []native.Ref
	sb      strings.Builder
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(&p.sb, format, args...)
}

func (p *printer) module(md *moduleData) {
	p.printf("; ModuleID = '%s'\n", md.id)
	p.printf("source_filename = %q\n", md.id)
	if md.triple != "" {
		p.printf("target triple = %q\n", md.triple)
	}
	for _, fn := range md.funcs {
		p.sb.WriteByte('\n')
		p.function(fn)
	}
	if len(md.mdNames) > 0 {
		p.sb.WriteByte('\n')
	}
	for _, name := range md.mdNames {
		nodes := md.namedMD[name]
		refs := make([]string, len(nodes))
		for i, n := range nodes {
			refs[i] = fmt.Sprintf("!%d", p.mdSlot(n))
		}
		p.printf("!%s = !{%s}\n", name, strings.Join(refs, ", "))
	}
	for i := 0; i < len(p.mdOrder); i++ {
		n := p.mdOrder[i]
		p.printf("!%d = !{%s}\n", i, p.mdOperands(n))
	}
}

func (p *printer) mdSlot(n native.Ref) int {
	if s, ok := p.mdSlots[n]; ok {
		return s
	}
	s := len(p.mdOrder)
	p.mdSlots[n] = s
	p.mdOrder = append(p.mdOrder, n)
	return s
}

func (p *printer) mdOperands(n native.Ref) string {
	ops := p.lib.objs[n].data.(*valueData).ops
	out := make([]string, len(ops))
	for i, r := range ops {
		out[i] = p.typedOperand(r)
	}
	return strings.Join(out, ", ")
}

func (p *printer) function(fn native.Ref) {
	l := p.lib
	fv := l.objs[fn].data.(*valueData)
	fnTy := l.objs[fv.fn.fnTy].data.(*typeData)
	p.number(fv)

	params := make([]string, 0, len(fv.fn.params)+1)
	for _, a := range fv.fn.params {
		s := l.typeString(l.objs[a].data.(*valueData).ty)
		if len(fv.fn.blocks) > 0 {
			s += " " + p.slots[a]
		}
		params = append(params, s)
	}
	if fnTy.varArg {
		params = append(params, "...")
	}
	head := fmt.Sprintf("%s @%s(%s)", l.typeString(fnTy.ret), fv.name, strings.Join(params, ", "))
	for _, a := range fv.fn.attrs {
		head += " " + p.attribute(a)
	}
	if len(fv.fn.blocks) == 0 {
		p.printf("declare %s\n", head)
		return
	}
	p.printf("define %s {\n", head)
	for i, bb := range fv.fn.blocks {
		if i > 0 {
			p.sb.WriteByte('\n')
		}
		p.printf("%s:\n", strings.TrimPrefix(p.slots[bb], "%"))
		for _, inst := range l.objs[bb].data.(*valueData).bb.insts {
			p.printf("  %s\n", p.instruction(inst))
		}
	}
	p.printf("}\n")
}

// number assigns local slots: named values keep their name, unnamed ones get
// sequential numbers in order of definition.
func (p *printer) number(fv *valueData) {
	l := p.lib
	p.slots = make(map[native.Ref]string)
	next := 0
	assign := func(r native.Ref) {
		if name := l.objs[r].data.(*valueData).name; name != "" {
			p.slots[r] = "%" + name
			return
		}
		p.slots[r] = "%" + strconv.Itoa(next)
		next++
	}
	for _, a := range fv.fn.params {
		assign(a)
	}
	for _, bb := range fv.fn.blocks {
		assign(bb)
		for _, inst := range l.objs[bb].data.(*valueData).bb.insts {
			iv := l.objs[inst].data.(*valueData)
			if l.objs[iv.ty].data.(*typeData).kind != native.TypeVoid {
				assign(inst)
			}
		}
	}
}

func (p *printer) attribute(a native.Ref) string {
	ad := p.lib.objs[a].data.(*attrData)
	if ad.enum {
		if ad.value != 0 {
			return fmt.Sprintf("attr%d(%d)", ad.kind, ad.value)
		}
		return fmt.Sprintf("attr%d", ad.kind)
	}
	if ad.val == "" {
		return strconv.Quote(ad.key)
	}
	return fmt.Sprintf("%q=%q", ad.key, ad.val)
}

func (p *printer) operand(r native.Ref) string {
	l := p.lib
	if r == native.Null || int(r) >= len(l.objs) || !l.objs[r].alive {
		return "<deleted>"
	}
	if s, ok := p.slots[r]; ok {
		return s
	}
	vd := l.objs[r].data.(*valueData)
	switch vd.kind {
	case native.ValueConstantInt:
		width := l.objs[vd.ty].data.(*typeData).width
		if width == 1 {
			return strconv.FormatBool(vd.intVal != 0)
		}
		if width > 64 && vd.intHi == 0 {
			return strconv.FormatUint(vd.intVal, 10)
		}
		return strconv.FormatInt(signExtend(vd.intVal, width), 10)
	case native.ValueConstantStruct:
		fields := make([]string, len(vd.ops))
		for i, f := range vd.ops {
			fields[i] = p.typedOperand(f)
		}
		if l.objs[vd.ty].data.(*typeData).packed {
			return "<{ " + strings.Join(fields, ", ") + " }>"
		}
		return "{ " + strings.Join(fields, ", ") + " }"
	case native.ValueConstantString:
		return "c\"" + escapeBytes(vd.bytes) + "\""
	case native.ValueFunction:
		return "@" + vd.name
	case native.ValueMetadataString:
		return "!\"" + escapeBytes([]byte(vd.str)) + "\""
	case native.ValueMetadataNode:
		return fmt.Sprintf("!%d", p.mdSlot(r))
	}
	return "<unknown>"
}

func (p *printer) typedOperand(r native.Ref) string {
	l := p.lib
	if r == native.Null || int(r) >= len(l.objs) || !l.objs[r].alive {
		return "<deleted>"
	}
	vd := l.objs[r].data.(*valueData)
	switch vd.kind {
	case native.ValueMetadataString, native.ValueMetadataNode:
		return p.operand(r)
	case native.ValueBasicBlock:
		return "label " + p.operand(r)
	case native.ValueFunction:
		return "ptr " + p.operand(r)
	}
	return l.typeString(vd.ty) + " " + p.operand(r)
}

func (p *printer) instruction(inst native.Ref) string {
	l := p.lib
	iv := l.objs[inst].data.(*valueData)
	var s string
	switch {
	case iv.opcode.IsBinary():
		s = fmt.Sprintf("%s %s, %s", iv.opcode, p.typedOperand(iv.ops[0]), p.operand(iv.ops[1]))
	case iv.opcode == native.OpICmp:
		s = fmt.Sprintf("icmp %s %s, %s", iv.pred, p.typedOperand(iv.ops[0]), p.operand(iv.ops[1]))
	case iv.opcode == native.OpSelect:
		s = fmt.Sprintf("select %s, %s, %s", p.typedOperand(iv.ops[0]), p.typedOperand(iv.ops[1]), p.typedOperand(iv.ops[2]))
	case iv.opcode == native.OpCall:
		n := len(iv.ops) - 1
		args := make([]string, n)
		for i := 0; i < n; i++ {
			args[i] = p.typedOperand(iv.ops[i])
		}
		ret := l.objs[iv.callTy].data.(*typeData).ret
		s = fmt.Sprintf("call %s %s(%s)", l.typeString(ret), p.operand(iv.ops[n]), strings.Join(args, ", "))
	case iv.opcode == native.OpRet:
		if len(iv.ops) == 0 {
			return "ret void"
		}
		return "ret " + p.typedOperand(iv.ops[0])
	case iv.opcode == native.OpBr:
		return "br " + p.typedOperand(iv.ops[0])
	case iv.opcode == native.OpCondBr:
		return fmt.Sprintf("br %s, %s, %s", p.typedOperand(iv.ops[0]), p.typedOperand(iv.ops[1]), p.typedOperand(iv.ops[2]))
	default:
		s = iv.opcode.String()
	}
	if slot, ok := p.slots[inst]; ok {
		return slot + " = " + s
	}
	return s
}

func escapeBytes(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		if b >= 0x20 && b < 0x7f && b != '"' && b != '\\' {
			sb.WriteByte(b)
			continue
		}
		fmt.Fprintf(&sb, "\\%02X", b)
	}
	return sb.String()
}
