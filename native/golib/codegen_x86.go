//go:build !irruntime_nox86

package golib

import (
	"fmt"
	"strings"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/native/golib/internal/binary"
)

func init() {
	registerBackend(x86Backend{})
}

// x86Backend emits System V x86-64 machine code. Every SSA value lives in its
// own register for the whole function, so functions needing more registers
// than the pool holds are rejected. Calls, division and shifts are not
// supported.
type x86Backend struct{}

func (x86Backend) Name() string        { return "x86-64" }
func (x86Backend) Description() string { return "64-bit X86: EM64T and AMD64" }
func (x86Backend) Arch() string        { return "x86_64" }
func (x86Backend) Triple() string      { return "x86_64-unknown-linux-gnu" }
func (x86Backend) PointerSize() uint32 { return 8 }

// x86ObjectMagic starts the object container: magic, symbol count, then per
// symbol its name, code offset and size, then the code blob.
const x86ObjectMagic = "IRX1"

// Parameters arrive in the first six registers of the pool.
var x86Registers = []int16{
	x86.REG_DI, x86.REG_SI, x86.REG_DX, x86.REG_CX, x86.REG_R8, x86.REG_R9,
	x86.REG_AX, x86.REG_R10, x86.REG_R11,
}

const x86MaxParams = 6

var x86BinaryOps = map[native.Opcode][2]obj.As{
	native.OpAdd: {x86.AADDL, x86.AADDQ},
	native.OpSub: {x86.ASUBL, x86.ASUBQ},
	native.OpMul: {x86.AIMULL, x86.AIMULQ},
	native.OpAnd: {x86.AANDL, x86.AANDQ},
	native.OpOr:  {x86.AORL, x86.AORQ},
	native.OpXor: {x86.AXORL, x86.AXORQ},
}

var x86SetOps = map[native.IntPredicate]obj.As{
	native.IntEQ:  x86.ASETEQ,
	native.IntNE:  x86.ASETNE,
	native.IntSLT: x86.ASETLT,
	native.IntSLE: x86.ASETLE,
	native.IntSGT: x86.ASETGT,
	native.IntSGE: x86.ASETGE,
	native.IntULT: x86.ASETCS,
	native.IntULE: x86.ASETLS,
	native.IntUGT: x86.ASETHI,
	native.IntUGE: x86.ASETCC,
}

type x86Compiler struct {
	builder *asm.Builder
	regs    []int16
	labels  []*obj.Prog
	listing []*obj.Prog
}

func (x86Backend) Emit(m *progModule, ft native.FileType) ([]byte, error) {
	type symbol struct {
		name string
		code []byte
	}
	syms := make([]symbol, 0, len(m.funcs))
	var text strings.Builder
	for _, pf := range m.funcs {
		c, err := newX86Compiler(pf)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", pf.name, err)
		}
		if err := c.compile(pf); err != nil {
			return nil, fmt.Errorf("function %s: %w", pf.name, err)
		}
		code := c.builder.Assemble()
		syms = append(syms, symbol{name: pf.name, code: code})
		if ft == native.AssemblyFile {
			fmt.Fprintf(&text, "%s:\n", pf.name)
			for _, p := range c.listing {
				fmt.Fprintf(&text, "\t%s\n", p.String())
			}
		}
	}
	switch ft {
	case native.AssemblyFile:
		return []byte(text.String()), nil
	case native.ObjectFile:
		w := binary.NewWriter()
		w.Raw([]byte(x86ObjectMagic))
		w.U32(uint32(len(syms)))
		var offset uint32
		for _, s := range syms {
			w.Name(s.name)
			w.U32(offset)
			w.U32(uint32(len(s.code)))
			offset += uint32(len(s.code))
		}
		code := binary.NewWriter()
		for _, s := range syms {
			code.Raw(s.code)
		}
		w.Blob(code.Bytes())
		return w.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported file type %d", ft)
}

func newX86Compiler(pf *progFunc) (*x86Compiler, error) {
	if len(pf.params) > x86MaxParams {
		return nil, fmt.Errorf("%d parameters exceed the %d argument registers", len(pf.params), x86MaxParams)
	}
	if pf.numValues > len(x86Registers) {
		return nil, fmt.Errorf("%d values exceed the %d available registers", pf.numValues, len(x86Registers))
	}
	b, err := asm.NewBuilder("amd64", 64)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new assembly builder: %w", err)
	}
	return &x86Compiler{builder: b, regs: x86Registers[:pf.numValues]}, nil
}

func (c *x86Compiler) newProg() *obj.Prog {
	return c.builder.NewProg()
}

func (c *x86Compiler) add(p *obj.Prog) {
	c.builder.AddInstruction(p)
	c.listing = append(c.listing, p)
}

func widthOp(ops [2]obj.As, width uint32) obj.As {
	if width == 64 {
		return ops[1]
	}
	return ops[0]
}

// load moves an operand into reg.
func (c *x86Compiler) load(o progOperand, reg int16) {
	p := c.newProg()
	p.As = widthOp([2]obj.As{x86.AMOVL, x86.AMOVQ}, o.width)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = reg
	if o.konst {
		p.From.Type = obj.TYPE_CONST
		p.From.Offset = int64(o.imm)
		if o.width != 64 {
			p.From.Offset = int64(int32(uint32(o.imm)))
		}
	} else {
		p.From.Type = obj.TYPE_REG
		p.From.Reg = c.regs[o.value]
	}
	c.add(p)
}

// source sets o as the From operand of p.
func (c *x86Compiler) source(p *obj.Prog, o progOperand) {
	if o.konst {
		p.From.Type = obj.TYPE_CONST
		p.From.Offset = int64(o.imm)
		if o.width != 64 {
			p.From.Offset = int64(int32(uint32(o.imm)))
		}
		return
	}
	p.From.Type = obj.TYPE_REG
	p.From.Reg = c.regs[o.value]
}

func (c *x86Compiler) jump(as obj.As, target int) {
	p := c.newProg()
	p.As = as
	p.To.Type = obj.TYPE_BRANCH
	p.To.SetTarget(c.labels[target])
	c.add(p)
}

func (c *x86Compiler) compile(pf *progFunc) error {
	c.labels = make([]*obj.Prog, len(pf.blocks))
	for i := range pf.blocks {
		label := c.newProg()
		label.As = obj.ANOP
		c.labels[i] = label
	}
	for i, bb := range pf.blocks {
		c.builder.AddInstruction(c.labels[i])
		for _, in := range bb.insts {
			if err := c.instruction(in); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *x86Compiler) instruction(in *progInst) error {
	switch {
	case in.op.IsBinary():
		ops, ok := x86BinaryOps[in.op]
		if !ok {
			return fmt.Errorf("unsupported instruction %s", in.op)
		}
		dst := c.regs[in.dst]
		c.load(in.args[0], dst)
		p := c.newProg()
		p.As = widthOp(ops, in.width)
		c.source(p, in.args[1])
		p.To.Type = obj.TYPE_REG
		p.To.Reg = dst
		c.add(p)
	case in.op == native.OpICmp:
		dst := c.regs[in.dst]
		lhs := in.args[0]
		if lhs.konst {
			c.load(lhs, dst)
			lhs = progOperand{value: in.dst, width: lhs.width}
		}
		cmp := c.newProg()
		cmp.As = widthOp([2]obj.As{x86.ACMPL, x86.ACMPQ}, in.width)
		cmp.From.Type = obj.TYPE_REG
		cmp.From.Reg = c.regs[lhs.value]
		if rhs := in.args[1]; rhs.konst {
			cmp.To.Type = obj.TYPE_CONST
			cmp.To.Offset = int64(rhs.imm)
			if rhs.width != 64 {
				cmp.To.Offset = int64(int32(uint32(rhs.imm)))
			}
		} else {
			cmp.To.Type = obj.TYPE_REG
			cmp.To.Reg = c.regs[rhs.value]
		}
		c.add(cmp)

		set := c.newProg()
		set.As = x86SetOps[in.pred]
		set.To.Type = obj.TYPE_REG
		set.To.Reg = dst
		c.add(set)

		mask := c.newProg()
		mask.As = x86.AANDQ
		mask.From.Type = obj.TYPE_CONST
		mask.From.Offset = 1
		mask.To.Type = obj.TYPE_REG
		mask.To.Reg = dst
		c.add(mask)
	case in.op == native.OpSelect:
		dst := c.regs[in.dst]
		if cond := in.args[0]; cond.konst {
			if cond.imm != 0 {
				c.load(in.args[1], dst)
			} else {
				c.load(in.args[2], dst)
			}
			return nil
		}
		c.load(in.args[2], dst)
		c.test(in.args[0])
		skip := c.newProg()
		skip.As = x86.AJEQ
		skip.To.Type = obj.TYPE_BRANCH
		c.add(skip)
		c.load(in.args[1], dst)
		done := c.newProg()
		done.As = obj.ANOP
		c.builder.AddInstruction(done)
		skip.To.SetTarget(done)
	case in.op == native.OpRet:
		if len(in.args) > 0 {
			c.load(in.args[0], x86.REG_AX)
		}
		ret := c.newProg()
		ret.As = obj.ARET
		c.add(ret)
	case in.op == native.OpBr:
		c.jump(obj.AJMP, in.targets[0])
	case in.op == native.OpCondBr:
		cond := in.args[0]
		if cond.konst {
			if cond.imm != 0 {
				c.jump(obj.AJMP, in.targets[0])
			} else {
				c.jump(obj.AJMP, in.targets[1])
			}
			return nil
		}
		c.test(cond)
		c.jump(x86.AJNE, in.targets[0])
		c.jump(obj.AJMP, in.targets[1])
	default:
		return fmt.Errorf("unsupported instruction %s", in.op)
	}
	return nil
}

// test compares a non-constant i1 operand against zero.
func (c *x86Compiler) test(o progOperand) {
	p := c.newProg()
	p.As = x86.ACMPQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = c.regs[o.value]
	p.To.Type = obj.TYPE_CONST
	p.To.Offset = 0
	c.add(p)
}
