//go:build !irruntime_nowasm

package golib

import (
	"fmt"
	"strings"

	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/native/golib/internal/binary"
)

func init() {
	registerBackend(wasmBackend{})
}

// wasmBackend emits a WebAssembly 1.0 module. Each function becomes a loop
// around nested blocks; a br_table on a state local selects the basic block
// to run, so arbitrary control flow needs no structuring pass.
type wasmBackend struct{}

func (wasmBackend) Name() string        { return "wasm32" }
func (wasmBackend) Description() string { return "WebAssembly 32-bit" }
func (wasmBackend) Arch() string        { return "wasm32" }
func (wasmBackend) Triple() string      { return "wasm32-unknown-unknown" }
func (wasmBackend) PointerSize() uint32 { return 4 }

const (
	wasmI32      byte = 0x7f
	wasmI64      byte = 0x7e
	wasmFuncType byte = 0x60

	wasmSectionType     byte = 1
	wasmSectionFunction byte = 3
	wasmSectionExport   byte = 7
	wasmSectionCode     byte = 10
)

const (
	wopUnreachable byte = 0x00
	wopBlock       byte = 0x02
	wopLoop        byte = 0x03
	wopEnd         byte = 0x0b
	wopBr          byte = 0x0c
	wopBrTable     byte = 0x0e
	wopReturn      byte = 0x0f
	wopCall        byte = 0x10
	wopSelect      byte = 0x1b
	wopLocalGet    byte = 0x20
	wopLocalSet    byte = 0x21
	wopI32Const    byte = 0x41
	wopI64Const    byte = 0x42
	wopBlockEmpty  byte = 0x40
)

var wasmOpNames = map[byte]string{
	wopUnreachable: "unreachable", wopBlock: "block", wopLoop: "loop", wopEnd: "end",
	wopBr: "br", wopBrTable: "br_table", wopReturn: "return", wopCall: "call",
	wopSelect: "select", wopLocalGet: "local.get", wopLocalSet: "local.set",
	wopI32Const: "i32.const", wopI64Const: "i64.const",
}

// wasmBinaryOps maps opcodes to their i32 and i64 encodings.
var wasmBinaryOps = map[native.Opcode][2]byte{
	native.OpAdd:  {0x6a, 0x7c},
	native.OpSub:  {0x6b, 0x7d},
	native.OpMul:  {0x6c, 0x7e},
	native.OpSDiv: {0x6d, 0x7f},
	native.OpUDiv: {0x6e, 0x80},
	native.OpSRem: {0x6f, 0x81},
	native.OpURem: {0x70, 0x82},
	native.OpAnd:  {0x71, 0x83},
	native.OpOr:   {0x72, 0x84},
	native.OpXor:  {0x73, 0x85},
	native.OpShl:  {0x74, 0x86},
	native.OpAShr: {0x75, 0x87},
	native.OpLShr: {0x76, 0x88},
}

var wasmCompareOps = map[native.IntPredicate][2]byte{
	native.IntEQ:  {0x46, 0x51},
	native.IntNE:  {0x47, 0x52},
	native.IntSLT: {0x48, 0x53},
	native.IntULT: {0x49, 0x54},
	native.IntSGT: {0x4a, 0x55},
	native.IntUGT: {0x4b, 0x56},
	native.IntSLE: {0x4c, 0x57},
	native.IntULE: {0x4d, 0x58},
	native.IntSGE: {0x4e, 0x59},
	native.IntUGE: {0x4f, 0x5a},
}

var wasmArithNames = map[native.Opcode]string{
	native.OpAdd: "add", native.OpSub: "sub", native.OpMul: "mul",
	native.OpSDiv: "div_s", native.OpUDiv: "div_u", native.OpSRem: "rem_s", native.OpURem: "rem_u",
	native.OpAnd: "and", native.OpOr: "or", native.OpXor: "xor",
	native.OpShl: "shl", native.OpAShr: "shr_s", native.OpLShr: "shr_u",
}

var wasmPredNames = map[native.IntPredicate]string{
	native.IntEQ: "eq", native.IntNE: "ne", native.IntSLT: "lt_s", native.IntULT: "lt_u",
	native.IntSGT: "gt_s", native.IntUGT: "gt_u", native.IntSLE: "le_s", native.IntULE: "le_u",
	native.IntSGE: "ge_s", native.IntUGE: "ge_u",
}

// winst is one wasm instruction with its immediates.
type winst struct {
	text  string
	imms  []uint32
	op    byte
	konst int64
}

type wasmFunc struct {
	name   string
	params []byte
	locals []byte
	code   []winst
	result byte
}

func wasmValType(width uint32) byte {
	if width == 64 {
		return wasmI64
	}
	return wasmI32
}

func (wasmBackend) Emit(m *progModule, ft native.FileType) ([]byte, error) {
	funcs := make([]*wasmFunc, len(m.funcs))
	for i, pf := range m.funcs {
		wf, err := lowerWasmFunc(pf)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", pf.name, err)
		}
		funcs[i] = wf
	}
	switch ft {
	case native.ObjectFile:
		return encodeWasm(funcs), nil
	case native.AssemblyFile:
		return []byte(printWasm(m.name, funcs)), nil
	}
	return nil, fmt.Errorf("unsupported file type %d", ft)
}

func lowerWasmFunc(pf *progFunc) (*wasmFunc, error) {
	wf := &wasmFunc{name: pf.name}
	for _, w := range pf.params {
		wf.params = append(wf.params, wasmValType(w))
	}
	if pf.ret != 0 {
		wf.result = wasmValType(pf.ret)
	}

	// Locals: parameters, one per produced value, then the state local.
	valTypes := make([]byte, pf.numValues)
	copy(valTypes, wf.params)
	for _, bb := range pf.blocks {
		for _, in := range bb.insts {
			if in.dst >= 0 {
				valTypes[in.dst] = wasmValType(in.width)
				if in.op == native.OpICmp {
					valTypes[in.dst] = wasmI32
				}
			}
		}
	}
	wf.locals = append(wf.locals, valTypes[len(pf.params):]...)
	wf.locals = append(wf.locals, wasmI32)
	state := uint32(pf.numValues)

	n := len(pf.blocks)
	emit := func(in winst) { wf.code = append(wf.code, in) }
	push := func(o progOperand) {
		if o.konst {
			if o.width == 64 {
				emit(winst{op: wopI64Const, konst: int64(o.imm)})
			} else {
				emit(winst{op: wopI32Const, konst: int64(int32(uint32(o.imm)))})
			}
			return
		}
		emit(winst{op: wopLocalGet, imms: []uint32{uint32(o.value)}})
	}
	jump := func(target, depth int) {
		emit(winst{op: wopI32Const, konst: int64(target)})
		emit(winst{op: wopLocalSet, imms: []uint32{state}})
		emit(winst{op: wopBr, imms: []uint32{uint32(depth)}})
	}

	emit(winst{op: wopLoop, imms: []uint32{uint32(wopBlockEmpty)}})
	for i := 0; i < n; i++ {
		emit(winst{op: wopBlock, imms: []uint32{uint32(wopBlockEmpty)}})
	}
	table := make([]uint32, 0, n+1)
	for i := 0; i < n; i++ {
		table = append(table, uint32(i))
	}
	table = append(table, uint32(n-1))
	emit(winst{op: wopLocalGet, imms: []uint32{state}})
	emit(winst{op: wopBrTable, imms: table})

	for i, bb := range pf.blocks {
		emit(winst{op: wopEnd, text: "block " + bb.name})
		depth := n - 1 - i
		for _, in := range bb.insts {
			switch {
			case in.op.IsBinary():
				if in.width == 1 && in.op != native.OpAnd && in.op != native.OpOr && in.op != native.OpXor {
					return nil, fmt.Errorf("%s on i1 is not supported", in.op)
				}
				push(in.args[0])
				push(in.args[1])
				enc := wasmBinaryOps[in.op]
				typ := "i32"
				opc := enc[0]
				if in.width == 64 {
					typ, opc = "i64", enc[1]
				}
				emit(winst{op: opc, text: typ + "." + wasmArithNames[in.op]})
				emit(winst{op: wopLocalSet, imms: []uint32{uint32(in.dst)}})
			case in.op == native.OpICmp:
				push(in.args[0])
				push(in.args[1])
				enc := wasmCompareOps[in.pred]
				typ := "i32"
				opc := enc[0]
				if in.width == 64 {
					typ, opc = "i64", enc[1]
				}
				emit(winst{op: opc, text: typ + "." + wasmPredNames[in.pred]})
				emit(winst{op: wopLocalSet, imms: []uint32{uint32(in.dst)}})
			case in.op == native.OpSelect:
				push(in.args[1])
				push(in.args[2])
				push(in.args[0])
				emit(winst{op: wopSelect})
				emit(winst{op: wopLocalSet, imms: []uint32{uint32(in.dst)}})
			case in.op == native.OpCall:
				for _, a := range in.args {
					push(a)
				}
				emit(winst{op: wopCall, imms: []uint32{uint32(in.callee)}})
				if in.dst >= 0 {
					emit(winst{op: wopLocalSet, imms: []uint32{uint32(in.dst)}})
				}
			case in.op == native.OpRet:
				if len(in.args) > 0 {
					push(in.args[0])
				}
				emit(winst{op: wopReturn})
			case in.op == native.OpBr:
				jump(in.targets[0], depth)
			case in.op == native.OpCondBr:
				emit(winst{op: wopI32Const, konst: int64(in.targets[0])})
				emit(winst{op: wopI32Const, konst: int64(in.targets[1])})
				push(in.args[0])
				emit(winst{op: wopSelect})
				emit(winst{op: wopLocalSet, imms: []uint32{state}})
				emit(winst{op: wopBr, imms: []uint32{uint32(depth)}})
			default:
				return nil, fmt.Errorf("unsupported instruction %s", in.op)
			}
		}
	}
	emit(winst{op: wopEnd, text: "loop"})
	emit(winst{op: wopUnreachable})
	return wf, nil
}

func encodeWasm(funcs []*wasmFunc) []byte {
	out := binary.NewWriter()
	out.Raw([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	// Signatures are deduplicated.
	sigIndex := make(map[string]uint32)
	funcSig := make([]uint32, len(funcs))
	types := binary.NewWriter()
	var ntypes uint32
	sigs := binary.NewWriter()
	for i, f := range funcs {
		key := string(f.params) + "->" + string(f.result)
		idx, ok := sigIndex[key]
		if !ok {
			idx = ntypes
			sigIndex[key] = idx
			ntypes++
			sigs.Byte(wasmFuncType)
			sigs.Blob(f.params)
			if f.result != 0 {
				sigs.Blob([]byte{f.result})
			} else {
				sigs.U32(0)
			}
		}
		funcSig[i] = idx
	}
	types.U32(ntypes)
	types.Raw(sigs.Bytes())
	out.Section(wasmSectionType, types)

	fsec := binary.NewWriter()
	fsec.U32(uint32(len(funcs)))
	for _, idx := range funcSig {
		fsec.U32(idx)
	}
	out.Section(wasmSectionFunction, fsec)

	exports := binary.NewWriter()
	exports.U32(uint32(len(funcs)))
	for i, f := range funcs {
		exports.Name(f.name)
		exports.Byte(0x00)
		exports.U32(uint32(i))
	}
	out.Section(wasmSectionExport, exports)

	code := binary.NewWriter()
	code.U32(uint32(len(funcs)))
	for _, f := range funcs {
		body := binary.NewWriter()
		groups := groupLocals(f.locals)
		body.U32(uint32(len(groups)))
		for _, g := range groups {
			body.U32(g.count)
			body.Byte(g.typ)
		}
		for _, in := range f.code {
			body.Byte(in.op)
			switch in.op {
			case wopI32Const, wopI64Const:
				body.S64(in.konst)
			case wopBlock, wopLoop:
				body.Byte(byte(in.imms[0]))
			case wopBrTable:
				body.U32(uint32(len(in.imms) - 1))
				for _, t := range in.imms {
					body.U32(t)
				}
			default:
				for _, imm := range in.imms {
					body.U32(imm)
				}
			}
		}
		body.Byte(wopEnd)
		code.Blob(body.Bytes())
	}
	out.Section(wasmSectionCode, code)
	return out.Bytes()
}

type localGroup struct {
	count uint32
	typ   byte
}

func groupLocals(locals []byte) []localGroup {
	var groups []localGroup
	for _, t := range locals {
		if n := len(groups); n > 0 && groups[n-1].typ == t {
			groups[n-1].count++
			continue
		}
		groups = append(groups, localGroup{count: 1, typ: t})
	}
	return groups
}

func wasmTypeName(t byte) string {
	if t == wasmI64 {
		return "i64"
	}
	return "i32"
}

// printWasm renders the module in the WebAssembly text format.
func printWasm(name string, funcs []*wasmFunc) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(module $%s\n", name)
	for i, f := range funcs {
		fmt.Fprintf(&sb, "  (func $%s (export %q)", f.name, f.name)
		for j, p := range f.params {
			fmt.Fprintf(&sb, " (param $%d %s)", j, wasmTypeName(p))
		}
		if f.result != 0 {
			fmt.Fprintf(&sb, " (result %s)", wasmTypeName(f.result))
		}
		sb.WriteByte('\n')
		for _, t := range f.locals {
			fmt.Fprintf(&sb, "    (local %s)\n", wasmTypeName(t))
		}
		indent := 2
		for _, in := range f.code {
			if in.op == wopEnd {
				indent--
			}
			sb.WriteString(strings.Repeat("  ", indent+1))
			sb.WriteString(wasmInstText(in))
			sb.WriteByte('\n')
			if in.op == wopBlock || in.op == wopLoop {
				indent++
			}
		}
		sb.WriteString("  )")
		if i < len(funcs)-1 {
			sb.WriteByte('\n')
		}
	}
	sb.WriteString(")\n")
	return sb.String()
}

func wasmInstText(in winst) string {
	switch in.op {
	case wopI32Const, wopI64Const:
		return fmt.Sprintf("%s %d", wasmOpNames[in.op], in.konst)
	case wopBlock, wopLoop:
		return wasmOpNames[in.op]
	case wopEnd:
		return "end ;; " + in.text
	}
	if in.text != "" {
		return in.text
	}
	s := wasmOpNames[in.op]
	for _, imm := range in.imms {
		s += fmt.Sprintf(" %d", imm)
	}
	return s
}
