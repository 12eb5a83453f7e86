package golib

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/native/golib/internal/binary"
)

// Bitcode layout: magic, version, type table, named struct bodies, module.
// Every integer is LEB128. Operands are encoded inline with a tag byte;
// constants are rebuilt through the uniquing constructors on parse.
const (
	bitcodeMagic   = "IRBC"
	bitcodeVersion = 2
)

const (
	tyVoid byte = iota
	tyInt
	tyFloat
	tyPtr
	tyMetadata
	tyLabel
	tyFunc
	tyStruct
	tyNamed
	tyArray
)

const (
	opndLocal byte = iota
	opndBlock
	opndFunc
	opndConstInt
	opndConstStruct
	opndConstString
	opndMDString
	opndMDNode
)

type bitcodeWriter struct {
	lib   *Library
	types map[native.Ref]uint32
	funcs map[native.Ref]uint32
	table *binary.Writer
	named []native.Ref
	count uint32
}

// WriteBitcodeToMemoryBuffer serializes m into a new buffer.
func (l *Library) WriteBitcodeToMemoryBuffer(m native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	md, _, ok := l.module("WriteBitcodeToMemoryBuffer", m)
	if !ok {
		return native.Null
	}
	data, err := l.encodeModule(md)
	if err != nil {
		l.fault(FaultMisuse, "WriteBitcodeToMemoryBuffer", m, err.Error())
		return native.Null
	}
	return l.newBuffer(data, md.id+".bc")
}

func (l *Library) encodeModule(md *moduleData) ([]byte, error) {
	bw := &bitcodeWriter{
		lib:   l,
		types: make(map[native.Ref]uint32),
		funcs: make(map[native.Ref]uint32, len(md.funcs)),
		table: binary.NewWriter(),
	}
	for i, fn := range md.funcs {
		bw.funcs[fn] = uint32(i)
	}

	body := binary.NewWriter()
	body.Name(md.id)
	body.Name(md.triple)
	body.U32(uint32(len(md.funcs)))
	for _, fn := range md.funcs {
		if err := bw.function(body, fn); err != nil {
			return nil, err
		}
	}
	body.U32(uint32(len(md.mdNames)))
	for _, name := range md.mdNames {
		body.Name(name)
		nodes := md.namedMD[name]
		body.U32(uint32(len(nodes)))
		for _, n := range nodes {
			if err := bw.operand(body, nil, n); err != nil {
				return nil, err
			}
		}
	}

	// Bodies may reference further types, so they are encoded until no new
	// named struct appears.
	bodies := binary.NewWriter()
	var nbodies uint32
	for i := 0; i < len(bw.named); i++ {
		td := l.objs[bw.named[i]].data.(*typeData)
		bodies.U32(bw.types[bw.named[i]])
		bodies.Bool(td.opaque)
		bodies.Bool(td.packed)
		bodies.U32(uint32(len(td.fields)))
		for _, f := range td.fields {
			bodies.U32(bw.typeIndex(f))
		}
		nbodies++
	}

	out := binary.NewWriter()
	out.Raw([]byte(bitcodeMagic))
	out.U32(bitcodeVersion)
	out.U32(bw.count)
	out.Raw(bw.table.Bytes())
	out.U32(nbodies)
	out.Raw(bodies.Bytes())
	out.Raw(body.Bytes())
	return out.Bytes(), nil
}

func (bw *bitcodeWriter) typeIndex(ty native.Ref) uint32 {
	if i, ok := bw.types[ty]; ok {
		return i
	}
	td := bw.lib.objs[ty].data.(*typeData)
	if td.kind == native.TypeStruct && td.named {
		i := bw.add(ty)
		bw.table.Byte(tyNamed)
		bw.table.Name(td.name)
		bw.named = append(bw.named, ty)
		return i
	}
	children := make([]uint32, 0, len(td.params)+len(td.fields)+1)
	switch td.kind {
	case native.TypeFunction:
		children = append(children, bw.typeIndex(td.ret))
		for _, p := range td.params {
			children = append(children, bw.typeIndex(p))
		}
	case native.TypeStruct:
		for _, f := range td.fields {
			children = append(children, bw.typeIndex(f))
		}
	case native.TypeArray:
		children = append(children, bw.typeIndex(td.elem))
	}
	i := bw.add(ty)
	w := bw.table
	switch td.kind {
	case native.TypeVoid:
		w.Byte(tyVoid)
	case native.TypeInteger:
		w.Byte(tyInt)
		w.U32(td.width)
	case native.TypeFloat:
		w.Byte(tyFloat)
		w.U32(td.width)
	case native.TypePointer:
		w.Byte(tyPtr)
		w.U32(td.addrSpace)
	case native.TypeMetadata:
		w.Byte(tyMetadata)
	case native.TypeLabel:
		w.Byte(tyLabel)
	case native.TypeFunction:
		w.Byte(tyFunc)
		w.Bool(td.varArg)
		w.U32(uint32(len(children) - 1))
		for _, c := range children {
			w.U32(c)
		}
	case native.TypeStruct:
		w.Byte(tyStruct)
		w.Bool(td.packed)
		w.U32(uint32(len(children)))
		for _, c := range children {
			w.U32(c)
		}
	case native.TypeArray:
		w.Byte(tyArray)
		w.U64(td.count)
		w.U32(children[0])
	}
	return i
}

func (bw *bitcodeWriter) add(ty native.Ref) uint32 {
	i := bw.count
	bw.types[ty] = i
	bw.count++
	return i
}

func (bw *bitcodeWriter) function(w *binary.Writer, fn native.Ref) error {
	l := bw.lib
	fv := l.objs[fn].data.(*valueData)
	w.Name(fv.name)
	w.U32(bw.typeIndex(fv.fn.fnTy))
	locals := make(map[native.Ref]uint32)
	for i, p := range fv.fn.params {
		w.Name(l.objs[p].data.(*valueData).name)
		locals[p] = uint32(i)
	}
	w.U32(uint32(len(fv.fn.attrs)))
	for _, a := range fv.fn.attrs {
		ad := l.objs[a].data.(*attrData)
		w.Bool(ad.enum)
		if ad.enum {
			w.U32(ad.kind)
			w.U64(ad.value)
		} else {
			w.Name(ad.key)
			w.Name(ad.val)
		}
	}
	blocks := make(map[native.Ref]uint32, len(fv.fn.blocks))
	next := uint32(len(fv.fn.params))
	w.U32(uint32(len(fv.fn.blocks)))
	for i, bb := range fv.fn.blocks {
		bv := l.objs[bb].data.(*valueData)
		blocks[bb] = uint32(i)
		w.Name(bv.name)
		w.U32(uint32(len(bv.bb.insts)))
		for _, inst := range bv.bb.insts {
			locals[inst] = next
			next++
		}
	}
	scope := &localScope{locals: locals, blocks: blocks}
	for _, bb := range fv.fn.blocks {
		for _, inst := range l.objs[bb].data.(*valueData).bb.insts {
			iv := l.objs[inst].data.(*valueData)
			w.Byte(byte(iv.opcode))
			w.Name(iv.name)
			w.U32(bw.typeIndex(iv.ty))
			w.Byte(byte(iv.pred))
			if iv.opcode == native.OpCall {
				w.U32(bw.typeIndex(iv.callTy))
			}
			w.U32(uint32(len(iv.ops)))
			for _, r := range iv.ops {
				if err := bw.operand(w, scope, r); err != nil {
					return fmt.Errorf("function @%s: %w", fv.name, err)
				}
			}
		}
	}
	return nil
}

type localScope struct {
	locals map[native.Ref]uint32
	blocks map[native.Ref]uint32
}

func (bw *bitcodeWriter) operand(w *binary.Writer, scope *localScope, r native.Ref) error {
	l := bw.lib
	if r == native.Null || int(r) >= len(l.objs) || !l.objs[r].alive {
		return errors.New("operand refers to a deleted value")
	}
	if scope != nil {
		if i, ok := scope.locals[r]; ok {
			w.Byte(opndLocal)
			w.U32(i)
			return nil
		}
		if i, ok := scope.blocks[r]; ok {
			w.Byte(opndBlock)
			w.U32(i)
			return nil
		}
	}
	vd := l.objs[r].data.(*valueData)
	switch vd.kind {
	case native.ValueFunction:
		i, ok := bw.funcs[r]
		if !ok {
			return fmt.Errorf("reference to @%s of another module", vd.name)
		}
		w.Byte(opndFunc)
		w.U32(i)
	case native.ValueConstantInt:
		w.Byte(opndConstInt)
		w.U32(bw.typeIndex(vd.ty))
		w.U64(vd.intVal)
		w.Bool(vd.intHi != 0)
	case native.ValueConstantStruct:
		w.Byte(opndConstStruct)
		w.Bool(l.objs[vd.ty].data.(*typeData).packed)
		w.U32(uint32(len(vd.ops)))
		for _, f := range vd.ops {
			if err := bw.operand(w, scope, f); err != nil {
				return err
			}
		}
	case native.ValueConstantString:
		w.Byte(opndConstString)
		w.Blob(vd.bytes)
	case native.ValueMetadataString:
		w.Byte(opndMDString)
		w.Name(vd.str)
	case native.ValueMetadataNode:
		w.Byte(opndMDNode)
		w.U32(uint32(len(vd.ops)))
		for _, o := range vd.ops {
			if err := bw.operand(w, scope, o); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%s operand outside its function", vd.kind)
	}
	return nil
}

// ParseBitcodeInContext decodes a module from buf into ctx. The buffer is
// consumed whether or not parsing succeeds.
func (l *Library) ParseBitcodeInContext(ctx native.Ref, buf native.Ref) (native.Ref, native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "ParseBitcodeInContext"
	if _, ok := l.context(op, ctx); !ok {
		return native.Null, native.Null
	}
	bd, ok := l.buffer(op, buf)
	if !ok {
		return native.Null, native.Null
	}
	data := bd.data
	l.free(buf)

	p := &bitcodeParser{lib: l, ctx: ctx, r: binary.NewReader(data)}
	m, err := p.parse()
	if err != nil {
		if m != native.Null {
			l.freeModule(m, l.objs[m].data.(*moduleData))
		}
		if errors.Is(err, errParseAlloc) {
			return native.Null, native.Null
		}
		return native.Null, l.newMessage("invalid bitcode: " + err.Error())
	}
	return m, native.Null
}

var errParseAlloc = errors.New("allocation failed")

type bitcodeParser struct {
	lib   *Library
	r     *binary.Reader
	types []native.Ref
	funcs []native.Ref
	ctx   native.Ref
}

type pendingOperand struct {
	children []pendingOperand
	data     []byte
	imm      uint64
	index    uint32
	tag      byte
	packed   bool
	signExt  bool
}

func (p *bitcodeParser) parse() (native.Ref, error) {
	l := p.lib
	r := p.r
	magic, err := r.Raw(len(bitcodeMagic))
	if err != nil {
		return native.Null, err
	}
	if !bytes.Equal(magic, []byte(bitcodeMagic)) {
		return native.Null, errors.New("bad magic")
	}
	version, err := r.U32()
	if err != nil {
		return native.Null, err
	}
	if version != bitcodeVersion {
		return native.Null, fmt.Errorf("unsupported version %d", version)
	}
	if err := p.typeTable(); err != nil {
		return native.Null, r.WrapError("types", err)
	}
	if err := p.structBodies(); err != nil {
		return native.Null, r.WrapError("struct bodies", err)
	}

	id, err := r.Name()
	if err != nil {
		return native.Null, err
	}
	triple, err := r.Name()
	if err != nil {
		return native.Null, err
	}
	m := l.alloc(kindModule, p.ctx, &moduleData{id: id, triple: triple, namedMD: make(map[string][]native.Ref)})
	if m == native.Null {
		return native.Null, errParseAlloc
	}
	md := l.objs[m].data.(*moduleData)
	if err := p.functions(m, md); err != nil {
		return m, r.WrapError("functions", err)
	}
	if err := p.namedMetadata(md); err != nil {
		return m, r.WrapError("metadata", err)
	}
	if r.Remaining() != 0 {
		return m, fmt.Errorf("%d trailing bytes", r.Remaining())
	}
	return m, nil
}

func (p *bitcodeParser) typeRef() (native.Ref, error) {
	i, err := p.r.U32()
	if err != nil {
		return native.Null, err
	}
	if int(i) >= len(p.types) {
		return native.Null, fmt.Errorf("type index %d out of range", i)
	}
	return p.types[i], nil
}

func (p *bitcodeParser) typeRefs(n int) ([]native.Ref, error) {
	out := make([]native.Ref, n)
	for i := range out {
		t, err := p.typeRef()
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (p *bitcodeParser) typeTable() error {
	l, r := p.lib, p.r
	n, err := r.Count()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		tag, err := r.Byte()
		if err != nil {
			return err
		}
		var ty native.Ref
		switch tag {
		case tyVoid:
			ty = l.newVoidType(p.ctx)
		case tyInt, tyFloat, tyPtr:
			v, err := r.U32()
			if err != nil {
				return err
			}
			switch tag {
			case tyInt:
				if v == 0 || v > 1<<23 {
					return fmt.Errorf("invalid integer width %d", v)
				}
				ty = l.newIntType(p.ctx, v)
			case tyFloat:
				if v != 16 && v != 32 && v != 64 && v != 128 {
					return fmt.Errorf("invalid float width %d", v)
				}
				ty = l.newFloatType(p.ctx, v)
			default:
				ty = l.newPointerType(p.ctx, v)
			}
		case tyMetadata:
			ty = l.newMetadataType(p.ctx)
		case tyLabel:
			ty = l.labelType(p.ctx)
		case tyFunc:
			varArg, err := r.Bool()
			if err != nil {
				return err
			}
			np, err := r.Count()
			if err != nil {
				return err
			}
			refs, err := p.typeRefs(np + 1)
			if err != nil {
				return err
			}
			ty = l.newFunctionType(refs[0], refs[1:], varArg)
		case tyStruct:
			packed, err := r.Bool()
			if err != nil {
				return err
			}
			nf, err := r.Count()
			if err != nil {
				return err
			}
			fields, err := p.typeRefs(nf)
			if err != nil {
				return err
			}
			ty = l.newStructType(p.ctx, fields, packed)
		case tyNamed:
			name, err := r.Name()
			if err != nil {
				return err
			}
			ty = l.newNamedStruct(p.ctx, name)
		case tyArray:
			count, err := r.U64()
			if err != nil {
				return err
			}
			elem, err := p.typeRef()
			if err != nil {
				return err
			}
			ty = l.newArrayType(elem, count)
		default:
			return fmt.Errorf("unknown type tag 0x%02x", tag)
		}
		if ty == native.Null {
			return errParseAlloc
		}
		p.types = append(p.types, ty)
	}
	return nil
}

func (p *bitcodeParser) structBodies() error {
	l, r := p.lib, p.r
	n, err := r.Count()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		st, err := p.typeRef()
		if err != nil {
			return err
		}
		td := l.objs[st].data.(*typeData)
		if !td.named {
			return errors.New("body for a literal struct")
		}
		opaque, err := r.Bool()
		if err != nil {
			return err
		}
		packed, err := r.Bool()
		if err != nil {
			return err
		}
		nf, err := r.Count()
		if err != nil {
			return err
		}
		fields, err := p.typeRefs(nf)
		if err != nil {
			return err
		}
		if !opaque {
			l.setStructBody(st, fields, packed)
		}
	}
	return nil
}

func (p *bitcodeParser) functions(m native.Ref, md *moduleData) error {
	l, r := p.lib, p.r
	n, err := r.Count()
	if err != nil {
		return err
	}
	type pendingInst struct {
		ops  []pendingOperand
		inst native.Ref
	}
	type pendingFunc struct {
		locals []native.Ref
		blocks []native.Ref
		insts  []pendingInst
	}
	pending := make([]pendingFunc, 0, n)

	for i := 0; i < n; i++ {
		name, err := r.Name()
		if err != nil {
			return err
		}
		fnTy, err := p.typeRef()
		if err != nil {
			return err
		}
		if l.objs[fnTy].data.(*typeData).kind != native.TypeFunction {
			return fmt.Errorf("function @%s: not a function type", name)
		}
		fn := l.newFunction(m, md, name, fnTy)
		if fn == native.Null {
			return errParseAlloc
		}
		p.funcs = append(p.funcs, fn)
		fd := l.objs[fn].data.(*valueData).fn
		var pf pendingFunc
		for _, param := range fd.params {
			pname, err := r.Name()
			if err != nil {
				return err
			}
			l.objs[param].data.(*valueData).name = pname
			pf.locals = append(pf.locals, param)
		}
		na, err := r.Count()
		if err != nil {
			return err
		}
		for j := 0; j < na; j++ {
			attr, err := p.attribute()
			if err != nil {
				return err
			}
			fd.attrs = append(fd.attrs, attr)
		}

		nb, err := r.Count()
		if err != nil {
			return err
		}
		counts := make([]int, nb)
		for j := 0; j < nb; j++ {
			bname, err := r.Name()
			if err != nil {
				return err
			}
			if counts[j], err = r.Count(); err != nil {
				return err
			}
			bb := l.newBlock(p.ctx, fn, -1, bname)
			if bb == native.Null {
				return errParseAlloc
			}
			pf.blocks = append(pf.blocks, bb)
		}
		for j, bb := range pf.blocks {
			for k := 0; k < counts[j]; k++ {
				inst, ops, err := p.instruction()
				if err != nil {
					return fmt.Errorf("function @%s: %w", name, err)
				}
				l.attach(bb, inst, -1)
				pf.locals = append(pf.locals, inst)
				pf.insts = append(pf.insts, pendingInst{inst: inst, ops: ops})
			}
		}
		pending = append(pending, pf)
	}

	// Operands are resolved once every function and instruction exists so
	// forward references decode.
	for _, pf := range pending {
		for _, pi := range pf.insts {
			vd := l.objs[pi.inst].data.(*valueData)
			vd.ops = make([]native.Ref, len(pi.ops))
			for i, po := range pi.ops {
				ref, err := p.resolve(po, pf.locals, pf.blocks)
				if err != nil {
					return err
				}
				vd.ops[i] = ref
			}
		}
	}
	return nil
}

func (p *bitcodeParser) attribute() (native.Ref, error) {
	r := p.r
	enum, err := r.Bool()
	if err != nil {
		return native.Null, err
	}
	var attr native.Ref
	if enum {
		kind, err := r.U32()
		if err != nil {
			return native.Null, err
		}
		value, err := r.U64()
		if err != nil {
			return native.Null, err
		}
		attr = p.lib.newEnumAttr(p.ctx, kind, value)
	} else {
		key, err := r.Name()
		if err != nil {
			return native.Null, err
		}
		val, err := r.Name()
		if err != nil {
			return native.Null, err
		}
		attr = p.lib.newStringAttr(p.ctx, key, val)
	}
	if attr == native.Null {
		return native.Null, errParseAlloc
	}
	return attr, nil
}

func (p *bitcodeParser) instruction() (native.Ref, []pendingOperand, error) {
	r := p.r
	opc, err := r.Byte()
	if err != nil {
		return native.Null, nil, err
	}
	if native.Opcode(opc) == native.OpInvalid || native.Opcode(opc) > native.OpCall {
		return native.Null, nil, fmt.Errorf("unknown opcode %d", opc)
	}
	name, err := r.Name()
	if err != nil {
		return native.Null, nil, err
	}
	ty, err := p.typeRef()
	if err != nil {
		return native.Null, nil, err
	}
	pred, err := r.Byte()
	if err != nil {
		return native.Null, nil, err
	}
	vd := &valueData{
		kind:   native.ValueInstruction,
		name:   name,
		ty:     ty,
		opcode: native.Opcode(opc),
		pred:   native.IntPredicate(pred),
	}
	if vd.opcode == native.OpCall {
		if vd.callTy, err = p.typeRef(); err != nil {
			return native.Null, nil, err
		}
	}
	nops, err := r.Count()
	if err != nil {
		return native.Null, nil, err
	}
	ops := make([]pendingOperand, nops)
	for i := range ops {
		if ops[i], err = p.operand(); err != nil {
			return native.Null, nil, err
		}
	}
	inst := p.lib.alloc(kindValue, p.ctx, vd)
	if inst == native.Null {
		return native.Null, nil, errParseAlloc
	}
	return inst, ops, nil
}

func (p *bitcodeParser) operand() (pendingOperand, error) {
	r := p.r
	tag, err := r.Byte()
	if err != nil {
		return pendingOperand{}, err
	}
	po := pendingOperand{tag: tag}
	switch tag {
	case opndLocal, opndBlock, opndFunc:
		po.index, err = r.U32()
	case opndConstInt:
		if po.index, err = r.U32(); err == nil {
			if po.imm, err = r.U64(); err == nil {
				po.signExt, err = r.Bool()
			}
		}
	case opndConstStruct, opndMDNode:
		if tag == opndConstStruct {
			if po.packed, err = r.Bool(); err != nil {
				return po, err
			}
		}
		n, err := r.Count()
		if err != nil {
			return po, err
		}
		po.children = make([]pendingOperand, n)
		for i := range po.children {
			if po.children[i], err = p.operand(); err != nil {
				return po, err
			}
		}
	case opndConstString:
		po.data, err = r.Blob()
	case opndMDString:
		var s string
		s, err = r.Name()
		po.data = []byte(s)
	default:
		return po, fmt.Errorf("unknown operand tag 0x%02x", tag)
	}
	return po, err
}

func (p *bitcodeParser) resolve(po pendingOperand, locals, blocks []native.Ref) (native.Ref, error) {
	l := p.lib
	pick := func(list []native.Ref, what string) (native.Ref, error) {
		if int(po.index) >= len(list) {
			return native.Null, fmt.Errorf("%s index %d out of range", what, po.index)
		}
		return list[po.index], nil
	}
	var ref native.Ref
	switch po.tag {
	case opndLocal:
		return pick(locals, "local")
	case opndBlock:
		return pick(blocks, "block")
	case opndFunc:
		return pick(p.funcs, "function")
	case opndConstInt:
		if int(po.index) >= len(p.types) {
			return native.Null, fmt.Errorf("type index %d out of range", po.index)
		}
		ty := p.types[po.index]
		if l.objs[ty].data.(*typeData).kind != native.TypeInteger {
			return native.Null, errors.New("integer constant of non-integer type")
		}
		ref = l.newConstInt(ty, po.imm, po.signExt)
	case opndConstStruct, opndMDNode:
		children := make([]native.Ref, len(po.children))
		for i, c := range po.children {
			cr, err := p.resolve(c, locals, blocks)
			if err != nil {
				return native.Null, err
			}
			children[i] = cr
		}
		if po.tag == opndConstStruct {
			ref = l.newConstStruct(p.ctx, children, po.packed)
		} else {
			ref = l.newMDNode(p.ctx, children)
		}
	case opndConstString:
		ref = l.newConstString(p.ctx, po.data, true)
	case opndMDString:
		ref = l.newMDString(p.ctx, string(po.data))
	}
	if ref == native.Null {
		return native.Null, errParseAlloc
	}
	return ref, nil
}

func (p *bitcodeParser) namedMetadata(md *moduleData) error {
	r := p.r
	n, err := r.Count()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		name, err := r.Name()
		if err != nil {
			return err
		}
		nn, err := r.Count()
		if err != nil {
			return err
		}
		md.mdNames = append(md.mdNames, name)
		for j := 0; j < nn; j++ {
			po, err := p.operand()
			if err != nil {
				return err
			}
			if po.tag != opndMDNode {
				return errors.New("named metadata operand is not a node")
			}
			node, err := p.resolve(po, nil, nil)
			if err != nil {
				return err
			}
			md.namedMD[name] = append(md.namedMD[name], node)
		}
	}
	return nil
}
