package golib

import (
	"fmt"
	"slices"

	"github.com/wippyai/ir-runtime/native"
)

type moduleData struct {
	namedMD map[string][]native.Ref
	id      string
	triple  string
	mdNames []string
	funcs   []native.Ref
}

func (l *Library) module(op string, ref native.Ref) (*moduleData, *object, bool) {
	o, ok := l.get(op, ref, kindModule)
	if !ok {
		return nil, nil, false
	}
	return o.data.(*moduleData), o, true
}

// ModuleCreateWithNameInContext creates an empty module owned by ctx.
func (l *Library) ModuleCreateWithNameInContext(name string, ctx native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.context("ModuleCreateWithNameInContext", ctx); !ok {
		return native.Null
	}
	return l.alloc(kindModule, ctx, &moduleData{id: name, namedMD: make(map[string][]native.Ref)})
}

// DisposeModule frees the module with all of its functions.
func (l *Library) DisposeModule(m native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.release("DisposeModule", m, kindModule)
	if !ok {
		return
	}
	l.freeModule(m, o.data.(*moduleData))
}

func (l *Library) freeModule(m native.Ref, md *moduleData) {
	for i := len(md.funcs) - 1; i >= 0; i-- {
		l.freeFunction(md.funcs[i])
	}
	l.free(m)
}

func (l *Library) freeFunction(fn native.Ref) {
	vd := l.objs[fn].data.(*valueData)
	for i := len(vd.fn.blocks) - 1; i >= 0; i-- {
		l.freeBlock(vd.fn.blocks[i])
	}
	for i := len(vd.fn.params) - 1; i >= 0; i-- {
		l.free(vd.fn.params[i])
	}
	l.free(fn)
}

func (l *Library) freeBlock(bb native.Ref) {
	bd := l.objs[bb].data.(*valueData).bb
	for i := len(bd.insts) - 1; i >= 0; i-- {
		l.free(bd.insts[i])
	}
	l.free(bb)
}

// GetModuleContext returns the context owning m.
func (l *Library) GetModuleContext(m native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, o, ok := l.module("GetModuleContext", m)
	if !ok {
		return native.Null
	}
	return o.ctx
}

// GetModuleIdentifier returns the module name.
func (l *Library) GetModuleIdentifier(m native.Ref) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	md, _, ok := l.module("GetModuleIdentifier", m)
	if !ok {
		return ""
	}
	return md.id
}

// SetModuleIdentifier renames the module.
func (l *Library) SetModuleIdentifier(m native.Ref, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if md, _, ok := l.module("SetModuleIdentifier", m); ok {
		md.id = id
	}
}

// GetTarget returns the module target triple.
func (l *Library) GetTarget(m native.Ref) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	md, _, ok := l.module("GetTarget", m)
	if !ok {
		return ""
	}
	return md.triple
}

// SetTarget sets the module target triple.
func (l *Library) SetTarget(m native.Ref, triple string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if md, _, ok := l.module("SetTarget", m); ok {
		md.triple = triple
	}
}

// AddNamedMetadataOperand appends a metadata node to the named metadata list.
func (l *Library) AddNamedMetadataOperand(m native.Ref, name string, node native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "AddNamedMetadataOperand"
	md, mo, ok := l.module(op, m)
	if !ok {
		return
	}
	_, no, ok := l.valueOf(op, node, native.ValueMetadataNode)
	if !ok {
		return
	}
	if no.ctx != mo.ctx {
		l.fault(FaultMisuse, op, node, "metadata from another context")
		return
	}
	if _, exists := md.namedMD[name]; !exists {
		md.mdNames = append(md.mdNames, name)
	}
	md.namedMD[name] = append(md.namedMD[name], node)
}

// GetNamedMetadataOperands returns the nodes of a named metadata list.
func (l *Library) GetNamedMetadataOperands(m native.Ref, name string) []native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	md, _, ok := l.module("GetNamedMetadataOperands", m)
	if !ok {
		return nil
	}
	return append([]native.Ref(nil), md.namedMD[name]...)
}

// CloneModule deep-copies m into a new module of the same context.
func (l *Library) CloneModule(m native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	md, mo, ok := l.module("CloneModule", m)
	if !ok {
		return native.Null
	}
	// Allocation may fail midway; the partially built clone is freed.
	out := l.alloc(kindModule, mo.ctx, &moduleData{
		id:      md.id,
		triple:  md.triple,
		namedMD: make(map[string][]native.Ref, len(md.namedMD)),
		mdNames: slices.Clone(md.mdNames),
	})
	if out == native.Null {
		return native.Null
	}
	nmd := l.objs[out].data.(*moduleData)
	for name, nodes := range md.namedMD {
		nmd.namedMD[name] = slices.Clone(nodes)
	}
	remap := make(map[native.Ref]native.Ref)
	for _, fn := range md.funcs {
		src := l.objs[fn].data.(*valueData)
		nf := l.newFunction(out, nmd, src.name, src.fn.fnTy)
		if nf == native.Null {
			l.freeModule(out, nmd)
			return native.Null
		}
		l.objs[nf].data.(*valueData).fn.attrs = slices.Clone(src.fn.attrs)
		remap[fn] = nf
		for i, p := range src.fn.params {
			np := l.objs[nf].data.(*valueData).fn.params[i]
			l.objs[np].data.(*valueData).name = l.objs[p].data.(*valueData).name
			remap[p] = np
		}
	}
	for _, fn := range md.funcs {
		src := l.objs[fn].data.(*valueData)
		nf := remap[fn]
		for _, bb := range src.fn.blocks {
			nb := l.newBlock(mo.ctx, nf, -1, l.objs[bb].data.(*valueData).name)
			if nb == native.Null {
				l.freeModule(out, nmd)
				return native.Null
			}
			remap[bb] = nb
		}
		for _, bb := range src.fn.blocks {
			for _, inst := range l.objs[bb].data.(*valueData).bb.insts {
				ni := l.cloneInst(mo.ctx, inst)
				if ni == native.Null {
					l.freeModule(out, nmd)
					return native.Null
				}
				l.attach(remap[bb], ni, -1)
				remap[inst] = ni
			}
		}
	}
	for _, fn := range md.funcs {
		for _, bb := range l.objs[remap[fn]].data.(*valueData).fn.blocks {
			for _, inst := range l.objs[bb].data.(*valueData).bb.insts {
				ops := l.objs[inst].data.(*valueData).ops
				for i, r := range ops {
					if nr, ok := remap[r]; ok {
						ops[i] = nr
					}
				}
			}
		}
	}
	return out
}

func (l *Library) newFunction(m native.Ref, md *moduleData, name string, fnTy native.Ref) native.Ref {
	ctx := l.objs[m].ctx
	td := l.objs[fnTy].data.(*typeData)
	ptr := l.uniqueType("AddFunction", ctx, "ptr0", &typeData{kind: native.TypePointer})
	if ptr == native.Null {
		return native.Null
	}
	fn := l.alloc(kindValue, ctx, &valueData{
		kind:   native.ValueFunction,
		ty:     ptr,
		name:   name,
		parent: m,
		fn:     &funcData{fnTy: fnTy},
	})
	if fn == native.Null {
		return native.Null
	}
	fd := l.objs[fn].data.(*valueData).fn
	for i, pt := range td.params {
		p := l.alloc(kindValue, ctx, &valueData{kind: native.ValueArgument, ty: pt, parent: fn, index: i})
		if p == native.Null {
			for _, q := range fd.params {
				l.free(q)
			}
			l.free(fn)
			return native.Null
		}
		fd.params = append(fd.params, p)
	}
	md.funcs = append(md.funcs, fn)
	return fn
}

func (l *Library) function(op string, fn native.Ref) (*valueData, *object, bool) {
	return l.valueOf(op, fn, native.ValueFunction)
}

// AddFunction adds a function with no body to m.
func (l *Library) AddFunction(m native.Ref, name string, fnTy native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "AddFunction"
	md, mo, ok := l.module(op, m)
	if !ok {
		return native.Null
	}
	td, to, ok := l.typ(op, fnTy)
	if !ok {
		return native.Null
	}
	if td.kind != native.TypeFunction {
		l.fault(FaultMisuse, op, fnTy, "not a function type")
		return native.Null
	}
	if to.ctx != mo.ctx {
		l.fault(FaultMisuse, op, fnTy, "type from another context")
		return native.Null
	}
	if l.findFunction(md, name) != native.Null {
		// Names are uniqued the way the native linker renames duplicates.
		for i := 1; ; i++ {
			alt := fmt.Sprintf("%s.%d", name, i)
			if l.findFunction(md, alt) == native.Null {
				name = alt
				break
			}
		}
	}
	return l.newFunction(m, md, name, fnTy)
}

func (l *Library) findFunction(md *moduleData, name string) native.Ref {
	if name == "" {
		return native.Null
	}
	for _, fn := range md.funcs {
		if l.objs[fn].data.(*valueData).name == name {
			return fn
		}
	}
	return native.Null
}

// GetNamedFunction returns the function called name, or Null.
func (l *Library) GetNamedFunction(m native.Ref, name string) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	md, _, ok := l.module("GetNamedFunction", m)
	if !ok {
		return native.Null
	}
	return l.findFunction(md, name)
}

// GetFirstFunction returns the first function of m, or Null.
func (l *Library) GetFirstFunction(m native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	md, _, ok := l.module("GetFirstFunction", m)
	if !ok || len(md.funcs) == 0 {
		return native.Null
	}
	return md.funcs[0]
}

// GetNextFunction returns the function after fn, or Null.
func (l *Library) GetNextFunction(fn native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.function("GetNextFunction", fn)
	if !ok {
		return native.Null
	}
	return nextOf(l.objs[vd.parent].data.(*moduleData).funcs, fn)
}

func nextOf(list []native.Ref, r native.Ref) native.Ref {
	i := slices.Index(list, r)
	if i < 0 || i+1 >= len(list) {
		return native.Null
	}
	return list[i+1]
}

func prevOf(list []native.Ref, r native.Ref) native.Ref {
	i := slices.Index(list, r)
	if i <= 0 {
		return native.Null
	}
	return list[i-1]
}

// GetGlobalParent returns the module of fn.
func (l *Library) GetGlobalParent(fn native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.function("GetGlobalParent", fn)
	if !ok {
		return native.Null
	}
	return vd.parent
}

// GlobalGetValueType returns the function type of fn.
func (l *Library) GlobalGetValueType(fn native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.function("GlobalGetValueType", fn)
	if !ok {
		return native.Null
	}
	return vd.fn.fnTy
}

// DeleteFunction removes fn from its module and frees it with its body.
func (l *Library) DeleteFunction(fn native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.release("DeleteFunction", fn, kindValue); !ok {
		return
	}
	vd, _, ok := l.function("DeleteFunction", fn)
	if !ok {
		return
	}
	md := l.objs[vd.parent].data.(*moduleData)
	md.funcs = slices.DeleteFunc(md.funcs, func(r native.Ref) bool { return r == fn })
	l.freeFunction(fn)
}

// CountParams returns the number of parameters of fn.
func (l *Library) CountParams(fn native.Ref) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.function("CountParams", fn)
	if !ok {
		return 0
	}
	return len(vd.fn.params)
}

// GetParam returns parameter index of fn.
func (l *Library) GetParam(fn native.Ref, index int) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.function("GetParam", fn)
	if !ok {
		return native.Null
	}
	if index < 0 || index >= len(vd.fn.params) {
		l.fault(FaultMisuse, "GetParam", fn, fmt.Sprintf("parameter %d out of range", index))
		return native.Null
	}
	return vd.fn.params[index]
}

// GetParamParent returns the function of an argument.
func (l *Library) GetParamParent(arg native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.valueOf("GetParamParent", arg, native.ValueArgument)
	if !ok {
		return native.Null
	}
	return vd.parent
}

// AddFunctionAttribute attaches attr to fn. Duplicates are ignored.
func (l *Library) AddFunctionAttribute(fn native.Ref, attr native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "AddFunctionAttribute"
	vd, fo, ok := l.function(op, fn)
	if !ok {
		return
	}
	ao, ok := l.get(op, attr, kindAttribute)
	if !ok {
		return
	}
	if ao.ctx != fo.ctx {
		l.fault(FaultMisuse, op, attr, "attribute from another context")
		return
	}
	if !slices.Contains(vd.fn.attrs, attr) {
		vd.fn.attrs = append(vd.fn.attrs, attr)
	}
}

// GetFunctionAttributes returns the attributes of fn.
func (l *Library) GetFunctionAttributes(fn native.Ref) []native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.function("GetFunctionAttributes", fn)
	if !ok {
		return nil
	}
	return slices.Clone(vd.fn.attrs)
}
