package golib

import (
	"fmt"

	"github.com/wippyai/ir-runtime/native"
)

// valueData is the common payload of every value object. Fields beyond the
// header are interpreted according to kind.
type valueData struct {
	name string
	ty   native.Ref
	kind native.ValueKind

	// ops holds instruction operands, constant struct fields and metadata
	// node elements. Call operands are the arguments followed by the callee.
	ops []native.Ref

	// parent is the module of a function, the function of an argument or
	// block, and the block of an attached instruction.
	parent native.Ref
	index  int

	intVal uint64
	// intHi fills bits past 64 of integers wider than 64 bits.
	intHi  uint64
	bytes  []byte
	str    string

	opcode native.Opcode
	pred   native.IntPredicate
	callTy native.Ref

	fn *funcData
	bb *blockData
}

type funcData struct {
	fnTy   native.Ref
	params []native.Ref
	blocks []native.Ref
	attrs  []native.Ref
}

type blockData struct {
	insts []native.Ref
}

type attrData struct {
	key   string
	val   string
	value uint64
	kind  uint32
	enum  bool
}

func (l *Library) value(op string, ref native.Ref) (*valueData, *object, bool) {
	o, ok := l.get(op, ref, kindValue)
	if !ok {
		return nil, nil, false
	}
	return o.data.(*valueData), o, true
}

func (l *Library) valueOf(op string, ref native.Ref, kind native.ValueKind) (*valueData, *object, bool) {
	vd, o, ok := l.value(op, ref)
	if !ok {
		return nil, nil, false
	}
	if vd.kind != kind {
		l.fault(FaultBadHandle, op, ref, fmt.Sprintf("want %s, got %s", kind, vd.kind))
		return nil, nil, false
	}
	return vd, o, true
}

// TypeOf returns the type of v.
func (l *Library) TypeOf(v native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.value("TypeOf", v)
	if !ok {
		return native.Null
	}
	return vd.ty
}

// GetValueKind returns the kind of v.
func (l *Library) GetValueKind(v native.Ref) native.ValueKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.value("GetValueKind", v)
	if !ok {
		return native.ValueArgument
	}
	return vd.kind
}

// GetValueName returns the name of v.
func (l *Library) GetValueName(v native.Ref) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.value("GetValueName", v)
	if !ok {
		return ""
	}
	return vd.name
}

// SetValueName renames v.
func (l *Library) SetValueName(v native.Ref, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.value("SetValueName", v)
	if !ok {
		return
	}
	if isUniqued(vd.kind) {
		l.fault(FaultMisuse, "SetValueName", v, "cannot name a uniqued value")
		return
	}
	vd.name = name
}

// GetNumOperands returns the number of operands of v.
func (l *Library) GetNumOperands(v native.Ref) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.value("GetNumOperands", v)
	if !ok {
		return 0
	}
	return len(vd.ops)
}

// GetOperand returns operand index of v.
func (l *Library) GetOperand(v native.Ref, index int) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.value("GetOperand", v)
	if !ok {
		return native.Null
	}
	if index < 0 || index >= len(vd.ops) {
		l.fault(FaultMisuse, "GetOperand", v, fmt.Sprintf("operand %d out of range", index))
		return native.Null
	}
	return vd.ops[index]
}

// IsConstant reports whether v is a constant. Functions are constants.
func (l *Library) IsConstant(v native.Ref) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.value("IsConstant", v)
	if !ok {
		return false
	}
	switch vd.kind {
	case native.ValueConstantInt, native.ValueConstantStruct, native.ValueConstantString, native.ValueFunction:
		return true
	}
	return false
}

// ReplaceAllUsesWith rewrites every instruction operand referring to old.
func (l *Library) ReplaceAllUsesWith(old, replacement native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "ReplaceAllUsesWith"
	ov, oo, ok := l.value(op, old)
	if !ok {
		return
	}
	rv, ro, ok := l.value(op, replacement)
	if !ok {
		return
	}
	if oo.ctx != ro.ctx {
		l.fault(FaultMisuse, op, replacement, "value from another context")
		return
	}
	if ov.ty != rv.ty {
		l.fault(FaultMisuse, op, replacement, "replacement type differs")
		return
	}
	for _, o := range l.objs[1:] {
		if !o.alive || o.kind != kindValue || o.ctx != oo.ctx {
			continue
		}
		vd := o.data.(*valueData)
		if vd.kind != native.ValueInstruction {
			continue
		}
		for i, r := range vd.ops {
			if r == old {
				vd.ops[i] = replacement
			}
		}
	}
}

func maskWidth(v uint64, width uint32) uint64 {
	if width >= 64 {
		return v
	}
	return v & (1<<width - 1)
}

func signExtend(v uint64, width uint32) int64 {
	if width >= 64 || width == 0 {
		return int64(v)
	}
	shift := 64 - width
	return int64(v<<shift) >> shift
}

// ConstInt returns the uniqued integer constant of ty. The value is truncated
// to the type width.
func (l *Library) ConstInt(ty native.Ref, value uint64, signExt bool) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newConstInt(ty, value, signExt)
}

func (l *Library) newConstInt(ty native.Ref, value uint64, signExt bool) native.Ref {
	const op = "ConstInt"
	td, o, ok := l.typ(op, ty)
	if !ok {
		return native.Null
	}
	if td.kind != native.TypeInteger {
		l.fault(FaultMisuse, op, ty, "not an integer type")
		return native.Null
	}
	v := maskWidth(value, td.width)
	var hi uint64
	if td.width > 64 && signExt && int64(value) < 0 {
		hi = ^uint64(0)
	}
	key := fmt.Sprintf("ci:%d:%d:%d", uintptr(ty), v, hi)
	return l.uniqueValue(op, o.ctx, key, &valueData{kind: native.ValueConstantInt, ty: ty, intVal: v, intHi: hi})
}

func (l *Library) uniqueValue(op string, ctx native.Ref, key string, vd *valueData) native.Ref {
	cd, ok := l.context(op, ctx)
	if !ok {
		return native.Null
	}
	return l.unique(ctx, cd, "v:"+key, kindValue, func() any { return vd })
}

// ConstIntGetZExtValue returns the zero-extended value of an integer constant.
func (l *Library) ConstIntGetZExtValue(v native.Ref) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.valueOf("ConstIntGetZExtValue", v, native.ValueConstantInt)
	if !ok {
		return 0
	}
	return vd.intVal
}

// ConstIntGetSExtValue returns the sign-extended value of an integer constant.
func (l *Library) ConstIntGetSExtValue(v native.Ref) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.valueOf("ConstIntGetSExtValue", v, native.ValueConstantInt)
	if !ok {
		return 0
	}
	return signExtend(vd.intVal, l.objs[vd.ty].data.(*typeData).width)
}

// ConstStructInContext returns the uniqued literal struct constant of values.
func (l *Library) ConstStructInContext(ctx native.Ref, values []native.Ref, packed bool) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newConstStruct(ctx, values, packed)
}

func (l *Library) newConstStruct(ctx native.Ref, values []native.Ref, packed bool) native.Ref {
	const op = "ConstStructInContext"
	cd, ok := l.context(op, ctx)
	if !ok {
		return native.Null
	}
	fields := make([]native.Ref, len(values))
	for i, v := range values {
		vd, o, ok := l.value(op, v)
		if !ok {
			return native.Null
		}
		if o.ctx != ctx {
			l.fault(FaultMisuse, op, v, "value from another context")
			return native.Null
		}
		if !isUniqued(vd.kind) {
			l.fault(FaultMisuse, op, v, "field is not a constant")
			return native.Null
		}
		fields[i] = vd.ty
	}
	stKey := fmt.Sprintf("t:st:{%s}%t", refList(fields), packed)
	st := l.unique(ctx, cd, stKey, kindType, func() any {
		return &typeData{kind: native.TypeStruct, fields: fields, packed: packed}
	})
	if st == native.Null {
		return native.Null
	}
	key := fmt.Sprintf("cs:{%s}%t", refList(values), packed)
	return l.unique(ctx, cd, "v:"+key, kindValue, func() any {
		return &valueData{kind: native.ValueConstantStruct, ty: st, ops: append([]native.Ref(nil), values...)}
	})
}

// ConstStringInContext returns the uniqued constant byte array of data, with a
// trailing NUL unless dontNullTerminate is set.
func (l *Library) ConstStringInContext(ctx native.Ref, data []byte, dontNullTerminate bool) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newConstString(ctx, data, dontNullTerminate)
}

func (l *Library) newConstString(ctx native.Ref, data []byte, dontNullTerminate bool) native.Ref {
	const op = "ConstStringInContext"
	cd, ok := l.context(op, ctx)
	if !ok {
		return native.Null
	}
	raw := append([]byte(nil), data...)
	if !dontNullTerminate {
		raw = append(raw, 0)
	}
	i8 := l.unique(ctx, cd, "t:i8", kindType, func() any { return &typeData{kind: native.TypeInteger, width: 8} })
	if i8 == native.Null {
		return native.Null
	}
	arrKey := fmt.Sprintf("t:arr:%d x %d", len(raw), uintptr(i8))
	arr := l.unique(ctx, cd, arrKey, kindType, func() any {
		return &typeData{kind: native.TypeArray, elem: i8, count: uint64(len(raw))}
	})
	if arr == native.Null {
		return native.Null
	}
	return l.unique(ctx, cd, fmt.Sprintf("v:str:%q", raw), kindValue, func() any {
		return &valueData{kind: native.ValueConstantString, ty: arr, bytes: raw}
	})
}

// GetAsString returns the raw bytes of a constant string, including any
// terminator.
func (l *Library) GetAsString(v native.Ref) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.valueOf("GetAsString", v, native.ValueConstantString)
	if !ok {
		return nil
	}
	return append([]byte(nil), vd.bytes...)
}

// MDStringInContext returns the uniqued metadata string s.
func (l *Library) MDStringInContext(ctx native.Ref, s string) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newMDString(ctx, s)
}

func (l *Library) newMDString(ctx native.Ref, s string) native.Ref {
	const op = "MDStringInContext"
	cd, ok := l.context(op, ctx)
	if !ok {
		return native.Null
	}
	mdTy := l.unique(ctx, cd, "t:metadata", kindType, func() any { return &typeData{kind: native.TypeMetadata} })
	if mdTy == native.Null {
		return native.Null
	}
	return l.unique(ctx, cd, fmt.Sprintf("v:mds:%q", s), kindValue, func() any {
		return &valueData{kind: native.ValueMetadataString, ty: mdTy, str: s}
	})
}

// MDNodeInContext returns the uniqued metadata tuple of values.
func (l *Library) MDNodeInContext(ctx native.Ref, values []native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newMDNode(ctx, values)
}

func (l *Library) newMDNode(ctx native.Ref, values []native.Ref) native.Ref {
	const op = "MDNodeInContext"
	cd, ok := l.context(op, ctx)
	if !ok {
		return native.Null
	}
	for _, v := range values {
		vd, o, ok := l.value(op, v)
		if !ok {
			return native.Null
		}
		if o.ctx != ctx {
			l.fault(FaultMisuse, op, v, "value from another context")
			return native.Null
		}
		if !isUniqued(vd.kind) {
			l.fault(FaultMisuse, op, v, "operand is not a constant or metadata")
			return native.Null
		}
	}
	mdTy := l.unique(ctx, cd, "t:metadata", kindType, func() any { return &typeData{kind: native.TypeMetadata} })
	if mdTy == native.Null {
		return native.Null
	}
	return l.unique(ctx, cd, fmt.Sprintf("v:mdn:{%s}", refList(values)), kindValue, func() any {
		return &valueData{kind: native.ValueMetadataNode, ty: mdTy, ops: append([]native.Ref(nil), values...)}
	})
}

// GetMDString returns the contents of a metadata string.
func (l *Library) GetMDString(v native.Ref) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	vd, _, ok := l.valueOf("GetMDString", v, native.ValueMetadataString)
	if !ok {
		return ""
	}
	return vd.str
}

func (l *Library) attr(op string, ref native.Ref) (*attrData, bool) {
	o, ok := l.get(op, ref, kindAttribute)
	if !ok {
		return nil, false
	}
	return o.data.(*attrData), true
}

// CreateEnumAttribute returns the uniqued enum attribute kind=value.
func (l *Library) CreateEnumAttribute(ctx native.Ref, kind uint32, value uint64) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newEnumAttr(ctx, kind, value)
}

func (l *Library) newEnumAttr(ctx native.Ref, kind uint32, value uint64) native.Ref {
	cd, ok := l.context("CreateEnumAttribute", ctx)
	if !ok {
		return native.Null
	}
	if kind == 0 {
		l.fault(FaultMisuse, "CreateEnumAttribute", ctx, "attribute kind 0 is reserved")
		return native.Null
	}
	return l.unique(ctx, cd, fmt.Sprintf("a:e:%d:%d", kind, value), kindAttribute, func() any {
		return &attrData{enum: true, kind: kind, value: value}
	})
}

// CreateStringAttribute returns the uniqued string attribute key=value.
func (l *Library) CreateStringAttribute(ctx native.Ref, key, value string) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newStringAttr(ctx, key, value)
}

func (l *Library) newStringAttr(ctx native.Ref, key, value string) native.Ref {
	cd, ok := l.context("CreateStringAttribute", ctx)
	if !ok {
		return native.Null
	}
	return l.unique(ctx, cd, fmt.Sprintf("a:s:%q=%q", key, value), kindAttribute, func() any {
		return &attrData{key: key, val: value}
	})
}

// IsEnumAttribute reports whether attr is an enum attribute.
func (l *Library) IsEnumAttribute(attr native.Ref) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ad, ok := l.attr("IsEnumAttribute", attr)
	return ok && ad.enum
}

// GetEnumAttributeKind returns the kind of an enum attribute.
func (l *Library) GetEnumAttributeKind(attr native.Ref) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	ad, ok := l.attr("GetEnumAttributeKind", attr)
	if !ok {
		return 0
	}
	return ad.kind
}

// GetEnumAttributeValue returns the value of an enum attribute.
func (l *Library) GetEnumAttributeValue(attr native.Ref) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	ad, ok := l.attr("GetEnumAttributeValue", attr)
	if !ok {
		return 0
	}
	return ad.value
}

// GetStringAttributeKind returns the key of a string attribute.
func (l *Library) GetStringAttributeKind(attr native.Ref) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ad, ok := l.attr("GetStringAttributeKind", attr)
	if !ok {
		return ""
	}
	return ad.key
}

// GetStringAttributeValue returns the value of a string attribute.
func (l *Library) GetStringAttributeValue(attr native.Ref) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ad, ok := l.attr("GetStringAttributeValue", attr)
	if !ok {
		return ""
	}
	return ad.val
}

// isUniqued reports whether values of kind are owned by the context uniquing
// table rather than by a module.
func isUniqued(k native.ValueKind) bool {
	switch k {
	case native.ValueConstantInt, native.ValueConstantStruct, native.ValueConstantString,
		native.ValueMetadataString, native.ValueMetadataNode:
		return true
	}
	return false
}
