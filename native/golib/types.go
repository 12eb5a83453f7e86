package golib

import (
	"fmt"

	"github.com/wippyai/ir-runtime/native"
)

type typeData struct {
	name      string
	params    []native.Ref
	fields    []native.Ref
	ret       native.Ref
	elem      native.Ref
	count     uint64
	width     uint32
	addrSpace uint32
	kind      native.TypeKind
	varArg    bool
	packed    bool
	opaque    bool
	named     bool
}

func (l *Library) typ(op string, ref native.Ref) (*typeData, *object, bool) {
	o, ok := l.get(op, ref, kindType)
	if !ok {
		return nil, nil, false
	}
	return o.data.(*typeData), o, true
}

// typesIn validates that every ref is a type of ctx.
func (l *Library) typesIn(op string, ctx native.Ref, refs []native.Ref) bool {
	for _, r := range refs {
		_, o, ok := l.typ(op, r)
		if !ok {
			return false
		}
		if o.ctx != ctx {
			l.fault(FaultMisuse, op, r, "type from another context")
			return false
		}
	}
	return true
}

func (l *Library) uniqueType(op string, ctx native.Ref, key string, td *typeData) native.Ref {
	cd, ok := l.context(op, ctx)
	if !ok {
		return native.Null
	}
	return l.unique(ctx, cd, "t:"+key, kindType, func() any { return td })
}

// VoidTypeInContext returns the void type.
func (l *Library) VoidTypeInContext(ctx native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newVoidType(ctx)
}

func (l *Library) newVoidType(ctx native.Ref) native.Ref {
	return l.uniqueType("VoidTypeInContext", ctx, "void", &typeData{kind: native.TypeVoid})
}

// IntTypeInContext returns the integer type of the given width.
func (l *Library) IntTypeInContext(ctx native.Ref, bits uint32) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newIntType(ctx, bits)
}

func (l *Library) newIntType(ctx native.Ref, bits uint32) native.Ref {
	if bits == 0 || bits > 1<<23 {
		l.fault(FaultMisuse, "IntTypeInContext", ctx, fmt.Sprintf("invalid width %d", bits))
		return native.Null
	}
	return l.uniqueType("IntTypeInContext", ctx, fmt.Sprintf("i%d", bits), &typeData{kind: native.TypeInteger, width: bits})
}

// FloatTypeInContext returns the IEEE float type of the given width.
func (l *Library) FloatTypeInContext(ctx native.Ref, bits uint32) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newFloatType(ctx, bits)
}

func (l *Library) newFloatType(ctx native.Ref, bits uint32) native.Ref {
	switch bits {
	case 16, 32, 64, 128:
	default:
		l.fault(FaultMisuse, "FloatTypeInContext", ctx, fmt.Sprintf("invalid width %d", bits))
		return native.Null
	}
	return l.uniqueType("FloatTypeInContext", ctx, fmt.Sprintf("f%d", bits), &typeData{kind: native.TypeFloat, width: bits})
}

// PointerTypeInContext returns the opaque pointer type of an address space.
func (l *Library) PointerTypeInContext(ctx native.Ref, addrSpace uint32) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newPointerType(ctx, addrSpace)
}

func (l *Library) newPointerType(ctx native.Ref, addrSpace uint32) native.Ref {
	return l.uniqueType("PointerTypeInContext", ctx, fmt.Sprintf("ptr%d", addrSpace), &typeData{kind: native.TypePointer, addrSpace: addrSpace})
}

// MetadataTypeInContext returns the metadata type.
func (l *Library) MetadataTypeInContext(ctx native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newMetadataType(ctx)
}

func (l *Library) newMetadataType(ctx native.Ref) native.Ref {
	return l.uniqueType("MetadataTypeInContext", ctx, "metadata", &typeData{kind: native.TypeMetadata})
}

func (l *Library) labelType(ctx native.Ref) native.Ref {
	return l.uniqueType("label", ctx, "label", &typeData{kind: native.TypeLabel})
}

// FunctionType returns the function type ret(params...).
func (l *Library) FunctionType(ret native.Ref, params []native.Ref, varArg bool) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newFunctionType(ret, params, varArg)
}

func (l *Library) newFunctionType(ret native.Ref, params []native.Ref, varArg bool) native.Ref {
	const op = "FunctionType"
	_, o, ok := l.typ(op, ret)
	if !ok || !l.typesIn(op, o.ctx, params) {
		return native.Null
	}
	key := fmt.Sprintf("fn:%d(%s)%t", uintptr(ret), refList(params), varArg)
	return l.uniqueType(op, o.ctx, key, &typeData{
		kind:   native.TypeFunction,
		ret:    ret,
		params: append([]native.Ref(nil), params...),
		varArg: varArg,
	})
}

// StructTypeInContext returns the literal struct type of fields.
func (l *Library) StructTypeInContext(ctx native.Ref, fields []native.Ref, packed bool) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newStructType(ctx, fields, packed)
}

func (l *Library) newStructType(ctx native.Ref, fields []native.Ref, packed bool) native.Ref {
	const op = "StructTypeInContext"
	if !l.typesIn(op, ctx, fields) {
		return native.Null
	}
	key := fmt.Sprintf("st:{%s}%t", refList(fields), packed)
	return l.uniqueType(op, ctx, key, &typeData{
		kind:   native.TypeStruct,
		fields: append([]native.Ref(nil), fields...),
		packed: packed,
	})
}

// StructCreateNamed creates a new opaque named struct. Named structs are
// never uniqued.
func (l *Library) StructCreateNamed(ctx native.Ref, name string) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newNamedStruct(ctx, name)
}

func (l *Library) newNamedStruct(ctx native.Ref, name string) native.Ref {
	if _, ok := l.context("StructCreateNamed", ctx); !ok {
		return native.Null
	}
	return l.alloc(kindType, ctx, &typeData{kind: native.TypeStruct, name: name, named: true, opaque: true})
}

// StructSetBody sets the fields of a named struct.
func (l *Library) StructSetBody(st native.Ref, fields []native.Ref, packed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setStructBody(st, fields, packed)
}

func (l *Library) setStructBody(st native.Ref, fields []native.Ref, packed bool) {
	const op = "StructSetBody"
	td, o, ok := l.typ(op, st)
	if !ok {
		return
	}
	if !td.named {
		l.fault(FaultMisuse, op, st, "literal struct body is immutable")
		return
	}
	if !l.typesIn(op, o.ctx, fields) {
		return
	}
	td.fields = append([]native.Ref(nil), fields...)
	td.packed = packed
	td.opaque = false
}

// ArrayType returns the array type [count x elem].
func (l *Library) ArrayType(elem native.Ref, count uint64) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newArrayType(elem, count)
}

func (l *Library) newArrayType(elem native.Ref, count uint64) native.Ref {
	const op = "ArrayType"
	_, o, ok := l.typ(op, elem)
	if !ok {
		return native.Null
	}
	key := fmt.Sprintf("arr:%d x %d", count, uintptr(elem))
	return l.uniqueType(op, o.ctx, key, &typeData{kind: native.TypeArray, elem: elem, count: count})
}

// GetTypeKind returns the kind of ty.
func (l *Library) GetTypeKind(ty native.Ref) native.TypeKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, _, ok := l.typ("GetTypeKind", ty)
	if !ok {
		return native.TypeVoid
	}
	return td.kind
}

// GetTypeContext returns the context owning ty.
func (l *Library) GetTypeContext(ty native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, o, ok := l.typ("GetTypeContext", ty)
	if !ok {
		return native.Null
	}
	return o.ctx
}

// GetIntTypeWidth returns the width of an integer type.
func (l *Library) GetIntTypeWidth(ty native.Ref) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, _, ok := l.typ("GetIntTypeWidth", ty)
	if !ok {
		return 0
	}
	if td.kind != native.TypeInteger {
		l.fault(FaultMisuse, "GetIntTypeWidth", ty, "not an integer type")
		return 0
	}
	return td.width
}

// GetPrimitiveSizeInBits returns the width of integer and float types and 0
// for everything else.
func (l *Library) GetPrimitiveSizeInBits(ty native.Ref) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, _, ok := l.typ("GetPrimitiveSizeInBits", ty)
	if !ok {
		return 0
	}
	return td.width
}

// GetPointerAddressSpace returns the address space of a pointer type.
func (l *Library) GetPointerAddressSpace(ty native.Ref) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, _, ok := l.typ("GetPointerAddressSpace", ty)
	if !ok {
		return 0
	}
	return td.addrSpace
}

func (l *Library) fnType(op string, ty native.Ref) (*typeData, bool) {
	td, _, ok := l.typ(op, ty)
	if !ok {
		return nil, false
	}
	if td.kind != native.TypeFunction {
		l.fault(FaultMisuse, op, ty, "not a function type")
		return nil, false
	}
	return td, true
}

// GetReturnType returns the return type of a function type.
func (l *Library) GetReturnType(fnTy native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, ok := l.fnType("GetReturnType", fnTy)
	if !ok {
		return native.Null
	}
	return td.ret
}

// GetParamTypes returns the parameter types of a function type.
func (l *Library) GetParamTypes(fnTy native.Ref) []native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, ok := l.fnType("GetParamTypes", fnTy)
	if !ok {
		return nil
	}
	return append([]native.Ref(nil), td.params...)
}

// IsFunctionVarArg reports whether a function type is variadic.
func (l *Library) IsFunctionVarArg(fnTy native.Ref) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, ok := l.fnType("IsFunctionVarArg", fnTy)
	return ok && td.varArg
}

func (l *Library) structType(op string, ty native.Ref) (*typeData, bool) {
	td, _, ok := l.typ(op, ty)
	if !ok {
		return nil, false
	}
	if td.kind != native.TypeStruct {
		l.fault(FaultMisuse, op, ty, "not a struct type")
		return nil, false
	}
	return td, true
}

// GetStructName returns the name of a named struct, or "" for literals.
func (l *Library) GetStructName(st native.Ref) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, ok := l.structType("GetStructName", st)
	if !ok {
		return ""
	}
	return td.name
}

// GetStructElementTypes returns the field types of a struct.
func (l *Library) GetStructElementTypes(st native.Ref) []native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, ok := l.structType("GetStructElementTypes", st)
	if !ok {
		return nil
	}
	return append([]native.Ref(nil), td.fields...)
}

// IsPackedStruct reports whether a struct is packed.
func (l *Library) IsPackedStruct(st native.Ref) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, ok := l.structType("IsPackedStruct", st)
	return ok && td.packed
}

// IsOpaqueStruct reports whether a named struct has no body yet.
func (l *Library) IsOpaqueStruct(st native.Ref) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, ok := l.structType("IsOpaqueStruct", st)
	return ok && td.opaque
}

// GetElementType returns the element type of an array type.
func (l *Library) GetElementType(arr native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, _, ok := l.typ("GetElementType", arr)
	if !ok {
		return native.Null
	}
	return td.elem
}

// GetArrayLength returns the element count of an array type.
func (l *Library) GetArrayLength(arr native.Ref) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, _, ok := l.typ("GetArrayLength", arr)
	if !ok {
		return 0
	}
	return td.count
}

// typeString renders a type in textual IR syntax. The lock must be held.
func (l *Library) typeString(ty native.Ref) string {
	if ty == native.Null || int(ty) >= len(l.objs) || !l.objs[ty].alive || l.objs[ty].kind != kindType {
		return "<bad type>"
	}
	td := l.objs[ty].data.(*typeData)
	switch td.kind {
	case native.TypeVoid:
		return "void"
	case native.TypeInteger:
		return fmt.Sprintf("i%d", td.width)
	case native.TypeFloat:
		switch td.width {
		case 16:
			return "half"
		case 32:
			return "float"
		case 64:
			return "double"
		default:
			return "fp128"
		}
	case native.TypePointer:
		if td.addrSpace == 0 {
			return "ptr"
		}
		return fmt.Sprintf("ptr addrspace(%d)", td.addrSpace)
	case native.TypeMetadata:
		return "metadata"
	case native.TypeLabel:
		return "label"
	case native.TypeArray:
		return fmt.Sprintf("[%d x %s]", td.count, l.typeString(td.elem))
	case native.TypeFunction:
		s := l.typeString(td.ret) + " ("
		for i, p := range td.params {
			if i > 0 {
				s += ", "
			}
			s += l.typeString(p)
		}
		if td.varArg {
			if len(td.params) > 0 {
				s += ", "
			}
			s += "..."
		}
		return s + ")"
	case native.TypeStruct:
		if td.named {
			return "%" + td.name
		}
		return l.structBody(td)
	}
	return "<unknown type>"
}

func (l *Library) structBody(td *typeData) string {
	s := "{ "
	if td.packed {
		s = "<{ "
	}
	for i, f := range td.fields {
		if i > 0 {
			s += ", "
		}
		s += l.typeString(f)
	}
	if td.packed {
		return s + " }>"
	}
	return s + " }"
}
