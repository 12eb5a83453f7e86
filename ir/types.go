package ir

import (
	"fmt"
	"strings"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/resource"
)

// Type is a borrowed view of a native type. Types are owned by their context
// and become stale when it is disposed.
type Type interface {
	Kind() native.TypeKind
	Context() *Context
	String() string
	view() typeView
}

type typeView struct {
	ctx  *Context
	ref  native.Ref
	tag  resource.Tag
	kind native.TypeKind
}

func (t typeView) Kind() native.TypeKind { return t.kind }
func (t typeView) Context() *Context     { return t.ctx }
func (t typeView) view() typeView        { return t }

// String describes the type, or reports it as stale.
func (t typeView) String() string {
	if err := t.check(); err != nil {
		return "<" + string(errors.KindOf(err)) + ">"
	}
	return describeType(t)
}

// IsZero reports whether the view was never initialized.
func (t typeView) IsZero() bool { return t.ctx == nil }

func (t typeView) check() error {
	if t.ctx == nil {
		return errors.InvalidInput(errors.PhaseAccess, "zero value type")
	}
	return t.ctx.arena.Check(t.tag)
}

func describeType(t typeView) string {
	lib := t.ctx.lib
	switch t.kind {
	case native.TypeVoid:
		return "void"
	case native.TypeInteger:
		return fmt.Sprintf("i%d", lib.GetIntTypeWidth(t.ref))
	case native.TypeFloat:
		switch lib.GetPrimitiveSizeInBits(t.ref) {
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
		if as := lib.GetPointerAddressSpace(t.ref); as != 0 {
			return fmt.Sprintf("ptr addrspace(%d)", as)
		}
		return "ptr"
	case native.TypeFunction:
		var b strings.Builder
		b.WriteString(describeType(t.ctx.typeView(lib.GetReturnType(t.ref))))
		b.WriteString(" (")
		params := lib.GetParamTypes(t.ref)
		for i, p := range params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(describeType(t.ctx.typeView(p)))
		}
		if lib.IsFunctionVarArg(t.ref) {
			if len(params) > 0 {
				b.WriteString(", ")
			}
			b.WriteString("...")
		}
		b.WriteString(")")
		return b.String()
	case native.TypeStruct:
		if name := lib.GetStructName(t.ref); name != "" {
			return "%" + name
		}
		var b strings.Builder
		packed := lib.IsPackedStruct(t.ref)
		if packed {
			b.WriteString("<")
		}
		b.WriteString("{ ")
		for i, f := range lib.GetStructElementTypes(t.ref) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(describeType(t.ctx.typeView(f)))
		}
		b.WriteString(" }")
		if packed {
			b.WriteString(">")
		}
		return b.String()
	case native.TypeArray:
		return fmt.Sprintf("[%d x %s]", lib.GetArrayLength(t.ref), describeType(t.ctx.typeView(lib.GetElementType(t.ref))))
	case native.TypeMetadata:
		return "metadata"
	case native.TypeLabel:
		return "label"
	}
	return "unknown"
}

// VoidType is the type of functions returning nothing.
type VoidType struct{ typeView }

// IntType is an integer type of arbitrary width.
type IntType struct{ typeView }

// FloatType is an IEEE floating point type.
type FloatType struct{ typeView }

// PointerType is an opaque pointer in an address space.
type PointerType struct{ typeView }

// MetadataType is the type of metadata values.
type MetadataType struct{ typeView }

// LabelType is the type of basic blocks.
type LabelType struct{ typeView }

// FunctionType is a function signature.
type FunctionType struct{ typeView }

// StructType is a literal or named structure.
type StructType struct{ typeView }

// ArrayType is a fixed-length array.
type ArrayType struct{ typeView }

func (c *Context) typeView(ref native.Ref) typeView {
	return typeView{ctx: c, ref: ref, tag: c.tag, kind: c.lib.GetTypeKind(ref)}
}

// wrapType returns the typed view of a handle obtained from c.
func (c *Context) wrapType(ref native.Ref) Type {
	t := c.typeView(ref)
	switch t.kind {
	case native.TypeVoid:
		return VoidType{t}
	case native.TypeInteger:
		return IntType{t}
	case native.TypeFloat:
		return FloatType{t}
	case native.TypePointer:
		return PointerType{t}
	case native.TypeFunction:
		return FunctionType{t}
	case native.TypeStruct:
		return StructType{t}
	case native.TypeArray:
		return ArrayType{t}
	case native.TypeMetadata:
		return MetadataType{t}
	default:
		return LabelType{t}
	}
}

func (c *Context) internType(key internKey, kind native.TypeKind, create func() native.Ref) (typeView, error) {
	ref, err := c.intern(kind.String()+" type", key, create)
	if err != nil {
		return typeView{}, err
	}
	return typeView{ctx: c, ref: ref, tag: c.tag, kind: kind}, nil
}

// typeRefs validates ts against c and returns their handles.
func (c *Context) typeRefs(phase errors.Phase, ts []Type) ([]native.Ref, error) {
	refs := make([]native.Ref, len(ts))
	for i, t := range ts {
		if t == nil {
			return nil, errors.InvalidInput(phase, fmt.Sprintf("type %d is nil", i))
		}
		v := t.view()
		if err := v.check(); err != nil {
			return nil, err
		}
		if err := c.owns(phase, v.ctx, fmt.Sprintf("type %d", i)); err != nil {
			return nil, err
		}
		refs[i] = v.ref
	}
	return refs, nil
}

// VoidType returns the void type.
func (c *Context) VoidType() (VoidType, error) {
	t, err := c.internType(internKey{kind: internVoid}, native.TypeVoid, func() native.Ref {
		return c.lib.VoidTypeInContext(c.ref)
	})
	return VoidType{t}, err
}

// MaxIntWidth is the widest supported integer type.
const MaxIntWidth = 1 << 23

// IntType returns the integer type of the given width.
func (c *Context) IntType(bits uint32) (IntType, error) {
	if bits == 0 || bits > MaxIntWidth {
		return IntType{}, errors.InvalidInput(errors.PhaseIntern, fmt.Sprintf("integer width %d out of range", bits))
	}
	t, err := c.internType(internKey{kind: internInt, n: uint64(bits)}, native.TypeInteger, func() native.Ref {
		return c.lib.IntTypeInContext(c.ref, bits)
	})
	return IntType{t}, err
}

// BoolType returns i1.
func (c *Context) BoolType() (IntType, error) { return c.IntType(1) }

// Int8Type returns i8.
func (c *Context) Int8Type() (IntType, error) { return c.IntType(8) }

// Int16Type returns i16.
func (c *Context) Int16Type() (IntType, error) { return c.IntType(16) }

// Int32Type returns i32.
func (c *Context) Int32Type() (IntType, error) { return c.IntType(32) }

// Int64Type returns i64.
func (c *Context) Int64Type() (IntType, error) { return c.IntType(64) }

// Int128Type returns i128.
func (c *Context) Int128Type() (IntType, error) { return c.IntType(128) }

func (c *Context) floatType(bits uint32) (FloatType, error) {
	t, err := c.internType(internKey{kind: internFloat, n: uint64(bits)}, native.TypeFloat, func() native.Ref {
		return c.lib.FloatTypeInContext(c.ref, bits)
	})
	return FloatType{t}, err
}

// Float16Type returns half.
func (c *Context) Float16Type() (FloatType, error) { return c.floatType(16) }

// Float32Type returns float.
func (c *Context) Float32Type() (FloatType, error) { return c.floatType(32) }

// Float64Type returns double.
func (c *Context) Float64Type() (FloatType, error) { return c.floatType(64) }

// Float128Type returns fp128.
func (c *Context) Float128Type() (FloatType, error) { return c.floatType(128) }

// PointerType returns the opaque pointer type of an address space. It
// requires a native library version with opaque pointers.
func (c *Context) PointerType(addrSpace uint32) (PointerType, error) {
	if !native.Supports(native.FeatureOpaquePointers) {
		return PointerType{}, errors.Unsupported(errors.PhaseIntern, "opaque pointers on "+native.TargetVersion.String())
	}
	t, err := c.internType(internKey{kind: internPointer, n: uint64(addrSpace)}, native.TypePointer, func() native.Ref {
		return c.lib.PointerTypeInContext(c.ref, addrSpace)
	})
	return PointerType{t}, err
}

// MetadataType returns the metadata type.
func (c *Context) MetadataType() (MetadataType, error) {
	if !native.Supports(native.FeatureMetadataType) {
		return MetadataType{}, errors.Unsupported(errors.PhaseIntern, "metadata type on "+native.TargetVersion.String())
	}
	t, err := c.internType(internKey{kind: internMetadataType}, native.TypeMetadata, func() native.Ref {
		return c.lib.MetadataTypeInContext(c.ref)
	})
	return MetadataType{t}, err
}

// FunctionType returns the signature ret(params...).
func (c *Context) FunctionType(ret Type, params []Type, varArg bool) (FunctionType, error) {
	refs, err := c.typeRefs(errors.PhaseIntern, append([]Type{ret}, params...))
	if err != nil {
		return FunctionType{}, err
	}
	if k := ret.Kind(); k == native.TypeFunction || k == native.TypeLabel || k == native.TypeMetadata {
		return FunctionType{}, errors.InvalidInput(errors.PhaseIntern, "invalid return type "+ret.String())
	}
	for i, p := range params {
		if k := p.Kind(); k == native.TypeVoid || k == native.TypeFunction || k == native.TypeLabel {
			return FunctionType{}, errors.InvalidInput(errors.PhaseIntern, fmt.Sprintf("invalid type %s for parameter %d", p, i))
		}
	}
	key := internKey{kind: internFunction, ref: refs[0], s: refsKey(refs[1:]), flag: varArg}
	t, err := c.internType(key, native.TypeFunction, func() native.Ref {
		return c.lib.FunctionType(refs[0], refs[1:], varArg)
	})
	return FunctionType{t}, err
}

// StructType returns the literal structure of fields.
func (c *Context) StructType(fields []Type, packed bool) (StructType, error) {
	refs, err := c.typeRefs(errors.PhaseIntern, fields)
	if err != nil {
		return StructType{}, err
	}
	t, err := c.internType(internKey{kind: internStruct, s: refsKey(refs), flag: packed}, native.TypeStruct, func() native.Ref {
		return c.lib.StructTypeInContext(c.ref, refs, packed)
	})
	return StructType{t}, err
}

// OpaqueStructType creates a new named structure without a body. Named
// structures are distinct even when their names are equal.
func (c *Context) OpaqueStructType(name string) (StructType, error) {
	if err := c.check(errors.PhaseCreate); err != nil {
		return StructType{}, err
	}
	ref := c.lib.StructCreateNamed(c.ref, name)
	if ref == native.Null {
		return StructType{}, errors.NativeAllocation(errors.PhaseCreate, "struct type")
	}
	return StructType{typeView{ctx: c, ref: ref, tag: c.tag, kind: native.TypeStruct}}, nil
}

// ArrayType returns the array of count elements of elem.
func (c *Context) ArrayType(elem Type, count uint64) (ArrayType, error) {
	refs, err := c.typeRefs(errors.PhaseIntern, []Type{elem})
	if err != nil {
		return ArrayType{}, err
	}
	t, err := c.internType(internKey{kind: internArray, ref: refs[0], n: count}, native.TypeArray, func() native.Ref {
		return c.lib.ArrayType(refs[0], count)
	})
	return ArrayType{t}, err
}

// BitWidth returns the width of the integer type.
func (t IntType) BitWidth() (uint32, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	return t.ctx.lib.GetIntTypeWidth(t.ref), nil
}

// BitWidth returns the width of the float type.
func (t FloatType) BitWidth() (uint32, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	return t.ctx.lib.GetPrimitiveSizeInBits(t.ref), nil
}

// AddressSpace returns the address space of the pointer type.
func (t PointerType) AddressSpace() (uint32, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	return t.ctx.lib.GetPointerAddressSpace(t.ref), nil
}

// ReturnType returns the result type of the signature.
func (t FunctionType) ReturnType() (Type, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return t.ctx.wrapType(t.ctx.lib.GetReturnType(t.ref)), nil
}

// ParamTypes returns the parameter types of the signature.
func (t FunctionType) ParamTypes() ([]Type, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	refs := t.ctx.lib.GetParamTypes(t.ref)
	out := make([]Type, len(refs))
	for i, r := range refs {
		out[i] = t.ctx.wrapType(r)
	}
	return out, nil
}

// IsVarArg reports whether the signature accepts extra arguments.
func (t FunctionType) IsVarArg() (bool, error) {
	if err := t.check(); err != nil {
		return false, err
	}
	return t.ctx.lib.IsFunctionVarArg(t.ref), nil
}

// Name returns the name of a named structure, or "" for a literal one.
func (t StructType) Name() (string, error) {
	if err := t.check(); err != nil {
		return "", err
	}
	return t.ctx.lib.GetStructName(t.ref), nil
}

// Fields returns the element types.
func (t StructType) Fields() ([]Type, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	refs := t.ctx.lib.GetStructElementTypes(t.ref)
	out := make([]Type, len(refs))
	for i, r := range refs {
		out[i] = t.ctx.wrapType(r)
	}
	return out, nil
}

// IsPacked reports whether the structure has no padding.
func (t StructType) IsPacked() (bool, error) {
	if err := t.check(); err != nil {
		return false, err
	}
	return t.ctx.lib.IsPackedStruct(t.ref), nil
}

// IsOpaque reports whether a named structure still lacks a body.
func (t StructType) IsOpaque() (bool, error) {
	if err := t.check(); err != nil {
		return false, err
	}
	return t.ctx.lib.IsOpaqueStruct(t.ref), nil
}

// SetBody gives an opaque named structure its fields. It fails once the
// body is set and for literal structures.
func (t StructType) SetBody(fields []Type, packed bool) error {
	if err := t.check(); err != nil {
		return err
	}
	if t.ctx.lib.GetStructName(t.ref) == "" {
		return errors.InvalidInput(errors.PhaseBuild, "literal struct body is immutable")
	}
	if !t.ctx.lib.IsOpaqueStruct(t.ref) {
		return errors.InvalidState(errors.PhaseBuild, "struct type", "body already set")
	}
	refs, err := t.ctx.typeRefs(errors.PhaseBuild, fields)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if r == t.ref {
			return errors.InvalidInput(errors.PhaseBuild, "struct cannot contain itself")
		}
	}
	t.ctx.lib.StructSetBody(t.ref, refs, packed)
	return nil
}

// ElementType returns the element type of the array.
func (t ArrayType) ElementType() (Type, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return t.ctx.wrapType(t.ctx.lib.GetElementType(t.ref)), nil
}

// Len returns the number of elements.
func (t ArrayType) Len() (uint64, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	return t.ctx.lib.GetArrayLength(t.ref), nil
}

// sameType reports whether a and b are the same interned type.
func sameType(a, b Type) bool {
	return a != nil && b != nil && a.view().ref == b.view().ref
}
