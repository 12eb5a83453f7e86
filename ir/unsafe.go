package ir

import (
	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
)

// The functions in this file expose raw native handles. A raw handle carries
// no lifetime checks: it must not be used after its owner is released.

// UnsafeRef returns the raw handle of a value.
func UnsafeRef(v AnyValue) native.Ref {
	return v.AsValue().ref
}

// UnsafeTypeRef returns the raw handle of a type.
func UnsafeTypeRef(t Type) native.Ref {
	return t.view().ref
}

// UnsafeContextRef returns the raw native context.
func UnsafeContextRef(c *Context) native.Ref {
	return c.ref
}

// UnsafeModuleRef returns the raw native module. The module keeps its
// release obligation.
func UnsafeModuleRef(m *Module) native.Ref {
	return m.ref
}

// UnsafeBufferRef returns the raw native buffer.
func UnsafeBufferRef(b *MemoryBuffer) native.Ref {
	return b.ref
}

// UnsafeWrapType wraps a raw type handle after checking that it belongs to c.
func (c *Context) UnsafeWrapType(ref native.Ref) (Type, error) {
	if err := c.check(errors.PhaseAccess); err != nil {
		return nil, err
	}
	if ref == native.Null {
		return nil, errors.InvalidInput(errors.PhaseAccess, "null type handle")
	}
	if c.lib.GetTypeContext(ref) != c.ref {
		return nil, errors.CrossContext(errors.PhaseAccess, "type")
	}
	return c.wrapType(ref), nil
}

// UnsafeWrapValue wraps a raw value handle after checking that it belongs to
// c. Functions, arguments, blocks and instructions must be in a module owned
// by c.
func (c *Context) UnsafeWrapValue(ref native.Ref) (Value, error) {
	if err := c.check(errors.PhaseAccess); err != nil {
		return Value{}, err
	}
	if ref == native.Null {
		return Value{}, errors.InvalidInput(errors.PhaseAccess, "null value handle")
	}
	if c.lib.GetTypeContext(c.lib.TypeOf(ref)) != c.ref {
		return Value{}, errors.CrossContext(errors.PhaseAccess, "value")
	}
	return c.wrapValue(ref)
}

// AdoptMemoryBuffer takes ownership of a raw native buffer.
func AdoptMemoryBuffer(lib native.Library, ref native.Ref) (*MemoryBuffer, error) {
	if lib == nil || ref == native.Null {
		return nil, errors.InvalidInput(errors.PhaseCreate, "invalid memory buffer handle")
	}
	return newMemoryBuffer(lib, ref), nil
}
