package ir

import (
	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
)

// MetadataString returns the uniqued metadata string s.
func (c *Context) MetadataString(s string) (Value, error) {
	ref, err := c.intern("metadata string", internKey{kind: internMDString, s: s}, func() native.Ref {
		return c.lib.MDStringInContext(c.ref, s)
	})
	if err != nil {
		return Value{}, err
	}
	return c.constant(ref, native.ValueMetadataString), nil
}

// MetadataNode returns the uniqued node of vals. Elements must be constants
// or metadata of c.
func (c *Context) MetadataNode(vals ...AnyValue) (Value, error) {
	refs, err := c.constRefs(vals)
	if err != nil {
		return Value{}, err
	}
	ref, err := c.intern("metadata node", internKey{kind: internMDNode, s: refsKey(refs)}, func() native.Ref {
		return c.lib.MDNodeInContext(c.ref, refs)
	})
	if err != nil {
		return Value{}, err
	}
	return c.constant(ref, native.ValueMetadataNode), nil
}

// KindID returns the stable id of a metadata kind name. Native ids start at
// 1; a 0 means the native context is gone.
func (c *Context) KindID(name string) (uint32, error) {
	ref, err := c.intern("metadata kind", internKey{kind: internKindID, s: name}, func() native.Ref {
		return native.Ref(c.lib.GetMDKindIDInContext(c.ref, name))
	})
	if errors.Is(err, errors.ErrNativeAllocation) {
		return 0, errors.New(errors.PhaseIntern, errors.KindStaleHandle).
			Object("native context").
			Value(name).
			Detail("no metadata kind id").
			Build()
	}
	if err != nil {
		return 0, err
	}
	return uint32(ref), nil
}

// MetadataStringValue returns the contents of a metadata string.
func (v Value) MetadataStringValue() (string, error) {
	if err := v.checkKind(native.ValueMetadataString); err != nil {
		return "", err
	}
	return v.ctx.lib.GetMDString(v.ref), nil
}

// Elements returns the members of a metadata node.
func (v Value) Elements() ([]Value, error) {
	if err := v.checkKind(native.ValueMetadataNode); err != nil {
		return nil, err
	}
	lib := v.ctx.lib
	out := make([]Value, lib.GetNumOperands(v.ref))
	for i := range out {
		ref := lib.GetOperand(v.ref, i)
		out[i] = v.ctx.constant(ref, lib.GetValueKind(ref))
	}
	return out, nil
}
