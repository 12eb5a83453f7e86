package ir

import (
	"strconv"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/resource"
)

// Attribute is a borrowed view of a function attribute. Attributes are
// uniqued per context.
type Attribute struct {
	ctx *Context
	ref native.Ref
	tag resource.Tag
}

// EnumAttribute returns the attribute with a numeric kind and value.
func (c *Context) EnumAttribute(kind uint32, value uint64) (Attribute, error) {
	key := internKey{kind: internEnumAttr, n: uint64(kind), s: strconv.FormatUint(value, 10)}
	ref, err := c.intern("enum attribute", key, func() native.Ref {
		return c.lib.CreateEnumAttribute(c.ref, kind, value)
	})
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{ctx: c, ref: ref, tag: c.tag}, nil
}

// StringAttribute returns the attribute key="value".
func (c *Context) StringAttribute(key, value string) (Attribute, error) {
	ik := internKey{kind: internStringAttr, s: strconv.Quote(key) + "=" + value}
	ref, err := c.intern("string attribute", ik, func() native.Ref {
		return c.lib.CreateStringAttribute(c.ref, key, value)
	})
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{ctx: c, ref: ref, tag: c.tag}, nil
}

func (a Attribute) check() error {
	if a.ctx == nil {
		return errors.InvalidInput(errors.PhaseAccess, "zero value attribute")
	}
	return a.ctx.arena.Check(a.tag)
}

// IsEnum reports whether the attribute is an enum attribute.
func (a Attribute) IsEnum() (bool, error) {
	if err := a.check(); err != nil {
		return false, err
	}
	return a.ctx.lib.IsEnumAttribute(a.ref), nil
}

// EnumKind returns the kind of an enum attribute.
func (a Attribute) EnumKind() (uint32, error) {
	if err := a.checkEnum(true); err != nil {
		return 0, err
	}
	return a.ctx.lib.GetEnumAttributeKind(a.ref), nil
}

// EnumValue returns the value of an enum attribute.
func (a Attribute) EnumValue() (uint64, error) {
	if err := a.checkEnum(true); err != nil {
		return 0, err
	}
	return a.ctx.lib.GetEnumAttributeValue(a.ref), nil
}

// StringKey returns the key of a string attribute.
func (a Attribute) StringKey() (string, error) {
	if err := a.checkEnum(false); err != nil {
		return "", err
	}
	return a.ctx.lib.GetStringAttributeKind(a.ref), nil
}

// StringValue returns the value of a string attribute.
func (a Attribute) StringValue() (string, error) {
	if err := a.checkEnum(false); err != nil {
		return "", err
	}
	return a.ctx.lib.GetStringAttributeValue(a.ref), nil
}

func (a Attribute) checkEnum(want bool) error {
	enum, err := a.IsEnum()
	if err != nil {
		return err
	}
	if enum != want {
		if want {
			return errors.TypeMismatch(errors.PhaseAccess, "enum attribute", "string attribute")
		}
		return errors.TypeMismatch(errors.PhaseAccess, "string attribute", "enum attribute")
	}
	return nil
}

// AddAttribute attaches a to the function.
func (f FunctionValue) AddAttribute(a Attribute) error {
	if err := f.check(); err != nil {
		return err
	}
	if err := a.check(); err != nil {
		return err
	}
	if err := f.ctx.owns(errors.PhaseBuild, a.ctx, "attribute"); err != nil {
		return err
	}
	f.ctx.lib.AddFunctionAttribute(f.ref, a.ref)
	return nil
}

// Attributes returns the attributes of the function in insertion order.
func (f FunctionValue) Attributes() ([]Attribute, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	refs := f.ctx.lib.GetFunctionAttributes(f.ref)
	out := make([]Attribute, len(refs))
	for i, r := range refs {
		out[i] = Attribute{ctx: f.ctx, ref: r, tag: f.ctx.tag}
	}
	return out, nil
}
