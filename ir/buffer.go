package ir

import (
	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/resource"
)

// MemoryBuffer is an owned native byte buffer. It is independent of any
// context and survives context disposal.
type MemoryBuffer struct {
	lib   native.Library
	owned *resource.Owned
	ref   native.Ref
}

// NewMemoryBuffer copies data into a new native buffer.
func NewMemoryBuffer(lib native.Library, data []byte, name string) (*MemoryBuffer, error) {
	if lib == nil {
		return nil, errors.InvalidInput(errors.PhaseCreate, "nil native library")
	}
	ref := lib.CreateMemoryBufferWithMemoryRangeCopy(data, name)
	if ref == native.Null {
		return nil, errors.NativeAllocation(errors.PhaseCreate, "memory buffer")
	}
	return newMemoryBuffer(lib, ref), nil
}

func newMemoryBuffer(lib native.Library, ref native.Ref) *MemoryBuffer {
	a := resource.NewArena("memory buffer", func() error {
		lib.DisposeMemoryBuffer(ref)
		return nil
	})
	return &MemoryBuffer{lib: lib, owned: resource.NewOwned(a), ref: ref}
}

func (b *MemoryBuffer) check() error {
	if b == nil {
		return errors.InvalidInput(errors.PhaseAccess, "nil memory buffer")
	}
	return b.owned.Check()
}

// Len returns the buffer size.
func (b *MemoryBuffer) Len() (int, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	return b.lib.GetBufferSize(b.ref), nil
}

// Bytes returns a copy of the buffer contents.
func (b *MemoryBuffer) Bytes() ([]byte, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return append([]byte(nil), b.lib.GetBufferStart(b.ref)...), nil
}

// View returns a borrowed view that stays valid across moves of the buffer
// until it is disposed or consumed.
func (b *MemoryBuffer) View() (BufferView, error) {
	if err := b.check(); err != nil {
		return BufferView{}, err
	}
	a := b.owned.Arena()
	return BufferView{lib: b.lib, scope: a, tag: a.Tag(), ref: b.ref}, nil
}

// Move transfers ownership to a new *MemoryBuffer.
func (b *MemoryBuffer) Move() (*MemoryBuffer, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	o, err := b.owned.Move()
	if err != nil {
		return nil, err
	}
	return &MemoryBuffer{lib: b.lib, owned: o, ref: b.ref}, nil
}

// Dispose frees the buffer. It is a no-op after a move, a previous Dispose
// or consumption by ParseBitcode.
func (b *MemoryBuffer) Dispose() error {
	if b == nil {
		return nil
	}
	return b.owned.Release()
}

// BufferView is a borrowed view of a MemoryBuffer.
type BufferView struct {
	lib   native.Library
	scope *resource.Arena
	tag   resource.Tag
	ref   native.Ref
}

// Bytes returns a copy of the buffer contents.
func (v BufferView) Bytes() ([]byte, error) {
	if err := v.scope.Check(v.tag); err != nil {
		return nil, err
	}
	return append([]byte(nil), v.lib.GetBufferStart(v.ref)...), nil
}

// Len returns the buffer size.
func (v BufferView) Len() (int, error) {
	if err := v.scope.Check(v.tag); err != nil {
		return 0, err
	}
	return v.lib.GetBufferSize(v.ref), nil
}
