package resource

import (
	"github.com/wippyai/ir-runtime/errors"
)

// Owned carries the release obligation for one arena. Exactly one Owned
// holds the obligation at a time: Move transfers it and leaves the source
// unusable.
type Owned struct {
	arena    *Arena
	moved    bool
	released bool
}

// NewOwned takes the release obligation for arena.
func NewOwned(arena *Arena) *Owned {
	return &Owned{arena: arena}
}

// Check reports whether the wrapper may be used.
func (o *Owned) Check() error {
	switch {
	case o == nil:
		return errors.InvalidInput(errors.PhaseAccess, "nil owned wrapper")
	case o.moved:
		return errors.UseAfterMove(errors.PhaseAccess, o.kind())
	case o.released || o.arena == nil || o.arena.Disposed():
		return errors.StaleHandle(errors.PhaseAccess, o.kind())
	}
	return nil
}

func (o *Owned) kind() string {
	if o.arena != nil {
		return o.arena.Name()
	}
	return "owned"
}

// Arena returns the owned arena, or nil after a move.
func (o *Owned) Arena() *Arena {
	if o == nil || o.moved {
		return nil
	}
	return o.arena
}

// Moved reports whether ownership was transferred away.
func (o *Owned) Moved() bool {
	return o != nil && o.moved
}

// Move transfers the release obligation to a new wrapper.
func (o *Owned) Move() (*Owned, error) {
	if err := o.Check(); err != nil {
		return nil, err
	}
	n := &Owned{arena: o.arena}
	o.arena = nil
	o.moved = true
	return n, nil
}

// Release disposes the arena exactly once. It is a no-op when the wrapper was
// moved away or already released.
func (o *Owned) Release() error {
	if o == nil || o.moved || o.released {
		return nil
	}
	o.released = true
	return o.arena.Dispose()
}

// Consume hands the object to a native consumer that frees it. The arena is
// invalidated without running its release function.
func (o *Owned) Consume() error {
	if err := o.Check(); err != nil {
		return err
	}
	o.released = true
	return o.arena.Abandon()
}
