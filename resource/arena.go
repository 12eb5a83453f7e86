package resource

import (
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/ir-runtime/errors"
)

var nextArenaID atomic.Uint64

// Arena is an owning scope for native objects. It tracks the objects and
// nested arenas created under it and releases them in one bulk teardown,
// after which every Tag it issued is stale.
//
// An Arena is single-owner: callers serialize access to it and to all of its
// descendants.
type Arena struct {
	parent    *Arena
	release   ReleaseFunc
	live      *roaring.Bitmap
	entries   []entry
	observers []Observer
	name      string
	id        ArenaID
	gen       Generation
	self      Handle
	disposed  bool
}

type entry struct {
	release ReleaseFunc
	child   *Arena
	kind    string
	mode    ReleaseMode
}

// NewArena creates a root arena. release frees the arena's own native object
// and may be nil.
func NewArena(name string, release ReleaseFunc) *Arena {
	a := &Arena{
		name:    name,
		release: release,
		live:    roaring.New(),
		id:      ArenaID(nextArenaID.Add(1)),
	}
	Logger().Debug("arena created", zap.String("arena", name), zap.Uint64("id", uint64(a.id)))
	return a
}

// NewChild creates an arena nested in a. On a's teardown the child is torn
// down first; its release function runs only when mode is ReleaseAlways.
// Disposing the child directly always runs it.
func (a *Arena) NewChild(name string, mode ReleaseMode, release ReleaseFunc) (*Arena, error) {
	if err := a.ensureLive(errors.PhaseCreate); err != nil {
		return nil, err
	}
	c := NewArena(name, release)
	c.parent = a
	c.self = a.add(entry{kind: name, mode: mode, child: c})
	return c, nil
}

// Track registers a native object released by release and returns its handle.
func (a *Arena) Track(kind string, mode ReleaseMode, release ReleaseFunc) (Handle, error) {
	if err := a.ensureLive(errors.PhaseCreate); err != nil {
		return 0, err
	}
	return a.add(entry{kind: kind, mode: mode, release: release}), nil
}

func (a *Arena) add(e entry) Handle {
	a.entries = append(a.entries, e)
	h := Handle(len(a.entries))
	a.live.Add(uint32(h))
	a.notify(Event{Type: EventTracked, Handle: h, Kind: e.kind})
	return h
}

func (a *Arena) ensureLive(phase errors.Phase) error {
	if a == nil {
		return errors.InvalidInput(phase, "nil arena")
	}
	if a.disposed {
		return errors.StaleHandle(phase, a.name)
	}
	return nil
}

// Release releases one tracked object individually. Nested arenas are
// disposed. Releasing a handle that is not live fails with StaleHandle.
func (a *Arena) Release(h Handle) error {
	if err := a.ensureLive(errors.PhaseDispose); err != nil {
		return err
	}
	if !a.live.Contains(uint32(h)) {
		return errors.StaleHandle(errors.PhaseDispose, a.kindOf(h))
	}
	e := a.entries[h-1]
	if e.child != nil {
		return e.child.Dispose()
	}
	a.live.Remove(uint32(h))
	var err error
	if e.release != nil {
		err = e.release()
	}
	a.notify(Event{Type: EventReleased, Handle: h, Kind: e.kind, Native: e.release != nil})
	if err != nil {
		Logger().Warn("release failed", zap.String("arena", a.name), zap.String("kind", e.kind), zap.Error(err))
	}
	return err
}

// Forget stops tracking h without releasing it. Ownership of the native
// object passes to the caller.
func (a *Arena) Forget(h Handle) error {
	if err := a.ensureLive(errors.PhaseDispose); err != nil {
		return err
	}
	if !a.live.Contains(uint32(h)) {
		return errors.StaleHandle(errors.PhaseDispose, a.kindOf(h))
	}
	e := a.entries[h-1]
	if e.child != nil {
		return errors.InvalidInput(errors.PhaseDispose, "nested arenas cannot be forgotten")
	}
	a.live.Remove(uint32(h))
	a.notify(Event{Type: EventForgotten, Handle: h, Kind: e.kind})
	return nil
}

func (a *Arena) kindOf(h Handle) string {
	if h == 0 || int(h) > len(a.entries) {
		return "handle"
	}
	return a.entries[h-1].kind
}

// Contains reports whether h is live in a.
func (a *Arena) Contains(h Handle) bool {
	return a != nil && !a.disposed && a.live.Contains(uint32(h))
}

// Live returns the number of live tracked objects and nested arenas.
func (a *Arena) Live() int {
	return int(a.live.GetCardinality())
}

// Dispose tears the arena down: live entries are released in reverse order
// of creation, then the arena's own release function runs and its generation
// advances. A second Dispose is a no-op.
func (a *Arena) Dispose() error {
	if a == nil || a.disposed {
		return nil
	}
	a.detach()
	return a.teardown(true)
}

// Abandon invalidates the arena and its descendants like Dispose, except that
// the arena's own release function does not run. It is used when a native
// consumer takes ownership of the object.
func (a *Arena) Abandon() error {
	if a == nil || a.disposed {
		return nil
	}
	a.detach()
	return a.teardown(false)
}

func (a *Arena) detach() {
	p := a.parent
	if p == nil || p.disposed || !p.live.Contains(uint32(a.self)) {
		return
	}
	p.live.Remove(uint32(a.self))
	p.notify(Event{Type: EventReleased, Handle: a.self, Kind: a.name, Native: true})
}

func (a *Arena) teardown(native bool) error {
	var err error
	handles := a.live.ToArray()
	for i := len(handles) - 1; i >= 0; i-- {
		h := Handle(handles[i])
		e := a.entries[h-1]
		a.live.Remove(uint32(h))
		ran := false
		switch {
		case e.child != nil:
			ran = e.mode == ReleaseAlways
			err = multierr.Append(err, e.child.teardown(ran))
		case e.mode == ReleaseAlways && e.release != nil:
			ran = true
			err = multierr.Append(err, e.release())
		}
		a.notify(Event{Type: EventReleased, Handle: h, Kind: e.kind, Native: ran})
	}
	if native && a.release != nil {
		err = multierr.Append(err, a.release())
	}
	a.entries = nil
	a.gen++
	a.disposed = true
	a.notify(Event{Type: EventDisposed, Kind: a.name, Native: native})
	if err != nil {
		Logger().Warn("arena teardown failed", zap.String("arena", a.name), zap.Error(err))
	} else {
		Logger().Debug("arena disposed", zap.String("arena", a.name), zap.Uint64("id", uint64(a.id)), zap.Bool("native", native))
	}
	return err
}

// Disposed reports whether the arena was torn down.
func (a *Arena) Disposed() bool {
	return a.disposed
}

// ID returns the arena identity.
func (a *Arena) ID() ArenaID {
	return a.id
}

// Name returns the name given at creation.
func (a *Arena) Name() string {
	return a.name
}

// Generation returns the current generation.
func (a *Arena) Generation() Generation {
	return a.gen
}

// Tag returns the lifetime marker for views issued now.
func (a *Arena) Tag() Tag {
	return Tag{Arena: a.id, Gen: a.gen}
}

// Parent returns the enclosing arena, or nil for a root.
func (a *Arena) Parent() *Arena {
	return a.parent
}

// Root returns the outermost enclosing arena.
func (a *Arena) Root() *Arena {
	r := a
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Check validates a view's tag against the arena.
func (a *Arena) Check(tag Tag) error {
	if a == nil || tag.IsZero() {
		return errors.InvalidInput(errors.PhaseAccess, "zero value view")
	}
	if tag.Arena != a.id {
		return errors.CrossContext(errors.PhaseAccess, a.name)
	}
	if a.disposed || tag.Gen != a.gen {
		return errors.StaleHandle(errors.PhaseAccess, a.name)
	}
	return nil
}

// CheckSameRoot fails with a cross-context error unless a and other descend
// from the same root arena.
func (a *Arena) CheckSameRoot(other *Arena) error {
	if a == nil || other == nil {
		return errors.InvalidInput(errors.PhaseAccess, "nil arena")
	}
	if a.Root() != other.Root() {
		return errors.CrossContext(errors.PhaseAccess, other.name)
	}
	return nil
}

// Subscribe adds an observer for lifecycle events.
func (a *Arena) Subscribe(o Observer) {
	a.observers = append(a.observers, o)
}

// Unsubscribe removes an observer.
func (a *Arena) Unsubscribe(o Observer) {
	for i, obs := range a.observers {
		if obs == o {
			a.observers = append(a.observers[:i], a.observers[i+1:]...)
			return
		}
	}
}

func (a *Arena) notify(e Event) {
	e.Arena = a.id
	for _, o := range a.observers {
		o.OnResourceEvent(e)
	}
}
