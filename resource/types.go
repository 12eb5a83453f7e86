package resource

// Handle identifies an object tracked by an Arena. Handles are scoped to their
// arena and never reused. Handle 0 is reserved and always invalid.
type Handle uint32

// ArenaID is the process-unique identity of an arena.
type ArenaID uint64

// Generation counts teardowns of an arena.
type Generation uint64

// Tag is the lifetime marker carried by borrowed views. It is valid while the
// arena it names is alive and still at the same generation.
type Tag struct {
	Arena ArenaID
	Gen   Generation
}

// IsZero reports whether t was never issued by an arena.
func (t Tag) IsZero() bool {
	return t.Arena == 0
}

// ReleaseMode tells an arena what to do with a tracked object when the arena
// itself is torn down.
type ReleaseMode uint8

const (
	// ReleaseExplicit objects are freed natively by their parent's disposer.
	// The arena only invalidates them on teardown and calls their release
	// function when they are released individually.
	ReleaseExplicit ReleaseMode = iota
	// ReleaseAlways objects survive their parent's native disposer, so the
	// arena calls their release function on teardown too.
	ReleaseAlways
)

func (m ReleaseMode) String() string {
	switch m {
	case ReleaseExplicit:
		return "explicit"
	case ReleaseAlways:
		return "always"
	default:
		return "unknown"
	}
}

// ReleaseFunc frees one native object.
type ReleaseFunc func() error

// Event types for arena lifecycle notifications.
type EventType uint8

const (
	EventTracked EventType = iota
	EventReleased
	EventForgotten
	EventDisposed
)

func (t EventType) String() string {
	switch t {
	case EventTracked:
		return "tracked"
	case EventReleased:
		return "released"
	case EventForgotten:
		return "forgotten"
	case EventDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Event represents an arena lifecycle event. Native reports whether a release
// function ran.
type Event struct {
	Kind   string
	Arena  ArenaID
	Handle Handle
	Type   EventType
	Native bool
}

// Observer receives notifications about arena lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}
