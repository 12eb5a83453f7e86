// Package resource provides lifetime tracking for native objects.
//
// Native compiler libraries hand out raw handles whose ownership rules differ
// per object category: some objects are freed en masse by a parent, some
// must be freed individually, and some are borrowed references into storage
// owned by something else. This package models those rules with three
// pieces: arenas, owned wrappers and tags.
//
// # Arenas
//
// An Arena is an owning scope. Objects are registered with Track, nested
// scopes with NewChild:
//
//	ctx := resource.NewArena("context", disposeContext)
//	mod, _ := ctx.NewChild("module", resource.ReleaseExplicit, disposeModule)
//	b, _ := ctx.Track("builder", resource.ReleaseAlways, disposeBuilder)
//
// Release frees one entry exactly once. Dispose releases every live entry in
// reverse order of creation, then the arena's own object, and advances the
// generation. The ReleaseMode of an entry decides whether its release
// function also runs on teardown:
//
//	ReleaseExplicit  freed natively by the parent's disposer, only invalidated
//	ReleaseAlways    not freed by the parent, released on teardown as well
//
// # Tags
//
// Borrowed views carry the Tag of the arena that issued them. Arena.Check
// rejects tags from a disposed arena with a stale handle error before any
// native accessor runs. Handles are never reused, so a released entry stays
// detectable with Contains.
//
// # Owned wrappers
//
// Owned holds the release obligation of an object whose lifetime is
// independent of any context, such as a memory buffer. Move transfers the
// obligation and leaves the source failing with a use-after-move error;
// Release runs at most once; Consume hands the object to a native consumer.
//
// # Observers
//
// Register observers to follow lifecycle events:
//
//	arena.Subscribe(observer)
//	// observer.OnResourceEvent receives EventTracked, EventReleased,
//	// EventForgotten and EventDisposed.
//
// Arenas are not safe for concurrent use.
package resource
