package resource

import (
	"errors"
	"testing"

	irerrors "github.com/wippyai/ir-runtime/errors"
)

// releaseLog records release calls in order.
type releaseLog struct {
	calls []string
}

func (l *releaseLog) fn(name string) ReleaseFunc {
	return func() error {
		l.calls = append(l.calls, name)
		return nil
	}
}

func (l *releaseLog) equal(want ...string) bool {
	if len(l.calls) != len(want) {
		return false
	}
	for i := range want {
		if l.calls[i] != want[i] {
			return false
		}
	}
	return true
}

type recorder struct {
	events []Event
}

func (r *recorder) OnResourceEvent(e Event) {
	r.events = append(r.events, e)
}

func TestArena_TrackRelease(t *testing.T) {
	var log releaseLog
	a := NewArena("context", log.fn("context"))

	h, err := a.Track("builder", ReleaseAlways, log.fn("builder"))
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}
	if !a.Contains(h) || a.Live() != 1 {
		t.Fatal("handle not live")
	}

	if err := a.Release(h); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if a.Contains(h) {
		t.Fatal("handle live after release")
	}
	err = a.Release(h)
	if !errors.Is(err, irerrors.ErrStaleHandle) {
		t.Fatalf("second Release = %v, want stale handle", err)
	}
	if !log.equal("builder") {
		t.Fatalf("calls = %v", log.calls)
	}

	h2, _ := a.Track("builder", ReleaseAlways, log.fn("builder2"))
	if h2 == h {
		t.Fatal("handle reused")
	}
}

func TestArena_DisposeOrder(t *testing.T) {
	var log releaseLog
	ctx := NewArena("context", log.fn("context"))
	mod, err := ctx.NewChild("module", ReleaseExplicit, log.fn("module"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mod.NewChild("function", ReleaseExplicit, log.fn("function")); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Track("builder", ReleaseAlways, log.fn("builder")); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Track("detached", ReleaseAlways, log.fn("detached")); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Track("attached", ReleaseExplicit, log.fn("attached")); err != nil {
		t.Fatal(err)
	}

	if err := ctx.Dispose(); err != nil {
		t.Fatalf("Dispose failed: %v", err)
	}
	// Explicit entries are freed by the context's own disposer.
	if !log.equal("detached", "builder", "context") {
		t.Fatalf("calls = %v", log.calls)
	}
	if !mod.Disposed() {
		t.Fatal("child not disposed")
	}

	if err := ctx.Dispose(); err != nil {
		t.Fatalf("second Dispose = %v, want nil", err)
	}
	if !log.equal("detached", "builder", "context") {
		t.Fatalf("second Dispose released again: %v", log.calls)
	}
}

func TestArena_ChildDisposeRunsRelease(t *testing.T) {
	var log releaseLog
	ctx := NewArena("context", log.fn("context"))
	mod, _ := ctx.NewChild("module", ReleaseExplicit, log.fn("module"))
	fn, _ := mod.NewChild("function", ReleaseExplicit, log.fn("function"))
	if _, err := fn.Track("detached", ReleaseAlways, log.fn("detached")); err != nil {
		t.Fatal(err)
	}

	if err := mod.Dispose(); err != nil {
		t.Fatal(err)
	}
	if !log.equal("detached", "module") {
		t.Fatalf("calls = %v", log.calls)
	}
	if ctx.Live() != 0 {
		t.Fatalf("parent still tracks %d entries", ctx.Live())
	}
	if !fn.Disposed() {
		t.Fatal("grandchild not disposed")
	}

	log.calls = nil
	if err := ctx.Dispose(); err != nil {
		t.Fatal(err)
	}
	if !log.equal("context") {
		t.Fatalf("calls = %v", log.calls)
	}
}

func TestArena_ReleaseChildHandle(t *testing.T) {
	var log releaseLog
	mod := NewArena("module", log.fn("module"))
	fn, _ := mod.NewChild("function", ReleaseExplicit, log.fn("function"))
	h := Handle(mod.Live())
	if err := mod.Release(h); err != nil {
		t.Fatal(err)
	}
	if !fn.Disposed() || !log.equal("function") {
		t.Fatalf("calls = %v", log.calls)
	}
}

func TestArena_Check(t *testing.T) {
	ctx := NewArena("context", nil)
	tag := ctx.Tag()
	if err := ctx.Check(tag); err != nil {
		t.Fatalf("Check live tag: %v", err)
	}
	if err := ctx.Check(Tag{}); !errors.Is(err, irerrors.ErrInvalidInput) {
		t.Fatalf("Check zero tag = %v", err)
	}
	other := NewArena("other", nil)
	if err := ctx.Check(other.Tag()); !errors.Is(err, irerrors.ErrCrossContext) {
		t.Fatalf("Check foreign tag = %v", err)
	}

	gen := ctx.Generation()
	if err := ctx.Dispose(); err != nil {
		t.Fatal(err)
	}
	if ctx.Generation() == gen {
		t.Fatal("generation did not advance")
	}
	if err := ctx.Check(tag); !errors.Is(err, irerrors.ErrStaleHandle) {
		t.Fatalf("Check stale tag = %v", err)
	}
	if _, err := ctx.Track("x", ReleaseAlways, nil); !errors.Is(err, irerrors.ErrStaleHandle) {
		t.Fatalf("Track after dispose = %v", err)
	}
	if _, err := ctx.NewChild("x", ReleaseExplicit, nil); !errors.Is(err, irerrors.ErrStaleHandle) {
		t.Fatalf("NewChild after dispose = %v", err)
	}
}

func TestArena_CheckSameRoot(t *testing.T) {
	c1 := NewArena("c1", nil)
	c2 := NewArena("c2", nil)
	m1, _ := c1.NewChild("m1", ReleaseExplicit, nil)
	f1, _ := m1.NewChild("f1", ReleaseExplicit, nil)

	if err := f1.CheckSameRoot(c1); err != nil {
		t.Fatalf("same root: %v", err)
	}
	if f1.Root() != c1 {
		t.Fatal("Root mismatch")
	}
	if err := f1.CheckSameRoot(c2); !errors.Is(err, irerrors.ErrCrossContext) {
		t.Fatalf("different roots = %v", err)
	}
}

func TestArena_Forget(t *testing.T) {
	var log releaseLog
	a := NewArena("function", nil)
	h, _ := a.Track("instruction", ReleaseAlways, log.fn("inst"))
	if err := a.Forget(h); err != nil {
		t.Fatal(err)
	}
	if err := a.Forget(h); !errors.Is(err, irerrors.ErrStaleHandle) {
		t.Fatalf("second Forget = %v", err)
	}
	if err := a.Dispose(); err != nil {
		t.Fatal(err)
	}
	if len(log.calls) != 0 {
		t.Fatalf("forgotten entry released: %v", log.calls)
	}

	m := NewArena("module", nil)
	if _, err := m.NewChild("function", ReleaseExplicit, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Forget(1); !errors.Is(err, irerrors.ErrInvalidInput) {
		t.Fatalf("Forget child = %v", err)
	}
}

func TestArena_TeardownErrorsCombined(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ctx := NewArena("context", func() error { return errB })
	if _, err := ctx.Track("a", ReleaseAlways, func() error { return errA }); err != nil {
		t.Fatal(err)
	}
	err := ctx.Dispose()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Dispose = %v, want both errors", err)
	}
	if !ctx.Disposed() {
		t.Fatal("arena not disposed after failed release")
	}
}

func TestArena_Abandon(t *testing.T) {
	var log releaseLog
	buf := NewArena("buffer", log.fn("buffer"))
	if err := buf.Abandon(); err != nil {
		t.Fatal(err)
	}
	if !buf.Disposed() || len(log.calls) != 0 {
		t.Fatalf("Abandon: disposed=%v calls=%v", buf.Disposed(), log.calls)
	}
	if err := buf.Dispose(); err != nil || len(log.calls) != 0 {
		t.Fatalf("Dispose after Abandon: %v %v", err, log.calls)
	}
}

func TestArena_Observers(t *testing.T) {
	rec := &recorder{}
	a := NewArena("context", nil)
	a.Subscribe(rec)
	h, _ := a.Track("builder", ReleaseAlways, nil)
	_ = a.Release(h)
	h2, _ := a.Track("inst", ReleaseAlways, nil)
	_ = a.Forget(h2)
	_ = a.Dispose()

	want := []EventType{EventTracked, EventReleased, EventTracked, EventForgotten, EventDisposed}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v", rec.events)
	}
	for i, e := range rec.events {
		if e.Type != want[i] {
			t.Errorf("event %d = %s, want %s", i, e.Type, want[i])
		}
		if e.Arena != a.ID() {
			t.Errorf("event %d arena = %d", i, e.Arena)
		}
	}

	a2 := NewArena("other", nil)
	a2.Subscribe(rec)
	a2.Unsubscribe(rec)
	_, _ = a2.Track("x", ReleaseAlways, nil)
	if len(rec.events) != len(want) {
		t.Fatal("unsubscribed observer notified")
	}
}
