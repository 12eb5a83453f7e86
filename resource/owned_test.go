package resource

import (
	"errors"
	"testing"

	irerrors "github.com/wippyai/ir-runtime/errors"
)

func TestOwned_MoveTransfersRelease(t *testing.T) {
	var log releaseLog
	w := NewOwned(NewArena("buffer", log.fn("buffer")))
	if err := w.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}

	w2, err := w.Move()
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if !w.Moved() || w.Arena() != nil {
		t.Fatal("source still holds the arena")
	}
	if err := w.Check(); !errors.Is(err, irerrors.ErrUseAfterMove) {
		t.Fatalf("Check moved = %v", err)
	}
	if _, err := w.Move(); !errors.Is(err, irerrors.ErrUseAfterMove) {
		t.Fatalf("Move moved = %v", err)
	}
	if err := w.Consume(); !errors.Is(err, irerrors.ErrUseAfterMove) {
		t.Fatalf("Consume moved = %v", err)
	}

	// Releasing the moved-from wrapper is a no-op.
	if err := w.Release(); err != nil {
		t.Fatal(err)
	}
	if len(log.calls) != 0 {
		t.Fatalf("moved-from release freed: %v", log.calls)
	}

	if err := w2.Release(); err != nil {
		t.Fatal(err)
	}
	if err := w2.Release(); err != nil {
		t.Fatal(err)
	}
	if !log.equal("buffer") {
		t.Fatalf("calls = %v, want exactly one release", log.calls)
	}
	if err := w2.Check(); !errors.Is(err, irerrors.ErrStaleHandle) {
		t.Fatalf("Check released = %v", err)
	}
}

func TestOwned_Consume(t *testing.T) {
	var log releaseLog
	w := NewOwned(NewArena("buffer", log.fn("buffer")))
	if err := w.Consume(); err != nil {
		t.Fatal(err)
	}
	if err := w.Release(); err != nil {
		t.Fatal(err)
	}
	if len(log.calls) != 0 {
		t.Fatalf("consumed object released: %v", log.calls)
	}
	if err := w.Consume(); !errors.Is(err, irerrors.ErrStaleHandle) {
		t.Fatalf("second Consume = %v", err)
	}
}

func TestOwned_ChildInvalidatedByParent(t *testing.T) {
	var log releaseLog
	ctx := NewArena("context", log.fn("context"))
	mod, _ := ctx.NewChild("module", ReleaseExplicit, log.fn("module"))
	w := NewOwned(mod)
	if err := ctx.Dispose(); err != nil {
		t.Fatal(err)
	}
	if err := w.Check(); !errors.Is(err, irerrors.ErrStaleHandle) {
		t.Fatalf("Check = %v", err)
	}
	if err := w.Release(); err != nil {
		t.Fatal(err)
	}
	if !log.equal("context") {
		t.Fatalf("calls = %v", log.calls)
	}
}

func TestOwned_Nil(t *testing.T) {
	var w *Owned
	if err := w.Check(); !errors.Is(err, irerrors.ErrInvalidInput) {
		t.Fatalf("Check nil = %v", err)
	}
	if err := w.Release(); err != nil {
		t.Fatal(err)
	}
}
