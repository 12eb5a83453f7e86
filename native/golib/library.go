package golib

import (
	"fmt"
	"sync"

	"github.com/wippyai/ir-runtime/native"
)

// Config configures a Library.
type Config struct {
	// OnFault is invoked for every detected ABI misuse, with the library lock
	// held. It must not call back into the library.
	OnFault func(Fault)

	// MaxObjects caps the number of live native objects other than messages.
	// Constructors return native.Null once the cap is reached. 0 means
	// unlimited.
	MaxObjects int
}

// FaultKind categorizes an ABI misuse.
type FaultKind uint8

const (
	// FaultDoubleFree is a disposer called on an already freed object.
	FaultDoubleFree FaultKind = iota
	// FaultUseAfterFree is any other call on a freed object.
	FaultUseAfterFree
	// FaultBadHandle is a null, unknown or wrongly typed handle.
	FaultBadHandle
	// FaultMisuse is a call whose arguments violate the ABI contract.
	FaultMisuse
)

func (k FaultKind) String() string {
	switch k {
	case FaultDoubleFree:
		return "double_free"
	case FaultUseAfterFree:
		return "use_after_free"
	case FaultBadHandle:
		return "bad_handle"
	case FaultMisuse:
		return "misuse"
	default:
		return "unknown"
	}
}

// Fault records a call that would corrupt memory in a real native library.
type Fault struct {
	Op     string
	Detail string
	Ref    native.Ref
	Kind   FaultKind
}

func (f Fault) String() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s: %s on %#x: %s", f.Op, f.Kind, uintptr(f.Ref), f.Detail)
	}
	return fmt.Sprintf("%s: %s on %#x", f.Op, f.Kind, uintptr(f.Ref))
}

// Stats counts native object allocations.
type Stats struct {
	Allocated int
	Freed     int
	Live      int
}

// Library is an in-process implementation of native.Library. Handles index
// an object table and are never reused, so stale handles are always
// detectable.
//
// Library is safe for concurrent use; the objects it hands out follow the
// single-owner rules of the ABI.
type Library struct {
	cfg     Config
	objs    []*object
	faults  []Fault
	targets []native.Ref
	stats   Stats
	mu      sync.Mutex
}

var _ native.Library = (*Library)(nil)

type objKind uint8

const (
	kindContext objKind = iota
	kindType
	kindValue
	kindModule
	kindBuilder
	kindBuffer
	kindMessage
	kindTarget
	kindMachine
	kindAttribute
)

var kindNames = [...]string{"context", "type", "value", "module", "builder", "buffer", "message", "target", "machine", "attribute"}

func (k objKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

type object struct {
	data   any
	ctx    native.Ref
	kind   objKind
	alive  bool
	static bool
}

var (
	defaultOnce sync.Once
	defaultLib  *Library
)

// Default returns the process-wide library instance.
func Default() *Library {
	defaultOnce.Do(func() {
		defaultLib = New(nil)
	})
	return defaultLib
}

// New creates a library with its own object table.
func New(cfg *Config) *Library {
	l := &Library{objs: make([]*object, 1, 256)}
	if cfg != nil {
		l.cfg = *cfg
	}
	for _, b := range registeredBackends() {
		ref := l.allocStatic(kindTarget, &targetData{backend: b})
		l.targets = append(l.targets, ref)
	}
	return l
}

// Version reports the release this library implements.
func (l *Library) Version() native.Version {
	return native.TargetVersion
}

// Stats returns allocation counters.
func (l *Library) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Faults returns a copy of every recorded fault.
func (l *Library) Faults() []Fault {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Fault, len(l.faults))
	copy(out, l.faults)
	return out
}

// ResetFaults clears recorded faults.
func (l *Library) ResetFaults() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults = nil
}

// Alive reports whether ref names a live object. It is a diagnostic helper
// that a real native library cannot offer.
func (l *Library) Alive(ref native.Ref) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ref == native.Null || int(ref) >= len(l.objs) {
		return false
	}
	return l.objs[ref].alive
}

func (l *Library) fault(kind FaultKind, op string, ref native.Ref, detail string) {
	f := Fault{Kind: kind, Op: op, Ref: ref, Detail: detail}
	l.faults = append(l.faults, f)
	if l.cfg.OnFault != nil {
		l.cfg.OnFault(f)
	}
}

func (l *Library) alloc(kind objKind, ctx native.Ref, data any) native.Ref {
	// Messages report failures and are not subject to the cap.
	if kind != kindMessage && l.cfg.MaxObjects > 0 && l.stats.Live >= l.cfg.MaxObjects {
		return native.Null
	}
	l.objs = append(l.objs, &object{kind: kind, ctx: ctx, data: data, alive: true})
	l.stats.Allocated++
	l.stats.Live++
	return native.Ref(len(l.objs) - 1)
}

func (l *Library) allocStatic(kind objKind, data any) native.Ref {
	l.objs = append(l.objs, &object{kind: kind, data: data, alive: true, static: true})
	return native.Ref(len(l.objs) - 1)
}

func (l *Library) free(ref native.Ref) {
	o := l.objs[ref]
	o.alive = false
	o.data = nil
	l.stats.Freed++
	l.stats.Live--
}

// lookup resolves ref without kind checking.
func (l *Library) lookup(op string, ref native.Ref) (*object, bool) {
	if ref == native.Null || int(ref) >= len(l.objs) {
		l.fault(FaultBadHandle, op, ref, "unknown handle")
		return nil, false
	}
	o := l.objs[ref]
	if !o.alive {
		l.fault(FaultUseAfterFree, op, ref, o.kind.String())
		return nil, false
	}
	return o, true
}

func (l *Library) get(op string, ref native.Ref, kind objKind) (*object, bool) {
	o, ok := l.lookup(op, ref)
	if !ok {
		return nil, false
	}
	if o.kind != kind {
		l.fault(FaultBadHandle, op, ref, fmt.Sprintf("want %s, got %s", kind, o.kind))
		return nil, false
	}
	return o, true
}

// release validates a disposer call.
func (l *Library) release(op string, ref native.Ref, kind objKind) (*object, bool) {
	if ref != native.Null && int(ref) < len(l.objs) && !l.objs[ref].alive {
		l.fault(FaultDoubleFree, op, ref, l.objs[ref].kind.String())
		return nil, false
	}
	return l.get(op, ref, kind)
}

func (l *Library) context(op string, ref native.Ref) (*contextData, bool) {
	o, ok := l.get(op, ref, kindContext)
	if !ok {
		return nil, false
	}
	return o.data.(*contextData), true
}

type contextData struct {
	uniq    map[string]native.Ref
	mdKinds map[string]uint32
	label   native.Ref
}

// ContextCreate allocates a context.
func (l *Library) ContextCreate() native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alloc(kindContext, native.Null, &contextData{
		uniq:    make(map[string]native.Ref),
		mdKinds: make(map[string]uint32),
	})
}

// ContextDispose frees the context and every object created in it, including
// modules that were not disposed. Builders survive and must be disposed
// separately.
func (l *Library) ContextDispose(ctx native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.release("ContextDispose", ctx, kindContext); !ok {
		return
	}
	for i := len(l.objs) - 1; i > 0; i-- {
		o := l.objs[i]
		if !o.alive || o.ctx != ctx || o.kind == kindBuilder {
			continue
		}
		l.free(native.Ref(i))
	}
	l.free(ctx)
}

// GetMDKindIDInContext returns the stable id of a metadata kind name.
func (l *Library) GetMDKindIDInContext(ctx native.Ref, name string) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	cd, ok := l.context("GetMDKindIDInContext", ctx)
	if !ok {
		return 0
	}
	if id, ok := cd.mdKinds[name]; ok {
		return id
	}
	id := uint32(len(cd.mdKinds) + 1)
	cd.mdKinds[name] = id
	return id
}

// unique returns the uniqued object for key in ctx, creating it with mk.
func (l *Library) unique(ctx native.Ref, cd *contextData, key string, kind objKind, mk func() any) native.Ref {
	if ref, ok := cd.uniq[key]; ok {
		return ref
	}
	ref := l.alloc(kind, ctx, mk())
	if ref != native.Null {
		cd.uniq[key] = ref
	}
	return ref
}

func refList(refs []native.Ref) string {
	b := make([]byte, 0, len(refs)*4)
	for i, r := range refs {
		if i > 0 {
			b = append(b, ',')
		}
		b = fmt.Appendf(b, "%d", uintptr(r))
	}
	return string(b)
}
