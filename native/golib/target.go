package golib

import (
	"fmt"
	"strings"

	"github.com/wippyai/ir-runtime/native"
)

// backend is a code generator for one architecture.
type backend interface {
	Name() string
	Description() string
	// Arch is the triple component the backend accepts.
	Arch() string
	Triple() string
	PointerSize() uint32
	Emit(m *progModule, ft native.FileType) ([]byte, error)
}

var backends []backend

// registerBackend is called from init functions of the code generators that
// are compiled in. The first registered backend provides the default triple.
func registerBackend(b backend) {
	backends = append(backends, b)
}

func registeredBackends() []backend {
	return backends
}

type targetData struct {
	backend backend
}

type machineData struct {
	target   native.Ref
	triple   string
	cpu      string
	features string
	level    native.OptLevel
}

func archOf(triple string) string {
	arch, _, _ := strings.Cut(triple, "-")
	return arch
}

func (l *Library) target(op string, t native.Ref) (*targetData, bool) {
	o, ok := l.get(op, t, kindTarget)
	if !ok {
		return nil, false
	}
	return o.data.(*targetData), true
}

func (l *Library) machine(op string, tm native.Ref) (*machineData, bool) {
	o, ok := l.get(op, tm, kindMachine)
	if !ok {
		return nil, false
	}
	return o.data.(*machineData), true
}

// GetDefaultTargetTriple returns the triple of the first compiled-in backend,
// or "" when none is.
func (l *Library) GetDefaultTargetTriple() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.targets) == 0 {
		return ""
	}
	return l.objs[l.targets[0]].data.(*targetData).backend.Triple()
}

// GetFirstTarget returns the first registered target, or Null.
func (l *Library) GetFirstTarget() native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.targets) == 0 {
		return native.Null
	}
	return l.targets[0]
}

// GetNextTarget returns the target after t, or Null.
func (l *Library) GetNextTarget(t native.Ref) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.target("GetNextTarget", t); !ok {
		return native.Null
	}
	return nextOf(l.targets, t)
}

// GetTargetFromTriple finds the target for triple by architecture.
func (l *Library) GetTargetFromTriple(triple string) (native.Ref, native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	arch := archOf(triple)
	for _, t := range l.targets {
		if l.objs[t].data.(*targetData).backend.Arch() == arch {
			return t, native.Null
		}
	}
	return native.Null, l.newMessage(fmt.Sprintf("No available targets are compatible with triple %q", triple))
}

// GetTargetName returns the short name of t.
func (l *Library) GetTargetName(t native.Ref) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, ok := l.target("GetTargetName", t)
	if !ok {
		return ""
	}
	return td.backend.Name()
}

// GetTargetDescription returns the description of t.
func (l *Library) GetTargetDescription(t native.Ref) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	td, ok := l.target("GetTargetDescription", t)
	if !ok {
		return ""
	}
	return td.backend.Description()
}

// CreateTargetMachine creates a machine generating code for triple.
func (l *Library) CreateTargetMachine(t native.Ref, triple, cpu, features string, level native.OptLevel) native.Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "CreateTargetMachine"
	td, ok := l.target(op, t)
	if !ok {
		return native.Null
	}
	if archOf(triple) != td.backend.Arch() {
		l.fault(FaultMisuse, op, t, fmt.Sprintf("triple %q does not match target %s", triple, td.backend.Name()))
		return native.Null
	}
	return l.alloc(kindMachine, native.Null, &machineData{
		target:   t,
		triple:   triple,
		cpu:      cpu,
		features: features,
		level:    level,
	})
}

// DisposeTargetMachine frees a target machine.
func (l *Library) DisposeTargetMachine(tm native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.release("DisposeTargetMachine", tm, kindMachine); !ok {
		return
	}
	l.free(tm)
}

// GetTargetMachineTriple returns the triple of tm.
func (l *Library) GetTargetMachineTriple(tm native.Ref) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	md, ok := l.machine("GetTargetMachineTriple", tm)
	if !ok {
		return ""
	}
	return md.triple
}

// GetTargetMachinePointerSize returns the pointer width of tm in bytes.
func (l *Library) GetTargetMachinePointerSize(tm native.Ref) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	md, ok := l.machine("GetTargetMachinePointerSize", tm)
	if !ok {
		return 0
	}
	return l.objs[md.target].data.(*targetData).backend.PointerSize()
}

// TargetMachineEmitToMemoryBuffer generates code for m into a new buffer.
func (l *Library) TargetMachineEmitToMemoryBuffer(tm native.Ref, m native.Ref, ft native.FileType) (native.Ref, native.Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	const op = "TargetMachineEmitToMemoryBuffer"
	md, ok := l.machine(op, tm)
	if !ok {
		return native.Null, native.Null
	}
	mod, _, ok := l.module(op, m)
	if !ok {
		return native.Null, native.Null
	}
	if msg := l.verify(mod); msg != "" {
		return native.Null, l.newMessage(msg)
	}
	prog, err := l.lower(mod)
	if err != nil {
		return native.Null, l.newMessage(err.Error())
	}
	b := l.objs[md.target].data.(*targetData).backend
	code, err := b.Emit(prog, ft)
	if err != nil {
		return native.Null, l.newMessage(fmt.Sprintf("%s: %v", b.Name(), err))
	}
	return l.newBuffer(code, mod.id+"."+b.Name()), native.Null
}
