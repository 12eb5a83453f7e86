package ir

import (
	"strconv"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/native"
)

type internKind uint8

const (
	internVoid internKind = iota
	internInt
	internFloat
	internPointer
	internMetadataType
	internFunction
	internStruct
	internArray
	internConstInt
	internConstStruct
	internConstString
	internMDString
	internMDNode
	internEnumAttr
	internStringAttr
	internKindID
)

// internKey is the structural identity of an interned object. Composite
// keys encode their member handles in s.
type internKey struct {
	s    string
	ref  native.Ref
	n    uint64
	kind internKind
	flag bool
}

// InternStats reports interner usage of a context.
type InternStats struct {
	Entries int
	Hits    int
	Misses  int
}

type interner struct {
	entries map[internKey]native.Ref
	hits    int
	misses  int
}

func newInterner() *interner {
	return &interner{entries: make(map[internKey]native.Ref)}
}

// intern returns the canonical handle for key, calling create at most once
// per key. A Null result is not cached.
func (in *interner) intern(object string, key internKey, create func() native.Ref) (native.Ref, error) {
	if r, ok := in.entries[key]; ok {
		in.hits++
		return r, nil
	}
	in.misses++
	r := create()
	if r == native.Null {
		return native.Null, errors.NativeAllocation(errors.PhaseIntern, object)
	}
	in.entries[key] = r
	return r, nil
}

func (in *interner) stats() InternStats {
	return InternStats{Entries: len(in.entries), Hits: in.hits, Misses: in.misses}
}

func (in *interner) reset() {
	clear(in.entries)
}

func refsKey(refs []native.Ref) string {
	b := make([]byte, 0, len(refs)*4)
	for _, r := range refs {
		b = strconv.AppendUint(b, uint64(r), 36)
		b = append(b, ',')
	}
	return string(b)
}
