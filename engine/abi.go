package engine

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/ir-runtime/errors"
	"github.com/wippyai/ir-runtime/ir"
)

// MaxWidth is the widest integer passed to or returned from emitted code.
const MaxWidth = 64

// signature holds the integer widths of a callable function. A zero result
// width means void.
type signature struct {
	params []uint32
	result uint32
}

func signatureOf(fn ir.FunctionValue) (signature, error) {
	fnTy, err := fn.FunctionType()
	if err != nil {
		return signature{}, err
	}
	ret, err := fnTy.ReturnType()
	if err != nil {
		return signature{}, err
	}
	params, err := fnTy.ParamTypes()
	if err != nil {
		return signature{}, err
	}
	var sig signature
	if _, void := ret.(ir.VoidType); !void {
		if sig.result, err = width(ret); err != nil {
			return signature{}, err
		}
	}
	sig.params = make([]uint32, len(params))
	for i, p := range params {
		if sig.params[i], err = width(p); err != nil {
			return signature{}, err
		}
	}
	return sig, nil
}

func width(t ir.Type) (uint32, error) {
	it, ok := t.(ir.IntType)
	if !ok {
		return 0, errors.Unsupported(errors.PhaseExecute, "calls with "+t.String()+" values")
	}
	w, err := it.BitWidth()
	if err != nil {
		return 0, err
	}
	if w > MaxWidth {
		return 0, errors.Unsupported(errors.PhaseExecute, "calls with "+t.String()+" values")
	}
	return w, nil
}

// encode truncates v to width bits and encodes it as a wasm core value.
func encode(width uint32, v int64) uint64 {
	if width == 64 {
		return api.EncodeI64(v)
	}
	return api.EncodeI32(int32(truncate(width, v)))
}

// decode reads a wasm core value of an integer of width bits.
func decode(width uint32, raw uint64) int64 {
	if width == 64 {
		return int64(raw)
	}
	return truncate(width, int64(api.DecodeI32(raw)))
}

// truncate keeps the low width bits of v, sign extended, except for i1
// which is zero extended.
func truncate(width uint32, v int64) int64 {
	if width == 1 {
		return v & 1
	}
	shift := 64 - width
	return v << shift >> shift
}
