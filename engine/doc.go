// Package engine executes IR modules.
//
// An Engine takes ownership of an *ir.Module, emits it with the wasm32 code
// generator of the module's native library and runs the result on wazero.
//
// # Lifecycle
//
//	eng, err := engine.New(ctx, mod) // mod is moved into the engine
//	if err != nil {
//	    return err // mod is still owned by the caller
//	}
//	defer eng.Close(ctx)
//
//	sum, err := eng.CallNamed(ctx, "add", 2, 3)
//
// After New succeeds the caller's *ir.Module reports UseAfterMove; views of
// its functions stay valid and may be passed to Call. Close disposes the
// module exactly once.
//
// # Calling convention
//
// Parameters and results must be integers of at most 64 bits. Values cross
// the boundary as int64: arguments are truncated to the parameter width and
// results are sign extended from the return width, except i1 which is 0 or
// 1. Void functions return 0.
//
// # Thread Safety
//
// Engine is safe for concurrent use; calls are serialized because the owned
// module is not.
package engine
