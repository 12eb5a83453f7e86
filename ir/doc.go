// Package ir is a lifetime-checked wrapper over the native compiler library.
//
// Every native object is reached through one of three kinds of wrapper:
//
//   - Contexts and other arenas own groups of objects and free them in one
//     bulk teardown.
//   - Owned wrappers (Module, MemoryBuffer) carry a single release
//     obligation that moves between Go values.
//   - Views (types, values, blocks, instructions, attributes) borrow an
//     object from its owning arena and never release it.
//
// Views record the generation of their arena. Once the arena is torn down,
// every accessor on the view fails with a stale handle error instead of
// reaching the native library:
//
//	ctx, _ := ir.NewContext()
//	i32, _ := ctx.Int32Type()
//	ctx.Dispose()
//	_, err := i32.BitWidth() // errors.ErrStaleHandle
//
// Builders validate every operand against their context and the module of
// the insertion block before calling into the native library, so a rejected
// operation never leaves a partial change behind.
//
// # Ownership
//
//	Context                  ContextDispose
//	 ├─ Module               DisposeModule, freed with the context
//	 │   └─ Function         DeleteFunction, freed with the module
//	 │        ├─ Instruction EraseFromParent, freed with the function
//	 │        └─ detached    DeleteInstruction, deleted with the function
//	 └─ Builder              DisposeBuilder, disposed on context teardown
//	MemoryBuffer             DisposeMemoryBuffer, independent
//
// Types, constants, metadata and attributes are interned per context: asking
// twice for the same structure returns the same handle without a second
// native allocation.
package ir
