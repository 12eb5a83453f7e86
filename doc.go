// Package irruntime is an ownership and lifetime checking layer over a native
// compiler library that builds, verifies, emits and runs IR.
//
// Native compiler APIs hand out raw handles whose validity depends on an
// owner: a type is only valid while its context lives, an instruction while
// its function does. Misusing one crashes the process. This library wraps
// every handle in a view that carries the generation of its owning arena, so
// use after release is reported as an error instead.
//
// # Architecture Overview
//
//	irruntime/           Root package with the Disposer interface
//	├── native/          Native ABI: opaque handles, enums, Library interface
//	│   └── golib/       Pure Go reference implementation of the native ABI
//	├── resource/        Arenas, generation tags and owned wrappers
//	├── ir/              Contexts, modules, types, values, builders, interning
//	├── target/          Targets and target machines
//	├── engine/          Execution of emitted wasm32 code on wazero
//	├── errors/          Structured error types for debugging
//	└── cmd/irc/         Command line driver and interactive runner
//
// # Quick Start
//
//	ctx, err := ir.NewContext()
//	if err != nil {
//	    return err
//	}
//	defer ctx.Dispose()
//
//	mod, _ := ctx.NewModule("demo")
//	i32, _ := ctx.Int32Type()
//	fnTy, _ := ctx.FunctionType(i32, []ir.Type{i32, i32}, false)
//	fn, _ := mod.AddFunction("add", fnTy)
//	entry, _ := ctx.AppendBasicBlock(fn, "entry")
//
//	b, _ := ctx.NewBuilder()
//	defer b.Dispose()
//	b.PositionAtEnd(entry)
//	a, _ := fn.Param(0)
//	c, _ := fn.Param(1)
//	sum, _ := b.BuildAdd(a, c, "sum")
//	b.BuildReturn(sum)
//
//	eng, _ := engine.New(context.Background(), mod) // mod is moved
//	defer eng.Close(context.Background())
//	v, _ := eng.CallNamed(context.Background(), "add", 2, 3)
//
// # Ownership
//
// Contexts own types, constants, metadata, attributes, modules and builders.
// Modules own functions; functions own their blocks, parameters and
// instructions, including instructions removed or cloned from them. Releasing an owner makes every view below it
// fail with errors.ErrStaleHandle. Owned wrappers (*ir.Module,
// *ir.MemoryBuffer, *target.Machine) can be moved; the moved-from wrapper
// fails with errors.ErrUseAfterMove and the resource is released exactly
// once. Combining objects of different contexts fails with
// errors.ErrCrossContext before any native call.
//
// # Build Tags
//
// The reference library compiles in a wasm32 and an x86-64 code generator.
// Build with irruntime_nowasm or irruntime_nox86 to leave one out. The tags
// llvm14 through llvm17 select the modeled native release; opaque pointers
// need llvm15 or later.
package irruntime
