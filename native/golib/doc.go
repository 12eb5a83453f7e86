// Package golib is an in-process implementation of the native ABI.
//
// It stands in for the real compiler library in tests and in builds that do
// not link one. Objects live in a table indexed by native.Ref; handles are
// never reused, so every call on a freed, unknown or wrongly typed handle is
// detected and recorded as a Fault instead of corrupting memory:
//
//	lib := golib.New(nil)
//	ctx := lib.ContextCreate()
//	lib.ContextDispose(ctx)
//	lib.ContextDispose(ctx) // recorded as FaultDoubleFree
//	fmt.Println(lib.Faults())
//
// Code generation targets are registered by build tag: wasm32 (disabled by
// irruntime_nowasm) emits WebAssembly 1.0 modules and x86_64 (disabled by
// irruntime_nox86) emits System V machine code assembled with golang-asm.
package golib
