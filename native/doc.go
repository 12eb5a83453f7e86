// Package native declares the C-style ABI of the wrapped compiler library.
//
// The ABI is a flat set of create, dispose and query functions over raw
// handles (Ref). It performs no lifetime checking: a Ref is only meaningful
// while the native object it names is alive, and the rules for when that is
// differ per object category:
//
//	context         ContextDispose, frees everything created in it
//	module          DisposeModule or ContextDispose of its context
//	function        DeleteFunction or DisposeModule of its module
//	instruction     EraseFromParent while attached, DeleteInstruction when detached
//	builder         DisposeBuilder only
//	memory buffer   DisposeMemoryBuffer, or consumed by ParseBitcodeInContext
//	target machine  DisposeTargetMachine only
//	message         DisposeMessage only
//	type, constant  never freed individually
//
// The ir package encodes these rules in typed wrappers. Use Ref values only at
// the foreign-function edge.
//
// # Build configuration
//
// The native release is chosen at build time with one of the llvm14..llvm17
// build tags (default 18) and exposed as TargetVersion. Code generation
// backends of the reference library are compiled in by default and can be
// removed with the irruntime_nowasm and irruntime_nox86 tags.
package native
