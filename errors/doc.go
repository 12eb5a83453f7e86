// Package errors provides structured error types for the ir-runtime library.
//
// Errors are categorized by Phase (the operation that failed) and Kind (error
// category). The Error type carries the object category involved, an optional
// path naming the object (module, function, block) and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBuild, errors.KindTypeMismatch).
//		Path("demo", "add").
//		Object("instruction").
//		Detail("operands must share an integer type: i32 and i64").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.StaleHandle(errors.PhaseAccess, "module")
//	err := errors.CrossContext(errors.PhaseBuild, "operand 1")
//
// All errors implement the standard error interface and support errors.Is/As.
// The Err* sentinels match an error of the same kind in any phase:
//
//	if errors.Is(err, errors.ErrStaleHandle) { ... }
package errors
