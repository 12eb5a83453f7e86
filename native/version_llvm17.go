//go:build llvm17

package native

// TargetVersion is the native library release selected at build time.
const TargetVersion = V17
