//go:build llvm15

package native

// TargetVersion is the native library release selected at build time.
const TargetVersion = V15
