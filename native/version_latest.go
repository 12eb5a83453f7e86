//go:build !llvm14 && !llvm15 && !llvm16 && !llvm17

package native

// TargetVersion is the native library release selected at build time.
// Build with one of the llvm14..llvm17 tags to target an older release.
const TargetVersion = V18
