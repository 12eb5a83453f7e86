package ir

import (
	"sync"

	"github.com/wippyai/ir-runtime/native/golib"
)

var (
	globalMu  sync.Mutex
	globalCtx *Context
)

// WithGlobalContext runs fn with the process-wide context, creating it on
// first use. Calls are serialized, so fn must not retain the context or
// anything derived from it beyond the call.
func WithGlobalContext(fn func(*Context) error) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCtx == nil {
		c, err := NewContextWithConfig(&Config{Library: golib.Default(), Name: "global"})
		if err != nil {
			return err
		}
		c.global = true
		globalCtx = c
	}
	return fn(globalCtx)
}
