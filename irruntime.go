package irruntime

import "go.uber.org/multierr"

// Disposer is implemented by every owned wrapper: contexts, modules,
// builders, memory buffers and target machines. Dispose is idempotent and a
// no-op on a moved-from wrapper.
type Disposer interface {
	Dispose() error
}

// DisposeAll disposes each non-nil d in order and combines the failures.
func DisposeAll(ds ...Disposer) error {
	var err error
	for _, d := range ds {
		if d != nil {
			err = multierr.Append(err, d.Dispose())
		}
	}
	return err
}
