//go:build !linux

package probe

import (
	"fmt"
	"runtime"
)

// OpenCounter always fails outside linux: there is no portable user-space
// cycle counter with perf_event semantics.
func OpenCounter() (Counter, error) {
	return nil, fmt.Errorf("%w: unsupported on %s",
		ErrCounterUnavailable, runtime.GOOS)
}
