// Package probe acquires the two measurement sources used by the harness:
// a monotonic wall clock and an optional hardware cycle counter.
package probe

import (
	"errors"
	"time"
)

// ErrCounterUnavailable is returned by OpenCounter when the platform or the
// process permissions do not allow user-space cycle counting.
var ErrCounterUnavailable = errors.New("cycle counter unavailable")

// Counter is a hardware cycle counter restricted to user-space execution.
//
// A Counter is used as a strict bracket: Reset and Start immediately before
// the measured call, Stop and Read immediately after. Brackets must not
// overlap; a Counter is not safe for concurrent or reentrant use.
type Counter interface {
	Reset() error
	Start() error
	Stop() error
	Read() (uint64, error)
	Close() error
}

// Clock yields monotonic timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now, whose monotonic component makes
// differences immune to wall-clock adjustments.
type SystemClock struct{}

// Now returns the current time with its monotonic reading.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Micros converts d to microseconds, keeping the sub-microsecond fraction.
func Micros(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e3
}
