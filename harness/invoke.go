package harness

import (
	"errors"
	"fmt"

	"github.com/weiihann/pqbench/probe"
)

// Sample is one measurement of a single operation call.
type Sample struct {
	Micros    float64
	Cycles    uint64
	HasCycles bool
}

// Invoker brackets a single call with the clock and, when Counter is
// non-nil, the cycle counter.
type Invoker struct {
	Clock   probe.Clock
	Counter probe.Counter
}

// Invoke calls op exactly once and measures it. Counter errors are only
// inspected after the bracket is closed.
func (inv *Invoker) Invoke(op func()) (Sample, error) {
	if inv.Counter == nil {
		return inv.timed(op), nil
	}

	return inv.counted(op)
}

func (inv *Invoker) timed(op func()) Sample {
	start := inv.Clock.Now()
	op()
	end := inv.Clock.Now()

	return Sample{Micros: probe.Micros(end.Sub(start))}
}

func (inv *Invoker) counted(op func()) (Sample, error) {
	c := inv.Counter

	resetErr := c.Reset()
	startErr := c.Start()
	start := inv.Clock.Now()
	op()
	end := inv.Clock.Now()
	stopErr := c.Stop()
	cycles, readErr := c.Read()

	if err := errors.Join(resetErr, startErr, stopErr, readErr); err != nil {
		return Sample{}, fmt.Errorf("cycle counter: %w", err)
	}

	return Sample{
		Micros:    probe.Micros(end.Sub(start)),
		Cycles:    cycles,
		HasCycles: true,
	}, nil
}
