// Package harness instruments crypto workloads with the clock and cycle
// counter probes and drives them through a fixed number of repetitions.
package harness

import (
	"time"

	"github.com/weiihann/pqbench/probe"
	"github.com/weiihann/pqbench/stats"
	"github.com/weiihann/pqbench/workload"
)

// Series holds one phase's samples, positionally aligned by repetition.
// Cycles is nil when the cycle counter was unavailable.
type Series struct {
	Phase  workload.Phase `json:"phase"`
	Micros []float64      `json:"-"`
	Cycles []uint64       `json:"-"`
}

// Result is a completed, fully sampled run.
type Result struct {
	RunID     string          `json:"run_id"`
	Algorithm string          `json:"algorithm"`
	Family    workload.Family `json:"family"`
	Sizes     []workload.Size `json:"sizes"`
	Repeat    int             `json:"repeat"`
	HasCycles bool            `json:"has_cycles"`
	Started   time.Time       `json:"started"`
	Elapsed   time.Duration   `json:"elapsed_ns"`
	Host      probe.HostInfo  `json:"host"`
	Series    []Series        `json:"series"`
	Summary   []stats.Row     `json:"summary"`
}
