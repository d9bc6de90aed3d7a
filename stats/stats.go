// Package stats reduces sample series to the summary statistics written to
// summary.csv.
package stats

import (
	"errors"
	"math"
)

// ErrEmpty is returned when summarizing a series with no samples.
var ErrEmpty = errors.New("empty sample series")

// Metric names used in summary rows and raw file names.
const (
	MetricMicros = "us"
	MetricCycles = "cycles"
)

// Summary holds the statistics of one sample series. Variance is the
// population variance (divisor n).
type Summary struct {
	Average  float64 `json:"average"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Variance float64 `json:"variance"`
	Sigma    float64 `json:"sigma"`
}

// Row is one (operation, metric) line of the summary table.
type Row struct {
	Operation string  `json:"operation"`
	Metric    string  `json:"metric"`
	Summary   Summary `json:"summary"`
}

// Summarize computes mean, bounds, population variance and standard
// deviation of xs.
func Summarize[T float64 | uint64](xs []T) (Summary, error) {
	if len(xs) == 0 {
		return Summary{}, ErrEmpty
	}

	var (
		sum    float64
		lo, hi = float64(xs[0]), float64(xs[0])
	)

	for _, x := range xs {
		v := float64(x)
		sum += v

		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	n := float64(len(xs))
	// Rounding in the running sum can push the mean just outside the
	// observed bounds; a constant series must summarize to exactly v.
	avg := math.Min(math.Max(sum/n, lo), hi)

	var sq float64
	for _, x := range xs {
		d := float64(x) - avg
		sq += d * d
	}

	variance := sq / n

	return Summary{
		Average:  avg,
		Min:      lo,
		Max:      hi,
		Variance: variance,
		Sigma:    math.Sqrt(variance),
	}, nil
}
