// Package report persists run results to their on-disk layout and formats
// them into comparison tables for the console.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/weiihann/pqbench/harness"
	"github.com/weiihann/pqbench/stats"
)

// Generate writes markdown tables of artifact sizes and per-phase timing
// for the given results.
func Generate(w io.Writer, results []harness.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	fmt.Fprintln(w, "## Benchmark Results")
	fmt.Fprintln(w)

	// Artifact sizes.
	fmt.Fprintln(w, "| Algorithm | Family | Artifact | Bytes | Size |")
	fmt.Fprintln(w, "|-----------|--------|----------|-------|------|")

	for _, r := range results {
		for _, sz := range r.Sizes {
			fmt.Fprintf(w, "| %s | %s | %s | %d | %s |\n",
				r.Algorithm,
				r.Family,
				strings.TrimSuffix(sz.Name, "Bytes"),
				sz.Bytes,
				formatBytes(uint64(sz.Bytes)),
			)
		}
	}

	fmt.Fprintln(w)

	// Timing rows.
	fmt.Fprintln(w, "| Algorithm | Operation | Metric | Average | Min "+
		"| Max | Sigma | Repeat |")
	fmt.Fprintln(w, "|-----------|-----------|--------|---------|-----"+
		"|-----|-------|--------|")

	for _, r := range results {
		for _, row := range r.Summary {
			s := row.Summary

			fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s | %d |\n",
				r.Algorithm,
				row.Operation,
				row.Metric,
				formatValue(row.Metric, s.Average),
				formatValue(row.Metric, s.Min),
				formatValue(row.Metric, s.Max),
				formatValue(row.Metric, s.Sigma),
				r.Repeat,
			)
		}
	}

	var noCycles []string
	for _, r := range results {
		if !r.HasCycles {
			noCycles = append(noCycles, r.Algorithm)
		}
	}

	if len(noCycles) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Cycle counter unavailable for: %s\n",
			strings.Join(noCycles, ", "))
	}

	return nil
}

// GenerateJSON writes results as JSON to w. Raw series are omitted.
func GenerateJSON(w io.Writer, results []harness.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(results)
}

func formatValue(metric string, v float64) string {
	if metric == stats.MetricCycles {
		return fmt.Sprintf("%.0f", v)
	}

	return formatMicros(v)
}

func formatMicros(us float64) string {
	switch {
	case us < 1000:
		return fmt.Sprintf("%.2fus", us)
	case us < 1e6:
		return fmt.Sprintf("%.2fms", us/1e3)
	default:
		return fmt.Sprintf("%.2fs", us/1e6)
	}
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(b)
	unit := 0

	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}

	formatted := fmt.Sprintf("%.1f", size)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")

	return formatted + " " + units[unit]
}
