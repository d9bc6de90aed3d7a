package report

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/weiihann/pqbench/harness"
	"github.com/weiihann/pqbench/stats"
	"github.com/weiihann/pqbench/workload"
)

// TimestampLayout names run directories.
const TimestampLayout = "2006-01-02_15-04-05"

// ErrPersist marks failures to create or write run artifacts.
var ErrPersist = errors.New("persist results")

var summaryHeader = []string{
	"Operation", "Metric", "Average", "Min", "Max", "Variance", "Sigma",
}

// RunDir is a write-once run output directory.
type RunDir struct {
	Path string
}

var _ harness.Output = (*RunDir)(nil)

// Path returns <root>/benchmarks/<family>/<algDir>/<timestamp>.
func Path(root string, family workload.Family, algDir string, ts time.Time) string {
	return filepath.Join(
		root, "benchmarks", string(family), algDir, ts.Format(TimestampLayout),
	)
}

// MaxRunsPerSecond bounds how many runs of one algorithm may share a
// timestamp before Create gives up.
const MaxRunsPerSecond = 100

// Create makes the run directory. Existing directories are never reused:
// when the timestamped directory already exists, "_2", "_3", ... suffixes
// are tried instead.
func Create(
	root string,
	family workload.Family,
	algDir string,
	ts time.Time,
) (*RunDir, error) {
	base := Path(root, family, algDir, ts)

	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w",
			ErrPersist, filepath.Dir(base), err)
	}

	path := base
	for n := 2; ; n++ {
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return &RunDir{Path: path}, nil
		}

		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: create run dir: %w", ErrPersist, err)
		}

		if n > MaxRunsPerSecond {
			return nil, fmt.Errorf("%w: %d runs already exist at %s",
				ErrPersist, MaxRunsPerSecond, base)
		}

		path = fmt.Sprintf("%s_%d", base, n)
	}
}

// Discard removes the run directory and everything in it.
func (d *RunDir) Discard() error {
	if err := os.RemoveAll(d.Path); err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrPersist, d.Path, err)
	}

	return nil
}

// Commit writes metadata.txt, the raw series files and summary.csv, in
// that order. Each file is complete before the next is started. On
// failure the directory is removed.
func (d *RunDir) Commit(res *harness.Result) (err error) {
	defer func() {
		if err == nil {
			return
		}

		err = fmt.Errorf("%w: %w", ErrPersist, err)
		if rmErr := os.RemoveAll(d.Path); rmErr != nil {
			err = errors.Join(err, rmErr)
		}
	}()

	if err := checkComplete(res); err != nil {
		return err
	}

	if err := d.writeFile("metadata.txt", func(w io.Writer) error {
		return writeMetadata(w, res)
	}); err != nil {
		return err
	}

	for _, s := range res.Series {
		name := fmt.Sprintf("raw_%s_%s.csv", s.Phase, stats.MetricMicros)
		if err := d.writeFile(name, func(w io.Writer) error {
			for _, v := range s.Micros {
				if _, err := fmt.Fprintf(w, "%.2f\n", v); err != nil {
					return err
				}
			}

			return nil
		}); err != nil {
			return err
		}

		if !res.HasCycles {
			continue
		}

		name = fmt.Sprintf("raw_%s_%s.csv", s.Phase, stats.MetricCycles)
		if err := d.writeFile(name, func(w io.Writer) error {
			for _, v := range s.Cycles {
				if _, err := fmt.Fprintf(w, "%d\n", v); err != nil {
					return err
				}
			}

			return nil
		}); err != nil {
			return err
		}
	}

	return d.writeFile("summary.csv", func(w io.Writer) error {
		return writeSummary(w, res.Summary)
	})
}

// writeFile fills a temporary file and renames it into place, so a name
// in the run directory always refers to a complete file.
func (d *RunDir) writeFile(name string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(d.Path, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)

	if err := fill(bw); err != nil {
		tmp.Close()

		return fmt.Errorf("write %s: %w", name, err)
	}

	if err := bw.Flush(); err != nil {
		tmp.Close()

		return fmt.Errorf("flush %s: %w", name, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(d.Path, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}

	return nil
}

func checkComplete(res *harness.Result) error {
	if res.Repeat <= 0 {
		return fmt.Errorf("invalid repeat %d", res.Repeat)
	}

	for _, s := range res.Series {
		if len(s.Micros) != res.Repeat {
			return fmt.Errorf("incomplete run: %s has %d of %d time samples",
				s.Phase, len(s.Micros), res.Repeat)
		}

		if res.HasCycles && len(s.Cycles) != res.Repeat {
			return fmt.Errorf("incomplete run: %s has %d of %d cycle samples",
				s.Phase, len(s.Cycles), res.Repeat)
		}

		if !res.HasCycles && len(s.Cycles) != 0 {
			return fmt.Errorf("%s has cycle samples but the counter was off",
				s.Phase)
		}
	}

	return nil
}

func writeMetadata(w io.Writer, res *harness.Result) error {
	lines := make([][2]string, 0, len(res.Sizes)+9)
	lines = append(lines, [2]string{"Algorithm", res.Algorithm})

	for _, sz := range res.Sizes {
		lines = append(lines, [2]string{sz.Name, strconv.Itoa(sz.Bytes)})
	}

	lines = append(lines,
		[2]string{"Repeat", strconv.Itoa(res.Repeat)},
		[2]string{"Cycles", strconv.FormatBool(res.HasCycles)},
		[2]string{"RunID", res.RunID},
		[2]string{"Started", res.Started.Format(time.RFC3339)},
		[2]string{"CPU", res.Host.CPU},
		[2]string{"CPUVendor", res.Host.Vendor},
		[2]string{"CPUHz", strconv.FormatInt(res.Host.Hz, 10)},
		[2]string{"LogicalCores", strconv.Itoa(res.Host.LogicalCores)},
	)

	for _, kv := range lines {
		if _, err := fmt.Fprintf(w, "%s: %s\n", kv[0], kv[1]); err != nil {
			return err
		}
	}

	return nil
}

func writeSummary(w io.Writer, rows []stats.Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(summaryHeader); err != nil {
		return err
	}

	for _, row := range rows {
		verb := "%.2f"
		if row.Metric == stats.MetricCycles {
			verb = "%.0f"
		}

		s := row.Summary
		record := []string{row.Operation, row.Metric}
		for _, v := range []float64{s.Average, s.Min, s.Max, s.Variance, s.Sigma} {
			record = append(record, fmt.Sprintf(verb, v))
		}

		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}
