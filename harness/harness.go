package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/google/uuid"
	"github.com/weiihann/pqbench/probe"
	"github.com/weiihann/pqbench/stats"
	"github.com/weiihann/pqbench/workload"
)

// ErrInterrupted is returned when the run's context ends between
// repetitions.
var ErrInterrupted = errors.New("run interrupted")

// RunConfig holds parameters for a single run.
type RunConfig struct {
	Repeat int
}

// Output receives a run's result. The destination must already exist when
// Run is called; Discard is called on every failed run.
type Output interface {
	Commit(res *Result) error
	Discard() error
}

// Runner measures workloads one repetition at a time on a single OS
// thread.
type Runner struct {
	Logger      *slog.Logger
	Clock       probe.Clock
	OpenCounter func() (probe.Counter, error)
	Host        func() probe.HostInfo
}

// NewRunner creates a Runner using the system clock and the hardware
// cycle counter.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		Logger:      logger,
		Clock:       probe.SystemClock{},
		OpenCounter: probe.OpenCounter,
		Host:        probe.Host,
	}
}

// Run measures every phase of w cfg.Repeat times and hands the result to
// out. Repetitions are strictly sequential, and phases within a
// repetition run in order because later phases consume earlier outputs.
// ctx is only checked between repetitions.
//
// On any error out.Discard is called and no result is returned. A panic
// raised by the workload is reported as workload.ErrCorrectness.
func (r *Runner) Run(
	ctx context.Context,
	w workload.Workload,
	cfg RunConfig,
	out Output,
) (res *Result, err error) {
	logger := r.Logger.With(
		slog.String("family", string(w.Family())),
		slog.String("algorithm", w.Name()),
	)

	// Position of the repetition in flight, for panic reports.
	var (
		rep   int
		phase workload.Phase
	)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("workload panicked",
				slog.Int("repetition", rep),
				slog.String("phase", string(phase)),
				slog.Any("panic", p),
			)

			res = nil
			err = fmt.Errorf("%w: repetition %d/%d %s: panic: %v",
				workload.ErrCorrectness, rep, cfg.Repeat, phase, p)
		}

		if err == nil {
			return
		}

		if dErr := out.Discard(); dErr != nil {
			err = errors.Join(err, fmt.Errorf("discard output: %w", dErr))
		}
	}()

	if cfg.Repeat <= 0 {
		return nil, fmt.Errorf("repeat must be positive, got %d", cfg.Repeat)
	}

	phases := w.Phases()
	ops := make([]func(), len(phases))

	for i, p := range phases {
		if ops[i] = w.Op(p); ops[i] == nil {
			return nil, fmt.Errorf("workload %s has no operation for %s",
				w.Name(), p)
		}
	}

	// The cycle counter follows the thread that opened it.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	counter, cErr := r.OpenCounter()
	if cErr != nil {
		logger.Warn("cycle counter unavailable, measuring time only",
			slog.String("error", cErr.Error()),
		)

		counter = nil
	} else {
		defer func() {
			if closeErr := counter.Close(); closeErr != nil {
				logger.Warn("failed to close cycle counter",
					slog.String("error", closeErr.Error()),
				)
			}
		}()
	}

	series := make([]Series, len(phases))
	for i, p := range phases {
		series[i] = Series{Phase: p, Micros: make([]float64, cfg.Repeat)}
		if counter != nil {
			series[i].Cycles = make([]uint64, cfg.Repeat)
		}
	}

	inv := &Invoker{Clock: r.Clock, Counter: counter}

	logger.InfoContext(ctx, "starting run",
		slog.Int("repeat", cfg.Repeat),
		slog.Bool("cycles", counter != nil),
	)

	started := r.Clock.Now()

	for i := 0; i < cfg.Repeat; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w after %d of %d repetitions: %w",
				ErrInterrupted, i, cfg.Repeat, ctxErr)
		}

		rep = i + 1

		for j, p := range phases {
			phase = p

			s, invErr := inv.Invoke(ops[j])
			if invErr != nil {
				return nil, fmt.Errorf("repetition %d/%d %s: %w",
					i+1, cfg.Repeat, p, invErr)
			}

			series[j].Micros[i] = s.Micros
			if counter != nil {
				series[j].Cycles[i] = s.Cycles
			}

			if checkErr := w.Check(p); checkErr != nil {
				logger.ErrorContext(ctx, "correctness check failed",
					slog.Int("repetition", i+1),
					slog.String("phase", string(p)),
					slog.String("error", checkErr.Error()),
				)

				return nil, fmt.Errorf("repetition %d/%d: %w",
					i+1, cfg.Repeat, checkErr)
			}
		}
	}

	elapsed := r.Clock.Now().Sub(started)

	rows, err := summarize(series)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	res = &Result{
		RunID:     uuid.NewString(),
		Algorithm: w.Name(),
		Family:    w.Family(),
		Sizes:     w.Sizes(),
		Repeat:    cfg.Repeat,
		HasCycles: counter != nil,
		Started:   started,
		Elapsed:   elapsed,
		Host:      r.Host(),
		Series:    series,
		Summary:   rows,
	}

	if err := out.Commit(res); err != nil {
		return nil, fmt.Errorf("commit result: %w", err)
	}

	logger.InfoContext(ctx, "run finished",
		slog.Duration("elapsed", elapsed),
	)

	return res, nil
}

// summarize produces one "us" row per phase, followed by a "cycles" row
// when cycles were sampled.
func summarize(series []Series) ([]stats.Row, error) {
	rows := make([]stats.Row, 0, 2*len(series))

	for _, s := range series {
		us, err := stats.Summarize(s.Micros)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", s.Phase, stats.MetricMicros, err)
		}

		rows = append(rows, stats.Row{
			Operation: string(s.Phase),
			Metric:    stats.MetricMicros,
			Summary:   us,
		})

		if s.Cycles == nil {
			continue
		}

		cyc, err := stats.Summarize(s.Cycles)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", s.Phase, stats.MetricCycles, err)
		}

		rows = append(rows, stats.Row{
			Operation: string(s.Phase),
			Metric:    stats.MetricCycles,
			Summary:   cyc,
		})
	}

	return rows, nil
}
