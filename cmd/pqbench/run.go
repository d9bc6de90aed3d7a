package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/weiihann/pqbench/config"
	"github.com/weiihann/pqbench/harness"
	"github.com/weiihann/pqbench/report"
	"github.com/weiihann/pqbench/workload"
)

// runJobs measures each job in turn and prints a report of all of them.
// The first failing job stops the sequence.
func runJobs(
	ctx context.Context,
	logger *slog.Logger,
	flags *globalFlags,
	jobs []config.Job,
) error {
	results := make([]harness.Result, 0, len(jobs))

	for _, job := range jobs {
		res, err := runJob(ctx, logger, job)
		if err != nil {
			return fmt.Errorf("%s %s: %w", job.Family, job.Algorithm, err)
		}

		results = append(results, *res)
	}

	if flags.outputJSON {
		if err := report.GenerateJSON(os.Stdout, results); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}

		return nil
	}

	if err := report.Generate(os.Stdout, results); err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	return nil
}

func runJob(
	ctx context.Context,
	logger *slog.Logger,
	job config.Job,
) (*harness.Result, error) {
	w, err := workload.Open(job.Family, job.Algorithm, job.Run.MessageLen)
	if err != nil {
		return nil, err
	}

	algDir, err := workload.DirName(w.Name())
	if err != nil {
		return nil, err
	}

	attrs := []any{
		slog.String("family", string(w.Family())),
		slog.String("algorithm", w.Name()),
	}
	for _, sz := range w.Sizes() {
		attrs = append(attrs, slog.Int(sz.Name, sz.Bytes))
	}

	logger.InfoContext(ctx, "benchmarking", attrs...)

	dir, err := report.Create(job.Run.Output, w.Family(), algDir, time.Now())
	if err != nil {
		return nil, err
	}

	res, err := harness.NewRunner(logger).Run(
		ctx, w, harness.RunConfig{Repeat: job.Run.Repeat}, dir,
	)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "results saved", slog.String("path", dir.Path))

	return res, nil
}
