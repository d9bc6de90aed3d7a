// Package main provides the CLI entry point for pqbench, which measures
// key-encapsulation and signature primitives and stores raw samples and
// summary statistics per run.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weiihann/pqbench/config"
	"github.com/weiihann/pqbench/harness"
	"github.com/weiihann/pqbench/report"
	"github.com/weiihann/pqbench/workload"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)

	root := newRootCmd(logger, level)
	err := root.ExecuteContext(ctx)

	stop()

	if err != nil {
		logger.Error(failureMessage(err), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// failureMessage names the error class for the operator.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, config.ErrMessageLen):
		return "invalid usage"
	case errors.Is(err, workload.ErrUnavailable):
		return "algorithm not available"
	case errors.Is(err, workload.ErrCorrectness):
		return "correctness violation, run discarded"
	case errors.Is(err, report.ErrPersist):
		return "failed to persist results"
	case errors.Is(err, harness.ErrInterrupted):
		return "run interrupted, run discarded"
	default:
		return "benchmark failed"
	}
}

type globalFlags struct {
	output     string
	outputJSON bool
	logLevel   string
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "pqbench",
		Short: "Cryptographic primitive benchmarking harness",
		Long: `pqbench times key generation, encapsulation/decapsulation and
signing/verification of cryptographic algorithms over many repetitions,
sampling the hardware cycle counter where available, and writes raw
samples and summary statistics to
<out>/benchmarks/<family>/<algorithm>/<timestamp>/.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return level.UnmarshalText([]byte(flags.logLevel))
		},
	}

	pflags := root.PersistentFlags()
	pflags.StringVar(&flags.output, "out", config.DefaultOutput,
		"Root directory for benchmark results")
	pflags.BoolVar(&flags.outputJSON, "json", false,
		"Output results as JSON instead of table")
	pflags.StringVar(&flags.logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	root.AddCommand(
		newFamilyCmd(logger, &flags, workload.KEM),
		newFamilyCmd(logger, &flags, workload.Signature),
		newPlanCmd(logger, &flags),
		newListCmd(),
	)

	return root
}

func newFamilyCmd(
	logger *slog.Logger,
	flags *globalFlags,
	family workload.Family,
) *cobra.Command {
	var messageLen int

	short := "Benchmark a key-encapsulation mechanism"
	if family == workload.Signature {
		short = "Benchmark a signature scheme"
	}

	cmd := &cobra.Command{
		Use:   string(family) + " <algorithm> [repeat]",
		Short: short,
		Long: short + `.

repeat defaults to 1000; a non-numeric or non-positive value also
selects the default.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if family == workload.Signature {
				if err := config.CheckMessageLen(messageLen); err != nil {
					return fmt.Errorf("--message-len: %w", err)
				}
			}

			run := config.Run{
				Repeat:     config.DefaultRepeat,
				MessageLen: messageLen,
				Output:     flags.output,
			}
			if len(args) > 1 {
				run.Repeat = config.ParseRepeat(args[1])
			}

			return runJobs(cmd.Context(), logger, flags, []config.Job{{
				Family:    family,
				Algorithm: args[0],
				Run:       run.Normalize(),
			}})
		},
	}

	if family == workload.Signature {
		cmd.Flags().IntVar(&messageLen, "message-len", config.DefaultMessageLen,
			"Length in bytes of the dummy message to sign")
	}

	return cmd
}

func newPlanCmd(logger *slog.Logger, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <file.yaml>",
		Short: "Run every workload listed in a YAML plan",
		Long: `Run every workload listed in a YAML plan, one after the other.
The plan's output field takes precedence over --out.

Example plan:

  repeat: 1000
  message_len: 32
  workloads:
    - family: kem
      algorithm: Kyber768
    - family: sig
      algorithm: Ed25519
      repeat: 5000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := config.LoadPlan(args[0])
			if err != nil {
				return err
			}

			if plan.Output == "" {
				plan.Output = flags.output
			}

			return runJobs(cmd.Context(), logger, flags, plan.Jobs())
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [kem|sig]",
		Short: "List algorithms offered by the crypto provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			families := []workload.Family{workload.KEM, workload.Signature}

			if len(args) == 1 {
				family, err := workload.ParseFamily(args[0])
				if err != nil {
					return err
				}

				families = []workload.Family{family}
			}

			out := cmd.OutOrStdout()
			for _, family := range families {
				for _, name := range workload.Known(family) {
					fmt.Fprintf(out, "%s\t%s\n", family, name)
				}
			}

			return nil
		},
	}
}
