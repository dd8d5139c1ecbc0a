package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/stagesync/internal/engine"
	"github.com/roach88/stagesync/internal/store"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database    string
	Config      string
	Workers     int
	MetricsFile string

	// RunIDs overrides the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <batch.yaml>",
		Short: "Apply a task batch to the target store",
		Long: `Apply a batch of logged tasks to a target SQLite store.

Each task is applied in its own transaction. A failed task is logged and
rolled back without stopping the batch. Matching connectors receive the
task synchronously or through the outbound queue, per subscription.

Example:
  stagesync apply --db ./target.db --config ./sync.cue ./batch.yaml
  stagesync apply --db ./target.db --config ./sync.cue --workers 4 --metrics-file ./stagesync.prom ./batch.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite target store (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to CUE subscription config (required)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 1, "parallel workers; tasks of one entity stay ordered")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

// applyOutput is the apply command result.
type applyOutput struct {
	engine.BatchReport
	verbose bool
}

func (o applyOutput) runID() string { return o.RunID }

func (o applyOutput) renderText(w io.Writer) {
	fmt.Fprintf(w, "run %s: %d applied, %d failed, %d cancelled\n",
		o.RunID, o.Applied, o.Failed, o.Cancelled)
	for _, res := range o.Results {
		if res.Status == engine.StatusApplied && !o.verbose {
			continue
		}
		line := fmt.Sprintf("  #%d %s %s %s", res.Seq, res.TaskType, res.EntityKey, res.Status)
		if res.Reason != "" {
			line += ": " + res.Reason
		}
		fmt.Fprintln(w, line)
	}
}

func runApply(opts *ApplyOptions, batchPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions)
	slog.SetDefault(logger)

	registry, types, err := BuildConfig(opts.Config)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	tasks, err := LoadBatch(batchPath)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load batch", err)
	}
	logger.Info("batch loaded", "path", batchPath, "tasks", len(tasks))

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	metrics := engine.NewMetrics()
	d := engine.New(st, registry,
		engine.WithObjectTypes(types),
		engine.WithMetrics(metrics),
		engine.WithLogger(logger),
		engine.WithRunIDGenerator(runIDs),
	)

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	report, runErr := d.RunBatch(ctx, tasks, engine.BatchOptions{Workers: opts.Workers})

	if opts.MetricsFile != "" {
		if err := metrics.WriteToTextfile(opts.MetricsFile); err != nil {
			logger.Error("failed to write metrics", "path", opts.MetricsFile, "error", err)
		}
	}

	if err := formatter.Success(applyOutput{BatchReport: report, verbose: opts.Verbose}); err != nil {
		return err
	}

	switch {
	case runErr != nil && errors.Is(runErr, engine.ErrCancelled):
		return WrapExitError(ExitCommandError, "run cancelled", runErr)
	case runErr != nil:
		return WrapExitError(ExitCommandError, "run failed", runErr)
	case report.HasFailures():
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d task(s) failed", report.Failed, len(report.Results)))
	}
	return nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM or when
// parent is done.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
