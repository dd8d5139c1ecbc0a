package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/subscription"
)

// MatchOptions holds flags for the match command.
type MatchOptions struct {
	*RootOptions
	Config string
}

// TaskMatches lists the connectors interested in one task.
type TaskMatches struct {
	Seq     int64                `json:"seq"`
	Type    ir.TaskType          `json:"type"`
	Entity  string               `json:"entity"`
	Matches []subscription.Match `json:"matches"`
}

type matchOutput []TaskMatches

func (o matchOutput) renderText(w io.Writer) {
	for _, tm := range o {
		fmt.Fprintf(w, "#%d %s %s\n", tm.Seq, tm.Type, tm.Entity)
		if len(tm.Matches) == 0 {
			fmt.Fprintln(w, "  (no subscribers)")
		}
		for _, m := range tm.Matches {
			fmt.Fprintf(w, "  %s %s\n", m.ConnectorName, m.ProcessType)
		}
	}
}

// NewMatchCommand creates the match command.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "match <batch.yaml>",
		Short: "Show which connectors a batch would reach",
		Long: `Evaluate the configured subscriptions against every task of a batch
without applying anything. Each connector is listed once per task with
its effective process type.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to CUE subscription config (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runMatch(opts *MatchOptions, batchPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	registry, _, err := BuildConfig(opts.Config)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	tasks, err := LoadBatch(batchPath)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load batch", err)
	}

	out := make(matchOutput, 0, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		matches := registry.Match(t)
		if matches == nil {
			matches = []subscription.Match{}
		}
		out = append(out, TaskMatches{Seq: t.Seq, Type: t.Type, Entity: t.EntityKey(), Matches: matches})
	}
	formatter.VerboseLog("Matched %d task(s) against %d subscription(s)", len(tasks), len(registry.Subscriptions()))
	return formatter.Success(out)
}
