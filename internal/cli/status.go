package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/stagesync/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database  string
	Connector string
	RunID     string
}

// StatusResult is the status command output.
type StatusResult struct {
	Pending []store.QueueItem    `json:"pending"`
	RunID   string               `json:"run_id,omitempty"`
	Counts  map[string]int       `json:"counts"`
	Log     []store.TaskLogEntry `json:"log"`
}

func (r StatusResult) runID() string { return r.RunID }

func (r StatusResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "pending deliveries: %d\n", len(r.Pending))
	for _, it := range r.Pending {
		fmt.Fprintf(w, "  %s %s #%d %s %s\n", it.Connector, it.ProcessType, it.TaskSeq, it.TaskType, it.EntityKey)
	}
	if r.RunID == "" {
		fmt.Fprintln(w, "no runs recorded")
		return
	}

	statuses := make([]string, 0, len(r.Counts))
	for s := range r.Counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	fmt.Fprintf(w, "run %s:", r.RunID)
	for _, s := range statuses {
		fmt.Fprintf(w, " %s=%d", s, r.Counts[s])
	}
	fmt.Fprintln(w)
	for _, e := range r.Log {
		if e.Reason != "" {
			fmt.Fprintf(w, "  #%d %s %s %s: %s\n", e.TaskSeq, e.TaskType, e.EntityKey, e.Status, e.Reason)
		}
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending deliveries and the last run's task log",
		Long: `List the outbound queue of asynchronous connectors and summarize the
task log of a run (the most recent run unless --run is given).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite target store (required)")
	cmd.Flags().StringVar(&opts.Connector, "connector", "", "only list deliveries for this connector")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID (default: most recent)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// Opening creates missing files; status must not.
	if err := checkFile(opts.Database, "database"); err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := readStatus(ctx, st, opts.Connector, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read status", err)
	}
	return formatter.Success(result)
}

func readStatus(ctx context.Context, st *store.Store, connector, runID string) (StatusResult, error) {
	pending, err := st.PendingItems(ctx, connector)
	if err != nil {
		return StatusResult{}, err
	}
	log, err := st.ReadTaskLog(ctx, runID)
	if err != nil {
		return StatusResult{}, err
	}
	result := StatusResult{Pending: pending, RunID: runID, Log: log, Counts: map[string]int{}}
	if result.RunID == "" && len(log) > 0 {
		result.RunID = log[0].RunID
	}
	if result.RunID != "" {
		if result.Counts, err = st.TaskLogCounts(ctx, result.RunID); err != nil {
			return StatusResult{}, err
		}
	}
	return result, nil
}
