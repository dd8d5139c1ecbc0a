package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stagesync/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid         bool                       `json:"valid"`
	Connectors    int                        `json:"connectors"`
	Subscriptions int                        `json:"subscriptions"`
	ObjectTypes   int                        `json:"object_types"`
	Errors        []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.cue>",
		Short: "Check a subscription configuration",
		Long: `Compile a CUE configuration of connectors, subscriptions and object
types and report every problem found, without touching a store.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, verrs, err := LoadConfig(path)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	formatter.VerboseLog("Loaded %d connector(s), %d subscription(s), %d object type(s) from %s",
		len(cfg.Connectors), len(cfg.Subscriptions), len(cfg.ObjectTypes), path)

	result := ValidationResult{
		Valid:         len(verrs) == 0,
		Connectors:    len(cfg.Connectors),
		Subscriptions: len(cfg.Subscriptions),
		ObjectTypes:   len(cfg.ObjectTypes),
		Errors:        verrs,
	}
	if result.Valid {
		return formatter.Success(result)
	}
	if err := formatter.Failure(verrs[0].Code, verrs[0].Message, result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(verrs)))
}

func (r ValidationResult) renderText(w io.Writer) {
	if r.Valid {
		fmt.Fprintf(w, "\u2713 Config valid: %d connector(s), %d subscription(s), %d object type(s)\n",
			r.Connectors, r.Subscriptions, r.ObjectTypes)
		return
	}
	fmt.Fprintf(w, "\u2717 Validation failed: %d error(s)\n", len(r.Errors))
	for _, e := range r.Errors {
		where := e.Field
		if e.Line > 0 {
			where = fmt.Sprintf("line %d %s", e.Line, e.Field)
		}
		fmt.Fprintf(w, "  %s %s: %s\n", e.Code, where, e.Message)
	}
}
