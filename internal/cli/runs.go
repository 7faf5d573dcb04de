package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opweave/opweave/internal/store"
)

// RunsOptions holds flags shared by the runs subcommands.
type RunsOptions struct {
	*RootOptions
	DBPath string
}

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted generation runs",
	}
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "opweave.db", "run database path")

	cmd.AddCommand(newRunsListCommand(opts))
	cmd.AddCommand(newRunsDiffCommand(opts))

	return cmd
}

func newRunsListCommand(opts *RunsOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List persisted runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(opts, cmd)
		},
	}
}

func newRunsDiffCommand(opts *RunsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <old-run-id> <new-run-id>",
		Short: "Compare two runs endpoint by endpoint",
		Long: `Compare the scenario collections of two runs. Exits with status 1 when the
runs differ, so the command doubles as a regression check in CI.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsDiff(opts, args[0], args[1], cmd)
		},
	}
}

func runRunsList(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	s, err := store.Open(opts.DBPath)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open run store", err)
	}
	defer s.Close()

	runs, err := s.ListRuns(cmd.Context())
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "list runs", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		return formatter.Success("no runs recorded")
	}
	var b strings.Builder
	for _, run := range runs {
		fmt.Fprintf(&b, "%s  %s  %s\n",
			run.ID, run.CreatedAt.Format(time.RFC3339), run.GraphFingerprint)
	}
	return formatter.Success(strings.TrimRight(b.String(), "\n"))
}

func runRunsDiff(opts *RunsOptions, oldRunID, newRunID string, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	s, err := store.Open(opts.DBPath)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open run store", err)
	}
	defer s.Close()

	diff, err := s.DiffRuns(cmd.Context(), oldRunID, newRunID)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "diff runs", err)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(diff); err != nil {
			return err
		}
	} else if diff.Empty() {
		if err := formatter.Success("runs are identical"); err != nil {
			return err
		}
	} else {
		if err := formatter.Success(renderDiff(diff)); err != nil {
			return err
		}
	}

	if !diff.Empty() {
		return NewExitError(ExitFailure, "runs differ")
	}
	return nil
}

func renderDiff(diff store.RunDiff) string {
	var b strings.Builder
	for _, endpoint := range diff.Added {
		fmt.Fprintf(&b, "+ %s\n", endpoint)
	}
	for _, endpoint := range diff.Removed {
		fmt.Fprintf(&b, "- %s\n", endpoint)
	}
	for _, endpoint := range diff.Changed {
		fmt.Fprintf(&b, "~ %s\n", endpoint)
	}
	return strings.TrimRight(b.String(), "\n")
}
