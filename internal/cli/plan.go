package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/opweave/opweave/internal/coverage"
	"github.com/opweave/opweave/internal/plan"
	"github.com/opweave/opweave/internal/resolver"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Domain   string
	Shapes   string
	Endpoint string
	Output   string
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <graph-file>",
		Short: "Build executable request plans for an endpoint",
		Long: `Resolve an endpoint, expand it into coverage variants, and attach a
request plan to every scenario: per-step bodies synthesized from the
canonical shapes, expected statuses, and response-field extractions.

A value binding referencing a response field no prerequisite provides is a
configuration inconsistency between graph and shapes; it aborts the whole
run with every offending binding listed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Domain, "domain", "", "domain semantics sidecar file")
	cmd.Flags().StringVar(&opts.Shapes, "shapes", "", "canonical shapes sidecar file")
	cmd.Flags().StringVarP(&opts.Endpoint, "endpoint", "e", "", "endpoint operation id (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.MarkFlagRequired("endpoint")

	return cmd
}

func runPlan(opts *PlanOptions, graphPath string, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	graph, err := loadGraph(graphPath, opts.Domain, formatter)
	if err != nil {
		return err
	}
	shapes, variants, err := loadShapes(opts.Shapes, formatter)
	if err != nil {
		return err
	}

	logger := newLogger(opts.RootOptions)
	collection := coverage.Generate(graph, opts.Endpoint, coverage.Options{
		RequestVariants: variants,
		Shapes:          shapes,
		Resolve:         resolver.Options{Logger: logger},
		Logger:          logger,
	})

	cfg := plan.Config{RequestVariants: variants, Logger: logger}
	for _, scenario := range collection.Scenarios {
		if scenario.Unsatisfied() {
			continue
		}
		if err := plan.Enrich(scenario, graph, shapes, cfg); err != nil {
			var cve *plan.CrossValidationError
			if errors.As(err, &cve) {
				formatter.Error(ErrCodePlan, "graph and shapes are inconsistent", errorLines(cve))
				return WrapExitError(ExitFailure, "cross-validation failed", err)
			}
			formatter.Error(ErrCodePlan, err.Error(), nil)
			return WrapExitError(ExitCommandError, "build request plan", err)
		}
	}

	return emitCollection(formatter, opts.Output, collection)
}

func errorLines(cve *plan.CrossValidationError) []string {
	out := make([]string, len(cve.Violations))
	for i, v := range cve.Violations {
		out[i] = v.OperationID + ": " + v.Field + " <- " + v.Source
	}
	return out
}
