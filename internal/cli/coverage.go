package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/opweave/opweave/internal/coverage"
	"github.com/opweave/opweave/internal/ir"
	"github.com/opweave/opweave/internal/resolver"
	"github.com/opweave/opweave/internal/store"
)

// CoverageOptions holds flags for the coverage command.
type CoverageOptions struct {
	*RootOptions
	Domain            string
	Shapes            string
	Endpoint          string
	MaxVariants       int
	PairwiseMax       int
	AllOptionalsLimit int
	LenientSuffix     string
	StorePath         string
	Output            string
}

// NewCoverageCommand creates the coverage command.
func NewCoverageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CoverageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "coverage <graph-file>",
		Short: "Expand an endpoint into coverage variants",
		Long: `Resolve an endpoint and expand its first satisfied scenario into a capped
set of positive and negative test variants: optional-field combinations,
request-shape union violations, and missing-required-field negatives.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoverage(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Domain, "domain", "", "domain semantics sidecar file")
	cmd.Flags().StringVar(&opts.Shapes, "shapes", "", "canonical shapes sidecar file")
	cmd.Flags().StringVarP(&opts.Endpoint, "endpoint", "e", "", "endpoint operation id (required)")
	cmd.Flags().IntVar(&opts.MaxVariants, "max-variants", 0, "post-expansion variant cap")
	cmd.Flags().IntVar(&opts.PairwiseMax, "pairwise-max", 0, "conflict negative cap per oneOf group")
	cmd.Flags().IntVar(&opts.AllOptionalsLimit, "all-optionals-limit", 0, "optional count ceiling for the all-optionals variant")
	cmd.Flags().StringVar(&opts.LenientSuffix, "lenient-suffix", "/search", "path suffix of lenient endpoints")
	cmd.Flags().StringVar(&opts.StorePath, "store", "", "persist the collection to this run database")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.MarkFlagRequired("endpoint")

	return cmd
}

func runCoverage(opts *CoverageOptions, graphPath string, cmd *cobra.Command) error {
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
		RequestVariants:   variants,
		Shapes:            shapes,
		Resolve:           resolver.Options{Logger: logger},
		MaxVariants:       opts.MaxVariants,
		PairwiseMax:       opts.PairwiseMax,
		AllOptionalsLimit: opts.AllOptionalsLimit,
		Lenient:           coverage.SuffixLenientPolicy(opts.LenientSuffix),
		Logger:            logger,
	})

	if opts.StorePath != "" {
		if err := persistCollection(cmd.Context(), opts.StorePath, graph.Fingerprint(), formatter, collection); err != nil {
			return err
		}
	}

	return emitCollection(formatter, opts.Output, collection)
}

// persistCollection records the collection under a fresh run in the run
// database, creating the database on first use.
func persistCollection(ctx context.Context, path, fingerprint string, formatter *OutputFormatter, c *ir.ScenarioCollection) error {
	s, err := store.Open(path)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open run store", err)
	}
	defer s.Close()

	run, err := s.CreateRun(ctx, fingerprint)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "create run", err)
	}
	if err := s.WriteCollection(ctx, run.ID, fingerprint, c); err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "write collection", err)
	}
	formatter.VerboseLog("Persisted run %s (%d scenarios)", run.ID, len(c.Scenarios))
	return nil
}
