package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opweave/opweave/internal/ir"
	"github.com/opweave/opweave/internal/resolver"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Domain       string
	Endpoint     string
	MaxScenarios int
	LongChains   bool
	Output       string
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <graph-file>",
		Short: "Resolve prerequisite chains for an endpoint",
		Long: `Resolve the ordered operation chains that satisfy an endpoint's semantic
and domain-state requirements. Unsatisfiable endpoints produce a single
unsatisfied scenario naming the missing semantic types.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Domain, "domain", "", "domain semantics sidecar file")
	cmd.Flags().StringVarP(&opts.Endpoint, "endpoint", "e", "", "endpoint operation id (required)")
	cmd.Flags().IntVar(&opts.MaxScenarios, "max-scenarios", 0, "scenario cap per endpoint")
	cmd.Flags().BoolVar(&opts.LongChains, "long-chains", false, "keep expanding past goal states")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.MarkFlagRequired("endpoint")

	return cmd
}

func runResolve(opts *ResolveOptions, graphPath string, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	graph, err := loadGraph(graphPath, opts.Domain, formatter)
	if err != nil {
		return err
	}

	collection := resolver.Resolve(graph, opts.Endpoint, resolver.Options{
		MaxScenarios: opts.MaxScenarios,
		LongChains:   opts.LongChains,
		Logger:       newLogger(opts.RootOptions),
	})

	return emitCollection(formatter, opts.Output, collection)
}

// emitCollection writes a collection to the output file or renders it on
// stdout, honoring the format flag.
func emitCollection(formatter *OutputFormatter, outputPath string, c *ir.ScenarioCollection) error {
	if outputPath != "" {
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "encode collection", err)
		}
		if err := os.WriteFile(outputPath, data, 0o644); err != nil {
			formatter.Error(ErrCodeWrite, err.Error(), nil)
			return WrapExitError(ExitCommandError, "write output", err)
		}
		formatter.VerboseLog("Wrote %s", outputPath)
		return nil
	}
	if formatter.Format == "json" {
		return formatter.JSON(c)
	}
	return formatter.Success(renderCollection(c))
}

func renderCollection(c *ir.ScenarioCollection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "endpoint: %s\n", c.Endpoint)
	if len(c.RequiredSemanticTypes) > 0 {
		fmt.Fprintf(&b, "requires: %s\n", strings.Join(c.RequiredSemanticTypes, ", "))
	}
	if c.Unsatisfied {
		fmt.Fprintf(&b, "UNSATISFIED\n")
	}
	for _, s := range c.Scenarios {
		fmt.Fprintf(&b, "  %s: %s", s.ID, strings.Join(s.OperationIDs(), " -> "))
		if s.VariantKey != "" {
			fmt.Fprintf(&b, " [%s]", s.VariantKey)
		}
		if s.Cycle {
			fmt.Fprintf(&b, " (cycle)")
		}
		if len(s.MissingSemanticTypes) > 0 {
			fmt.Fprintf(&b, " missing: %s", strings.Join(s.MissingSemanticTypes, ", "))
		}
		fmt.Fprintln(&b)
	}
	if c.Truncated {
		fmt.Fprintf(&b, "  (truncated)\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
