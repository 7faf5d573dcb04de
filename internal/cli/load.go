package cli

import (
	"fmt"
	"strings"

	"github.com/opweave/opweave/internal/ir"
	"github.com/opweave/opweave/internal/loader"
)

// Error codes reported through the formatter.
const (
	ErrCodeLoad     = "LOAD_ERROR"
	ErrCodeStore    = "STORE_ERROR"
	ErrCodePlan     = "PLAN_ERROR"
	ErrCodeWrite    = "WRITE_ERROR"
	ErrCodeArgument = "ARGUMENT_ERROR"
)

// loadGraph loads the graph document plus optional domain sidecar, folding
// every collected error into one command error.
func loadGraph(graphPath, domainPath string, formatter *OutputFormatter) (*ir.OperationGraph, error) {
	graph, errs := loader.Load(graphPath, domainPath)
	if len(errs) == 0 && graph.Domain != nil {
		errs = loader.ValidateDomainRefs(graph, graph.Domain)
	}
	if len(errs) > 0 {
		details := errorStrings(errs)
		formatter.Error(ErrCodeLoad, fmt.Sprintf("%d error(s) loading %s", len(errs), graphPath), details)
		return nil, NewExitError(ExitCommandError, strings.Join(details, "; "))
	}
	return graph, nil
}

// loadShapes loads the optional canonical shapes sidecar. An empty path
// yields empty indexes, which downstream stages treat as "no body data".
func loadShapes(path string, formatter *OutputFormatter) (*ir.ShapeIndex, ir.RequestVariantIndex, error) {
	if path == "" {
		return nil, nil, nil
	}
	doc, errs := loader.LoadShapes(path)
	if len(errs) > 0 {
		details := errorStrings(errs)
		formatter.Error(ErrCodeLoad, fmt.Sprintf("%d error(s) loading %s", len(errs), path), details)
		return nil, nil, NewExitError(ExitCommandError, strings.Join(details, "; "))
	}
	shapes, variants := doc.Index()
	return shapes, variants, nil
}

func errorStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
