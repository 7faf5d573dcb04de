// Package loader reads operation graph documents and domain semantics
// sidecars from JSON or YAML files, validates them against an embedded CUE
// schema, and builds the indexed operation graph. Validation collects every
// error before returning, never failing fast on the first one.
package loader

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/opweave/opweave/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Error codes.
const (
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeParse       = "PARSE_ERROR"
	ErrCodeSchema      = "SCHEMA_VIOLATION"
	ErrCodeDuplicateOp = "DUPLICATE_OPERATION"
	ErrCodeUnknownOp   = "UNKNOWN_OPERATION"
	ErrCodeUnknownKind = "UNKNOWN_ARTIFACT_KIND"
	ErrCodeBadPrimary  = "PRIMARY_NOT_PRODUCED"
)

// LoadError is one loading or validation failure with an optional CUE
// source position.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// GraphDocument is the on-disk shape of an operation graph.
type GraphDocument struct {
	Operations         []*ir.OperationNode    `json:"operations"`
	BootstrapSequences []ir.BootstrapSequence `json:"bootstrapSequences,omitempty"`
}

// Load reads the graph document and, when domainPath is non-empty, the
// domain sidecar, and returns the indexed graph. All errors found across
// both files are returned together.
func Load(graphPath, domainPath string) (*ir.OperationGraph, []error) {
	doc, errs := LoadGraphDocument(graphPath)

	var domain *ir.DomainSemantics
	if domainPath != "" {
		var domainErrs []error
		domain, domainErrs = LoadDomain(domainPath)
		errs = append(errs, domainErrs...)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return ir.NewOperationGraph(doc.Operations, doc.BootstrapSequences, domain), nil
}

// LoadGraphDocument reads and validates one graph document.
func LoadGraphDocument(path string) (*GraphDocument, []error) {
	data, errs := readDocument(path)
	if len(errs) > 0 {
		return nil, errs
	}
	if errs := validateAgainst(path, "#Graph", data); len(errs) > 0 {
		return nil, errs
	}
	doc := &GraphDocument{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeParse, Message: err.Error()}}
	}
	if errs := validateGraph(doc); len(errs) > 0 {
		return nil, errs
	}
	return doc, nil
}

// LoadDomain reads and validates one domain semantics sidecar.
func LoadDomain(path string) (*ir.DomainSemantics, []error) {
	data, errs := readDocument(path)
	if len(errs) > 0 {
		return nil, errs
	}
	if errs := validateAgainst(path, "#Domain", data); len(errs) > 0 {
		return nil, errs
	}
	domain := &ir.DomainSemantics{}
	if err := json.Unmarshal(data, domain); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeParse, Message: err.Error()}}
	}
	return domain, nil
}

// ShapesDocument is the on-disk shape sidecar: canonical request and
// response shapes per operation plus the oneOf group index.
type ShapesDocument struct {
	Requests        map[string]ir.MediaShapes      `json:"requests,omitempty"`
	Responses       map[string][]ir.CanonicalField `json:"responses,omitempty"`
	RequestVariants map[string][]ir.OneOfGroup     `json:"requestVariants,omitempty"`
}

// Index splits the document into the shape index and the variant index the
// generators consume.
func (d *ShapesDocument) Index() (*ir.ShapeIndex, ir.RequestVariantIndex) {
	return &ir.ShapeIndex{Requests: d.Requests, Responses: d.Responses},
		ir.RequestVariantIndex(d.RequestVariants)
}

// LoadShapes reads and validates one canonical shapes document.
func LoadShapes(path string) (*ShapesDocument, []error) {
	data, errs := readDocument(path)
	if len(errs) > 0 {
		return nil, errs
	}
	if errs := validateAgainst(path, "#Shapes", data); len(errs) > 0 {
		return nil, errs
	}
	doc := &ShapesDocument{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeParse, Message: err.Error()}}
	}
	return doc, nil
}

// readDocument loads a file as canonical JSON bytes. YAML documents are
// decoded and re-encoded so one validation and decoding path serves both
// formats.
func readDocument(path string) ([]byte, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, []error{&LoadError{
				Code:    ErrCodeNotFound,
				Message: fmt.Sprintf("document not found: %s", path),
			}}
		}
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: err.Error()}}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, []error{&LoadError{
				Code:    ErrCodeParse,
				Message: fmt.Sprintf("%s: %v", path, err),
			}}
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, []error{&LoadError{
				Code:    ErrCodeParse,
				Message: fmt.Sprintf("%s: %v", path, err),
			}}
		}
		return out, nil
	default:
		return data, nil
	}
}

// validateAgainst unifies the document with the named schema definition and
// collects every violation CUE reports.
func validateAgainst(path, definition string, data []byte) []error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []error{&LoadError{Code: ErrCodeSchema, Message: err.Error()}}
	}
	def := schema.LookupPath(cue.ParsePath(definition))

	doc := ctx.CompileBytes(data, cue.Filename(path))
	if err := doc.Err(); err != nil {
		return collectCUEErrors(ErrCodeParse, err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return collectCUEErrors(ErrCodeSchema, err)
	}
	return nil
}

func collectCUEErrors(code string, err error) []error {
	var out []error
	for _, e := range cueerrors.Errors(err) {
		le := &LoadError{Code: code, Message: e.Error()}
		if positions := cueerrors.Positions(e); len(positions) > 0 {
			le.Pos = positions[0]
		}
		out = append(out, le)
	}
	if len(out) == 0 {
		out = append(out, &LoadError{Code: code, Message: err.Error()})
	}
	return out
}

// validateGraph checks cross-references the schema cannot express:
// duplicate operation ids, bootstrap sequences naming unknown operations,
// and authoritative productions absent from the produces list.
func validateGraph(doc *GraphDocument) []error {
	var errs []error
	ids := make(map[string]bool, len(doc.Operations))
	for _, op := range doc.Operations {
		if ids[op.ID] {
			errs = append(errs, &LoadError{
				Code:    ErrCodeDuplicateOp,
				Message: fmt.Sprintf("operation %q declared more than once", op.ID),
			})
		}
		ids[op.ID] = true
	}
	for _, op := range doc.Operations {
		produces := ir.NewStringSet(op.Produces...)
		for _, primary := range op.PrimaryProduces {
			if !produces.Has(primary) {
				errs = append(errs, &LoadError{
					Code: ErrCodeBadPrimary,
					Message: fmt.Sprintf("operation %q: primary production %q missing from produces",
						op.ID, primary),
				})
			}
		}
	}
	for _, bs := range doc.BootstrapSequences {
		for _, opID := range bs.Operations {
			if !ids[opID] {
				errs = append(errs, &LoadError{
					Code: ErrCodeUnknownOp,
					Message: fmt.Sprintf("bootstrap %q references unknown operation %q",
						bs.Name, opID),
				})
			}
		}
	}
	return errs
}

// ValidateDomainRefs checks the sidecar against a built graph: artifact
// rules must name declared kinds and operation-scoped sections must name
// operations the graph knows.
func ValidateDomainRefs(graph *ir.OperationGraph, domain *ir.DomainSemantics) []error {
	if domain == nil {
		return nil
	}
	var errs []error
	for opID, rs := range domain.OperationArtifactRules {
		if graph.Operation(opID) == nil {
			errs = append(errs, &LoadError{
				Code:    ErrCodeUnknownOp,
				Message: fmt.Sprintf("artifact rules declared for unknown operation %q", opID),
			})
		}
		for _, rule := range rs.Rules {
			if _, ok := domain.ArtifactKinds[rule.ArtifactKind]; !ok {
				errs = append(errs, &LoadError{
					Code: ErrCodeUnknownKind,
					Message: fmt.Sprintf("operation %q: rule references undeclared artifact kind %q",
						opID, rule.ArtifactKind),
				})
			}
		}
	}
	for opID := range domain.OperationRequirements {
		if graph.Operation(opID) == nil {
			errs = append(errs, &LoadError{
				Code:    ErrCodeUnknownOp,
				Message: fmt.Sprintf("value bindings declared for unknown operation %q", opID),
			})
		}
	}
	return errs
}
