// Package plan turns a resolved scenario into an executable-shaped request
// plan: one step per chain operation, with synthesized body templates,
// expected statuses, and response-field extractions wired between steps.
//
// Bodies are Literal/BindingRef trees, never strings with embedded markers.
// Negative variants omit or corrupt fields through explicit suppress and
// override sets applied in one final reconciliation pass, so an omission is
// never undone by a later fallback fill.
package plan

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/opweave/opweave/internal/ir"
)

// Media types the builder understands. Multipart wins over JSON when an
// operation declares both, matching file-upload-style endpoints.
const (
	MediaJSON      = "application/json"
	MediaMultipart = "multipart/form-data"
)

// DefaultSuccessStatus is asserted on every step without an explicit error
// expectation.
const DefaultSuccessStatus = 200

// Config carries the external inputs the builder needs beyond the graph.
type Config struct {
	// RequestVariants supplies oneOf-group field sets, required when the
	// scenario's variant selects a concrete union shape.
	RequestVariants ir.RequestVariantIndex

	// Defaults maps request field paths to configured literal values,
	// consulted before minting a placeholder.
	Defaults map[string]string

	SuccessStatus int

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.SuccessStatus == 0 {
		c.SuccessStatus = DefaultSuccessStatus
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// BindingViolation is one valueBindings entry referencing a response field
// that no prior chain operation's canonical response shape provides.
type BindingViolation struct {
	OperationID string
	Field       string
	Source      string
}

// CrossValidationError aggregates every binding violation found in one
// build. It is the single hard failure of plan generation: the graph and
// the schema disagree, and emitting a broken request plan would only move
// the failure into generated tests.
type CrossValidationError struct {
	Violations []BindingViolation
}

func (e *CrossValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d value binding(s) reference response fields absent from the canonical shapes",
		len(e.Violations))
	for _, v := range e.Violations {
		fmt.Fprintf(&b, "\n  %s: field %q bound to %q", v.OperationID, v.Field, v.Source)
	}
	return b.String()
}

// Build emits one request step per operation of the scenario's chain. It
// never mutates the scenario; Enrich attaches the result.
func Build(scenario *ir.EndpointScenario, graph *ir.OperationGraph, shapes *ir.ShapeIndex, cfg Config) ([]ir.RequestStep, error) {
	b := &builder{
		scenario: scenario,
		graph:    graph,
		shapes:   shapes,
		cfg:      cfg.withDefaults(),
	}
	for i, ref := range scenario.Operations {
		b.steps = append(b.steps, b.buildStep(i, ref))
	}
	if len(b.violations) > 0 {
		return nil, &CrossValidationError{Violations: b.violations}
	}
	return b.steps, nil
}

// Enrich builds the plan and attaches it, together with the target
// operation's flattened response shape, to the scenario.
func Enrich(scenario *ir.EndpointScenario, graph *ir.OperationGraph, shapes *ir.ShapeIndex, cfg Config) error {
	steps, err := Build(scenario, graph, shapes, cfg)
	if err != nil {
		return err
	}
	scenario.RequestPlan = steps
	if n := len(scenario.Operations); n > 0 && shapes != nil {
		scenario.ResponseFields = shapes.ResponseShape(scenario.Operations[n-1].OperationID)
	}
	return nil
}

type builder struct {
	scenario *ir.EndpointScenario
	graph    *ir.OperationGraph
	shapes   *ir.ShapeIndex
	cfg      Config

	steps      []ir.RequestStep
	violations []BindingViolation
}

func (b *builder) buildStep(index int, ref ir.OperationRef) ir.RequestStep {
	step := ir.RequestStep{
		OperationID:  ref.OperationID,
		Method:       ref.Method,
		PathTemplate: ref.Path,
		Expect:       ir.Expectation{Status: b.expectedStatus(index)},
	}
	if !hasBody(ref.Method) {
		return step
	}
	media, fields := b.requestShape(ref.OperationID)
	if fields == nil {
		return step
	}

	var variant *ir.VariantInfo
	if index == len(b.scenario.Operations)-1 {
		variant = b.scenario.Variant
	}
	body := b.synthesize(index, ref.OperationID, media, fields, variant)

	if media == MediaMultipart {
		step.BodyKind = ir.BodyKindMultipart
		step.MultipartTemplate = body
	} else {
		step.BodyKind = ir.BodyKindJSON
		step.BodyTemplate = body
	}
	return step
}

// expectedStatus asserts the variant's error code on the target step only;
// prerequisites must always succeed.
func (b *builder) expectedStatus(index int) int {
	if index == len(b.scenario.Operations)-1 {
		if er := b.scenario.ExpectedResult; er != nil && er.Kind == ir.ResultError && er.Code != 0 {
			return er.Code
		}
	}
	return b.cfg.SuccessStatus
}

// requestShape picks the operation's media type, preferring multipart.
func (b *builder) requestShape(operationID string) (string, []ir.CanonicalField) {
	if b.shapes == nil {
		return "", nil
	}
	media := b.shapes.RequestShapes(operationID)
	if len(media) == 0 {
		return "", nil
	}
	if fields, ok := media[MediaMultipart]; ok {
		return MediaMultipart, fields
	}
	if fields, ok := media[MediaJSON]; ok {
		return MediaJSON, fields
	}
	names := make([]string, 0, len(media))
	for name := range media {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0], media[names[0]]
}

// synthesize fills the selected field set, then applies the variant's
// wrong-type overrides and, last of all, its omission set. Multipart bodies
// stay flat keyed by field path; JSON bodies nest along dotted paths.
func (b *builder) synthesize(stepIndex int, operationID, media string, fields []ir.CanonicalField, variant *ir.VariantInfo) *ir.BodyObject {
	selected := b.selectFields(operationID, fields, variant)
	body := &ir.BodyObject{}
	for _, field := range selected {
		node := b.valueFor(stepIndex, operationID, field)
		if media == MediaMultipart {
			body.Set(field.Path, node)
		} else {
			setPath(body, field.Path, node)
		}
	}
	if variant == nil {
		return body
	}
	for _, path := range variant.WrongTypeFields {
		node := wrongTypeLiteral(fieldType(selected, path))
		if media == MediaMultipart {
			body.Set(path, node)
		} else {
			setPath(body, path, node)
		}
	}
	for _, path := range variant.OmitFields {
		if media == MediaMultipart {
			body.Delete(path)
		} else {
			deletePath(body, path)
		}
	}
	return body
}

// selectFields resolves the concrete field set: a oneOf variant's fields
// when one is chosen, the union or conflicting fields for union negatives,
// otherwise flat required fields plus any included optionals. Prerequisite
// steps (nil variant) send required fields only.
func (b *builder) selectFields(operationID string, fields []ir.CanonicalField, variant *ir.VariantInfo) []ir.CanonicalField {
	if variant != nil && variant.OneOfGroup != "" {
		if group, ok := b.findGroup(operationID, variant.OneOfGroup); ok {
			return oneOfFields(group, variant, fields)
		}
		b.cfg.Logger.Warn("oneOf group not indexed, falling back to flat fields",
			"operation", operationID, "group", variant.OneOfGroup)
	}

	var included []string
	if variant != nil {
		included = variant.IncludeOptionals
	}
	var out []ir.CanonicalField
	for _, f := range fields {
		if f.Required || matchesAny(f, included) {
			out = append(out, f)
		}
	}
	return out
}

func (b *builder) findGroup(operationID, name string) (ir.OneOfGroup, bool) {
	for _, group := range b.cfg.RequestVariants[operationID] {
		if group.Name == name {
			return group, true
		}
	}
	return ir.OneOfGroup{}, false
}

// oneOfFields picks the field set a union variant exercises. Union-all
// negatives merge every shape; conflict negatives take the flat required
// fields plus the two clashing ones.
func oneOfFields(group ir.OneOfGroup, variant *ir.VariantInfo, flat []ir.CanonicalField) []ir.CanonicalField {
	switch {
	case variant.UnionAllFields:
		var out []ir.CanonicalField
		seen := make(map[string]bool)
		for _, v := range group.Variants {
			for _, f := range v.Fields {
				if !seen[f.Path] {
					seen[f.Path] = true
					out = append(out, f)
				}
			}
		}
		return out
	case len(variant.ConflictFields) > 0:
		var out []ir.CanonicalField
		for _, f := range flat {
			if f.Required {
				out = append(out, f)
			}
		}
		want := make(map[string]bool, len(variant.ConflictFields))
		for _, path := range variant.ConflictFields {
			want[path] = true
		}
		for _, v := range group.Variants {
			for _, f := range v.Fields {
				if want[f.Path] {
					out = append(out, f)
					delete(want, f.Path)
				}
			}
		}
		return out
	default:
		for i := range group.Variants {
			v := &group.Variants[i]
			if v.Name != variant.OneOfVariant {
				continue
			}
			out := v.RequiredFields()
			if variant.Rich {
				out = append(out, v.OptionalFields()...)
			}
			return out
		}
		return nil
	}
}

// valueFor fills one field, in priority order: a domain value binding, the
// scenario's binding table, a configured default, and last a freshly minted
// placeholder variable pending later substitution.
func (b *builder) valueFor(stepIndex int, operationID string, field ir.CanonicalField) ir.BodyNode {
	if src, ok := b.graph.Domain.BindingsFor(operationID)[field.Path]; ok {
		return b.bindSource(stepIndex, operationID, field.Path, src)
	}
	if name, bv, ok := b.scenarioBinding(field); ok {
		switch bv.Kind {
		case ir.BindingLiteral:
			return ir.Literal{Value: bv.Value}
		case ir.BindingAbsent:
			return ir.Literal{Value: absentValue(name)}
		default:
			return ir.BindingRef{Name: name}
		}
	}
	if def, ok := b.cfg.Defaults[field.Path]; ok {
		return ir.Literal{Value: def}
	}
	return ir.BindingRef{Name: placeholderName(field.Path)}
}

// bindSource resolves one valueBindings entry. A response.* source is wired
// to the nearest prior step whose response shape carries the field, and an
// extraction is attached to that step; anything else names a runtime
// parameter and stays a reference. A response source no prior step can
// provide is recorded as a cross-validation violation.
func (b *builder) bindSource(stepIndex int, operationID, fieldPath, src string) ir.BodyNode {
	respField, ok := strings.CutPrefix(src, "response.")
	if !ok {
		return ir.BindingRef{Name: src}
	}
	for j := stepIndex - 1; j >= 0; j-- {
		prevOp := b.steps[j].OperationID
		if !shapeHasPath(b.shapes.ResponseShape(prevOp), respField) {
			continue
		}
		name := extractionBinding(prevOp, respField)
		b.attachExtraction(j, respField, name)
		return ir.BindingRef{Name: name}
	}
	b.violations = append(b.violations, BindingViolation{
		OperationID: operationID,
		Field:       fieldPath,
		Source:      src,
	})
	return ir.BindingRef{Name: src}
}

func (b *builder) attachExtraction(stepIndex int, field, binding string) {
	for _, ex := range b.steps[stepIndex].Extract {
		if ex.Binding == binding {
			return
		}
	}
	b.steps[stepIndex].Extract = append(b.steps[stepIndex].Extract, ir.Extraction{
		Field:   field,
		Binding: binding,
	})
}

// scenarioBinding matches a field against the binding table by semantic tag
// first, then by path.
func (b *builder) scenarioBinding(field ir.CanonicalField) (string, ir.BindingValue, bool) {
	if field.SemanticTag != "" {
		if bv, ok := b.scenario.Bindings[field.SemanticTag]; ok {
			return field.SemanticTag, bv, true
		}
	}
	if bv, ok := b.scenario.Bindings[field.Path]; ok {
		return field.Path, bv, true
	}
	return "", ir.BindingValue{}, false
}

func hasBody(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

func matchesAny(f ir.CanonicalField, names []string) bool {
	for _, name := range names {
		if f.Path == name || (f.SemanticTag != "" && f.SemanticTag == name) {
			return true
		}
	}
	return false
}

func fieldType(fields []ir.CanonicalField, path string) string {
	for _, f := range fields {
		if f.Path == path {
			return f.Type
		}
	}
	return ""
}

// wrongTypeLiteral returns a literal guaranteed to violate the declared
// field type.
func wrongTypeLiteral(declaredType string) ir.BodyNode {
	if declaredType == "string" {
		return ir.Literal{Value: int64(12345)}
	}
	return ir.Literal{Value: "not-a-" + orUnknown(declaredType)}
}

func orUnknown(s string) string {
	if s == "" {
		return "scalar"
	}
	return s
}

// absentValue mints a stable identifier-shaped value guaranteed not to
// exist in the system under test, for expect-empty negatives.
func absentValue(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("opweave/absent/"+name)).String()
}

func extractionBinding(operationID, field string) string {
	return operationID + "_" + sanitize(field)
}

func placeholderName(path string) string {
	return "var_" + sanitize(path)
}

var pathSanitizer = strings.NewReplacer(".", "_", "[]", "")

func sanitize(s string) string {
	return pathSanitizer.Replace(s)
}

func shapeHasPath(fields []ir.CanonicalField, path string) bool {
	for _, f := range fields {
		if f.Path == path {
			return true
		}
	}
	return false
}
