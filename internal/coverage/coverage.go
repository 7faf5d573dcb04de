// Package coverage expands a satisfied endpoint scenario into a bounded,
// deterministic set of positive and negative test variants: optional-field
// combinations, request-shape union violations, and missing-required-field
// negatives. It consumes resolver output and never re-runs the search.
package coverage

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/opweave/opweave/internal/ir"
	"github.com/opweave/opweave/internal/resolver"
)

// Expansion caps. MaxVariants bounds the per-endpoint output after
// field-omission and wrong-type expansion; PairwiseMax bounds conflict
// negatives per oneOf group.
const (
	DefaultMaxVariants       = 35
	DefaultPairwiseMax       = 10
	DefaultAllOptionalsLimit = 5
)

// LenientPolicy decides whether an operation tolerates union-shape
// violations, answering with results instead of a 400. Search-style
// endpoints commonly accept overlapping filter shapes.
type LenientPolicy func(op *ir.OperationNode) bool

// SuffixLenientPolicy treats operations whose path ends in suffix as
// lenient. The conventional suffix is "/search"; this is a heuristic about
// one family of APIs, which is why it is a policy value and not a constant.
func SuffixLenientPolicy(suffix string) LenientPolicy {
	return func(op *ir.OperationNode) bool {
		return strings.HasSuffix(op.Path, suffix)
	}
}

// Options configures variant generation for one endpoint.
type Options struct {
	// RequestVariants indexes request-body disjoint-union groups per
	// operation id, supplied by the schema loader.
	RequestVariants ir.RequestVariantIndex

	// Shapes provides canonical request shapes for field-omission and
	// wrong-type expansion. Without it the negative marker variants that
	// need concrete field paths are skipped.
	Shapes *ir.ShapeIndex

	// Resolve is forwarded to the scenario resolver for the base run.
	Resolve resolver.Options

	AllOptionalsLimit int
	PairwiseMax       int
	MaxVariants       int

	// Lenient defaults to SuffixLenientPolicy("/search").
	Lenient LenientPolicy

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.AllOptionalsLimit <= 0 {
		o.AllOptionalsLimit = DefaultAllOptionalsLimit
	}
	if o.PairwiseMax <= 0 {
		o.PairwiseMax = DefaultPairwiseMax
	}
	if o.MaxVariants <= 0 {
		o.MaxVariants = DefaultMaxVariants
	}
	if o.Lenient == nil {
		o.Lenient = SuffixLenientPolicy("/search")
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// variantSpec is the transient planning record for one variant. It is
// consumed immediately to stamp an EndpointScenario and never persisted.
type variantSpec struct {
	key      string
	tags     []string
	info     *ir.VariantInfo
	expected ir.ExpectedResult
	bindings map[string]ir.BindingValue
}

// Generate resolves the endpoint and expands its first satisfied scenario
// into the variant collection. Unsatisfied endpoints pass through
// unchanged: there is nothing to vary.
func Generate(graph *ir.OperationGraph, endpointID string, opts Options) *ir.ScenarioCollection {
	o := opts.withDefaults()
	base := resolver.Resolve(graph, endpointID, o.Resolve)
	if base.Unsatisfied || len(base.Scenarios) == 0 {
		return base
	}

	g := &generator{
		graph: graph,
		op:    graph.Operation(endpointID),
		opts:  o,
		log:   o.Logger.With("endpoint", endpointID),
	}
	specs := g.buildSpecs()

	truncated := base.Truncated
	if len(specs) > o.MaxVariants {
		g.log.Debug("variant cap reached, truncating",
			"built", len(specs), "cap", o.MaxVariants)
		specs = specs[:o.MaxVariants]
		truncated = true
	}

	out := &ir.ScenarioCollection{
		Endpoint:              base.Endpoint,
		RequiredSemanticTypes: base.RequiredSemanticTypes,
		OptionalSemanticTypes: base.OptionalSemanticTypes,
		Scenarios:             make([]*ir.EndpointScenario, 0, len(specs)),
		Truncated:             truncated,
	}
	template := base.Scenarios[0]
	for i, spec := range specs {
		sc := g.instantiate(template, spec)
		sc.ID = fmt.Sprintf("scenario-%d", i+1)
		out.Scenarios = append(out.Scenarios, sc)
	}
	return out
}

type generator struct {
	graph *ir.OperationGraph
	op    *ir.OperationNode
	opts  Options
	log   *slog.Logger
}

// buildSpecs enumerates variants in a fixed order: base variants, optional
// inclusions, the empty negative, required-field omissions, the wrong-type
// negative, then oneOf-group variants with their union negatives. The order
// is part of the contract because the cap slices from the front.
func (g *generator) buildSpecs() []variantSpec {
	var specs []variantSpec
	specs = append(specs, g.baseSpecs()...)
	specs = append(specs, g.optionalSpecs()...)
	specs = append(specs, g.emptySpecs()...)
	specs = append(specs, g.missingRequiredSpecs()...)
	specs = append(specs, g.wrongTypeSpecs()...)
	specs = append(specs, g.oneOfSpecs()...)
	return specs
}

// baseSpecs emits the plain base variant, or one base per rule when the
// endpoint declares a composable artifact rule set, so each deployable
// bundle gets its own positive case.
func (g *generator) baseSpecs() []variantSpec {
	rs := g.graph.Domain.RulesFor(g.op.ID)
	if rs == nil || !rs.Composable || len(rs.Rules) == 0 {
		return []variantSpec{{
			key:      "base",
			tags:     []string{"base"},
			info:     &ir.VariantInfo{},
			expected: ir.ExpectedResult{Kind: ir.ResultNonEmpty},
		}}
	}
	rules := make([]ir.ArtifactRule, len(rs.Rules))
	copy(rules, rs.Rules)
	sort.Slice(rules, func(i, j int) bool {
		return ruleName(rules[i]) < ruleName(rules[j])
	})
	specs := make([]variantSpec, 0, len(rules))
	for _, rule := range rules {
		name := ruleName(rule)
		specs = append(specs, variantSpec{
			key:      "base-" + name,
			tags:     []string{"base", "artifactRule:" + name},
			info:     &ir.VariantInfo{ArtifactRule: name},
			expected: ir.ExpectedResult{Kind: ir.ResultNonEmpty},
		})
	}
	return specs
}

// optionalSpecs emits one variant per optional semantic plus, when the
// optional count is small enough to stay readable, a single variant taking
// all of them at once.
func (g *generator) optionalSpecs() []variantSpec {
	optionals := sortedCopy(g.op.Requires.Optional)
	if len(optionals) == 0 {
		return nil
	}
	var specs []variantSpec
	for _, name := range optionals {
		key := "opt-" + name
		specs = append(specs, variantSpec{
			key:      key,
			tags:     []string{"optional:" + name},
			info:     &ir.VariantInfo{IncludeOptionals: []string{name}},
			expected: ir.ExpectedResult{Kind: ir.ResultNonEmpty},
			bindings: g.placeholders(key, []string{name}),
		})
	}
	if len(optionals) >= 2 && len(optionals) <= g.opts.AllOptionalsLimit {
		specs = append(specs, variantSpec{
			key:      "all-optionals",
			tags:     []string{"allOptionals"},
			info:     &ir.VariantInfo{IncludeOptionals: optionals},
			expected: ir.ExpectedResult{Kind: ir.ResultNonEmpty},
			bindings: g.placeholders("all-optionals", optionals),
		})
	}
	return specs
}

// emptySpecs emits the expect-empty negative for endpoints with no required
// semantics: querying by a filter value known not to exist must return an
// empty result, not an error.
func (g *generator) emptySpecs() []variantSpec {
	if len(g.op.Requires.Required) > 0 {
		return nil
	}
	bindings := make(map[string]ir.BindingValue)
	for _, name := range sortedCopy(g.op.Requires.Optional) {
		bindings[name] = ir.BindingValue{Kind: ir.BindingAbsent}
	}
	if len(bindings) == 0 {
		bindings = nil
	}
	return []variantSpec{{
		key:      "negative-empty",
		tags:     []string{"negative:empty"},
		info:     &ir.VariantInfo{Negative: ir.NegativeEmpty},
		expected: ir.ExpectedResult{Kind: ir.ResultEmpty},
		bindings: bindings,
	}}
}

// missingRequiredSpecs expands the missing-required-field marker into one
// omission variant per required request field.
func (g *generator) missingRequiredSpecs() []variantSpec {
	required := g.requiredFieldPaths()
	specs := make([]variantSpec, 0, len(required))
	for _, path := range required {
		specs = append(specs, variantSpec{
			key:  "missing-" + path,
			tags: []string{"negative:missingRequired", "field:" + path},
			info: &ir.VariantInfo{
				Negative:   ir.NegativeMissingRequired,
				OmitFields: []string{path},
			},
			expected: ir.ExpectedResult{Kind: ir.ResultError, Code: 400},
		})
	}
	return specs
}

// wrongTypeSpecs emits a single schema-violation negative substituting a
// type-mismatched literal for the first required request field.
func (g *generator) wrongTypeSpecs() []variantSpec {
	required := g.requiredFieldPaths()
	if len(required) == 0 {
		return nil
	}
	path := required[0]
	return []variantSpec{{
		key:  "wrong-type-" + path,
		tags: []string{"negative:schemaViolation", "field:" + path},
		info: &ir.VariantInfo{
			Negative:        ir.NegativeSchemaViolation,
			WrongTypeFields: []string{path},
		},
		expected: ir.ExpectedResult{Kind: ir.ResultError, Code: 400},
	}}
}

// oneOfSpecs walks the endpoint's declared request-union groups. Every
// concrete shape gets a minimal variant and, when it has optional fields, a
// rich one. Genuinely polymorphic groups additionally get a union-of-all-
// fields negative and capped pairwise conflict negatives; groups that are
// merely alternative encodings of the same data get neither, because
// servers routinely accept those mixed.
func (g *generator) oneOfSpecs() []variantSpec {
	groups := append([]ir.OneOfGroup(nil), g.opts.RequestVariants[g.op.ID]...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	var specs []variantSpec
	for _, group := range groups {
		for _, v := range group.Variants {
			specs = append(specs, g.oneOfVariantSpecs(group, v)...)
		}
		if !group.Polymorphic {
			continue
		}
		specs = append(specs, g.unionSpec(group))
		specs = append(specs, g.conflictSpecs(group)...)
	}
	return specs
}

func (g *generator) oneOfVariantSpecs(group ir.OneOfGroup, v ir.OneOfVariant) []variantSpec {
	prefix := "oneof-" + group.Name + "-" + v.Name
	tag := "oneOf:" + group.Name + "/" + v.Name
	specs := []variantSpec{{
		key:  prefix,
		tags: []string{tag},
		info: &ir.VariantInfo{
			OneOfGroup:   group.Name,
			OneOfVariant: v.Name,
		},
		expected: ir.ExpectedResult{Kind: ir.ResultNonEmpty},
	}}
	if len(v.OptionalFields()) > 0 {
		specs = append(specs, variantSpec{
			key:  prefix + "-rich",
			tags: []string{tag, "rich"},
			info: &ir.VariantInfo{
				OneOfGroup:   group.Name,
				OneOfVariant: v.Name,
				Rich:         true,
			},
			expected: ir.ExpectedResult{Kind: ir.ResultNonEmpty},
		})
	}
	return specs
}

func (g *generator) unionSpec(group ir.OneOfGroup) variantSpec {
	spec := variantSpec{
		key:  "oneof-" + group.Name + "-union",
		tags: []string{"negative:unionAll", "oneOf:" + group.Name},
		info: &ir.VariantInfo{
			Negative:       ir.NegativeUnionAll,
			OneOfGroup:     group.Name,
			UnionAllFields: true,
		},
		expected: ir.ExpectedResult{Kind: ir.ResultError, Code: 400},
	}
	if g.opts.Lenient(g.op) {
		spec.expected = ir.ExpectedResult{Kind: ir.ResultNonEmpty}
		spec.tags = append(spec.tags, "lenient")
	}
	return spec
}

// conflictSpecs pairs one representative field from each shape against
// every other shape's representative, up to the pairwise cap.
func (g *generator) conflictSpecs(group ir.OneOfGroup) []variantSpec {
	lenient := g.opts.Lenient(g.op)
	var specs []variantSpec
	for i := 0; i < len(group.Variants); i++ {
		for j := i + 1; j < len(group.Variants); j++ {
			if len(specs) >= g.opts.PairwiseMax {
				g.log.Debug("pairwise conflict cap reached",
					"group", group.Name, "cap", g.opts.PairwiseMax)
				return specs
			}
			a := representativeField(group.Variants[i])
			b := representativeField(group.Variants[j])
			if a == "" || b == "" || a == b {
				continue
			}
			spec := variantSpec{
				key: "oneof-" + group.Name + "-conflict-" + a + "-" + b,
				tags: []string{
					"negative:fieldConflict",
					"oneOf:" + group.Name,
				},
				info: &ir.VariantInfo{
					Negative:       ir.NegativeFieldConflict,
					OneOfGroup:     group.Name,
					ConflictFields: []string{a, b},
				},
				expected: ir.ExpectedResult{Kind: ir.ResultError, Code: 400},
			}
			if lenient {
				spec.expected = ir.ExpectedResult{Kind: ir.ResultNonEmpty}
				spec.tags = append(spec.tags, "lenient")
			}
			specs = append(specs, spec)
		}
	}
	return specs
}

// requiredFieldPaths lists the required field paths of the endpoint's
// canonical request shape, preferring the JSON media type. Nil when no
// shape index was supplied.
func (g *generator) requiredFieldPaths() []string {
	if g.opts.Shapes == nil {
		return nil
	}
	shapes := g.opts.Shapes.RequestShapes(g.op.ID)
	if len(shapes) == 0 {
		return nil
	}
	fields, ok := shapes["application/json"]
	if !ok {
		for _, media := range sortedMediaTypes(shapes) {
			fields = shapes[media]
			break
		}
	}
	var paths []string
	for _, f := range fields {
		if f.Required {
			paths = append(paths, f.Path)
		}
	}
	sort.Strings(paths)
	return paths
}

// placeholders mints a deterministic literal placeholder per name. Values
// are name-based UUIDs derived from the variant key so reruns over the same
// graph produce byte-identical output.
func (g *generator) placeholders(key string, names []string) map[string]ir.BindingValue {
	out := make(map[string]ir.BindingValue, len(names))
	for _, name := range names {
		seed := "opweave/" + g.op.ID + "/" + key + "/" + name
		out[name] = ir.BindingValue{
			Kind:  ir.BindingLiteral,
			Value: uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String(),
		}
	}
	return out
}

// instantiate stamps one variant onto a copy of the template scenario.
func (g *generator) instantiate(template *ir.EndpointScenario, spec variantSpec) *ir.EndpointScenario {
	sc := cloneScenario(template)
	sc.Variant = spec.info
	sc.VariantKey = spec.key
	sc.CoverageTags = spec.tags
	sc.Bindings = spec.bindings
	expected := spec.expected
	sc.ExpectedResult = &expected
	return sc
}

func cloneScenario(s *ir.EndpointScenario) *ir.EndpointScenario {
	out := *s
	out.Operations = append([]ir.OperationRef(nil), s.Operations...)
	out.Produced = append([]string(nil), s.Produced...)
	out.MissingSemanticTypes = append([]string(nil), s.MissingSemanticTypes...)
	out.DomainStatesRequired = append([]string(nil), s.DomainStatesRequired...)
	out.DomainStatesProduced = append([]string(nil), s.DomainStatesProduced...)
	out.AppliedArtifactRules = append([]string(nil), s.AppliedArtifactRules...)
	if s.Providers != nil {
		out.Providers = make(map[string]string, len(s.Providers))
		for k, v := range s.Providers {
			out.Providers[k] = v
		}
	}
	return &out
}

func ruleName(rule ir.ArtifactRule) string {
	if rule.ID != "" {
		return rule.ID
	}
	return rule.ArtifactKind
}

func representativeField(v ir.OneOfVariant) string {
	if req := v.RequiredFields(); len(req) > 0 {
		return req[0].Path
	}
	if len(v.Fields) > 0 {
		return v.Fields[0].Path
	}
	return ""
}

func sortedMediaTypes(shapes ir.MediaShapes) []string {
	out := make([]string, 0, len(shapes))
	for media := range shapes {
		out = append(out, media)
	}
	sort.Strings(out)
	return out
}

func sortedCopy(list []string) []string {
	out := append([]string(nil), list...)
	sort.Strings(out)
	return out
}
