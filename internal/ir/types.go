package ir

// Requires groups the semantic types an operation needs before it can run.
type Requires struct {
	// Required semantic types must all be produced by earlier operations
	// (or by the endpoint itself) before the operation is invocable.
	Required []string `json:"required,omitempty" yaml:"required"`

	// Optional semantic types enrich the request when available but never
	// block resolution.
	Optional []string `json:"optional,omitempty" yaml:"optional"`
}

// OperationNode is one API operation in the graph. Immutable once loaded.
type OperationNode struct {
	ID     string `json:"operationId" yaml:"operationId"`
	Method string `json:"method" yaml:"method"`
	Path   string `json:"path" yaml:"path"`

	Requires Requires `json:"requires" yaml:"requires"`

	// Produces lists every semantic type the operation realizes on success,
	// including incidental side-effect productions.
	Produces []string `json:"produces,omitempty" yaml:"produces"`

	// PrimaryProduces is the subset of Produces for which this operation is
	// the authoritative provider. The resolver prefers authoritative
	// providers over incidental producers when expanding a requirement.
	PrimaryProduces []string `json:"primaryProduces,omitempty" yaml:"primaryProduces"`

	// DomainRequiresAll lists flat domain-state prerequisites; every entry
	// must be realized before the operation may appear in a chain.
	DomainRequiresAll []string `json:"domainRequiresAll,omitempty" yaml:"domainRequiresAll"`

	// DomainDisjunctions lists alternative-state groups; at least one
	// member of each group must be realized.
	DomainDisjunctions [][]string `json:"domainDisjunctions,omitempty" yaml:"domainDisjunctions"`

	// DomainProduces and DomainImplicitAdds are the domain states realized
	// when the operation succeeds. Implicit adds model side effects the
	// API performs without being asked (e.g. starting a process instance
	// on deploy).
	DomainProduces     []string `json:"domainProduces,omitempty" yaml:"domainProduces"`
	DomainImplicitAdds []string `json:"domainImplicitAdds,omitempty" yaml:"domainImplicitAdds"`

	// EventuallyConsistent marks operations whose productions become
	// observable only after asynchronous processing. Carried through to
	// scenarios so emitters can insert polling.
	EventuallyConsistent bool `json:"eventuallyConsistent,omitempty" yaml:"eventuallyConsistent"`
}

// AllDomainProduces returns DomainProduces plus DomainImplicitAdds.
func (op *OperationNode) AllDomainProduces() []string {
	out := make([]string, 0, len(op.DomainProduces)+len(op.DomainImplicitAdds))
	out = append(out, op.DomainProduces...)
	out = append(out, op.DomainImplicitAdds...)
	return out
}

// BootstrapSequence is a pre-declared operation chain known to establish a
// useful bundle of semantics in one shot. The resolver seeds its frontier
// with any sequence whose production intersects the endpoint's needs.
type BootstrapSequence struct {
	Name       string   `json:"name" yaml:"name"`
	Operations []string `json:"operations" yaml:"operations"`
	Produces   []string `json:"produces" yaml:"produces"`
}

// RuntimeState is a named domain state with its own prerequisites.
// A state may only be accepted into a chain once every entry of Requires
// is already realized.
type RuntimeState struct {
	Requires []string `json:"requires,omitempty" yaml:"requires"`
}

// ArtifactKind describes one deployable artifact category (e.g. a process
// model file) and what deploying it realizes.
type ArtifactKind struct {
	// Category groups kinds; the selector's default preference targets the
	// "process" category when a scenario has no semantic requirements.
	Category          string   `json:"category,omitempty" yaml:"category"`
	ProducesSemantics []string `json:"producesSemantics,omitempty" yaml:"producesSemantics"`
	ProducesStates    []string `json:"producesStates,omitempty" yaml:"producesStates"`
}

// ArtifactRule is one declared bundle an operation can apply to satisfy a
// cluster of semantic types and domain states at once.
type ArtifactRule struct {
	ID                string   `json:"id,omitempty" yaml:"id"`
	ArtifactKind      string   `json:"artifactKind" yaml:"artifactKind"`
	Priority          int      `json:"priority,omitempty" yaml:"priority"`
	ProducesSemantics []string `json:"producesSemantics,omitempty" yaml:"producesSemantics"`
	ProducesStates    []string `json:"producesStates,omitempty" yaml:"producesStates"`
}

// ArtifactRuleSet holds the artifact rules declared for one operation.
type ArtifactRuleSet struct {
	Rules []ArtifactRule `json:"rules" yaml:"rules"`

	// Composable enables greedy set-cover selection across multiple rules
	// in a single scenario (one deploy carrying several artifacts).
	Composable bool `json:"composable,omitempty" yaml:"composable"`
}

// OperationRequirement carries per-operation domain configuration from the
// sidecar, currently the request-field value bindings.
type OperationRequirement struct {
	// ValueBindings maps a dotted request field path to a dotted source
	// reference. Sources beginning with "response." bind to a field
	// extracted from a prerequisite operation's response; anything else
	// names a runtime parameter resolved at execution time.
	ValueBindings map[string]string `json:"valueBindings,omitempty" yaml:"valueBindings"`
}

// DomainSemantics is the sidecar document augmenting the operation graph
// with domain knowledge the OpenAPI document cannot express.
type DomainSemantics struct {
	Identifiers            []string                        `json:"identifiers,omitempty" yaml:"identifiers"`
	Capabilities           []string                        `json:"capabilities,omitempty" yaml:"capabilities"`
	RuntimeStates          map[string]RuntimeState         `json:"runtimeStates,omitempty" yaml:"runtimeStates"`
	OperationRequirements  map[string]OperationRequirement `json:"operationRequirements,omitempty" yaml:"operationRequirements"`
	ArtifactKinds          map[string]ArtifactKind         `json:"artifactKinds,omitempty" yaml:"artifactKinds"`
	OperationArtifactRules map[string]ArtifactRuleSet      `json:"operationArtifactRules,omitempty" yaml:"operationArtifactRules"`
}

// StateRequires returns the prerequisites of a domain state, or nil for
// states with none declared (identifiers, capabilities, unknown states).
func (d *DomainSemantics) StateRequires(state string) []string {
	if d == nil {
		return nil
	}
	if rs, ok := d.RuntimeStates[state]; ok {
		return rs.Requires
	}
	return nil
}

// RulesFor returns the artifact rule set declared for an operation, or nil.
func (d *DomainSemantics) RulesFor(operationID string) *ArtifactRuleSet {
	if d == nil {
		return nil
	}
	if rs, ok := d.OperationArtifactRules[operationID]; ok {
		return &rs
	}
	return nil
}

// BindingsFor returns the value bindings declared for an operation.
func (d *DomainSemantics) BindingsFor(operationID string) map[string]string {
	if d == nil {
		return nil
	}
	return d.OperationRequirements[operationID].ValueBindings
}

// OperationGraph is the loaded, indexed operation graph. Construction via
// NewOperationGraph builds the reverse indexes once; the graph is read-only
// afterwards and safe for concurrent use across endpoint resolutions.
type OperationGraph struct {
	Operations map[string]*OperationNode
	Bootstraps []BootstrapSequence
	Domain     *DomainSemantics

	producers       map[string][]string // semantic type -> producing operation ids
	primaries       map[string][]string // semantic type -> authoritative producer ids
	domainProducers map[string][]string // domain state -> producing operation ids
	fingerprint     string
}

// NewOperationGraph indexes the given operations, bootstrap sequences, and
// sidecar into a graph. Producer lists are sorted by operation id so that
// resolution order is stable across runs.
func NewOperationGraph(ops []*OperationNode, bootstraps []BootstrapSequence, domain *DomainSemantics) *OperationGraph {
	g := &OperationGraph{
		Operations:      make(map[string]*OperationNode, len(ops)),
		Bootstraps:      bootstraps,
		Domain:          domain,
		producers:       make(map[string][]string),
		primaries:       make(map[string][]string),
		domainProducers: make(map[string][]string),
	}
	for _, op := range ops {
		g.Operations[op.ID] = op
		for _, sem := range op.Produces {
			g.producers[sem] = append(g.producers[sem], op.ID)
		}
		for _, sem := range op.PrimaryProduces {
			g.primaries[sem] = append(g.primaries[sem], op.ID)
		}
		for _, state := range op.AllDomainProduces() {
			g.domainProducers[state] = append(g.domainProducers[state], op.ID)
		}
		// Artifact rules extend what a composite operation can produce
		// beyond its flat produces list.
		if rs := domain.RulesFor(op.ID); rs != nil {
			for _, rule := range rs.Rules {
				for _, sem := range rule.ProducesSemantics {
					g.producers[sem] = appendUnique(g.producers[sem], op.ID)
				}
				for _, state := range rule.ProducesStates {
					g.domainProducers[state] = appendUnique(g.domainProducers[state], op.ID)
				}
			}
		}
	}
	for _, idx := range []map[string][]string{g.producers, g.primaries, g.domainProducers} {
		for k := range idx {
			sortStrings(idx[k])
		}
	}
	return g
}

// Operation returns the node for an id, or nil when absent.
func (g *OperationGraph) Operation(id string) *OperationNode {
	return g.Operations[id]
}

// ProducersOf returns the ids of every operation producing a semantic type,
// sorted by id. The slice is shared; callers must not mutate it.
func (g *OperationGraph) ProducersOf(semanticType string) []string {
	return g.producers[semanticType]
}

// PrimaryProducersOf returns the authoritative producers of a semantic type.
func (g *OperationGraph) PrimaryProducersOf(semanticType string) []string {
	return g.primaries[semanticType]
}

// DomainProducersOf returns the operations realizing a domain state.
func (g *OperationGraph) DomainProducersOf(state string) []string {
	return g.domainProducers[state]
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}
