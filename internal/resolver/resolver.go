package resolver

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/opweave/opweave/internal/ir"
)

// Defaults for resolution caps.
const (
	DefaultMaxScenarios   = 20
	DefaultCycleAllowance = 1
	DefaultMaxPrefixOps   = 12
)

// Options configures one resolution run. The zero value resolves with
// defaults; callers construct Options explicitly, there is no hidden
// configuration lookup.
type Options struct {
	// MaxScenarios bounds output size. The search stops once this many
	// goal chains are materialized.
	MaxScenarios int

	// CycleAllowance is how many repeats of an already-seen operation a
	// branch may consume. Anything above 1 is untested territory; the
	// search invariants assume at most one repeat.
	CycleAllowance int

	// LongChains lets goal states keep expanding for deeper coverage,
	// capped by MaxPrefixOps.
	LongChains bool

	// MaxPrefixOps caps the prerequisite chain length.
	MaxPrefixOps int

	// PreferredArtifactCategory overrides the default artifact category
	// chosen when a composite operation has nothing to cover.
	PreferredArtifactCategory string

	// Logger receives debug-level expansion traces. Nil disables logging.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxScenarios <= 0 {
		o.MaxScenarios = DefaultMaxScenarios
	}
	if o.CycleAllowance <= 0 {
		o.CycleAllowance = DefaultCycleAllowance
	}
	if o.MaxPrefixOps <= 0 {
		o.MaxPrefixOps = DefaultMaxPrefixOps
	}
	if o.PreferredArtifactCategory == "" {
		o.PreferredArtifactCategory = DefaultArtifactCategory
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Resolve finds operation chains satisfying the endpoint's required
// semantic types and domain-state preconditions.
//
// Terminal conditions are data, never errors: a required semantic type with
// zero producers anywhere in the graph yields a single unsatisfied
// scenario; an endpoint with no requirements at all yields the trivial
// one-operation scenario immediately.
func Resolve(graph *ir.OperationGraph, endpointID string, opts Options) *ir.ScenarioCollection {
	opts = opts.withDefaults()
	endpoint := graph.Operation(endpointID)
	if endpoint == nil {
		// Contract is that the id exists; an unknown id degrades to an
		// empty unsatisfied collection rather than a panic.
		return &ir.ScenarioCollection{Endpoint: endpointID, Unsatisfied: true}
	}

	r := &run{
		graph:    graph,
		endpoint: endpoint,
		opts:     opts,
		seen:     make(map[string]bool),
		selfMade: ir.NewStringSet(endpoint.Produces...),
	}

	collection := &ir.ScenarioCollection{
		Endpoint:              endpointID,
		RequiredSemanticTypes: sortedCopy(endpoint.Requires.Required),
		OptionalSemanticTypes: sortedCopy(endpoint.Requires.Optional),
	}

	if missing := r.missingProducers(); len(missing) > 0 {
		collection.Unsatisfied = true
		collection.Scenarios = []*ir.EndpointScenario{{
			ID:                   ir.ScenarioUnsatisfiedID,
			Endpoint:             endpointID,
			Operations:           []ir.OperationRef{r.ref(endpoint)},
			MissingSemanticTypes: missing,
		}}
		return collection
	}

	if len(endpoint.Requires.Required) == 0 && !r.hasDomainRequirements() {
		collection.Scenarios = []*ir.EndpointScenario{r.materialize(newSearchState())}
		r.assignIDs(collection.Scenarios)
		return collection
	}

	scenarios, truncated := r.search()
	r.order(scenarios)
	r.assignIDs(scenarios)
	collection.Scenarios = scenarios
	collection.Truncated = truncated
	return collection
}

type run struct {
	graph    *ir.OperationGraph
	endpoint *ir.OperationNode
	opts     Options
	seen     map[string]bool // chain signatures already materialized
	selfMade ir.StringSet    // semantics the endpoint itself produces
}

// missingProducers returns required semantic types with no producer in the
// graph and no self-production by the endpoint, sorted.
func (r *run) missingProducers() []string {
	var missing []string
	for _, sem := range r.endpoint.Requires.Required {
		if r.selfMade.Has(sem) {
			continue
		}
		if len(r.graph.ProducersOf(sem)) == 0 {
			missing = append(missing, sem)
		}
	}
	slices.Sort(missing)
	return missing
}

func (r *run) hasDomainRequirements() bool {
	return len(r.endpoint.DomainRequiresAll) > 0 || len(r.endpoint.DomainDisjunctions) > 0
}

// search runs the breadth-first frontier until it empties or MaxScenarios
// goal chains are collected. The second return reports whether the cap cut
// the search short.
func (r *run) search() ([]*ir.EndpointScenario, bool) {
	var results []*ir.EndpointScenario
	f := &frontier{}

	for _, seed := range r.seeds() {
		f.push(seed)
	}

	for !f.empty() {
		if len(results) >= r.opts.MaxScenarios {
			r.opts.Logger.Debug("scenario cap hit", "endpoint", r.endpoint.ID, "cap", r.opts.MaxScenarios)
			return results, true
		}
		state, _ := f.pop()

		if r.isGoal(state) {
			if sig := state.signature(); !r.seen[sig] {
				r.seen[sig] = true
				results = append(results, r.materialize(state))
				r.opts.Logger.Debug("chain accepted",
					"endpoint", r.endpoint.ID,
					"ops", state.ops,
					"cycle", state.cycle)
			}
			// Bounded long-chain mode: goal states may keep expanding
			// for deeper coverage.
			if !r.opts.LongChains || len(state.ops) >= r.opts.MaxPrefixOps {
				continue
			}
		}

		if len(state.ops) >= r.opts.MaxPrefixOps {
			continue
		}

		for _, child := range r.expand(state) {
			f.push(child)
		}
	}
	return results, false
}

// seeds builds the initial frontier: the empty state plus one seeded state
// per bootstrap sequence whose declared production intersects the
// endpoint's required set.
func (r *run) seeds() []*searchState {
	empty := newSearchState()
	empty.needed.AddAll(r.endpoint.Requires.Required)
	seeds := []*searchState{empty}

	required := ir.NewStringSet(r.endpoint.Requires.Required...)
	for _, bs := range r.graph.Bootstraps {
		if !required.ContainsAny(bs.Produces) {
			continue
		}
		state := newSearchState()
		state.needed.AddAll(r.endpoint.Requires.Required)
		state.bootstrap = bs.Name
		state.bootstrapComplete = ir.NewStringSet(bs.Produces...).ContainsAll(r.endpoint.Requires.Required)
		for _, opID := range bs.Operations {
			op := r.graph.Operation(opID)
			if op == nil {
				continue
			}
			state.ops = append(state.ops, opID)
			state.produce(opID, op.Produces)
			state.domainStates.AddAll(op.AllDomainProduces())
		}
		// The declared union may exceed the sum of per-op produces
		// (sequences can realize emergent semantics).
		state.produce(bs.Name, bs.Produces)
		seeds = append(seeds, state)
	}
	return seeds
}

// remainingSemantics returns needed types not yet produced and not
// self-produced by the endpoint, sorted for deterministic expansion.
func (r *run) remainingSemantics(state *searchState) []string {
	var remaining []string
	for sem := range state.needed {
		if !state.produced.Has(sem) && !r.selfMade.Has(sem) {
			remaining = append(remaining, sem)
		}
	}
	slices.Sort(remaining)
	return remaining
}

func (r *run) isGoal(state *searchState) bool {
	if len(r.remainingSemantics(state)) > 0 {
		return false
	}
	if !state.domainStates.ContainsAll(r.endpoint.DomainRequiresAll) {
		return false
	}
	for _, group := range r.endpoint.DomainDisjunctions {
		if !state.domainStates.ContainsAny(group) {
			return false
		}
	}
	return true
}

// expand produces a state's children. With unmet semantics, the first
// remaining type drives producer expansion; with semantics satisfied but
// domain states missing, expansion switches to domain-only mode. When every
// semantic candidate is deferred on unmet domain prerequisites, expansion
// detours into domain mode toward those prerequisites so the deferred
// producers become admissible later.
func (r *run) expand(state *searchState) []*searchState {
	remaining := r.remainingSemantics(state)
	if len(remaining) > 0 {
		children, deferred := r.expandSemantic(state, remaining)
		if len(children) == 0 && len(deferred) > 0 {
			children = r.expandDomainToward(state, deferred)
		}
		return children
	}
	return r.expandDomainToward(state, r.endpointDomainNeeds(state))
}

// expandSemantic expands producers of the first remaining type. The second
// return lists domain states that blocked otherwise-viable candidates.
func (r *run) expandSemantic(state *searchState, remaining []string) ([]*searchState, []string) {
	target := remaining[0]
	var children []*searchState
	deferred := ir.NewStringSet()
	for _, candidateID := range r.candidatesFor(target, remaining) {
		op := r.graph.Operation(candidateID)
		if op != nil && blockedDomainStates(op, state, deferred) {
			continue
		}
		if child := r.applyCandidate(state, candidateID, remaining, false, nil); child != nil {
			children = append(children, child)
		}
	}
	return children, deferred.Sorted()
}

// blockedDomainStates reports whether a candidate has unmet domain
// prerequisites, accumulating them into the deferred set.
func blockedDomainStates(op *ir.OperationNode, state *searchState, deferred ir.StringSet) bool {
	blocked := false
	for _, name := range op.DomainRequiresAll {
		if !state.domainStates.Has(name) {
			deferred.Add(name)
			blocked = true
		}
	}
	for _, group := range op.DomainDisjunctions {
		if state.domainStates.ContainsAny(group) {
			continue
		}
		deferred.AddAll(group)
		blocked = true
	}
	return blocked
}

// candidatesFor selects producers for a semantic type. Authoritative
// providers win outright; incidental producers are filtered to those that
// also help satisfy another still-needed type, which keeps large
// side-effect producers out of unrelated chains. The filter relaxes when it
// would leave nothing.
func (r *run) candidatesFor(target string, remaining []string) []string {
	primary := withoutID(r.graph.PrimaryProducersOf(target), r.endpoint.ID)
	if len(primary) > 0 {
		return primary
	}
	all := withoutID(r.graph.ProducersOf(target), r.endpoint.ID)
	if len(remaining) <= 1 {
		return all
	}
	others := ir.NewStringSet(remaining...)
	others.Remove(target)
	var helpful []string
	for _, id := range all {
		op := r.graph.Operation(id)
		if op != nil && others.ContainsAny(op.Produces) {
			helpful = append(helpful, id)
		}
	}
	if len(helpful) > 0 {
		return helpful
	}
	return all
}

// expandDomainToward expands candidates toward the transitive closure of
// the given missing domain states, gated purely on domain novelty: a child
// that realizes no previously-absent state is pruned as non-progressing,
// which is what terminates domain-stagnant branches.
func (r *run) expandDomainToward(state *searchState, wanted []string) []*searchState {
	missing := r.domainClosure(state, wanted)
	if len(missing) == 0 {
		return nil
	}

	candidateSet := ir.NewStringSet()
	for _, stateName := range missing {
		for _, id := range r.graph.DomainProducersOf(stateName) {
			if id != r.endpoint.ID {
				candidateSet.Add(id)
			}
		}
	}

	var children []*searchState
	for _, candidateID := range candidateSet.Sorted() {
		if child := r.applyCandidate(state, candidateID, nil, true, missing); child != nil {
			children = append(children, child)
		}
	}
	return children
}

// endpointDomainNeeds returns the endpoint's currently unmet domain
// requirements: flat states plus every member of unsatisfied disjunctions.
func (r *run) endpointDomainNeeds(state *searchState) []string {
	needs := ir.NewStringSet()
	for _, name := range r.endpoint.DomainRequiresAll {
		if !state.domainStates.Has(name) {
			needs.Add(name)
		}
	}
	for _, group := range r.endpoint.DomainDisjunctions {
		if !state.domainStates.ContainsAny(group) {
			needs.AddAll(group)
		}
	}
	return needs.Sorted()
}

// domainClosure expands the wanted states with, transitively, every unmet
// prerequisite of theirs, sorted.
func (r *run) domainClosure(state *searchState, wanted []string) []string {
	closure := ir.NewStringSet()
	var add func(name string)
	add = func(name string) {
		if state.domainStates.Has(name) || !closure.Add(name) {
			return
		}
		for _, prereq := range r.graph.Domain.StateRequires(name) {
			add(prereq)
		}
	}
	for _, name := range wanted {
		add(name)
	}
	return closure.Sorted()
}

// applyCandidate attempts to extend a chain with one producer. Returns nil
// when the branch must be pruned: cycle allowance consumed, producer domain
// prerequisites unmet, a newly added state whose own prerequisites are
// absent, or domain-mode non-progression. missingStates carries the target
// closure in domain mode.
func (r *run) applyCandidate(state *searchState, candidateID string, remaining []string, domainMode bool, missingStates []string) *searchState {
	op := r.graph.Operation(candidateID)
	if op == nil {
		return nil
	}

	occurrences := state.countOccurrences(candidateID)
	enteringCycle := false
	if occurrences > 0 {
		if state.cycle || occurrences >= r.opts.CycleAllowance+1 {
			return nil
		}
		enteringCycle = true
	}

	// A producer with its own unmet domain prerequisites is deferred: the
	// branch that satisfies them separately will pick it up later.
	if !state.domainStates.ContainsAll(op.DomainRequiresAll) {
		return nil
	}
	for _, group := range op.DomainDisjunctions {
		if !state.domainStates.ContainsAny(group) {
			return nil
		}
	}

	child := state.clone()
	child.ops = append(child.ops, candidateID)
	if enteringCycle {
		child.cycle = true
	}

	newStates := op.AllDomainProduces()
	if rs := r.graph.Domain.RulesFor(candidateID); rs != nil {
		// Composite artifact operation: the selector decides which
		// bundles the step carries instead of the flat produces list. In
		// domain-only mode the unmet set is empty, so the selector falls
		// back to its default-preferred rule, plus any rule realizing a
		// still-missing domain state.
		unmet := ir.NewStringSet(remaining...)
		selected := selectArtifactRules(rs, r.artifactKinds(), unmet, r.opts.PreferredArtifactCategory)
		if domainMode {
			selected = append(selected, rulesForMissingStates(rs, r.artifactKinds(), missingStates, selected)...)
		}
		for _, cov := range selected {
			child.produce(candidateID, cov.semantics)
			newStates = append(newStates, cov.states...)
			child.appliedRules = append(child.appliedRules, ruleKey(cov.rule))
		}
	} else {
		child.produce(candidateID, op.Produces)
	}
	child.needed.AddAll(op.Requires.Required)

	// Every state added by this step must have its own prerequisites
	// already realized, counting states accepted within the same step.
	// This enforces ordering along the chain, not merely eventual truth.
	// Acceptance iterates to a fixpoint so that a step adding both a state
	// and its prerequisite succeeds regardless of declaration order.
	addedAny := false
	pending := ir.NewStringSet()
	for _, name := range newStates {
		if !child.domainStates.Has(name) {
			pending.Add(name)
		}
	}
	for len(pending) > 0 {
		progressed := false
		for _, name := range pending.Sorted() {
			if child.domainStates.ContainsAll(r.graph.Domain.StateRequires(name)) {
				child.domainStates.Add(name)
				pending.Remove(name)
				addedAny = true
				progressed = true
			}
		}
		if !progressed {
			return nil // a new state's own prerequisites are unmet
		}
	}

	if domainMode && !addedAny {
		return nil // non-progressing
	}

	return child
}

func (r *run) artifactKinds() map[string]ir.ArtifactKind {
	if r.graph.Domain == nil {
		return nil
	}
	return r.graph.Domain.ArtifactKinds
}

// materialize builds the externally visible scenario for a goal state.
func (r *run) materialize(state *searchState) *ir.EndpointScenario {
	ops := make([]ir.OperationRef, 0, len(state.ops)+1)
	for _, id := range state.ops {
		if op := r.graph.Operation(id); op != nil {
			ops = append(ops, r.ref(op))
		} else {
			ops = append(ops, ir.OperationRef{OperationID: id})
		}
	}
	ops = append(ops, r.ref(r.endpoint))

	providers := make(map[string]string, len(state.providers))
	for k, v := range state.providers {
		providers[k] = v
	}

	required := append([]string(nil), r.endpoint.DomainRequiresAll...)
	for _, group := range r.endpoint.DomainDisjunctions {
		for _, name := range group {
			if state.domainStates.Has(name) && !slices.Contains(required, name) {
				required = append(required, name)
			}
		}
	}
	slices.Sort(required)

	return &ir.EndpointScenario{
		Endpoint:             r.endpoint.ID,
		Operations:           ops,
		Produced:             state.produced.Sorted(),
		Cycle:                state.cycle,
		Providers:            providers,
		DomainStatesRequired: required,
		DomainStatesProduced: state.domainStates.Sorted(),
		BootstrapUsed:        state.bootstrap,
		BootstrapComplete:    state.bootstrapComplete,
		AppliedArtifactRules: append([]string(nil), state.appliedRules...),
	}
}

// order sorts scenarios for downstream consumers: chains whose bootstrap
// alone covered every requirement first, then bootstrap-assisted chains,
// then by ascending operation count, with the op-id list as the final
// deterministic tie-break.
func (r *run) order(scenarios []*ir.EndpointScenario) {
	sort.SliceStable(scenarios, func(i, j int) bool {
		a, b := scenarios[i], scenarios[j]
		if a.BootstrapComplete != b.BootstrapComplete {
			return a.BootstrapComplete
		}
		aAssisted, bAssisted := a.BootstrapUsed != "", b.BootstrapUsed != ""
		if aAssisted != bAssisted {
			return aAssisted
		}
		if len(a.Operations) != len(b.Operations) {
			return len(a.Operations) < len(b.Operations)
		}
		return lessOpLists(a.Operations, b.Operations)
	})
}

func (r *run) assignIDs(scenarios []*ir.EndpointScenario) {
	for i, s := range scenarios {
		if s.ID == "" {
			s.ID = fmt.Sprintf("scenario-%d", i+1)
		}
	}
}

func (r *run) ref(op *ir.OperationNode) ir.OperationRef {
	return ir.OperationRef{OperationID: op.ID, Method: op.Method, Path: op.Path}
}

func lessOpLists(a, b []ir.OperationRef) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i].OperationID != b[i].OperationID {
			return a[i].OperationID < b[i].OperationID
		}
	}
	return len(a) < len(b)
}

func withoutID(list []string, id string) []string {
	var out []string
	for _, have := range list {
		if have != id {
			out = append(out, have)
		}
	}
	return out
}

func sortedCopy(list []string) []string {
	out := append([]string(nil), list...)
	slices.Sort(out)
	return out
}
