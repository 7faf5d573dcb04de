package resolver

import (
	"github.com/opweave/opweave/internal/ir"
)

// searchState is one branch of the frontier. States are pure values: every
// expansion works on a clone, and a parent is never mutated once its
// children exist. produced only grows along a branch; needed accumulates
// every requirement encountered (the endpoint's plus each intermediate
// producer's own prerequisites) and is never reduced.
type searchState struct {
	produced     ir.StringSet
	needed       ir.StringSet
	domainStates ir.StringSet

	// ops is the ordered prerequisite chain built so far. The target
	// endpoint is never an element.
	ops []string

	// cycle records that the branch has consumed its single repeat
	// allowance. A second repeat prunes the branch.
	cycle bool

	// providers maps each produced semantic type to the operation that
	// produced it first along this chain (first-wins).
	providers map[string]string

	// Bootstrap provenance.
	bootstrap         string
	bootstrapComplete bool

	// appliedRules lists artifact rule ids applied by the set-cover
	// selector, in application order.
	appliedRules []string
}

func newSearchState() *searchState {
	return &searchState{
		produced:     ir.NewStringSet(),
		needed:       ir.NewStringSet(),
		domainStates: ir.NewStringSet(),
		providers:    make(map[string]string),
	}
}

// clone returns a structurally independent copy.
func (s *searchState) clone() *searchState {
	providers := make(map[string]string, len(s.providers))
	for k, v := range s.providers {
		providers[k] = v
	}
	return &searchState{
		produced:          s.produced.Clone(),
		needed:            s.needed.Clone(),
		domainStates:      s.domainStates.Clone(),
		ops:               append([]string(nil), s.ops...),
		cycle:             s.cycle,
		providers:         providers,
		bootstrap:         s.bootstrap,
		bootstrapComplete: s.bootstrapComplete,
		appliedRules:      append([]string(nil), s.appliedRules...),
	}
}

// produce records semantics realized by an operation, first provider wins.
func (s *searchState) produce(operationID string, semantics []string) {
	for _, sem := range semantics {
		if s.produced.Add(sem) {
			s.providers[sem] = operationID
		}
	}
}

// countOccurrences returns how many times an operation already appears in
// the chain.
func (s *searchState) countOccurrences(operationID string) int {
	n := 0
	for _, id := range s.ops {
		if id == operationID {
			n++
		}
	}
	return n
}

// signature is the exact dedup identity of the branch.
func (s *searchState) signature() string {
	return ir.MustChainSignature(s.cycle, s.ops, s.produced, s.needed)
}

// frontier is a plain FIFO worklist. The resolver is single-threaded, so no
// locking: breadth-first order is part of the output contract (it decides
// which scenarios survive when the cap is hit).
type frontier struct {
	states []*searchState
}

func (f *frontier) push(s *searchState) {
	f.states = append(f.states, s)
}

func (f *frontier) pop() (*searchState, bool) {
	if len(f.states) == 0 {
		return nil, false
	}
	s := f.states[0]
	f.states[0] = nil // release for GC
	f.states = f.states[1:]
	return s, true
}

func (f *frontier) empty() bool {
	return len(f.states) == 0
}
