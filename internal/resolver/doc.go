// Package resolver synthesizes endpoint scenarios: ordered operation
// chains whose cumulative production satisfies a target endpoint's semantic
// and domain-state requirements.
//
// The search is a breadth-first frontier of value-semantic states. Each
// expansion clones its parent, so branches never alias and any state is
// independently inspectable. Combinatorial blow-up is controlled entirely
// through deterministic caps (max scenarios, single cycle allowance, max
// prefix length), never through timeouts or concurrency.
//
// Unsatisfiable endpoints, pruned cycles, and capped output are all
// expressed through the data model. The resolver itself never fails.
package resolver
