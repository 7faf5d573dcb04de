// Package ir provides the intermediate representation shared by every stage
// of the generator: the operation graph and its domain-semantics sidecar,
// canonical schema shapes, resolved endpoint scenarios, and request plans.
//
// This package contains type definitions and identity computation only. All
// other internal packages import ir; ir imports nothing internal. This keeps
// the IR the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Scenario identity is content-addressed: sha256 over RFC 8785 canonical
//     JSON (UTF-16 key ordering, NFC normalization, no HTML escaping).
//   - Resolver state is value-semantic; nothing in ir carries hidden
//     mutable caches.
//   - All externally visible JSON tags use camelCase to match the graph
//     document and scenario output contract.
package ir
