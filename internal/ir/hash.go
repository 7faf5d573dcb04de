package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// enables future algorithm migration without colliding with old hashes.
const (
	DomainChainSignature   = "opweave/chain/v1"
	DomainGraphFingerprint = "opweave/graph/v1"
)

// hashWithDomain computes sha256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ChainSignature computes the dedup signature of a search branch: the exact
// identity of (cycle flag, ordered op list, produced set, needed set).
// Structurally identical branches hash identically, so the resolver emits
// each distinct chain once no matter how many frontier paths reach it.
func ChainSignature(cycle bool, ops []string, produced, needed StringSet) (string, error) {
	obj := map[string]any{
		"cycle":    cycle,
		"ops":      ops,
		"produced": produced.Sorted(),
		"needed":   needed.Sorted(),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ChainSignature: %w", err)
	}
	return hashWithDomain(DomainChainSignature, canonical), nil
}

// MustChainSignature is like ChainSignature but panics on error. Signature
// inputs are ids and names, so marshaling cannot fail for well-formed state.
func MustChainSignature(cycle bool, ops []string, produced, needed StringSet) string {
	sig, err := ChainSignature(cycle, ops, produced, needed)
	if err != nil {
		panic(err)
	}
	return sig
}

// Fingerprint returns the graph's content hash, computing it on first use.
// Two loads of byte-equivalent documents share a fingerprint, which is what
// the run store keys on.
func (g *OperationGraph) Fingerprint() string {
	if g.fingerprint != "" {
		return g.fingerprint
	}
	ops := make([]any, 0, len(g.Operations))
	for _, id := range sortedKeys(g.Operations) {
		op := g.Operations[id]
		ops = append(ops, map[string]any{
			"id":       op.ID,
			"method":   op.Method,
			"path":     op.Path,
			"requires": op.Requires.Required,
			"optional": op.Requires.Optional,
			"produces": op.Produces,
			"primary":  op.PrimaryProduces,
			"domReq":   op.DomainRequiresAll,
			"domProd":  op.AllDomainProduces(),
		})
	}
	canonical, err := MarshalCanonical(map[string]any{"operations": ops})
	if err != nil {
		// Graph content is ids and names; this cannot fail post-load.
		panic(fmt.Errorf("graph fingerprint: %w", err))
	}
	g.fingerprint = hashWithDomain(DomainGraphFingerprint, canonical)
	return g.fingerprint
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}
