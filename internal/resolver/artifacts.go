package resolver

import (
	"slices"

	"github.com/opweave/opweave/internal/ir"
)

// DefaultArtifactCategory is the artifact category preferred when a
// composite operation appears in a scenario with no semantic requirements
// to cover. Picking one inert default avoids flooding unrelated scenarios
// with every declared artifact kind.
const DefaultArtifactCategory = "process"

// ruleCoverage is an artifact rule with its effective productions: the
// rule's explicit semantics and states unioned with its kind's defaults.
type ruleCoverage struct {
	rule      ir.ArtifactRule
	semantics []string
	states    []string
}

func effectiveCoverage(rule ir.ArtifactRule, kinds map[string]ir.ArtifactKind) ruleCoverage {
	cov := ruleCoverage{
		rule:      rule,
		semantics: append([]string(nil), rule.ProducesSemantics...),
		states:    append([]string(nil), rule.ProducesStates...),
	}
	if kind, ok := kinds[rule.ArtifactKind]; ok {
		for _, sem := range kind.ProducesSemantics {
			if !slices.Contains(cov.semantics, sem) {
				cov.semantics = append(cov.semantics, sem)
			}
		}
		for _, state := range kind.ProducesStates {
			if !slices.Contains(cov.states, state) {
				cov.states = append(cov.states, state)
			}
		}
	}
	return cov
}

func newCoverageCount(cov ruleCoverage, unmet ir.StringSet) int {
	n := 0
	for _, sem := range cov.semantics {
		if unmet.Has(sem) {
			n++
		}
	}
	return n
}

// selectArtifactRules picks the artifact bundles a composite operation
// applies to cover the currently-unmet semantic set.
//
// Composable rule sets run a greedy set cover: each round takes the rule
// covering the most still-unmet semantics, tie-broken by lower declared
// priority, then smaller bundle, then rule id, until the unmet set is
// exhausted or no rule adds coverage. The greedy pick is a heuristic, not a
// minimal-cover solver; downstream scenario counts are calibrated against
// this exact behavior.
//
// With no unmet semantics at all, a single default rule is chosen,
// preferring the kind whose category matches preferredCategory.
//
// Non-composable sets fall back to a priority-ordered pass keeping only
// rules that add new coverage.
//
// In every mode, a rule adding zero new covered semantics is never applied.
func selectArtifactRules(rs *ir.ArtifactRuleSet, kinds map[string]ir.ArtifactKind, unmet ir.StringSet, preferredCategory string) []ruleCoverage {
	if rs == nil || len(rs.Rules) == 0 {
		return nil
	}
	if preferredCategory == "" {
		preferredCategory = DefaultArtifactCategory
	}

	coverages := make([]ruleCoverage, 0, len(rs.Rules))
	for _, rule := range rs.Rules {
		coverages = append(coverages, effectiveCoverage(rule, kinds))
	}

	anyUnmetCoverable := false
	for _, cov := range coverages {
		if newCoverageCount(cov, unmet) > 0 {
			anyUnmetCoverable = true
			break
		}
	}
	if !anyUnmetCoverable {
		return []ruleCoverage{pickDefaultRule(coverages, kinds, preferredCategory)}
	}

	if rs.Composable {
		return greedyCover(coverages, unmet)
	}
	return priorityPick(coverages, unmet)
}

func pickDefaultRule(coverages []ruleCoverage, kinds map[string]ir.ArtifactKind, preferredCategory string) ruleCoverage {
	best := coverages[0]
	bestPreferred := categoryOf(best.rule, kinds) == preferredCategory
	for _, cov := range coverages[1:] {
		preferred := categoryOf(cov.rule, kinds) == preferredCategory
		switch {
		case preferred != bestPreferred:
			if preferred {
				best, bestPreferred = cov, true
			}
		case cov.rule.Priority != best.rule.Priority:
			if cov.rule.Priority < best.rule.Priority {
				best = cov
			}
		case cov.rule.ID < best.rule.ID:
			best = cov
		}
	}
	return best
}

func categoryOf(rule ir.ArtifactRule, kinds map[string]ir.ArtifactKind) string {
	if kind, ok := kinds[rule.ArtifactKind]; ok {
		return kind.Category
	}
	return ""
}

func greedyCover(coverages []ruleCoverage, unmet ir.StringSet) []ruleCoverage {
	remaining := unmet.Clone()
	applied := make(map[string]bool)
	var selected []ruleCoverage

	for len(remaining) > 0 {
		bestIdx := -1
		bestCount := 0
		for i, cov := range coverages {
			if applied[ruleKey(cov.rule)] {
				continue
			}
			count := newCoverageCount(cov, remaining)
			if count == 0 {
				continue
			}
			if bestIdx == -1 || betterGreedy(cov, count, coverages[bestIdx], bestCount) {
				bestIdx, bestCount = i, count
			}
		}
		if bestIdx == -1 {
			break // nothing left adds coverage
		}
		chosen := coverages[bestIdx]
		applied[ruleKey(chosen.rule)] = true
		selected = append(selected, chosen)
		for _, sem := range chosen.semantics {
			remaining.Remove(sem)
		}
	}
	return selected
}

// betterGreedy orders candidates within a greedy round: most new coverage,
// then lower priority number, then smaller bundle, then rule id.
func betterGreedy(a ruleCoverage, aCount int, b ruleCoverage, bCount int) bool {
	if aCount != bCount {
		return aCount > bCount
	}
	if a.rule.Priority != b.rule.Priority {
		return a.rule.Priority < b.rule.Priority
	}
	if len(a.semantics) != len(b.semantics) {
		return len(a.semantics) < len(b.semantics)
	}
	return a.rule.ID < b.rule.ID
}

func priorityPick(coverages []ruleCoverage, unmet ir.StringSet) []ruleCoverage {
	sorted := append([]ruleCoverage(nil), coverages...)
	slices.SortStableFunc(sorted, func(a, b ruleCoverage) int {
		if a.rule.Priority != b.rule.Priority {
			return a.rule.Priority - b.rule.Priority
		}
		return compareStrings(a.rule.ID, b.rule.ID)
	})

	remaining := unmet.Clone()
	var selected []ruleCoverage
	for _, cov := range sorted {
		if newCoverageCount(cov, remaining) == 0 {
			continue
		}
		selected = append(selected, cov)
		for _, sem := range cov.semantics {
			remaining.Remove(sem)
		}
	}
	return selected
}

// rulesForMissingStates returns rules, in priority order, whose state
// productions cover a still-missing domain state and that are not already
// selected. Used by domain-only expansion, where coverage is gated on
// states rather than semantics.
func rulesForMissingStates(rs *ir.ArtifactRuleSet, kinds map[string]ir.ArtifactKind, missing []string, already []ruleCoverage) []ruleCoverage {
	missingSet := ir.NewStringSet(missing...)
	chosen := make(map[string]bool, len(already))
	for _, cov := range already {
		chosen[ruleKey(cov.rule)] = true
	}

	coverages := make([]ruleCoverage, 0, len(rs.Rules))
	for _, rule := range rs.Rules {
		coverages = append(coverages, effectiveCoverage(rule, kinds))
	}
	slices.SortStableFunc(coverages, func(a, b ruleCoverage) int {
		if a.rule.Priority != b.rule.Priority {
			return a.rule.Priority - b.rule.Priority
		}
		return compareStrings(a.rule.ID, b.rule.ID)
	})

	var selected []ruleCoverage
	for _, cov := range coverages {
		if chosen[ruleKey(cov.rule)] {
			continue
		}
		adds := false
		for _, state := range cov.states {
			if missingSet.Has(state) {
				adds = true
				break
			}
		}
		if !adds {
			continue
		}
		chosen[ruleKey(cov.rule)] = true
		selected = append(selected, cov)
		for _, state := range cov.states {
			missingSet.Remove(state)
		}
	}
	return selected
}

func ruleKey(rule ir.ArtifactRule) string {
	if rule.ID != "" {
		return rule.ID
	}
	return rule.ArtifactKind
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
