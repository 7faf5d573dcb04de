package ir

import "slices"

// StringSet is an unordered set of names (semantic types, domain states).
// Iteration order is never relied upon; use Sorted for deterministic output.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given members.
func NewStringSet(members ...string) StringSet {
	s := make(StringSet, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s StringSet) Has(member string) bool {
	_, ok := s[member]
	return ok
}

// Add inserts a member, reporting whether it was new.
func (s StringSet) Add(member string) bool {
	if _, ok := s[member]; ok {
		return false
	}
	s[member] = struct{}{}
	return true
}

// AddAll inserts every member of the given slice.
func (s StringSet) AddAll(members []string) {
	for _, m := range members {
		s[m] = struct{}{}
	}
}

// Remove deletes a member if present.
func (s StringSet) Remove(member string) {
	delete(s, member)
}

// Clone returns an independent copy. Branch expansion in the resolver
// depends on this: parent states are never mutated in place.
func (s StringSet) Clone() StringSet {
	out := make(StringSet, len(s))
	for m := range s {
		out[m] = struct{}{}
	}
	return out
}

// ContainsAll reports whether every member of the slice is in the set.
func (s StringSet) ContainsAll(members []string) bool {
	for _, m := range members {
		if _, ok := s[m]; !ok {
			return false
		}
	}
	return true
}

// ContainsAny reports whether at least one member of the slice is in the set.
func (s StringSet) ContainsAny(members []string) bool {
	for _, m := range members {
		if _, ok := s[m]; ok {
			return true
		}
	}
	return false
}

// Sorted returns the members in lexicographic order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

func sortStrings(list []string) {
	slices.Sort(list)
}
