package portmapper

// MappingSet is an immutable classification of every known mapping into
// exactly one of pending, created or failed. State transitions return a new
// snapshot; the zero value is the empty set. Collections keep insertion
// order so the manager's failed-mapping retry rotation is deterministic.
//
// MappingSet does no locking; the Manager serializes all transitions.
type MappingSet struct {
	pending []Mapping
	created []Mapping
	failed  []Mapping
}

// EmptyMappingSet is the set with no mappings in any state.
var EmptyMappingSet = MappingSet{}

// Pending returns the mappings waiting to be applied to a gateway.
func (s MappingSet) Pending() []Mapping { return copyMappings(s.pending) }

// Created returns the mappings successfully applied to at least one gateway.
func (s MappingSet) Created() []Mapping { return copyMappings(s.created) }

// Failed returns the mappings whose last create or renewal attempt failed.
func (s MappingSet) Failed() []Mapping { return copyMappings(s.failed) }

// Len returns the total number of mappings across all three states.
func (s MappingSet) Len() int { return len(s.pending) + len(s.created) + len(s.failed) }

// WithPending moves m into pending, inserting it if unknown.
func (s MappingSet) WithPending(m Mapping) MappingSet {
	if containsMapping(s.pending, m) {
		return s
	}
	return MappingSet{
		pending: append(copyMappings(s.pending), m),
		created: withoutMapping(s.created, m),
		failed:  withoutMapping(s.failed, m),
	}
}

// WithCreated moves m into created.
func (s MappingSet) WithCreated(m Mapping) MappingSet {
	if containsMapping(s.created, m) {
		return s
	}
	return MappingSet{
		pending: withoutMapping(s.pending, m),
		created: append(copyMappings(s.created), m),
		failed:  withoutMapping(s.failed, m),
	}
}

// WithFailed moves m into failed. A mapping already in failed keeps its
// position, so repeated failures do not perturb the retry rotation.
func (s MappingSet) WithFailed(m Mapping) MappingSet {
	if containsMapping(s.failed, m) {
		return s
	}
	return MappingSet{
		pending: withoutMapping(s.pending, m),
		created: withoutMapping(s.created, m),
		failed:  append(copyMappings(s.failed), m),
	}
}

// Remove deletes m from whichever collection holds it and reports whether it
// was in created, which tells the caller a real deletion against gateways is
// still needed.
func (s MappingSet) Remove(m Mapping) (MappingSet, bool) {
	wasCreated := containsMapping(s.created, m)
	return MappingSet{
		pending: withoutMapping(s.pending, m),
		created: withoutMapping(s.created, m),
		failed:  withoutMapping(s.failed, m),
	}, wasCreated
}

// WithAllPending moves every created and failed mapping back to pending,
// used when discovery is torn down and mappings must be re-applied later.
func (s MappingSet) WithAllPending() MappingSet {
	pending := make([]Mapping, 0, s.Len())
	pending = append(pending, s.pending...)
	pending = append(pending, s.created...)
	pending = append(pending, s.failed...)
	return MappingSet{pending: pending}
}

func copyMappings(ms []Mapping) []Mapping {
	if len(ms) == 0 {
		return nil
	}
	out := make([]Mapping, len(ms))
	copy(out, ms)
	return out
}

func withoutMapping(ms []Mapping, m Mapping) []Mapping {
	out := make([]Mapping, 0, len(ms))
	for _, v := range ms {
		if v != m {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func containsMapping(ms []Mapping, m Mapping) bool {
	for _, v := range ms {
		if v == m {
			return true
		}
	}
	return false
}
