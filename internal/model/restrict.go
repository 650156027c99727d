package model

import "slices"

// Restriction narrows a pool to a subset of its entries at runtime. Target,
// when non-empty, keeps only the named entries; Exclude then drops the named
// entries. Both refer to entry ids of the installed definition.
type Restriction struct {
	Target  []string `json:"target,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// IsZero reports whether the restriction names no entries.
func (r Restriction) IsZero() bool {
	return len(r.Target) == 0 && len(r.Exclude) == 0
}

// Restrict returns a copy of p holding only the entries r leaves, in
// definition order. Naming an unknown entry, or leaving no entries at all,
// is a validation error. The result keeps p's rule and has Version 0.
func (p Pool) Restrict(r Restriction) (Pool, error) {
	if r.IsZero() {
		return Pool{}, NewValidationError(p.ID, "restriction names no entries")
	}

	known := make(map[string]struct{}, len(p.Entries))
	for _, e := range p.Entries {
		known[e.ID] = struct{}{}
	}
	target, err := p.entrySet(known, r.Target)
	if err != nil {
		return Pool{}, err
	}
	exclude, err := p.entrySet(known, r.Exclude)
	if err != nil {
		return Pool{}, err
	}

	out := p.Clone()
	out.Version = 0
	out.Entries = slices.DeleteFunc(out.Entries, func(e Entry) bool {
		if _, ok := exclude[e.ID]; ok {
			return true
		}
		if len(target) == 0 {
			return false
		}
		_, ok := target[e.ID]
		return !ok
	})
	if len(out.Entries) == 0 {
		return Pool{}, NewValidationError(p.ID, "restriction leaves no entries")
	}
	return out, nil
}

func (p Pool) entrySet(known map[string]struct{}, ids []string) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = normalizeIdent(id)
		if _, ok := known[id]; !ok {
			return nil, NewValidationError(p.ID, "unknown entry %q", id)
		}
		set[id] = struct{}{}
	}
	return set, nil
}
