package model

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns a deep copy of p with identifiers and tags trimmed and
// NFC-normalized, tags deduplicated and sorted, and metadata compacted.
// Entry order is preserved. Invalid metadata is left as is for Validate to
// reject.
func (p Pool) Normalize() Pool {
	c := p.Clone()
	c.ID = normalizeIdent(c.ID)
	c.Rule.Tag = normalizeIdent(c.Rule.Tag)
	if c.Rule.Kind == "" {
		c.Rule.Kind = RuleNone
	}
	for i := range c.Entries {
		e := &c.Entries[i]
		e.ID = normalizeIdent(e.ID)
		e.Tags = normalizeTags(e.Tags)
		if len(e.Metadata) > 0 {
			var buf bytes.Buffer
			if err := json.Compact(&buf, e.Metadata); err == nil {
				e.Metadata = buf.Bytes()
			}
		}
	}
	return c
}

// NormalizeID trims and NFC-normalizes a pool, entry or tag identifier the
// same way Normalize does, so lookups by raw id match installed pools.
func NormalizeID(s string) string {
	return normalizeIdent(s)
}

func normalizeIdent(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = normalizeIdent(t)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Validate checks the pool invariants: a non-empty id, at least one entry,
// unique non-empty entry ids, finite positive weights with a finite sum,
// non-empty tags, valid JSON metadata and a well-formed exclusion rule.
//
// Returns a *Error of KindValidation describing the first violation.
func (p Pool) Validate() error {
	if p.ID == "" {
		return NewValidationError("", "pool id is required")
	}
	if len(p.Entries) == 0 {
		return NewValidationError(p.ID, "pool has no entries")
	}

	switch p.Rule.Effective() {
	case RuleNone:
	case RuleExcludeLastN:
		if p.Rule.N < 1 {
			return NewValidationError(p.ID, "exclude_last_n requires n >= 1, got %d", p.Rule.N)
		}
	case RuleExcludeTag:
	default:
		return NewValidationError(p.ID, "unknown exclusion rule %q", p.Rule.Kind)
	}

	seen := make(map[string]int, len(p.Entries))
	var total float64
	for i, e := range p.Entries {
		if e.ID == "" {
			return NewValidationError(p.ID, "entry %d has an empty id", i)
		}
		if prev, ok := seen[e.ID]; ok {
			return NewValidationError(p.ID, "duplicate entry id %q at positions %d and %d", e.ID, prev, i)
		}
		seen[e.ID] = i
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) || e.Weight <= 0 {
			return NewValidationError(p.ID, "entry %q has non-positive weight %v", e.ID, e.Weight)
		}
		total += e.Weight
		for _, t := range e.Tags {
			if t == "" {
				return NewValidationError(p.ID, "entry %q has an empty tag", e.ID)
			}
		}
		if len(e.Metadata) > 0 && !json.Valid(e.Metadata) {
			return NewValidationError(p.ID, "entry %q has invalid metadata JSON", e.ID)
		}
	}
	// every candidate subset sums to at most total, so selection stays finite
	if math.IsInf(total, 0) {
		return NewValidationError(p.ID, "entry weights overflow: sum is not finite")
	}
	return nil
}
