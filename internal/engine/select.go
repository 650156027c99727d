package engine

import (
	"math"

	"github.com/roach88/roulette/internal/model"
)

// Outcome is the kind of decision the engine reached.
type Outcome int

const (
	// OutcomeSelected means an entry was drawn.
	OutcomeSelected Outcome = iota

	// OutcomeExhausted means the exclusion rule left no eligible entries.
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSelected:
		return "selected"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Decision is the result of one selection.
type Decision struct {
	Outcome Outcome

	// EntryID is set when Outcome is OutcomeSelected.
	EntryID string

	// Candidates is the number of eligible entries after exclusion.
	Candidates int

	// Sample is the random value the pick consumed. Zero when exhausted.
	Sample float64
}

// Window returns how many of the user's most recent draws the rule needs to
// see. The coordinator reads exactly this many records before selecting.
func Window(rule model.ExclusionRule) int {
	switch rule.Effective() {
	case model.RuleExcludeLastN:
		if rule.N < 0 {
			return 0
		}
		return rule.N
	case model.RuleExcludeTag:
		return 1
	default:
		return 0
	}
}

// Candidates returns the entries of snap that the exclusion rule leaves
// eligible, in definition order.
//
// history holds the user's records on this pool, most recent first. Records
// from another pool are ignored. Records naming an entry that is absent from
// snap (drawn under an older version) match nothing and exclude nothing.
func Candidates(snap *model.Snapshot, history []model.DrawRecord) []model.Entry {
	entries := snap.Entries()
	recent := relevant(snap.ID(), history)
	rule := snap.Rule()

	switch rule.Effective() {
	case model.RuleExcludeLastN:
		n := min(Window(rule), len(recent))
		if n == 0 {
			return entries
		}
		excluded := make(map[string]struct{}, n)
		for _, rec := range recent[:n] {
			excluded[rec.EntryID] = struct{}{}
		}
		return filter(entries, func(e model.Entry) bool {
			_, ok := excluded[e.ID]
			return !ok
		})

	case model.RuleExcludeTag:
		if len(recent) == 0 {
			return entries
		}
		last, ok := snap.Entry(recent[0].EntryID)
		if !ok {
			return entries
		}
		if rule.Tag != "" {
			if !last.HasTag(rule.Tag) {
				return entries
			}
			return filter(entries, func(e model.Entry) bool {
				return !e.HasTag(rule.Tag)
			})
		}
		return filter(entries, func(e model.Entry) bool {
			return !e.SharesTag(last)
		})

	default:
		return entries
	}
}

// Pick performs cumulative-weight selection over candidates. sample is
// clamped to [0, 1). Returns false when candidates is empty.
func Pick(candidates []model.Entry, sample float64) (model.Entry, bool) {
	if len(candidates) == 0 {
		return model.Entry{}, false
	}
	switch {
	case sample < 0 || math.IsNaN(sample):
		sample = 0
	case sample >= 1:
		sample = math.Nextafter(1, 0)
	}

	var total float64
	for _, e := range candidates {
		total += e.Weight
	}
	target := sample * total

	var cum float64
	for _, e := range candidates {
		cum += e.Weight
		if target < cum {
			return e, true
		}
	}
	// float rounding can leave target == total
	return candidates[len(candidates)-1], true
}

// Select decides the draw for one user. It consumes exactly one sample from
// src when at least one candidate remains and none otherwise.
func Select(snap *model.Snapshot, history []model.DrawRecord, src RandomSource) Decision {
	candidates := Candidates(snap, history)
	if len(candidates) == 0 {
		return Decision{Outcome: OutcomeExhausted}
	}
	sample := src.Float64()
	e, _ := Pick(candidates, sample)
	return Decision{
		Outcome:    OutcomeSelected,
		EntryID:    e.ID,
		Candidates: len(candidates),
		Sample:     sample,
	}
}

func relevant(poolID string, history []model.DrawRecord) []model.DrawRecord {
	out := make([]model.DrawRecord, 0, len(history))
	for _, rec := range history {
		if rec.PoolID == poolID {
			out = append(out, rec)
		}
	}
	return out
}

func filter(entries []model.Entry, keep func(model.Entry) bool) []model.Entry {
	out := entries[:0]
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
