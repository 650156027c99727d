package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// RuleKind names an exclusion policy.
type RuleKind string

const (
	// RuleNone applies no filter.
	RuleNone RuleKind = "none"

	// RuleExcludeLastN removes the entries of the user's N most recent draws.
	RuleExcludeLastN RuleKind = "exclude_last_n"

	// RuleExcludeTag removes every entry sharing a tag with the entry of the
	// user's most recent draw.
	RuleExcludeTag RuleKind = "exclude_tag"
)

// ExclusionRule decides which entries are ineligible for a user given their
// recent history on a pool. The zero value behaves like RuleNone.
type ExclusionRule struct {
	Kind RuleKind `json:"kind"`

	// N is the window size for RuleExcludeLastN.
	N int `json:"n,omitempty"`

	// Tag restricts RuleExcludeTag to a single tag. Empty means any tag
	// shared with the most recent entry excludes.
	Tag string `json:"tag,omitempty"`
}

// NoExclusion returns the rule that filters nothing.
func NoExclusion() ExclusionRule {
	return ExclusionRule{Kind: RuleNone}
}

// ExcludeLastN returns a rule excluding the entries of the n most recent draws.
func ExcludeLastN(n int) ExclusionRule {
	return ExclusionRule{Kind: RuleExcludeLastN, N: n}
}

// ExcludeTag returns a rule excluding entries that share tag with the most
// recently drawn entry. An empty tag matches any shared tag.
func ExcludeTag(tag string) ExclusionRule {
	return ExclusionRule{Kind: RuleExcludeTag, Tag: tag}
}

// Effective returns the rule kind with the zero value resolved to RuleNone.
func (r ExclusionRule) Effective() RuleKind {
	if r.Kind == "" {
		return RuleNone
	}
	return r.Kind
}

func (r ExclusionRule) String() string {
	switch r.Effective() {
	case RuleExcludeLastN:
		return fmt.Sprintf("exclude_last_n(%d)", r.N)
	case RuleExcludeTag:
		if r.Tag == "" {
			return "exclude_tag(*)"
		}
		return fmt.Sprintf("exclude_tag(%s)", r.Tag)
	default:
		return string(r.Effective())
	}
}

// Entry is one drawable item of a pool.
type Entry struct {
	ID     string   `json:"id"`
	Weight float64  `json:"weight"`
	Tags   []string `json:"tags,omitempty"`

	// Metadata is opaque to the engine and stored verbatim (compacted JSON).
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// HasTag reports whether the entry carries tag.
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SharesTag reports whether e and other have at least one tag in common.
func (e Entry) SharesTag(other Entry) bool {
	for _, t := range other.Tags {
		if e.HasTag(t) {
			return true
		}
	}
	return false
}

func (e Entry) clone() Entry {
	c := e
	if e.Tags != nil {
		c.Tags = append([]string(nil), e.Tags...)
	}
	if e.Metadata != nil {
		c.Metadata = append(json.RawMessage(nil), e.Metadata...)
	}
	return c
}

// Pool is a versioned, weighted set of entries plus an exclusion rule.
// Entries keep their definition order; that order drives weighted selection.
type Pool struct {
	ID      string        `json:"id"`
	Version uint64        `json:"version,omitempty"`
	Rule    ExclusionRule `json:"rule"`
	Entries []Entry       `json:"entries"`
}

// Clone returns a deep copy of the pool.
func (p Pool) Clone() Pool {
	c := p
	c.Entries = make([]Entry, len(p.Entries))
	for i, e := range p.Entries {
		c.Entries[i] = e.clone()
	}
	return c
}

// DrawRecord is one committed draw. Immutable once written.
type DrawRecord struct {
	ID          string    `json:"id"`
	PoolID      string    `json:"pool_id"`
	UserID      string    `json:"user_id"`
	PoolVersion uint64    `json:"pool_version"`
	EntryID     string    `json:"entry_id"`
	Timestamp   time.Time `json:"timestamp"`

	// Seq is assigned by the history store at commit time.
	Seq int64 `json:"seq"`
}

// DrawResult is the outcome handed back to the command layer.
type DrawResult struct {
	Success bool        `json:"success"`
	Record  *DrawRecord `json:"record,omitempty"`
	Err     ErrorKind   `json:"error,omitempty"`
}

// EntryCount is how often a user drew one entry within a stats window.
type EntryCount struct {
	EntryID     string    `json:"entry_id"`
	Count       int       `json:"count"`
	LastDrawnAt time.Time `json:"last_drawn_at"`
}

// Stats aggregates a user's draws on one pool. Zero Since/Until mean the
// window is open on that side.
type Stats struct {
	PoolID  string       `json:"pool_id"`
	UserID  string       `json:"user_id"`
	Since   time.Time    `json:"since,omitzero"`
	Until   time.Time    `json:"until,omitzero"`
	Total   int          `json:"total"`
	Entries []EntryCount `json:"entries"`
}
