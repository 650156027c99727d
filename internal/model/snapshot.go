package model

import "time"

// Snapshot is an immutable view of one pool version. It is safe for
// concurrent use; accessors return copies so callers cannot mutate it.
type Snapshot struct {
	pool        Pool
	index       map[string]int
	contentHash string
	installedAt time.Time
}

// NewSnapshot freezes a deep copy of p. The pool is expected to be
// normalized and validated already.
func NewSnapshot(p Pool, contentHash string, installedAt time.Time) *Snapshot {
	c := p.Clone()
	idx := make(map[string]int, len(c.Entries))
	for i, e := range c.Entries {
		idx[e.ID] = i
	}
	return &Snapshot{
		pool:        c,
		index:       idx,
		contentHash: contentHash,
		installedAt: installedAt,
	}
}

func (s *Snapshot) ID() string { return s.pool.ID }

func (s *Snapshot) Version() uint64 { return s.pool.Version }

func (s *Snapshot) Rule() ExclusionRule { return s.pool.Rule }

// ContentHash is the canonical content hash of the definition.
func (s *Snapshot) ContentHash() string { return s.contentHash }

func (s *Snapshot) InstalledAt() time.Time { return s.installedAt }

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.pool.Entries) }

// Entries returns the entries in definition order.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.pool.Entries))
	for i, e := range s.pool.Entries {
		out[i] = e.clone()
	}
	return out
}

// Entry looks up an entry by id.
func (s *Snapshot) Entry(id string) (Entry, bool) {
	i, ok := s.index[id]
	if !ok {
		return Entry{}, false
	}
	return s.pool.Entries[i].clone(), true
}

// Pool returns a deep copy of the underlying definition.
func (s *Snapshot) Pool() Pool {
	return s.pool.Clone()
}
