package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDs generates "<prefix>-0001", "<prefix>-0002", ... so golden
// output stays stable across runs.
//
// Thread-safety: safe for concurrent use (atomic counter).
type SequentialIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDs creates a generator. An empty prefix defaults to "draw".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "draw"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.n.Add(1))
}
