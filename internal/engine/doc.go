// Package engine implements the roulette draw engine.
//
// The engine is pure: given a pool snapshot, a user's recent history on that
// pool and a random source, it decides which entry is drawn. It performs no
// I/O and holds no state, so every decision is reproducible from its inputs.
//
// Selection runs in two steps:
//
//  1. Candidates applies the pool's exclusion rule to the history and
//     returns the eligible entries in definition order.
//  2. Pick walks the cumulative weights of the candidates and returns the
//     first entry whose running total exceeds sample * total.
//
// An empty candidate set is reported as OutcomeExhausted. It is never an
// error at this layer.
package engine
