// Package model defines the shared data model of the roulette: pools and
// their entries, exclusion rules, immutable pool snapshots, draw records and
// the error taxonomy every layer reports through.
//
// Pools are replaced wholesale and never mutated in place. A Snapshot is the
// read-only view of exactly one pool version; draws are decided against a
// single Snapshot from start to finish.
//
// Draw records are append-only. Their Seq is assigned by the history store,
// strictly increasing per (pool, user) and never reused.
package model
