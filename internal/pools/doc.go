// Package pools holds the currently installed version of every pool.
//
// Readers get an immutable *model.Snapshot through a lock-free atomic load.
// Replace builds a complete new snapshot and swaps it in, so a reader holding
// the old snapshot keeps a fully valid view until it drops it. Writers are
// serialized among themselves only.
package pools
