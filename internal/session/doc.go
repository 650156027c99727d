// Package session coordinates draws so that each one appears atomic to
// concurrent callers.
//
// A draw holds an exclusive lock on its (pool, user) key for the whole
// snapshot-read, history-read, select and append sequence. Locks are created
// on demand and dropped when idle; draws on different keys never wait on each
// other. A party draw (DrawMany) takes all of its keys in sorted order and
// appends every member's record in one transaction.
//
// The in-process lock does not cover another process using the same
// database. Each append therefore carries the history head its decision was
// based on, and the store rejects it when that head has moved. The draw is
// then decided again from fresh history, up to three times.
//
// Failure semantics:
//   - Contention: the key lock was not acquired within the lock timeout, or
//     another process kept appending to the key. Nothing was written.
//   - Timeout: a storage call exceeded the storage timeout or found the
//     database locked. The outcome of an append is unknown; check History
//     before retrying.
//   - PersistenceFailure: storage returned an error. No record exists.
//   - Caller cancellation returns ctx.Err(). A record that committed before
//     cancellation was observed stays committed.
//
// The coordinator never replays a selection: every attempt samples again.
package session
