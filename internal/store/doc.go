// Package store provides SQLite-backed durable storage for draw history and
// pool definitions.
//
// The store keeps two append-only tables:
//   - draw_history: one row per committed draw, keyed by (pool, user, seq)
//   - pools: every installed pool version with its canonical definition
//
// # Ordering
//
// Each (pool, user) history has its own seq counter. Append assigns
// MAX(seq)+1 inside the same transaction that inserts the row, so sequence
// numbers are gapless per user and a record is either fully committed or
// absent. Reads order by seq, never by timestamp.
//
// AppendBatch can also check that a key's MAX(seq) still equals the head a
// caller read, failing with ErrStaleHead otherwise. Transactions begin
// IMMEDIATE, so the check holds across processes sharing the file.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks (default 5 seconds)
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as fixed-width UTC text so lexical order matches
// chronological order in range queries.
package store
