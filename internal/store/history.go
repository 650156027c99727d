package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/roulette/internal/model"
)

// AnyHead disables the head check for a Pending record.
const AnyHead int64 = -1

// ErrStaleHead reports that a (pool, user) history gained records after the
// read a draw was decided on. Nothing was written; deciding again is safe.
var ErrStaleHead = errors.New("history head moved since it was read")

// Pending is a record to append plus the seq of the newest record its
// decision saw: 0 for an empty history, AnyHead when the decision did not
// depend on history.
type Pending struct {
	Record model.DrawRecord
	Head   int64
}

// Append commits one draw record without a head check and returns it with
// its assigned seq.
func (s *Store) Append(ctx context.Context, rec model.DrawRecord) (model.DrawRecord, error) {
	out, err := s.AppendBatch(ctx, []Pending{{Record: rec, Head: AnyHead}})
	if err != nil {
		return model.DrawRecord{}, err
	}
	return out[0], nil
}

// AppendBatch commits records atomically, in order, and returns them with
// their assigned seqs.
//
// Each next seq is computed and each row inserted inside one write
// transaction, so concurrent appends for the same (pool, user) can never
// share a seq and a failed batch leaves no trace. When a record's Head is
// not AnyHead and differs from the key's current MAX(seq), the whole batch
// is rolled back with ErrStaleHead. The connection takes the write lock at
// BEGIN, so the check also holds against other processes on the same file.
// Record IDs must be unique across the whole table.
func (s *Store) AppendBatch(ctx context.Context, batch []Pending) ([]model.DrawRecord, error) {
	if len(batch) == 0 {
		return []model.DrawRecord{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("append: begin: %w", err)
	}
	defer tx.Rollback()

	out := make([]model.DrawRecord, 0, len(batch))
	for _, p := range batch {
		rec := p.Record

		var last sql.NullInt64
		err = tx.QueryRowContext(ctx, `
			SELECT MAX(seq) FROM draw_history
			WHERE pool_id = ? AND user_id = ?
		`, rec.PoolID, rec.UserID).Scan(&last)
		if err != nil {
			return nil, fmt.Errorf("append: next seq: %w", err)
		}
		if p.Head != AnyHead && p.Head != last.Int64 {
			return nil, fmt.Errorf("append: %w (pool=%s, user=%s, read=%d, now=%d)",
				ErrStaleHead, rec.PoolID, rec.UserID, p.Head, last.Int64)
		}
		rec.Seq = last.Int64 + 1

		_, err = tx.ExecContext(ctx, `
			INSERT INTO draw_history
			(id, pool_id, user_id, seq, pool_version, entry_id, drawn_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID,
			rec.PoolID,
			rec.UserID,
			rec.Seq,
			int64(rec.PoolVersion),
			rec.EntryID,
			formatTime(rec.Timestamp),
		)
		if err != nil {
			return nil, fmt.Errorf("append: insert: %w", err)
		}

		if s.beforeCommit != nil {
			if err := s.beforeCommit(rec); err != nil {
				return nil, fmt.Errorf("append: %w", err)
			}
		}
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("append: commit: %w", err)
	}
	return out, nil
}

// IsStaleHead reports whether err is an ErrStaleHead rejection.
func IsStaleHead(err error) bool {
	return errors.Is(err, ErrStaleHead)
}

// Recent returns up to limit of the user's records on a pool, most recent
// first (seq DESC).
//
// Returns an empty slice (not nil) when there is no history or limit <= 0.
func (s *Store) Recent(ctx context.Context, poolID, userID string, limit int) ([]model.DrawRecord, error) {
	if limit <= 0 {
		return []model.DrawRecord{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pool_id, user_id, seq, pool_version, entry_id, drawn_at
		FROM draw_history
		WHERE pool_id = ? AND user_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, poolID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	records := []model.DrawRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent: %w", err)
	}
	return records, nil
}

// Stats counts the user's draws per entry within [since, until). A zero
// bound leaves that side of the window open. Entries are ordered by count
// descending, then entry id.
func (s *Store) Stats(ctx context.Context, poolID, userID string, since, until time.Time) (model.Stats, error) {
	var (
		where = []string{"pool_id = ?", "user_id = ?"}
		args  = []any{poolID, userID}
	)
	if !since.IsZero() {
		where = append(where, "drawn_at >= ?")
		args = append(args, formatTime(since))
	}
	if !until.IsZero() {
		where = append(where, "drawn_at < ?")
		args = append(args, formatTime(until))
	}

	query := `
		SELECT entry_id, COUNT(*), MAX(drawn_at)
		FROM draw_history
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY entry_id
		ORDER BY COUNT(*) DESC, entry_id COLLATE BINARY ASC
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := model.Stats{
		PoolID:  poolID,
		UserID:  userID,
		Since:   utcOrZero(since),
		Until:   utcOrZero(until),
		Entries: []model.EntryCount{},
	}
	for rows.Next() {
		var (
			c    model.EntryCount
			last string
		)
		if err := rows.Scan(&c.EntryID, &c.Count, &last); err != nil {
			return model.Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		if c.LastDrawnAt, err = parseTime(last); err != nil {
			return model.Stats{}, err
		}
		stats.Total += c.Count
		stats.Entries = append(stats.Entries, c)
	}
	if err := rows.Err(); err != nil {
		return model.Stats{}, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

func scanRecord(rows *sql.Rows) (model.DrawRecord, error) {
	var (
		rec     model.DrawRecord
		version int64
		drawnAt string
	)
	if err := rows.Scan(&rec.ID, &rec.PoolID, &rec.UserID, &rec.Seq, &version, &rec.EntryID, &drawnAt); err != nil {
		return model.DrawRecord{}, fmt.Errorf("scan draw record: %w", err)
	}
	ts, err := parseTime(drawnAt)
	if err != nil {
		return model.DrawRecord{}, err
	}
	rec.PoolVersion = uint64(version)
	rec.Timestamp = ts
	return rec, nil
}

func utcOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
