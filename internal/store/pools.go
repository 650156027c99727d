package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/roulette/internal/model"
)

// PoolRecord is one persisted pool version.
type PoolRecord struct {
	Pool        model.Pool
	ContentHash string
	CreatedAt   time.Time
}

// SavePool persists p as the next version of its pool and returns the stored
// record with Pool.Version set.
//
// When the latest stored version already has contentHash, nothing is written
// and that version is returned, so re-saving an unchanged definition is a
// no-op. p.Version is ignored; versions are assigned here.
func (s *Store) SavePool(ctx context.Context, p model.Pool, contentHash string, at time.Time) (PoolRecord, error) {
	definition, err := model.MarshalCanonical(p)
	if err != nil {
		return PoolRecord{}, fmt.Errorf("save pool: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PoolRecord{}, fmt.Errorf("save pool: begin: %w", err)
	}
	defer tx.Rollback()

	var (
		version   int64
		hash      string
		createdAt string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT version, content_hash, created_at FROM pools
		WHERE pool_id = ?
		ORDER BY version DESC
		LIMIT 1
	`, p.ID).Scan(&version, &hash, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return PoolRecord{}, fmt.Errorf("save pool: latest version: %w", err)
	case hash == contentHash:
		created, err := parseTime(createdAt)
		if err != nil {
			return PoolRecord{}, err
		}
		stored := p.Normalize()
		stored.Version = uint64(version)
		return PoolRecord{Pool: stored, ContentHash: hash, CreatedAt: created}, nil
	}

	next := version + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pools (pool_id, version, definition, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, next, string(definition), contentHash, formatTime(at))
	if err != nil {
		return PoolRecord{}, fmt.Errorf("save pool: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return PoolRecord{}, fmt.Errorf("save pool: commit: %w", err)
	}

	stored := p.Normalize()
	stored.Version = uint64(next)
	return PoolRecord{Pool: stored, ContentHash: contentHash, CreatedAt: at.UTC()}, nil
}

// LatestPools returns the newest version of every stored pool, ordered by
// pool id.
//
// Returns an empty slice (not nil) if no pools are stored.
func (s *Store) LatestPools(ctx context.Context) ([]PoolRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.pool_id, p.version, p.definition, p.content_hash, p.created_at
		FROM pools p
		JOIN (
			SELECT pool_id, MAX(version) AS version
			FROM pools
			GROUP BY pool_id
		) latest ON latest.pool_id = p.pool_id AND latest.version = p.version
		ORDER BY p.pool_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	records := []PoolRecord{}
	for rows.Next() {
		rec, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	return records, nil
}

// PoolVersions returns every stored version of one pool, oldest first.
func (s *Store) PoolVersions(ctx context.Context, poolID string) ([]PoolRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pool_id, version, definition, content_hash, created_at
		FROM pools
		WHERE pool_id = ?
		ORDER BY version ASC
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("query pool versions: %w", err)
	}
	defer rows.Close()

	records := []PoolRecord{}
	for rows.Next() {
		rec, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool versions: %w", err)
	}
	return records, nil
}

func scanPool(rows *sql.Rows) (PoolRecord, error) {
	var (
		poolID     string
		version    int64
		definition string
		rec        PoolRecord
		createdAt  string
	)
	if err := rows.Scan(&poolID, &version, &definition, &rec.ContentHash, &createdAt); err != nil {
		return PoolRecord{}, fmt.Errorf("scan pool: %w", err)
	}
	p, err := model.UnmarshalCanonical([]byte(definition))
	if err != nil {
		return PoolRecord{}, fmt.Errorf("pool %s v%d: %w", poolID, version, err)
	}
	p.Version = uint64(version)
	rec.Pool = p
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return PoolRecord{}, err
	}
	return rec, nil
}
