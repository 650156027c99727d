package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/roulette/internal/model"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new temporary store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a draw record drawn minutes after baseTime.
func createTestRecord(id, poolID, userID, entryID string, minutes int) model.DrawRecord {
	return model.DrawRecord{
		ID:          id,
		PoolID:      poolID,
		UserID:      userID,
		PoolVersion: 1,
		EntryID:     entryID,
		Timestamp:   baseTime.Add(time.Duration(minutes) * time.Minute),
	}
}

func createTestPool(id string, weights ...float64) model.Pool {
	p := model.Pool{ID: id, Rule: model.ExcludeLastN(1)}
	for i, w := range weights {
		p.Entries = append(p.Entries, model.Entry{
			ID:     string(rune('a' + i)),
			Weight: w,
		})
	}
	return p
}
