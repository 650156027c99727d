package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roulette/internal/model"
)

func TestAppend_AssignsSeqPerUser(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	r1, err := s.Append(ctx, createTestRecord("d1", "weapons", "alice", "bow", 0))
	require.NoError(t, err)
	r2, err := s.Append(ctx, createTestRecord("d2", "weapons", "alice", "lance", 1))
	require.NoError(t, err)
	r3, err := s.Append(ctx, createTestRecord("d3", "weapons", "bob", "bow", 2))
	require.NoError(t, err)
	r4, err := s.Append(ctx, createTestRecord("d4", "armor", "alice", "helm", 3))
	require.NoError(t, err)

	assert.Equal(t, int64(1), r1.Seq)
	assert.Equal(t, int64(2), r2.Seq)
	assert.Equal(t, int64(1), r3.Seq, "seq is independent per user")
	assert.Equal(t, int64(1), r4.Seq, "seq is independent per pool")
}

func TestAppend_DuplicateIDFails(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, createTestRecord("d1", "weapons", "alice", "bow", 0))
	require.NoError(t, err)
	_, err = s.Append(ctx, createTestRecord("d1", "weapons", "alice", "lance", 1))
	require.Error(t, err)

	recent, err := s.Recent(ctx, "weapons", "alice", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestAppendBatch_StaleHeadAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	first, err := Open(path)
	require.NoError(t, err)
	defer first.Close()
	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()
	ctx := context.Background()

	// both handles read an empty history before either writes
	seen, err := first.Recent(ctx, "weapons", "alice", 1)
	require.NoError(t, err)
	require.Empty(t, seen)

	rec, err := second.AppendBatch(ctx, []Pending{{Record: createTestRecord("d1", "weapons", "alice", "a", 0), Head: 0}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec[0].Seq)

	_, err = first.AppendBatch(ctx, []Pending{{Record: createTestRecord("d2", "weapons", "alice", "a", 1), Head: 0}})
	require.Error(t, err)
	assert.True(t, IsStaleHead(err))
	assert.ErrorIs(t, err, ErrStaleHead)

	recent, err := first.Recent(ctx, "weapons", "alice", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "d1", recent[0].ID)

	rec, err = first.AppendBatch(ctx, []Pending{{Record: createTestRecord("d2", "weapons", "alice", "b", 1), Head: recent[0].Seq}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec[0].Seq)
}

func TestAppendBatch_AllOrNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, createTestRecord("d0", "weapons", "bob", "a", 0))
	require.NoError(t, err)

	// bob's head is 1, not 0: alice's row must not survive either
	_, err = s.AppendBatch(ctx, []Pending{
		{Record: createTestRecord("d1", "weapons", "alice", "a", 1), Head: 0},
		{Record: createTestRecord("d2", "weapons", "bob", "b", 1), Head: 0},
	})
	require.ErrorIs(t, err, ErrStaleHead)

	recent, err := s.Recent(ctx, "weapons", "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	out, err := s.AppendBatch(ctx, []Pending{
		{Record: createTestRecord("d1", "weapons", "alice", "a", 1), Head: 0},
		{Record: createTestRecord("d2", "weapons", "bob", "b", 1), Head: 1},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].Seq)
	assert.Equal(t, int64(2), out[1].Seq)

	empty, err := s.AppendBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRecent_MostRecentFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, entry := range []string{"a", "b", "c", "d"} {
		_, err := s.Append(ctx, createTestRecord(fmt.Sprintf("d%d", i), "weapons", "alice", entry, i))
		require.NoError(t, err)
	}

	recent, err := s.Recent(ctx, "weapons", "alice", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)

	assert.Equal(t, []string{"d", "c", "b"}, []string{recent[0].EntryID, recent[1].EntryID, recent[2].EntryID})
	assert.Equal(t, int64(4), recent[0].Seq)
	assert.Equal(t, baseTime.Add(3*time.Minute), recent[0].Timestamp)
	assert.Equal(t, uint64(1), recent[0].PoolVersion)
}

func TestRecent_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	recent, err := s.Recent(context.Background(), "weapons", "nobody", 5)
	require.NoError(t, err)
	assert.NotNil(t, recent)
	assert.Empty(t, recent)

	recent, err = s.Recent(context.Background(), "weapons", "nobody", 0)
	require.NoError(t, err)
	assert.NotNil(t, recent)
}

func TestAppend_BeforeCommitFailureLeavesNoTrace(t *testing.T) {
	crash := errors.New("simulated crash")
	fail := true
	s := createTestStore(t, WithBeforeCommit(func(model.DrawRecord) error {
		if fail {
			return crash
		}
		return nil
	}))
	ctx := context.Background()

	_, err := s.Append(ctx, createTestRecord("d1", "weapons", "alice", "bow", 0))
	require.ErrorIs(t, err, crash)

	recent, err := s.Recent(ctx, "weapons", "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	fail = false
	rec, err := s.Append(ctx, createTestRecord("d1", "weapons", "alice", "bow", 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Seq, "rolled back append must not consume a seq")
}

func TestAppend_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Append(ctx, createTestRecord("d1", "weapons", "alice", "bow", 0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Append(ctx, createTestRecord("d2", "weapons", "alice", "lance", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Seq)
}

func TestAppend_ConcurrentSameUserGapless(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(ctx, createTestRecord(fmt.Sprintf("d%02d", i), "weapons", "alice", "a", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	recent, err := s.Recent(ctx, "weapons", "alice", n+10)
	require.NoError(t, err)
	require.Len(t, recent, n)
	for i, rec := range recent {
		assert.Equal(t, int64(n-i), rec.Seq)
	}
}

func TestAppend_CanceledContext(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Append(ctx, createTestRecord("d1", "weapons", "alice", "bow", 0))
	require.ErrorIs(t, err, context.Canceled)
}

func TestStats_CountsWithinWindow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	draws := []struct {
		entry   string
		minutes int
	}{
		{"bow", 0}, {"lance", 10}, {"bow", 20}, {"hammer", 30}, {"bow", 40}, {"lance", 50},
	}
	for i, d := range draws {
		_, err := s.Append(ctx, createTestRecord(fmt.Sprintf("d%d", i), "weapons", "alice", d.entry, d.minutes))
		require.NoError(t, err)
	}
	_, err := s.Append(ctx, createTestRecord("other", "weapons", "bob", "bow", 5))
	require.NoError(t, err)

	all, err := s.Stats(ctx, "weapons", "alice", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 6, all.Total)
	require.Len(t, all.Entries, 3)
	assert.Equal(t, model.EntryCount{EntryID: "bow", Count: 3, LastDrawnAt: baseTime.Add(40 * time.Minute)}, all.Entries[0])
	assert.Equal(t, "lance", all.Entries[1].EntryID)
	assert.Equal(t, "hammer", all.Entries[2].EntryID)

	// [10m, 40m) includes lance@10, bow@20, hammer@30
	window, err := s.Stats(ctx, "weapons", "alice", baseTime.Add(10*time.Minute), baseTime.Add(40*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, window.Total)
	assert.Equal(t, []model.EntryCount{
		{EntryID: "bow", Count: 1, LastDrawnAt: baseTime.Add(20 * time.Minute)},
		{EntryID: "hammer", Count: 1, LastDrawnAt: baseTime.Add(30 * time.Minute)},
		{EntryID: "lance", Count: 1, LastDrawnAt: baseTime.Add(10 * time.Minute)},
	}, window.Entries)
	assert.Equal(t, baseTime.Add(10*time.Minute), window.Since)
}

func TestStats_NoHistory(t *testing.T) {
	s := createTestStore(t)

	stats, err := s.Stats(context.Background(), "weapons", "alice", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.NotNil(t, stats.Entries)
	assert.True(t, stats.Since.IsZero())
}
