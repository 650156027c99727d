package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roulette/internal/model"
)

// countingSource returns a fixed sample and counts calls.
type countingSource struct {
	sample float64
	calls  int
}

func (c *countingSource) Float64() float64 {
	c.calls++
	return c.sample
}

func snapshot(rule model.ExclusionRule, entries ...model.Entry) *model.Snapshot {
	return model.NewSnapshot(model.Pool{ID: "weapons", Version: 1, Rule: rule, Entries: entries}, "", time.Time{})
}

func entry(id string, weight float64, tags ...string) model.Entry {
	return model.Entry{ID: id, Weight: weight, Tags: tags}
}

func history(poolID string, entryIDs ...string) []model.DrawRecord {
	out := make([]model.DrawRecord, len(entryIDs))
	for i, id := range entryIDs {
		out[i] = model.DrawRecord{PoolID: poolID, UserID: "u1", EntryID: id, Seq: int64(len(entryIDs) - i)}
	}
	return out
}

func ids(entries []model.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestWindow(t *testing.T) {
	assert.Equal(t, 0, Window(model.NoExclusion()))
	assert.Equal(t, 0, Window(model.ExclusionRule{}))
	assert.Equal(t, 3, Window(model.ExcludeLastN(3)))
	assert.Equal(t, 1, Window(model.ExcludeTag("")))
}

func TestPick_CumulativeBoundaries(t *testing.T) {
	candidates := []model.Entry{entry("a", 1), entry("b", 3)}

	tests := []struct {
		sample float64
		want   string
	}{
		{0, "a"},
		{0.2499, "a"},
		{0.25, "b"},
		{0.9999, "b"},
		{1, "b"},
		{-0.5, "a"},
		{7, "b"},
	}
	for _, tt := range tests {
		got, ok := Pick(candidates, tt.sample)
		require.True(t, ok)
		assert.Equal(t, tt.want, got.ID, "sample %v", tt.sample)
	}
}

func TestPick_Empty(t *testing.T) {
	_, ok := Pick(nil, 0.5)
	assert.False(t, ok)
}

func TestCandidates_NoExclusion(t *testing.T) {
	snap := snapshot(model.NoExclusion(), entry("a", 1), entry("b", 1))

	got := Candidates(snap, history("weapons", "a", "a", "b"))

	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestCandidates_ExcludeLastN(t *testing.T) {
	snap := snapshot(model.ExcludeLastN(2), entry("a", 1), entry("b", 1), entry("c", 1), entry("d", 1))

	tests := []struct {
		name    string
		history []model.DrawRecord
		want    []string
	}{
		{"no history", nil, []string{"a", "b", "c", "d"}},
		{"shorter than window", history("weapons", "c"), []string{"a", "b", "d"}},
		{"full window", history("weapons", "b", "a"), []string{"c", "d"}},
		{"only window counts", history("weapons", "b", "a", "c", "d"), []string{"c", "d"}},
		{"repeat inside window", history("weapons", "a", "a"), []string{"b", "c", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Candidates(snap, tt.history)))
		})
	}
}

func TestCandidates_ExcludeTagAnyShared(t *testing.T) {
	snap := snapshot(model.ExcludeTag(""),
		entry("bow", 1, "ranged"),
		entry("gun", 1, "ranged", "heavy"),
		entry("hammer", 1, "heavy", "melee"),
		entry("sword", 1, "melee"),
		entry("horn", 1),
	)

	got := Candidates(snap, history("weapons", "gun"))

	assert.Equal(t, []string{"sword", "horn"}, ids(got))
}

func TestCandidates_ExcludeTagNamed(t *testing.T) {
	snap := snapshot(model.ExcludeTag("heavy"),
		entry("great_sword", 1, "heavy", "melee"),
		entry("hammer", 1, "heavy"),
		entry("long_sword", 1, "melee"),
	)

	assert.Equal(t, []string{"long_sword"}, ids(Candidates(snap, history("weapons", "great_sword"))))
	// last entry without the tag excludes nothing
	assert.Equal(t, []string{"great_sword", "hammer", "long_sword"}, ids(Candidates(snap, history("weapons", "long_sword"))))
}

func TestCandidates_ExcludeTagUntaggedLast(t *testing.T) {
	snap := snapshot(model.ExcludeTag(""), entry("a", 1), entry("b", 1, "x"))

	got := Candidates(snap, history("weapons", "a"))

	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestCandidates_StaleHistoryMatchesNothing(t *testing.T) {
	lastN := snapshot(model.ExcludeLastN(1), entry("a", 1), entry("b", 1))
	tag := snapshot(model.ExcludeTag(""), entry("a", 1, "x"), entry("b", 1, "x"))

	assert.Equal(t, []string{"a", "b"}, ids(Candidates(lastN, history("weapons", "removed"))))
	assert.Equal(t, []string{"a", "b"}, ids(Candidates(tag, history("weapons", "removed"))))
}

func TestCandidates_IgnoresOtherPools(t *testing.T) {
	snap := snapshot(model.ExcludeLastN(1), entry("a", 1), entry("b", 1))

	got := Candidates(snap, history("armor", "a"))

	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestSelect_Exhausted(t *testing.T) {
	snap := snapshot(model.ExcludeLastN(1), entry("only", 1))
	src := &countingSource{sample: 0.5}

	d := Select(snap, history("weapons", "only"), src)

	assert.Equal(t, OutcomeExhausted, d.Outcome)
	assert.Empty(t, d.EntryID)
	assert.Equal(t, 0, src.calls, "exhausted selection must not consume randomness")
}

func TestSelect_ConsumesOneSample(t *testing.T) {
	snap := snapshot(model.NoExclusion(), entry("a", 1), entry("b", 1))
	src := &countingSource{sample: 0.75}

	d := Select(snap, nil, src)

	assert.Equal(t, OutcomeSelected, d.Outcome)
	assert.Equal(t, "b", d.EntryID)
	assert.Equal(t, 2, d.Candidates)
	assert.Equal(t, 0.75, d.Sample)
	assert.Equal(t, 1, src.calls)
}

func TestSelect_TwoEntriesAlternateUnderLastOne(t *testing.T) {
	snap := snapshot(model.ExcludeLastN(1), entry("a", 1), entry("b", 1))
	src := NewSeededSource(42)

	var hist []model.DrawRecord
	var drawn []string
	for i := 0; i < 10; i++ {
		d := Select(snap, hist, src)
		require.Equal(t, OutcomeSelected, d.Outcome)
		drawn = append(drawn, d.EntryID)
		hist = append([]model.DrawRecord{{PoolID: "weapons", EntryID: d.EntryID}}, hist...)
	}

	for i := 1; i < len(drawn); i++ {
		assert.NotEqual(t, drawn[i-1], drawn[i], "draw %d repeated the previous entry", i)
	}
}

func TestSelect_DeterministicForSameSeed(t *testing.T) {
	snap := snapshot(model.NoExclusion(), entry("a", 1), entry("b", 2), entry("c", 3))

	run := func() []string {
		src := NewSeededSource(7)
		out := make([]string, 50)
		for i := range out {
			out[i] = Select(snap, nil, src).EntryID
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestSelect_ConvergesToWeights(t *testing.T) {
	snap := snapshot(model.NoExclusion(), entry("light", 1), entry("heavy", 3))
	src := NewSeededSource(1)

	const draws = 100000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		counts[Select(snap, nil, src).EntryID]++
	}

	assert.InDelta(t, 0.25, float64(counts["light"])/draws, 0.01)
	assert.InDelta(t, 0.75, float64(counts["heavy"])/draws, 0.01)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "selected", OutcomeSelected.String())
	assert.Equal(t, "exhausted", OutcomeExhausted.String())
}
