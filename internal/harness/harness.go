package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/roulette/internal/model"
	"github.com/roach88/roulette/internal/pools"
	"github.com/roach88/roulette/internal/session"
	"github.com/roach88/roulette/internal/store"
	"github.com/roach88/roulette/internal/syncer"
	"github.com/roach88/roulette/internal/testutil"
)

// epoch is the first timestamp of every run.
var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// TraceEvent is one observable step of a run. Setup loads have Step 0;
// flow steps count from 1.
type TraceEvent struct {
	Step    int    `json:"step"`
	Op      string `json:"op"` // "load" | "draw"
	Pool    string `json:"pool"`
	User    string `json:"user,omitempty"`
	Entry   string `json:"entry,omitempty"`
	Version uint64 `json:"version,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
	Changed *bool  `json:"changed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of one run.
type Result struct {
	Pass   bool
	Trace  []TraceEvent
	Errors []string
}

// Run executes a scenario against a fresh database in dir. Expectation and
// assertion failures land in Result.Errors; the returned error is reserved
// for setup problems (unreadable pool file, unopenable database).
func Run(ctx context.Context, s *Scenario, dir string) (*Result, error) {
	st, err := store.Open(filepath.Join(dir, "harness.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewStepClock(epoch, time.Second)
	reg := pools.New(st, pools.WithClock(clock.Now), pools.WithLogger(quiet))
	coord := session.New(reg, st,
		session.WithRandomSource(testutil.NewSequenceSource(s.Samples...)),
		session.WithIDGenerator(testutil.NewSequentialIDs("draw")),
		session.WithClock(clock.Now),
		session.WithLogger(quiet),
	)

	r := &runner{coord: coord, result: &Result{Trace: []TraceEvent{}, Errors: []string{}}}

	for _, path := range s.Pools {
		if err := r.load(ctx, 0, path); err != nil {
			return nil, err
		}
	}
	for i, step := range s.Flow {
		n := i + 1
		if step.Load != "" {
			if err := r.load(ctx, n, step.Load); err != nil {
				return nil, err
			}
			continue
		}
		r.draw(ctx, n, step)
	}
	for i, a := range s.Assertions {
		if err := r.check(ctx, a); err != nil {
			r.fail("assertions[%d] %s: %v", i, a.Type, err)
		}
	}

	r.result.Pass = len(r.result.Errors) == 0
	return r.result, nil
}

type runner struct {
	coord  *session.Coordinator
	result *Result
}

func (r *runner) fail(format string, args ...any) {
	r.result.Errors = append(r.result.Errors, fmt.Sprintf(format, args...))
}

func (r *runner) load(ctx context.Context, step int, path string) error {
	p, err := syncer.LoadFile(path)
	if err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}
	snap, changed, err := r.coord.PoolUpdated(ctx, p)
	if err != nil {
		return fmt.Errorf("step %d: install %s: %w", step, path, err)
	}
	r.result.Trace = append(r.result.Trace, TraceEvent{
		Step:    step,
		Op:      "load",
		Pool:    snap.ID(),
		Version: snap.Version(),
		Changed: &changed,
	})
	return nil
}

func (r *runner) draw(ctx context.Context, step int, fs FlowStep) {
	ev := TraceEvent{Step: step, Op: "draw", Pool: fs.Draw.Pool, User: fs.Draw.User}
	res, err := r.coord.Draw(ctx, fs.Draw.Pool, fs.Draw.User)
	if err != nil {
		ev.Error = string(model.KindOf(err))
		if ev.Error == "" {
			ev.Error = err.Error()
		}
	} else {
		ev.Entry = res.Record.EntryID
		ev.Version = res.Record.PoolVersion
		ev.Seq = res.Record.Seq
	}
	r.result.Trace = append(r.result.Trace, ev)

	want := fs.Expect
	switch {
	case want != nil && want.Error != "":
		if ev.Error != want.Error {
			r.fail("flow[%d]: expected error %s, got %q (entry %q)", step-1, want.Error, ev.Error, ev.Entry)
		}
	case ev.Error != "":
		r.fail("flow[%d]: unexpected error %s", step-1, ev.Error)
	case want != nil && want.Entry != "" && ev.Entry != want.Entry:
		r.fail("flow[%d]: expected entry %s, got %s", step-1, want.Entry, ev.Entry)
	}
}

func (r *runner) check(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertHistoryCount:
		recs, err := r.coord.History(ctx, a.Pool, a.User, session.MaxHistoryLimit)
		if err != nil {
			return err
		}
		if len(recs) != a.Count {
			return fmt.Errorf("expected %d draws, got %d", a.Count, len(recs))
		}

	case AssertHistoryOrder:
		recs, err := r.coord.History(ctx, a.Pool, a.User, len(a.Entries))
		if err != nil {
			return err
		}
		got := make([]string, 0, len(recs))
		for _, rec := range recs {
			got = append(got, rec.EntryID)
		}
		if !slices.Equal(got, a.Entries) {
			return fmt.Errorf("expected %v, got %v", a.Entries, got)
		}

	case AssertEntryCount:
		stats, err := r.coord.Stats(ctx, a.Pool, a.User, time.Time{}, time.Time{})
		if err != nil {
			return err
		}
		got := 0
		for _, e := range stats.Entries {
			if e.EntryID == a.Entry {
				got = e.Count
			}
		}
		if got != a.Count {
			return fmt.Errorf("expected %s drawn %d times, got %d", a.Entry, a.Count, got)
		}
	}
	return nil
}
