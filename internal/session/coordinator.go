package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/roulette/internal/engine"
	"github.com/roach88/roulette/internal/model"
	"github.com/roach88/roulette/internal/pools"
	"github.com/roach88/roulette/internal/store"
)

const (
	// DefaultLockTimeout bounds the wait for a busy (pool, user) key.
	DefaultLockTimeout = 2 * time.Second

	// DefaultStorageTimeout bounds each history read or write.
	DefaultStorageTimeout = 5 * time.Second

	// DefaultHistoryLimit is used by callers that do not pick a limit.
	DefaultHistoryLimit = 10

	// MaxHistoryLimit caps History requests.
	MaxHistoryLimit = 100

	// MaxPartySize caps the members of one DrawMany call.
	MaxPartySize = 25

	// maxDrawAttempts bounds how often a draw is decided again after another
	// process appended to one of its keys first.
	maxDrawAttempts = 3
)

// PoolSource is the Pool Store as seen by the coordinator.
type PoolSource interface {
	Load(poolID string) (*model.Snapshot, error)
	Replace(ctx context.Context, p model.Pool) (*model.Snapshot, bool, error)
	List() []pools.Info
}

// History is the History Store as seen by the coordinator. AppendBatch must
// reject a batch with store.ErrStaleHead when a key's newest seq is not the
// Head its record was decided against.
type History interface {
	AppendBatch(ctx context.Context, batch []store.Pending) ([]model.DrawRecord, error)
	Recent(ctx context.Context, poolID, userID string, limit int) ([]model.DrawRecord, error)
	Stats(ctx context.Context, poolID, userID string, since, until time.Time) (model.Stats, error)
}

// IDGenerator produces unique draw record ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 record ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Coordinator serializes draws per (pool, user) key and ties the pool store,
// draw engine and history store together.
//
// Thread-safety: all methods are safe for concurrent use.
type Coordinator struct {
	pools   PoolSource
	history History
	locks   *keyedMutex

	random         engine.RandomSource
	ids            IDGenerator
	now            func() time.Time
	lockTimeout    time.Duration
	storageTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLockTimeout sets how long Draw waits for a busy key before reporting
// Contention. Default: DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.lockTimeout = d
	}
}

// WithStorageTimeout sets the bound on each history call before reporting
// Timeout. Default: DefaultStorageTimeout.
func WithStorageTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.storageTimeout = d
	}
}

// WithRandomSource injects the engine's random source.
// Default: engine.DefaultSource.
func WithRandomSource(src engine.RandomSource) Option {
	return func(c *Coordinator) {
		c.random = src
	}
}

// WithIDGenerator sets the record id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Coordinator) {
		c.ids = g
	}
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// New creates a Coordinator.
func New(p PoolSource, h History, opts ...Option) *Coordinator {
	c := &Coordinator{
		pools:          p,
		history:        h,
		locks:          newKeyedMutex(),
		random:         engine.DefaultSource{},
		ids:            UUIDv7Generator{},
		now:            time.Now,
		lockTimeout:    DefaultLockTimeout,
		storageTimeout: DefaultStorageTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Draw selects one entry of a pool for a user and records it.
//
// The returned error is nil exactly when result.Success is true. Otherwise it
// is a *model.Error whose Kind equals result.Err, or ctx.Err() when the
// caller gave up first. PoolExhausted is reported both ways so callers that
// only look at the error still see it.
func (c *Coordinator) Draw(ctx context.Context, poolID, userID string) (model.DrawResult, error) {
	poolID = model.NormalizeID(poolID)
	if userID == "" {
		return failed(model.NewValidationError(poolID, "user id is required"))
	}

	recs, err := c.drawKeys(ctx, poolID, []string{userID})
	if err != nil {
		if model.KindOf(err) == "" {
			// the caller's context ended first
			return model.DrawResult{}, err
		}
		return failed(err)
	}
	return model.DrawResult{Success: true, Record: &recs[0]}, nil
}

// DrawMany draws once for every member of a party and records all draws
// together: either every member gets a record or none does. Records are
// returned in userIDs order. Each member's draw honors that member's own
// history; when any member is exhausted the whole party fails with
// PoolExhausted naming that member.
func (c *Coordinator) DrawMany(ctx context.Context, poolID string, userIDs []string) ([]model.DrawRecord, error) {
	poolID = model.NormalizeID(poolID)
	switch {
	case len(userIDs) == 0:
		return nil, model.NewValidationError(poolID, "party has no members")
	case len(userIDs) > MaxPartySize:
		return nil, model.NewValidationError(poolID, "party has %d members, at most %d allowed", len(userIDs), MaxPartySize)
	}
	seen := make(map[string]struct{}, len(userIDs))
	for _, u := range userIDs {
		if u == "" {
			return nil, model.NewValidationError(poolID, "user id is required")
		}
		if _, dup := seen[u]; dup {
			return nil, model.NewValidationError(poolID, "user %q appears twice in the party", u)
		}
		seen[u] = struct{}{}
	}

	recs, err := c.drawKeys(ctx, poolID, userIDs)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("party draw", "pool", poolID, "members", len(recs))
	return recs, nil
}

// drawKeys locks every (pool, user) key, then decides and appends until the
// append is accepted or maxDrawAttempts is reached.
func (c *Coordinator) drawKeys(ctx context.Context, poolID string, userIDs []string) ([]model.DrawRecord, error) {
	unlock, err := c.lockAll(ctx, poolID, userIDs)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		recs, err := c.decideAndAppend(ctx, poolID, userIDs)
		if !store.IsStaleHead(err) {
			return recs, err
		}
		if attempt == maxDrawAttempts {
			c.logger.Warn("draw contention", "pool", poolID, "users", userIDs, "attempts", attempt)
			return nil, model.Wrap(model.KindContention, "append", poolID, userIDs[0], err)
		}
		c.logger.Debug("history moved, deciding again", "pool", poolID, "users", userIDs, "attempt", attempt)
	}
}

// lockAll takes the keys in sorted order so overlapping parties cannot
// deadlock. The lock timeout covers all of them.
func (c *Coordinator) lockAll(ctx context.Context, poolID string, userIDs []string) (func(), error) {
	keys := make([]string, len(userIDs))
	for i, u := range userIDs {
		keys[i] = drawKey(poolID, u)
	}
	slices.Sort(keys)

	lockCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()

	unlocks := make([]func(), 0, len(keys))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, key := range keys {
		unlock, err := c.locks.Lock(lockCtx, key)
		if err != nil {
			release()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("draw contention", "pool", poolID, "users", userIDs, "wait", c.lockTimeout)
			return nil, model.Wrap(model.KindContention, "lock", poolID, userIDs[0], err)
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

// decideAndAppend runs the engine once per user against the current snapshot
// and appends every record in one batch, each checked against the history
// head its decision saw.
func (c *Coordinator) decideAndAppend(ctx context.Context, poolID string, userIDs []string) ([]model.DrawRecord, error) {
	snap, err := c.pools.Load(poolID)
	if err != nil {
		return nil, err
	}
	window := engine.Window(snap.Rule())

	batch := make([]store.Pending, 0, len(userIDs))
	for _, userID := range userIDs {
		hist, err := c.recent(ctx, poolID, userID, window)
		if err != nil {
			return nil, err
		}

		d := engine.Select(snap, hist, c.random)
		if d.Outcome == engine.OutcomeExhausted {
			c.logger.Debug("pool exhausted", "pool", poolID, "user", userID, "version", snap.Version())
			return nil, model.NewExhaustedError(poolID, userID)
		}
		c.logger.Debug("draw decided", "pool", poolID, "user", userID, "entry", d.EntryID, "candidates", d.Candidates)

		batch = append(batch, store.Pending{
			Record: model.DrawRecord{
				ID:          c.ids.Generate(),
				PoolID:      poolID,
				UserID:      userID,
				PoolVersion: snap.Version(),
				EntryID:     d.EntryID,
				Timestamp:   c.now().UTC(),
			},
			Head: head(window, hist),
		})
	}

	sctx, cancel := context.WithTimeout(ctx, c.storageTimeout)
	stored, err := c.history.AppendBatch(sctx, batch)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if store.IsStaleHead(err) {
			return nil, err
		}
		err = storageError("append", poolID, userIDs[0], err)
		c.logger.Error("draw not recorded", "pool", poolID, "users", userIDs, "error", err)
		return nil, err
	}

	for _, rec := range stored {
		c.logger.Debug("draw",
			"pool", poolID,
			"user", rec.UserID,
			"version", rec.PoolVersion,
			"entry", rec.EntryID,
			"seq", rec.Seq,
		)
	}
	return stored, nil
}

// head is the seq of the newest record a decision saw. A rule that reads no
// history does not care what was appended meanwhile.
func head(window int, hist []model.DrawRecord) int64 {
	switch {
	case window <= 0:
		return store.AnyHead
	case len(hist) == 0:
		return 0
	default:
		return hist[0].Seq
	}
}

// History returns up to limit of the user's records on a pool, most recent
// first. limit is capped at MaxHistoryLimit; a negative limit is a
// validation error.
func (c *Coordinator) History(ctx context.Context, poolID, userID string, limit int) ([]model.DrawRecord, error) {
	poolID = model.NormalizeID(poolID)
	if limit < 0 {
		return nil, model.NewValidationError(poolID, "history limit must not be negative, got %d", limit)
	}
	limit = min(limit, MaxHistoryLimit)
	return c.recent(ctx, poolID, userID, limit)
}

// Stats aggregates the user's draws on a pool within [since, until).
func (c *Coordinator) Stats(ctx context.Context, poolID, userID string, since, until time.Time) (model.Stats, error) {
	poolID = model.NormalizeID(poolID)
	if !since.IsZero() && !until.IsZero() && !since.Before(until) {
		return model.Stats{}, model.NewValidationError(poolID, "stats window is empty: since %s is not before until %s",
			since.Format(time.RFC3339), until.Format(time.RFC3339))
	}
	sctx, cancel := context.WithTimeout(ctx, c.storageTimeout)
	defer cancel()
	stats, err := c.history.Stats(sctx, poolID, userID, since, until)
	if err != nil {
		if ctx.Err() != nil {
			return model.Stats{}, ctx.Err()
		}
		return model.Stats{}, storageError("stats", poolID, userID, err)
	}
	return stats, nil
}

// PoolUpdated installs a new pool definition. It returns the installed
// snapshot and whether it differs from the previous version. Draws already
// holding the old snapshot finish against it.
func (c *Coordinator) PoolUpdated(ctx context.Context, p model.Pool) (*model.Snapshot, bool, error) {
	snap, changed, err := c.pools.Replace(ctx, p)
	if err != nil {
		c.logger.Warn("pool update rejected", "pool", p.ID, "error", err)
		return nil, false, err
	}
	return snap, changed, nil
}

// Restrict installs a narrowed copy of the pool's current definition as its
// next version: Target keeps only the named entries and Exclude drops the
// named ones. The full definition comes back with the next sync of its
// source or PoolUpdated call.
func (c *Coordinator) Restrict(ctx context.Context, poolID string, r model.Restriction) (*model.Snapshot, bool, error) {
	snap, err := c.pools.Load(poolID)
	if err != nil {
		return nil, false, err
	}
	p, err := snap.Pool().Restrict(r)
	if err != nil {
		return nil, false, err
	}
	c.logger.Info("restricting pool", "pool", snap.ID(), "target", r.Target, "exclude", r.Exclude)
	return c.PoolUpdated(ctx, p)
}

// Pool returns the installed snapshot of a pool.
func (c *Coordinator) Pool(poolID string) (*model.Snapshot, error) {
	return c.pools.Load(poolID)
}

// Pools lists the installed pools.
func (c *Coordinator) Pools() []pools.Info {
	return c.pools.List()
}

func (c *Coordinator) recent(ctx context.Context, poolID, userID string, limit int) ([]model.DrawRecord, error) {
	if limit <= 0 {
		return []model.DrawRecord{}, nil
	}
	sctx, cancel := context.WithTimeout(ctx, c.storageTimeout)
	defer cancel()
	recs, err := c.history.Recent(sctx, poolID, userID, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, storageError("recent", poolID, userID, err)
	}
	return recs, nil
}

// storageError classifies a history failure that was not caused by the
// caller's own context.
func storageError(op, poolID, userID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || store.IsBusy(err) {
		return model.Wrap(model.KindTimeout, op, poolID, userID, err)
	}
	return model.Wrap(model.KindPersistence, op, poolID, userID, err)
}

func failed(err error) (model.DrawResult, error) {
	return model.DrawResult{Err: model.KindOf(err)}, err
}
