package pools

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/roulette/internal/model"
	"github.com/roach88/roulette/internal/store"
)

// Persister stores pool versions durably. *store.Store implements it.
type Persister interface {
	SavePool(ctx context.Context, p model.Pool, contentHash string, at time.Time) (store.PoolRecord, error)
	LatestPools(ctx context.Context) ([]store.PoolRecord, error)
}

// Info summarizes one installed pool.
type Info struct {
	ID          string              `json:"id"`
	Version     uint64              `json:"version"`
	Rule        model.ExclusionRule `json:"rule"`
	Entries     int                 `json:"entries"`
	ContentHash string              `json:"content_hash"`
	InstalledAt time.Time           `json:"installed_at"`
}

// Registry is the Pool Store.
type Registry struct {
	mu      sync.Mutex // serializes Replace and Warm
	current atomic.Pointer[map[string]*model.Snapshot]

	persist Persister
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides time.Now for installation timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New creates an empty registry. A nil persister keeps pools in memory only;
// versions then restart at 1 on every process start.
func New(persist Persister, opts ...Option) *Registry {
	r := &Registry{
		persist: persist,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	empty := map[string]*model.Snapshot{}
	r.current.Store(&empty)
	return r
}

// Load returns the installed snapshot of a pool, or a PoolNotFound error.
// poolID is normalized like the ids Replace installs.
func (r *Registry) Load(poolID string) (*model.Snapshot, error) {
	poolID = model.NormalizeID(poolID)
	snap, ok := (*r.current.Load())[poolID]
	if !ok {
		return nil, model.NewNotFoundError(poolID)
	}
	return snap, nil
}

// Replace validates p and installs it as the pool's next version.
//
// An invalid pool is rejected with a ValidationError and the previous version
// stays active. A pool whose canonical content equals the installed version
// is not re-installed; the current snapshot is returned with changed=false.
func (r *Registry) Replace(ctx context.Context, p model.Pool) (snap *model.Snapshot, changed bool, err error) {
	n := p.Normalize()
	if err := n.Validate(); err != nil {
		return nil, false, err
	}
	hash, err := model.ContentHash(n)
	if err != nil {
		return nil, false, model.Wrap(model.KindValidation, "replace", n.ID, "", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := (*r.current.Load())[n.ID]
	if ok && prev.ContentHash() == hash {
		return prev, false, nil
	}

	at := r.now().UTC()
	switch {
	case r.persist != nil:
		rec, err := r.persist.SavePool(ctx, n, hash, at)
		if err != nil {
			return nil, false, model.Wrap(model.KindPersistence, "replace", n.ID, "", err)
		}
		n.Version = rec.Pool.Version
	case ok:
		n.Version = prev.Version() + 1
	default:
		n.Version = 1
	}

	snap = model.NewSnapshot(n, hash, at)
	r.install(snap)

	r.logger.Info("pool installed",
		"pool", n.ID,
		"version", n.Version,
		"entries", len(n.Entries),
		"rule", n.Rule.String(),
	)
	return snap, true, nil
}

// Warm installs the latest persisted version of every pool. It is meant for
// startup and returns the number of pools installed. Stored definitions that
// no longer validate are skipped with a warning.
func (r *Registry) Warm(ctx context.Context) (int, error) {
	if r.persist == nil {
		return 0, nil
	}
	records, err := r.persist.LatestPools(ctx)
	if err != nil {
		return 0, model.Wrap(model.KindPersistence, "warm", "", "", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	installed := 0
	for _, rec := range records {
		p := rec.Pool.Normalize()
		if err := p.Validate(); err != nil {
			r.logger.Warn("skipping stored pool", "pool", rec.Pool.ID, "version", rec.Pool.Version, "error", err)
			continue
		}
		r.install(model.NewSnapshot(p, rec.ContentHash, rec.CreatedAt))
		installed++
	}
	return installed, nil
}

// List returns every installed pool ordered by id.
func (r *Registry) List() []Info {
	m := *r.current.Load()
	out := make([]Info, 0, len(m))
	for _, s := range m {
		out = append(out, Info{
			ID:          s.ID(),
			Version:     s.Version(),
			Rule:        s.Rule(),
			Entries:     s.Len(),
			ContentHash: s.ContentHash(),
			InstalledAt: s.InstalledAt(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// install publishes a copy of the map with snap added. Callers hold r.mu.
func (r *Registry) install(snap *model.Snapshot) {
	old := *r.current.Load()
	next := make(map[string]*model.Snapshot, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[snap.ID()] = snap
	r.current.Store(&next)
}
