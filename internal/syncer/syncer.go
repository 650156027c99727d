package syncer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/roulette/internal/model"
)

// Target receives pool definitions. *session.Coordinator implements it.
type Target interface {
	Pool(poolID string) (*model.Snapshot, error)
	PoolUpdated(ctx context.Context, p model.Pool) (*model.Snapshot, bool, error)
}

// Report summarizes one SyncDir pass. Paths are relative to the directory.
type Report struct {
	Updated   []string         `json:"updated"`
	Unchanged []string         `json:"unchanged"`
	Failed    map[string]error `json:"-"`
}

// Errors flattens Failed into sorted "path: error" strings.
func (r Report) Errors() []string {
	out := make([]string, 0, len(r.Failed))
	for path, err := range r.Failed {
		out = append(out, fmt.Sprintf("%s: %v", path, err))
	}
	sort.Strings(out)
	return out
}

// Syncer installs pool definitions found under a directory.
//
// It remembers which file defines each pool id, so one pool cannot be
// defined by two files whether they arrive in one SyncDir pass or one at a
// time through SyncFile.
type Syncer struct {
	dir    string
	target Target
	logger *slog.Logger

	mu     sync.Mutex
	owners map[string]string // pool id -> path relative to dir
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = l
	}
}

// New creates a Syncer for dir.
func New(dir string, target Target, opts ...Option) *Syncer {
	s := &Syncer{dir: dir, target: target, logger: slog.Default(), owners: map[string]string{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the synced directory.
func (s *Syncer) Dir() string {
	return s.dir
}

// SyncDir walks the directory (skipping dot-directories such as .git) and
// syncs every supported file in lexical order. One bad file does not stop
// the pass; it lands in Report.Failed. A pool id defined by two files is a
// failure for the second file.
//
// The returned error is non-nil only when the directory cannot be walked or
// ctx is done.
func (s *Syncer) SyncDir(ctx context.Context) (Report, error) {
	report := Report{Updated: []string{}, Unchanged: []string{}, Failed: map[string]error{}}
	owners := map[string]string{}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != s.dir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !Supported(path) {
			return nil
		}

		rel, _ := filepath.Rel(s.dir, path)
		p, err := LoadFile(path)
		if err != nil {
			report.Failed[rel] = err
			return nil
		}
		id := model.NormalizeID(p.ID)
		if owner, dup := owners[id]; dup {
			report.Failed[rel] = duplicateError(id, owner)
			return nil
		}
		owners[id] = rel

		changed, err := s.install(ctx, p)
		switch {
		case err != nil:
			report.Failed[rel] = err
		case changed:
			report.Updated = append(report.Updated, rel)
		default:
			report.Unchanged = append(report.Unchanged, rel)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("sync %s: %w", s.dir, err)
	}
	s.owners = owners

	for rel, ferr := range report.Failed {
		s.logger.Warn("pool file rejected", "file", rel, "error", ferr)
	}
	s.logger.Info("pool sync complete",
		"dir", s.dir,
		"updated", len(report.Updated),
		"unchanged", len(report.Unchanged),
		"failed", len(report.Failed),
	)
	return report, nil
}

// SyncFile loads and installs a single file under the directory. It reports
// whether the installed pool changed. A file defining a pool id that another
// existing file already owns is rejected with a ValidationError.
func (s *Syncer) SyncFile(ctx context.Context, path string) (bool, error) {
	p, err := LoadFile(path)
	if err != nil {
		return false, err
	}
	rel := s.rel(path)
	id := model.NormalizeID(p.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.owners[id]; ok && owner != rel {
		if _, err := os.Stat(filepath.Join(s.dir, owner)); err == nil {
			return false, duplicateError(id, owner)
		}
		s.logger.Info("pool file moved", "pool", id, "from", owner, "to", rel)
	}
	// the file may have been edited to define a different pool
	for other, owner := range s.owners {
		if owner == rel && other != id {
			delete(s.owners, other)
		}
	}
	s.owners[id] = rel
	return s.install(ctx, p)
}

// Forget releases the pool ids a removed file defined. The installed pools
// stay as they are.
func (s *Syncer) Forget(path string) {
	rel := s.rel(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, owner := range s.owners {
		if owner == rel {
			delete(s.owners, id)
		}
	}
}

func (s *Syncer) rel(path string) string {
	if rel, err := filepath.Rel(s.dir, path); err == nil {
		return rel
	}
	return path
}

func duplicateError(poolID, owner string) error {
	return model.NewValidationError(poolID, "pool already defined in %s", owner)
}

func (s *Syncer) install(ctx context.Context, p model.Pool) (bool, error) {
	hash, err := model.ContentHash(p)
	if err != nil {
		return false, err
	}
	if snap, err := s.target.Pool(p.Normalize().ID); err == nil && snap.ContentHash() == hash {
		return false, nil
	}
	_, changed, err := s.target.PoolUpdated(ctx, p)
	return changed, err
}

// isDir reports whether path is an existing directory.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
