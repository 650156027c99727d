package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/roulette/internal/model"
	"github.com/roach88/roulette/internal/syncer"
)

// NewPoolsCommand creates the pools command group.
func NewPoolsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "Load and inspect pool definitions",
	}
	cmd.AddCommand(newPoolsLoadCommand(rootOpts))
	cmd.AddCommand(newPoolsListCommand(rootOpts))
	cmd.AddCommand(newPoolsShowCommand(rootOpts))
	cmd.AddCommand(newPoolsVersionsCommand(rootOpts))
	cmd.AddCommand(newPoolsRestrictCommand(rootOpts))
	return cmd
}

// loadResult is one row of "pools load" output.
type loadResult struct {
	Path    string `json:"path"`
	Pool    string `json:"pool,omitempty"`
	Version uint64 `json:"version,omitempty"`
	Status  string `json:"status"` // "updated" | "unchanged" | "failed"
	Error   string `json:"error,omitempty"`
}

func newPoolsLoadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <path>...",
		Short: "Install pool definitions from files or directories",
		Long: `Install pool definitions from files or directories.

Files may be TOML, YAML, JSON or CUE. A pool's id defaults to the file name
without extension. Definitions identical to the installed version are left
alone; anything else becomes a new version.

Every path is processed even if an earlier one fails; the command exits 1
when any definition was rejected.

Example:
  roulette pools load pools/weapons.toml
  roulette pools load ./pools`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoolsLoad(rootOpts, cmd, args)
		},
	}
}

func runPoolsLoad(opts *RootOptions, cmd *cobra.Command, paths []string) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail("startup failed", err)
	}
	defer a.Close()

	ctx := commandContext(cmd)
	var (
		results []loadResult
		failed  []error
	)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			results = append(results, loadResult{Path: path, Status: "failed", Error: err.Error()})
			failed = append(failed, err)
			continue
		}
		if info.IsDir() {
			rows, errs := loadDir(ctx, a, path)
			results = append(results, rows...)
			failed = append(failed, errs...)
			continue
		}
		row, err := loadFile(ctx, a, path)
		results = append(results, row)
		if err != nil {
			failed = append(failed, err)
		}
		f.VerboseLog("%s: %s", path, row.Status)
	}

	if len(failed) > 0 {
		if f.Format != "json" {
			renderLoadResults(f.Writer, results)
		}
		err := errors.Join(failed...)
		if model.KindOf(err) == "" {
			err = model.Wrap(model.KindValidation, "load", "", "", err)
		}
		return f.FailWithDetails(fmt.Sprintf("%d of %d definition(s) rejected", len(failed), len(results)), err, results)
	}
	return f.Success(results, func(w io.Writer) { renderLoadResults(w, results) })
}

func loadFile(ctx context.Context, a *app, path string) (loadResult, error) {
	p, err := syncer.LoadFile(path)
	if err != nil {
		return loadResult{Path: path, Status: "failed", Error: err.Error()}, err
	}
	snap, changed, err := a.coord.PoolUpdated(ctx, p)
	if err != nil {
		return loadResult{Path: path, Pool: p.ID, Status: "failed", Error: err.Error()}, err
	}
	status := "unchanged"
	if changed {
		status = "updated"
	}
	return loadResult{Path: path, Pool: snap.ID(), Version: snap.Version(), Status: status}, nil
}

func loadDir(ctx context.Context, a *app, dir string) ([]loadResult, []error) {
	report, err := syncer.New(dir, a.coord, syncer.WithLogger(a.logger)).SyncDir(ctx)
	if err != nil {
		return []loadResult{{Path: dir, Status: "failed", Error: err.Error()}}, []error{err}
	}
	var (
		rows []loadResult
		errs []error
	)
	for _, rel := range report.Updated {
		rows = append(rows, loadResult{Path: filepath.Join(dir, rel), Status: "updated"})
	}
	for _, rel := range report.Unchanged {
		rows = append(rows, loadResult{Path: filepath.Join(dir, rel), Status: "unchanged"})
	}
	for _, rel := range slices.Sorted(maps.Keys(report.Failed)) {
		err := report.Failed[rel]
		rows = append(rows, loadResult{Path: filepath.Join(dir, rel), Status: "failed", Error: err.Error()})
		errs = append(errs, err)
	}
	return rows, errs
}

func renderLoadResults(w io.Writer, results []loadResult) {
	tw := newTable(w, "Path", "Pool", "Version", "Status", "Error")
	for _, r := range results {
		version := ""
		if r.Version > 0 {
			version = fmt.Sprint(r.Version)
		}
		tw.AppendRow([]any{r.Path, r.Pool, version, r.Status, r.Error})
	}
	tw.Render()
}

func newPoolsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			a, err := rootOpts.openApp(cmd)
			if err != nil {
				return f.Fail("startup failed", err)
			}
			defer a.Close()

			infos := a.coord.Pools()
			return f.Success(infos, func(w io.Writer) {
				if len(infos) == 0 {
					fmt.Fprintln(w, "No pools installed.")
					return
				}
				tw := newTable(w, "Pool", "Version", "Rule", "Entries", "Installed")
				for _, p := range infos {
					tw.AppendRow([]any{p.ID, p.Version, p.Rule, p.Entries, p.InstalledAt.Format(time.RFC3339)})
				}
				tw.Render()
			})
		},
	}
}

// poolView is the JSON shape of "pools show".
type poolView struct {
	model.Pool
	ContentHash string    `json:"content_hash"`
	InstalledAt time.Time `json:"installed_at"`
}

func newPoolsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <pool>",
		Short: "Show the installed definition of a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			a, err := rootOpts.openApp(cmd)
			if err != nil {
				return f.Fail("startup failed", err)
			}
			defer a.Close()

			snap, err := a.coord.Pool(args[0])
			if err != nil {
				return f.Fail("show failed", err)
			}
			view := poolView{Pool: snap.Pool(), ContentHash: snap.ContentHash(), InstalledAt: snap.InstalledAt()}
			return f.Success(view, func(w io.Writer) {
				fmt.Fprintf(w, "Pool:    %s\n", view.ID)
				fmt.Fprintf(w, "Version: %d\n", view.Version)
				fmt.Fprintf(w, "Rule:    %s\n", view.Rule)
				fmt.Fprintf(w, "Hash:    %s\n", view.ContentHash)
				tw := newTable(w, "Entry", "Weight", "Tags")
				for _, e := range view.Entries {
					tw.AppendRow([]any{e.ID, e.Weight, strings.Join(e.Tags, ", ")})
				}
				tw.Render()
			})
		},
	}
}

// versionView is one row of "pools versions".
type versionView struct {
	Version     uint64    `json:"version"`
	ContentHash string    `json:"content_hash"`
	Entries     int       `json:"entries"`
	CreatedAt   time.Time `json:"created_at"`
}

func newPoolsVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <pool>",
		Short: "List every stored version of a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			a, err := rootOpts.openApp(cmd)
			if err != nil {
				return f.Fail("startup failed", err)
			}
			defer a.Close()

			records, err := a.store.PoolVersions(commandContext(cmd), model.NormalizeID(args[0]))
			if err != nil {
				return f.Fail("versions failed", model.Wrap(model.KindPersistence, "versions", args[0], "", err))
			}
			if len(records) == 0 {
				return f.Fail("versions failed", model.NewNotFoundError(args[0]))
			}
			views := make([]versionView, 0, len(records))
			for _, r := range records {
				views = append(views, versionView{
					Version:     r.Pool.Version,
					ContentHash: r.ContentHash,
					Entries:     len(r.Pool.Entries),
					CreatedAt:   r.CreatedAt,
				})
			}
			return f.Success(views, func(w io.Writer) {
				tw := newTable(w, "Version", "Hash", "Entries", "Created")
				for _, v := range views {
					tw.AppendRow([]any{v.Version, v.ContentHash[:12], v.Entries, v.CreatedAt.Format(time.RFC3339)})
				}
				tw.Render()
			})
		},
	}
}

// RestrictOptions holds flags for the pools restrict command.
type RestrictOptions struct {
	*RootOptions
	model.Restriction
}

func newPoolsRestrictCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestrictOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restrict <pool>",
		Short: "Narrow the installed pool to a subset of its entries",
		Long: `Narrow the installed pool to a subset of its entries.

--target keeps only the named entries; --exclude drops the named entries.
The narrowed definition becomes the pool's next version. Loading the pool's
file again restores the full definition.

Example:
  roulette pools restrict weapons --exclude hammer,horn
  roulette pools restrict weapons --target bow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoolsRestrict(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringSliceVar(&opts.Target, "target", nil, "entries to keep (all others are dropped)")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "entries to drop")

	return cmd
}

func runPoolsRestrict(opts *RestrictOptions, cmd *cobra.Command, poolID string) error {
	f := opts.formatter(cmd)
	if opts.Restriction.IsZero() {
		return f.Fail("restrict failed", NewExitError(ExitCommandError, "one of --target or --exclude is required"))
	}
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail("startup failed", err)
	}
	defer a.Close()

	snap, changed, err := a.coord.Restrict(commandContext(cmd), poolID, opts.Restriction)
	if err != nil {
		return f.Fail("restrict failed", err)
	}
	view := poolView{Pool: snap.Pool(), ContentHash: snap.ContentHash(), InstalledAt: snap.InstalledAt()}
	return f.Success(view, func(w io.Writer) {
		if !changed {
			fmt.Fprintf(w, "%s unchanged (v%d)\n", view.ID, view.Version)
			return
		}
		ids := make([]string, len(view.Entries))
		for i, e := range view.Entries {
			ids[i] = e.ID
		}
		fmt.Fprintf(w, "%s v%d: %s\n", view.ID, view.Version, strings.Join(ids, ", "))
	})
}
