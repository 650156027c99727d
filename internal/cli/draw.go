package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/roulette/internal/model"
	"github.com/roach88/roulette/internal/session"
)

// NewDrawCommand creates the draw command.
func NewDrawCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "draw <pool> <user>...",
		Short: "Draw one entry from a pool for a user or a party",
		Long: `Draw one entry from a pool for a user and record it in the user's history.

Naming several users draws once for each member of the party. The party's
draws are recorded together: if any member has no eligible entry left,
nobody's draw is recorded.

Exits 1 when the pool is unknown or every entry is currently excluded for
a user.

Example:
  roulette draw weapons alice
  roulette draw weapons alice bob carol
  roulette draw weapons alice --format json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 2 {
				return runDrawParty(rootOpts, cmd, args[0], args[1:])
			}
			return runDraw(rootOpts, cmd, args[0], args[1])
		},
	}
}

func runDraw(opts *RootOptions, cmd *cobra.Command, poolID, userID string) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail("startup failed", err)
	}
	defer a.Close()

	res, err := a.coord.Draw(commandContext(cmd), poolID, userID)
	if err != nil {
		return f.Fail("draw failed", err)
	}
	rec := res.Record
	return f.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s drew %s from %s (v%d, draw #%d)\n", rec.UserID, rec.EntryID, rec.PoolID, rec.PoolVersion, rec.Seq)
	})
}

func runDrawParty(opts *RootOptions, cmd *cobra.Command, poolID string, userIDs []string) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail("startup failed", err)
	}
	defer a.Close()

	records, err := a.coord.DrawMany(commandContext(cmd), poolID, userIDs)
	if err != nil {
		return f.Fail("party draw failed", err)
	}
	return f.Success(records, func(w io.Writer) {
		fmt.Fprintf(w, "Party draw from %s (v%d):\n", records[0].PoolID, records[0].PoolVersion)
		tw := newTable(w, "User", "Entry", "Seq")
		for _, r := range records {
			tw.AppendRow([]any{r.UserID, r.EntryID, r.Seq})
		}
		tw.Render()
	})
}

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <pool> <user>",
		Short: "List a user's most recent draws on a pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", session.DefaultHistoryLimit,
		fmt.Sprintf("number of draws to show (max %d)", session.MaxHistoryLimit))

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command, poolID, userID string) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail("startup failed", err)
	}
	defer a.Close()

	records, err := a.coord.History(commandContext(cmd), poolID, userID, opts.Limit)
	if err != nil {
		return f.Fail("history failed", err)
	}
	return f.Success(records, func(w io.Writer) {
		if len(records) == 0 {
			fmt.Fprintf(w, "No draws by %s on %s.\n", userID, poolID)
			return
		}
		tw := newTable(w, "Seq", "Entry", "Version", "Drawn At")
		for _, r := range records {
			tw.AppendRow([]any{r.Seq, r.EntryID, r.PoolVersion, r.Timestamp.Format(time.RFC3339)})
		}
		tw.Render()
	})
}

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Since string
	Until string
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats <pool> <user>",
		Short: "Count a user's draws per entry",
		Long: `Count a user's draws per entry within an optional [since, until) window.

Times are RFC 3339 or YYYY-MM-DD (midnight UTC).

Example:
  roulette stats weapons alice --since 2026-01-01`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Since, "since", "", "window start, inclusive")
	cmd.Flags().StringVar(&opts.Until, "until", "", "window end, exclusive")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command, poolID, userID string) error {
	f := opts.formatter(cmd)
	since, err := model.ParseInstant(opts.Since)
	if err != nil {
		return f.Fail("invalid --since", err)
	}
	until, err := model.ParseInstant(opts.Until)
	if err != nil {
		return f.Fail("invalid --until", err)
	}

	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail("startup failed", err)
	}
	defer a.Close()

	stats, err := a.coord.Stats(commandContext(cmd), poolID, userID, since, until)
	if err != nil {
		return f.Fail("stats failed", err)
	}
	return f.Success(stats, func(w io.Writer) {
		fmt.Fprintf(w, "%s on %s: %d draw(s)\n", userID, poolID, stats.Total)
		if len(stats.Entries) == 0 {
			return
		}
		tw := newTable(w, "Entry", "Count", "Last Drawn")
		for _, e := range stats.Entries {
			tw.AppendRow([]any{e.EntryID, e.Count, e.LastDrawnAt.Format(time.RFC3339)})
		}
		tw.Render()
	})
}
