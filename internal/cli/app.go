package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/roulette/internal/config"
	"github.com/roach88/roulette/internal/pools"
	"github.com/roach88/roulette/internal/session"
	"github.com/roach88/roulette/internal/store"
)

// app is the wired roulette core shared by every command that touches the
// database.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	pools  *pools.Registry
	coord  *session.Coordinator
}

// openApp loads configuration, opens the database and installs the stored
// pools. Failures are ExitCommandError.
func (o *RootOptions) openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(o.viper, o.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr(), o.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to set up logging", err)
	}

	logger.Debug("opening database", "path", cfg.DB)
	st, err := store.Open(cfg.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	reg := pools.New(st, pools.WithLogger(logger))
	n, err := reg.Warm(commandContext(cmd))
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load stored pools", err)
	}
	logger.Debug("stored pools installed", "count", n)

	coord := session.New(reg, st,
		session.WithLockTimeout(cfg.Draw.LockTimeout),
		session.WithStorageTimeout(cfg.Draw.StorageTimeout),
		session.WithLogger(logger),
	)
	return &app{cfg: cfg, logger: logger, store: st, pools: reg, coord: coord}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// health is the /healthz probe.
func (a *app) health(ctx context.Context) error {
	return a.store.Ping(ctx)
}
