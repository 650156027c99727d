package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/roulette/internal/api"
	"github.com/roach88/roulette/internal/config"
	"github.com/roach88/roulette/internal/gateway/discord"
	"github.com/roach88/roulette/internal/syncer"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions

	// ready, when set, receives the HTTP listen address once serving (tests).
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and Discord gateway",
		Long: `Run the roulette front ends until interrupted.

The HTTP API starts when http.addr is set and the Discord gateway when
discord.token is set; at least one is required. With pools.dir set, every
definition under it is synced at startup, and with pools.watch also on
every change afterwards.

Example:
  roulette serve --http-addr :8080 --pools-dir ./pools --watch
  ROULETTE_DISCORD_TOKEN=... ROULETTE_DISCORD_APP_ID=... roulette serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().String("http-addr", "", "HTTP listen address (overrides "+config.KeyHTTPAddr+")")
	cmd.Flags().Bool("watch", false, "watch the pools directory for changes (overrides "+config.KeyPoolsWatch+")")
	_ = rootOpts.viper.BindPFlag(config.KeyHTTPAddr, cmd.Flags().Lookup("http-addr"))
	_ = rootOpts.viper.BindPFlag(config.KeyPoolsWatch, cmd.Flags().Lookup("watch"))

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail("startup failed", err)
	}
	defer a.Close()
	slog.SetDefault(a.logger)

	cfg := a.cfg
	if cfg.HTTP.Addr == "" && cfg.Discord.Token == "" {
		return f.Fail("nothing to serve",
			NewExitError(ExitCommandError, "set http.addr or discord.token"))
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Pools.Dir != "" {
		report, err := syncer.New(cfg.Pools.Dir, a.coord, syncer.WithLogger(a.logger)).SyncDir(ctx)
		if err != nil {
			return f.Fail("initial pool sync failed", err)
		}
		for _, line := range report.Errors() {
			f.VerboseLog("rejected %s", line)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Pools.Watch {
		w, err := syncer.New(cfg.Pools.Dir, a.coord, syncer.WithLogger(a.logger)).NewWatcher(cfg.Pools.Debounce)
		if err != nil {
			return f.Fail("failed to watch pools", err)
		}
		defer w.Close()
		g.Go(func() error { return w.Run(gctx) })
		a.logger.Info("watching pools", "dir", cfg.Pools.Dir, "debounce", cfg.Pools.Debounce)
	}

	if cfg.HTTP.Addr != "" {
		ln, err := net.Listen("tcp", cfg.HTTP.Addr)
		if err != nil {
			return f.Fail("failed to listen", NewExitError(ExitCommandError, err.Error()))
		}
		srv := &http.Server{
			Handler: api.New(api.Config{
				Service:        a.coord,
				Health:         a.health,
				AllowedOrigins: cfg.HTTP.CORSOrigins,
				Logger:         a.logger,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
		a.logger.Info("http api listening", "addr", ln.Addr().String())
		if opts.ready != nil {
			opts.ready <- ln.Addr().String()
		}
	}

	if cfg.Discord.Token != "" {
		var botOpts []discord.Option
		if cfg.Discord.GuildID != "" {
			botOpts = append(botOpts, discord.WithGuild(cfg.Discord.GuildID))
		}
		botOpts = append(botOpts, discord.WithLogger(a.logger))
		bot, err := discord.New(cfg.Discord.Token, cfg.Discord.AppID, a.coord, botOpts...)
		if err != nil {
			return f.Fail("failed to create discord bot", err)
		}
		g.Go(func() error { return bot.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return f.Fail("serve failed", err)
	}
	a.logger.Info("shut down cleanly")
	return nil
}
