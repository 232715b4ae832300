package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/ledgersnap/internal/cli/config"
	"github.com/yndnr/ledgersnap/internal/infra/confloader"
	"github.com/yndnr/ledgersnap/internal/infra/shutdown"
	"github.com/yndnr/ledgersnap/internal/server/httpserver"
	"github.com/yndnr/ledgersnap/internal/storage"
	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
)

// FollowCommand returns the follow command.
func FollowCommand() *cli.Command {
	return &cli.Command{
		Name:  "follow",
		Usage: "Keep the ledger store in sync with the node until interrupted",
		Description: `Runs a pull session, waits for the follow interval and repeats.
Sessions stopped by --max-rounds continue without waiting. Failed
sessions are retried on the next interval; the store only ever holds
whole rounds.

Changes to log.level in the config file take effect without a restart.`,
		Flags: append(pullFlags(),
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "pause between pull sessions",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve Prometheus metrics on this address, e.g. :9464",
			},
		),
		Action: runFollow,
	}
}

func runFollow(c *cli.Context) (err error) {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}

	h := shutdown.NewHandler(shutdown.DefaultTimeout)
	ctx, stop := h.Context(c.Context)
	defer stop()

	store, err := e.openStore()
	if err != nil {
		return err
	}
	h.OnShutdown("ledger store", func(context.Context) error { return store.Close() })
	defer func() {
		if serr := h.Shutdown(); err == nil {
			err = serr
		}
	}()
	store.RegisterMetrics(e.metrics)

	health := httpserver.NewHealth()
	if e.cfg.Metrics.Addr != "" {
		srv := httpserver.New(e.cfg.Metrics.Addr, httpserver.NewRouter(httpserver.RouterConfig{
			Metrics: e.metrics.Handler(),
			Health:  health,
			Logger:  e.log,
		}), e.log)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		e.log.Info("serving metrics", "addr", srv.Addr())
		h.OnShutdown("metrics server", srv.Shutdown)
	}

	if e.configPath != "" {
		w, err := watchLogLevel(e)
		if err != nil {
			e.log.Warn("config hot reload disabled", "path", e.configPath, "error", err)
		} else {
			h.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
		}
	}

	interval := e.cfg.Pull.FollowInterval
	e.log.Info("following node", "endpoint", logger.RedactURL(e.cfg.Node.Endpoint), "interval", interval)

	for {
		summary, err := pullSession(ctx, e, store)
		if ctx.Err() != nil {
			e.log.Info("follow stopped")
			return nil
		}
		health.Report(err)

		switch {
		case errors.Is(err, storage.ErrCheckpointConflict):
			return err
		case err != nil:
			e.log.Warn("pull session failed, retrying", "in", interval, "error", err)
		case summary.Receivers+summary.Senders > 0:
			if err := e.print(summary); err != nil {
				return err
			}
		}

		if err == nil && summary.State == "continuing" {
			continue
		}
		select {
		case <-ctx.Done():
			e.log.Info("follow stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

// watchLogLevel reloads the config file on change and applies its log
// level. Flags given on the command line still take precedence.
func watchLogLevel(e *env) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(e.log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(e.configPath); err != nil {
		w.Stop()
		return nil, err
	}

	w.OnChange(func(path string) {
		cfg, err := config.Load(path, e.overrides)
		if err != nil {
			e.log.Warn("config reload failed", "path", path, "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			if err := logger.SetLevel(cfg.Log.Level); err != nil {
				e.log.Warn("config reload failed", "path", path, "error", err)
				return
			}
			e.log.Info("log level changed", "level", logger.GetLevel())
		}
	})
	w.StartAsync()
	return w, nil
}
