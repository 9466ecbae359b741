package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/boot"
	"github.com/memohai/provsync/internal/config"
	"github.com/memohai/provsync/internal/deploy"
	"github.com/memohai/provsync/internal/discovery"
	"github.com/memohai/provsync/internal/handlers"
	"github.com/memohai/provsync/internal/logger"
	"github.com/memohai/provsync/internal/probe"
	"github.com/memohai/provsync/internal/providers"
	"github.com/memohai/provsync/internal/schedule"
	"github.com/memohai/provsync/internal/server"
	"github.com/memohai/provsync/internal/version"
	"github.com/memohai/provsync/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API, the re-probe schedule and the config watcher",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app := fx.New(
			fx.Supply(cfg),
			fx.Provide(
				boot.ProvideRuntimeConfig,
				provideLogger,

				provideStore,
				boot.ProvideAdapterRegistry,
				providers.NewService,
				func(s *providers.Service) discovery.Registry { return s },
				func(s *providers.Service) probe.Registry { return s },
				func(s *providers.Service) deploy.Registry { return s },
				boot.ProbeOptions,

				discovery.NewService,
				probe.NewService,
				deploy.NewService,
				boot.NewScheduleService,

				provideServerHandler(handlers.NewPingHandler),
				provideServerHandler(handlers.NewProvidersHandler),
				provideServerHandler(handlers.NewDiscoveryHandler),
				provideServerHandler(handlers.NewProbeHandler),
				provideServerHandler(handlers.NewDeployHandler),
				provideServerHandler(handlers.NewScheduleHandler),

				provideServer,
			),
			fx.Invoke(
				startScheduleService,
				startWatcher,
				startServer,
			),
			fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
				return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
			}),
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(lc fx.Lifecycle, rc *boot.RuntimeConfig) (providers.Store, error) {
	store, closer, err := boot.OpenStore(rc)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := closer(); err != nil {
				return fmt.Errorf("close registry store: %w", err)
			}
			return nil
		},
	})
	return store, nil
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

type serverParams struct {
	fx.In

	Logger   *slog.Logger
	Runtime  *boot.RuntimeConfig
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Runtime.ServerAddr, params.Handlers...)
}

func startScheduleService(lc fx.Lifecycle, cfg config.Config, scheduleService *schedule.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduleService.Start(cfg.Probe.Schedule)
		},
		OnStop: func(ctx context.Context) error {
			return scheduleService.Stop(ctx)
		},
	})
}

// startWatcher re-runs discovery whenever a tool config changes outside
// provsync, so the log shows providers that appeared or were edited by hand.
func startWatcher(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, registry *adapters.Registry, discoveryService *discovery.Service) error {
	if !cfg.Watch.Enabled {
		return nil
	}
	watchLog := log.With(slog.String("component", "watch"))
	w, err := watch.New(log, registry, cfg.Watch.Debounce(), func(change watch.Change) {
		res, err := discoveryService.Discover(context.Background())
		if err != nil {
			watchLog.Warn("rediscover failed", slog.Any("error", err))
			return
		}
		watchLog.Info("rediscovered",
			slog.String("tool", change.Tool.String()),
			slog.Bool("removed", change.Removed),
			slog.Int("unmanaged", len(res.Items)),
			slog.Int("managed", len(res.AlreadyManaged)),
		)
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var watchCtx context.Context
			watchCtx, cancel = context.WithCancel(context.Background())
			return w.Start(watchCtx)
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return w.Stop()
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting provsync %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
