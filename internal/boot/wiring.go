package boot

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/adapters/ccswitch"
	"github.com/memohai/provsync/internal/adapters/claude"
	"github.com/memohai/provsync/internal/adapters/codex"
	"github.com/memohai/provsync/internal/adapters/gemini"
	"github.com/memohai/provsync/internal/adapters/opencode"
	"github.com/memohai/provsync/internal/config"
	"github.com/memohai/provsync/internal/deploy"
	"github.com/memohai/provsync/internal/discovery"
	"github.com/memohai/provsync/internal/probe"
	"github.com/memohai/provsync/internal/providers"
	"github.com/memohai/provsync/internal/schedule"
)

// ProvideAdapterRegistry registers the built-in tool adapters.
func ProvideAdapterRegistry(log *slog.Logger, rc *RuntimeConfig) (*adapters.Registry, error) {
	return adapters.NewRegistry(
		opencode.New(log, rc.Paths),
		claude.New(log, rc.Paths),
		codex.New(log, rc.Paths),
		gemini.New(log, rc.Paths),
		ccswitch.New(log, rc.Paths),
	)
}

// OpenStore opens the registry store. The returned closer is a no-op for
// stores that hold no handle.
func OpenStore(rc *RuntimeConfig) (providers.Store, func() error, error) {
	store, err := providers.OpenStore(rc.StoreDriver, rc.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open registry store: %w", err)
	}
	closer := func() error { return nil }
	if c, ok := store.(io.Closer); ok {
		closer = c.Close
	}
	return store, closer, nil
}

// ProbeOptions maps the probe config section onto probe.Options.
func ProbeOptions(cfg config.Config) probe.Options {
	return probe.Options{
		Trials:      cfg.Probe.Trials,
		Timeout:     cfg.Probe.Timeout(),
		MinInterval: cfg.Probe.MinInterval(),
		CacheTTL:    cfg.Probe.CacheTTL(),
	}
}

// schedulePassTimeout bounds one scheduled pass over the whole registry.
const schedulePassTimeout = 10 * time.Minute

// NewScheduleService builds the periodic re-probe service.
func NewScheduleService(log *slog.Logger, cfg config.Config, registry *providers.Service, prober *probe.Service) *schedule.Service {
	return schedule.NewService(log, registry, prober, cfg.Probe.Trials, schedulePassTimeout)
}

// App is the wired engine used by one-shot CLI commands.
type App struct {
	Config    config.Config
	Runtime   *RuntimeConfig
	Logger    *slog.Logger
	Adapters  *adapters.Registry
	Providers *providers.Service
	Discovery *discovery.Service
	Probe     *probe.Service
	Deploy    *deploy.Service
	Schedule  *schedule.Service

	closeStore func() error
}

// NewApp wires every service over cfg.
func NewApp(log *slog.Logger, cfg config.Config) (*App, error) {
	rc, err := ProvideRuntimeConfig(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := ProvideAdapterRegistry(log, rc)
	if err != nil {
		return nil, err
	}
	store, closer, err := OpenStore(rc)
	if err != nil {
		return nil, err
	}

	providerService := providers.NewService(log, store)
	probeService := probe.NewService(log, providerService, ProbeOptions(cfg))
	return &App{
		Config:     cfg,
		Runtime:    rc,
		Logger:     log,
		Adapters:   registry,
		Providers:  providerService,
		Discovery:  discovery.NewService(log, providerService, registry),
		Probe:      probeService,
		Deploy:     deploy.NewService(log, providerService, registry),
		Schedule:   NewScheduleService(log, cfg, providerService, probeService),
		closeStore: closer,
	}, nil
}

// Close releases the registry store.
func (a *App) Close() error {
	if a.closeStore == nil {
		return nil
	}
	return a.closeStore()
}
