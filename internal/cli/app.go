package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/internal/config"
	"github.com/mesh-intelligence/hera/internal/ctxutil"
	"github.com/mesh-intelligence/hera/internal/events"
	"github.com/mesh-intelligence/hera/internal/logging"
	"github.com/mesh-intelligence/hera/internal/paths"
	"github.com/mesh-intelligence/hera/pkg/cache"
	"github.com/mesh-intelligence/hera/pkg/client"
	"github.com/mesh-intelligence/hera/pkg/orchestrator"
	"github.com/mesh-intelligence/hera/pkg/preset"
	"github.com/mesh-intelligence/hera/pkg/salon"
	"github.com/mesh-intelligence/hera/pkg/store"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// app is the wiring shared by the commands: configuration, logger, backend,
// cache, event publisher and the orchestrator over them.
type app struct {
	configDir string
	cfg       *config.Config
	logger    *zap.Logger
	backend   types.Backend
	store     types.Store // nil for the http driver
	metrics   *prometheus.Registry
	orch      *orchestrator.Orchestrator
	salon     *salon.Salon
	closers   []func() error
}

// loadSettings resolves the config directory, loads config.yaml and builds
// the logger.
func loadSettings() (*app, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "hera")
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	a := &app{configDir: configDir, cfg: cfg, logger: logger, metrics: prometheus.NewRegistry()}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})
	return a, nil
}

// openApp wires everything a command needs. The caller must Close the app.
func openApp() (*app, error) {
	a, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if err := a.open(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open() error {
	if err := a.openBackend(); err != nil {
		return err
	}
	c, err := a.openCache()
	if err != nil {
		return err
	}
	reg, err := a.registry()
	if err != nil {
		return err
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(a.logger),
		orchestrator.WithCache(c),
		orchestrator.WithMetrics(orchestrator.NewMetrics(a.metrics)),
	}
	if url := a.cfg.Events.NATSURL; url != "" {
		p, err := events.Connect(url, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, p.Close)
		opts = append(opts, orchestrator.WithPublisher(p))
	}
	a.orch = orchestrator.New(a.backend, reg, opts...)
	a.salon = salon.New(a.orch)
	return nil
}

func (a *app) openBackend() error {
	if a.cfg.Backend.Driver == config.DriverHTTP {
		a.backend = client.New(a.cfg.Backend.URL, client.WithLogger(a.logger))
		return nil
	}
	dataDir, err := paths.ResolveDataDir(flags.dataDir, a.cfg.Backend.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	s, err := store.Open(a.cfg.Store(dataDir), a.logger)
	if err != nil {
		return fmt.Errorf("attach backend: %w", err)
	}
	a.store, a.backend = s, s
	a.closers = append(a.closers, s.Detach)
	return nil
}

func (a *app) openCache() (cache.Cache, error) {
	if a.cfg.Cache.Driver != config.CacheRedis {
		return cache.NewMemory(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: a.cfg.Cache.RedisAddr, DB: a.cfg.Cache.RedisDB})
	a.closers = append(a.closers, rdb.Close)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.Cache.RedisAddr, err)
	}
	return cache.NewRedis(rdb, cache.WithTTL(a.cfg.Cache.TTL), cache.WithLogger(a.logger)), nil
}

// registry returns the salon presets plus the files of the presets
// directory (presets.dir, default <config-dir>/presets).
func (a *app) registry() (*preset.Registry, error) {
	dir := a.cfg.Presets.Dir
	if dir == "" {
		dir = paths.PresetDir(a.configDir)
	}
	extra, err := preset.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load presets from %s: %w", dir, err)
	}
	return salon.Registry(extra...)
}

// context returns the command context carrying the --role and --actor
// identity.
func (a *app) context(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if flags.role != "" {
		ctx = ctxutil.WithRole(ctx, flags.role)
	}
	if flags.actor != "" {
		ctx = ctxutil.WithActorID(ctx, flags.actor)
	}
	return ctx
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp runs fn with an opened app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a.context(cmd), a)
}
