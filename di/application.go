package di

import (
	"context"

	"github.com/samber/do/v2"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-accessctl-framework/config"
	"github.com/KOMKZ/go-accessctl-framework/eventbus"
	"github.com/KOMKZ/go-accessctl-framework/intercept"
	"github.com/KOMKZ/go-accessctl-framework/logger"
	"github.com/KOMKZ/go-accessctl-framework/permission"
	"github.com/KOMKZ/go-accessctl-framework/ratelimit"
	"github.com/KOMKZ/go-accessctl-framework/service"
	"github.com/KOMKZ/go-accessctl-framework/storage"
)

// App is the assembled access control layer, ready to embed into a
// host framework
type App struct {
	injector *do.RootScope
	cfg      *config.Config
	log      *logger.CtxZapLogger
	sweeper  *ratelimit.Sweeper
}

// NewApp loads configuration from configPath (optional) and wires the
// component graph. Components are created lazily; call Start to spin
// up background work.
func NewApp(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig wires the graph around an already built config
func NewAppWithConfig(cfg *config.Config) (*App, error) {
	logger.InitManager(cfg.Logger)

	injector := do.New()
	RegisterProviders(injector, cfg)

	return &App{
		injector: injector,
		cfg:      cfg,
		log:      logger.GetLogger("app"),
	}, nil
}

// Start brings up the token sweeper. Idempotent components created by
// earlier accessor calls stay as they are.
func (a *App) Start(ctx context.Context) error {
	sweeper, err := do.Invoke[*ratelimit.Sweeper](a.injector)
	if err != nil {
		return err
	}
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	a.sweeper = sweeper

	a.log.InfoCtx(ctx, "access control started",
		zap.String("default_permission", a.cfg.DefaultPermission),
		zap.String("token_storage", a.cfg.TokenStorage))
	return nil
}

// Shutdown stops background work and closes every component in
// reverse dependency order
func (a *App) Shutdown(ctx context.Context) error {
	if a.sweeper != nil {
		if err := a.sweeper.Stop(); err != nil {
			a.log.WarnCtx(ctx, "sweeper stop failed", zap.Error(err))
		}
	}
	if bus, err := do.Invoke[*eventbus.Bus](a.injector); err == nil {
		bus.Close()
	}
	if mgr, err := do.Invoke[*storage.Manager](a.injector); err == nil {
		if err := mgr.Close(); err != nil {
			a.log.WarnCtx(ctx, "database close failed", zap.Error(err))
		}
	}
	return a.injector.Shutdown()
}

// Config returns the active configuration
func (a *App) Config() *config.Config {
	return a.cfg
}

// Injector exposes the container for host-side extension
func (a *App) Injector() *do.RootScope {
	return a.injector
}

func (a *App) Registry() *service.Registry {
	return do.MustInvoke[*service.Registry](a.injector)
}

func (a *App) Bus() *eventbus.Bus {
	return do.MustInvoke[*eventbus.Bus](a.injector)
}

func (a *App) Permissions() (*permission.Engine, error) {
	return do.Invoke[*permission.Engine](a.injector)
}

func (a *App) RateLimits() (*ratelimit.Engine, error) {
	return do.Invoke[*ratelimit.Engine](a.injector)
}

func (a *App) Interceptor() (*intercept.Interceptor, error) {
	return do.Invoke[*intercept.Interceptor](a.injector)
}
