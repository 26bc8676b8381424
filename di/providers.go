// Package di wires the access control components through samber/do
package di

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"

	"github.com/KOMKZ/go-accessctl-framework/config"
	"github.com/KOMKZ/go-accessctl-framework/eventbus"
	"github.com/KOMKZ/go-accessctl-framework/intercept"
	"github.com/KOMKZ/go-accessctl-framework/logger"
	"github.com/KOMKZ/go-accessctl-framework/permission"
	"github.com/KOMKZ/go-accessctl-framework/ratelimit"
	"github.com/KOMKZ/go-accessctl-framework/service"
	"github.com/KOMKZ/go-accessctl-framework/storage"
	"github.com/KOMKZ/go-accessctl-framework/subject"
)

// RegisterProviders installs every component into the injector.
// Resolution order follows the dependency graph; nothing is
// instantiated until first Invoke.
func RegisterProviders(injector do.Injector, cfg *config.Config) {
	do.ProvideValue(injector, cfg)

	do.Provide(injector, func(i do.Injector) (*storage.Manager, error) {
		return storage.NewManager(do.MustInvoke[*config.Config](i).Database, logger.GetLogger("storage"))
	})

	do.Provide(injector, func(i do.Injector) (*redis.Client, error) {
		return storage.NewRedisClient(context.Background(), do.MustInvoke[*config.Config](i).Redis)
	})

	do.Provide(injector, func(i do.Injector) (*eventbus.Bus, error) {
		return eventbus.NewBus(), nil
	})

	// hosts replace this with their real plugin discovery hook
	do.Provide(injector, func(i do.Injector) (*service.Registry, error) {
		allowAll := service.PluginDiscoveryFunc(func(string) bool { return true })
		return service.NewRegistry(allowAll), nil
	})

	do.Provide(injector, func(i do.Injector) (permission.Repository, error) {
		mgr, err := do.Invoke[*storage.Manager](i)
		if err != nil {
			return nil, err
		}
		return permission.NewGormRepository(mgr.DB()), nil
	})

	do.Provide(injector, func(i do.Injector) (*permission.Engine, error) {
		repo, err := do.Invoke[permission.Repository](i)
		if err != nil {
			return nil, err
		}
		bus := do.MustInvoke[*eventbus.Bus](i)
		registry := do.MustInvoke[*service.Registry](i)
		c := do.MustInvoke[*config.Config](i)
		return permission.NewEngine(repo, bus, registry, c.DefaultAllow()), nil
	})

	do.Provide(injector, func(i do.Injector) (ratelimit.RuleRepository, error) {
		mgr, err := do.Invoke[*storage.Manager](i)
		if err != nil {
			return nil, err
		}
		return ratelimit.NewGormRuleRepository(mgr.DB()), nil
	})

	do.Provide(injector, func(i do.Injector) (ratelimit.TokenStorage, error) {
		return provideTokenStorage(i)
	})

	do.Provide(injector, func(i do.Injector) (*ratelimit.Engine, error) {
		rules, err := do.Invoke[ratelimit.RuleRepository](i)
		if err != nil {
			return nil, err
		}
		tokens, err := do.Invoke[ratelimit.TokenStorage](i)
		if err != nil {
			return nil, err
		}
		bus := do.MustInvoke[*eventbus.Bus](i)
		registry := do.MustInvoke[*service.Registry](i)
		return ratelimit.NewEngine(rules, tokens, bus, registry), nil
	})

	do.Provide(injector, func(i do.Injector) (*subject.Chain, error) {
		chain := subject.NewChain()
		chain.Add(subject.NewSessionExtractor(nil))
		chain.Add(subject.GroupRoleExtractor)
		return chain, nil
	})

	do.Provide(injector, func(i do.Injector) (*intercept.Interceptor, error) {
		registry := do.MustInvoke[*service.Registry](i)
		perms, err := do.Invoke[*permission.Engine](i)
		if err != nil {
			return nil, err
		}
		limits, err := do.Invoke[*ratelimit.Engine](i)
		if err != nil {
			return nil, err
		}
		chain := do.MustInvoke[*subject.Chain](i)
		return intercept.NewInterceptor(registry, perms, limits, chain, replyOptions(do.MustInvoke[*config.Config](i))), nil
	})

	do.Provide(injector, func(i do.Injector) (*ratelimit.Sweeper, error) {
		tokens, err := do.Invoke[ratelimit.TokenStorage](i)
		if err != nil {
			return nil, err
		}
		c := do.MustInvoke[*config.Config](i)
		return ratelimit.NewSweeper(tokens, c.SweepInterval)
	})
}

func provideTokenStorage(i do.Injector) (ratelimit.TokenStorage, error) {
	c := do.MustInvoke[*config.Config](i)
	switch c.TokenStorage {
	case config.TokenStorageInmemory:
		return ratelimit.NewInmemoryTokenStorage(), nil
	case config.TokenStorageDatastore:
		mgr, err := do.Invoke[*storage.Manager](i)
		if err != nil {
			return nil, err
		}
		return ratelimit.NewDatastoreTokenStorage(mgr.DB()), nil
	case config.TokenStorageRedis:
		client, err := do.Invoke[*redis.Client](i)
		if err != nil {
			return nil, err
		}
		return ratelimit.NewRedisTokenStorage(client), nil
	default:
		return nil, fmt.Errorf("unknown token storage %q", c.TokenStorage)
	}
}

func replyOptions(c *config.Config) intercept.ReplyOptions {
	opts := intercept.ReplyOptions{
		DeniedEnabled:       c.Reply.OnPermissionDenied.Enabled,
		DeniedTemplate:      c.Reply.OnPermissionDenied.Template,
		RateLimitedEnabled:  c.Reply.OnRateLimited.Enabled,
		RateLimitedTemplate: c.Reply.OnRateLimited.Template,
	}
	if opts.DeniedTemplate == "" {
		opts.DeniedTemplate = intercept.DefaultDeniedReply
	}
	if opts.RateLimitedTemplate == "" {
		opts.RateLimitedTemplate = intercept.DefaultRateLimitedReply
	}
	return opts
}
