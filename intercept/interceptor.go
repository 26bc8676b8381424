package intercept

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KOMKZ/go-accessctl-framework/logger"
	"github.com/KOMKZ/go-accessctl-framework/permission"
	"github.com/KOMKZ/go-accessctl-framework/ratelimit"
	"github.com/KOMKZ/go-accessctl-framework/service"
	"github.com/KOMKZ/go-accessctl-framework/subject"
)

// DefaultDeniedReply and DefaultRateLimitedReply are used when a reply
// is enabled without a template. "{seconds}" in a rate-limited
// template is replaced by the whole seconds until capacity returns.
const (
	DefaultDeniedReply      = "you do not have permission to use this feature"
	DefaultRateLimitedReply = "too many requests, try again in {seconds}s"
)

// ReplyOptions controls the user-facing messages attached to denials.
// A nil template pointer means "use the default"; a disabled toggle
// leaves Decision.Reply empty.
type ReplyOptions struct {
	DeniedEnabled       bool
	DeniedTemplate      string
	RateLimitedEnabled  bool
	RateLimitedTemplate string
}

// DefaultReplyOptions enables both replies with the default templates
func DefaultReplyOptions() ReplyOptions {
	return ReplyOptions{
		DeniedEnabled:       true,
		DeniedTemplate:      DefaultDeniedReply,
		RateLimitedEnabled:  true,
		RateLimitedTemplate: DefaultRateLimitedReply,
	}
}

// Decision is the outcome of the two-phase check. Token is set only
// when State is Allowed and at least one rate-limit rule applied; the
// caller retires it after a failed handler run when that behavior is
// wanted. On a permission denial, DeniedService and DeniedSubject
// identify the stored rule that decided; an empty DeniedSubject means
// the configured default decided.
type Decision struct {
	State         State
	Reply         string
	RetryAfter    time.Duration
	AvailableTime time.Time
	Token         *ratelimit.Token
	DeniedService string
	DeniedSubject string
}

// RetireToken returns the acquired tokens and moves the decision to
// TokenRetired. Safe to call on a tokenless decision.
func (d *Decision) RetireToken(ctx context.Context) error {
	if err := d.Token.Retire(ctx); err != nil {
		return err
	}
	if d.State == StateAllowed {
		d.State = StateTokenRetired
	}
	return nil
}

// Handler is the wrapped unit of work
type Handler func(ctx context.Context, sess *subject.Session) error

// Interceptor binds handler ids to services and gates execution
type Interceptor struct {
	mu       sync.RWMutex
	bindings map[string]*service.Service

	registry *service.Registry
	perms    *permission.Engine
	limits   *ratelimit.Engine
	chain    *subject.Chain
	replies  ReplyOptions
	log      *logger.CtxZapLogger
}

func NewInterceptor(registry *service.Registry, perms *permission.Engine, limits *ratelimit.Engine, chain *subject.Chain, replies ReplyOptions) *Interceptor {
	return &Interceptor{
		bindings: make(map[string]*service.Service),
		registry: registry,
		perms:    perms,
		limits:   limits,
		chain:    chain,
		replies:  replies,
		log:      logger.GetLogger("intercept"),
	}
}

// Bind routes the handler id through the service's access control.
// Rebinding replaces the previous service.
func (i *Interceptor) Bind(handlerID string, svc *service.Service) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.bindings[handlerID] = svc
}

// Binding returns the bound service, or nil
func (i *Interceptor) Binding(handlerID string) *service.Service {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.bindings[handlerID]
}

// Check runs the two-phase gate for a bound handler. Unbound handler
// ids pass unconditionally with no token.
func (i *Interceptor) Check(ctx context.Context, handlerID string, sess *subject.Session) (*Decision, error) {
	svc := i.Binding(handlerID)
	if svc == nil {
		return &Decision{State: StateAllowed}, nil
	}
	return i.CheckService(ctx, svc, sess)
}

// CheckService runs the gate against a service directly: permission
// first, then token acquisition across every applicable rule
func (i *Interceptor) CheckService(ctx context.Context, svc *service.Service, sess *subject.Session) (*Decision, error) {
	subjects := i.chain.Extract(sess)

	p, allowed, err := i.perms.ResolvePermission(ctx, svc, subjects...)
	if err != nil {
		return nil, err
	}
	if !allowed {
		d := &Decision{State: StateDeniedPermission, DeniedService: svc.QualifiedName()}
		if p != nil {
			d.DeniedService = p.Service.QualifiedName()
			d.DeniedSubject = p.Subject
		}
		if i.replies.DeniedEnabled {
			d.Reply = i.replies.DeniedTemplate
		}
		return d, nil
	}

	user := ""
	if len(subjects) > 0 {
		user = subjects[0]
	}
	res, err := i.limits.AcquireTokens(ctx, svc, user, subjects)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		d := &Decision{
			State:         StateDeniedRateLimit,
			AvailableTime: res.AvailableTime,
		}
		if wait := time.Until(res.AvailableTime); wait > 0 {
			d.RetryAfter = wait
		}
		if i.replies.RateLimitedEnabled {
			d.Reply = renderRateLimited(i.replies.RateLimitedTemplate, d.RetryAfter)
		}
		return d, nil
	}

	return &Decision{State: StateAllowed, Token: res.Token}, nil
}

// Wrap decorates a handler with the gate. A denial surfaces as
// *permission.DeniedError or *ratelimit.LimitedError. When
// retireOnError is set, a handler error returns the acquired tokens
// before being re-raised, so a failed run does not consume quota.
func (i *Interceptor) Wrap(svc *service.Service, retireOnError bool, handler Handler) Handler {
	return func(ctx context.Context, sess *subject.Session) error {
		decision, err := i.CheckService(ctx, svc, sess)
		if err != nil {
			return err
		}
		switch decision.State {
		case StateDeniedPermission:
			return &permission.DeniedError{
				Service: decision.DeniedService,
				Subject: decision.DeniedSubject,
			}
		case StateDeniedRateLimit:
			return &ratelimit.LimitedError{Result: &ratelimit.AcquireResult{
				AvailableTime: decision.AvailableTime,
			}}
		}

		err = handler(ctx, sess)
		if err != nil && retireOnError {
			if retireErr := decision.RetireToken(ctx); retireErr != nil {
				i.log.WarnCtx(ctx, "token retire failed",
					zap.String("service", svc.QualifiedName()),
					zap.Error(retireErr))
			}
		}
		return err
	}
}

// PluginInfo describes a host-framework plugin for AutoPatch
type PluginInfo struct {
	Name       string
	HandlerIDs []string
}

// AutoPatch binds every unbound handler of every plugin to an
// auto-created plugin service. Plugins on the ignore list are
// skipped, as are handler ids something already bound explicitly.
func (i *Interceptor) AutoPatch(ctx context.Context, plugins []PluginInfo, ignore []string) error {
	ignored := make(map[string]struct{}, len(ignore))
	for _, name := range ignore {
		ignored[name] = struct{}{}
	}

	for _, plugin := range plugins {
		if _, skip := ignored[plugin.Name]; skip {
			continue
		}
		svc, err := i.registry.GetOrCreatePluginService(plugin.Name)
		if err != nil {
			return err
		}
		bound := 0
		for _, id := range plugin.HandlerIDs {
			if i.Binding(id) != nil {
				continue
			}
			i.Bind(id, svc)
			bound++
		}
		if bound > 0 {
			i.log.InfoCtx(ctx, "auto patched plugin",
				zap.String("plugin", plugin.Name),
				zap.Int("handlers", bound))
		}
	}
	return nil
}

func renderRateLimited(template string, retryAfter time.Duration) string {
	seconds := int64(retryAfter / time.Second)
	if retryAfter%time.Second > 0 {
		seconds++
	}
	return strings.ReplaceAll(template, "{seconds}", fmt.Sprint(seconds))
}
