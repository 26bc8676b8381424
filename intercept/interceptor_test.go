package intercept_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-accessctl-framework/acerrors"
	"github.com/KOMKZ/go-accessctl-framework/eventbus"
	"github.com/KOMKZ/go-accessctl-framework/intercept"
	"github.com/KOMKZ/go-accessctl-framework/permission"
	"github.com/KOMKZ/go-accessctl-framework/ratelimit"
	"github.com/KOMKZ/go-accessctl-framework/service"
	"github.com/KOMKZ/go-accessctl-framework/subject"
	"github.com/KOMKZ/go-accessctl-framework/testutil"
)

type fixture struct {
	interceptor *intercept.Interceptor
	registry    *service.Registry
	perms       *permission.Engine
	limits      *ratelimit.Engine
}

func newFixture(t *testing.T, defaultAllow bool) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	bus := eventbus.NewBus()
	t.Cleanup(bus.Close)

	registry := service.NewRegistry(service.PluginDiscoveryFunc(func(string) bool { return true }))
	perms := permission.NewEngine(permission.NewGormRepository(db), bus, registry, defaultAllow)
	limits := ratelimit.NewEngine(ratelimit.NewGormRuleRepository(db), ratelimit.NewInmemoryTokenStorage(), bus, registry)

	chain := subject.NewChain(subject.NewSessionExtractor(nil), subject.GroupRoleExtractor)
	interceptor := intercept.NewInterceptor(registry, perms, limits, chain, intercept.DefaultReplyOptions())
	return &fixture{interceptor: interceptor, registry: registry, perms: perms, limits: limits}
}

func privateSession(userID string) *subject.Session {
	return &subject.Session{
		BotType:  "Telegram",
		Platform: "telegram",
		Level:    subject.LevelPrivate,
		UserID:   userID,
	}
}

func TestInterceptor_UnboundHandlerPasses(t *testing.T) {
	f := newFixture(t, false)

	d, err := f.interceptor.Check(context.Background(), "nobody_bound_this", privateSession("42"))
	require.NoError(t, err)
	assert.Equal(t, intercept.StateAllowed, d.State)
	assert.True(t, d.State.Passed())
	assert.Nil(t, d.Token)
}

func TestInterceptor_PermissionDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	_, err = f.perms.SetPermission(ctx, demo, "telegram:42", false)
	require.NoError(t, err)

	f.interceptor.Bind("handler_1", demo)

	d, err := f.interceptor.Check(ctx, "handler_1", privateSession("42"))
	require.NoError(t, err)
	assert.Equal(t, intercept.StateDeniedPermission, d.State)
	assert.False(t, d.State.Passed())
	assert.Equal(t, intercept.DefaultDeniedReply, d.Reply)

	// other users remain allowed by default
	d, err = f.interceptor.Check(ctx, "handler_1", privateSession("7"))
	require.NoError(t, err)
	assert.Equal(t, intercept.StateAllowed, d.State)
}

func TestInterceptor_RateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	_, err = f.limits.AddRule(ctx, demo, "all", time.Minute, 1, false)
	require.NoError(t, err)

	f.interceptor.Bind("handler_1", demo)

	d, err := f.interceptor.Check(ctx, "handler_1", privateSession("42"))
	require.NoError(t, err)
	require.Equal(t, intercept.StateAllowed, d.State)
	require.NotNil(t, d.Token)

	d, err = f.interceptor.Check(ctx, "handler_1", privateSession("42"))
	require.NoError(t, err)
	assert.Equal(t, intercept.StateDeniedRateLimit, d.State)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.Contains(t, d.Reply, "try again in")
	assert.NotContains(t, d.Reply, "{seconds}")
}

func TestInterceptor_RateLimitBucketsPerUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	_, err = f.limits.AddRule(ctx, demo, "all", time.Minute, 1, false)
	require.NoError(t, err)

	f.interceptor.Bind("h", demo)

	d, err := f.interceptor.Check(ctx, "h", privateSession("42"))
	require.NoError(t, err)
	require.Equal(t, intercept.StateAllowed, d.State)

	// a different user keys a different bucket
	d, err = f.interceptor.Check(ctx, "h", privateSession("43"))
	require.NoError(t, err)
	assert.Equal(t, intercept.StateAllowed, d.State)
}

func TestInterceptor_Wrap_DenialErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)

	ran := false
	wrapped := f.interceptor.Wrap(demo, false, func(context.Context, *subject.Session) error {
		ran = true
		return nil
	})

	err = wrapped(ctx, privateSession("42"))
	assert.True(t, errors.Is(err, acerrors.ErrPermissionDenied))
	assert.False(t, ran)
}

func TestInterceptor_Wrap_DenialCarriesDecidingPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	sub, err := demo.CreateSubservice("sub")
	require.NoError(t, err)

	// the broad subject on the ancestor decides, not the session's
	// most specific subject
	_, err = f.perms.SetPermission(ctx, demo, "all", false)
	require.NoError(t, err)

	wrapped := f.interceptor.Wrap(sub, false, func(context.Context, *subject.Session) error {
		return nil
	})
	err = wrapped(ctx, privateSession("42"))

	var denied *permission.DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "demo", denied.Service)
	assert.Equal(t, "all", denied.Subject)
}

func TestInterceptor_Wrap_DefaultDenialHasNoSubject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)

	wrapped := f.interceptor.Wrap(demo, false, func(context.Context, *subject.Session) error {
		return nil
	})
	err = wrapped(ctx, privateSession("42"))

	var denied *permission.DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "demo", denied.Service)
	assert.Empty(t, denied.Subject)
}

func TestInterceptor_Wrap_RateLimitError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	_, err = f.limits.AddRule(ctx, demo, "all", time.Minute, 1, false)
	require.NoError(t, err)

	wrapped := f.interceptor.Wrap(demo, false, func(context.Context, *subject.Session) error {
		return nil
	})

	require.NoError(t, wrapped(ctx, privateSession("42")))

	err = wrapped(ctx, privateSession("42"))
	assert.True(t, errors.Is(err, acerrors.ErrRateLimited))

	var limited *ratelimit.LimitedError
	require.True(t, errors.As(err, &limited))
	assert.False(t, limited.Result.AvailableTime.IsZero())
}

func TestInterceptor_Wrap_RetireOnError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	_, err = f.limits.AddRule(ctx, demo, "all", time.Minute, 1, false)
	require.NoError(t, err)

	boom := errors.New("handler failed")
	failing := f.interceptor.Wrap(demo, true, func(context.Context, *subject.Session) error {
		return boom
	})

	// the failed run returns its token, so the next call still passes
	err = failing(ctx, privateSession("42"))
	assert.ErrorIs(t, err, boom)

	ok := f.interceptor.Wrap(demo, true, func(context.Context, *subject.Session) error {
		return nil
	})
	require.NoError(t, ok(ctx, privateSession("42")))

	// quota consumed now; a further call is limited
	err = ok(ctx, privateSession("42"))
	assert.True(t, errors.Is(err, acerrors.ErrRateLimited))
}

func TestInterceptor_Wrap_KeepTokenOnErrorWhenDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	_, err = f.limits.AddRule(ctx, demo, "all", time.Minute, 1, false)
	require.NoError(t, err)

	boom := errors.New("handler failed")
	failing := f.interceptor.Wrap(demo, false, func(context.Context, *subject.Session) error {
		return boom
	})

	err = failing(ctx, privateSession("42"))
	assert.ErrorIs(t, err, boom)

	// quota stays consumed
	err = failing(ctx, privateSession("42"))
	assert.True(t, errors.Is(err, acerrors.ErrRateLimited))
}

func TestDecision_RetireToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	_, err = f.limits.AddRule(ctx, demo, "all", time.Minute, 1, false)
	require.NoError(t, err)

	d, err := f.interceptor.CheckService(ctx, demo, privateSession("42"))
	require.NoError(t, err)
	require.Equal(t, intercept.StateAllowed, d.State)
	require.NotNil(t, d.Token)

	require.NoError(t, d.RetireToken(ctx))
	assert.Equal(t, intercept.StateTokenRetired, d.State)
	assert.True(t, d.State.Passed())

	// the returned token frees the bucket for the next request
	d2, err := f.interceptor.CheckService(ctx, demo, privateSession("42"))
	require.NoError(t, err)
	assert.Equal(t, intercept.StateAllowed, d2.State)
}

func TestInterceptor_AutoPatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	explicit, err := f.registry.CreatePluginService("explicit")
	require.NoError(t, err)
	f.interceptor.Bind("h_explicit", explicit)

	plugins := []intercept.PluginInfo{
		{Name: "explicit", HandlerIDs: []string{"h_explicit", "h_extra"}},
		{Name: "auto_plugin", HandlerIDs: []string{"h_auto"}},
		{Name: "ignored_plugin", HandlerIDs: []string{"h_ignored"}},
	}
	require.NoError(t, f.interceptor.AutoPatch(ctx, plugins, []string{"ignored_plugin"}))

	// explicit binding untouched, unbound sibling picked up
	assert.Equal(t, explicit, f.interceptor.Binding("h_explicit"))
	assert.Equal(t, explicit, f.interceptor.Binding("h_extra"))

	auto := f.interceptor.Binding("h_auto")
	require.NotNil(t, auto)
	assert.Equal(t, "auto_plugin", auto.QualifiedName())
	assert.True(t, auto.AutoCreated())

	assert.Nil(t, f.interceptor.Binding("h_ignored"))
}
