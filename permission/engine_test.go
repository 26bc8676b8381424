package permission_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-accessctl-framework/eventbus"
	"github.com/KOMKZ/go-accessctl-framework/permission"
	"github.com/KOMKZ/go-accessctl-framework/service"
	"github.com/KOMKZ/go-accessctl-framework/testutil"
)

type fixture struct {
	engine   *permission.Engine
	bus      *eventbus.Bus
	registry *service.Registry
}

func newFixture(t *testing.T, defaultAllow bool) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	bus := eventbus.NewBus()
	t.Cleanup(bus.Close)

	registry := service.NewRegistry(service.PluginDiscoveryFunc(func(string) bool { return true }))
	engine := permission.NewEngine(permission.NewGormRepository(db), bus, registry, defaultAllow)
	return &fixture{engine: engine, bus: bus, registry: registry}
}

func TestEngine_CheckPermission_Default(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, true)
	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)

	allowed, err := f.engine.CheckPermission(ctx, demo, "qq:123", "all")
	require.NoError(t, err)
	assert.True(t, allowed)

	f = newFixture(t, false)
	demo, err = f.registry.CreatePluginService("demo")
	require.NoError(t, err)

	allowed, err = f.engine.CheckPermission(ctx, demo, "qq:123", "all")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEngine_ResolvePermission_DecidingPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	sub, err := demo.CreateSubservice("sub")
	require.NoError(t, err)

	_, err = f.engine.SetPermission(ctx, demo, "all", false)
	require.NoError(t, err)

	p, allowed, err := f.engine.ResolvePermission(ctx, sub, "qq:123", "all")
	require.NoError(t, err)
	assert.False(t, allowed)
	require.NotNil(t, p)
	assert.Equal(t, "demo", p.Service.QualifiedName())
	assert.Equal(t, "all", p.Subject)

	// nothing stored means the default decides and no row is reported
	p, allowed, err = f.engine.ResolvePermission(ctx, sub, "qq:999")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Nil(t, p)
}

func TestEngine_Inheritance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	group1, err := demo.CreateSubservice("group1")
	require.NoError(t, err)
	group2, err := demo.CreateSubservice("group2")
	require.NoError(t, err)

	// deny the plugin, re-allow one subtree
	_, err = f.engine.SetPermission(ctx, demo, "all", false)
	require.NoError(t, err)
	_, err = f.engine.SetPermission(ctx, group1, "all", true)
	require.NoError(t, err)

	allowed, err := f.engine.CheckPermission(ctx, group1, "all")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = f.engine.CheckPermission(ctx, group2, "all")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = f.engine.CheckPermission(ctx, demo, "all")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEngine_SubjectMajorOverAncestorMinor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	sub, err := demo.CreateSubservice("sub")
	require.NoError(t, err)

	// specific subject stored on the ancestor, broad subject on the
	// node itself: the more specific subject must win even though its
	// row sits further from the node
	_, err = f.engine.SetPermission(ctx, demo, "qq:123", false)
	require.NoError(t, err)
	_, err = f.engine.SetPermission(ctx, sub, "all", true)
	require.NoError(t, err)

	allowed, err := f.engine.CheckPermission(ctx, sub, "qq:123", "all")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEngine_SetPermission_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)

	changed, err := f.engine.SetPermission(ctx, demo, "all", false)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.engine.SetPermission(ctx, demo, "all", false)
	require.NoError(t, err)
	assert.False(t, changed)

	// flipping the value is a change again
	changed, err = f.engine.SetPermission(ctx, demo, "all", true)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestEngine_SetPermission_Events(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	covered, err := demo.CreateSubservice("covered")
	require.NoError(t, err)
	uncovered, err := demo.CreateSubservice("uncovered")
	require.NoError(t, err)

	// descendant with its own row must not receive the cascade
	_, err = f.engine.SetPermission(ctx, covered, "all", true)
	require.NoError(t, err)

	var mu sync.Mutex
	var setFor, changedFor []string
	f.bus.Subscribe(eventbus.TypeSetPermission, nil, func(_ context.Context, p eventbus.Payload) error {
		mu.Lock()
		defer mu.Unlock()
		setFor = append(setFor, p.Service.QualifiedName())
		return nil
	})
	f.bus.Subscribe(eventbus.TypeChangePermission, nil, func(_ context.Context, p eventbus.Payload) error {
		mu.Lock()
		defer mu.Unlock()
		changedFor = append(changedFor, p.Service.QualifiedName())
		return nil
	})

	_, err = f.engine.SetPermission(ctx, demo, "all", false)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"demo"}, setFor)
	assert.ElementsMatch(t, []string{demo.QualifiedName(), uncovered.QualifiedName()}, changedFor)
	assert.NotContains(t, changedFor, covered.QualifiedName())
}

func TestEngine_RemovePermission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	sub, err := demo.CreateSubservice("sub")
	require.NoError(t, err)

	_, err = f.engine.SetPermission(ctx, demo, "all", false)
	require.NoError(t, err)
	_, err = f.engine.SetPermission(ctx, sub, "all", true)
	require.NoError(t, err)

	var mu sync.Mutex
	var removedFor, changedTo []bool
	f.bus.Subscribe(eventbus.TypeRemovePermission, nil, func(_ context.Context, p eventbus.Payload) error {
		mu.Lock()
		defer mu.Unlock()
		removedFor = append(removedFor, true)
		return nil
	})
	f.bus.Subscribe(eventbus.TypeChangePermission, nil, func(_ context.Context, p eventbus.Payload) error {
		mu.Lock()
		defer mu.Unlock()
		changedTo = append(changedTo, p.Allow)
		return nil
	})

	removed, err := f.engine.RemovePermission(ctx, sub, "all")
	require.NoError(t, err)
	assert.True(t, removed)

	// back to the inherited deny
	allowed, err := f.engine.CheckPermission(ctx, sub, "all")
	require.NoError(t, err)
	assert.False(t, allowed)

	mu.Lock()
	assert.Len(t, removedFor, 1)
	for _, allow := range changedTo {
		assert.False(t, allow)
	}
	mu.Unlock()

	// removing again is a no-op
	removed, err = f.engine.RemovePermission(ctx, sub, "all")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestEngine_GetAllPermissionsBySubjects_Suppression(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	other, err := f.registry.CreatePluginService("other")
	require.NoError(t, err)

	// both subjects stored on demo; only other has a row for "all"
	_, err = f.engine.SetPermission(ctx, demo, "qq:123", false)
	require.NoError(t, err)
	_, err = f.engine.SetPermission(ctx, demo, "all", true)
	require.NoError(t, err)
	_, err = f.engine.SetPermission(ctx, other, "all", true)
	require.NoError(t, err)

	perms, err := f.engine.GetAllPermissionsBySubjects(ctx, "qq:123", "all")
	require.NoError(t, err)
	require.Len(t, perms, 2)

	bySvc := make(map[string]permission.Permission, len(perms))
	for _, p := range perms {
		bySvc[p.Service.QualifiedName()] = p
	}
	// the more specific subject wins for demo
	assert.Equal(t, "qq:123", bySvc["demo"].Subject)
	assert.False(t, bySvc["demo"].Allow)
	assert.Equal(t, "all", bySvc["other"].Subject)
}

func TestEngine_GetPermissionBySubjects_NoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	demo, err := f.registry.CreatePluginService("demo")
	require.NoError(t, err)
	sub, err := demo.CreateSubservice("sub")
	require.NoError(t, err)

	_, err = f.engine.SetPermission(ctx, demo, "all", false)
	require.NoError(t, err)

	// without tracing, the node's own rows decide alone
	p, err := f.engine.GetPermissionBySubjects(ctx, sub, []string{"all"}, false)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = f.engine.GetPermissionBySubjects(ctx, sub, []string{"all"}, true)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, demo, p.Service)
}
